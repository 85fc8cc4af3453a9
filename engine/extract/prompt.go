package extract

import (
	"fmt"
	"strings"

	"github.com/loreweave/loreweave/engine/schema"
)

// extractionSystemPrompt frames the model as a structured extractor.
// The schema vocabulary and the segment text are injected per call.
const extractionSystemPrompt = `You are a knowledge graph extraction engine.
You extract entities and relations from text, restricted to a fixed vocabulary.
You reply with a single JSON object and nothing else.`

const extractionPromptTemplate = `Extract entities and relations from the text below.

%s

Return a JSON object with exactly two keys:
  "entities"  : array of {"name": string, "type": string, "properties": object}
  "relations" : array of {"subject": string, "type": string, "object": string, "properties": object}

Rules:
- Entity "type" must be one of the entity types listed above.
- Relation "type" must be one of the relation types listed above.
- Relation "subject" and "object" must be names from your "entities" array.
- Only include entities and relations clearly supported by the text.
- If there are none, return empty arrays.
- Do NOT include any text outside the JSON object.

TEXT:
%s`

// buildPrompt renders the extraction prompt for one segment.
func buildPrompt(s *schema.Schema, text string) string {
	return fmt.Sprintf(extractionPromptTemplate, s.Describe(), strings.TrimSpace(text))
}
