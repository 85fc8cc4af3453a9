package retrieve

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/loreweave/loreweave/engine/domain"
	"github.com/loreweave/loreweave/engine/graph"
	"github.com/loreweave/loreweave/engine/schema"
	"github.com/loreweave/loreweave/pkg/llm"
)

// QueryExample is a worked question/Cypher pair included in the
// generation prompt.
type QueryExample struct {
	Question string
	Cypher   string
}

// DefaultQueryExamples ground the model in this graph's shape. Used when
// the caller supplies no examples of its own.
var DefaultQueryExamples = []QueryExample{
	{
		Question: "Find text that mentions Paul Atreides",
		Cypher:   "MATCH (e:Entity {name: 'Paul Atreides'})-[:MENTIONED_IN]->(s:Segment) RETURN s.text ORDER BY s.ordinal LIMIT 25",
	},
	{
		Question: "Which entities are connected to House Atreides?",
		Cypher:   "MATCH (:Entity {name: 'House Atreides'})-[r]-(other:Entity) RETURN type(r) AS relationship, other.name AS name LIMIT 25",
	},
	{
		Question: "Show me passages about the Bene Gesserit",
		Cypher:   "MATCH (s:Segment) WHERE s.text CONTAINS 'Bene Gesserit' RETURN s.text ORDER BY s.ordinal LIMIT 25",
	},
}

// Text2Query asks the model to translate the question into Cypher, runs
// it read-only against the graph, and returns the raw rows. Generation
// and safety failures surface immediately: a model that produced a bad
// query once will produce it again, so there is nothing to retry.
type Text2Query struct {
	client   llm.Client
	store    Searcher
	schema   *schema.Schema
	examples []QueryExample
}

// NewText2Query creates the text-to-query strategy. A nil examples slice
// falls back to DefaultQueryExamples.
func NewText2Query(client llm.Client, store Searcher, s *schema.Schema, examples []QueryExample) *Text2Query {
	if examples == nil {
		examples = DefaultQueryExamples
	}
	return &Text2Query{client: client, store: store, schema: s, examples: examples}
}

func (t *Text2Query) Name() string { return "text2cypher" }

const text2querySystem = `You translate questions about a knowledge graph into Cypher.
Respond with a single read-only Cypher query and nothing else.
Never use CREATE, MERGE, DELETE, SET, REMOVE or any other write clause.`

// writeClause matches Cypher clauses that mutate the graph.
var writeClause = regexp.MustCompile(`(?i)\b(create|merge|delete|detach|set|remove|drop|foreach|load\s+csv)\b`)

func (t *Text2Query) Search(ctx context.Context, query string, topK int) (Result, error) {
	topK = clampTopK(topK)

	resp, err := t.client.Generate(ctx, llm.Request{
		System: text2querySystem,
		Prompt: t.buildPrompt(query, topK),
	})
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", domain.ErrQueryGeneration, err)
	}

	cypher := extractCypher(resp.Content)
	if cypher == "" {
		return Result{}, fmt.Errorf("%w: model returned no query", domain.ErrQueryGeneration)
	}
	if m := writeClause.FindString(cypher); m != "" {
		return Result{}, fmt.Errorf("%w: generated query contains %q", domain.ErrUnsafeQuery, strings.ToUpper(m))
	}

	rows, err := t.store.Query(ctx, cypher, nil)
	if err != nil {
		// A statement Neo4j rejects is the model's fault, not the
		// store's; reclassify so callers never retry it.
		if graph.IsStatementError(err) {
			return Result{}, fmt.Errorf("%w: store rejected generated query: %v", domain.ErrQueryGeneration, err)
		}
		return Result{}, err
	}

	res := Result{Metadata: map[string]any{"cypher": cypher}}
	for _, row := range rows {
		content, err := json.Marshal(row)
		if err != nil {
			content = []byte(fmt.Sprint(row))
		}
		res.Items = append(res.Items, Item{Content: string(content)})
	}
	return res, nil
}

func (t *Text2Query) buildPrompt(query string, topK int) string {
	var b strings.Builder
	b.WriteString("Graph schema:\n")
	b.WriteString(t.schema.Describe())
	b.WriteString("\n\nSegment nodes carry {id, text, ordinal} and link to documents via FROM_DOCUMENT.")
	b.WriteString("\nEntity nodes carry {id, name, type} and link to segments via MENTIONED_IN.\n")
	for _, ex := range t.examples {
		fmt.Fprintf(&b, "\nQuestion: %s\nCypher: %s\n", ex.Question, ex.Cypher)
	}
	fmt.Fprintf(&b, "\nLimit results to %d rows unless the question demands otherwise.", topK)
	fmt.Fprintf(&b, "\n\nQuestion: %s\nCypher:", query)
	return b.String()
}

// extractCypher strips markdown fences and surrounding prose from the
// model output.
func extractCypher(text string) string {
	text = strings.TrimSpace(text)
	if start := strings.Index(text, "```"); start >= 0 {
		rest := text[start+3:]
		rest = strings.TrimPrefix(rest, "cypher")
		if end := strings.Index(rest, "```"); end >= 0 {
			rest = rest[:end]
		}
		text = rest
	}
	return strings.TrimSpace(text)
}
