// Package extract asks a language model to propose entities and
// relations for each text segment, constrained by the run's schema.
// Each segment moves through the states Pending → Extracting →
// Validated → Accepted or Rejected; a rejected segment never aborts its
// document.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/loreweave/loreweave/engine/domain"
	"github.com/loreweave/loreweave/engine/schema"
	"github.com/loreweave/loreweave/pkg/llm"
	"github.com/loreweave/loreweave/pkg/resilience"
)

// State tracks one segment through the extraction lifecycle.
type State string

const (
	StatePending    State = "pending"
	StateExtracting State = "extracting"
	StateValidated  State = "validated"
	StateAccepted   State = "accepted"
	StateRejected   State = "rejected"
)

// Candidate is the schema-checked extraction output for one segment,
// tagged with the source segment for provenance.
type Candidate struct {
	SegmentID string
	State     State
	Entities  []domain.Entity
	Relations []RelationCandidate
	// Dropped counts relations discarded by schema enforcement.
	Dropped int
}

// RelationCandidate references entities by name; the resolver rewrites
// endpoints to canonical entity ids.
type RelationCandidate struct {
	SubjectName string
	SubjectType string
	Type        string
	ObjectName  string
	ObjectType  string
	Properties  map[string]any
	SegmentID   string
}

// rawResult is the JSON structure requested from the model.
type rawResult struct {
	Entities []struct {
		Name       string         `json:"name"`
		Type       string         `json:"type"`
		Properties map[string]any `json:"properties"`
	} `json:"entities"`
	Relations []struct {
		Subject    string         `json:"subject"`
		Type       string         `json:"type"`
		Object     string         `json:"object"`
		Properties map[string]any `json:"properties"`
	} `json:"relations"`
}

// Engine runs schema-constrained extraction against a language model.
type Engine struct {
	client  llm.Client
	schema  *schema.Schema
	retry   resilience.RetryPolicy
	breaker *resilience.Breaker
	logger  *slog.Logger
}

// New creates an extraction engine. maxRetries bounds re-prompting on
// malformed model output.
func New(client llm.Client, s *schema.Schema, maxRetries int, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Engine{
		client: client,
		schema: s,
		retry: resilience.RetryPolicy{
			MaxAttempts:     maxRetries + 1,
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     8 * time.Second,
		},
		breaker: resilience.NewBreaker(resilience.DefaultBreakerOpts),
		logger:  logger,
	}
}

// Extract runs the model over one segment and validates the output
// against the schema. Malformed output is retried; once retries are
// exhausted the segment is Rejected and a nil error is returned so the
// document continues. A non-nil error is returned only on context
// cancellation.
func (e *Engine) Extract(ctx context.Context, seg domain.Segment) (Candidate, error) {
	cand := Candidate{SegmentID: seg.ID, State: StatePending}
	if strings.TrimSpace(seg.Text) == "" {
		cand.State = StateAccepted
		return cand, nil
	}

	cand.State = StateExtracting
	prompt := buildPrompt(e.schema, seg.Text)

	var raw rawResult
	err := resilience.Retry(ctx, e.retry, func(ctx context.Context) error {
		// The breaker sees only transport failures; malformed output is
		// a quality problem, not a provider outage.
		var resp *llm.Response
		err := e.breaker.Call(ctx, func(ctx context.Context) error {
			var gerr error
			resp, gerr = e.client.Generate(ctx, llm.Request{
				System:     extractionSystemPrompt,
				Prompt:     prompt,
				Constraint: llm.ConstraintJSON,
			})
			return gerr
		})
		if err != nil {
			return fmt.Errorf("%w: %w", domain.ErrExtraction, err)
		}
		return parseResult(resp.Content, &raw)
	})
	if err != nil {
		if ctx.Err() != nil {
			return cand, ctx.Err()
		}
		e.logger.Warn("extract: segment rejected",
			"segment_id", seg.ID,
			"error", err,
		)
		cand.State = StateRejected
		return cand, nil
	}

	cand.State = StateValidated
	e.validate(seg.ID, raw, &cand)
	cand.State = StateAccepted
	return cand, nil
}

// parseResult decodes model output, tolerating surrounding prose by
// slicing at the outermost braces.
func parseResult(content string, out *rawResult) error {
	content = strings.TrimSpace(content)
	if start := strings.Index(content, "{"); start >= 0 {
		if end := strings.LastIndex(content, "}"); end > start {
			content = content[start : end+1]
		}
	}
	if err := json.Unmarshal([]byte(content), out); err != nil {
		return fmt.Errorf("%w: malformed model output: %v", domain.ErrExtraction, err)
	}
	return nil
}

// validate filters raw output against the schema and fills the candidate.
func (e *Engine) validate(segmentID string, raw rawResult, cand *Candidate) {
	// Entities dedupe per (type, name): the same name under two schema
	// types is two distinct entities. Types outside the vocabulary are
	// always dropped since they could not become node labels.
	seen := make(map[domain.ResolutionKey]struct{})
	byName := make(map[string][]domain.Entity)
	for _, re := range raw.Entities {
		name := strings.TrimSpace(re.Name)
		if name == "" {
			continue
		}
		if !e.schema.HasEntityType(re.Type) {
			e.logger.Debug("extract: dropping entity with unknown type",
				"segment_id", segmentID, "name", name, "type", re.Type)
			continue
		}
		key := domain.NewResolutionKey(re.Type, name)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		ent := domain.Entity{
			Type:       re.Type,
			Name:       name,
			Properties: re.Properties,
			SegmentIDs: []string{segmentID},
		}
		cand.Entities = append(cand.Entities, ent)
		lower := strings.ToLower(name)
		byName[lower] = append(byName[lower], ent)
	}

	for _, rr := range raw.Relations {
		subjects := byName[strings.ToLower(strings.TrimSpace(rr.Subject))]
		objects := byName[strings.ToLower(strings.TrimSpace(rr.Object))]
		if len(subjects) == 0 || len(objects) == 0 {
			cand.Dropped++
			e.logger.Debug("extract: dropping relation with unknown endpoint",
				"segment_id", segmentID, "subject", rr.Subject, "object", rr.Object)
			continue
		}
		if e.schema.Enforce() && !e.schema.HasRelationType(rr.Type) {
			cand.Dropped++
			e.logger.Debug("extract: dropping relation with unknown type",
				"segment_id", segmentID, "type", rr.Type)
			continue
		}
		// Endpoints reference entities by name only, so when a name
		// exists under several types, pick the first pair the schema
		// permits. With enforcement off the first pair wins.
		subj, obj, ok := pickEndpoints(e.schema, subjects, rr.Type, objects)
		if !ok {
			cand.Dropped++
			e.logger.Info("extract: schema violation dropped",
				"segment_id", segmentID,
				"triple", fmt.Sprintf("(%s)-[%s]->(%s)", rr.Subject, rr.Type, rr.Object),
				"error", domain.ErrSchemaViolation,
			)
			continue
		}
		cand.Relations = append(cand.Relations, RelationCandidate{
			SubjectName: subj.Name,
			SubjectType: subj.Type,
			Type:        rr.Type,
			ObjectName:  obj.Name,
			ObjectType:  obj.Type,
			Properties:  rr.Properties,
			SegmentID:   segmentID,
		})
	}
}

// pickEndpoints returns the first (subject, object) pair whose triple the
// schema permits.
func pickEndpoints(s *schema.Schema, subjects []domain.Entity, relType string, objects []domain.Entity) (domain.Entity, domain.Entity, bool) {
	for _, subj := range subjects {
		for _, obj := range objects {
			if s.Allows(schema.Triple{Subject: subj.Type, Relation: relType, Object: obj.Type}) {
				return subj, obj, true
			}
		}
	}
	return domain.Entity{}, domain.Entity{}, false
}
