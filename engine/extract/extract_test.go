package extract

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/loreweave/loreweave/engine/domain"
	"github.com/loreweave/loreweave/engine/schema"
	"github.com/loreweave/loreweave/pkg/llm"
)

// fakeClient returns canned responses in sequence.
type fakeClient struct {
	responses []string
	errs      []error
	calls     int
	lastReq   llm.Request
}

func (f *fakeClient) Generate(_ context.Context, req llm.Request) (*llm.Response, error) {
	f.lastReq = req
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i >= len(f.responses) {
		i = len(f.responses) - 1
	}
	return &llm.Response{Content: f.responses[i]}, nil
}

func duneSchema(t *testing.T, enforce bool) *schema.Schema {
	t.Helper()
	s, err := schema.New(schema.Config{
		Entities:  []string{"Person", "Organization", "Location"},
		Relations: []string{"SITUATED_AT"},
		PotentialSchema: [][3]string{
			{"Person", "SITUATED_AT", "Location"},
		},
		Enforce: enforce,
	})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

const paulResponse = `{
	"entities": [
		{"name": "Paul", "type": "Person", "properties": {"house": "Atreides"}},
		{"name": "Caladan", "type": "Location", "properties": {}}
	],
	"relations": [
		{"subject": "Paul", "type": "SITUATED_AT", "object": "Caladan", "properties": {}}
	]
}`

func TestExtractAcceptsValidOutput(t *testing.T) {
	client := &fakeClient{responses: []string{paulResponse}}
	eng := New(client, duneSchema(t, true), 0, nil)

	cand, err := eng.Extract(context.Background(), domain.Segment{ID: "s1", Text: "Paul lives in Caladan."})
	if err != nil {
		t.Fatal(err)
	}
	if cand.State != StateAccepted {
		t.Fatalf("state = %s, want accepted", cand.State)
	}
	if len(cand.Entities) != 2 {
		t.Fatalf("entities = %d, want 2", len(cand.Entities))
	}
	if len(cand.Relations) != 1 {
		t.Fatalf("relations = %d, want 1", len(cand.Relations))
	}
	rel := cand.Relations[0]
	if rel.SubjectName != "Paul" || rel.ObjectName != "Caladan" || rel.Type != "SITUATED_AT" {
		t.Errorf("relation = %+v", rel)
	}
	if rel.SegmentID != "s1" || cand.Entities[0].SegmentIDs[0] != "s1" {
		t.Error("provenance segment id missing")
	}
	if client.lastReq.Constraint != llm.ConstraintJSON {
		t.Error("extraction must request JSON output")
	}
	if !strings.Contains(client.lastReq.Prompt, "SITUATED_AT") {
		t.Error("prompt missing schema vocabulary")
	}
}

func TestExtractDropsDisallowedTriple(t *testing.T) {
	// The model proposes (Organization, SITUATED_AT, Person), which is
	// not in the allow-list: the relation is dropped, the segment still
	// contributes its valid subset.
	resp := `{
		"entities": [
			{"name": "Paul", "type": "Person"},
			{"name": "Caladan", "type": "Location"},
			{"name": "Bene Gesserit", "type": "Organization"}
		],
		"relations": [
			{"subject": "Paul", "type": "SITUATED_AT", "object": "Caladan"},
			{"subject": "Bene Gesserit", "type": "SITUATED_AT", "object": "Paul"}
		]
	}`
	eng := New(&fakeClient{responses: []string{resp}}, duneSchema(t, true), 0, nil)

	cand, err := eng.Extract(context.Background(), domain.Segment{ID: "s1", Text: "Paul lives in Caladan."})
	if err != nil {
		t.Fatal(err)
	}
	if len(cand.Relations) != 1 {
		t.Fatalf("relations = %d, want 1", len(cand.Relations))
	}
	if cand.Relations[0].SubjectType != "Person" {
		t.Errorf("surviving relation = %+v", cand.Relations[0])
	}
	if cand.Dropped != 1 {
		t.Errorf("dropped = %d, want 1", cand.Dropped)
	}
	if len(cand.Entities) != 3 {
		t.Errorf("entities = %d, want 3 (valid subset kept)", len(cand.Entities))
	}
}

func TestExtractAcceptsAnyTripleWithoutEnforcement(t *testing.T) {
	resp := `{
		"entities": [
			{"name": "Bene Gesserit", "type": "Organization"},
			{"name": "Paul", "type": "Person"}
		],
		"relations": [
			{"subject": "Bene Gesserit", "type": "SITUATED_AT", "object": "Paul"}
		]
	}`
	eng := New(&fakeClient{responses: []string{resp}}, duneSchema(t, false), 0, nil)

	cand, err := eng.Extract(context.Background(), domain.Segment{ID: "s1", Text: "text"})
	if err != nil {
		t.Fatal(err)
	}
	if len(cand.Relations) != 1 || cand.Dropped != 0 {
		t.Fatalf("relations = %d dropped = %d, want 1/0", len(cand.Relations), cand.Dropped)
	}
}

func TestExtractRetriesMalformedThenRejects(t *testing.T) {
	client := &fakeClient{responses: []string{"not json", "still not json"}}
	eng := New(client, duneSchema(t, true), 1, nil)

	cand, err := eng.Extract(context.Background(), domain.Segment{ID: "s1", Text: "text"})
	if err != nil {
		t.Fatalf("rejection must not be an error: %v", err)
	}
	if cand.State != StateRejected {
		t.Fatalf("state = %s, want rejected", cand.State)
	}
	if client.calls != 2 {
		t.Errorf("calls = %d, want 2 (one retry)", client.calls)
	}
}

func TestExtractRecoversOnRetry(t *testing.T) {
	client := &fakeClient{responses: []string{"garbage", paulResponse}}
	eng := New(client, duneSchema(t, true), 2, nil)

	cand, err := eng.Extract(context.Background(), domain.Segment{ID: "s1", Text: "text"})
	if err != nil {
		t.Fatal(err)
	}
	if cand.State != StateAccepted || len(cand.Entities) != 2 {
		t.Fatalf("state = %s entities = %d", cand.State, len(cand.Entities))
	}
}

func TestExtractToleratesSurroundingProse(t *testing.T) {
	resp := "Here is the extraction:\n" + paulResponse + "\nHope that helps!"
	eng := New(&fakeClient{responses: []string{resp}}, duneSchema(t, true), 0, nil)

	cand, err := eng.Extract(context.Background(), domain.Segment{ID: "s1", Text: "text"})
	if err != nil {
		t.Fatal(err)
	}
	if len(cand.Entities) != 2 {
		t.Fatalf("entities = %d, want 2", len(cand.Entities))
	}
}

func TestExtractEmptySegment(t *testing.T) {
	client := &fakeClient{responses: []string{paulResponse}}
	eng := New(client, duneSchema(t, true), 0, nil)

	cand, err := eng.Extract(context.Background(), domain.Segment{ID: "s1", Text: "   "})
	if err != nil {
		t.Fatal(err)
	}
	if cand.State != StateAccepted || len(cand.Entities) != 0 {
		t.Fatalf("empty segment should be accepted with no candidates")
	}
	if client.calls != 0 {
		t.Error("empty segment must not call the model")
	}
}

func TestExtractKeepsSameNameAcrossTypes(t *testing.T) {
	// Caladan the Location and Caladan the Organization are distinct
	// entities; neither may shadow the other.
	resp := `{
		"entities": [
			{"name": "Caladan", "type": "Location"},
			{"name": "Caladan", "type": "Organization"}
		],
		"relations": []
	}`
	eng := New(&fakeClient{responses: []string{resp}}, duneSchema(t, true), 0, nil)

	cand, err := eng.Extract(context.Background(), domain.Segment{ID: "s1", Text: "text"})
	if err != nil {
		t.Fatal(err)
	}
	if len(cand.Entities) != 2 {
		t.Fatalf("entities = %d, want 2 (got %+v)", len(cand.Entities), cand.Entities)
	}
	types := map[string]bool{}
	for _, ent := range cand.Entities {
		if ent.Name != "Caladan" {
			t.Errorf("entity name = %q", ent.Name)
		}
		types[ent.Type] = true
	}
	if !types["Location"] || !types["Organization"] {
		t.Errorf("types = %v, want both Location and Organization", types)
	}
}

func TestExtractBindsRelationToSchemaLegalType(t *testing.T) {
	// The endpoint name is ambiguous across types; the relation must bind
	// to the entity whose type the schema permits, regardless of order.
	resp := `{
		"entities": [
			{"name": "Paul", "type": "Person"},
			{"name": "Caladan", "type": "Organization"},
			{"name": "Caladan", "type": "Location"}
		],
		"relations": [
			{"subject": "Paul", "type": "SITUATED_AT", "object": "Caladan"}
		]
	}`
	eng := New(&fakeClient{responses: []string{resp}}, duneSchema(t, true), 0, nil)

	cand, err := eng.Extract(context.Background(), domain.Segment{ID: "s1", Text: "text"})
	if err != nil {
		t.Fatal(err)
	}
	if len(cand.Relations) != 1 {
		t.Fatalf("relations = %d, want 1", len(cand.Relations))
	}
	if got := cand.Relations[0].ObjectType; got != "Location" {
		t.Errorf("object type = %q, want Location", got)
	}
	if cand.Dropped != 0 {
		t.Errorf("dropped = %d, want 0", cand.Dropped)
	}
}

func TestExtractKeepsUnknownRelationTypeWithoutEnforcement(t *testing.T) {
	resp := `{
		"entities": [
			{"name": "Paul", "type": "Person"},
			{"name": "Caladan", "type": "Location"}
		],
		"relations": [
			{"subject": "Paul", "type": "ALLIED_WITH", "object": "Caladan"}
		]
	}`
	eng := New(&fakeClient{responses: []string{resp}}, duneSchema(t, false), 0, nil)

	cand, err := eng.Extract(context.Background(), domain.Segment{ID: "s1", Text: "text"})
	if err != nil {
		t.Fatal(err)
	}
	if len(cand.Relations) != 1 || cand.Dropped != 0 {
		t.Fatalf("relations = %d dropped = %d, want 1/0", len(cand.Relations), cand.Dropped)
	}
	if cand.Relations[0].Type != "ALLIED_WITH" {
		t.Errorf("relation type = %q", cand.Relations[0].Type)
	}
}

func TestExtractFailsFastAfterRepeatedProviderFailures(t *testing.T) {
	errs := make([]error, 10)
	for i := range errs {
		errs[i] = errors.New("connection refused")
	}
	client := &fakeClient{errs: errs, responses: []string{""}}
	eng := New(client, duneSchema(t, true), 0, nil)

	for i := 0; i < 6; i++ {
		cand, err := eng.Extract(context.Background(), domain.Segment{ID: "s1", Text: "text"})
		if err != nil {
			t.Fatal(err)
		}
		if cand.State != StateRejected {
			t.Fatalf("call %d: state = %s, want rejected", i, cand.State)
		}
	}
	// The breaker opens after five consecutive transport failures; the
	// sixth segment is rejected without reaching the provider.
	if client.calls != 5 {
		t.Errorf("client calls = %d, want 5", client.calls)
	}
}

func TestExtractCancellationPropagates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	client := &fakeClient{errs: []error{errors.New("network")}, responses: []string{""}}
	eng := New(client, duneSchema(t, true), 3, nil)

	_, err := eng.Extract(ctx, domain.Segment{ID: "s1", Text: "text"})
	if err == nil {
		t.Fatal("expected context error")
	}
}
