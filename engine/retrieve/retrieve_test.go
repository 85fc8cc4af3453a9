package retrieve

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/loreweave/loreweave/engine/domain"
	"github.com/loreweave/loreweave/engine/graph"
	"github.com/loreweave/loreweave/engine/schema"
	"github.com/loreweave/loreweave/pkg/llm"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

type fakeSearcher struct {
	vectorHits   []graph.SegmentHit
	expandedHits []graph.SegmentHit
	fulltextHits []graph.SegmentHit
	connections  map[string][]graph.Connection
	queryRows    []map[string]any
	queryErr     error

	vectorCalls   int
	expandedCalls int
	lastTopK      int
	lastCypher    string
}

func (f *fakeSearcher) VectorSearch(_ context.Context, _ string, _ []float32, topK int) ([]graph.SegmentHit, error) {
	f.vectorCalls++
	f.lastTopK = topK
	return f.vectorHits, nil
}

func (f *fakeSearcher) VectorSearchExpanded(_ context.Context, _ string, _ []float32, topK int) ([]graph.SegmentHit, error) {
	f.expandedCalls++
	f.lastTopK = topK
	return f.expandedHits, nil
}

func (f *fakeSearcher) FulltextSearch(_ context.Context, _, _ string, _ int) ([]graph.SegmentHit, error) {
	return f.fulltextHits, nil
}

func (f *fakeSearcher) ExpandSegments(_ context.Context, _ []string) (map[string][]graph.Connection, error) {
	return f.connections, nil
}

func (f *fakeSearcher) Query(_ context.Context, cypher string, _ map[string]any) ([]map[string]any, error) {
	f.lastCypher = cypher
	return f.queryRows, f.queryErr
}

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vec
	}
	return out, nil
}

func (f *fakeEmbedder) Dimension() int { return len(f.vec) }

type fakeLLM struct {
	text  string
	err   error
	calls int
}

func (f *fakeLLM) Generate(context.Context, llm.Request) (*llm.Response, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Response{Content: f.text}, nil
}

func hit(id, content string, ordinal int64, score float64) graph.SegmentHit {
	return graph.SegmentHit{SegmentID: id, Content: content, Ordinal: ordinal, Score: score}
}

func TestVectorSearchReturnsStoreOrder(t *testing.T) {
	store := &fakeSearcher{vectorHits: []graph.SegmentHit{
		hit("seg-2", "closest", 2, 0.95),
		hit("seg-0", "tied earlier", 0, 0.80),
		hit("seg-5", "tied later", 5, 0.80),
	}}
	r := NewVector(store, &fakeEmbedder{vec: []float32{0.1}}, "idx")

	res, err := r.Search(context.Background(), "who is paul", 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Items) != 3 {
		t.Fatalf("items = %d, want 3", len(res.Items))
	}
	if res.Items[0].Content != "closest" || res.Items[1].Content != "tied earlier" {
		t.Errorf("order = %q then %q", res.Items[0].Content, res.Items[1].Content)
	}
	if res.Items[0].Metadata["segmentId"] != "seg-2" || res.Items[0].Metadata["ordinal"] != int64(2) {
		t.Errorf("metadata = %v", res.Items[0].Metadata)
	}
	if store.lastTopK != 3 {
		t.Errorf("topK = %d", store.lastTopK)
	}
}

func TestVectorSearchDefaultTopK(t *testing.T) {
	store := &fakeSearcher{}
	r := NewVector(store, &fakeEmbedder{vec: []float32{0.1}}, "idx")

	if _, err := r.Search(context.Background(), "q", 0); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if store.lastTopK != DefaultTopK {
		t.Errorf("topK = %d, want %d", store.lastTopK, DefaultTopK)
	}
}

func TestVectorSearchEmbedFailure(t *testing.T) {
	r := NewVector(&fakeSearcher{}, &fakeEmbedder{err: errors.New("down")}, "idx")

	_, err := r.Search(context.Background(), "q", 3)
	if !errors.Is(err, domain.ErrEmbedding) {
		t.Fatalf("err = %v, want ErrEmbedding", err)
	}
}

func TestVectorCypherUsesExpandedSearch(t *testing.T) {
	store := &fakeSearcher{expandedHits: []graph.SegmentHit{
		{SegmentID: "seg-0", Content: "first", Score: 0.9,
			Connections: []graph.Connection{{Relationship: "SITUATED_AT", RelatedName: "Caladan", RelatedType: "Location"}}},
	}}
	r := NewVectorCypher(store, &fakeEmbedder{vec: []float32{0.1}}, "idx")

	if r.Name() != "vector_cypher" {
		t.Errorf("name = %q", r.Name())
	}
	res, err := r.Search(context.Background(), "q", 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if store.expandedCalls != 1 || store.vectorCalls != 0 {
		t.Errorf("calls: expanded=%d vector=%d", store.expandedCalls, store.vectorCalls)
	}
	conns, ok := res.Items[0].Metadata["connections"].([]graph.Connection)
	if !ok || conns[0].RelatedName != "Caladan" {
		t.Errorf("connections metadata = %v", res.Items[0].Metadata["connections"])
	}
}

func TestHybridFusesWithoutDuplicates(t *testing.T) {
	store := &fakeSearcher{
		vectorHits: []graph.SegmentHit{
			hit("seg-a", "both legs", 0, 0.9),
			hit("seg-b", "vector only", 1, 0.8),
		},
		fulltextHits: []graph.SegmentHit{
			hit("seg-a", "both legs", 0, 3.1),
			hit("seg-c", "fulltext only", 2, 2.0),
		},
	}
	r := NewHybrid(store, &fakeEmbedder{vec: []float32{0.1}}, "vidx", "fidx")

	res, err := r.Search(context.Background(), "q", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Items) != 3 {
		t.Fatalf("items = %d, want 3 distinct segments", len(res.Items))
	}

	top := res.Items[0]
	if top.Metadata["segmentId"] != "seg-a" {
		t.Fatalf("top item = %v, want the segment found by both legs", top.Metadata)
	}
	wantScore := 2.0 / float64(rrfK+1)
	if diff := top.Score - wantScore; diff > 1e-12 || diff < -1e-12 {
		t.Errorf("fused score = %v, want %v", top.Score, wantScore)
	}
	methods, _ := top.Metadata["fusedFrom"].([]string)
	if len(methods) != 2 {
		t.Errorf("fusedFrom = %v", methods)
	}
}

func TestHybridTrimsToTopK(t *testing.T) {
	store := &fakeSearcher{
		vectorHits:   []graph.SegmentHit{hit("a", "", 0, 1), hit("b", "", 1, 0.9)},
		fulltextHits: []graph.SegmentHit{hit("c", "", 2, 5), hit("d", "", 3, 4)},
	}
	r := NewHybrid(store, &fakeEmbedder{vec: []float32{0.1}}, "vidx", "fidx")

	res, err := r.Search(context.Background(), "q", 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Items) != 2 {
		t.Errorf("items = %d, want trimmed to topK", len(res.Items))
	}
}

func TestHybridCypherAttachesConnections(t *testing.T) {
	store := &fakeSearcher{
		vectorHits:   []graph.SegmentHit{hit("seg-a", "text", 0, 0.9)},
		fulltextHits: nil,
		connections: map[string][]graph.Connection{
			"seg-a": {{Relationship: "SITUATED_AT", RelatedName: "Arrakis", RelatedType: "Location"}},
		},
	}
	r := NewHybridCypher(store, &fakeEmbedder{vec: []float32{0.1}}, "vidx", "fidx")

	if r.Name() != "hybrid_cypher" {
		t.Errorf("name = %q", r.Name())
	}
	res, err := r.Search(context.Background(), "q", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	conns, _ := res.Items[0].Metadata["connections"].([]graph.Connection)
	if len(conns) != 1 || conns[0].RelatedName != "Arrakis" {
		t.Errorf("connections = %v", conns)
	}
}

func testSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.New(schema.Config{
		Entities:        []string{"Person", "Organization", "Location"},
		Relations:       []string{"SITUATED_AT"},
		PotentialSchema: [][3]string{{"Person", "SITUATED_AT", "Location"}},
		Enforce:         true,
	})
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	return s
}

func TestText2QueryRunsGeneratedCypher(t *testing.T) {
	client := &fakeLLM{text: "```cypher\nMATCH (p:Person) RETURN p.name AS name LIMIT 3\n```"}
	store := &fakeSearcher{queryRows: []map[string]any{{"name": "Paul"}}}
	r := NewText2Query(client, store, testSchema(t), nil)

	res, err := r.Search(context.Background(), "who is there", 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if store.lastCypher != "MATCH (p:Person) RETURN p.name AS name LIMIT 3" {
		t.Errorf("cypher = %q, want fences stripped", store.lastCypher)
	}
	if res.Metadata["cypher"] != store.lastCypher {
		t.Errorf("metadata cypher = %v", res.Metadata["cypher"])
	}
	if len(res.Items) != 1 || !strings.Contains(res.Items[0].Content, "Paul") {
		t.Errorf("items = %v", res.Items)
	}
}

func TestText2QueryRejectsWriteClauses(t *testing.T) {
	for _, bad := range []string{
		"MATCH (n) DETACH DELETE n",
		"merge (n:Person {name: 'x'}) RETURN n",
		"MATCH (n) SET n.x = 1 RETURN n",
	} {
		client := &fakeLLM{text: bad}
		store := &fakeSearcher{}
		r := NewText2Query(client, store, testSchema(t), nil)

		_, err := r.Search(context.Background(), "q", 3)
		if !errors.Is(err, domain.ErrUnsafeQuery) {
			t.Errorf("%q: err = %v, want ErrUnsafeQuery", bad, err)
		}
		if store.lastCypher != "" {
			t.Errorf("%q: unsafe query reached the store", bad)
		}
		if client.calls != 1 {
			t.Errorf("%q: calls = %d, want no retry", bad, client.calls)
		}
	}
}

func TestText2QueryGenerationFailureNotRetried(t *testing.T) {
	client := &fakeLLM{err: errors.New("model offline")}
	r := NewText2Query(client, &fakeSearcher{}, testSchema(t), nil)

	_, err := r.Search(context.Background(), "q", 3)
	if !errors.Is(err, domain.ErrQueryGeneration) {
		t.Fatalf("err = %v, want ErrQueryGeneration", err)
	}
	if client.calls != 1 {
		t.Errorf("calls = %d, want exactly one attempt", client.calls)
	}
}

func TestText2QueryEmptyOutput(t *testing.T) {
	client := &fakeLLM{text: "   "}
	r := NewText2Query(client, &fakeSearcher{}, testSchema(t), nil)

	if _, err := r.Search(context.Background(), "q", 3); !errors.Is(err, domain.ErrQueryGeneration) {
		t.Fatalf("err = %v, want ErrQueryGeneration", err)
	}
}

func TestText2QueryPromptIncludesSchemaAndExamples(t *testing.T) {
	r := NewText2Query(nil, nil, testSchema(t), []QueryExample{
		{Question: "where is Paul", Cypher: "MATCH ..."},
	})
	prompt := r.buildPrompt("who leads the Fremen", 3)
	for _, want := range []string{"SITUATED_AT", "where is Paul", "who leads the Fremen", "MENTIONED_IN"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestText2QueryRejectedStatementIsGenerationFailure(t *testing.T) {
	client := &fakeLLM{text: "MATCH (n:Person RETURN n"}
	store := &fakeSearcher{queryErr: fmt.Errorf("%w: run query: %w", domain.ErrStoreUnavailable,
		&neo4j.Neo4jError{Code: "Neo.ClientError.Statement.SyntaxError", Msg: "Invalid input 'RETURN'"})}
	r := NewText2Query(client, store, testSchema(t), nil)

	_, err := r.Search(context.Background(), "q", 3)
	if !errors.Is(err, domain.ErrQueryGeneration) {
		t.Fatalf("err = %v, want ErrQueryGeneration", err)
	}
	if errors.Is(err, domain.ErrStoreUnavailable) {
		t.Errorf("err = %v, still reads as a store outage", err)
	}
}

func TestText2QueryStoreOutageStaysStoreError(t *testing.T) {
	client := &fakeLLM{text: "MATCH (n:Person) RETURN n.name AS name"}
	store := &fakeSearcher{queryErr: fmt.Errorf("%w: run query: %w", domain.ErrStoreUnavailable,
		&neo4j.Neo4jError{Code: "Neo.TransientError.General.DatabaseUnavailable", Msg: "db down"})}
	r := NewText2Query(client, store, testSchema(t), nil)

	_, err := r.Search(context.Background(), "q", 3)
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("err = %v, want ErrStoreUnavailable", err)
	}
	if errors.Is(err, domain.ErrQueryGeneration) {
		t.Errorf("err = %v, outage misread as a generation failure", err)
	}
}

func TestText2QueryDefaultExamplesWhenNoneGiven(t *testing.T) {
	r := NewText2Query(nil, nil, testSchema(t), nil)
	prompt := r.buildPrompt("who is there", 3)
	for _, ex := range DefaultQueryExamples {
		if !strings.Contains(prompt, ex.Question) {
			t.Errorf("prompt missing default example question %q", ex.Question)
		}
		if !strings.Contains(prompt, ex.Cypher) {
			t.Errorf("prompt missing default example cypher %q", ex.Cypher)
		}
	}
}
