package retrieve

import (
	"context"
	"fmt"

	"github.com/loreweave/loreweave/engine/domain"
	"github.com/loreweave/loreweave/pkg/llm"
)

// Vector retrieves by embedding the query and running nearest-neighbour
// search over the segment vector index.
type Vector struct {
	store    Searcher
	embedder llm.Embedder
	index    string
	expanded bool
}

// NewVector creates the plain vector strategy over the named index.
func NewVector(store Searcher, embedder llm.Embedder, index string) *Vector {
	return &Vector{store: store, embedder: embedder, index: index}
}

// NewVectorCypher creates the vector strategy with one-hop graph
// expansion attached to each hit.
func NewVectorCypher(store Searcher, embedder llm.Embedder, index string) *Vector {
	return &Vector{store: store, embedder: embedder, index: index, expanded: true}
}

func (v *Vector) Name() string {
	if v.expanded {
		return "vector_cypher"
	}
	return "vector"
}

func (v *Vector) Search(ctx context.Context, query string, topK int) (Result, error) {
	topK = clampTopK(topK)

	vec, err := embedQuery(ctx, v.embedder, query)
	if err != nil {
		return Result{}, err
	}

	search := v.store.VectorSearch
	if v.expanded {
		search = v.store.VectorSearchExpanded
	}
	hits, err := search(ctx, v.index, vec, topK)
	if err != nil {
		return Result{}, err
	}

	res := Result{}
	for _, h := range hits {
		res.Items = append(res.Items, hitItem(h))
	}
	return res, nil
}

func embedQuery(ctx context.Context, embedder llm.Embedder, query string) ([]float32, error) {
	vecs, err := embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("%w: query: %v", domain.ErrEmbedding, err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("%w: query: got %d vectors", domain.ErrEmbedding, len(vecs))
	}
	return vecs[0], nil
}
