package retrieve

import (
	"context"
	"sort"

	"github.com/loreweave/loreweave/engine/graph"
	"github.com/loreweave/loreweave/pkg/llm"
)

// rrfK is the standard reciprocal-rank-fusion constant.
const rrfK = 60

// Hybrid fuses vector and fulltext rankings with reciprocal rank
// fusion. A segment found by both legs is fused once, never duplicated.
type Hybrid struct {
	store         Searcher
	embedder      llm.Embedder
	vectorIndex   string
	fulltextIndex string
	expanded      bool
}

// NewHybrid creates the hybrid vector+fulltext strategy.
func NewHybrid(store Searcher, embedder llm.Embedder, vectorIndex, fulltextIndex string) *Hybrid {
	return &Hybrid{store: store, embedder: embedder, vectorIndex: vectorIndex, fulltextIndex: fulltextIndex}
}

// NewHybridCypher creates the hybrid strategy with one-hop graph
// expansion attached to the fused results.
func NewHybridCypher(store Searcher, embedder llm.Embedder, vectorIndex, fulltextIndex string) *Hybrid {
	return &Hybrid{store: store, embedder: embedder, vectorIndex: vectorIndex, fulltextIndex: fulltextIndex, expanded: true}
}

func (h *Hybrid) Name() string {
	if h.expanded {
		return "hybrid_cypher"
	}
	return "hybrid"
}

func (h *Hybrid) Search(ctx context.Context, query string, topK int) (Result, error) {
	topK = clampTopK(topK)

	vec, err := embedQuery(ctx, h.embedder, query)
	if err != nil {
		return Result{}, err
	}

	// Each leg fetches topK so fusion has full rankings to work with.
	vecHits, err := h.store.VectorSearch(ctx, h.vectorIndex, vec, topK)
	if err != nil {
		return Result{}, err
	}
	ftsHits, err := h.store.FulltextSearch(ctx, h.fulltextIndex, query, topK)
	if err != nil {
		return Result{}, err
	}

	fused := fuseRRF(vecHits, ftsHits, topK)

	if h.expanded {
		if err := h.attachConnections(ctx, fused); err != nil {
			return Result{}, err
		}
	}

	res := Result{}
	for _, f := range fused {
		item := hitItem(f.hit)
		item.Score = f.score
		item.Metadata["fusedFrom"] = f.methods
		res.Items = append(res.Items, item)
	}
	return res, nil
}

func (h *Hybrid) attachConnections(ctx context.Context, fused []fusedHit) error {
	ids := make([]string, len(fused))
	for i, f := range fused {
		ids[i] = f.hit.SegmentID
	}
	conns, err := h.store.ExpandSegments(ctx, ids)
	if err != nil {
		return err
	}
	for i := range fused {
		fused[i].hit.Connections = conns[fused[i].hit.SegmentID]
	}
	return nil
}

type fusedHit struct {
	hit     graph.SegmentHit
	score   float64
	methods []string
}

// fuseRRF combines two independently ranked hit lists. Each hit scores
// sum(1/(k + rank)) over the lists it appears in, rank 1-based.
func fuseRRF(vecHits, ftsHits []graph.SegmentHit, maxResults int) []fusedHit {
	fused := make(map[string]*fusedHit)
	order := make([]string, 0, len(vecHits)+len(ftsHits))

	add := func(hits []graph.SegmentHit, method string) {
		for rank, hit := range hits {
			entry, ok := fused[hit.SegmentID]
			if !ok {
				entry = &fusedHit{hit: hit}
				fused[hit.SegmentID] = entry
				order = append(order, hit.SegmentID)
			}
			entry.score += 1.0 / float64(rrfK+rank+1)
			entry.methods = append(entry.methods, method)
		}
	}
	add(vecHits, "vector")
	add(ftsHits, "fulltext")

	entries := make([]fusedHit, 0, len(fused))
	for _, id := range order {
		entries = append(entries, *fused[id])
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].score > entries[j].score
	})
	if maxResults > 0 && len(entries) > maxResults {
		entries = entries[:maxResults]
	}
	return entries
}
