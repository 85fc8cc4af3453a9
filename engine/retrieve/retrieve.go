// Package retrieve implements the retrieval strategies that turn a
// natural-language query into scored context items: plain vector
// search, hybrid vector+fulltext fusion, graph-expanded variants of
// both, and LLM-generated Cypher.
package retrieve

import (
	"context"

	"github.com/loreweave/loreweave/engine/graph"
)

// DefaultTopK applies when a caller passes a non-positive topK.
const DefaultTopK = 5

// Searcher is the read surface the strategies need from the graph
// store. *graph.Store satisfies it.
type Searcher interface {
	VectorSearch(ctx context.Context, index string, vector []float32, topK int) ([]graph.SegmentHit, error)
	VectorSearchExpanded(ctx context.Context, index string, vector []float32, topK int) ([]graph.SegmentHit, error)
	FulltextSearch(ctx context.Context, index, query string, topK int) ([]graph.SegmentHit, error)
	ExpandSegments(ctx context.Context, segmentIDs []string) (map[string][]graph.Connection, error)
	Query(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error)
}

// Item is one scored piece of retrieved context.
type Item struct {
	Content  string         `json:"content"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Result is what a strategy returns for one query.
type Result struct {
	Items []Item `json:"items"`
	// Metadata carries strategy-level context, such as the generated
	// Cypher for the text-to-query strategy.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Retriever is a single retrieval strategy.
type Retriever interface {
	// Name identifies the strategy in reports and logs.
	Name() string
	Search(ctx context.Context, query string, topK int) (Result, error)
}

func clampTopK(topK int) int {
	if topK <= 0 {
		return DefaultTopK
	}
	return topK
}

func hitItem(h graph.SegmentHit) Item {
	meta := map[string]any{
		"segmentId": h.SegmentID,
		"ordinal":   h.Ordinal,
	}
	if len(h.Connections) > 0 {
		meta["connections"] = h.Connections
	}
	return Item{Content: h.Content, Score: h.Score, Metadata: meta}
}
