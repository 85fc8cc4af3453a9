package graph

import (
	"context"
)

// SegmentHit is one scored segment returned by a store search.
type SegmentHit struct {
	SegmentID string
	Content   string
	Score     float64
	Ordinal   int64
	// Connections holds one-hop graph context around the segment's
	// entities, present only for expanded searches.
	Connections []Connection
}

// Connection describes one relationship adjacent to a retrieved segment.
type Connection struct {
	Relationship string `json:"relationship"`
	RelatedName  string `json:"relatedName"`
	RelatedType  string `json:"relatedType"`
}

const vectorSearchCypher = `
CALL db.index.vector.queryNodes($index, $k, $vector) YIELD node, score
RETURN node.id AS id, node.text AS content, node.ordinal AS ordinal, score
ORDER BY score DESC, ordinal ASC`

// Ties on score break toward the earlier segment so results are stable
// across runs.
const fulltextSearchCypher = `
CALL db.index.fulltext.queryNodes($index, $query) YIELD node, score
RETURN node.id AS id, node.text AS content, node.ordinal AS ordinal, score
ORDER BY score DESC, ordinal ASC
LIMIT $k`

const expandedSearchCypher = `
CALL db.index.vector.queryNodes($index, $k, $vector) YIELD node, score
OPTIONAL MATCH (e:Entity)-[:MENTIONED_IN]->(node)
OPTIONAL MATCH (e)-[rel]-(other:Entity)
WITH node, score,
     collect(DISTINCT {relationship: type(rel), relatedName: other.name, relatedType: other.type}) AS connections
RETURN node.id AS id, node.text AS content, node.ordinal AS ordinal, score, connections
ORDER BY score DESC, ordinal ASC`

// VectorSearch returns the topK nearest segments under the named vector
// index.
func (s *Store) VectorSearch(ctx context.Context, index string, vector []float32, topK int) ([]SegmentHit, error) {
	return s.searchHits(ctx, vectorSearchCypher, map[string]any{
		"index": index, "k": topK, "vector": toFloat64(vector),
	})
}

// VectorSearchExpanded is VectorSearch plus one hop of graph context:
// for each hit, the relationships around the entities mentioned in that
// segment.
func (s *Store) VectorSearchExpanded(ctx context.Context, index string, vector []float32, topK int) ([]SegmentHit, error) {
	return s.searchHits(ctx, expandedSearchCypher, map[string]any{
		"index": index, "k": topK, "vector": toFloat64(vector),
	})
}

// FulltextSearch returns the topK best lexical matches under the named
// fulltext index.
func (s *Store) FulltextSearch(ctx context.Context, index, query string, topK int) ([]SegmentHit, error) {
	return s.searchHits(ctx, fulltextSearchCypher, map[string]any{
		"index": index, "query": query, "k": topK,
	})
}

func (s *Store) searchHits(ctx context.Context, cypher string, params map[string]any) ([]SegmentHit, error) {
	sess := s.session(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx, cypher, params)
	if err != nil {
		return nil, storeErr("search", err)
	}

	var hits []SegmentHit
	for res.Next(ctx) {
		rec := res.Record().AsMap()
		hit := SegmentHit{
			SegmentID: asString(rec["id"]),
			Content:   asString(rec["content"]),
			Ordinal:   asInt64(rec["ordinal"]),
		}
		if sc, ok := rec["score"].(float64); ok {
			hit.Score = sc
		}
		hit.Connections = asConnections(rec["connections"])
		hits = append(hits, hit)
	}
	if err := res.Err(); err != nil {
		return nil, storeErr("search", err)
	}
	return hits, nil
}

const expandSegmentsCypher = `
MATCH (s:Segment) WHERE s.id IN $ids
OPTIONAL MATCH (e:Entity)-[:MENTIONED_IN]->(s)
OPTIONAL MATCH (e)-[rel]-(other:Entity)
WITH s, collect(DISTINCT {relationship: type(rel), relatedName: other.name, relatedType: other.type}) AS connections
RETURN s.id AS id, connections`

// ExpandSegments returns one hop of graph context for each of the given
// segments, keyed by segment id.
func (s *Store) ExpandSegments(ctx context.Context, segmentIDs []string) (map[string][]Connection, error) {
	if len(segmentIDs) == 0 {
		return nil, nil
	}
	sess := s.session(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx, expandSegmentsCypher, map[string]any{"ids": segmentIDs})
	if err != nil {
		return nil, storeErr("expand segments", err)
	}
	out := make(map[string][]Connection)
	for res.Next(ctx) {
		rec := res.Record().AsMap()
		if conns := asConnections(rec["connections"]); len(conns) > 0 {
			out[asString(rec["id"])] = conns
		}
	}
	if err := res.Err(); err != nil {
		return nil, storeErr("expand segments", err)
	}
	return out, nil
}

// Query runs an arbitrary read query and returns the raw rows. The
// text-to-query retriever uses this for generated Cypher.
func (s *Store) Query(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error) {
	sess := s.session(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx, cypher, params)
	if err != nil {
		return nil, storeErr("query", err)
	}
	var rows []map[string]any
	for res.Next(ctx) {
		rows = append(rows, res.Record().AsMap())
	}
	if err := res.Err(); err != nil {
		return nil, storeErr("query", err)
	}
	return rows, nil
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}

func asConnections(v any) []Connection {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []Connection
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		c := Connection{
			Relationship: asString(m["relationship"]),
			RelatedName:  asString(m["relatedName"]),
			RelatedType:  asString(m["relatedType"]),
		}
		// collect() emits an all-null row when a segment has no
		// entity context.
		if c.Relationship == "" && c.RelatedName == "" {
			continue
		}
		out = append(out, c)
	}
	return out
}
