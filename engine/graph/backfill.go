package graph

import (
	"context"

	"github.com/loreweave/loreweave/engine/domain"
)

// SegmentsMissingEmbedding returns segments that were written without a
// vector, up to limit.
func (s *Store) SegmentsMissingEmbedding(ctx context.Context, limit int) ([]domain.Segment, error) {
	if limit <= 0 {
		limit = 100
	}
	sess := s.session(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx, `
		MATCH (seg:Segment)
		WHERE seg.embedding IS NULL
		OPTIONAL MATCH (seg)-[:FROM_DOCUMENT]->(d:Document)
		RETURN seg.id AS id, seg.text AS text, seg.ordinal AS ordinal, d.id AS doc
		ORDER BY doc, ordinal
		LIMIT $limit`,
		map[string]any{"limit": limit})
	if err != nil {
		return nil, storeErr("segments missing embedding", err)
	}
	var segs []domain.Segment
	for res.Next(ctx) {
		rec := res.Record().AsMap()
		segs = append(segs, domain.Segment{
			ID:         asString(rec["id"]),
			DocumentID: asString(rec["doc"]),
			Index:      int(asInt64(rec["ordinal"])),
			Text:       asString(rec["text"]),
		})
	}
	if err := res.Err(); err != nil {
		return nil, storeErr("segments missing embedding", err)
	}
	return segs, nil
}

// SetSegmentEmbedding attaches a vector to an existing segment.
func (s *Store) SetSegmentEmbedding(ctx context.Context, segmentID string, vector []float32) error {
	sess := s.session(ctx)
	defer sess.Close(ctx)

	_, err := sess.ExecuteWrite(ctx, func(tx txn) (any, error) {
		_, err := tx.Run(ctx,
			`MATCH (s:Segment {id: $id}) SET s.embedding = $vector`,
			map[string]any{"id": segmentID, "vector": toFloat64(vector)})
		return nil, err
	})
	if err != nil {
		return storeErr("set embedding "+segmentID, err)
	}
	return nil
}
