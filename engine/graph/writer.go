package graph

import (
	"context"
	"fmt"

	"github.com/loreweave/loreweave/engine/domain"
	"github.com/loreweave/loreweave/engine/resolve"
)

// WriteDocument persists a document, its segments, and the resolved
// entities and relations in a single write transaction. Every node is
// MERGEd on its id, so re-ingesting the same document updates in place
// instead of duplicating. Either the whole document lands or none of it
// does.
func (s *Store) WriteDocument(ctx context.Context, doc domain.Document, segments []domain.Segment, res resolve.Resolution) error {
	sess := s.session(ctx)
	defer sess.Close(ctx)

	_, err := sess.ExecuteWrite(ctx, func(tx txn) (any, error) {
		if err := writeDocumentNode(ctx, tx, doc); err != nil {
			return nil, err
		}
		if err := writeSegments(ctx, tx, doc.ID, segments); err != nil {
			return nil, err
		}
		if err := writeEntities(ctx, tx, res.Entities); err != nil {
			return nil, err
		}
		if err := writeRelations(ctx, tx, res.Relations); err != nil {
			return nil, err
		}
		return nil, nil
	})
	if err != nil {
		return storeErr("write document "+doc.ID, err)
	}

	s.logger.Info("document written",
		"document_id", doc.ID,
		"segments", len(segments),
		"entities", len(res.Entities),
		"relations", len(res.Relations))
	return nil
}

func writeDocumentNode(ctx context.Context, tx txn, doc domain.Document) error {
	props := map[string]any{"source": doc.Source}
	for k, v := range doc.Metadata {
		props["meta_"+k] = v
	}
	_, err := tx.Run(ctx,
		`MERGE (d:Document {id: $id}) SET d += $props`,
		map[string]any{"id": doc.ID, "props": props})
	return err
}

func writeSegments(ctx context.Context, tx txn, docID string, segments []domain.Segment) error {
	for _, seg := range segments {
		props := map[string]any{
			"text":    seg.Text,
			"ordinal": seg.Index,
		}
		// A failed embedding stays absent so the vector index never
		// sees the segment.
		if !seg.EmbeddingFailed && seg.Embedding != nil {
			props["embedding"] = toFloat64(seg.Embedding)
		}
		if _, err := tx.Run(ctx,
			`MERGE (s:Segment {id: $id}) SET s += $props
			 WITH s
			 MATCH (d:Document {id: $doc})
			 MERGE (s)-[:FROM_DOCUMENT]->(d)`,
			map[string]any{"id": seg.ID, "doc": docID, "props": props}); err != nil {
			return err
		}
	}
	for i := 1; i < len(segments); i++ {
		if _, err := tx.Run(ctx,
			`MATCH (a:Segment {id: $prev}), (b:Segment {id: $next})
			 MERGE (a)-[:NEXT_SEGMENT]->(b)`,
			map[string]any{"prev": segments[i-1].ID, "next": segments[i].ID}); err != nil {
			return err
		}
	}
	return nil
}

func writeEntities(ctx context.Context, tx txn, entities []domain.Entity) error {
	for _, e := range entities {
		props := map[string]any{"name": e.Name, "type": e.Type}
		for k, v := range e.Properties {
			props["prop_"+k] = v
		}
		cypher := fmt.Sprintf(
			`MERGE (e:Entity:%s {id: $id}) SET e += $props`,
			sanitizeLabel(e.Type))
		if _, err := tx.Run(ctx, cypher, map[string]any{"id": e.ID, "props": props}); err != nil {
			return err
		}
		for _, segID := range e.SegmentIDs {
			if _, err := tx.Run(ctx,
				`MATCH (e:Entity {id: $id}), (s:Segment {id: $seg})
				 MERGE (e)-[:MENTIONED_IN]->(s)`,
				map[string]any{"id": e.ID, "seg": segID}); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeRelations(ctx context.Context, tx txn, relations []domain.Relation) error {
	for _, r := range relations {
		cypher := fmt.Sprintf(
			`MATCH (a:Entity {id: $subj}), (b:Entity {id: $obj})
			 MERGE (a)-[r:%s]->(b)
			 SET r += $props`,
			sanitizeRelType(r.Type))
		props := map[string]any{"segment_id": r.SegmentID}
		for k, v := range r.Properties {
			props["prop_"+k] = v
		}
		if _, err := tx.Run(ctx, cypher, map[string]any{
			"subj": r.SubjectID, "obj": r.ObjectID, "props": props,
		}); err != nil {
			return err
		}
	}
	return nil
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}

// sanitizeLabel strips everything but [A-Za-z0-9_] so an entity type can
// be spliced into Cypher as a node label.
func sanitizeLabel(t string) string {
	safe := make([]byte, 0, len(t))
	for i := range t {
		c := t[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' {
			safe = append(safe, c)
		}
	}
	if len(safe) == 0 {
		return "Unknown"
	}
	return string(safe)
}

// sanitizeRelType sanitizes like sanitizeLabel and uppercases to follow
// the relationship naming convention.
func sanitizeRelType(t string) string {
	safe := []byte(sanitizeLabel(t))
	if string(safe) == "Unknown" && t != "Unknown" {
		return "RELATED_TO"
	}
	for i := range safe {
		if safe[i] >= 'a' && safe[i] <= 'z' {
			safe[i] -= 32
		}
	}
	return string(safe)
}
