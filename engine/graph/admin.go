package graph

import (
	"context"
)

// Stats summarises the graph's contents.
type Stats struct {
	Documents int64
	Segments  int64
	Entities  int64
	Relations int64
}

// DocumentInfo is one document as listed by the store.
type DocumentInfo struct {
	ID       string
	Source   string
	Segments int64
}

const statsCypher = `
OPTIONAL MATCH (d:Document) WITH count(d) AS docs
OPTIONAL MATCH (s:Segment) WITH docs, count(s) AS segs
OPTIONAL MATCH (e:Entity) WITH docs, segs, count(e) AS ents
OPTIONAL MATCH (:Entity)-[r]->(:Entity) WHERE type(r) <> 'MENTIONED_IN'
RETURN docs, segs, ents, count(r) AS rels`

// Stats counts documents, segments, entities, and entity relations.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	sess := s.session(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx, statsCypher, nil)
	if err != nil {
		return Stats{}, storeErr("stats", err)
	}
	if !res.Next(ctx) {
		if err := res.Err(); err != nil {
			return Stats{}, storeErr("stats", err)
		}
		return Stats{}, nil
	}
	rec := res.Record().AsMap()
	return Stats{
		Documents: asInt64(rec["docs"]),
		Segments:  asInt64(rec["segs"]),
		Entities:  asInt64(rec["ents"]),
		Relations: asInt64(rec["rels"]),
	}, nil
}

// ListDocuments returns every document with its segment count.
func (s *Store) ListDocuments(ctx context.Context) ([]DocumentInfo, error) {
	sess := s.session(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx, `
		MATCH (d:Document)
		OPTIONAL MATCH (s:Segment)-[:FROM_DOCUMENT]->(d)
		RETURN d.id AS id, d.source AS source, count(s) AS segments
		ORDER BY id`, nil)
	if err != nil {
		return nil, storeErr("list documents", err)
	}
	var docs []DocumentInfo
	for res.Next(ctx) {
		rec := res.Record().AsMap()
		docs = append(docs, DocumentInfo{
			ID:       asString(rec["id"]),
			Source:   asString(rec["source"]),
			Segments: asInt64(rec["segments"]),
		})
	}
	if err := res.Err(); err != nil {
		return nil, storeErr("list documents", err)
	}
	return docs, nil
}

// DeleteDocument removes a document, its segments, and any entities
// left without a mention afterwards. Entities still mentioned by other
// documents' segments survive.
func (s *Store) DeleteDocument(ctx context.Context, docID string) error {
	sess := s.session(ctx)
	defer sess.Close(ctx)

	_, err := sess.ExecuteWrite(ctx, func(tx txn) (any, error) {
		if _, err := tx.Run(ctx, `
			MATCH (d:Document {id: $id})
			OPTIONAL MATCH (s:Segment)-[:FROM_DOCUMENT]->(d)
			DETACH DELETE s, d`,
			map[string]any{"id": docID}); err != nil {
			return nil, err
		}
		_, err := tx.Run(ctx, `
			MATCH (e:Entity)
			WHERE NOT (e)-[:MENTIONED_IN]->(:Segment)
			DETACH DELETE e`, nil)
		return nil, err
	})
	if err != nil {
		return storeErr("delete document "+docID, err)
	}
	s.logger.Info("document deleted", "document_id", docID)
	return nil
}

// DeleteAll wipes every node and relationship in the store.
func (s *Store) DeleteAll(ctx context.Context) error {
	sess := s.session(ctx)
	defer sess.Close(ctx)

	_, err := sess.ExecuteWrite(ctx, func(tx txn) (any, error) {
		_, err := tx.Run(ctx, `MATCH (n) DETACH DELETE n`, nil)
		return nil, err
	})
	if err != nil {
		return storeErr("delete all", err)
	}
	s.logger.Warn("graph wiped")
	return nil
}
