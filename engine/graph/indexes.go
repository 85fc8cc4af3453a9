package graph

import (
	"context"
	"fmt"
	"strings"
)

// IndexInfo describes one index as reported by the store.
type IndexInfo struct {
	Name       string
	Type       string
	Labels     []string
	Properties []string
}

// VectorIndexName builds the conventional name for a vector index, so
// indexes created for the same shape always collide instead of piling
// up.
func VectorIndexName(label, property string, dimensions int, similarity string) string {
	return fmt.Sprintf("vector_%s_%s_%d_%s",
		strings.ToLower(sanitizeLabel(label)),
		strings.ToLower(sanitizeLabel(property)),
		dimensions,
		strings.ToLower(sanitizeLabel(similarity)))
}

// FulltextIndexName builds the conventional name for a fulltext index.
func FulltextIndexName(label, property string) string {
	return fmt.Sprintf("fulltext_%s_%s",
		strings.ToLower(sanitizeLabel(label)),
		strings.ToLower(sanitizeLabel(property)))
}

// CreateVectorIndex creates a vector index over label.property if one
// does not already exist, and returns its name.
func (s *Store) CreateVectorIndex(ctx context.Context, label, property string, dimensions int, similarity string) (string, error) {
	name := VectorIndexName(label, property, dimensions, similarity)
	cypher := fmt.Sprintf(
		"CREATE VECTOR INDEX %s IF NOT EXISTS FOR (n:%s) ON (n.%s) "+
			"OPTIONS {indexConfig: {`vector.dimensions`: $dims, `vector.similarity_function`: $sim}}",
		name, sanitizeLabel(label), sanitizeLabel(property))

	sess := s.session(ctx)
	defer sess.Close(ctx)
	if _, err := sess.Run(ctx, cypher, map[string]any{
		"dims": dimensions,
		"sim":  strings.ToLower(similarity),
	}); err != nil {
		return "", storeErr("create vector index "+name, err)
	}
	s.logger.Info("vector index ensured", "name", name, "dimensions", dimensions, "similarity", similarity)
	return name, nil
}

// CreateFulltextIndex creates a fulltext index over label.property if
// one does not already exist, and returns its name.
func (s *Store) CreateFulltextIndex(ctx context.Context, label, property string) (string, error) {
	name := FulltextIndexName(label, property)
	cypher := fmt.Sprintf(
		"CREATE FULLTEXT INDEX %s IF NOT EXISTS FOR (n:%s) ON EACH [n.%s]",
		name, sanitizeLabel(label), sanitizeLabel(property))

	sess := s.session(ctx)
	defer sess.Close(ctx)
	if _, err := sess.Run(ctx, cypher, nil); err != nil {
		return "", storeErr("create fulltext index "+name, err)
	}
	s.logger.Info("fulltext index ensured", "name", name)
	return name, nil
}

// DropIndex removes the named index if it exists.
func (s *Store) DropIndex(ctx context.Context, name string) error {
	sess := s.session(ctx)
	defer sess.Close(ctx)
	cypher := fmt.Sprintf("DROP INDEX %s IF EXISTS", sanitizeLabel(name))
	if _, err := sess.Run(ctx, cypher, nil); err != nil {
		return storeErr("drop index "+name, err)
	}
	return nil
}

// ListIndexes reports every index the store knows about.
func (s *Store) ListIndexes(ctx context.Context) ([]IndexInfo, error) {
	sess := s.session(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx,
		"SHOW INDEXES YIELD name, type, labelsOrTypes, properties", nil)
	if err != nil {
		return nil, storeErr("list indexes", err)
	}
	var infos []IndexInfo
	for res.Next(ctx) {
		rec := res.Record().AsMap()
		infos = append(infos, IndexInfo{
			Name:       asString(rec["name"]),
			Type:       asString(rec["type"]),
			Labels:     asStrings(rec["labelsOrTypes"]),
			Properties: asStrings(rec["properties"]),
		})
	}
	if err := res.Err(); err != nil {
		return nil, storeErr("list indexes", err)
	}
	return infos, nil
}

func asStrings(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
