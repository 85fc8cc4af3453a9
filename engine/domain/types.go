// Package domain defines the core data model shared by the ingestion
// pipeline and the retrieval strategies: documents, text segments,
// entities, and relations.
package domain

import "strings"

// Document is a unit of raw text handed to the ingestion pipeline.
// Immutable once ingested.
type Document struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Source   string            `json:"source,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Segment is a bounded, ordered piece of a document's text.
// Index is strictly increasing and gapless within a document.
// Embedding is nil until generated; it stays nil when embedding
// generation has permanently failed for this segment.
type Segment struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	Index      int       `json:"index"`
	Text       string    `json:"text"`
	Embedding  []float32 `json:"embedding,omitempty"`
	EntityType string    `json:"entity_type,omitempty"`

	// EmbeddingFailed marks a segment whose embedding could not be
	// generated after retries. It is still persisted for fulltext and
	// graph retrieval.
	EmbeddingFailed bool `json:"embedding_failed,omitempty"`
}

// Entity is a typed, named node in the knowledge graph.
type Entity struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Name       string         `json:"name"`
	Properties map[string]any `json:"properties,omitempty"`

	// SegmentIDs records which segments mentioned this entity.
	SegmentIDs []string `json:"segment_ids,omitempty"`
}

// Key returns the entity's resolution key.
func (e Entity) Key() ResolutionKey {
	return NewResolutionKey(e.Type, e.Name)
}

// Relation is a typed edge between two entities.
type Relation struct {
	SubjectID  string         `json:"subject_id"`
	Type       string         `json:"type"`
	ObjectID   string         `json:"object_id"`
	Properties map[string]any `json:"properties,omitempty"`
	SegmentID  string         `json:"segment_id,omitempty"`
}

// ResolutionKey identifies one canonical entity: normalized (type, name).
// Two mentions with the same key are the same entity; the same name under a
// different type stays distinct.
type ResolutionKey struct {
	Type string
	Name string
}

// NewResolutionKey builds a key with case- and whitespace-insensitive
// normalization applied to both parts.
func NewResolutionKey(entityType, name string) ResolutionKey {
	return ResolutionKey{
		Type: normalize(entityType),
		Name: normalize(name),
	}
}

// normalize lower-cases, trims, and collapses internal whitespace.
func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
