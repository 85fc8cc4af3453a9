package ingest

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/loreweave/loreweave/engine/domain"
	"github.com/loreweave/loreweave/engine/extract"
	"github.com/loreweave/loreweave/engine/resolve"
)

// RawDocument is the pipeline input: one piece of text with provenance.
type RawDocument struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Source   string            `json:"source"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ChunkedDoc is a document split into ordered segments.
type ChunkedDoc struct {
	Document domain.Document
	Segments []domain.Segment
}

// ExtractedDoc carries the chunked document plus one extraction
// candidate per segment.
type ExtractedDoc struct {
	ChunkedDoc
	Candidates []extract.Candidate
}

// ResolvedDoc is ready for the store write.
type ResolvedDoc struct {
	ChunkedDoc
	Resolution resolve.Resolution
	// rejected counts segments whose extraction ended Rejected.
	rejected int
}

// Receipt summarises one completed ingestion.
type Receipt struct {
	DocumentID string `json:"document_id"`
	Segments   int    `json:"segments"`
	Embedded   int    `json:"embedded"`
	Entities   int    `json:"entities"`
	Relations  int    `json:"relations"`
	Rejected   int    `json:"rejected_segments"`
}

func (r RawDocument) toDomain() domain.Document {
	id := r.ID
	if id == "" {
		id = uuid.NewSHA1(uuid.NameSpaceURL, []byte(r.Source+"\x00"+r.Text)).String()
	}
	meta := make(map[string]string, len(r.Metadata))
	for k, v := range r.Metadata {
		meta[k] = v
	}
	return domain.Document{ID: id, Text: r.Text, Source: r.Source, Metadata: meta}
}

// segmentID derives a deterministic id so re-ingesting a document
// overwrites its segments instead of growing the graph.
func segmentID(docID string, index int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("%s-%d", docID, index))).String()
}
