package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the pipeline and retrieval layers.
var (
	// ErrConfiguration marks invalid pipeline settings. Fatal at startup.
	ErrConfiguration = errors.New("invalid configuration")
	// ErrEmbedding marks an embedding provider failure. Retried with
	// backoff, then the segment degrades to a null embedding.
	ErrEmbedding = errors.New("embedding failed")
	// ErrExtraction marks a malformed or failed extraction call.
	ErrExtraction = errors.New("extraction failed")
	// ErrGeneration marks an answer-generation provider failure.
	ErrGeneration = errors.New("generation failed")
	// ErrSchemaViolation marks an extracted triple outside the allow-list.
	// Dropped and logged, never propagated.
	ErrSchemaViolation = errors.New("schema violation")
	// ErrStoreUnavailable marks an unreachable graph store. Fatal for the
	// current document; retry is at the caller's discretion.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrQueryGeneration marks LLM output that is not a valid query.
	// Never auto-retried.
	ErrQueryGeneration = errors.New("query generation failed")
	// ErrUnsafeQuery marks a generated query containing write clauses.
	// Never auto-retried or auto-corrected.
	ErrUnsafeQuery = errors.New("unsafe query rejected")
)

// ConfigError wraps ErrConfiguration with the offending field.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrConfiguration }

// NewConfigError creates a ConfigError.
func NewConfigError(field, reason string) *ConfigError {
	return &ConfigError{Field: field, Reason: reason}
}

// SegmentError attaches segment provenance to a pipeline failure.
// Segment-level failures are isolated: they are logged and the rest of
// the document continues.
type SegmentError struct {
	SegmentID string
	Stage     string
	Wrapped   error
}

func (e *SegmentError) Error() string {
	return fmt.Sprintf("segment %s: %s: %v", e.SegmentID, e.Stage, e.Wrapped)
}

func (e *SegmentError) Unwrap() error { return e.Wrapped }
