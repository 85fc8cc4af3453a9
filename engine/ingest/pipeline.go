// Package ingest runs the construction pipeline: split a document into
// segments, embed them, extract schema-constrained entities and
// relations, resolve duplicates, and write everything to the stores.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/loreweave/loreweave/engine/chunk"
	"github.com/loreweave/loreweave/engine/domain"
	"github.com/loreweave/loreweave/engine/extract"
	"github.com/loreweave/loreweave/engine/resolve"
	"github.com/loreweave/loreweave/pkg/fn"
	"github.com/loreweave/loreweave/pkg/llm"
	"github.com/loreweave/loreweave/pkg/resilience"
)

const (
	// EmbedBatchSize is the max segments per embedding request.
	EmbedBatchSize = 100
	// DefaultEmbedWorkers bounds concurrent embedding batches.
	DefaultEmbedWorkers = 4
	// DefaultExtractWorkers bounds concurrent extraction calls.
	DefaultExtractWorkers = 4
)

// GraphWriter is the write surface the pipeline needs from the graph
// store.
type GraphWriter interface {
	WriteDocument(ctx context.Context, doc domain.Document, segments []domain.Segment, res resolve.Resolution) error
}

// VectorMirror optionally mirrors segment vectors to an external store.
type VectorMirror interface {
	UpsertSegments(ctx context.Context, doc domain.Document, segments []domain.Segment) error
	DeleteByDocument(ctx context.Context, docID string) error
}

// Extractor pulls entity and relation candidates from one segment.
type Extractor interface {
	Extract(ctx context.Context, seg domain.Segment) (extract.Candidate, error)
}

// Deps holds the external dependencies for the pipeline.
type Deps struct {
	Splitter  *chunk.Splitter
	Embedder  llm.Embedder
	Extractor Extractor
	Graph     GraphWriter
	Mirror    VectorMirror // optional
	Logger    *slog.Logger
}

// Options tunes pipeline behaviour.
type Options struct {
	EmbedWorkers   int
	ExtractWorkers int
	EmbedRetry     resilience.RetryPolicy
	// StageTimeout bounds each stage; zero means no bound.
	StageTimeout time.Duration
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		EmbedWorkers:   DefaultEmbedWorkers,
		ExtractWorkers: DefaultExtractWorkers,
		EmbedRetry:     resilience.DefaultRetryPolicy,
	}
}

// Pipeline ingests documents end to end.
type Pipeline struct {
	deps Deps
	opts Options
	log  *slog.Logger
	run  fn.Stage[RawDocument, Receipt]

	// embedBreaker trips when the embedding provider keeps failing, so
	// later batches degrade immediately instead of replaying the retry
	// schedule against a dead endpoint.
	embedBreaker *resilience.Breaker
}

// New wires the pipeline stages together.
func New(deps Deps, opts Options) (*Pipeline, error) {
	if deps.Splitter == nil || deps.Embedder == nil || deps.Extractor == nil || deps.Graph == nil {
		return nil, domain.NewConfigError("ingest", "splitter, embedder, extractor, and graph are required")
	}
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	if opts.EmbedWorkers <= 0 {
		opts.EmbedWorkers = DefaultEmbedWorkers
	}
	if opts.ExtractWorkers <= 0 {
		opts.ExtractWorkers = DefaultExtractWorkers
	}

	p := &Pipeline{
		deps:         deps,
		opts:         opts,
		log:          log,
		embedBreaker: resilience.NewBreaker(resilience.DefaultBreakerOpts),
	}

	chunked := fn.TracedStage("ingest.chunk", p.chunkStage())
	embedded := fn.Then(chunked, fn.TracedStage("ingest.embed", p.embedStage()))
	extracted := fn.Then(embedded, fn.TracedStage("ingest.extract", p.extractStage()))
	resolved := fn.Then(extracted, fn.TracedStage("ingest.resolve", p.resolveStage()))
	p.run = fn.Then(resolved, fn.TracedStage("ingest.store", p.storeStage()))
	return p, nil
}

// Ingest runs one document through every stage. An empty document still
// succeeds: its node is written with zero segments.
func (p *Pipeline) Ingest(ctx context.Context, raw RawDocument) (Receipt, error) {
	result := p.run(ctx, raw)
	if result.IsErr() {
		_, err := result.Unwrap()
		return Receipt{}, err
	}
	receipt, _ := result.Unwrap()
	return receipt, nil
}

func (p *Pipeline) stageCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.opts.StageTimeout > 0 {
		return context.WithTimeout(ctx, p.opts.StageTimeout)
	}
	return ctx, func() {}
}

func (p *Pipeline) chunkStage() fn.Stage[RawDocument, ChunkedDoc] {
	return func(_ context.Context, raw RawDocument) fn.Result[ChunkedDoc] {
		doc := raw.toDomain()
		texts := p.deps.Splitter.Split(doc.Text)

		segments := make([]domain.Segment, len(texts))
		for i, text := range texts {
			segments[i] = domain.Segment{
				ID:         segmentID(doc.ID, i),
				DocumentID: doc.ID,
				Index:      i,
				Text:       text,
			}
		}
		p.log.Info("document chunked", "document_id", doc.ID, "segments", len(segments))
		return fn.Ok(ChunkedDoc{Document: doc, Segments: segments})
	}
}

// embedStage embeds segments in batches. A batch that still fails after
// retries degrades those segments to unembedded instead of failing the
// document; they stay retrievable through fulltext and can be
// backfilled later.
func (p *Pipeline) embedStage() fn.Stage[ChunkedDoc, ChunkedDoc] {
	return func(ctx context.Context, doc ChunkedDoc) fn.Result[ChunkedDoc] {
		ctx, cancel := p.stageCtx(ctx)
		defer cancel()

		batches := fn.Batch(doc.Segments, EmbedBatchSize)
		results := fn.ParMapResult(batches, p.opts.EmbedWorkers, func(batch []domain.Segment) fn.Result[[][]float32] {
			texts := fn.Map(batch, func(s domain.Segment) string { return s.Text })
			return resilience.RetryResult(ctx, p.opts.EmbedRetry, func(ctx context.Context) fn.Result[[][]float32] {
				return resilience.CallResult(p.embedBreaker, ctx, func(ctx context.Context) fn.Result[[][]float32] {
					return fn.FromPair(p.deps.Embedder.Embed(ctx, texts))
				})
			})
		})

		for bi, res := range results {
			batch := batches[bi]
			if res.IsErr() {
				_, err := res.Unwrap()
				if ctx.Err() != nil {
					return fn.Err[ChunkedDoc](ctx.Err())
				}
				p.log.Warn("embedding batch failed, segments degraded",
					"document_id", doc.Document.ID, "batch", bi, "error", err)
				for i := range batch {
					batch[i].EmbeddingFailed = true
				}
				continue
			}
			vectors, _ := res.Unwrap()
			if len(vectors) != len(batch) {
				return fn.Errf[ChunkedDoc]("%w: batch %d: got %d vectors for %d segments",
					domain.ErrEmbedding, bi, len(vectors), len(batch))
			}
			for i := range batch {
				batch[i].Embedding = vectors[i]
			}
		}
		return fn.Ok(doc)
	}
}

func (p *Pipeline) extractStage() fn.Stage[ChunkedDoc, ExtractedDoc] {
	return func(ctx context.Context, doc ChunkedDoc) fn.Result[ExtractedDoc] {
		ctx, cancel := p.stageCtx(ctx)
		defer cancel()

		results := fn.ParMapResult(doc.Segments, p.opts.ExtractWorkers, func(seg domain.Segment) fn.Result[extract.Candidate] {
			return fn.FromPair(p.deps.Extractor.Extract(ctx, seg))
		})
		collected := fn.Collect(results)
		if collected.IsErr() {
			_, err := collected.Unwrap()
			return fn.Err[ExtractedDoc](fmt.Errorf("extract: %w", err))
		}
		candidates, _ := collected.Unwrap()
		return fn.Ok(ExtractedDoc{ChunkedDoc: doc, Candidates: candidates})
	}
}

func (p *Pipeline) resolveStage() fn.Stage[ExtractedDoc, ResolvedDoc] {
	return func(_ context.Context, doc ExtractedDoc) fn.Result[ResolvedDoc] {
		accepted := fn.Filter(doc.Candidates, func(c extract.Candidate) bool {
			return c.State == extract.StateAccepted
		})
		res := resolve.Resolve(accepted)

		rd := ResolvedDoc{ChunkedDoc: doc.ChunkedDoc, Resolution: res}
		rd.rejected = len(doc.Candidates) - len(accepted)
		return fn.Ok(rd)
	}
}

// storeStage writes graph first; the mirror is best-effort since the
// graph is the source of truth.
func (p *Pipeline) storeStage() fn.Stage[ResolvedDoc, Receipt] {
	return func(ctx context.Context, doc ResolvedDoc) fn.Result[Receipt] {
		ctx, cancel := p.stageCtx(ctx)
		defer cancel()

		if err := p.deps.Graph.WriteDocument(ctx, doc.Document, doc.Segments, doc.Resolution); err != nil {
			return fn.Err[Receipt](err)
		}

		if p.deps.Mirror != nil {
			if err := p.deps.Mirror.DeleteByDocument(ctx, doc.Document.ID); err != nil {
				p.log.Warn("mirror cleanup failed", "document_id", doc.Document.ID, "error", err)
			}
			if err := p.deps.Mirror.UpsertSegments(ctx, doc.Document, doc.Segments); err != nil {
				p.log.Warn("mirror upsert failed", "document_id", doc.Document.ID, "error", err)
			}
		}

		embedded := 0
		for _, s := range doc.Segments {
			if !s.EmbeddingFailed && s.Embedding != nil {
				embedded++
			}
		}
		return fn.Ok(Receipt{
			DocumentID: doc.Document.ID,
			Segments:   len(doc.Segments),
			Embedded:   embedded,
			Entities:   len(doc.Resolution.Entities),
			Relations:  len(doc.Resolution.Relations),
			Rejected:   doc.rejected,
		})
	}
}
