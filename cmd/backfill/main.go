// Package main implements the embedding backfill CLI. It finds segments
// that were stored without a vector, embeds them, and writes the vectors
// back to the graph and, when configured, to the vector mirror.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/loreweave/loreweave/engine/domain"
	"github.com/loreweave/loreweave/engine/graph"
	"github.com/loreweave/loreweave/engine/semantic"
	"github.com/loreweave/loreweave/pkg/llm"
)

func main() {
	var (
		batchSize = flag.Int("batch", 100, "segments per embedding batch")
		dryRun    = flag.Bool("dry-run", false, "report missing embeddings without writing")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(*batchSize, *dryRun, logger); err != nil {
		logger.Error("backfill failed", "err", err)
		os.Exit(1)
	}
}

func run(batchSize int, dryRun bool, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := graph.Connect(ctx,
		envOr("NEO4J_URL", "neo4j://localhost:7687"),
		envOr("NEO4J_USER", "neo4j"),
		envOr("NEO4J_PASS", "password"),
		logger)
	if err != nil {
		return err
	}
	defer store.Close(ctx)

	embedder, err := llm.NewEmbedder(llm.Config{
		Provider:  envOr("EMBED_PROVIDER", "openai"),
		Model:     envOr("EMBED_MODEL", "text-embedding-3-small"),
		BaseURL:   os.Getenv("EMBED_BASE_URL"),
		APIKey:    os.Getenv("LLM_API_KEY"),
		Dimension: envInt("EMBED_DIMENSION", 1536),
	})
	if err != nil {
		return fmt.Errorf("embedder: %w", err)
	}

	var mirror *semantic.Mirror
	if addr := os.Getenv("QDRANT_ADDR"); addr != "" {
		mirror, err = semantic.New(addr, envOr("QDRANT_COLLECTION", "segments"))
		if err != nil {
			return err
		}
		defer mirror.Close()
		if err := mirror.EnsureCollection(ctx, embedder.Dimension()); err != nil {
			return err
		}
	}

	total := 0
	for {
		segments, err := store.SegmentsMissingEmbedding(ctx, batchSize)
		if err != nil {
			return err
		}
		if len(segments) == 0 {
			break
		}

		if dryRun {
			for _, seg := range segments {
				logger.Info("missing embedding", "segment", seg.ID, "document", seg.DocumentID, "ordinal", seg.Index)
			}
			total += len(segments)
			if len(segments) < batchSize {
				break
			}
			continue
		}

		n, err := backfillBatch(ctx, store, mirror, embedder, segments, logger)
		if err != nil {
			return err
		}
		total += n
		logger.Info("batch backfilled", "segments", n, "total", total)
	}

	if dryRun {
		logger.Info("dry run complete", "missing", total)
	} else {
		logger.Info("backfill complete", "segments", total)
	}
	return nil
}

func backfillBatch(ctx context.Context, store *graph.Store, mirror *semantic.Mirror, embedder llm.Embedder, segments []domain.Segment, logger *slog.Logger) (int, error) {
	texts := make([]string, len(segments))
	for i, seg := range segments {
		texts[i] = seg.Text
	}

	vectors, err := embedder.Embed(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrEmbedding, err)
	}
	if len(vectors) != len(segments) {
		return 0, fmt.Errorf("%w: got %d vectors for %d segments", domain.ErrEmbedding, len(vectors), len(segments))
	}

	byDoc := make(map[string][]domain.Segment)
	for i := range segments {
		segments[i].Embedding = vectors[i]
		segments[i].EmbeddingFailed = false
		if err := store.SetSegmentEmbedding(ctx, segments[i].ID, vectors[i]); err != nil {
			return 0, err
		}
		byDoc[segments[i].DocumentID] = append(byDoc[segments[i].DocumentID], segments[i])
	}

	if mirror != nil {
		for docID, segs := range byDoc {
			if err := mirror.UpsertSegments(ctx, domain.Document{ID: docID}, segs); err != nil {
				// Graph already holds the vectors; the mirror catches up next run.
				logger.Warn("mirror upsert failed", "document", docID, "err", err)
			}
		}
	}
	return len(segments), nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
