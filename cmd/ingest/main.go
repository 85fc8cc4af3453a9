// Package main implements the document ingestion worker. It consumes raw
// documents from NATS and runs them through the construction pipeline.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/loreweave/loreweave/engine/chunk"
	"github.com/loreweave/loreweave/engine/extract"
	"github.com/loreweave/loreweave/engine/graph"
	"github.com/loreweave/loreweave/engine/ingest"
	"github.com/loreweave/loreweave/engine/schema"
	"github.com/loreweave/loreweave/engine/semantic"
	"github.com/loreweave/loreweave/pkg/llm"
)

type Config struct {
	NATSURL    string
	Neo4jURL   string
	Neo4jUser  string
	Neo4jPass  string
	QdrantAddr string // empty disables the vector mirror
	Collection string
	SchemaFile string

	Chunk          chunk.Config
	LLM            llm.Config
	Embed          llm.Config
	ExtractRetries int
	EmbedWorkers   int
	ExtractWorkers int
}

func loadConfig() Config {
	return Config{
		NATSURL:    envOr("NATS_URL", nats.DefaultURL),
		Neo4jURL:   envOr("NEO4J_URL", "neo4j://localhost:7687"),
		Neo4jUser:  envOr("NEO4J_USER", "neo4j"),
		Neo4jPass:  envOr("NEO4J_PASS", "password"),
		QdrantAddr: os.Getenv("QDRANT_ADDR"),
		Collection: envOr("QDRANT_COLLECTION", "segments"),
		SchemaFile: os.Getenv("SCHEMA_FILE"),
		Chunk: chunk.Config{
			Strategy: chunk.Strategy(envOr("CHUNK_STRATEGY", string(chunk.StrategyFixedSize))),
			Size:     envInt("CHUNK_SIZE", 1000),
			Overlap:  envInt("CHUNK_OVERLAP", 200),
		},
		LLM: llm.Config{
			Provider: envOr("LLM_PROVIDER", "openai"),
			Model:    envOr("LLM_MODEL", "gpt-4o-mini"),
			BaseURL:  os.Getenv("LLM_BASE_URL"),
			APIKey:   os.Getenv("LLM_API_KEY"),
		},
		Embed: llm.Config{
			Provider:  envOr("EMBED_PROVIDER", "openai"),
			Model:     envOr("EMBED_MODEL", "text-embedding-3-small"),
			BaseURL:   os.Getenv("EMBED_BASE_URL"),
			APIKey:    os.Getenv("LLM_API_KEY"),
			Dimension: envInt("EMBED_DIMENSION", 1536),
		},
		ExtractRetries: envInt("EXTRACT_RETRIES", 2),
		EmbedWorkers:   envInt("EMBED_WORKERS", ingest.DefaultEmbedWorkers),
		ExtractWorkers: envInt("EXTRACT_WORKERS", ingest.DefaultExtractWorkers),
	}
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

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(loadConfig(), logger); err != nil {
		logger.Error("worker exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.SchemaFile == "" {
		return fmt.Errorf("SCHEMA_FILE is required")
	}
	s, err := schema.LoadFile(cfg.SchemaFile)
	if err != nil {
		return err
	}

	splitter, err := chunk.New(cfg.Chunk)
	if err != nil {
		return err
	}

	store, err := graph.Connect(ctx, cfg.Neo4jURL, cfg.Neo4jUser, cfg.Neo4jPass, logger)
	if err != nil {
		return err
	}
	defer store.Close(ctx)

	client, err := llm.NewClient(cfg.LLM)
	if err != nil {
		return fmt.Errorf("llm client: %w", err)
	}
	embedder, err := llm.NewEmbedder(cfg.Embed)
	if err != nil {
		return fmt.Errorf("embedder: %w", err)
	}

	deps := ingest.Deps{
		Splitter:  splitter,
		Embedder:  embedder,
		Extractor: extract.New(client, s, cfg.ExtractRetries, logger),
		Graph:     store,
		Logger:    logger,
	}

	if cfg.QdrantAddr != "" {
		mirror, err := semantic.New(cfg.QdrantAddr, cfg.Collection)
		if err != nil {
			return err
		}
		defer mirror.Close()
		if err := mirror.EnsureCollection(ctx, cfg.Embed.Dimension); err != nil {
			return err
		}
		deps.Mirror = mirror
	}

	opts := ingest.DefaultOptions()
	opts.EmbedWorkers = cfg.EmbedWorkers
	opts.ExtractWorkers = cfg.ExtractWorkers
	pipeline, err := ingest.New(deps, opts)
	if err != nil {
		return err
	}

	nc, err := nats.Connect(cfg.NATSURL,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	defer nc.Close()

	sub, err := ingest.StartConsumer(nc, pipeline, logger)
	if err != nil {
		return err
	}
	logger.Info("ingest worker started", "subject", ingest.Subject, "mirror", cfg.QdrantAddr != "")

	<-ctx.Done()
	logger.Info("shutdown signal received")
	if err := sub.Drain(); err != nil {
		logger.Warn("drain failed", "err", err)
	}
	return nil
}
