// Package main implements the graph build CLI. It ingests text files either
// directly through the construction pipeline or by publishing them to the
// ingestion subject for the worker to pick up.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/nats-io/nats.go"

	"github.com/loreweave/loreweave/engine/chunk"
	"github.com/loreweave/loreweave/engine/extract"
	"github.com/loreweave/loreweave/engine/graph"
	"github.com/loreweave/loreweave/engine/ingest"
	"github.com/loreweave/loreweave/engine/schema"
	"github.com/loreweave/loreweave/engine/semantic"
	"github.com/loreweave/loreweave/pkg/llm"
	"github.com/loreweave/loreweave/pkg/natsutil"
)

// buildConfig is the JSON shape of the -config file.
type buildConfig struct {
	Chunk  chunk.Config  `json:"chunk"`
	Schema schema.Config `json:"schema"`
	LLM    llm.Config    `json:"llm"`
	Embed  llm.Config    `json:"embed"`
}

func main() {
	var (
		configPath = flag.String("config", "", "path to build config JSON (required)")
		publish    = flag.Bool("publish", false, "publish documents to NATS instead of ingesting directly")
		natsURL    = flag.String("nats", nats.DefaultURL, "NATS server URL (with -publish)")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if *configPath == "" || flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: build -config <config.json> [-publish] <file>...")
		os.Exit(2)
	}

	if err := run(*configPath, *publish, *natsURL, flag.Args(), logger); err != nil {
		logger.Error("build failed", "err", err)
		os.Exit(1)
	}
}

func run(configPath string, publish bool, natsURL string, files []string, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadBuildConfig(configPath)
	if err != nil {
		return err
	}

	docs, err := readDocuments(files)
	if err != nil {
		return err
	}

	if publish {
		return publishDocuments(ctx, natsURL, docs, logger)
	}
	return ingestDocuments(ctx, cfg, docs, logger)
}

func loadBuildConfig(path string) (buildConfig, error) {
	var cfg buildConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

func readDocuments(files []string) ([]ingest.RawDocument, error) {
	docs := make([]ingest.RawDocument, 0, len(files))
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		docs = append(docs, ingest.RawDocument{
			Text:   string(data),
			Source: filepath.Base(path),
		})
	}
	return docs, nil
}

func publishDocuments(ctx context.Context, natsURL string, docs []ingest.RawDocument, logger *slog.Logger) error {
	nc, err := nats.Connect(natsURL)
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	defer nc.Close()

	for _, doc := range docs {
		if err := natsutil.Publish(ctx, nc, ingest.Subject, doc); err != nil {
			return fmt.Errorf("publish %s: %w", doc.Source, err)
		}
		logger.Info("document published", "source", doc.Source)
	}
	return nc.Flush()
}

func ingestDocuments(ctx context.Context, cfg buildConfig, docs []ingest.RawDocument, logger *slog.Logger) error {
	s, err := schema.New(cfg.Schema)
	if err != nil {
		return err
	}
	splitter, err := chunk.New(cfg.Chunk)
	if err != nil {
		return err
	}

	store, err := graph.Connect(ctx,
		envOr("NEO4J_URL", "neo4j://localhost:7687"),
		envOr("NEO4J_USER", "neo4j"),
		envOr("NEO4J_PASS", "password"),
		logger)
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
		Extractor: extract.New(client, s, envInt("EXTRACT_RETRIES", 2), logger),
		Graph:     store,
		Logger:    logger,
	}

	if addr := os.Getenv("QDRANT_ADDR"); addr != "" {
		mirror, err := semantic.New(addr, envOr("QDRANT_COLLECTION", "segments"))
		if err != nil {
			return err
		}
		defer mirror.Close()
		if err := mirror.EnsureCollection(ctx, cfg.Embed.Dimension); err != nil {
			return err
		}
		deps.Mirror = mirror
	}

	pipeline, err := ingest.New(deps, ingest.DefaultOptions())
	if err != nil {
		return err
	}

	// One bad file should not sink the rest of the batch.
	failed := 0
	for _, doc := range docs {
		receipt, err := pipeline.Ingest(ctx, doc)
		if err != nil {
			failed++
			logger.Error("ingest failed", "source", doc.Source, "err", err)
			continue
		}
		logger.Info("document ingested",
			"source", doc.Source,
			"document_id", receipt.DocumentID,
			"segments", receipt.Segments,
			"embedded", receipt.Embedded,
			"entities", receipt.Entities,
			"relations", receipt.Relations,
			"rejected", receipt.Rejected)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d documents failed", failed, len(docs))
	}
	return nil
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
