// Package main implements the query API server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/loreweave/loreweave/engine/graph"
	"github.com/loreweave/loreweave/engine/rag"
	"github.com/loreweave/loreweave/engine/retrieve"
	"github.com/loreweave/loreweave/engine/schema"
	"github.com/loreweave/loreweave/pkg/llm"
	"github.com/loreweave/loreweave/pkg/metrics"
)

// Config holds all environment-based configuration.
type Config struct {
	Port          string
	Neo4jURL      string
	Neo4jUser     string
	Neo4jPass     string
	Strategy      string
	VectorIndex   string
	FulltextIndex string
	TopK          int
	WebhookTopK   int
	CORSOrigin    string

	LLM   llm.Config
	Embed llm.Config
}

func loadConfig() Config {
	dims := envInt("EMBED_DIMENSION", 1536)
	return Config{
		Port:          envOr("PORT", "8080"),
		Neo4jURL:      envOr("NEO4J_URL", "neo4j://localhost:7687"),
		Neo4jUser:     envOr("NEO4J_USER", "neo4j"),
		Neo4jPass:     envOr("NEO4J_PASS", "password"),
		Strategy:      envOr("RETRIEVAL_STRATEGY", "hybrid"),
		VectorIndex:   envOr("VECTOR_INDEX", graph.VectorIndexName("Segment", "embedding", dims, "cosine")),
		FulltextIndex: envOr("FULLTEXT_INDEX", graph.FulltextIndexName("Segment", "text")),
		TopK:          envInt("TOP_K", 5),
		WebhookTopK:   envInt("WEBHOOK_TOP_K", 3),
		CORSOrigin:    envOr("CORS_ORIGIN", "*"),
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
			Dimension: dims,
		},
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
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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

	retriever, err := pickRetriever(cfg, store, embedder, client)
	if err != nil {
		return err
	}

	opts := rag.DefaultOptions()
	opts.TopK = cfg.TopK
	svc := rag.New(client, retriever, opts, logger)

	reg := metrics.New()
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      newHandler(svc, cfg.TopK, cfg.WebhookTopK, cfg.CORSOrigin, reg, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Port, "strategy", retriever.Name())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

func pickRetriever(cfg Config, store *graph.Store, embedder llm.Embedder, client llm.Client) (retrieve.Retriever, error) {
	switch cfg.Strategy {
	case "vector":
		return retrieve.NewVector(store, embedder, cfg.VectorIndex), nil
	case "vector_cypher":
		return retrieve.NewVectorCypher(store, embedder, cfg.VectorIndex), nil
	case "hybrid":
		return retrieve.NewHybrid(store, embedder, cfg.VectorIndex, cfg.FulltextIndex), nil
	case "hybrid_cypher":
		return retrieve.NewHybridCypher(store, embedder, cfg.VectorIndex, cfg.FulltextIndex), nil
	case "text2cypher":
		s, err := loadSchema()
		if err != nil {
			return nil, err
		}
		return retrieve.NewText2Query(client, store, s, nil), nil
	default:
		return nil, fmt.Errorf("unknown retrieval strategy %q", cfg.Strategy)
	}
}

func loadSchema() (*schema.Schema, error) {
	path := os.Getenv("SCHEMA_FILE")
	if path == "" {
		return nil, fmt.Errorf("SCHEMA_FILE is required for the text2cypher strategy")
	}
	return schema.LoadFile(path)
}
