// Package main implements the retrieval comparison CLI. It runs a query
// through every retrieval strategy and writes JSON and CSV reports, which
// is the quickest way to compare strategy behaviour on a live graph.
package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/loreweave/loreweave/engine/graph"
	"github.com/loreweave/loreweave/engine/retrieve"
	"github.com/loreweave/loreweave/engine/schema"
	"github.com/loreweave/loreweave/engine/semantic"
	"github.com/loreweave/loreweave/pkg/llm"
)

// report is the per-strategy JSON document written to the output directory.
type report struct {
	Strategy string          `json:"strategy"`
	Query    string          `json:"query"`
	TopK     int             `json:"top_k"`
	Duration string          `json:"duration"`
	Error    string          `json:"error,omitempty"`
	Result   retrieve.Result `json:"result"`
}

func main() {
	var (
		query      = flag.String("query", "", "query to run (required)")
		topK       = flag.Int("top-k", retrieve.DefaultTopK, "results per strategy")
		outDir     = flag.String("out", "retrieval_reports", "output directory")
		schemaPath = flag.String("schema", "", "schema JSON for the text2cypher strategy (skipped when empty)")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if *query == "" {
		fmt.Fprintln(os.Stderr, "usage: retrieve -query <question> [-top-k N] [-out dir] [-schema file]")
		os.Exit(2)
	}

	if err := run(*query, *topK, *outDir, *schemaPath, logger); err != nil {
		logger.Error("retrieval run failed", "err", err)
		os.Exit(1)
	}
}

func run(query string, topK int, outDir, schemaPath string, logger *slog.Logger) error {
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

	dims := envInt("EMBED_DIMENSION", 1536)
	vectorIndex := envOr("VECTOR_INDEX", graph.VectorIndexName("Segment", "embedding", dims, "cosine"))
	fulltextIndex := envOr("FULLTEXT_INDEX", graph.FulltextIndexName("Segment", "text"))

	retrievers := []retrieve.Retriever{
		retrieve.NewVector(store, embedder, vectorIndex),
		retrieve.NewVectorCypher(store, embedder, vectorIndex),
		retrieve.NewHybrid(store, embedder, vectorIndex, fulltextIndex),
		retrieve.NewHybridCypher(store, embedder, vectorIndex, fulltextIndex),
	}

	if schemaPath != "" {
		s, err := schema.LoadFile(schemaPath)
		if err != nil {
			return err
		}
		client, err := llm.NewClient(llm.Config{
			Provider: envOr("LLM_PROVIDER", "openai"),
			Model:    envOr("LLM_MODEL", "gpt-4o-mini"),
			BaseURL:  os.Getenv("LLM_BASE_URL"),
			APIKey:   os.Getenv("LLM_API_KEY"),
		})
		if err != nil {
			return fmt.Errorf("llm client: %w", err)
		}
		retrievers = append(retrievers, retrieve.NewText2Query(client, store, s, nil))
	} else {
		logger.Info("no schema file given, skipping text2cypher")
	}

	if addr := os.Getenv("QDRANT_ADDR"); addr != "" {
		mirror, err := semantic.New(addr, envOr("QDRANT_COLLECTION", "segments"))
		if err != nil {
			return err
		}
		defer mirror.Close()
		retrievers = append(retrievers, &semanticRetriever{mirror: mirror, embedder: embedder})
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}

	reports := make([]report, 0, len(retrievers))
	for _, r := range retrievers {
		rep := runStrategy(ctx, r, query, topK, logger)
		reports = append(reports, rep)
		if err := writeJSON(filepath.Join(outDir, rep.Strategy+".json"), rep); err != nil {
			return err
		}
	}

	if err := writeSummary(filepath.Join(outDir, "summary.csv"), reports); err != nil {
		return err
	}
	logger.Info("reports written", "dir", outDir, "strategies", len(reports))
	return nil
}

// semanticRetriever searches the Qdrant mirror instead of the graph's
// vector index, so the two backends can be compared on the same corpus.
type semanticRetriever struct {
	mirror   *semantic.Mirror
	embedder llm.Embedder
}

func (s *semanticRetriever) Name() string { return "semantic_mirror" }

func (s *semanticRetriever) Search(ctx context.Context, query string, topK int) (retrieve.Result, error) {
	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return retrieve.Result{}, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) != 1 {
		return retrieve.Result{}, fmt.Errorf("embed query: got %d vectors", len(vectors))
	}

	hits, err := s.mirror.Search(ctx, vectors[0], topK)
	if err != nil {
		return retrieve.Result{}, err
	}

	items := make([]retrieve.Item, 0, len(hits))
	for _, hit := range hits {
		items = append(items, retrieve.Item{
			Content: hit.Content,
			Score:   float64(hit.Score),
			Metadata: map[string]any{
				"segmentId": hit.SegmentID,
				"docId":     hit.DocID,
				"ordinal":   hit.Ordinal,
			},
		})
	}
	return retrieve.Result{Items: items}, nil
}

func runStrategy(ctx context.Context, r retrieve.Retriever, query string, topK int, logger *slog.Logger) report {
	rep := report{Strategy: r.Name(), Query: query, TopK: topK}

	start := time.Now()
	result, err := r.Search(ctx, query, topK)
	rep.Duration = time.Since(start).Round(time.Millisecond).String()

	if err != nil {
		rep.Error = err.Error()
		logger.Warn("strategy failed", "strategy", rep.Strategy, "err", err)
		return rep
	}
	rep.Result = result
	logger.Info("strategy done", "strategy", rep.Strategy, "items", len(result.Items), "duration", rep.Duration)
	return rep
}

func writeJSON(path string, rep report) error {
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func writeSummary(path string, reports []report) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"strategy", "items", "top_score", "duration", "error"}); err != nil {
		return err
	}
	for _, rep := range reports {
		topScore := ""
		if len(rep.Result.Items) > 0 {
			topScore = strconv.FormatFloat(rep.Result.Items[0].Score, 'f', 4, 64)
		}
		row := []string{
			rep.Strategy,
			strconv.Itoa(len(rep.Result.Items)),
			topScore,
			rep.Duration,
			rep.Error,
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
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
