// Package main implements the graph admin CLI: content stats, per-document
// listing and deletion, and a full wipe.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/loreweave/loreweave/engine/graph"
)

const usage = `usage: graph <command> [flags]

commands:
  stats     print node and relationship counts
  list      list documents with their segment counts
  delete    delete one document's subgraph (-id required)
  wipe      delete everything (asks for confirmation)
`

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	if err := run(os.Args[1], os.Args[2:], logger); err != nil {
		logger.Error("graph command failed", "err", err)
		os.Exit(1)
	}
}

func run(command string, args []string, logger *slog.Logger) error {
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

	switch command {
	case "stats":
		return runStats(ctx, store)
	case "list":
		return runList(ctx, store)
	case "delete":
		return runDelete(ctx, store, args, logger)
	case "wipe":
		return runWipe(ctx, store, logger)
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

func runStats(ctx context.Context, store *graph.Store) error {
	stats, err := store.Stats(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("documents:  %d\n", stats.Documents)
	fmt.Printf("segments:   %d\n", stats.Segments)
	fmt.Printf("entities:   %d\n", stats.Entities)
	fmt.Printf("relations:  %d\n", stats.Relations)
	return nil
}

func runList(ctx context.Context, store *graph.Store) error {
	docs, err := store.ListDocuments(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSOURCE\tSEGMENTS")
	for _, doc := range docs {
		fmt.Fprintf(w, "%s\t%s\t%d\n", doc.ID, doc.Source, doc.Segments)
	}
	return w.Flush()
}

func runDelete(ctx context.Context, store *graph.Store, args []string, logger *slog.Logger) error {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	id := fs.String("id", "", "document id")
	fs.Parse(args)

	if *id == "" {
		return fmt.Errorf("delete: -id is required")
	}
	if err := store.DeleteDocument(ctx, *id); err != nil {
		return err
	}
	logger.Info("document deleted", "id", *id)
	return nil
}

func runWipe(ctx context.Context, store *graph.Store, logger *slog.Logger) error {
	fmt.Print("delete ALL graph content? type 'yes' to continue: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return err
	}
	if strings.TrimSpace(line) != "yes" {
		fmt.Println("aborted")
		return nil
	}
	if err := store.DeleteAll(ctx); err != nil {
		return err
	}
	logger.Info("graph wiped")
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
