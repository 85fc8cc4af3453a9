// Package main implements the index maintenance CLI for the graph store.
package main

import (
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

const usage = `usage: indexes <command> [flags]

commands:
  create    create the vector and fulltext search indexes
  drop      drop an index by name
  list      list all indexes

create flags:
  -label       node label (default Segment)
  -embedding   embedding property (default embedding)
  -text        text property (default text)
  -dims        vector dimensions (default 1536)
  -similarity  vector similarity function (default cosine)

drop flags:
  -name        index name (required)
`

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	if err := run(os.Args[1], os.Args[2:], logger); err != nil {
		logger.Error("indexes command failed", "err", err)
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
	case "create":
		return runCreate(ctx, store, args, logger)
	case "drop":
		return runDrop(ctx, store, args, logger)
	case "list":
		return runList(ctx, store)
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

func runCreate(ctx context.Context, store *graph.Store, args []string, logger *slog.Logger) error {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	label := fs.String("label", "Segment", "node label")
	embedding := fs.String("embedding", "embedding", "embedding property")
	text := fs.String("text", "text", "text property")
	dims := fs.Int("dims", 1536, "vector dimensions")
	similarity := fs.String("similarity", "cosine", "vector similarity function")
	fs.Parse(args)

	vecName, err := store.CreateVectorIndex(ctx, *label, *embedding, *dims, *similarity)
	if err != nil {
		return err
	}
	logger.Info("vector index ready", "name", vecName)

	ftsName, err := store.CreateFulltextIndex(ctx, *label, *text)
	if err != nil {
		return err
	}
	logger.Info("fulltext index ready", "name", ftsName)
	return nil
}

func runDrop(ctx context.Context, store *graph.Store, args []string, logger *slog.Logger) error {
	fs := flag.NewFlagSet("drop", flag.ExitOnError)
	name := fs.String("name", "", "index name")
	fs.Parse(args)

	if *name == "" {
		return fmt.Errorf("drop: -name is required")
	}
	if err := store.DropIndex(ctx, *name); err != nil {
		return err
	}
	logger.Info("index dropped", "name", *name)
	return nil
}

func runList(ctx context.Context, store *graph.Store) error {
	infos, err := store.ListIndexes(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tTYPE\tLABELS\tPROPERTIES")
	for _, info := range infos {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			info.Name, info.Type,
			strings.Join(info.Labels, ","),
			strings.Join(info.Properties, ","))
	}
	return w.Flush()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
