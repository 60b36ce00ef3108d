package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ragbot-io/ragbot/internal/agent/graphbot"
	"github.com/ragbot-io/ragbot/internal/agent/ragbot"
	"github.com/ragbot-io/ragbot/internal/chunk"
	"github.com/ragbot-io/ragbot/internal/document"
	"github.com/ragbot-io/ragbot/internal/embed"
	"github.com/ragbot-io/ragbot/internal/graph"
	"github.com/ragbot-io/ragbot/internal/vectorstore"
)

var (
	ingestSource string
	ingestGraph  bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>...",
	Short: "Load text files into the knowledge base",
	Long: `Ingest chunks each file, embeds the chunks, and stores them in the
vector store. With --graph the content is also indexed into the Neo4j
concept graph.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIngest(cmd.Context(), args)
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestSource, "source", "", "source label stored in chunk metadata (default: file name)")
	ingestCmd.Flags().BoolVar(&ingestGraph, "graph", false, "also index content into the Neo4j concept graph")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(ctx context.Context, paths []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.ValidateRetrieval(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	querier, err := vectorstore.NewPgxQuerier(ctx, cfg.PostgresURL, vectorstore.DefaultTable)
	if err != nil {
		return fmt.Errorf("connecting to PostgreSQL: %w", err)
	}
	store := vectorstore.New(querier, cfg.EmbeddingDimension, logger)
	defer func() {
		if err := store.Close(context.Background()); err != nil {
			logger.Warn("closing vector store", "error", err)
		}
	}()

	embedder := embed.New(buildEmbedClient(cfg), cfg.EmbeddingDimension, logger)
	chunker := chunk.New(cfg.ChunkSize, cfg.ChunkOverlap, logger)
	processor := document.NewProcessor(chunker, embedder, logger)

	if err := processor.Initialize(ctx); err != nil {
		return fmt.Errorf("initializing pipeline: %w", err)
	}
	if !store.Initialize(ctx) {
		return fmt.Errorf("initializing vector store")
	}

	var gb *graphbot.Agent
	if ingestGraph {
		gstore, err := graph.NewStore(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword, logger)
		if err != nil {
			return fmt.Errorf("connecting to Neo4j: %w", err)
		}
		if err := gstore.Initialize(ctx); err != nil {
			return fmt.Errorf("initializing graph schema: %w", err)
		}
		gb = graphbot.New(gstore, ragbot.SeedContent, logger)
		defer func() {
			if err := gb.Close(); err != nil {
				logger.Warn("closing graph store", "error", err)
			}
		}()
	}

	for _, path := range paths {
		if err := ingestFile(ctx, path, processor, store, gb); err != nil {
			return fmt.Errorf("ingesting %s: %w", path, err)
		}
	}

	logger.Info("ingest complete",
		"files", len(paths),
		"documents", store.DocumentCount(ctx))
	return nil
}

func ingestFile(ctx context.Context, path string, processor *document.Processor, store *vectorstore.Store, gb *graphbot.Agent) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	source := ingestSource
	if source == "" {
		source = filepath.Base(path)
	}
	metadata := map[string]any{"source": source}

	docs, err := processor.ProcessText(ctx, string(raw), metadata)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return fmt.Errorf("no content to ingest")
	}
	if !store.AddDocuments(ctx, docs) {
		return fmt.Errorf("storing documents")
	}

	if gb != nil {
		if err := gb.IndexContent(ctx, source, string(raw), metadata); err != nil {
			return fmt.Errorf("indexing into graph: %w", err)
		}
	}
	return nil
}
