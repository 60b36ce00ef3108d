package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ragbot-io/ragbot/api"
	"github.com/ragbot-io/ragbot/internal/agent"
	"github.com/ragbot-io/ragbot/internal/agent/graphbot"
	"github.com/ragbot-io/ragbot/internal/agent/ragbot"
	"github.com/ragbot-io/ragbot/internal/chunk"
	"github.com/ragbot-io/ragbot/internal/config"
	"github.com/ragbot-io/ragbot/internal/document"
	"github.com/ragbot-io/ragbot/internal/embed"
	"github.com/ragbot-io/ragbot/internal/graph"
	"github.com/ragbot-io/ragbot/internal/slack"
	"github.com/ragbot-io/ragbot/internal/vectorstore"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Slack bot and status dashboard",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// runServe wires the full pipeline and blocks until SIGINT/SIGTERM.
//
// Wiring order: vector store, embedder, RAG agent, graph agent (optional),
// agent manager, Slack integration, HTTP dashboard. Shutdown runs in
// reverse.
func runServe(parent context.Context) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting ragbot", "version", AppVersion)

	// Vector store over a single PostgreSQL connection.
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

	// Retrieval pipeline: chunker, embedder, processor, RAG agent.
	embedder := embed.New(buildEmbedClient(cfg), cfg.EmbeddingDimension, logger)
	chunker := chunk.New(cfg.ChunkSize, cfg.ChunkOverlap, logger)
	processor := document.NewProcessor(chunker, embedder, logger)
	rag := ragbot.New(processor, embedder, store, cfg.SimilarityThreshold, logger)

	manager := agent.NewManager(logger)
	if err := manager.Register("rag", rag, true); err != nil {
		return fmt.Errorf("registering rag agent: %w", err)
	}
	defer func() {
		if err := manager.Close(); err != nil {
			logger.Warn("closing agents", "error", err)
		}
	}()

	// Graph agent is optional: an unreachable Neo4j degrades to vector-only
	// retrieval instead of refusing to start.
	registerGraphAgent(ctx, cfg, manager, logger)

	integration := slack.NewIntegration(cfg, manager, logger)
	if err := integration.Initialize(); err != nil {
		return fmt.Errorf("initializing slack integration: %w", err)
	}
	if err := integration.Start(ctx); err != nil {
		return fmt.Errorf("starting slack integration: %w", err)
	}
	defer integration.Stop()

	server := api.NewServer(manager, integration.Service(), store.HealthCheck, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Run(ctx, cfg.DashboardAddr) }()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		return <-errCh
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("dashboard server: %w", err)
		}
		return nil
	}
}

// buildEmbedClient picks the embedding backend: OpenAI when an API key is
// configured, otherwise the local Ollama server.
func buildEmbedClient(cfg *config.Config) embed.Client {
	if cfg.OpenAIAPIKey != "" {
		return embed.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.EmbeddingModel)
	}
	return embed.NewOllamaClient(cfg.OllamaHost, cfg.EmbeddingModel)
}

// registerGraphAgent connects to Neo4j and registers the graph agent.
// Failures are logged, not fatal.
func registerGraphAgent(ctx context.Context, cfg *config.Config, manager *agent.Manager, logger *slog.Logger) {
	gstore, err := graph.NewStore(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword, logger)
	if err != nil {
		logger.Warn("graph store unavailable, continuing without graph agent",
			"uri", cfg.Neo4jURI, "error", err)
		return
	}
	gb := graphbot.New(gstore, ragbot.SeedContent, logger)
	if err := manager.Register("graph", gb, false); err != nil {
		logger.Warn("registering graph agent", "error", err)
	}
}
