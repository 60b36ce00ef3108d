// Package cmd contains the ragbot command line interface.
package cmd

import (
	"log/slog"

	"github.com/ragbot-io/ragbot/internal/config"
	"github.com/ragbot-io/ragbot/internal/log"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "ragbot",
	Short: "Slack chatbot with retrieval-augmented agents",
	Long: `ragbot is a Slack chatbot backed by pluggable retrieval agents.

It answers questions over a pgvector knowledge base, optionally augmented
with a Neo4j concept graph, and exposes a status dashboard over HTTP.

Running ragbot without a subcommand starts the bot (same as "ragbot serve").`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig loads configuration and builds the logger it implies.
func loadConfig() (*config.Config, log.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := log.New(log.Config{Level: level})
	return cfg, logger, nil
}
