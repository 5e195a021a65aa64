// Package cmd implements the sylva command line interface.
package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/sylvahq/sylva/internal/log"
)

var rootCmd = &cobra.Command{
	Use:   "sylva",
	Short: "Sylva - AI-assisted note taking",
	Long: `Sylva stores notes, embeds them into a vector index, and answers
questions about them with cited sources.

Run "sylva serve" to start the HTTP API, or "sylva ask" for a one-shot
query from the terminal.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// initLogger builds the process logger. DEBUG in the environment enables
// debug level; SYLVA_LOG_JSON switches to JSON output for log shippers.
func initLogger() log.Logger {
	cfg := log.Config{Level: slog.LevelInfo}
	if os.Getenv("DEBUG") != "" {
		cfg.Level = slog.LevelDebug
	}
	if os.Getenv("SYLVA_LOG_JSON") != "" {
		cfg.JSON = true
	}
	logger := log.New(cfg)
	slog.SetDefault(logger)
	return logger
}
