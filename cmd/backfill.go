package cmd

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/sylvahq/sylva/internal/app"
	"github.com/sylvahq/sylva/internal/config"
	"github.com/sylvahq/sylva/internal/note"
)

var (
	backfillUser      string
	backfillDashboard string
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Embed notes that are missing a current embedding",
	Long: `Backfill finds notes whose embedding is missing or was produced by a
different embedder model, and embeds them in rate-limited batches. Safe to
run repeatedly; notes that are already current are skipped. Without --user
the whole table is covered.`,
	RunE: runBackfill,
}

func init() {
	backfillCmd.Flags().StringVar(&backfillUser, "user", "", "limit the run to one user's notes")
	backfillCmd.Flags().StringVar(&backfillDashboard, "dashboard", "", "limit the run to one dashboard")
	rootCmd.AddCommand(backfillCmd)
}

func runBackfill(cmd *cobra.Command, _ []string) error {
	logger := initLogger()

	var scope note.Scope
	if backfillUser != "" {
		owner, err := uuid.Parse(backfillUser)
		if err != nil {
			return fmt.Errorf("--user is not a valid UUID: %w", err)
		}
		scope.OwnerID = owner
	}
	if backfillDashboard != "" {
		dashID, err := uuid.Parse(backfillDashboard)
		if err != nil {
			return fmt.Errorf("--dashboard is not a valid UUID: %w", err)
		}
		scope.DashboardID = &dashID
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	ctx := cmd.Context()
	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	result, err := a.Embeddings.BackfillMissing(ctx, scope)
	if err != nil {
		return fmt.Errorf("running backfill: %w", err)
	}

	fmt.Printf("Processed %d notes: %d embedded, %d failed\n",
		result.Processed, result.Succeeded, len(result.Failures))
	for _, f := range result.Failures {
		fmt.Printf("  failed %s: %v\n", f.NoteID, f.Err)
	}

	return nil
}
