package cmd

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/sylvahq/sylva/internal/app"
	"github.com/sylvahq/sylva/internal/config"
	"github.com/sylvahq/sylva/internal/note"
)

var (
	askUser      string
	askDashboard string
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a one-shot question about your notes",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askUser, "user", "", "user ID owning the notes (required)")
	askCmd.Flags().StringVar(&askDashboard, "dashboard", "", "restrict retrieval to one dashboard")
	_ = askCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	logger := initLogger()

	owner, err := uuid.Parse(askUser)
	if err != nil {
		return fmt.Errorf("--user is not a valid UUID: %w", err)
	}
	scope := note.Scope{OwnerID: owner}
	if askDashboard != "" {
		dashID, err := uuid.Parse(askDashboard)
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

	query := strings.Join(args, " ")
	answer, err := a.Assistant.Answer(ctx, query, nil, scope)
	if err != nil {
		return fmt.Errorf("answering query: %w", err)
	}

	fmt.Println(answer.Response)
	if len(answer.Sources) > 0 {
		fmt.Println()
		fmt.Println("Sources:")
		for _, src := range answer.Sources {
			title := src.Title
			if title == "" {
				title = "(untitled)"
			}
			fmt.Printf("  - %s (%s)\n", title, src.ID)
		}
	}

	return nil
}
