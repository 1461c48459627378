package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/flor3z/scrim-bot/internal/bot"
	"github.com/flor3z/scrim-bot/internal/reconciler"
	"github.com/spf13/cobra"
)

var resetConfirmed bool

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Re-render every lobby message from the database",
	Long: `Connect to Discord, rewrite every stored lobby message and forum post
from the database, refresh the panel and exit.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMaintenance("reconcile", (*bot.Bot).Reconcile)
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Cancel every lobby and clear all participants",
	Long: `Cancel every lobby, delete all memberships and re-render the lobbies
that were still active. This cannot be undone.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !resetConfirmed {
			return errors.New("refusing to reset without --yes")
		}
		return runMaintenance("reset", (*bot.Bot).Reset)
	},
}

func init() {
	resetCmd.Flags().BoolVarP(&resetConfirmed, "yes", "y", false, "Confirm cancelling every lobby")

	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(resetCmd)
}

// runMaintenance connects without registering commands, runs one pass and
// prints its report
func runMaintenance(name string, run func(*bot.Bot, context.Context) (reconciler.Report, error)) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	b, err := bot.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create bot: %w", err)
	}
	defer func() {
		if err := b.Stop(); err != nil {
			slog.Error("Error during shutdown", "error", err)
		}
	}()

	if err := b.Open(); err != nil {
		return err
	}

	report, err := run(b, ctx)
	if err != nil {
		return fmt.Errorf("%s failed: %w", name, err)
	}

	fmt.Printf("%s: %s\n", name, report)
	return nil
}
