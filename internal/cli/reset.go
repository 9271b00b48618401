package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/vietddude/reviewer/internal/control"
	"github.com/vietddude/reviewer/internal/infra/storage"
)

var resetCmd = &cobra.Command{
	Use:   "reset [item_id...]",
	Short: "Move failed reviews back to pending (all failed reviews when no ids are given)",
	Run:   runReset,
}

func init() {
	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	ctx := context.Background()

	store, err := control.OpenStore(ctx, cfg.Store)
	if err != nil {
		slog.Error("Failed to open store", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = store.Close()
	}()

	n, err := store.ResetFailed(ctx, args)
	if err != nil {
		slog.Error("Failed to reset failed reviews", "driver", cfg.Store.Driver, "error", err)
		os.Exit(1)
	}

	// Clear journal entries so the failures listing matches the store.
	if client, err := control.OpenRedis(cfg.Redis); err != nil {
		slog.Warn("Failed to connect to Redis, failure journal not updated", "error", err)
	} else if client != nil {
		defer func() {
			_ = client.Close()
		}()
		if err := clearJournal(ctx, redisJournal(client), args); err != nil {
			slog.Warn("Failed to clear failure journal", "error", err)
		}
	}

	fmt.Printf("Reset %d failed review(s) to pending\n", n)
}

func clearJournal(ctx context.Context, journal storage.FailureJournal, ids []string) error {
	if len(ids) == 0 {
		entries, err := journal.List(ctx, 0)
		if err != nil {
			return err
		}
		for _, e := range entries {
			ids = append(ids, e.ID)
		}
	}
	for _, id := range ids {
		if err := journal.Resolve(ctx, id); err != nil {
			return err
		}
	}
	return nil
}
