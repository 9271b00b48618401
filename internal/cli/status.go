package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vietddude/reviewer/internal/control"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pending, corrected and failed review counts",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
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

	counts, err := store.Counts(ctx)
	if err != nil {
		slog.Error("Failed to read counts", "driver", cfg.Store.Driver, "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "PENDING\tCORRECTED\tFAILED\tTOTAL")
	_, _ = fmt.Fprintf(w, "%d\t%d\t%d\t%d\n", counts.Pending, counts.Succeeded, counts.Failed, counts.Total())
	_ = w.Flush()
}
