package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/reviewer/internal/control"
	"github.com/vietddude/reviewer/internal/core/domain"
	redisclient "github.com/vietddude/reviewer/internal/infra/redis"
	"github.com/vietddude/reviewer/internal/infra/storage"
)

var failuresLimit int

var failuresCmd = &cobra.Command{
	Use:   "failures",
	Short: "List reviews that failed recently, most frequent first",
	Run:   runFailures,
}

func init() {
	failuresCmd.Flags().IntVar(&failuresLimit, "limit", 50, "maximum entries to show (0 for all)")
	rootCmd.AddCommand(failuresCmd)
}

func redisJournal(client *redisclient.Client) storage.FailureJournal {
	return redisclient.NewFailedItemRepo(client)
}

func runFailures(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	ctx := context.Background()

	client, err := control.OpenRedis(cfg.Redis)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	if client == nil {
		slog.Error("The failure journal requires redis.url to be set")
		os.Exit(1)
	}
	defer func() {
		_ = client.Close()
	}()

	journal := redisJournal(client)
	total, err := journal.Count(ctx)
	if err != nil {
		slog.Error("Failed to count failures", "error", err)
		os.Exit(1)
	}
	items, err := journal.List(ctx, failuresLimit)
	if err != nil {
		slog.Error("Failed to list failures", "error", err)
		os.Exit(1)
	}

	printFailures(os.Stdout, items)
	fmt.Printf("\n%d of %d failed review(s)\n", len(items), total)
}

func printFailures(out io.Writer, items []domain.FailedItem) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "ID\tKIND\tFAILURES\tATTEMPTS\tLAST FAILED\tERROR")
	for _, it := range items {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\n",
			it.ID, it.Kind, it.Failures, it.Attempts,
			it.LastFailed.Format(time.RFC3339), truncate(it.Error, 80))
	}
	_ = w.Flush()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
