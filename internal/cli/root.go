package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/vietddude/stylelog"

	"github.com/vietddude/reviewer/internal/control"
	"github.com/vietddude/reviewer/internal/core/config"
)

var (
	cfgPath         string
	isDebug         bool
	shutdownTimeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "reviewer",
	Short: "Reviewer correction service",
	Long:  `Reviewer periodically pulls pending guest reviews, corrects them with an LLM and writes the results back.`,
	Run:   runService,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the correction service (same as the root command)",
	Run:   runService,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file (default is config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().DurationVar(&shutdownTimeout, "shutdown-timeout", 2*time.Minute, "time allowed for the running cycle to drain on shutdown")
	rootCmd.AddCommand(runCmd)
}

// loadConfig reads .env, the config file and env overrides, then sets up
// the process logger. It exits on any configuration error.
func loadConfig() *config.AppConfig {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		stylelog.InitDefault()
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	slogLevel := slog.LevelInfo
	switch {
	case isDebug || cfg.Logging.Level == "debug":
		slogLevel = slog.LevelDebug
	case cfg.Logging.Level == "warn":
		slogLevel = slog.LevelWarn
	case cfg.Logging.Level == "error":
		slogLevel = slog.LevelError
	}

	stylelog.InitDefault(&tint.Options{
		Level:      slogLevel,
		TimeFormat: time.RFC3339,
	})

	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}
	return cfg
}

func runService(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := control.NewService(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize reviewer", "error", err)
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if err := app.Start(ctx); err != nil {
		slog.Error("Failed to start reviewer", "error", err)
		os.Exit(1)
	}

	slog.Info("Reviewer started",
		"config", cfgPath,
		"store", cfg.Store.Driver,
		"model", cfg.LLM.Model,
		"interval", cfg.Dispatch.Interval,
	)

	sig := <-sigChan
	slog.Info("Received signal, shutting down...", "signal", sig, "timeout", shutdownTimeout)

	// A second signal abandons the running cycle immediately.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	go func() {
		select {
		case <-sigChan:
			slog.Warn("Received second signal, forcing shutdown")
			shutdownCancel()
		case <-shutdownCtx.Done():
		}
	}()

	if err := app.Stop(shutdownCtx); err != nil {
		slog.Error("Error during shutdown", "error", err)
		os.Exit(1)
	}
	slog.Info("Reviewer stopped")
}
