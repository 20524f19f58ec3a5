package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fieldops-platform/apps/api/internal/audit"
	"github.com/fieldops-platform/apps/api/internal/config"
	"github.com/fieldops-platform/apps/api/internal/db"
	"github.com/fieldops-platform/apps/api/internal/ingest"
	"github.com/fieldops-platform/apps/api/internal/store"
)

var rootCmd = &cobra.Command{
	Use:          "ingest",
	Short:        "Import and inspect field-maintenance incident spreadsheets",
	SilenceUsage: true,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// openStore loads configuration and opens the configured record store.
func openStore(ctx context.Context) (config.Config, *store.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, nil, err
	}
	st, err := db.OpenStore(ctx, cfg)
	if err != nil {
		return cfg, nil, err
	}
	return cfg, st, nil
}

func newPipeline(cfg config.Config, st *store.Store, logger *slog.Logger) (*ingest.Pipeline, error) {
	return ingest.NewPipeline(st, logger, ingest.Options{
		MaxRows: cfg.ImportMaxRows,
		Auditor: audit.NewLogger(st),
	})
}
