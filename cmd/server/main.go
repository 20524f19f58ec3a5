package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fieldops-platform/apps/api/internal/app"
	"github.com/fieldops-platform/apps/api/internal/audit"
	"github.com/fieldops-platform/apps/api/internal/config"
	"github.com/fieldops-platform/apps/api/internal/db"
	"github.com/fieldops-platform/apps/api/internal/handlers"
	"github.com/fieldops-platform/apps/api/internal/inbox"
	"github.com/fieldops-platform/apps/api/internal/ingest"
	"github.com/fieldops-platform/apps/api/internal/report"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := db.OpenStore(ctx, cfg)
	if err != nil {
		logger.Error("open store", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}
	defer st.Close()

	auditLogger := audit.NewLogger(st)
	pipeline, err := ingest.NewPipeline(st, logger, ingest.Options{
		MaxRows: cfg.ImportMaxRows,
		Auditor: auditLogger,
	})
	if err != nil {
		logger.Error("build pipeline", "error", err)
		os.Exit(1)
	}
	reports := report.NewAggregator(st, cfg.RegionVisibility)

	server := handlers.NewServer(cfg, st, pipeline, reports, auditLogger, logger)
	router, err := app.NewRouter(cfg, server, logger)
	if err != nil {
		logger.Error("build router", "error", err)
		os.Exit(1)
	}

	var sweeper *inbox.Sweeper
	if cfg.InboxDir != "" {
		sweeper = inbox.NewSweeper(cfg.InboxDir, pipeline, logger)
		if err := sweeper.Start(cfg.InboxSchedule); err != nil {
			logger.Error("start inbox", "error", err)
			os.Exit(1)
		}
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}

	go func() {
		logger.Info("api_started", "addr", cfg.Addr, "store", st.Dialect())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("api server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if sweeper != nil {
		sweeper.Stop(shutdownCtx)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}
