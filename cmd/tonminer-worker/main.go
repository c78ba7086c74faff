package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tonminer/internal/config"
	"tonminer/internal/game"
	"tonminer/internal/store"
	"tonminer/internal/telemetry"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadAPIFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		return 1
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: config.ParseLogLevel(cfg.LogLevel)}))

	shutdownTracing, err := telemetry.Setup(ctx, "tonminer-worker", cfg.OTelEndpoint)
	if err != nil {
		logger.Error("tracing setup failed", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(flushCtx)
	}()

	catalog, err := game.LoadCatalog(cfg.CatalogFile)
	if err != nil {
		logger.Error("catalog load failed", "path", cfg.CatalogFile, "err", err)
		return 1
	}

	backend, closeStore, err := store.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("store open failed", "store", cfg.Store, "err", err)
		return 1
	}
	defer closeStore()

	svc := game.NewService(backend, catalog, logger, game.WithStrictTransactions(cfg.StrictTx))

	if cfg.WorkerRunOnce {
		if err := settle(ctx, svc, logger); err != nil {
			return 1
		}
		logger.Info("worker run-once completed")
		return 0
	}

	ticker := time.NewTicker(cfg.SettleEvery)
	defer ticker.Stop()

	logger.Info("worker started", "settle_every", cfg.SettleEvery.String(), "store", cfg.Store)
	for {
		select {
		case <-ctx.Done():
			logger.Info("worker shutdown")
			return 0
		case <-ticker.C:
			_ = settle(ctx, svc, logger)
		}
	}
}

func settle(ctx context.Context, svc *game.Service, logger *slog.Logger) error {
	start := time.Now()
	n, err := svc.SettleAll(ctx)
	if err != nil {
		logger.Error("settle sweep failed", "settled", n, "err", err)
		return err
	}
	logger.Info("settle sweep complete", "settled", n, "duration_ms", time.Since(start).Milliseconds())
	return nil
}
