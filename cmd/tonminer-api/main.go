package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tonminer/internal/api"
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

	shutdownTracing, err := telemetry.Setup(ctx, "tonminer-api", cfg.OTelEndpoint)
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

	gameSvc := game.NewService(backend, catalog, logger, game.WithStrictTransactions(cfg.StrictTx))
	server := api.New(cfg, logger, gameSvc)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("tonminer api listening",
		"addr", cfg.Addr,
		"store", cfg.Store,
		"strict_tx", cfg.StrictTx,
		"characters", len(catalog.Characters()),
	)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "err", err)
		return 1
	}
	return 0
}
