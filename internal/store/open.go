package store

import (
	"context"
	"fmt"
	"log/slog"

	"tonminer/internal/config"
	"tonminer/internal/db"
	"tonminer/internal/game"
	"tonminer/internal/store/filestore"
	"tonminer/internal/store/pgstore"
	"tonminer/internal/store/redisstore"
	"tonminer/internal/store/sqlitestore"
)

// Backend is what every ledger backend provides.
type Backend interface {
	game.Store
	game.Updater
	game.Journal
}

// Open builds the backend named by cfg.Store. The returned close func
// releases its connections and is never nil.
func Open(ctx context.Context, cfg config.APIConfig, logger *slog.Logger) (Backend, func(), error) {
	if logger == nil {
		logger = slog.Default()
	}
	noop := func() {}
	switch cfg.Store {
	case config.StoreFile, "":
		s, err := filestore.New(cfg.DataFile, cfg.JournalFile, logger)
		if err != nil {
			return nil, noop, err
		}
		logger.Info("using file store", "path", cfg.DataFile, "journal", cfg.JournalFile)
		return s, noop, nil
	case config.StoreSQLite:
		s, err := sqlitestore.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, noop, err
		}
		logger.Info("using sqlite store", "path", cfg.SQLitePath)
		return s, func() { _ = s.Close() }, nil
	case config.StorePostgres:
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, noop, err
		}
		if err := db.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, noop, err
		}
		logger.Info("using postgres store")
		return pgstore.New(pool), pool.Close, nil
	case config.StoreRedis:
		s, err := redisstore.Open(ctx, cfg.RedisURL)
		if err != nil {
			return nil, noop, err
		}
		logger.Info("using redis store")
		return s, func() { _ = s.Close() }, nil
	default:
		return nil, noop, fmt.Errorf("unknown store %q", cfg.Store)
	}
}
