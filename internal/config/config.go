package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	StoreFile     = "file"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

type APIConfig struct {
	Addr            string        `env:"TONMINER_API_ADDR" envDefault:":8080"`
	Store           string        `env:"TONMINER_STORE" envDefault:"file"`
	DataFile        string        `env:"TONMINER_DATA_FILE" envDefault:"data/players.json"`
	JournalFile     string        `env:"TONMINER_JOURNAL_FILE" envDefault:"data/journal.jsonl"`
	SQLitePath      string        `env:"TONMINER_SQLITE_PATH" envDefault:"data/tonminer.db"`
	DatabaseURL     string        `env:"DATABASE_URL"`
	RedisURL        string        `env:"REDIS_URL"`
	CatalogFile     string        `env:"TONMINER_CATALOG_FILE"`
	StrictTx        bool          `env:"TONMINER_STRICT_TX" envDefault:"false"`
	AllowedOrigins  []string      `env:"TONMINER_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
	RateLimitRPS    float64       `env:"TONMINER_RATE_LIMIT_RPS" envDefault:"20"`
	RateLimitBurst  int           `env:"TONMINER_RATE_LIMIT_BURST" envDefault:"40"`
	SettleEvery     time.Duration `env:"TONMINER_SETTLE_EVERY" envDefault:"10m"`
	WorkerRunOnce   bool          `env:"TONMINER_WORKER_RUN_ONCE" envDefault:"false"`
	LogLevel        string        `env:"TONMINER_LOG_LEVEL" envDefault:"info"`
	OTelEndpoint    string        `env:"TONMINER_OTEL_ENDPOINT"`
	ShutdownTimeout time.Duration `env:"TONMINER_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

type CLIConfig struct {
	APIBaseURL string
}

// LoadAPIFromEnv is shared by the API server and the settle worker. PORT,
// when set by the host platform, overrides TONMINER_API_ADDR.
func LoadAPIFromEnv() (APIConfig, error) {
	var cfg APIConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		if !strings.HasPrefix(port, ":") {
			port = ":" + port
		}
		cfg.Addr = port
	}

	cfg.Store = strings.ToLower(strings.TrimSpace(cfg.Store))
	cfg.DatabaseURL = strings.TrimSpace(cfg.DatabaseURL)
	cfg.RedisURL = strings.TrimSpace(cfg.RedisURL)
	cfg.CatalogFile = strings.TrimSpace(cfg.CatalogFile)
	cfg.AllowedOrigins = trimAll(cfg.AllowedOrigins)

	switch cfg.Store {
	case StoreFile:
		if strings.TrimSpace(cfg.DataFile) == "" {
			return cfg, fmt.Errorf("TONMINER_DATA_FILE is required for the file store")
		}
	case StoreSQLite:
		if strings.TrimSpace(cfg.SQLitePath) == "" {
			return cfg, fmt.Errorf("TONMINER_SQLITE_PATH is required for the sqlite store")
		}
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			return cfg, fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	case StoreRedis:
		if cfg.RedisURL == "" {
			return cfg, fmt.Errorf("REDIS_URL is required for the redis store")
		}
	default:
		return cfg, fmt.Errorf("unknown TONMINER_STORE %q", cfg.Store)
	}
	if cfg.SettleEvery <= 0 {
		return cfg, fmt.Errorf("TONMINER_SETTLE_EVERY must be positive")
	}
	return cfg, nil
}

func LoadCLIFromEnv() CLIConfig {
	return CLIConfig{
		APIBaseURL: strings.TrimRight(envDefault("TMCTL_API_BASE_URL", "http://localhost:8080"), "/"),
	}
}

// ParseLogLevel maps debug/info/warn/error to a slog level; anything else is info.
func ParseLogLevel(v string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func envDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
