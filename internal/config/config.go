// Package config loads the statumd server configuration from the
// environment, optionally seeded from .env files.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Supported storage backends.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMongo    = "mongo"
)

var (
	ErrParsingConfig  = errors.New("config: failed to parse environment")
	ErrInvalidBackend = errors.New("config: unknown backend")
	ErrMissingSetting = errors.New("config: required setting is missing")
)

// Config is the statumd configuration. Every field maps to a STATUM_*
// environment variable.
type Config struct {
	Backend string `env:"BACKEND" envDefault:"memory"`
	Addr    string `env:"ADDR" envDefault:":8080"`

	// MetricsAddr serves /metrics on a separate listener. Empty mounts it on
	// Addr next to the engine endpoints.
	MetricsAddr string `env:"METRICS_ADDR"`

	SQLitePath    string `env:"SQLITE_PATH" envDefault:"statum.db"`
	PostgresDSN   string `env:"POSTGRES_DSN"`
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	RedisPrefix   string `env:"REDIS_PREFIX" envDefault:"statum:"`
	MongoURI      string `env:"MONGO_URI"`
	MongoDatabase string `env:"MONGO_DATABASE" envDefault:"statum"`

	LogLevel  slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
	LogFormat string     `env:"LOG_FORMAT" envDefault:"text"`

	MaxFrameSize    int           `env:"MAX_FRAME_SIZE" envDefault:"4194304"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Load reads the given .env files, or ./.env when none are named, and parses
// the environment into a validated Config. A missing default .env file is
// not an error; a missing named file is.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("config: load .env: %w", err)
		}
	} else if err := godotenv.Load(files...); err != nil {
		return Config{}, fmt.Errorf("config: load %s: %w", strings.Join(files, ", "), err)
	}

	cfg, err := env.ParseAsWithOptions[Config](env.Options{Prefix: "STATUM_"})
	if err != nil {
		return Config{}, errors.Join(ErrParsingConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the settings the selected backend needs are present.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendMemory, BackendSQLite, BackendRedis:
	case BackendPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("%w: STATUM_POSTGRES_DSN", ErrMissingSetting)
		}
	case BackendMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("%w: STATUM_MONGO_URI", ErrMissingSetting)
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidBackend, c.Backend)
	}
	if c.MaxFrameSize <= 0 {
		return fmt.Errorf("config: STATUM_MAX_FRAME_SIZE must be positive, got %d", c.MaxFrameSize)
	}
	return nil
}

// Logger builds the process logger described by LogLevel and LogFormat.
func (c Config) Logger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.LogLevel}
	if strings.EqualFold(c.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
