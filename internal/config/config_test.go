package config

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STATUM_BACKEND", "")
	require.NoError(t, os.Unsetenv("STATUM_BACKEND"))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, BackendMemory, cfg.Backend)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "statum:", cfg.RedisPrefix)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, 4<<20, cfg.MaxFrameSize)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("STATUM_BACKEND", "postgres")
	t.Setenv("STATUM_POSTGRES_DSN", "postgres://statum@localhost/statum")
	t.Setenv("STATUM_LOG_LEVEL", "debug")
	t.Setenv("STATUM_SHUTDOWN_TIMEOUT", "250ms")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, BackendPostgres, cfg.Backend)
	assert.Equal(t, "postgres://statum@localhost/statum", cfg.PostgresDSN)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, 250*time.Millisecond, cfg.ShutdownTimeout)
}

func TestLoadFromDotEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "statum.env")
	require.NoError(t, os.WriteFile(path, []byte("STATUM_BACKEND=mongo\nSTATUM_MONGO_URI=mongodb://localhost:27017\n"), 0o600))

	// godotenv never overrides variables that are already set, so make sure
	// the test starts from a clean slate and restores it afterwards.
	for _, key := range []string{"STATUM_BACKEND", "STATUM_MONGO_URI"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, BackendMongo, cfg.Backend)
	assert.Equal(t, "mongodb://localhost:27017", cfg.MongoURI)
	assert.Equal(t, "statum", cfg.MongoDatabase)

	_, err = Load(filepath.Join(t.TempDir(), "missing.env"))
	require.Error(t, err)
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	t.Setenv("STATUM_BACKEND", "cassandra")
	_, err := Load()
	require.ErrorIs(t, err, ErrInvalidBackend)

	t.Setenv("STATUM_BACKEND", "mongo")
	t.Setenv("STATUM_MONGO_URI", "")
	_, err = Load()
	require.ErrorIs(t, err, ErrMissingSetting)

	t.Setenv("STATUM_BACKEND", "memory")
	t.Setenv("STATUM_REDIS_DB", "not-a-number")
	_, err = Load()
	require.ErrorIs(t, err, ErrParsingConfig)
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := Config{LogLevel: slog.LevelWarn, LogFormat: "json"}
	logger := cfg.Logger(&buf)

	logger.Info("hidden")
	logger.Warn("shown", slog.String("k", "v"))

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.True(t, errors.Is(Config{Backend: "x", MaxFrameSize: 1}.Validate(), ErrInvalidBackend))
}
