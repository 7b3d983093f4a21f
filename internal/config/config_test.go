package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"PORT", "STORE_BACKEND", "DB_PATH", "REDIS_ADDRESS", "REDIS_PASSWORD", "REDIS_DB",
		"DRAFT_TTL", "SWEEP_INTERVAL", "RATES_FILE", "LOG_LEVEL", "LOG_FORMAT",
		"OTEL_EXPORTER_OTLP_ENDPOINT", "ANTHROPIC_API_KEY", "CHROME_PATH",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8090, cfg.Port)
	assert.Equal(t, ":8090", cfg.Addr())
	assert.Equal(t, BackendMemory, cfg.StoreBackend)
	assert.Equal(t, 4*time.Hour, cfg.DraftTTL)
	assert.Equal(t, 15*time.Minute, cfg.SweepInterval)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9000")
	t.Setenv("STORE_BACKEND", "SQLite")
	t.Setenv("DB_PATH", "/tmp/drafts.db")
	t.Setenv("DRAFT_TTL", "90m")
	t.Setenv("SWEEP_INTERVAL", "30")
	t.Setenv("LOG_FORMAT", "text")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, BackendSQLite, cfg.StoreBackend)
	assert.Equal(t, 90*time.Minute, cfg.DraftTTL)
	assert.Equal(t, 30*time.Second, cfg.SweepInterval)
	assert.Equal(t, "text", cfg.LogFormat)
}

func TestLoadRejectsIncompleteBackends(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORE_BACKEND", "sqlite")
	_, err := Load()
	require.Error(t, err)

	clearEnv(t)
	t.Setenv("STORE_BACKEND", "redis")
	_, err = Load()
	require.Error(t, err)

	clearEnv(t)
	t.Setenv("STORE_BACKEND", "postgres")
	_, err = Load()
	require.Error(t, err)

	clearEnv(t)
	t.Setenv("LOG_FORMAT", "xml")
	_, err = Load()
	require.Error(t, err)
}

func TestGetEnvAsDurationFallsBack(t *testing.T) {
	t.Setenv("DRAFT_TTL", "soon")
	assert.Equal(t, time.Hour, getEnvAsDuration("DRAFT_TTL", time.Hour))
}
