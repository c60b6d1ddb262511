package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "LOG_LEVEL", "DATABASE_URL", "API_KEY",
		"ARCHIVE_PATH", "ARCHIVE_BACKEND", "CORS_ALLOW_ORIGINS",
		"RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
		"TELEMETRY_ENABLED", "OTLP_ENDPOINT", "OTLP_INSECURE",
		"LEDGER_CONFIG",
	} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, "postgres://ledger:ledger_secret@db:5432/ledger?sslmode=disable", cfg.DatabaseURL)
	assert.Equal(t, "dev-api-key-change-me", cfg.APIKey)
	assert.Equal(t, "/archive", cfg.ArchivePath)
	assert.Equal(t, "file", cfg.ArchiveBackend)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowOrigins)
	assert.Equal(t, 50, cfg.RateLimitRPS)
	assert.Equal(t, 100, cfg.RateLimitBurst)
	assert.Equal(t, 5*time.Second, cfg.StoreTimeout)
	assert.False(t, cfg.Telemetry.Enabled)
}

func TestLoadFromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("DATABASE_URL", "sqlite:///tmp/ledger.db")
	t.Setenv("API_KEY", "prod-key")
	t.Setenv("CORS_ALLOW_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("RATE_LIMIT_RPS", "10")
	t.Setenv("TELEMETRY_ENABLED", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "sqlite:///tmp/ledger.db", cfg.DatabaseURL)
	assert.Equal(t, "prod-key", cfg.APIKey)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowOrigins)
	assert.Equal(t, 10, cfg.RateLimitRPS)
	assert.True(t, cfg.Telemetry.Enabled)
}

func TestLoadInvalidIntFallsBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("RATE_LIMIT_RPS", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.RateLimitRPS)
}

func TestLoadFileOverlayWinsOverEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("API_KEY", "env-key")

	path := filepath.Join(t.TempDir(), "ledger.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: "7070"
rate_limit_rps: 5
telemetry:
  enabled: true
  otlp_endpoint: collector:4317
  sample_rate: 0.25
`), 0o644))
	t.Setenv("LEDGER_CONFIG", path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "7070", cfg.Port, "file value wins")
	assert.Equal(t, "env-key", cfg.APIKey, "unset file fields keep env values")
	assert.Equal(t, 5, cfg.RateLimitRPS)
	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "collector:4317", cfg.Telemetry.OTLPEndpoint)
	assert.Equal(t, 0.25, cfg.Telemetry.SampleRate)
}

func TestLoadMissingOverlayFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("LEDGER_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config file")
}

func TestSplitOrigins(t *testing.T) {
	assert.Equal(t, []string{"*"}, splitOrigins("*"))
	assert.Equal(t, []string{"https://a.example"}, splitOrigins("https://a.example"))
	assert.Equal(t, []string{"https://a.example", "https://b.example"},
		splitOrigins(" https://a.example ,, https://b.example "))
}
