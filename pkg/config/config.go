// Package config loads process configuration. The Config value is built once
// at startup from the environment (plus an optional YAML overlay) and threaded
// explicitly into components; nothing reads the environment after load.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds server configuration.
type Config struct {
	Port     string
	LogLevel string

	// DatabaseURL selects the primary store: postgres:// for PostgreSQL,
	// sqlite:// (or a bare path) for the embedded store.
	DatabaseURL string

	// APIKey is the pre-shared key expected in X-API-Key.
	APIKey string

	ArchivePath    string
	ArchiveBackend string

	CORSAllowOrigins []string

	RateLimitRPS   int
	RateLimitBurst int

	StoreTimeout   time.Duration
	ArchiveTimeout time.Duration

	Telemetry TelemetryConfig
}

// TelemetryConfig configures the optional OTLP exporters.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	Insecure     bool    `yaml:"insecure"`
	SampleRate   float64 `yaml:"sample_rate"`
}

// fileOverlay is the optional YAML file pointed to by LEDGER_CONFIG. Values
// set in the file win over environment variables.
type fileOverlay struct {
	Port             string           `yaml:"port"`
	LogLevel         string           `yaml:"log_level"`
	DatabaseURL      string           `yaml:"database_url"`
	APIKey           string           `yaml:"api_key"`
	ArchivePath      string           `yaml:"archive_path"`
	ArchiveBackend   string           `yaml:"archive_backend"`
	CORSAllowOrigins []string         `yaml:"cors_allow_origins"`
	RateLimitRPS     *int             `yaml:"rate_limit_rps"`
	RateLimitBurst   *int             `yaml:"rate_limit_burst"`
	Telemetry        *TelemetryConfig `yaml:"telemetry"`
}

// Load builds the configuration from environment variables, applying the
// LEDGER_CONFIG YAML overlay when present.
func Load() (*Config, error) {
	cfg := &Config{
		Port:           envOr("PORT", "8080"),
		LogLevel:       envOr("LOG_LEVEL", "INFO"),
		DatabaseURL:    envOr("DATABASE_URL", "postgres://ledger:ledger_secret@db:5432/ledger?sslmode=disable"),
		APIKey:         envOr("API_KEY", "dev-api-key-change-me"),
		ArchivePath:    envOr("ARCHIVE_PATH", "/archive"),
		ArchiveBackend: envOr("ARCHIVE_BACKEND", "file"),
		RateLimitRPS:   envIntOr("RATE_LIMIT_RPS", 50),
		RateLimitBurst: envIntOr("RATE_LIMIT_BURST", 100),
		StoreTimeout:   5 * time.Second,
		ArchiveTimeout: 5 * time.Second,
		Telemetry: TelemetryConfig{
			Enabled:      os.Getenv("TELEMETRY_ENABLED") == "true",
			OTLPEndpoint: envOr("OTLP_ENDPOINT", "localhost:4317"),
			Insecure:     os.Getenv("OTLP_INSECURE") == "true",
			SampleRate:   1.0,
		},
	}

	cfg.CORSAllowOrigins = splitOrigins(envOr("CORS_ALLOW_ORIGINS", "*"))

	if path := os.Getenv("LEDGER_CONFIG"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var overlay fileOverlay
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if overlay.Port != "" {
		c.Port = overlay.Port
	}
	if overlay.LogLevel != "" {
		c.LogLevel = overlay.LogLevel
	}
	if overlay.DatabaseURL != "" {
		c.DatabaseURL = overlay.DatabaseURL
	}
	if overlay.APIKey != "" {
		c.APIKey = overlay.APIKey
	}
	if overlay.ArchivePath != "" {
		c.ArchivePath = overlay.ArchivePath
	}
	if overlay.ArchiveBackend != "" {
		c.ArchiveBackend = overlay.ArchiveBackend
	}
	if len(overlay.CORSAllowOrigins) > 0 {
		c.CORSAllowOrigins = overlay.CORSAllowOrigins
	}
	if overlay.RateLimitRPS != nil {
		c.RateLimitRPS = *overlay.RateLimitRPS
	}
	if overlay.RateLimitBurst != nil {
		c.RateLimitBurst = *overlay.RateLimitBurst
	}
	if overlay.Telemetry != nil {
		c.Telemetry = *overlay.Telemetry
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func splitOrigins(raw string) []string {
	if raw == "*" {
		return []string{"*"}
	}
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}
