// Package config loads notary settings from NOTARY_* environment variables.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/Mindburn-Labs/notary/pkg/notary"
)

// Ledger backends.
const (
	LedgerMemory   = "memory"
	LedgerSQLite   = "sqlite"
	LedgerPostgres = "postgres"
	LedgerRedis    = "redis"
)

// Config holds server configuration.
type Config struct {
	Addr            string        `env:"NOTARY_ADDR"             envDefault:":8080"`
	LogLevel        string        `env:"NOTARY_LOG_LEVEL"        envDefault:"INFO"`
	LogFormat       string        `env:"NOTARY_LOG_FORMAT"       envDefault:"json"`
	Authority       string        `env:"NOTARY_AUTHORITY"`
	Fee             uint64        `env:"NOTARY_FEE"              envDefault:"1000000000"`
	GenesisFile     string        `env:"NOTARY_GENESIS_FILE"`
	AdminJWTSecret  string        `env:"NOTARY_ADMIN_JWT_SECRET"`
	RateLimitRPS    float64       `env:"NOTARY_RATE_LIMIT_RPS"   envDefault:"20"`
	RateLimitBurst  int           `env:"NOTARY_RATE_LIMIT_BURST" envDefault:"40"`
	IdempotencyTTL  time.Duration `env:"NOTARY_IDEMPOTENCY_TTL"  envDefault:"24h"`
	ShutdownTimeout time.Duration `env:"NOTARY_SHUTDOWN_TIMEOUT" envDefault:"15s"`

	Ledger    LedgerConfig
	Archive   ArchiveConfig
	Telemetry TelemetryConfig
}

// LedgerConfig selects and locates the ledger runtime.
type LedgerConfig struct {
	Kind          string `env:"NOTARY_LEDGER"         envDefault:"memory"`
	DatabaseURL   string `env:"NOTARY_DATABASE_URL"`
	SQLitePath    string `env:"NOTARY_SQLITE_PATH"    envDefault:"notary.db"`
	RedisAddr     string `env:"NOTARY_REDIS_ADDR"     envDefault:"localhost:6379"`
	RedisPassword string `env:"NOTARY_REDIS_PASSWORD"`
	RedisDB       int    `env:"NOTARY_REDIS_DB"       envDefault:"0"`
	RedisPrefix   string `env:"NOTARY_REDIS_PREFIX"   envDefault:"notary"`
}

// ArchiveConfig locates the record export target.
type ArchiveConfig struct {
	Kind     string `env:"NOTARY_ARCHIVE"          envDefault:"local"`
	Dir      string `env:"NOTARY_ARCHIVE_DIR"      envDefault:"archive"`
	Bucket   string `env:"NOTARY_ARCHIVE_BUCKET"`
	Region   string `env:"NOTARY_ARCHIVE_REGION"`
	Endpoint string `env:"NOTARY_ARCHIVE_ENDPOINT"`
	Prefix   string `env:"NOTARY_ARCHIVE_PREFIX"`
}

// TelemetryConfig controls OpenTelemetry export.
type TelemetryConfig struct {
	Enabled     bool    `env:"NOTARY_OTEL_ENABLED"`
	Endpoint    string  `env:"NOTARY_OTEL_ENDPOINT"     envDefault:"localhost:4317"`
	Insecure    bool    `env:"NOTARY_OTEL_INSECURE"`
	CAFile      string  `env:"NOTARY_OTEL_CA_FILE"`
	SampleRate  float64 `env:"NOTARY_OTEL_SAMPLE_RATE"  envDefault:"1.0"`
	Environment string  `env:"NOTARY_OTEL_ENVIRONMENT"  envDefault:"development"`
}

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that do not depend on which command runs.
func (c *Config) Validate() error {
	switch c.Ledger.Kind {
	case LedgerMemory, LedgerSQLite, LedgerRedis:
	case LedgerPostgres:
		if c.Ledger.DatabaseURL == "" {
			return fmt.Errorf("config: NOTARY_DATABASE_URL is required for the postgres ledger")
		}
	default:
		return fmt.Errorf("config: unknown ledger %q", c.Ledger.Kind)
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		return fmt.Errorf("config: unknown log format %q", c.LogFormat)
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("config: rate limit must not be negative")
	}
	return nil
}

// Service returns the core service configuration. The authority is required.
func (c *Config) Service() (notary.Config, error) {
	if c.Authority == "" {
		return notary.Config{}, fmt.Errorf("config: NOTARY_AUTHORITY is required")
	}
	id, err := notary.ParseIdentity(c.Authority)
	if err != nil {
		return notary.Config{}, fmt.Errorf("config: NOTARY_AUTHORITY: %w", err)
	}
	return notary.Config{Authority: id, Fee: c.Fee}, nil
}

// Level maps LogLevel onto slog. Unknown names mean INFO.
func (c *Config) Level() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// NewLogger builds the process logger described by LogFormat and LogLevel.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.Level()}
	if strings.EqualFold(c.LogFormat, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
