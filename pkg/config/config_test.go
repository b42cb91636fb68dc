package config_test

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/notary/pkg/config"
	"github.com/Mindburn-Labs/notary/pkg/notary"
)

// TestLoad_Defaults verifies that Load() returns a bootable dev config
// when no environment variables are set.
func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, notary.DefaultFee, cfg.Fee)
	assert.Equal(t, config.LedgerMemory, cfg.Ledger.Kind)
	assert.Equal(t, "localhost:6379", cfg.Ledger.RedisAddr)
	assert.Equal(t, "local", cfg.Archive.Kind)
	assert.Equal(t, 24*time.Hour, cfg.IdempotencyTTL)
	assert.False(t, cfg.Telemetry.Enabled)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("NOTARY_ADDR", ":9090")
	t.Setenv("NOTARY_LOG_LEVEL", "DEBUG")
	t.Setenv("NOTARY_FEE", "5")
	t.Setenv("NOTARY_LEDGER", "postgres")
	t.Setenv("NOTARY_DATABASE_URL", "postgres://notary@db:5432/notary")
	t.Setenv("NOTARY_REDIS_DB", "3")
	t.Setenv("NOTARY_ARCHIVE", "s3")
	t.Setenv("NOTARY_ARCHIVE_BUCKET", "proofs")
	t.Setenv("NOTARY_OTEL_ENABLED", "true")
	t.Setenv("NOTARY_OTEL_SAMPLE_RATE", "0.25")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, slog.LevelDebug, cfg.Level())
	assert.Equal(t, uint64(5), cfg.Fee)
	assert.Equal(t, "postgres://notary@db:5432/notary", cfg.Ledger.DatabaseURL)
	assert.Equal(t, 3, cfg.Ledger.RedisDB)
	assert.Equal(t, "proofs", cfg.Archive.Bucket)
	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, 0.25, cfg.Telemetry.SampleRate)
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]map[string]string{
		"unknown ledger":       {"NOTARY_LEDGER": "etcd"},
		"postgres without url": {"NOTARY_LEDGER": "postgres"},
		"bad log format":       {"NOTARY_LOG_FORMAT": "xml"},
		"bad fee":              {"NOTARY_FEE": "-1"},
		"negative rate":        {"NOTARY_RATE_LIMIT_RPS": "-2"},
	}
	for name, vars := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range vars {
				t.Setenv(k, v)
			}
			_, err := config.Load()
			assert.Error(t, err)
		})
	}
}

func TestService(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	_, err = cfg.Service()
	assert.Error(t, err, "authority is required")

	cfg.Authority = "zz"
	_, err = cfg.Service()
	assert.Error(t, err)

	cfg.Authority = strings.Repeat("01", notary.KeySize)
	sc, err := cfg.Service()
	require.NoError(t, err)
	assert.Equal(t, byte(1), sc.Authority[0])
	assert.Equal(t, notary.DefaultFee, sc.Fee)
}

func TestNewLogger(t *testing.T) {
	cfg := &config.Config{LogLevel: "warn", LogFormat: "text"}
	var buf bytes.Buffer
	logger := cfg.NewLogger(&buf)
	logger.Info("hidden")
	logger.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "msg=shown")

	cfg = &config.Config{LogLevel: "nonsense", LogFormat: "json"}
	buf.Reset()
	cfg.NewLogger(&buf).Info("hello")
	assert.Contains(t, buf.String(), `"msg":"hello"`)
}
