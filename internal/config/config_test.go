package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 300, cfg.Cache.TTLSecs.BorrowRate)
	assert.Equal(t, 900, cfg.Cache.TTLSecs.Volatility)
	assert.Equal(t, 3600, cfg.Cache.TTLSecs.EventRisk)
	assert.Equal(t, 1800, cfg.Cache.TTLSecs.BrokerConfig)
	assert.Equal(t, 60, cfg.Cache.TTLSecs.Calculation)

	assert.Equal(t, 3, cfg.Upstream.Retry.MaxAttempts)
	assert.Equal(t, 100, cfg.Upstream.Retry.Backoff.Base)
	assert.Equal(t, 2000, cfg.Upstream.Retry.Backoff.Max)
	assert.Equal(t, 5, cfg.Upstream.Circuit.FailureThreshold)
	assert.Equal(t, 30*time.Second, cfg.Upstream.Circuit.Cooldown())

	assert.True(t, cfg.Cache.CalculationEnabled)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "locator.yaml")
	body := []byte(`
server:
  port: 9090
cache:
  ttl_secs:
    borrow_rate: 120
upstream:
  borrow:
    base_url: http://borrow.internal
    api_key: test-key
pricing:
  global_min_rate: 0.01
audit:
  sink: postgres
`)
	require.NoError(t, os.WriteFile(path, body, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 120, cfg.Cache.TTLSecs.BorrowRate)
	// untouched keys keep their defaults
	assert.Equal(t, 900, cfg.Cache.TTLSecs.Volatility)
	assert.Equal(t, "http://borrow.internal", cfg.Upstream.Borrow.BaseURL)
	assert.Equal(t, 0.01, cfg.Pricing.GlobalMinRate)
	assert.Equal(t, "postgres", cfg.Audit.Sink)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("LOCATOR_POSTGRES_DSN", "postgres://env-wins")
	t.Setenv("LOCATOR_BORROW_API_KEY", "env-secret")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "postgres://env-wins", cfg.Postgres.DSN)
	assert.Equal(t, "env-secret", cfg.Upstream.Borrow.APIKey)
}

func TestLoad_APIKeysFromEnv(t *testing.T) {
	t.Setenv("LOCATOR_API_KEYS", "sk-a, sk-b")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, []string{"sk-a", "sk-b"}, cfg.Server.APIKeys)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config")
}

func TestValidate_Rejections(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{"bad_port", func(c *Config) { c.Server.Port = 0 }, "port"},
		{"negative_rps", func(c *Config) { c.Server.RateLimitRPS = -1 }, "rate_limit_rps"},
		{"rps_without_burst", func(c *Config) { c.Server.RateLimitRPS = 5 }, "rate_limit_burst"},
		{"empty_api_key", func(c *Config) { c.Server.APIKeys = []string{"sk-good", ""} }, "api_keys"},
		{"bad_level", func(c *Config) { c.Log.Level = "verbose" }, "log level"},
		{"empty_prefix", func(c *Config) { c.Redis.KeyPrefix = "" }, "key_prefix"},
		{"zero_ttl", func(c *Config) { c.Cache.TTLSecs.EventRisk = 0 }, "ttl_secs.event_risk"},
		{"zero_attempts", func(c *Config) { c.Upstream.Retry.MaxAttempts = 0 }, "max_attempts"},
		{"backoff_inverted", func(c *Config) { c.Upstream.Retry.Backoff.Max = 10 }, "backoff_ms"},
		{"bad_failure_rate", func(c *Config) { c.Upstream.Circuit.FailureRate = 1.5 }, "failure_rate"},
		{"zero_feed_timeout", func(c *Config) { c.Upstream.Volatility.TimeoutMS = 0 }, "timeout_ms"},
		{"negative_budget", func(c *Config) { c.Upstream.Events.DailyBudget = -1 }, "daily_budget"},
		{"negative_floor", func(c *Config) { c.Pricing.GlobalMinRate = -0.1 }, "global_min_rate"},
		{"thresholds_inverted", func(c *Config) { c.Pricing.ExtremeVolThreshold = 10 }, "extreme_vol_threshold"},
		{"bad_sink", func(c *Config) { c.Audit.Sink = "kafka" }, "audit sink"},
		{"bad_reset_hour", func(c *Config) { c.Ops.BudgetResetHour = 24 }, "budget_reset_hour"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantMsg)
		})
	}
}

func TestFeedTimeoutHelper(t *testing.T) {
	f := FeedConfig{TimeoutMS: 5000}
	assert.Equal(t, 5*time.Second, f.Timeout())
}
