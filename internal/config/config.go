package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete locator service configuration
type Config struct {
	Server   ServerConfig    `yaml:"server"`
	Log      LogConfig       `yaml:"log"`
	Redis    RedisConfig     `yaml:"redis"`
	Postgres PostgresConfig  `yaml:"postgres"`
	Cache    CacheConfig     `yaml:"cache"`
	Upstream UpstreamsConfig `yaml:"upstream"`
	Pricing  PricingConfig   `yaml:"pricing"`
	Audit    AuditConfig     `yaml:"audit"`
	Ops      OpsConfig       `yaml:"ops"`
}

// ServerConfig controls the HTTP gateway
type ServerConfig struct {
	Host              string   `yaml:"host"`
	Port              int      `yaml:"port"`
	ReadTimeoutSecs   int      `yaml:"read_timeout_secs"`
	WriteTimeoutSecs  int      `yaml:"write_timeout_secs"`
	RequestDeadlineMS int      `yaml:"request_deadline_ms"` // end-to-end budget per request
	ShutdownGraceSecs int      `yaml:"shutdown_grace_secs"`
	APIKeys           []string `yaml:"api_keys"`       // empty list leaves the API open
	RateLimitRPS      int      `yaml:"rate_limit_rps"` // 0 disables inbound shedding
	RateLimitBurst    int      `yaml:"rate_limit_burst"`
}

// Addr returns the host:port listen address
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RequestDeadline returns the per-request time budget
func (s ServerConfig) RequestDeadline() time.Duration {
	return time.Duration(s.RequestDeadlineMS) * time.Millisecond
}

// ReadTimeout returns the socket read timeout
func (s ServerConfig) ReadTimeout() time.Duration {
	return time.Duration(s.ReadTimeoutSecs) * time.Second
}

// WriteTimeout returns the socket write timeout
func (s ServerConfig) WriteTimeout() time.Duration {
	return time.Duration(s.WriteTimeoutSecs) * time.Second
}

// ShutdownGrace returns how long draining may take before a hard stop
func (s ServerConfig) ShutdownGrace() time.Duration {
	return time.Duration(s.ShutdownGraceSecs) * time.Second
}

// LogConfig controls zerolog output
type LogConfig struct {
	Level  string `yaml:"level"`  // trace, debug, info, warn, error
	Pretty bool   `yaml:"pretty"` // console writer instead of JSON
}

// RedisConfig controls the cache connection
type RedisConfig struct {
	Addr          string `yaml:"addr"`
	Password      string `yaml:"password"`
	DB            int    `yaml:"db"`
	KeyPrefix     string `yaml:"key_prefix"` // process namespace, e.g. "locator"
	PoolSize      int    `yaml:"pool_size"`
	DialTimeoutMS int    `yaml:"dial_timeout_ms"`
	OpTimeoutMS   int    `yaml:"op_timeout_ms"` // read/write timeout per command
}

// PostgresConfig controls the reference-data database
type PostgresConfig struct {
	DSN                 string `yaml:"dsn"`
	MaxOpenConns        int    `yaml:"max_open_conns"`
	MaxIdleConns        int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMins int    `yaml:"conn_max_lifetime_mins"`
	QueryTimeoutSecs    int    `yaml:"query_timeout_secs"`
}

// QueryTimeout returns the per-query time budget
func (p PostgresConfig) QueryTimeout() time.Duration {
	return time.Duration(p.QueryTimeoutSecs) * time.Second
}

// CacheConfig controls caching behaviour and TTL tiers
type CacheConfig struct {
	Enabled            bool          `yaml:"enabled"`
	CalculationEnabled bool          `yaml:"calculation_enabled"` // cache full fee calculations
	TTLSecs            TTLSecsConfig `yaml:"ttl_secs"`
}

// TTLSecsConfig sets the per-prefix cache TTLs, in seconds
type TTLSecsConfig struct {
	BorrowRate       int `yaml:"borrow_rate"`       // rates drift on minute scale
	Volatility       int `yaml:"volatility"`        // slower moving
	MarketVolatility int `yaml:"market_volatility"` // market-wide proxy
	EventRisk        int `yaml:"event_risk"`        // calendar driven
	Stock            int `yaml:"stock"`             // admin-changed only
	BrokerConfig     int `yaml:"broker_config"`     // admin-changed only
	Calculation      int `yaml:"calculation"`       // burst dedup
}

// UpstreamsConfig controls the three external data feeds and the
// shared outbound HTTP behaviour
type UpstreamsConfig struct {
	Borrow        FeedConfig    `yaml:"borrow"`
	Volatility    FeedConfig    `yaml:"volatility"`
	Events        FeedConfig    `yaml:"events"`
	Retry         RetryConfig   `yaml:"retry"`
	Circuit       CircuitConfig `yaml:"circuit"`
	MaxConcurrent int           `yaml:"max_concurrent"` // outbound in-flight cap
	UserAgent     string        `yaml:"user_agent"`
}

// FeedConfig configures a single upstream feed
type FeedConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKey      string `yaml:"api_key"`
	TimeoutMS   int    `yaml:"timeout_ms"`   // per-attempt timeout
	RPS         int    `yaml:"rps"`          // request rate toward the feed
	Burst       int    `yaml:"burst"`        // burst capacity
	DailyBudget int    `yaml:"daily_budget"` // max calls per UTC day, 0 = unlimited
}

// Timeout returns the per-attempt timeout for the feed
func (f FeedConfig) Timeout() time.Duration {
	return time.Duration(f.TimeoutMS) * time.Millisecond
}

// RetryConfig configures outbound retry behaviour
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"` // total tries, not re-tries
	Backoff     BackoffConfig `yaml:"backoff_ms"`
}

// BackoffConfig represents exponential backoff configuration
type BackoffConfig struct {
	Base   int  `yaml:"base"`   // base backoff in milliseconds
	Max    int  `yaml:"max"`    // maximum backoff in milliseconds
	Jitter bool `yaml:"jitter"` // randomise to avoid thundering herd
}

// CircuitConfig configures the per-endpoint circuit breakers
type CircuitConfig struct {
	FailureThreshold int     `yaml:"failure_threshold"` // consecutive failures to open
	FailureRate      float64 `yaml:"failure_rate"`      // or this failure ratio...
	MinRequests      int     `yaml:"min_requests"`      // ...over at least this many calls
	WindowSecs       int     `yaml:"window_secs"`       // closed-state counting window
	CooldownSecs     int     `yaml:"cooldown_secs"`     // open state duration before probe
}

// Cooldown returns the open-state duration
func (c CircuitConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownSecs) * time.Second
}

// Window returns the closed-state counting window
func (c CircuitConfig) Window() time.Duration {
	return time.Duration(c.WindowSecs) * time.Second
}

// PricingConfig holds the borrow-rate formula knobs. Values are plain YAML
// numbers here; the rate resolver converts them to exact decimals once at
// construction.
type PricingConfig struct {
	GlobalMinRate       float64 `yaml:"global_min_rate"`       // deployment-wide rate floor
	DefaultVolatility   float64 `yaml:"default_volatility"`    // used when every volatility source fails
	VolFactor           float64 `yaml:"vol_factor"`            // vol index to adjustment multiplier
	HighVolThreshold    float64 `yaml:"high_vol_threshold"`    // first bump threshold
	HighVolBump         float64 `yaml:"high_vol_bump"`         // added at high threshold
	ExtremeVolThreshold float64 `yaml:"extreme_vol_threshold"` // second bump threshold
	ExtremeVolBump      float64 `yaml:"extreme_vol_bump"`      // added on top at extreme threshold
	EventFactor         float64 `yaml:"event_factor"`          // per risk-decile rate adjustment
}

// AuditConfig controls the async audit trail
type AuditConfig struct {
	Sink      string `yaml:"sink"` // log | postgres
	QueueSize int    `yaml:"queue_size"`
}

// OpsConfig controls background operational jobs
type OpsConfig struct {
	BudgetResetHour   int `yaml:"budget_reset_hour"` // UTC hour for daily budget reset
	ProbeIntervalSecs int `yaml:"probe_interval_secs"`
}

// ProbeInterval returns the upstream health-probe cadence
func (o OpsConfig) ProbeInterval() time.Duration {
	return time.Duration(o.ProbeIntervalSecs) * time.Second
}

// Default returns the configuration used when keys are absent from the file
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              8080,
			ReadTimeoutSecs:   15,
			WriteTimeoutSecs:  30,
			RequestDeadlineMS: 10000,
			ShutdownGraceSecs: 20,
		},
		Log: LogConfig{Level: "info"},
		Redis: RedisConfig{
			Addr:          "localhost:6379",
			KeyPrefix:     "locator",
			PoolSize:      10,
			DialTimeoutMS: 2000,
			OpTimeoutMS:   500,
		},
		Postgres: PostgresConfig{
			MaxOpenConns:        10,
			MaxIdleConns:        5,
			ConnMaxLifetimeMins: 30,
			QueryTimeoutSecs:    5,
		},
		Cache: CacheConfig{
			Enabled:            true,
			CalculationEnabled: true,
			TTLSecs: TTLSecsConfig{
				BorrowRate:       300,
				Volatility:       900,
				MarketVolatility: 900,
				EventRisk:        3600,
				Stock:            1800,
				BrokerConfig:     1800,
				Calculation:      60,
			},
		},
		Upstream: UpstreamsConfig{
			Borrow:     FeedConfig{TimeoutMS: 5000, RPS: 20, Burst: 40},
			Volatility: FeedConfig{TimeoutMS: 5000, RPS: 20, Burst: 40},
			Events:     FeedConfig{TimeoutMS: 5000, RPS: 10, Burst: 20},
			Retry: RetryConfig{
				MaxAttempts: 3,
				Backoff:     BackoffConfig{Base: 100, Max: 2000, Jitter: true},
			},
			Circuit: CircuitConfig{
				FailureThreshold: 5,
				FailureRate:      0.6,
				MinRequests:      10,
				WindowSecs:       60,
				CooldownSecs:     30,
			},
			MaxConcurrent: 32,
			UserAgent:     "locator/1.0",
		},
		Pricing: PricingConfig{
			GlobalMinRate:       0.0025,
			DefaultVolatility:   20.0,
			VolFactor:           0.01,
			HighVolThreshold:    30.0,
			HighVolBump:         0.05,
			ExtremeVolThreshold: 40.0,
			ExtremeVolBump:      0.05,
			EventFactor:         0.05,
		},
		Audit: AuditConfig{Sink: "log", QueueSize: 1024},
		Ops:   OpsConfig{BudgetResetHour: 0, ProbeIntervalSecs: 30},
	}
}

// Load reads a YAML config file over the defaults, applies environment
// overrides, and validates the result. An empty path returns defaults plus
// environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// applyEnv overrides the secret-bearing and deploy-specific fields from the
// environment so they can stay out of checked-in YAML.
func (c *Config) applyEnv() {
	setString(&c.Postgres.DSN, "LOCATOR_POSTGRES_DSN")
	setString(&c.Redis.Addr, "LOCATOR_REDIS_ADDR")
	setString(&c.Redis.Password, "LOCATOR_REDIS_PASSWORD")
	setStringList(&c.Server.APIKeys, "LOCATOR_API_KEYS")
	setString(&c.Upstream.Borrow.BaseURL, "LOCATOR_BORROW_URL")
	setString(&c.Upstream.Borrow.APIKey, "LOCATOR_BORROW_API_KEY")
	setString(&c.Upstream.Volatility.BaseURL, "LOCATOR_VOLATILITY_URL")
	setString(&c.Upstream.Volatility.APIKey, "LOCATOR_VOLATILITY_API_KEY")
	setString(&c.Upstream.Events.BaseURL, "LOCATOR_EVENTS_URL")
	setString(&c.Upstream.Events.APIKey, "LOCATOR_EVENTS_API_KEY")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// setStringList reads a comma-separated env value into a slice field
func setStringList(dst *[]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	parts := strings.Split(v, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	*dst = parts
}

// Validate ensures the configuration is usable before anything starts
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be 1-65535, got %d", c.Server.Port)
	}
	if c.Server.RequestDeadlineMS <= 0 {
		return fmt.Errorf("server request_deadline_ms must be positive, got %d", c.Server.RequestDeadlineMS)
	}
	if c.Server.RateLimitRPS < 0 {
		return fmt.Errorf("server rate_limit_rps cannot be negative, got %d", c.Server.RateLimitRPS)
	}
	if c.Server.RateLimitRPS > 0 && c.Server.RateLimitBurst < 1 {
		return fmt.Errorf("server rate_limit_burst must be >= 1 when rate_limit_rps is set, got %d", c.Server.RateLimitBurst)
	}
	for _, key := range c.Server.APIKeys {
		if key == "" {
			return fmt.Errorf("server api_keys cannot contain empty entries")
		}
	}

	switch c.Log.Level {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log level %q is not one of trace|debug|info|warn|error", c.Log.Level)
	}

	if c.Redis.KeyPrefix == "" {
		return fmt.Errorf("redis key_prefix cannot be empty")
	}

	ttls := map[string]int{
		"borrow_rate":       c.Cache.TTLSecs.BorrowRate,
		"volatility":        c.Cache.TTLSecs.Volatility,
		"market_volatility": c.Cache.TTLSecs.MarketVolatility,
		"event_risk":        c.Cache.TTLSecs.EventRisk,
		"stock":             c.Cache.TTLSecs.Stock,
		"broker_config":     c.Cache.TTLSecs.BrokerConfig,
		"calculation":       c.Cache.TTLSecs.Calculation,
	}
	for name, ttl := range ttls {
		if ttl <= 0 {
			return fmt.Errorf("cache ttl_secs.%s must be positive, got %d", name, ttl)
		}
	}

	if c.Upstream.Retry.MaxAttempts < 1 {
		return fmt.Errorf("upstream retry max_attempts must be >= 1, got %d", c.Upstream.Retry.MaxAttempts)
	}
	if c.Upstream.Retry.Backoff.Base <= 0 || c.Upstream.Retry.Backoff.Max < c.Upstream.Retry.Backoff.Base {
		return fmt.Errorf("upstream backoff_ms base/max invalid: base=%d max=%d",
			c.Upstream.Retry.Backoff.Base, c.Upstream.Retry.Backoff.Max)
	}
	if c.Upstream.Circuit.FailureThreshold < 1 {
		return fmt.Errorf("circuit failure_threshold must be >= 1, got %d", c.Upstream.Circuit.FailureThreshold)
	}
	if c.Upstream.Circuit.FailureRate <= 0 || c.Upstream.Circuit.FailureRate > 1 {
		return fmt.Errorf("circuit failure_rate must be in (0,1], got %f", c.Upstream.Circuit.FailureRate)
	}
	if c.Upstream.Circuit.CooldownSecs <= 0 {
		return fmt.Errorf("circuit cooldown_secs must be positive, got %d", c.Upstream.Circuit.CooldownSecs)
	}
	if c.Upstream.MaxConcurrent <= 0 {
		return fmt.Errorf("upstream max_concurrent must be positive, got %d", c.Upstream.MaxConcurrent)
	}
	for name, feed := range map[string]FeedConfig{
		"borrow": c.Upstream.Borrow, "volatility": c.Upstream.Volatility, "events": c.Upstream.Events,
	} {
		if feed.TimeoutMS <= 0 {
			return fmt.Errorf("upstream %s timeout_ms must be positive, got %d", name, feed.TimeoutMS)
		}
		if feed.RPS <= 0 || feed.Burst <= 0 {
			return fmt.Errorf("upstream %s rps/burst must be positive, got rps=%d burst=%d", name, feed.RPS, feed.Burst)
		}
		if feed.DailyBudget < 0 {
			return fmt.Errorf("upstream %s daily_budget cannot be negative, got %d", name, feed.DailyBudget)
		}
	}

	if c.Pricing.GlobalMinRate < 0 {
		return fmt.Errorf("pricing global_min_rate cannot be negative, got %f", c.Pricing.GlobalMinRate)
	}
	if c.Pricing.DefaultVolatility < 0 {
		return fmt.Errorf("pricing default_volatility cannot be negative, got %f", c.Pricing.DefaultVolatility)
	}
	if c.Pricing.VolFactor < 0 || c.Pricing.EventFactor < 0 {
		return fmt.Errorf("pricing vol_factor/event_factor cannot be negative")
	}
	if c.Pricing.ExtremeVolThreshold < c.Pricing.HighVolThreshold {
		return fmt.Errorf("pricing extreme_vol_threshold %f below high_vol_threshold %f",
			c.Pricing.ExtremeVolThreshold, c.Pricing.HighVolThreshold)
	}

	switch c.Audit.Sink {
	case "log", "postgres":
	default:
		return fmt.Errorf("audit sink %q is not one of log|postgres", c.Audit.Sink)
	}
	if c.Audit.QueueSize <= 0 {
		return fmt.Errorf("audit queue_size must be positive, got %d", c.Audit.QueueSize)
	}

	if c.Ops.BudgetResetHour < 0 || c.Ops.BudgetResetHour > 23 {
		return fmt.Errorf("ops budget_reset_hour must be 0-23, got %d", c.Ops.BudgetResetHour)
	}
	if c.Ops.ProbeIntervalSecs <= 0 {
		return fmt.Errorf("ops probe_interval_secs must be positive, got %d", c.Ops.ProbeIntervalSecs)
	}

	return nil
}
