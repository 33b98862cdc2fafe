// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/artpar/quotagate/domain/quota"
	"github.com/artpar/quotagate/domain/usage"
)

// Config is the root configuration structure.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Quota    QuotaConfig    `yaml:"quota"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// QuotaConfig configures enforcement. FreeLimit and PeriodLength are
// hot-reloadable; in-flight decisions keep the snapshot they started with.
type QuotaConfig struct {
	FreeLimit    int64         `yaml:"free_limit"`
	PeriodLength time.Duration `yaml:"period_length"`

	// FailOpen admits callers when the usage store is unreachable.
	// Default true: availability over strict enforcement. A pointer so
	// an explicit "fail_open: false" survives defaulting.
	FailOpen *bool `yaml:"fail_open"`

	// SubscriptionCacheTTL bounds subscription view staleness. Zero
	// disables the cache.
	SubscriptionCacheTTL time.Duration `yaml:"subscription_cache_ttl"`

	// HistoryPageSize caps entries returned per history request.
	HistoryPageSize int `yaml:"history_page_size"`
}

// UpstreamConfig configures the protected upstream service.
type UpstreamConfig struct {
	URL     string            `yaml:"url"`
	APIKey  string            `yaml:"api_key,omitempty"`
	Timeout time.Duration     `yaml:"timeout"`
	Headers map[string]string `yaml:"headers,omitempty"`
}

// DatabaseConfig configures the database.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "memory"
	DSN    string `yaml:"dsn"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "console"
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"` // default: /metrics
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables referenced in the file body.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadFromEnv creates configuration entirely from environment variables,
// for container deployments that ship no config file.
//
// Environment variables:
//
//	QUOTAGATE_UPSTREAM_URL       - Upstream service URL (required)
//	QUOTAGATE_DATABASE_DSN       - Database path (default: quotagate.db)
//	QUOTAGATE_SERVER_HOST        - Server host (default: 0.0.0.0)
//	QUOTAGATE_SERVER_PORT        - Server port (default: 8080)
//	QUOTAGATE_QUOTA_FREE_LIMIT   - Metered calls per period (default: 5)
//	QUOTAGATE_QUOTA_PERIOD       - Period length (default: 720h)
//	QUOTAGATE_QUOTA_FAIL_OPEN    - Admit on store failure (default: true)
//	QUOTAGATE_LOG_LEVEL          - debug, info, warn, error (default: info)
//	QUOTAGATE_LOG_FORMAT         - json or console (default: json)
//	QUOTAGATE_METRICS_ENABLED    - Enable /metrics endpoint (default: true)
func LoadFromEnv() (*Config, error) {
	var cfg Config

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadWithFallback tries the file first, then falls back to environment
// variables.
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}

	if os.Getenv("QUOTAGATE_UPSTREAM_URL") != "" {
		return LoadFromEnv()
	}

	return nil, fmt.Errorf("no configuration found: provide config file or set QUOTAGATE_UPSTREAM_URL")
}

// applyEnvOverrides applies QUOTAGATE_* environment variables to the
// config. Environment always overrides the file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("QUOTAGATE_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("QUOTAGATE_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("QUOTAGATE_SERVER_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ReadTimeout = d
		}
	}
	if v := os.Getenv("QUOTAGATE_SERVER_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.WriteTimeout = d
		}
	}

	if v := os.Getenv("QUOTAGATE_QUOTA_FREE_LIMIT"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Quota.FreeLimit = n
		}
	}
	if v := os.Getenv("QUOTAGATE_QUOTA_PERIOD"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Quota.PeriodLength = d
		}
	}
	if v := os.Getenv("QUOTAGATE_QUOTA_FAIL_OPEN"); v != "" {
		b := parseBool(v)
		cfg.Quota.FailOpen = &b
	}
	if v := os.Getenv("QUOTAGATE_QUOTA_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Quota.SubscriptionCacheTTL = d
		}
	}

	if v := os.Getenv("QUOTAGATE_UPSTREAM_URL"); v != "" {
		cfg.Upstream.URL = v
	}
	if v := os.Getenv("QUOTAGATE_UPSTREAM_API_KEY"); v != "" {
		cfg.Upstream.APIKey = v
	}
	if v := os.Getenv("QUOTAGATE_UPSTREAM_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Upstream.Timeout = d
		}
	}

	if v := os.Getenv("QUOTAGATE_DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("QUOTAGATE_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}

	if v := os.Getenv("QUOTAGATE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("QUOTAGATE_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	if v := os.Getenv("QUOTAGATE_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
	if v := os.Getenv("QUOTAGATE_METRICS_PATH"); v != "" {
		cfg.Metrics.Path = v
	}
}

// parseBool parses a boolean from common string values.
func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}

	if cfg.Quota.FreeLimit == 0 {
		cfg.Quota.FreeLimit = quota.DefaultFreeLimit
	}
	if cfg.Quota.PeriodLength == 0 {
		cfg.Quota.PeriodLength = usage.DefaultPeriod
	}
	if cfg.Quota.FailOpen == nil {
		failOpen := true
		cfg.Quota.FailOpen = &failOpen
	}
	if cfg.Quota.SubscriptionCacheTTL == 0 {
		cfg.Quota.SubscriptionCacheTTL = 30 * time.Second
	}
	if cfg.Quota.HistoryPageSize == 0 {
		cfg.Quota.HistoryPageSize = 50
	}

	if cfg.Upstream.Timeout == 0 {
		cfg.Upstream.Timeout = 10 * time.Second
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "quotagate.db"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

func validate(cfg *Config) error {
	if cfg.Upstream.URL == "" {
		return fmt.Errorf("upstream.url is required")
	}

	// A negative limit is the unlimited sentinel; config must set limits
	// explicitly, not smuggle unlimited in.
	if cfg.Quota.FreeLimit < 0 {
		return fmt.Errorf("quota.free_limit must be positive, got %d", cfg.Quota.FreeLimit)
	}
	if cfg.Quota.PeriodLength < time.Minute {
		return fmt.Errorf("quota.period_length must be at least 1m, got %s", cfg.Quota.PeriodLength)
	}

	validDrivers := map[string]bool{"sqlite": true, "memory": true}
	if !validDrivers[cfg.Database.Driver] {
		return fmt.Errorf("database.driver must be 'sqlite' or 'memory', got %q", cfg.Database.Driver)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}

	return nil
}
