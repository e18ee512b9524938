// Package config loads and validates client config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds client configuration loaded from the environment.
type Config struct {
	// APIBaseURL is the base URL of the Aray Forum API (e.g. http://localhost:5000/api).
	APIBaseURL string `mapstructure:"API_BASE_URL"`
	// HTTPTimeout is the per-request timeout (e.g. "15s").
	HTTPTimeout string `mapstructure:"HTTP_TIMEOUT"`
	// SessionFile is the path of the persisted session record; empty means the default
	// under the user config dir (aray-forum/session.json).
	SessionFile string `mapstructure:"SESSION_FILE"`
	// CacheStaleTTL is how long a cached read stays fresh before a background
	// re-fetch is triggered (e.g. "5m").
	CacheStaleTTL string `mapstructure:"CACHE_STALE_TTL"`
	// CacheRetentionTTL is how long an unobserved cache entry is retained (e.g. "10m").
	CacheRetentionTTL string `mapstructure:"CACHE_RETENTION_TTL"`
	// ReadRetryMax is the number of additional attempts for failed idempotent reads.
	ReadRetryMax int `mapstructure:"READ_RETRY_MAX"`
	// ReadRetryBaseDelay is the initial backoff delay between read retries (e.g. "250ms").
	ReadRetryBaseDelay string `mapstructure:"READ_RETRY_BASE_DELAY"`
	// PostsPerPage is the default page size for post feeds (server caps at 100).
	PostsPerPage int `mapstructure:"POSTS_PER_PAGE"`
	// UsersPerPage is the default page size for user lists (server caps at 50).
	UsersPerPage int `mapstructure:"USERS_PER_PAGE"`
	// OTLPEndpoint is the OTLP gRPC endpoint for request traces (e.g. http://localhost:4317).
	// Empty disables tracing (no-op provider).
	OTLPEndpoint string `mapstructure:"OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext OTLP export even for https endpoints.
	OTLPInsecure bool `mapstructure:"OTLP_INSECURE"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("API_BASE_URL", "http://localhost:5000/api")
	v.SetDefault("HTTP_TIMEOUT", "15s")
	v.SetDefault("SESSION_FILE", "")
	v.SetDefault("CACHE_STALE_TTL", "5m")
	v.SetDefault("CACHE_RETENTION_TTL", "10m")
	v.SetDefault("READ_RETRY_MAX", 2)
	v.SetDefault("READ_RETRY_BASE_DELAY", "250ms")
	v.SetDefault("POSTS_PER_PAGE", 10)
	v.SetDefault("USERS_PER_PAGE", 20)
	v.SetDefault("OTLP_ENDPOINT", "")
	v.SetDefault("OTLP_INSECURE", false)
	v.SetDefault("APP_ENV", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.APIBaseURL == "" {
		return nil, errors.New("config: API_BASE_URL must be set")
	}
	u, err := url.Parse(cfg.APIBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errors.New("config: API_BASE_URL must be an absolute URL")
	}

	if cfg.ReadRetryMax < 0 {
		return nil, errors.New("config: READ_RETRY_MAX must not be negative")
	}
	if cfg.PostsPerPage <= 0 || cfg.PostsPerPage > 100 {
		return nil, errors.New("config: POSTS_PER_PAGE must be between 1 and 100")
	}
	if cfg.UsersPerPage <= 0 || cfg.UsersPerPage > 50 {
		return nil, errors.New("config: USERS_PER_PAGE must be between 1 and 50")
	}

	return &cfg, nil
}

// Timeout parses HTTPTimeout as a time.Duration. Returns 15s if unset or invalid.
func (c *Config) Timeout() time.Duration {
	d, err := time.ParseDuration(c.HTTPTimeout)
	if err != nil || d <= 0 {
		return 15 * time.Second
	}
	return d
}

// StaleTTL parses CacheStaleTTL as a time.Duration. Returns 5m if unset or invalid.
func (c *Config) StaleTTL() time.Duration {
	d, err := time.ParseDuration(c.CacheStaleTTL)
	if err != nil || d <= 0 {
		return 5 * time.Minute
	}
	return d
}

// RetentionTTL parses CacheRetentionTTL as a time.Duration. Returns 10m if unset or invalid.
func (c *Config) RetentionTTL() time.Duration {
	d, err := time.ParseDuration(c.CacheRetentionTTL)
	if err != nil || d <= 0 {
		return 10 * time.Minute
	}
	return d
}

// RetryBaseDelay parses ReadRetryBaseDelay as a time.Duration. Returns 250ms if unset or invalid.
func (c *Config) RetryBaseDelay() time.Duration {
	d, err := time.ParseDuration(c.ReadRetryBaseDelay)
	if err != nil || d <= 0 {
		return 250 * time.Millisecond
	}
	return d
}

// SessionPath returns the session file path, defaulting to
// <user config dir>/aray-forum/session.json when SessionFile is empty.
func (c *Config) SessionPath() (string, error) {
	if c.SessionFile != "" {
		return c.SessionFile, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "aray-forum", "session.json"), nil
}
