package kunci

import (
	"fmt"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/goccy/go-yaml"
)

// EnvPrefix prefixes every environment variable read by LoadConfigFromEnv.
const EnvPrefix = "KUNCI_"

// Config is the declarative client configuration.
type Config struct {
	BaseURL        string            `yaml:"base_url" env:"BASE_URL"`
	Timeout        time.Duration     `yaml:"timeout" env:"TIMEOUT"`
	DefaultHeaders map[string]string `yaml:"default_headers" env:"DEFAULT_HEADERS"`
	Cache          CacheConfig       `yaml:"cache" envPrefix:"CACHE_"`
	Retry          RetryConfig       `yaml:"retry" envPrefix:"RETRY_"`
	Audit          AuditConfig       `yaml:"audit" envPrefix:"AUDIT_"`
	RateLimit      RateLimitConfig   `yaml:"rate_limit" envPrefix:"RATE_LIMIT_"`
	// TokenKeys are the store keys a refreshed token is written to.
	TokenKeys []string `yaml:"token_keys" env:"TOKEN_KEYS" envSeparator:","`
}

// CacheConfig configures the GET response cache.
type CacheConfig struct {
	Enabled    bool          `yaml:"enabled" env:"ENABLED"`
	DefaultTTL time.Duration `yaml:"default_ttl" env:"DEFAULT_TTL"`
	MaxSize    int           `yaml:"max_size" env:"MAX_SIZE"`
}

// RateLimitConfig configures client-side rate limiting. Zero rate disables it.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" env:"REQUESTS_PER_SECOND"`
	Burst             int     `yaml:"burst" env:"BURST"`
}

// DefaultConfig returns the configuration used by New before options apply.
func DefaultConfig() Config {
	return Config{
		Timeout: DefaultTimeout,
		Cache: CacheConfig{
			Enabled:    true,
			DefaultTTL: 300 * time.Second,
			MaxSize:    100,
		},
		Retry:     DefaultRetryConfig(),
		Audit:     DefaultAuditConfig(),
		TokenKeys: []string{DefaultTokenKey},
	}
}

// LoadConfigFromEnv returns DefaultConfig overridden by KUNCI_* variables,
// e.g. KUNCI_BASE_URL, KUNCI_RETRY_MAX_RETRIES, KUNCI_AUDIT_LEVEL.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfigFile reads a YAML file over DefaultConfig, expanding ${VAR}
// references, then applies KUNCI_* environment overrides.
func LoadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseConfig(data)
}

var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ParseConfig parses YAML bytes the same way LoadConfigFile does.
func ParseConfig(data []byte) (Config, error) {
	expanded := envPattern.ReplaceAllStringFunc(string(data), func(match string) string {
		name := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		if value, ok := os.LookupEnv(name); ok {
			return value
		}
		return match
	})

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate checks value ranges.
func (cfg Config) Validate() error {
	var errs []string
	if cfg.BaseURL != "" && !isAbsoluteURL(cfg.BaseURL) {
		errs = append(errs, fmt.Sprintf("base_url must start with http:// or https://, got %q", cfg.BaseURL))
	}
	if cfg.Timeout < 0 {
		errs = append(errs, "timeout cannot be negative")
	}
	if cfg.Cache.DefaultTTL < 0 {
		errs = append(errs, "cache.default_ttl cannot be negative")
	}
	if cfg.Cache.MaxSize < 0 {
		errs = append(errs, "cache.max_size cannot be negative")
	}
	if cfg.Retry.MaxRetries < 0 {
		errs = append(errs, "retry.max_retries cannot be negative")
	}
	if cfg.Retry.BaseDelay < 0 || cfg.Retry.MaxDelay < 0 {
		errs = append(errs, "retry delays cannot be negative")
	}
	if cfg.Retry.MaxDelay > 0 && cfg.Retry.BaseDelay > cfg.Retry.MaxDelay {
		errs = append(errs, "retry.base_delay cannot exceed retry.max_delay")
	}
	if cfg.Retry.Jitter < 0 || cfg.Retry.Jitter > 1 {
		errs = append(errs, "retry.jitter must be between 0 and 1")
	}
	if cfg.Audit.BatchSize < 0 {
		errs = append(errs, "audit.batch_size cannot be negative")
	}
	if cfg.RateLimit.RequestsPerSecond < 0 {
		errs = append(errs, "rate_limit.requests_per_second cannot be negative")
	}

	if len(errs) > 0 {
		return &ClientError{
			Type:    ErrorTypeValidation,
			Message: "configuration validation failed: " + strings.Join(errs, "; "),
		}
	}
	return nil
}

func (c *Client) applyConfig(cfg Config) {
	c.baseURL = strings.TrimRight(cfg.BaseURL, "/")
	c.timeout = cfg.Timeout

	c.defaultHeaders = make(http.Header, len(cfg.DefaultHeaders))
	for k, v := range cfg.DefaultHeaders {
		c.defaultHeaders.Set(k, v)
	}

	c.cacheEnabled = cfg.Cache.Enabled
	c.cacheTTL = cfg.Cache.DefaultTTL
	c.cacheMaxSize = cfg.Cache.MaxSize

	c.retry = cfg.Retry
	c.audit = cfg.Audit

	if len(cfg.TokenKeys) > 0 {
		c.tokenKeys = append([]string(nil), cfg.TokenKeys...)
	}
	if cfg.RateLimit.RequestsPerSecond > 0 {
		c.limiter = NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	}
}
