package kunci

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	internalbackoff "github.com/ambiyansyah-risyal/kunci/internal/backoff"
)

// BackoffStrategy names a retry delay curve.
type BackoffStrategy string

const (
	// BackoffExponential doubles the delay on each attempt with additive jitter.
	BackoffExponential BackoffStrategy = "exponential"
	// BackoffDecorrelated spreads delays randomly between the base and a growing ceiling.
	BackoffDecorrelated BackoffStrategy = "decorrelated"
)

// WithConfig replaces the client settings with cfg. Options given after it still apply.
func WithConfig(cfg Config) Option {
	return func(c *Client) {
		c.applyConfig(cfg)
	}
}

// WithBaseURL sets the URL relative endpoints are resolved against.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithTimeout sets the per-attempt timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithDefaultHeader adds a header sent with every request.
func WithDefaultHeader(key, value string) Option {
	return func(c *Client) {
		if c.defaultHeaders == nil {
			c.defaultHeaders = make(http.Header)
		}
		c.defaultHeaders.Set(key, value)
	}
}

// WithDefaultHeaders adds several default headers.
func WithDefaultHeaders(headers map[string]string) Option {
	return func(c *Client) {
		for k, v := range headers {
			WithDefaultHeader(k, v)(c)
		}
	}
}

// WithTokenSource sets where bearer tokens are read from. A source that also
// implements TokenStore receives refreshed tokens.
func WithTokenSource(source TokenSource) Option {
	return func(c *Client) {
		c.tokens = source
	}
}

// WithTokenStore sets where refreshed tokens are persisted.
func WithTokenStore(store TokenStore) Option {
	return func(c *Client) {
		c.tokenStore = store
	}
}

// WithTokenKeys sets the store keys a refreshed token is written to.
func WithTokenKeys(keys ...string) Option {
	return func(c *Client) {
		c.tokenKeys = append([]string(nil), keys...)
	}
}

// WithTokenRefresh installs the callback used once per request after a 401.
func WithTokenRefresh(fn TokenRefreshFunc) Option {
	return func(c *Client) {
		c.onTokenRefresh = fn
	}
}

// WithAuthErrorHandler installs the callback invoked once per terminal 401 or 403.
func WithAuthErrorHandler(fn AuthErrorHandler) Option {
	return func(c *Client) {
		c.onAuthError = fn
	}
}

// WithRequestInterceptor sets the request interceptor.
func WithRequestInterceptor(fn RequestInterceptor) Option {
	return func(c *Client) {
		c.requestInterceptor = fn
	}
}

// WithResponseInterceptor sets the response interceptor.
func WithResponseInterceptor(fn ResponseInterceptor) Option {
	return func(c *Client) {
		c.responseInterceptor = fn
	}
}

// WithErrorInterceptor sets the error interceptor.
func WithErrorInterceptor(fn ErrorInterceptor) Option {
	return func(c *Client) {
		c.errorInterceptor = fn
	}
}

// WithRetry replaces the retry configuration.
func WithRetry(cfg RetryConfig) Option {
	return func(c *Client) {
		c.retry = cfg
	}
}

// WithMaxRetries sets the maximum number of retry attempts
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		c.retry.MaxRetries = n
	}
}

// WithBackoff sets the base and maximum retry delay.
func WithBackoff(base, max time.Duration) Option {
	return func(c *Client) {
		c.retry.BaseDelay = base
		c.retry.MaxDelay = max
	}
}

// WithJitter sets the jitter factor for backoff (0.0 to 1.0)
func WithJitter(f float64) Option {
	return func(c *Client) {
		if f < 0 {
			f = 0
		}
		if f > 1 {
			f = 1
		}
		c.retry.Jitter = f
	}
}

// WithRetryDisabled turns retries off.
func WithRetryDisabled() Option {
	return func(c *Client) {
		c.retry.Enabled = false
	}
}

// WithRetryableStatuses replaces the statuses that are retried.
func WithRetryableStatuses(statuses ...int) Option {
	return func(c *Client) {
		c.retry.RetryableStatuses = append([]int(nil), statuses...)
	}
}

// WithBackoffStrategy selects the retry delay curve. Unknown names keep the default.
func WithBackoffStrategy(strategy BackoffStrategy) Option {
	return func(c *Client) {
		switch strategy {
		case BackoffDecorrelated:
			c.backoff = internalbackoff.NewCalculator(internalbackoff.DecorrelatedStrategy{})
		case BackoffExponential:
			c.backoff = internalbackoff.NewCalculator(internalbackoff.ExponentialStrategy{})
		}
	}
}

// WithCache enables GET caching in memory with the given default TTL and capacity.
func WithCache(ttl time.Duration, maxSize int) Option {
	return func(c *Client) {
		c.cacheEnabled = true
		c.cacheTTL = ttl
		c.cacheMaxSize = maxSize
	}
}

// WithCacheStore enables caching backed by store, e.g. a RedisCache.
func WithCacheStore(store Cache) Option {
	return func(c *Client) {
		c.cacheEnabled = true
		c.cache = store
	}
}

// WithoutCache disables GET caching. Deduplication still applies.
func WithoutCache() Option {
	return func(c *Client) {
		c.cacheEnabled = false
	}
}

// WithAudit replaces the audit configuration.
func WithAudit(cfg AuditConfig) Option {
	return func(c *Client) {
		c.audit = cfg
	}
}

// WithAuditor sends audit entries to auditor instead of the built-in queue
// and enables auditing.
func WithAuditor(auditor Auditor) Option {
	return func(c *Client) {
		c.auditor = auditor
		c.audit.Enabled = true
	}
}

// WithDurableAuditSink makes the built-in audit queue try sink before HTTP.
func WithDurableAuditSink(sink DurableSink) Option {
	return func(c *Client) {
		c.durableSink = sink
	}
}

// WithMiddleware adds middleware to the client
func WithMiddleware(middleware ...Middleware) Option {
	return func(c *Client) {
		c.middleware = append(c.middleware, middleware...)
	}
}

// WithRateLimit limits outgoing attempts to requestsPerSecond with burst.
func WithRateLimit(requestsPerSecond float64, burst int) Option {
	return func(c *Client) {
		c.limiter = NewRateLimiter(requestsPerSecond, burst)
	}
}

// WithMetrics enables Prometheus metrics collection
func WithMetrics() Option {
	return func(c *Client) {
		c.metrics = NewMetricsCollector()
	}
}

// WithMetricsCollector sets a custom metrics collector
func WithMetricsCollector(collector *MetricsCollector) Option {
	return func(c *Client) {
		c.metrics = collector
	}
}

// WithTracerProvider sets the OpenTelemetry provider spans are created from.
func WithTracerProvider(provider trace.TracerProvider) Option {
	return func(c *Client) {
		c.tracer = provider.Tracer(tracerName)
	}
}

// WithLogger sets the logger used for debug output and swallowed failures.
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithSimpleLogger enables debug logging with a development console logger.
func WithSimpleLogger() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
		c.logger = NewSimpleLogger()
	}
}

// WithDebug enables debug logging with default configuration
func WithDebug() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
	}
}

// WithDebugConfig sets custom debug configuration
func WithDebugConfig(config *DebugConfig) Option {
	return func(c *Client) {
		c.debug = config
	}
}

// WithRequestIDGenerator sets a custom function for generating request IDs
func WithRequestIDGenerator(gen func() string) Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.RequestIDGen = gen
	}
}

// ValidateConfiguration validates the client configuration and returns an error if invalid
func (c *Client) ValidateConfiguration() error {
	var errors []string

	errors = append(errors, c.validateTransportConfig()...)
	errors = append(errors, c.validateRetryConfig()...)
	errors = append(errors, c.validateCacheConfig()...)
	errors = append(errors, c.validateAuditConfig()...)
	errors = append(errors, c.validateMiddlewareConfig()...)

	if len(errors) > 0 {
		return &ClientError{
			Type:    ErrorTypeValidation,
			Message: "configuration validation failed",
			Cause:   fmt.Errorf("validation errors: %s", strings.Join(errors, "; ")),
		}
	}

	return nil
}

func (c *Client) validateTransportConfig() []string {
	var errors []string

	if c.httpClient == nil {
		errors = append(errors, "HTTP client cannot be nil")
	}
	if c.baseURL != "" && !isAbsoluteURL(c.baseURL) {
		errors = append(errors, fmt.Sprintf("baseURL must start with http:// or https://, got %q", c.baseURL))
	}
	if c.timeout <= 0 {
		errors = append(errors, "timeout must be positive")
	}

	return errors
}

func (c *Client) validateRetryConfig() []string {
	var errors []string

	if c.retry.MaxRetries < 0 {
		errors = append(errors, "maxRetries must be non-negative")
	}
	if c.retry.BaseDelay < 0 {
		errors = append(errors, "baseDelay must be non-negative")
	}
	if c.retry.MaxDelay < c.retry.BaseDelay {
		errors = append(errors, "maxDelay must be greater than or equal to baseDelay")
	}
	if c.retry.Jitter < 0 || c.retry.Jitter > 1 {
		errors = append(errors, "jitter must be between 0 and 1")
	}
	if c.retry.MaxRetries > 100 {
		errors = append(errors, "maxRetries > 100 may cause excessive resource usage")
	}

	return errors
}

func (c *Client) validateCacheConfig() []string {
	var errors []string

	if c.cacheEnabled && c.cacheTTL <= 0 {
		errors = append(errors, "cacheTTL must be positive when cache is enabled")
	}
	if c.cacheMaxSize < 0 {
		errors = append(errors, "cacheMaxSize must be non-negative")
	}

	return errors
}

func (c *Client) validateAuditConfig() []string {
	var errors []string

	if !c.audit.Enabled || c.auditQueue == nil {
		return nil
	}
	if c.baseURL == "" && c.durableSink == nil {
		errors = append(errors, "audit requires a baseURL or a durable sink")
	}
	if c.audit.BatchSize <= 0 {
		errors = append(errors, "audit batchSize must be positive")
	}
	if c.audit.BatchInterval <= 0 {
		errors = append(errors, "audit batchInterval must be positive")
	}

	return errors
}

func (c *Client) validateMiddlewareConfig() []string {
	var errors []string

	for i, middleware := range c.middleware {
		if middleware == nil {
			errors = append(errors, fmt.Sprintf("middleware[%d] cannot be nil", i))
		}
	}

	return errors
}
