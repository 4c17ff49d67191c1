package kunci

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	internalbackoff "github.com/ambiyansyah-risyal/kunci/internal/backoff"
)

const tracerName = "github.com/ambiyansyah-risyal/kunci"

// Client is an authenticated client for the control-plane API. It layers
// token handling, retries with backoff, GET caching and deduplication,
// auditing and metrics around net/http. It is safe for concurrent use.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	timeout        time.Duration
	defaultHeaders http.Header

	retry   RetryConfig
	backoff *internalbackoff.Calculator
	sleep   func(ctx context.Context, d time.Duration) error

	cacheEnabled bool
	cacheTTL     time.Duration
	cacheMaxSize int
	cache        Cache
	pending      singleflight.Group

	tokens         TokenSource
	tokenStore     TokenStore
	tokenKeys      []string
	onTokenRefresh TokenRefreshFunc
	onAuthError    AuthErrorHandler

	requestInterceptor  RequestInterceptor
	responseInterceptor ResponseInterceptor
	errorInterceptor    ErrorInterceptor
	middleware          []Middleware
	limiter             *rate.Limiter

	audit       AuditConfig
	auditor     Auditor
	auditQueue  *AuditQueue
	durableSink DurableSink

	metrics *MetricsCollector
	stats   requestStats
	tracer  trace.Tracer
	debug   *DebugConfig
	logger  Logger

	background      sync.WaitGroup
	closed          atomic.Bool
	validationError error
}

// New constructs a Client from DefaultConfig and the provided options.
// Configuration problems are reported by ValidationError and returned from
// every request.
func New(options ...Option) *Client {
	client := &Client{
		httpClient: &http.Client{},
		backoff:    newBackoffCalculator(),
		sleep:      sleepContext,
		debug:      DefaultDebugConfig(),
	}
	client.applyConfig(DefaultConfig())

	for _, option := range options {
		option(client)
	}
	client.init()

	if err := client.ValidateConfiguration(); err != nil {
		client.validationError = err
	}

	return client
}

// NewFromConfig constructs a Client from cfg; options are applied after it.
func NewFromConfig(cfg Config, options ...Option) *Client {
	return New(append([]Option{WithConfig(cfg)}, options...)...)
}

func (c *Client) init() {
	if c.cache == nil {
		c.cache = NewMemoryCache()
	}
	if c.tracer == nil {
		c.tracer = otel.Tracer(tracerName)
	}
	if len(c.tokenKeys) == 0 {
		c.tokenKeys = []string{DefaultTokenKey}
	}
	if c.tokenStore == nil {
		if store, ok := c.tokens.(TokenStore); ok {
			c.tokenStore = store
		}
	}
	if c.tokens == nil {
		if source, ok := c.tokenStore.(TokenSource); ok {
			c.tokens = source
		}
	}

	if c.audit.Enabled && c.auditor == nil {
		c.auditQueue = NewAuditQueue(AuditQueueConfig{
			BatchSize:     c.audit.BatchSize,
			BatchInterval: c.audit.BatchInterval,
			HTTP:          NewHTTPBatchSink(c.baseURL, c.audit.Endpoint, &http.Client{Timeout: c.timeout}, c.tokens),
			Durable:       c.durableSink,
			Breaker: BreakerConfig{
				MaxFailures: c.audit.MaxFailures,
				Cooldown:    c.audit.Cooldown,
			},
			Logger:  c.logger,
			Metrics: c.metrics,
		})
		c.auditor = c.auditQueue
	}
	if !c.audit.Enabled {
		c.auditor = nil
	}
}

// Get performs a GET. Successful responses may be served from the cache and
// concurrent identical GETs share one network call.
func (c *Client) Get(ctx context.Context, endpoint string, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, http.MethodGet, endpoint, nil, opts...)
}

// Post performs a POST with body encoded as described on Do.
func (c *Client) Post(ctx context.Context, endpoint string, body any, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, http.MethodPost, endpoint, body, opts...)
}

// Put performs a PUT.
func (c *Client) Put(ctx context.Context, endpoint string, body any, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, http.MethodPut, endpoint, body, opts...)
}

// Patch performs a PATCH.
func (c *Client) Patch(ctx context.Context, endpoint string, body any, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, http.MethodPatch, endpoint, body, opts...)
}

// Delete performs a DELETE.
func (c *Client) Delete(ctx context.Context, endpoint string, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, http.MethodDelete, endpoint, nil, opts...)
}

// Do sends a request. endpoint is resolved against the base URL unless it is
// absolute. A []byte, string or io.Reader body is sent as is; any other
// non-nil body is JSON-encoded with Content-Type application/json unless a
// Content-Type header is given.
func (c *Client) Do(ctx context.Context, method, endpoint string, body any, opts ...RequestOption) (*Response, error) {
	if c.validationError != nil {
		return nil, c.validationError
	}
	if c.closed.Load() {
		return nil, &ClientError{Type: ErrorTypeConfiguration, Message: "client is closed", Method: method, Endpoint: endpoint, Timestamp: time.Now()}
	}

	var ro RequestOptions
	for _, opt := range opts {
		opt(&ro)
	}

	method = strings.ToUpper(method)
	if c.requestInterceptor != nil {
		rewritten, err := c.requestInterceptor(ctx, method, endpoint, &ro)
		if err != nil {
			return nil, err
		}
		endpoint = rewritten
	}

	call, err := c.newCall(method, endpoint, body, ro)
	if err != nil {
		return nil, err
	}

	if !isIdempotentRead(method) {
		return c.execute(ctx, call)
	}
	return c.get(ctx, call)
}

func (c *Client) newCall(method, endpoint string, body any, opts RequestOptions) (*call, error) {
	configErr := func(msg string, cause error) error {
		return &ClientError{Type: ErrorTypeConfiguration, Message: msg, Cause: cause, Method: method, Endpoint: endpoint, Timestamp: time.Now()}
	}

	fullURL, err := c.resolveURL(endpoint, opts.Query)
	if err != nil {
		return nil, configErr("invalid request URL", err)
	}

	payload, contentType, err := encodeBody(body)
	if err != nil {
		return nil, configErr("failed to encode request body", err)
	}

	header := c.defaultHeaders.Clone()
	if header == nil {
		header = make(http.Header)
	}
	if header.Get("Accept") == "" {
		header.Set("Accept", "application/json")
	}
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	for k, v := range opts.Headers {
		header[http.CanonicalHeaderKey(k)] = append([]string(nil), v...)
	}

	maxRetries := c.retry.MaxRetries
	if opts.Retries != nil {
		maxRetries = *opts.Retries
	}

	cl := &call{
		method:     method,
		endpoint:   endpoint,
		url:        fullURL,
		header:     header,
		body:       payload,
		opts:       opts,
		maxRetries: maxRetries,
	}

	if isIdempotentRead(method) {
		cl.cacheKey = deriveCacheKey(opts, fullURL)
		cl.cacheable = c.cacheEnabled
		if opts.Cache.Enabled != nil {
			cl.cacheable = *opts.Cache.Enabled
		}
		cl.cacheTTL = c.cacheTTL
		if opts.Cache.TTL > 0 {
			cl.cacheTTL = opts.Cache.TTL
		}
	}
	return cl, nil
}

// resolveURL joins endpoint to the base URL and merges query, which comes
// out sorted by key.
func (c *Client) resolveURL(endpoint string, query url.Values) (string, error) {
	raw := endpoint
	if !isAbsoluteURL(endpoint) {
		if c.baseURL == "" {
			return "", fmt.Errorf("base URL is not configured for relative endpoint %q", endpoint)
		}
		raw = joinURL(c.baseURL, endpoint)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	q := u.Query()
	for k, vs := range query {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func isAbsoluteURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func encodeBody(body any) ([]byte, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, "", nil
	case []byte:
		return b, "", nil
	case string:
		return []byte(b), "", nil
	case io.Reader:
		data, err := io.ReadAll(b)
		return data, "", err
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, "", err
		}
		return data, "application/json", nil
	}
}

// Stats returns derived statistics from the client's running counters.
func (c *Client) Stats() MetricsSnapshot {
	return c.stats.snapshot()
}

// ClearCache drops every cached response.
func (c *Client) ClearCache() {
	c.cache.Clear()
	c.metrics.RecordCacheSize(0)
}

// Close stops accepting requests, waits for background audit work and
// flushes the audit queue owned by the client.
func (c *Client) Close(ctx context.Context) error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	done := make(chan struct{})
	go func() {
		c.background.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if c.auditQueue != nil {
		c.auditQueue.Close(ctx)
	}
	return nil
}

// AuditQueue returns the queue built from the audit configuration, or nil
// when auditing is off or a custom Auditor was supplied.
func (c *Client) AuditQueue() *AuditQueue {
	return c.auditQueue
}

// IsValid reports whether configuration validation passed.
func (c *Client) IsValid() bool {
	return c.validationError == nil
}

// ValidationError returns the configuration validation error, if any.
func (c *Client) ValidationError() error {
	return c.validationError
}
