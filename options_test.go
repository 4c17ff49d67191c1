package kunci

import (
	"context"
	"net/http"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace/noop"

	internalbackoff "github.com/ambiyansyah-risyal/kunci/internal/backoff"
)

func TestWithMaxRetries(t *testing.T) {
	client := New(WithMaxRetries(5))
	if client.retry.MaxRetries != 5 {
		t.Errorf("Expected maxRetries=5, got %d", client.retry.MaxRetries)
	}
}

func TestWithBackoff(t *testing.T) {
	client := New(WithBackoff(200*time.Millisecond, 10*time.Second))
	if client.retry.BaseDelay != 200*time.Millisecond || client.retry.MaxDelay != 10*time.Second {
		t.Errorf("unexpected delays %v/%v", client.retry.BaseDelay, client.retry.MaxDelay)
	}
}

func TestWithJitter(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0.5, 0.5},
		{-1, 0},
		{2, 1},
	}
	for _, tt := range tests {
		client := New(WithJitter(tt.in))
		if client.retry.Jitter != tt.want {
			t.Errorf("WithJitter(%v) = %v, want %v", tt.in, client.retry.Jitter, tt.want)
		}
	}
}

func TestWithRetry(t *testing.T) {
	cfg := RetryConfig{Enabled: true, MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: time.Second}
	client := New(WithRetry(cfg))
	if client.retry.MaxRetries != 1 || len(client.retry.RetryableStatuses) != 0 {
		t.Errorf("retry config not replaced: %+v", client.retry)
	}

	client = New(WithRetryDisabled(), WithRetryableStatuses(409))
	if client.retry.Enabled {
		t.Error("retry should be disabled")
	}
	if !client.retry.statusRetryable(409) || client.retry.statusRetryable(429) {
		t.Errorf("statuses = %v", client.retry.RetryableStatuses)
	}
}

func TestWithBackoffStrategy(t *testing.T) {
	client := New(WithBackoffStrategy(BackoffDecorrelated))
	if _, ok := client.backoff.Strategy().(internalbackoff.DecorrelatedStrategy); !ok {
		t.Errorf("strategy = %T", client.backoff.Strategy())
	}

	client = New(WithBackoffStrategy("unknown"))
	if _, ok := client.backoff.Strategy().(internalbackoff.ExponentialStrategy); !ok {
		t.Errorf("unknown strategy should keep the default, got %T", client.backoff.Strategy())
	}
}

func TestWithCache(t *testing.T) {
	client := New(WithoutCache(), WithCache(time.Minute, 5))
	if !client.cacheEnabled || client.cacheTTL != time.Minute || client.cacheMaxSize != 5 {
		t.Errorf("cache not configured: %v %v %d", client.cacheEnabled, client.cacheTTL, client.cacheMaxSize)
	}

	store := NewMemoryCache()
	client = New(WithoutCache(), WithCacheStore(store))
	if client.cache != store || !client.cacheEnabled {
		t.Error("WithCacheStore should install the store and enable caching")
	}
}

func TestWithTimeout(t *testing.T) {
	client := New(WithTimeout(5 * time.Second))
	if client.timeout != 5*time.Second {
		t.Errorf("Expected timeout=5s, got %v", client.timeout)
	}
}

func TestWithHTTPClient(t *testing.T) {
	custom := &http.Client{}
	client := New(WithHTTPClient(custom))
	if client.httpClient != custom {
		t.Error("Expected custom HTTP client to be set")
	}

	client = New(WithHTTPClient(nil))
	if client.IsValid() {
		t.Error("nil HTTP client should fail validation")
	}
}

func TestWithDefaultHeaders(t *testing.T) {
	client := New(WithDefaultHeaders(map[string]string{"x-one": "1", "X-Two": "2"}), WithDefaultHeader("X-Two", "3"))
	if client.defaultHeaders.Get("X-One") != "1" || client.defaultHeaders.Get("X-Two") != "3" {
		t.Errorf("headers = %v", client.defaultHeaders)
	}
}

func TestWithTokenOptions(t *testing.T) {
	store := StaticToken("t")
	client := New(WithTokenSource(store), WithTokenKeys("a", "b"))
	if client.tokenStore != store {
		t.Error("a TokenSource that is also a TokenStore should receive refreshed tokens")
	}
	if len(client.tokenKeys) != 2 {
		t.Errorf("tokenKeys = %v", client.tokenKeys)
	}

	other := NewMemoryTokenStore("")
	client = New(WithTokenStore(other))
	if client.tokens != other {
		t.Error("a TokenStore that is also a TokenSource should provide tokens")
	}
}

func TestWithAuditor(t *testing.T) {
	auditor := &recordingAuditor{}
	client := New(WithAuditor(auditor))
	if client.auditor != auditor || !client.audit.Enabled {
		t.Error("WithAuditor should install the auditor and enable auditing")
	}
	if client.AuditQueue() != nil {
		t.Error("custom auditor should replace the built-in queue")
	}
}

func TestWithAuditBuildsQueue(t *testing.T) {
	audit := DefaultAuditConfig()
	audit.Enabled = true

	client := New(WithBaseURL("http://api.test"), WithAudit(audit))
	defer client.Close(context.Background())
	if client.AuditQueue() == nil {
		t.Fatal("expected audit queue")
	}
	if client.auditor != client.AuditQueue() {
		t.Error("audit queue should be the auditor")
	}

	noBase := New(WithAudit(audit))
	defer noBase.Close(context.Background())
	if noBase.IsValid() {
		t.Error("audit without base URL or durable sink should fail validation")
	}
}

func TestWithMiddleware(t *testing.T) {
	mw := func(req *http.Request, next RoundTripper) (*http.Response, error) {
		return next.RoundTrip(req)
	}
	client := New(WithMiddleware(mw, mw))
	if len(client.middleware) != 2 {
		t.Errorf("Expected 2 middleware, got %d", len(client.middleware))
	}

	client = New(WithMiddleware(nil))
	if client.IsValid() {
		t.Error("nil middleware should fail validation")
	}
}

func TestWithRateLimit(t *testing.T) {
	client := New(WithRateLimit(5, 2))
	if client.limiter == nil {
		t.Fatal("Expected rate limiter to be set")
	}
	if client.limiter.Burst() != 2 {
		t.Errorf("burst = %d", client.limiter.Burst())
	}
}

func TestWithMetrics(t *testing.T) {
	collector := NewMetricsCollectorWithRegistry(nil)
	client := New(WithMetricsCollector(collector))
	if client.metrics != collector {
		t.Error("Expected custom metrics collector to be set")
	}
}

func TestWithTracerProvider(t *testing.T) {
	client := New(WithTracerProvider(noop.NewTracerProvider()))
	if client.tracer == nil {
		t.Fatal("tracer not set")
	}
}

func TestDebugOptions(t *testing.T) {
	client := New(WithDebug())
	if !client.debug.Enabled {
		t.Error("debug should be enabled")
	}

	client = New(WithSimpleLogger())
	if !client.debug.Enabled || client.logger == nil {
		t.Error("WithSimpleLogger should enable debug with a logger")
	}

	cfg := &DebugConfig{Enabled: true, LogCache: true}
	client = New(WithDebugConfig(cfg), WithRequestIDGenerator(func() string { return "fixed" }))
	if client.debug != cfg || client.newRequestID() != "fixed" {
		t.Error("debug config or request id generator not applied")
	}
	if client.debugEnabled(client.debug.LogRequests) {
		t.Error("unselected category should stay silent")
	}
}

func TestValidateConfiguration(t *testing.T) {
	tests := []struct {
		name    string
		options []Option
		valid   bool
	}{
		{"defaults", nil, true},
		{"negative retries", []Option{WithMaxRetries(-1)}, false},
		{"excessive retries", []Option{WithMaxRetries(101)}, false},
		{"inverted backoff", []Option{WithBackoff(time.Minute, time.Second)}, false},
		{"zero timeout", []Option{WithTimeout(0)}, false},
		{"cache without ttl", []Option{WithCache(0, 10)}, false},
		{"negative cache size", []Option{WithCache(time.Minute, -1)}, false},
		{"bad base url", []Option{WithBaseURL("api.test")}, false},
		{"disabled cache ignores ttl", []Option{WithCache(0, 10), WithoutCache()}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := New(tt.options...)
			if got := client.ValidateConfiguration() == nil; got != tt.valid {
				t.Errorf("valid = %v, want %v (%v)", got, tt.valid, client.ValidationError())
			}
		})
	}
}

func TestOptionsOrderIndependence(t *testing.T) {
	a := New(WithMaxRetries(2), WithTimeout(time.Second), WithJitter(0.2))
	b := New(WithJitter(0.2), WithTimeout(time.Second), WithMaxRetries(2))

	if a.retry.MaxRetries != b.retry.MaxRetries || a.timeout != b.timeout || a.retry.Jitter != b.retry.Jitter {
		t.Error("independent options should not depend on order")
	}
}
