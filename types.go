package kunci

import (
	"context"
	"net/http"
	"net/url"
	"time"
)

// Middleware wraps each network round trip.
type Middleware func(req *http.Request, next RoundTripper) (*http.Response, error)

// RoundTripper represents the HTTP transport interface
type RoundTripper interface {
	RoundTrip(*http.Request) (*http.Response, error)
}

// RoundTripperFunc is a helper type for middleware
type RoundTripperFunc func(*http.Request) (*http.Response, error)

func (f RoundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// RequestInterceptor runs before anything else for every call and may
// rewrite the endpoint or the per-call options.
type RequestInterceptor func(ctx context.Context, method, endpoint string, opts *RequestOptions) (string, error)

// ResponseInterceptor takes over a received response. When set, the client
// returns whatever it produces and skips its own auditing and status checks.
type ResponseInterceptor func(ctx context.Context, resp *Response) (*Response, error)

// ErrorInterceptor transforms terminal errors. Auth errors bypass it.
type ErrorInterceptor func(ctx context.Context, err error) error

// Option represents a configuration option
type Option func(*Client)

// CacheOptions overrides caching for one GET call.
type CacheOptions struct {
	// Enabled overrides the client cache setting when non-nil.
	Enabled *bool
	// TTL overrides the default TTL when positive.
	TTL time.Duration
	// Key replaces the derived cache and deduplication key.
	Key string
}

// RequestOptions holds per-call overrides.
type RequestOptions struct {
	Headers  http.Header
	Query    url.Values
	SkipAuth bool
	// Retries overrides the client's maximum retry count when non-nil.
	Retries *int
	// Timeout overrides the per-attempt timeout when positive.
	Timeout   time.Duration
	Cache     CacheOptions
	SkipAudit bool
}

// RequestOption configures a single call.
type RequestOption func(*RequestOptions)

// WithHeader sets a request header, replacing client defaults of the same name.
func WithHeader(key, value string) RequestOption {
	return func(o *RequestOptions) {
		if o.Headers == nil {
			o.Headers = make(http.Header)
		}
		o.Headers.Set(key, value)
	}
}

// WithQueryParam adds a query parameter.
func WithQueryParam(key, value string) RequestOption {
	return func(o *RequestOptions) {
		if o.Query == nil {
			o.Query = make(url.Values)
		}
		o.Query.Add(key, value)
	}
}

// SkipAuth sends the call without a bearer token.
func SkipAuth() RequestOption {
	return func(o *RequestOptions) {
		o.SkipAuth = true
	}
}

// WithRetries overrides the maximum retry count for the call.
func WithRetries(n int) RequestOption {
	return func(o *RequestOptions) {
		if n < 0 {
			n = 0
		}
		o.Retries = &n
	}
}

// WithRequestTimeout overrides the per-attempt timeout for the call.
func WithRequestTimeout(d time.Duration) RequestOption {
	return func(o *RequestOptions) {
		o.Timeout = d
	}
}

// WithCacheTTL enables caching for the call with the given TTL.
func WithCacheTTL(ttl time.Duration) RequestOption {
	return func(o *RequestOptions) {
		enabled := true
		o.Cache.Enabled = &enabled
		o.Cache.TTL = ttl
	}
}

// WithCacheKey sets an explicit cache and deduplication key.
func WithCacheKey(key string) RequestOption {
	return func(o *RequestOptions) {
		o.Cache.Key = key
	}
}

// NoCache bypasses the response cache for the call. Deduplication still applies.
func NoCache() RequestOption {
	return func(o *RequestOptions) {
		enabled := false
		o.Cache.Enabled = &enabled
	}
}

// SkipAudit suppresses audit entries for the call.
func SkipAudit() RequestOption {
	return func(o *RequestOptions) {
		o.SkipAudit = true
	}
}
