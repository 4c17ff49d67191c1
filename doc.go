// Package kunci provides an authenticated HTTP client for a control-plane API:
//
//   - Bearer tokens read from a TokenSource, with a single refresh after a 401
//   - Retries of network failures, timeouts and 408/429 with backoff + jitter
//   - GET response caching (in memory or Redis) with TTL and LRU-style eviction
//   - Deduplication of concurrent identical GETs
//   - Batched audit logging with a failure breaker and optional durable sinks
//   - Prometheus metrics, OpenTelemetry spans and zap-backed debug logging
//
// Terminal 401/403 responses are never retried and 5xx responses are never
// retried. Every failure is a *ClientError; compare with errors.Is against
// ErrNetwork, ErrTimeout, ErrAuthentication, ErrForbidden or ErrAPI.
//
// Typical usage:
//
//	client := kunci.New(
//	    kunci.WithBaseURL("https://api.example.com"),
//	    kunci.WithTokenSource(kunci.StaticToken(token)),
//	    kunci.WithTokenRefresh(refresh),
//	    kunci.WithCache(5*time.Minute, 100),
//	    kunci.WithMetrics(),
//	)
//	defer client.Close(context.Background())
//
//	var users []User
//	err := client.GetJSON(ctx, "/users", &users, kunci.WithQueryParam("page", "1"))
//
// Configuration can also come from YAML (LoadConfigFile) or KUNCI_*
// environment variables (LoadConfigFromEnv).
package kunci
