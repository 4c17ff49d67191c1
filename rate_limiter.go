package kunci

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// NewRateLimiter returns a token bucket allowing requestsPerSecond with the given burst.
func NewRateLimiter(requestsPerSecond float64, burst int) *rate.Limiter {
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
}

// waitRateLimit blocks until the client limiter admits one attempt.
func (c *Client) waitRateLimit(ctx context.Context, call *call, requestID string) error {
	if c.limiter == nil {
		return nil
	}

	start := time.Now()
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	if waited := time.Since(start); waited > time.Millisecond && c.debugEnabled(c.debug.LogRequests) {
		c.logger.Debug("Rate limited", "requestID", requestID, "method", call.method, "endpoint", call.endpoint, "waited", waited)
	}
	return nil
}
