package kunci

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	internalbackoff "github.com/ambiyansyah-risyal/kunci/internal/backoff"
)

// RetryConfig controls retries of network failures, timeouts and selected statuses.
type RetryConfig struct {
	Enabled    bool          `yaml:"enabled" env:"ENABLED"`
	MaxRetries int           `yaml:"max_retries" env:"MAX_RETRIES"`
	BaseDelay  time.Duration `yaml:"base_delay" env:"BASE_DELAY"`
	MaxDelay   time.Duration `yaml:"max_delay" env:"MAX_DELAY"`
	// Jitter adds up to Jitter*delay of random spread, clamped to [0, 1].
	Jitter float64 `yaml:"jitter" env:"JITTER"`
	// RetryableStatuses lists the statuses retried besides network errors and
	// timeouts. 5xx statuses are never retried even when listed.
	RetryableStatuses []int `yaml:"retryable_statuses" env:"RETRYABLE_STATUSES" envSeparator:","`
}

// DefaultRetryConfig returns the default retry settings.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Enabled:           true,
		MaxRetries:        3,
		BaseDelay:         time.Second,
		MaxDelay:          30 * time.Second,
		Jitter:            0.1,
		RetryableStatuses: []int{http.StatusRequestTimeout, http.StatusTooManyRequests},
	}
}

func (r RetryConfig) statusRetryable(status int) bool {
	for _, s := range r.RetryableStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// shouldRetry classifies a non-auth failure of attempt.
func (c *Client) shouldRetry(ctx context.Context, err error, attempt, maxRetries int) bool {
	if !c.retry.Enabled || attempt >= maxRetries {
		return false
	}
	if ctx.Err() != nil {
		return false
	}

	var clientErr *ClientError
	if !errors.As(err, &clientErr) {
		return false
	}
	if clientErr.StatusCode >= 500 && clientErr.StatusCode < 600 {
		return false
	}

	switch clientErr.Type {
	case ErrorTypeNetwork, ErrorTypeTimeout:
		return true
	case ErrorTypeAPI:
		return c.retry.statusRetryable(clientErr.StatusCode)
	default:
		return false
	}
}

// backoffDelay returns the wait before the attempt after attempt, honouring
// a Retry-After hint up to MaxDelay.
func (c *Client) backoffDelay(attempt int, err error) time.Duration {
	delay := c.backoff.Calculate(attempt, c.retry.BaseDelay, c.retry.MaxDelay, c.retry.Jitter)

	var clientErr *ClientError
	if errors.As(err, &clientErr) && clientErr.retryAfter > delay {
		delay = clientErr.retryAfter
		if c.retry.MaxDelay > 0 && delay > c.retry.MaxDelay {
			delay = c.retry.MaxDelay
		}
	}
	return delay
}

func newBackoffCalculator() *internalbackoff.Calculator {
	return internalbackoff.NewCalculator(internalbackoff.ExponentialStrategy{})
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// parseRetryAfter parses the Retry-After header value.
// It supports both delay-seconds format and HTTP-date format.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
		if seconds > 0 {
			delay := time.Duration(seconds) * time.Second
			if delay > time.Hour {
				delay = time.Hour
			}
			return delay
		}
		return 0
	}

	if t, err := http.ParseTime(value); err == nil {
		delay := time.Until(t)
		if delay > 0 && delay <= time.Hour {
			return delay
		}
	}

	return 0
}
