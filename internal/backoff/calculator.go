package backoff

import (
	"time"
)

// Calculator wraps a Strategy so callers can swap algorithms at construction time.
type Calculator struct {
	strategy Strategy
}

// NewCalculator returns a Calculator using strategy, or ExponentialStrategy when nil.
func NewCalculator(strategy Strategy) *Calculator {
	if strategy == nil {
		strategy = ExponentialStrategy{}
	}
	return &Calculator{strategy: strategy}
}

// Calculate delegates to the configured strategy.
func (c *Calculator) Calculate(attempt int, base, max time.Duration, jitter float64) time.Duration {
	return c.strategy.Calculate(attempt, base, max, jitter)
}

// Strategy returns the strategy in use.
func (c *Calculator) Strategy() Strategy {
	return c.strategy
}

// Calculate computes an exponential backoff delay: min(max, base*2^attempt)
// plus up to jitter*delay of random spread, never exceeding max.
func Calculate(attempt int, base, max time.Duration, jitter float64) time.Duration {
	return ExponentialStrategy{}.Calculate(attempt, base, max, jitter)
}
