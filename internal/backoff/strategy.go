package backoff

import (
	"math"
	"math/rand"
	"time"
)

// maxExponent bounds the shift applied to base.
const maxExponent = 30

// maxDelay is the largest representable delay; results saturate at it.
const maxDelay = time.Duration(math.MaxInt64)

// Strategy computes the delay to wait before retry number attempt+1.
type Strategy interface {
	Calculate(attempt int, base, max time.Duration, jitter float64) time.Duration
}

// ExponentialStrategy doubles the base delay on every attempt and caps it at max.
//
// With jitter j the returned delay d' satisfies d <= d' <= min(max, d + d*j),
// where d = min(max, base * 2^attempt). A zero jitter yields exactly d.
type ExponentialStrategy struct{}

// Calculate implements Strategy.
func (ExponentialStrategy) Calculate(attempt int, base, max time.Duration, jitter float64) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempt < 0 {
		attempt = 0
	}
	if attempt > maxExponent {
		attempt = maxExponent
	}

	limit := maxDelay
	if max > 0 {
		limit = max
	}

	delay := limit
	if base <= limit>>uint(attempt) {
		delay = base << uint(attempt)
	}

	jitter = clampJitter(jitter)
	if jitter > 0 {
		extra := time.Duration(float64(delay) * jitter * rand.Float64())
		if extra < 0 || extra > limit-delay {
			return limit
		}
		delay += extra
	}
	return delay
}

// DecorrelatedStrategy spreads retries uniformly between base and
// min(max, base*3^attempt). Attempt zero always returns base.
type DecorrelatedStrategy struct{}

// Calculate implements Strategy. The jitter argument is ignored.
func (DecorrelatedStrategy) Calculate(attempt int, base, max time.Duration, _ float64) time.Duration {
	if attempt <= 0 || base <= 0 {
		return base
	}
	if attempt > 10 {
		attempt = 10
	}

	lower := float64(base)
	upper := lower * pow(3.0, attempt)
	if max > 0 && upper > float64(max) {
		upper = float64(max)
	}
	if upper < lower {
		upper = lower
	}

	delay := time.Duration(lower + rand.Float64()*(upper-lower))
	if max > 0 && delay > max {
		delay = max
	}
	return delay
}

func clampJitter(jitter float64) float64 {
	if jitter < 0 {
		return 0
	}
	if jitter > 1 {
		return 1
	}
	return jitter
}

func pow(base float64, exponent int) float64 {
	result := 1.0
	for i := 0; i < exponent; i++ {
		result *= base
	}
	return result
}
