package kunci

import (
	"sync"
	"time"
)

// Audit delivery breaker defaults.
const (
	DefaultAuditMaxFailures = 3
	DefaultAuditCooldown    = 60 * time.Second
)

// BreakerConfig configures an AuditBreaker.
type BreakerConfig struct {
	MaxFailures int
	Cooldown    time.Duration
	// Now overrides the clock, mainly for tests.
	Now func() time.Time
}

// breakerState is either breakerClosed or breakerOpen.
type breakerState interface {
	isBreakerState()
}

type breakerClosed struct {
	failures int
}

type breakerOpen struct {
	until time.Time
}

func (breakerClosed) isBreakerState() {}
func (breakerOpen) isBreakerState()   {}

// AuditBreaker stops HTTP audit delivery after consecutive failures.
//
// Closed counts failures; reaching MaxFailures opens it until now+Cooldown
// and resets the count. Open rejects every attempt until the cooldown has
// passed, then closes again. Rejected attempts are not failures.
type AuditBreaker struct {
	mu     sync.Mutex
	config BreakerConfig
	state  breakerState
}

// NewAuditBreaker creates a closed breaker.
func NewAuditBreaker(config BreakerConfig) *AuditBreaker {
	if config.MaxFailures <= 0 {
		config.MaxFailures = DefaultAuditMaxFailures
	}
	if config.Cooldown <= 0 {
		config.Cooldown = DefaultAuditCooldown
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	return &AuditBreaker{
		config: config,
		state:  breakerClosed{},
	}
}

// Allow reports whether a delivery attempt may be made now.
func (b *AuditBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch s := b.state.(type) {
	case breakerOpen:
		if b.config.Now().Before(s.until) {
			return false
		}
		b.state = breakerClosed{}
		return true
	default:
		return true
	}
}

// RecordFailure counts a failed delivery and reports whether the breaker opened.
func (b *AuditBreaker) RecordFailure() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.state.(breakerClosed)
	if !ok {
		return false
	}
	s.failures++
	if s.failures >= b.config.MaxFailures {
		b.state = breakerOpen{until: b.config.Now().Add(b.config.Cooldown)}
		return true
	}
	b.state = s
	return false
}

// RecordSuccess closes the breaker and clears the failure count.
func (b *AuditBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = breakerClosed{}
}

// IsOpen reports whether the breaker currently rejects attempts.
func (b *AuditBreaker) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.state.(breakerOpen)
	return ok && b.config.Now().Before(s.until)
}

// Failures returns the consecutive failure count while closed.
func (b *AuditBreaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if s, ok := b.state.(breakerClosed); ok {
		return s.failures
	}
	return 0
}
