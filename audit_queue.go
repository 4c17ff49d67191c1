package kunci

import (
	"context"
	"sync"
	"time"
)

// BatchSink delivers a batch of audit entries.
type BatchSink interface {
	Send(ctx context.Context, entries []AuditEntry) error
}

// DurableSink is a fast store-and-forward sink tried before HTTP delivery.
type DurableSink interface {
	BatchSink
	Connected() bool
}

type queuedEntry struct {
	entry    AuditEntry
	queuedAt time.Time
}

// AuditQueueConfig configures an AuditQueue.
type AuditQueueConfig struct {
	BatchSize     int
	BatchInterval time.Duration
	// HTTP is the batch endpoint sink, guarded by the breaker.
	HTTP BatchSink
	// Durable is tried first when connected.
	Durable DurableSink
	Breaker BreakerConfig
	Logger  Logger
	Metrics *MetricsCollector
	// FlushTimeout bounds one delivery; zero means 30s.
	FlushTimeout time.Duration
}

// AuditQueue batches audit entries and ships them off the request path.
//
// Add flushes once BatchSize entries are queued, otherwise a single timer
// flushes after BatchInterval. Delivery tries the durable sink first and
// falls back to HTTP while the breaker allows it. Undeliverable batches are
// dropped; no error ever escapes Add or Flush.
type AuditQueue struct {
	config  AuditQueueConfig
	breaker *AuditBreaker

	mu       sync.Mutex
	queue    []queuedEntry
	timer    *time.Timer
	flushing bool
	closed   bool
	// idle is signalled whenever a flush finishes.
	idle *sync.Cond

	inflight sync.WaitGroup
}

// NewAuditQueue creates an idle queue.
func NewAuditQueue(config AuditQueueConfig) *AuditQueue {
	if config.BatchSize <= 0 {
		config.BatchSize = 50
	}
	if config.BatchInterval <= 0 {
		config.BatchInterval = 5 * time.Second
	}
	if config.FlushTimeout <= 0 {
		config.FlushTimeout = 30 * time.Second
	}
	q := &AuditQueue{
		config:  config,
		breaker: NewAuditBreaker(config.Breaker),
	}
	q.idle = sync.NewCond(&q.mu)
	return q
}

// Breaker exposes the HTTP delivery breaker.
func (q *AuditQueue) Breaker() *AuditBreaker {
	return q.breaker
}

// Len returns the number of queued entries.
func (q *AuditQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queue)
}

// Add queues an entry.
func (q *AuditQueue) Add(entry AuditEntry) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.config.Metrics.RecordAuditEntries("dropped", 1)
		return
	}

	q.queue = append(q.queue, queuedEntry{entry: entry, queuedAt: time.Now()})
	if len(q.queue) >= q.config.BatchSize {
		q.stopTimerLocked()
		q.inflight.Add(1)
		q.mu.Unlock()
		q.flushAsync()
		return
	}
	q.armTimerLocked()
	q.mu.Unlock()
}

// Audit implements Auditor by queueing the entry.
func (q *AuditQueue) Audit(_ context.Context, event, resource string, entry AuditEntry) error {
	entry.Event = event
	entry.Resource = resource
	q.Add(entry)
	return nil
}

// Error implements Auditor by queueing an error entry.
func (q *AuditQueue) Error(_ context.Context, message string, details map[string]any, tags ...string) error {
	q.Add(AuditEntry{
		Timestamp: time.Now().UTC(),
		Event:     AuditEventError,
		Error:     message,
		Details:   details,
		Tags:      tags,
	})
	return nil
}

// Flush drains the queue and delivers it. It is a no-op while another flush
// is running or when nothing is queued.
func (q *AuditQueue) Flush(ctx context.Context) {
	q.mu.Lock()
	if q.flushing || len(q.queue) == 0 {
		q.mu.Unlock()
		return
	}
	q.flushing = true
	batch := q.queue
	q.queue = nil
	q.stopTimerLocked()
	q.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			q.warn("Audit flush panicked", "panic", r)
		}
		q.mu.Lock()
		q.flushing = false
		if len(q.queue) > 0 && !q.closed {
			q.armTimerLocked()
		}
		q.idle.Broadcast()
		q.mu.Unlock()
	}()

	entries := make([]AuditEntry, len(batch))
	for i, qe := range batch {
		entries[i] = qe.entry
		if entries[i].Timestamp.IsZero() {
			entries[i].Timestamp = qe.queuedAt.UTC()
		}
	}

	ctx, cancel := context.WithTimeout(ctx, q.config.FlushTimeout)
	defer cancel()
	q.deliver(ctx, entries)
}

func (q *AuditQueue) deliver(ctx context.Context, entries []AuditEntry) {
	if d := q.config.Durable; d != nil && d.Connected() {
		err := d.Send(ctx, entries)
		if err == nil {
			q.config.Metrics.RecordAuditEntries("durable", len(entries))
			return
		}
		q.warn("Durable audit sink failed, falling back to HTTP", "entries", len(entries), "error", err)
	}

	if q.config.HTTP == nil || !q.breaker.Allow() {
		q.config.Metrics.RecordAuditEntries("dropped", len(entries))
		return
	}

	if err := q.config.HTTP.Send(ctx, entries); err != nil {
		opened := q.breaker.RecordFailure()
		q.config.Metrics.RecordAuditEntries("dropped", len(entries))
		q.config.Metrics.RecordAuditBreakerState(opened)
		q.warn("Audit batch delivery failed", "entries", len(entries), "breakerOpen", opened, "error", err)
		return
	}

	q.breaker.RecordSuccess()
	q.config.Metrics.RecordAuditBreakerState(false)
	q.config.Metrics.RecordAuditEntries("http", len(entries))
}

// Close stops the timer, waits for running flushes, timer-driven ones
// included, and delivers whatever is still queued. Entries added after Close
// are dropped.
func (q *AuditQueue) Close(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.stopTimerLocked()
	q.mu.Unlock()

	for {
		q.inflight.Wait()
		q.mu.Lock()
		for q.flushing {
			q.idle.Wait()
		}
		pending := len(q.queue)
		q.mu.Unlock()
		if pending == 0 {
			return
		}
		q.Flush(ctx)
	}
}

// flushAsync runs a flush in the background; the caller has already
// counted it in inflight.
func (q *AuditQueue) flushAsync() {
	go func() {
		defer q.inflight.Done()
		q.Flush(context.Background())
	}()
}

func (q *AuditQueue) armTimerLocked() {
	if q.timer != nil {
		return
	}
	var t *time.Timer
	t = time.AfterFunc(q.config.BatchInterval, func() {
		q.mu.Lock()
		if q.timer == t {
			q.timer = nil
		}
		q.mu.Unlock()
		q.Flush(context.Background())
	})
	q.timer = t
}

func (q *AuditQueue) stopTimerLocked() {
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
}

func (q *AuditQueue) warn(msg string, keysAndValues ...any) {
	if q.config.Logger != nil {
		q.config.Logger.Warn(msg, keysAndValues...)
	}
}
