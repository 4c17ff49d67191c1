package kunci

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"
)

// RedisListSink pushes audit batches onto a Redis list for a separate
// shipper to drain.
type RedisListSink struct {
	client redis.UniversalClient
	key    string
	cb     *gobreaker.CircuitBreaker[struct{}]
}

// NewRedisListSink creates a sink appending to key.
func NewRedisListSink(client redis.UniversalClient, key string) *RedisListSink {
	if key == "" {
		key = "kunci:audit:logs"
	}
	return &RedisListSink{
		client: client,
		key:    key,
		cb:     newSinkBreaker("audit-redis"),
	}
}

// Connected implements DurableSink.
func (s *RedisListSink) Connected() bool {
	return s.client != nil && s.cb.State() != gobreaker.StateOpen
}

// Send implements BatchSink.
func (s *RedisListSink) Send(ctx context.Context, entries []AuditEntry) error {
	body, err := json.Marshal(batchPayload{Logs: entries})
	if err != nil {
		return fmt.Errorf("encode audit batch: %w", err)
	}

	_, err = s.cb.Execute(func() (struct{}, error) {
		return struct{}{}, s.client.RPush(ctx, s.key, body).Err()
	})
	if err != nil {
		return fmt.Errorf("redis: push audit batch: %w", err)
	}
	return nil
}
