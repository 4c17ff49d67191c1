package kunci

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisCacheOpTimeout = 100 * time.Millisecond

// RedisCache is a Cache shared across processes through Redis. Entries expire
// server side; maxSize is left to the Redis eviction policy. Redis failures
// are logged and reported as misses.
type RedisCache struct {
	client redis.UniversalClient
	prefix string
	logger Logger
}

type storedResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Duration   time.Duration
}

// NewRedisCache creates a RedisCache storing keys under prefix, e.g. "kunci:cache:".
func NewRedisCache(client redis.UniversalClient, prefix string, logger Logger) *RedisCache {
	if prefix == "" {
		prefix = "kunci:cache:"
	}
	return &RedisCache{client: client, prefix: prefix, logger: logger}
}

func (s *RedisCache) Get(key string) (*Response, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), redisCacheOpTimeout)
	defer cancel()

	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.warn("Redis cache get failed, treating as miss", "key", key, "error", err)
		}
		return nil, false
	}

	var stored storedResponse
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&stored); err != nil {
		s.warn("Redis cache decode failed, treating as miss", "key", key, "error", err)
		return nil, false
	}
	if stored.Header == nil {
		stored.Header = http.Header{}
	}
	return newResponse(stored.StatusCode, stored.Header, stored.Body, stored.Duration), true
}

func (s *RedisCache) Set(key string, resp *Response, ttl time.Duration, _ int) {
	if resp == nil || ttl <= 0 {
		return
	}

	var buf bytes.Buffer
	stored := storedResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       resp.Body,
		Duration:   resp.Duration,
	}
	if err := gob.NewEncoder(&buf).Encode(stored); err != nil {
		s.warn("Redis cache encode failed", "key", key, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisCacheOpTimeout)
	defer cancel()

	if err := s.client.Set(ctx, s.prefix+key, buf.Bytes(), ttl).Err(); err != nil {
		s.warn("Redis cache set failed", "key", key, "error", err)
	}
}

// Clear deletes every key under the cache prefix.
func (s *RedisCache) Clear() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := s.scan(ctx, func(keys []string) error {
		return s.client.Del(ctx, keys...).Err()
	})
	if err != nil {
		s.warn("Redis cache clear failed", "error", err)
	}
}

// Len counts keys under the cache prefix.
func (s *RedisCache) Len() int {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	var count int
	err := s.scan(ctx, func(keys []string) error {
		count += len(keys)
		return nil
	})
	if err != nil {
		s.warn("Redis cache size scan failed", "error", err)
		return 0
	}
	return count
}

func (s *RedisCache) scan(ctx context.Context, fn func(keys []string) error) error {
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.prefix+"*", 100).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := fn(keys); err != nil {
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

func (s *RedisCache) warn(msg string, keysAndValues ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, keysAndValues...)
	}
}
