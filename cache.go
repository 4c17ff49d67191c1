package kunci

import (
	"math"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// Cache stores successful GET responses keyed by cache key.
//
// Get reports a miss for entries whose TTL has passed. Set inserts or
// overwrites and keeps at most maxSize entries by dropping the oldest
// inserted key; maxSize <= 0 means unbounded.
type Cache interface {
	Get(key string) (*Response, bool)
	Set(key string, resp *Response, ttl time.Duration, maxSize int)
	Clear()
	Len() int
}

// CacheEntry is a stored response with its expiry.
type CacheEntry struct {
	Key       string
	Response  *Response
	ExpiresAt time.Time
}

const unboundedCacheSize = math.MaxInt32

// MemoryCache is an in-process Cache with lazy expiry and insertion-order
// eviction. Reads never change eviction order.
type MemoryCache struct {
	mu      sync.Mutex
	entries *simplelru.LRU[string, *CacheEntry]
	maxSize int
	now     func() time.Time
}

// MemoryCacheOption configures a MemoryCache.
type MemoryCacheOption func(*MemoryCache)

// WithCacheClock replaces the wall clock used for expiry checks.
func WithCacheClock(now func() time.Time) MemoryCacheOption {
	return func(c *MemoryCache) {
		if now != nil {
			c.now = now
		}
	}
}

// NewMemoryCache creates an empty MemoryCache.
func NewMemoryCache(opts ...MemoryCacheOption) *MemoryCache {
	entries, err := simplelru.NewLRU[string, *CacheEntry](unboundedCacheSize, nil)
	if err != nil {
		// only returned for a non-positive size
		panic(err)
	}
	c := &MemoryCache{
		entries: entries,
		maxSize: unboundedCacheSize,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the response stored under key if it has not expired.
// Expired entries stay in place until evicted or overwritten.
func (c *MemoryCache) Get(key string) (*Response, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries.Peek(key)
	if !ok {
		return nil, false
	}
	if !c.now().Before(entry.ExpiresAt) {
		return nil, false
	}
	return entry.Response, true
}

// Set stores resp under key for ttl. Overwriting a key moves it to the
// newest insertion position.
func (c *MemoryCache) Set(key string, resp *Response, ttl time.Duration, maxSize int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if maxSize <= 0 {
		maxSize = unboundedCacheSize
	}
	if maxSize != c.maxSize {
		c.entries.Resize(maxSize)
		c.maxSize = maxSize
	}

	c.entries.Add(key, &CacheEntry{
		Key:       key,
		Response:  resp,
		ExpiresAt: c.now().Add(ttl),
	})
}

// Clear drops every entry.
func (c *MemoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Purge()
}

// Len returns the number of stored entries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

// Keys returns stored keys from oldest to newest insertion.
func (c *MemoryCache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Keys()
}
