package kunci

import (
	"context"
	"net/http"
)

// cacheKeyPrefix marks derived GET cache and deduplication keys.
const cacheKeyPrefix = "GET:"

// anonymousKeyPrefix marks keys of GETs sent without the bearer token.
const anonymousKeyPrefix = "GET:anon:"

// deriveCacheKey builds the key shared by the response cache and the
// in-flight registry. resolvedURL already carries a sorted query string.
// Calls made with SkipAuth never share a key with authenticated ones; calls
// that carry their own credential headers should set WithCacheKey.
func deriveCacheKey(opts RequestOptions, resolvedURL string) string {
	if opts.Cache.Key != "" {
		return opts.Cache.Key
	}
	if opts.SkipAuth {
		return anonymousKeyPrefix + resolvedURL
	}
	return cacheKeyPrefix + resolvedURL
}

// get serves a GET from the cache when possible and otherwise joins or
// starts the single in-flight execution for its key.
//
// The shared execution runs on the context of the caller that started it.
// Every caller receives that one outcome, so if the starting caller is
// cancelled the others see the same cancellation error; each caller can
// still stop waiting early through its own context.
func (c *Client) get(ctx context.Context, call *call) (*Response, error) {
	if call.cacheable {
		if resp, ok := c.cache.Get(call.cacheKey); ok {
			c.stats.recordCacheHit()
			c.metrics.RecordCacheHit(call.endpoint)
			if c.debugEnabled(c.debug.LogCache) {
				c.logger.Debug("Cache hit", "key", call.cacheKey)
			}
			return resp, nil
		}
		c.stats.recordCacheMiss()
		c.metrics.RecordCacheMiss(call.endpoint)
	}

	ch := c.pending.DoChan(call.cacheKey, func() (any, error) {
		return c.execute(ctx, call)
	})

	select {
	case res := <-ch:
		if res.Shared {
			c.metrics.RecordDeduplicationHit(call.endpoint)
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Response), nil
	case <-ctx.Done():
		return nil, c.contextError(ctx, call, "", 0)
	}
}

// isIdempotentRead reports whether method takes part in caching and deduplication.
func isIdempotentRead(method string) bool {
	return method == http.MethodGet
}
