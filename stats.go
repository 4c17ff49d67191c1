package kunci

import (
	"sort"
	"sync"
	"time"
)

// maxResponseSamples bounds the response-time window used for percentiles.
const maxResponseSamples = 10000

// MetricsSnapshot is a point-in-time view of a client's running counters.
type MetricsSnapshot struct {
	TotalRequests       int64
	TotalFailures       int64
	AverageResponseTime time.Duration
	P50                 time.Duration
	P95                 time.Duration
	P99                 time.Duration
	ErrorRate           float64
	CacheHits           int64
	CacheMisses         int64
	CacheHitRate        float64
}

// requestStats holds per-client counters. They are never reset.
type requestStats struct {
	mu            sync.Mutex
	totalRequests int64
	totalFailures int64
	responseTimes []time.Duration
	next          int
	cacheHits     int64
	cacheMisses   int64
}

func (s *requestStats) recordRequest(d time.Duration, failed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.totalRequests++
	if failed {
		s.totalFailures++
	}
	if len(s.responseTimes) < maxResponseSamples {
		s.responseTimes = append(s.responseTimes, d)
		return
	}
	s.responseTimes[s.next] = d
	s.next = (s.next + 1) % maxResponseSamples
}

func (s *requestStats) recordCacheHit() {
	s.mu.Lock()
	s.cacheHits++
	s.mu.Unlock()
}

func (s *requestStats) recordCacheMiss() {
	s.mu.Lock()
	s.cacheMisses++
	s.mu.Unlock()
}

func (s *requestStats) snapshot() MetricsSnapshot {
	s.mu.Lock()
	snap := MetricsSnapshot{
		TotalRequests: s.totalRequests,
		TotalFailures: s.totalFailures,
		CacheHits:     s.cacheHits,
		CacheMisses:   s.cacheMisses,
	}
	times := make([]time.Duration, len(s.responseTimes))
	copy(times, s.responseTimes)
	s.mu.Unlock()

	if snap.TotalRequests > 0 {
		snap.ErrorRate = float64(snap.TotalFailures) / float64(snap.TotalRequests)
	}
	if lookups := snap.CacheHits + snap.CacheMisses; lookups > 0 {
		snap.CacheHitRate = float64(snap.CacheHits) / float64(lookups)
	}

	if len(times) == 0 {
		return snap
	}

	var total time.Duration
	for _, d := range times {
		total += d
	}
	snap.AverageResponseTime = total / time.Duration(len(times))

	sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })
	snap.P50 = percentile(times, 0.50)
	snap.P95 = percentile(times, 0.95)
	snap.P99 = percentile(times, 0.99)
	return snap
}

// percentile picks sorted[floor(len*p)], clamped to the last element.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)) * p)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
