package kunci

import (
	"testing"
	"time"
)

func TestStatsEmpty(t *testing.T) {
	var stats requestStats
	snap := stats.snapshot()

	if snap.ErrorRate != 0 || snap.CacheHitRate != 0 || snap.AverageResponseTime != 0 || snap.P99 != 0 {
		t.Errorf("expected zero snapshot, got %+v", snap)
	}
}

func TestStatsRates(t *testing.T) {
	var stats requestStats
	stats.recordRequest(10*time.Millisecond, false)
	stats.recordRequest(20*time.Millisecond, false)
	stats.recordRequest(30*time.Millisecond, true)
	stats.recordRequest(40*time.Millisecond, true)
	stats.recordCacheHit()
	stats.recordCacheMiss()
	stats.recordCacheMiss()
	stats.recordCacheMiss()

	snap := stats.snapshot()
	if snap.TotalRequests != 4 || snap.TotalFailures != 2 {
		t.Errorf("unexpected totals %+v", snap)
	}
	if snap.ErrorRate != 0.5 {
		t.Errorf("expected error rate 0.5, got %v", snap.ErrorRate)
	}
	if snap.CacheHitRate != 0.25 {
		t.Errorf("expected cache hit rate 0.25, got %v", snap.CacheHitRate)
	}
	if snap.AverageResponseTime != 25*time.Millisecond {
		t.Errorf("expected average 25ms, got %v", snap.AverageResponseTime)
	}
}

func TestStatsPercentiles(t *testing.T) {
	var stats requestStats
	// insert 100..1 so sorting is exercised
	for i := 100; i >= 1; i-- {
		stats.recordRequest(time.Duration(i)*time.Millisecond, false)
	}

	snap := stats.snapshot()
	tests := []struct {
		name string
		got  time.Duration
		want time.Duration
	}{
		{"p50", snap.P50, 51 * time.Millisecond},
		{"p95", snap.P95, 96 * time.Millisecond},
		{"p99", snap.P99, 100 * time.Millisecond},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestPercentileClamp(t *testing.T) {
	sorted := []time.Duration{time.Second}
	if got := percentile(sorted, 0.99); got != time.Second {
		t.Errorf("single sample percentile = %v, want 1s", got)
	}
	if got := percentile(nil, 0.5); got != 0 {
		t.Errorf("empty percentile = %v, want 0", got)
	}
}

func TestStatsSampleWindow(t *testing.T) {
	var stats requestStats
	for i := 0; i < maxResponseSamples+10; i++ {
		stats.recordRequest(time.Millisecond, false)
	}

	if len(stats.responseTimes) != maxResponseSamples {
		t.Errorf("expected window of %d samples, got %d", maxResponseSamples, len(stats.responseTimes))
	}
	if snap := stats.snapshot(); snap.TotalRequests != int64(maxResponseSamples+10) {
		t.Errorf("total requests must count every request, got %d", snap.TotalRequests)
	}
}
