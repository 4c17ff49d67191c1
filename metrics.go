package kunci

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector exports the client's request lifecycle, cache, token and
// audit activity to Prometheus. A nil collector is valid and records nothing.
type MetricsCollector struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight *prometheus.GaugeVec

	retriesTotal *prometheus.CounterVec

	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec
	cacheSize   prometheus.Gauge

	deduplicationHits *prometheus.CounterVec

	tokenRefreshes *prometheus.CounterVec
	authFailures   *prometheus.CounterVec

	auditEntries      *prometheus.CounterVec
	auditBreakerState prometheus.Gauge

	errorsTotal *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetricsCollector creates a metrics collector on the default registerer.
func NewMetricsCollector() *MetricsCollector {
	return NewMetricsCollectorWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsCollectorWithRegistry creates a collector using supplied registerer.
func NewMetricsCollectorWithRegistry(registry prometheus.Registerer) *MetricsCollector {
	factory := promauto.With(registry)
	mc := &MetricsCollector{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kunci_requests_total",
				Help: "Total number of API requests completed",
			},
			[]string{"method", "status_code", "endpoint"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kunci_request_duration_seconds",
				Help:    "Duration of API requests in seconds, retries included",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "status_code", "endpoint"},
		),
		requestsInFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "kunci_requests_in_flight",
				Help: "Number of API requests currently in flight",
			},
			[]string{"method", "endpoint"},
		),
		retriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kunci_retries_total",
				Help: "Total number of retry attempts",
			},
			[]string{"method", "endpoint", "attempt"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kunci_cache_hits_total",
				Help: "Total number of response cache hits",
			},
			[]string{"endpoint"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kunci_cache_misses_total",
				Help: "Total number of response cache misses",
			},
			[]string{"endpoint"},
		),
		cacheSize: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "kunci_cache_size",
				Help: "Current number of entries in the response cache",
			},
		),
		deduplicationHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kunci_deduplication_hits_total",
				Help: "Total number of GET calls served by a shared in-flight request",
			},
			[]string{"endpoint"},
		),
		tokenRefreshes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kunci_token_refreshes_total",
				Help: "Total number of token refresh attempts by result",
			},
			[]string{"result"},
		),
		authFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kunci_auth_failures_total",
				Help: "Total number of terminal authentication failures",
			},
			[]string{"status_code"},
		),
		auditEntries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kunci_audit_entries_total",
				Help: "Total number of audit entries by delivery outcome",
			},
			[]string{"outcome"},
		),
		auditBreakerState: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "kunci_audit_breaker_open",
				Help: "Whether the audit HTTP delivery breaker is open (1) or closed (0)",
			},
		),
		errorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kunci_errors_total",
				Help: "Total number of errors returned to callers",
			},
			[]string{"type", "method", "endpoint"},
		),
	}
	if reg, ok := registry.(*prometheus.Registry); ok {
		mc.registry = reg
	}

	return mc
}

// RecordRequest records request count and duration.
func (mc *MetricsCollector) RecordRequest(method, endpoint string, statusCode int, duration time.Duration) {
	if mc == nil {
		return
	}

	statusCodeStr := strconv.Itoa(statusCode)
	mc.requestsTotal.WithLabelValues(method, statusCodeStr, endpoint).Inc()
	mc.requestDuration.WithLabelValues(method, statusCodeStr, endpoint).Observe(duration.Seconds())
}

// RecordRequestStart increments in-flight gauge.
func (mc *MetricsCollector) RecordRequestStart(method, endpoint string) {
	if mc == nil {
		return
	}

	mc.requestsInFlight.WithLabelValues(method, endpoint).Inc()
}

// RecordRequestEnd decrements in-flight gauge.
func (mc *MetricsCollector) RecordRequestEnd(method, endpoint string) {
	if mc == nil {
		return
	}

	mc.requestsInFlight.WithLabelValues(method, endpoint).Dec()
}

// RecordRetry increments retry counter for an attempt.
func (mc *MetricsCollector) RecordRetry(method, endpoint string, attempt int) {
	if mc == nil {
		return
	}

	mc.retriesTotal.WithLabelValues(method, endpoint, strconv.Itoa(attempt)).Inc()
}

// RecordCacheHit increments cache hit counter.
func (mc *MetricsCollector) RecordCacheHit(endpoint string) {
	if mc == nil {
		return
	}

	mc.cacheHits.WithLabelValues(endpoint).Inc()
}

// RecordCacheMiss increments cache miss counter.
func (mc *MetricsCollector) RecordCacheMiss(endpoint string) {
	if mc == nil {
		return
	}

	mc.cacheMisses.WithLabelValues(endpoint).Inc()
}

// RecordCacheSize sets cache size gauge.
func (mc *MetricsCollector) RecordCacheSize(size int) {
	if mc == nil {
		return
	}

	mc.cacheSize.Set(float64(size))
}

// RecordDeduplicationHit increments de-dup hit counter.
func (mc *MetricsCollector) RecordDeduplicationHit(endpoint string) {
	if mc == nil {
		return
	}

	mc.deduplicationHits.WithLabelValues(endpoint).Inc()
}

// RecordTokenRefresh counts a refresh attempt.
func (mc *MetricsCollector) RecordTokenRefresh(success bool) {
	if mc == nil {
		return
	}

	result := "failure"
	if success {
		result = "success"
	}
	mc.tokenRefreshes.WithLabelValues(result).Inc()
}

// RecordAuthFailure counts a terminal 401/403.
func (mc *MetricsCollector) RecordAuthFailure(statusCode int) {
	if mc == nil {
		return
	}

	mc.authFailures.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordAuditEntries adds n entries under outcome ("durable", "http", "dropped").
func (mc *MetricsCollector) RecordAuditEntries(outcome string, n int) {
	if mc == nil || n <= 0 {
		return
	}

	mc.auditEntries.WithLabelValues(outcome).Add(float64(n))
}

// RecordAuditBreakerState sets the breaker gauge.
func (mc *MetricsCollector) RecordAuditBreakerState(open bool) {
	if mc == nil {
		return
	}

	var v float64
	if open {
		v = 1
	}
	mc.auditBreakerState.Set(v)
}

// RecordError increments error counter by type.
func (mc *MetricsCollector) RecordError(errorType, method, endpoint string) {
	if mc == nil {
		return
	}

	mc.errorsTotal.WithLabelValues(errorType, method, endpoint).Inc()
}

// GetRegistry exposes the underlying prometheus registry, or nil when the
// collector was built on a plain Registerer.
func (mc *MetricsCollector) GetRegistry() *prometheus.Registry {
	return mc.registry
}
