package service

import (
	"net/http"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Oliskey-School/School-app--sub008/internal/models"
)

const metricsNamespace = "timetable"

// solveBuckets spans a trivial single-class solve up to the default search timeout.
var solveBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10}

// MetricsService owns a private Prometheus registry and keeps running
// totals for the JSON summary endpoint.
type MetricsService struct {
	handler http.Handler

	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLookup     *prometheus.HistogramVec
	cacheWrite      prometheus.Histogram
	dbQueryDuration *prometheus.HistogramVec
	solveDuration   *prometheus.HistogramVec
	solveTotal      *prometheus.CounterVec
	solveNodes      prometheus.Histogram

	cacheHitCount        atomic.Uint64
	cacheMissCount       atomic.Uint64
	requestCount         atomic.Uint64
	requestDurationTotal atomic.Uint64
	dbQueryCount         atomic.Uint64
	dbQueryDurationTotal atomic.Uint64
	solveCount           atomic.Uint64
	solveDurationTotal   atomic.Uint64
	solveNodesTotal      atomic.Uint64

	mu         sync.Mutex
	solverRuns map[string]uint64
}

// NewMetricsService registers the HTTP, cache, database and solver collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	m := &MetricsService{
		handler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route template.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		requestTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route template and status.",
		}, []string{"method", "route", "status"}),
		cacheLookup: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "cache",
			Name:      "lookup_seconds",
			Help:      "Result cache lookups by outcome.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 10),
		}, []string{"result"}),
		cacheWrite: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "cache",
			Name:      "write_seconds",
			Help:      "Result cache writes.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 10),
		}),
		dbQueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "db",
			Name:      "query_duration_seconds",
			Help:      "Timetable store queries by label.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"query"}),
		solveDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "solve_duration_seconds",
			Help:      "Wall-clock time spent scheduling one class.",
			Buckets:   solveBuckets,
		}, []string{"status"}),
		solveTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "solve_total",
			Help:      "Scheduled classes by result status.",
		}, []string{"status"}),
		solveNodes: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "search_nodes",
			Help:      "Search nodes expanded per scheduled class.",
			Buckets:   prometheus.ExponentialBuckets(10, 4, 9),
		}),
		solverRuns: make(map[string]uint64),
	}
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: "cache",
		Name:      "hit_ratio",
		Help:      "Result cache hits over all lookups since start.",
	}, m.cacheHitRatio)
	return m
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records one finished request.
func (m *MetricsService) ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	code := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, route, code).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, route, code).Inc()
	m.requestCount.Add(1)
	m.requestDurationTotal.Add(uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records a cache lookup.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
		m.cacheHitCount.Add(1)
	} else {
		m.cacheMissCount.Add(1)
	}
	m.cacheLookup.WithLabelValues(result).Observe(duration.Seconds())
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveDBQuery records database query timing.
func (m *MetricsService) ObserveDBQuery(label string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dbQueryDuration.WithLabelValues(label).Observe(duration.Seconds())
	m.dbQueryCount.Add(1)
	m.dbQueryDurationTotal.Add(uint64(duration.Nanoseconds()))
}

// ObserveSolve records the outcome of scheduling one class.
func (m *MetricsService) ObserveSolve(status string, nodes int, duration time.Duration) {
	if m == nil {
		return
	}
	m.solveDuration.WithLabelValues(status).Observe(duration.Seconds())
	m.solveTotal.WithLabelValues(status).Inc()
	m.solveNodes.Observe(float64(nodes))
	m.solveCount.Add(1)
	m.solveDurationTotal.Add(uint64(duration.Nanoseconds()))
	m.solveNodesTotal.Add(uint64(nodes))

	m.mu.Lock()
	m.solverRuns[status]++
	m.mu.Unlock()
}

func (m *MetricsService) cacheHitRatio() float64 {
	hits := m.cacheHitCount.Load()
	total := hits + m.cacheMissCount.Load()
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

// averageMs divides a nanosecond total by count, in milliseconds.
func averageMs(totalNs, count uint64) float64 {
	if count == 0 {
		return 0
	}
	return float64(totalNs) / float64(count) / float64(time.Millisecond)
}

// Snapshot returns aggregated metrics suitable for the summary endpoint.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	m.mu.Lock()
	runs := make(map[string]uint64, len(m.solverRuns))
	for status, count := range m.solverRuns {
		runs[status] = count
	}
	m.mu.Unlock()

	requests := m.requestCount.Load()
	dbCount := m.dbQueryCount.Load()
	return models.SystemMetrics{
		CacheHitRatio:            m.cacheHitRatio(),
		CacheHits:                m.cacheHitCount.Load(),
		CacheMisses:              m.cacheMissCount.Load(),
		RequestsTotal:            requests,
		AverageRequestDurationMs: averageMs(m.requestDurationTotal.Load(), requests),
		DBQueryCount:             dbCount,
		AverageDBQueryDurationMs: averageMs(m.dbQueryDurationTotal.Load(), dbCount),
		SolverRuns:               runs,
		AverageSolveDurationMs:   averageMs(m.solveDurationTotal.Load(), m.solveCount.Load()),
		SolverNodesTotal:         m.solveNodesTotal.Load(),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
