package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP layer,
// the gradebook cache and grading outcomes.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheLookups    *prometheus.CounterVec
	gradesApplied   *prometheus.CounterVec
	gradeRejections *prometheus.CounterVec
	bulkBatchSize   prometheus.Observer
	ledgerReplays   prometheus.Counter
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache lookups",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_lookups_total",
		Help: "Cache lookups by outcome",
	}, []string{"result"})

	gradesApplied := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "grading_grades_applied_total",
		Help: "Grades written to submissions by resulting status",
	}, []string{"status"})

	gradeRejections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "grading_rejections_total",
		Help: "Grade attempts rejected by error code",
	}, []string{"code"})

	bulkBatchSize := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "grading_bulk_batch_size",
		Help:    "Number of distinct submissions per bulk grading request",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
	})

	ledgerReplays := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gradebook_replayed_entries_total",
		Help: "Gradebook entries rewritten by resync jobs",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheLookups, gradesApplied, gradeRejections, bulkBatchSize, ledgerReplays, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheWrite:      cacheWrite,
		cacheLookups:    cacheLookups,
		gradesApplied:   gradesApplied,
		gradeRejections: gradeRejections,
		bulkBatchSize:   bulkBatchSize,
		ledgerReplays:   ledgerReplays,
	}
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

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records cache hit/miss metrics.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheLookups.WithLabelValues("hit").Inc()
		return
	}
	m.cacheLookups.WithLabelValues("miss").Inc()
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordGradeApplied counts a committed grade.
func (m *MetricsService) RecordGradeApplied(status string) {
	if m == nil {
		return
	}
	m.gradesApplied.WithLabelValues(status).Inc()
}

// RecordGradeRejected counts a grade attempt that failed with the given code.
func (m *MetricsService) RecordGradeRejected(code string) {
	if m == nil {
		return
	}
	m.gradeRejections.WithLabelValues(code).Inc()
}

// ObserveBulkBatch records the size of a bulk grading request.
func (m *MetricsService) ObserveBulkBatch(size int) {
	if m == nil {
		return
	}
	m.bulkBatchSize.Observe(float64(size))
}

// AddLedgerReplays counts gradebook rows rewritten by a resync.
func (m *MetricsService) AddLedgerReplays(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ledgerReplays.Add(float64(n))
}
