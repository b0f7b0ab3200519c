package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/advanced-filters-api/internal/models"
)

// Outcomes of applying a saved filter to a changelist.
const (
	ApplyOutcomeNone       = "none"
	ApplyOutcomeApplied    = "applied"
	ApplyOutcomeEmpty      = "empty"
	ApplyOutcomeNotFound   = "not_found"
	ApplyOutcomeWrongModel = "wrong_model"
	ApplyOutcomeDecode     = "decode_error"
	ApplyOutcomeEvaluate   = "evaluate_error"
)

// MetricsService encapsulates Prometheus instrumentation and keeps counters for summaries.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	cacheLatency    prometheus.Observer
	applyTotal      *prometheus.CounterVec
	applyDuration   prometheus.Observer
	decodeErrors    *prometheus.CounterVec

	requestCount         uint64
	requestDurationTotal uint64
	cacheHitCount        uint64
	cacheMissCount       uint64
	decodeErrorCount     uint64

	mu            sync.Mutex
	applyOutcomes map[string]uint64
}

// NewMetricsService registers the service collectors on a private registry.
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

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lookup_cache_hits_total",
		Help: "Saved filter menu cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lookup_cache_misses_total",
		Help: "Saved filter menu cache misses",
	})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "lookup_cache_latency_seconds",
		Help:    "Latency of saved filter menu cache reads",
		Buckets: prometheus.DefBuckets,
	})

	applyTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "advanced_filter_apply_total",
		Help: "Saved filter applications by outcome",
	}, []string{"outcome"})

	applyDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "advanced_filter_apply_seconds",
		Help:    "Time spent narrowing a collection with a saved filter",
		Buckets: prometheus.DefBuckets,
	})

	decodeErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "advanced_filter_decode_errors_total",
		Help: "Stored queries that failed to decode",
	}, []string{"source"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheHits, cacheMisses, cacheLatency, applyTotal, applyDuration, decodeErrors, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		cacheLatency:    cacheLatency,
		applyTotal:      applyTotal,
		applyDuration:   applyDuration,
		decodeErrors:    decodeErrors,
		applyOutcomes:   make(map[string]uint64),
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
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records a cache read.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
		return
	}
	m.cacheMisses.Inc()
	atomic.AddUint64(&m.cacheMissCount, 1)
}

// RecordApply counts one saved filter application.
func (m *MetricsService) RecordApply(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.applyTotal.WithLabelValues(outcome).Inc()
	if outcome == ApplyOutcomeApplied {
		m.applyDuration.Observe(duration.Seconds())
	}
	m.mu.Lock()
	m.applyOutcomes[outcome]++
	m.mu.Unlock()
}

// RecordDecodeError counts a stored query that could not be decoded.
func (m *MetricsService) RecordDecodeError(source string) {
	if m == nil {
		return
	}
	m.decodeErrors.WithLabelValues(source).Inc()
	atomic.AddUint64(&m.decodeErrorCount, 1)
}

// Snapshot summarises the counters.
func (m *MetricsService) Snapshot() models.ServiceMetrics {
	if m == nil {
		return models.ServiceMetrics{}
	}
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}
	var ratio float64
	if hits+misses > 0 {
		ratio = float64(hits) / float64(hits+misses)
	}

	m.mu.Lock()
	outcomes := make(map[string]uint64, len(m.applyOutcomes))
	for k, v := range m.applyOutcomes {
		outcomes[k] = v
	}
	m.mu.Unlock()

	return models.ServiceMetrics{
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		CacheHitRatio:            ratio,
		FilterApplications:       outcomes,
		DecodeErrors:             atomic.LoadUint64(&m.decodeErrorCount),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
