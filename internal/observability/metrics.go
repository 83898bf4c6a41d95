package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the Prometheus metrics of the service.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	documentsTotal   *prometheus.CounterVec
	documentDuration *prometheus.HistogramVec
	documentBytes    prometheus.Histogram
	cleanupFailures  *prometheus.CounterVec
	cacheLookups     *prometheus.CounterVec
	rendersInFlight  prometheus.Gauge
}

// NewMetrics builds a dedicated registry with HTTP and document metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "odyssey_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	documents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_documents_total",
		Help: "Document generations by template and outcome code.",
	}, []string{"template", "outcome"})
	documentDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "odyssey_document_duration_seconds",
		Help:    "End-to-end document generation time.",
		Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
	}, []string{"template"})
	documentBytes := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "odyssey_document_bytes",
		Help:    "Size of generated PDF documents.",
		Buckets: prometheus.ExponentialBuckets(8<<10, 2, 10),
	})
	cleanup := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_print_cleanup_failures_total",
		Help: "Browser teardown steps that failed.",
	}, []string{"stage"})
	cache := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_document_cache_lookups_total",
		Help: "Document cache lookups by result.",
	}, []string{"result"})
	inFlight := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "odyssey_renders_in_flight",
		Help: "Browser renders currently running.",
	})
	registry.MustRegister(
		requests, duration,
		documents, documentDuration, documentBytes, cleanup, cache, inFlight,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &Metrics{
		registry:         registry,
		handler:          promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:    requests,
		requestDuration:  duration,
		documentsTotal:   documents,
		documentDuration: documentDuration,
		documentBytes:    documentBytes,
		cleanupFailures:  cleanup,
		cacheLookups:     cache,
		rendersInFlight:  inFlight,
	}
}

// Handler returns the /metrics handler.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records request counts and latency per route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer exposes the registry for additional collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// ObserveDocument records one generation. outcome is "ok" or an error code.
func (m *Metrics) ObserveDocument(template, outcome string, elapsed time.Duration, size int) {
	if m == nil {
		return
	}
	m.documentsTotal.WithLabelValues(template, outcome).Inc()
	m.documentDuration.WithLabelValues(template).Observe(elapsed.Seconds())
	if size > 0 {
		m.documentBytes.Observe(float64(size))
	}
}

// CleanupFailed counts a failed teardown step.
func (m *Metrics) CleanupFailed(stage string) {
	if m == nil {
		return
	}
	m.cleanupFailures.WithLabelValues(stage).Inc()
}

// CacheLookup counts a document cache hit or miss.
func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// RenderStarted tracks a running render; call the returned func when done.
func (m *Metrics) RenderStarted() func() {
	if m == nil {
		return func() {}
	}
	m.rendersInFlight.Inc()
	return m.rendersInFlight.Dec
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
