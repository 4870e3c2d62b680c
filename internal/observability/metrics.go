package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the service.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	completionsTotal    *prometheus.CounterVec
	retriesTotal        prometheus.Counter
	integrityMismatches prometheus.Counter
}

// NewMetrics initialises the registry and base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stocklane_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stocklane_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	completions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stocklane_ledger_completions_total",
		Help: "Ledger completion attempts by entity and outcome.",
	}, []string{"entity", "outcome"})
	retries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stocklane_ledger_concurrency_retries_total",
		Help: "Completion transactions retried after losing a race.",
	})
	mismatches := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stocklane_ledger_integrity_mismatches_total",
		Help: "Reconciliation snapshots that failed the balance check.",
	})
	registry.MustRegister(requests, duration, completions, retries, mismatches)
	return &Metrics{
		registry:            registry,
		handler:             promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:       requests,
		requestDuration:     duration,
		completionsTotal:    completions,
		retriesTotal:        retries,
		integrityMismatches: mismatches,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records metrics for every HTTP request.
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

// CompletionRecorded counts a completion attempt per entity and outcome.
func (m *Metrics) CompletionRecorded(entity, outcome string) {
	if m == nil {
		return
	}
	m.completionsTotal.WithLabelValues(entity, outcome).Inc()
}

// RetryRecorded counts a transaction retried after a serialization failure.
func (m *Metrics) RetryRecorded() {
	if m == nil {
		return
	}
	m.retriesTotal.Inc()
}

// IntegrityMismatchRecorded counts an unbalanced reconciliation snapshot.
func (m *Metrics) IntegrityMismatchRecorded() {
	if m == nil {
		return
	}
	m.integrityMismatches.Inc()
}

// Registerer exposes the registry for custom metric registration.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
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
