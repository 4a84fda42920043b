package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the authorization service. All
// record methods are safe on a nil receiver so instrumentation stays
// optional in tests.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	decisionsTotal  *prometheus.CounterVec
	decisionLatency prometheus.Histogram
	permissionCache *prometheus.CounterVec
	auditDropped    prometheus.Counter
}

// NewMetrics initialises the registry and the service's metric families.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bookline_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bookline_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bookline_authz_decisions_total",
		Help: "Access decisions by outcome and security level.",
	}, []string{"outcome", "security_level"})
	decisionLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "bookline_authz_decision_duration_seconds",
		Help:    "Full decision pipeline latency.",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
	})
	cache := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bookline_authz_permission_cache_total",
		Help: "Permission set cache lookups by result.",
	}, []string{"result"})
	auditDropped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bookline_authz_audit_dropped_total",
		Help: "Audit events dropped because the emitter queue was full.",
	})
	registry.MustRegister(requests, duration, decisions, decisionLatency, cache, auditDropped)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		decisionsTotal:  decisions,
		decisionLatency: decisionLatency,
		permissionCache: cache,
		auditDropped:    auditDropped,
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

// RecordDecision counts a finished access decision.
func (m *Metrics) RecordDecision(granted bool, securityLevel string, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "denied"
	if granted {
		outcome = "granted"
	}
	m.decisionsTotal.WithLabelValues(outcome, securityLevel).Inc()
	m.decisionLatency.Observe(elapsed.Seconds())
}

// RecordPermissionCache counts a cache lookup result (hit, miss or
// coalesced).
func (m *Metrics) RecordPermissionCache(result string) {
	if m == nil {
		return
	}
	m.permissionCache.WithLabelValues(result).Inc()
}

// RecordAuditDrop counts a dropped audit event.
func (m *Metrics) RecordAuditDrop() {
	if m == nil {
		return
	}
	m.auditDropped.Inc()
}

// Registerer exposes the registry for custom metric registration.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// Middleware records request metrics for every HTTP request.
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
