package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the service on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	requests           *prometheus.CounterVec
	requestDuration    *prometheus.HistogramVec
	errors             *prometheus.CounterVec
	submissions        *prometheus.CounterVec
	decisions          *prometheus.CounterVec
	invalidTransitions prometheus.Counter
	staleWrites        prometheus.Counter
	pushesDelivered    prometheus.Counter
	pushesDropped      prometheus.Counter
	activeSessions     prometheus.Gauge
}

// NewMetrics registers collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "verification_http_requests_total",
			Help: "HTTP requests by route, method and status",
		}, []string{"path", "method", "status"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "verification_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"path", "method"}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "verification_http_errors_total",
			Help: "HTTP errors by route, method and domain error code",
		}, []string{"path", "method", "code"}),
		submissions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "verification_submissions_total",
			Help: "Document group submissions by group kind",
		}, []string{"group_kind"}),
		decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "verification_decisions_total",
			Help: "Operator decisions by action and group kind",
		}, []string{"action", "group_kind"}),
		invalidTransitions: factory.NewCounter(prometheus.CounterOpts{
			Name: "verification_invalid_transitions_total",
			Help: "Rejected state machine transitions",
		}),
		staleWrites: factory.NewCounter(prometheus.CounterOpts{
			Name: "verification_stale_writes_total",
			Help: "Operator actions that lost an optimistic concurrency race",
		}),
		pushesDelivered: factory.NewCounter(prometheus.CounterOpts{
			Name: "verification_pushes_delivered_total",
			Help: "Realtime pushes written to a session",
		}),
		pushesDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "verification_pushes_dropped_total",
			Help: "Realtime pushes dropped because a session buffer was full or out of order",
		}),
		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "verification_realtime_sessions",
			Help: "Connected realtime sessions",
		}),
	}
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(path, method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(path, method, code).Inc()
}

// RecordSubmission counts an accepted upload into a group.
func (m *Metrics) RecordSubmission(groupKind string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(groupKind).Inc()
}

// RecordDecision counts an operator action that changed state.
func (m *Metrics) RecordDecision(action, groupKind string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(action, groupKind).Inc()
}

// RecordInvalidTransition counts a refused transition.
func (m *Metrics) RecordInvalidTransition() {
	if m == nil {
		return
	}
	m.invalidTransitions.Inc()
}

// RecordStaleWrite counts a lost optimistic concurrency race.
func (m *Metrics) RecordStaleWrite() {
	if m == nil {
		return
	}
	m.staleWrites.Inc()
}

// RecordPush counts a push as delivered or dropped.
func (m *Metrics) RecordPush(delivered bool) {
	if m == nil {
		return
	}
	if delivered {
		m.pushesDelivered.Inc()
		return
	}
	m.pushesDropped.Inc()
}

// SessionOpened tracks a new realtime session.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
}

// SessionClosed tracks a closed realtime session.
func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
}
