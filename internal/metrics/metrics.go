// Package metrics holds the Prometheus collectors for the relay and the
// sandbox orchestrator. All methods are safe to call on a nil *Metrics so
// components can run without instrumentation in tests.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	Registry *prometheus.Registry

	ExecutionsTotal   *prometheus.CounterVec
	ExecutionDuration *prometheus.HistogramVec
	ActiveExecutions  prometheus.Gauge
	CodeSizeBytes     prometheus.Histogram

	Connections   prometheus.Gauge
	Sessions      prometheus.Gauge
	EventsRelayed *prometheus.CounterVec
	SlowConsumers prometheus.Counter
}

// New creates and registers all metrics on a dedicated registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,

		ExecutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "collab",
				Subsystem: "sandbox",
				Name:      "executions_total",
				Help:      "Total number of sandbox executions by language and status.",
			},
			[]string{"language", "status"},
		),

		ExecutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "collab",
				Subsystem: "sandbox",
				Name:      "execution_duration_seconds",
				Help:      "Wall-clock duration of sandbox executions in seconds.",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5, 10},
			},
			[]string{"language"},
		),

		ActiveExecutions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "collab",
				Subsystem: "sandbox",
				Name:      "active_executions",
				Help:      "Number of sandboxes currently allocated.",
			},
		),

		CodeSizeBytes: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "collab",
				Subsystem: "sandbox",
				Name:      "code_size_bytes",
				Help:      "Size of submitted source in bytes.",
				Buckets:   prometheus.ExponentialBuckets(64, 4, 7),
			},
		),

		Connections: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "collab",
				Subsystem: "relay",
				Name:      "connections",
				Help:      "Number of open relay connections.",
			},
		),

		Sessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "collab",
				Subsystem: "relay",
				Name:      "sessions",
				Help:      "Number of sessions with at least one participant.",
			},
		),

		EventsRelayed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "collab",
				Subsystem: "relay",
				Name:      "events_delivered_total",
				Help:      "Outgoing events queued to connections, by event name.",
			},
			[]string{"event"},
		),

		SlowConsumers: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "collab",
				Subsystem: "relay",
				Name:      "slow_consumer_drops_total",
				Help:      "Connections dropped because their send queue was full.",
			},
		),
	}

	reg.MustRegister(
		m.ExecutionsTotal,
		m.ExecutionDuration,
		m.ActiveExecutions,
		m.CodeSizeBytes,
		m.Connections,
		m.Sessions,
		m.EventsRelayed,
		m.SlowConsumers,
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// ExecutionStarted records a sandbox allocation.
func (m *Metrics) ExecutionStarted(codeBytes int) {
	if m == nil {
		return
	}
	m.ActiveExecutions.Inc()
	m.CodeSizeBytes.Observe(float64(codeBytes))
}

// ExecutionFinished records a released sandbox and how its run ended.
func (m *Metrics) ExecutionFinished(language, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.ActiveExecutions.Dec()
	m.ExecutionsTotal.WithLabelValues(language, status).Inc()
	m.ExecutionDuration.WithLabelValues(language).Observe(d.Seconds())
}

// SetRelayState publishes the dispatcher's connection and session counts.
func (m *Metrics) SetRelayState(connections, sessions int) {
	if m == nil {
		return
	}
	m.Connections.Set(float64(connections))
	m.Sessions.Set(float64(sessions))
}

// EventDelivered counts n copies of an outgoing event.
func (m *Metrics) EventDelivered(event string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.EventsRelayed.WithLabelValues(event).Add(float64(n))
}

// SlowConsumerDropped counts a connection dropped for falling behind.
func (m *Metrics) SlowConsumerDropped() {
	if m == nil {
		return
	}
	m.SlowConsumers.Inc()
}
