package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"mcpbridge/internal/domain"
)

type PrometheusMetrics struct {
	connectionsCreated  *prometheus.CounterVec
	connectionEvictions *prometheus.CounterVec
	activeConnections   prometheus.Gauge
	invocations         *prometheus.CounterVec
	invocationDuration  *prometheus.HistogramVec
	pings               *prometheus.CounterVec
	reconcileChanges    *prometheus.CounterVec
	listChangeEvents    *prometheus.CounterVec
}

func NewPrometheusMetrics(registerer prometheus.Registerer) *PrometheusMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)

	return &PrometheusMetrics{
		connectionsCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcpbridge_connections_created_total",
				Help: "Total number of remote sessions established",
			},
			[]string{"transport"},
		),
		connectionEvictions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcpbridge_connection_evictions_total",
				Help: "Total number of cached sessions dropped",
			},
			[]string{"transport"},
		),
		activeConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "mcpbridge_active_connections",
				Help: "Current number of cached remote sessions",
			},
		),
		invocations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcpbridge_invocations_total",
				Help: "Total number of remote tool calls",
			},
			[]string{"transport", "status"},
		),
		invocationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mcpbridge_invocation_duration_seconds",
				Help:    "Duration of remote tool calls in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"transport", "status"},
		),
		pings: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcpbridge_ping_total",
				Help: "Total number of liveness probes by result",
			},
			[]string{"transport", "result"},
		),
		reconcileChanges: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcpbridge_reconcile_changes_total",
				Help: "Registry changes applied by reconciliation",
			},
			[]string{"source", "change"},
		),
		listChangeEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcpbridge_list_change_events_total",
				Help: "Total number of list_changed notifications received",
			},
			[]string{"kind"},
		),
	}
}

func (p *PrometheusMetrics) ObserveConnectionCreated(kind domain.TransportKind) {
	p.connectionsCreated.WithLabelValues(string(kind)).Inc()
}

func (p *PrometheusMetrics) ObserveConnectionEvicted(kind domain.TransportKind) {
	p.connectionEvictions.WithLabelValues(string(kind)).Inc()
}

func (p *PrometheusMetrics) SetActiveConnections(count int) {
	p.activeConnections.Set(float64(count))
}

func (p *PrometheusMetrics) ObserveInvocation(kind domain.TransportKind, status domain.CallStatus, duration time.Duration) {
	p.invocations.WithLabelValues(string(kind), string(status)).Inc()
	p.invocationDuration.WithLabelValues(string(kind), string(status)).Observe(duration.Seconds())
}

func (p *PrometheusMetrics) ObservePing(kind domain.TransportKind, ok bool) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	p.pings.WithLabelValues(string(kind), result).Inc()
}

func (p *PrometheusMetrics) ObserveReconcile(source domain.ReconcileSource, stats domain.ReconcileStats) {
	add := func(change string, n int) {
		if n > 0 {
			p.reconcileChanges.WithLabelValues(string(source), change).Add(float64(n))
		}
	}
	add("added", stats.Added)
	add("updated", stats.Updated)
	add("disabled", stats.Disabled)
	add("failed", stats.Failed)
}

func (p *PrometheusMetrics) ObserveListChange(kind domain.ListChangeKind) {
	p.listChangeEvents.WithLabelValues(string(kind)).Inc()
}

var _ domain.Metrics = (*PrometheusMetrics)(nil)
