package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcpbridge/internal/domain"
)

func TestPrometheusMetrics_RegistersAll(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewPrometheusMetrics(registry)

	m.ObserveConnectionCreated(domain.TransportEventStream)
	m.ObserveConnectionEvicted(domain.TransportEventStream)
	m.SetActiveConnections(2)
	m.ObserveInvocation(domain.TransportStreamingHTTP, domain.CallStatusSuccess, 20*time.Millisecond)
	m.ObservePing(domain.TransportStreamingHTTP, false)
	m.ObserveReconcile(domain.ReconcileSourceNotification, domain.ReconcileStats{Added: 1, Disabled: 2})
	m.ObserveListChange(domain.ListChangeTools)

	families, err := registry.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, family := range families {
		names = append(names, family.GetName())
	}

	assert.Contains(t, names, "mcpbridge_connections_created_total")
	assert.Contains(t, names, "mcpbridge_connection_evictions_total")
	assert.Contains(t, names, "mcpbridge_active_connections")
	assert.Contains(t, names, "mcpbridge_invocations_total")
	assert.Contains(t, names, "mcpbridge_invocation_duration_seconds")
	assert.Contains(t, names, "mcpbridge_ping_total")
	assert.Contains(t, names, "mcpbridge_reconcile_changes_total")
	assert.Contains(t, names, "mcpbridge_list_change_events_total")
}

func TestPrometheusMetrics_ReconcileCounts(t *testing.T) {
	m := NewPrometheusMetrics(prometheus.NewRegistry())

	m.ObserveReconcile(domain.ReconcileSourceDiscovery, domain.ReconcileStats{Added: 2, Updated: 1, Failed: 1})
	m.ObserveReconcile(domain.ReconcileSourceDiscovery, domain.ReconcileStats{Added: 1})

	assert.Equal(t, 3.0, testutil.ToFloat64(m.reconcileChanges.WithLabelValues("discovery", "added")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reconcileChanges.WithLabelValues("discovery", "updated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reconcileChanges.WithLabelValues("discovery", "failed")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.reconcileChanges.WithLabelValues("discovery", "disabled")))
}

func TestPrometheusMetrics_PingResultLabel(t *testing.T) {
	m := NewPrometheusMetrics(prometheus.NewRegistry())
	m.ObservePing(domain.TransportEventStream, true)
	m.ObservePing(domain.TransportEventStream, false)
	m.ObservePing(domain.TransportEventStream, false)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.pings.WithLabelValues("event-stream", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.pings.WithLabelValues("event-stream", "failed")))
}
