package telemetry

import (
	"time"

	"mcpbridge/internal/domain"
)

type NoopMetrics struct{}

func NewNoopMetrics() *NoopMetrics {
	return &NoopMetrics{}
}

func (n *NoopMetrics) ObserveConnectionCreated(_ domain.TransportKind) {}

func (n *NoopMetrics) ObserveConnectionEvicted(_ domain.TransportKind) {}

func (n *NoopMetrics) SetActiveConnections(_ int) {}

func (n *NoopMetrics) ObserveInvocation(_ domain.TransportKind, _ domain.CallStatus, _ time.Duration) {
}

func (n *NoopMetrics) ObservePing(_ domain.TransportKind, _ bool) {}

func (n *NoopMetrics) ObserveReconcile(_ domain.ReconcileSource, _ domain.ReconcileStats) {}

func (n *NoopMetrics) ObserveListChange(_ domain.ListChangeKind) {}

var _ domain.Metrics = (*NoopMetrics)(nil)
