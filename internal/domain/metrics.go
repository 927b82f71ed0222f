package domain

import "time"

// CallStatus labels the outcome of a remote call.
type CallStatus string

const (
	CallStatusSuccess CallStatus = "success"
	CallStatusError   CallStatus = "error"
)

// Metrics records pool and synchronization activity.
type Metrics interface {
	ObserveConnectionCreated(kind TransportKind)
	ObserveConnectionEvicted(kind TransportKind)
	SetActiveConnections(count int)
	ObserveInvocation(kind TransportKind, status CallStatus, duration time.Duration)
	ObservePing(kind TransportKind, ok bool)
	ObserveReconcile(source ReconcileSource, stats ReconcileStats)
	ObserveListChange(kind ListChangeKind)
}
