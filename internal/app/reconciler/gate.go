package reconciler

import "sync/atomic"

// refreshGate admits one pass at a time for an endpoint. Triggers that
// arrive while a pass runs mark the gate dirty so exactly one follow-up pass
// runs afterwards.
type refreshGate struct {
	slot  chan struct{}
	dirty atomic.Bool
}

func newRefreshGate() *refreshGate {
	return &refreshGate{slot: make(chan struct{}, 1)}
}

// trigger records a pending refresh and reports whether the caller now owns
// the slot and must start a worker.
func (g *refreshGate) trigger() bool {
	g.dirty.Store(true)
	return g.tryAcquire()
}

func (g *refreshGate) tryAcquire() bool {
	select {
	case g.slot <- struct{}{}:
		return true
	default:
		return false
	}
}

// begin clears the pending flag at the start of a pass.
func (g *refreshGate) begin() {
	g.dirty.Store(false)
}

func (g *refreshGate) release() {
	<-g.slot
}

// finish releases the slot and reports whether the owner should run again.
func (g *refreshGate) finish() bool {
	g.release()
	return g.dirty.Load() && g.tryAcquire()
}
