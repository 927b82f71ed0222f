package telemetry

import (
	"sort"
	"sync"
)

// HealthTracker records named readiness checks.
type HealthTracker struct {
	mu     sync.RWMutex
	checks map[string]string
}

type HealthReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func NewHealthTracker() *HealthTracker {
	return &HealthTracker{checks: make(map[string]string)}
}

// Pending registers a check that is not ready yet.
func (h *HealthTracker) Pending(name string) {
	h.set(name, "pending")
}

func (h *HealthTracker) Ready(name string) {
	h.set(name, "ok")
}

func (h *HealthTracker) Failed(name string) {
	h.set(name, "failed")
}

func (h *HealthTracker) set(name, state string) {
	if h == nil {
		return
	}
	h.mu.Lock()
	h.checks[name] = state
	h.mu.Unlock()
}

// Report is "ok" only when every registered check is ok.
func (h *HealthTracker) Report() HealthReport {
	if h == nil {
		return HealthReport{Status: "ok"}
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	report := HealthReport{Status: "ok", Checks: make(map[string]string, len(names))}
	for _, name := range names {
		state := h.checks[name]
		report.Checks[name] = state
		if state != "ok" {
			report.Status = "degraded"
		}
	}
	return report
}
