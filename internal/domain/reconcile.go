package domain

// ReconcileSource labels what triggered a reconciliation pass.
type ReconcileSource string

const (
	ReconcileSourceDiscovery    ReconcileSource = "discovery"
	ReconcileSourceNotification ReconcileSource = "notification"
)

// ReconcilePolicy parameterizes the shared reconciliation pass.
type ReconcilePolicy struct {
	Source ReconcileSource
	// ReenableDisabled flips DISABLED entries back to ENABLED when they are
	// present in the remote list.
	ReenableDisabled bool
	// DisableMissing soft-removes REMOTE entries bound to the endpoint that
	// are absent from the remote list.
	DisableMissing bool
}

// DiscoveryPolicy is the startup/on-demand policy. reenable selects the
// open-question behavior for plain rediscovery.
func DiscoveryPolicy(reenable bool) ReconcilePolicy {
	return ReconcilePolicy{Source: ReconcileSourceDiscovery, ReenableDisabled: reenable}
}

// NotificationPolicy is the list_changed policy.
func NotificationPolicy() ReconcilePolicy {
	return ReconcilePolicy{
		Source:           ReconcileSourceNotification,
		ReenableDisabled: true,
		DisableMissing:   true,
	}
}

// ReconcileStats counts the effect of one pass.
type ReconcileStats struct {
	Added     int `json:"added"`
	Updated   int `json:"updated"`
	Disabled  int `json:"disabled"`
	Unchanged int `json:"unchanged"`
	Failed    int `json:"failed"`
}

func (s ReconcileStats) Changed() bool {
	return s.Added+s.Updated+s.Disabled > 0
}

func (s *ReconcileStats) Merge(other ReconcileStats) {
	s.Added += other.Added
	s.Updated += other.Updated
	s.Disabled += other.Disabled
	s.Unchanged += other.Unchanged
	s.Failed += other.Failed
}
