package domain

import "time"

// Config is the validated process configuration.
type Config struct {
	Discovery     DiscoveryConfig
	Remotes       []RemoteSpec
	Client        ClientConfig
	Store         StoreConfig
	Reconciler    ReconcilerConfig
	Observability ObservabilityConfig
}

type DiscoveryConfig struct {
	Enabled               bool
	Concurrency           int
	ReenableOnRediscovery bool
}

// RemoteSpec is one configured remote endpoint.
type RemoteSpec struct {
	Name             string
	Binding          Binding
	MinServerVersion string
}

type ClientConfig struct {
	Name            string
	Version         string
	ConnectTimeout  time.Duration
	PingTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxRetries      int
}

type StoreConfig struct {
	Path string
}

type ReconcilerConfig struct {
	RefetchAttempts int
}

type ObservabilityConfig struct {
	ListenAddress string
	Metrics       bool
	Healthz       bool
}

// RemoteByKey finds the remote whose binding has the given pool key.
func (c Config) RemoteByKey(key string) (RemoteSpec, bool) {
	for _, remote := range c.Remotes {
		if remote.Binding.Key() == key {
			return remote, true
		}
	}
	return RemoteSpec{}, false
}
