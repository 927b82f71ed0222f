package domain

const (
	DefaultClientName                 = "mcpbridge"
	DefaultClientVersion              = "0.1.0"
	DefaultRemoteURL                  = "http://127.0.0.1:9899"
	DefaultRemoteTransport            = "sse"
	DefaultDiscoveryEnabled           = true
	DefaultDiscoveryConcurrency       = 4
	DefaultConnectTimeoutSeconds      = 10
	DefaultPingTimeoutSeconds         = 5
	DefaultShutdownTimeoutSeconds     = 5
	DefaultStreamableHTTPMaxRetries   = 3
	DefaultRefetchAttempts            = 3
	DefaultStorePath                  = "./data/tools.db"
	DefaultObservabilityListenAddress = "127.0.0.1:9464"
)
