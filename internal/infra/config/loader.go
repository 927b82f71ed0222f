// Package config loads and watches the bridge configuration file.
package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"mcpbridge/internal/domain"
)

// DefaultRemoteName names the endpoint configured under remote.*.
const DefaultRemoteName = "default"

type Loader struct {
	logger *zap.Logger
}

func NewLoader(logger *zap.Logger) *Loader {
	if logger == nil {
		return &Loader{logger: zap.NewNop()}
	}
	return &Loader{logger: logger.Named("config")}
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("discovery.enabled", domain.DefaultDiscoveryEnabled)
	v.SetDefault("discovery.concurrency", domain.DefaultDiscoveryConcurrency)
	v.SetDefault("discovery.reenableOnRediscovery", false)
	v.SetDefault("remote.url", domain.DefaultRemoteURL)
	v.SetDefault("remote.transportType", domain.DefaultRemoteTransport)
	v.SetDefault("client.name", domain.DefaultClientName)
	v.SetDefault("client.version", domain.DefaultClientVersion)
	v.SetDefault("client.connectTimeoutSeconds", domain.DefaultConnectTimeoutSeconds)
	v.SetDefault("client.pingTimeoutSeconds", domain.DefaultPingTimeoutSeconds)
	v.SetDefault("client.shutdownTimeoutSeconds", domain.DefaultShutdownTimeoutSeconds)
	v.SetDefault("client.maxRetries", domain.DefaultStreamableHTTPMaxRetries)
	v.SetDefault("store.path", domain.DefaultStorePath)
	v.SetDefault("reconciler.refetchAttempts", domain.DefaultRefetchAttempts)
	v.SetDefault("observability.listenAddress", domain.DefaultObservabilityListenAddress)
	v.SetDefault("observability.metrics", true)
	v.SetDefault("observability.healthz", true)
}

type rawConfig struct {
	Discovery     rawDiscovery     `mapstructure:"discovery"`
	Remote        rawDefaultRemote `mapstructure:"remote"`
	Remotes       []rawRemote      `mapstructure:"remotes"`
	Client        rawClient        `mapstructure:"client"`
	Store         rawStore         `mapstructure:"store"`
	Reconciler    rawReconciler    `mapstructure:"reconciler"`
	Observability rawObservability `mapstructure:"observability"`
}

type rawDiscovery struct {
	Enabled               bool `mapstructure:"enabled"`
	Concurrency           int  `mapstructure:"concurrency"`
	ReenableOnRediscovery bool `mapstructure:"reenableOnRediscovery"`
}

type rawDefaultRemote struct {
	URL           string            `mapstructure:"url"`
	TransportType string            `mapstructure:"transportType"`
	Headers       map[string]string `mapstructure:"headers"`
}

type rawRemote struct {
	Name             string            `mapstructure:"name"`
	URL              string            `mapstructure:"url"`
	Transport        string            `mapstructure:"transport"`
	Headers          map[string]string `mapstructure:"headers"`
	MinServerVersion string            `mapstructure:"minServerVersion"`
}

type rawClient struct {
	Name                   string `mapstructure:"name"`
	Version                string `mapstructure:"version"`
	ConnectTimeoutSeconds  int    `mapstructure:"connectTimeoutSeconds"`
	PingTimeoutSeconds     int    `mapstructure:"pingTimeoutSeconds"`
	ShutdownTimeoutSeconds int    `mapstructure:"shutdownTimeoutSeconds"`
	MaxRetries             int    `mapstructure:"maxRetries"`
}

type rawStore struct {
	Path string `mapstructure:"path"`
}

type rawReconciler struct {
	RefetchAttempts int `mapstructure:"refetchAttempts"`
}

type rawObservability struct {
	ListenAddress string `mapstructure:"listenAddress"`
	Metrics       bool   `mapstructure:"metrics"`
	Healthz       bool   `mapstructure:"healthz"`
}

// Defaults returns the configuration used when no file is given.
func Defaults() domain.Config {
	var raw rawConfig
	if err := newViper().Unmarshal(&raw); err != nil {
		panic(fmt.Sprintf("decode config defaults: %v", err))
	}
	cfg, _ := normalize(raw)
	return cfg
}

// Load reads a YAML or TOML file, expands ${ENV} placeholders, applies
// defaults and validates the result. All validation problems are reported
// together.
func (l *Loader) Load(ctx context.Context, path string) (domain.Config, error) {
	if path == "" {
		return domain.Config{}, errors.New("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Config{}, fmt.Errorf("read config: %w", err)
	}
	if isTOML(path) {
		data, err = tomlToYAML(data)
		if err != nil {
			return domain.Config{}, err
		}
	}
	return l.decode(ctx, path, data)
}

func (l *Loader) decode(ctx context.Context, path string, data []byte) (domain.Config, error) {
	expanded, unset, err := expandEnv(data)
	if err != nil {
		return domain.Config{}, err
	}
	if isTOML(path) {
		// Lines refer to the converted document, not the file.
		for i := range unset {
			unset[i].Line = 0
		}
	}
	envProblems, envWarnings := splitEnvReferences(unset)
	for _, ref := range envWarnings {
		l.logger.Warn("environment variable not set; using empty value",
			zap.String("config", path),
			zap.String("variable", ref.Name),
			zap.String("key", ref.Path),
			zap.Int("line", ref.Line),
		)
	}

	v := newViper()
	if err := v.ReadConfig(bytes.NewBufferString(expanded)); err != nil {
		return domain.Config{}, fmt.Errorf("parse config: %w", err)
	}
	var raw rawConfig
	if err := v.Unmarshal(&raw); err != nil {
		return domain.Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return domain.Config{}, err
	}

	cfg, problems := normalize(raw)
	problems = append(envProblems, problems...)
	if len(problems) > 0 {
		return domain.Config{}, errors.New(strings.Join(problems, "; "))
	}
	return cfg, nil
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

func tomlToYAML(data []byte) ([]byte, error) {
	var doc map[string]any
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse toml config: %w", err)
	}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode toml config: %w", err)
	}
	return out, nil
}

func normalize(raw rawConfig) (domain.Config, []string) {
	var problems []string

	cfg := domain.Config{
		Discovery: domain.DiscoveryConfig{
			Enabled:               raw.Discovery.Enabled,
			Concurrency:           raw.Discovery.Concurrency,
			ReenableOnRediscovery: raw.Discovery.ReenableOnRediscovery,
		},
		Client: domain.ClientConfig{
			Name:            strings.TrimSpace(raw.Client.Name),
			Version:         strings.TrimSpace(raw.Client.Version),
			ConnectTimeout:  time.Duration(raw.Client.ConnectTimeoutSeconds) * time.Second,
			PingTimeout:     time.Duration(raw.Client.PingTimeoutSeconds) * time.Second,
			ShutdownTimeout: time.Duration(raw.Client.ShutdownTimeoutSeconds) * time.Second,
			MaxRetries:      raw.Client.MaxRetries,
		},
		Store:      domain.StoreConfig{Path: strings.TrimSpace(raw.Store.Path)},
		Reconciler: domain.ReconcilerConfig{RefetchAttempts: raw.Reconciler.RefetchAttempts},
		Observability: domain.ObservabilityConfig{
			ListenAddress: strings.TrimSpace(raw.Observability.ListenAddress),
			Metrics:       raw.Observability.Metrics,
			Healthz:       raw.Observability.Healthz,
		},
	}

	if cfg.Discovery.Concurrency < 1 {
		problems = append(problems, "discovery.concurrency must be >= 1")
	}
	if raw.Client.ConnectTimeoutSeconds <= 0 {
		problems = append(problems, "client.connectTimeoutSeconds must be > 0")
	}
	if raw.Client.PingTimeoutSeconds <= 0 {
		problems = append(problems, "client.pingTimeoutSeconds must be > 0")
	}
	if raw.Client.ShutdownTimeoutSeconds <= 0 {
		problems = append(problems, "client.shutdownTimeoutSeconds must be > 0")
	}
	if raw.Client.MaxRetries < -1 {
		problems = append(problems, "client.maxRetries must be >= -1 (-1 disables retries)")
	}
	if cfg.Client.Name == "" {
		problems = append(problems, "client.name is required")
	}
	if cfg.Store.Path == "" {
		problems = append(problems, "store.path is required")
	}
	if cfg.Reconciler.RefetchAttempts < 1 {
		problems = append(problems, "reconciler.refetchAttempts must be >= 1")
	}
	if (cfg.Observability.Metrics || cfg.Observability.Healthz) && cfg.Observability.ListenAddress == "" {
		problems = append(problems, "observability.listenAddress is required when metrics or healthz is enabled")
	}

	remotes := make([]rawRemote, 0, len(raw.Remotes)+1)
	if strings.TrimSpace(raw.Remote.URL) != "" {
		remotes = append(remotes, rawRemote{
			Name:      DefaultRemoteName,
			URL:       raw.Remote.URL,
			Transport: raw.Remote.TransportType,
			Headers:   raw.Remote.Headers,
		})
	}
	remotes = append(remotes, raw.Remotes...)

	names := make(map[string]struct{}, len(remotes))
	keys := make(map[string]struct{}, len(remotes))
	for i, remote := range remotes {
		label := remoteLabel(remote, i, raw.Remote.URL != "")
		name := strings.TrimSpace(remote.Name)
		if name == "" {
			problems = append(problems, fmt.Sprintf("%s: name is required", label))
		} else if _, dup := names[name]; dup {
			problems = append(problems, fmt.Sprintf("%s: duplicate name %q", label, name))
		} else {
			names[name] = struct{}{}
		}

		remoteProblems := validateRemote(remote, label)
		problems = append(problems, remoteProblems...)
		if len(remoteProblems) > 0 {
			continue
		}

		binding := domain.Binding{
			URL:       remote.URL,
			Transport: domain.TransportKind(remote.Transport),
			Headers:   remote.Headers,
		}.Normalized()
		// The same endpoint listed twice shares one pool handle.
		if _, dup := keys[binding.Key()]; dup {
			continue
		}
		keys[binding.Key()] = struct{}{}
		cfg.Remotes = append(cfg.Remotes, domain.RemoteSpec{
			Name:             name,
			Binding:          binding,
			MinServerVersion: strings.TrimSpace(remote.MinServerVersion),
		})
	}
	return cfg, problems
}

func remoteLabel(remote rawRemote, index int, hasDefault bool) string {
	if hasDefault {
		if index == 0 {
			return "remote"
		}
		index--
	}
	return fmt.Sprintf("remotes[%d]", index)
}

func validateRemote(remote rawRemote, label string) []string {
	var problems []string

	endpoint := strings.TrimSpace(remote.URL)
	if endpoint == "" {
		problems = append(problems, fmt.Sprintf("%s: url is required", label))
	} else if parsed, err := url.ParseRequestURI(endpoint); err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		problems = append(problems, fmt.Sprintf("%s: url must be a valid http(s) URL", label))
	}

	for key := range remote.Headers {
		name := strings.TrimSpace(key)
		if name == "" {
			problems = append(problems, fmt.Sprintf("%s: headers contains empty header name", label))
			continue
		}
		if isReservedHeader(name) {
			problems = append(problems, fmt.Sprintf("%s: headers.%s is reserved and managed by transport", label, name))
		}
	}

	if version := strings.TrimSpace(remote.MinServerVersion); version != "" {
		if _, ok := domain.NormalizeSemver(version); !ok {
			problems = append(problems, fmt.Sprintf("%s: minServerVersion %q is not a semantic version", label, version))
		}
	}
	return problems
}

func isReservedHeader(header string) bool {
	switch strings.ToLower(strings.TrimSpace(header)) {
	case "content-type", "accept", "mcp-protocol-version", "mcp-session-id", "last-event-id":
		return true
	default:
		return false
	}
}
