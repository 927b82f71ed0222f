package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"mcpbridge/internal/domain"
)

func TestLoader_Defaults(t *testing.T) {
	file := writeTempConfig(t, "config.yaml", `
store:
  path: /tmp/tools.db
`)

	cfg, err := NewLoader(zap.NewNop()).Load(context.Background(), file)
	require.NoError(t, err)

	expect := domain.Config{
		Discovery: domain.DiscoveryConfig{
			Enabled:     true,
			Concurrency: domain.DefaultDiscoveryConcurrency,
		},
		Remotes: []domain.RemoteSpec{{
			Name:    DefaultRemoteName,
			Binding: domain.Binding{URL: domain.DefaultRemoteURL, Transport: domain.TransportEventStream},
		}},
		Client: domain.ClientConfig{
			Name:            domain.DefaultClientName,
			Version:         domain.DefaultClientVersion,
			ConnectTimeout:  10 * time.Second,
			PingTimeout:     5 * time.Second,
			ShutdownTimeout: 5 * time.Second,
			MaxRetries:      domain.DefaultStreamableHTTPMaxRetries,
		},
		Store:      domain.StoreConfig{Path: "/tmp/tools.db"},
		Reconciler: domain.ReconcilerConfig{RefetchAttempts: domain.DefaultRefetchAttempts},
		Observability: domain.ObservabilityConfig{
			ListenAddress: domain.DefaultObservabilityListenAddress,
			Metrics:       true,
			Healthz:       true,
		},
	}
	if diff := cmp.Diff(expect, cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}

	defaults := Defaults()
	require.Equal(t, domain.DefaultStorePath, defaults.Store.Path)
	require.Len(t, defaults.Remotes, 1)
}

func TestLoader_Remotes(t *testing.T) {
	file := writeTempConfig(t, "config.yaml", `
remote:
  url: ""
remotes:
  - name: search
    url: https://search.example.com/
    transport: streaming-http
    headers:
      authorization: Bearer abc
    minServerVersion: "1.2.0"
  - name: legacy
    url: http://legacy.internal:8080
    transport: sse
  - name: legacy-dup
    url: http://legacy.internal:8080/
    transport: event-stream
discovery:
  concurrency: 2
  reenableOnRediscovery: true
`)

	cfg, err := NewLoader(zap.NewNop()).Load(context.Background(), file)
	require.NoError(t, err)
	require.Len(t, cfg.Remotes, 2)

	search := cfg.Remotes[0]
	require.Equal(t, "search", search.Name)
	require.Equal(t, "https://search.example.com", search.Binding.URL)
	require.Equal(t, domain.TransportStreamingHTTP, search.Binding.Transport)
	require.Equal(t, map[string]string{"Authorization": "Bearer abc"}, search.Binding.Headers)
	require.Equal(t, "1.2.0", search.MinServerVersion)

	legacy := cfg.Remotes[1]
	require.Equal(t, domain.TransportEventStream, legacy.Binding.Transport)
	require.Equal(t, 2, cfg.Discovery.Concurrency)
	require.True(t, cfg.Discovery.ReenableOnRediscovery)

	found, ok := cfg.RemoteByKey(domain.CacheKey("http://legacy.internal:8080", domain.TransportEventStream))
	require.True(t, ok)
	require.Equal(t, "legacy", found.Name)
}

func TestLoader_EnvExpansion(t *testing.T) {
	t.Setenv("BRIDGE_REMOTE", "http://10.0.0.5:9000")
	t.Setenv("BRIDGE_CONCURRENCY", "8")
	file := writeTempConfig(t, "config.yaml", `
remote:
  url: ${BRIDGE_REMOTE}
  headers:
    X-Token: "${BRIDGE_TOKEN}"
discovery:
  concurrency: ${BRIDGE_CONCURRENCY}
`)

	cfg, err := NewLoader(zap.NewNop()).Load(context.Background(), file)
	require.NoError(t, err)
	require.Equal(t, "http://10.0.0.5:9000", cfg.Remotes[0].Binding.URL)
	require.Equal(t, 8, cfg.Discovery.Concurrency)
}

func TestLoader_TOML(t *testing.T) {
	file := writeTempConfig(t, "config.toml", `
[remote]
url = "http://127.0.0.1:7000"
transportType = "streaming-http"

[client]
connectTimeoutSeconds = 3

[[remotes]]
name = "second"
url = "http://127.0.0.1:7001"
`)

	cfg, err := NewLoader(zap.NewNop()).Load(context.Background(), file)
	require.NoError(t, err)
	require.Len(t, cfg.Remotes, 2)
	require.Equal(t, domain.TransportStreamingHTTP, cfg.Remotes[0].Binding.Transport)
	require.Equal(t, domain.TransportStreamingHTTP, cfg.Remotes[1].Binding.Transport)
	require.Equal(t, 3*time.Second, cfg.Client.ConnectTimeout)
}

func TestLoader_ValidationCollectsAllProblems(t *testing.T) {
	file := writeTempConfig(t, "config.yaml", `
remote:
  url: ftp://nowhere
discovery:
  concurrency: 0
client:
  pingTimeoutSeconds: 0
remotes:
  - name: default
    url: http://127.0.0.1:1
    headers:
      Mcp-Session-Id: abc
    minServerVersion: banana
  - url: ""
`)

	_, err := NewLoader(zap.NewNop()).Load(context.Background(), file)
	require.Error(t, err)
	msg := err.Error()
	for _, want := range []string{
		"discovery.concurrency must be >= 1",
		"client.pingTimeoutSeconds must be > 0",
		"remote: url must be a valid http(s) URL",
		`remotes[0]: duplicate name "default"`,
		`remotes[0]: minServerVersion "banana" is not a semantic version`,
		"remotes[1]: name is required",
		"remotes[1]: url is required",
	} {
		require.Contains(t, msg, want)
	}
	require.Contains(t, strings.ToLower(msg), "remotes[0]: headers.mcp-session-id is reserved")
	require.Contains(t, msg, "; ")
}

func TestLoader_Errors(t *testing.T) {
	loader := NewLoader(nil)

	_, err := loader.Load(context.Background(), "")
	require.ErrorContains(t, err, "config path is required")

	_, err = loader.Load(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "read config")

	bad := writeTempConfig(t, "config.yaml", "remote: [unclosed")
	_, err = loader.Load(context.Background(), bad)
	require.ErrorContains(t, err, "parse config")
}

func TestExpandEnvLocatesUnsetVariables(t *testing.T) {
	t.Setenv("PRESENT", "true")
	out, unset, err := expandEnv([]byte("a: ${PRESENT}\nb: \"${ABSENT_ONE}-${ABSENT_ONE}\"\nc:\n  - ${ABSENT_TWO}\n"))
	require.NoError(t, err)
	want := []envReference{
		{Name: "ABSENT_ONE", Path: "b", Line: 2},
		{Name: "ABSENT_TWO", Path: "c[0]", Line: 4},
	}
	if diff := cmp.Diff(want, unset); diff != "" {
		t.Fatalf("unset references mismatch (-want +got):\n%s", diff)
	}
	require.Contains(t, out, "a: true")
}

func TestLoader_UnsetVariableDiagnostics(t *testing.T) {
	file := writeTempConfig(t, "config.yaml", `
remotes:
  - name: search
    url: ${BRIDGE_UNSET_URL}
    headers:
      Authorization: "Bearer ${BRIDGE_UNSET_TOKEN}"
  - name: other
    url: http://127.0.0.1:7002
`)

	core, logs := observer.New(zap.WarnLevel)
	_, err := NewLoader(zap.New(core)).Load(context.Background(), file)
	require.Error(t, err)
	require.Contains(t, err.Error(), "remotes[0].url (line 4): environment variable BRIDGE_UNSET_URL is not set")
	require.Contains(t, err.Error(), "remotes[0]: url is required")
	require.NotContains(t, err.Error(), "BRIDGE_UNSET_TOKEN")

	warned := logs.FilterMessage("environment variable not set; using empty value").All()
	require.Len(t, warned, 1)
	fields := warned[0].ContextMap()
	require.Equal(t, "BRIDGE_UNSET_TOKEN", fields["variable"])
	require.Equal(t, "remotes[0].headers.Authorization", fields["key"])
	require.EqualValues(t, 6, fields["line"])
}

func writeTempConfig(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	normalized := strings.ReplaceAll(content, "\t", "  ")
	if err := os.WriteFile(path, []byte(normalized), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}
