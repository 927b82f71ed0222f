package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"

	"mcpbridge/internal/domain"
	"mcpbridge/internal/infra/config"
	"mcpbridge/internal/mcptest"
)

func testServeConfig(t *testing.T, remotes ...domain.RemoteSpec) ServeConfig {
	t.Helper()
	cfg := config.Defaults()
	cfg.Store.Path = filepath.Join(t.TempDir(), "tools.db")
	cfg.Remotes = remotes
	cfg.Client.MaxRetries = -1
	return ServeConfig{Config: cfg}
}

func TestApp_DiscoverThenInvoke(t *testing.T) {
	ctx := context.Background()
	remote := mcptest.NewStreamableRemote(t, mcptest.StreamableOptions{Name: "search", Version: "1.0.0"},
		mcptest.EchoTool("echo"), mcptest.TextTool("hello", "hi"))
	serve := testServeConfig(t, domain.RemoteSpec{Name: "search", Binding: remote.Binding()})
	a := New(zaptest.NewLogger(t))

	report, err := a.Discover(ctx, serve)
	require.NoError(t, err)
	assert.Equal(t, domain.ReconcileStats{Added: 2}, report.Totals)

	tools, err := a.Tools(ctx, serve, domain.ToolFilter{NameSubstr: "ech"})
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "echo", tools[0].Name)
	assert.Equal(t, domain.ToolKindRemote, tools[0].Kind)
	assert.True(t, tools[0].Enabled())

	result, err := a.Invoke(ctx, serve, InvokeRequest{Tool: "echo", Arguments: map[string]any{"text": "ping"}})
	require.NoError(t, err)
	assert.Equal(t, "ping", result.String())

	_, err = a.Invoke(ctx, serve, InvokeRequest{Tool: "echo", Arguments: map[string]any{}})
	require.ErrorIs(t, err, domain.ErrInvalidArguments)

	_, err = a.Invoke(ctx, serve, InvokeRequest{Tool: "missing"})
	code, ok := domain.CodeFrom(err)
	require.True(t, ok)
	assert.Equal(t, domain.CodeNotFound, code)
}

func TestApp_ToolAdministration(t *testing.T) {
	ctx := context.Background()
	remote := mcptest.NewStreamableRemote(t, mcptest.StreamableOptions{Name: "search"},
		mcptest.EchoTool("echo"), mcptest.TextTool("hello", "hi"), mcptest.TextTool("bye", "later"))
	serve := testServeConfig(t, domain.RemoteSpec{Name: "search", Binding: remote.Binding()})
	a := New(zaptest.NewLogger(t))

	_, err := a.Discover(ctx, serve)
	require.NoError(t, err)

	updated, err := a.SetToolStatus(ctx, serve, []string{"echo", "echo"}, domain.ToolStatusDisabled)
	require.NoError(t, err)
	require.Len(t, updated, 1)
	assert.Equal(t, domain.ToolStatusDisabled, updated[0].Status)

	_, err = a.Invoke(ctx, serve, InvokeRequest{Tool: "echo", Arguments: map[string]any{"text": "x"}})
	code, _ := domain.CodeFrom(err)
	assert.Equal(t, domain.CodeFailedPrecond, code)

	updated, err = a.SetToolStatus(ctx, serve, []string{"echo"}, domain.ToolStatusEnabled)
	require.NoError(t, err)
	assert.True(t, updated[0].Enabled())

	// An unknown name aborts before anything changes.
	_, err = a.SetToolStatus(ctx, serve, []string{"hello", "nope"}, domain.ToolStatusDisabled)
	require.ErrorIs(t, err, domain.ErrToolNotFound)
	disabled, err := a.Tools(ctx, serve, domain.ToolFilter{Status: domain.ToolStatusDisabled})
	require.NoError(t, err)
	assert.Empty(t, disabled)

	deleted, err := a.DeleteTools(ctx, serve, []string{"echo"})
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	deleted, err = a.DeleteTools(ctx, serve, []string{"hello", "bye"})
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	remaining, err := a.Tools(ctx, serve, domain.ToolFilter{})
	require.NoError(t, err)
	assert.Empty(t, remaining)

	_, err = a.DeleteTools(ctx, serve, nil)
	code, _ = domain.CodeFrom(err)
	assert.Equal(t, domain.CodeInvalidArgument, code)
}

func TestApplication_ConfigSwapIsSynchronized(t *testing.T) {
	initial := config.Defaults()
	application := NewApplication(ApplicationOptions{Config: initial})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			next := config.Defaults()
			next.Remotes = []domain.RemoteSpec{{Name: fmt.Sprintf("r%d", i)}}
			application.swapConfig(next)
		}(i)
		go func() {
			defer wg.Done()
			_ = application.Config().Remotes
		}()
	}
	wg.Wait()

	require.Len(t, application.Config().Remotes, 1)
	previous := application.swapConfig(initial)
	assert.Len(t, previous.Remotes, 1)
	assert.Empty(t, application.Config().Remotes)
}

func TestApp_DirectEndpoint(t *testing.T) {
	ctx := context.Background()
	remote := mcptest.NewStreamableRemote(t, mcptest.StreamableOptions{Name: "direct"}, mcptest.TextTool("hello", "hi"))
	serve := testServeConfig(t)
	a := New(zaptest.NewLogger(t))

	alive, err := a.Ping(ctx, serve, remote.Binding())
	require.NoError(t, err)
	assert.True(t, alive)

	down := domain.Binding{URL: mcptest.UnreachableURL(t), Transport: domain.TransportStreamingHTTP}
	alive, err = a.Ping(ctx, serve, down)
	require.NoError(t, err)
	assert.False(t, alive)

	result, err := a.Invoke(ctx, serve, InvokeRequest{Tool: "hello", Binding: remote.Binding()})
	require.NoError(t, err)
	assert.Equal(t, "hi", result.String())

	_, err = a.Ping(ctx, serve, domain.Binding{})
	code, _ := domain.CodeFrom(err)
	assert.Equal(t, domain.CodeInvalidArgument, code)
}

func TestApp_ValidateConfig(t *testing.T) {
	dir := t.TempDir()
	valid := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(valid, []byte(`
store:
  path: `+filepath.Join(dir, "tools.db")+`
remotes:
  - name: search
    url: https://search.example.com/
    transport: streaming-http
`), 0o600))
	invalid := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte(`
remotes:
  - name: bad
    url: ""
`), 0o600))

	a := New(zaptest.NewLogger(t))
	cfg, err := a.ValidateConfig(context.Background(), ValidateConfig{ConfigPath: valid})
	require.NoError(t, err)
	require.NotEmpty(t, cfg.Remotes)

	_, err = a.ValidateConfig(context.Background(), ValidateConfig{ConfigPath: invalid})
	require.ErrorIs(t, err, domain.ErrInvalidConfig)
	code, _ := domain.CodeFrom(err)
	assert.Equal(t, domain.CodeInvalidArgument, code)

	_, err = a.ValidateConfig(context.Background(), ValidateConfig{})
	require.Error(t, err)
}

func TestNewProcessLogger(t *testing.T) {
	logger, err := NewProcessLogger("debug")
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))

	logger, err = NewProcessLogger("")
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))

	logger, err = NewProcessLogger("warn")
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))

	_, err = NewProcessLogger("loud")
	require.Error(t, err)
}

func TestEnvBoolOptional(t *testing.T) {
	cases := map[string]struct {
		value  string
		want   bool
		wantOK bool
	}{
		"unset":   {"", false, false},
		"one":     {"1", true, true},
		"true":    {"TRUE", true, true},
		"zero":    {"0", false, true},
		"false":   {" false ", false, true},
		"garbage": {"yes", false, false},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(envMetricsEnabled, tc.value)
			got, ok := envBoolOptional(envMetricsEnabled)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.wantOK, ok)
		})
	}
}
