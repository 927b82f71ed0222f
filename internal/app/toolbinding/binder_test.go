package toolbinding

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"mcpbridge/internal/app/discovery"
	"mcpbridge/internal/app/registry"
	"mcpbridge/internal/domain"
	"mcpbridge/internal/infra/clientpool"
	"mcpbridge/internal/infra/toolstore"
	"mcpbridge/internal/infra/transport"
	"mcpbridge/internal/mcptest"
)

type countingInvoker struct {
	inner Invoker
	calls atomic.Int64
}

func (c *countingInvoker) InvokeSync(ctx context.Context, binding domain.Binding, toolName string, args map[string]any) (domain.CallResult, error) {
	c.calls.Add(1)
	return c.inner.InvokeSync(ctx, binding, toolName, args)
}

type fixture struct {
	binder   *Binder
	registry *registry.Registry
	invoker  *countingInvoker
}

func newFixture(t *testing.T, tools ...mcptest.Tool) fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)
	store, err := toolstore.Open(filepath.Join(t.TempDir(), "tools.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	reg := registry.New(registry.Options{Logger: logger, Store: store})

	pool := clientpool.New(clientpool.Options{
		Logger:  logger,
		Factory: transport.NewFactory(transport.FactoryOptions{ConnectTimeout: time.Second, MaxRetries: -1}),
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		pool.Close(ctx)
	})

	remote := mcptest.NewStreamableRemote(t, mcptest.StreamableOptions{}, tools...)
	report := discovery.New(discovery.Options{Logger: logger, Pool: pool, Registry: reg}).
		Discover(context.Background(), domain.RemoteSpec{Name: "remote", Binding: remote.Binding()})
	require.NoError(t, report.Err)

	invoker := &countingInvoker{inner: pool}
	return fixture{
		binder:   New(Options{Logger: logger, Registry: reg, Invoker: invoker}),
		registry: reg,
		invoker:  invoker,
	}
}

func TestBinder_FunctionsCoverEnabledTools(t *testing.T) {
	f := newFixture(t, mcptest.EchoTool("echo"), mcptest.TextTool("pair", "a", "b"), mcptest.TextTool("quiet"))
	ctx := context.Background()

	quiet, _, err := f.registry.FindByName(ctx, "quiet")
	require.NoError(t, err)
	_, err = f.registry.SetStatus(ctx, quiet.ID, domain.ToolStatusDisabled)
	require.NoError(t, err)

	funcs, err := f.binder.Functions(ctx)
	require.NoError(t, err)
	require.Len(t, funcs, 2)
	require.Contains(t, funcs, "echo")
	require.NotContains(t, funcs, "quiet")

	out, err := funcs["echo"](ctx, map[string]any{"text": "hello"})
	require.NoError(t, err)
	assert.Equal(t, "hello", out)

	out, err = funcs["pair"](ctx, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `["a","b"]`, out)
}

func TestBinder_InvokeRefusals(t *testing.T) {
	f := newFixture(t, mcptest.EchoTool("echo"), mcptest.FailingTool("boom", "exploded"))
	ctx := context.Background()

	_, err := f.binder.Invoke(ctx, "missing", nil)
	require.ErrorIs(t, err, domain.ErrToolNotFound)

	_, err = f.binder.Invoke(ctx, "echo", map[string]any{"text": 42})
	require.ErrorIs(t, err, domain.ErrInvalidArguments)
	_, err = f.binder.Invoke(ctx, "echo", nil)
	require.ErrorIs(t, err, domain.ErrInvalidArguments)
	assert.Equal(t, int64(0), f.invoker.calls.Load())

	_, err = f.binder.Invoke(ctx, "boom", nil)
	require.ErrorIs(t, err, domain.ErrRemoteToolError)
	assert.Contains(t, err.Error(), "exploded")

	echo, _, err := f.registry.FindByName(ctx, "echo")
	require.NoError(t, err)
	_, err = f.registry.SetStatus(ctx, echo.ID, domain.ToolStatusDisabled)
	require.NoError(t, err)
	_, err = f.binder.Invoke(ctx, "echo", map[string]any{"text": "hi"})
	require.ErrorIs(t, err, domain.ErrToolDisabled)
	code, _ := domain.CodeFrom(err)
	assert.Equal(t, domain.CodeFailedPrecond, code)

	_, err = f.registry.Upsert(ctx, domain.ToolDefinition{Name: "local_only"})
	require.NoError(t, err)
	_, err = f.binder.Invoke(ctx, "local_only", nil)
	code, _ = domain.CodeFrom(err)
	assert.Equal(t, domain.CodeFailedPrecond, code)
}

func TestBinder_SchemaCacheFollowsVersion(t *testing.T) {
	f := newFixture(t, mcptest.EchoTool("echo"))
	ctx := context.Background()

	out, err := f.binder.Invoke(ctx, "echo", map[string]any{"text": "hi"})
	require.NoError(t, err)
	assert.Equal(t, domain.CallResultSingleText, out.Kind)

	_, _, err = f.registry.Apply(ctx, "echo", func(current domain.ToolDefinition, found bool) (domain.ToolDefinition, bool) {
		current.ParamSchema = []byte(`{"type":"object","required":["text","lang"]}`)
		return current, true
	})
	require.NoError(t, err)

	_, err = f.binder.Invoke(ctx, "echo", map[string]any{"text": "hi"})
	require.ErrorIs(t, err, domain.ErrInvalidArguments)
	assert.Equal(t, int64(1), f.invoker.calls.Load())
}

func TestBinder_EinoTools(t *testing.T) {
	f := newFixture(t, mcptest.EchoTool("echo"))
	ctx := context.Background()

	tools, err := f.binder.EinoTools(ctx)
	require.NoError(t, err)
	require.Len(t, tools, 1)

	info, err := tools[0].Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, "echo", info.Name)
	assert.Equal(t, "echoes text", info.Desc)
	require.NotNil(t, info.ParamsOneOf)

	invokable, ok := tools[0].(tool.InvokableTool)
	require.True(t, ok)
	out, err := invokable.InvokableRun(ctx, `{"text":"from agent"}`)
	require.NoError(t, err)
	assert.Equal(t, "from agent", out)

	_, err = invokable.InvokableRun(ctx, `{not json`)
	require.ErrorIs(t, err, domain.ErrInvalidArguments)
}
