package clientpool

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"mcpbridge/internal/domain"
	"mcpbridge/internal/infra/mcpcodec"
	"mcpbridge/internal/infra/telemetry"
)

const (
	maxListPages = 1000
	closeWorkers = 8
)

// AsyncResult is delivered exactly once on the channel returned by
// InvokeAsync.
type AsyncResult struct {
	Result domain.CallResult
	Err    error
}

// InvokeSync calls a remote tool and blocks until it answers or fails.
func (p *Pool) InvokeSync(ctx context.Context, binding domain.Binding, toolName string, args map[string]any) (domain.CallResult, error) {
	normalized := binding.Normalized()
	start := p.clock.Now()
	result, err := p.invoke(ctx, normalized, toolName, args)
	status := domain.CallStatusSuccess
	if err != nil {
		status = domain.CallStatusError
	}
	if p.metrics != nil {
		p.metrics.ObserveInvocation(normalized.Transport, status, p.clock.Since(start))
	}

	fields := append(telemetry.RequestFields(ctx),
		zap.String("tool", toolName),
		zap.String("url", normalized.URL),
		zap.String("transport", string(normalized.Transport)),
	)
	if err != nil {
		p.logger.Warn("tool invocation failed", append(fields, zap.Error(err))...)
		return domain.CallResult{}, err
	}
	p.logger.Debug("tool invocation completed", append(fields, zap.Stringer("result", result.Kind))...)
	return result, nil
}

func (p *Pool) invoke(ctx context.Context, binding domain.Binding, toolName string, args map[string]any) (domain.CallResult, error) {
	_, session, err := p.acquire(ctx, binding)
	if err != nil {
		return domain.CallResult{}, err
	}
	if args == nil {
		args = map[string]any{}
	}
	res, err := session.CallTool(ctx, &mcp.CallToolParams{Name: toolName, Arguments: args})
	if err != nil {
		return domain.CallResult{}, &domain.InvocationError{URL: binding.URL, Kind: binding.Transport, Tool: toolName, Cause: err}
	}
	shaped, err := mcpcodec.ShapeCallResult(res)
	if err != nil {
		return domain.CallResult{}, &domain.InvocationError{URL: binding.URL, Kind: binding.Transport, Tool: toolName, Cause: err}
	}
	return shaped, nil
}

// InvokeAsync runs InvokeSync on a separate goroutine. The returned channel
// yields one result and is then closed. A caller that stops listening does
// not block the worker; cancelling ctx cancels the remote request.
func (p *Pool) InvokeAsync(ctx context.Context, binding domain.Binding, toolName string, args map[string]any) <-chan AsyncResult {
	out := make(chan AsyncResult, 1)
	go func() {
		defer close(out)
		result, err := p.InvokeSync(ctx, binding, toolName, args)
		out <- AsyncResult{Result: result, Err: err}
	}()
	return out
}

// ListTools returns every tool the remote exposes, following pagination.
func (p *Pool) ListTools(ctx context.Context, binding domain.Binding) ([]domain.ToolDescriptor, error) {
	normalized := binding.Normalized()
	_, session, err := p.acquire(ctx, normalized)
	if err != nil {
		return nil, err
	}

	var tools []*mcp.Tool
	seen := make(map[string]struct{})
	cursor := ""
	for page := 0; ; page++ {
		if page >= maxListPages {
			return nil, &domain.InvocationError{URL: normalized.URL, Kind: normalized.Transport, Cause: errors.New("tools/list exceeded page limit")}
		}
		res, err := session.ListTools(ctx, &mcp.ListToolsParams{Cursor: cursor})
		if err != nil {
			return nil, &domain.InvocationError{URL: normalized.URL, Kind: normalized.Transport, Cause: fmt.Errorf("tools/list: %w", err)}
		}
		tools = append(tools, res.Tools...)
		if res.NextCursor == "" {
			break
		}
		if _, dup := seen[res.NextCursor]; dup {
			return nil, &domain.InvocationError{URL: normalized.URL, Kind: normalized.Transport, Cause: fmt.Errorf("tools/list: repeated cursor %q", res.NextCursor)}
		}
		seen[res.NextCursor] = struct{}{}
		cursor = res.NextCursor
	}

	descriptors, err := mcpcodec.DescriptorsFromMCP(tools)
	if err != nil {
		return nil, &domain.InvocationError{URL: normalized.URL, Kind: normalized.Transport, Cause: fmt.Errorf("malformed tools/list response: %w", err)}
	}
	return descriptors, nil
}

// Ping reports whether the handshake and a liveness probe both succeed.
// Errors are logged and reported as false; a failed probe evicts the handle.
func (p *Pool) Ping(ctx context.Context, binding domain.Binding) bool {
	normalized := binding.Normalized()
	ok := p.ping(ctx, normalized)
	if p.metrics != nil {
		p.metrics.ObservePing(normalized.Transport, ok)
	}
	return ok
}

func (p *Pool) ping(ctx context.Context, binding domain.Binding) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("ping panicked", zap.String("url", binding.URL), zap.Any("panic", r))
			ok = false
		}
	}()

	_, session, err := p.acquire(ctx, binding)
	if err != nil {
		p.logger.Warn("ping handshake failed",
			zap.String("url", binding.URL),
			zap.String("transport", string(binding.Transport)),
			zap.Error(err),
		)
		return false
	}
	pingCtx, cancel := context.WithTimeout(ctx, p.pingTimeout)
	defer cancel()
	if err := session.Ping(pingCtx, nil); err != nil {
		p.logger.Warn("ping failed",
			zap.String("url", binding.URL),
			zap.String("transport", string(binding.Transport)),
			zap.Error(err),
		)
		p.evictKey(binding.Key(), "ping failed")
		return false
	}
	return true
}

// Close releases every cached session within ctx's deadline and refuses new
// work afterwards. Individual failures are returned, never raised; sessions
// still closing when ctx ends are reported with ctx's error.
func (p *Pool) Close(ctx context.Context) []domain.ReleaseError {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	entries := make([]*entry, 0, len(p.entries))
	for _, e := range p.entries {
		entries = append(entries, e)
	}
	p.entries = make(map[string]*entry)
	p.mu.Unlock()

	var (
		mu       sync.Mutex
		failures []domain.ReleaseError
		timedOut bool
		pending  = make(map[string]struct{}, len(entries))
	)
	for _, e := range entries {
		pending[e.key] = struct{}{}
	}

	group := new(errgroup.Group)
	group.SetLimit(closeWorkers)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, e := range entries {
			group.Go(func() error {
				err := releaseEntry(e)
				mu.Lock()
				delete(pending, e.key)
				if err != nil && !timedOut {
					failures = append(failures, domain.ReleaseError{Key: e.key, Cause: err})
				}
				mu.Unlock()
				return nil
			})
		}
		_ = group.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		mu.Lock()
		for key := range pending {
			failures = append(failures, domain.ReleaseError{Key: key, Cause: ctx.Err()})
		}
		timedOut = true
		mu.Unlock()
	}

	mu.Lock()
	out := append([]domain.ReleaseError(nil), failures...)
	mu.Unlock()
	for _, failure := range out {
		p.logger.Warn("release connection failed", zap.String("key", failure.Key), zap.Error(failure.Cause))
	}
	if p.metrics != nil {
		p.metrics.SetActiveConnections(0)
	}
	p.logger.Info("client pool closed", zap.Int("connections", len(entries)), zap.Int("failures", len(out)))
	return out
}

func releaseEntry(e *entry) error {
	e.mu.Lock()
	e.evicted = true
	session := e.session
	e.session = nil
	e.initInfo = nil
	e.mu.Unlock()
	if session == nil {
		return nil
	}
	return session.Close()
}
