package clientpool

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"mcpbridge/internal/domain"
)

var ErrPoolClosed = errors.New("client pool is closed")

// TransportFactory builds unconnected transports for a binding.
type TransportFactory interface {
	CreateTransport(binding domain.Binding) (mcp.Transport, error)
}

// Pool owns one initialized MCP session per (url, transport kind) pair.
// Sessions are created lazily on first use and reused by concurrent callers
// until evicted or closed by the remote side.
type Pool struct {
	logger         *zap.Logger
	factory        TransportFactory
	emitter        domain.ListChangeEmitter
	metrics        domain.Metrics
	clock          clockwork.Clock
	impl           *mcp.Implementation
	connectTimeout time.Duration
	pingTimeout    time.Duration

	mu      sync.Mutex
	entries map[string]*entry
	closed  bool
}

type Options struct {
	Logger            *zap.Logger
	Factory           TransportFactory
	ListChangeEmitter domain.ListChangeEmitter
	Metrics           domain.Metrics
	Clock             clockwork.Clock
	ClientName        string
	ClientVersion     string
	ConnectTimeout    time.Duration
	PingTimeout       time.Duration
}

// Handle describes a cached connection. It carries no session reference.
type Handle struct {
	Key       string
	Binding   domain.Binding
	CreatedAt time.Time
}

type entry struct {
	key     string
	binding domain.Binding

	mu         sync.Mutex
	session    *mcp.ClientSession
	initInfo   *mcp.InitializeResult
	createdAt  time.Time
	evicted    bool
	connecting *connectAttempt
}

// connectAttempt is one in-flight handshake shared by every caller that
// finds the entry without a session. Fields are written before done closes.
type connectAttempt struct {
	done    chan struct{}
	session *mcp.ClientSession
	err     error
	// stale is set when the entry was evicted while the handshake ran.
	stale bool
}

func New(opts Options) *Pool {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	name := opts.ClientName
	if name == "" {
		name = domain.DefaultClientName
	}
	version := opts.ClientVersion
	if version == "" {
		version = domain.DefaultClientVersion
	}
	connectTimeout := opts.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = time.Duration(domain.DefaultConnectTimeoutSeconds) * time.Second
	}
	pingTimeout := opts.PingTimeout
	if pingTimeout <= 0 {
		pingTimeout = time.Duration(domain.DefaultPingTimeoutSeconds) * time.Second
	}
	return &Pool{
		logger:         logger.Named("client_pool"),
		factory:        opts.Factory,
		emitter:        opts.ListChangeEmitter,
		metrics:        opts.Metrics,
		clock:          clock,
		impl:           &mcp.Implementation{Name: name, Version: version},
		connectTimeout: connectTimeout,
		pingTimeout:    pingTimeout,
		entries:        make(map[string]*entry),
	}
}

// GetOrCreate returns the cached handle for the binding, performing the
// transport build and initialize handshake on first use. Concurrent first
// calls for one key share a single handshake.
func (p *Pool) GetOrCreate(ctx context.Context, binding domain.Binding) (Handle, error) {
	e, _, err := p.acquire(ctx, binding)
	if err != nil {
		return Handle{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return Handle{Key: e.key, Binding: e.binding, CreatedAt: e.createdAt}, nil
}

// ServerInfo returns the implementation info reported by the remote during
// the handshake.
func (p *Pool) ServerInfo(ctx context.Context, binding domain.Binding) (*mcp.Implementation, error) {
	e, _, err := p.acquire(ctx, binding)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.initInfo == nil || e.initInfo.ServerInfo == nil {
		return &mcp.Implementation{}, nil
	}
	info := *e.initInfo.ServerInfo
	return &info, nil
}

// Evict drops the cached handle for url and kind. The next call re-creates
// it. Evicting an unknown key is a no-op.
func (p *Pool) Evict(url string, kind domain.TransportKind) {
	binding := domain.Binding{URL: url, Transport: kind}.Normalized()
	p.evictKey(binding.Key(), "evicted")
}

// IsRegistered reports whether a live session is cached for the binding.
func (p *Pool) IsRegistered(binding domain.Binding) bool {
	key := binding.Normalized().Key()
	p.mu.Lock()
	e, ok := p.entries[key]
	p.mu.Unlock()
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session != nil
}

// Handles lists live cached connections sorted by key.
func (p *Pool) Handles() []Handle {
	p.mu.Lock()
	entries := make([]*entry, 0, len(p.entries))
	for _, e := range p.entries {
		entries = append(entries, e)
	}
	p.mu.Unlock()

	handles := make([]Handle, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if e.session != nil {
			handles = append(handles, Handle{Key: e.key, Binding: e.binding, CreatedAt: e.createdAt})
		}
		e.mu.Unlock()
	}
	sort.Slice(handles, func(i, j int) bool { return handles[i].Key < handles[j].Key })
	return handles
}

// Keys lists the cache keys with live sessions.
func (p *Pool) Keys() []string {
	handles := p.Handles()
	keys := make([]string, 0, len(handles))
	for _, handle := range handles {
		keys = append(keys, handle.Key)
	}
	return keys
}

func (p *Pool) acquire(ctx context.Context, binding domain.Binding) (*entry, *mcp.ClientSession, error) {
	normalized := binding.Normalized()
	key := normalized.Key()
	for {
		e, err := p.entryFor(key, normalized)
		if err != nil {
			return nil, nil, err
		}
		e.mu.Lock()
		if e.evicted {
			e.mu.Unlock()
			continue
		}
		if e.session != nil {
			session := e.session
			e.mu.Unlock()
			return e, session, nil
		}
		attempt := e.connecting
		if attempt == nil {
			attempt = &connectAttempt{done: make(chan struct{})}
			e.connecting = attempt
			go p.runConnect(e, attempt)
		}
		e.mu.Unlock()

		select {
		case <-attempt.done:
		case <-ctx.Done():
			return nil, nil, &domain.HandshakeError{URL: normalized.URL, Kind: normalized.Transport, Cause: ctx.Err()}
		}
		if attempt.stale {
			continue
		}
		if attempt.err != nil {
			return nil, nil, attempt.err
		}
		return e, attempt.session, nil
	}
}

// runConnect performs the handshake for e without holding e.mu and
// publishes the outcome to every waiter of attempt.
func (p *Pool) runConnect(e *entry, attempt *connectAttempt) {
	defer close(attempt.done)
	session, initInfo, err := p.connect(e.binding)

	e.mu.Lock()
	e.connecting = nil
	if e.evicted {
		e.mu.Unlock()
		attempt.stale = true
		if session != nil {
			_ = session.Close()
		}
		return
	}
	if err != nil {
		e.mu.Unlock()
		attempt.err = err
		p.logger.Warn("connection failed",
			zap.String("key", e.key),
			zap.String("url", e.binding.URL),
			zap.Error(err),
		)
		return
	}
	e.session = session
	e.initInfo = initInfo
	e.createdAt = p.clock.Now()
	e.mu.Unlock()
	attempt.session = session

	p.logger.Info("connection established",
		zap.String("key", e.key),
		zap.String("url", e.binding.URL),
		zap.String("transport", string(e.binding.Transport)),
	)
	if p.metrics != nil {
		p.metrics.ObserveConnectionCreated(e.binding.Transport)
		p.metrics.SetActiveConnections(len(p.Keys()))
	}
	go p.monitor(e, session)
}

func (p *Pool) entryFor(key string, binding domain.Binding) (*entry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrPoolClosed
	}
	e, ok := p.entries[key]
	if !ok {
		e = &entry{key: key, binding: binding}
		p.entries[key] = e
	}
	return e, nil
}

type connectResult struct {
	session *mcp.ClientSession
	err     error
}

// connect builds the transport and performs the handshake within the connect
// timeout. It belongs to no caller, so long-lived streams survive the
// callers that triggered it.
func (p *Pool) connect(binding domain.Binding) (*mcp.ClientSession, *mcp.InitializeResult, error) {
	if p.factory == nil {
		return nil, nil, &domain.TransportCreationError{URL: binding.URL, Kind: binding.Transport, Cause: errors.New("transport factory is nil")}
	}
	transport, err := p.factory.CreateTransport(binding)
	if err != nil {
		return nil, nil, err
	}
	client := mcp.NewClient(p.impl, p.clientOptions(binding))

	done := make(chan connectResult, 1)
	go func() {
		session, err := client.Connect(context.Background(), transport, nil)
		done <- connectResult{session: session, err: err}
	}()

	timer := p.clock.NewTimer(p.connectTimeout)
	defer timer.Stop()

	select {
	case res := <-done:
		if res.err != nil {
			return nil, nil, &domain.HandshakeError{URL: binding.URL, Kind: binding.Transport, Cause: res.err}
		}
		return res.session, res.session.InitializeResult(), nil
	case <-timer.Chan():
		go discardLate(done)
		return nil, nil, &domain.HandshakeError{URL: binding.URL, Kind: binding.Transport, Cause: context.DeadlineExceeded}
	}
}

func discardLate(done <-chan connectResult) {
	res := <-done
	if res.session != nil {
		_ = res.session.Close()
	}
}

func (p *Pool) clientOptions(binding domain.Binding) *mcp.ClientOptions {
	emit := func(kind domain.ListChangeKind) {
		p.logger.Info("list changed notification",
			zap.String("kind", string(kind)),
			zap.String("url", binding.URL),
			zap.String("transport", string(binding.Transport)),
		)
		if p.emitter != nil {
			p.emitter.EmitListChange(domain.ListChangeEvent{Kind: kind, Binding: binding})
		}
	}
	return &mcp.ClientOptions{
		ToolListChangedHandler: func(context.Context, *mcp.ToolListChangedRequest) {
			emit(domain.ListChangeTools)
		},
		PromptListChangedHandler: func(context.Context, *mcp.PromptListChangedRequest) {
			emit(domain.ListChangePrompts)
		},
		ResourceListChangedHandler: func(context.Context, *mcp.ResourceListChangedRequest) {
			emit(domain.ListChangeResources)
		},
	}
}

// monitor clears the cached session once the remote side closes it, so the
// next call performs a fresh handshake.
func (p *Pool) monitor(e *entry, session *mcp.ClientSession) {
	err := session.Wait()
	e.mu.Lock()
	cleared := e.session == session
	if cleared {
		e.session = nil
		e.initInfo = nil
	}
	e.mu.Unlock()
	if !cleared {
		return
	}
	p.logger.Warn("session closed by remote", zap.String("key", e.key), zap.Error(err))
	if p.metrics != nil {
		p.metrics.SetActiveConnections(len(p.Keys()))
	}
}

func (p *Pool) evictKey(key, reason string) {
	p.mu.Lock()
	e, ok := p.entries[key]
	if ok {
		delete(p.entries, key)
	}
	p.mu.Unlock()
	if !ok {
		return
	}

	e.mu.Lock()
	e.evicted = true
	session := e.session
	e.session = nil
	e.initInfo = nil
	e.mu.Unlock()

	if session == nil {
		return
	}
	if err := session.Close(); err != nil {
		p.logger.Warn("close evicted session failed", zap.String("key", key), zap.Error(err))
	}
	p.logger.Info("connection dropped", zap.String("key", key), zap.String("reason", reason))
	if p.metrics != nil {
		p.metrics.ObserveConnectionEvicted(e.binding.Transport)
		p.metrics.SetActiveConnections(len(p.Keys()))
	}
}
