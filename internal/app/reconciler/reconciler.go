// Package reconciler keeps the registry in step with remotes that push
// list_changed notifications.
package reconciler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"mcpbridge/internal/app/reconcile"
	"mcpbridge/internal/domain"
)

const defaultRetryInterval = 200 * time.Millisecond

// Pool fetches the authoritative tool list of an endpoint.
type Pool interface {
	ListTools(ctx context.Context, binding domain.Binding) ([]domain.ToolDescriptor, error)
}

// Subscriber delivers list change events per kind until ctx ends.
type Subscriber interface {
	Subscribe(ctx context.Context, kind domain.ListChangeKind) <-chan domain.ListChangeEvent
}

// PassResult describes one completed notification pass.
type PassResult struct {
	Binding domain.Binding
	Stats   domain.ReconcileStats
	Err     error
}

type Reconciler struct {
	logger        *zap.Logger
	pool          Pool
	registry      reconcile.Registry
	events        Subscriber
	metrics       domain.Metrics
	attempts      int
	retryInterval time.Duration
	observer      func(PassResult)

	mu      sync.Mutex
	gates   map[string]*refreshGate
	pending map[string]domain.Binding
	known   map[string]struct{}
	workers sync.WaitGroup
}

type Options struct {
	Logger   *zap.Logger
	Pool     Pool
	Registry reconcile.Registry
	Events   Subscriber
	Metrics  domain.Metrics
	// RefetchAttempts bounds list fetches per pass.
	RefetchAttempts int
	// RetryInterval is the first backoff delay between fetch attempts.
	RetryInterval time.Duration
	// Remotes, when set, restricts reconciliation to configured endpoints.
	Remotes []domain.RemoteSpec
	// Observer is called after every pass.
	Observer func(PassResult)
}

func New(opts Options) *Reconciler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	attempts := opts.RefetchAttempts
	if attempts <= 0 {
		attempts = domain.DefaultRefetchAttempts
	}
	interval := opts.RetryInterval
	if interval <= 0 {
		interval = defaultRetryInterval
	}
	r := &Reconciler{
		logger:        logger.Named("reconciler"),
		pool:          opts.Pool,
		registry:      opts.Registry,
		events:        opts.Events,
		metrics:       opts.Metrics,
		attempts:      attempts,
		retryInterval: interval,
		observer:      opts.Observer,
		gates:         make(map[string]*refreshGate),
		pending:       make(map[string]domain.Binding),
	}
	r.SetRemotes(opts.Remotes)
	return r
}

// SetRemotes replaces the set of endpoints whose notifications are honored.
// An empty set accepts every endpoint.
func (r *Reconciler) SetRemotes(remotes []domain.RemoteSpec) {
	var known map[string]struct{}
	if len(remotes) > 0 {
		known = make(map[string]struct{}, len(remotes))
		for _, remote := range remotes {
			known[remote.Binding.Normalized().Key()] = struct{}{}
		}
	}
	r.mu.Lock()
	r.known = known
	r.mu.Unlock()
}

// Subscription holds hub subscriptions opened ahead of processing so that
// events emitted in between are buffered rather than lost.
type Subscription struct {
	tools     <-chan domain.ListChangeEvent
	resources <-chan domain.ListChangeEvent
	prompts   <-chan domain.ListChangeEvent
}

// Subscribe opens the event subscriptions. They stay open until ctx ends.
func (r *Reconciler) Subscribe(ctx context.Context) (*Subscription, error) {
	if r.events == nil {
		return nil, errors.New("reconciler has no event source")
	}
	return &Subscription{
		tools:     r.events.Subscribe(ctx, domain.ListChangeTools),
		resources: r.events.Subscribe(ctx, domain.ListChangeResources),
		prompts:   r.events.Subscribe(ctx, domain.ListChangePrompts),
	}, nil
}

// Run subscribes and consumes list change events until ctx ends.
func (r *Reconciler) Run(ctx context.Context) error {
	sub, err := r.Subscribe(ctx)
	if err != nil {
		return err
	}
	return r.Serve(ctx, sub)
}

// Serve consumes events from sub until ctx ends and waits for in-flight
// passes before returning.
func (r *Reconciler) Serve(ctx context.Context, sub *Subscription) error {
	if sub == nil {
		return errors.New("reconciler subscription is nil")
	}
	r.logger.Info("reconciler started")
	defer func() {
		r.workers.Wait()
		r.logger.Info("reconciler stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-sub.tools:
			if !ok {
				return nil
			}
			r.Notify(ctx, event.Binding)
		case event, ok := <-sub.resources:
			if ok {
				r.observeOnly(event)
			}
		case event, ok := <-sub.prompts:
			if ok {
				r.observeOnly(event)
			}
		}
	}
}

func (r *Reconciler) observeOnly(event domain.ListChangeEvent) {
	r.logger.Debug("list change observed",
		zap.String("kind", string(event.Kind)),
		zap.String("url", event.Binding.URL),
	)
}

// Notify schedules a pass for the endpoint. Calls made while a pass for the
// same endpoint runs collapse into one follow-up pass.
func (r *Reconciler) Notify(ctx context.Context, binding domain.Binding) {
	binding = binding.Normalized()
	key := binding.Key()
	r.mu.Lock()
	if r.known != nil {
		if _, ok := r.known[key]; !ok {
			r.mu.Unlock()
			r.logger.Debug("ignoring list change from unconfigured endpoint", zap.String("key", key))
			return
		}
	}
	gate, ok := r.gates[key]
	if !ok {
		gate = newRefreshGate()
		r.gates[key] = gate
	}
	r.pending[key] = binding
	r.mu.Unlock()

	if !gate.trigger() {
		r.logger.Debug("pass already running; coalesced", zap.String("key", key))
		return
	}
	r.workers.Add(1)
	go func() {
		defer r.workers.Done()
		for {
			gate.begin()
			r.mu.Lock()
			current := r.pending[key]
			r.mu.Unlock()

			stats, err := r.Reconcile(ctx, current)
			if r.observer != nil {
				r.observer(PassResult{Binding: current, Stats: stats, Err: err})
			}
			if !gate.finish() {
				return
			}
			if ctx.Err() != nil {
				gate.release()
				return
			}
		}
	}()
}

// Reconcile re-fetches the endpoint's complete tool list and applies it with
// the notification policy. A list that cannot be obtained aborts the pass
// with a ReconciliationError and leaves the registry untouched.
func (r *Reconciler) Reconcile(ctx context.Context, binding domain.Binding) (domain.ReconcileStats, error) {
	binding = binding.Normalized()
	logger := r.logger.With(zap.String("url", binding.URL), zap.String("transport", string(binding.Transport)))

	descriptors, err := r.fetch(ctx, binding, logger)
	if err != nil {
		recErr := &domain.ReconciliationError{URL: binding.URL, Kind: binding.Transport, Cause: err}
		logger.Warn("reconciliation aborted", zap.Error(recErr))
		return domain.ReconcileStats{}, recErr
	}

	stats, err := reconcile.Reconcile(ctx, r.registry, binding, descriptors, domain.NotificationPolicy(), logger)
	if r.metrics != nil {
		r.metrics.ObserveReconcile(domain.ReconcileSourceNotification, stats)
	}
	return stats, err
}

func (r *Reconciler) fetch(ctx context.Context, binding domain.Binding, logger *zap.Logger) ([]domain.ToolDescriptor, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = r.retryInterval
	policy.MaxElapsedTime = 0
	retry := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(r.attempts-1)), ctx)

	var descriptors []domain.ToolDescriptor
	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		list, err := r.pool.ListTools(ctx, binding)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		descriptors = list
		return nil
	}, retry, func(err error, wait time.Duration) {
		logger.Debug("tool list fetch failed; retrying",
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	})
	return descriptors, err
}
