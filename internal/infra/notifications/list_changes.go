package notifications

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"mcpbridge/internal/domain"
)

const defaultListChangeBuffer = 16

// ListChangeHub fans list_changed events out to per-kind subscribers.
// Emit never blocks; a full subscriber drops the event.
type ListChangeHub struct {
	logger  *zap.Logger
	metrics domain.Metrics

	mu   sync.RWMutex
	subs map[domain.ListChangeKind]map[chan domain.ListChangeEvent]struct{}
}

type ListChangeHubOptions struct {
	Logger  *zap.Logger
	Metrics domain.Metrics
}

func NewListChangeHub(opts ListChangeHubOptions) *ListChangeHub {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ListChangeHub{
		logger:  logger.Named("list_changes"),
		metrics: opts.Metrics,
		subs:    make(map[domain.ListChangeKind]map[chan domain.ListChangeEvent]struct{}),
	}
}

func (h *ListChangeHub) EmitListChange(event domain.ListChangeEvent) {
	if h == nil {
		return
	}
	if h.metrics != nil {
		h.metrics.ObserveListChange(event.Kind)
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	subs := h.subs[event.Kind]
	if len(subs) == 0 {
		h.logger.Debug("list change without subscribers",
			zap.String("kind", string(event.Kind)),
			zap.String("url", event.Binding.URL),
		)
		return
	}
	for ch := range subs {
		select {
		case ch <- event:
		default:
			h.logger.Warn("list change dropped; subscriber is full",
				zap.String("kind", string(event.Kind)),
				zap.String("url", event.Binding.URL),
			)
		}
	}
}

// Subscribe registers a subscriber for kind until ctx ends, at which point
// the returned channel is closed.
func (h *ListChangeHub) Subscribe(ctx context.Context, kind domain.ListChangeKind) <-chan domain.ListChangeEvent {
	ch := make(chan domain.ListChangeEvent, defaultListChangeBuffer)
	if h == nil {
		close(ch)
		return ch
	}

	h.mu.Lock()
	if h.subs[kind] == nil {
		h.subs[kind] = make(map[chan domain.ListChangeEvent]struct{})
	}
	h.subs[kind][ch] = struct{}{}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs[kind], ch)
		close(ch)
		h.mu.Unlock()
	}()

	return ch
}

// Subscribers reports the current subscriber count for kind.
func (h *ListChangeHub) Subscribers(kind domain.ListChangeKind) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[kind])
}

var _ domain.ListChangeEmitter = (*ListChangeHub)(nil)
