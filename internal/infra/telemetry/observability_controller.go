package telemetry

import (
	"context"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"mcpbridge/internal/domain"
)

type ObservabilityControllerOptions struct {
	// MetricsOverride and HealthzOverride win over the config when set.
	MetricsOverride *bool
	HealthzOverride *bool
	Registry        prometheus.Gatherer
	Health          *HealthTracker
	Logger          *zap.Logger
}

// ObservabilityController runs the metrics and health server for the current
// configuration, restarting it only when the effective settings change.
type ObservabilityController struct {
	mu      sync.Mutex
	opts    ObservabilityControllerOptions
	current observabilityState
	cancel  context.CancelFunc
	done    chan struct{}
	runID   uint64
}

type observabilityState struct {
	addr           string
	metricsEnabled bool
	healthzEnabled bool
}

func (s observabilityState) enabled() bool {
	return s.metricsEnabled || s.healthzEnabled
}

func NewObservabilityController(opts ObservabilityControllerOptions) *ObservabilityController {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	opts.Logger = opts.Logger.Named("observability")
	return &ObservabilityController{opts: opts}
}

func (c *ObservabilityController) Apply(ctx context.Context, cfg domain.ObservabilityConfig) error {
	if c == nil {
		return nil
	}
	state := resolveObservabilityState(c.opts, cfg)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil && c.current == state {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	c.stopLocked()
	c.current = state
	if !state.enabled() {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done
	c.runID++
	runID := c.runID

	go func() {
		defer close(done)
		err := StartHTTPServer(runCtx, HTTPServerOptions{
			Addr:          state.addr,
			EnableMetrics: state.metricsEnabled,
			EnableHealthz: state.healthzEnabled,
			Health:        c.opts.Health,
			Registry:      c.opts.Registry,
		}, c.opts.Logger)
		if err != nil {
			c.opts.Logger.Error("observability server failed", zap.Error(err))
		}
		c.mu.Lock()
		if c.runID == runID {
			c.cancel = nil
		}
		c.mu.Unlock()
	}()
	return nil
}

// Stop shuts the server down and waits for it to exit.
func (c *ObservabilityController) Stop() {
	if c == nil {
		return
	}
	c.mu.Lock()
	done := c.done
	c.stopLocked()
	c.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (c *ObservabilityController) stopLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.done = nil
}

func resolveObservabilityState(opts ObservabilityControllerOptions, cfg domain.ObservabilityConfig) observabilityState {
	addr := strings.TrimSpace(cfg.ListenAddress)
	if addr == "" {
		addr = domain.DefaultObservabilityListenAddress
	}
	state := observabilityState{
		addr:           addr,
		metricsEnabled: cfg.Metrics,
		healthzEnabled: cfg.Healthz,
	}
	if opts.MetricsOverride != nil {
		state.metricsEnabled = *opts.MetricsOverride
	}
	if opts.HealthzOverride != nil {
		state.healthzEnabled = *opts.HealthzOverride
	}
	return state
}
