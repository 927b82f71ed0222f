// Package discovery registers the tools of configured remote endpoints at
// startup and on demand.
package discovery

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"mcpbridge/internal/app/reconcile"
	"mcpbridge/internal/domain"
	"mcpbridge/internal/infra/mcpcodec"
)

// Pool is the client pool surface discovery depends on.
type Pool interface {
	Ping(ctx context.Context, binding domain.Binding) bool
	ServerInfo(ctx context.Context, binding domain.Binding) (*mcp.Implementation, error)
	ListTools(ctx context.Context, binding domain.Binding) ([]domain.ToolDescriptor, error)
}

// EndpointReport is the outcome of discovering one remote.
type EndpointReport struct {
	Name          string
	Binding       domain.Binding
	ServerName    string
	ServerVersion string
	Reachable     bool
	ListHash      string
	Stats         domain.ReconcileStats
	Duration      time.Duration
	Err           error
}

// Report aggregates one discovery run.
type Report struct {
	Endpoints []EndpointReport
	Totals    domain.ReconcileStats
}

// Failed lists endpoints that produced no reconciliation.
func (r Report) Failed() []EndpointReport {
	var out []EndpointReport
	for _, endpoint := range r.Endpoints {
		if endpoint.Err != nil {
			out = append(out, endpoint)
		}
	}
	return out
}

type Engine struct {
	logger      *zap.Logger
	pool        Pool
	registry    reconcile.Registry
	metrics     domain.Metrics
	clock       clockwork.Clock
	concurrency int
	reenable    bool
}

type Options struct {
	Logger      *zap.Logger
	Pool        Pool
	Registry    reconcile.Registry
	Metrics     domain.Metrics
	Clock       clockwork.Clock
	Concurrency int
	// ReenableOnRediscovery lets plain discovery flip DISABLED tools back on.
	ReenableOnRediscovery bool
}

func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = domain.DefaultDiscoveryConcurrency
	}
	return &Engine{
		logger:      logger.Named("discovery"),
		pool:        opts.Pool,
		registry:    opts.Registry,
		metrics:     opts.Metrics,
		clock:       clock,
		concurrency: concurrency,
		reenable:    opts.ReenableOnRediscovery,
	}
}

// Run discovers every remote with bounded parallelism. Endpoint failures are
// recorded in the report and never stop other endpoints; the returned error
// is set only when ctx ends first.
func (e *Engine) Run(ctx context.Context, remotes []domain.RemoteSpec) (Report, error) {
	reports := make([]EndpointReport, len(remotes))

	var group errgroup.Group
	group.SetLimit(e.concurrency)
	for i, remote := range remotes {
		group.Go(func() error {
			reports[i] = e.Discover(ctx, remote)
			return nil
		})
	}
	_ = group.Wait()

	report := Report{Endpoints: reports}
	for _, endpoint := range reports {
		report.Totals.Merge(endpoint.Stats)
	}
	e.logger.Info("discovery completed",
		zap.Int("endpoints", len(remotes)),
		zap.Int("failed_endpoints", len(report.Failed())),
		zap.Int("added", report.Totals.Added),
		zap.Int("updated", report.Totals.Updated),
		zap.Int("unchanged", report.Totals.Unchanged),
		zap.Int("failed", report.Totals.Failed),
	)
	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

// Discover runs the ping, version gate, list and reconcile steps for one
// remote.
func (e *Engine) Discover(ctx context.Context, remote domain.RemoteSpec) EndpointReport {
	binding := remote.Binding.Normalized()
	started := e.clock.Now()
	report := EndpointReport{Name: remote.Name, Binding: binding}
	logger := e.logger.With(
		zap.String("remote", remote.Name),
		zap.String("url", binding.URL),
		zap.String("transport", string(binding.Transport)),
	)
	finish := func(err error) EndpointReport {
		report.Err = err
		report.Duration = e.clock.Since(started)
		if err != nil {
			logger.Warn("endpoint discovery skipped", zap.Error(err))
		}
		return report
	}

	if !e.pool.Ping(ctx, binding) {
		return finish(domain.E(domain.CodeUnavailable, "discovery.ping", fmt.Sprintf("remote %s is unreachable", binding.URL), nil))
	}
	report.Reachable = true

	info, err := e.pool.ServerInfo(ctx, binding)
	if err != nil {
		return finish(err)
	}
	report.ServerName = info.Name
	report.ServerVersion = info.Version
	if !domain.VersionAtLeast(info.Version, remote.MinServerVersion) {
		return finish(fmt.Errorf("%w: %q reports %q, need %s", domain.ErrServerTooOld, info.Name, info.Version, remote.MinServerVersion))
	}

	descriptors, err := e.pool.ListTools(ctx, binding)
	if err != nil {
		return finish(err)
	}
	if hash, err := mcpcodec.HashDescriptors(descriptors); err == nil {
		report.ListHash = hash
	}

	stats, err := reconcile.Reconcile(ctx, e.registry, binding, descriptors, domain.DiscoveryPolicy(e.reenable), logger)
	report.Stats = stats
	if e.metrics != nil {
		e.metrics.ObserveReconcile(domain.ReconcileSourceDiscovery, stats)
	}
	if err != nil {
		return finish(err)
	}
	logger.Info("endpoint discovered",
		zap.String("server", info.Name),
		zap.String("server_version", info.Version),
		zap.Int("tools", len(descriptors)),
		zap.String("list_hash", report.ListHash),
	)
	return finish(nil)
}
