package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"mcpbridge/internal/app/discovery"
	"mcpbridge/internal/app/reconciler"
	"mcpbridge/internal/app/registry"
	"mcpbridge/internal/app/toolbinding"
	"mcpbridge/internal/domain"
	"mcpbridge/internal/infra/clientpool"
	"mcpbridge/internal/infra/config"
	"mcpbridge/internal/infra/notifications"
	"mcpbridge/internal/infra/telemetry"
	"mcpbridge/internal/infra/toolstore"
)

const healthCheckDiscovery = "discovery"

// Application wires the synchronization runtime and its dependencies.
type Application struct {
	ctx        context.Context
	configPath string

	cfgMu sync.RWMutex
	cfg   domain.Config

	logger        *zap.Logger
	health        *telemetry.HealthTracker
	observability *telemetry.ObservabilityController
	pool          *clientpool.Pool
	tools         *registry.Registry
	discovery     *discovery.Engine
	reconciler    *reconciler.Reconciler
	binder        *toolbinding.Binder
}

// ApplicationOptions captures dependencies and settings for Application.
type ApplicationOptions struct {
	Context       context.Context
	ServeConfig   ServeConfig
	Config        domain.Config
	Logger        *zap.Logger
	Registry      *prometheus.Registry
	Metrics       domain.Metrics
	Health        *telemetry.HealthTracker
	Observability *telemetry.ObservabilityController
	ListChanges   *notifications.ListChangeHub
	Store         *toolstore.Store
	Pool          *clientpool.Pool
	Tools         *registry.Registry
	Discovery     *discovery.Engine
	Reconciler    *reconciler.Reconciler
	Binder        *toolbinding.Binder
}

// NewApplication constructs the application runtime.
func NewApplication(opts ApplicationOptions) *Application {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Application{
		ctx:           ctx,
		configPath:    opts.ServeConfig.ConfigPath,
		cfg:           opts.Config,
		logger:        logger.Named("app"),
		health:        opts.Health,
		observability: opts.Observability,
		pool:          opts.Pool,
		tools:         opts.Tools,
		discovery:     opts.Discovery,
		reconciler:    opts.Reconciler,
		binder:        opts.Binder,
	}
}

// Run performs startup discovery, then serves notifications and config
// reloads until the context ends.
func (a *Application) Run() error {
	cfg := a.Config()
	a.logger.Info("configuration loaded",
		zap.String("config", a.configPath),
		zap.Int("remotes", len(cfg.Remotes)),
		zap.String("store", cfg.Store.Path),
		zap.String("version", Version),
	)

	if err := a.observability.Apply(a.ctx, cfg.Observability); err != nil {
		a.logger.Warn("observability apply failed", zap.Error(err))
	}
	defer a.observability.Stop()

	// Subscribe before discovery opens sessions so notifications sent during
	// startup are buffered for the reconciler.
	sub, err := a.reconciler.Subscribe(a.ctx)
	if err != nil {
		return err
	}

	a.health.Pending(healthCheckDiscovery)
	if cfg.Discovery.Enabled {
		if _, err := a.discovery.Run(a.ctx, cfg.Remotes); err != nil {
			a.health.Failed(healthCheckDiscovery)
			a.logger.Info("startup discovery interrupted", zap.Error(err))
			return nil
		}
	} else {
		a.logger.Info("auto-discovery disabled")
	}
	a.health.Ready(healthCheckDiscovery)

	group, ctx := errgroup.WithContext(a.ctx)
	group.Go(func() error {
		return a.reconciler.Serve(ctx, sub)
	})
	if a.configPath != "" {
		group.Go(func() error {
			a.watchConfig(ctx)
			return nil
		})
	}
	a.logger.Info("mcpbridge running")
	err = group.Wait()
	a.logger.Info("mcpbridge stopping")
	return err
}

// Discover runs one discovery pass over the configured remotes.
func (a *Application) Discover(ctx context.Context) (discovery.Report, error) {
	return a.discovery.Run(ctx, a.Config().Remotes)
}

// Tools lists registry entries matching filter.
func (a *Application) Tools(ctx context.Context, filter domain.ToolFilter) ([]domain.ToolDefinition, error) {
	return a.tools.Search(ctx, filter)
}

// SetToolStatus enables or disables the named tools. Every name is resolved
// before any status changes.
func (a *Application) SetToolStatus(ctx context.Context, names []string, status domain.ToolStatus) ([]domain.ToolDefinition, error) {
	defs, err := a.resolveTools(ctx, "tools.set_status", names)
	if err != nil {
		return nil, err
	}
	out := make([]domain.ToolDefinition, 0, len(defs))
	for _, def := range defs {
		updated, err := a.tools.SetStatus(ctx, def.ID, status)
		if err != nil {
			return out, err
		}
		out = append(out, updated)
	}
	return out, nil
}

// DeleteTools removes the named tools from the registry. Every name is
// resolved before anything is deleted.
func (a *Application) DeleteTools(ctx context.Context, names []string) (int, error) {
	defs, err := a.resolveTools(ctx, "tools.delete", names)
	if err != nil {
		return 0, err
	}
	if len(defs) == 1 {
		if err := a.tools.Delete(ctx, defs[0].ID); err != nil {
			return 0, err
		}
		return 1, nil
	}
	ids := make([]string, 0, len(defs))
	for _, def := range defs {
		ids = append(ids, def.ID)
	}
	return a.tools.DeleteMany(ctx, ids)
}

func (a *Application) resolveTools(ctx context.Context, op string, names []string) ([]domain.ToolDefinition, error) {
	if len(names) == 0 {
		return nil, domain.E(domain.CodeInvalidArgument, op, "at least one tool name is required", nil)
	}
	defs := make([]domain.ToolDefinition, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		def, found, err := a.tools.FindByName(ctx, name)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, domain.E(domain.CodeNotFound, op, fmt.Sprintf("tool %q not found", name), domain.ErrToolNotFound)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func (a *Application) Pool() *clientpool.Pool {
	return a.pool
}

func (a *Application) Binder() *toolbinding.Binder {
	return a.binder
}

func (a *Application) Config() domain.Config {
	a.cfgMu.RLock()
	defer a.cfgMu.RUnlock()
	return a.cfg
}

func (a *Application) swapConfig(next domain.Config) domain.Config {
	a.cfgMu.Lock()
	defer a.cfgMu.Unlock()
	previous := a.cfg
	a.cfg = next
	return previous
}

func (a *Application) watchConfig(ctx context.Context) {
	watcher := config.NewWatcher(config.WatcherOptions{Logger: a.logger, Path: a.configPath})
	changes, err := watcher.Watch(ctx)
	if err != nil {
		a.logger.Warn("config watch unavailable", zap.String("config", a.configPath), zap.Error(err))
		return
	}
	for range changes {
		a.reload(ctx)
	}
}

// reload applies endpoint and observability changes from the config file.
// Client, store and reconciler settings take effect on restart.
func (a *Application) reload(ctx context.Context) {
	next, err := config.NewLoader(a.logger).Load(ctx, a.configPath)
	if err != nil {
		a.logger.Warn("config reload rejected; keeping current configuration", zap.Error(err))
		return
	}
	previous := a.swapConfig(next)

	for _, remote := range previous.Remotes {
		if _, ok := next.RemoteByKey(remote.Binding.Key()); !ok {
			a.pool.Evict(remote.Binding.URL, remote.Binding.Transport)
			a.logger.Info("remote removed", zap.String("remote", remote.Name), zap.String("url", remote.Binding.URL))
		}
	}
	a.reconciler.SetRemotes(next.Remotes)
	if err := a.observability.Apply(ctx, next.Observability); err != nil {
		a.logger.Warn("observability apply failed", zap.Error(err))
	}

	a.logger.Info("configuration reloaded", zap.Int("remotes", len(next.Remotes)))
	if !next.Discovery.Enabled {
		return
	}
	if _, err := a.discovery.Run(ctx, next.Remotes); err != nil {
		a.logger.Info("rediscovery interrupted", zap.Error(err))
	}
}
