package app

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"mcpbridge/internal/app/discovery"
	"mcpbridge/internal/app/reconciler"
	"mcpbridge/internal/app/registry"
	"mcpbridge/internal/app/toolbinding"
	"mcpbridge/internal/domain"
	"mcpbridge/internal/infra/clientpool"
	"mcpbridge/internal/infra/notifications"
	"mcpbridge/internal/infra/telemetry"
	"mcpbridge/internal/infra/toolstore"
	"mcpbridge/internal/infra/transport"
)

func NewConfig(cfg ServeConfig) domain.Config {
	return cfg.Config
}

func NewMetricsRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	registry.MustRegister(prometheus.NewGoCollector())
	return registry
}

func NewMetrics(registry *prometheus.Registry) domain.Metrics {
	return telemetry.NewPrometheusMetrics(registry)
}

func NewHealthTracker() *telemetry.HealthTracker {
	return telemetry.NewHealthTracker()
}

func NewListChangeHub(metrics domain.Metrics, logger *zap.Logger) *notifications.ListChangeHub {
	return notifications.NewListChangeHub(notifications.ListChangeHubOptions{
		Logger:  logger,
		Metrics: metrics,
	})
}

func NewTransportFactory(cfg domain.Config, logger *zap.Logger) *transport.Factory {
	return transport.NewFactory(transport.FactoryOptions{
		Logger:         logger,
		ConnectTimeout: cfg.Client.ConnectTimeout,
		MaxRetries:     cfg.Client.MaxRetries,
	})
}

// NewClientPool returns the pool and a cleanup that releases every session
// within the configured shutdown timeout.
func NewClientPool(
	cfg domain.Config,
	factory clientpool.TransportFactory,
	emitter domain.ListChangeEmitter,
	metrics domain.Metrics,
	logger *zap.Logger,
) (*clientpool.Pool, func()) {
	pool := clientpool.New(clientpool.Options{
		Logger:            logger,
		Factory:           factory,
		ListChangeEmitter: emitter,
		Metrics:           metrics,
		ClientName:        cfg.Client.Name,
		ClientVersion:     cfg.Client.Version,
		ConnectTimeout:    cfg.Client.ConnectTimeout,
		PingTimeout:       cfg.Client.PingTimeout,
	})
	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Client.ShutdownTimeout)
		defer cancel()
		for _, releaseErr := range pool.Close(ctx) {
			logger.Warn("connection release failed", zap.String("key", releaseErr.Key), zap.Error(releaseErr.Cause))
		}
	}
	return pool, cleanup
}

func NewToolStore(cfg domain.Config, logger *zap.Logger) (*toolstore.Store, func(), error) {
	store, err := toolstore.Open(cfg.Store.Path)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := store.Close(); err != nil {
			logger.Warn("tool store close failed", zap.String("path", store.Path()), zap.Error(err))
		}
	}
	return store, cleanup, nil
}

func NewRegistry(store domain.ToolStore, logger *zap.Logger) *registry.Registry {
	return registry.New(registry.Options{Logger: logger, Store: store})
}

func NewDiscoveryEngine(cfg domain.Config, pool *clientpool.Pool, tools *registry.Registry, metrics domain.Metrics, logger *zap.Logger) *discovery.Engine {
	return discovery.New(discovery.Options{
		Logger:                logger,
		Pool:                  pool,
		Registry:              tools,
		Metrics:               metrics,
		Concurrency:           cfg.Discovery.Concurrency,
		ReenableOnRediscovery: cfg.Discovery.ReenableOnRediscovery,
	})
}

func NewReconciler(
	cfg domain.Config,
	pool *clientpool.Pool,
	tools *registry.Registry,
	hub *notifications.ListChangeHub,
	metrics domain.Metrics,
	logger *zap.Logger,
) *reconciler.Reconciler {
	return reconciler.New(reconciler.Options{
		Logger:          logger,
		Pool:            pool,
		Registry:        tools,
		Events:          hub,
		Metrics:         metrics,
		RefetchAttempts: cfg.Reconciler.RefetchAttempts,
		Remotes:         cfg.Remotes,
	})
}

func NewBinder(tools *registry.Registry, pool *clientpool.Pool, logger *zap.Logger) *toolbinding.Binder {
	return toolbinding.New(toolbinding.Options{
		Logger:   logger,
		Registry: tools,
		Invoker:  pool,
	})
}
