package app

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"mcpbridge/internal/app/discovery"
	"mcpbridge/internal/domain"
	"mcpbridge/internal/infra/config"
	"mcpbridge/internal/infra/telemetry"
)

type App struct {
	logger *zap.Logger
}

type ServeConfig struct {
	ConfigPath string
	Config     domain.Config
}

type ValidateConfig struct {
	ConfigPath string
}

// InvokeRequest names a tool either by registry name or by explicit
// endpoint. A non-empty Binding.URL bypasses the registry.
type InvokeRequest struct {
	Tool      string
	Binding   domain.Binding
	Arguments map[string]any
}

func New(logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &App{
		logger: logger.Named("app"),
	}
}

// Serve runs discovery, reconciliation and config reloads until ctx ends.
func (a *App) Serve(ctx context.Context, cfg ServeConfig) error {
	application, cleanup, err := a.initialize(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()
	return application.Run()
}

// Discover performs a single discovery pass and returns its report.
func (a *App) Discover(ctx context.Context, cfg ServeConfig) (discovery.Report, error) {
	application, cleanup, err := a.initialize(ctx, cfg)
	if err != nil {
		return discovery.Report{}, err
	}
	defer cleanup()
	return application.Discover(ctx)
}

// Tools lists registry entries without contacting any endpoint.
func (a *App) Tools(ctx context.Context, cfg ServeConfig, filter domain.ToolFilter) ([]domain.ToolDefinition, error) {
	application, cleanup, err := a.initialize(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer cleanup()
	return application.Tools(ctx, filter)
}

// SetToolStatus enables or disables registry entries by name.
func (a *App) SetToolStatus(ctx context.Context, cfg ServeConfig, names []string, status domain.ToolStatus) ([]domain.ToolDefinition, error) {
	application, cleanup, err := a.initialize(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer cleanup()
	return application.SetToolStatus(ctx, names, status)
}

// DeleteTools removes registry entries by name. Synchronization never
// deletes; this is the administrative path.
func (a *App) DeleteTools(ctx context.Context, cfg ServeConfig, names []string) (int, error) {
	application, cleanup, err := a.initialize(ctx, cfg)
	if err != nil {
		return 0, err
	}
	defer cleanup()
	return application.DeleteTools(ctx, names)
}

// Ping checks one endpoint. It needs no tool store.
func (a *App) Ping(ctx context.Context, cfg ServeConfig, binding domain.Binding) (bool, error) {
	resolved, err := a.loadConfig(ctx, cfg)
	if err != nil {
		return false, err
	}
	if binding.URL == "" {
		return false, domain.E(domain.CodeInvalidArgument, "ping", "endpoint url is required", nil)
	}
	factory := NewTransportFactory(resolved, a.logger)
	pool, cleanup := NewClientPool(resolved, factory, nil, nil, a.logger)
	defer cleanup()
	return pool.Ping(ctx, binding), nil
}

// Invoke calls a tool. With an explicit endpoint the call goes straight to
// the pool; otherwise the registry entry is validated and dispatched.
func (a *App) Invoke(ctx context.Context, cfg ServeConfig, req InvokeRequest) (domain.CallResult, error) {
	if req.Tool == "" {
		return domain.CallResult{}, domain.E(domain.CodeInvalidArgument, "invoke", "tool name is required", nil)
	}
	ctx, _ = telemetry.EnsureRequestID(ctx)

	if req.Binding.URL != "" {
		resolved, err := a.loadConfig(ctx, cfg)
		if err != nil {
			return domain.CallResult{}, err
		}
		factory := NewTransportFactory(resolved, a.logger)
		pool, cleanup := NewClientPool(resolved, factory, nil, nil, a.logger)
		defer cleanup()
		return pool.InvokeSync(ctx, req.Binding, req.Tool, req.Arguments)
	}

	application, cleanup, err := a.initialize(ctx, cfg)
	if err != nil {
		return domain.CallResult{}, err
	}
	defer cleanup()
	return application.Binder().Invoke(ctx, req.Tool, req.Arguments)
}

func (a *App) initialize(ctx context.Context, cfg ServeConfig) (*Application, func(), error) {
	resolved, err := a.loadConfig(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	cfg.Config = resolved
	return InitializeApplication(ctx, cfg, LoggingConfig{Logger: a.logger})
}

// loadConfig prefers an explicit config, then the file, then defaults.
func (a *App) loadConfig(ctx context.Context, cfg ServeConfig) (domain.Config, error) {
	if cfg.ConfigPath == "" {
		if isZeroConfig(cfg.Config) {
			return config.Defaults(), nil
		}
		return cfg.Config, nil
	}
	loaded, err := config.NewLoader(a.logger).Load(ctx, cfg.ConfigPath)
	if err != nil {
		return domain.Config{}, errors.Join(domain.ErrInvalidConfig, err)
	}
	return loaded, nil
}

func isZeroConfig(cfg domain.Config) bool {
	return cfg.Store.Path == "" && len(cfg.Remotes) == 0 && cfg.Client.Name == ""
}
