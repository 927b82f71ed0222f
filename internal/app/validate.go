package app

import (
	"context"

	"go.uber.org/zap"

	"mcpbridge/internal/domain"
)

// ValidateConfig loads and validates the configuration at the given path.
func (a *App) ValidateConfig(ctx context.Context, cfg ValidateConfig) (domain.Config, error) {
	if cfg.ConfigPath == "" {
		return domain.Config{}, domain.E(domain.CodeInvalidArgument, "validate", "config path is required", nil)
	}
	resolved, err := a.loadConfig(ctx, ServeConfig{ConfigPath: cfg.ConfigPath})
	if err != nil {
		return domain.Config{}, err
	}

	a.logger.Info("configuration validated",
		zap.String("config", cfg.ConfigPath),
		zap.Int("remotes", len(resolved.Remotes)),
		zap.Bool("discovery", resolved.Discovery.Enabled),
		zap.String("store", resolved.Store.Path),
	)
	return resolved, nil
}
