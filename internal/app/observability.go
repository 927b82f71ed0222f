package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"mcpbridge/internal/infra/telemetry"
)

func NewObservabilityController(registry *prometheus.Registry, health *telemetry.HealthTracker, logger *zap.Logger) *telemetry.ObservabilityController {
	opts := telemetry.ObservabilityControllerOptions{
		Registry: registry,
		Health:   health,
		Logger:   logger,
	}
	if value, ok := envBoolOptional(envMetricsEnabled); ok {
		opts.MetricsOverride = &value
	}
	if value, ok := envBoolOptional(envHealthzEnabled); ok {
		opts.HealthzOverride = &value
	}
	return telemetry.NewObservabilityController(opts)
}
