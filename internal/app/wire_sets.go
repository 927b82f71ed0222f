//go:build wireinject
// +build wireinject

package app

import (
	"github.com/google/wire"

	"mcpbridge/internal/domain"
	"mcpbridge/internal/infra/clientpool"
	"mcpbridge/internal/infra/notifications"
	"mcpbridge/internal/infra/toolstore"
	"mcpbridge/internal/infra/transport"
)

var CoreInfraSet = wire.NewSet(
	NewLogging,
	NewLogger,
	NewConfig,
	NewMetricsRegistry,
	NewMetrics,
	NewHealthTracker,
	NewObservabilityController,
	NewListChangeHub,
	wire.Bind(new(domain.ListChangeEmitter), new(*notifications.ListChangeHub)),
	NewTransportFactory,
	wire.Bind(new(clientpool.TransportFactory), new(*transport.Factory)),
	NewClientPool,
	NewToolStore,
	wire.Bind(new(domain.ToolStore), new(*toolstore.Store)),
)

var SyncSet = wire.NewSet(
	NewRegistry,
	NewDiscoveryEngine,
	NewReconciler,
	NewBinder,
)

var AppSet = wire.NewSet(
	CoreInfraSet,
	SyncSet,
	wire.Struct(new(ApplicationOptions), "*"),
	NewApplication,
)
