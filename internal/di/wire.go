//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"Rotator/pkg/config"
	"Rotator/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideLocation,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvidePostgresClient,
		ProvideRedisCache,
		ProvideKafkaProducer,

		// Repositories and upstream services
		ProvideBarStore,
		ProvideRunStore,
		ProvideRunLock,
		ProvideEventPublisher,
		ProvideBroker,
		ProvideMarketData,

		// Use cases
		ProvideBarManager,
		ProvideOrchestrator,
		ProvideEngine,

		// HTTP
		ProvideTriggerLimiter,
		ProvideAlgorithmHandler,
		ProvideHTTPServer,

		ProvideApp,
	)
	return &server.App{}, nil
}
