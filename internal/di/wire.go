//go:build wireinject
// +build wireinject

package di

import (
	"MarketSignal/pkg/config"
	"MarketSignal/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Infrastructure clients
		ProvideKafkaProducer,
		ProvideLogger,
		ProvideMetrics,
		ProvideClickHouseClient,
		ProvideRedisCache,
		ProvideCache,
		ProvideKafkaConsumer,
		ProvideLimiter,

		// Repositories
		ProvideArtifacts,
		ProvideBarStore,
		ProvideSignalPublisher,

		// Engines
		ProvidePredictor,
		ProvideDetector,
		ProvideSentimentService,

		// Use cases
		ProvideSignalPipeline,
		ProvideHistoryUseCase,
		ProvideBarIngest,
		ProvideKafkaScoringHandler,
		ProvideRefreshJob,
		ProvideRefreshQueue,

		// Handlers
		ProvideHTTPHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
