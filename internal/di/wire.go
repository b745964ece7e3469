//go:build wireinject
// +build wireinject

package di

import (
	"NewsSignal/internal/usecase"
	"NewsSignal/pkg/config"
	"NewsSignal/pkg/server"

	"github.com/google/wire"
)

var infraSet = wire.NewSet(
	ProvideLogger,
	ProvideMetrics,
	ProvideRedisCache,
	ProvideCache,
)

var engineSet = wire.NewSet(
	ProvideAIProvider,
	ProvideArbiter,
	ProvideComponents,
	ProvideEngine,
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		infraSet,
		engineSet,

		// Infrastructure clients
		ProvideTracing,
		ProvideClickHouseClient,
		ProvideKafkaProducer,

		// Notification and state
		ProvideStateStore,
		ProvideNotificationSink,
		ProvideNotifier,
		ProvideConfigWatcher,

		// Intake and delivery
		ProvideFinnhubStream,
		ProvideIngestor,
		ProvideKafkaConsumer,
		ProvideStatementQueue,
		ProvideDecisionRouter,
		ProvideDeliveryPipeline,
		ProvideStreamHub,

		// Application server
		ProvideScheduler,
		ProvideHTTPServer,
		ProvideApp,
	)
	return nil, nil, nil
}

// InitializeEngine builds only the scoring engine, for one-shot commands.
func InitializeEngine(cfg *config.Config) (*usecase.DecisionEngine, func(), error) {
	wire.Build(infraSet, engineSet)
	return nil, nil, nil
}
