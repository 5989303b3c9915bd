//go:build wireinject
// +build wireinject

package di

import (
	"FinArb/pkg/config"
	"FinArb/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire generates the implementation in wire_gen.go.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Engine state
		ProvideTracker,
		ProvideBreaker,
		ProvideScorer,

		// Sources
		ProvideSourceSet,
		ProvideRegistry,
		ProvideStreams,

		// Engine
		ProvideRetryPolicy,
		ProvidePlanBuilder,
		ProvideExecutor,
		ProvideMerger,
		ProvideEngine,

		// Infrastructure sinks
		ProvideClickHouseClient,
		ProvideAuditSink,
		ProvideKafkaProducer,
		ProvideResultPublisher,
		ProvideCacheStore,
		ProvideResultCache,

		// HTTP and app
		ProvideHandler,
		ProvideApp,
	)
	return &server.App{}, nil
}
