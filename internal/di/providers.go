package di

import (
	"context"
	"fmt"
	"time"

	"FinArb/internal/domain/models"
	"FinArb/internal/domain/repository"
	"FinArb/internal/handler/api"
	internalrepo "FinArb/internal/repository"
	"FinArb/internal/service/breaker"
	"FinArb/internal/service/health"
	"FinArb/internal/service/retrypolicy"
	"FinArb/internal/service/scoring"
	"FinArb/internal/service/sources"
	"FinArb/internal/usecase"
	"FinArb/pkg/cache"
	pkgch "FinArb/pkg/clickhouse"
	"FinArb/pkg/config"
	xhttp "FinArb/pkg/http"
	pkgkafka "FinArb/pkg/kafka"
	applogger "FinArb/pkg/logger"
	"FinArb/pkg/metrics"
	"FinArb/pkg/server"

	"github.com/creasty/defaults"
)

// SourceSet bundles the registry with the stream adapters that need a
// background run loop.
type SourceSet struct {
	Registry *sources.Registry
	Streams  []*sources.StreamSource
}

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	level := cfg.Log.Level
	if level == "" {
		level = "info"
	}
	format := cfg.Log.Format
	if format == "" {
		format = "console"
	}
	return applogger.New(&applogger.Config{
		Level:  level,
		Format: format,
		Output: cfg.Log.Output,
	})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideTracker creates the sliding-window health tracker.
func ProvideTracker(cfg *config.Config) *health.Tracker {
	var opts []health.Option
	if cfg.Engine.WindowSize > 0 && cfg.Engine.WindowHorizon > 0 {
		opts = append(opts, health.WithWindow(cfg.Engine.WindowSize, cfg.Engine.WindowHorizon))
	}
	return health.NewTracker(opts...)
}

// ProvideBreaker creates the circuit breaker, reporting transitions to
// the metrics recorder.
func ProvideBreaker(cfg *config.Config, m repository.Metrics) *breaker.Breaker {
	opts := []breaker.Option{
		breaker.WithTransitionHook(func(source string, capability models.Capability, state models.CircuitState) {
			m.RecordCircuit(source, capability, state)
		}),
	}
	if cfg.Engine.Breaker.Threshold > 0 {
		opts = append(opts, breaker.WithThreshold(cfg.Engine.Breaker.Threshold))
	}
	if cfg.Engine.Breaker.Cooldown > 0 {
		opts = append(opts, breaker.WithCooldown(cfg.Engine.Breaker.Cooldown, cfg.Engine.Breaker.MaxCooldown))
	}
	return breaker.New(opts...)
}

// ProvideScorer creates the scorer. Zero-valued weight config falls back
// to the documented defaults.
func ProvideScorer(cfg *config.Config) *scoring.Scorer {
	w := scoring.Weights{
		Freshness:    cfg.Engine.Weights.Freshness,
		Latency:      cfg.Engine.Weights.Latency,
		Uptime:       cfg.Engine.Weights.Uptime,
		Completeness: cfg.Engine.Weights.Completeness,
		Trust:        cfg.Engine.Weights.Trust,
	}
	if w.Freshness+w.Latency+w.Uptime+w.Completeness+w.Trust == 0 {
		_ = defaults.Set(&w)
	}
	return scoring.New(w)
}

// ProvideSourceSet builds the registry and stream adapters from config.
func ProvideSourceSet(cfg *config.Config, logger *applogger.Logger) (*SourceSet, error) {
	set := &SourceSet{}
	entries := make([]sources.Registered, 0, len(cfg.Sources))
	for _, sc := range cfg.Sources {
		caps := make([]models.Capability, 0, len(sc.Capabilities))
		for _, c := range sc.Capabilities {
			caps = append(caps, models.Capability(c))
		}
		src := models.Source{
			ID:           sc.Name,
			Capabilities: caps,
			Trust:        sc.Trust,
			Disabled:     sc.Disabled,
		}

		var fetcher repository.Fetcher
		switch sc.Kind {
		case "stream":
			var opts []sources.StreamOption
			if sc.APIKey != "" {
				opts = append(opts, sources.WithStreamAPIKey(sc.APIKey))
			}
			if sc.MaxQuoteAge > 0 {
				opts = append(opts, sources.WithMaxQuoteAge(sc.MaxQuoteAge))
			}
			stream := sources.NewStreamSource(sc.Name, sc.URL, sc.Symbols, logger, opts...)
			set.Streams = append(set.Streams, stream)
			fetcher = stream
		case "rest":
			var opts []sources.RESTOption
			if sc.APIKey != "" {
				opts = append(opts, sources.WithAPIKey(sc.APIKey))
			}
			if sc.RateLimit > 0 {
				opts = append(opts, sources.WithRateLimit(sc.RateLimit))
			}
			fetcher = sources.NewRESTSource(sc.Name, sc.URL, opts...)
		default:
			return nil, fmt.Errorf("source %q: unknown kind %q", sc.Name, sc.Kind)
		}

		entries = append(entries, sources.Registered{Source: src, Fetcher: fetcher})
	}

	registry, err := sources.NewRegistry(entries)
	if err != nil {
		return nil, fmt.Errorf("source registry: %w", err)
	}
	set.Registry = registry
	return set, nil
}

// ProvideRegistry unwraps the registry for consumers that only plan and
// execute.
func ProvideRegistry(set *SourceSet) *sources.Registry {
	return set.Registry
}

// ProvideStreams unwraps the stream adapters for the app run loop.
func ProvideStreams(set *SourceSet) []*sources.StreamSource {
	return set.Streams
}

// ProvideRetryPolicy creates the per-source retry policy.
func ProvideRetryPolicy(cfg *config.Config) retrypolicy.Policy {
	p := retrypolicy.Default()
	if cfg.Engine.Retry.MaxAttempts > 0 {
		p.MaxAttempts = cfg.Engine.Retry.MaxAttempts
	}
	if cfg.Engine.Retry.BackoffMin > 0 {
		p.BackoffMin = cfg.Engine.Retry.BackoffMin
	}
	if cfg.Engine.Retry.BackoffMax > 0 {
		p.BackoffMax = cfg.Engine.Retry.BackoffMax
	}
	return p
}

// ProvidePlanBuilder creates the plan builder.
func ProvidePlanBuilder(scorer *scoring.Scorer, tracker *health.Tracker, circuit *breaker.Breaker, cfg *config.Config) *usecase.PlanBuilder {
	var opts []usecase.PlanOption
	if cfg.Engine.FallbackDepth > 0 {
		opts = append(opts, usecase.WithDefaultDepth(cfg.Engine.FallbackDepth))
	}
	if cfg.Engine.FusionFanOut > 0 {
		opts = append(opts, usecase.WithFusionFanOut(cfg.Engine.FusionFanOut))
	}
	if cfg.Engine.PlanDeadline > 0 {
		opts = append(opts, usecase.WithPlanDeadline(cfg.Engine.PlanDeadline))
	}
	return usecase.NewPlanBuilder(scorer, tracker, circuit, opts...)
}

// ProvideExecutor creates the executor.
func ProvideExecutor(
	registry *sources.Registry,
	tracker *health.Tracker,
	circuit *breaker.Breaker,
	m repository.Metrics,
	logger *applogger.Logger,
	policy retrypolicy.Policy,
	cfg *config.Config,
) *usecase.Executor {
	opts := []usecase.ExecOption{usecase.WithRetryPolicy(policy)}
	if cfg.Engine.PerSourceTimeout > 0 {
		opts = append(opts, usecase.WithPerSourceTimeout(cfg.Engine.PerSourceTimeout))
	}
	return usecase.NewExecutor(registry, tracker, circuit, m, logger, opts...)
}

// ProvideMerger creates the result merger.
func ProvideMerger(cfg *config.Config) *usecase.Merger {
	var opts []usecase.MergeOption
	if cfg.Engine.Merge.StalenessTolerance > 0 {
		opts = append(opts, usecase.WithStalenessTolerance(cfg.Engine.Merge.StalenessTolerance))
	}
	if cfg.Engine.Merge.ScoreEpsilon > 0 {
		opts = append(opts, usecase.WithScoreEpsilon(cfg.Engine.Merge.ScoreEpsilon))
	}
	if cfg.Engine.Merge.ValueEpsilon > 0 {
		opts = append(opts, usecase.WithValueEpsilon(cfg.Engine.Merge.ValueEpsilon))
	}
	return usecase.NewMerger(opts...)
}

// ProvideClickHouseClient creates the audit database client, or nil when
// ClickHouse is disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	table := auditTable(cfg)
	if err := client.InitSchema(ctx, []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", cfg.ClickHouse.Database),
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (ts DateTime, source String, capability String, entity String, outcome String, reason String, latency_ms Int64) ENGINE=MergeTree ORDER BY (capability, source, ts)", table),
	}); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}

	return client, nil
}

func auditTable(cfg *config.Config) string {
	table := cfg.ClickHouse.Table
	if table == "" {
		table = "attempt_audit"
	}
	return cfg.ClickHouse.Database + "." + table
}

// ProvideAuditSink creates the attempt audit sink. Without ClickHouse the
// engine records nothing.
func ProvideAuditSink(chClient *pkgch.Client, cfg *config.Config) repository.AuditSink {
	if chClient == nil {
		return internalrepo.NopAuditSink{}
	}
	return internalrepo.NewClickHouseAuditStore(chClient.DB(), auditTable(cfg))
}

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is
// disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.BatchSize),
		pkgkafka.WithBatchTimeout(cfg.Kafka.BatchTimeout),
		pkgkafka.WithAsync(cfg.Kafka.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideResultPublisher creates the canonical result publisher.
func ProvideResultPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.ResultPublisher {
	if producer == nil {
		return internalrepo.NopResultPublisher{}
	}
	return internalrepo.NewKafkaResultPublisher(producer, cfg.Kafka.Topic)
}

// ProvideCacheStore creates the layered result cache store.
func ProvideCacheStore(cfg *config.Config) (cache.Store, error) {
	var l2 cache.Store
	if cfg.Cache.Redis.Enabled {
		redis, err := cache.NewRedisStore(
			cache.WithRedisAddr(cfg.Cache.Redis.Addr),
			cache.WithRedisPassword(cfg.Cache.Redis.Password),
			cache.WithRedisDB(cfg.Cache.Redis.DB),
		)
		if err != nil {
			return nil, fmt.Errorf("redis cache: %w", err)
		}
		l2 = redis
	}
	var memOpts []cache.MemoryOption
	if cfg.Cache.Memory.MaxEntries > 0 {
		memOpts = append(memOpts, cache.WithMemoryMaxEntries(cfg.Cache.Memory.MaxEntries))
	}
	return cache.NewLayeredStore(l2, memOpts...), nil
}

// ProvideResultCache adapts the cache store to the domain contract.
func ProvideResultCache(store cache.Store) repository.ResultCache {
	return internalrepo.NewCachedResults(store)
}

// ProvideEngine assembles the arbitration engine.
func ProvideEngine(
	registry *sources.Registry,
	builder *usecase.PlanBuilder,
	executor *usecase.Executor,
	merger *usecase.Merger,
	tracker *health.Tracker,
	circuit *breaker.Breaker,
	m repository.Metrics,
	audit repository.AuditSink,
	logger *applogger.Logger,
) *usecase.Engine {
	return usecase.NewEngine(registry, builder, executor, merger, tracker, circuit, m, audit, logger)
}

// ProvideHandler creates the HTTP handler.
func ProvideHandler(
	logger *applogger.Logger,
	engine *usecase.Engine,
	resultCache repository.ResultCache,
	publisher repository.ResultPublisher,
	cfg *config.Config,
) xhttp.Handler {
	return api.NewArbiterEchoHandler(logger, engine, resultCache, publisher, cfg.Cache.TTL)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	logger *applogger.Logger,
	handler xhttp.Handler,
	streams []*sources.StreamSource,
	store cache.Store,
	audit repository.AuditSink,
	publisher repository.ResultPublisher,
	chClient *pkgch.Client,
) *server.App {
	return server.New(cfg, logger, handler, streams, store, audit, publisher, chClient)
}
