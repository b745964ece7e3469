package di

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"NewsSignal/internal/domain/models"
	"NewsSignal/internal/domain/repository"
	"NewsSignal/internal/handler/api"
	mid "NewsSignal/internal/middleware"
	internalrepo "NewsSignal/internal/repository"
	"NewsSignal/internal/service/ai"
	"NewsSignal/internal/service/aicache"
	"NewsSignal/internal/service/finnhub"
	"NewsSignal/internal/service/notify"
	"NewsSignal/internal/service/ratelimit"
	"NewsSignal/internal/service/rss"
	"NewsSignal/internal/service/scheduler"
	"NewsSignal/internal/service/stream"
	"NewsSignal/internal/services/antiflutter"
	"NewsSignal/internal/services/arbiter"
	"NewsSignal/internal/services/calibrate"
	"NewsSignal/internal/services/contextual"
	"NewsSignal/internal/services/disruption"
	"NewsSignal/internal/services/relevance"
	"NewsSignal/internal/services/rolling"
	"NewsSignal/internal/services/sentiment"
	"NewsSignal/internal/services/sourceweight"
	"NewsSignal/internal/usecase"
	"NewsSignal/pkg/cache"
	pkgch "NewsSignal/pkg/clickhouse"
	"NewsSignal/pkg/config"
	xhttp "NewsSignal/pkg/http"
	pkgkafka "NewsSignal/pkg/kafka"
	xlogger "NewsSignal/pkg/logger"
	"NewsSignal/pkg/metrics"
	"NewsSignal/pkg/queue"
	"NewsSignal/pkg/server"
	"NewsSignal/pkg/tracing"
)

// TracingShutdown flushes the tracer provider.
type TracingShutdown func(ctx context.Context) error

// ProvideLogger builds the root logger from the log section.
func ProvideLogger(cfg *config.Config) (*xlogger.Logger, error) {
	l, err := xlogger.New(&xlogger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: cfg.Log.TimeFormat,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics(cfg *config.Config) repository.Metrics {
	if !cfg.Metrics.Enabled {
		return metrics.Nop{}
	}
	return metrics.New()
}

func ProvideTracing(cfg *config.Config) (TracingShutdown, error) {
	shutdown, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
	})
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}
	return shutdown, nil
}

// ProvideRedisCache connects to Redis when enabled; it returns nil otherwise.
func ProvideRedisCache(cfg *config.Config) (*cache.RedisCache, func(), error) {
	if !cfg.Redis.Enabled {
		return nil, func() {}, nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Redis.Addr),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
		cache.WithRedisPool(cfg.Redis.PoolSize, 2),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("redis: %w", err)
	}
	return rc, func() { _ = rc.Close() }, nil
}

// ProvideCache is the process cache: memory in front of Redis when Redis is
// enabled, memory alone otherwise.
func ProvideCache(cfg *config.Config, rc *cache.RedisCache) cache.Cache {
	if rc == nil {
		return cache.NewMemoryCache()
	}
	return cache.NewLayeredCache(rc, cache.WithLocalTTL(cfg.Redis.LocalTTL))
}

// ProvideClickHouseClient creates a ClickHouse client when enabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, func(), error) {
	if !cfg.ClickHouse.Enabled {
		return nil, func() {}, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := pkgch.NewClient(ctx, pkgch.Config{
		Host:         cfg.ClickHouse.Host,
		Port:         cfg.ClickHouse.Port,
		Database:     cfg.ClickHouse.Database,
		User:         cfg.ClickHouse.User,
		Password:     cfg.ClickHouse.Password,
		UseHTTP:      cfg.ClickHouse.UseHTTP,
		AsyncInsert:  cfg.ClickHouse.AsyncInsert,
		WaitForAsync: cfg.ClickHouse.WaitForAsync,
		DialTimeout:  cfg.ClickHouse.DialTimeout,
		ReadTimeout:  cfg.ClickHouse.ReadTimeout,
		MaxExecTime:  cfg.ClickHouse.MaxExecutionTime,
		MaxOpenConns: 10,
		MaxIdleConns: 5,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}
	if err := client.EnsureSchema(ctx, "CREATE DATABASE IF NOT EXISTS "+cfg.ClickHouse.Database); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, func() { _ = client.Close() }, nil
}

// ProvideKafkaProducer creates a Kafka producer when Kafka is enabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, func(), error) {
	if !cfg.Kafka.Enabled {
		return nil, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, func() { _ = producer.Close() }, nil
}

// ProvideAIProvider returns nil when AI is off.
func ProvideAIProvider(cfg *config.Config, logger *xlogger.Logger) (repository.AIProvider, error) {
	return ai.NewProvider(cfg.AI, logger.With("ai"))
}

// ProvideArbiter returns nil when there is no provider. The response cache
// and quota use the shared cache only when ai.shared_cache is set.
func ProvideArbiter(cfg *config.Config, provider repository.AIProvider, shared cache.Cache, logger *xlogger.Logger, m repository.Metrics) *arbiter.Arbiter {
	if provider == nil {
		return nil
	}
	backend := shared
	if !cfg.AI.SharedCache {
		backend = cache.NewMemoryCache()
	}
	return arbiter.New(arbiter.Config{
		Enabled:        cfg.AI.Enabled,
		AllowedSources: cfg.AI.AllowedSources,
		Band:           cfg.AI.Band,
		Timeout:        cfg.AI.Timeout,
	},
		provider,
		aicache.NewStore(backend, cfg.AI.CacheTTL),
		aicache.NewQuota(backend, cfg.AI.DailyLimit),
		arbiter.WithLogger(logger.With("arbiter")),
		arbiter.WithMetrics(m),
	)
}

// ProvideComponents builds the scoring stages from the embedded defaults,
// then applies the configured files. A broken file at startup is fatal.
func ProvideComponents(cfg *config.Config, logger *xlogger.Logger, arb *arbiter.Arbiter) (usecase.Components, error) {
	ec := cfg.Engine
	var gateOpts []relevance.Option
	gateOpts = append(gateOpts, relevance.WithLogger(logger.With("relevance")))
	if ec.RelevanceFloor != nil {
		gateOpts = append(gateOpts, relevance.WithThreshold(*ec.RelevanceFloor))
	}
	gate, err := relevance.NewGate(nil, gateOpts...)
	if err != nil {
		return usecase.Components{}, err
	}

	ner := contextual.DefaultNER()
	if ec.NERDir != "" {
		if ner, err = contextual.LoadNERDir(ec.NERDir); err != nil {
			return usecase.Components{}, err
		}
	}

	c := usecase.Components{
		Gate:     gate,
		Scorer:   sentiment.NewScorer(nil),
		Weights:  sourceweight.New(nil),
		Antispam: contextual.NewAntispam(contextual.AntispamConfig(ec.Antispam)),
		Reranker: contextual.NewReranker(contextual.RerankConfig{
			RelevanceThreshold: ec.Rerank.RelevanceThreshold,
			Similarity:         ec.Rerank.Similarity,
			Decay:              ec.Rerank.Decay,
		}),
		NER:        ner,
		Rules:      contextual.DefaultRules(),
		Rolling:    rolling.NewStore(),
		History:    rolling.NewHistory(ec.HistorySize),
		Disruption: disruption.NewCalculator(),
		Calibrator: calibrate.New(nil),
		Arbiter:    arb,
	}

	for _, r := range resources(cfg, c) {
		if r.path == "" {
			continue
		}
		data, err := os.ReadFile(r.path)
		if err != nil {
			return usecase.Components{}, fmt.Errorf("read %s: %w", r.name, err)
		}
		if err := r.apply(data); err != nil {
			return usecase.Components{}, fmt.Errorf("load %s: %w", r.name, err)
		}
	}
	return c, nil
}

type resource struct {
	name  string
	path  string
	apply func([]byte) error
}

func resources(cfg *config.Config, c usecase.Components) []resource {
	ec := cfg.Engine
	return []resource{
		{"relevance", ec.RelevancePath, c.Gate.Reload},
		{"lexicon", ec.LexiconPath, c.Scorer.Reload},
		{"source_weights", ec.SourceWeights, c.Weights.Reload},
		{"rules", ec.RulesPath, c.Rules.Reload},
		{"calibration", ec.CalibrationPath, c.Calibrator.Reload},
	}
}

// ProvideConfigWatcher subscribes every configured file, NER categories
// included, for hot reload.
func ProvideConfigWatcher(cfg *config.Config, c usecase.Components, logger *xlogger.Logger, m repository.Metrics) *config.FileWatcher {
	l := logger.With("reload")
	w := config.NewFileWatcher(cfg.Engine.ReloadInterval, func(name, path string, err error) {
		if err != nil {
			l.Warn("reload rejected; keeping previous snapshot",
				xlogger.String("resource", name), xlogger.String("path", path), xlogger.Error(err))
			m.RecordReload(name, "error")
			return
		}
		l.Info("resource reloaded", xlogger.String("resource", name), xlogger.String("path", path))
		m.RecordReload(name, "ok")
	})
	for _, r := range resources(cfg, c) {
		w.Subscribe(r.name, r.path, r.apply)
	}
	if cfg.Engine.NERDir != "" {
		files, _ := filepath.Glob(filepath.Join(cfg.Engine.NERDir, "*.yaml"))
		for _, f := range files {
			category := contextual.CategoryFromFile(f)
			w.Subscribe("ner:"+category, f, func(data []byte) error {
				return c.NER.SetCategory(category, data)
			})
		}
	}
	return w
}

func ProvideEngine(cfg *config.Config, c usecase.Components, logger *xlogger.Logger, m repository.Metrics) *usecase.DecisionEngine {
	return usecase.NewDecisionEngine(c,
		usecase.WithEngineLogger(logger.With("engine")),
		usecase.WithEngineMetrics(m),
		usecase.WithWorkers(cfg.Engine.Workers),
		usecase.WithDuplicateDecay(cfg.Engine.Rerank.Decay),
	)
}

// ProvideStateStore picks the checkpoint backend.
func ProvideStateStore(cfg *config.Config, rc *cache.RedisCache) repository.StateStore {
	switch cfg.State.Backend {
	case "file":
		return internalrepo.NewFileStateStore(cfg.State.Path)
	case "redis":
		if rc != nil {
			return internalrepo.NewCacheStateStore(rc)
		}
	}
	return internalrepo.NopStateStore{}
}

func ProvideNotificationSink(cfg *config.Config, logger *xlogger.Logger, m repository.Metrics) *notify.Mux {
	return notify.NewFromConfig(cfg.Notify, logger.With("notify"), m)
}

func ProvideNotifier(cfg *config.Config, engine *usecase.DecisionEngine, sink *notify.Mux, store repository.StateStore, logger *xlogger.Logger, m repository.Metrics) *usecase.Notifier {
	return usecase.NewNotifier(engine.History(), antiflutter.NewMachine(cfg.Notify.Cooldown), sink,
		usecase.WithNotifierStore(store),
		usecase.WithNotifierLogger(logger.With("notifier")),
		usecase.WithNotifierMetrics(m),
	)
}

// ProvideFinnhubStream returns nil unless the Finnhub news stream is enabled.
func ProvideFinnhubStream(cfg *config.Config, logger *xlogger.Logger) *finnhub.NewsStream {
	fc := cfg.Ingest.Finnhub
	if !fc.Enabled {
		return nil
	}
	return finnhub.New(fc.APIKey, fc.URL, fc.Symbols,
		finnhub.WithReconnectDelay(fc.ReconnectDelay),
		finnhub.WithPingInterval(fc.PingInterval),
		finnhub.WithBufferSize(fc.BufferSize),
		finnhub.WithLogger(logger.With("finnhub")),
	)
}

// ProvideIngestor wires the enabled providers. Ingest runs only when at
// least one is enabled.
func ProvideIngestor(cfg *config.Config, engine *usecase.DecisionEngine, fh *finnhub.NewsStream, c cache.Cache, logger *xlogger.Logger, m repository.Metrics) *usecase.Ingestor {
	var providers []repository.StatementProvider
	if cfg.Ingest.Reuters.Enabled {
		providers = append(providers, rss.NewReuters(cfg.Ingest.Reuters.URL))
	}
	if cfg.Ingest.Fed.Enabled {
		providers = append(providers, rss.NewFed(cfg.Ingest.Fed.URL))
	}
	if fh != nil {
		providers = append(providers, fh)
	}
	return usecase.NewIngestor(engine, providers,
		usecase.WithWhitelist(cfg.Ingest.Whitelist),
		usecase.WithDedupWindow(cfg.Ingest.DedupWindow),
		usecase.WithMaxTextLen(cfg.Ingest.MaxLen),
		usecase.WithSeenCache(c, 24*time.Hour),
		usecase.WithIngestLogger(logger.With("ingest")),
		usecase.WithIngestMetrics(m),
	)
}

// ProvideDecisionRouter returns nil when delivery.backend is none.
func ProvideDecisionRouter(cfg *config.Config, producer *pkgkafka.Producer, ch *pkgch.Client, logger *xlogger.Logger, m repository.Metrics) (*usecase.DecisionRouter, error) {
	switch cfg.Delivery.Backend {
	case usecase.BackendKafka:
		if producer == nil {
			return nil, fmt.Errorf("delivery: kafka producer not configured")
		}
		pub := internalrepo.NewKafkaDecisionPublisher(producer, cfg.Kafka.DecisionsTopic)
		return usecase.NewDecisionRouter(pub, nil, m, usecase.BackendKafka), nil
	case usecase.BackendClickHouse:
		if ch == nil {
			return nil, fmt.Errorf("delivery: clickhouse not configured")
		}
		archive := internalrepo.NewCHDecisionArchive(ch.DB(), cfg.ClickHouse.Database+".decisions")
		archive.SetLogger(logger.With("archive"))
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := archive.Init(ctx); err != nil {
			return nil, fmt.Errorf("decision archive: %w", err)
		}
		return usecase.NewDecisionRouter(nil, archive, m, usecase.BackendClickHouse), nil
	}
	return nil, nil
}

// ProvideDeliveryPipeline feeds committed records to the router without
// blocking the engine. It returns nil when there is no router.
func ProvideDeliveryPipeline(cfg *config.Config, router *usecase.DecisionRouter, engine *usecase.DecisionEngine, logger *xlogger.Logger, m repository.Metrics) *mid.DeliveryPipeline {
	if router == nil {
		return nil
	}
	l := logger.With("delivery")
	p := mid.NewDeliveryPipeline(router, m,
		mid.WithMaxRPS(cfg.Delivery.MaxRPS),
		mid.WithBufferSize(cfg.Delivery.BufferSize),
		mid.WithPipelineLogger(l),
	)
	engine.OnCommit(func(r models.DecisionRecord) {
		if err := p.Submit(&r); err != nil {
			l.Warn("decision not queued for delivery", xlogger.String("id", r.ID), xlogger.Error(err))
		}
	})
	return p
}

func ProvideStreamHub(cfg *config.Config, engine *usecase.DecisionEngine, logger *xlogger.Logger) *stream.Hub {
	hub := stream.NewHub(logger.With("stream"))
	if cfg.Delivery.Stream {
		engine.OnCommit(hub.Broadcast)
	}
	return hub
}

// ProvideKafkaConsumer returns nil unless the statement consumer is enabled.
func ProvideKafkaConsumer(cfg *config.Config, engine *usecase.DecisionEngine, logger *xlogger.Logger, m repository.Metrics) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled || !cfg.Kafka.Consumer.Enabled {
		return nil, nil
	}
	l := logger.With("kafka_consumer")
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerHooks(
			pkgkafka.TracingHook{},
			pkgkafka.LogHook{Logger: l},
			pkgkafka.JSONHook{},
		),
		pkgkafka.WithConsumerLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.RegisterHandler(usecase.NewStatementConsumer(cfg.Kafka.StatementsTopic, engine, m))
	return consumer, nil
}

// ProvideStatementQueue returns nil unless the Redis intake is enabled.
func ProvideStatementQueue(cfg *config.Config, rc *cache.RedisCache, engine *usecase.DecisionEngine, logger *xlogger.Logger, m repository.Metrics) (*queue.RedisQueue, error) {
	if !cfg.Queue.Enabled {
		return nil, nil
	}
	if rc == nil {
		return nil, fmt.Errorf("queue: redis not configured")
	}
	return queue.New(rc.Client(), queue.Config{
		Workers:    cfg.Queue.Workers,
		RetryLimit: cfg.Queue.RetryLimit,
		RetryDelay: cfg.Queue.RetryDelay,
	},
		queue.WithKeyPrefix(cfg.Queue.Prefix),
		queue.WithLogger(logger.With("queue")),
		queue.WithJobs(usecase.NewDecideJob(engine, m)),
	), nil
}

// ProvideScheduler registers the periodic jobs.
func ProvideScheduler(
	cfg *config.Config,
	engine *usecase.DecisionEngine,
	notifier *usecase.Notifier,
	ingestor *usecase.Ingestor,
	store repository.StateStore,
	logger *xlogger.Logger,
	m repository.Metrics,
) (*scheduler.Scheduler, error) {
	s := scheduler.New(logger, scheduler.WithMetrics(m))

	jobs := []struct {
		spec string
		job  scheduler.Job
		on   bool
	}{
		{cfg.Notify.PollSchedule, scheduler.Func("notify_poll", func(ctx context.Context) error {
			notifier.PollNotifications(ctx)
			return nil
		}), cfg.Notify.Enabled},
		{cfg.Engine.EvictSchedule, scheduler.Func("rolling_evict", func(context.Context) error {
			engine.Evict()
			return nil
		}), true},
		{cfg.State.Schedule, scheduler.Func("checkpoint", func(ctx context.Context) error {
			notifier.Checkpoint(ctx)
			return engine.SaveRolling(ctx, store)
		}), cfg.State.Backend != "none"},
		{cfg.Ingest.Schedule, scheduler.Func("ingest", func(ctx context.Context) error {
			_, _, err := ingestor.RunOnce(ctx)
			return err
		}), cfg.Ingest.Enabled && len(ingestor.Providers()) > 0},
	}
	for _, j := range jobs {
		if !j.on {
			continue
		}
		if err := s.AddJob(j.spec, j.job); err != nil {
			return nil, fmt.Errorf("schedule %s: %w", j.job.Name(), err)
		}
	}
	return s, nil
}

func ProvideHTTPServer(
	cfg *config.Config,
	engine *usecase.DecisionEngine,
	notifier *usecase.Notifier,
	watcher *config.FileWatcher,
	hub *stream.Hub,
	logger *xlogger.Logger,
) *xhttp.Server {
	statements := api.NewStatementsHandler(logger.With("api"), engine, notifier)
	statements.SetLimiter(ratelimit.New(cfg.Server.DecidePerMinute, cfg.Server.DecidePerMinute/10+1))

	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	return xhttp.NewServer([]xhttp.Handler{
		statements,
		api.NewDebugHandler(logger.With("debug"), engine, watcher),
		api.NewStreamHandler(hub),
	},
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithCORSOrigins(cfg.Server.CORSOrigins),
		xhttp.WithMetricsPath(metricsPath),
		xhttp.WithServerLogger(logger),
	)
}

// ProvideApp assembles the lifecycle. Components start in dependency order
// and stop in reverse.
func ProvideApp(
	cfg *config.Config,
	logger *xlogger.Logger,
	httpServer *xhttp.Server,
	engine *usecase.DecisionEngine,
	notifier *usecase.Notifier,
	store repository.StateStore,
	watcher *config.FileWatcher,
	sched *scheduler.Scheduler,
	pipeline *mid.DeliveryPipeline,
	consumer *pkgkafka.Consumer,
	q *queue.RedisQueue,
	hub *stream.Hub,
	fh *finnhub.NewsStream,
	producer *pkgkafka.Producer,
	shutdownTracing TracingShutdown,
) *server.App {
	app := server.New(httpServer,
		server.WithLogger(logger),
		server.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
	)

	app.Add(server.Component{
		Name:  "tracing",
		Start: func(context.Context) error { return nil },
		Stop:  func(ctx context.Context) error { return shutdownTracing(ctx) },
	})

	if cfg.Log.Collect && producer != nil {
		app.Add(server.Component{
			Name: "log_collector",
			Start: func(context.Context) error {
				logger.AddCollector(&xlogger.CollectionConfig{
					Topic:     cfg.Kafka.LogsTopic,
					Service:   cfg.Tracing.ServiceName,
					Publisher: producer,
				})
				return nil
			},
			Stop: func(context.Context) error {
				logger.RemoveCollector()
				return nil
			},
		})
	}

	app.Add(server.Component{
		Name: "state",
		Start: func(ctx context.Context) error {
			if err := engine.RestoreRolling(ctx, store); err != nil {
				logger.Info("rolling state not restored", xlogger.Error(err))
			}
			notifier.Restore(ctx)
			return nil
		},
		Stop: func(ctx context.Context) error {
			notifier.Checkpoint(ctx)
			return engine.SaveRolling(ctx, store)
		},
	})

	if cfg.Engine.HotReload {
		var cancel context.CancelFunc
		app.Add(server.Component{
			Name: "config_watcher",
			Start: func(ctx context.Context) error {
				ctx, cancel = context.WithCancel(ctx)
				watcher.Start(ctx)
				return nil
			},
			Stop: func(context.Context) error {
				cancel()
				return nil
			},
		})
	}

	if pipeline != nil {
		app.Add(server.Component{
			Name: "delivery",
			Start: func(ctx context.Context) error {
				pipeline.Start(ctx)
				return nil
			},
			Stop: func(context.Context) error {
				pipeline.Stop()
				return nil
			},
		})
	}

	app.Add(server.Component{
		Name:  "stream",
		Start: func(context.Context) error { return nil },
		Stop: func(context.Context) error {
			hub.Close()
			return nil
		},
	})

	if fh != nil {
		var cancel context.CancelFunc
		app.Add(server.Component{
			Name: "finnhub_stream",
			Start: func(ctx context.Context) error {
				ctx, cancel = context.WithCancel(ctx)
				go fh.Run(ctx)
				return nil
			},
			Stop: func(context.Context) error {
				cancel()
				return nil
			},
		})
	}

	if consumer != nil {
		app.Add(server.Component{
			Name:  "kafka_consumer",
			Start: consumer.Start,
			Stop:  consumer.Stop,
		})
	}

	if q != nil {
		app.Add(server.Component{
			Name:  "statement_queue",
			Start: q.Start,
			Stop:  q.Stop,
		})
	}

	app.Add(server.Component{
		Name: "scheduler",
		Start: func(ctx context.Context) error {
			sched.Start(ctx)
			return nil
		},
		Stop: func(context.Context) error {
			sched.Stop()
			return nil
		},
	})

	return app
}
