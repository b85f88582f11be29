package di

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"MarketSignal/internal/domain/repository"
	"MarketSignal/internal/handler/api"
	internalrepo "MarketSignal/internal/repository"
	"MarketSignal/internal/repository/artifacts"
	"MarketSignal/internal/service/ratelimit"
	"MarketSignal/internal/services/anomaly"
	"MarketSignal/internal/services/prediction"
	"MarketSignal/internal/services/sentiment"
	"MarketSignal/internal/usecase"
	"MarketSignal/pkg/cache"
	pkgch "MarketSignal/pkg/clickhouse"
	"MarketSignal/pkg/config"
	pkgkafka "MarketSignal/pkg/kafka"
	applogger "MarketSignal/pkg/logger"
	"MarketSignal/pkg/metrics"
	"MarketSignal/pkg/queue"
	"MarketSignal/pkg/server"
)

// ProvideLogger builds the root logger. Aggregated error logs go to Kafka
// when a producer is available and collection is enabled.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	if cfg.Logging.Collect.Enabled && producer != nil {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   cfg.Logging.Collect.Interval,
			CountThreshold: cfg.Logging.Collect.CountThreshold,
			Topic:          cfg.Logging.Collect.Topic,
			Publisher:      producer,
		})
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics(cfg *config.Config) repository.Metrics {
	if !cfg.Metrics.Enabled {
		return metrics.Nop{}
	}
	return metrics.New()
}

// ProvideArtifacts loads the trained models once; missing files leave the
// engines in fallback mode.
func ProvideArtifacts(cfg *config.Config, l *applogger.Logger) *artifacts.Set {
	return artifacts.Load(cfg.Artifacts.ModelDir, cfg.Artifacts.AnomalyDir, l)
}

func ProvidePredictor(set *artifacts.Set, cfg *config.Config, l *applogger.Logger) *prediction.Engine {
	return prediction.NewEngine(set,
		prediction.WithMinHistory(cfg.Engine.MinHistory),
		prediction.WithLogger(l.With(applogger.String("component", "prediction"))),
	)
}

func ProvideDetector(set *artifacts.Set, l *applogger.Logger) *anomaly.Engine {
	return anomaly.NewEngine(set, anomaly.WithLogger(l.With(applogger.String("component", "anomaly"))))
}

// ProvideClickHouseClient creates a ClickHouse client, or nil when disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithCompression(cfg.ClickHouse.Compress),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	// Initialize schema
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.InitSchema(ctx, pkgch.DailyBarsSchema(cfg.ClickHouse.Database, cfg.ClickHouse.Table)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideBarStore keeps bars in ClickHouse, or in memory when it is
// disabled.
func ProvideBarStore(ch *pkgch.Client, cfg *config.Config, l *applogger.Logger) repository.BarRepository {
	if ch == nil {
		l.Warn("clickhouse disabled, using in-memory bar store")
		return internalrepo.NewMemoryBarStore()
	}
	store := internalrepo.NewCHPriceBarStore(ch, cfg.ClickHouse.Database, cfg.ClickHouse.Table)
	store.SetLogger(l.With(applogger.String("component", "bar_store")))
	return store
}

// ProvideRedisCache connects to Redis, or returns nil when disabled.
func ProvideRedisCache(cfg *config.Config) (*cache.RedisCache, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Redis.Host, cfg.Redis.Port),
		cache.WithRedisAuth(cfg.Redis.Password, cfg.Redis.DB),
		cache.WithRedisPool(cfg.Redis.PoolSize, cfg.Redis.PoolTimeout),
		cache.WithRedisDialTimeout(cfg.Redis.DialTimeout),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return rc, nil
}

// ProvideCache layers memory over Redis when Redis is enabled.
func ProvideCache(rc *cache.RedisCache, cfg *config.Config) cache.Service {
	if rc == nil {
		return cache.NewMemoryCache(cache.WithMemoryMaxSize(cfg.Cache.MemoryMaxSize))
	}
	return cache.NewLayeredCache(rc, cache.WithLayeredMemory(cfg.Cache.MemoryMaxSize, cfg.Cache.MemoryTTL))
}

func ProvideSentimentService(cfg *config.Config, l *applogger.Logger) *sentiment.Service {
	return sentiment.NewService(sentiment.NewHTTPProvider(cfg.Sentiment, l), sentiment.NewAnalyzer(), l)
}

func ProvideSignalPipeline(
	bars repository.BarRepository,
	pred *prediction.Engine,
	det *anomaly.Engine,
	sent *sentiment.Service,
	c cache.Service,
	m repository.Metrics,
	cfg *config.Config,
	l *applogger.Logger,
) *usecase.SignalPipeline {
	return usecase.NewSignalPipeline(bars, pred, det, sent, c, m, usecase.PipelineConfig{
		HistoryDays:     cfg.Engine.HistoryDays,
		StatsWindowDays: cfg.Engine.StatsWindowDays,
		MarketIndex:     cfg.Engine.MarketIndex,
		Timeout:         cfg.Engine.PipelineTimeout,
		PredictionTTL:   cfg.Cache.PredictionTTL,
		StatsTTL:        cfg.Cache.StatsTTL,
		SentimentTTL:    cfg.Cache.SentimentTTL,
	}, l)
}

func ProvideHistoryUseCase(bars repository.BarRepository) *usecase.HistoryUseCase {
	return usecase.NewHistoryUseCase(bars)
}

// ProvideBarIngest builds the ingest use case and loads the seed file, if
// configured, before the server starts.
func ProvideBarIngest(bars repository.BarRepository, pipeline *usecase.SignalPipeline, cfg *config.Config, l *applogger.Logger) (*usecase.BarIngest, error) {
	ingest := usecase.NewBarIngest(bars, pipeline, l)
	if cfg.Bars.SeedFile == "" {
		return ingest, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	n, err := ingest.Seed(ctx, cfg.Bars.SeedFile)
	if err != nil {
		return nil, fmt.Errorf("seed bars: %w", err)
	}
	l.Info("bar store seeded", applogger.String("file", cfg.Bars.SeedFile), applogger.Int("bars", n))
	return ingest, nil
}

func ProvideLimiter() *ratelimit.Limiter {
	return ratelimit.New()
}

// ProvideHTTPHandler assembles the scoring API.
func ProvideHTTPHandler(
	cfg *config.Config,
	l *applogger.Logger,
	pipeline *usecase.SignalPipeline,
	history *usecase.HistoryUseCase,
	ingest *usecase.BarIngest,
	pred *prediction.Engine,
	det *anomaly.Engine,
	sent *sentiment.Service,
	set *artifacts.Set,
	ch *pkgch.Client,
	rc *cache.RedisCache,
	q *queue.RedisQueue,
	limiter *ratelimit.Limiter,
) *api.SignalsEchoHandler {
	var refresh queue.Enqueuer
	if q != nil {
		refresh = q
	}
	checks := map[string]api.HealthChecker{}
	if ch != nil {
		checks["clickhouse"] = ch
	}
	if rc != nil {
		checks["redis"] = rc
	}
	return api.NewSignalsEchoHandler(api.Deps{
		Logger:    l.With(applogger.String("component", "api")),
		Pipeline:  pipeline,
		History:   history,
		Ingest:    ingest,
		Predictor: pred,
		Detector:  det,
		Analyzer:  sent.Analyzer(),
		Artifacts: set,
		Limiter:   limiter,
		RateLimit: ratelimit.Config{
			Capacity:     cfg.Server.RateLimit.Capacity,
			RefillPerSec: cfg.Server.RateLimit.RefillPerSec,
		},
		Refresh: refresh,
		Checks:  checks,
	})
}

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideKafkaConsumer creates a Kafka consumer, or nil when Kafka is disabled.
func ProvideKafkaConsumer(cfg *config.Config, m repository.Metrics, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerStartOffset(cfg.Kafka.Consumer.StartOffset),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.NewHookChain(
		pkgkafka.TraceHook{},
		pkgkafka.HookFuncs{After: func(ctx context.Context, _ string, _ kafka.Message, _ []byte, _ error) {
			if start, ok := pkgkafka.StartTimeFromContext(ctx); ok {
				m.RecordLatency("consume_seconds", time.Since(start).Seconds())
			}
		}},
	))
	return consumer, nil
}

// ProvideSignalPublisher returns a nil interface when there is no producer.
func ProvideSignalPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.SignalPublisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaSignalPublisher(producer, cfg.Kafka.Topics.Signals, cfg.Kafka.Topics.Alerts)
}

// ProvideKafkaScoringHandler returns nil when there is no producer to publish
// signals on.
func ProvideKafkaScoringHandler(
	pub repository.SignalPublisher,
	pipeline *usecase.SignalPipeline,
	m repository.Metrics,
	cfg *config.Config,
	l *applogger.Logger,
) *usecase.KafkaScoringHandler {
	if pub == nil {
		return nil
	}
	return usecase.NewKafkaScoringHandler(cfg.Kafka.Topics.Requests, pipeline, pub, m, l)
}

func ProvideRefreshJob(
	pipeline *usecase.SignalPipeline,
	pub repository.SignalPublisher,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.RefreshJob {
	return usecase.NewRefreshJob(pipeline, pub, m, l)
}

// ProvideRefreshQueue returns nil unless the queue and Redis are enabled.
func ProvideRefreshQueue(rc *cache.RedisCache, job *usecase.RefreshJob, cfg *config.Config, l *applogger.Logger) *queue.RedisQueue {
	if !cfg.Queue.Enabled || rc == nil {
		return nil
	}
	q := queue.NewRedisQueue(rc.Client(), l,
		queue.WithWorkers(cfg.Queue.Workers),
		queue.WithRetry(cfg.Queue.RetryLimit, cfg.Queue.RetryDelay),
		queue.WithKeyPrefix(cfg.Queue.Prefix),
	)
	q.RegisterJob(job)
	return q
}

// ProvideApp creates the application and registers resources to close.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	h *api.SignalsEchoHandler,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaScoringHandler,
	q *queue.RedisQueue,
	limiter *ratelimit.Limiter,
	producer *pkgkafka.Producer,
	ch *pkgch.Client,
	c cache.Service,
) *server.App {
	var handler pkgkafka.MessageHandler
	if kh != nil {
		handler = kh
	}
	app := server.New(cfg, l, h, consumer, handler)
	app.AddRunner("ratelimit_janitor", ratelimit.NewJanitor(limiter, time.Minute, 10*time.Minute))
	if q != nil {
		app.AddRunner("refresh_queue", q)
		if w := usecase.NewWatchlist(q, cfg.Queue.Watchlist, cfg.Queue.WatchInterval, l); w != nil {
			app.AddRunner("watchlist", w)
		}
	}

	if ch != nil {
		app.OnClose("clickhouse", ch.Close)
	}
	// the layered cache owns the redis client
	app.OnClose("cache", c.Close)
	if producer != nil {
		// close the collector before the producer it publishes to
		app.OnClose("kafka_producer", producer.Close)
		app.OnClose("log_collector", func() error { l.RemoveCollector(); return nil })
	}
	return app
}
