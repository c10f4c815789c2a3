package main

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/fortuneofweb3/blabz/api_curation/internal/curation"
	"github.com/fortuneofweb3/blabz/api_curation/internal/scoring"
	"github.com/fortuneofweb3/blabz/api_curation/internal/store"
	"github.com/fortuneofweb3/blabz/pkg/cache"
	"github.com/fortuneofweb3/blabz/pkg/clients"
	"github.com/fortuneofweb3/blabz/pkg/clients/hfinference"
	"github.com/fortuneofweb3/blabz/pkg/clients/xapi"
	"github.com/fortuneofweb3/blabz/pkg/config"
	"github.com/fortuneofweb3/blabz/pkg/database"
	"github.com/fortuneofweb3/blabz/pkg/kafka"
	"github.com/fortuneofweb3/blabz/pkg/logging"
	"github.com/fortuneofweb3/blabz/pkg/monitoring"
	"github.com/fortuneofweb3/blabz/pkg/redis"
	"github.com/fortuneofweb3/blabz/pkg/version"
)

const serviceName = "blabz"

// app holds the process-wide dependencies shared by every subcommand.
type app struct {
	logger     logging.Logger
	mongo      *database.Mongo
	store      *store.Store
	redis      goredis.UniversalClient
	publisher  kafka.Publisher
	limiter    *clients.RateLimitedClient
	classifier *hfinference.Client
	metrics    *monitoring.MetricsCollector
	service    *curation.Service

	markerRetention time.Duration
}

func newApp(ctx context.Context, logger logging.Logger) (*app, error) {
	a := &app{
		logger:          logger,
		metrics:         monitoring.NewMetricsCollector(serviceName, version.Version, version.GitCommit),
		markerRetention: config.GetEnvDuration("MARKER_RETENTION", 30*24*time.Hour),
	}
	curationMetrics := curation.NewMetrics(a.metrics)

	dbCfg := database.DefaultConfig()
	dbCfg.URI = config.GetEnv("MONGODB_URI", dbCfg.URI)
	dbCfg.Database = config.GetEnv("MONGODB_DATABASE", dbCfg.Database)
	mongo, err := database.Connect(ctx, dbCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	a.mongo = mongo
	a.store = store.New(mongo.DB)
	if err := a.store.EnsureIndexes(ctx, a.markerRetention); err != nil {
		a.Close()
		return nil, fmt.Errorf("ensure indexes: %w", err)
	}

	hooks := cacheHooks(a.metrics)
	var responseCache cache.Store
	if redisURL := config.GetEnv("REDIS_URL", ""); redisURL != "" {
		client, err := redis.Connect(ctx, redisURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		a.redis = client
		responseCache = cache.NewRedisStore(client, hooks)
		logger.Info("Using Redis response cache")
	} else {
		mem := cache.NewMemory(cache.Options{MaxEntries: config.GetEnvInt("CACHE_MAX_ENTRIES", 10000)}, hooks)
		a.metrics.NewGaugeFunc("cache_entries", "Entries held by the in-process response cache", func() float64 {
			return float64(mem.Len())
		})
		responseCache = mem
		logger.Info("REDIS_URL not set, using in-memory response cache")
	}

	a.publisher = kafka.NoopPublisher{}
	if brokers := config.GetEnvList("KAFKA_BROKERS"); len(brokers) > 0 {
		producer, err := kafka.NewProducer(brokers, config.GetEnv("KAFKA_TOPIC", "blabz.posts.curated"), config.GetEnv("KAFKA_CLIENT_ID", serviceName), logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("create kafka producer: %w", err)
		}
		a.publisher = producer
	}

	retry := clients.DefaultRetryConfig()
	a.limiter = clients.NewRateLimitedClient(clients.RateLimitedConfig{
		Name: "x-api",
		Retry: clients.RetryConfig{
			MaxRetries: config.GetEnvInt("UPSTREAM_MAX_RETRIES", retry.MaxRetries),
			BaseDelay:  config.GetEnvDuration("UPSTREAM_RETRY_BASE_DELAY", retry.BaseDelay),
			MaxDelay:   config.GetEnvDuration("UPSTREAM_RETRY_MAX_DELAY", retry.MaxDelay),
		},
		MaxRateLimitWait:  config.GetEnvDuration("UPSTREAM_MAX_RATE_LIMIT_WAIT", 15*time.Minute),
		DefaultRetryAfter: config.GetEnvDuration("UPSTREAM_DEFAULT_RETRY_AFTER", time.Minute),
		Logger:            logger,
		OnAttempt:         curationMetrics.IncUpstream,
	})
	upstream := xapi.NewClient(xapi.Config{
		BaseURL:     config.GetEnv("X_API_BASE_URL", ""),
		BearerToken: config.GetEnv("X_BEARER_TOKEN", ""),
	}, a.limiter)

	cfg := curation.LoadConfig()
	var classifier scoring.Classifier
	if token := config.GetEnv("HF_API_TOKEN", ""); token != "" {
		transitions := a.metrics.NewCounter("circuit_breaker_transitions_total", "Classifier circuit breaker transitions", []string{"breaker", "to"})
		a.classifier = hfinference.NewClient(hfinference.Config{
			BaseURL:        config.GetEnv("HF_BASE_URL", ""),
			Token:          token,
			SentimentModel: config.GetEnv("HF_SENTIMENT_MODEL", ""),
			TopicModel:     config.GetEnv("HF_TOPIC_MODEL", ""),
			Logger:         logger,
			OnBreakerStateChange: func(name string, _, to clients.CircuitBreakerState) {
				transitions.WithLabelValues(name, to.String()).Inc()
			},
		})
		classifier = a.classifier
	}
	scorer, err := scoring.New(cfg.Scoring, classifier, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.service, err = curation.NewService(cfg, curation.Deps{
		Store:     a.store,
		Upstream:  upstream,
		Cache:     responseCache,
		Scorer:    scorer,
		Publisher: a.publisher,
		Logger:    logger,
		Metrics:   curationMetrics,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	logger.WithFields(logging.Fields{
		"scoring":  scorer.Name(),
		"redis":    a.redis != nil,
		"kafka":    len(config.GetEnvList("KAFKA_BROKERS")) > 0,
		"database": dbCfg.Database,
	}).Info("Curation service ready")
	return a, nil
}

// healthChecker registers a check per dependency. Only the store is critical.
func (a *app) healthChecker() *monitoring.HealthChecker {
	hc := monitoring.NewHealthChecker(serviceName, version.Version)
	hc.AddCheck("mongodb", monitoring.PingHealthCheck("mongodb", a.mongo, true))
	if a.redis != nil {
		hc.AddCheck("redis", monitoring.PingHealthCheck("redis", monitoring.PingerFunc(func(ctx context.Context) error {
			return a.redis.Ping(ctx).Err()
		}), false))
	}
	if _, noop := a.publisher.(kafka.NoopPublisher); !noop {
		hc.AddCheck("kafka", monitoring.PingHealthCheck("kafka", monitoring.PingerFunc(a.publisher.HealthCheck), false))
	}
	hc.AddCheck("x-api", monitoring.UpstreamRateLimitCheck("x-api", a.limiter.BlockedFor))
	if a.classifier != nil {
		hc.AddCheck("hf-inference", monitoring.PingHealthCheck("hf-inference", monitoring.PingerFunc(a.classifier.HealthCheck), false))
	}
	hc.AddCheck("config", monitoring.ConfigurationHealthCheck(map[string]string{
		"X_BEARER_TOKEN": config.GetEnv("X_BEARER_TOKEN", ""),
		"MONGODB_URI":    config.GetEnv("MONGODB_URI", ""),
	}))
	return hc
}

func (a *app) Close() {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.WithError(err).Warn("Failed to close kafka producer")
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.WithError(err).Warn("Failed to close redis client")
		}
	}
	if a.mongo != nil {
		if err := a.mongo.Close(); err != nil {
			a.logger.WithError(err).Warn("Failed to disconnect mongodb")
		}
	}
}

func cacheHooks(mc *monitoring.MetricsCollector) cache.MetricsHooks {
	errCount := mc.NewCounter("cache_errors_total", "Response cache backend errors", []string{"op"})
	return cache.MetricsHooks{
		OnError: func(labels map[string]string) {
			errCount.WithLabelValues(labels["op"]).Inc()
		},
	}
}
