package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/orizonpaybr/gateway-web-sub001/internal/audit"
	"github.com/orizonpaybr/gateway-web-sub001/internal/cache"
	"github.com/orizonpaybr/gateway-web-sub001/internal/config"
	"github.com/orizonpaybr/gateway-web-sub001/internal/deposit"
	"github.com/orizonpaybr/gateway-web-sub001/internal/events"
	"github.com/orizonpaybr/gateway-web-sub001/internal/handlers"
	"github.com/orizonpaybr/gateway-web-sub001/internal/notify"
	"github.com/orizonpaybr/gateway-web-sub001/internal/rate"
	"github.com/orizonpaybr/gateway-web-sub001/internal/session"
	"github.com/orizonpaybr/gateway-web-sub001/internal/store"
	"github.com/orizonpaybr/gateway-web-sub001/internal/upstream"
	"github.com/orizonpaybr/gateway-web-sub001/libs/health"
	"github.com/orizonpaybr/gateway-web-sub001/libs/httpmiddleware"
	"github.com/orizonpaybr/gateway-web-sub001/libs/kafka"
	"github.com/orizonpaybr/gateway-web-sub001/libs/logging"
	"github.com/orizonpaybr/gateway-web-sub001/libs/metrics"
	"github.com/orizonpaybr/gateway-web-sub001/libs/trace"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"log/slog"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg.App.LogLevel, cfg.App.ServiceName, cfg.App.Env)
	shutdownTracer, err := trace.InitTracer(cfg.App.ServiceName, cfg.App.Env)
	if err != nil {
		logger.Error("tracer init failed", "error", err)
	} else {
		defer func() {
			_ = shutdownTracer(context.Background())
		}()
	}

	if cfg.App.Env == "dev" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.Register(registry)

	ready := health.NewManager()
	ready.SetComponent("http", true)

	redisClient, err := connectRedis(cfg, logger)
	if err != nil {
		logger.Error("redis connection failed", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		ready.SetComponent("redis", true)
	}

	sessionStore, limiter := buildStorage(cfg, redisClient)
	if redisClient != nil {
		defer func() {
			_ = redisClient.Close()
		}()
	}

	recorder, pool := buildAudit(cfg, logger)
	if pool != nil {
		defer pool.Close()
		ready.SetComponent("postgres", true)
	}

	gateway := upstream.NewClient(cfg.Upstream.BaseURL, cfg.Upstream.Timeout)

	manager := session.NewManager(gateway, sessionStore, logger, session.Config{
		SessionTTL:      cfg.Session.TTL,
		PendingTTL:      cfg.Session.PendingTTL,
		RevalidateDelay: cfg.Session.RevalidateDelay,
	})

	dataCache := cache.New()
	notifier := notify.NewCenter()

	publisher, closeKafka := buildKafka(cfg, registry, dataCache, logger)
	defer closeKafka()
	if publisher != nil {
		ready.SetComponent("kafka", true)
	}

	sink := events.NewSink(dataCache, publisher, logger)
	depositMetrics := deposit.NewMetrics(registry)
	depositRegistry := deposit.NewRegistry(gateway, sink, notifier, logger, depositMetrics, deposit.RegistryConfig{
		PollInterval:   cfg.Deposit.PollInterval,
		PaidStatuses:   cfg.Deposit.PaidStatuses,
		PollingEnabled: cfg.Deposit.PollingEnabled,
		MaxWatch:       cfg.Deposit.MaxWatch,
	})

	manager.OnLogout(func(sessionID string) {
		depositRegistry.CancelAll(sessionID)
		dataCache.InvalidateSession(sessionID)
		notifier.Forget(sessionID)
	})

	routes := &handlers.Routes{
		Auth: &handlers.Auth{
			Manager:  manager,
			Limiter:  limiter,
			Notifier: notifier,
			Audit:    recorder,
			Logger:   logger,
		},
		Deposits: &handlers.Deposits{
			Registry: depositRegistry,
			Audit:    recorder,
			Logger:   logger,
		},
		Data: &handlers.Data{
			API:      gateway,
			Cache:    dataCache,
			Notifier: notifier,
			Logger:   logger,
			TTL:      cfg.CacheTTL,
		},
		Admin: &handlers.Admin{
			API:    gateway,
			Audit:  recorder,
			Logger: logger,
		},
	}

	router := gin.New()
	router.Use(httpmiddleware.RequestID())
	router.Use(httpmiddleware.Logger(logger))
	router.Use(httpmiddleware.Recovery(logger))
	router.Use(trace.Middleware(cfg.App.ServiceName))

	router.GET("/healthz", health.LivenessHandler)
	router.GET("/readyz", health.ReadinessHandler(ready))
	router.GET(cfg.App.MetricsPath, gin.WrapH(metrics.Handler(registry)))

	routes.RegisterRoutes(router)

	addr := fmt.Sprintf("%s:%d", cfg.App.HTTP.Host, cfg.App.HTTP.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.App.HTTP.ReadTimeout,
		WriteTimeout: cfg.App.HTTP.WriteTimeout,
		IdleTimeout:  cfg.App.HTTP.IdleTimeout,
	}

	go func() {
		logger.Info("gateway-web starting", "addr", addr, "gateway", cfg.Upstream.BaseURL)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
		}
	}()

	waitForShutdown(server, logger)
}

func connectRedis(cfg *config.Config, logger *slog.Logger) (*redis.Client, error) {
	if cfg.Redis.Addr == "" {
		if cfg.App.Env == "dev" || cfg.App.Env == "test" {
			logger.Warn("redis not configured, sessions are in-memory only")
			return nil, nil
		}
		return nil, fmt.Errorf("redis not configured")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		if cfg.App.Env == "dev" || cfg.App.Env == "test" {
			logger.Warn("redis unavailable, sessions are in-memory only", "error", err)
			return nil, nil
		}
		return nil, err
	}
	return client, nil
}

func buildStorage(cfg *config.Config, client *redis.Client) (store.Store, rate.Limiter) {
	if client == nil {
		return store.NewMemoryStore(), rate.NewMemory(cfg.RateLimit.LoginLimit, cfg.RateLimit.Window)
	}
	return store.NewRedisStore(client, cfg.Redis.Prefix),
		rate.NewRedisLimiter(client, cfg.RateLimit.LoginLimit, cfg.RateLimit.Window, "")
}

func buildAudit(cfg *config.Config, logger *slog.Logger) (audit.Recorder, *pgxpool.Pool) {
	if cfg.Postgres.Host == "" {
		if cfg.App.Env == "dev" || cfg.App.Env == "test" {
			logger.Warn("postgres not configured, audit log disabled")
			return audit.Noop{}, nil
		}
		logger.Error("postgres not configured")
		os.Exit(1)
	}

	connStr := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Postgres.User,
		cfg.Postgres.Password,
		cfg.Postgres.Host,
		cfg.Postgres.Port,
		cfg.Postgres.Name,
		cfg.Postgres.SSLMode,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, connStr)
	if err == nil {
		err = pool.Ping(ctx)
	}
	if err != nil {
		logger.Error("db connection failed", "error", err)
		os.Exit(1)
	}

	return audit.New(pool, logger), pool
}

// buildKafka wires the settlement event producer and the invalidation
// consumer. Both are optional: without brokers, settlements still
// invalidate the local cache, just not sibling instances.
func buildKafka(cfg *config.Config, registry *prometheus.Registry, dataCache *cache.Cache, logger *slog.Logger) (*events.Publisher, func()) {
	noop := func() {}
	if len(cfg.Kafka.Brokers) == 0 {
		logger.Warn("kafka not configured, settlement events disabled")
		return nil, noop
	}

	producer, err := kafka.NewSyncProducer(cfg.Kafka.Brokers, cfg.App.ServiceName, logger, kafka.NewProducerMetrics(registry))
	if err != nil {
		logger.Error("kafka producer init failed", "error", err)
		os.Exit(1)
	}

	var pub kafka.Publisher = producer
	if cfg.Kafka.DLQTopic != "" {
		pub = kafka.NewDLQPublisher(producer, producer, cfg.Kafka.DLQTopic, logger)
	}
	publisher := events.NewPublisher(pub, cfg.Kafka.SettledTopic, logger)

	consumer, err := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, logger)
	if err != nil {
		logger.Error("kafka consumer init failed", "error", err)
		os.Exit(1)
	}

	consumeCtx, cancelConsume := context.WithCancel(context.Background())
	go func() {
		handler := events.NewInvalidationHandler(dataCache, logger)
		if err := consumer.Consume(consumeCtx, []string{cfg.Kafka.SettledTopic}, handler); err != nil && consumeCtx.Err() == nil {
			logger.Error("settlement consumer stopped", "error", err)
		}
	}()

	cleanup := func() {
		cancelConsume()
		_ = consumer.Close()
		_ = producer.Close()
	}
	return publisher, cleanup
}

func waitForShutdown(server *http.Server, logger *slog.Logger) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutdown started")
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
		return
	}
	logger.Info("shutdown complete")
}
