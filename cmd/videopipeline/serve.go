package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/blackstreet-ai/animated-invention/internal/application/orchestrator"
	"github.com/blackstreet-ai/animated-invention/internal/application/workers"
	"github.com/blackstreet-ai/animated-invention/internal/config"
	"github.com/blackstreet-ai/animated-invention/internal/definition"
	"github.com/blackstreet-ai/animated-invention/internal/ports"
	"github.com/blackstreet-ai/animated-invention/pkg/adapters/events/memory"
	"github.com/blackstreet-ai/animated-invention/pkg/adapters/events/redis"
	promcollector "github.com/blackstreet-ai/animated-invention/pkg/adapters/metrics/prometheus"
	memstorage "github.com/blackstreet-ai/animated-invention/pkg/adapters/storage/memory"
	"github.com/blackstreet-ai/animated-invention/pkg/api/grpc"
	"github.com/blackstreet-ai/animated-invention/pkg/api/http"
	"github.com/blackstreet-ai/animated-invention/pkg/api/websocket"
)

// serve runs the API servers until ctx is cancelled or a server fails.
func serve(ctx context.Context, cfg *config.Config, def *definition.Definition, discover bool, logger *zap.Logger) (err error) {
	registry := newRegistry(cfg, logger)

	// Reject a broken definition before accepting traffic.
	_, executor, err := buildPipeline(registry, def, discover)
	if err != nil {
		return fmt.Errorf("invalid pipeline: %w", err)
	}

	eventBus, closeBus, err := newEventBus(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, closeBus()) }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metricsCollector := promcollector.NewCollector(reg)

	workerPool := workers.NewPool(
		cfg.Workers.PoolSize,
		cfg.Workers.QueueSize,
		metricsCollector,
		logger,
		cfg.Workers.HealthCheckInterval,
	)
	if err := workerPool.Start(); err != nil {
		return fmt.Errorf("failed to start worker pool: %w", err)
	}

	orchestratorMgr, err := orchestrator.NewManager(
		eventBus,
		memstorage.NewInMemoryStateStorage(),
		metricsCollector,
		orchestrator.NewValidator(),
		workerPool,
		logger,
		managerOptions(cfg, executor),
	)
	if err != nil {
		_ = workerPool.Shutdown(context.Background())
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}

	// Initialize API servers
	httpServer := http.NewServer(&http.Config{
		Port: cfg.HTTPPort,
		Runs: orchestratorMgr,
		Pipelines: func(req http.RunRequest) (orchestrator.Pipeline, error) {
			p, _, err := buildPipeline(registry, def, discover || req.DiscoverTopics)
			return p, err
		},
		Pool:     workerPool.Health(),
		Gatherer: reg,
		Logger:   logger,
	})

	wsHandler := websocket.NewHandler(eventBus, orchestratorMgr, logger)
	if err := wsHandler.Start(ctx); err != nil {
		_ = workerPool.Shutdown(context.Background())
		return fmt.Errorf("failed to subscribe WebSocket handler: %w", err)
	}
	httpServer.SetupWebSocket(wsHandler)

	grpcServer, err := grpc.NewServer(&grpc.Config{
		Port:   cfg.GRPCPort,
		Logger: logger,
	})
	if err != nil {
		_ = workerPool.Shutdown(context.Background())
		return fmt.Errorf("failed to create gRPC server: %w", err)
	}

	// Start servers
	serverErr := make(chan error, 2)
	go func() { serverErr <- httpServer.Start() }()
	go func() { serverErr <- grpcServer.Start() }()

	logger.Info("video pipeline service started",
		zap.Int("http_port", cfg.HTTPPort),
		zap.Int("grpc_port", cfg.GRPCPort),
		zap.String("events_backend", cfg.Events.Backend),
		zap.Int("worker_pool_size", cfg.Workers.PoolSize))

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err = <-serverErr:
		logger.Error("server failed", zap.Error(err))
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.ShutdownTimeout)
	defer cancel()

	err = multierr.Combine(
		err,
		httpServer.Shutdown(shutdownCtx),
		grpcServer.Shutdown(shutdownCtx),
		orchestratorMgr.Shutdown(shutdownCtx),
		workerPool.Shutdown(shutdownCtx),
	)

	logger.Info("video pipeline service shut down complete")
	return err
}

// newEventBus creates the configured event bus and a function releasing it.
func newEventBus(ctx context.Context, cfg *config.Config, logger *zap.Logger) (ports.EventBus, func() error, error) {
	if cfg.Events.Backend != config.EventsBackendRedis {
		bus := memory.NewInMemoryEventBus(logger)
		return bus, bus.Close, nil
	}

	redisClient := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		MaxRetries:   cfg.Redis.MaxRetries,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})

	// Test Redis connection
	if err := redisClient.Ping(ctx).Err(); err != nil {
		_ = redisClient.Close()
		return nil, nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	logger.Info("connected to Redis", zap.String("addr", cfg.Redis.Addr))

	bus, err := redis.NewStreamsEventBus(
		redisClient,
		cfg.Events.ConsumerGroup,
		cfg.Events.ConsumerName,
		logger,
		redis.Options{KeyPrefix: cfg.Events.StreamPrefix, MaxLen: cfg.Events.StreamMaxLen},
	)
	if err != nil {
		_ = redisClient.Close()
		return nil, nil, fmt.Errorf("failed to create event bus: %w", err)
	}

	return bus, func() error {
		return multierr.Append(bus.Close(), redisClient.Close())
	}, nil
}
