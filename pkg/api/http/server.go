package http

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/blackstreet-ai/animated-invention/internal/application/orchestrator"
	"github.com/blackstreet-ai/animated-invention/internal/application/workers"
	"github.com/blackstreet-ai/animated-invention/internal/domain"
)

// Runs is the orchestrator surface served by the API. orchestrator.Manager
// implements it.
type Runs interface {
	Submit(ctx context.Context, p orchestrator.Pipeline, inputs map[string]any) (string, error)
	GetStatus(ctx context.Context, runID string) (*domain.Snapshot, error)
	ListRuns(ctx context.Context) ([]domain.Snapshot, error)
	CancelRun(ctx context.Context, runID string) error
}

// PipelineFactory builds a fresh pipeline for one submission.
type PipelineFactory func(req RunRequest) (orchestrator.Pipeline, error)

// PoolHealth reports worker pool health. workers.HealthMonitor implements it.
type PoolHealth interface {
	GetStatus() *workers.HealthStatus
}

// Server represents the HTTP API server
type Server struct {
	router    *gin.Engine
	server    *http.Server
	runs      Runs
	pipelines PipelineFactory
	pool      PoolHealth
	logger    *zap.Logger
}

// Config holds HTTP server configuration
type Config struct {
	Port      int
	Runs      Runs
	Pipelines PipelineFactory
	// Pool is optional; without it /health only reports the API itself.
	Pool PoolHealth
	// Gatherer backs /metrics. Nil serves the default registry.
	Gatherer prometheus.Gatherer
	// Mode is the gin mode. Empty means release.
	Mode   string
	Logger *zap.Logger
}

// NewServer creates a new HTTP server
func NewServer(cfg *Config) *Server {
	mode := cfg.Mode
	if mode == "" {
		mode = gin.ReleaseMode
	}
	gin.SetMode(mode)

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestID())
	router.Use(requestLogger(logger))
	router.Use(corsMiddleware())

	s := &Server{
		router:    router,
		runs:      cfg.Runs,
		pipelines: cfg.Pipelines,
		pool:      cfg.Pool,
		logger:    logger,
	}

	s.setupRoutes(cfg.Gatherer)

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
	}

	return s
}

// setupRoutes configures API routes
func (s *Server) setupRoutes(gatherer prometheus.Gatherer) {
	// Health check
	s.router.GET("/health", s.handleHealth)

	// Metrics
	metrics := promhttp.Handler()
	if gatherer != nil {
		metrics = promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
	}
	s.router.GET("/metrics", gin.WrapH(metrics))

	// API v1
	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/runs", s.handleSubmitRun)
		v1.GET("/runs", s.handleListRuns)
		v1.GET("/runs/:id", s.handleGetRun)
		v1.GET("/runs/:id/result", s.handleGetResult)
		v1.POST("/runs/:id/cancel", s.handleCancelRun)
	}
}

// SetupWebSocket mounts the run event stream.
func (s *Server) SetupWebSocket(handler interface{ HandleRunStream(*gin.Context) }) {
	s.router.GET("/api/v1/runs/:id/ws", handler.HandleRunStream)
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	s.logger.Info("HTTP server shut down complete")
	return nil
}
