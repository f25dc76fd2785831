package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Event bus backends.
const (
	EventsBackendMemory = "memory"
	EventsBackendRedis  = "redis"
)

// Config holds all configuration for the video pipeline service
type Config struct {
	// Server configuration
	HTTPPort int    `env:"PIPELINE_HTTP_PORT" envDefault:"8080"`
	GRPCPort int    `env:"PIPELINE_GRPC_PORT" envDefault:"9090"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Orchestrator configuration
	Orchestrator OrchestratorConfig

	// Event bus configuration
	Events EventsConfig

	// Redis configuration
	Redis RedisConfig

	// Worker configuration
	Workers WorkerConfig

	// Timeouts
	Timeouts TimeoutConfig

	// Topic discovery
	Topics TopicConfig
}

// OrchestratorConfig holds run defaults
type OrchestratorConfig struct {
	MaxRetries  int    `env:"ORCH_MAX_RETRIES" envDefault:"1"`
	Executor    string `env:"ORCH_EXECUTOR" envDefault:"concurrent"`
	MaxParallel int    `env:"ORCH_MAX_PARALLEL" envDefault:"0"`
	// PipelineFile is the definition served by the API. Empty means the
	// built-in pipeline.
	PipelineFile string `env:"ORCH_PIPELINE_FILE"`
}

// EventsConfig selects and tunes the event bus
type EventsConfig struct {
	Backend       string `env:"EVENTS_BACKEND" envDefault:"memory"`
	StreamPrefix  string `env:"EVENTS_STREAM_PREFIX" envDefault:"pipeline:events:"`
	StreamMaxLen  int64  `env:"EVENTS_STREAM_MAXLEN" envDefault:"10000"`
	ConsumerGroup string `env:"EVENTS_CONSUMER_GROUP" envDefault:"videopipeline"`
	ConsumerName  string `env:"EVENTS_CONSUMER_NAME" envDefault:"videopipeline-1"`
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASS"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`

	// Connection pool settings
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	MaxRetries   int           `env:"REDIS_MAX_RETRIES" envDefault:"3"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
}

// WorkerConfig holds worker pool configuration
type WorkerConfig struct {
	PoolSize            int           `env:"WORKER_POOL_SIZE" envDefault:"5"`
	QueueSize           int           `env:"WORKER_QUEUE_SIZE" envDefault:"100"`
	HealthCheckInterval time.Duration `env:"WORKER_HEALTH_CHECK_INTERVAL" envDefault:"30s"`
}

// TimeoutConfig holds various timeout configurations
type TimeoutConfig struct {
	UnitTimeout     time.Duration `env:"TIMEOUT_UNIT" envDefault:"300s"` // per attempt
	RunTimeout      time.Duration `env:"TIMEOUT_RUN" envDefault:"3600s"` // whole run
	ShutdownTimeout time.Duration `env:"TIMEOUT_SHUTDOWN" envDefault:"30s"`
}

// TopicConfig tunes the topic generation agent
type TopicConfig struct {
	Count int `env:"TOPIC_COUNT" envDefault:"10"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server ports
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.GRPCPort < 1 || c.GRPCPort > 65535 {
		return fmt.Errorf("invalid gRPC port: %d", c.GRPCPort)
	}
	if c.HTTPPort == c.GRPCPort {
		return fmt.Errorf("HTTP and gRPC ports must differ: both %d", c.HTTPPort)
	}

	// Validate orchestrator config
	if c.Orchestrator.MaxRetries < 1 {
		return fmt.Errorf("max retries must be at least 1, got %d", c.Orchestrator.MaxRetries)
	}
	switch c.Orchestrator.Executor {
	case "concurrent", "sequential":
	default:
		return fmt.Errorf("invalid executor: %s (must be concurrent or sequential)", c.Orchestrator.Executor)
	}
	if c.Orchestrator.MaxParallel < 0 {
		return fmt.Errorf("max parallel must not be negative, got %d", c.Orchestrator.MaxParallel)
	}

	// Validate event bus config
	switch c.Events.Backend {
	case EventsBackendMemory:
	case EventsBackendRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis address is required for the redis event backend")
		}
		if c.Events.ConsumerGroup == "" || c.Events.ConsumerName == "" {
			return fmt.Errorf("redis event backend needs a consumer group and name")
		}
	default:
		return fmt.Errorf("invalid events backend: %s (must be memory or redis)", c.Events.Backend)
	}

	// Validate worker config
	if c.Workers.PoolSize < 1 {
		return fmt.Errorf("worker pool size must be at least 1")
	}
	if c.Workers.QueueSize < 0 {
		return fmt.Errorf("worker queue size must not be negative")
	}

	if c.Timeouts.UnitTimeout < 0 || c.Timeouts.RunTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}

	if c.Topics.Count < 1 {
		return fmt.Errorf("topic count must be at least 1")
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}

	return nil
}

// GetHTTPAddr returns the HTTP server address
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// GetGRPCAddr returns the gRPC server address
func (c *Config) GetGRPCAddr() string {
	return fmt.Sprintf(":%d", c.GRPCPort)
}
