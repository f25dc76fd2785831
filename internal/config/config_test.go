package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.GetHTTPAddr() != ":8080" || cfg.GetGRPCAddr() != ":9090" {
		t.Errorf("addrs = %s %s", cfg.GetHTTPAddr(), cfg.GetGRPCAddr())
	}
	if cfg.Orchestrator.MaxRetries != 1 || cfg.Orchestrator.Executor != "concurrent" {
		t.Errorf("orchestrator = %+v", cfg.Orchestrator)
	}
	if cfg.Events.Backend != EventsBackendMemory {
		t.Errorf("events backend = %s, want memory", cfg.Events.Backend)
	}
	if cfg.Timeouts.UnitTimeout != 5*time.Minute || cfg.Timeouts.RunTimeout != time.Hour {
		t.Errorf("timeouts = %+v", cfg.Timeouts)
	}
	if cfg.Workers.PoolSize != 5 || cfg.Workers.QueueSize != 100 {
		t.Errorf("workers = %+v", cfg.Workers)
	}
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("PIPELINE_HTTP_PORT", "8181")
	t.Setenv("ORCH_MAX_RETRIES", "3")
	t.Setenv("ORCH_EXECUTOR", "sequential")
	t.Setenv("EVENTS_BACKEND", "redis")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("TIMEOUT_UNIT", "45s")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HTTPPort != 8181 || cfg.Orchestrator.MaxRetries != 3 || cfg.Orchestrator.Executor != "sequential" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Events.Backend != EventsBackendRedis || cfg.Redis.Addr != "redis:6379" {
		t.Errorf("events = %+v redis = %+v", cfg.Events, cfg.Redis)
	}
	if cfg.Timeouts.UnitTimeout != 45*time.Second {
		t.Errorf("unit timeout = %v", cfg.Timeouts.UnitTimeout)
	}
}

func TestLoad_ParseError(t *testing.T) {
	t.Setenv("ORCH_MAX_RETRIES", "many")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "failed to parse config") {
		t.Errorf("Load() error = %v, want parse failure", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"http port", func(c *Config) { c.HTTPPort = 0 }, "invalid HTTP port"},
		{"grpc port", func(c *Config) { c.GRPCPort = 70000 }, "invalid gRPC port"},
		{"same ports", func(c *Config) { c.GRPCPort = c.HTTPPort }, "must differ"},
		{"retries", func(c *Config) { c.Orchestrator.MaxRetries = 0 }, "max retries"},
		{"executor", func(c *Config) { c.Orchestrator.Executor = "parallel" }, "invalid executor"},
		{"max parallel", func(c *Config) { c.Orchestrator.MaxParallel = -1 }, "max parallel"},
		{"backend", func(c *Config) { c.Events.Backend = "kafka" }, "invalid events backend"},
		{"redis addr", func(c *Config) {
			c.Events.Backend = EventsBackendRedis
			c.Redis.Addr = ""
		}, "redis address is required"},
		{"consumer group", func(c *Config) {
			c.Events.Backend = EventsBackendRedis
			c.Events.ConsumerGroup = ""
		}, "consumer group"},
		{"memory ignores redis", func(c *Config) { c.Redis.Addr = "" }, ""},
		{"pool size", func(c *Config) { c.Workers.PoolSize = 0 }, "worker pool size"},
		{"queue size", func(c *Config) { c.Workers.QueueSize = -1 }, "queue size"},
		{"timeouts", func(c *Config) { c.Timeouts.RunTimeout = -time.Second }, "timeouts"},
		{"topic count", func(c *Config) { c.Topics.Count = 0 }, "topic count"},
		{"log level", func(c *Config) { c.LogLevel = "trace" }, "invalid log level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load()
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			tt.mutate(cfg)

			err = cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}
