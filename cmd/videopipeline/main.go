package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/blackstreet-ai/animated-invention/internal/agents"
	"github.com/blackstreet-ai/animated-invention/internal/application/orchestrator"
	"github.com/blackstreet-ai/animated-invention/internal/config"
	"github.com/blackstreet-ai/animated-invention/internal/definition"
	"github.com/blackstreet-ai/animated-invention/internal/domain"
	"github.com/blackstreet-ai/animated-invention/pkg/adapters/events/memory"
	promcollector "github.com/blackstreet-ai/animated-invention/pkg/adapters/metrics/prometheus"
	memstorage "github.com/blackstreet-ai/animated-invention/pkg/adapters/storage/memory"
)

var (
	// Version is set by build flags
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes the program and returns its exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, exit, err := parseArgs(args, stderr)
	if exit {
		return exitOK
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitCode(err)
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
		return exitUsage
	}

	path := opts.ConfigPath
	if opts.Serve && cfg.Orchestrator.PipelineFile != "" {
		path = cfg.Orchestrator.PipelineFile
	}
	def, defErr := loadDefinition(path)
	var missing *missingDefinitionError
	if defErr != nil && !errors.As(defErr, &missing) {
		fmt.Fprintf(stderr, "Failed to load pipeline definition: %v\n", defErr)
		return exitUsage
	}

	level := cfg.LogLevel
	if def != nil && def.Logging.Level != "" {
		level = def.Logging.Level
	}
	logger := initLogger(level, stderr)
	defer func() { _ = logger.Sync() }()

	if missing != nil {
		logger.Warn("pipeline definition not found, using the built-in pipeline",
			zap.String("path", missing.path))
	}

	logger.Info("starting video pipeline",
		zap.String("version", Version),
		zap.String("build_time", BuildTime))

	if opts.Serve {
		if err := serve(ctx, cfg, def, opts.DiscoverTopics, logger); err != nil {
			logger.Error("service stopped with error", zap.Error(err))
			return exitAborted
		}
		return exitOK
	}

	return runOnce(ctx, cfg, def, opts, stdout, logger)
}

// runOnce executes a single run and prints its snapshot.
func runOnce(ctx context.Context, cfg *config.Config, def *definition.Definition, opts *options, stdout io.Writer, logger *zap.Logger) int {
	registry := newRegistry(cfg, logger)
	pipeline, executor, err := buildPipeline(registry, def, opts.DiscoverTopics)
	if err != nil {
		logger.Error("invalid pipeline", zap.Error(err))
		return exitUsage
	}

	eventBus := memory.NewInMemoryEventBus(logger)
	defer func() { _ = eventBus.Close() }()
	for _, topic := range []string{domain.TopicRunEvents, domain.TopicUnitEvents} {
		_ = eventBus.Subscribe(ctx, topic, logEvent(logger))
	}

	manager, err := orchestrator.NewManager(
		eventBus,
		memstorage.NewInMemoryStateStorage(),
		promcollector.NewCollector(prometheus.NewRegistry()),
		orchestrator.NewValidator(),
		nil,
		logger,
		managerOptions(cfg, executor),
	)
	if err != nil {
		logger.Error("invalid orchestrator configuration", zap.Error(err))
		return exitUsage
	}

	state, err := manager.Run(ctx, pipeline, opts.inputs())
	if err != nil {
		logger.Error("pipeline rejected", zap.Error(err))
		return exitUsage
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(state.Snapshot()); err != nil {
		logger.Error("failed to write result", zap.Error(err))
		return exitAborted
	}

	if state.Phase() != domain.PhaseDone {
		return exitAborted
	}
	return exitOK
}

// logEvent logs every run event at debug level.
func logEvent(logger *zap.Logger) func(context.Context, domain.Event) error {
	return func(_ context.Context, event domain.Event) error {
		logger.Debug("run event",
			zap.String("type", string(event.Type)),
			zap.String("run_id", event.RunID),
			zap.String("unit", event.Unit))
		return nil
	}
}

type missingDefinitionError struct{ path string }

func (e *missingDefinitionError) Error() string {
	return fmt.Sprintf("pipeline definition %s not found", e.path)
}

// loadDefinition reads the definition at path. A missing file is reported
// with *missingDefinitionError so the caller can fall back to the built-in
// pipeline.
func loadDefinition(path string) (*definition.Definition, error) {
	if path == "" {
		return nil, &missingDefinitionError{path: path}
	}
	def, err := definition.LoadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, &missingDefinitionError{path: path}
	}
	if err != nil {
		return nil, err
	}
	return &def, nil
}

func newRegistry(cfg *config.Config, logger *zap.Logger) *agents.Registry {
	return agents.NewRegistry(agents.Config{
		Logger:     logger,
		TopicCount: cfg.Topics.Count,
	})
}

// buildPipeline builds a fresh pipeline from def, or the built-in one when
// def is nil. The returned executor kind is the definition's override, if any.
func buildPipeline(registry *agents.Registry, def *definition.Definition, discover bool) (orchestrator.Pipeline, orchestrator.ExecutorKind, error) {
	if def == nil {
		p, err := registry.DefaultPipeline(discover, 0)
		return p, "", err
	}
	d := *def
	if discover {
		d = d.WithTopicDiscovery()
	}
	p, err := d.Build(registry)
	return p, d.Executor, err
}

func managerOptions(cfg *config.Config, executor orchestrator.ExecutorKind) orchestrator.Options {
	if executor == "" {
		executor = orchestrator.ExecutorKind(cfg.Orchestrator.Executor)
	}
	return orchestrator.Options{
		MaxRetries:  cfg.Orchestrator.MaxRetries,
		Executor:    executor,
		MaxParallel: cfg.Orchestrator.MaxParallel,
		UnitTimeout: cfg.Timeouts.UnitTimeout,
		RunTimeout:  cfg.Timeouts.RunTimeout,
	}
}

func exitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return exitAborted
}

// initLogger builds a JSON logger writing to w at the given level
func initLogger(level string, w io.Writer) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.Lock(zapcore.AddSync(w)),
		zap.NewAtomicLevelAt(zapLevel),
	)
	return zap.New(core, zap.AddCaller())
}
