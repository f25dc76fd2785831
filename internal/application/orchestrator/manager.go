package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/blackstreet-ai/animated-invention/internal/domain"
	"github.com/blackstreet-ai/animated-invention/internal/ports"
)

// Pipeline is the input of one run: the units, their dependency map and the
// global retry limit.
type Pipeline struct {
	Units []domain.Unit
	// Dependencies maps a unit name to the names of its prerequisites.
	Dependencies map[string][]string
	// MaxRetries is the default attempt limit for units without an override.
	// Zero falls back to the manager's configured default.
	MaxRetries int
}

// Options configures a Manager.
type Options struct {
	MaxRetries  int
	Executor    ExecutorKind
	MaxParallel int
	// UnitTimeout bounds each attempt of a unit. Zero disables it.
	UnitTimeout time.Duration
	// RunTimeout bounds a whole run. Zero disables it.
	RunTimeout time.Duration
}

// Submission statuses reported to metrics.
const (
	submissionAccepted = "accepted"
	submissionRejected = "rejected"
)

// Dispatcher runs submitted work in the background. workers.Pool satisfies it.
type Dispatcher interface {
	Dispatch(id string, fn func(ctx context.Context)) error
}

// Manager coordinates pipeline runs
type Manager struct {
	eventBus  ports.EventBus
	storage   ports.StateStorage
	metrics   ports.MetricsCollector
	validator *Validator
	logger    *zap.Logger
	notify    *notifier

	executor   LayerExecutor
	dispatcher Dispatcher
	opts       Options

	// Track submitted runs
	executions sync.Map // map[string]*executionContext
	active     atomic.Int64
}

// executionContext holds a submitted run that has not finished yet
type executionContext struct {
	runID      string
	state      *domain.RunState
	cancelFunc context.CancelFunc
	mu         sync.Mutex
	cancelled  bool
}

// execution is a laid-out run ready to execute
type execution struct {
	state  *domain.RunState
	layers [][]domain.Unit
}

// NewManager creates a new orchestrator manager. eventBus, storage, metrics
// and dispatcher may be nil.
func NewManager(
	eventBus ports.EventBus,
	storage ports.StateStorage,
	metrics ports.MetricsCollector,
	validator *Validator,
	dispatcher Dispatcher,
	logger *zap.Logger,
	opts Options,
) (*Manager, error) {
	if opts.MaxRetries < 1 {
		return nil, domain.Configf("", "max retries must be >= 1, got %d", opts.MaxRetries)
	}
	executor, err := NewExecutor(opts.Executor, opts.MaxParallel)
	if err != nil {
		return nil, domain.Configf("", "%v", err)
	}
	if validator == nil {
		validator = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Manager{
		eventBus:   eventBus,
		storage:    storage,
		metrics:    metrics,
		validator:  validator,
		logger:     logger,
		notify:     newNotifier(eventBus, metrics, logger),
		executor:   executor,
		dispatcher: dispatcher,
		opts:       opts,
	}, nil
}

// Run lays out and executes a pipeline, returning the final state.
//
// Only configuration and cycle problems are returned as errors, before any
// unit runs. Unit failures end the run in the aborted phase and are reported
// through the state.
func (m *Manager) Run(ctx context.Context, p Pipeline, inputs map[string]any) (*domain.RunState, error) {
	exec, err := m.prepare(p, inputs)
	if err != nil {
		return nil, err
	}
	m.saveSnapshot(ctx, exec.state)
	m.execute(ctx, exec)
	return exec.state, nil
}

// Submit validates a pipeline and schedules its run in the background. The
// returned run ID can be used with GetStatus and CancelRun.
func (m *Manager) Submit(ctx context.Context, p Pipeline, inputs map[string]any) (string, error) {
	exec, err := m.prepare(p, inputs)
	if err != nil {
		m.notify.runSubmitted(submissionRejected)
		return "", err
	}
	runID := exec.state.RunID

	runCtx, cancel := context.WithCancel(context.Background())
	m.executions.Store(runID, &executionContext{
		runID:      runID,
		state:      exec.state,
		cancelFunc: cancel,
	})
	m.saveSnapshot(ctx, exec.state)

	job := func(workerCtx context.Context) {
		defer m.executions.Delete(runID)
		defer cancel()
		stop := context.AfterFunc(workerCtx, cancel)
		defer stop()

		m.execute(runCtx, exec)
	}

	if m.dispatcher == nil {
		go job(context.Background())
	} else if err := m.dispatcher.Dispatch(runID, job); err != nil {
		m.executions.Delete(runID)
		cancel()
		if abortErr := exec.state.Abort(fmt.Sprintf("not scheduled: %v", err)); abortErr == nil {
			m.saveSnapshot(ctx, exec.state)
		}
		m.notify.runSubmitted(submissionRejected)
		return "", fmt.Errorf("failed to schedule run: %w", err)
	}
	m.notify.runSubmitted(submissionAccepted)

	m.logger.Info("run submitted",
		zap.String("run_id", runID),
		zap.Int("units", len(p.Units)))

	return runID, nil
}

// GetStatus returns a snapshot of a run. Runs still in flight are read
// directly from their live state.
func (m *Manager) GetStatus(ctx context.Context, runID string) (*domain.Snapshot, error) {
	if val, ok := m.executions.Load(runID); ok {
		snap := val.(*executionContext).state.Snapshot()
		return &snap, nil
	}
	if m.storage == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrRunNotFound, runID)
	}

	snap, err := m.storage.GetState(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get state: %w", err)
	}
	return snap, nil
}

// ListRuns returns the snapshots of every stored run.
func (m *Manager) ListRuns(ctx context.Context) ([]domain.Snapshot, error) {
	if m.storage == nil {
		return nil, nil
	}
	return m.storage.ListStates(ctx)
}

// CancelRun stops a submitted run from launching further layers. Units
// already running finish their current attempt.
func (m *Manager) CancelRun(ctx context.Context, runID string) error {
	val, ok := m.executions.Load(runID)
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrRunNotFound, runID)
	}

	execCtx := val.(*executionContext)
	execCtx.mu.Lock()
	defer execCtx.mu.Unlock()

	if phase := execCtx.state.Phase(); phase.IsTerminal() {
		return fmt.Errorf("run already in terminal phase: %s", phase)
	}
	if execCtx.cancelled {
		return fmt.Errorf("run already cancelled: %s", runID)
	}

	execCtx.cancelFunc()
	execCtx.cancelled = true

	m.logger.Info("run cancelled",
		zap.String("run_id", runID))

	return nil
}

// prepare covers the building and layered phases: nothing executes and no
// side effects happen when it fails.
func (m *Manager) prepare(p Pipeline, inputs map[string]any) (*execution, error) {
	if err := m.validator.Validate(p); err != nil {
		m.logger.Error("pipeline validation failed", zap.Error(err))
		return nil, err
	}

	names := make([]string, len(p.Units))
	byName := make(map[string]domain.Unit, len(p.Units))
	for i, u := range p.Units {
		names[i] = u.Name()
		byName[u.Name()] = u
	}

	layerNames, err := BuildLayers(names, p.Dependencies)
	if err != nil {
		m.logger.Error("failed to build dependency layers", zap.Error(err))
		return nil, err
	}

	state := domain.NewRunState(uuid.New().String(), inputs)
	if err := state.Register(names...); err != nil {
		return nil, err
	}

	defaultRetries := m.opts.MaxRetries
	if p.MaxRetries > 0 {
		defaultRetries = p.MaxRetries
	}

	layers := make([][]domain.Unit, len(layerNames))
	for i, layer := range layerNames {
		for _, name := range layer {
			u := byName[name]
			limit := defaultRetries
			if u.MaxRetries() > 0 {
				limit = u.MaxRetries()
			}
			wrapped := Wrap(u, limit,
				withNotifier(m.notify),
				WithAttemptTimeout(m.opts.UnitTimeout))
			layers[i] = append(layers[i], wrapped)
		}
	}

	state.SetLayers(layerNames)
	if err := state.SetPhase(domain.PhaseLayered); err != nil {
		return nil, err
	}

	m.logger.Debug("run laid out",
		zap.String("run_id", state.RunID),
		zap.Int("units", len(names)),
		zap.Int("layers", len(layers)))

	return &execution{state: state, layers: layers}, nil
}

// execute drives the running phase: layers strictly in order, stopping
// after the first layer with a terminal failure.
func (m *Manager) execute(ctx context.Context, exec *execution) {
	state := exec.state
	logger := m.logger.With(zap.String("run_id", state.RunID))

	if m.opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.opts.RunTimeout)
		defer cancel()
	}

	m.notify.activeRuns(int(m.active.Add(1)))
	defer func() { m.notify.activeRuns(int(m.active.Add(-1))) }()

	startedAt := time.Now()
	if err := state.SetPhase(domain.PhaseRunning); err != nil {
		logger.Error("failed to start run", zap.Error(err))
		return
	}
	m.notify.publish(ctx, state.RunID, domain.EventRunStarted, "", map[string]any{
		"layers": len(exec.layers),
		"inputs": state.Snapshot().Inputs,
	})
	logger.Info("run started", zap.Int("layers", len(exec.layers)))
	m.saveSnapshot(ctx, state)

	var abortReason string
	for i, layer := range exec.layers {
		if err := ctx.Err(); err != nil {
			abortReason = fmt.Sprintf("stopped before layer %d: %v", i, err)
			break
		}

		state.SetCurrentLayer(i)
		m.notify.publish(ctx, state.RunID, domain.EventLayerStarted, "", map[string]any{
			"layer": i,
			"units": unitNames(layer),
		})
		logger.Debug("layer started", zap.Int("layer", i), zap.Strings("units", unitNames(layer)))

		err := m.executor.RunLayer(ctx, i, layer, state)
		m.notify.layerExecuted(len(layer))

		var failed []string
		var layerErr *domain.LayerError
		if errors.As(err, &layerErr) {
			failed = layerErr.Failed
		}
		m.notify.publish(ctx, state.RunID, domain.EventLayerCompleted, "", map[string]any{
			"layer":  i,
			"failed": failed,
		})
		m.saveSnapshot(ctx, state)

		if err != nil {
			abortReason = err.Error()
			break
		}
	}

	duration := time.Since(startedAt)
	if abortReason != "" {
		if err := state.Abort(abortReason); err != nil {
			logger.Error("failed to abort run", zap.Error(err))
		}
		m.notify.publish(ctx, state.RunID, domain.EventRunAborted, "", map[string]any{
			"reason": abortReason,
		})
		logger.Warn("run aborted",
			zap.String("reason", abortReason),
			zap.Duration("duration", duration))
	} else {
		if err := state.SetPhase(domain.PhaseDone); err != nil {
			logger.Error("failed to complete run", zap.Error(err))
		}
		m.notify.publish(ctx, state.RunID, domain.EventRunCompleted, "", map[string]any{
			"outputs": len(state.Outputs()),
		})
		logger.Info("run completed", zap.Duration("duration", duration))
	}

	m.notify.runCompleted(state.Phase(), duration)
	m.saveSnapshot(ctx, state)
}

// saveSnapshot stores the current state; storage failures are logged only.
func (m *Manager) saveSnapshot(ctx context.Context, state *domain.RunState) {
	if m.storage == nil {
		return
	}
	if err := m.storage.SaveState(context.WithoutCancel(ctx), state.Snapshot()); err != nil {
		m.logger.Error("failed to save state",
			zap.String("run_id", state.RunID),
			zap.Error(err))
	}
}

// Shutdown gracefully shuts down the manager
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("shutting down orchestrator manager")

	// Cancel all active runs
	m.executions.Range(func(key, value any) bool {
		execCtx := value.(*executionContext)
		execCtx.cancelFunc()
		return true
	})

	m.logger.Info("orchestrator manager shut down complete")
	return nil
}

func unitNames(units []domain.Unit) []string {
	out := make([]string, len(units))
	for i, u := range units {
		out[i] = u.Name()
	}
	return out
}
