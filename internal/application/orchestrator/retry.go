package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/blackstreet-ai/animated-invention/internal/domain"
	"github.com/blackstreet-ai/animated-invention/internal/ports"
)

// Attempt outcomes reported to metrics.
const (
	outcomeSucceeded = "succeeded"
	outcomeFailed    = "failed"
)

// RetryOption configures a RetryingUnit.
type RetryOption func(*RetryingUnit)

// WithAttemptTimeout bounds every attempt with a deadline on its context.
// The unit has to honour ctx for the deadline to take effect.
func WithAttemptTimeout(d time.Duration) RetryOption {
	return func(r *RetryingUnit) {
		r.timeout = d
	}
}

// WithRetryLogger sets the logger used for attempt outcomes.
func WithRetryLogger(logger *zap.Logger) RetryOption {
	return func(r *RetryingUnit) {
		r.notify.logger = logger
	}
}

// WithRetryEvents publishes attempt events on eventBus.
func WithRetryEvents(eventBus ports.EventBus) RetryOption {
	return func(r *RetryingUnit) {
		r.notify.eventBus = eventBus
	}
}

// WithRetryMetrics records attempt metrics on metrics.
func WithRetryMetrics(metrics ports.MetricsCollector) RetryOption {
	return func(r *RetryingUnit) {
		r.notify.metrics = metrics
	}
}

func withNotifier(n *notifier) RetryOption {
	return func(r *RetryingUnit) {
		r.notify = n
	}
}

// RetryingUnit decorates a unit so that a failed attempt is re-invoked
// immediately until it succeeds or maxRetries attempts have been made.
//
// Every failed attempt is appended to the state's error log; the entry of
// the last allowed attempt is marked terminal and the unit ends failed.
type RetryingUnit struct {
	unit       domain.Unit
	maxRetries int
	timeout    time.Duration
	notify     *notifier
}

// Wrap decorates unit with a retry limit. Limits below 1 are treated as 1,
// a single attempt with no retry.
func Wrap(unit domain.Unit, maxRetries int, opts ...RetryOption) *RetryingUnit {
	if maxRetries < 1 {
		maxRetries = 1
	}
	r := &RetryingUnit{
		unit:       unit,
		maxRetries: maxRetries,
		notify:     newNotifier(nil, nil, nil),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.notify.logger == nil {
		r.notify.logger = zap.NewNop()
	}
	return r
}

// Name returns the wrapped unit's name.
func (r *RetryingUnit) Name() string { return r.unit.Name() }

// MaxRetries returns the effective attempt limit.
func (r *RetryingUnit) MaxRetries() int { return r.maxRetries }

// Unwrap returns the decorated unit.
func (r *RetryingUnit) Unwrap() domain.Unit { return r.unit }

// Execute runs the unit under the retry policy. The unit must be pending in
// state; it ends succeeded with its output stored, or failed with a
// *domain.UnitExecutionError returned.
func (r *RetryingUnit) Execute(ctx context.Context, state *domain.RunState) (any, error) {
	name := r.unit.Name()
	logger := r.notify.logger.With(
		zap.String("run_id", state.RunID),
		zap.String("unit", name))

	if err := state.Transition(name, domain.UnitPending, domain.UnitRunning); err != nil {
		return nil, err
	}
	r.notify.publish(ctx, state.RunID, domain.EventUnitStarted, name, map[string]any{
		"max_retries": r.maxRetries,
	})

	var lastErr error
	attempt := 0
	for attempt < r.maxRetries {
		attempt++
		start := time.Now()
		out, err := r.attempt(ctx, state)
		duration := time.Since(start)

		if err == nil {
			if storeErr := state.SetOutput(name, out); storeErr != nil {
				lastErr = storeErr
				break
			}
			if err := state.Transition(name, domain.UnitRunning, domain.UnitSucceeded); err != nil {
				return nil, err
			}
			r.notify.unitAttempt(name, outcomeSucceeded, duration)
			r.notify.publish(ctx, state.RunID, domain.EventUnitSucceeded, name, map[string]any{
				"attempt": attempt,
			})
			logger.Info("unit succeeded",
				zap.Int("attempt", attempt),
				zap.Duration("duration", duration))
			return out, nil
		}

		lastErr = err
		r.notify.unitAttempt(name, outcomeFailed, duration)

		// A cancelled run gets no further attempts.
		terminal := attempt == r.maxRetries || ctx.Err() != nil
		if terminal {
			break
		}
		state.AppendError(domain.ErrorEntry{
			Unit:    name,
			Attempt: attempt,
			Error:   err.Error(),
		})
		r.notify.publish(ctx, state.RunID, domain.EventUnitAttemptFailed, name, map[string]any{
			"attempt": attempt,
			"error":   err.Error(),
		})
		logger.Warn("unit attempt failed, retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", r.maxRetries),
			zap.Error(err))
	}

	return nil, r.fail(ctx, state, attempt, lastErr, logger)
}

// fail records the terminal attempt and marks the unit failed.
func (r *RetryingUnit) fail(ctx context.Context, state *domain.RunState, attempt int, cause error, logger *zap.Logger) error {
	name := r.unit.Name()
	state.AppendError(domain.ErrorEntry{
		Unit:     name,
		Attempt:  attempt,
		Error:    cause.Error(),
		Terminal: true,
	})
	if err := state.Transition(name, domain.UnitRunning, domain.UnitFailed); err != nil {
		return err
	}

	r.notify.publish(ctx, state.RunID, domain.EventUnitAttemptFailed, name, map[string]any{
		"attempt":  attempt,
		"error":    cause.Error(),
		"terminal": true,
	})
	r.notify.publish(ctx, state.RunID, domain.EventUnitFailed, name, map[string]any{
		"attempts": attempt,
		"error":    cause.Error(),
	})
	logger.Error("unit failed",
		zap.Int("attempts", attempt),
		zap.Error(cause))

	return &domain.UnitExecutionError{
		Unit:      name,
		Attempt:   attempt,
		Exhausted: true,
		Err:       cause,
	}
}

// attempt runs the unit once, turning a panic into an error.
func (r *RetryingUnit) attempt(ctx context.Context, state *domain.RunState) (out any, err error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	defer func() {
		if p := recover(); p != nil {
			out = nil
			err = fmt.Errorf("panic: %v", p)
		}
	}()

	return r.unit.Execute(ctx, state)
}
