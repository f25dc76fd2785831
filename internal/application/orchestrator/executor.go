package orchestrator

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/blackstreet-ai/animated-invention/internal/domain"
)

// ExecutorKind selects the layer execution strategy.
type ExecutorKind string

const (
	// ExecutorConcurrent runs the units of a layer in parallel goroutines.
	ExecutorConcurrent ExecutorKind = "concurrent"
	// ExecutorSequential runs the units of a layer one after another.
	ExecutorSequential ExecutorKind = "sequential"
)

// LayerExecutor runs every unit of one layer to a terminal outcome.
//
// A unit's failure never stops its siblings. When at least one unit failed
// terminally the executor returns a *domain.LayerError naming them.
type LayerExecutor interface {
	RunLayer(ctx context.Context, index int, units []domain.Unit, state *domain.RunState) error
}

// NewExecutor returns the executor for kind. maxParallel limits concurrent
// units per layer; values <= 0 disable the limit.
func NewExecutor(kind ExecutorKind, maxParallel int) (LayerExecutor, error) {
	switch kind {
	case ExecutorConcurrent, "":
		return &ConcurrentExecutor{MaxParallel: maxParallel}, nil
	case ExecutorSequential:
		return &SequentialExecutor{}, nil
	default:
		return nil, fmt.Errorf("unknown executor kind: %s", kind)
	}
}

// ConcurrentExecutor launches all units of a layer at once and waits for
// every one of them.
type ConcurrentExecutor struct {
	MaxParallel int
}

// RunLayer implements LayerExecutor.
func (e *ConcurrentExecutor) RunLayer(ctx context.Context, index int, units []domain.Unit, state *domain.RunState) error {
	var g errgroup.Group
	if e.MaxParallel > 0 {
		g.SetLimit(e.MaxParallel)
	}

	failed := make([]bool, len(units))
	for i, u := range units {
		i, u := i, u
		g.Go(func() error {
			if _, err := u.Execute(ctx, state); err != nil {
				failed[i] = true
			}
			// Failures are collected per unit; returning nil keeps the
			// group from short-circuiting siblings.
			return nil
		})
	}
	_ = g.Wait()

	return layerResult(index, units, failed)
}

// SequentialExecutor runs the units of a layer in order on the calling
// goroutine. It is the single-threaded fallback strategy.
type SequentialExecutor struct{}

// RunLayer implements LayerExecutor.
func (e *SequentialExecutor) RunLayer(ctx context.Context, index int, units []domain.Unit, state *domain.RunState) error {
	failed := make([]bool, len(units))
	for i, u := range units {
		if _, err := u.Execute(ctx, state); err != nil {
			failed[i] = true
		}
	}
	return layerResult(index, units, failed)
}

func layerResult(index int, units []domain.Unit, failed []bool) error {
	var names []string
	for i, f := range failed {
		if f {
			names = append(names, units[i].Name())
		}
	}
	if len(names) == 0 {
		return nil
	}
	return &domain.LayerError{Layer: index, Failed: names}
}
