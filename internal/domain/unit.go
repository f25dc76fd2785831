package domain

import "context"

// Unit is a single named step of work operating on the shared run state.
//
// Execute returns the unit's output. The orchestrator stores it under the
// unit's name once the attempt succeeds; a failed attempt stores nothing.
// Units may be invoked more than once when retries are configured, so they
// must tolerate re-execution.
type Unit interface {
	Name() string
	// MaxRetries overrides the global retry limit. Zero means "use the default".
	MaxRetries() int
	Execute(ctx context.Context, state *RunState) (any, error)
}

// UnitFunc is the executable behaviour of a function-backed unit.
type UnitFunc func(ctx context.Context, state *RunState) (any, error)

// UnitOption configures a function-backed unit.
type UnitOption func(*funcUnit)

// WithMaxRetries sets a per-unit retry limit.
func WithMaxRetries(n int) UnitOption {
	return func(u *funcUnit) {
		u.maxRetries = n
	}
}

type funcUnit struct {
	name       string
	maxRetries int
	fn         UnitFunc
}

// NewUnit adapts a plain function into a Unit.
func NewUnit(name string, fn UnitFunc, opts ...UnitOption) Unit {
	u := &funcUnit{name: name, fn: fn}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

func (u *funcUnit) Name() string    { return u.name }
func (u *funcUnit) MaxRetries() int { return u.maxRetries }

func (u *funcUnit) Execute(ctx context.Context, state *RunState) (any, error) {
	return u.fn(ctx, state)
}
