package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConfiguration marks a dependency map or pipeline definition that
	// references something that does not exist.
	ErrConfiguration = errors.New("configuration error")
	// ErrCycle marks a dependency graph that is not acyclic.
	ErrCycle = errors.New("dependency cycle")
	// ErrUnitExecution marks a failed unit attempt.
	ErrUnitExecution = errors.New("unit execution failed")
	// ErrRunAborted marks a run that stopped after a terminal unit failure
	// or a cancellation.
	ErrRunAborted = errors.New("run aborted")
	// ErrRunNotFound is returned by storage and the manager for unknown run IDs.
	ErrRunNotFound = errors.New("run not found")
)

// ConfigurationError names the unit a configuration problem is about.
type ConfigurationError struct {
	Unit   string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Unit == "" {
		return fmt.Sprintf("%s: %s", ErrConfiguration, e.Reason)
	}
	return fmt.Sprintf("%s: unit %q: %s", ErrConfiguration, e.Unit, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

// Configf builds a ConfigurationError for unit.
func Configf(unit, format string, args ...any) error {
	return &ConfigurationError{Unit: unit, Reason: fmt.Sprintf(format, args...)}
}

// CycleError lists the units that lie on a dependency cycle.
type CycleError struct {
	Units []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%s among units: %s", ErrCycle, strings.Join(e.Units, ", "))
}

func (e *CycleError) Unwrap() error { return ErrCycle }

// UnitExecutionError is a failed attempt of a single unit. Exhausted is set
// on the attempt that used up the retry budget.
type UnitExecutionError struct {
	Unit      string
	Attempt   int
	Exhausted bool
	Err       error
}

func (e *UnitExecutionError) Error() string {
	if e.Exhausted {
		return fmt.Sprintf("unit %q failed after %d attempt(s): %v", e.Unit, e.Attempt, e.Err)
	}
	return fmt.Sprintf("unit %q attempt %d failed: %v", e.Unit, e.Attempt, e.Err)
}

func (e *UnitExecutionError) Unwrap() []error { return []error{ErrUnitExecution, e.Err} }

// LayerError reports the units of a layer that failed terminally.
type LayerError struct {
	Layer  int
	Failed []string
}

func (e *LayerError) Error() string {
	return fmt.Sprintf("layer %d: terminal failure in %s", e.Layer, strings.Join(e.Failed, ", "))
}

func (e *LayerError) Unwrap() error { return ErrRunAborted }
