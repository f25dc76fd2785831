package domain

import (
	"fmt"
	"sync"
	"time"
)

// UnitStatus is the lifecycle status of one unit within a run.
type UnitStatus string

const (
	UnitPending   UnitStatus = "pending"
	UnitRunning   UnitStatus = "running"
	UnitSucceeded UnitStatus = "succeeded"
	UnitFailed    UnitStatus = "failed"
)

// IsTerminal reports whether the unit has finished.
func (s UnitStatus) IsTerminal() bool {
	return s == UnitSucceeded || s == UnitFailed
}

// RunPhase is the lifecycle phase of a whole run.
type RunPhase string

const (
	PhaseBuilding RunPhase = "building"
	PhaseLayered  RunPhase = "layered"
	PhaseRunning  RunPhase = "running"
	PhaseDone     RunPhase = "done"
	PhaseAborted  RunPhase = "aborted"
)

// IsTerminal reports whether the run has finished.
func (p RunPhase) IsTerminal() bool {
	return p == PhaseDone || p == PhaseAborted
}

// ErrorEntry is one failed attempt recorded in the run's error log.
type ErrorEntry struct {
	Unit      string    `json:"unit"`
	Attempt   int       `json:"attempt"`
	Error     string    `json:"error"`
	Terminal  bool      `json:"terminal"`
	Timestamp time.Time `json:"timestamp"`
}

// RunState is the shared accumulator for one orchestration run.
//
// It is created once, mutated in place and handed back to the caller at the
// end. Every accessor takes the same lock: units in one layer run
// concurrently and both the maps and the error log are shared.
type RunState struct {
	RunID string

	mu           sync.RWMutex
	inputs       map[string]any
	outputs      map[string]any
	metadata     map[string]any
	errors       []ErrorEntry
	status       map[string]UnitStatus
	order        []string
	phase        RunPhase
	layers       [][]string
	currentLayer int
	abortReason  string
	createdAt    time.Time
	startedAt    *time.Time
	completedAt  *time.Time
}

// NewRunState creates an empty state in the building phase. Inputs are
// copied and read-only afterwards.
func NewRunState(runID string, inputs map[string]any) *RunState {
	in := make(map[string]any, len(inputs))
	for k, v := range inputs {
		in[k] = v
	}
	return &RunState{
		RunID:        runID,
		inputs:       in,
		outputs:      make(map[string]any),
		metadata:     make(map[string]any),
		status:       make(map[string]UnitStatus),
		phase:        PhaseBuilding,
		currentLayer: -1,
		createdAt:    time.Now(),
	}
}

// Register adds units in the pending status.
func (s *RunState) Register(units ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, name := range units {
		if _, exists := s.status[name]; exists {
			return Configf(name, "registered twice")
		}
		s.status[name] = UnitPending
		s.order = append(s.order, name)
	}
	return nil
}

// Input returns a caller-supplied input value.
func (s *RunState) Input(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.inputs[key]
	return v, ok
}

// InputString returns an input as a string, or "" when it is missing or not
// a string.
func (s *RunState) InputString(key string) string {
	v, _ := s.Input(key)
	str, _ := v.(string)
	return str
}

// Output returns the result a unit produced.
func (s *RunState) Output(unit string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.outputs[unit]
	return v, ok
}

// Outputs returns a copy of the outputs section.
func (s *RunState) Outputs() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return copyMap(s.outputs)
}

// SetOutput stores a unit's result. Each slot is written at most once.
func (s *RunState) SetOutput(unit string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.status[unit]; !ok {
		return fmt.Errorf("unknown unit in state: %q", unit)
	}
	if _, exists := s.outputs[unit]; exists {
		return fmt.Errorf("output for %q already written", unit)
	}
	s.outputs[unit] = value
	return nil
}

// SetMetadata records a free-form metadata value.
func (s *RunState) SetMetadata(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.metadata[key] = value
}

// Metadata returns a metadata value.
func (s *RunState) Metadata(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.metadata[key]
	return v, ok
}

// AppendError adds an entry to the error log. Entries keep append order.
func (s *RunState) AppendError(entry ErrorEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.errors = append(s.errors, entry)
}

// Errors returns a copy of the error log.
func (s *RunState) Errors() []ErrorEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ErrorEntry, len(s.errors))
	copy(out, s.errors)
	return out
}

// ErrorsFor returns the error log entries of one unit.
func (s *RunState) ErrorsFor(unit string) []ErrorEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []ErrorEntry
	for _, e := range s.errors {
		if e.Unit == unit {
			out = append(out, e)
		}
	}
	return out
}

// Status returns a unit's status; unknown units report "".
func (s *RunState) Status(unit string) UnitStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.status[unit]
}

// Statuses returns a copy of every unit's status.
func (s *RunState) Statuses() map[string]UnitStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]UnitStatus, len(s.status))
	for k, v := range s.status {
		out[k] = v
	}
	return out
}

// Transition moves a unit from one status to another.
//
// The caller supplies the expected prior status so that races show up as
// errors instead of silently overwriting each other.
func (s *RunState) Transition(unit string, from, to UnitStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.status[unit]
	if !ok {
		return fmt.Errorf("unknown unit in state: %q", unit)
	}
	if cur != from {
		return fmt.Errorf("invalid transition for %q: expected %s, got %s", unit, from, cur)
	}
	if !allowedUnitTransition(from, to) {
		return fmt.Errorf("disallowed transition for %q: %s -> %s", unit, from, to)
	}
	s.status[unit] = to
	return nil
}

func allowedUnitTransition(from, to UnitStatus) bool {
	switch from {
	case UnitPending:
		return to == UnitRunning
	case UnitRunning:
		return to == UnitSucceeded || to == UnitFailed
	default:
		return false
	}
}

// Phase returns the run phase.
func (s *RunState) Phase() RunPhase {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.phase
}

// SetPhase advances the run phase.
func (s *RunState) SetPhase(to RunPhase) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !allowedPhaseTransition(s.phase, to) {
		return fmt.Errorf("run %s: disallowed phase transition %s -> %s", s.RunID, s.phase, to)
	}
	s.phase = to
	now := time.Now()
	switch to {
	case PhaseRunning:
		s.startedAt = &now
	case PhaseDone, PhaseAborted:
		s.completedAt = &now
	}
	return nil
}

func allowedPhaseTransition(from, to RunPhase) bool {
	switch from {
	case PhaseBuilding:
		return to == PhaseLayered
	case PhaseLayered:
		return to == PhaseRunning || to == PhaseAborted
	case PhaseRunning:
		return to == PhaseDone || to == PhaseAborted
	default:
		return false
	}
}

// Abort ends the run in the aborted phase and records why.
func (s *RunState) Abort(reason string) error {
	if err := s.SetPhase(PhaseAborted); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.abortReason = reason
	return nil
}

// AbortReason returns why the run was aborted.
func (s *RunState) AbortReason() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.abortReason
}

// Succeeded reports whether the run completed every layer.
func (s *RunState) Succeeded() bool {
	return s.Phase() == PhaseDone
}

// SetLayers records the execution layers computed for the run.
func (s *RunState) SetLayers(layers [][]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.layers = copyLayers(layers)
}

// Layers returns a copy of the execution layers.
func (s *RunState) Layers() [][]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return copyLayers(s.layers)
}

// SetCurrentLayer records the index of the layer being executed.
func (s *RunState) SetCurrentLayer(i int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.currentLayer = i
}

// CurrentLayer returns the index of the layer being executed, or -1 before
// the first layer starts.
func (s *RunState) CurrentLayer() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.currentLayer
}

// Snapshot returns an immutable copy of the state for reporting.
func (s *RunState) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	units := make([]UnitReport, 0, len(s.order))
	for _, name := range s.order {
		report := UnitReport{Name: name, Status: s.status[name]}
		for _, e := range s.errors {
			if e.Unit == name {
				report.Attempts = e.Attempt
			}
		}
		if report.Status == UnitSucceeded {
			report.Attempts++
		}
		units = append(units, report)
	}

	errs := make([]ErrorEntry, len(s.errors))
	copy(errs, s.errors)

	return Snapshot{
		RunID:        s.RunID,
		Phase:        s.phase,
		Inputs:       copyMap(s.inputs),
		Layers:       copyLayers(s.layers),
		CurrentLayer: s.currentLayer,
		Units:        units,
		Outputs:      copyMap(s.outputs),
		Metadata:     copyMap(s.metadata),
		Errors:       errs,
		AbortReason:  s.abortReason,
		CreatedAt:    s.createdAt,
		StartedAt:    copyTime(s.startedAt),
		CompletedAt:  copyTime(s.completedAt),
	}
}

func copyMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copyLayers(in [][]string) [][]string {
	if in == nil {
		return nil
	}
	out := make([][]string, len(in))
	for i, layer := range in {
		out[i] = append([]string(nil), layer...)
	}
	return out
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}
