package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestRunState_Register(t *testing.T) {
	s := NewRunState("r1", nil)
	if err := s.Register("A", "B"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := s.Register("A"); !errors.Is(err, ErrConfiguration) {
		t.Errorf("Register() duplicate error = %v, want configuration error", err)
	}
	want := map[string]UnitStatus{"A": UnitPending, "B": UnitPending}
	if diff := cmp.Diff(want, s.Statuses()); diff != "" {
		t.Errorf("statuses mismatch (-want +got):\n%s", diff)
	}
}

func TestRunState_InputsAreCopied(t *testing.T) {
	in := map[string]any{"topic": "go"}
	s := NewRunState("r1", in)
	in["topic"] = "rust"

	if got := s.InputString("topic"); got != "go" {
		t.Errorf("InputString() = %q, want go", got)
	}
	if got := s.InputString("missing"); got != "" {
		t.Errorf("InputString(missing) = %q", got)
	}
}

func TestRunState_SetOutputOnce(t *testing.T) {
	s := NewRunState("r1", nil)
	_ = s.Register("A")

	if err := s.SetOutput("A", 1); err != nil {
		t.Fatalf("SetOutput() error = %v", err)
	}
	if err := s.SetOutput("A", 2); err == nil {
		t.Error("expected second write to fail")
	}
	if err := s.SetOutput("ghost", 1); err == nil {
		t.Error("expected write for unknown unit to fail")
	}
	if got, _ := s.Output("A"); got != 1 {
		t.Errorf("Output() = %v, want 1", got)
	}

	// Outputs returns a copy.
	out := s.Outputs()
	out["A"] = 99
	if got, _ := s.Output("A"); got != 1 {
		t.Errorf("Output() after mutating copy = %v", got)
	}
}

func TestRunState_Transition(t *testing.T) {
	tests := []struct {
		name     string
		from, to UnitStatus
		prepare  []UnitStatus
		wantErr  bool
	}{
		{name: "start", from: UnitPending, to: UnitRunning},
		{name: "succeed", prepare: []UnitStatus{UnitRunning}, from: UnitRunning, to: UnitSucceeded},
		{name: "fail", prepare: []UnitStatus{UnitRunning}, from: UnitRunning, to: UnitFailed},
		{name: "skip running", from: UnitPending, to: UnitSucceeded, wantErr: true},
		{name: "wrong expected status", from: UnitRunning, to: UnitFailed, wantErr: true},
		{
			name:    "leave terminal",
			prepare: []UnitStatus{UnitRunning, UnitFailed},
			from:    UnitFailed, to: UnitRunning,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewRunState("r1", nil)
			_ = s.Register("A")
			cur := UnitPending
			for _, next := range tt.prepare {
				if err := s.Transition("A", cur, next); err != nil {
					t.Fatalf("prepare %s -> %s: %v", cur, next, err)
				}
				cur = next
			}

			err := s.Transition("A", tt.from, tt.to)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Transition() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && s.Status("A") != tt.to {
				t.Errorf("Status() = %s, want %s", s.Status("A"), tt.to)
			}
		})
	}
}

func TestRunState_Phases(t *testing.T) {
	s := NewRunState("r1", nil)
	if s.Phase() != PhaseBuilding {
		t.Fatalf("initial phase = %s", s.Phase())
	}
	if err := s.SetPhase(PhaseRunning); err == nil {
		t.Error("expected building -> running to fail")
	}
	for _, p := range []RunPhase{PhaseLayered, PhaseRunning, PhaseDone} {
		if err := s.SetPhase(p); err != nil {
			t.Fatalf("SetPhase(%s) error = %v", p, err)
		}
	}
	if !s.Succeeded() {
		t.Error("expected Succeeded()")
	}
	if err := s.Abort("late"); err == nil {
		t.Error("expected abort after done to fail")
	}

	snap := s.Snapshot()
	if snap.StartedAt == nil || snap.CompletedAt == nil {
		t.Errorf("expected start and completion times, got %+v", snap)
	}
}

func TestRunState_Abort(t *testing.T) {
	s := NewRunState("r1", nil)
	_ = s.SetPhase(PhaseLayered)
	if err := s.Abort("cancelled"); err != nil {
		t.Fatalf("Abort() error = %v", err)
	}
	if s.Phase() != PhaseAborted || s.AbortReason() != "cancelled" {
		t.Errorf("phase = %s reason = %q", s.Phase(), s.AbortReason())
	}
	if !s.Phase().IsTerminal() {
		t.Error("aborted should be terminal")
	}
}

func TestRunState_ConcurrentWrites(t *testing.T) {
	const n = 100
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("u%03d", i)
	}
	s := NewRunState("r1", nil)
	_ = s.Register(names...)

	var wg sync.WaitGroup
	for i, name := range names {
		i, name := i, name
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Transition(name, UnitPending, UnitRunning)
			s.AppendError(ErrorEntry{Unit: name, Attempt: 1, Error: "x"})
			_ = s.SetOutput(name, i)
			s.SetMetadata(name, true)
			_ = s.Transition(name, UnitRunning, UnitSucceeded)
		}()
	}
	wg.Wait()

	if len(s.Errors()) != n {
		t.Errorf("errors = %d, want %d", len(s.Errors()), n)
	}
	if len(s.Outputs()) != n {
		t.Errorf("outputs = %d, want %d", len(s.Outputs()), n)
	}
	for _, name := range names {
		if s.Status(name) != UnitSucceeded {
			t.Fatalf("%s status = %s", name, s.Status(name))
		}
	}
}

func TestRunState_Snapshot(t *testing.T) {
	s := NewRunState("r1", map[string]any{"topic": "go"})
	_ = s.Register("A", "B", "C")
	_ = s.SetPhase(PhaseLayered)
	s.SetLayers([][]string{{"A", "B"}, {"C"}})
	_ = s.SetPhase(PhaseRunning)
	s.SetCurrentLayer(0)

	_ = s.Transition("A", UnitPending, UnitRunning)
	s.AppendError(ErrorEntry{Unit: "A", Attempt: 1, Error: "flaky"})
	_ = s.SetOutput("A", "a")
	_ = s.Transition("A", UnitRunning, UnitSucceeded)

	_ = s.Transition("B", UnitPending, UnitRunning)
	s.AppendError(ErrorEntry{Unit: "B", Attempt: 1, Error: "bad"})
	s.AppendError(ErrorEntry{Unit: "B", Attempt: 2, Error: "bad", Terminal: true})
	_ = s.Transition("B", UnitRunning, UnitFailed)
	_ = s.Abort("layer 0 failed")

	snap := s.Snapshot()

	wantUnits := []UnitReport{
		{Name: "A", Status: UnitSucceeded, Attempts: 2},
		{Name: "B", Status: UnitFailed, Attempts: 2},
		{Name: "C", Status: UnitPending, Attempts: 0},
	}
	if diff := cmp.Diff(wantUnits, snap.Units); diff != "" {
		t.Errorf("units mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"B"}, snap.Failed()); diff != "" {
		t.Errorf("failed mismatch (-want +got):\n%s", diff)
	}
	if snap.CurrentLayer != 0 || snap.AbortReason != "layer 0 failed" {
		t.Errorf("snapshot = %+v", snap)
	}

	// Snapshots are detached from the live state.
	snap.Layers[0][0] = "mutated"
	if s.Layers()[0][0] != "A" {
		t.Error("snapshot shares layer storage with the state")
	}

	data, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var decoded Snapshot
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if diff := cmp.Diff(snap.Errors, decoded.Errors, cmpopts.EquateApproxTime(0)); diff != "" {
		t.Errorf("errors mismatch after round trip (-want +got):\n%s", diff)
	}
}

func TestErrors(t *testing.T) {
	cause := errors.New("boom")
	execErr := &UnitExecutionError{Unit: "A", Attempt: 2, Exhausted: true, Err: cause}
	if !errors.Is(execErr, ErrUnitExecution) || !errors.Is(execErr, cause) {
		t.Error("UnitExecutionError should match both the sentinel and its cause")
	}
	if got := execErr.Error(); got != `unit "A" failed after 2 attempt(s): boom` {
		t.Errorf("Error() = %q", got)
	}

	cycle := &CycleError{Units: []string{"A", "B"}}
	if !errors.Is(cycle, ErrCycle) {
		t.Error("CycleError should match ErrCycle")
	}
	if got := cycle.Error(); got != "dependency cycle among units: A, B" {
		t.Errorf("Error() = %q", got)
	}

	cfg := Configf("A", "depends on %q", "ghost")
	if got := cfg.Error(); got != `configuration error: unit "A": depends on "ghost"` {
		t.Errorf("Error() = %q", got)
	}
}
