package domain

import "time"

// Snapshot is a point-in-time copy of a RunState, safe to serialise and
// hand to other goroutines.
type Snapshot struct {
	RunID        string         `json:"run_id"`
	Phase        RunPhase       `json:"phase"`
	Inputs       map[string]any `json:"inputs,omitempty"`
	Layers       [][]string     `json:"layers"`
	CurrentLayer int            `json:"current_layer"`
	Units        []UnitReport   `json:"units"`
	Outputs      map[string]any `json:"outputs"`
	Metadata     map[string]any `json:"metadata"`
	Errors       []ErrorEntry   `json:"errors"`
	AbortReason  string         `json:"abort_reason,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	StartedAt    *time.Time     `json:"started_at,omitempty"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
}

// UnitReport is the per-unit summary carried by a Snapshot.
type UnitReport struct {
	Name     string     `json:"name"`
	Status   UnitStatus `json:"status"`
	Attempts int        `json:"attempts"`
}

// Unit returns the report for name.
func (s Snapshot) Unit(name string) (UnitReport, bool) {
	for _, u := range s.Units {
		if u.Name == name {
			return u, true
		}
	}
	return UnitReport{}, false
}

// Failed lists the units that failed terminally.
func (s Snapshot) Failed() []string {
	var out []string
	for _, u := range s.Units {
		if u.Status == UnitFailed {
			out = append(out, u.Name)
		}
	}
	return out
}
