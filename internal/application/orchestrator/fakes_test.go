package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/blackstreet-ai/animated-invention/internal/domain"
	"github.com/blackstreet-ai/animated-invention/internal/ports"
)

// recordingBus keeps every published event in order.
type recordingBus struct {
	mu     sync.Mutex
	events []domain.Event
}

func (b *recordingBus) Publish(_ context.Context, _ string, event domain.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	return nil
}

func (b *recordingBus) Subscribe(context.Context, string, ports.EventHandler) error { return nil }
func (b *recordingBus) Unsubscribe(context.Context, string) error                  { return nil }
func (b *recordingBus) Close() error                                               { return nil }

func (b *recordingBus) types() []domain.EventType {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.EventType, len(b.events))
	for i, e := range b.events {
		out[i] = e.Type
	}
	return out
}

func (b *recordingBus) count(t domain.EventType) int {
	n := 0
	for _, got := range b.types() {
		if got == t {
			n++
		}
	}
	return n
}

// recordingMetrics counts metric calls.
type recordingMetrics struct {
	mu       sync.Mutex
	attempts map[string]int // unit/outcome -> count
	layers   []int
	runs     []string
	active   []int

	submitted []string
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{attempts: make(map[string]int)}
}

func (m *recordingMetrics) RecordRunCompleted(phase string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, phase)
}

func (m *recordingMetrics) RecordUnitAttempt(unit, outcome string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts[unit+"/"+outcome]++
}

func (m *recordingMetrics) RecordLayerExecuted(size int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.layers = append(m.layers, size)
}

func (m *recordingMetrics) SetActiveRuns(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = append(m.active, count)
}

func (m *recordingMetrics) RecordWorkerPoolStatus(int, int, int) {}
func (m *recordingMetrics) ObserveQueueWait(time.Duration)       {}

func (m *recordingMetrics) RecordRunSubmitted(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submitted = append(m.submitted, status)
}

// memStorage is a minimal StateStorage.
type memStorage struct {
	mu    sync.Mutex
	saves int
	snaps map[string]domain.Snapshot
}

func newMemStorage() *memStorage {
	return &memStorage{snaps: make(map[string]domain.Snapshot)}
}

func (s *memStorage) SaveState(_ context.Context, snap domain.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	s.snaps[snap.RunID] = snap
	return nil
}

func (s *memStorage) GetState(_ context.Context, runID string) (*domain.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snaps[runID]
	if !ok {
		return nil, domain.ErrRunNotFound
	}
	return &snap, nil
}

func (s *memStorage) ListStates(context.Context) ([]domain.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Snapshot, 0, len(s.snaps))
	for _, snap := range s.snaps {
		out = append(out, snap)
	}
	return out, nil
}

func (s *memStorage) DeleteState(_ context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snaps, runID)
	return nil
}

// countingUnit fails its first failures attempts and then succeeds with
// output. failures < 0 fails forever.
type countingUnit struct {
	name     string
	failures int
	output   any
	retries  int

	mu    sync.Mutex
	calls int
}

func (u *countingUnit) Name() string    { return u.name }
func (u *countingUnit) MaxRetries() int { return u.retries }

func (u *countingUnit) Execute(context.Context, *domain.RunState) (any, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls++
	if u.failures < 0 || u.calls <= u.failures {
		return nil, errBoom
	}
	return u.output, nil
}

func (u *countingUnit) Calls() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.calls
}

var errBoom = &boomError{}

type boomError struct{}

func (*boomError) Error() string { return "boom" }

func newState(units ...string) *domain.RunState {
	s := domain.NewRunState("run-test", nil)
	if err := s.Register(units...); err != nil {
		panic(err)
	}
	return s
}
