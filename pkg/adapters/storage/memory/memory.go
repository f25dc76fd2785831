package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/blackstreet-ai/animated-invention/internal/domain"
)

// InMemoryStateStorage implements StateStorage using an in-memory map of run
// snapshots. Contents are lost when the process exits.
type InMemoryStateStorage struct {
	states map[string]domain.Snapshot
	mu     sync.RWMutex
}

// NewInMemoryStateStorage creates a new in-memory state storage
func NewInMemoryStateStorage() *InMemoryStateStorage {
	return &InMemoryStateStorage{
		states: make(map[string]domain.Snapshot),
	}
}

// SaveState stores a snapshot, replacing any earlier one for the same run.
func (s *InMemoryStateStorage) SaveState(ctx context.Context, snapshot domain.Snapshot) error {
	if snapshot.RunID == "" {
		return fmt.Errorf("snapshot has no run id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.states[snapshot.RunID] = snapshot
	return nil
}

// GetState retrieves the latest snapshot of a run
func (s *InMemoryStateStorage) GetState(ctx context.Context, runID string) (*domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot, ok := s.states[runID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrRunNotFound, runID)
	}

	return &snapshot, nil
}

// ListStates returns every stored snapshot, oldest run first.
func (s *InMemoryStateStorage) ListStates(ctx context.Context) ([]domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshots := make([]domain.Snapshot, 0, len(s.states))
	for _, snapshot := range s.states {
		snapshots = append(snapshots, snapshot)
	}
	sort.Slice(snapshots, func(i, j int) bool {
		if snapshots[i].CreatedAt.Equal(snapshots[j].CreatedAt) {
			return snapshots[i].RunID < snapshots[j].RunID
		}
		return snapshots[i].CreatedAt.Before(snapshots[j].CreatedAt)
	})

	return snapshots, nil
}

// DeleteState removes a run's snapshot
func (s *InMemoryStateStorage) DeleteState(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.states[runID]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrRunNotFound, runID)
	}
	delete(s.states, runID)
	return nil
}
