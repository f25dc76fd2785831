// Package ports declares the interfaces the orchestrator depends on. Adapters
// under pkg/adapters implement them.
package ports

import (
	"context"
	"time"

	"github.com/blackstreet-ai/animated-invention/internal/domain"
)

// EventHandler processes an event delivered by an EventBus.
type EventHandler func(ctx context.Context, event domain.Event) error

// EventBus publishes run lifecycle events and fans them out to subscribers.
type EventBus interface {
	Publish(ctx context.Context, topic string, event domain.Event) error
	// Subscribe registers handler until ctx is cancelled.
	Subscribe(ctx context.Context, topic string, handler EventHandler) error
	Unsubscribe(ctx context.Context, topic string) error
	Close() error
}

// StateStorage keeps run snapshots for later inspection.
type StateStorage interface {
	SaveState(ctx context.Context, snapshot domain.Snapshot) error
	// GetState returns domain.ErrRunNotFound for unknown runs.
	GetState(ctx context.Context, runID string) (*domain.Snapshot, error)
	ListStates(ctx context.Context) ([]domain.Snapshot, error)
	DeleteState(ctx context.Context, runID string) error
}

// MetricsCollector records orchestration metrics.
type MetricsCollector interface {
	// RecordRunSubmitted counts submissions by status: accepted or rejected.
	RecordRunSubmitted(status string)
	RecordRunCompleted(phase string, duration time.Duration)
	RecordUnitAttempt(unit, outcome string, duration time.Duration)
	RecordLayerExecuted(size int)
	SetActiveRuns(count int)
	ObserveQueueWait(duration time.Duration)
	RecordWorkerPoolStatus(idle, busy, stopped int)
}
