package domain

import "time"

// EventType identifies a run lifecycle event.
type EventType string

const (
	EventRunStarted        EventType = "run.started"
	EventLayerStarted      EventType = "layer.started"
	EventUnitStarted       EventType = "unit.started"
	EventUnitAttemptFailed EventType = "unit.attempt_failed"
	EventUnitSucceeded     EventType = "unit.succeeded"
	EventUnitFailed        EventType = "unit.failed"
	EventLayerCompleted    EventType = "layer.completed"
	EventRunCompleted      EventType = "run.completed"
	EventRunAborted        EventType = "run.aborted"
)

// Event topics on the event bus.
const (
	TopicRunEvents  = "run.events"
	TopicUnitEvents = "unit.events"
)

// Event is a lifecycle notification published while a run executes.
type Event struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	RunID     string         `json:"run_id"`
	Unit      string         `json:"unit,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// Topic returns the bus topic the event is published on.
func (e Event) Topic() string {
	switch e.Type {
	case EventUnitStarted, EventUnitAttemptFailed, EventUnitSucceeded, EventUnitFailed:
		return TopicUnitEvents
	default:
		return TopicRunEvents
	}
}
