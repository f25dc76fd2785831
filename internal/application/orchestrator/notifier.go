package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/blackstreet-ai/animated-invention/internal/domain"
	"github.com/blackstreet-ai/animated-invention/internal/ports"
)

// notifier fans run activity out to the event bus, metrics and the log.
// Every dependency is optional.
type notifier struct {
	eventBus ports.EventBus
	metrics  ports.MetricsCollector
	logger   *zap.Logger
}

func newNotifier(eventBus ports.EventBus, metrics ports.MetricsCollector, logger *zap.Logger) *notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &notifier{eventBus: eventBus, metrics: metrics, logger: logger}
}

// publish publishes an event to the event bus
func (n *notifier) publish(ctx context.Context, runID string, eventType domain.EventType, unit string, data map[string]any) {
	if n.eventBus == nil {
		return
	}

	event := domain.Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		RunID:     runID,
		Unit:      unit,
		Timestamp: time.Now(),
		Data:      data,
	}

	// Publishing must not depend on the run context: the final events of a
	// cancelled run still need to go out.
	if err := n.eventBus.Publish(context.WithoutCancel(ctx), event.Topic(), event); err != nil {
		n.logger.Error("failed to publish event",
			zap.String("run_id", runID),
			zap.String("event_type", string(eventType)),
			zap.Error(err))
	}
}

func (n *notifier) unitAttempt(unit, outcome string, duration time.Duration) {
	if n.metrics != nil {
		n.metrics.RecordUnitAttempt(unit, outcome, duration)
	}
}

func (n *notifier) layerExecuted(size int) {
	if n.metrics != nil {
		n.metrics.RecordLayerExecuted(size)
	}
}

func (n *notifier) runCompleted(phase domain.RunPhase, duration time.Duration) {
	if n.metrics != nil {
		n.metrics.RecordRunCompleted(string(phase), duration)
	}
}

func (n *notifier) activeRuns(count int) {
	if n.metrics != nil {
		n.metrics.SetActiveRuns(count)
	}
}

func (n *notifier) runSubmitted(status string) {
	if n.metrics != nil {
		n.metrics.RecordRunSubmitted(status)
	}
}
