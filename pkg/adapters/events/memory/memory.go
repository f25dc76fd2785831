package memory

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/blackstreet-ai/animated-invention/internal/domain"
	"github.com/blackstreet-ai/animated-invention/internal/ports"
)

const subscriptionBuffer = 256

// InMemoryEventBus implements EventBus using in-process subscriptions.
//
// Each subscription gets its own goroutine and buffer so that a handler sees
// events in publish order and a slow handler never blocks the publisher.
// When a subscription's buffer is full the event is dropped for it.
type InMemoryEventBus struct {
	subscribers map[string][]*subscription
	logger      *zap.Logger
	mu          sync.RWMutex
	closed      bool
}

type subscription struct {
	topic   string
	handler ports.EventHandler
	events  chan domain.Event
	done    chan struct{}
	once    sync.Once
}

func (s *subscription) stop() {
	s.once.Do(func() { close(s.done) })
}

// NewInMemoryEventBus creates a new in-memory event bus
func NewInMemoryEventBus(logger *zap.Logger) *InMemoryEventBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InMemoryEventBus{
		subscribers: make(map[string][]*subscription),
		logger:      logger,
	}
}

// Publish publishes an event to all subscribers of a topic
func (e *InMemoryEventBus) Publish(ctx context.Context, topic string, event domain.Event) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, sub := range e.subscribers[topic] {
		select {
		case sub.events <- event:
		case <-sub.done:
		default:
			e.logger.Warn("subscriber buffer full, dropping event",
				zap.String("topic", topic),
				zap.String("event_id", event.ID),
				zap.String("type", string(event.Type)))
		}
	}

	return nil
}

// Subscribe registers handler on a topic until ctx is cancelled
func (e *InMemoryEventBus) Subscribe(ctx context.Context, topic string, handler ports.EventHandler) error {
	sub := &subscription{
		topic:   topic,
		handler: handler,
		events:  make(chan domain.Event, subscriptionBuffer),
		done:    make(chan struct{}),
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.subscribers[topic] = append(e.subscribers[topic], sub)
	e.mu.Unlock()

	go e.deliver(ctx, sub)

	// Start a goroutine to clean up subscription on context cancellation
	go func() {
		select {
		case <-ctx.Done():
			e.unsubscribe(sub)
		case <-sub.done:
		}
	}()

	return nil
}

// deliver calls the handler for each event in order
func (e *InMemoryEventBus) deliver(ctx context.Context, sub *subscription) {
	for {
		select {
		case <-sub.done:
			return
		case event := <-sub.events:
			if err := sub.handler(ctx, event); err != nil {
				e.logger.Debug("event handler error",
					zap.String("topic", sub.topic),
					zap.String("event_id", event.ID),
					zap.Error(err))
			}
		}
	}
}

// Unsubscribe removes all subscriptions from a topic
func (e *InMemoryEventBus) Unsubscribe(ctx context.Context, topic string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, sub := range e.subscribers[topic] {
		sub.stop()
	}
	delete(e.subscribers, topic)
	return nil
}

// Close closes the event bus and cleans up resources
func (e *InMemoryEventBus) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, subs := range e.subscribers {
		for _, sub := range subs {
			sub.stop()
		}
	}
	e.subscribers = make(map[string][]*subscription)
	e.closed = true
	return nil
}

// SubscriberCount returns the number of live subscriptions on a topic.
func (e *InMemoryEventBus) SubscriberCount(topic string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.subscribers[topic])
}

// unsubscribe removes a single subscription
func (e *InMemoryEventBus) unsubscribe(target *subscription) {
	e.mu.Lock()
	defer e.mu.Unlock()

	target.stop()
	subs := e.subscribers[target.topic]
	for i, sub := range subs {
		if sub == target {
			e.subscribers[target.topic] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(e.subscribers[target.topic]) == 0 {
		delete(e.subscribers, target.topic)
	}
}
