package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/redis/go-redis/v9"

	"github.com/blackstreet-ai/animated-invention/internal/domain"
)

func TestEncodeDecodeEvent(t *testing.T) {
	event := domain.Event{
		ID:        "e1",
		Type:      domain.EventUnitFailed,
		RunID:     "run-1",
		Unit:      "research",
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Data:      map[string]any{"attempts": float64(2)},
	}

	values, err := encodeEvent(event)
	if err != nil {
		t.Fatalf("encodeEvent() error = %v", err)
	}
	if values["type"] != "unit.failed" || values["run_id"] != "run-1" {
		t.Errorf("index fields = %v", values)
	}

	got, err := decodeEvent(values)
	if err != nil {
		t.Fatalf("decodeEvent() error = %v", err)
	}
	if diff := cmp.Diff(event, got); diff != "" {
		t.Errorf("event mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeEvent_Malformed(t *testing.T) {
	if _, err := decodeEvent(map[string]any{}); err == nil {
		t.Error("expected error for missing data field")
	}
	if _, err := decodeEvent(map[string]any{"data": "{not json"}); err == nil {
		t.Error("expected error for invalid json")
	}
}

func TestNewStreamsEventBus(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()

	if _, err := NewStreamsEventBus(nil, "g", "c", nil, Options{}); err == nil {
		t.Error("expected error for nil client")
	}
	if _, err := NewStreamsEventBus(client, "", "c", nil, Options{}); err == nil {
		t.Error("expected error for empty group")
	}

	bus, err := NewStreamsEventBus(client, "g", "c", nil, Options{})
	if err != nil {
		t.Fatalf("NewStreamsEventBus() error = %v", err)
	}
	if got := bus.streamKey(domain.TopicRunEvents); got != "pipeline:events:run.events" {
		t.Errorf("streamKey() = %q", got)
	}

	custom, _ := NewStreamsEventBus(client, "g", "c", nil, Options{KeyPrefix: "test:"})
	if got := custom.streamKey(domain.TopicUnitEvents); got != "test:unit.events" {
		t.Errorf("streamKey() = %q", got)
	}
}

func TestStreamsEventBus_PublishUnreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	bus, err := NewStreamsEventBus(client, "g", "c", nil, Options{})
	if err != nil {
		t.Fatalf("NewStreamsEventBus() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := bus.Publish(ctx, domain.TopicRunEvents, domain.Event{ID: "e1"}); err == nil {
		t.Error("expected publish to an unreachable server to fail")
	}
}

func TestStreamsEventBus_SubscribeAfterClose(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	bus, _ := NewStreamsEventBus(client, "g", "c", nil, Options{})
	_ = bus.Close()

	err := bus.Subscribe(context.Background(), domain.TopicRunEvents, func(context.Context, domain.Event) error { return nil })
	if err == nil {
		t.Error("expected subscribe to fail")
	}
}

func TestIsBusyGroup(t *testing.T) {
	if !isBusyGroup(errors.New("BUSYGROUP Consumer Group name already exists")) {
		t.Error("expected BUSYGROUP to be recognised")
	}
	if isBusyGroup(errors.New("ERR something else")) {
		t.Error("unexpected match")
	}
}
