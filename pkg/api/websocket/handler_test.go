package websocket

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap/zaptest"

	"github.com/blackstreet-ai/animated-invention/internal/domain"
	"github.com/blackstreet-ai/animated-invention/pkg/adapters/events/memory"
)

type fakeRuns map[string]domain.Snapshot

func (f fakeRuns) GetStatus(_ context.Context, runID string) (*domain.Snapshot, error) {
	snap, ok := f[runID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrRunNotFound, runID)
	}
	return &snap, nil
}

func newTestServer(t *testing.T, runs fakeRuns) (*Handler, *memory.InMemoryEventBus, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	bus := memory.NewInMemoryEventBus(zaptest.NewLogger(t))
	h := NewHandler(bus, runs, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := h.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	router := gin.New()
	router.GET("/api/v1/runs/:id/ws", h.HandleRunStream)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return h, bus, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func TestHandleRunStream(t *testing.T) {
	runs := fakeRuns{"run-1": {RunID: "run-1", Phase: domain.PhaseRunning}}
	h, bus, base := newTestServer(t, runs)

	conn := dial(t, base+"/api/v1/runs/run-1/ws")

	var first Message
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if first.Type != MessageSnapshot || first.Snapshot.RunID != "run-1" {
		t.Fatalf("first message = %+v", first)
	}
	if h.ClientCount() != 1 {
		t.Fatalf("ClientCount() = %d, want 1", h.ClientCount())
	}

	ctx := context.Background()
	publish := func(e domain.Event) {
		if err := bus.Publish(ctx, e.Topic(), e); err != nil {
			t.Fatal(err)
		}
	}
	publish(domain.Event{ID: "other", Type: domain.EventUnitStarted, RunID: "run-2", Unit: "x"})
	publish(domain.Event{ID: "e1", Type: domain.EventUnitStarted, RunID: "run-1", Unit: "research"})

	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if msg.Type != MessageEvent || msg.Event.ID != "e1" {
		t.Fatalf("message = %+v, want event e1", msg)
	}

	publish(domain.Event{ID: "e2", Type: domain.EventRunCompleted, RunID: "run-1"})
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if msg.Event == nil || msg.Event.ID != "e2" {
		t.Fatalf("message = %+v, want event e2", msg)
	}

	// The stream ends with the run.
	if err := conn.ReadJSON(&msg); !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Errorf("ReadJSON() error = %v, want normal closure", err)
	}
}

func TestHandleRunStream_FinishedRun(t *testing.T) {
	runs := fakeRuns{"done": {RunID: "done", Phase: domain.PhaseDone}}
	_, _, base := newTestServer(t, runs)

	conn := dial(t, base+"/api/v1/runs/done/ws")
	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if msg.Snapshot == nil || msg.Snapshot.Phase != domain.PhaseDone {
		t.Fatalf("message = %+v", msg)
	}
	if err := conn.ReadJSON(&msg); !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Errorf("ReadJSON() error = %v, want normal closure", err)
	}
}

func TestHandleRunStream_UnknownRun(t *testing.T) {
	_, _, base := newTestServer(t, fakeRuns{})

	_, resp, err := websocket.DefaultDialer.Dial(base+"/api/v1/runs/missing/ws", nil)
	if err == nil {
		t.Fatal("Dial() succeeded for unknown run")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Errorf("response = %v, want 404", resp)
	}
}
