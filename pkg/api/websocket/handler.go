package websocket

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/blackstreet-ai/animated-invention/internal/domain"
	"github.com/blackstreet-ai/animated-invention/internal/ports"
)

const (
	clientBuffer = 64
	writeWait    = 10 * time.Second
	pingPeriod   = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Message is what a client receives: first a snapshot of the run, then
// every event of the run as it happens.
type Message struct {
	Type     string           `json:"type"`
	Snapshot *domain.Snapshot `json:"snapshot,omitempty"`
	Event    *domain.Event    `json:"event,omitempty"`
}

const (
	MessageSnapshot = "snapshot"
	MessageEvent    = "event"
)

// StatusReader looks up a run. orchestrator.Manager implements it.
type StatusReader interface {
	GetStatus(ctx context.Context, runID string) (*domain.Snapshot, error)
}

type client struct {
	runID  string
	events chan domain.Event
}

// Handler handles WebSocket connections.
//
// It subscribes to the run and unit topics once and fans events out to the
// connected clients of each run.
type Handler struct {
	eventBus ports.EventBus
	runs     StatusReader
	logger   *zap.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
}

// NewHandler creates a new WebSocket handler
func NewHandler(eventBus ports.EventBus, runs StatusReader, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		eventBus: eventBus,
		runs:     runs,
		logger:   logger,
		clients:  make(map[*client]struct{}),
	}
}

// Start subscribes to run events until ctx is cancelled.
func (h *Handler) Start(ctx context.Context) error {
	for _, topic := range []string{domain.TopicRunEvents, domain.TopicUnitEvents} {
		if err := h.eventBus.Subscribe(ctx, topic, h.dispatch); err != nil {
			return err
		}
	}
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Handler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// dispatch hands an event to every client watching its run
func (h *Handler) dispatch(_ context.Context, event domain.Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		if c.runID != event.RunID {
			continue
		}
		select {
		case c.events <- event:
		default:
			h.logger.Warn("client buffer full, dropping event",
				zap.String("run_id", event.RunID),
				zap.String("event_id", event.ID),
				zap.String("event_type", string(event.Type)))
		}
	}
	return nil
}

func (h *Handler) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Handler) unregister(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// HandleRunStream streams the events of one run. The connection is closed
// once the run finishes.
func (h *Handler) HandleRunStream(c *gin.Context) {
	runID := c.Param("id")

	// Register before reading the snapshot so no later event is missed.
	cl := &client{runID: runID, events: make(chan domain.Event, clientBuffer)}
	h.register(cl)
	defer h.unregister(cl)

	snap, err := h.runs.GetStatus(c.Request.Context(), runID)
	if err != nil {
		status, code := http.StatusInternalServerError, "LOOKUP_FAILED"
		if errors.Is(err, domain.ErrRunNotFound) {
			status, code = http.StatusNotFound, "NOT_FOUND"
		}
		c.AbortWithStatusJSON(status, gin.H{"error": gin.H{"code": code, "message": err.Error()}})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("failed to upgrade connection", zap.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()

	logger := h.logger.With(zap.String("run_id", runID), zap.String("client", c.ClientIP()))
	logger.Info("WebSocket connection established")

	if err := h.write(conn, Message{Type: MessageSnapshot, Snapshot: snap}); err != nil {
		logger.Debug("failed to write snapshot", zap.Error(err))
		return
	}
	if snap.Phase.IsTerminal() {
		h.close(conn)
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	go readUntilClosed(conn, cancel)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case event := <-cl.events:
			if err := h.write(conn, Message{Type: MessageEvent, Event: &event}); err != nil {
				logger.Debug("failed to write event", zap.Error(err))
				return
			}
			if event.Type == domain.EventRunCompleted || event.Type == domain.EventRunAborted {
				h.close(conn)
				return
			}
		}
	}
}

func (h *Handler) write(conn *websocket.Conn, msg Message) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteJSON(msg)
}

func (h *Handler) close(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}

// readUntilClosed drains client frames so control messages are processed,
// and cancels once the client goes away.
func readUntilClosed(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
