package notify

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const hubPingInterval = 5 * time.Second

type subscriber struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
}

func (s *subscriber) writeJSON(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.ws.WriteJSON(v)
}

// Hub fans change events out to websocket subscribers. A subscriber that
// fails a write is dropped; the event itself is never retried.
type Hub struct {
	upgrader websocket.Upgrader
	logger   zerolog.Logger

	mu          sync.RWMutex
	subscribers map[string]*subscriber
	closed      bool
}

// NewHub constructs an empty hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger:      logger.With().Str("component", "notify_hub").Logger(),
		subscribers: make(map[string]*subscriber),
	}
}

// ServeHTTP upgrades a presentation client onto the hub.
func (h *Hub) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		http.Error(w, "hub is shut down", http.StatusServiceUnavailable)
		return
	}

	ws, err := h.upgrader.Upgrade(w, req, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	id := uuid.NewString()
	sub := &subscriber{ws: ws}
	h.mu.Lock()
	h.subscribers[id] = sub
	h.mu.Unlock()
	h.logger.Info().Str("subscriber", id).Str("remote", req.RemoteAddr).Msg("subscriber connected")

	go h.keepAlive(id, sub)

	// Inbound messages are ignored; the read loop only detects disconnects.
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			break
		}
	}
	h.drop(id)
	h.logger.Info().Str("subscriber", id).Msg("subscriber disconnected")
}

func (h *Hub) keepAlive(id string, sub *subscriber) {
	ticker := time.NewTicker(hubPingInterval)
	defer ticker.Stop()
	for range ticker.C {
		h.mu.RLock()
		_, alive := h.subscribers[id]
		h.mu.RUnlock()
		if !alive {
			return
		}
		if err := sub.writeJSON(map[string]string{"type": "ping"}); err != nil {
			h.drop(id)
			return
		}
	}
}

func (h *Hub) drop(id string) {
	h.mu.Lock()
	sub, ok := h.subscribers[id]
	delete(h.subscribers, id)
	h.mu.Unlock()
	if ok {
		_ = sub.ws.Close()
	}
}

// Notify broadcasts an event to every subscriber. Zero subscribers is fine;
// failed subscribers are dropped without failing the broadcast.
func (h *Hub) Notify(_ context.Context, event Event) error {
	h.mu.RLock()
	targets := make(map[string]*subscriber, len(h.subscribers))
	for id, sub := range h.subscribers {
		targets[id] = sub
	}
	h.mu.RUnlock()

	for id, sub := range targets {
		if err := sub.writeJSON(event); err != nil {
			h.logger.Warn().Err(err).Str("subscriber", id).Msg("dropping unreachable subscriber")
			h.drop(id)
		}
	}
	return nil
}

// Close disconnects every subscriber and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	subs := h.subscribers
	h.subscribers = make(map[string]*subscriber)
	h.mu.Unlock()
	for _, sub := range subs {
		_ = sub.ws.Close()
	}
}

var _ Notifier = (*Hub)(nil)
