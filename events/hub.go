package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	hubWriteWait    = 10 * time.Second
	hubPingInterval = 30 * time.Second
	// hubSendBuffer is how far a slow subscriber may fall behind
	// before it is dropped.
	hubSendBuffer = 64
)

// Hub is a websocket emitter: every event is broadcast to all
// connected subscribers. Slow subscribers are disconnected rather than
// allowed to block the feed.
type Hub struct {
	upgrader    websocket.Upgrader
	logger      *slog.Logger
	mu          sync.Mutex
	subscribers map[*subscriber]bool
}

type subscriber struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger:      slog.Default().With(slog.String("component", "events.hub")),
		subscribers: make(map[*subscriber]bool),
	}
}

// Emit implements Emitter by broadcasting the event as a JSON text
// message.
func (h *Hub) Emit(event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subscribers {
		select {
		case sub.send <- data:
		default:
			delete(h.subscribers, sub)
			close(sub.send)
		}
	}
	return nil
}

// Handler upgrades the request and subscribes the connection to the
// feed until the peer disconnects.
func (h *Hub) Handler(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	sub := &subscriber{
		conn: conn,
		send: make(chan []byte, hubSendBuffer),
	}
	h.mu.Lock()
	h.subscribers[sub] = true
	h.mu.Unlock()

	go h.writePump(sub)
	h.readPump(sub)
}

// writePump delivers broadcast messages and keepalive pings to one
// subscriber.
func (h *Hub) writePump(sub *subscriber) {
	ticker := time.NewTicker(hubPingInterval)
	defer func() {
		ticker.Stop()
		sub.conn.Close()
	}()

	for {
		select {
		case message, ok := <-sub.send:
			sub.conn.SetWriteDeadline(time.Now().Add(hubWriteWait))
			if !ok {
				sub.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := sub.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			sub.conn.SetWriteDeadline(time.Now().Add(hubWriteWait))
			if err := sub.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards inbound messages and unsubscribes when the peer
// goes away. Subscriptions are read-only for the peer.
func (h *Hub) readPump(sub *subscriber) {
	defer h.unsubscribe(sub)
	sub.conn.SetReadLimit(512)
	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) unsubscribe(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subscribers[sub] {
		delete(h.subscribers, sub)
		close(sub.send)
	}
	sub.conn.Close()
}

// SubscriberCount reports the number of connected subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subscribers {
		delete(h.subscribers, sub)
		close(sub.send)
	}
}
