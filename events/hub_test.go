package events

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dialHub(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(hub.Handler))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("failed to dial hub: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	waitForSubscribers(t, hub, 1)
	return conn
}

func waitForSubscribers(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.SubscriberCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d subscribers, got %d", want, hub.SubscriberCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHubBroadcastsEvents(t *testing.T) {
	hub := NewHub()
	defer hub.Close()
	conn := dialHub(t, hub)

	if err := hub.Emit(Event{
		AgentID:   "scout",
		SessionID: "sess-1",
		Type:      TypeStage,
		Message:   "phase scraping",
		Time:      time.Now().UTC(),
	}); err != nil {
		t.Fatalf("Emit failed: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read broadcast: %v", err)
	}

	var event Event
	if err := json.Unmarshal(raw, &event); err != nil {
		t.Fatalf("expected JSON event, got %q: %v", raw, err)
	}
	if event.AgentID != "scout" || event.Message != "phase scraping" {
		t.Errorf("unexpected event %+v", event)
	}
}

func TestHubTracksSubscribers(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	if hub.SubscriberCount() != 0 {
		t.Fatalf("expected no subscribers, got %d", hub.SubscriberCount())
	}

	conn := dialHub(t, hub)
	conn.Close()
	waitForSubscribers(t, hub, 0)
}

func TestHubEmitWithoutSubscribers(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	if err := hub.Emit(Event{AgentID: "curator", Type: TypeInfo}); err != nil {
		t.Fatalf("expected Emit to succeed with no subscribers, got %v", err)
	}
}
