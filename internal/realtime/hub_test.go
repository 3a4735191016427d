package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shahram8708/Finvela/internal/invoice"
)

func mustEvent(t *testing.T, invoiceID int64, typ invoice.EventType) *invoice.Event {
	t.Helper()
	event, err := invoice.NewEvent(invoiceID, typ, map[string]any{"invoice_id": invoiceID})
	if err != nil {
		t.Fatalf("new event: %v", err)
	}
	return event
}

func TestClientMatches(t *testing.T) {
	ready := mustEvent(t, 1, invoice.EventRiskReady)
	started := mustEvent(t, 2, invoice.EventRiskStarted)

	tests := []struct {
		name  string
		sub   Subscription
		event *invoice.Event
		want  bool
	}{
		{"all events", Subscription{AllEvents: true}, ready, true},
		{"zero value receives everything", Subscription{}, ready, true},
		{"matching type", Subscription{EventTypes: []invoice.EventType{invoice.EventRiskReady}}, ready, true},
		{"non-matching type", Subscription{EventTypes: []invoice.EventType{invoice.EventRiskError}}, ready, false},
		{"matching invoice", Subscription{InvoiceIDs: []int64{1, 5}}, ready, true},
		{"non-matching invoice", Subscription{InvoiceIDs: []int64{5}}, ready, false},
		{"type and invoice both match", Subscription{
			EventTypes: []invoice.EventType{invoice.EventRiskStarted},
			InvoiceIDs: []int64{2},
		}, started, true},
		{"type matches but invoice does not", Subscription{
			EventTypes: []invoice.EventType{invoice.EventRiskStarted},
			InvoiceIDs: []int64{9},
		}, started, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Client{sub: tt.sub}
			if got := c.matches(tt.event); got != tt.want {
				t.Errorf("matches = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHub_BroadcastToWebSocketClient(t *testing.T) {
	hub := NewHub(slog.Default())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Wait for registration before broadcasting.
	deadline := time.After(2 * time.Second)
	for hub.Stats()["connectedClients"].(int) == 0 {
		select {
		case <-deadline:
			t.Fatal("client never registered")
		case <-time.After(10 * time.Millisecond):
		}
	}

	sent := mustEvent(t, 3, invoice.EventRiskReady)
	hub.Broadcast(sent)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, message, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var got invoice.Event
	if err := json.Unmarshal(message, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.ID != sent.ID || got.Type != invoice.EventRiskReady || got.InvoiceID != 3 {
		t.Errorf("got %+v, want the broadcast event", got)
	}
}

func TestHub_RejectsAfterShutdown(t *testing.T) {
	hub := NewHub(slog.Default())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	cancel()
	<-hub.done

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/ws/events", nil)
	hub.HandleWebSocket(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503 after shutdown", w.Code)
	}
}

// failingEventStore always errors on Append.
type failingEventStore struct{}

func (f *failingEventStore) Append(ctx context.Context, event *invoice.Event) error {
	return errors.New("store down")
}

func (f *failingEventStore) List(ctx context.Context, invoiceID int64, limit int) ([]*invoice.Event, error) {
	return nil, nil
}

func TestEventBridge_AppendsThenBroadcasts(t *testing.T) {
	hub := NewHub(slog.Default())
	inner := invoice.NewMemoryEventStore()
	bridge := NewEventBridge(inner, hub)

	event := mustEvent(t, 1, invoice.EventRiskStarted)
	if err := bridge.Append(context.Background(), event); err != nil {
		t.Fatalf("append: %v", err)
	}

	stored, err := bridge.List(context.Background(), 1, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(stored) != 1 || stored[0].ID != event.ID {
		t.Errorf("stored = %+v", stored)
	}

	// Broadcast happened: the event is queued in the hub channel even with
	// no Run loop draining it.
	select {
	case got := <-hub.broadcast:
		if got.ID != event.ID {
			t.Errorf("broadcast event id = %s, want %s", got.ID, event.ID)
		}
	default:
		t.Error("append did not broadcast")
	}
}

func TestEventBridge_NoBroadcastOnStoreFailure(t *testing.T) {
	hub := NewHub(slog.Default())
	bridge := NewEventBridge(&failingEventStore{}, hub)

	err := bridge.Append(context.Background(), mustEvent(t, 1, invoice.EventRiskStarted))
	if err == nil {
		t.Fatal("expected store error")
	}

	select {
	case <-hub.broadcast:
		t.Error("failed append must not broadcast")
	default:
	}
}
