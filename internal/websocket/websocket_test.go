package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"rollcall/internal/models"
)

func startHub(t *testing.T, greeting func() models.Event) (*Hub, *httptest.Server) {
	t.Helper()
	hub := New(greeting)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWs))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) models.Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var e models.Event
	if err := conn.ReadJSON(&e); err != nil {
		t.Fatalf("read: %v", err)
	}
	return e
}

func waitForClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for hub.Clients() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, have %d", n, hub.Clients())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNew_InitializesHub(t *testing.T) {
	hub := New(nil)
	if hub.clients == nil || hub.broadcast == nil || hub.register == nil || hub.unregister == nil {
		t.Fatal("expected hub channels and client map to be initialized")
	}
	if hub.Clients() != 0 {
		t.Errorf("expected no clients, got %d", hub.Clients())
	}
}

func TestHub_NotifyNeverBlocks(t *testing.T) {
	hub := New(nil) // not running, nothing drains the queue

	done := make(chan struct{})
	go func() {
		for i := 0; i < broadcastQueue*2; i++ {
			hub.Notify(models.Event{Type: models.EventDrawTick})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Error("Notify blocked on a full queue")
	}
}

func TestHub_GreetsAndBroadcasts(t *testing.T) {
	greeting := func() models.Event {
		return models.Event{Type: models.EventStateChanged, Payload: map[string]int{"round": 3}}
	}
	hub, srv := startHub(t, greeting)

	a := dial(t, srv)
	b := dial(t, srv)

	for _, conn := range []*websocket.Conn{a, b} {
		if e := readEvent(t, conn); e.Type != models.EventStateChanged {
			t.Errorf("expected greeting %q, got %q", models.EventStateChanged, e.Type)
		}
	}
	waitForClients(t, hub, 2)

	hub.Notify(models.Event{Type: models.EventDrawCompleted, Payload: map[string]interface{}{"round": 1}})
	for _, conn := range []*websocket.Conn{a, b} {
		e := readEvent(t, conn)
		if e.Type != models.EventDrawCompleted {
			t.Errorf("expected %q, got %q", models.EventDrawCompleted, e.Type)
		}
	}
}

func TestHub_ClientDisconnect(t *testing.T) {
	hub, srv := startHub(t, nil)
	conn := dial(t, srv)
	waitForClients(t, hub, 1)

	conn.Close()
	waitForClients(t, hub, 0)
}

func TestHub_RunStopsWithContext(t *testing.T) {
	hub := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Error("hub did not stop when context was cancelled")
	}
}
