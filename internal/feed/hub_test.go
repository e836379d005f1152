package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dennisdiepolder/ghosttrack/internal/auth"
	"github.com/dennisdiepolder/ghosttrack/internal/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNewHub(t *testing.T) {
	hub := NewHub(zerolog.Nop())

	if hub.clients == nil {
		t.Error("expected clients map to be initialized")
	}
	if hub.events == nil || hub.register == nil || hub.unregister == nil {
		t.Error("expected channels to be initialized")
	}
	if hub.ClientCount() != 0 {
		t.Errorf("expected 0 clients, got %d", hub.ClientCount())
	}
}

func TestClientWants(t *testing.T) {
	tests := []struct {
		name   string
		device string
		event  Event
		want   bool
	}{
		{"own device", "", Event{Owner: "u1", HardwareID: "hw"}, true},
		{"other owner", "", Event{Owner: "u2", HardwareID: "hw"}, false},
		{"no owner", "", Event{HardwareID: "hw"}, false},
		{"narrowed match", "hw", Event{Owner: "u1", HardwareID: "hw"}, true},
		{"narrowed other device", "hw", Event{Owner: "u1", HardwareID: "hw2"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Client{owner: "u1", device: tt.device}
			if got := c.Wants(tt.event); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestHubRoutesByOwner(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(zerolog.Nop())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	mine := &Client{id: "mine", hub: hub, send: make(chan []byte, 4), owner: "u1"}
	theirs := &Client{id: "theirs", hub: hub, send: make(chan []byte, 4), owner: "u2"}
	hub.register <- mine
	hub.register <- theirs

	hub.Publish(Event{Type: EventSighting, HardwareID: "hw", Owner: "u1"})

	select {
	case msg := <-mine.send:
		var got map[string]any
		json.Unmarshal(msg, &got)
		if got["type"] != EventSighting || got["hardwareId"] != "hw" {
			t.Errorf("unexpected message %s", msg)
		}
		if _, ok := got["Owner"]; ok {
			t.Error("owner must not be serialised")
		}
	case <-time.After(time.Second):
		t.Fatal("expected event for owner")
	}

	select {
	case msg := <-theirs.send:
		t.Errorf("unexpected message for other owner: %s", msg)
	case <-time.After(50 * time.Millisecond):
	}

	hub.unregister <- theirs
	waitFor(t, func() bool { return hub.ClientCount() == 1 })

	cancel()
	<-done
	if _, ok := <-mine.send; ok {
		t.Error("expected send channel closed on shutdown")
	}
}

func TestHubDropsSlowClient(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := NewHub(zerolog.Nop())
	go hub.Run(ctx)

	slow := &Client{id: "slow", hub: hub, send: make(chan []byte), owner: "u1"}
	hub.register <- slow

	hub.Publish(Event{Type: EventStatus, HardwareID: "hw", Owner: "u1"})
	waitFor(t, func() bool { return hub.ClientCount() == 0 })
}

func testConfig() *config.Server {
	return &config.Server{
		PongWait:       time.Minute,
		PingPeriod:     50 * time.Second,
		WriteWait:      time.Second,
		MaxMessageSize: 512,
	}
}

func TestHandlerStreamsEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := NewHub(zerolog.Nop())
	go hub.Run(ctx)

	handler := NewHandler(hub, testConfig(), zerolog.Nop())
	withUser := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := &auth.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u1"}}
		handler.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), claims)))
	})
	server := httptest.NewServer(withUser)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?hardwareId=hw"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	waitFor(t, func() bool { return hub.ClientCount() == 1 })

	hub.Publish(Event{Type: EventSighting, HardwareID: "other", Owner: "u1"})
	hub.Publish(Event{Type: EventSighting, HardwareID: "hw", Owner: "u1", Payload: map[string]float64{"latitude": 1.5}})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got struct {
		Type       string             `json:"type"`
		HardwareID string             `json:"hardwareId"`
		Payload    map[string]float64 `json:"payload"`
	}
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if got.HardwareID != "hw" || got.Payload["latitude"] != 1.5 {
		t.Errorf("unexpected event %+v", got)
	}
}

func TestHandlerRequiresUser(t *testing.T) {
	handler := NewHandler(NewHub(zerolog.Nop()), testConfig(), zerolog.Nop())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestHandlerChecksOrigin(t *testing.T) {
	cfg := testConfig()
	cfg.AllowedOrigins = []string{"https://owners.example.com"}
	h := NewHandler(NewHub(zerolog.Nop()), cfg, zerolog.Nop())

	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"https://owners.example.com", true},
		{"http://example.com", true}, // same host as the request
		{"https://evil.com", false},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "http://example.com/ws", nil)
		if tt.origin != "" {
			req.Header.Set("Origin", tt.origin)
		}
		if got := h.upgrader.CheckOrigin(req); got != tt.want {
			t.Errorf("origin %q: expected %v, got %v", tt.origin, tt.want, got)
		}
	}
}
