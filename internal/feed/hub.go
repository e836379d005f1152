// Package feed pushes live device events to owners over websockets.
package feed

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Event types
const (
	EventSighting  = "sighting"
	EventStatus    = "status"
	EventCompleted = "command_completed"
	EventPhoto     = "photo"
)

// Event is one message of the feed. Only clients authenticated as Owner
// receive it.
type Event struct {
	Type       string    `json:"type"`
	HardwareID string    `json:"hardwareId"`
	Owner      string    `json:"-"`
	Timestamp  time.Time `json:"timestamp"`
	Payload    any       `json:"payload,omitempty"`
}

// Hub maintains the set of active clients and routes events to their owners
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Events waiting to be delivered
	events chan Event

	// Register requests from the clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Closed when Run returns
	done chan struct{}

	// Mutex to protect clients map
	mu sync.RWMutex

	logger zerolog.Logger
}

// NewHub creates a new Hub
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		events:     make(chan Event, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[*Client]bool),
		logger:     logger.With().Str("component", "feed").Logger(),
	}
}

// Run starts the hub's main loop. It returns when ctx is cancelled, closing
// every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info().
				Str("client_id", client.id).
				Str("user", client.owner).
				Int("total_clients", total).
				Msg("client connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.logger.Info().
					Str("client_id", client.id).
					Int("total_clients", len(h.clients)).
					Msg("client disconnected")
			}
			h.mu.Unlock()

		case event := <-h.events:
			h.deliver(event)
		}
	}
}

// Publish queues an event without blocking. Events are dropped when the
// queue is full; the feed is advisory and owners can always re-read the
// sightings list.
func (h *Hub) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	select {
	case h.events <- event:
	default:
		h.logger.Warn().Str("type", event.Type).Msg("feed queue full, event dropped")
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// deliver sends event to each client owned by event.Owner
func (h *Hub) deliver(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Str("type", event.Type).Msg("failed to marshal event")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		if !client.Wants(event) {
			continue
		}

		select {
		case client.send <- data:
		default:
			// Client's send buffer is full, close and remove it
			close(client.send)
			delete(h.clients, client)
			h.logger.Warn().
				Str("client_id", client.id).
				Msg("client send buffer full, closing connection")
		}
	}
}
