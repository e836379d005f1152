package feed

import (
	"net/http"
	"net/url"

	"github.com/dennisdiepolder/ghosttrack/internal/auth"
	"github.com/dennisdiepolder/ghosttrack/internal/config"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Handler upgrades authenticated owners to a websocket feed
type Handler struct {
	hub      *Hub
	config   *config.Server
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

// NewHandler creates a new websocket handler. Browsers may only connect from
// the configured dashboard origins.
func NewHandler(hub *Hub, cfg *config.Server, logger zerolog.Logger) *Handler {
	allowed := make(map[string]bool, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		allowed[o] = true
	}

	return &Handler{
		hub:    hub,
		config: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				if u, err := url.Parse(origin); err == nil && u.Host == r.Host {
					return true
				}
				return allowed[origin]
			},
		},
		logger: logger.With().Str("component", "feed").Logger(),
	}
}

// ServeHTTP handles websocket upgrade requests. The optional hardwareId
// query parameter narrows the feed to one device.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.GetUserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to upgrade connection")
		return
	}

	client := NewClient(h.hub, conn, h.config, h.logger, claims.UserID(), r.URL.Query().Get("hardwareId"))
	select {
	case h.hub.register <- client:
	case <-h.hub.done:
		conn.Close()
		return
	}
	client.Start()
}
