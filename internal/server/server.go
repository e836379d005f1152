// Package server implements the controller backend polled by agents and
// used by device owners.
package server

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/dennisdiepolder/ghosttrack/internal/auth"
	"github.com/dennisdiepolder/ghosttrack/internal/config"
	"github.com/dennisdiepolder/ghosttrack/internal/feed"
	"github.com/dennisdiepolder/ghosttrack/internal/storage"
	"github.com/dennisdiepolder/ghosttrack/pkg/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// timestampLayout is fixed width so stored timestamps sort lexically
const timestampLayout = "2006-01-02T15:04:05.000Z"

// Server holds the handlers of the controller API
type Server struct {
	store   storage.Store
	hub     *feed.Hub
	limiter *deviceLimiter
	now     func() time.Time
	logger  zerolog.Logger

	checkinsReceived  int64
	sightingsRecorded int64
	checkinsLimited   int64
}

// New creates a Server. hub may be nil, in which case no live events are
// published.
func New(store storage.Store, hub *feed.Hub, cfg *config.Server, logger zerolog.Logger) *Server {
	return &Server{
		store:   store,
		hub:     hub,
		limiter: newDeviceLimiter(rate.Limit(cfg.CheckinRate), cfg.CheckinBurst),
		now:     time.Now,
		logger:  logger.With().Str("component", "server").Logger(),
	}
}

// Routes builds the router. Device endpoints are unauthenticated; owner
// endpoints require a bearer token checked by verifier.
func (s *Server) Routes(cfg *config.Server, verifier *auth.Verifier, feedHandler http.Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	r.Get("/health", HealthHandler)
	r.Get("/internal/stats", s.GetStats)

	r.Route("/api", func(r chi.Router) {
		// Device endpoints
		r.Get("/check-device-status", s.CheckStatus)
		r.Post("/__system__/device-checkin", s.CheckIn)
		r.Get("/device-commands", s.PendingCommands)
		r.Post("/device-command-executed", s.CommandExecuted)
		r.Post("/upload-photo", s.UploadPhoto)

		// Owner endpoints
		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(verifier, s.logger))
			r.Post("/register-device-antitheft", s.RegisterDevice)
			r.Post("/report-stolen", s.ReportStolen)
			r.Post("/devices/{hardwareId}/recovered", s.MarkRecovered)
			r.Get("/devices", s.ListDevices)
			r.Get("/device-info", s.DeviceInfo)
			r.Get("/stolen-device-locations", s.Locations)
			r.Post("/remote-action", s.RemoteAction)
			if feedHandler != nil {
				r.Get("/ws", feedHandler.ServeHTTP)
			}
		})
	})

	return r
}

// HealthHandler handles health check requests
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "ghosttrack-server"})
}

// GetStats returns check-in counters
func (s *Server) GetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int64{
		"checkins_received":  atomic.LoadInt64(&s.checkinsReceived),
		"sightings_recorded": atomic.LoadInt64(&s.sightingsRecorded),
		"checkins_limited":   atomic.LoadInt64(&s.checkinsLimited),
	})
}

func (s *Server) publish(event feed.Event) {
	if s.hub == nil || event.Owner == "" {
		return
	}
	event.Timestamp = s.now().UTC()
	s.hub.Publish(event)
}

func (s *Server) timestamp() string {
	return s.now().UTC().Format(timestampLayout)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
