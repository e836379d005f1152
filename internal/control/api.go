// Package control serves the agent's loopback API used by the overt app
// and by the ghosttrack-agent subcommands.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/dennisdiepolder/ghosttrack/internal/enroll"
	"github.com/dennisdiepolder/ghosttrack/internal/fingerprint"
	"github.com/dennisdiepolder/ghosttrack/internal/stealth"
	"github.com/dennisdiepolder/ghosttrack/internal/types"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// Controller is the part of the stealth controller exposed locally
type Controller interface {
	State() stealth.State
	Notify(ctx context.Context, ev stealth.Event) stealth.State
}

// Tracker performs one overt location report
type Tracker interface {
	Track(ctx context.Context) (types.Location, error)
}

// Registrar enrolls the device
type Registrar interface {
	Register(ctx context.Context, req enroll.Request) (types.RegistrationResponse, error)
}

// IdentitySource yields the device identity
type IdentitySource interface {
	Identity(ctx context.Context) (fingerprint.Identity, error)
}

// StatusResponse is returned by /status
type StatusResponse struct {
	State      string `json:"state"`
	HardwareID string `json:"hardwareId"`
	Degraded   bool   `json:"degraded"`
}

// RegisterRequest is the body of /register
type RegisterRequest struct {
	Token  string `json:"token"`
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Model  string `json:"model,omitempty"`
}

// API provides the local HTTP control interface
type API struct {
	controller Controller
	identity   IdentitySource
	tracker    Tracker
	registrar  Registrar
	logger     zerolog.Logger
}

// NewAPI creates a new control API
func NewAPI(logger zerolog.Logger) *API {
	return &API{
		logger: logger.With().Str("component", "control").Logger(),
	}
}

// SetHandlers sets the components the endpoints drive. Any of them may be
// nil, in which case the matching endpoints answer 503.
func (api *API) SetHandlers(controller Controller, identity IdentitySource, tracker Tracker, registrar Registrar) {
	api.controller = controller
	api.identity = identity
	api.tracker = tracker
	api.registrar = registrar
}

// SetupRoutes configures HTTP routes
func (api *API) SetupRoutes(router *mux.Router) {
	router.HandleFunc("/health", api.healthHandler).Methods("GET")
	router.HandleFunc("/status", api.statusHandler).Methods("GET")
	router.HandleFunc("/identity", api.identityHandler).Methods("GET")
	router.HandleFunc("/events/{event}", api.eventHandler).Methods("POST")
	router.HandleFunc("/track", api.trackHandler).Methods("POST")
	router.HandleFunc("/register", api.registerHandler).Methods("POST")
}

// Start serves the API on addr until ctx is done
func (api *API) Start(ctx context.Context, addr string) error {
	router := mux.NewRouter()
	api.SetupRoutes(router)

	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		api.logger.Info().Str("addr", addr).Msg("control API listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// healthHandler returns service health
func (api *API) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// statusHandler returns the controller state and identity
func (api *API) statusHandler(w http.ResponseWriter, r *http.Request) {
	if api.controller == nil || api.identity == nil {
		http.Error(w, "controller not running", http.StatusServiceUnavailable)
		return
	}
	ident, err := api.identity.Identity(r.Context())
	if err != nil {
		api.logger.Error().Err(err).Msg("failed to read identity")
		http.Error(w, "identity unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{
		State:      api.controller.State().String(),
		HardwareID: ident.ID,
		Degraded:   ident.Degraded,
	})
}

// identityHandler returns the device fingerprint
func (api *API) identityHandler(w http.ResponseWriter, r *http.Request) {
	if api.identity == nil {
		http.Error(w, "identity not configured", http.StatusServiceUnavailable)
		return
	}
	ident, err := api.identity.Identity(r.Context())
	if err != nil {
		api.logger.Error().Err(err).Msg("failed to read identity")
		http.Error(w, "identity unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"hardwareId": ident.ID,
		"degraded":   ident.Degraded,
	})
}

// eventHandler forwards a visibility or connectivity event
func (api *API) eventHandler(w http.ResponseWriter, r *http.Request) {
	if api.controller == nil {
		http.Error(w, "controller not running", http.StatusServiceUnavailable)
		return
	}
	ev, err := stealth.ParseEvent(mux.Vars(r)["event"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// The check outlives the request; the caller only learns the state.
	state := api.controller.Notify(context.WithoutCancel(r.Context()), ev)
	writeJSON(w, http.StatusOK, map[string]string{
		"event": ev.String(),
		"state": state.String(),
	})
}

// trackHandler runs one overt location report
func (api *API) trackHandler(w http.ResponseWriter, r *http.Request) {
	if api.tracker == nil {
		http.Error(w, "tracking not configured", http.StatusServiceUnavailable)
		return
	}
	loc, err := api.tracker.Track(r.Context())
	if err != nil {
		api.logger.Warn().Err(err).Msg("track failed")
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, loc)
}

// registerHandler enrolls the device with the given session
func (api *API) registerHandler(w http.ResponseWriter, r *http.Request) {
	if api.registrar == nil {
		http.Error(w, "registration not configured", http.StatusServiceUnavailable)
		return
	}
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	resp, err := api.registrar.Register(r.Context(), enroll.Request{
		Token:  req.Token,
		UserID: req.UserID,
		Email:  req.Email,
		Model:  req.Model,
	})
	if err != nil {
		api.logger.Warn().Err(err).Msg("registration failed")
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, types.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, types.ErrLocationUnavailable), errors.Is(err, types.ErrCapabilityUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, types.ErrNetworkFailure), errors.Is(err, context.DeadlineExceeded):
		return http.StatusBadGateway
	default:
		return http.StatusBadRequest
	}
}
