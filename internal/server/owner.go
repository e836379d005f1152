package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/dennisdiepolder/ghosttrack/internal/auth"
	"github.com/dennisdiepolder/ghosttrack/internal/feed"
	"github.com/dennisdiepolder/ghosttrack/internal/storage"
	"github.com/dennisdiepolder/ghosttrack/internal/types"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const (
	defaultMessage       = "Your device has been reported stolen"
	defaultAlarmDuration = 30
	defaultLocationLimit = 100
)

// RemoteActionRequest issues a command to one of the owner's devices
type RemoteActionRequest struct {
	HardwareID string            `json:"hardwareId"`
	Action     types.CommandType `json:"action"`
	Message    string            `json:"message,omitempty"`
	Duration   int               `json:"duration,omitempty"`
	Confirm    bool              `json:"confirm,omitempty"`
}

// DeviceInfoResponse summarises a device for its owner
type DeviceInfoResponse struct {
	Device       types.Device    `json:"device"`
	LastSighting *types.Sighting `json:"lastSighting,omitempty"`
	Photos       []PhotoSummary  `json:"photos"`
	Pending      []types.Command `json:"pendingCommands"`
}

// PhotoSummary lists a photo without its data
type PhotoSummary struct {
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
}

// RegisterDevice enrolls a device for the authenticated owner. A device
// already enrolled by someone else is treated as a sighting; if it was
// reported stolen the agent is told to switch to recovery mode.
func (s *Server) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.GetUserFromContext(r.Context())

	var reg types.Registration
	if err := json.NewDecoder(r.Body).Decode(&reg); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if reg.HardwareID == "" {
		http.Error(w, "missing hardwareId", http.StatusBadRequest)
		return
	}
	if reg.UserID != "" && reg.UserID != claims.UserID() {
		http.Error(w, "userId does not match token", http.StatusForbidden)
		return
	}

	ctx := r.Context()
	now := s.now().UTC()

	existing, err := s.store.GetDevice(ctx, reg.HardwareID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		device := types.Device{
			HardwareID:   reg.HardwareID,
			UserID:       claims.UserID(),
			Email:        firstNonEmpty(reg.Email, claims.Email),
			Model:        reg.DeviceInfo.Model,
			Status:       types.StatusMonitored,
			RegisteredAt: now,
			LastSeen:     &now,
			LastPosition: reg.DeviceInfo.LastKnownPosition,
		}
		if err := s.store.PutDevice(ctx, device); err != nil {
			s.internalError(w, err, "failed to register device")
			return
		}
		s.logger.Info().Str("hardware_id", reg.HardwareID).Str("user", device.UserID).Msg("device registered")
		writeJSON(w, http.StatusOK, types.RegistrationResponse{Status: "success", Message: "registered"})
		return
	case err != nil:
		s.internalError(w, err, "failed to load device")
		return
	}

	if existing.UserID == claims.UserID() {
		existing.LastSeen = &now
		existing.Email = firstNonEmpty(reg.Email, existing.Email)
		existing.Model = firstNonEmpty(reg.DeviceInfo.Model, existing.Model)
		if reg.DeviceInfo.LastKnownPosition != nil {
			existing.LastPosition = reg.DeviceInfo.LastKnownPosition
		}
		if err := s.store.PutDevice(ctx, *existing); err != nil {
			s.internalError(w, err, "failed to update device")
			return
		}
		writeJSON(w, http.StatusOK, types.RegistrationResponse{Status: "success", Message: "updated"})
		return
	}

	// Enrolled by someone else
	sighting := types.Sighting{
		HardwareID: reg.HardwareID,
		Timestamp:  s.timestamp(),
		RemoteAddr: r.RemoteAddr,
		UserAgent:  r.UserAgent(),
	}
	if pos := reg.DeviceInfo.LastKnownPosition; pos != nil {
		sighting.Latitude, sighting.Longitude, sighting.Accuracy = pos.Latitude, pos.Longitude, pos.Accuracy
	}
	if err := s.store.AddSighting(ctx, sighting); err != nil {
		s.logger.Error().Err(err).Str("hardware_id", reg.HardwareID).Msg("failed to record sighting")
	}
	if err := s.store.TouchDevice(ctx, reg.HardwareID, now, reg.DeviceInfo.LastKnownPosition); err != nil {
		s.logger.Warn().Err(err).Str("hardware_id", reg.HardwareID).Msg("failed to update last seen")
	}

	s.logger.Warn().
		Str("hardware_id", reg.HardwareID).
		Str("owner", existing.UserID).
		Str("user", claims.UserID()).
		Msg("device registration by another user")

	if existing.Status == types.StatusStolen {
		s.publish(feed.Event{Type: feed.EventSighting, HardwareID: reg.HardwareID, Owner: existing.UserID, Payload: sighting})
		writeJSON(w, http.StatusOK, types.RegistrationResponse{
			Status:  types.RegistrationRecoveryMode,
			Message: "This device has been reported stolen. Location tracking has been activated.",
		})
		return
	}
	writeJSON(w, http.StatusOK, types.RegistrationResponse{Status: "success", Message: "not registered"})
}

// ReportStolen marks one of the owner's devices stolen
func (s *Server) ReportStolen(w http.ResponseWriter, r *http.Request) {
	var req struct {
		HardwareID string `json:"hardwareId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.HardwareID == "" {
		http.Error(w, "missing hardwareId", http.StatusBadRequest)
		return
	}
	s.setStatus(w, r, req.HardwareID, types.StatusStolen)
}

// MarkRecovered ends recovery for a device
func (s *Server) MarkRecovered(w http.ResponseWriter, r *http.Request) {
	s.setStatus(w, r, chi.URLParam(r, "hardwareId"), types.StatusRecovered)
}

func (s *Server) setStatus(w http.ResponseWriter, r *http.Request, hardwareID string, status types.DeviceStatus) {
	device, ok := s.ownedDevice(w, r, hardwareID)
	if !ok {
		return
	}

	device.Status = status
	if status == types.StatusStolen {
		now := s.now().UTC()
		device.ReportedAt = &now
	}
	if err := s.store.PutDevice(r.Context(), *device); err != nil {
		s.internalError(w, err, "failed to update device")
		return
	}

	s.logger.Info().Str("hardware_id", hardwareID).Str("status", string(status)).Msg("device status changed")
	s.publish(feed.Event{Type: feed.EventStatus, HardwareID: hardwareID, Owner: device.UserID, Payload: map[string]string{"status": string(status)}})
	writeJSON(w, http.StatusOK, device)
}

// ListDevices returns the owner's devices
func (s *Server) ListDevices(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.GetUserFromContext(r.Context())

	devices, err := s.store.ListDevices(r.Context(), claims.UserID())
	if err != nil {
		s.internalError(w, err, "failed to list devices")
		return
	}
	if devices == nil {
		devices = []types.Device{}
	}
	writeJSON(w, http.StatusOK, map[string][]types.Device{"devices": devices})
}

// DeviceInfo returns a device with its latest sighting, photos and pending
// commands
func (s *Server) DeviceInfo(w http.ResponseWriter, r *http.Request) {
	device, ok := s.ownedDevice(w, r, r.URL.Query().Get("hardwareId"))
	if !ok {
		return
	}
	ctx := r.Context()

	resp := DeviceInfoResponse{Device: *device, Photos: []PhotoSummary{}, Pending: []types.Command{}}

	sightings, err := s.store.ListSightings(ctx, device.HardwareID, 1)
	if err != nil {
		s.internalError(w, err, "failed to load sightings")
		return
	}
	if len(sightings) > 0 {
		resp.LastSighting = &sightings[0]
	}

	photos, err := s.store.ListPhotos(ctx, device.HardwareID)
	if err != nil {
		s.internalError(w, err, "failed to load photos")
		return
	}
	for _, p := range photos {
		resp.Photos = append(resp.Photos, PhotoSummary{ID: p.PhotoID, Timestamp: p.Timestamp})
	}

	pending, err := s.store.PendingCommands(ctx, device.HardwareID)
	if err != nil {
		s.internalError(w, err, "failed to load commands")
		return
	}
	for _, c := range pending {
		resp.Pending = append(resp.Pending, c.Wire())
	}

	writeJSON(w, http.StatusOK, resp)
}

// Locations returns the sightings of a device, newest first
func (s *Server) Locations(w http.ResponseWriter, r *http.Request) {
	device, ok := s.ownedDevice(w, r, r.URL.Query().Get("hardwareId"))
	if !ok {
		return
	}

	limit := defaultLocationLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	sightings, err := s.store.ListSightings(r.Context(), device.HardwareID, limit)
	if err != nil {
		s.internalError(w, err, "failed to load sightings")
		return
	}
	if sightings == nil {
		sightings = []types.Sighting{}
	}
	writeJSON(w, http.StatusOK, map[string][]types.Sighting{"locations": sightings})
}

// RemoteAction queues a command for one of the owner's devices. Wipe
// requires confirm:true.
func (s *Server) RemoteAction(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.GetUserFromContext(r.Context())

	var req RemoteActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if req.HardwareID == "" || !req.Action.Valid() {
		http.Error(w, "missing hardwareId or invalid action", http.StatusBadRequest)
		return
	}

	data, err := commandData(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if _, ok := s.ownedDevice(w, r, req.HardwareID); !ok {
		return
	}

	cmd := types.CommandRecord{
		CommandID:  uuid.New().String(),
		HardwareID: req.HardwareID,
		UserID:     claims.UserID(),
		Type:       req.Action,
		Data:       data,
		IssuedAt:   s.now().UTC(),
	}
	if err := s.store.AddCommand(r.Context(), cmd); err != nil {
		s.internalError(w, err, "failed to queue command")
		return
	}

	s.logger.Info().
		Str("hardware_id", req.HardwareID).
		Str("command_id", cmd.CommandID).
		Str("type", string(req.Action)).
		Msg("command queued")
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "success",
		"commandId": cmd.CommandID,
		"message":   fmt.Sprintf("%s command sent to device", req.Action),
	})
}

// commandData builds the payload each executor expects
func commandData(req RemoteActionRequest) (string, error) {
	var payload any
	switch req.Action {
	case types.CommandMessage:
		payload = map[string]string{"message": firstNonEmpty(req.Message, defaultMessage)}
	case types.CommandAlarm:
		d := req.Duration
		if d <= 0 {
			d = defaultAlarmDuration
		}
		payload = map[string]int{"duration": d}
	case types.CommandWipe:
		if !req.Confirm {
			return "", fmt.Errorf("wipe requires confirm")
		}
		payload = map[string]bool{"confirmed": true}
	default:
		return "", nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ownedDevice loads hardwareID and checks that the caller owns it. It
// writes the error response itself.
func (s *Server) ownedDevice(w http.ResponseWriter, r *http.Request, hardwareID string) (*types.Device, bool) {
	claims, ok := auth.GetUserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return nil, false
	}
	if hardwareID == "" {
		http.Error(w, "missing hardwareId", http.StatusBadRequest)
		return nil, false
	}

	device, err := s.store.GetDevice(r.Context(), hardwareID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		http.Error(w, "device not found", http.StatusNotFound)
		return nil, false
	case err != nil:
		s.internalError(w, err, "failed to load device")
		return nil, false
	}

	if device.UserID != claims.UserID() {
		http.Error(w, "Not authorized to control this device", http.StatusForbidden)
		return nil, false
	}
	return device, true
}

func (s *Server) internalError(w http.ResponseWriter, err error, msg string) {
	s.logger.Error().Err(err).Msg(msg)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
