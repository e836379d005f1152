package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/dennisdiepolder/ghosttrack/internal/feed"
	"github.com/dennisdiepolder/ghosttrack/internal/storage"
	"github.com/dennisdiepolder/ghosttrack/internal/types"
	"github.com/google/uuid"
)

// maxPhotoBody keeps an uploaded photo under the 400 KB DynamoDB item limit
const maxPhotoBody = 350 << 10

// checkinAck is the only answer a check-in ever gets, whatever happened
var checkinAck = map[string]int{"s": 1}

// CheckStatus answers the agent's status query. Unenrolled devices are
// unknown.
func (s *Server) CheckStatus(w http.ResponseWriter, r *http.Request) {
	hardwareID := r.URL.Query().Get("hardwareId")
	if hardwareID == "" {
		http.Error(w, "missing hardwareId", http.StatusBadRequest)
		return
	}

	device, err := s.store.GetDevice(r.Context(), hardwareID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeJSON(w, http.StatusOK, types.StatusResponse{Status: string(types.StatusUnknown)})
		return
	case err != nil:
		s.logger.Error().Err(err).Str("hardware_id", hardwareID).Msg("failed to load device")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, types.StatusResponse{Status: string(device.Status)})
}

// CheckIn records a covert check-in. Only stolen devices leave a sighting.
// The response never varies so the request reveals nothing to whoever holds
// the device.
func (s *Server) CheckIn(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt64(&s.checkinsReceived, 1)
	defer writeJSON(w, http.StatusOK, checkinAck)

	var body types.CheckIn
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.logger.Debug().Err(err).Msg("failed to decode check-in")
		return
	}
	if body.H == "" || (body.A == 0 && body.O == 0) {
		return
	}
	if !s.limiter.Allow(body.H) {
		atomic.AddInt64(&s.checkinsLimited, 1)
		s.logger.Debug().Str("hardware_id", body.H).Msg("check-in rate limited")
		return
	}

	ctx := r.Context()
	device, err := s.store.GetDevice(ctx, body.H)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Error().Err(err).Str("hardware_id", body.H).Msg("failed to load device")
		}
		return
	}
	if device.Status != types.StatusStolen {
		return
	}

	sighting := types.Sighting{
		HardwareID: body.H,
		Timestamp:  s.timestamp(),
		Latitude:   body.A,
		Longitude:  body.O,
		Accuracy:   body.C,
		Battery:    body.B,
		Network:    body.N,
		RemoteAddr: r.RemoteAddr,
		UserAgent:  r.UserAgent(),
	}
	if err := s.store.AddSighting(ctx, sighting); err != nil {
		s.logger.Error().Err(err).Str("hardware_id", body.H).Msg("failed to record sighting")
		return
	}
	atomic.AddInt64(&s.sightingsRecorded, 1)

	now := s.now().UTC()
	pos := &types.Location{Latitude: body.A, Longitude: body.O, Accuracy: body.C, CapturedAt: now}
	if err := s.store.TouchDevice(ctx, body.H, now, pos); err != nil {
		s.logger.Warn().Err(err).Str("hardware_id", body.H).Msg("failed to update last seen")
	}

	s.logger.Info().
		Str("hardware_id", body.H).
		Float64("latitude", body.A).
		Float64("longitude", body.O).
		Msg("stolen device sighted")
	s.publish(feed.Event{Type: feed.EventSighting, HardwareID: body.H, Owner: device.UserID, Payload: sighting})
}

// PendingCommands returns unexecuted commands oldest first
func (s *Server) PendingCommands(w http.ResponseWriter, r *http.Request) {
	hardwareID := r.URL.Query().Get("hardwareId")
	if hardwareID == "" {
		http.Error(w, "missing hardwareId", http.StatusBadRequest)
		return
	}

	records, err := s.store.PendingCommands(r.Context(), hardwareID)
	if err != nil {
		s.logger.Error().Err(err).Str("hardware_id", hardwareID).Msg("failed to load commands")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	resp := types.CommandsResponse{Commands: make([]types.Command, 0, len(records))}
	for _, rec := range records {
		resp.Commands = append(resp.Commands, rec.Wire())
	}
	writeJSON(w, http.StatusOK, resp)
}

// CommandExecuted stores the result of a command
func (s *Server) CommandExecuted(w http.ResponseWriter, r *http.Request) {
	var ack types.CommandAck
	if err := json.NewDecoder(r.Body).Decode(&ack); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if ack.CommandID == "" {
		http.Error(w, "missing commandId", http.StatusBadRequest)
		return
	}

	cmd, err := s.store.CompleteCommand(r.Context(), string(ack.CommandID), ack.Result, s.now().UTC())
	switch {
	case errors.Is(err, storage.ErrNotFound):
		http.Error(w, "unknown command", http.StatusNotFound)
		return
	case err != nil:
		s.logger.Error().Err(err).Str("command_id", string(ack.CommandID)).Msg("failed to complete command")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	s.logger.Info().
		Str("command_id", cmd.CommandID).
		Str("type", string(cmd.Type)).
		Bool("success", ack.Result.Success).
		Msg("command executed")
	s.publish(feed.Event{Type: feed.EventCompleted, HardwareID: cmd.HardwareID, Owner: cmd.UserID, Payload: cmd})
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// UploadPhoto stores a photo taken by the photo command
func (s *Server) UploadPhoto(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxPhotoBody)

	var upload types.PhotoUpload
	if err := json.NewDecoder(r.Body).Decode(&upload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "photo too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if upload.HardwareID == "" || upload.PhotoData == "" {
		http.Error(w, "missing required fields", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	photo := types.Photo{
		HardwareID: upload.HardwareID,
		PhotoID:    uuid.New().String(),
		Timestamp:  s.timestamp(),
		Data:       upload.PhotoData,
	}
	if err := s.store.AddPhoto(ctx, photo); err != nil {
		s.logger.Error().Err(err).Str("hardware_id", upload.HardwareID).Msg("failed to store photo")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if device, err := s.store.GetDevice(ctx, upload.HardwareID); err == nil {
		s.publish(feed.Event{
			Type:       feed.EventPhoto,
			HardwareID: upload.HardwareID,
			Owner:      device.UserID,
			Payload:    map[string]string{"id": photo.PhotoID, "timestamp": photo.Timestamp},
		})
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}
