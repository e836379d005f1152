package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dennisdiepolder/ghosttrack/internal/types"
)

// MemoryStore keeps everything in process memory. It is used when
// DynamoDB is disabled and in tests.
type MemoryStore struct {
	mu        sync.RWMutex
	devices   map[string]types.Device
	sightings map[string][]types.Sighting
	commands  map[string]*types.CommandRecord
	order     []string
	photos    map[string][]types.Photo
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		devices:   make(map[string]types.Device),
		sightings: make(map[string][]types.Sighting),
		commands:  make(map[string]*types.CommandRecord),
		photos:    make(map[string][]types.Photo),
	}
}

func (s *MemoryStore) GetDevice(_ context.Context, hardwareID string) (*types.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.devices[hardwareID]
	if !ok {
		return nil, ErrNotFound
	}
	return &d, nil
}

func (s *MemoryStore) PutDevice(_ context.Context, device types.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices[device.HardwareID] = device
	return nil
}

func (s *MemoryStore) TouchDevice(_ context.Context, hardwareID string, seen time.Time, loc *types.Location) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[hardwareID]
	if !ok {
		return ErrNotFound
	}
	d.LastSeen = &seen
	if loc != nil {
		l := *loc
		d.LastPosition = &l
	}
	s.devices[hardwareID] = d
	return nil
}

func (s *MemoryStore) ListDevices(_ context.Context, userID string) ([]types.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []types.Device
	for _, d := range s.devices {
		if d.UserID == userID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RegisteredAt.Before(out[j].RegisteredAt) })
	return out, nil
}

func (s *MemoryStore) AddSighting(_ context.Context, sighting types.Sighting) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sightings[sighting.HardwareID] = append(s.sightings[sighting.HardwareID], sighting)
	return nil
}

func (s *MemoryStore) ListSightings(_ context.Context, hardwareID string, limit int) ([]types.Sighting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.sightings[hardwareID]
	out := make([]types.Sighting, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, all[i])
	}
	return out, nil
}

func (s *MemoryStore) AddCommand(_ context.Context, cmd types.CommandRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.commands[cmd.CommandID]; !exists {
		s.order = append(s.order, cmd.CommandID)
	}
	s.commands[cmd.CommandID] = &cmd
	return nil
}

func (s *MemoryStore) PendingCommands(_ context.Context, hardwareID string) ([]types.CommandRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []types.CommandRecord
	for _, id := range s.order {
		cmd := s.commands[id]
		if cmd.HardwareID == hardwareID && !cmd.Executed {
			out = append(out, *cmd)
		}
	}
	return out, nil
}

func (s *MemoryStore) CompleteCommand(_ context.Context, commandID string, result types.Result, at time.Time) (*types.CommandRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cmd, ok := s.commands[commandID]
	if !ok {
		return nil, ErrNotFound
	}
	cmd.Executed = true
	cmd.ExecutedAt = &at
	cmd.Result = &result
	out := *cmd
	return &out, nil
}

func (s *MemoryStore) AddPhoto(_ context.Context, photo types.Photo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.photos[photo.HardwareID] = append(s.photos[photo.HardwareID], photo)
	return nil
}

func (s *MemoryStore) ListPhotos(_ context.Context, hardwareID string) ([]types.Photo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]types.Photo(nil), s.photos[hardwareID]...), nil
}
