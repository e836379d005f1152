// Package storage persists the controller backend's devices, sightings,
// commands and photos.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/dennisdiepolder/ghosttrack/internal/types"
	"github.com/rs/zerolog"
)

// ErrNotFound is returned when a device or command does not exist
var ErrNotFound = errors.New("not found")

// Store defines the storage interface
type Store interface {
	GetDevice(ctx context.Context, hardwareID string) (*types.Device, error)
	PutDevice(ctx context.Context, device types.Device) error
	ListDevices(ctx context.Context, userID string) ([]types.Device, error)
	// TouchDevice sets LastSeen, and LastPosition when loc is not nil,
	// leaving every other field as stored
	TouchDevice(ctx context.Context, hardwareID string, seen time.Time, loc *types.Location) error

	// AddSighting records a check-in; ListSightings returns newest first
	AddSighting(ctx context.Context, sighting types.Sighting) error
	ListSightings(ctx context.Context, hardwareID string, limit int) ([]types.Sighting, error)

	// PendingCommands returns unexecuted commands oldest first
	AddCommand(ctx context.Context, cmd types.CommandRecord) error
	PendingCommands(ctx context.Context, hardwareID string) ([]types.CommandRecord, error)
	CompleteCommand(ctx context.Context, commandID string, result types.Result, at time.Time) (*types.CommandRecord, error)

	AddPhoto(ctx context.Context, photo types.Photo) error
	ListPhotos(ctx context.Context, hardwareID string) ([]types.Photo, error)
}

// NewStore creates the appropriate store based on configuration
func NewStore(ctx context.Context, logger zerolog.Logger) (Store, error) {
	cfg := LoadDynamoConfig()

	switch cfg.Mode {
	case DynamoModeLocal, DynamoModeAWS:
		return NewDynamoDBStore(ctx, cfg, logger)
	default:
		logger.Info().Msg("DynamoDB disabled (DYNAMO_MODE=none), using in-memory store")
		return NewMemoryStore(), nil
	}
}
