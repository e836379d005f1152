// Package bridge keeps a durable copy of the device identity and last
// position so a separate wake process can report without the main agent.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dennisdiepolder/ghosttrack/internal/localstore"
	"github.com/dennisdiepolder/ghosttrack/internal/types"
	"github.com/rs/zerolog"
)

// Record is the mirrored device state
type Record struct {
	HardwareID   string          `json:"hardwareId"`
	UserID       string          `json:"userId,omitempty"`
	Email        string          `json:"email,omitempty"`
	Timestamp    int64           `json:"timestamp"`
	LastPosition *types.Location `json:"lastPosition,omitempty"`
}

// Bridge reads and writes the record in the vault store
type Bridge struct {
	vault  localstore.Store
	now    func() time.Time
	logger zerolog.Logger

	mu sync.Mutex
}

func New(vault localstore.Store, logger zerolog.Logger) *Bridge {
	return &Bridge{
		vault:  vault,
		now:    time.Now,
		logger: logger.With().Str("component", "bridge").Logger(),
	}
}

// Load returns the mirrored record or localstore.ErrNotFound
func (b *Bridge) Load(ctx context.Context) (Record, error) {
	var rec Record
	if err := localstore.GetJSON(ctx, b.vault, localstore.KeyDeviceRecord, &rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Save replaces the record, stamping it with the current time
func (b *Bridge) Save(ctx context.Context, rec Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.save(ctx, rec)
}

func (b *Bridge) save(ctx context.Context, rec Record) error {
	if rec.HardwareID == "" {
		return errors.New("bridge: record without hardware id")
	}
	rec.Timestamp = b.now().UnixMilli()
	if err := localstore.PutJSON(ctx, b.vault, localstore.KeyDeviceRecord, rec); err != nil {
		return fmt.Errorf("bridge: %w", err)
	}
	return nil
}

// update applies fn to the stored record, starting from an empty one when
// nothing has been mirrored yet
func (b *Bridge) update(ctx context.Context, fn func(*Record)) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec, err := b.Load(ctx)
	if err != nil && !errors.Is(err, localstore.ErrNotFound) {
		b.logger.Debug().Err(err).Msg("discarding unreadable record")
	}
	fn(&rec)
	return b.save(ctx, rec)
}

// MirrorIdentity records the hardware ID. A changed ID drops the owner
// fields, which belonged to the old identity.
func (b *Bridge) MirrorIdentity(ctx context.Context, hardwareID string) error {
	return b.update(ctx, func(rec *Record) {
		if rec.HardwareID != hardwareID {
			*rec = Record{HardwareID: hardwareID, LastPosition: rec.LastPosition}
		}
	})
}

// MirrorPosition records the most recent fix for hardwareID
func (b *Bridge) MirrorPosition(ctx context.Context, hardwareID string, loc types.Location) error {
	return b.update(ctx, func(rec *Record) {
		if rec.HardwareID != hardwareID {
			*rec = Record{HardwareID: hardwareID}
		}
		rec.LastPosition = &loc
	})
}
