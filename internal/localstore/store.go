// Package localstore holds the agent's on-device state: a preferences
// store, a durable vault, the HTTP cookie jar and the asset cache. Every
// piece implements Clearable so a wipe can erase it.
package localstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Well-known keys
const (
	KeyFingerprint         = "hwFingerprint"
	KeyFingerprintDegraded = "hwFingerprintDegraded"
	KeyDeviceRecord        = "deviceInfo"
	KeyToken               = "token"
	KeyUserID              = "userId"
	KeyEmail               = "userEmail"
)

// ErrNotFound is returned by Get for missing keys
var ErrNotFound = errors.New("key not found")

// Clearable is local state that a wipe erases
type Clearable interface {
	Name() string
	Clear(ctx context.Context) error
}

// Store is a string key-value store
type Store interface {
	Clearable
	Get(ctx context.Context, key string) (string, error)
	Put(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// GetJSON decodes the value stored under key into v
func GetJSON(ctx context.Context, s Store, key string, v any) error {
	raw, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return nil
}

// PutJSON stores v under key as JSON
func PutJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return s.Put(ctx, key, string(data))
}
