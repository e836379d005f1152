// Package fingerprint derives a stable identifier for the physical device
// from semi-static hardware and platform attributes.
package fingerprint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dennisdiepolder/ghosttrack/internal/localstore"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Identity is a device identifier
type Identity struct {
	ID string
	// Degraded is set when the ID is random rather than derived from the host
	Degraded bool
}

// Hasher digests serialised components into a hex string
type Hasher func(data []byte) (string, error)

// SHA256 is the default Hasher
func SHA256(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Option configures a Fingerprinter
type Option func(*Fingerprinter)

// WithHasher replaces the digest function
func WithHasher(h Hasher) Option {
	return func(f *Fingerprinter) { f.hash = h }
}

// WithRandom replaces the fallback identifier source
func WithRandom(r func() (string, error)) Option {
	return func(f *Fingerprinter) { f.random = r }
}

// Fingerprinter computes and caches the device identity
type Fingerprinter struct {
	env    Environment
	store  localstore.Store
	hash   Hasher
	random func() (string, error)
	logger zerolog.Logger
}

// New creates a Fingerprinter reading attributes from env and caching the
// result in store
func New(env Environment, store localstore.Store, logger zerolog.Logger, opts ...Option) *Fingerprinter {
	f := &Fingerprinter{
		env:    env,
		store:  store,
		hash:   SHA256,
		random: randomID,
		logger: logger.With().Str("component", "fingerprint").Logger(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func randomID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Identity returns the cached identity, computing it on first use
func (f *Fingerprinter) Identity(ctx context.Context) (Identity, error) {
	cached, err := f.store.Get(ctx, localstore.KeyFingerprint)
	if err == nil && cached != "" {
		_, degradedErr := f.store.Get(ctx, localstore.KeyFingerprintDegraded)
		return Identity{ID: cached, Degraded: degradedErr == nil}, nil
	}
	if err != nil && !errors.Is(err, localstore.ErrNotFound) {
		f.logger.Debug().Err(err).Msg("failed to read cached fingerprint")
	}
	return f.Compute(ctx)
}

// Compute derives the identity from the environment and persists it,
// replacing any cached value. Attributes that cannot be read are left out.
func (f *Fingerprinter) Compute(ctx context.Context) (Identity, error) {
	components := f.Collect()

	var ident Identity
	data, err := json.Marshal(components)
	if err == nil {
		ident.ID, err = f.hash(data)
	}
	if err != nil || ident.ID == "" {
		f.logger.Warn().Err(err).Msg("fingerprint digest failed, using random identifier")
		id, rerr := f.random()
		if rerr != nil {
			return Identity{}, fmt.Errorf("failed to generate fallback identifier: %w", rerr)
		}
		ident = Identity{ID: id, Degraded: true}
	}

	f.persist(ctx, ident)
	return ident, nil
}

func (f *Fingerprinter) persist(ctx context.Context, ident Identity) {
	if err := f.store.Put(ctx, localstore.KeyFingerprint, ident.ID); err != nil {
		f.logger.Debug().Err(err).Msg("failed to cache fingerprint")
		return
	}

	var err error
	if ident.Degraded {
		err = f.store.Put(ctx, localstore.KeyFingerprintDegraded, "1")
	} else {
		err = f.store.Delete(ctx, localstore.KeyFingerprintDegraded)
	}
	if err != nil {
		f.logger.Debug().Err(err).Msg("failed to cache fingerprint flag")
	}
}

// Collect reads every attribute the environment can provide
func (f *Fingerprinter) Collect() Components {
	var c Components
	if f.env == nil {
		return c
	}

	f.step("screen", func() error {
		s, err := f.env.Screen()
		if err != nil {
			return err
		}
		c.ScreenWidth, c.ScreenHeight = s.Width, s.Height
		c.ColorDepth, c.PixelDepth, c.PixelRatio = s.ColorDepth, s.PixelDepth, s.PixelRatio
		return nil
	})
	f.step("gpu", func() error {
		g, err := f.env.GPU()
		if err != nil {
			return err
		}
		c.GPUVendor, c.GPURenderer = g.Vendor, g.Renderer
		c.GLVersion, c.ShadingLanguage = g.Version, g.ShadingLanguage
		return nil
	})
	f.step("cpu", func() error {
		n, err := f.env.CPUCount()
		c.HardwareConcurrency = n
		return err
	})
	f.step("memory", func() error {
		m, err := f.env.DeviceMemory()
		c.DeviceMemory = m
		return err
	})
	f.step("platform", func() error {
		p, err := f.env.Platform()
		if err != nil {
			return err
		}
		c.Platform, c.UserAgent, c.Machine = p.Name, p.UserAgent, p.Machine
		return nil
	})
	f.step("connection", func() error {
		conn, err := f.env.ConnectionClass()
		c.Connection = conn
		return err
	})

	return c
}

// step runs one collector; failures and panics skip the attribute
func (f *Fingerprinter) step(name string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.Debug().Str("attribute", name).Interface("panic", r).Msg("attribute collector panicked")
		}
	}()
	if err := fn(); err != nil {
		f.logger.Debug().Err(err).Str("attribute", name).Msg("attribute unavailable")
	}
}
