// Package enroll registers the device with its owner's account.
package enroll

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dennisdiepolder/ghosttrack/internal/bridge"
	"github.com/dennisdiepolder/ghosttrack/internal/fingerprint"
	"github.com/dennisdiepolder/ghosttrack/internal/localstore"
	"github.com/dennisdiepolder/ghosttrack/internal/remote"
	"github.com/dennisdiepolder/ghosttrack/internal/stealth"
	"github.com/dennisdiepolder/ghosttrack/internal/types"
	"github.com/rs/zerolog"
)

const registerPath = "register-device-antitheft"

// IdentitySource yields the device identity
type IdentitySource interface {
	Identity(ctx context.Context) (fingerprint.Identity, error)
}

// Checker runs an immediate status check
type Checker interface {
	Check(ctx context.Context) stealth.State
}

// Request carries the owner's session and the device description
type Request struct {
	Token    string
	UserID   string
	Email    string
	Model    string
	Position *types.Location
}

// Enroller performs device registration
type Enroller struct {
	client   *remote.Client
	identity IdentitySource
	prefs    localstore.Store
	bridge   *bridge.Bridge
	checker  Checker
	now      func() time.Time
	logger   zerolog.Logger
}

// New creates an Enroller. checker may be nil when no controller runs in
// this process.
func New(client *remote.Client, identity IdentitySource, prefs localstore.Store, b *bridge.Bridge, checker Checker, logger zerolog.Logger) *Enroller {
	return &Enroller{
		client:   client,
		identity: identity,
		prefs:    prefs,
		bridge:   b,
		checker:  checker,
		now:      time.Now,
		logger:   logger.With().Str("component", "enroll").Logger(),
	}
}

// Register enrolls the device. On success the session is kept in the
// preferences store and the owner is mirrored into the bridge record. A
// stolen_recovery_mode answer triggers an immediate status check.
func (e *Enroller) Register(ctx context.Context, req Request) (types.RegistrationResponse, error) {
	if req.Token == "" {
		return types.RegistrationResponse{}, fmt.Errorf("register: %w: no session token", types.ErrPermissionDenied)
	}
	if req.UserID == "" || req.Email == "" {
		return types.RegistrationResponse{}, errors.New("register: user id and email are required")
	}

	ident, err := e.identity.Identity(ctx)
	if err != nil {
		return types.RegistrationResponse{}, fmt.Errorf("register: %w", err)
	}

	body := types.Registration{
		HardwareID: ident.ID,
		UserID:     req.UserID,
		Email:      req.Email,
		DeviceInfo: types.DeviceInfo{
			Model:             req.Model,
			LastKnownPosition: req.Position,
			RegisteredAt:      e.now().UTC(),
		},
	}

	var resp types.RegistrationResponse
	err = e.client.Do(ctx, remote.Request{
		Method: http.MethodPost,
		Path:   registerPath,
		Body:   body,
		Bearer: req.Token,
	}, &resp)
	if err != nil {
		var statusErr *remote.StatusError
		if errors.As(err, &statusErr) && (statusErr.Code == http.StatusUnauthorized || statusErr.Code == http.StatusForbidden) {
			return types.RegistrationResponse{}, fmt.Errorf("register: %w: %w", types.ErrPermissionDenied, err)
		}
		return types.RegistrationResponse{}, fmt.Errorf("register: %w", err)
	}

	e.remember(ctx, req)

	rec := bridge.Record{HardwareID: ident.ID, UserID: req.UserID, Email: req.Email, LastPosition: req.Position}
	if err := e.bridge.Save(ctx, rec); err != nil {
		e.logger.Warn().Err(err).Msg("failed to mirror registration")
	}

	e.logger.Info().
		Str("hardware_id", ident.ID).
		Bool("degraded", ident.Degraded).
		Str("status", resp.Status).
		Msg("device registered")

	if resp.Status == types.RegistrationRecoveryMode && e.checker != nil {
		e.logger.Warn().Msg("registration answered with recovery mode, checking status")
		e.checker.Check(ctx)
	}
	return resp, nil
}

func (e *Enroller) remember(ctx context.Context, req Request) {
	for key, value := range map[string]string{
		localstore.KeyToken:  req.Token,
		localstore.KeyUserID: req.UserID,
		localstore.KeyEmail:  req.Email,
	} {
		if err := e.prefs.Put(ctx, key, value); err != nil {
			e.logger.Warn().Err(err).Str("key", key).Msg("failed to store session")
		}
	}
}

// Token returns the stored session token, if any
func Token(ctx context.Context, prefs localstore.Store) (string, error) {
	token, err := prefs.Get(ctx, localstore.KeyToken)
	if errors.Is(err, localstore.ErrNotFound) {
		return "", fmt.Errorf("%w: device not registered", types.ErrPermissionDenied)
	}
	return token, err
}
