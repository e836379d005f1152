// Package checkin sends location reports to the controller.
package checkin

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/dennisdiepolder/ghosttrack/internal/besteffort"
	"github.com/dennisdiepolder/ghosttrack/internal/geo"
	"github.com/dennisdiepolder/ghosttrack/internal/remote"
	"github.com/dennisdiepolder/ghosttrack/internal/types"
	"github.com/rs/zerolog"
)

const (
	covertPath = "__system__/device-checkin"
	overtPath  = "location"

	// DefaultOvertTimeout bounds the user-facing report
	DefaultOvertTimeout = 15 * time.Second
)

// Telemetry supplies optional readings attached to covert check-ins
type Telemetry interface {
	Battery(ctx context.Context) (*types.Battery, error)
	Network(ctx context.Context) (*types.NetworkInfo, error)
}

// Extras are the optional readings of a check-in
type Extras struct {
	Battery *types.Battery
	Network *types.NetworkInfo
}

// Reporter sends covert and overt location reports
type Reporter struct {
	client       *remote.Client
	policy       *besteffort.Policy
	telemetry    Telemetry
	overtTimeout time.Duration
	now          func() time.Time
	logger       zerolog.Logger
}

// NewReporter creates a Reporter. telemetry may be nil.
func NewReporter(client *remote.Client, policy *besteffort.Policy, telemetry Telemetry, logger zerolog.Logger) *Reporter {
	return &Reporter{
		client:       client,
		policy:       policy,
		telemetry:    telemetry,
		overtTimeout: DefaultOvertTimeout,
		now:          time.Now,
		logger:       logger.With().Str("component", "checkin").Logger(),
	}
}

// SetOvertTimeout overrides DefaultOvertTimeout
func (r *Reporter) SetOvertTimeout(d time.Duration) {
	if d > 0 {
		r.overtTimeout = d
	}
}

// ReportCovert posts the compact check-in. It has no timeout of its own and
// its errors go through the best-effort policy. When extras is nil the
// readings are gathered from the telemetry source.
func (r *Reporter) ReportCovert(ctx context.Context, hardwareID string, loc types.Location, extras *Extras) error {
	if extras == nil {
		extras = r.gather(ctx)
	}

	body := types.CheckIn{
		H: hardwareID,
		A: loc.Latitude,
		O: loc.Longitude,
		C: loc.Accuracy,
		T: r.now().UnixMilli(),
		B: extras.Battery,
		N: extras.Network,
	}

	if err := r.client.Post(ctx, covertPath, body, nil); err != nil {
		return r.policy.Handle("checkin", err)
	}
	r.logger.Debug().Msg("check-in delivered")
	return nil
}

func (r *Reporter) gather(ctx context.Context) *Extras {
	extras := &Extras{}
	if r.telemetry == nil {
		return extras
	}
	if b, err := r.telemetry.Battery(ctx); err == nil {
		extras.Battery = b
	}
	if n, err := r.telemetry.Network(ctx); err == nil {
		extras.Network = n
	}
	return extras
}

// ReportOvert posts the verbose location update of the visible tracking
// feature. Errors are always returned.
func (r *Reporter) ReportOvert(ctx context.Context, token string, loc types.Location) error {
	if token == "" {
		return fmt.Errorf("overt report: %w: no session token", types.ErrPermissionDenied)
	}

	ctx, cancel := context.WithTimeout(ctx, r.overtTimeout)
	defer cancel()

	captured := loc.CapturedAt
	if captured.IsZero() {
		captured = r.now()
	}

	err := r.client.Do(ctx, remote.Request{
		Method: http.MethodPost,
		Path:   overtPath,
		Query:  url.Values{"token": {token}},
		Body: types.LocationUpdate{
			Latitude:  loc.Latitude,
			Longitude: loc.Longitude,
			Accuracy:  loc.Accuracy,
			Timestamp: captured.UTC().Format(time.RFC3339),
		},
	}, nil)
	if err != nil {
		r.logger.Warn().Err(err).Msg("location update failed")
		return fmt.Errorf("overt report: %w", err)
	}
	return nil
}

// PositionSource acquires a position fix
type PositionSource interface {
	Acquire(ctx context.Context, opts geo.Options) (types.Location, error)
}

// Tracker runs the visible "locate me now" action: one fix, one overt
// report with the owner's session token
type Tracker struct {
	position PositionSource
	reporter *Reporter
	token    func(ctx context.Context) (string, error)
	opts     geo.Options
}

func NewTracker(position PositionSource, reporter *Reporter, token func(ctx context.Context) (string, error), opts geo.Options) *Tracker {
	return &Tracker{position: position, reporter: reporter, token: token, opts: opts}
}

// Track returns the reported position or the first error encountered
func (t *Tracker) Track(ctx context.Context) (types.Location, error) {
	token, err := t.token(ctx)
	if err != nil {
		return types.Location{}, err
	}
	loc, err := t.position.Acquire(ctx, t.opts)
	if err != nil {
		return types.Location{}, err
	}
	if err := t.reporter.ReportOvert(ctx, token, loc); err != nil {
		return types.Location{}, err
	}
	return loc, nil
}
