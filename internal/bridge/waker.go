package bridge

import (
	"context"
	"errors"

	"github.com/dennisdiepolder/ghosttrack/internal/checkin"
	"github.com/dennisdiepolder/ghosttrack/internal/geo"
	"github.com/dennisdiepolder/ghosttrack/internal/types"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// StatusSource reports whether a device is stolen
type StatusSource interface {
	Query(ctx context.Context, hardwareID string) (types.DeviceStatus, error)
}

// PositionSource acquires a position fix
type PositionSource interface {
	Acquire(ctx context.Context, opts geo.Options) (types.Location, error)
}

// CheckInSender delivers a covert check-in
type CheckInSender interface {
	ReportCovert(ctx context.Context, hardwareID string, loc types.Location, extras *checkin.Extras) error
}

// Outcome describes what a wake-up did
type Outcome struct {
	HardwareID   string
	Status       types.DeviceStatus
	Reported     bool
	UsedFallback bool
	Err          error
}

// Waker performs the standalone wake-up check
type Waker struct {
	bridge    *Bridge
	status    StatusSource
	position  PositionSource
	reporter  CheckInSender
	telemetry checkin.Telemetry
	opts      geo.Options
	logger    zerolog.Logger
}

func NewWaker(b *Bridge, status StatusSource, position PositionSource, reporter CheckInSender, telemetry checkin.Telemetry, opts geo.Options, logger zerolog.Logger) *Waker {
	return &Waker{
		bridge:    b,
		status:    status,
		position:  position,
		reporter:  reporter,
		telemetry: telemetry,
		opts:      opts,
		logger:    logger.With().Str("component", "waker").Logger(),
	}
}

// Wake checks the mirrored device and, when it is stolen, sends one
// check-in. Failures are logged and returned in the Outcome only.
func (w *Waker) Wake(ctx context.Context) Outcome {
	rec, err := w.bridge.Load(ctx)
	if err != nil {
		w.logger.Debug().Err(err).Msg("no device record")
		return Outcome{Status: types.StatusUnknown, Err: err}
	}
	out := Outcome{HardwareID: rec.HardwareID, Status: types.StatusUnknown}

	status, err := w.status.Query(ctx, rec.HardwareID)
	out.Status = status
	if err != nil {
		w.logger.Debug().Err(err).Msg("status check failed")
		out.Err = err
		return out
	}
	if status != types.StatusStolen {
		return out
	}

	var (
		loc    types.Location
		locErr error
		extras checkin.Extras
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		loc, locErr = w.position.Acquire(gctx, w.opts)
		return nil
	})
	if w.telemetry != nil {
		g.Go(func() error {
			if b, err := w.telemetry.Battery(gctx); err == nil {
				extras.Battery = b
			}
			return nil
		})
		g.Go(func() error {
			if n, err := w.telemetry.Network(gctx); err == nil {
				extras.Network = n
			}
			return nil
		})
	}
	_ = g.Wait()

	if locErr != nil {
		if rec.LastPosition == nil {
			w.logger.Debug().Err(locErr).Msg("no position available")
			out.Err = locErr
			return out
		}
		w.logger.Debug().Err(locErr).Msg("using mirrored position")
		loc = *rec.LastPosition
		out.UsedFallback = true
	} else if err := w.bridge.MirrorPosition(ctx, rec.HardwareID, loc); err != nil {
		w.logger.Debug().Err(err).Msg("failed to mirror position")
	}

	if err := w.reporter.ReportCovert(ctx, rec.HardwareID, loc, &extras); err != nil {
		w.logger.Debug().Err(err).Msg("wake check-in failed")
		out.Err = errors.Join(out.Err, err)
		return out
	}
	out.Reported = true
	return out
}
