package geo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dennisdiepolder/ghosttrack/internal/types"
	"github.com/rs/zerolog"
)

// Options controls one acquisition
type Options struct {
	EnableHighAccuracy bool
	// Timeout bounds each attempt
	Timeout time.Duration
	// MaxAge allows a cached fix no older than this to be returned
	MaxAge time.Duration
	// Retries is the total number of attempts
	Retries    int
	RetryDelay time.Duration
}

// DefaultOptions returns high accuracy, 10s per attempt, no caching and
// three attempts one second apart
func DefaultOptions() Options {
	return Options{
		EnableHighAccuracy: true,
		Timeout:            10 * time.Second,
		MaxAge:             0,
		Retries:            3,
		RetryDelay:         time.Second,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Timeout <= 0 {
		o.Timeout = d.Timeout
	}
	if o.Retries <= 0 {
		o.Retries = d.Retries
	}
	if o.RetryDelay < 0 {
		o.RetryDelay = 0
	}
	return o
}

// Probe wraps a Locator with retries and keeps the most recent fix
type Probe struct {
	locator Locator
	logger  zerolog.Logger

	mu   sync.Mutex
	last *types.Location
}

// NewProbe creates a Probe. A nil locator means the host has no
// location capability.
func NewProbe(locator Locator, logger zerolog.Logger) *Probe {
	return &Probe{
		locator: locator,
		logger:  logger.With().Str("component", "geo").Logger(),
	}
}

// Acquire returns a position fix. Permission denial fails immediately; any
// other failure is retried after RetryDelay until Retries attempts were
// made, after which the last error is returned wrapped in
// types.ErrLocationUnavailable.
func (p *Probe) Acquire(ctx context.Context, opts Options) (types.Location, error) {
	opts = opts.withDefaults()

	if p.locator == nil {
		return types.Location{}, fmt.Errorf("%w: %w", types.ErrLocationUnavailable, types.ErrCapabilityUnavailable)
	}

	if opts.MaxAge > 0 {
		if loc, ok := p.Last(); ok && time.Since(loc.CapturedAt) <= opts.MaxAge {
			return loc, nil
		}
	}

	req := Request{HighAccuracy: opts.EnableHighAccuracy, Timeout: opts.Timeout}

	var lastErr error
	for attempt := 1; attempt <= opts.Retries; attempt++ {
		loc, err := p.attempt(ctx, req)
		if err == nil {
			p.remember(loc)
			return loc, nil
		}

		if errors.Is(err, types.ErrPermissionDenied) {
			p.logger.Debug().Err(err).Msg("location permission denied")
			return types.Location{}, err
		}

		lastErr = err
		p.logger.Debug().
			Err(err).
			Int("attempt", attempt).
			Int("retries", opts.Retries).
			Msg("location attempt failed")

		if attempt == opts.Retries {
			break
		}

		select {
		case <-ctx.Done():
			return types.Location{}, fmt.Errorf("%w: %w", types.ErrLocationUnavailable, ctx.Err())
		case <-time.After(opts.RetryDelay):
		}
	}

	return types.Location{}, fmt.Errorf("%w after %d attempts: %w", types.ErrLocationUnavailable, opts.Retries, lastErr)
}

func (p *Probe) attempt(ctx context.Context, req Request) (types.Location, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, req.Timeout)
	defer cancel()

	loc, err := p.locator.CurrentPosition(attemptCtx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return types.Location{}, &PositionError{Code: CodeTimeout, Message: err.Error()}
		}
		return types.Location{}, err
	}
	if loc.CapturedAt.IsZero() {
		loc.CapturedAt = time.Now()
	}
	return loc, nil
}

func (p *Probe) remember(loc types.Location) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.last = &loc
}

// Last returns the most recent successful fix
func (p *Probe) Last() (types.Location, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last == nil {
		return types.Location{}, false
	}
	return *p.last, true
}
