// Package besteffort decides whether failures on background paths reach
// their callers. Covert reporting treats every failure as transient: it is
// logged at debug level, remembered for diagnostics, and dropped.
package besteffort

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const maxCaptured = 64

// Failure is a swallowed error
type Failure struct {
	Op  string
	Err error
	At  time.Time
}

// Policy routes errors from best-effort operations
type Policy struct {
	surface  bool
	logger   zerolog.Logger
	mu       sync.Mutex
	captured []Failure
}

// New creates a Policy. With surface set, Handle returns errors unchanged.
func New(logger zerolog.Logger, surface bool) *Policy {
	return &Policy{
		surface: surface,
		logger:  logger.With().Str("component", "besteffort").Logger(),
	}
}

// Handle records err for op and returns it only when the policy surfaces
// errors. A nil Policy swallows everything silently.
func (p *Policy) Handle(op string, err error) error {
	if err == nil || p == nil {
		return nil
	}

	p.mu.Lock()
	if len(p.captured) == maxCaptured {
		copy(p.captured, p.captured[1:])
		p.captured = p.captured[:maxCaptured-1]
	}
	p.captured = append(p.captured, Failure{Op: op, Err: err, At: time.Now()})
	p.mu.Unlock()

	p.logger.Debug().Err(err).Str("op", op).Msg("best-effort operation failed")

	if p.surface {
		return err
	}
	return nil
}

// Surfaces reports whether errors are returned to callers
func (p *Policy) Surfaces() bool {
	return p != nil && p.surface
}

// Captured returns a copy of the most recent swallowed failures, oldest first
func (p *Policy) Captured() []Failure {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Failure, len(p.captured))
	copy(out, p.captured)
	return out
}
