// Package stealth runs the hidden tracking mode. A Controller stays dormant
// until the controller backend reports the device stolen, then reports its
// location and polls for commands on independent schedules.
package stealth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dennisdiepolder/ghosttrack/internal/checkin"
	"github.com/dennisdiepolder/ghosttrack/internal/geo"
	"github.com/dennisdiepolder/ghosttrack/internal/types"
	"github.com/rs/zerolog"
)

// State is the controller's mode
type State int

const (
	Dormant State = iota
	Checking
	Active
)

func (s State) String() string {
	switch s {
	case Dormant:
		return "dormant"
	case Checking:
		return "checking"
	case Active:
		return "active"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Event is a host signal that may warrant an early check
type Event int

const (
	EventVisible Event = iota
	EventOnline
)

func (e Event) String() string {
	if e == EventOnline {
		return "online"
	}
	return "visible"
}

// ParseEvent accepts "visible" and "online"
func ParseEvent(s string) (Event, error) {
	switch s {
	case "visible":
		return EventVisible, nil
	case "online":
		return EventOnline, nil
	}
	return 0, fmt.Errorf("unknown event %q", s)
}

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

// CommandRunner polls and executes pending commands
type CommandRunner interface {
	RunOnce(ctx context.Context, hardwareID string) (int, error)
}

// PositionMirror keeps the last fix for the wake path
type PositionMirror interface {
	MirrorPosition(ctx context.Context, hardwareID string, loc types.Location) error
}

// Config holds the controller's timings
type Config struct {
	StartupDelay   time.Duration
	ReportInterval time.Duration
	PollInterval   time.Duration
	Geo            geo.Options
}

// DefaultConfig returns a 3s startup delay, a 10 minute report interval and
// a 5 minute poll interval
func DefaultConfig() Config {
	return Config{
		StartupDelay:   3 * time.Second,
		ReportInterval: 10 * time.Minute,
		PollInterval:   5 * time.Minute,
		Geo:            geo.DefaultOptions(),
	}
}

// Deps are the collaborators driven by the controller. Mirror is optional.
type Deps struct {
	Status   StatusSource
	Position PositionSource
	Reporter CheckInSender
	Commands CommandRunner
	Mirror   PositionMirror
}

// Controller is the Dormant -> Checking -> Active state machine
type Controller struct {
	hardwareID string
	cfg        Config
	deps       Deps
	logger     zerolog.Logger

	location *Task
	poll     *Task

	mu    sync.Mutex
	state State
	base  context.Context

	wg sync.WaitGroup
}

func NewController(hardwareID string, cfg Config, deps Deps, logger zerolog.Logger) *Controller {
	c := &Controller{
		hardwareID: hardwareID,
		cfg:        cfg,
		deps:       deps,
		logger:     logger.With().Str("component", "stealth").Logger(),
		state:      Dormant,
		base:       context.Background(),
	}
	c.location = NewTask("location", cfg.ReportInterval, c.reportLocation, c.logger)
	c.poll = NewTask("commands", cfg.PollInterval, c.pollCommands, c.logger)
	return c
}

// State returns the current mode
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// HardwareID returns the identity the controller reports under
func (c *Controller) HardwareID() string {
	return c.hardwareID
}

// Start schedules the first check after the startup delay. ctx bounds the
// whole session: the delayed check and every task iteration.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	c.base = ctx
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.cfg.StartupDelay):
		}
		c.Check(ctx)
	}()
}

// Check queries the status once when dormant and activates if the device
// is stolen. Any other answer, including a failure, leaves it dormant.
func (c *Controller) Check(ctx context.Context) State {
	c.mu.Lock()
	if c.state != Dormant {
		state := c.state
		c.mu.Unlock()
		return state
	}
	c.state = Checking
	c.mu.Unlock()

	status, err := c.deps.Status.Query(ctx, c.hardwareID)
	if err != nil {
		c.logger.Debug().Err(err).Msg("status check failed")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil || status != types.StatusStolen {
		c.state = Dormant
		return c.state
	}

	c.logger.Info().Msg("device reported stolen, activating")
	c.state = Active
	c.location.Start(c.base)
	c.poll.Start(c.base)
	return c.state
}

// Notify handles a visibility or connectivity event. A dormant controller
// checks its status; an active one runs both loops once right away.
func (c *Controller) Notify(ctx context.Context, ev Event) State {
	c.logger.Debug().Stringer("event", ev).Msg("event received")

	switch c.State() {
	case Dormant:
		return c.Check(ctx)
	case Active:
		c.location.Trigger()
		c.poll.Trigger()
		return Active
	default:
		return Checking
	}
}

// Deactivate stops both loops and returns to dormant. Iterations already
// running complete with the session context.
func (c *Controller) Deactivate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Active {
		return
	}
	c.location.Stop()
	c.poll.Stop()
	c.state = Dormant
	c.logger.Info().Msg("stealth mode deactivated")
}

// Wait blocks until the startup check and all task iterations have
// finished. Call it after the session context is done or after Deactivate.
func (c *Controller) Wait() {
	c.wg.Wait()
	c.location.Stop()
	c.poll.Stop()
	c.location.Wait()
	c.poll.Wait()
}

func (c *Controller) reportLocation(ctx context.Context) {
	loc, err := c.deps.Position.Acquire(ctx, c.cfg.Geo)
	if err != nil {
		c.logger.Debug().Err(err).Msg("no position for check-in")
		return
	}

	if c.deps.Mirror != nil {
		if err := c.deps.Mirror.MirrorPosition(ctx, c.hardwareID, loc); err != nil {
			c.logger.Debug().Err(err).Msg("failed to mirror position")
		}
	}

	if err := c.deps.Reporter.ReportCovert(ctx, c.hardwareID, loc, nil); err != nil {
		c.logger.Debug().Err(err).Msg("check-in failed")
	}
}

func (c *Controller) pollCommands(ctx context.Context) {
	n, err := c.deps.Commands.RunOnce(ctx, c.hardwareID)
	if err != nil {
		c.logger.Debug().Err(err).Msg("command poll failed")
		return
	}
	if n > 0 {
		c.logger.Debug().Int("executed", n).Msg("commands executed")
	}
}
