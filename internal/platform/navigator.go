package platform

import (
	"context"
	"time"

	"github.com/dennisdiepolder/ghosttrack/internal/executor"
	"github.com/rs/zerolog"
)

// DefaultGrace leaves time for the wipe acknowledgement to be sent before
// the process terminates
const DefaultGrace = 3 * time.Second

// ExitNavigator shows the wiped screen and then terminates the agent
type ExitNavigator struct {
	display   executor.Display
	grace     time.Duration
	terminate func()
	logger    zerolog.Logger
}

func NewExitNavigator(display executor.Display, grace time.Duration, terminate func(), logger zerolog.Logger) *ExitNavigator {
	return &ExitNavigator{
		display:   display,
		grace:     grace,
		terminate: terminate,
		logger:    logger.With().Str("component", "navigator").Logger(),
	}
}

func (n *ExitNavigator) Redirect(ctx context.Context, target string) error {
	n.logger.Info().Str("target", target).Dur("grace", n.grace).Msg("device wiped, terminating")

	if n.display != nil {
		overlay, err := n.display.Open(ctx)
		if err != nil {
			return err
		}
		err = overlay.Render(executor.Screen{
			Title:      "Device wiped",
			Body:       "All data on this device has been erased.",
			Footer:     target,
			Background: "#000000",
			Foreground: "#ffffff",
			Progress:   -1,
		})
		if err != nil {
			return err
		}
	}

	if n.terminate != nil {
		time.AfterFunc(n.grace, n.terminate)
	}
	return nil
}
