package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dennisdiepolder/ghosttrack/internal/localstore"
	"github.com/dennisdiepolder/ghosttrack/internal/types"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	wipeProgressStep = 5
	wipeStepDelay    = 200 * time.Millisecond
	wipeNotConfirmed = "Wipe not confirmed"
)

type wipeData struct {
	Confirmed bool `json:"confirmed"`
}

// Wipe erases every tracked local store after explicit confirmation and
// then hands off to the terminal screen, once per process
type Wipe struct {
	stores    []localstore.Clearable
	display   Display
	navigator Navigator
	target    string
	stepDelay time.Duration
	logger    zerolog.Logger

	redirect sync.Once
}

func NewWipe(stores []localstore.Clearable, display Display, navigator Navigator, target string, logger zerolog.Logger) *Wipe {
	return &Wipe{
		stores:    stores,
		display:   display,
		navigator: navigator,
		target:    target,
		stepDelay: wipeStepDelay,
		logger:    logger.With().Str("component", "wipe").Logger(),
	}
}

func (w *Wipe) Execute(ctx context.Context, _ string, cmd types.Command) types.Result {
	var data wipeData
	if len(cmd.Data) > 0 {
		if err := json.Unmarshal(cmd.Data, &data); err != nil {
			w.logger.Debug().Err(err).Msg("malformed wipe payload")
		}
	}

	if err := w.Run(ctx, data.Confirmed); err != nil {
		if errors.Is(err, types.ErrUnconfirmed) {
			return types.Result{Success: false, Error: wipeNotConfirmed}
		}
		return types.Failed(err)
	}
	return types.Result{Success: true}
}

// Run performs the wipe. Without confirmation it returns
// types.ErrUnconfirmed and touches nothing.
func (w *Wipe) Run(ctx context.Context, confirmed bool) error {
	if !confirmed {
		w.logger.Warn().Msg("wipe requested without confirmation")
		return types.ErrUnconfirmed
	}

	w.showProgress(ctx)

	var g errgroup.Group
	for _, store := range w.stores {
		g.Go(func() error {
			if err := store.Clear(ctx); err != nil {
				w.logger.Debug().Err(err).Str("store", store.Name()).Msg("failed to clear store")
				return fmt.Errorf("clear %s: %w", store.Name(), err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		w.logger.Warn().Err(err).Msg("wipe incomplete")
	}

	w.redirect.Do(func() {
		if w.navigator == nil {
			return
		}
		if err := w.navigator.Redirect(ctx, w.target); err != nil {
			w.logger.Debug().Err(err).Msg("redirect failed")
		}
	})
	return nil
}

func (w *Wipe) showProgress(ctx context.Context) {
	if w.display == nil {
		return
	}
	overlay, err := w.display.Open(ctx)
	if err != nil {
		w.logger.Debug().Err(err).Msg("wipe overlay unavailable")
		return
	}
	defer overlay.Close()

	for progress := 0; progress <= 100; progress += wipeProgressStep {
		err := overlay.Render(Screen{
			Title:      "Wiping device",
			Body:       fmt.Sprintf("Erasing data... %d%%", progress),
			Background: "#000000",
			Foreground: "#ff0000",
			Progress:   progress,
		})
		if err != nil {
			w.logger.Debug().Err(err).Msg("wipe render failed")
		}
		if progress == 100 {
			break
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(w.stepDelay):
		}
	}
}
