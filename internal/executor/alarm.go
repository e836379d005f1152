package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/dennisdiepolder/ghosttrack/internal/types"
	"github.com/rs/zerolog"
)

const (
	defaultAlarmSeconds = 30
	alarmFlash          = 250 * time.Millisecond
	alarmText           = "THIS DEVICE HAS BEEN REPORTED STOLEN"
)

type alarmData struct {
	Duration int `json:"duration"`
}

// Alarm plays the siren and flashes a red/black overlay for the requested
// number of seconds. The user cannot dismiss it early.
type Alarm struct {
	speaker Speaker
	display Display
	flash   time.Duration
	logger  zerolog.Logger

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewAlarm(speaker Speaker, display Display, logger zerolog.Logger) *Alarm {
	base, cancel := context.WithCancel(context.Background())
	return &Alarm{
		speaker: speaker,
		display: display,
		flash:   alarmFlash,
		logger:  logger.With().Str("component", "alarm").Logger(),
		base:    base,
		cancel:  cancel,
	}
}

// Execute starts the alarm and returns immediately
func (a *Alarm) Execute(ctx context.Context, _ string, cmd types.Command) types.Result {
	seconds := defaultAlarmSeconds
	if len(cmd.Data) > 0 {
		var data alarmData
		if err := json.Unmarshal(cmd.Data, &data); err == nil && data.Duration > 0 {
			seconds = data.Duration
		}
	}

	if a.speaker == nil && a.display == nil {
		return types.Failed(fmt.Errorf("alarm: %w", types.ErrCapabilityUnavailable))
	}

	runCtx, cancel := context.WithTimeout(a.base, time.Duration(seconds)*time.Second)

	var overlay Overlay
	if a.display != nil {
		var err error
		overlay, err = a.display.Open(runCtx)
		if err != nil {
			a.logger.Debug().Err(err).Msg("alarm overlay unavailable")
			if a.speaker == nil {
				cancel()
				return types.Failed(fmt.Errorf("alarm: %w", err))
			}
		}
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer cancel()

		var wg sync.WaitGroup
		if overlay != nil {
			wg.Add(1)
			go func() {
				defer wg.Done()
				a.flashOverlay(runCtx, overlay)
			}()
		}
		if a.speaker != nil {
			wg.Add(1)
			go func() {
				defer wg.Done()
				siren := NewSiren(time.Duration(seconds) * time.Second)
				if err := a.speaker.Play(runCtx, siren, SirenFormat); err != nil && runCtx.Err() == nil {
					a.logger.Debug().Err(err).Msg("siren playback failed")
				}
			}()
		}
		wg.Wait()
		a.logger.Debug().Msg("alarm finished")
	}()

	return types.Result{Success: true, Duration: seconds}
}

func (a *Alarm) flashOverlay(ctx context.Context, overlay Overlay) {
	defer overlay.Close()

	ticker := time.NewTicker(a.flash)
	defer ticker.Stop()

	red := true
	for {
		bg, fg := "#000000", "#ff0000"
		if red {
			bg, fg = "#ff0000", "#ffffff"
		}
		if err := overlay.Render(Screen{Title: "!", Body: alarmText, Background: bg, Foreground: fg, Progress: -1}); err != nil {
			a.logger.Debug().Err(err).Msg("alarm render failed")
		}
		red = !red

		select {
		case <-ctx.Done():
			return
		case <-overlay.Dismissed():
			// Ignored while the alarm runs.
		case <-ticker.C:
		}
	}
}

// Close stops running alarms and waits for them to finish
func (a *Alarm) Close() {
	a.cancel()
	a.wg.Wait()
}
