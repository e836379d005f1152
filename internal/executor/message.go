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
	defaultMessage  = "This device has been reported stolen"
	defaultReappear = 5 * time.Second
)

var vibratePattern = []time.Duration{
	500 * time.Millisecond, 250 * time.Millisecond,
	500 * time.Millisecond, 250 * time.Millisecond,
	500 * time.Millisecond,
}

type messageData struct {
	Message string `json:"message"`
}

// Message shows the owner's text full-screen. Dismissing it only hides it
// until the reappear delay elapses.
type Message struct {
	display  Display
	vibrator Vibrator
	reappear time.Duration
	logger   zerolog.Logger

	base    context.Context
	stop    context.CancelFunc
	mu      sync.Mutex
	current context.CancelFunc
	wg      sync.WaitGroup
}

// NewMessage creates the executor. A zero reappear delay uses five seconds.
func NewMessage(display Display, vibrator Vibrator, reappear time.Duration, logger zerolog.Logger) *Message {
	if reappear <= 0 {
		reappear = defaultReappear
	}
	base, stop := context.WithCancel(context.Background())
	return &Message{
		display:  display,
		vibrator: vibrator,
		reappear: reappear,
		logger:   logger.With().Str("component", "message").Logger(),
		base:     base,
		stop:     stop,
	}
}

func (m *Message) Execute(ctx context.Context, _ string, cmd types.Command) types.Result {
	text := defaultMessage
	if len(cmd.Data) > 0 {
		var data messageData
		if err := json.Unmarshal(cmd.Data, &data); err == nil && data.Message != "" {
			text = data.Message
		}
	}

	if m.display == nil {
		return types.Failed(fmt.Errorf("message: %w", types.ErrCapabilityUnavailable))
	}

	showCtx, cancel := context.WithCancel(m.base)
	overlay, err := m.display.Open(showCtx)
	if err != nil {
		cancel()
		return types.Failed(fmt.Errorf("message: %w", err))
	}

	screen := Screen{
		Title:       "ATTENTION",
		Body:        text,
		Footer:      "This message was sent by the owner of this device. Press Enter to dismiss.",
		Background:  "#000000",
		Foreground:  "#ffffff",
		Progress:    -1,
		Dismissible: true,
	}
	if err := overlay.Render(screen); err != nil {
		cancel()
		overlay.Close()
		return types.Failed(fmt.Errorf("message: %w", err))
	}

	// A newer message replaces the one on screen.
	m.mu.Lock()
	if m.current != nil {
		m.current()
	}
	m.current = cancel
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.keepVisible(showCtx, overlay, screen)
	}()

	if m.vibrator != nil {
		if err := m.vibrator.Vibrate(vibratePattern); err != nil {
			m.logger.Debug().Err(err).Msg("vibration failed")
		}
	}

	return types.Result{Success: true, Message: text}
}

func (m *Message) keepVisible(ctx context.Context, overlay Overlay, screen Screen) {
	defer overlay.Close()

	hidden := screen
	hidden.Hidden = true

	for {
		select {
		case <-ctx.Done():
			return
		case <-overlay.Dismissed():
		}

		if err := overlay.Render(hidden); err != nil {
			m.logger.Debug().Err(err).Msg("failed to hide message")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(m.reappear):
		}

		if err := overlay.Render(screen); err != nil {
			m.logger.Debug().Err(err).Msg("failed to show message")
		}
	}
}

// Close removes any message on screen
func (m *Message) Close() {
	m.stop()
	m.wg.Wait()
}
