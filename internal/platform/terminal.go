// Package platform adapts the host machine to the capability interfaces the
// executors drive: a terminal overlay, command-line audio and camera tools,
// sysfs telemetry and the post-wipe hand-off.
package platform

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dennisdiepolder/ghosttrack/internal/executor"
)

const (
	clearScreen   = "\x1b[2J\x1b[H"
	defaultWidth  = 72
	progressWidth = 40
)

// Terminal renders overlays as full-width styled blocks on a terminal. A
// line read from in counts as a dismissal of whatever is on screen.
type Terminal struct {
	out   io.Writer
	in    io.Reader
	width int

	mu       sync.Mutex
	readOnce sync.Once
	enter    chan struct{}
}

// NewTerminal creates a terminal display. in may be nil, in which case
// overlays can never be dismissed.
func NewTerminal(out io.Writer, in io.Reader) *Terminal {
	return &Terminal{
		out:   out,
		in:    in,
		width: defaultWidth,
		enter: make(chan struct{}, 1),
	}
}

// SetWidth changes the rendered block width
func (t *Terminal) SetWidth(width int) {
	if width > 0 {
		t.width = width
	}
}

func (t *Terminal) Open(ctx context.Context) (executor.Overlay, error) {
	if t.out == nil {
		return nil, fmt.Errorf("terminal: no output")
	}
	t.readOnce.Do(func() {
		if t.in != nil {
			go t.readLines()
		}
	})
	return &terminalOverlay{term: t}, nil
}

func (t *Terminal) readLines() {
	scanner := bufio.NewScanner(t.in)
	for scanner.Scan() {
		select {
		case t.enter <- struct{}{}:
		default:
		}
	}
}

func (t *Terminal) write(s string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, err := io.WriteString(t.out, s)
	return err
}

type terminalOverlay struct {
	term      *Terminal
	closeOnce sync.Once
}

func (o *terminalOverlay) Render(s executor.Screen) error {
	if s.Hidden {
		return o.term.write(clearScreen)
	}
	return o.term.write(clearScreen + RenderScreen(s, o.term.width) + "\n")
}

func (o *terminalOverlay) Dismissed() <-chan struct{} {
	if o.term.in == nil {
		return nil
	}
	return o.term.enter
}

func (o *terminalOverlay) Close() error {
	var err error
	o.closeOnce.Do(func() {
		err = o.term.write(clearScreen)
	})
	return err
}

// RenderScreen lays out a screen as a single styled block
func RenderScreen(s executor.Screen, width int) string {
	base := lipgloss.NewStyle().
		Width(width).
		Align(lipgloss.Center)
	if s.Background != "" {
		base = base.Background(lipgloss.Color(s.Background))
	}
	if s.Foreground != "" {
		base = base.Foreground(lipgloss.Color(s.Foreground))
	}

	var parts []string
	if s.Title != "" {
		parts = append(parts, base.Bold(true).PaddingTop(1).Render(s.Title))
	}
	parts = append(parts, base.Padding(1, 2).Render(s.Body))
	if s.Progress >= 0 {
		parts = append(parts, base.Render(progressBar(s.Progress)))
	}
	if s.Footer != "" {
		parts = append(parts, base.Faint(true).PaddingBottom(1).Render(s.Footer))
	}
	return lipgloss.JoinVertical(lipgloss.Center, parts...)
}

func progressBar(percent int) string {
	percent = min(max(percent, 0), 100)
	filled := percent * progressWidth / 100
	return fmt.Sprintf("[%s%s] %3d%%", strings.Repeat("#", filled), strings.Repeat(".", progressWidth-filled), percent)
}

// Bell stands in for a vibration motor by ringing the terminal bell at the
// start of every "on" step of the pattern
type Bell struct {
	term  *Terminal
	sleep func(time.Duration)
}

func NewBell(term *Terminal) *Bell {
	return &Bell{term: term, sleep: time.Sleep}
}

func (b *Bell) Vibrate(pattern []time.Duration) error {
	go func() {
		for i, d := range pattern {
			if i%2 == 0 {
				if err := b.term.write("\a"); err != nil {
					return
				}
			}
			b.sleep(d)
		}
	}()
	return nil
}
