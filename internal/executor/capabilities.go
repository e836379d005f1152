// Package executor implements the remote commands: alarm, message, photo
// and wipe. Each one drives host capabilities through small interfaces; a
// nil capability means the host does not have it.
package executor

import (
	"context"
	"image"
	"io"
	"time"
)

// AudioFormat describes signed 16-bit little-endian PCM
type AudioFormat struct {
	SampleRate int
	Channels   int
}

// Speaker plays raw PCM until the reader is drained or ctx ends
type Speaker interface {
	Play(ctx context.Context, pcm io.Reader, format AudioFormat) error
}

// Screen is the content of a full-screen overlay
type Screen struct {
	Title       string
	Body        string
	Footer      string
	Background  string
	Foreground  string
	Progress    int // 0-100, negative hides the bar
	Dismissible bool
	Hidden      bool
}

// Overlay is an open full-screen surface
type Overlay interface {
	Render(s Screen) error
	// Dismissed delivers one value per user dismissal
	Dismissed() <-chan struct{}
	Close() error
}

// Display opens overlays
type Display interface {
	Open(ctx context.Context) (Overlay, error)
}

// Vibrator plays an on/off pattern starting with "on"
type Vibrator interface {
	Vibrate(pattern []time.Duration) error
}

// Facing selects a camera
type Facing int

const (
	FacingUser Facing = iota
	FacingEnvironment
)

func (f Facing) String() string {
	if f == FacingEnvironment {
		return "environment"
	}
	return "user"
}

// Stream is an open camera
type Stream interface {
	Frame(ctx context.Context) (image.Image, error)
	Close() error
}

// Camera opens a video stream
type Camera interface {
	Open(ctx context.Context, facing Facing) (Stream, error)
}

// Navigator performs the terminal hand-off after a wipe
type Navigator interface {
	Redirect(ctx context.Context, target string) error
}
