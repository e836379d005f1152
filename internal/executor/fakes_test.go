package executor

import (
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"sync"
	"time"
)

type fakeOverlay struct {
	mu        sync.Mutex
	screens   []Screen
	dismissed chan struct{}
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeOverlay() *fakeOverlay {
	return &fakeOverlay{dismissed: make(chan struct{}, 1), closed: make(chan struct{})}
}

func (o *fakeOverlay) Render(s Screen) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.screens = append(o.screens, s)
	return nil
}

func (o *fakeOverlay) Dismissed() <-chan struct{} { return o.dismissed }

func (o *fakeOverlay) Close() error {
	o.closeOnce.Do(func() { close(o.closed) })
	return nil
}

func (o *fakeOverlay) rendered() []Screen {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Screen(nil), o.screens...)
}

func (o *fakeOverlay) last() Screen {
	s := o.rendered()
	if len(s) == 0 {
		return Screen{}
	}
	return s[len(s)-1]
}

type fakeDisplay struct {
	mu       sync.Mutex
	overlays []*fakeOverlay
	err      error
}

func (d *fakeDisplay) Open(ctx context.Context) (Overlay, error) {
	if d.err != nil {
		return nil, d.err
	}
	o := newFakeOverlay()
	d.mu.Lock()
	d.overlays = append(d.overlays, o)
	d.mu.Unlock()
	return o, nil
}

func (d *fakeDisplay) overlay(i int) *fakeOverlay {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.overlays[i]
}

type fakeSpeaker struct {
	mu     sync.Mutex
	bytes  int64
	format AudioFormat
	played chan struct{}
}

func (s *fakeSpeaker) Play(ctx context.Context, pcm io.Reader, format AudioFormat) error {
	n, err := io.Copy(io.Discard, pcm)
	s.mu.Lock()
	s.bytes, s.format = n, format
	s.mu.Unlock()
	if s.played != nil {
		close(s.played)
	}
	return err
}

type fakeVibrator struct {
	pattern []time.Duration
}

func (v *fakeVibrator) Vibrate(p []time.Duration) error {
	v.pattern = p
	return nil
}

type fakeStream struct {
	closed   bool
	frameErr error
}

func (s *fakeStream) Frame(ctx context.Context) (image.Image, error) {
	if s.frameErr != nil {
		return nil, s.frameErr
	}
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for x := 0; x < 64; x++ {
		img.Set(x, x%48, color.RGBA{R: 200, A: 255})
	}
	return img, nil
}

func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

type fakeCamera struct {
	stream  *fakeStream
	openErr error
	facing  Facing
}

func (c *fakeCamera) Open(ctx context.Context, facing Facing) (Stream, error) {
	c.facing = facing
	if c.openErr != nil {
		return nil, c.openErr
	}
	return c.stream, nil
}

type fakeUploader struct {
	hardwareID string
	data       string
	err        error
}

func (u *fakeUploader) UploadPhoto(ctx context.Context, hardwareID, photoData string) error {
	u.hardwareID, u.data = hardwareID, photoData
	return u.err
}

type fakeNavigator struct {
	mu      sync.Mutex
	targets []string
}

func (n *fakeNavigator) Redirect(ctx context.Context, target string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.targets = append(n.targets, target)
	return nil
}

type fakeClearable struct {
	name    string
	cleared bool
	err     error
}

func (c *fakeClearable) Name() string { return c.name }

func (c *fakeClearable) Clear(ctx context.Context) error {
	c.cleared = true
	return c.err
}

var errDenied = errors.New("NotAllowedError: camera permission denied")

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}
