package stealth

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Task runs fn immediately and then on every tick. Each iteration runs in
// its own goroutine, so a slow iteration never delays the next tick.
type Task struct {
	name     string
	interval time.Duration
	fn       func(ctx context.Context)
	logger   zerolog.Logger

	mu   sync.Mutex
	ctx  context.Context
	stop chan struct{}
	done chan struct{}

	inflight sync.WaitGroup
}

func NewTask(name string, interval time.Duration, fn func(ctx context.Context), logger zerolog.Logger) *Task {
	return &Task{
		name:     name,
		interval: interval,
		fn:       fn,
		logger:   logger.With().Str("task", name).Logger(),
	}
}

// Start begins ticking. Iterations receive ctx, which Stop does not cancel.
// Starting a running task does nothing.
func (t *Task) Start(ctx context.Context) {
	t.mu.Lock()
	if t.stop != nil {
		t.mu.Unlock()
		return
	}
	stop, done := make(chan struct{}), make(chan struct{})
	t.ctx, t.stop, t.done = ctx, stop, done
	t.mu.Unlock()

	t.spawn(ctx)

	go func() {
		defer close(done)

		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()

		t.logger.Debug().Dur("interval", t.interval).Msg("task started")

		for {
			select {
			case <-ctx.Done():
				t.logger.Debug().Msg("task context done")
				t.release(stop)
				return
			case <-stop:
				t.logger.Debug().Msg("task stopped")
				return
			case <-ticker.C:
				t.spawn(ctx)
			}
		}
	}()
}

// release drops the handles of the run owning stop, unless Stop already did
func (t *Task) release(stop chan struct{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stop == stop {
		t.stop, t.done, t.ctx = nil, nil, nil
	}
}

// Trigger runs one extra iteration now if the task is running
func (t *Task) Trigger() {
	t.mu.Lock()
	ctx, running := t.ctx, t.stop != nil
	t.mu.Unlock()
	if running {
		t.spawn(ctx)
	}
}

// Running reports whether the task is ticking
func (t *Task) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stop != nil
}

func (t *Task) spawn(ctx context.Context) {
	t.inflight.Add(1)
	go func() {
		defer t.inflight.Done()
		defer func() {
			if r := recover(); r != nil {
				t.logger.Error().Interface("panic", r).Msg("task iteration panicked")
			}
		}()
		t.fn(ctx)
	}()
}

// Stop ends ticking and waits for the ticker goroutine. In-flight
// iterations keep running.
func (t *Task) Stop() {
	t.mu.Lock()
	stop, done := t.stop, t.done
	t.stop, t.done, t.ctx = nil, nil, nil
	t.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// Wait blocks until every spawned iteration has returned
func (t *Task) Wait() {
	t.inflight.Wait()
}
