package stealth

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dennisdiepolder/ghosttrack/internal/checkin"
	"github.com/dennisdiepolder/ghosttrack/internal/geo"
	"github.com/dennisdiepolder/ghosttrack/internal/types"
	"github.com/rs/zerolog"
	"go.uber.org/goleak"
)

type fakeStatus struct {
	mu     sync.Mutex
	status types.DeviceStatus
	err    error
	calls  int
}

func (f *fakeStatus) Query(ctx context.Context, hardwareID string) (types.DeviceStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.status, f.err
}

func (f *fakeStatus) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakePosition struct {
	err error
}

func (f *fakePosition) Acquire(ctx context.Context, opts geo.Options) (types.Location, error) {
	return types.Location{Latitude: 1, Longitude: 2}, f.err
}

type fakeReporter struct {
	calls atomic.Int32
}

func (f *fakeReporter) ReportCovert(ctx context.Context, hardwareID string, loc types.Location, extras *checkin.Extras) error {
	f.calls.Add(1)
	return nil
}

type fakeRunner struct {
	calls atomic.Int32
}

func (f *fakeRunner) RunOnce(ctx context.Context, hardwareID string) (int, error) {
	f.calls.Add(1)
	return 0, nil
}

type fakeMirror struct {
	calls atomic.Int32
}

func (f *fakeMirror) MirrorPosition(ctx context.Context, hardwareID string, loc types.Location) error {
	f.calls.Add(1)
	return nil
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.StartupDelay = time.Millisecond
	cfg.ReportInterval = time.Hour
	cfg.PollInterval = time.Hour
	return cfg
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestStateString(t *testing.T) {
	tests := map[State]string{Dormant: "dormant", Checking: "checking", Active: "active", State(9): "state(9)"}
	for s, want := range tests {
		if s.String() != want {
			t.Errorf("expected %q, got %q", want, s.String())
		}
	}
}

func TestParseEvent(t *testing.T) {
	if ev, err := ParseEvent("online"); err != nil || ev != EventOnline {
		t.Errorf("unexpected %v, %v", ev, err)
	}
	if ev, err := ParseEvent("visible"); err != nil || ev != EventVisible {
		t.Errorf("unexpected %v, %v", ev, err)
	}
	if _, err := ParseEvent("hidden"); err == nil {
		t.Error("expected error for unknown event")
	}
}

func TestCheckFailClosed(t *testing.T) {
	tests := []struct {
		name   string
		status types.DeviceStatus
		err    error
	}{
		{"network failure", types.StatusUnknown, types.ErrNetworkFailure},
		{"error with stolen", types.StatusStolen, errors.New("garbled")},
		{"monitored", types.StatusMonitored, nil},
		{"recovered", types.StatusRecovered, nil},
		{"unknown", types.StatusUnknown, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer goleak.VerifyNone(t)

			reporter, runner := &fakeReporter{}, &fakeRunner{}
			c := NewController("hw", testConfig(), Deps{
				Status:   &fakeStatus{status: tt.status, err: tt.err},
				Position: &fakePosition{},
				Reporter: reporter,
				Commands: runner,
			}, zerolog.Nop())

			if got := c.Check(t.Context()); got != Dormant {
				t.Errorf("expected dormant, got %v", got)
			}
			c.Wait()
			if reporter.calls.Load() != 0 || runner.calls.Load() != 0 {
				t.Error("expected no loops to run")
			}
		})
	}
}

func TestStartActivatesAfterDelay(t *testing.T) {
	defer goleak.VerifyNone(t)

	status := &fakeStatus{status: types.StatusStolen}
	reporter, runner, mirror := &fakeReporter{}, &fakeRunner{}, &fakeMirror{}
	c := NewController("hw", testConfig(), Deps{
		Status:   status,
		Position: &fakePosition{},
		Reporter: reporter,
		Commands: runner,
		Mirror:   mirror,
	}, zerolog.Nop())

	ctx, cancel := context.WithCancel(t.Context())
	c.Start(ctx)

	eventually(t, func() bool { return c.State() == Active })
	eventually(t, func() bool { return reporter.calls.Load() == 1 && runner.calls.Load() == 1 })
	if mirror.calls.Load() != 1 {
		t.Errorf("expected position to be mirrored once, got %d", mirror.calls.Load())
	}

	if got := c.Check(ctx); got != Active {
		t.Errorf("check while active should be a no-op, got %v", got)
	}
	if status.count() != 1 {
		t.Errorf("expected a single status query, got %d", status.count())
	}

	cancel()
	c.Wait()
}

func TestStartCancelledBeforeDelay(t *testing.T) {
	defer goleak.VerifyNone(t)

	status := &fakeStatus{status: types.StatusStolen}
	cfg := testConfig()
	cfg.StartupDelay = time.Hour
	c := NewController("hw", cfg, Deps{Status: status}, zerolog.Nop())

	ctx, cancel := context.WithCancel(t.Context())
	c.Start(ctx)
	cancel()
	c.Wait()

	if status.count() != 0 {
		t.Error("expected no status check after cancellation")
	}
}

func TestNotifyDormantChecks(t *testing.T) {
	defer goleak.VerifyNone(t)

	status := &fakeStatus{status: types.StatusMonitored}
	c := NewController("hw", testConfig(), Deps{Status: status}, zerolog.Nop())

	c.Notify(t.Context(), EventOnline)
	c.Notify(t.Context(), EventVisible)
	if status.count() != 2 {
		t.Errorf("expected a check per event, got %d", status.count())
	}
	if c.State() != Dormant {
		t.Errorf("expected dormant, got %v", c.State())
	}
}

func TestNotifyActiveTriggersLoops(t *testing.T) {
	defer goleak.VerifyNone(t)

	reporter, runner := &fakeReporter{}, &fakeRunner{}
	c := NewController("hw", testConfig(), Deps{
		Status:   &fakeStatus{status: types.StatusStolen},
		Position: &fakePosition{},
		Reporter: reporter,
		Commands: runner,
	}, zerolog.Nop())

	if c.Check(t.Context()) != Active {
		t.Fatal("expected activation")
	}
	if c.Notify(t.Context(), EventOnline) != Active {
		t.Fatal("expected to stay active")
	}

	eventually(t, func() bool { return reporter.calls.Load() == 2 && runner.calls.Load() == 2 })

	c.Deactivate()
	c.Wait()
}

func TestLocationFailureSkipsCheckIn(t *testing.T) {
	defer goleak.VerifyNone(t)

	reporter, runner := &fakeReporter{}, &fakeRunner{}
	c := NewController("hw", testConfig(), Deps{
		Status:   &fakeStatus{status: types.StatusStolen},
		Position: &fakePosition{err: types.ErrLocationUnavailable},
		Reporter: reporter,
		Commands: runner,
	}, zerolog.Nop())

	c.Check(t.Context())
	eventually(t, func() bool { return runner.calls.Load() == 1 })
	c.Deactivate()
	c.Wait()

	if reporter.calls.Load() != 0 {
		t.Error("expected no check-in without a position")
	}
}

func TestDeactivate(t *testing.T) {
	defer goleak.VerifyNone(t)

	status := &fakeStatus{status: types.StatusStolen}
	c := NewController("hw", testConfig(), Deps{
		Status:   status,
		Position: &fakePosition{},
		Reporter: &fakeReporter{},
		Commands: &fakeRunner{},
	}, zerolog.Nop())

	c.Deactivate()
	if c.State() != Dormant {
		t.Error("deactivating a dormant controller should do nothing")
	}

	c.Check(t.Context())
	c.Deactivate()
	if c.State() != Dormant {
		t.Errorf("expected dormant after deactivate, got %v", c.State())
	}
	if c.location.Running() || c.poll.Running() {
		t.Error("expected tasks to be stopped")
	}

	if c.Check(t.Context()) != Active {
		t.Error("expected a later check to activate again")
	}
	c.Deactivate()
	c.Wait()
}
