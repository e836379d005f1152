package commands

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/dennisdiepolder/ghosttrack/internal/types"
	"github.com/rs/zerolog"
)

// recorder captures the interleaving of polls, executions and acks
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

type fakeTransport struct {
	rec     *recorder
	batches [][]types.Command
	pollErr error
	ackErr  error
	acks    map[types.CommandID]types.Result
}

func (f *fakeTransport) Poll(ctx context.Context, hardwareID string) ([]types.Command, error) {
	f.rec.add("poll")
	if f.pollErr != nil {
		return nil, f.pollErr
	}
	if len(f.batches) == 0 {
		return nil, nil
	}
	batch := f.batches[0]
	f.batches = f.batches[1:]
	return batch, nil
}

func (f *fakeTransport) Acknowledge(ctx context.Context, id types.CommandID, result types.Result) error {
	f.rec.add("ack:" + string(id))
	if f.acks == nil {
		f.acks = make(map[types.CommandID]types.Result)
	}
	f.acks[id] = result
	return f.ackErr
}

type fakeExecutor struct {
	rec    *recorder
	result types.Result
	panics bool
}

func (f *fakeExecutor) Execute(ctx context.Context, hardwareID string, cmd types.Command) types.Result {
	f.rec.add("exec:" + string(cmd.ID))
	if f.panics {
		panic("camera exploded")
	}
	return f.result
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestRunOnceAcksBeforeNextCommand(t *testing.T) {
	rec := &recorder{}
	transport := &fakeTransport{rec: rec, batches: [][]types.Command{
		{{ID: "c1", Type: types.CommandAlarm}, {ID: "c2", Type: types.CommandMessage}},
		{},
	}}
	d := NewDispatcher(transport, zerolog.Nop())
	d.Register(types.CommandAlarm, &fakeExecutor{rec: rec, result: types.Result{Success: true, Duration: 30}})
	d.Register(types.CommandMessage, &fakeExecutor{rec: rec, result: types.Result{Success: true}})

	n, err := d.RunOnce(context.Background(), "hw-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 commands, got %d", n)
	}
	d.RunOnce(context.Background(), "hw-1")

	want := []string{"poll", "exec:c1", "ack:c1", "exec:c2", "ack:c2", "poll"}
	if got := rec.list(); !equal(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if transport.acks["c1"].Duration != 30 {
		t.Errorf("expected c1 result to be acknowledged, got %+v", transport.acks["c1"])
	}
}

func TestRunOnceReexecutesRepeatedCommand(t *testing.T) {
	rec := &recorder{}
	transport := &fakeTransport{rec: rec, batches: [][]types.Command{
		{{ID: "c1", Type: types.CommandAlarm}},
		{{ID: "c1", Type: types.CommandAlarm}},
	}}
	d := NewDispatcher(transport, zerolog.Nop())
	d.Register(types.CommandAlarm, &fakeExecutor{rec: rec, result: types.Result{Success: true}})

	d.RunOnce(context.Background(), "hw-1")
	d.RunOnce(context.Background(), "hw-1")

	want := []string{"poll", "exec:c1", "ack:c1", "poll", "exec:c1", "ack:c1"}
	if got := rec.list(); !equal(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestRunOnceAcksFailures(t *testing.T) {
	rec := &recorder{}
	transport := &fakeTransport{rec: rec, batches: [][]types.Command{
		{{ID: "u1", Type: "selfdestruct"}, {ID: "p1", Type: types.CommandPhoto}, {ID: "m1", Type: types.CommandMessage}},
	}}
	d := NewDispatcher(transport, zerolog.Nop())
	d.Register(types.CommandPhoto, &fakeExecutor{rec: rec, panics: true})
	d.Register(types.CommandMessage, &fakeExecutor{rec: rec, result: types.Result{Success: true}})

	n, err := d.RunOnce(context.Background(), "hw-1")
	if err != nil || n != 3 {
		t.Fatalf("expected 3 commands and no error, got %d, %v", n, err)
	}

	if r := transport.acks["u1"]; r.Success || r.Error == "" {
		t.Errorf("expected unknown command failure, got %+v", r)
	}
	if r := transport.acks["p1"]; r.Success || r.Error == "" {
		t.Errorf("expected panic to become a failure, got %+v", r)
	}
	if r := transport.acks["m1"]; !r.Success {
		t.Errorf("expected later commands to still run, got %+v", r)
	}
}

func TestRunOnceContinuesAfterAckFailure(t *testing.T) {
	rec := &recorder{}
	transport := &fakeTransport{
		rec:     rec,
		ackErr:  errors.New("ack lost"),
		batches: [][]types.Command{{{ID: "a", Type: types.CommandAlarm}, {ID: "b", Type: types.CommandAlarm}}},
	}
	d := NewDispatcher(transport, zerolog.Nop())
	d.Register(types.CommandAlarm, &fakeExecutor{rec: rec, result: types.Result{Success: true}})

	if _, err := d.RunOnce(context.Background(), "hw-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"poll", "exec:a", "ack:a", "exec:b", "ack:b"}
	if got := rec.list(); !equal(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestRunOncePollError(t *testing.T) {
	rec := &recorder{}
	pollErr := errors.New("offline")
	d := NewDispatcher(&fakeTransport{rec: rec, pollErr: pollErr}, zerolog.Nop())

	if _, err := d.RunOnce(context.Background(), "hw-1"); !errors.Is(err, pollErr) {
		t.Fatalf("expected poll error, got %v", err)
	}
}

func TestRunOnceStopsWhenCancelled(t *testing.T) {
	rec := &recorder{}
	transport := &fakeTransport{rec: rec, batches: [][]types.Command{{{ID: "a", Type: types.CommandAlarm}}}}
	d := NewDispatcher(transport, zerolog.Nop())
	d.Register(types.CommandAlarm, &fakeExecutor{rec: rec})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n, err := d.RunOnce(ctx, "hw-1")
	if !errors.Is(err, context.Canceled) || n != 0 {
		t.Fatalf("expected cancellation before executing, got %d, %v", n, err)
	}
}
