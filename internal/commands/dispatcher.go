package commands

import (
	"context"
	"fmt"

	"github.com/dennisdiepolder/ghosttrack/internal/types"
	"github.com/rs/zerolog"
)

// Executor runs one kind of command
type Executor interface {
	Execute(ctx context.Context, hardwareID string, cmd types.Command) types.Result
}

// Transport fetches commands and delivers acknowledgements
type Transport interface {
	Poll(ctx context.Context, hardwareID string) ([]types.Command, error)
	Acknowledge(ctx context.Context, id types.CommandID, result types.Result) error
}

// Dispatcher runs polled commands one after another. Every command that is
// attempted is acknowledged before the next one starts; duplicates are
// executed again and left to the controller to deduplicate.
type Dispatcher struct {
	transport Transport
	executors map[types.CommandType]Executor
	logger    zerolog.Logger
}

func NewDispatcher(transport Transport, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		transport: transport,
		executors: make(map[types.CommandType]Executor),
		logger:    logger.With().Str("component", "dispatcher").Logger(),
	}
}

// Register installs the executor for a command type
func (d *Dispatcher) Register(t types.CommandType, e Executor) {
	d.executors[t] = e
}

// RunOnce polls once and executes everything returned. It reports how many
// commands were attempted.
func (d *Dispatcher) RunOnce(ctx context.Context, hardwareID string) (int, error) {
	cmds, err := d.transport.Poll(ctx, hardwareID)
	if err != nil {
		return 0, err
	}

	for i, cmd := range cmds {
		if err := ctx.Err(); err != nil {
			return i, err
		}

		result := d.execute(ctx, hardwareID, cmd)

		d.logger.Info().
			Str("command_id", string(cmd.ID)).
			Str("type", string(cmd.Type)).
			Bool("success", result.Success).
			Msg("command executed")

		if err := d.transport.Acknowledge(ctx, cmd.ID, result); err != nil {
			d.logger.Warn().Err(err).Str("command_id", string(cmd.ID)).Msg("acknowledgement failed")
		}
	}
	return len(cmds), nil
}

func (d *Dispatcher) execute(ctx context.Context, hardwareID string, cmd types.Command) (result types.Result) {
	exec, ok := d.executors[cmd.Type]
	if !ok {
		return types.Failed(fmt.Errorf("unknown command type %q", cmd.Type))
	}

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().Interface("panic", r).Str("command_id", string(cmd.ID)).Msg("executor panicked")
			result = types.Failed(fmt.Errorf("executor panicked: %v", r))
		}
	}()
	return exec.Execute(ctx, hardwareID, cmd)
}
