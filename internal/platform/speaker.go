package platform

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"

	"github.com/dennisdiepolder/ghosttrack/internal/executor"
	"github.com/dennisdiepolder/ghosttrack/internal/types"
)

type player struct {
	name string
	args func(executor.AudioFormat) []string
}

// players are tried in order; each reads raw S16LE PCM from stdin
var players = []player{
	{
		name: "aplay",
		args: func(f executor.AudioFormat) []string {
			return []string{"-q", "-t", "raw", "-f", "S16_LE", "-r", strconv.Itoa(f.SampleRate), "-c", strconv.Itoa(f.Channels), "-"}
		},
	},
	{
		name: "paplay",
		args: func(f executor.AudioFormat) []string {
			return []string{"--raw", "--format=s16le", "--rate=" + strconv.Itoa(f.SampleRate), "--channels=" + strconv.Itoa(f.Channels)}
		},
	},
}

// CommandSpeaker plays PCM through a command-line audio player
type CommandSpeaker struct {
	path string
	args func(executor.AudioFormat) []string
}

// LookupSpeaker finds the first available player on PATH
func LookupSpeaker() (*CommandSpeaker, error) {
	for _, p := range players {
		path, err := exec.LookPath(p.name)
		if err == nil {
			return &CommandSpeaker{path: path, args: p.args}, nil
		}
	}
	return nil, fmt.Errorf("audio player: %w", types.ErrCapabilityUnavailable)
}

func (s *CommandSpeaker) Play(ctx context.Context, pcm io.Reader, format executor.AudioFormat) error {
	cmd := exec.CommandContext(ctx, s.path, s.args(format)...)
	cmd.Stdin = pcm
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s: %w: %s", s.path, err, bytes.TrimSpace(stderr.Bytes()))
	}
	return nil
}
