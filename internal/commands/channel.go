// Package commands polls the controller for remote commands, runs them and
// acknowledges every result.
package commands

import (
	"context"
	"fmt"
	"net/url"

	"github.com/dennisdiepolder/ghosttrack/internal/besteffort"
	"github.com/dennisdiepolder/ghosttrack/internal/remote"
	"github.com/dennisdiepolder/ghosttrack/internal/types"
	"github.com/rs/zerolog"
)

const (
	pollPath   = "device-commands"
	ackPath    = "device-command-executed"
	uploadPath = "upload-photo"
)

// Channel is the HTTP transport for commands
type Channel struct {
	client *remote.Client
	policy *besteffort.Policy
	logger zerolog.Logger
}

func NewChannel(client *remote.Client, policy *besteffort.Policy, logger zerolog.Logger) *Channel {
	return &Channel{
		client: client,
		policy: policy,
		logger: logger.With().Str("component", "commands").Logger(),
	}
}

// Poll fetches pending commands in the order the controller issued them
func (c *Channel) Poll(ctx context.Context, hardwareID string) ([]types.Command, error) {
	var resp types.CommandsResponse
	if err := c.client.Get(ctx, pollPath, url.Values{"hardwareId": {hardwareID}}, &resp); err != nil {
		return nil, c.policy.Handle("poll", err)
	}
	return resp.Commands, nil
}

// Acknowledge reports the result of one command
func (c *Channel) Acknowledge(ctx context.Context, id types.CommandID, result types.Result) error {
	err := c.client.Post(ctx, ackPath, types.CommandAck{CommandID: id, Result: result}, nil)
	if err != nil {
		return c.policy.Handle("ack", fmt.Errorf("ack %s: %w", id, err))
	}
	return nil
}

// UploadPhoto sends a base64 JPEG captured by the photo command. Errors are
// returned so the command result reflects them.
func (c *Channel) UploadPhoto(ctx context.Context, hardwareID, photoData string) error {
	return c.client.Post(ctx, uploadPath, types.PhotoUpload{HardwareID: hardwareID, PhotoData: photoData}, nil)
}
