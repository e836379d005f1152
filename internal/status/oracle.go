// Package status asks the controller whether a device has been reported
// stolen.
package status

import (
	"context"
	"net/url"

	"github.com/dennisdiepolder/ghosttrack/internal/besteffort"
	"github.com/dennisdiepolder/ghosttrack/internal/remote"
	"github.com/dennisdiepolder/ghosttrack/internal/types"
	"github.com/rs/zerolog"
)

const statusPath = "check-device-status"

// Oracle queries device status. Results are never cached.
type Oracle struct {
	client *remote.Client
	policy *besteffort.Policy
	logger zerolog.Logger
}

func NewOracle(client *remote.Client, policy *besteffort.Policy, logger zerolog.Logger) *Oracle {
	return &Oracle{
		client: client,
		policy: policy,
		logger: logger.With().Str("component", "status").Logger(),
	}
}

// Query returns the device's status. On any failure the status is
// StatusUnknown, so an unreachable controller never reads as stolen; the
// error itself is filtered by the best-effort policy.
func (o *Oracle) Query(ctx context.Context, hardwareID string) (types.DeviceStatus, error) {
	var resp types.StatusResponse
	err := o.client.Get(ctx, statusPath, url.Values{"hardwareId": {hardwareID}}, &resp)
	if err != nil {
		return types.StatusUnknown, o.policy.Handle("status", err)
	}

	status := types.ParseStatus(resp.Status)
	o.logger.Debug().Str("status", string(status)).Msg("status checked")
	return status, nil
}
