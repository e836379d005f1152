//go:build !linux

package fingerprint

import (
	"runtime"

	"github.com/dennisdiepolder/ghosttrack/internal/types"
)

func (h *Host) Screen() (Screen, error)          { return Screen{}, types.ErrCapabilityUnavailable }
func (h *Host) GPU() (GPU, error)                { return GPU{}, types.ErrCapabilityUnavailable }
func (h *Host) DeviceMemory() (float64, error)   { return 0, types.ErrCapabilityUnavailable }
func (h *Host) ConnectionClass() (string, error) { return "", types.ErrCapabilityUnavailable }

func machine() string { return runtime.GOARCH }
