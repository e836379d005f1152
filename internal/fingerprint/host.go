package fingerprint

import (
	"fmt"
	"runtime"
)

// Host reads fingerprint attributes from the machine the agent runs on
type Host struct {
	// SysRoot prefixes sysfs paths; empty means "/"
	SysRoot   string
	UserAgent string
}

// NewHost returns a Host environment reporting the given user agent
func NewHost(userAgent string) *Host {
	return &Host{UserAgent: userAgent}
}

func (h *Host) CPUCount() (int, error) {
	return runtime.NumCPU(), nil
}

func (h *Host) Platform() (Platform, error) {
	return Platform{
		Name:      fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
		UserAgent: h.UserAgent,
		Machine:   machine(),
	}, nil
}
