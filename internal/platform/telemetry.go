package platform

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dennisdiepolder/ghosttrack/internal/types"
)

// SysTelemetry reads battery and connection state from sysfs
type SysTelemetry struct {
	root string
}

// NewSysTelemetry reads below root, normally "/"
func NewSysTelemetry(root string) *SysTelemetry {
	if root == "" {
		root = "/"
	}
	return &SysTelemetry{root: root}
}

func (s *SysTelemetry) path(elem ...string) string {
	return filepath.Join(append([]string{s.root}, elem...)...)
}

func (s *SysTelemetry) read(elem ...string) (string, error) {
	b, err := os.ReadFile(s.path(elem...))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

// Battery reports the first power supply of type Battery
func (s *SysTelemetry) Battery(ctx context.Context) (*types.Battery, error) {
	entries, err := os.ReadDir(s.path("sys", "class", "power_supply"))
	if err != nil {
		return nil, types.ErrCapabilityUnavailable
	}
	for _, e := range entries {
		if kind, _ := s.read("sys", "class", "power_supply", e.Name(), "type"); kind != "Battery" {
			continue
		}
		capacity, err := s.read("sys", "class", "power_supply", e.Name(), "capacity")
		if err != nil {
			continue
		}
		level, err := strconv.Atoi(capacity)
		if err != nil {
			continue
		}
		status, _ := s.read("sys", "class", "power_supply", e.Name(), "status")
		return &types.Battery{
			Level:    level,
			Charging: status == "Charging" || status == "Full",
		}, nil
	}
	return nil, types.ErrCapabilityUnavailable
}

// Network reports the class of the first interface that is up
func (s *SysTelemetry) Network(ctx context.Context) (*types.NetworkInfo, error) {
	entries, err := os.ReadDir(s.path("sys", "class", "net"))
	if err != nil {
		return nil, types.ErrCapabilityUnavailable
	}
	for _, e := range entries {
		if e.Name() == "lo" {
			continue
		}
		if state, _ := s.read("sys", "class", "net", e.Name(), "operstate"); state != "up" {
			continue
		}
		info := &types.NetworkInfo{Type: "ethernet"}
		if _, err := os.Stat(s.path("sys", "class", "net", e.Name(), "wireless")); err == nil {
			info.Type = "wifi"
		}
		if speed, err := s.read("sys", "class", "net", e.Name(), "speed"); err == nil {
			if mbps, err := strconv.ParseFloat(speed, 64); err == nil && mbps > 0 {
				info.Downlink = mbps
			}
		}
		return info, nil
	}
	return nil, errors.New("no active network interface")
}
