package platform

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/dennisdiepolder/ghosttrack/internal/types"
)

func writeSys(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content+"\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestSysTelemetryBattery(t *testing.T) {
	root := t.TempDir()
	writeSys(t, root, map[string]string{
		"sys/class/power_supply/AC/type":       "Mains",
		"sys/class/power_supply/BAT0/type":     "Battery",
		"sys/class/power_supply/BAT0/capacity": "73",
		"sys/class/power_supply/BAT0/status":   "Charging",
	})

	battery, err := NewSysTelemetry(root).Battery(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	if battery.Level != 73 || !battery.Charging {
		t.Errorf("unexpected battery %+v", battery)
	}
}

func TestSysTelemetryNoBattery(t *testing.T) {
	root := t.TempDir()
	writeSys(t, root, map[string]string{"sys/class/power_supply/AC/type": "Mains"})

	_, err := NewSysTelemetry(root).Battery(t.Context())
	if !errors.Is(err, types.ErrCapabilityUnavailable) {
		t.Errorf("expected capability unavailable, got %v", err)
	}
}

func TestSysTelemetryNetwork(t *testing.T) {
	root := t.TempDir()
	writeSys(t, root, map[string]string{
		"sys/class/net/lo/operstate":         "unknown",
		"sys/class/net/eth0/operstate":       "down",
		"sys/class/net/wlan0/operstate":      "up",
		"sys/class/net/wlan0/wireless/dummy": "",
	})

	info, err := NewSysTelemetry(root).Network(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	if info.Type != "wifi" {
		t.Errorf("expected wifi, got %q", info.Type)
	}
}

func TestSysTelemetryNetworkSpeed(t *testing.T) {
	root := t.TempDir()
	writeSys(t, root, map[string]string{
		"sys/class/net/eth0/operstate": "up",
		"sys/class/net/eth0/speed":     "1000",
	})

	info, err := NewSysTelemetry(root).Network(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	if info.Type != "ethernet" || info.Downlink != 1000 {
		t.Errorf("unexpected network %+v", info)
	}
}

func TestSysTelemetryNetworkDown(t *testing.T) {
	root := t.TempDir()
	writeSys(t, root, map[string]string{"sys/class/net/eth0/operstate": "down"})

	if _, err := NewSysTelemetry(root).Network(t.Context()); err == nil {
		t.Error("expected error without an active interface")
	}
}
