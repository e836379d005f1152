//go:build linux

package fingerprint

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dennisdiepolder/ghosttrack/internal/types"
	"golang.org/x/sys/unix"
)

func (h *Host) path(elem ...string) string {
	root := h.SysRoot
	if root == "" {
		root = "/"
	}
	return filepath.Join(append([]string{root}, elem...)...)
}

func (h *Host) read(elem ...string) (string, error) {
	data, err := os.ReadFile(h.path(elem...))
	if err != nil {
		return "", fmt.Errorf("%w: %v", types.ErrCapabilityUnavailable, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Screen reads the first framebuffer's geometry
func (h *Host) Screen() (Screen, error) {
	size, err := h.read("sys", "class", "graphics", "fb0", "virtual_size")
	if err != nil {
		return Screen{}, err
	}
	w, hgt, ok := strings.Cut(size, ",")
	if !ok {
		return Screen{}, fmt.Errorf("%w: malformed framebuffer size %q", types.ErrCapabilityUnavailable, size)
	}

	var s Screen
	if s.Width, err = strconv.Atoi(w); err != nil {
		return Screen{}, fmt.Errorf("framebuffer width: %w", err)
	}
	if s.Height, err = strconv.Atoi(hgt); err != nil {
		return Screen{}, fmt.Errorf("framebuffer height: %w", err)
	}
	if bpp, err := h.read("sys", "class", "graphics", "fb0", "bits_per_pixel"); err == nil {
		s.PixelDepth, _ = strconv.Atoi(bpp)
		s.ColorDepth = s.PixelDepth
	}
	s.PixelRatio = 1
	return s, nil
}

// GPU reads the PCI vendor and device IDs of the first DRM card
func (h *Host) GPU() (GPU, error) {
	vendor, err := h.read("sys", "class", "drm", "card0", "device", "vendor")
	if err != nil {
		return GPU{}, err
	}
	device, err := h.read("sys", "class", "drm", "card0", "device", "device")
	if err != nil {
		return GPU{}, err
	}
	return GPU{Vendor: vendor, Renderer: device}, nil
}

// DeviceMemory reports total RAM in GiB rounded to a power of two, so
// firmware reservations that shift between boots do not change the value
func (h *Host) DeviceMemory() (float64, error) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return 0, fmt.Errorf("%w: sysinfo: %v", types.ErrCapabilityUnavailable, err)
	}
	total := float64(info.Totalram) * float64(info.Unit)
	return roundMemory(total / (1 << 30)), nil
}

// ConnectionClass reports "wifi" when any interface is wireless
func (h *Host) ConnectionClass() (string, error) {
	entries, err := os.ReadDir(h.path("sys", "class", "net"))
	if err != nil {
		return "", fmt.Errorf("%w: %v", types.ErrCapabilityUnavailable, err)
	}
	class := ""
	for _, e := range entries {
		if e.Name() == "lo" {
			continue
		}
		if _, err := os.Stat(h.path("sys", "class", "net", e.Name(), "wireless")); err == nil {
			return "wifi", nil
		}
		class = "ethernet"
	}
	if class == "" {
		return "", fmt.Errorf("%w: no network interfaces", types.ErrCapabilityUnavailable)
	}
	return class, nil
}

func machine() string {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return ""
	}
	return unix.ByteSliceToString(uts.Machine[:])
}

func roundMemory(gib float64) float64 {
	if gib <= 0 {
		return 0
	}
	return math.Pow(2, math.Round(math.Log2(gib)))
}
