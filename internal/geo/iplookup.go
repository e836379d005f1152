package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dennisdiepolder/ghosttrack/internal/types"
)

// ipAccuracy is the radius reported for IP-derived fixes, in meters
const ipAccuracy = 5000

// GeoResponse covers the field names used by common IP geolocation services
type GeoResponse struct {
	Lat       *float64 `json:"lat"`
	Lon       *float64 `json:"lon"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Status    string   `json:"status"`
	Message   string   `json:"message"`
	Error     bool     `json:"error"`
	Reason    string   `json:"reason"`
}

func (g GeoResponse) coordinates() (float64, float64, bool) {
	if g.Latitude != nil && g.Longitude != nil {
		return *g.Latitude, *g.Longitude, true
	}
	if g.Lat != nil && g.Lon != nil {
		return *g.Lat, *g.Lon, true
	}
	return 0, 0, false
}

// IPLocator resolves a coarse position from the public IP address
type IPLocator struct {
	url        string
	enabled    bool
	httpClient *http.Client
}

// NewIPLocator creates a locator querying url. When enabled is false every
// request fails with a permission error, mirroring a user who declined
// location access.
func NewIPLocator(url string, enabled bool) *IPLocator {
	return &IPLocator{
		url:        url,
		enabled:    enabled,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

func (l *IPLocator) CurrentPosition(ctx context.Context, _ Request) (types.Location, error) {
	if !l.enabled {
		return types.Location{}, &PositionError{Code: CodePermissionDenied, Message: "location sharing disabled"}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.url, nil)
	if err != nil {
		return types.Location{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return types.Location{}, &PositionError{Code: CodeTimeout, Message: err.Error()}
		}
		return types.Location{}, &PositionError{Code: CodePositionUnavailable, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return types.Location{}, &PositionError{
			Code:    CodePositionUnavailable,
			Message: fmt.Sprintf("lookup returned status %d", resp.StatusCode),
		}
	}

	var geo GeoResponse
	if err := json.NewDecoder(resp.Body).Decode(&geo); err != nil {
		return types.Location{}, &PositionError{Code: CodePositionUnavailable, Message: err.Error()}
	}
	if geo.Error || geo.Status == "fail" {
		msg := geo.Reason
		if msg == "" {
			msg = geo.Message
		}
		return types.Location{}, &PositionError{Code: CodePositionUnavailable, Message: msg}
	}

	lat, lon, ok := geo.coordinates()
	if !ok {
		return types.Location{}, &PositionError{Code: CodePositionUnavailable, Message: "lookup returned no coordinates"}
	}

	return types.Location{
		Latitude:   lat,
		Longitude:  lon,
		Accuracy:   types.Float(ipAccuracy),
		CapturedAt: time.Now(),
	}, nil
}
