package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// DeviceStatus is the controller's view of a device
type DeviceStatus string

const (
	StatusUnknown   DeviceStatus = "unknown"
	StatusMonitored DeviceStatus = "monitored"
	StatusStolen    DeviceStatus = "stolen"
	StatusRecovered DeviceStatus = "recovered"
)

// ParseStatus maps a wire value onto a DeviceStatus. "registered" is the legacy
// name for a monitored device; anything unrecognised is unknown.
func ParseStatus(s string) DeviceStatus {
	switch s {
	case "stolen":
		return StatusStolen
	case "monitored", "registered":
		return StatusMonitored
	case "recovered":
		return StatusRecovered
	default:
		return StatusUnknown
	}
}

// CommandType identifies a remote command
type CommandType string

const (
	CommandAlarm   CommandType = "alarm"
	CommandMessage CommandType = "message"
	CommandPhoto   CommandType = "photo"
	CommandWipe    CommandType = "wipe"
)

// Valid reports whether t is one of the supported command types
func (t CommandType) Valid() bool {
	switch t {
	case CommandAlarm, CommandMessage, CommandPhoto, CommandWipe:
		return true
	}
	return false
}

// CommandID is a server-assigned command identifier. Older controllers send
// numeric IDs, so both JSON strings and numbers are accepted.
type CommandID string

func (id *CommandID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = CommandID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("command id: %w", err)
	}
	*id = CommandID(n.String())
	return nil
}

// Command is a pending remote instruction
type Command struct {
	ID   CommandID       `json:"id"`
	Type CommandType     `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Result is the outcome reported back for an executed command
type Result struct {
	Success    bool   `json:"success"`
	Duration   int    `json:"duration,omitempty"`
	Message    string `json:"message,omitempty"`
	PhotoTaken bool   `json:"photoTaken,omitempty"`
	ImageSize  int    `json:"imageSize,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Failed builds an unsuccessful result from err
func Failed(err error) Result {
	return Result{Success: false, Error: err.Error()}
}

// Location is a single position fix
type Location struct {
	Latitude         float64   `json:"latitude"`
	Longitude        float64   `json:"longitude"`
	Accuracy         *float64  `json:"accuracy,omitempty"`
	Altitude         *float64  `json:"altitude,omitempty"`
	AltitudeAccuracy *float64  `json:"altitudeAccuracy,omitempty"`
	Heading          *float64  `json:"heading,omitempty"`
	Speed            *float64  `json:"speed,omitempty"`
	CapturedAt       time.Time `json:"capturedAt"`
}

// Battery is an optional power reading attached to check-ins
type Battery struct {
	Level    int  `json:"level"`
	Charging bool `json:"charging"`
}

// NetworkInfo is an optional connection reading attached to check-ins
type NetworkInfo struct {
	Type     string  `json:"type,omitempty"`
	Downlink float64 `json:"downlink,omitempty"`
	RTT      int     `json:"rtt,omitempty"`
	SaveData bool    `json:"saveData,omitempty"`
}

// CheckIn is the compact covert report body. Short keys keep the payload small
// and unremarkable.
type CheckIn struct {
	H string       `json:"h"`
	A float64      `json:"a"`
	O float64      `json:"o"`
	C *float64     `json:"c,omitempty"`
	T int64        `json:"t"`
	B *Battery     `json:"b,omitempty"`
	N *NetworkInfo `json:"n,omitempty"`
}

// LocationUpdate is the verbose body of the overt location report
type LocationUpdate struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
	Timestamp string   `json:"timestamp"`
}

// StatusResponse is returned by the status endpoint
type StatusResponse struct {
	Status string `json:"status"`
}

// CommandsResponse is returned by the command poll endpoint
type CommandsResponse struct {
	Commands []Command `json:"commands"`
}

// CommandAck reports a command's result
type CommandAck struct {
	CommandID CommandID `json:"commandId"`
	Result    Result    `json:"result"`
}

// PhotoUpload carries a base64 JPEG captured by the photo command
type PhotoUpload struct {
	HardwareID string `json:"hardwareId"`
	PhotoData  string `json:"photoData"`
}

// DeviceInfo describes a device at enrollment
type DeviceInfo struct {
	Model             string    `json:"model,omitempty"`
	LastKnownPosition *Location `json:"lastKnownPosition,omitempty"`
	RegisteredAt      time.Time `json:"registeredAt"`
}

// Registration enrolls a device with its owner
type Registration struct {
	HardwareID string     `json:"hardwareId"`
	UserID     string     `json:"userId"`
	Email      string     `json:"email"`
	DeviceInfo DeviceInfo `json:"deviceInfo"`
}

// RegistrationResponse is the controller's answer to a Registration
type RegistrationResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// RegistrationRecoveryMode is answered when a stolen device is enrolled again
const RegistrationRecoveryMode = "stolen_recovery_mode"

// Float returns a pointer to v
func Float(v float64) *float64 { return &v }
