package types

import (
	"encoding/json"
	"time"
)

// Device is the controller-side record of an enrolled device
type Device struct {
	HardwareID   string       `json:"hardwareId" dynamodbav:"HardwareID"`
	UserID       string       `json:"userId" dynamodbav:"UserID"`
	Email        string       `json:"email" dynamodbav:"Email"`
	Model        string       `json:"model,omitempty" dynamodbav:"Model,omitempty"`
	Status       DeviceStatus `json:"status" dynamodbav:"Status"`
	RegisteredAt time.Time    `json:"registeredAt" dynamodbav:"RegisteredAt"`
	ReportedAt   *time.Time   `json:"reportedAt,omitempty" dynamodbav:"ReportedAt,omitempty"`
	LastSeen     *time.Time   `json:"lastSeen,omitempty" dynamodbav:"LastSeen,omitempty"`
	LastPosition *Location    `json:"lastPosition,omitempty" dynamodbav:"LastPosition,omitempty"`
}

// Sighting is one recorded check-in of a stolen device
type Sighting struct {
	HardwareID string       `json:"hardwareId" dynamodbav:"HardwareID"`
	Timestamp  string       `json:"timestamp" dynamodbav:"Timestamp"`
	Latitude   float64      `json:"latitude" dynamodbav:"Latitude"`
	Longitude  float64      `json:"longitude" dynamodbav:"Longitude"`
	Accuracy   *float64     `json:"accuracy,omitempty" dynamodbav:"Accuracy,omitempty"`
	Battery    *Battery     `json:"battery,omitempty" dynamodbav:"Battery,omitempty"`
	Network    *NetworkInfo `json:"network,omitempty" dynamodbav:"Network,omitempty"`
	RemoteAddr string       `json:"remoteAddr,omitempty" dynamodbav:"RemoteAddr,omitempty"`
	UserAgent  string       `json:"userAgent,omitempty" dynamodbav:"UserAgent,omitempty"`
}

// CommandRecord is a command issued by an owner and its execution state
type CommandRecord struct {
	CommandID  string      `json:"id" dynamodbav:"CommandID"`
	HardwareID string      `json:"hardwareId" dynamodbav:"HardwareID"`
	UserID     string      `json:"userId" dynamodbav:"UserID"`
	Type       CommandType `json:"type" dynamodbav:"Type"`
	Data       string      `json:"data,omitempty" dynamodbav:"Data,omitempty"`
	IssuedAt   time.Time   `json:"issuedAt" dynamodbav:"IssuedAt"`
	Executed   bool        `json:"executed" dynamodbav:"Executed"`
	ExecutedAt *time.Time  `json:"executedAt,omitempty" dynamodbav:"ExecutedAt,omitempty"`
	Result     *Result     `json:"result,omitempty" dynamodbav:"Result,omitempty"`
}

// Wire converts the record into the shape polled by agents
func (r CommandRecord) Wire() Command {
	cmd := Command{ID: CommandID(r.CommandID), Type: r.Type}
	if r.Data != "" {
		cmd.Data = json.RawMessage(r.Data)
	}
	return cmd
}

// Photo is an image uploaded by a device
type Photo struct {
	HardwareID string `json:"hardwareId" dynamodbav:"HardwareID"`
	PhotoID    string `json:"id" dynamodbav:"PhotoID"`
	Timestamp  string `json:"timestamp" dynamodbav:"Timestamp"`
	Data       string `json:"photoData" dynamodbav:"Data"`
}
