package bridge

import (
	"time"

	"github.com/DyakonovAlex/smart-home/internal/protocol"
)

// noFreshData is the error text published while the thermometer is stale.
const noFreshData = "no fresh data"

// ThermState is the retained payload on smarthome/state/therm/{device}.
type ThermState struct {
	Temperature *float64  `json:"temperature,omitempty"`
	Fresh       bool      `json:"fresh"`
	Error       string    `json:"error,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// SocketState is the retained payload on smarthome/state/socket/{device}.
type SocketState struct {
	Active    bool      `json:"active"`
	Power     float64   `json:"power"`
	DeviceID  string    `json:"device_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Ack is published on smarthome/ack/socket/{device} after every command.
// Command is empty when the payload could not be parsed.
type Ack struct {
	Command   string    `json:"command,omitempty"`
	OK        bool      `json:"ok"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func newSocketState(s protocol.OutletSnapshot, ts time.Time) SocketState {
	return SocketState{
		Active:    s.Active,
		Power:     s.Power,
		DeviceID:  s.DeviceID,
		Timestamp: ts,
	}
}
