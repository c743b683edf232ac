package mqtt

import (
	"fmt"
	"strings"
)

// TopicPrefix is the root of every smart-home topic.
const TopicPrefix = "smarthome"

// Device kinds used as the second topic level.
const (
	KindSocket = "socket"
	KindTherm  = "therm"
)

// Topics builds the topic hierarchy:
//
//	smarthome/state/{kind}/{device}    retained device state
//	smarthome/command/{kind}/{device}  commands to a device
//	smarthome/ack/{kind}/{device}      command outcomes
//	smarthome/system/status            retained daemon status
type Topics struct{}

// State returns the state topic for a device.
func (Topics) State(kind, deviceID string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefix, kind, deviceID)
}

// Command returns the command topic for a device.
func (Topics) Command(kind, deviceID string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefix, kind, deviceID)
}

// Ack returns the acknowledgement topic for a device.
func (Topics) Ack(kind, deviceID string) string {
	return fmt.Sprintf("%s/ack/%s/%s", TopicPrefix, kind, deviceID)
}

// SocketState is State(KindSocket, deviceID).
func (t Topics) SocketState(deviceID string) string { return t.State(KindSocket, deviceID) }

// SocketCommand is Command(KindSocket, deviceID).
func (t Topics) SocketCommand(deviceID string) string { return t.Command(KindSocket, deviceID) }

// SocketAck is Ack(KindSocket, deviceID).
func (t Topics) SocketAck(deviceID string) string { return t.Ack(KindSocket, deviceID) }

// ThermState is State(KindTherm, deviceID).
func (t Topics) ThermState(deviceID string) string { return t.State(KindTherm, deviceID) }

// SystemStatus returns the retained daemon status topic.
func (Topics) SystemStatus() string {
	return TopicPrefix + "/system/status"
}

// AllStates matches every device state topic.
func (Topics) AllStates() string {
	return TopicPrefix + "/state/+/+"
}

// AllCommands matches every device command topic.
func (Topics) AllCommands() string {
	return TopicPrefix + "/command/+/+"
}

// ParseDeviceTopic splits a device topic into its category, kind and
// device id. ok is false for anything outside the device hierarchy.
func ParseDeviceTopic(topic string) (category, kind, deviceID string, ok bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0] != TopicPrefix {
		return "", "", "", false
	}
	switch parts[1] {
	case "state", "command", "ack":
	default:
		return "", "", "", false
	}
	if parts[2] == "" || parts[3] == "" {
		return "", "", "", false
	}
	return parts[1], parts[2], parts[3], true
}
