package controller

import (
	"errors"
	"net"
)

// Domain errors for the device controllers.
var (
	// ErrConnection is returned when the outlet refuses or cannot be reached.
	ErrConnection = errors.New("controller: connection failed")

	// ErrTimeout is returned when connecting or a round trip exceeds the
	// controller's timeout.
	ErrTimeout = errors.New("controller: operation timed out")

	// ErrDevice is matched by every *DeviceError.
	ErrDevice = errors.New("controller: device error")

	// ErrCommand is returned when sending a command or reading its response
	// fails for a reason other than a timeout.
	ErrCommand = errors.New("controller: command failed")

	// ErrNoFreshData is returned when no thermometer sample was ever received
	// or the latest one is older than the freshness window.
	ErrNoFreshData = errors.New("controller: no fresh data")

	// ErrNetwork is returned when the thermometer listener cannot bind, or
	// when waiting on a controller that has been closed.
	ErrNetwork = errors.New("controller: network error")

	// ErrClosed is returned by operations on a closed controller.
	ErrClosed = errors.New("controller: closed")
)

// DeviceError carries the message of an error response from the outlet.
// The local state is left untouched when one is returned.
type DeviceError struct {
	Message string
}

func (e *DeviceError) Error() string {
	return "controller: device error: " + e.Message
}

// Unwrap lets errors.Is(err, ErrDevice) match.
func (e *DeviceError) Unwrap() error {
	return ErrDevice
}

// isTimeoutError checks if an error is a network timeout.
func isTimeoutError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}
