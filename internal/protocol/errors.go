package protocol

import (
	"errors"
	"net"
)

// Domain errors for the wire protocol.
var (
	// ErrFrameTooLarge is returned when a frame header announces more than
	// MaxFrameSize bytes, or when a payload to encode exceeds it.
	ErrFrameTooLarge = errors.New("protocol: message too large")

	// ErrTruncatedFrame is returned when the stream ends inside a frame.
	ErrTruncatedFrame = errors.New("protocol: truncated frame")

	// ErrInvalidPayload is returned when a frame payload is not valid UTF-8.
	ErrInvalidPayload = errors.New("protocol: payload is not valid UTF-8")

	// ErrMalformedMessage is returned when a payload is not a well-formed
	// command, response or thermometer sample.
	ErrMalformedMessage = errors.New("protocol: malformed message")

	// ErrTimeout is returned when an exchange does not complete before its
	// deadline.
	ErrTimeout = errors.New("protocol: exchange timed out")
)

// IsFramingError reports whether err leaves the byte stream in an unknown
// position. The connection must be closed after such an error.
func IsFramingError(err error) bool {
	return errors.Is(err, ErrFrameTooLarge) ||
		errors.Is(err, ErrTruncatedFrame) ||
		errors.Is(err, ErrInvalidPayload)
}

// isTimeoutError checks if an error is a network timeout.
func isTimeoutError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}
