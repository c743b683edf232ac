package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

const (
	// MaxFrameSize is the largest payload a frame may carry (1 MiB).
	MaxFrameSize = 1 << 20

	// headerSize is the length of the big-endian size prefix.
	headerSize = 4
)

// EncodeFrame prefixes payload with its 4-byte big-endian length.
func EncodeFrame(payload string) ([]byte, error) {
	if len(payload) > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}
	frame := make([]byte, headerSize+len(payload))
	binary.BigEndian.PutUint32(frame[:headerSize], uint32(len(payload)))
	copy(frame[headerSize:], payload)
	return frame, nil
}

// WriteFrame writes payload to w as a single frame. Header and payload go
// out in one Write call so a frame is never interleaved with another writer's.
func WriteFrame(w io.Writer, payload string) error {
	frame, err := EncodeFrame(payload)
	if err != nil {
		return err
	}
	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// ReadFrame reads exactly one frame from r and returns its payload.
//
// Errors:
//   - io.EOF: the peer closed cleanly before the first header byte
//   - ErrTruncatedFrame: the stream ended inside the header or payload
//   - ErrFrameTooLarge: the header announced more than MaxFrameSize bytes
//   - ErrInvalidPayload: the payload is not valid UTF-8
//
// Other errors (deadline expiry, connection reset) are returned wrapped.
func ReadFrame(r io.Reader) (string, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		switch {
		case errors.Is(err, io.EOF):
			return "", io.EOF
		case errors.Is(err, io.ErrUnexpectedEOF):
			return "", fmt.Errorf("%w: header: %w", ErrTruncatedFrame, err)
		default:
			return "", fmt.Errorf("read header: %w", err)
		}
	}

	size := binary.BigEndian.Uint32(header[:])
	if size > MaxFrameSize {
		return "", fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, size)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return "", fmt.Errorf("%w: payload: %w", ErrTruncatedFrame, io.ErrUnexpectedEOF)
		}
		return "", fmt.Errorf("read payload: %w", err)
	}

	if !utf8.Valid(payload) {
		return "", ErrInvalidPayload
	}
	return string(payload), nil
}
