package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

// EncodeCommand renders cmd as a JSON payload.
func EncodeCommand(cmd Command) (string, error) {
	data, err := json.Marshal(cmd)
	if err != nil {
		return "", wrapMalformed(err)
	}
	return string(data), nil
}

// DecodeCommand parses a JSON payload into a Command.
func DecodeCommand(payload string) (Command, error) {
	var cmd Command
	if err := json.Unmarshal([]byte(payload), &cmd); err != nil {
		return 0, wrapMalformed(err)
	}
	return cmd, nil
}

// EncodeResponse renders resp as a JSON payload.
func EncodeResponse(resp Response) (string, error) {
	data, err := json.Marshal(resp)
	if err != nil {
		return "", wrapMalformed(err)
	}
	return string(data), nil
}

// DecodeResponse parses a JSON payload into a Response.
func DecodeResponse(payload string) (Response, error) {
	var resp Response
	if err := json.Unmarshal([]byte(payload), &resp); err != nil {
		return Response{}, wrapMalformed(err)
	}
	return resp, nil
}

// SendCommand writes cmd to w as one frame.
func SendCommand(w io.Writer, cmd Command) error {
	payload, err := EncodeCommand(cmd)
	if err != nil {
		return err
	}
	return WriteFrame(w, payload)
}

// ReceiveCommand reads one frame from r and decodes it as a Command.
// Framing errors and ErrMalformedMessage are returned unchanged so the
// caller can tell a broken stream from a bad message.
func ReceiveCommand(r io.Reader) (Command, error) {
	payload, err := ReadFrame(r)
	if err != nil {
		return 0, err
	}
	return DecodeCommand(payload)
}

// SendResponse writes resp to w as one frame.
func SendResponse(w io.Writer, resp Response) error {
	payload, err := EncodeResponse(resp)
	if err != nil {
		return err
	}
	return WriteFrame(w, payload)
}

// ReceiveResponse reads one frame from r and decodes it as a Response.
func ReceiveResponse(r io.Reader) (Response, error) {
	payload, err := ReadFrame(r)
	if err != nil {
		return Response{}, err
	}
	return DecodeResponse(payload)
}

// Exchange performs one command/response round trip on conn. The write and
// the read share a single deadline: timeout from now, or the context
// deadline if that is sooner. Cancelling ctx aborts the exchange.
//
// Errors:
//   - ErrTimeout: the deadline passed before a full response arrived
//   - ctx.Err(): the context was cancelled
//   - framing or ErrMalformedMessage errors from the response
//   - other I/O errors wrapped as "send command" / "receive response"
//
// On any error the connection is left in an unknown state and should be
// closed by the caller.
func Exchange(ctx context.Context, conn net.Conn, cmd Command, timeout time.Duration) (Response, error) {
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return Response{}, fmt.Errorf("set deadline: %w", err)
	}
	defer conn.SetDeadline(time.Time{}) //nolint:errcheck // best-effort reset

	// Unblock pending I/O as soon as ctx is cancelled.
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Unix(1, 0)) //nolint:errcheck // conn is discarded after cancellation
	})
	defer stop()

	if err := SendCommand(conn, cmd); err != nil {
		return Response{}, exchangeError(ctx, "send command", err)
	}

	resp, err := ReceiveResponse(conn)
	if err != nil {
		return Response{}, exchangeError(ctx, "receive response", err)
	}
	return resp, nil
}

func exchangeError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if isTimeoutError(err) {
		return fmt.Errorf("%w: %s", ErrTimeout, op)
	}
	if IsFramingError(err) || errors.Is(err, ErrMalformedMessage) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}

// wrapMalformed tags JSON errors with ErrMalformedMessage unless they
// already carry it.
func wrapMalformed(err error) error {
	if errors.Is(err, ErrMalformedMessage) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrMalformedMessage, err)
}
