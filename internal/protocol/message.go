package protocol

import (
	"encoding/json"
	"fmt"
)

// AbsoluteZero is the lowest temperature a ThermSample may carry, in °C.
const AbsoluteZero = -273.15

// Command is a request sent from a controller to an outlet.
type Command int

// Outlet commands.
const (
	TurnOn Command = iota + 1
	TurnOff
	Power
)

// String returns the wire name of the command.
func (c Command) String() string {
	switch c {
	case TurnOn:
		return "turn_on"
	case TurnOff:
		return "turn_off"
	case Power:
		return "power"
	default:
		return fmt.Sprintf("command(%d)", int(c))
	}
}

// ParseCommand converts a wire name into a Command.
func ParseCommand(name string) (Command, error) {
	switch name {
	case "turn_on":
		return TurnOn, nil
	case "turn_off":
		return TurnOff, nil
	case "power":
		return Power, nil
	default:
		return 0, fmt.Errorf("%w: unknown command %q", ErrMalformedMessage, name)
	}
}

type commandWire struct {
	Command *string `json:"command"`
}

// MarshalJSON encodes the command as {"command":"<name>"}.
func (c Command) MarshalJSON() ([]byte, error) {
	if c < TurnOn || c > Power {
		return nil, fmt.Errorf("%w: unknown command %d", ErrMalformedMessage, int(c))
	}
	name := c.String()
	return json.Marshal(commandWire{Command: &name})
}

// UnmarshalJSON decodes {"command":"<name>"}.
func (c *Command) UnmarshalJSON(data []byte) error {
	var w commandWire
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}
	if w.Command == nil {
		return fmt.Errorf("%w: missing command field", ErrMalformedMessage)
	}
	parsed, err := ParseCommand(*w.Command)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// OutletSnapshot is an outlet's reported state at a point in time.
// An inactive outlet always reports zero power.
type OutletSnapshot struct {
	Active bool
	Power  float64

	// DeviceID is empty when the outlet reports no id. The wire carries
	// an empty id as null, and "" from a peer decodes to the same value.
	DeviceID string
}

// Response is an outlet's reply to a Command: either OK with a snapshot,
// or an error with a human-readable message.
type Response struct {
	OK       bool
	Snapshot OutletSnapshot
	Message  string
}

// OKResponse builds a successful response carrying s.
func OKResponse(s OutletSnapshot) Response {
	return Response{OK: true, Snapshot: s}
}

// ErrorResponse builds a failure response carrying msg.
func ErrorResponse(msg string) Response {
	return Response{Message: msg}
}

const (
	resultOK    = "ok"
	resultError = "error"
)

type okWire struct {
	Result   string  `json:"result"`
	Active   bool    `json:"active"`
	Power    float64 `json:"power"`
	DeviceID *string `json:"device_id"`
}

type errorWire struct {
	Result  string `json:"result"`
	Message string `json:"message"`
}

type responseWire struct {
	Result   *string  `json:"result"`
	Active   *bool    `json:"active"`
	Power    *float64 `json:"power"`
	DeviceID *string  `json:"device_id"`
	Message  *string  `json:"message"`
}

// MarshalJSON encodes the flat wire form. An empty DeviceID is sent as null.
func (r Response) MarshalJSON() ([]byte, error) {
	if !r.OK {
		return json.Marshal(errorWire{Result: resultError, Message: r.Message})
	}
	return json.Marshal(okWire{
		Result:   resultOK,
		Active:   r.Snapshot.Active,
		Power:    r.Snapshot.Power,
		DeviceID: optionalString(r.Snapshot.DeviceID),
	})
}

// UnmarshalJSON decodes the flat wire form, rejecting unknown results and
// missing required fields.
func (r *Response) UnmarshalJSON(data []byte) error {
	var w responseWire
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}
	if w.Result == nil {
		return fmt.Errorf("%w: missing result field", ErrMalformedMessage)
	}

	switch *w.Result {
	case resultOK:
		if w.Active == nil || w.Power == nil {
			return fmt.Errorf("%w: ok response without active/power", ErrMalformedMessage)
		}
		if *w.Power < 0 {
			return fmt.Errorf("%w: negative power %v", ErrMalformedMessage, *w.Power)
		}
		snap := OutletSnapshot{Active: *w.Active, Power: *w.Power}
		if w.DeviceID != nil {
			snap.DeviceID = *w.DeviceID
		}
		*r = OKResponse(snap)
	case resultError:
		if w.Message == nil {
			return fmt.Errorf("%w: error response without message", ErrMalformedMessage)
		}
		*r = ErrorResponse(*w.Message)
	default:
		return fmt.Errorf("%w: unknown result %q", ErrMalformedMessage, *w.Result)
	}
	return nil
}

// ThermSample is one thermometer reading as sent over UDP.
type ThermSample struct {
	Temperature float64

	// DeviceID follows the OutletSnapshot rule: "" and null are one value.
	DeviceID string
}

type thermWire struct {
	Temperature *float64 `json:"temperature"`
	DeviceID    *string  `json:"device_id"`
}

// MarshalJSON encodes {"temperature":t,"device_id":id|null}.
func (s ThermSample) MarshalJSON() ([]byte, error) {
	if s.Temperature < AbsoluteZero {
		return nil, fmt.Errorf("%w: temperature %v below absolute zero", ErrMalformedMessage, s.Temperature)
	}
	t := s.Temperature
	return json.Marshal(thermWire{Temperature: &t, DeviceID: optionalString(s.DeviceID)})
}

// UnmarshalJSON decodes a sample. A missing device_id is accepted; a missing
// temperature or one below absolute zero is not.
func (s *ThermSample) UnmarshalJSON(data []byte) error {
	var w thermWire
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}
	if w.Temperature == nil {
		return fmt.Errorf("%w: missing temperature", ErrMalformedMessage)
	}
	if *w.Temperature < AbsoluteZero {
		return fmt.Errorf("%w: temperature %v below absolute zero", ErrMalformedMessage, *w.Temperature)
	}
	s.Temperature = *w.Temperature
	s.DeviceID = ""
	if w.DeviceID != nil {
		s.DeviceID = *w.DeviceID
	}
	return nil
}

// DecodeThermSample parses one UDP datagram.
func DecodeThermSample(datagram []byte) (ThermSample, error) {
	var s ThermSample
	if err := json.Unmarshal(datagram, &s); err != nil {
		return ThermSample{}, wrapMalformed(err)
	}
	return s, nil
}

// EncodeThermSample renders s as one UDP datagram.
func EncodeThermSample(s ThermSample) ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, wrapMalformed(err)
	}
	return data, nil
}

// optionalString maps the empty id to null.
func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
