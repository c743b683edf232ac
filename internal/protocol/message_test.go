package protocol

import (
	"errors"
	"testing"
)

func TestCommand_RoundTrip(t *testing.T) {
	for _, cmd := range []Command{TurnOn, TurnOff, Power} {
		t.Run(cmd.String(), func(t *testing.T) {
			payload, err := EncodeCommand(cmd)
			if err != nil {
				t.Fatalf("EncodeCommand() error = %v", err)
			}
			got, err := DecodeCommand(payload)
			if err != nil {
				t.Fatalf("DecodeCommand(%s) error = %v", payload, err)
			}
			if got != cmd {
				t.Errorf("DecodeCommand() = %v, want %v", got, cmd)
			}
		})
	}
}

func TestEncodeCommand_WireForm(t *testing.T) {
	payload, err := EncodeCommand(TurnOn)
	if err != nil {
		t.Fatalf("EncodeCommand() error = %v", err)
	}
	if payload != `{"command":"turn_on"}` {
		t.Errorf("EncodeCommand(TurnOn) = %s", payload)
	}

	if _, err := EncodeCommand(Command(42)); !errors.Is(err, ErrMalformedMessage) {
		t.Errorf("EncodeCommand(42) error = %v, want ErrMalformedMessage", err)
	}
}

func TestDecodeCommand_Malformed(t *testing.T) {
	inputs := map[string]string{
		"not json":        "turn on please",
		"unknown command": `{"command":"explode"}`,
		"missing field":   `{"cmd":"turn_on"}`,
		"wrong type":      `{"command":1}`,
		"null":            `null`,
		"truncated json":  `{"command":"turn_on"`,
	}

	for name, input := range inputs {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeCommand(input)
			if !errors.Is(err, ErrMalformedMessage) {
				t.Errorf("DecodeCommand(%q) error = %v, want ErrMalformedMessage", input, err)
			}
			if IsFramingError(err) {
				t.Errorf("content error must not look like a framing error: %v", err)
			}
		})
	}
}

func TestResponse_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		resp Response
	}{
		{name: "active", resp: OKResponse(OutletSnapshot{Active: true, Power: 1500, DeviceID: "socket_emulator"})},
		{name: "inactive without id", resp: OKResponse(OutletSnapshot{})},
		{name: "error", resp: ErrorResponse("invalid command: explode")},
		{name: "empty error message", resp: ErrorResponse("")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := EncodeResponse(tt.resp)
			if err != nil {
				t.Fatalf("EncodeResponse() error = %v", err)
			}
			got, err := DecodeResponse(payload)
			if err != nil {
				t.Fatalf("DecodeResponse(%s) error = %v", payload, err)
			}
			if got != tt.resp {
				t.Errorf("DecodeResponse() = %+v, want %+v", got, tt.resp)
			}
		})
	}
}

func TestEncodeResponse_WireForm(t *testing.T) {
	tests := []struct {
		name string
		resp Response
		want string
	}{
		{
			name: "ok with id",
			resp: OKResponse(OutletSnapshot{Active: true, Power: 1500, DeviceID: "s1"}),
			want: `{"result":"ok","active":true,"power":1500,"device_id":"s1"}`,
		},
		{
			name: "ok without id sends null",
			resp: OKResponse(OutletSnapshot{}),
			want: `{"result":"ok","active":false,"power":0,"device_id":null}`,
		},
		{
			name: "error",
			resp: ErrorResponse("boom"),
			want: `{"result":"error","message":"boom"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodeResponse(tt.resp)
			if err != nil {
				t.Fatalf("EncodeResponse() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("EncodeResponse() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestEmptyDeviceIDIsNull(t *testing.T) {
	empty, err := DecodeResponse(`{"result":"ok","active":false,"power":0,"device_id":""}`)
	if err != nil {
		t.Fatalf("DecodeResponse(empty id) error = %v", err)
	}
	null, err := DecodeResponse(`{"result":"ok","active":false,"power":0,"device_id":null}`)
	if err != nil {
		t.Fatalf("DecodeResponse(null id) error = %v", err)
	}
	if empty != null {
		t.Errorf("empty id decodes to %+v, null id to %+v", empty, null)
	}

	got, err := EncodeResponse(empty)
	if err != nil {
		t.Fatalf("EncodeResponse() error = %v", err)
	}
	if want := `{"result":"ok","active":false,"power":0,"device_id":null}`; got != want {
		t.Errorf("EncodeResponse() = %s, want %s", got, want)
	}

	sample, err := DecodeThermSample([]byte(`{"temperature":20,"device_id":""}`))
	if err != nil {
		t.Fatalf("DecodeThermSample() error = %v", err)
	}
	data, err := EncodeThermSample(sample)
	if err != nil {
		t.Fatalf("EncodeThermSample() error = %v", err)
	}
	if want := `{"temperature":20,"device_id":null}`; string(data) != want {
		t.Errorf("EncodeThermSample() = %s, want %s", data, want)
	}
}

func TestDecodeResponse_Malformed(t *testing.T) {
	inputs := []string{
		`{"result":"maybe"}`,
		`{"active":true,"power":1}`,
		`{"result":"ok","power":1}`,
		`{"result":"ok","active":true}`,
		`{"result":"ok","active":true,"power":-5}`,
		`{"result":"error"}`,
		`[]`,
	}

	for _, input := range inputs {
		if _, err := DecodeResponse(input); !errors.Is(err, ErrMalformedMessage) {
			t.Errorf("DecodeResponse(%s) error = %v, want ErrMalformedMessage", input, err)
		}
	}
}

func TestThermSample_RoundTrip(t *testing.T) {
	samples := []ThermSample{
		{Temperature: 22.5, DeviceID: "therm_emulator"},
		{Temperature: -40},
		{Temperature: AbsoluteZero},
	}

	for _, s := range samples {
		data, err := EncodeThermSample(s)
		if err != nil {
			t.Fatalf("EncodeThermSample(%+v) error = %v", s, err)
		}
		got, err := DecodeThermSample(data)
		if err != nil {
			t.Fatalf("DecodeThermSample(%s) error = %v", data, err)
		}
		if got != s {
			t.Errorf("DecodeThermSample() = %+v, want %+v", got, s)
		}
	}
}

func TestDecodeThermSample(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    ThermSample
		wantErr bool
	}{
		{name: "with device id", input: `{"temperature":21.5,"device_id":"t1"}`, want: ThermSample{Temperature: 21.5, DeviceID: "t1"}},
		{name: "null device id", input: `{"temperature":21.5,"device_id":null}`, want: ThermSample{Temperature: 21.5}},
		{name: "missing device id", input: `{"temperature":-3}`, want: ThermSample{Temperature: -3}},
		{name: "missing temperature", input: `{"device_id":"t1"}`, wantErr: true},
		{name: "string temperature", input: `{"temperature":"hot"}`, wantErr: true},
		{name: "below absolute zero", input: `{"temperature":-300}`, wantErr: true},
		{name: "garbage", input: `garbage`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeThermSample([]byte(tt.input))
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedMessage) {
					t.Errorf("DecodeThermSample() error = %v, want ErrMalformedMessage", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeThermSample() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("DecodeThermSample() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
