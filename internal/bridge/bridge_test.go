package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DyakonovAlex/smart-home/internal/controller"
	"github.com/DyakonovAlex/smart-home/internal/device"
	"github.com/DyakonovAlex/smart-home/internal/infrastructure/mqtt"
	"github.com/DyakonovAlex/smart-home/internal/journal"
	"github.com/DyakonovAlex/smart-home/internal/protocol"
	"github.com/DyakonovAlex/smart-home/internal/subscription"
)

type published struct {
	topic    string
	payload  []byte
	retained bool
}

type fakeMQTT struct {
	mu           sync.Mutex
	messages     []published
	handlers     map[string]mqtt.MessageHandler
	unsubscribed []string
}

func newFakeMQTT() *fakeMQTT {
	return &fakeMQTT{handlers: make(map[string]mqtt.MessageHandler)}
}

func (f *fakeMQTT) Publish(topic string, payload []byte, _ byte, retained bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, published{topic: topic, payload: payload, retained: retained})
	return nil
}

func (f *fakeMQTT) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[topic] = handler
	return nil
}

func (f *fakeMQTT) Unsubscribe(topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers, topic)
	f.unsubscribed = append(f.unsubscribed, topic)
	return nil
}

func (f *fakeMQTT) handler(topic string) mqtt.MessageHandler {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handlers[topic]
}

func (f *fakeMQTT) on(topic string) []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []published
	for _, m := range f.messages {
		if m.topic == topic {
			out = append(out, m)
		}
	}
	return out
}

type fakeOutlet struct {
	snapshot protocol.OutletSnapshot
	err      error
	got      []protocol.Command
}

func (f *fakeOutlet) Execute(_ context.Context, cmd protocol.Command) (protocol.OutletSnapshot, error) {
	f.got = append(f.got, cmd)
	return f.snapshot, f.err
}

type fakeThermometer struct {
	reg *subscription.Registry[controller.Reading]
}

func (f *fakeThermometer) OnTemperatureChange(cb func(controller.Reading)) *subscription.Handle {
	return f.reg.Subscribe(cb)
}

type fakeTelemetry struct {
	mu           sync.Mutex
	temperatures []device.Celsius
	powers       []device.Watts
}

func (f *fakeTelemetry) WriteTemperature(_ string, t device.Celsius) {
	f.mu.Lock()
	f.temperatures = append(f.temperatures, t)
	f.mu.Unlock()
}

func (f *fakeTelemetry) WriteOutletPower(_ string, p device.Watts, _ bool) {
	f.mu.Lock()
	f.powers = append(f.powers, p)
	f.mu.Unlock()
}

type fakeJournal struct {
	mu     sync.Mutex
	events []journal.Event
}

func (f *fakeJournal) Record(_ context.Context, e *journal.Event) error {
	f.mu.Lock()
	f.events = append(f.events, *e)
	f.mu.Unlock()
	return nil
}

func (f *fakeJournal) kinds() []journal.Kind {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]journal.Kind, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.Kind)
	}
	return out
}

var fixedTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNewBridgeRequiresClient(t *testing.T) {
	if _, err := NewBridge(BridgeOptions{}); !errors.Is(err, ErrMQTTClientRequired) {
		t.Errorf("NewBridge() error = %v, want ErrMQTTClientRequired", err)
	}
}

func TestBridgeOutletCommand(t *testing.T) {
	client := newFakeMQTT()
	outlet := &fakeOutlet{snapshot: protocol.OutletSnapshot{Active: true, Power: 1500, DeviceID: "outlet1"}}
	telemetry := &fakeTelemetry{}
	events := &fakeJournal{}

	b, err := NewBridge(BridgeOptions{
		MQTTClient: client,
		Outlet:     outlet,
		OutletID:   "outlet1",
		Telemetry:  telemetry,
		Journal:    events,
		Clock:      func() time.Time { return fixedTime },
	})
	if err != nil {
		t.Fatalf("NewBridge() error = %v", err)
	}
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer b.Stop()

	handler := client.handler("smarthome/command/socket/outlet1")
	if handler == nil {
		t.Fatal("no handler subscribed on the command topic")
	}
	if err := handler("smarthome/command/socket/outlet1", []byte(`{"command":"turn_on"}`)); err != nil {
		t.Fatalf("handler error = %v", err)
	}

	if len(outlet.got) != 1 || outlet.got[0] != protocol.TurnOn {
		t.Errorf("outlet received %v, want [turn_on]", outlet.got)
	}

	states := client.on("smarthome/state/socket/outlet1")
	if len(states) != 1 || !states[0].retained {
		t.Fatalf("state messages = %+v, want one retained", states)
	}
	var state SocketState
	if err := json.Unmarshal(states[0].payload, &state); err != nil {
		t.Fatalf("unmarshal state: %v", err)
	}
	if !state.Active || state.Power != 1500 || !state.Timestamp.Equal(fixedTime) {
		t.Errorf("state = %+v", state)
	}

	acks := client.on("smarthome/ack/socket/outlet1")
	if len(acks) != 1 || acks[0].retained {
		t.Fatalf("ack messages = %+v, want one non-retained", acks)
	}
	var ack Ack
	if err := json.Unmarshal(acks[0].payload, &ack); err != nil {
		t.Fatalf("unmarshal ack: %v", err)
	}
	if ack.Command != "turn_on" || !ack.OK || ack.Error != "" {
		t.Errorf("ack = %+v", ack)
	}

	if len(telemetry.powers) != 1 || telemetry.powers[0] != 1500 {
		t.Errorf("telemetry powers = %v, want [1500]", telemetry.powers)
	}
	if kinds := events.kinds(); len(kinds) != 1 || kinds[0] != journal.KindOutletCommand {
		t.Errorf("journal kinds = %v", kinds)
	}
	if got := b.Stats(); got.CommandsTotal != 1 || got.CommandsFailed != 0 {
		t.Errorf("Stats() = %+v", got)
	}
}

func TestBridgeOutletCommandFailures(t *testing.T) {
	tests := []struct {
		name        string
		payload     string
		outletErr   error
		wantErr     error
		wantCommand string
	}{
		{
			name:    "malformed payload",
			payload: `{"command":"explode"}`,
			wantErr: ErrInvalidCommand,
		},
		{
			name:        "device error",
			payload:     `{"command":"turn_off"}`,
			outletErr:   &controller.DeviceError{Message: "overheated"},
			wantCommand: "turn_off",
		},
		{
			name:        "timeout",
			payload:     `{"command":"power"}`,
			outletErr:   controller.ErrTimeout,
			wantCommand: "power",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newFakeMQTT()
			outlet := &fakeOutlet{err: tt.outletErr}
			b, err := NewBridge(BridgeOptions{MQTTClient: client, Outlet: outlet, OutletID: "o"})
			if err != nil {
				t.Fatalf("NewBridge() error = %v", err)
			}

			err = b.handleCommand("smarthome/command/socket/o", []byte(tt.payload))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("handleCommand() error = %v, want %v", err, tt.wantErr)
				}
			} else if err != nil {
				t.Fatalf("handleCommand() error = %v", err)
			}

			if states := client.on("smarthome/state/socket/o"); len(states) != 0 {
				t.Errorf("state published after failure: %+v", states)
			}
			acks := client.on("smarthome/ack/socket/o")
			if len(acks) != 1 {
				t.Fatalf("got %d acks, want 1", len(acks))
			}
			var ack Ack
			if err := json.Unmarshal(acks[0].payload, &ack); err != nil {
				t.Fatalf("unmarshal ack: %v", err)
			}
			if ack.OK || ack.Error == "" || ack.Command != tt.wantCommand {
				t.Errorf("ack = %+v", ack)
			}
			if got := b.Stats().CommandsFailed; got != 1 {
				t.Errorf("CommandsFailed = %d, want 1", got)
			}
		})
	}
}

func TestBridgeThermReadings(t *testing.T) {
	client := newFakeMQTT()
	reg := subscription.NewRegistry[controller.Reading]()
	telemetry := &fakeTelemetry{}
	events := &fakeJournal{}

	b, err := NewBridge(BridgeOptions{
		MQTTClient:  client,
		Thermometer: &fakeThermometer{reg: reg},
		ThermID:     "therm1",
		Telemetry:   telemetry,
		Journal:     events,
		Clock:       func() time.Time { return fixedTime },
	})
	if err != nil {
		t.Fatalf("NewBridge() error = %v", err)
	}
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer b.Stop()

	stale := controller.Reading{Err: controller.ErrNoFreshData}
	reg.Notify(controller.Reading{Temperature: 21.5})
	reg.Notify(stale)
	reg.Notify(stale)
	reg.Notify(stale)
	reg.Notify(controller.Reading{Temperature: 22})

	topic := "smarthome/state/therm/therm1"
	waitFor(t, func() bool { return len(client.on(topic)) == 3 })

	msgs := client.on(topic)
	want := []ThermState{
		{Fresh: true},
		{Fresh: false, Error: noFreshData},
		{Fresh: true},
	}
	wantTemps := []float64{21.5, 0, 22}
	for i, m := range msgs {
		if !m.retained {
			t.Errorf("message %d not retained", i)
		}
		var got ThermState
		if err := json.Unmarshal(m.payload, &got); err != nil {
			t.Fatalf("unmarshal %d: %v", i, err)
		}
		if got.Fresh != want[i].Fresh || got.Error != want[i].Error {
			t.Errorf("message %d = %+v, want fresh=%v error=%q", i, got, want[i].Fresh, want[i].Error)
		}
		if want[i].Fresh && (got.Temperature == nil || *got.Temperature != wantTemps[i]) {
			t.Errorf("message %d temperature = %v, want %v", i, got.Temperature, wantTemps[i])
		}
		if !want[i].Fresh && got.Temperature != nil {
			t.Errorf("stale message carries temperature %v", *got.Temperature)
		}
	}

	wantKinds := []journal.Kind{journal.KindThermFresh, journal.KindThermStale, journal.KindThermFresh}
	kinds := events.kinds()
	if len(kinds) != len(wantKinds) {
		t.Fatalf("journal kinds = %v, want %v", kinds, wantKinds)
	}
	for i := range wantKinds {
		if kinds[i] != wantKinds[i] {
			t.Errorf("journal kind %d = %v, want %v", i, kinds[i], wantKinds[i])
		}
	}

	telemetry.mu.Lock()
	temps := len(telemetry.temperatures)
	telemetry.mu.Unlock()
	if temps != 2 {
		t.Errorf("telemetry wrote %d temperatures, want 2", temps)
	}

	stats := b.Stats()
	if stats.ReadingsPublished != 2 || stats.StaleSuppressed != 2 {
		t.Errorf("Stats() = %+v", stats)
	}
}

func TestBridgeStop(t *testing.T) {
	client := newFakeMQTT()
	reg := subscription.NewRegistry[controller.Reading]()
	b, err := NewBridge(BridgeOptions{
		MQTTClient:  client,
		Outlet:      &fakeOutlet{},
		OutletID:    "o",
		Thermometer: &fakeThermometer{reg: reg},
		ThermID:     "t",
	})
	if err != nil {
		t.Fatalf("NewBridge() error = %v", err)
	}
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("second Start() error = %v", err)
	}
	if reg.Len() != 1 {
		t.Fatalf("registry has %d subscribers, want 1", reg.Len())
	}

	b.Stop()
	b.Stop()

	if reg.Len() != 0 {
		t.Errorf("registry has %d subscribers after Stop, want 0", reg.Len())
	}
	if client.handler("smarthome/command/socket/o") != nil {
		t.Error("command topic still subscribed after Stop")
	}
	if err := b.Start(context.Background()); !errors.Is(err, ErrStopped) {
		t.Errorf("Start() after Stop error = %v, want ErrStopped", err)
	}
}
