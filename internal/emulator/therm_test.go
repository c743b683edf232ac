package emulator

import (
	"context"
	"math/rand/v2"
	"net"
	"testing"
	"time"

	"github.com/DyakonovAlex/smart-home/internal/controller"
	"github.com/DyakonovAlex/smart-home/internal/device"
	"github.com/DyakonovAlex/smart-home/internal/protocol"
)

func listenUDP(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen udp: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readSample(t *testing.T, conn *net.UDPConn) protocol.ThermSample {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck
	buf := make([]byte, 1024)
	n, _, err := conn.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("read datagram: %v", err)
	}
	sample, err := protocol.DecodeThermSample(buf[:n])
	if err != nil {
		t.Fatalf("DecodeThermSample(%q) error = %v", buf[:n], err)
	}
	return sample
}

func TestThermEmulatorSendsSamples(t *testing.T) {
	sink := listenUDP(t)

	e := NewThermEmulator(ThermConfig{
		InitialTemperature: 22,
		DeviceID:           "therm_emulator",
		Scenario:           ScenarioFire,
		Interval:           10 * time.Millisecond,
		Rand:               rand.New(rand.NewPCG(3, 4)),
	})
	if err := e.ConnectTo(sink.LocalAddr().String()); err != nil {
		t.Fatalf("ConnectTo() error = %v", err)
	}
	if err := e.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer e.Stop()

	prev := device.Celsius(22)
	for i := 0; i < 3; i++ {
		s := readSample(t, sink)
		if s.DeviceID != "therm_emulator" {
			t.Errorf("device_id = %q", s.DeviceID)
		}
		got := device.Celsius(s.Temperature)
		if got-prev < 1 || got-prev > 3 {
			t.Errorf("sample %d: rise %v outside [1, 3]", i, got-prev)
		}
		prev = got
	}
}

func TestThermEmulatorClampsAtAbsoluteZero(t *testing.T) {
	sink := listenUDP(t)

	e := NewThermEmulator(ThermConfig{
		InitialTemperature: -272,
		Scenario:           ScenarioFreeze,
		Interval:           5 * time.Millisecond,
	})
	if err := e.ConnectTo(sink.LocalAddr().String()); err != nil {
		t.Fatalf("ConnectTo() error = %v", err)
	}
	if err := e.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer e.Stop()

	for i := 0; i < 3; i++ {
		s := readSample(t, sink)
		if s.Temperature != float64(device.AbsoluteZero) {
			t.Errorf("sample %d = %v, want %v", i, s.Temperature, device.AbsoluteZero)
		}
		if s.DeviceID != "" {
			t.Errorf("device_id = %q, want empty", s.DeviceID)
		}
	}
}

func TestThermEmulatorWithoutTargetStillSteps(t *testing.T) {
	e := NewThermEmulator(ThermConfig{InitialTemperature: 20, Interval: 5 * time.Millisecond})
	if err := e.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for e.Stats().StepsTotal < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	e.Stop()
	e.Stop()

	stats := e.Stats()
	if stats.StepsTotal < 3 {
		t.Errorf("StepsTotal = %d, want >= 3", stats.StepsTotal)
	}
	if stats.SentTotal != 0 {
		t.Errorf("SentTotal = %d, want 0", stats.SentTotal)
	}
	if e.IsRunning() {
		t.Error("IsRunning() = true after Stop")
	}
}

func TestThermEmulatorDoubleStartPanics(t *testing.T) {
	e := NewThermEmulator(ThermConfig{Interval: time.Hour})
	if err := e.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer e.Stop()

	defer func() {
		if recover() == nil {
			t.Error("second Start() did not panic")
		}
	}()
	e.Start() //nolint:errcheck
}

func TestThermEmulatorSetScenario(t *testing.T) {
	e := NewThermEmulator(ThermConfig{})
	if e.Scenario() != ScenarioNormal {
		t.Fatalf("default scenario = %v", e.Scenario())
	}
	e.SetScenario(ScenarioFluctuate)
	if e.Scenario() != ScenarioFluctuate {
		t.Errorf("Scenario() = %v, want fluctuate", e.Scenario())
	}
}

func TestThermEmulatorFeedsController(t *testing.T) {
	c := controller.NewThermController(controller.ThermConfig{
		ListenAddress:      "127.0.0.1:0",
		InitialTemperature: 0,
		MaxAge:             time.Second,
	})
	if err := c.Start(); err != nil {
		t.Fatalf("controller Start() error = %v", err)
	}
	defer c.Close()

	e := NewThermEmulator(ThermConfig{
		InitialTemperature: 22,
		DeviceID:           "therm_emulator",
		Scenario:           ScenarioNormal,
		Interval:           10 * time.Millisecond,
	})
	if err := e.ConnectTo(c.LocalAddr().String()); err != nil {
		t.Fatalf("ConnectTo() error = %v", err)
	}
	if err := e.Start(); err != nil {
		t.Fatalf("emulator Start() error = %v", err)
	}
	defer e.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	got, err := c.WaitForNewData(ctx)
	if err != nil {
		t.Fatalf("WaitForNewData() error = %v", err)
	}
	if got < 20 || got > 24 {
		t.Errorf("temperature = %v, want near 22", got)
	}

	if _, err := c.Temperature(); err != nil {
		t.Errorf("Temperature() error = %v after fresh sample", err)
	}
}
