package emulator

import (
	"fmt"
	"math/rand/v2"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/DyakonovAlex/smart-home/internal/device"
	"github.com/DyakonovAlex/smart-home/internal/protocol"
)

// DefaultThermInterval is the send period when the config leaves it unset.
const DefaultThermInterval = time.Second

// ThermConfig configures a ThermEmulator.
type ThermConfig struct {
	InitialTemperature device.Celsius

	// DeviceID is sent with every sample; empty sends null.
	DeviceID string

	Scenario Scenario

	// Interval is the time between steps.
	// Default: 1s
	Interval time.Duration

	// Rand overrides the random source, for reproducible runs.
	Rand *rand.Rand
}

// ThermStats holds runtime counters for metrics.
type ThermStats struct {
	StepsTotal      uint64
	SentTotal       uint64
	SendErrorsTotal uint64
}

// ThermEmulator simulates a thermometer that pushes one sample per interval
// to a UDP destination. Without a destination it still steps the
// temperature but sends nothing.
type ThermEmulator struct {
	mu          sync.Mutex
	cfg         ThermConfig
	temperature device.Celsius
	target      *net.UDPAddr
	rng         *rand.Rand

	// runMu guards stop and running.
	runMu   sync.Mutex
	stop    chan struct{}
	running bool
	wg      sync.WaitGroup

	logger   Logger
	loggerMu sync.RWMutex

	stepsTotal      atomic.Uint64
	sentTotal       atomic.Uint64
	sendErrorsTotal atomic.Uint64
}

// NewThermEmulator creates a stopped emulator.
func NewThermEmulator(cfg ThermConfig) *ThermEmulator {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultThermInterval
	}
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &ThermEmulator{
		cfg:         cfg,
		temperature: cfg.InitialTemperature,
		rng:         rng,
		logger:      noopLogger{},
	}
}

// SetLogger sets the logger for this emulator.
func (e *ThermEmulator) SetLogger(logger Logger) {
	e.loggerMu.Lock()
	e.logger = logger
	e.loggerMu.Unlock()
}

func (e *ThermEmulator) log() Logger {
	e.loggerMu.RLock()
	defer e.loggerMu.RUnlock()
	return e.logger
}

// ConnectTo sets the UDP destination for samples.
func (e *ThermEmulator) ConnectTo(addr string) error {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return fmt.Errorf("emulator: resolve %s: %w", addr, err)
	}
	e.mu.Lock()
	e.target = udpAddr
	e.mu.Unlock()
	return nil
}

// SetScenario switches the scenario; the next step uses it.
func (e *ThermEmulator) SetScenario(s Scenario) {
	e.mu.Lock()
	e.cfg.Scenario = s
	e.mu.Unlock()
	e.log().Info("therm scenario changed", "scenario", s.String())
}

// Scenario returns the current scenario.
func (e *ThermEmulator) Scenario() Scenario {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg.Scenario
}

// Temperature returns the latest emulated temperature.
func (e *ThermEmulator) Temperature() device.Celsius {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.temperature
}

// Start opens a sending socket and starts the step loop. The first sample
// goes out immediately. Calling Start on a running emulator is a usage
// error and panics.
func (e *ThermEmulator) Start() error {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	if e.running {
		panic("emulator: therm emulator already running")
	}

	conn, err := net.ListenUDP("udp", nil)
	if err != nil {
		return fmt.Errorf("emulator: open udp socket: %w", err)
	}

	e.stop = make(chan struct{})
	e.running = true
	e.wg.Add(1)
	go e.loop(conn, e.stop)

	e.log().Info("therm emulator started",
		"scenario", e.Scenario().String(),
		"interval", e.cfg.Interval,
		"device_id", e.cfg.DeviceID,
	)
	return nil
}

// Stop ends the step loop and waits for it. Safe to call more than once.
func (e *ThermEmulator) Stop() {
	e.runMu.Lock()
	if !e.running {
		e.runMu.Unlock()
		e.wg.Wait()
		return
	}
	close(e.stop)
	e.running = false
	e.runMu.Unlock()

	e.wg.Wait()
	e.log().Info("therm emulator stopped", "temperature", float64(e.Temperature()))
}

// IsRunning reports whether the step loop is active.
func (e *ThermEmulator) IsRunning() bool {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	return e.running
}

func (e *ThermEmulator) loop(conn *net.UDPConn, stop <-chan struct{}) {
	defer e.wg.Done()
	defer conn.Close()

	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	for {
		e.tick(conn)

		select {
		case <-stop:
			return
		case <-ticker.C:
		}
	}
}

// tick advances the temperature and sends it to the destination, if any.
func (e *ThermEmulator) tick(conn *net.UDPConn) {
	e.mu.Lock()
	next := Step(e.temperature, e.cfg.Scenario, e.rng)
	if next < device.AbsoluteZero {
		next = device.AbsoluteZero
	}
	e.temperature = next
	target := e.target
	e.mu.Unlock()

	e.stepsTotal.Add(1)
	if target == nil {
		return
	}

	datagram, err := protocol.EncodeThermSample(protocol.ThermSample{
		Temperature: float64(next),
		DeviceID:    e.cfg.DeviceID,
	})
	if err != nil {
		e.sendErrorsTotal.Add(1)
		e.log().Error("encode therm sample failed", "error", err)
		return
	}

	if _, err := conn.WriteToUDP(datagram, target); err != nil {
		e.sendErrorsTotal.Add(1)
		e.log().Warn("send therm sample failed", "target", target.String(), "error", err)
		return
	}
	e.sentTotal.Add(1)
	e.log().Debug("therm sample sent", "temperature", float64(next), "target", target.String())
}

// Stats returns runtime counters.
func (e *ThermEmulator) Stats() ThermStats {
	return ThermStats{
		StepsTotal:      e.stepsTotal.Load(),
		SentTotal:       e.sentTotal.Load(),
		SendErrorsTotal: e.sendErrorsTotal.Load(),
	}
}
