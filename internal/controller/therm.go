package controller

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/DyakonovAlex/smart-home/internal/device"
	"github.com/DyakonovAlex/smart-home/internal/protocol"
	"github.com/DyakonovAlex/smart-home/internal/subscription"
)

const (
	// DefaultPollInterval is how long one receive attempt waits before the
	// listener checks staleness.
	DefaultPollInterval = 10 * time.Millisecond

	// DefaultMaxAge is the freshness window when the config leaves it unset.
	DefaultMaxAge = 5 * time.Second

	// receiveBufferSize bounds one datagram. Longer datagrams are truncated
	// and then fail to parse.
	receiveBufferSize = 1024
)

// StalePolicy decides how often stale data is announced.
type StalePolicy int

const (
	// StaleRepeat announces ErrNoFreshData on every poll tick while the
	// data stays stale.
	StaleRepeat StalePolicy = iota

	// StaleOnce announces ErrNoFreshData once per fresh to stale transition.
	StaleOnce
)

// ParseStalePolicy converts "repeat" or "once". Empty means StaleRepeat.
func ParseStalePolicy(s string) (StalePolicy, error) {
	switch strings.ToLower(s) {
	case "", "repeat":
		return StaleRepeat, nil
	case "once":
		return StaleOnce, nil
	default:
		return 0, fmt.Errorf("controller: unknown stale policy %q", s)
	}
}

func (p StalePolicy) String() string {
	if p == StaleOnce {
		return "once"
	}
	return "repeat"
}

// Reading is one outcome delivered to waiters and subscribers: a
// temperature, or Err set to ErrNoFreshData when the data went stale.
type Reading struct {
	Temperature device.Celsius
	Err         error
}

// OK reports whether the reading carries a temperature.
func (r Reading) OK() bool { return r.Err == nil }

// ThermConfig configures a ThermController.
type ThermConfig struct {
	// ListenAddress is the local UDP endpoint, "host:port".
	ListenAddress string

	// InitialTemperature seeds the local model. It is never reported as
	// fresh data.
	InitialTemperature device.Celsius

	// MaxAge is the freshness window.
	// Default: 5s
	MaxAge time.Duration

	// PollInterval bounds each receive attempt.
	// Default: 10ms
	PollInterval time.Duration

	// StalePolicy controls stale announcements. Default: StaleRepeat.
	StalePolicy StalePolicy

	// DeviceID names the local model.
	DeviceID string

	// Clock overrides time.Now, for tests.
	Clock func() time.Time
}

// ThermStats holds runtime counters for metrics.
type ThermStats struct {
	SamplesTotal   uint64
	MalformedTotal uint64
	StaleTotal     uint64
	LastUpdate     time.Time // zero if no sample was ever received
	Running        bool
}

// ThermController receives thermometer samples over UDP on a background
// listener, tracks how fresh the latest sample is, and fans readings out to
// blocking waiters and registered callbacks.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Callbacks run on the listener goroutine, one at a time, in
//     registration order. A slow callback delays the next receive.
type ThermController struct {
	cfg   ThermConfig
	clock func() time.Time

	mu          sync.RWMutex
	thermometer *device.Thermometer

	// lastUpdate is the unix time in ms of the latest sample, 0 = never.
	lastUpdate atomic.Int64

	slot        *subscription.Slot[Reading]
	subscribers *subscription.Registry[Reading]

	// runMu guards conn, stop, closed.
	runMu   sync.Mutex
	conn    *net.UDPConn
	stop    chan struct{}
	closed  bool
	running atomic.Bool
	wg      sync.WaitGroup

	// staleAnnounced is touched only by the listener goroutine.
	staleAnnounced bool

	logger   Logger
	loggerMu sync.RWMutex

	samplesTotal   atomic.Uint64
	malformedTotal atomic.Uint64
	staleTotal     atomic.Uint64
}

// NewThermController creates a stopped controller.
func NewThermController(cfg ThermConfig) *ThermController {
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultMaxAge
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &ThermController{
		cfg:         cfg,
		clock:       clock,
		thermometer: device.NewThermometer(cfg.DeviceID, cfg.InitialTemperature),
		slot:        subscription.NewSlot(Reading{Temperature: cfg.InitialTemperature, Err: ErrNoFreshData}),
		subscribers: subscription.NewRegistry[Reading](),
		logger:      noopLogger{},
	}
}

// SetLogger sets the logger for this controller.
func (c *ThermController) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

func (c *ThermController) log() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

// Start binds the UDP socket and starts the listener. Bind failures are
// returned, not retried. Calling Start on a running controller does nothing.
func (c *ThermController) Start() error {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.running.Load() {
		return nil
	}

	addr, err := net.ResolveUDPAddr("udp", c.cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("%w: resolve %s: %w", ErrNetwork, c.cfg.ListenAddress, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("%w: bind %s: %w", ErrNetwork, c.cfg.ListenAddress, err)
	}

	c.conn = conn
	c.stop = make(chan struct{})
	c.running.Store(true)

	c.wg.Add(1)
	go c.listen(conn, c.stop)

	c.log().Info("therm listener started", "address", conn.LocalAddr().String(), "max_age", c.cfg.MaxAge)
	return nil
}

// Stop signals the listener, unblocks its socket and waits for it to exit.
// Safe to call more than once.
func (c *ThermController) Stop() {
	c.runMu.Lock()
	if !c.running.Load() {
		c.runMu.Unlock()
		c.wg.Wait()
		return
	}
	close(c.stop)
	c.conn.Close() //nolint:errcheck // unblocks the pending read
	c.conn = nil
	c.running.Store(false)
	c.runMu.Unlock()

	c.wg.Wait()
	c.log().Info("therm listener stopped", "address", c.cfg.ListenAddress)
}

// Close stops the listener and wakes every WaitForNewData caller with
// ErrNetwork. The controller cannot be restarted.
func (c *ThermController) Close() error {
	c.Stop()

	c.runMu.Lock()
	c.closed = true
	c.runMu.Unlock()

	c.slot.Close()
	return nil
}

func (c *ThermController) listen(conn *net.UDPConn, stop <-chan struct{}) {
	defer c.wg.Done()

	buf := make([]byte, receiveBufferSize)
	for {
		select {
		case <-stop:
			return
		default:
		}

		if err := conn.SetReadDeadline(time.Now().Add(c.cfg.PollInterval)); err != nil {
			// Only fails once the socket is closed.
			return
		}

		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			if isTimeoutError(err) {
				c.checkStaleness()
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			c.log().Warn("therm receive failed", "error", err)
			select {
			case <-stop:
				return
			case <-time.After(c.cfg.PollInterval):
			}
			continue
		}

		c.handleDatagram(buf[:n], from)
	}
}

func (c *ThermController) handleDatagram(datagram []byte, from *net.UDPAddr) {
	sample, err := protocol.DecodeThermSample(datagram)
	if err != nil {
		c.malformedTotal.Add(1)
		c.log().Debug("dropping malformed therm datagram", "from", from.String(), "error", err)
		return
	}

	temp := device.Celsius(sample.Temperature)
	c.mu.Lock()
	c.thermometer.SetTemperature(temp)
	c.mu.Unlock()

	c.lastUpdate.Store(max(c.clock().UnixMilli(), 1))
	c.samplesTotal.Add(1)

	if c.staleAnnounced {
		c.log().Info("therm data fresh again", "temperature", float64(temp))
	}
	c.staleAnnounced = false

	reading := Reading{Temperature: temp}
	c.slot.Publish(reading)
	c.subscribers.Notify(reading)
}

// checkStaleness announces ErrNoFreshData if a sample was received once and
// is now older than MaxAge.
func (c *ThermController) checkStaleness() {
	if !c.isStale() {
		return
	}
	if c.cfg.StalePolicy == StaleOnce && c.staleAnnounced {
		return
	}
	if !c.staleAnnounced {
		c.log().Warn("therm data is stale", "max_age", c.cfg.MaxAge)
	}
	c.staleAnnounced = true
	c.staleTotal.Add(1)

	reading := Reading{Err: ErrNoFreshData}
	c.slot.Publish(reading)
	c.subscribers.Notify(reading)
}

// isStale reports whether data was received at least once and has since
// aged past MaxAge.
func (c *ThermController) isStale() bool {
	last := c.lastUpdate.Load()
	if last == 0 {
		return false
	}
	return c.clock().UnixMilli()-last > c.cfg.MaxAge.Milliseconds()
}

// Temperature returns the latest temperature without blocking. It fails
// with ErrNoFreshData if no sample was ever received or the latest one is
// older than MaxAge.
func (c *ThermController) Temperature() (device.Celsius, error) {
	if c.lastUpdate.Load() == 0 || c.isStale() {
		return 0, ErrNoFreshData
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.thermometer.Temperature(), nil
}

// WaitForNewData blocks until the listener publishes a reading after the
// call and returns it. A stale announcement returns ErrNoFreshData. It
// returns ErrNetwork once the controller is closed, or ctx's error.
func (c *ThermController) WaitForNewData(ctx context.Context) (device.Celsius, error) {
	reading, err := c.slot.Wait(ctx)
	if err != nil {
		if errors.Is(err, subscription.ErrClosed) {
			return 0, fmt.Errorf("%w: channel closed", ErrNetwork)
		}
		return 0, err
	}
	if reading.Err != nil {
		return 0, reading.Err
	}
	return reading.Temperature, nil
}

// OnTemperatureChange registers callback for every future reading. The
// subscription lasts until the returned handle is unsubscribed or becomes
// unreachable.
func (c *ThermController) OnTemperatureChange(callback func(Reading)) *subscription.Handle {
	return c.subscribers.Subscribe(callback)
}

// SubscriberCount returns the number of registered callbacks.
func (c *ThermController) SubscriberCount() int {
	return c.subscribers.Len()
}

// Device returns a copy of the local thermometer model.
func (c *ThermController) Device() *device.Thermometer {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return device.NewThermometer(c.thermometer.ID(), c.thermometer.Temperature())
}

// Report renders the local model.
func (c *ThermController) Report() string {
	return c.Device().Report()
}

func (c *ThermController) String() string { return c.Report() }

// ListenAddress returns the configured UDP endpoint.
func (c *ThermController) ListenAddress() string { return c.cfg.ListenAddress }

// LocalAddr returns the bound UDP address, or nil while stopped.
func (c *ThermController) LocalAddr() net.Addr {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if c.conn == nil {
		return nil
	}
	return c.conn.LocalAddr()
}

// MaxAge returns the freshness window.
func (c *ThermController) MaxAge() time.Duration { return c.cfg.MaxAge }

// IsRunning reports whether the listener is active.
func (c *ThermController) IsRunning() bool { return c.running.Load() }

// Stats returns runtime counters.
func (c *ThermController) Stats() ThermStats {
	stats := ThermStats{
		SamplesTotal:   c.samplesTotal.Load(),
		MalformedTotal: c.malformedTotal.Load(),
		StaleTotal:     c.staleTotal.Load(),
		Running:        c.running.Load(),
	}
	if ms := c.lastUpdate.Load(); ms != 0 {
		stats.LastUpdate = time.UnixMilli(ms)
	}
	return stats
}
