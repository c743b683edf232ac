package controller

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/DyakonovAlex/smart-home/internal/device"
	"github.com/DyakonovAlex/smart-home/internal/protocol"
)

const (
	// DefaultSocketTimeout bounds connect and each round trip when the
	// config leaves Timeout unset.
	DefaultSocketTimeout = 5 * time.Second

	// livenessCheckWindow is how long the liveness check waits for the
	// kernel to report a closed or reset connection.
	livenessCheckWindow = time.Millisecond
)

// SocketConfig configures a SocketController.
type SocketConfig struct {
	// Address is the outlet's TCP endpoint, "host:port".
	Address string

	// PowerRating seeds the local model. Reported snapshots override it.
	PowerRating device.Watts

	// Timeout bounds the connect step and, separately, each round trip.
	// Default: 5s
	Timeout time.Duration

	// DeviceID seeds the local model's id until the outlet reports one.
	DeviceID string
}

// SocketStats holds runtime counters for metrics.
type SocketStats struct {
	CommandsTotal uint64
	FailuresTotal uint64
	ConnectsTotal uint64
	Connected     bool
}

// SocketController drives a remote outlet over one lazily established TCP
// connection.
//
// Thread Safety:
//   - Network operations are serialised; concurrent callers queue.
//   - Device and Report never touch the network and do not wait for an
//     operation in flight.
//
// No operation is retried. A failed round trip drops the connection and the
// next operation dials again.
type SocketController struct {
	address string
	timeout time.Duration

	// opMu serialises operations and guards conn and closed.
	opMu   sync.Mutex
	conn   net.Conn
	closed bool

	stateMu sync.RWMutex
	outlet  *device.Outlet

	logger   Logger
	loggerMu sync.RWMutex

	commandsTotal atomic.Uint64
	failuresTotal atomic.Uint64
	connectsTotal atomic.Uint64
	connected     atomic.Bool
}

// NewSocketController creates a controller for the outlet at cfg.Address.
// No connection is made until the first command.
func NewSocketController(cfg SocketConfig) *SocketController {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultSocketTimeout
	}
	return &SocketController{
		address: cfg.Address,
		timeout: cfg.Timeout,
		outlet:  device.NewOutlet(cfg.DeviceID, cfg.PowerRating),
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for this controller.
func (c *SocketController) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

func (c *SocketController) log() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

// TurnOn switches the outlet on.
func (c *SocketController) TurnOn(ctx context.Context) error {
	_, err := c.execute(ctx, protocol.TurnOn)
	return err
}

// TurnOff switches the outlet off.
func (c *SocketController) TurnOff(ctx context.Context) error {
	_, err := c.execute(ctx, protocol.TurnOff)
	return err
}

// Power queries the outlet and returns its current draw.
func (c *SocketController) Power(ctx context.Context) (device.Watts, error) {
	snap, err := c.execute(ctx, protocol.Power)
	if err != nil {
		return 0, err
	}
	return device.Watts(snap.Power), nil
}

// Execute sends cmd and returns the synchronised snapshot. TurnOn, TurnOff
// and Power are shorthands for it.
func (c *SocketController) Execute(ctx context.Context, cmd protocol.Command) (protocol.OutletSnapshot, error) {
	return c.execute(ctx, cmd)
}

func (c *SocketController) execute(ctx context.Context, cmd protocol.Command) (protocol.OutletSnapshot, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if c.closed {
		return protocol.OutletSnapshot{}, ErrClosed
	}
	c.commandsTotal.Add(1)

	conn, err := c.ensureConnected(ctx)
	if err != nil {
		c.failuresTotal.Add(1)
		return protocol.OutletSnapshot{}, err
	}

	resp, err := protocol.Exchange(ctx, conn, cmd, c.timeout)
	if err != nil {
		c.failuresTotal.Add(1)
		c.dropConnection()
		c.log().Warn("outlet command failed", "address", c.address, "command", cmd.String(), "error", err)
		return protocol.OutletSnapshot{}, classifyExchangeError(cmd, err)
	}

	if !resp.OK {
		c.failuresTotal.Add(1)
		c.log().Warn("outlet rejected command", "address", c.address, "command", cmd.String(), "message", resp.Message)
		return protocol.OutletSnapshot{}, &DeviceError{Message: resp.Message}
	}

	c.stateMu.Lock()
	c.outlet.Sync(resp.Snapshot)
	snap := c.outlet.Snapshot()
	c.stateMu.Unlock()

	c.log().Debug("outlet command ok", "command", cmd.String(), "active", snap.Active, "power", snap.Power)
	return snap, nil
}

// ensureConnected returns the current connection if it passes the liveness
// check, otherwise dials a new one. Caller holds opMu.
func (c *SocketController) ensureConnected(ctx context.Context) (net.Conn, error) {
	if c.conn != nil {
		if connectionAlive(c.conn) {
			return c.conn, nil
		}
		c.log().Info("outlet connection lost, reconnecting", "address", c.address)
		c.dropConnection()
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(dialCtx, "tcp", c.address)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeoutError(err) {
			return nil, fmt.Errorf("%w: connect to %s after %v", ErrTimeout, c.address, c.timeout)
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrConnection, c.address, err)
	}

	c.conn = conn
	c.connected.Store(true)
	c.connectsTotal.Add(1)
	c.log().Info("connected to outlet", "address", c.address)
	return conn, nil
}

// connectionAlive reports whether conn still looks usable. A peer that has
// closed or reset the connection reads as EOF or an error within the check
// window; an idle healthy connection times out. Unsolicited bytes mean the
// stream is out of step, so that counts as dead too.
func connectionAlive(conn net.Conn) bool {
	if err := conn.SetReadDeadline(time.Now().Add(livenessCheckWindow)); err != nil {
		return false
	}
	defer conn.SetReadDeadline(time.Time{}) //nolint:errcheck // reset before next exchange

	var peek [1]byte
	_, err := conn.Read(peek[:])
	return err != nil && isTimeoutError(err)
}

// dropConnection closes the current connection, if any. Caller holds opMu.
func (c *SocketController) dropConnection() {
	if c.conn == nil {
		return
	}
	c.conn.Close() //nolint:errcheck // connection is being discarded
	c.conn = nil
	c.connected.Store(false)
}

func classifyExchangeError(cmd protocol.Command, err error) error {
	switch {
	case errors.Is(err, protocol.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %s: %w", ErrTimeout, cmd, err)
	default:
		return fmt.Errorf("%w: %s: %w", ErrCommand, cmd, err)
	}
}

// Device returns the last synchronised local state. No network access.
func (c *SocketController) Device() protocol.OutletSnapshot {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.outlet.Snapshot()
}

// Report renders the local state.
func (c *SocketController) Report() string {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.outlet.Report()
}

func (c *SocketController) String() string { return c.Report() }

// Disconnect drops the connection. The next operation reconnects.
func (c *SocketController) Disconnect() {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	c.dropConnection()
}

// Close releases the connection. Later operations return ErrClosed.
func (c *SocketController) Close() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	c.closed = true
	c.dropConnection()
	return nil
}

// Address returns the outlet's TCP endpoint.
func (c *SocketController) Address() string { return c.address }

// Timeout returns the per-step timeout.
func (c *SocketController) Timeout() time.Duration { return c.timeout }

// Rating returns the local model's rated power.
func (c *SocketController) Rating() device.Watts {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.outlet.Rating()
}

// IsConnected reports whether a connection is currently held. It does not
// check the connection.
func (c *SocketController) IsConnected() bool {
	return c.connected.Load()
}

// Stats returns runtime counters.
func (c *SocketController) Stats() SocketStats {
	return SocketStats{
		CommandsTotal: c.commandsTotal.Load(),
		FailuresTotal: c.failuresTotal.Load(),
		ConnectsTotal: c.connectsTotal.Load(),
		Connected:     c.connected.Load(),
	}
}
