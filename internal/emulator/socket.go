package emulator

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/DyakonovAlex/smart-home/internal/device"
	"github.com/DyakonovAlex/smart-home/internal/protocol"
)

const (
	// DefaultSocketDeviceID is reported when the config leaves DeviceID unset.
	DefaultSocketDeviceID = "socket_emulator"

	// DefaultBindAddress picks an ephemeral loopback port.
	DefaultBindAddress = "127.0.0.1:0"

	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
)

// Logger is the logging interface used by the emulators.
// *logging.Logger satisfies it.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// SocketConfig configures a SocketEmulator.
type SocketConfig struct {
	// DeviceID is reported in every snapshot.
	// Default: "socket_emulator"
	DeviceID string

	// PowerRating is the draw of the outlet when on.
	PowerRating device.Watts

	// BindAddress is the TCP listen address.
	// Default: "127.0.0.1:0"
	BindAddress string
}

// Transition describes one applied outlet command.
type Transition struct {
	SessionID string
	Command   protocol.Command
	Before    protocol.OutletSnapshot
	After     protocol.OutletSnapshot
}

// TransitionHook observes applied commands. It runs with the outlet state
// locked, so it must not block for long.
type TransitionHook func(Transition)

// SocketStats holds runtime counters for metrics.
type SocketStats struct {
	ConnectionsTotal  uint64
	ActiveConnections int64
	CommandsTotal     uint64
	InvalidTotal      uint64
}

// SocketEmulator serves the outlet protocol over TCP. Every connection
// operates on the same outlet state.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Commands from different connections are applied one at a time.
type SocketEmulator struct {
	cfg SocketConfig

	stateMu sync.Mutex
	outlet  *device.Outlet
	hook    TransitionHook

	// runMu guards listener, conns, running and done.
	runMu    sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	running  bool
	done     chan struct{}
	wg       sync.WaitGroup

	logger   Logger
	loggerMu sync.RWMutex

	connectionsTotal  atomic.Uint64
	activeConnections atomic.Int64
	commandsTotal     atomic.Uint64
	invalidTotal      atomic.Uint64
}

// NewSocketEmulator creates a stopped emulator with an inactive outlet.
func NewSocketEmulator(cfg SocketConfig) *SocketEmulator {
	if cfg.DeviceID == "" {
		cfg.DeviceID = DefaultSocketDeviceID
	}
	if cfg.BindAddress == "" {
		cfg.BindAddress = DefaultBindAddress
	}
	return &SocketEmulator{
		cfg:    cfg,
		outlet: device.NewOutlet(cfg.DeviceID, cfg.PowerRating),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for this emulator.
func (e *SocketEmulator) SetLogger(logger Logger) {
	e.loggerMu.Lock()
	e.logger = logger
	e.loggerMu.Unlock()
}

func (e *SocketEmulator) log() Logger {
	e.loggerMu.RLock()
	defer e.loggerMu.RUnlock()
	return e.logger
}

// SetTransitionHook installs fn to observe every applied command.
func (e *SocketEmulator) SetTransitionHook(fn TransitionHook) {
	e.stateMu.Lock()
	e.hook = fn
	e.stateMu.Unlock()
}

// Start binds the listener and begins accepting connections.
func (e *SocketEmulator) Start() error {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	if e.running {
		return ErrAlreadyRunning
	}

	ln, err := net.Listen("tcp", e.cfg.BindAddress)
	if err != nil {
		return fmt.Errorf("emulator: bind %s: %w", e.cfg.BindAddress, err)
	}

	e.listener = ln
	e.conns = make(map[net.Conn]struct{})
	e.running = true

	e.done = make(chan struct{})
	e.wg.Add(1)
	go e.acceptLoop(ln, e.done)

	e.log().Info("socket emulator listening",
		"address", ln.Addr().String(),
		"device_id", e.cfg.DeviceID,
		"power_rating", float64(e.cfg.PowerRating),
	)
	return nil
}

// Stop closes the listener and every live connection, then waits for all
// handlers to return. Safe to call more than once.
func (e *SocketEmulator) Stop() {
	e.runMu.Lock()
	if !e.running {
		e.runMu.Unlock()
		e.wg.Wait()
		return
	}
	e.running = false
	close(e.done)
	e.listener.Close() //nolint:errcheck // unblocks Accept
	for conn := range e.conns {
		conn.Close() //nolint:errcheck // unblocks the handler's read
	}
	e.listener = nil
	e.conns = nil
	e.runMu.Unlock()

	e.wg.Wait()
	e.log().Info("socket emulator stopped", "device_id", e.cfg.DeviceID)
}

// IsRunning reports whether the emulator is accepting connections.
func (e *SocketEmulator) IsRunning() bool {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	return e.running
}

// LocalAddr returns the bound address.
func (e *SocketEmulator) LocalAddr() (net.Addr, error) {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if !e.running {
		return nil, ErrNotRunning
	}
	return e.listener.Addr(), nil
}

// nextAcceptDelay doubles the wait after a failed Accept, starting at
// minAcceptDelay and capped at maxAcceptDelay.
func nextAcceptDelay(d time.Duration) time.Duration {
	if d == 0 {
		return minAcceptDelay
	}
	return min(2*d, maxAcceptDelay)
}

func (e *SocketEmulator) acceptLoop(ln net.Listener, done <-chan struct{}) {
	defer e.wg.Done()

	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			delay = nextAcceptDelay(delay)
			e.log().Warn("accept failed", "error", err, "retry_in", delay.String())
			select {
			case <-done:
				return
			case <-time.After(delay):
			}
			continue
		}
		delay = 0

		e.runMu.Lock()
		if !e.running {
			e.runMu.Unlock()
			conn.Close() //nolint:errcheck // shutting down
			return
		}
		e.conns[conn] = struct{}{}
		e.wg.Add(1)
		e.runMu.Unlock()

		go e.serve(conn)
	}
}

// serve runs one connection's request loop until the peer leaves, the
// stream desynchronises, or the emulator stops.
func (e *SocketEmulator) serve(conn net.Conn) {
	defer e.wg.Done()

	session := uuid.NewString()
	remote := conn.RemoteAddr().String()
	e.connectionsTotal.Add(1)
	e.activeConnections.Add(1)
	e.log().Info("client connected", "session", session, "remote", remote)

	defer func() {
		e.runMu.Lock()
		delete(e.conns, conn)
		e.runMu.Unlock()
		conn.Close() //nolint:errcheck // handler exit
		e.activeConnections.Add(-1)
	}()

	for {
		cmd, err := protocol.ReceiveCommand(conn)
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			e.log().Info("client disconnected", "session", session, "remote", remote)
			return
		case errors.Is(err, protocol.ErrMalformedMessage), errors.Is(err, protocol.ErrInvalidPayload):
			// The whole frame was consumed, so the stream is still aligned.
			e.invalidTotal.Add(1)
			e.log().Warn("invalid command", "session", session, "error", err)
			if err := protocol.SendResponse(conn, protocol.ErrorResponse("invalid command: "+err.Error())); err != nil {
				e.log().Warn("send failed", "session", session, "error", err)
				return
			}
			continue
		case errors.Is(err, protocol.ErrFrameTooLarge):
			// The announced payload is left unread, so nothing after it can
			// be parsed. Report once and hang up.
			e.invalidTotal.Add(1)
			e.log().Warn("oversize frame, closing connection", "session", session, "error", err)
			if err := protocol.SendResponse(conn, protocol.ErrorResponse("invalid frame: "+err.Error())); err != nil {
				e.log().Debug("send failed", "session", session, "error", err)
			}
			return
		case protocol.IsFramingError(err):
			e.log().Warn("truncated frame, closing connection", "session", session, "error", err)
			return
		default:
			if !errors.Is(err, net.ErrClosed) {
				e.log().Debug("read failed", "session", session, "error", err)
			}
			return
		}

		snap := e.apply(session, cmd)
		if err := protocol.SendResponse(conn, protocol.OKResponse(snap)); err != nil {
			e.log().Warn("send failed", "session", session, "error", err)
			return
		}
	}
}

// apply executes cmd against the shared outlet and returns the new state.
func (e *SocketEmulator) apply(session string, cmd protocol.Command) protocol.OutletSnapshot {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	e.commandsTotal.Add(1)
	before := e.outlet.Snapshot()
	switch cmd {
	case protocol.TurnOn:
		e.outlet.TurnOn()
		e.log().Info("outlet turned on", "device_id", e.cfg.DeviceID, "power", float64(e.outlet.Power()), "session", session)
	case protocol.TurnOff:
		e.outlet.TurnOff()
		e.log().Info("outlet turned off", "device_id", e.cfg.DeviceID, "session", session)
	}
	after := e.outlet.Snapshot()

	if e.hook != nil && cmd != protocol.Power {
		e.hook(Transition{SessionID: session, Command: cmd, Before: before, After: after})
	}
	return after
}

// Snapshot returns the current outlet state.
func (e *SocketEmulator) Snapshot() protocol.OutletSnapshot {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.outlet.Snapshot()
}

// Stats returns runtime counters.
func (e *SocketEmulator) Stats() SocketStats {
	return SocketStats{
		ConnectionsTotal:  e.connectionsTotal.Load(),
		ActiveConnections: e.activeConnections.Load(),
		CommandsTotal:     e.commandsTotal.Load(),
		InvalidTotal:      e.invalidTotal.Load(),
	}
}
