package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/DyakonovAlex/smart-home/internal/controller"
	"github.com/DyakonovAlex/smart-home/internal/device"
	"github.com/DyakonovAlex/smart-home/internal/infrastructure/mqtt"
	"github.com/DyakonovAlex/smart-home/internal/journal"
	"github.com/DyakonovAlex/smart-home/internal/protocol"
	"github.com/DyakonovAlex/smart-home/internal/subscription"
)

// Bridge operation constants.
const (
	// DefaultCommandTimeout bounds one MQTT-initiated outlet command.
	DefaultCommandTimeout = 5 * time.Second

	// journalTimeout bounds one journal write.
	journalTimeout = 2 * time.Second

	// readingQueueSize is the number of thermometer readings buffered
	// between the listener goroutine and the publisher.
	readingQueueSize = 64
)

// Bridge errors.
var (
	ErrMQTTClientRequired = errors.New("bridge: mqtt client is required")
	ErrStopped            = errors.New("bridge: stopped")
	ErrInvalidCommand     = errors.New("bridge: invalid command payload")
)

// MQTTClient is the subset of the MQTT client the bridge needs.
// *mqtt.Client satisfies it.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// Outlet executes outlet commands. *controller.SocketController satisfies it.
type Outlet interface {
	Execute(ctx context.Context, cmd protocol.Command) (protocol.OutletSnapshot, error)
}

// Thermometer delivers readings. *controller.ThermController satisfies it.
type Thermometer interface {
	OnTemperatureChange(callback func(controller.Reading)) *subscription.Handle
}

// Telemetry receives time-series points. *influxdb.Client satisfies it.
type Telemetry interface {
	WriteTemperature(deviceID string, t device.Celsius)
	WriteOutletPower(deviceID string, power device.Watts, active bool)
}

// Logger is the logging interface used by the bridge.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// BridgeOptions configures a Bridge. Outlet, Thermometer, Telemetry and
// Journal are optional; a nil one disables its part of the bridge.
type BridgeOptions struct {
	MQTTClient MQTTClient
	QoS        byte

	Outlet   Outlet
	OutletID string

	Thermometer Thermometer
	ThermID     string

	Telemetry Telemetry
	Journal   journal.Recorder

	// CommandTimeout bounds each outlet command.
	// Default: 5s
	CommandTimeout time.Duration

	// Clock overrides time.Now, for tests.
	Clock func() time.Time

	Logger Logger
}

// BridgeStats holds runtime counters for metrics.
type BridgeStats struct {
	ReadingsPublished uint64
	ReadingsDropped   uint64
	StaleSuppressed   uint64
	CommandsTotal     uint64
	CommandsFailed    uint64
	PublishErrors     uint64
}

// freshness is the last thermometer state the bridge announced.
type freshness int

const (
	freshnessUnknown freshness = iota
	freshnessFresh
	freshnessStale
)

// Bridge connects the device controllers to MQTT. It publishes every
// thermometer reading as retained state, executes outlet commands received
// on the command topic, and mirrors both into telemetry and the journal.
//
// Repeated stale announcements are collapsed: only the transition into the
// stale state is published and journaled.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	opts   BridgeOptions
	topics mqtt.Topics
	clock  func() time.Time

	readings chan controller.Reading
	handle   *subscription.Handle

	// last is touched only by the reading worker.
	last freshness

	runMu        sync.Mutex
	started      bool
	stopped      bool
	commandTopic string
	done         chan struct{}
	wg           sync.WaitGroup
	ctx          context.Context
	ctxCancel    context.CancelFunc

	logger   Logger
	loggerMu sync.RWMutex

	readingsPublished atomic.Uint64
	readingsDropped   atomic.Uint64
	staleSuppressed   atomic.Uint64
	commandsTotal     atomic.Uint64
	commandsFailed    atomic.Uint64
	publishErrors     atomic.Uint64
}

// NewBridge creates a bridge. Call Start to begin operation.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.MQTTClient == nil {
		return nil, ErrMQTTClientRequired
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = DefaultCommandTimeout
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Bridge{
		opts:      opts,
		clock:     clock,
		readings:  make(chan controller.Reading, readingQueueSize),
		done:      make(chan struct{}),
		ctx:       ctx,
		ctxCancel: cancel,
		logger:    opts.Logger,
	}, nil
}

// Start subscribes to the outlet command topic and registers for
// thermometer readings. The reading worker runs until Stop or until ctx
// is cancelled. Calling Start again is a no-op; after Stop it returns
// ErrStopped.
func (b *Bridge) Start(ctx context.Context) error {
	b.runMu.Lock()
	defer b.runMu.Unlock()

	if b.stopped {
		return ErrStopped
	}
	if b.started {
		return nil
	}

	if b.opts.Outlet != nil {
		topic := b.topics.SocketCommand(b.opts.OutletID)
		if err := b.opts.MQTTClient.Subscribe(topic, b.opts.QoS, b.handleCommand); err != nil {
			return fmt.Errorf("subscribe to commands: %w", err)
		}
		b.commandTopic = topic
		b.logInfo("subscribed to outlet commands", "topic", topic)
	}

	if b.opts.Thermometer != nil {
		b.handle = b.opts.Thermometer.OnTemperatureChange(b.enqueueReading)
		b.wg.Add(1)
		go b.publishReadings(ctx)
	}

	b.started = true
	b.logInfo("bridge started",
		"outlet_id", b.opts.OutletID,
		"therm_id", b.opts.ThermID,
	)
	return nil
}

// Stop unsubscribes from the thermometer and the command topic, aborts
// in-flight commands and waits for the reading worker. Safe to call more
// than once.
func (b *Bridge) Stop() {
	b.runMu.Lock()
	if b.stopped {
		b.runMu.Unlock()
		return
	}
	b.stopped = true
	handle := b.handle
	topic := b.commandTopic
	b.runMu.Unlock()

	if handle != nil {
		handle.Unsubscribe()
	}
	if topic != "" {
		if err := b.opts.MQTTClient.Unsubscribe(topic); err != nil {
			b.logError("failed to unsubscribe from commands", err)
		}
	}

	close(b.done)
	b.ctxCancel()
	b.wg.Wait()

	b.logInfo("bridge stopped")
}

// enqueueReading runs on the thermometer listener goroutine and must not
// block it.
func (b *Bridge) enqueueReading(r controller.Reading) {
	select {
	case b.readings <- r:
	default:
		b.readingsDropped.Add(1)
	}
}

func (b *Bridge) publishReadings(ctx context.Context) {
	defer b.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.done:
			return
		case r := <-b.readings:
			b.handleReading(r)
		}
	}
}

// handleReading publishes one reading and records freshness transitions.
func (b *Bridge) handleReading(r controller.Reading) {
	now := b.clock()
	id := b.opts.ThermID

	if !r.OK() {
		if b.last == freshnessStale {
			b.staleSuppressed.Add(1)
			return
		}
		b.last = freshnessStale
		b.publishJSON(b.topics.ThermState(id), ThermState{
			Fresh:     false,
			Error:     noFreshData,
			Timestamp: now.UTC(),
		}, true)
		b.record(id, journal.KindThermStale, map[string]any{"error": noFreshData})
		b.logInfo("thermometer went stale", "device_id", id)
		return
	}

	temp := float64(r.Temperature)
	b.publishJSON(b.topics.ThermState(id), ThermState{
		Temperature: &temp,
		Fresh:       true,
		Timestamp:   now.UTC(),
	}, true)
	b.readingsPublished.Add(1)

	if b.opts.Telemetry != nil {
		b.opts.Telemetry.WriteTemperature(id, r.Temperature)
	}

	if b.last != freshnessFresh {
		b.last = freshnessFresh
		b.record(id, journal.KindThermFresh, map[string]any{"temperature": temp})
		b.logInfo("thermometer is fresh", "device_id", id, "temperature", temp)
	}
}

// handleCommand is the MQTT handler for the outlet command topic.
func (b *Bridge) handleCommand(topic string, payload []byte) error {
	now := b.clock()
	id := b.opts.OutletID
	b.commandsTotal.Add(1)

	cmd, err := protocol.DecodeCommand(string(payload))
	if err != nil {
		b.commandsFailed.Add(1)
		b.publishJSON(b.topics.SocketAck(id), Ack{
			OK:        false,
			Error:     err.Error(),
			Timestamp: now.UTC(),
		}, false)
		return fmt.Errorf("%w on %s: %w", ErrInvalidCommand, topic, err)
	}

	b.logDebug("received outlet command", "device_id", id, "command", cmd.String())

	ctx, cancel := context.WithTimeout(b.ctx, b.opts.CommandTimeout)
	defer cancel()

	snapshot, execErr := b.opts.Outlet.Execute(ctx, cmd)

	ack := Ack{Command: cmd.String(), OK: execErr == nil, Timestamp: now.UTC()}
	details := map[string]any{
		"command": cmd.String(),
		"ok":      execErr == nil,
		"source":  "mqtt",
	}

	if execErr != nil {
		b.commandsFailed.Add(1)
		ack.Error = execErr.Error()
		details["error"] = execErr.Error()
		b.logError("outlet command failed", execErr)
	} else {
		details["active"] = snapshot.Active
		details["power"] = snapshot.Power
		b.publishJSON(b.topics.SocketState(id), newSocketState(snapshot, now.UTC()), true)
		if b.opts.Telemetry != nil {
			b.opts.Telemetry.WriteOutletPower(id, device.Watts(snapshot.Power), snapshot.Active)
		}
	}

	b.publishJSON(b.topics.SocketAck(id), ack, false)
	b.record(id, journal.KindOutletCommand, details)
	return nil
}

func (b *Bridge) publishJSON(topic string, v any, retained bool) {
	payload, err := json.Marshal(v)
	if err != nil {
		b.publishErrors.Add(1)
		b.logError("failed to marshal payload", err)
		return
	}
	if err := b.opts.MQTTClient.Publish(topic, payload, b.opts.QoS, retained); err != nil {
		b.publishErrors.Add(1)
		b.logError("failed to publish", fmt.Errorf("topic %s: %w", topic, err))
	}
}

func (b *Bridge) record(deviceID string, kind journal.Kind, details map[string]any) {
	if b.opts.Journal == nil {
		return
	}
	if deviceID == "" {
		deviceID = "unknown"
	}
	ctx, cancel := context.WithTimeout(b.ctx, journalTimeout)
	defer cancel()
	if err := b.opts.Journal.Record(ctx, &journal.Event{
		DeviceID: deviceID,
		Kind:     kind,
		Details:  details,
	}); err != nil {
		b.logError("failed to record event", err)
	}
}

// Stats returns runtime counters.
func (b *Bridge) Stats() BridgeStats {
	return BridgeStats{
		ReadingsPublished: b.readingsPublished.Load(),
		ReadingsDropped:   b.readingsDropped.Load(),
		StaleSuppressed:   b.staleSuppressed.Load(),
		CommandsTotal:     b.commandsTotal.Load(),
		CommandsFailed:    b.commandsFailed.Load(),
		PublishErrors:     b.publishErrors.Load(),
	}
}

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()
}

func (b *Bridge) getLogger() Logger {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	return b.logger
}

// logInfo logs an info message if logger is set.
func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

// logError logs an error message if logger is set.
func (b *Bridge) logError(msg string, err error) {
	if logger := b.getLogger(); logger != nil {
		logger.Error(msg, "error", err)
	}
}

// logDebug logs a debug message if logger is set.
func (b *Bridge) logDebug(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}
