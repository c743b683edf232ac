// Smart-home daemon.
//
// smarthome drives a TCP smart outlet and listens for UDP thermometer
// samples. Optional layers, each enabled in configs/config.yaml:
//   - MQTT bridge: retained device state, outlet commands and acks
//   - InfluxDB: temperature and outlet power telemetry
//   - SQLite: event journal of commands and freshness changes
//   - HTTP API: ops endpoints, WebSocket events and Prometheus metrics
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/DyakonovAlex/smart-home/internal/api"
	"github.com/DyakonovAlex/smart-home/internal/bridge"
	"github.com/DyakonovAlex/smart-home/internal/controller"
	"github.com/DyakonovAlex/smart-home/internal/device"
	"github.com/DyakonovAlex/smart-home/internal/home"
	"github.com/DyakonovAlex/smart-home/internal/infrastructure/config"
	"github.com/DyakonovAlex/smart-home/internal/infrastructure/database"
	"github.com/DyakonovAlex/smart-home/internal/infrastructure/influxdb"
	"github.com/DyakonovAlex/smart-home/internal/infrastructure/logging"
	"github.com/DyakonovAlex/smart-home/internal/infrastructure/mqtt"
	"github.com/DyakonovAlex/smart-home/internal/journal"
	"github.com/DyakonovAlex/smart-home/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	// defaultConfigPath is used when SMARTHOME_CONFIG is unset.
	defaultConfigPath = "configs/config.yaml"

	// statusInterval is the period of the status log line.
	statusInterval = time.Minute

	serviceName = "smarthome"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires every component, blocks until ctx is cancelled, and tears the
// components down in reverse order.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting smart-home daemon",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, serviceName, version)
	log.Info("configuration loaded", "path", configPath, "level", cfg.Logging.Level)

	checks := make(map[string]api.HealthChecker)

	// Event journal (optional)
	var events journal.Repository
	if cfg.Database.Enabled {
		db, dbErr := database.Open(cfg.Database)
		if dbErr != nil {
			return fmt.Errorf("opening database: %w", dbErr)
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
			return fmt.Errorf("running migrations: %w", migrateErr)
		}
		events = journal.NewSQLiteRepository(db.DB)
		checks["database"] = db
		log.Info("event journal ready", "path", db.Path())
	} else {
		log.Info("event journal disabled")
	}

	// Telemetry (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		checks["influxdb"] = influxClient
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Device controllers
	outlet, therm, err := startControllers(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing device controllers")
		if closeErr := errors.Join(outlet.Close(), therm.Close()); closeErr != nil {
			log.Error("error closing controllers", "error", closeErr)
		}
	}()

	readingLog := therm.OnTemperatureChange(func(r controller.Reading) {
		if r.OK() {
			log.Debug("temperature reading", "temperature", r.Temperature.String())
			return
		}
		log.Debug("thermometer stale", "error", r.Err)
	})
	defer readingLog.Unsubscribe()

	house := buildHouse(cfg.Home, outlet, therm)
	log.Info("house configured", "name", house.Name(), "rooms", house.RoomCount())

	// MQTT bridge (optional)
	var mqttBridge *bridge.Bridge
	if cfg.MQTT.Enabled {
		mqttClient, mqttErr := mqtt.Connect(cfg.MQTT)
		if mqttErr != nil {
			return fmt.Errorf("connecting to MQTT: %w", mqttErr)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() { log.Info("MQTT reconnected") })
		mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
		checks["mqtt"] = mqttClient

		mqttBridge, err = startBridge(ctx, cfg, mqttClient, outlet, therm, influxClient, events, log)
		if err != nil {
			return err
		}
		defer mqttBridge.Stop()
	} else {
		log.Info("MQTT bridge disabled")
	}

	// Ops API (optional)
	if cfg.API.Enabled {
		server, apiErr := api.New(api.Deps{
			Config:  cfg.API,
			WS:      cfg.WebSocket,
			Logger:  log,
			Home:    house,
			Outlet:  outlet,
			Therm:   therm,
			Journal: events,
			Bridge:  mqttBridge,
			Checks:  checks,
			Version: version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := server.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API disabled")
	}

	log.Info("initialisation complete, waiting for shutdown signal")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		reportStatus(gctx, house, outlet, therm, log)
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses SMARTHOME_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("SMARTHOME_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// startControllers creates the outlet controller and starts the
// thermometer listener.
func startControllers(cfg *config.Config, log *logging.Logger) (*controller.SocketController, *controller.ThermController, error) {
	policy, err := controller.ParseStalePolicy(cfg.Therm.StalePolicy)
	if err != nil {
		return nil, nil, fmt.Errorf("therm.stale_policy: %w", err)
	}

	outlet := controller.NewSocketController(controller.SocketConfig{
		Address:     cfg.Socket.Address,
		PowerRating: device.Watts(cfg.Socket.PowerRating),
		Timeout:     cfg.Socket.Timeout,
		DeviceID:    cfg.Socket.DeviceID,
	})
	outlet.SetLogger(log.With("component", "socket"))

	therm := controller.NewThermController(controller.ThermConfig{
		ListenAddress:      cfg.Therm.ListenAddress,
		InitialTemperature: device.Celsius(cfg.Therm.InitialTemperature),
		MaxAge:             cfg.Therm.MaxAge,
		PollInterval:       cfg.Therm.PollInterval,
		StalePolicy:        policy,
		DeviceID:           cfg.Therm.DeviceID,
	})
	therm.SetLogger(log.With("component", "therm"))
	if err := therm.Start(); err != nil {
		outlet.Close() //nolint:errcheck // startup already failed
		return nil, nil, fmt.Errorf("starting thermometer listener: %w", err)
	}

	log.Info("device controllers ready",
		"outlet", controller.Describe(outlet),
		"therm", controller.Describe(therm),
	)
	return outlet, therm, nil
}

// buildHouse places the controllers in the configured rooms.
func buildHouse(cfg config.HomeConfig, outlet *controller.SocketController, therm *controller.ThermController) *home.House {
	house := home.New(cfg.Name)
	for _, rc := range cfg.Rooms {
		room := home.NewRoom()
		if rc.Socket {
			room.AddController("socket", outlet)
		}
		if rc.Therm {
			room.AddController("therm", therm)
		}
		house.AddRoom(rc.Name, room)
	}
	return house
}

// startBridge connects the controllers to MQTT.
func startBridge(
	ctx context.Context,
	cfg *config.Config,
	client *mqtt.Client,
	outlet *controller.SocketController,
	therm *controller.ThermController,
	influxClient *influxdb.Client,
	events journal.Repository,
	log *logging.Logger,
) (*bridge.Bridge, error) {
	opts := bridge.BridgeOptions{
		MQTTClient:     client,
		QoS:            client.QoS(),
		Outlet:         outlet,
		OutletID:       cfg.Socket.DeviceID,
		Thermometer:    therm,
		ThermID:        cfg.Therm.DeviceID,
		CommandTimeout: cfg.Socket.Timeout,
		Logger:         log.With("component", "bridge"),
	}
	// Typed nils must not reach the interface fields.
	if influxClient != nil {
		opts.Telemetry = influxClient
	}
	if events != nil {
		opts.Journal = events
	}

	b, err := bridge.NewBridge(opts)
	if err != nil {
		return nil, fmt.Errorf("creating MQTT bridge: %w", err)
	}
	if err := b.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting MQTT bridge: %w", err)
	}
	return b, nil
}

// reportStatus logs the house report and controller counters every
// statusInterval until ctx is cancelled.
func reportStatus(ctx context.Context, house *home.House, outlet *controller.SocketController, therm *controller.ThermController, log *logging.Logger) {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			outletStats := outlet.Stats()
			thermStats := therm.Stats()
			log.Info("status",
				"report", house.Report(),
				"outlet_commands", outletStats.CommandsTotal,
				"outlet_failures", outletStats.FailuresTotal,
				"therm_samples", thermStats.SamplesTotal,
				"therm_stale", thermStats.StaleTotal,
			)
		}
	}
}
