// Socket emulator.
//
// socket-emulator serves the outlet protocol on a TCP address so the
// daemon can be run without hardware.
//
// Usage:
//
//	socket-emulator [device_id] [bind_address] [power_rating]
//
// Positional arguments override the socket_emulator section of the config
// file. When the database is enabled every applied command is journaled as
// an outlet_transition event.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/DyakonovAlex/smart-home/internal/device"
	"github.com/DyakonovAlex/smart-home/internal/emulator"
	"github.com/DyakonovAlex/smart-home/internal/infrastructure/config"
	"github.com/DyakonovAlex/smart-home/internal/infrastructure/database"
	"github.com/DyakonovAlex/smart-home/internal/infrastructure/logging"
	"github.com/DyakonovAlex/smart-home/internal/journal"
	"github.com/DyakonovAlex/smart-home/migrations"
)

var version = "dev"

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "socket-emulator"

	statsInterval     = 30 * time.Second
	transitionBacklog = 256
	recordTimeout     = 2 * time.Second
)

var errUsage = errors.New("usage: socket-emulator [device_id] [bind_address] [power_rating]")

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	cfg, err := loadConfig(getConfigPath())
	if err != nil {
		return err
	}
	if err := applyArgs(&cfg.SocketEmulator, args); err != nil {
		return err
	}

	log := logging.New(cfg.Logging, serviceName, version)

	emu := emulator.NewSocketEmulator(emulator.SocketConfig{
		DeviceID:    cfg.SocketEmulator.DeviceID,
		PowerRating: device.Watts(cfg.SocketEmulator.PowerRating),
		BindAddress: cfg.SocketEmulator.BindAddress,
	})
	emu.SetLogger(log)

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Database.Enabled {
		db, dbErr := database.Open(cfg.Database)
		if dbErr != nil {
			return fmt.Errorf("opening database: %w", dbErr)
		}
		defer db.Close() //nolint:errcheck // shutdown
		if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
			return fmt.Errorf("running migrations: %w", migrateErr)
		}

		// The hook runs under the emulator's state lock; writes happen on
		// the journal goroutine.
		transitions := make(chan emulator.Transition, transitionBacklog)
		emu.SetTransitionHook(func(t emulator.Transition) {
			select {
			case transitions <- t:
			default:
				log.Warn("transition backlog full, event not journaled", "session", t.SessionID)
			}
		})
		repo := journal.NewSQLiteRepository(db.DB)
		g.Go(func() error {
			journalTransitions(gctx, repo, transitions, log)
			return nil
		})
	}

	if err := emu.Start(); err != nil {
		return fmt.Errorf("starting socket emulator: %w", err)
	}
	defer emu.Stop()

	addr, err := emu.LocalAddr()
	if err != nil {
		return err
	}
	log.Info("socket emulator listening",
		"address", addr.String(),
		"device_id", cfg.SocketEmulator.DeviceID,
		"power_rating", device.Watts(cfg.SocketEmulator.PowerRating).String(),
	)

	g.Go(func() error {
		logStats(gctx, emu, log)
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("shutting down socket emulator")
	return nil
}

// getConfigPath returns SMARTHOME_CONFIG or the default path.
func getConfigPath() string {
	if path := os.Getenv("SMARTHOME_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// loadConfig loads path, falling back to built-in defaults when the file
// does not exist.
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return config.Default(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// applyArgs overrides cfg with positional arguments.
func applyArgs(cfg *config.SocketEmulatorConfig, args []string) error {
	if len(args) > 3 {
		return errUsage
	}
	if len(args) > 0 {
		cfg.DeviceID = args[0]
	}
	if len(args) > 1 {
		cfg.BindAddress = args[1]
	}
	if len(args) > 2 {
		rating, err := strconv.ParseFloat(args[2], 64)
		if err != nil || rating <= 0 {
			return fmt.Errorf("power rating must be a positive number, got %q", args[2])
		}
		cfg.PowerRating = rating
	}
	return nil
}

// journalTransitions records transitions until ctx is cancelled.
func journalTransitions(ctx context.Context, repo journal.Recorder, transitions <-chan emulator.Transition, log *logging.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-transitions:
			recordCtx, cancel := context.WithTimeout(context.Background(), recordTimeout)
			err := repo.Record(recordCtx, transitionEvent(t))
			cancel()
			if err != nil {
				log.Error("journal transition failed", "error", err)
			}
		}
	}
}

func transitionEvent(t emulator.Transition) *journal.Event {
	return &journal.Event{
		DeviceID: t.After.DeviceID,
		Kind:     journal.KindOutletTransition,
		Details: map[string]any{
			"session":       t.SessionID,
			"command":       t.Command.String(),
			"active_before": t.Before.Active,
			"active_after":  t.After.Active,
			"power_before":  t.Before.Power,
			"power_after":   t.After.Power,
		},
	}
}

func logStats(ctx context.Context, emu *emulator.SocketEmulator, log *logging.Logger) {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := emu.Stats()
			log.Info("socket emulator stats",
				"connections_total", stats.ConnectionsTotal,
				"active_connections", stats.ActiveConnections,
				"commands_total", stats.CommandsTotal,
				"invalid_total", stats.InvalidTotal,
			)
		}
	}
}
