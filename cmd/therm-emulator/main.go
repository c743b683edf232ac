// Thermometer emulator.
//
// therm-emulator pushes a temperature sample over UDP every interval,
// following one of the emulation scenarios (normal, fire, freeze,
// fluctuate).
//
// Usage:
//
//	therm-emulator [device_id] [target_address] [initial_temperature] [scenario]
//
// Positional arguments override the therm_emulator section of the config
// file. SIGUSR1 switches to the next scenario.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/DyakonovAlex/smart-home/internal/device"
	"github.com/DyakonovAlex/smart-home/internal/emulator"
	"github.com/DyakonovAlex/smart-home/internal/infrastructure/config"
	"github.com/DyakonovAlex/smart-home/internal/infrastructure/logging"
)

var version = "dev"

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "therm-emulator"

	statsInterval = 30 * time.Second
)

var errUsage = errors.New("usage: therm-emulator [device_id] [target_address] [initial_temperature] [scenario]")

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
	if err := applyArgs(&cfg.ThermEmulator, args); err != nil {
		return err
	}
	scenario, err := emulator.ParseScenario(cfg.ThermEmulator.Scenario)
	if err != nil {
		return err
	}

	log := logging.New(cfg.Logging, serviceName, version)

	emu := emulator.NewThermEmulator(emulator.ThermConfig{
		InitialTemperature: device.Celsius(cfg.ThermEmulator.InitialTemperature),
		DeviceID:           cfg.ThermEmulator.DeviceID,
		Scenario:           scenario,
		Interval:           cfg.ThermEmulator.Interval,
	})
	emu.SetLogger(log)

	if err := emu.ConnectTo(cfg.ThermEmulator.TargetAddress); err != nil {
		return fmt.Errorf("resolving target: %w", err)
	}
	if err := emu.Start(); err != nil {
		return fmt.Errorf("starting therm emulator: %w", err)
	}
	defer emu.Stop()

	log.Info("therm emulator sending",
		"target", cfg.ThermEmulator.TargetAddress,
		"scenario", scenario.Description(),
		"initial_temperature", emu.Temperature().String(),
	)

	cycle := make(chan os.Signal, 1)
	signal.Notify(cycle, syscall.SIGUSR1)
	defer signal.Stop(cycle)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		cycleScenarios(gctx, emu, cycle, log)
		return nil
	})
	g.Go(func() error {
		logStats(gctx, emu, log)
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("shutting down therm emulator", "temperature", emu.Temperature().String())
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
func applyArgs(cfg *config.ThermEmulatorConfig, args []string) error {
	if len(args) > 4 {
		return errUsage
	}
	if len(args) > 0 {
		cfg.DeviceID = args[0]
	}
	if len(args) > 1 {
		cfg.TargetAddress = args[1]
	}
	if len(args) > 2 {
		temp, err := strconv.ParseFloat(args[2], 64)
		if err != nil || !device.Celsius(temp).Valid() {
			return fmt.Errorf("initial temperature must be a number above absolute zero, got %q", args[2])
		}
		cfg.InitialTemperature = temp
	}
	if len(args) > 3 {
		cfg.Scenario = args[3]
	}
	return nil
}

// nextScenario returns the scenario after s, wrapping around.
func nextScenario(s emulator.Scenario) emulator.Scenario {
	i := slices.Index(emulator.Scenarios, s)
	return emulator.Scenarios[(i+1)%len(emulator.Scenarios)]
}

func cycleScenarios(ctx context.Context, emu *emulator.ThermEmulator, signals <-chan os.Signal, log *logging.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-signals:
			next := nextScenario(emu.Scenario())
			emu.SetScenario(next)
			log.Info("scenario changed", "scenario", next.Description())
		}
	}
}

func logStats(ctx context.Context, emu *emulator.ThermEmulator, log *logging.Logger) {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := emu.Stats()
			log.Info("therm emulator stats",
				"temperature", emu.Temperature().String(),
				"steps_total", stats.StepsTotal,
				"sent_total", stats.SentTotal,
				"send_errors_total", stats.SendErrorsTotal,
			)
		}
	}
}
