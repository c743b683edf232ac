package emulator

import "errors"

// Domain errors for the device emulators.
var (
	// ErrAlreadyRunning is returned by SocketEmulator.Start while it runs.
	ErrAlreadyRunning = errors.New("emulator: already running")

	// ErrNotRunning is returned when a running emulator is required.
	ErrNotRunning = errors.New("emulator: not running")

	// ErrUnknownScenario is returned for an unrecognised scenario name.
	ErrUnknownScenario = errors.New("emulator: unknown scenario")
)
