package emulator

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/DyakonovAlex/smart-home/internal/device"
)

// Scenario governs how the emulated temperature evolves each step.
type Scenario int

// Emulation scenarios.
const (
	// ScenarioNormal drifts by up to ±0.5°C per step.
	ScenarioNormal Scenario = iota
	// ScenarioFire rises by 1 to 3°C per step.
	ScenarioFire
	// ScenarioFreeze falls by 1 to 3°C per step.
	ScenarioFreeze
	// ScenarioFluctuate swings by up to ±2°C per step.
	ScenarioFluctuate
)

// Scenarios lists every scenario in declaration order.
var Scenarios = []Scenario{ScenarioNormal, ScenarioFire, ScenarioFreeze, ScenarioFluctuate}

// String returns the config name of the scenario.
func (s Scenario) String() string {
	switch s {
	case ScenarioNormal:
		return "normal"
	case ScenarioFire:
		return "fire"
	case ScenarioFreeze:
		return "freeze"
	case ScenarioFluctuate:
		return "fluctuate"
	default:
		return fmt.Sprintf("scenario(%d)", int(s))
	}
}

// Description returns a human-readable label.
func (s Scenario) Description() string {
	switch s {
	case ScenarioNormal:
		return "🌡️ Normal operation"
	case ScenarioFire:
		return "🔥 Fire"
	case ScenarioFreeze:
		return "🧊 Freeze"
	case ScenarioFluctuate:
		return "📈 Fluctuation"
	default:
		return s.String()
	}
}

// ParseScenario converts a config name into a Scenario.
func ParseScenario(name string) (Scenario, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "normal":
		return ScenarioNormal, nil
	case "fire":
		return ScenarioFire, nil
	case "freeze":
		return ScenarioFreeze, nil
	case "fluctuate":
		return ScenarioFluctuate, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownScenario, name)
	}
}

// Step advances current by one scenario step. It does not clamp; the
// emulator loop clamps at absolute zero before sending.
func Step(current device.Celsius, s Scenario, rng *rand.Rand) device.Celsius {
	switch s {
	case ScenarioFire:
		return current + uniform(rng, 1, 3)
	case ScenarioFreeze:
		return current - uniform(rng, 1, 3)
	case ScenarioFluctuate:
		return current + uniform(rng, -2, 2)
	default:
		return current + uniform(rng, -0.5, 0.5)
	}
}

func uniform(rng *rand.Rand, lo, hi float64) device.Celsius {
	return device.Celsius(lo + rng.Float64()*(hi-lo))
}
