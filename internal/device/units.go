package device

import (
	"fmt"

	"github.com/DyakonovAlex/smart-home/internal/protocol"
)

// Watts is electrical power.
type Watts float64

// String formats the value with one decimal place, e.g. "1500.0W".
func (w Watts) String() string {
	return fmt.Sprintf("%.1fW", float64(w))
}

// Celsius is a temperature in degrees Celsius.
type Celsius float64

// AbsoluteZero is the lowest representable temperature.
const AbsoluteZero Celsius = protocol.AbsoluteZero

// String formats the value with one decimal place, e.g. "21.5°C".
func (c Celsius) String() string {
	return fmt.Sprintf("%.1f°C", float64(c))
}

// Valid reports whether c is at or above absolute zero.
func (c Celsius) Valid() bool {
	return c >= AbsoluteZero
}
