package device

import "fmt"

// Thermometer models a temperature sensor's last known reading.
// Not safe for concurrent use.
type Thermometer struct {
	id          string
	temperature Celsius
}

// NewThermometer creates a thermometer holding an initial reading.
func NewThermometer(id string, initial Celsius) *Thermometer {
	return &Thermometer{id: id, temperature: initial}
}

// ID returns the device identifier, possibly empty.
func (t *Thermometer) ID() string { return t.id }

// Temperature returns the last reading.
func (t *Thermometer) Temperature() Celsius { return t.temperature }

// SetTemperature records a new reading.
func (t *Thermometer) SetTemperature(c Celsius) { t.temperature = c }

// Report renders a one-line status.
func (t *Thermometer) Report() string {
	return fmt.Sprintf("Smart Thermometer: %s", t.temperature)
}

func (t *Thermometer) String() string { return t.Report() }

func (*Thermometer) isDevice() {}
