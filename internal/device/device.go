package device

// Device is a local device model. The set of implementations is closed:
// *Outlet and *Thermometer.
type Device interface {
	ID() string
	Report() string
	isDevice()
}

// Kind names a Device implementation.
type Kind string

// Device kinds.
const (
	KindOutlet      Kind = "outlet"
	KindThermometer Kind = "thermometer"
)

// KindOf returns the kind of d.
func KindOf(d Device) Kind {
	switch d.(type) {
	case *Outlet:
		return KindOutlet
	case *Thermometer:
		return KindThermometer
	default:
		panic("device: unknown device implementation")
	}
}
