package device

import (
	"fmt"

	"github.com/DyakonovAlex/smart-home/internal/protocol"
)

// Outlet models a switchable power outlet with a fixed power rating.
//
// An active outlet draws its full rating; an inactive one draws nothing.
// Outlet is a plain value model and is not safe for concurrent use; its
// owner (a controller or an emulator) guards it with a lock.
type Outlet struct {
	id     string
	rating Watts
	active bool
	power  Watts
}

// NewOutlet creates an inactive outlet.
func NewOutlet(id string, rating Watts) *Outlet {
	return &Outlet{id: id, rating: rating}
}

// TurnOn activates the outlet at its rated power.
func (o *Outlet) TurnOn() {
	o.active = true
	o.power = o.rating
}

// TurnOff deactivates the outlet.
func (o *Outlet) TurnOff() {
	o.active = false
	o.power = 0
}

// Sync overwrites the local state with a snapshot reported by the device.
// A reported device id replaces the local one.
func (o *Outlet) Sync(s protocol.OutletSnapshot) {
	if s.DeviceID != "" {
		o.id = s.DeviceID
	}
	o.active = s.Active
	if !s.Active {
		o.power = 0
		return
	}
	o.power = Watts(s.Power)
}

// Snapshot returns the state in wire form.
func (o *Outlet) Snapshot() protocol.OutletSnapshot {
	return protocol.OutletSnapshot{
		Active:   o.active,
		Power:    float64(o.power),
		DeviceID: o.id,
	}
}

// ID returns the device identifier, possibly empty.
func (o *Outlet) ID() string { return o.id }

// Active reports whether the outlet is on.
func (o *Outlet) Active() bool { return o.active }

// Power returns the current draw.
func (o *Outlet) Power() Watts { return o.power }

// Rating returns the rated power.
func (o *Outlet) Rating() Watts { return o.rating }

// Report renders a one-line status.
func (o *Outlet) Report() string {
	state := "INACTIVE"
	if o.active {
		state = "ACTIVE"
	}
	return fmt.Sprintf("Smart Outlet: %s | Power: %s (Rated: %s)", state, o.power, o.rating)
}

func (o *Outlet) String() string { return o.Report() }

func (*Outlet) isDevice() {}
