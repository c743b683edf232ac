// Package device holds the local value models for smart-home devices.
//
// Two kinds exist:
//
//   - Outlet: switchable, reports active state and power draw in Watts
//   - Thermometer: reports a temperature in Celsius
//
// Models carry no I/O and no locking. Controllers keep a model in sync with
// the remote device; emulators use one as the authoritative device state.
//
// # Usage
//
//	o := device.NewOutlet("kitchen", 2000)
//	o.TurnOn()
//	fmt.Println(o.Report()) // Smart Outlet: ACTIVE | Power: 2000.0W (Rated: 2000.0W)
package device
