// Package emulator provides stand-in devices for development and tests.
//
// SocketEmulator is a TCP outlet speaking the framed protocol from package
// protocol. All of its connections share one outlet: a TurnOn from one
// client is visible to a Power query from another.
//
// ThermEmulator is a UDP thermometer. Each interval it advances its
// temperature according to a Scenario and sends one JSON sample.
//
//	outlet := emulator.NewSocketEmulator(emulator.SocketConfig{PowerRating: 2000})
//	if err := outlet.Start(); err != nil {
//	    return err
//	}
//	defer outlet.Stop()
//	addr, _ := outlet.LocalAddr()
//
//	therm := emulator.NewThermEmulator(emulator.ThermConfig{
//	    InitialTemperature: 22,
//	    Scenario:           emulator.ScenarioFire,
//	})
//	_ = therm.ConnectTo("127.0.0.1:7879")
//	_ = therm.Start()
//	defer therm.Stop()
package emulator
