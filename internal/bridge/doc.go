// Package bridge publishes device controller state to MQTT and executes
// outlet commands received from it.
//
// Topics (see package mqtt):
//
//	smarthome/state/therm/{device}     retained ThermState, one per reading
//	smarthome/state/socket/{device}    retained SocketState after each command
//	smarthome/command/socket/{device}  {"command":"turn_on"|"turn_off"|"power"}
//	smarthome/ack/socket/{device}      Ack for each received command
//
// Readings also go to the optional Telemetry sink, and freshness changes
// and commands to the optional journal.
package bridge
