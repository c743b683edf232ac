// Package protocol implements the smart-home device wire protocol.
//
// Outlets speak a framed request/response protocol over TCP. Thermometers
// push one JSON sample per UDP datagram with no framing at all.
//
// # Framing
//
// Every TCP message is a frame: a 4-byte big-endian unsigned length followed
// by exactly that many bytes of UTF-8 JSON.
//
//	┌────────────────┬───────────────────────────────┐
//	│ length (u32BE) │ payload (JSON, length bytes)  │
//	└────────────────┴───────────────────────────────┘
//
// Frames larger than MaxFrameSize are rejected before the payload is read.
// A peer that announces an oversized frame has desynchronised the stream, so
// callers must close the connection after ErrFrameTooLarge.
//
// # Messages
//
//	{"command":"turn_on"}                       controller → outlet
//	{"result":"ok","active":true,"power":1500,"device_id":"socket_emulator"}
//	{"result":"error","message":"invalid command: ..."}
//	{"temperature":22.5,"device_id":"therm_emulator"}   thermometer → controller (UDP)
//
// Framing failures (ErrFrameTooLarge, ErrTruncatedFrame, ErrInvalidPayload)
// are distinct from content failures (ErrMalformedMessage): a malformed
// message inside a good frame leaves the stream usable.
//
// # Thread Safety
//
// The functions here hold no state. Callers serialise access to a shared
// connection themselves.
package protocol
