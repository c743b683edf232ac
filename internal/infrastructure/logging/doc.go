// Package logging provides structured logging for the smart-home binaries.
//
// This package wraps Go's standard log/slog package so the daemon and the
// emulators emit the same structured records.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "smarthome", "1.0.0")
//	logger.Info("socket controller ready", "address", cfg.Socket.Address)
//	logger.Error("therm listener failed", "error", err)
//
// Never log MQTT passwords or InfluxDB tokens.
package logging
