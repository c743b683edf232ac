// Package config handles loading and validating smart-home configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (SMARTHOME_*)
//   - Validation of required fields
//   - Default value handling
//
// Durations (socket.timeout, therm.max_age, therm.poll_interval,
// therm_emulator.interval) are written as Go duration strings such as
// "500ms" or "5s".
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Socket.Address)
package config
