// Package api provides the ops HTTP API for the smart-home daemon.
//
// Endpoints:
//
//	GET  /api/v1/health        component health, 503 when degraded
//	GET  /api/v1/outlet        last synchronised outlet state (no network)
//	POST /api/v1/outlet/on     switch the outlet on
//	POST /api/v1/outlet/off    switch the outlet off
//	GET  /api/v1/outlet/power  query the outlet's power draw
//	GET  /api/v1/therm         latest fresh temperature, 503 when stale
//	GET  /api/v1/home          house layout and report
//	GET  /api/v1/events        event journal, newest first
//	GET  /api/v1/ws            live therm.reading and outlet.state events
//	GET  /metrics              Prometheus metrics
//
// Controller failures map to status codes: device errors 502, timeouts 504,
// unreachable outlet or stale thermometer 503.
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
