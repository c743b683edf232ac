// Package influxdb records device telemetry in InfluxDB v2.
//
// Thermometer readings go to the "temperature" measurement and outlet
// snapshots to "outlet", each tagged with device_id. Writes are
// non-blocking and batched by the official client (batch_size and
// flush_interval from config); batch failures are delivered to the
// SetOnError callback rather than returned.
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteTemperature("therm_emulator", 21.5)
//	client.WriteOutletPower("socket_emulator", 1500, true)
package influxdb
