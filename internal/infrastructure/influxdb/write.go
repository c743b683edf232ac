package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/DyakonovAlex/smart-home/internal/device"
)

// Measurement names.
const (
	MeasurementTemperature = "temperature"
	MeasurementOutlet      = "outlet"
)

func temperaturePoint(deviceID string, t device.Celsius, ts time.Time) *write.Point {
	return write.NewPoint(
		MeasurementTemperature,
		map[string]string{"device_id": deviceID},
		map[string]any{"celsius": float64(t)},
		ts,
	)
}

func outletPoint(deviceID string, power device.Watts, active bool, ts time.Time) *write.Point {
	return write.NewPoint(
		MeasurementOutlet,
		map[string]string{"device_id": deviceID},
		map[string]any{
			"power_watts": float64(power),
			"active":      active,
		},
		ts,
	)
}

// WriteTemperature records one thermometer reading.
//
//	client.WriteTemperature("therm_emulator", 21.5)
func (c *Client) WriteTemperature(deviceID string, t device.Celsius) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(temperaturePoint(deviceID, t, time.Now()))
}

// WriteOutletPower records an outlet snapshot.
func (c *Client) WriteOutletPower(deviceID string, power device.Watts, active bool) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(outletPoint(deviceID, power, active, time.Now()))
}

// WritePoint writes a custom point stamped now.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime writes a custom point with an explicit timestamp.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]any, ts time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, ts))
}
