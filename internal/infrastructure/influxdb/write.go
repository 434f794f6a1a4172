package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/mirv-rover/relay-core/internal/fleet"
)

// WriteRoverTelemetry records one rover state snapshot.
//
// The write is non-blocking; points are batched and sent asynchronously.
// Nullable telemetry fields are omitted when the rover reports null.
func (c *Client) WriteRoverTelemetry(state *fleet.RoverState) {
	if !c.IsConnected() || state == nil {
		return
	}

	fields := map[string]interface{}{
		"battery_percent": state.BatteryPercent,
		"battery_voltage": state.BatteryVoltage,
	}
	if state.Telemetry.Speed != nil {
		fields["speed"] = *state.Telemetry.Speed
	}
	if state.Telemetry.Heading != nil {
		fields["heading"] = *state.Telemetry.Heading
	}
	if state.Telemetry.Location.Lat != nil {
		fields["lat"] = *state.Telemetry.Location.Lat
	}
	if state.Telemetry.Location.Long != nil {
		fields["long"] = *state.Telemetry.Location.Long
	}

	c.WritePoint("rover_telemetry", map[string]string{
		"rover_id": state.RoverID,
		"state":    state.State,
		"status":   state.Status,
	}, fields)
}

// WritePoint writes a custom point with full control over tags and fields.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}
