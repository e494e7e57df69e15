package influxdb

import (
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/sensorhub-core/internal/measurement"
)

// pointName is the InfluxDB measurement that holds mirrored readings.
const pointName = "sensor_readings"

// WriteMeasurement queues one stored measurement for the mirror bucket.
//
// The point is tagged by device_id and normalised category so series line up
// with the relational store's key. The write is non-blocking; failures are
// reported to the onError callback given to Connect.
//
// Example:
//
//	client.WriteMeasurement(measurement.Measurement{
//	    Timestamp: ts, DeviceID: "station01", Category: "temperaturec",
//	    CategoryOriginal: "Temperature(C)", Value: 21.5,
//	})
func (c *Client) WriteMeasurement(m measurement.Measurement) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(NewPoint(m))
}

// NewPoint converts a measurement into an InfluxDB point.
func NewPoint(m measurement.Measurement) *write.Point {
	fields := map[string]any{
		"value": m.Value,
		"label": m.CategoryOriginal,
	}
	if m.State != nil {
		fields["state"] = *m.State
	}

	return write.NewPoint(
		pointName,
		map[string]string{
			"device_id": m.DeviceID,
			"category":  m.Category,
		},
		fields,
		m.Timestamp,
	)
}
