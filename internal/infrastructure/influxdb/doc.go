// Package influxdb mirrors stored measurements into InfluxDB v2.
//
// The mirror is optional and one-way. The ingest writer hands it every
// measurement of a committed call; points are batched and written
// asynchronously, so a slow or unavailable InfluxDB never blocks or fails
// an ingest.
//
// Each point is written to the "sensor_readings" measurement:
//
//	tags:   device_id, category (normalised)
//	fields: value, label (category as received), state (when present)
//	time:   reading timestamp, second precision
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB, func(err error) {
//	    log.Error("mirror write failed", "error", err)
//	})
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // no mirror
//	}
//	defer client.Close()
//
//	writer := ingest.NewWriter(store, ingest.WriterOptions{Mirror: client})
package influxdb
