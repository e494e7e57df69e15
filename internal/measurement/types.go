package measurement

import "time"

// Measurement is a single stored sensor value.
//
// The triple (Timestamp, DeviceID, Category) identifies a measurement; the
// store keeps at most one row per triple and the first one written wins.
type Measurement struct {
	// Timestamp is the reading time, always UTC with second precision.
	Timestamp time.Time

	// DeviceID identifies the reporting device. Never empty.
	DeviceID string

	// Category is the normalised category key (e.g. "temperaturec").
	Category string

	// CategoryOriginal is the label as it appeared in the payload
	// (e.g. "Temperature(C)"). Listing categories returns this form.
	CategoryOriginal string

	// Value is the numeric reading.
	Value float64

	// State is the optional device status reported alongside the reading.
	State *float64
}

// Key returns the deduplication key of the measurement.
func (m Measurement) Key() Key {
	return Key{
		Timestamp: m.Timestamp.Unix(),
		DeviceID:  m.DeviceID,
		Category:  m.Category,
	}
}

// Key is the natural key of a measurement. Timestamp is in epoch seconds.
type Key struct {
	Timestamp int64
	DeviceID  string
	Category  string
}

// Point is one (timestamp, value) pair of a series.
type Point struct {
	Timestamp time.Time
	Value     float64
}
