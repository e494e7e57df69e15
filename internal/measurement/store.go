package measurement

import (
	"context"
	"time"
)

// Store persists and reads measurements.
type Store interface {
	// Exists reports whether a measurement with the given key is stored.
	Exists(ctx context.Context, ts time.Time, deviceID, category string) (bool, error)

	// BulkInsert stores the measurements, silently ignoring any whose key
	// already exists. It returns the measurements actually written, in
	// no particular order.
	BulkInsert(ctx context.Context, batch []Measurement) ([]Measurement, error)

	// DistinctDevices returns every device ID with at least one
	// measurement, sorted ascending.
	DistinctDevices(ctx context.Context) ([]string, error)

	// DistinctCategories returns the original category labels recorded
	// for a device, sorted ascending.
	DistinctCategories(ctx context.Context, deviceID string) ([]string, error)

	// Series returns a device's points for a normalised category ordered by
	// timestamp ascending.
	Series(ctx context.Context, deviceID, category string) ([]Point, error)

	// Count returns the number of stored measurements.
	Count(ctx context.Context) (int64, error)
}

// Transactor runs a function against a Store inside one transaction.
// If fn returns an error every write made through the Store is discarded.
type Transactor interface {
	InTx(ctx context.Context, fn func(Store) error) error
}
