package measurement

import "errors"

// Domain errors for the measurement package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, measurement.ErrStorage) {
//	    // the backing store failed, the operation can be retried
//	}
var (
	// ErrStorage is returned when the backing database fails.
	ErrStorage = errors.New("measurement: storage failure")

	// ErrInvalidMeasurement is returned when a measurement is missing its
	// device, category or carries a non-finite value.
	ErrInvalidMeasurement = errors.New("measurement: invalid")
)
