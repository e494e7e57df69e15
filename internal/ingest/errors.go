package ingest

import "errors"

// Domain errors for the ingest package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, ingest.ErrMalformedPayload) {
//	    // reject the upload with 400
//	}
var (
	// ErrMalformedPayload is returned when a payload cannot be parsed at all:
	// invalid JSON, an empty CSV or a CSV header without the required columns.
	ErrMalformedPayload = errors.New("ingest: malformed payload")

	// ErrUnsupportedFormat is returned for uploads that are neither CSV nor JSON.
	ErrUnsupportedFormat = errors.New("ingest: unsupported format")
)
