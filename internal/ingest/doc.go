// Package ingest turns uploaded CSV and JSON payloads into stored
// measurements.
//
// The pipeline has three stages:
//
//   - Parser reads a payload into a lazy iter.Seq2[RawTuple, error],
//     validating required fields and skipping malformed records.
//   - Normalize maps every category label to its canonical key.
//   - Writer checks each tuple against the store, buffers new ones and
//     bulk-inserts them in batches inside one transaction per call.
//
// Typical use:
//
//	parser := ingest.NewParser(ingest.ParserOptions{Filter: ingest.FilterNone()})
//	writer := ingest.NewWriter(store, ingest.WriterOptions{BatchSize: 5000})
//
//	res, err := writer.Ingest(ctx, parser.Parse(ingest.FormatCSV, file))
//	if errors.Is(err, ingest.ErrMalformedPayload) {
//	    // reject the upload
//	}
//
// Nothing is written if any part of the call fails.
package ingest
