// Package measurement is the time-series store for ingested sensor readings.
//
// A measurement is keyed by (timestamp, device, normalised category). The
// store never holds two rows for the same key: inserting an existing key is
// a silent no-op, so the first value written is the one kept.
//
// SQLStore works on SQLite (default) and PostgreSQL. Writes that must be
// atomic go through InTx:
//
//	err := store.InTx(ctx, func(tx measurement.Store) error {
//	    _, err := tx.BulkInsert(ctx, batch)
//	    return err
//	})
package measurement
