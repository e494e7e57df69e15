package ingest

import (
	"context"
	"fmt"
	"iter"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/nerrad567/sensorhub-core/internal/infrastructure/metrics"
	"github.com/nerrad567/sensorhub-core/internal/measurement"
)

// DefaultBatchSize is the number of buffered measurements that triggers a
// bulk insert.
const DefaultBatchSize = 5000

// Hook is called after a successful commit, once per (device, category)
// written, with the value of the latest timestamp in the call.
type Hook func(ctx context.Context, deviceID, category string, value float64)

// Mirror receives every measurement written by a committed ingest call.
type Mirror interface {
	WriteMeasurement(m measurement.Measurement)
}

// WriterOptions configures a Writer.
type WriterOptions struct {
	// BatchSize is the flush threshold. Defaults to DefaultBatchSize.
	BatchSize int

	// Hook runs after commit. Optional.
	Hook Hook

	// Mirror copies committed measurements to a secondary store. Optional.
	// The rows a call inserts are held until it commits, so memory grows
	// with the upload; api.max_upload_bytes bounds it.
	Mirror Mirror

	// Metrics records flushes, inserts and duplicates. Optional.
	Metrics *metrics.Metrics

	// Logger receives one line per ingest call. Optional.
	Logger Logger

	// Clock measures ingest duration. Defaults to the real clock.
	Clock clockwork.Clock
}

// Result summarises one ingest call.
type Result struct {
	// IngestID identifies the call in logs and responses.
	IngestID string

	// Inserted is the number of rows the store reports as written.
	Inserted int64

	// Duplicates counts tuples whose key already existed, in the store or
	// earlier in the same payload, including rows the store ignored on
	// conflict with a concurrent call.
	Duplicates int

	// Flushes is the number of bulk inserts issued.
	Flushes int
}

// Writer deduplicates tuples against the store and writes them in batches.
//
// Each Ingest call runs in a single transaction: either every batch of the
// call is committed or none is.
type Writer struct {
	db        measurement.Transactor
	batchSize int
	hook      Hook
	mirror    Mirror
	metrics   *metrics.Metrics
	logger    Logger
	clock     clockwork.Clock
}

// NewWriter creates a batch writer over a transactional store.
//
// Parameters:
//   - db: Store that can run a function inside a transaction
//   - opts: Batch size and optional hook, mirror, metrics, logger, clock
//
// Returns:
//   - *Writer: Writer ready for concurrent use
func NewWriter(db measurement.Transactor, opts WriterOptions) *Writer {
	w := &Writer{
		db:        db,
		batchSize: opts.BatchSize,
		hook:      opts.Hook,
		mirror:    opts.Mirror,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
		clock:     opts.Clock,
	}
	if w.batchSize <= 0 {
		w.batchSize = DefaultBatchSize
	}
	if w.logger == nil {
		w.logger = noopLogger{}
	}
	if w.clock == nil {
		w.clock = clockwork.NewRealClock()
	}
	return w
}

type seriesKey struct {
	deviceID string
	category string
}

// latestValues tracks the newest measurement of each series written by a
// call, in first-seen order. Its size is bounded by the number of series.
type latestValues struct {
	byKey map[seriesKey]measurement.Measurement
	order []seriesKey
}

func (l *latestValues) add(m measurement.Measurement) {
	if l.byKey == nil {
		l.byKey = make(map[seriesKey]measurement.Measurement)
	}
	k := seriesKey{deviceID: m.DeviceID, category: m.Category}
	prev, seen := l.byKey[k]
	if !seen {
		l.order = append(l.order, k)
	}
	if !seen || m.Timestamp.After(prev.Timestamp) {
		l.byKey[k] = m
	}
}

// Ingest consumes tuples and writes the ones not already stored.
//
// Every tuple is checked against the store inside the call's transaction
// and against the tuples already buffered; new ones are buffered and
// flushed with a bulk insert whenever the buffer reaches the batch size,
// and once more at the end. A terminal error from the sequence, a storage
// failure or context cancellation rolls back the whole call.
//
// The hook and the mirror run only after the commit succeeds, and only for
// rows the store reports as written.
//
// Parameters:
//   - ctx: Context for cancellation
//   - tuples: Parsed readings, typically from Parser.Parse
//
// Returns:
//   - Result: Counts for the call; on error only IngestID is set
//   - error: Parse, storage or context error
func (w *Writer) Ingest(ctx context.Context, tuples iter.Seq2[RawTuple, error]) (Result, error) {
	start := w.clock.Now()
	res := Result{IngestID: uuid.NewString()}

	var (
		mirrored []measurement.Measurement
		latest   latestValues
	)
	err := w.db.InTx(ctx, func(store measurement.Store) error {
		buf := make([]measurement.Measurement, 0, min(w.batchSize, 1024))
		pending := make(map[measurement.Key]struct{}, cap(buf))

		flush := func() error {
			if len(buf) == 0 {
				return nil
			}
			inserted, err := store.BulkInsert(ctx, buf)
			if err != nil {
				return fmt.Errorf("flushing batch %d: %w", res.Flushes+1, err)
			}
			res.Flushes++
			res.Inserted += int64(len(inserted))
			res.Duplicates += len(buf) - len(inserted)
			w.metrics.RecordFlush(len(buf))

			if w.mirror != nil {
				mirrored = append(mirrored, inserted...)
			}
			if w.hook != nil {
				for _, m := range inserted {
					latest.add(m)
				}
			}
			buf = buf[:0]
			clear(pending)
			return nil
		}

		for t, err := range tuples {
			if err != nil {
				return err
			}
			if err := ctx.Err(); err != nil {
				return err
			}

			m := t.Measurement()
			// Earlier batches of this call are visible to Exists through
			// the transaction; the current buffer is not.
			if _, buffered := pending[m.Key()]; buffered {
				res.Duplicates++
				continue
			}
			exists, err := store.Exists(ctx, m.Timestamp, m.DeviceID, m.Category)
			if err != nil {
				return err
			}
			if exists {
				res.Duplicates++
				continue
			}

			buf = append(buf, m)
			pending[m.Key()] = struct{}{}
			if len(buf) >= w.batchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}
		return flush()
	})
	if err != nil {
		w.logger.Warn("ingest rolled back", "ingest_id", res.IngestID, "error", err)
		return Result{IngestID: res.IngestID}, fmt.Errorf("ingest %s: %w", res.IngestID, err)
	}

	took := w.clock.Since(start)
	w.metrics.RecordWrite(res.Inserted, res.Duplicates, took)
	w.logger.Info("ingest committed",
		"ingest_id", res.IngestID,
		"inserted", res.Inserted,
		"duplicates", res.Duplicates,
		"flushes", res.Flushes,
		"duration", took,
	)

	w.afterCommit(ctx, mirrored, &latest)
	return res, nil
}

// afterCommit feeds the mirror and fires the hook for the latest value of
// each series written.
func (w *Writer) afterCommit(ctx context.Context, mirrored []measurement.Measurement, latest *latestValues) {
	if w.mirror != nil && len(mirrored) > 0 {
		for _, m := range mirrored {
			w.mirror.WriteMeasurement(m)
		}
		w.metrics.RecordMirrored(len(mirrored))
	}

	if w.hook == nil {
		return
	}
	for _, k := range latest.order {
		m := latest.byKey[k]
		w.hook(ctx, m.DeviceID, m.Category, m.Value)
	}
}
