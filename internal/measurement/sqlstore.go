package measurement

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/nerrad567/sensorhub-core/internal/infrastructure/database"
)

// maxRowsPerInsert bounds a single multi-row INSERT. Six parameters per row
// keeps the statement well below SQLite's bound-parameter limit.
const maxRowsPerInsert = 500

const insertColumns = "timestamp, device_id, category, category_original, value, state"

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLStore implements Store and Transactor on top of SQLite or PostgreSQL.
//
// Queries are written once with ? placeholders and rebound for the
// connection's dialect.
type SQLStore struct {
	sqlQueries
	db *sql.DB
}

// NewSQLStore creates a measurement store over an open, migrated database.
//
// Parameters:
//   - db: Database connection with the measurements schema applied
//
// Returns:
//   - *SQLStore: Store instance ready for use
func NewSQLStore(db *database.DB) *SQLStore {
	return &SQLStore{
		sqlQueries: sqlQueries{q: db.DB, dialect: db.Dialect()},
		db:         db.DB,
	}
}

// InTx runs fn inside a single database transaction.
//
// The Store handed to fn reads and writes through the transaction. The
// transaction commits only if fn returns nil; otherwise it is rolled back and
// fn's error is returned unchanged.
func (s *SQLStore) InTx(ctx context.Context, fn func(Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: starting transaction: %w", ErrStorage, err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	if err := fn(&sqlQueries{q: tx, dialect: s.dialect}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: committing transaction: %w", ErrStorage, err)
	}
	return nil
}

// sqlQueries holds the Store queries shared by the pooled and transactional
// stores.
type sqlQueries struct {
	q       querier
	dialect database.Dialect
}

func (s *sqlQueries) Exists(ctx context.Context, ts time.Time, deviceID, category string) (bool, error) {
	var one int
	err := s.q.QueryRowContext(ctx,
		s.dialect.Rebind("SELECT 1 FROM measurements WHERE timestamp = ? AND device_id = ? AND category = ? LIMIT 1"),
		ts.Unix(), deviceID, category,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: checking measurement: %w", ErrStorage, err)
	}
	return true, nil
}

// BulkInsert writes the batch in chunks of at most maxRowsPerInsert rows.
// Rows whose key already exists, in the table or earlier in the batch, are
// skipped by the database rather than failing the statement. The rows the
// database reports back through RETURNING are the ones written.
func (s *sqlQueries) BulkInsert(ctx context.Context, batch []Measurement) ([]Measurement, error) {
	for i := range batch {
		if err := validate(batch[i]); err != nil {
			return nil, err
		}
	}

	inserted := make([]Measurement, 0, len(batch))
	for chunk := range slices.Chunk(batch, maxRowsPerInsert) {
		written, err := s.insertChunk(ctx, chunk)
		if err != nil {
			return inserted, err
		}
		inserted = append(inserted, written...)
	}
	return inserted, nil
}

func (s *sqlQueries) insertChunk(ctx context.Context, chunk []Measurement) ([]Measurement, error) {
	// The first row of a key wins, matching the database.
	byKey := make(map[Key]int, len(chunk))
	for i := len(chunk) - 1; i >= 0; i-- {
		byKey[chunk[i].Key()] = i
	}

	query, args := s.buildInsert(chunk)
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: inserting measurements: %w", ErrStorage, err)
	}
	defer rows.Close()

	written := make([]Measurement, 0, len(chunk))
	for rows.Next() {
		var k Key
		if err := rows.Scan(&k.Timestamp, &k.DeviceID, &k.Category); err != nil {
			return nil, fmt.Errorf("%w: scanning inserted key: %w", ErrStorage, err)
		}
		if i, ok := byKey[k]; ok {
			written = append(written, chunk[i])
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: inserting measurements: %w", ErrStorage, err)
	}
	return written, nil
}

func (s *sqlQueries) buildInsert(chunk []Measurement) (string, []any) {
	var b strings.Builder
	if s.dialect == database.DialectPostgres {
		b.WriteString("INSERT INTO measurements (" + insertColumns + ") VALUES ")
	} else {
		b.WriteString("INSERT OR IGNORE INTO measurements (" + insertColumns + ") VALUES ")
	}

	args := make([]any, 0, len(chunk)*6)
	for i, m := range chunk {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(?, ?, ?, ?, ?, ?)")

		var state any
		if m.State != nil {
			state = *m.State
		}
		args = append(args, m.Timestamp.Unix(), m.DeviceID, m.Category, m.CategoryOriginal, m.Value, state)
	}

	if s.dialect == database.DialectPostgres {
		b.WriteString(" ON CONFLICT (timestamp, device_id, category) DO NOTHING")
	}
	b.WriteString(" RETURNING timestamp, device_id, category")
	return s.dialect.Rebind(b.String()), args
}

func (s *sqlQueries) DistinctDevices(ctx context.Context) ([]string, error) {
	return s.distinct(ctx, "SELECT DISTINCT device_id FROM measurements")
}

func (s *sqlQueries) DistinctCategories(ctx context.Context, deviceID string) ([]string, error) {
	return s.distinct(ctx, "SELECT DISTINCT category_original FROM measurements WHERE device_id = ?", deviceID)
}

// distinct runs a single-column query and returns its values sorted in byte
// order, so both dialects agree regardless of collation.
func (s *sqlQueries) distinct(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.q.QueryContext(ctx, s.dialect.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("%w: querying distinct values: %w", ErrStorage, err)
	}
	defer rows.Close()

	values := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("%w: scanning distinct value: %w", ErrStorage, err)
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating distinct values: %w", ErrStorage, err)
	}

	slices.Sort(values)
	return slices.Compact(values), nil
}

func (s *sqlQueries) Series(ctx context.Context, deviceID, category string) ([]Point, error) {
	rows, err := s.q.QueryContext(ctx,
		s.dialect.Rebind("SELECT timestamp, value FROM measurements WHERE device_id = ? AND category = ? ORDER BY timestamp ASC"),
		deviceID, category,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: querying series: %w", ErrStorage, err)
	}
	defer rows.Close()

	points := []Point{}
	for rows.Next() {
		var (
			ts    int64
			value float64
		)
		if err := rows.Scan(&ts, &value); err != nil {
			return nil, fmt.Errorf("%w: scanning series row: %w", ErrStorage, err)
		}
		points = append(points, Point{Timestamp: time.Unix(ts, 0).UTC(), Value: value})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating series: %w", ErrStorage, err)
	}
	return points, nil
}

func (s *sqlQueries) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM measurements").Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: counting measurements: %w", ErrStorage, err)
	}
	return n, nil
}

func validate(m Measurement) error {
	switch {
	case m.DeviceID == "":
		return fmt.Errorf("%w: device id is required", ErrInvalidMeasurement)
	case m.Category == "":
		return fmt.Errorf("%w: category is required", ErrInvalidMeasurement)
	case math.IsNaN(m.Value) || math.IsInf(m.Value, 0):
		return fmt.Errorf("%w: value must be finite", ErrInvalidMeasurement)
	}
	return nil
}
