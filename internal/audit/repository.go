// Package audit records the history of ingest calls in the ingest_log table.
//
// Every upload gets one entry, whatever its outcome, so an ingest_id
// returned to a client (or a failed upload reported by a station operator)
// can be traced after the fact.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/sensorhub-core/internal/infrastructure/database"
)

// Ingest outcomes.
const (
	OutcomeSuccess   = "success"
	OutcomeMalformed = "malformed"
	OutcomeTooLarge  = "too_large"
	OutcomeError     = "error"
)

// Page size bounds for List.
const (
	defaultLimit = 50
	maxLimit     = 200
)

// createdAtLayout is fixed-width so entries sort correctly as text.
const createdAtLayout = "2006-01-02T15:04:05.000000Z"

// Entry is one ingest call.
type Entry struct {
	ID         string    `json:"ingest_id"`
	Format     string    `json:"format"`
	Outcome    string    `json:"outcome"`
	Inserted   int64     `json:"inserted"`
	Duplicates int       `json:"duplicates"`
	Error      string    `json:"error,omitempty"`
	RequestID  string    `json:"request_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Filter controls which entries to return.
type Filter struct {
	Outcome string // optional: success, malformed, too_large, error
	Limit   int    // default 50, max 200
	Offset  int    // pagination offset
}

// ListResult contains a page of entries, most recent first.
type ListResult struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

// Repository defines the interface for ingest history operations.
type Repository interface {
	Create(ctx context.Context, e *Entry) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLRepository stores the ingest history in SQLite or PostgreSQL.
type SQLRepository struct {
	db *database.DB
}

// NewSQLRepository creates a new ingest history repository.
func NewSQLRepository(db *database.DB) *SQLRepository {
	return &SQLRepository{db: db}
}

// Create inserts an entry. The ID and CreatedAt are generated if empty.
func (r *SQLRepository) Create(ctx context.Context, e *Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	e.CreatedAt = e.CreatedAt.UTC()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO ingest_log (id, format, outcome, inserted, duplicates, error, request_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Format, e.Outcome, e.Inserted, e.Duplicates,
		nullableString(e.Error), nullableString(e.RequestID),
		e.CreatedAt.Format(createdAtLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting ingest log entry: %w", err)
	}
	return nil
}

// nullableString returns nil for empty strings so optional columns stay NULL.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// List returns entries matching the filter, most recent first.
func (r *SQLRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}
	if filter.Limit > maxLimit {
		filter.Limit = maxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any
	if filter.Outcome != "" {
		conditions = append(conditions, "outcome = ?")
		args = append(args, filter.Outcome)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	//nolint:gosec // WHERE built from parameterised conditions, not user input
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM ingest_log "+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting ingest log: %w", err)
	}

	//nolint:gosec // WHERE built from parameterised conditions, not user input
	query := "SELECT id, format, outcome, inserted, duplicates, error, request_id, created_at FROM ingest_log " +
		where + " ORDER BY created_at DESC, id LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying ingest log: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var errText, requestID sql.NullString
		var createdAt string

		if err := rows.Scan(&e.ID, &e.Format, &e.Outcome, &e.Inserted, &e.Duplicates,
			&errText, &requestID, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning ingest log entry: %w", err)
		}
		e.Error = errText.String
		e.RequestID = requestID.String

		e.CreatedAt, err = time.Parse(createdAtLayout, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing ingest log timestamp %q: %w", createdAt, err)
		}

		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating ingest log: %w", err)
	}

	return &ListResult{
		Entries: entries,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}, nil
}
