package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/sensorhub-core/internal/infrastructure/database"
	_ "github.com/nerrad567/sensorhub-core/migrations"
)

func testRepo(t *testing.T) *SQLRepository {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, database.Config{
		Path:        filepath.Join(t.TempDir(), "audit.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewSQLRepository(db)
}

func TestCreate_GeneratesIDAndTime(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	e := &Entry{Format: "csv", Outcome: OutcomeSuccess, Inserted: 10}
	if err := repo.Create(ctx, e); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if e.ID == "" {
		t.Error("Create() did not assign an ID")
	}
	if e.CreatedAt.IsZero() || e.CreatedAt.Location() != time.UTC {
		t.Errorf("CreatedAt = %v, want non-zero UTC", e.CreatedAt)
	}

	res, err := repo.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.Total != 1 || len(res.Entries) != 1 {
		t.Fatalf("List() = %+v, want one entry", res)
	}
	got := res.Entries[0]
	if got.ID != e.ID || got.Inserted != 10 || got.Error != "" || got.RequestID != "" {
		t.Errorf("entry = %+v", got)
	}
}

func TestList_OrderAndFilter(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	entries := []Entry{
		{ID: "a", Format: "csv", Outcome: OutcomeSuccess, Inserted: 5, CreatedAt: base},
		{ID: "b", Format: "json", Outcome: OutcomeMalformed, Error: "ingest: malformed payload", CreatedAt: base.Add(time.Second)},
		{ID: "c", Format: "json", Outcome: OutcomeSuccess, Inserted: 1, Duplicates: 2, RequestID: "req-1", CreatedAt: base.Add(1500 * time.Millisecond)},
	}
	for i := range entries {
		if err := repo.Create(ctx, &entries[i]); err != nil {
			t.Fatalf("Create(%s) error = %v", entries[i].ID, err)
		}
	}

	tests := []struct {
		name    string
		filter  Filter
		wantIDs []string
		total   int
	}{
		{"all most recent first", Filter{}, []string{"c", "b", "a"}, 3},
		{"by outcome", Filter{Outcome: OutcomeSuccess}, []string{"c", "a"}, 2},
		{"paged", Filter{Limit: 1, Offset: 1}, []string{"b"}, 3},
		{"negative offset clamps", Filter{Limit: 2, Offset: -4}, []string{"c", "b"}, 3},
		{"unknown outcome", Filter{Outcome: "nope"}, []string{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := repo.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if res.Total != tt.total {
				t.Errorf("Total = %d, want %d", res.Total, tt.total)
			}
			if len(res.Entries) != len(tt.wantIDs) {
				t.Fatalf("got %d entries, want %d", len(res.Entries), len(tt.wantIDs))
			}
			for i, id := range tt.wantIDs {
				if res.Entries[i].ID != id {
					t.Errorf("Entries[%d].ID = %q, want %q", i, res.Entries[i].ID, id)
				}
			}
		})
	}

	res, err := repo.List(ctx, Filter{Outcome: OutcomeMalformed})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if got := res.Entries[0]; got.Error != "ingest: malformed payload" || !got.CreatedAt.Equal(base.Add(time.Second)) {
		t.Errorf("malformed entry = %+v", got)
	}
}

func TestList_LimitClamp(t *testing.T) {
	repo := testRepo(t)

	res, err := repo.List(context.Background(), Filter{Limit: 10_000})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.Limit != maxLimit {
		t.Errorf("Limit = %d, want %d", res.Limit, maxLimit)
	}
	if res.Entries == nil {
		t.Error("Entries should be an empty slice, not nil")
	}

	res, _ = repo.List(context.Background(), Filter{})
	if res.Limit != defaultLimit {
		t.Errorf("default Limit = %d, want %d", res.Limit, defaultLimit)
	}
}
