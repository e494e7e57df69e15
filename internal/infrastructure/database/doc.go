// Package database provides the relational connection behind the
// measurement store.
//
// This package manages:
//   - SQLite connections (mattn/go-sqlite3) with WAL mode and busy timeout
//   - PostgreSQL connections (jackc/pgx/v5 through database/sql)
//   - Placeholder rebinding so queries are written once with ?
//   - Embedded, per-dialect schema migrations
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: "./data/sensorhub.db", WALMode: true})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Migrations live in migrations/<dialect>/ as YYYYMMDD_HHMMSS_name.up.sql and
// .down.sql pairs. They are additive: new columns must be nullable or carry
// a default.
package database
