// Package sqlstore opens the goose-migrated SQL database backing the
// four typed indices (heads, bookmarks, filenodes, changesets). The
// schema mirrors the tables sketched in the spec's external-interfaces
// section almost directly.
package sqlstore

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // database/sql driver registration
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Open opens a sqlite database at dsn (use "file::memory:?cache=shared"
// for an ephemeral in-process database in tests) and migrates it to the
// latest schema version.
//
// The connection pool is pinned to a single connection: the indices this
// package backs are small, append-mostly metadata tables, and a single
// connection gives bookmark transactions a free serialization point
// (see indices.Bookmarks) without hand-rolling file locking.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", dsn, err)
	}
	db.SetMaxOpenConns(1)

	goose.SetBaseFS(migrationsFS)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("sqlite3"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlstore: set dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlstore: migrate: %w", err)
	}

	return db, nil
}
