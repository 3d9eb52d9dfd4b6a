// Package db keeps an append-only history of captures and misclassification
// flags in SQLite. It is an observability record only: the session ledger is
// never restored from it.
package db

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DefaultPath is used when no database path is configured.
const DefaultPath = "sort_station.db"

type DB struct {
	*sql.DB
	path string
}

// NewDB opens (or creates) the database at path and applies all pending
// migrations. ":memory:" gives a private in-memory database.
func NewDB(path string) (*DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	if err := db.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// OpenDB opens the database without touching its schema. The migrate
// subcommand uses it so it can inspect and repair a database as found.
func OpenDB(path string) (*DB, error) {
	dsn := path
	if path != ":memory:" {
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	if path == ":memory:" {
		// every pooled connection would otherwise get its own empty database
		sqlDB.SetMaxOpenConns(1)
	}

	return &DB{DB: sqlDB, path: path}, nil
}

// Path returns the path the database was opened with.
func (db *DB) Path() string {
	return db.path
}
