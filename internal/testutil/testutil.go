// Package testutil provides shared helpers for package tests.
package testutil

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

// NewTestDB opens a throwaway on-disk SQLite database under t.TempDir with
// the application schema applied. On-disk rather than :memory: so tests can
// exercise concurrent writers the way production does.
func NewTestDB(t *testing.T) *sql.DB {
	t.Helper()

	// Pragmas issued through db.Exec below only reach the one pooled
	// connection that happens to run them, so also pass them in the DSN
	// to make the driver apply them to every connection in the pool.
	dsn := filepath.Join(t.TempDir(), "test.db") +
		"?_pragma=busy_timeout(30000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=30000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			t.Fatalf("failed to set %s: %v", pragma, err)
		}
	}

	schema := []string{
		`CREATE TABLE fingerprints (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			fingerprint_key TEXT NOT NULL UNIQUE,
			source_path TEXT NOT NULL,
			destination_path TEXT NOT NULL,
			size INTEGER NOT NULL,
			mtime TIMESTAMP,
			media_type TEXT,
			title TEXT,
			season INTEGER,
			episode INTEGER,
			year INTEGER,
			quality TEXT,
			linked_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			aggregate_type TEXT NOT NULL,
			aggregate_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			event_data TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("failed to create schema: %v", err)
		}
	}
	return db
}
