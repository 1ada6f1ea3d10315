package db

import (
	"path/filepath"
	"testing"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(filepath.Join(t.TempDir(), "data", "linkarr.db"))
	if err != nil {
		t.Fatalf("NewRepository failed: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestNewRepositoryCreatesSchema(t *testing.T) {
	repo := newTestRepo(t)

	for _, table := range []string{"fingerprints", "events", "schema_migrations"} {
		var name string
		err := repo.DB.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}
}

func TestMigrationsAreIdempotent(t *testing.T) {
	repo := newTestRepo(t)
	if err := repo.runMigrations(); err != nil {
		t.Fatalf("re-running migrations failed: %v", err)
	}

	var applied int
	if err := repo.DB.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&applied); err != nil {
		t.Fatal(err)
	}
	if applied != 1 {
		t.Errorf("applied migrations = %d, want 1", applied)
	}
}

func TestFingerprintKeyIsUnique(t *testing.T) {
	repo := newTestRepo(t)

	insert := `INSERT INTO fingerprints (fingerprint_key, source_path, destination_path, size, mtime)
	           VALUES ('k1', '/a', '/b', 1, CURRENT_TIMESTAMP)`
	if _, err := repo.DB.Exec(insert); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.DB.Exec(insert); err == nil {
		t.Fatal("duplicate fingerprint_key must violate the unique constraint")
	}
}

func TestWALModeEnabled(t *testing.T) {
	repo := newTestRepo(t)

	var mode string
	if err := repo.DB.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatal(err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %s, want wal", mode)
	}
}

func TestCheckpointAndGracefulClose(t *testing.T) {
	repo, err := NewRepository(filepath.Join(t.TempDir(), "linkarr.db"))
	if err != nil {
		t.Fatal(err)
	}
	if err := repo.Checkpoint(); err != nil {
		t.Errorf("Checkpoint failed: %v", err)
	}
	if err := repo.GracefulClose(); err != nil {
		t.Errorf("GracefulClose failed: %v", err)
	}
}

func TestExecWithRetryPassesThrough(t *testing.T) {
	repo := newTestRepo(t)

	res, err := ExecWithRetry(repo.DB,
		"INSERT INTO events (aggregate_type, aggregate_id, event_type, event_data) VALUES (?, ?, ?, ?)",
		"file", "x", "FileLinked", "{}")
	if err != nil {
		t.Fatalf("ExecWithRetry failed: %v", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		t.Errorf("rows affected = %d, want 1", n)
	}

	if _, err := ExecWithRetry(repo.DB, "INSERT INTO no_such_table VALUES (1)"); err == nil {
		t.Fatal("non-busy errors must not be retried into success")
	}
}
