package db

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "modernc.org/sqlite" // Register pure-Go SQLite driver for database/sql

	"github.com/mescon/Linkarr/internal/logger"
)

// MaxRetries is the number of times to retry a database operation on SQLITE_BUSY
const MaxRetries = 5

// RetryDelay is the base delay between retries (increases exponentially)
const RetryDelay = 100 * time.Millisecond

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Repository provides database access for the application.
type Repository struct {
	DB *sql.DB
}

// NewRepository opens (creating if needed) the database at the given path,
// configures SQLite for concurrent access, and applies pending migrations.
func NewRepository(dbPath string) (*Repository, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL mode allows multiple concurrent readers + 1 writer.
	// Fewer connections reduces lock contention in SQLite.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := configureSQLite(db); err != nil {
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}

	repo := &Repository{DB: db}
	if err := repo.runMigrations(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := repo.checkIntegrity(); err != nil {
		logger.Errorf("Warning: database integrity check failed: %v", err)
		// Non-fatal but logged - database may need attention
	}

	return repo, nil
}

func configureSQLite(db *sql.DB) error {
	// Critical pragmas that must succeed for proper operation
	criticalPragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		// Busy timeout of 30 seconds to handle concurrent writers
		"PRAGMA busy_timeout=30000",
	}

	for _, pragma := range criticalPragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to set critical pragma %s: %w", pragma, err)
		}
	}

	// Non-critical pragmas - log failures but continue
	optionalPragmas := []string{
		// FULL ensures durability across power loss during checkpoint
		"PRAGMA synchronous=FULL",
		"PRAGMA auto_vacuum=INCREMENTAL",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA cache_size=-8000",
	}

	for _, pragma := range optionalPragmas {
		if _, err := db.Exec(pragma); err != nil {
			logger.Debugf("Failed to set optional pragma %s: %v", pragma, err)
		}
	}

	return nil
}

// runMigrations applies embedded migrations in filename order, tracking
// applied versions in schema_migrations.
func (r *Repository) runMigrations() error {
	if _, err := r.DB.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		var applied int
		if err := r.DB.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", name).Scan(&applied); err != nil {
			return fmt.Errorf("failed to check migration %s: %w", name, err)
		}
		if applied > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", name, err)
		}

		if _, err := r.DB.Exec(string(content)); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", name, err)
		}
		if _, err := r.DB.Exec("INSERT INTO schema_migrations (version) VALUES (?)", name); err != nil {
			return fmt.Errorf("failed to record migration %s: %w", name, err)
		}
		logger.Infof("Applied migration: %s", name)
	}

	return nil
}

func (r *Repository) checkIntegrity() error {
	var result string
	if err := r.DB.QueryRow("PRAGMA quick_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check query failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}
	logger.Infof("Database integrity check passed")
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	return r.DB.Close()
}

// GracefulClose checkpoints the WAL into the main database file and closes
// the connection. Call on shutdown to keep the on-disk file self-contained.
func (r *Repository) GracefulClose() error {
	if _, err := r.DB.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		logger.Warnf("Shutdown WAL checkpoint failed: %v", err)
	}

	if err := r.DB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// Checkpoint runs a passive WAL checkpoint (non-blocking).
func (r *Repository) Checkpoint() error {
	if _, err := r.DB.Exec("PRAGMA wal_checkpoint(PASSIVE)"); err != nil {
		return fmt.Errorf("checkpoint failed: %w", err)
	}
	return nil
}

// StartPeriodicCheckpoint runs WAL checkpoints at the given interval in the
// background. Returns a stop function.
func (r *Repository) StartPeriodicCheckpoint(interval time.Duration) func() {
	stopCh := make(chan struct{})

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				if err := r.Checkpoint(); err != nil {
					logger.Debugf("Periodic checkpoint failed: %v", err)
				}
			}
		}
	}()

	return func() { close(stopCh) }
}
