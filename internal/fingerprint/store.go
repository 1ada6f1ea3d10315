// Package fingerprint implements the idempotency ledger that guarantees
// at-most-once linking. A fingerprint identifies a file by its normalized
// name and size rather than by path, so a file renamed or moved upstream
// before processing is still recognized as already handled.
package fingerprint

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/mescon/Linkarr/internal/db"
)

// RecordResult reports the outcome of a Record call.
type RecordResult int

const (
	// Recorded means this call inserted the row.
	Recorded RecordResult = iota
	// AlreadyRecorded means another caller (possibly in a previous process
	// lifetime) inserted the same key first. Not an error.
	AlreadyRecorded
)

// Entry is one row of the fingerprint ledger.
type Entry struct {
	Key             string    `json:"fingerprint_key"`
	SourcePath      string    `json:"source_path"`
	DestinationPath string    `json:"destination_path"`
	Size            int64     `json:"size"`
	MTime           time.Time `json:"mtime"`
	MediaType       string    `json:"media_type,omitempty"`
	Title           string    `json:"title,omitempty"`
	Season          int       `json:"season,omitempty"`
	Episode         int       `json:"episode,omitempty"`
	Year            int       `json:"year,omitempty"`
	Quality         string    `json:"quality,omitempty"`
	LinkedAt        time.Time `json:"linked_at"`
}

// Key derives the deterministic fingerprint key for a file. It hashes the
// lowercased base filename together with the size, deliberately NOT the
// path, the mtime, or the content: cheap to compute, stable across upstream
// renames of the containing directory, and good enough in practice for
// release files. See the ledger docs before changing this to a content hash.
func Key(filename string, size int64) string {
	seed := fmt.Sprintf("%s:%d", strings.ToLower(strings.TrimSpace(filename)), size)
	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:])
}

// Store reads and writes the fingerprints table.
type Store struct {
	db *sql.DB
}

// NewStore creates a Store over an already-migrated database.
func NewStore(database *sql.DB) *Store {
	return &Store{db: database}
}

// Has reports whether the key is already in the ledger.
func (s *Store) Has(key string) (bool, error) {
	var one int
	err := s.db.QueryRow("SELECT 1 FROM fingerprints WHERE fingerprint_key = ? LIMIT 1", key).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("fingerprint lookup failed: %w", err)
	}
	return true, nil
}

// Record inserts the entry. Safe under concurrent callers racing on the same
// key: the unique constraint on fingerprint_key makes the insert atomic at
// the storage layer, and the losing caller gets AlreadyRecorded, not an error.
func (s *Store) Record(e Entry) (RecordResult, error) {
	res, err := db.ExecWithRetry(s.db, `
		INSERT INTO fingerprints
			(fingerprint_key, source_path, destination_path, size, mtime,
			 media_type, title, season, episode, year, quality)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(fingerprint_key) DO NOTHING
	`, e.Key, e.SourcePath, e.DestinationPath, e.Size, e.MTime.UTC(),
		e.MediaType, e.Title, e.Season, e.Episode, e.Year, e.Quality)
	if err != nil {
		return 0, fmt.Errorf("fingerprint insert failed: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("fingerprint insert result unavailable: %w", err)
	}
	if n == 0 {
		return AlreadyRecorded, nil
	}
	return Recorded, nil
}

// Recent returns the most recently linked entries, newest first.
func (s *Store) Recent(limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT fingerprint_key, source_path, destination_path, size, mtime,
		       COALESCE(media_type, ''), COALESCE(title, ''),
		       COALESCE(season, 0), COALESCE(episode, 0), COALESCE(year, 0),
		       COALESCE(quality, ''), linked_at
		FROM fingerprints
		ORDER BY linked_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("fingerprint query failed: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Key, &e.SourcePath, &e.DestinationPath, &e.Size, &e.MTime,
			&e.MediaType, &e.Title, &e.Season, &e.Episode, &e.Year, &e.Quality, &e.LinkedAt); err != nil {
			return nil, fmt.Errorf("fingerprint scan failed: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Count returns the total number of ledger rows.
func (s *Store) Count() (int64, error) {
	var n int64
	if err := s.db.QueryRow("SELECT COUNT(*) FROM fingerprints").Scan(&n); err != nil {
		return 0, fmt.Errorf("fingerprint count failed: %w", err)
	}
	return n, nil
}
