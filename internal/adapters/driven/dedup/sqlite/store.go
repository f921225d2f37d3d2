// Package sqlite provides a SQLite-backed event deduplication store.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/perch-labs/perch/internal/core/domain"
	"github.com/perch-labs/perch/internal/core/ports/driven"
)

// Ensure Store implements the interface.
var _ driven.DedupStore = (*Store)(nil)

// Store records processed event keys with a bounded lifetime. Expired
// rows read as absent and are reclaimed opportunistically on Mark.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// NewStore creates a dedup store at the specified data directory.
// If dataDir is empty, defaults to ~/.perch/data/dedup.db.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".perch", "data")
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "dedup.db")

	// Open database with WAL mode for better concurrency
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{
		db:   db,
		path: dbPath,
		now:  time.Now,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) createSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS dedup_events (
			channel_id TEXT NOT NULL,
			event_ts   TEXT NOT NULL,
			expires_at INTEGER NOT NULL,
			PRIMARY KEY (channel_id, event_ts)
		)
	`)
	return err
}

// Check reports whether the key has been marked and has not expired.
func (s *Store) Check(ctx context.Context, key domain.DedupKey) (bool, error) {
	var expiresAt int64
	row := s.db.QueryRowContext(ctx,
		"SELECT expires_at FROM dedup_events WHERE channel_id = ? AND event_ts = ?",
		key.Channel, key.Timestamp,
	)
	if err := row.Scan(&expiresAt); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("querying dedup entry: %w", err)
	}
	return expiresAt > s.now().Unix(), nil
}

// Mark inserts the key with the given lifetime. Marking an existing
// live key is a no-op; an expired row is re-armed.
func (s *Store) Mark(ctx context.Context, key domain.DedupKey, ttl time.Duration) error {
	now := s.now().Unix()

	// Reclaim expired rows while we are writing anyway.
	if _, err := s.db.ExecContext(ctx, "DELETE FROM dedup_events WHERE expires_at <= ?", now); err != nil {
		return fmt.Errorf("purging expired entries: %w", err)
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO dedup_events (channel_id, event_ts, expires_at) VALUES (?, ?, ?)",
		key.Channel, key.Timestamp, now+int64(ttl.Seconds()),
	)
	if err != nil {
		return fmt.Errorf("inserting dedup entry: %w", err)
	}
	return nil
}
