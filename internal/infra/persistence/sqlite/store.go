// Package sqlite persists observation snapshots to a single SQLite table
// as JSON blobs. It writes the full snapshot after every committed
// mutation, which keeps the durable copy the single source of truth for
// cross-context reconciliation.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"fieldlog/pkg/domain"
)

const snapshotBucket = "observations"

// Store is a SQLite-backed snapshot persister.
type Store struct {
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// NewStore opens or creates the database file and ensures the state table
// exists. Open failures wrap domain.ErrStorageUnavailable: the paths that
// need durable storage cannot proceed without it.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = "fieldlog.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open sqlite %s: %v", domain.ErrStorageUnavailable, path, err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: create state table: %v", domain.ErrStorageUnavailable, err)
	}
	return &Store{db: db, path: path}, nil
}

// Load reads the stored snapshot, zero-valued when the table is empty.
func (s *Store) Load() (domain.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var payload []byte
	err := s.db.QueryRow(`SELECT payload FROM state WHERE bucket = ?`, snapshotBucket).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Snapshot{}, nil
	}
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("select state: %w", err)
	}
	var snap domain.Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return domain.Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

// Save upserts the full snapshot. A full-database condition is reported as
// domain.ErrQuotaExceeded so the record store can roll back and surface it.
func (s *Store) Save(snap domain.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	_, err = s.db.Exec(`INSERT INTO state(bucket,payload) VALUES(?,?)
		ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`, snapshotBucket, data)
	if err != nil {
		if isFull(err) {
			return fmt.Errorf("%w: %v", domain.ErrQuotaExceeded, err)
		}
		return fmt.Errorf("upsert state: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }

// isFull detects SQLITE_FULL, the driver's out-of-space condition.
func isFull(err error) bool {
	return err != nil && strings.Contains(err.Error(), "database or disk is full")
}
