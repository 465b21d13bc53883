// Package refdata holds the locally cached species reference dataset. The
// cache lives in SQLite next to the observation snapshot and is replaced
// wholesale whenever the published dataset version moves.
package refdata

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"fieldlog/pkg/domain"
)

const metaVersionKey = "dataVersion"

// Store is the SQLite-backed species cache.
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

// Open opens or creates the reference database and ensures its tables
// exist. Open failures wrap domain.ErrStorageUnavailable.
func Open(path string) (*Store, error) {
	if path == "" {
		path = "fieldlog-refdata.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open refdata %s: %v", domain.ErrStorageUnavailable, path, err)
	}
	for _, ddl := range []string{
		`CREATE TABLE IF NOT EXISTS species (
			id TEXT PRIMARY KEY,
			scientific_name TEXT NOT NULL,
			vernacular TEXT NOT NULL,
			payload BLOB NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	} {
		if _, err := db.Exec(ddl); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%w: create refdata tables: %v", domain.ErrStorageUnavailable, err)
		}
	}
	return &Store{db: db}, nil
}

// Version returns the dataset version stamp of the cached data, empty when
// the cache has never been populated.
func (s *Store) Version() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var v string
	err := s.db.QueryRow(`SELECT value FROM meta WHERE key = ?`, metaVersionKey).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read version: %w", err)
	}
	return v, nil
}

// Count returns the number of cached species entries.
func (s *Store) Count() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM species`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count species: %w", err)
	}
	return n, nil
}

// All returns every cached species entry ordered by identifier.
func (s *Store) All() ([]domain.SpeciesEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query(`SELECT payload FROM species ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("read species: %w", err)
	}
	defer rows.Close()
	var out []domain.SpeciesEntry
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan species row: %w", err)
		}
		var entry domain.SpeciesEntry
		if err := json.Unmarshal(payload, &entry); err != nil {
			return nil, fmt.Errorf("decode species row: %w", err)
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// Replace swaps the whole cache for the given entries and stamps the new
// dataset version, all in one transaction. Readers never observe a
// half-replaced cache.
func (s *Store) Replace(entries []domain.SpeciesEntry, version string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin replace: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM species`); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("clear species: %w", err)
	}
	for _, entry := range entries {
		payload, err := json.Marshal(entry)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("encode species %s: %w", entry.ID, err)
		}
		if _, err := tx.Exec(
			`INSERT INTO species (id, scientific_name, vernacular, payload) VALUES (?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET scientific_name = excluded.scientific_name,
			 vernacular = excluded.vernacular, payload = excluded.payload`,
			entry.ID, entry.ScientificName, entry.Vernacular(domain.LocaleBokmaal), payload,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert species %s: %w", entry.ID, err)
		}
	}
	if _, err := tx.Exec(
		`INSERT INTO meta (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		metaVersionKey, version,
	); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("stamp version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
