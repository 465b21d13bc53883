// Package memory provides an in-memory snapshot persister used by tests
// and ephemeral sessions. Snapshots round-trip through JSON so that two
// record stores sharing one persister observe the same serialization
// semantics as the durable backends.
package memory

import (
	"encoding/json"
	"fmt"
	"sync"

	"fieldlog/pkg/domain"
)

// Store holds the latest snapshot as encoded bytes.
type Store struct {
	mu       sync.Mutex
	payload  []byte
	saveHook func(domain.Snapshot) error
}

// NewStore constructs an empty in-memory persister.
func NewStore() *Store {
	return &Store{}
}

// SetSaveHook installs a function invoked before each save. Tests use it
// to simulate storage-quota failures; a hook error aborts the save and
// leaves the stored snapshot untouched.
func (s *Store) SetSaveHook(fn func(domain.Snapshot) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveHook = fn
}

// Load returns the stored snapshot, zero-valued when nothing was saved.
func (s *Store) Load() (domain.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.payload == nil {
		return domain.Snapshot{}, nil
	}
	var snap domain.Snapshot
	if err := json.Unmarshal(s.payload, &snap); err != nil {
		return domain.Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

// Save stores the snapshot.
func (s *Store) Save(snap domain.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveHook != nil {
		if err := s.saveHook(snap); err != nil {
			return err
		}
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	s.payload = data
	return nil
}

// Close is a no-op for the in-memory persister.
func (s *Store) Close() error { return nil }
