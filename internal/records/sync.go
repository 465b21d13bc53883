package records

import (
	"fmt"

	"fieldlog/pkg/domain"
)

// Queue-facing operations. The offline write queue owns sync-status
// confirmation and the replay bookkeeping persisted alongside the records.

// Pending returns the records still awaiting remote confirmation, in
// insertion order. These are the queue's entries: the replay payload is
// the record itself.
func (s *Store) Pending() []domain.Observation {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Observation
	for _, o := range s.state.Observations {
		if o.SyncStatus == domain.SyncPending {
			out = append(out, o.Clone())
		}
	}
	return out
}

// MarkSynced confirms a record against the server-issued identifier. The
// local identifier is never renumbered; holders learn of the server ID
// through the same broadcast used for any edit.
func (s *Store) MarkSynced(id, serverID string) error {
	return s.markStatus(id, domain.SyncSynced, &serverID)
}

// MarkSyncError parks a record in the terminal error state after bounded
// retries were exhausted.
func (s *Store) MarkSyncError(id string) error {
	return s.markStatus(id, domain.SyncError, nil)
}

func (s *Store) markStatus(id string, status domain.SyncStatus, serverID *string) error {
	s.mu.Lock()

	next := s.state.Clone()
	idx := indexOf(next.Observations, id)
	if idx < 0 {
		s.mu.Unlock()
		return domain.NotFoundError{ID: id}
	}
	rec := &next.Observations[idx]
	if !rec.SyncStatus.CanTransition(status) {
		s.mu.Unlock()
		return fmt.Errorf("illegal sync transition %s→%s for observation %s", rec.SyncStatus, status, id)
	}
	rec.SyncStatus = status
	if serverID != nil {
		v := *serverID
		rec.ServerID = &v
	}
	delete(next.QueueAttempts, id)
	at := s.nowFn()
	rec.UpdatedAt = at
	if err := s.commit(next); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	s.publish(domain.ChangeEvent{Type: domain.ChangeEdit, AffectedIDs: []string{id}, At: at})
	return nil
}

// Attempts returns the persisted replay attempt count for a record.
func (s *Store) Attempts(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.QueueAttempts[id]
}

// IncrementAttempts bumps and persists the replay attempt count, returning
// the new value. Attempt bookkeeping is not broadcast: it changes no
// record content.
func (s *Store) IncrementAttempts(id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.state.Clone()
	if next.QueueAttempts == nil {
		next.QueueAttempts = map[string]int{}
	}
	next.QueueAttempts[id]++
	n := next.QueueAttempts[id]
	if err := s.commit(next); err != nil {
		return 0, err
	}
	return n, nil
}

// Tombstones returns the server IDs of locally deleted records whose
// remote copies still need deletion.
func (s *Store) Tombstones() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.state.Tombstones...)
}

// RemoveTombstone drops a tombstone once the remote delete is confirmed.
func (s *Store) RemoveTombstone(serverID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.state.Clone()
	kept := next.Tombstones[:0]
	for _, t := range next.Tombstones {
		if t != serverID {
			kept = append(kept, t)
		}
	}
	if len(kept) == len(next.Tombstones) {
		return nil
	}
	next.Tombstones = kept
	return s.commit(next)
}

// SyncCursor returns the timestamp of the last applied changes-since pull,
// RFC3339-encoded, empty when no pull has happened.
func (s *Store) SyncCursor() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.SyncCursor
}

// SetSyncCursor persists the changes-since cursor.
func (s *Store) SetSyncCursor(cursor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.state.Clone()
	next.SyncCursor = cursor
	return s.commit(next)
}
