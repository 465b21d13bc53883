// Package records implements the durable local store of user-created
// observation records. Mutations follow a clone-persist-commit discipline:
// the next state is built on a copy, written to durable storage, and only
// then swapped in, so a failed persist (quota, backend error) leaves memory
// and disk in agreement.
package records

import (
	"fmt"
	"log/slog"
	"reflect"
	"strconv"
	"sync"
	"time"

	"fieldlog/internal/broadcast"
	"fieldlog/pkg/domain"
)

// Store is one context's handle on the shared observation collection.
// Several stores may share a persister (one per open view of the app);
// last writer wins at the snapshot level, with no field merge.
type Store struct {
	mu        sync.Mutex
	persister domain.Persister
	bus       *broadcast.Bus
	log       *slog.Logger
	state     domain.Snapshot
	nowFn     func() time.Time
	lastIDms  int64
}

// Open loads the durable snapshot into a new store. Older snapshot shapes
// are migrated before use. An unreadable backend is fatal to the caller.
func Open(p domain.Persister, bus *broadcast.Bus, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	snap, err := p.Load()
	if err != nil {
		return nil, fmt.Errorf("load observations: %w", err)
	}
	snap = migrate(snap, log)
	return &Store{
		persister: p,
		bus:       bus,
		log:       log,
		state:     snap,
		nowFn:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// migrate upgrades older persisted shapes to the current schema version
// and normalizes optional containers so reconciliation's deep compare does
// not confuse an absent map with an empty one.
func migrate(s domain.Snapshot, log *slog.Logger) domain.Snapshot {
	if s.SchemaVersion != domain.SnapshotSchemaVersion {
		// Version 0/1 snapshots predate sync-status bookkeeping.
		for i, o := range s.Observations {
			if o.SyncStatus == "" {
				s.Observations[i].SyncStatus = domain.SyncPending
			}
		}
		if len(s.Observations) > 0 {
			log.Info("migrated observation snapshot",
				slog.Int("from", s.SchemaVersion),
				slog.Int("to", domain.SnapshotSchemaVersion))
		}
		s.SchemaVersion = domain.SnapshotSchemaVersion
	}
	if s.QueueAttempts == nil {
		s.QueueAttempts = map[string]int{}
	}
	return s
}

// newID derives a record identifier from the current time in milliseconds.
// The monotonic guard only defends within this store instance; collisions
// across devices are accepted as astronomically unlikely.
func (s *Store) newID() string {
	ms := s.nowFn().UnixMilli()
	if ms <= s.lastIDms {
		ms = s.lastIDms + 1
	}
	s.lastIDms = ms
	return strconv.FormatInt(ms, 10)
}

// commit persists next and, on success, swaps it in. The caller publishes
// the change signals after releasing the store lock: bus delivery is
// synchronous, and a same-context view reconciles against this store re-entrantly.
func (s *Store) commit(next domain.Snapshot) error {
	next.SchemaVersion = domain.SnapshotSchemaVersion
	if err := s.persister.Save(next); err != nil {
		return err
	}
	s.state = next
	return nil
}

// publish broadcasts the storage notice and the typed change event for a
// committed mutation. Must be called without holding s.mu.
func (s *Store) publish(ev domain.ChangeEvent) {
	if s.bus == nil {
		return
	}
	s.bus.PublishNotice(domain.StorageNotice{Key: domain.StorageKeyObservations})
	s.bus.PublishChange(ev)
}

// List returns all records in insertion order.
func (s *Store) List() []domain.Observation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Observation, len(s.state.Observations))
	for i, o := range s.state.Observations {
		out[i] = o.Clone()
	}
	return out
}

// Get returns a record by local identifier.
func (s *Store) Get(id string) (domain.Observation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.state.Observations {
		if o.ID == id {
			return o.Clone(), true
		}
	}
	return domain.Observation{}, false
}

// Create assigns an identifier to the draft, persists it, and broadcasts a
// creation event. Records always enter as pending: only the offline write
// queue may confirm a sync, even when the device is online at create time.
func (s *Store) Create(draft domain.Observation) (domain.Observation, error) {
	s.mu.Lock()

	draft.ID = s.newID()
	draft.ServerID = nil
	draft.SyncStatus = domain.SyncPending
	if draft.Position != nil {
		v := draft.Position.Round()
		draft.Position = &v
	}
	now := s.nowFn()
	draft.CreatedAt = now
	draft.UpdatedAt = now
	if err := draft.Validate(); err != nil {
		s.mu.Unlock()
		return domain.Observation{}, err
	}

	next := s.state.Clone()
	next.Observations = append(next.Observations, draft.Clone())
	if err := s.commit(next); err != nil {
		s.mu.Unlock()
		s.log.Warn("create rolled back", slog.String("id", draft.ID), slog.Any("error", err))
		return domain.Observation{}, err
	}
	s.mu.Unlock()

	s.publish(domain.ChangeEvent{Type: domain.ChangeCreation, AffectedIDs: []string{draft.ID}, At: now})
	return draft, nil
}

// Update merges a patch over the record with the given identifier. The
// merge is last-writer-wins against this store's current copy; callers in
// other contexts see the result via the broadcast signals.
func (s *Store) Update(id string, patch domain.ObservationPatch) (domain.Observation, error) {
	s.mu.Lock()

	next := s.state.Clone()
	idx := indexOf(next.Observations, id)
	if idx < 0 {
		s.mu.Unlock()
		return domain.Observation{}, domain.NotFoundError{ID: id}
	}
	rec := &next.Observations[idx]
	patch.Apply(rec)
	rec.UpdatedAt = s.nowFn()
	if err := rec.Validate(); err != nil {
		s.mu.Unlock()
		return domain.Observation{}, err
	}
	if err := s.commit(next); err != nil {
		s.mu.Unlock()
		s.log.Warn("update rolled back", slog.String("id", id), slog.Any("error", err))
		return domain.Observation{}, err
	}
	updated := rec.Clone()
	s.mu.Unlock()

	s.publish(domain.ChangeEvent{Type: domain.ChangeEdit, AffectedIDs: []string{id}, At: updated.UpdatedAt})
	return updated, nil
}

// Delete removes the records whose identifiers appear in ids and notifies
// consumers with the removed set so dependent views can drop selections.
// Synced records leave a tombstone so the remote copy is deleted on the
// next drain. Unknown identifiers are ignored.
func (s *Store) Delete(ids []string) error {
	s.mu.Lock()

	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	next := s.state.Clone()
	kept := make([]domain.Observation, 0, len(next.Observations))
	var removed []string
	for _, o := range next.Observations {
		if !want[o.ID] {
			kept = append(kept, o)
			continue
		}
		removed = append(removed, o.ID)
		delete(next.QueueAttempts, o.ID)
		if o.ServerID != nil {
			next.Tombstones = append(next.Tombstones, *o.ServerID)
		}
	}
	if len(removed) == 0 {
		s.mu.Unlock()
		return nil
	}
	next.Observations = kept
	if err := s.commit(next); err != nil {
		s.mu.Unlock()
		return err
	}
	at := s.nowFn()
	s.mu.Unlock()

	s.publish(domain.ChangeEvent{Type: domain.ChangeDeletion, AffectedIDs: removed, At: at})
	return nil
}

// UpdateImages replaces the record's image list only. Image payloads churn
// independently of other fields, and the dedicated event type lets
// image-only consumers skip full-record refresh work.
func (s *Store) UpdateImages(id string, images []domain.ImageAttachment) error {
	s.mu.Lock()

	next := s.state.Clone()
	idx := indexOf(next.Observations, id)
	if idx < 0 {
		s.mu.Unlock()
		return domain.NotFoundError{ID: id}
	}
	at := s.nowFn()
	next.Observations[idx].Images = append([]domain.ImageAttachment(nil), images...)
	next.Observations[idx].UpdatedAt = at
	if err := s.commit(next); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	s.publish(domain.ChangeEvent{Type: domain.ChangeImageUpdate, AffectedIDs: []string{id}, At: at})
	return nil
}

// Reconcile re-reads the durable snapshot and, when it differs from the
// in-memory copy, replaces the copy wholesale. Durable storage always
// wins; reconciliation never writes. Returns whether anything changed.
func (s *Store) Reconcile() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fresh, err := s.persister.Load()
	if err != nil {
		return false, fmt.Errorf("reload observations: %w", err)
	}
	fresh = migrate(fresh, s.log)
	if reflect.DeepEqual(fresh, s.state) {
		return false, nil
	}
	s.state = fresh
	return true, nil
}

func indexOf(list []domain.Observation, id string) int {
	for i, o := range list {
		if o.ID == id {
			return i
		}
	}
	return -1
}
