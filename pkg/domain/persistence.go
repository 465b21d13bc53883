package domain

// SnapshotSchemaVersion is the current persisted-snapshot shape. Older
// snapshots are migrated explicitly on load rather than tolerated field by
// field at read time.
const SnapshotSchemaVersion = 2

// Snapshot is the full durable state of one device's observation
// collection. Every committed mutation writes it wholesale, which is what
// makes cross-context reconciliation a plain re-read.
type Snapshot struct {
	SchemaVersion int            `json:"schema_version"`
	Observations  []Observation  `json:"observations"`
	QueueAttempts map[string]int `json:"queue_attempts,omitempty"` // record ID → replay attempts
	Tombstones    []string       `json:"tombstones,omitempty"`     // server IDs awaiting remote delete
	SyncCursor    string         `json:"sync_cursor,omitempty"`    // RFC3339, last changes-since pull
}

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	cp := s
	if s.Observations != nil {
		cp.Observations = make([]Observation, len(s.Observations))
		for i, o := range s.Observations {
			cp.Observations[i] = o.Clone()
		}
	}
	if s.QueueAttempts != nil {
		cp.QueueAttempts = make(map[string]int, len(s.QueueAttempts))
		for k, v := range s.QueueAttempts {
			cp.QueueAttempts[k] = v
		}
	}
	cp.Tombstones = append([]string(nil), s.Tombstones...)
	return cp
}

// Persister is the minimal abstraction over a durable snapshot backend.
// Save must be atomic: after an error the previously stored snapshot is
// still intact, which is what allows the record store to roll back its
// in-memory state on quota failures.
type Persister interface {
	Load() (Snapshot, error)
	Save(Snapshot) error
	Close() error
}
