package main

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"fieldlog/pkg/domain"
)

// registry is the in-memory backing store of the development sync server.
// Every accepted write is appended to a change log so clients can pull
// changes since their last cursor.
type registry struct {
	mu      sync.Mutex
	nextID  int
	records map[string]registryRecord
	log     []changeEntry
	nowFn   func() time.Time
}

type registryRecord struct {
	ServerID string             `json:"serverId"`
	LocalID  string             `json:"localId"`
	Body     domain.Observation `json:"body"`
	Updated  time.Time          `json:"updatedAt"`
}

type changeEntry struct {
	ServerID string    `json:"serverId"`
	LocalID  string    `json:"localId"`
	At       time.Time `json:"updatedAt"`
}

func newRegistry() *registry {
	return &registry{records: make(map[string]registryRecord), nowFn: time.Now}
}

// create registers a record and returns its assigned identifier. The
// client's local identifier keys idempotency: re-sending the same record
// returns the identifier assigned the first time.
func (r *registry) create(obs domain.Observation) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		if rec.LocalID == obs.ID {
			return rec.ServerID
		}
	}
	r.nextID++
	serverID := fmt.Sprintf("srv-%06d", r.nextID)
	now := r.nowFn().UTC()
	r.records[serverID] = registryRecord{ServerID: serverID, LocalID: obs.ID, Body: obs, Updated: now}
	r.log = append(r.log, changeEntry{ServerID: serverID, LocalID: obs.ID, At: now})
	return serverID
}

func (r *registry) update(serverID string, obs domain.Observation) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[serverID]
	if !ok {
		return false
	}
	now := r.nowFn().UTC()
	rec.Body = obs
	rec.Updated = now
	r.records[serverID] = rec
	r.log = append(r.log, changeEntry{ServerID: serverID, LocalID: rec.LocalID, At: now})
	return true
}

func (r *registry) delete(serverID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.records[serverID]
	delete(r.records, serverID)
	return ok
}

func (r *registry) list() []registryRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]registryRecord, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ServerID < out[j].ServerID })
	return out
}

// changesSince returns the change-log entries after the cursor, newest
// cursor to hand back, and collapses repeat updates to the latest entry
// per record.
func (r *registry) changesSince(cursor time.Time) ([]changeEntry, time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	latest := make(map[string]changeEntry)
	next := cursor
	for _, entry := range r.log {
		if !entry.At.After(cursor) {
			continue
		}
		latest[entry.ServerID] = entry
		if entry.At.After(next) {
			next = entry.At
		}
	}
	out := make([]changeEntry, 0, len(latest))
	for _, entry := range latest {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out, next
}
