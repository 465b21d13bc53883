package sqlite

import (
	"path/filepath"
	"testing"
	"time"

	"fieldlog/pkg/domain"
)

func TestSnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "fieldlog.db")
	store, err := NewStore(path)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer store.Close()

	empty, err := store.Load()
	if err != nil {
		t.Fatalf("load empty: %v", err)
	}
	if len(empty.Observations) != 0 {
		t.Fatalf("fresh database not empty: %+v", empty)
	}

	serverID := "srv-1"
	snap := domain.Snapshot{
		SchemaVersion: domain.SnapshotSchemaVersion,
		Observations: []domain.Observation{{
			ID:         "1733572800000",
			ServerID:   &serverID,
			Species:    domain.SpeciesRef{ScientificName: "Betula pubescens", VernacularName: "Bjørk"},
			SyncStatus: domain.SyncSynced,
			CreatedAt:  time.Date(2024, 12, 7, 12, 0, 0, 0, time.UTC),
			UpdatedAt:  time.Date(2024, 12, 7, 12, 0, 0, 0, time.UTC),
		}},
		QueueAttempts: map[string]int{"1733572800001": 2},
		Tombstones:    []string{"srv-9"},
		SyncCursor:    "2024-12-07T12:00:00Z",
	}
	if err := store.Save(snap); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got.Observations) != 1 || got.Observations[0].ID != snap.Observations[0].ID {
		t.Fatalf("observations = %+v", got.Observations)
	}
	if got.Observations[0].ServerID == nil || *got.Observations[0].ServerID != "srv-1" {
		t.Fatalf("server id lost: %+v", got.Observations[0])
	}
	if got.QueueAttempts["1733572800001"] != 2 || len(got.Tombstones) != 1 || got.SyncCursor != snap.SyncCursor {
		t.Fatalf("bookkeeping lost: %+v", got)
	}

	// Saves replace the single snapshot row.
	snap.Observations = nil
	if err := store.Save(snap); err != nil {
		t.Fatalf("second save: %v", err)
	}
	got, err = store.Load()
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if len(got.Observations) != 0 {
		t.Fatalf("old snapshot row survived: %+v", got.Observations)
	}
}

func TestNewStoreReopensExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fieldlog.db")
	first, err := NewStore(path)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	if err := first.Save(domain.Snapshot{SchemaVersion: domain.SnapshotSchemaVersion, SyncCursor: "x"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	first.Close()

	second, err := NewStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()
	got, err := second.Load()
	if err != nil {
		t.Fatalf("load after reopen: %v", err)
	}
	if got.SyncCursor != "x" {
		t.Fatalf("snapshot lost across reopen: %+v", got)
	}
}
