package domain

import (
	"testing"
	"time"
)

func TestSyncStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to SyncStatus
		want     bool
	}{
		{SyncPending, SyncSynced, true},
		{SyncPending, SyncError, true},
		{SyncSynced, SyncPending, false},
		{SyncSynced, SyncError, false},
		{SyncError, SyncPending, false},
		{SyncError, SyncSynced, false},
		{SyncPending, SyncPending, false},
	}
	for _, c := range cases {
		if got := c.from.CanTransition(c.to); got != c.want {
			t.Errorf("CanTransition(%s→%s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestValidateAccuracyPreset(t *testing.T) {
	ok := 250
	bad := 37
	o := Observation{SyncStatus: SyncPending, AccuracyMeters: &ok}
	if err := o.Validate(); err != nil {
		t.Fatalf("valid accuracy rejected: %v", err)
	}
	o.AccuracyMeters = &bad
	if err := o.Validate(); err == nil {
		t.Fatalf("expected error for accuracy %dm", bad)
	}
}

func TestPatchClearsPositionAsPair(t *testing.T) {
	o := Observation{
		ID:         "1",
		Position:   &Position{Latitude: 65.0, Longitude: 13.0},
		SyncStatus: SyncPending,
	}
	ObservationPatch{ClearPosition: true}.Apply(&o)
	if o.Position != nil {
		t.Fatalf("position should be cleared as a unit, got %+v", o.Position)
	}

	ObservationPatch{Position: &Position{Latitude: 59.9127345678, Longitude: 10.7460987654}}.Apply(&o)
	if o.Position == nil {
		t.Fatal("position not applied")
	}
	if o.Position.Latitude != 59.912735 || o.Position.Longitude != 10.746099 {
		t.Fatalf("position not rounded to 6 decimals: %+v", o.Position)
	}
}

func TestPatchLeavesIdentityAndImagesAlone(t *testing.T) {
	captured := time.Date(2024, 12, 7, 10, 0, 0, 0, time.UTC)
	o := Observation{
		ID:         "42",
		Images:     []ImageAttachment{{Key: "observations/42/000", Rotation: 90, CapturedAt: &captured}},
		SyncStatus: SyncPending,
	}
	loc := "Dovrefjell"
	ObservationPatch{Locality: &loc}.Apply(&o)
	if o.ID != "42" || len(o.Images) != 1 || o.Images[0].Rotation != 90 {
		t.Fatalf("patch touched identity or images: %+v", o)
	}
	if o.Locality != "Dovrefjell" {
		t.Fatalf("locality not applied: %q", o.Locality)
	}
}

func TestObservationCloneIsDeep(t *testing.T) {
	acc := 50
	srv := "srv-1"
	o := Observation{
		ID:             "1",
		ServerID:       &srv,
		Position:       &Position{Latitude: 1, Longitude: 2},
		AccuracyMeters: &acc,
		Images:         []ImageAttachment{{Key: "k"}},
	}
	cp := o.Clone()
	*cp.ServerID = "changed"
	cp.Position.Latitude = 99
	*cp.AccuracyMeters = 1
	cp.Images[0].Key = "other"
	if *o.ServerID != "srv-1" || o.Position.Latitude != 1 || *o.AccuracyMeters != 50 || o.Images[0].Key != "k" {
		t.Fatalf("clone shares memory with original: %+v", o)
	}
}

func TestSnapshotCloneIsDeep(t *testing.T) {
	s := Snapshot{
		SchemaVersion: SnapshotSchemaVersion,
		Observations:  []Observation{{ID: "1"}},
		QueueAttempts: map[string]int{"1": 2},
		Tombstones:    []string{"srv-9"},
	}
	cp := s.Clone()
	cp.Observations[0].ID = "x"
	cp.QueueAttempts["1"] = 9
	cp.Tombstones[0] = "y"
	if s.Observations[0].ID != "1" || s.QueueAttempts["1"] != 2 || s.Tombstones[0] != "srv-9" {
		t.Fatalf("snapshot clone shares memory: %+v", s)
	}
}
