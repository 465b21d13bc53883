package broadcast

import (
	"testing"

	"fieldlog/pkg/domain"
)

// fakeSource plays the role of a record store for view tests.
type fakeSource struct {
	records []domain.Observation
	changed bool
	rec     int
}

func (f *fakeSource) Reconcile() (bool, error) {
	f.rec++
	return f.changed, nil
}

func (f *fakeSource) List() []domain.Observation {
	out := make([]domain.Observation, len(f.records))
	copy(out, f.records)
	return out
}

func TestViewRefreshesOnStorageNotice(t *testing.T) {
	bus := New()
	src := &fakeSource{records: []domain.Observation{{ID: "1"}}}

	var renders int
	view := NewView(src, bus, func([]domain.Observation) { renders++ })
	defer view.Close()

	if got := view.Records(); len(got) != 1 {
		t.Fatalf("initial records = %+v", got)
	}

	src.records = append(src.records, domain.Observation{ID: "2"})
	src.changed = true
	bus.PublishNotice(domain.StorageNotice{Key: domain.StorageKeyObservations})

	if got := view.Records(); len(got) != 2 {
		t.Fatalf("records after notice = %+v", got)
	}
	if renders != 1 {
		t.Fatalf("renders = %d, want 1", renders)
	}
}

func TestViewRefreshIsIdempotent(t *testing.T) {
	bus := New()
	src := &fakeSource{records: []domain.Observation{{ID: "1"}}}

	var renders int
	view := NewView(src, bus, func([]domain.Observation) { renders++ })
	defer view.Close()

	// The same state delivered twice must not re-render.
	bus.PublishNotice(domain.StorageNotice{Key: domain.StorageKeyObservations})
	bus.PublishNotice(domain.StorageNotice{Key: domain.StorageKeyObservations})
	bus.PublishChange(domain.ChangeEvent{Type: domain.ChangeEdit, AffectedIDs: []string{"1"}})

	if renders != 0 {
		t.Fatalf("unchanged state rendered %d times", renders)
	}
	if src.rec != 3 {
		t.Fatalf("reconcile calls = %d, want 3", src.rec)
	}
}

func TestViewClearsSelectionWhenRecordVanishes(t *testing.T) {
	bus := New()
	src := &fakeSource{records: []domain.Observation{{ID: "1"}, {ID: "2"}}}

	view := NewView(src, bus, nil)
	defer view.Close()

	view.Select("2")
	if got := view.SelectedID(); got != "2" {
		t.Fatalf("selected = %q", got)
	}

	src.records = src.records[:1]
	src.changed = true
	bus.PublishChange(domain.ChangeEvent{Type: domain.ChangeDeletion, AffectedIDs: []string{"2"}})

	if got := view.SelectedID(); got != "" {
		t.Fatalf("selection survived deletion: %q", got)
	}
	if got := view.Records(); len(got) != 1 || got[0].ID != "1" {
		t.Fatalf("records after deletion = %+v", got)
	}
}

func TestViewSurvivesSelectionOfOtherDeletion(t *testing.T) {
	bus := New()
	src := &fakeSource{records: []domain.Observation{{ID: "1"}, {ID: "2"}}}

	view := NewView(src, bus, nil)
	defer view.Close()
	view.Select("1")

	src.records = src.records[1:]
	src.changed = true
	bus.PublishChange(domain.ChangeEvent{Type: domain.ChangeDeletion, AffectedIDs: []string{"1"}})

	// "1" was the one deleted, so the selection clears; re-run with the
	// selection on the surviving record.
	view.Select("2")
	src.records = []domain.Observation{{ID: "2"}, {ID: "3"}}
	src.changed = true
	bus.PublishChange(domain.ChangeEvent{Type: domain.ChangeCreation, AffectedIDs: []string{"3"}})

	if got := view.SelectedID(); got != "2" {
		t.Fatalf("selection lost across unrelated change: %q", got)
	}
}

func TestClosedViewStopsListening(t *testing.T) {
	bus := New()
	src := &fakeSource{records: []domain.Observation{{ID: "1"}}}
	view := NewView(src, bus, nil)
	view.Close()

	before := src.rec
	bus.PublishNotice(domain.StorageNotice{Key: domain.StorageKeyObservations})
	if src.rec != before {
		t.Fatal("closed view still reconciles")
	}
}
