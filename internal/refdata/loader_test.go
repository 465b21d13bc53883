package refdata

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"fieldlog/pkg/domain"
)

type fakeFetcher struct {
	partitions map[int][]byte
	errs       map[int]error
	calls      int
}

func (f *fakeFetcher) FetchPartition(_ context.Context, index int) ([]byte, error) {
	f.calls++
	if err, ok := f.errs[index]; ok {
		return nil, err
	}
	if raw, ok := f.partitions[index]; ok {
		return raw, nil
	}
	return []byte(`{"original csv":[]}`), nil
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "refdata.db"))
	if err != nil {
		t.Fatalf("open refdata store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCheckAndSyncLoadsOnceThenSkips(t *testing.T) {
	store := openTestStore(t)
	fetcher := &fakeFetcher{partitions: map[int][]byte{
		1: []byte(`{"original csv":[
			{"Genus":"Betula","Species":"pubescens","VernacularNameBokmaal":"Bjørk","CategoryNorway":"LC"},
			{"Genus":"Picea","Species":"abies","VernacularNameBokmaal":"Gran"}
		]}`),
	}}
	loader := NewLoader(store, fetcher, nil)
	loader.SetPartitionCount(2)

	var percents []int
	if err := loader.CheckAndSync(context.Background(), func(p int) { percents = append(percents, p) }); err != nil {
		t.Fatalf("initial sync: %v", err)
	}
	if fetcher.calls != 2 {
		t.Fatalf("fetch calls = %d, want 2", fetcher.calls)
	}
	if last := percents[len(percents)-1]; last != 100 {
		t.Fatalf("final progress = %d", last)
	}

	version, err := store.Version()
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if version != CurrentDataVersion {
		t.Fatalf("version = %q, want %q", version, CurrentDataVersion)
	}
	entries, err := store.All()
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].ID != "Betula_pubescens" || entries[0].Vernacular(domain.LocaleBokmaal) != "Bjørk" {
		t.Fatalf("first entry wrong: %+v", entries[0])
	}
	if entries[0].Categories[domain.JurisdictionNorway] != "LC" {
		t.Fatalf("category lost: %+v", entries[0].Categories)
	}

	// The stamp matches, so a second pass fetches nothing.
	percents = percents[:0]
	if err := loader.CheckAndSync(context.Background(), func(p int) { percents = append(percents, p) }); err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if fetcher.calls != 2 {
		t.Fatalf("current cache still fetched, calls = %d", fetcher.calls)
	}
	if len(percents) != 1 || percents[0] != 100 {
		t.Fatalf("current cache progress = %v, want [100]", percents)
	}
}

func TestCheckAndSyncSkipsIncompleteRecords(t *testing.T) {
	store := openTestStore(t)
	fetcher := &fakeFetcher{partitions: map[int][]byte{
		1: []byte(`{"original csv":[
			{"Genus":"Betula","Species":"pubescens"},
			{"Genus":"","Species":"abies"},
			{"Genus":"Sorbus","Species":"  "},
			{"Genus":"Betula","Species":"pubescens","VernacularNameBokmaal":"duplicate"}
		]}`),
	}}
	loader := NewLoader(store, fetcher, nil)
	loader.SetPartitionCount(1)

	if err := loader.CheckAndSync(context.Background(), nil); err != nil {
		t.Fatalf("sync: %v", err)
	}
	n, err := store.Count()
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("entries = %d, want 1", n)
	}
}

func TestCheckAndSyncSurvivesPartitionFailure(t *testing.T) {
	store := openTestStore(t)
	fetcher := &fakeFetcher{
		partitions: map[int][]byte{
			1: []byte(`{"original csv":[{"Genus":"Betula","Species":"pubescens"}]}`),
			3: []byte(`{"original csv":[{"Genus":"Picea","Species":"abies"}]}`),
		},
		errs: map[int]error{2: fmt.Errorf("%w: connection reset", domain.ErrNetworkUnavailable)},
	}
	loader := NewLoader(store, fetcher, nil)
	loader.SetPartitionCount(3)

	if err := loader.CheckAndSync(context.Background(), nil); err != nil {
		t.Fatalf("sync with one failed partition: %v", err)
	}
	n, _ := store.Count()
	if n != 2 {
		t.Fatalf("entries = %d, want 2", n)
	}
	version, _ := store.Version()
	if version != CurrentDataVersion {
		t.Fatalf("surviving partitions not committed, version = %q", version)
	}
}

func TestCheckAndSyncFailsWhenNothingLoads(t *testing.T) {
	store := openTestStore(t)
	fetcher := &fakeFetcher{errs: map[int]error{
		1: errors.New("boom"),
		2: errors.New("boom"),
	}}
	loader := NewLoader(store, fetcher, nil)
	loader.SetPartitionCount(2)

	if err := loader.CheckAndSync(context.Background(), nil); err == nil {
		t.Fatal("expected error when every partition fails")
	}
	version, _ := store.Version()
	if version != "" {
		t.Fatalf("failed reload advanced the version to %q", version)
	}
}

func TestReplaceIsWholesale(t *testing.T) {
	store := openTestStore(t)
	first := []domain.SpeciesEntry{
		{ID: "Betula_pubescens", Genus: "Betula", Species: "pubescens", ScientificName: "Betula pubescens"},
		{ID: "Picea_abies", Genus: "Picea", Species: "abies", ScientificName: "Picea abies"},
	}
	if err := store.Replace(first, "v1"); err != nil {
		t.Fatalf("first replace: %v", err)
	}
	second := []domain.SpeciesEntry{
		{ID: "Sorbus_aucuparia", Genus: "Sorbus", Species: "aucuparia", ScientificName: "Sorbus aucuparia"},
	}
	if err := store.Replace(second, "v2"); err != nil {
		t.Fatalf("second replace: %v", err)
	}
	entries, err := store.All()
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != "Sorbus_aucuparia" {
		t.Fatalf("old entries survived replace: %+v", entries)
	}
	version, _ := store.Version()
	if version != "v2" {
		t.Fatalf("version = %q, want v2", version)
	}
}
