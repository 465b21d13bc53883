package main

import (
	"os"
	"path/filepath"
	"testing"

	"fieldlog/internal/broadcast"
	"fieldlog/internal/records"
	"fieldlog/pkg/domain"
)

func newTestEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("FIELDLOG_STORAGE_DRIVER", "sqlite")
	t.Setenv("FIELDLOG_SQLITE_PATH", filepath.Join(dir, "records.db"))
	t.Setenv("FIELDLOG_BLOB_DRIVER", "fs")
	t.Setenv("FIELDLOG_BLOB_FS_ROOT", filepath.Join(dir, "images"))
	t.Setenv("FIELDLOG_LOG_LEVEL", "error")
	return dir
}

func createRecord(t *testing.T) string {
	t.Helper()
	persister, err := records.OpenPersister()
	if err != nil {
		t.Fatalf("open persister: %v", err)
	}
	defer persister.Close()
	store, err := records.Open(persister, broadcast.New(), nil)
	if err != nil {
		t.Fatalf("open records: %v", err)
	}
	rec, err := store.Create(domain.Observation{
		Species: domain.SpeciesRef{ScientificName: "Betula nana"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return rec.ID
}

func loadRecord(t *testing.T, id string) (domain.Observation, bool) {
	t.Helper()
	persister, err := records.OpenPersister()
	if err != nil {
		t.Fatalf("open persister: %v", err)
	}
	defer persister.Close()
	store, err := records.Open(persister, broadcast.New(), nil)
	if err != nil {
		t.Fatalf("open records: %v", err)
	}
	return store.Get(id)
}

func TestPhotoAttachDetachLifecycle(t *testing.T) {
	dir := newTestEnv(t)
	id := createRecord(t)

	img := filepath.Join(dir, "shore.jpg")
	if err := os.WriteFile(img, []byte("jpeg bytes"), 0o600); err != nil {
		t.Fatalf("write image: %v", err)
	}

	if code := run([]string{"photo-attach", "-rotation", "90", id, img}); code != 0 {
		t.Fatalf("photo-attach exited %d", code)
	}

	rec, ok := loadRecord(t, id)
	if !ok {
		t.Fatalf("record %s vanished", id)
	}
	if len(rec.Images) != 1 || rec.Images[0].Rotation != 90 {
		t.Fatalf("images = %+v", rec.Images)
	}
	key := rec.Images[0].Key
	payload := filepath.Join(dir, "images", filepath.FromSlash(key))
	if _, err := os.Stat(payload); err != nil {
		t.Fatalf("payload missing: %v", err)
	}

	if code := run([]string{"photo-detach", id, key}); code != 0 {
		t.Fatalf("photo-detach exited %d", code)
	}
	rec, _ = loadRecord(t, id)
	if len(rec.Images) != 0 {
		t.Fatalf("images after detach = %+v", rec.Images)
	}
	if _, err := os.Stat(payload); !os.IsNotExist(err) {
		t.Fatalf("payload survived detach: %v", err)
	}
}

func TestDeletePurgesPhotoPayloads(t *testing.T) {
	dir := newTestEnv(t)
	id := createRecord(t)

	img := filepath.Join(dir, "nest.jpg")
	if err := os.WriteFile(img, []byte("jpeg bytes"), 0o600); err != nil {
		t.Fatalf("write image: %v", err)
	}
	if code := run([]string{"photo-attach", id, img}); code != 0 {
		t.Fatalf("photo-attach exited %d", code)
	}

	if code := run([]string{"delete", id}); code != 0 {
		t.Fatalf("delete exited %d", code)
	}
	if _, ok := loadRecord(t, id); ok {
		t.Fatalf("record %s survived delete", id)
	}
	recordDir := filepath.Join(dir, "images", "observations", id)
	entries, err := os.ReadDir(recordDir)
	if err == nil && len(entries) != 0 {
		t.Fatalf("payloads survived delete: %v", entries)
	}
}
