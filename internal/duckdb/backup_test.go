package duckdb

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSnapshotTo_CreatesBackupFile(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "symposium.duckdb")
	store, err := NewStore(dbPath)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	createTestRun(t, store, "run-1", time.Now())

	snapshotPath := filepath.Join(t.TempDir(), "backups", "snapshot.duckdb")
	if err := store.SnapshotTo(snapshotPath); err != nil {
		t.Fatalf("SnapshotTo: %v", err)
	}
	info, err := os.Stat(snapshotPath)
	if err != nil {
		t.Fatalf("stat snapshot: %v", err)
	}
	if info.Size() == 0 {
		t.Fatal("snapshot file is empty")
	}
	if _, err := os.Stat(snapshotPath + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind: %v", err)
	}
}

func TestSnapshotTo_InMemoryStore(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	err := store.SnapshotTo(filepath.Join(t.TempDir(), "snapshot.duckdb"))
	if !errors.Is(err, ErrInMemoryStore) {
		t.Fatalf("err = %v, want %v", err, ErrInMemoryStore)
	}
	if store.DBPath() != "" {
		t.Fatalf("DBPath = %q, want empty", store.DBPath())
	}
}
