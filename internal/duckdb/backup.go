package duckdb

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ErrInMemoryStore is returned when snapshotting a store without a file.
var ErrInMemoryStore = errors.New("duckdb: in-memory store cannot be snapshotted")

// DBPath returns the database file path, or "" for an in-memory store.
func (s *Store) DBPath() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dbPath
}

// SnapshotTo checkpoints the database and copies its file to dstPath. Only
// the CHECKPOINT runs under the write lock; the copy does not block writers.
func (s *Store) SnapshotTo(dstPath string) error {
	s.mu.Lock()
	src := s.dbPath
	if src == "" {
		s.mu.Unlock()
		return ErrInMemoryStore
	}
	_, err := s.db.Exec("CHECKPOINT")
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("duckdb: checkpoint: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(dstPath), 0755); err != nil {
		return fmt.Errorf("duckdb: create snapshot dir: %w", err)
	}
	if err := copyFile(src, dstPath); err != nil {
		return fmt.Errorf("duckdb: copy database file: %w", err)
	}
	return nil
}

// copyFile copies through a temp file renamed into place, so dstPath never
// holds a partial copy.
func copyFile(srcPath, dstPath string) (err error) {
	src, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer src.Close()

	tmp := dstPath + ".tmp"
	dst, err := os.Create(tmp)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = dst.Close()
			_ = os.Remove(tmp)
		}
	}()

	if _, err = io.Copy(dst, src); err != nil {
		return err
	}
	if err = dst.Sync(); err != nil {
		return err
	}
	if err = dst.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, dstPath)
}
