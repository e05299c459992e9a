// Package duckdb persists simulator runs and their status events in DuckDB.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/tinytelemetry/symposium/internal/duckdb/migrate"
)

// DefaultQueryTimeout bounds every statement the store issues.
const DefaultQueryTimeout = 30 * time.Second

// Store owns the DuckDB connection. Writes take the write lock; reads share it.
type Store struct {
	db           *sql.DB
	mu           sync.RWMutex
	dbPath       string
	QueryTimeout time.Duration
}

// NewStore opens or creates the database at dbPath and applies pending
// migrations. An empty dbPath opens an in-memory database.
func NewStore(dbPath string, queryTimeout ...time.Duration) (*Store, error) {
	if dbPath != "" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("duckdb: create db dir: %w", err)
		}
	}

	db, err := sql.Open("duckdb", dbPath)
	if err != nil {
		return nil, fmt.Errorf("duckdb: open: %w", err)
	}
	if err := migrate.NewRunner(db).Run(); err != nil {
		db.Close()
		return nil, err
	}
	if err := lockDown(db); err != nil {
		db.Close()
		return nil, err
	}

	qt := DefaultQueryTimeout
	if len(queryTimeout) > 0 && queryTimeout[0] > 0 {
		qt = queryTimeout[0]
	}
	return &Store{db: db, dbPath: dbPath, QueryTimeout: qt}, nil
}

// lockDown turns off file and network access from SQL and freezes the
// settings, so ad-hoc queries cannot read host files or re-enable it.
func lockDown(db *sql.DB) error {
	for _, stmt := range []string{
		"SET enable_external_access = false",
		"SET lock_configuration = true",
	} {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("duckdb: %s: %w", stmt, err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) queryCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.QueryTimeout)
}
