// Package migrate applies the embedded, versioned schema migrations of the
// symposium database. Files are named NNN_description.sql and applied in
// version order, each inside its own transaction.
package migrate

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Runner applies migrations to a database connection.
type Runner struct {
	db  *sql.DB
	src fs.FS
}

// NewRunner creates a runner over the embedded migrations.
func NewRunner(db *sql.DB) *Runner {
	sub, _ := fs.Sub(migrations, "migrations")
	return &Runner{db: db, src: sub}
}

// Migration is one versioned schema step.
type Migration struct {
	Version    int
	Name       string
	Statements []string
}

// Load parses every migration file from the runner's source.
func (r *Runner) Load() ([]Migration, error) {
	entries, err := fs.ReadDir(r.src, ".")
	if err != nil {
		return nil, fmt.Errorf("migrate: read migrations: %w", err)
	}

	var out []Migration
	seen := make(map[int]string)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		prefix, _, ok := strings.Cut(name, "_")
		if !ok {
			continue
		}
		ver, err := strconv.Atoi(prefix)
		if err != nil {
			return nil, fmt.Errorf("migrate: version of %s: %w", name, err)
		}
		if prev, dup := seen[ver]; dup {
			return nil, fmt.Errorf("migrate: %s and %s share version %d", prev, name, ver)
		}
		seen[ver] = name

		data, err := fs.ReadFile(r.src, name)
		if err != nil {
			return nil, fmt.Errorf("migrate: read %s: %w", name, err)
		}
		out = append(out, Migration{Version: ver, Name: name, Statements: splitStatements(string(data))})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// splitStatements breaks a file into statements on semicolons that end a line.
func splitStatements(script string) []string {
	var (
		stmts []string
		cur   strings.Builder
	)
	for _, line := range strings.Split(script, "\n") {
		cur.WriteString(line)
		cur.WriteByte('\n')
		if strings.HasSuffix(strings.TrimSpace(line), ";") {
			if s := strings.TrimSpace(cur.String()); s != ";" {
				stmts = append(stmts, s)
			}
			cur.Reset()
		}
	}
	if s := strings.TrimSpace(cur.String()); s != "" {
		stmts = append(stmts, s)
	}
	return stmts
}

func (r *Runner) ensureTable() error {
	_, err := r.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		name       VARCHAR NOT NULL,
		applied_at TIMESTAMP DEFAULT current_timestamp
	)`)
	if err != nil {
		return fmt.Errorf("migrate: create schema_migrations: %w", err)
	}
	return nil
}

// Current returns the highest applied version, or 0 for a fresh database.
func (r *Runner) Current() (int, error) {
	if err := r.ensureTable(); err != nil {
		return 0, err
	}
	var v sql.NullInt64
	if err := r.db.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&v); err != nil {
		return 0, fmt.Errorf("migrate: read version: %w", err)
	}
	return int(v.Int64), nil
}

func (r *Runner) apply(m Migration) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("migrate: begin %s: %w", m.Name, err)
	}
	for _, stmt := range m.Statements {
		if _, err := tx.Exec(stmt); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migrate: %s: %w", m.Name, err)
		}
	}
	if _, err := tx.Exec("INSERT INTO schema_migrations (version, name) VALUES (?, ?)", m.Version, m.Name); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("migrate: record %s: %w", m.Name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("migrate: commit %s: %w", m.Name, err)
	}
	return nil
}

// Run applies every migration newer than the current version.
func (r *Runner) Run() error {
	current, err := r.Current()
	if err != nil {
		return err
	}
	migs, err := r.Load()
	if err != nil {
		return err
	}
	for _, m := range migs {
		if m.Version <= current {
			continue
		}
		if err := r.apply(m); err != nil {
			return err
		}
	}
	return nil
}

// Status returns the applied version and the number of pending migrations.
func (r *Runner) Status() (current, pending int, err error) {
	if current, err = r.Current(); err != nil {
		return 0, 0, err
	}
	migs, err := r.Load()
	if err != nil {
		return 0, 0, err
	}
	for _, m := range migs {
		if m.Version > current {
			pending++
		}
	}
	return current, pending, nil
}
