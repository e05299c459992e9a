package duckdb

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/tinytelemetry/symposium/internal/model"
)

const maxQueryRows = 1000

var (
	ErrRunNotFound   = fmt.Errorf("duckdb: run %w", model.ErrNotFound)
	ErrQueryRejected = errors.New("duckdb: query rejected")
)

// dangerousKeywordPattern matches write or side-effecting keywords and
// file-reading table functions on word boundaries, so "RESET" does not trip
// on "SET".
var dangerousKeywordPattern = regexp.MustCompile(
	`(?i)\b(INSERT|UPDATE|DELETE|DROP|CREATE|ALTER|TRUNCATE|COPY|ATTACH|DETACH|LOAD|EXPORT|IMPORT|INSTALL|CALL|EXECUTE|PRAGMA|SET|CHECKPOINT|` +
		`READ_TEXT|READ_BLOB|READ_CSV|READ_CSV_AUTO|READ_PARQUET|PARQUET_SCAN|READ_JSON|READ_JSON_AUTO|READ_NDJSON|GLOB)\b`,
)

var blockCommentPattern = regexp.MustCompile(`/\*[\s\S]*?\*/`)

// stripSQLComments removes /* */ block comments and -- line comments.
func stripSQLComments(query string) string {
	cleaned := blockCommentPattern.ReplaceAllString(query, " ")
	lines := strings.Split(cleaned, "\n")
	for i, line := range lines {
		if idx := strings.Index(line, "--"); idx >= 0 {
			lines[i] = line[:idx]
		}
	}
	return strings.Join(lines, "\n")
}

// CreateRun inserts a new run row.
func (s *Store) CreateRun(run model.RunSummary) error {
	ctx, cancel := s.queryCtx()
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	outcome := run.Outcome
	if outcome == "" {
		outcome = model.OutcomeRunning
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, philosophers, time_to_die_ms, time_to_eat_ms, time_to_sleep_ms, must_eat, started_at, outcome)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Config.Philosophers,
		run.Config.TimeToDie.Milliseconds(), run.Config.TimeToEat.Milliseconds(), run.Config.TimeToSleep.Milliseconds(),
		run.Config.MustEat, run.StartedAt.UTC(), string(outcome))
	if err != nil {
		return fmt.Errorf("duckdb: create run %s: %w", run.ID, err)
	}
	return nil
}

// FinishRun records how a run ended.
func (s *Store) FinishRun(run model.RunSummary) error {
	ctx, cancel := s.queryCtx()
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	finished := run.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET finished_at = ?, outcome = ?, dead_philosopher = ?, total_meals = ?
		WHERE id = ?`,
		finished.UTC(), string(run.Outcome), run.DeadPhilosopher, run.TotalMeals, run.ID)
	if err != nil {
		return fmt.Errorf("duckdb: finish run %s: %w", run.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, run.ID)
	}
	return nil
}

const runColumns = `id, philosophers, time_to_die_ms, time_to_eat_ms, time_to_sleep_ms, must_eat,
	started_at, finished_at, outcome, dead_philosopher, total_meals`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (model.RunSummary, error) {
	var (
		r               model.RunSummary
		die, eat, sleep int64
		finished        sql.NullTime
		outcome         string
	)
	err := row.Scan(&r.ID, &r.Config.Philosophers, &die, &eat, &sleep, &r.Config.MustEat,
		&r.StartedAt, &finished, &outcome, &r.DeadPhilosopher, &r.TotalMeals)
	if err != nil {
		return model.RunSummary{}, err
	}
	r.Config.TimeToDie = time.Duration(die) * time.Millisecond
	r.Config.TimeToEat = time.Duration(eat) * time.Millisecond
	r.Config.TimeToSleep = time.Duration(sleep) * time.Millisecond
	if finished.Valid {
		r.FinishedAt = finished.Time
	}
	r.Outcome = model.Outcome(outcome)
	return r, nil
}

// ListRuns returns the most recently started runs first.
func (s *Store) ListRuns(limit int) ([]model.RunSummary, error) {
	if limit <= 0 {
		limit = model.DefaultRecentRunsLimit
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.RunSummary
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			log.Printf("duckdb scan error (ListRuns): %v", err)
			continue
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetRun returns one run by id.
func (s *Store) GetRun(id string) (model.RunSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	r, err := scanRun(s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.RunSummary{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return r, err
}

// RunEvents returns a run's events in emission order.
func (s *Store) RunEvents(id string, limit int) ([]model.Event, error) {
	if limit <= 0 {
		limit = model.DefaultRunEventsLimit
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, seq, elapsed_ms, philosopher, kind, timestamp
		FROM events WHERE run_id = ?
		ORDER BY seq LIMIT ?`, id, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Event
	for rows.Next() {
		var (
			ev   model.Event
			seq  int64
			kind string
		)
		if err := rows.Scan(&ev.RunID, &seq, &ev.Elapsed, &ev.Philosopher, &kind, &ev.Timestamp); err != nil {
			log.Printf("duckdb scan error (RunEvents): %v", err)
			continue
		}
		ev.Seq = uint64(seq)
		ev.Kind = model.EventKind(kind)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// MealCounts returns how many meals each philosopher started during a run.
func (s *Store) MealCounts(id string) ([]model.MealCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT philosopher, COUNT(*) AS meals
		FROM events WHERE run_id = ? AND kind = ?
		GROUP BY philosopher ORDER BY philosopher`, id, string(model.EventEating))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.MealCount
	for rows.Next() {
		var mc model.MealCount
		if err := rows.Scan(&mc.Philosopher, &mc.Meals); err != nil {
			log.Printf("duckdb scan error (MealCounts): %v", err)
			continue
		}
		out = append(out, mc)
	}
	return out, rows.Err()
}

// ExecuteQuery runs a single read-only SELECT or WITH statement and returns
// at most 1000 rows as column maps.
func (s *Store) ExecuteQuery(query string) ([]map[string]interface{}, error) {
	trimmed := strings.TrimSpace(query)
	if strings.Contains(trimmed, ";") {
		return nil, fmt.Errorf("%w: semicolons are not allowed", ErrQueryRejected)
	}

	stripped := strings.TrimSpace(stripSQLComments(trimmed))
	upper := strings.ToUpper(stripped)
	if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
		return nil, fmt.Errorf("%w: only SELECT/WITH queries are allowed", ErrQueryRejected)
	}
	if match := dangerousKeywordPattern.FindString(stripped); match != "" {
		return nil, fmt.Errorf("%w: disallowed keyword %s", ErrQueryRejected, strings.ToUpper(match))
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()
	rows, err := s.db.QueryContext(ctx, trimmed)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var results []map[string]interface{}
	for rows.Next() && len(results) < maxQueryRows {
		values := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			log.Printf("duckdb scan error (ExecuteQuery): %v", err)
			continue
		}
		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		results = append(results, row)
	}
	return results, rows.Err()
}

// GetSchemaDescription describes the queryable tables.
func (s *Store) GetSchemaDescription() string {
	return `Table 'runs': id (VARCHAR), philosophers (INTEGER), time_to_die_ms (BIGINT), ` +
		`time_to_eat_ms (BIGINT), time_to_sleep_ms (BIGINT), must_eat (INTEGER, 0 = unlimited), ` +
		`started_at (TIMESTAMP), finished_at (TIMESTAMP), ` +
		`outcome (VARCHAR: running/died/satisfied/cancelled), dead_philosopher (INTEGER), total_meals (INTEGER). ` +
		`Table 'events': run_id (VARCHAR), seq (BIGINT), elapsed_ms (BIGINT), philosopher (INTEGER), ` +
		`kind (VARCHAR: has taken a fork/is eating/is sleeping/is thinking/died), timestamp (TIMESTAMP).`
}

// TableRowCounts returns the row count of each queryable table.
func (s *Store) TableRowCounts() (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	tables := []string{"runs", "events"}
	counts := make(map[string]int64, len(tables))
	for _, table := range tables {
		var n int64
		// Table names come from the fixed list above.
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
			return nil, fmt.Errorf("duckdb: count %s: %w", table, err)
		}
		counts[table] = n
	}
	return counts, nil
}
