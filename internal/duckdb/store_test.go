package duckdb

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tinytelemetry/symposium/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore("")
	if err != nil {
		t.Fatalf("NewStore(\"\") failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

var testConfig = model.RunConfig{
	Philosophers: 3,
	TimeToDie:    800 * time.Millisecond,
	TimeToEat:    200 * time.Millisecond,
	TimeToSleep:  100 * time.Millisecond,
	MustEat:      2,
}

func createTestRun(t *testing.T, store *Store, id string, started time.Time) {
	t.Helper()
	err := store.CreateRun(model.RunSummary{ID: id, Config: testConfig, StartedAt: started})
	if err != nil {
		t.Fatalf("CreateRun(%s): %v", id, err)
	}
}

func testEvents(run string, kinds ...model.EventKind) []*model.Event {
	out := make([]*model.Event, len(kinds))
	for i, k := range kinds {
		out[i] = &model.Event{
			RunID:       run,
			Seq:         uint64(i + 1),
			Elapsed:     int64(i * 10),
			Philosopher: i%3 + 1,
			Kind:        k,
			Timestamp:   time.Now(),
		}
	}
	return out
}

func TestCreateAndGetRun(t *testing.T) {
	store := newTestStore(t)
	started := time.Now().UTC().Truncate(time.Millisecond)
	createTestRun(t, store, "run-1", started)

	got, err := store.GetRun("run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Config != testConfig {
		t.Errorf("config = %+v, want %+v", got.Config, testConfig)
	}
	if got.Outcome != model.OutcomeRunning {
		t.Errorf("outcome = %q, want running", got.Outcome)
	}
	if !got.FinishedAt.IsZero() {
		t.Errorf("finished_at = %v, want zero", got.FinishedAt)
	}
	if !got.StartedAt.Equal(started) {
		t.Errorf("started_at = %v, want %v", got.StartedAt, started)
	}
}

func TestGetRun_NotFound(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.GetRun("missing"); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("GetRun err = %v, want ErrRunNotFound", err)
	}
	err := store.FinishRun(model.RunSummary{ID: "missing", Outcome: model.OutcomeDied})
	if !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("FinishRun err = %v, want ErrRunNotFound", err)
	}
}

func TestFinishRun(t *testing.T) {
	store := newTestStore(t)
	createTestRun(t, store, "run-1", time.Now())

	err := store.FinishRun(model.RunSummary{
		ID: "run-1", Outcome: model.OutcomeDied, DeadPhilosopher: 2, TotalMeals: 7,
	})
	if err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
	got, err := store.GetRun("run-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Outcome != model.OutcomeDied || got.DeadPhilosopher != 2 || got.TotalMeals != 7 {
		t.Errorf("run = %+v", got)
	}
	if got.FinishedAt.IsZero() {
		t.Error("finished_at not set")
	}
}

func TestListRuns_NewestFirst(t *testing.T) {
	store := newTestStore(t)
	base := time.Now().Add(-time.Hour)
	for i, id := range []string{"a", "b", "c"} {
		createTestRun(t, store, id, base.Add(time.Duration(i)*time.Minute))
	}

	runs, err := store.ListRuns(2)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "c" || runs[1].ID != "b" {
		t.Fatalf("ListRuns = %+v, want c, b", runs)
	}
}

func TestRunEventsAndMeals(t *testing.T) {
	store := newTestStore(t)
	createTestRun(t, store, "run-1", time.Now())
	createTestRun(t, store, "run-2", time.Now())

	evs := testEvents("run-1",
		model.EventTookFork, model.EventTookFork, model.EventEating,
		model.EventEating, model.EventSleeping, model.EventEating,
		model.EventDied,
	)
	if err := store.InsertEventBatch(evs); err != nil {
		t.Fatalf("InsertEventBatch: %v", err)
	}
	if err := store.InsertEventBatch(testEvents("run-2", model.EventEating)); err != nil {
		t.Fatal(err)
	}

	got, err := store.RunEvents("run-1", 0)
	if err != nil {
		t.Fatalf("RunEvents: %v", err)
	}
	if len(got) != len(evs) {
		t.Fatalf("RunEvents returned %d, want %d", len(got), len(evs))
	}
	for i, ev := range got {
		if ev.Seq != uint64(i+1) || ev.Kind != evs[i].Kind {
			t.Errorf("event %d = %+v", i, ev)
		}
	}

	limited, err := store.RunEvents("run-1", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 3 {
		t.Errorf("limited RunEvents = %d, want 3", len(limited))
	}

	meals, err := store.MealCounts("run-1")
	if err != nil {
		t.Fatalf("MealCounts: %v", err)
	}
	// Eating events sit at positions 2, 3 and 5: philosophers 3, 1 and 3.
	want := []model.MealCount{{Philosopher: 1, Meals: 1}, {Philosopher: 3, Meals: 2}}
	if len(meals) != len(want) {
		t.Fatalf("MealCounts = %+v, want %+v", meals, want)
	}
	for i := range want {
		if meals[i] != want[i] {
			t.Errorf("MealCounts[%d] = %+v, want %+v", i, meals[i], want[i])
		}
	}
}

func TestInsertEventBatch_SalvagesGoodRows(t *testing.T) {
	store := newTestStore(t)
	evs := testEvents("run-1", model.EventEating, model.EventSleeping)
	evs = append(evs, &model.Event{Seq: 9, Kind: model.EventDied}) // no run id

	if err := store.InsertEventBatch(evs); err != nil {
		t.Fatalf("InsertEventBatch: %v", err)
	}
	counts, err := store.TableRowCounts()
	if err != nil {
		t.Fatal(err)
	}
	if counts["events"] != 2 {
		t.Errorf("events = %d, want 2", counts["events"])
	}
}

func TestExecuteQuery_SelectAllowed(t *testing.T) {
	store := newTestStore(t)
	createTestRun(t, store, "run-1", time.Now())

	results, err := store.ExecuteQuery("SELECT COUNT(*) AS cnt FROM runs")
	if err != nil {
		t.Fatalf("ExecuteQuery SELECT: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("ExecuteQuery returned %d rows, want 1", len(results))
	}

	results, err = store.ExecuteQuery("WITH c AS (SELECT id FROM runs) SELECT id FROM c -- trailing comment")
	if err != nil {
		t.Fatalf("ExecuteQuery WITH: %v", err)
	}
	if len(results) != 1 || results[0]["id"] != "run-1" {
		t.Fatalf("WITH results = %v", results)
	}
}

func TestExecuteQuery_Rejected(t *testing.T) {
	store := newTestStore(t)

	tests := []struct {
		sql  string
		want string
	}{
		{"INSERT INTO runs (id) VALUES ('x')", "only SELECT"},
		{"DELETE FROM events", "only SELECT"},
		{"SELECT * FROM runs; DROP TABLE runs", "semicolons"},
		{"SELECT COPY(runs, '/tmp/x.csv') FROM runs", "COPY"},
		{"SELECT * FROM runs WHERE id IN (SELECT 1) /* */ UNION SELECT ATTACH", "ATTACH"},
		{"WITH x AS (DELETE FROM runs) SELECT 1", "DELETE"},
		{"SELECT PRAGMA FROM runs", "PRAGMA"},
		{"/* SELECT */ DROP TABLE runs", "only SELECT"},
		{"SELECT content FROM read_text('/etc/passwd')", "READ_TEXT"},
		{"SELECT * FROM Read_CSV_Auto('/etc/hosts')", "READ_CSV_AUTO"},
		{"SELECT file FROM glob('/etc/*')", "GLOB"},
	}
	for _, tt := range tests {
		_, err := store.ExecuteQuery(tt.sql)
		if !errors.Is(err, ErrQueryRejected) {
			t.Errorf("ExecuteQuery(%q) err = %v, want ErrQueryRejected", tt.sql, err)
			continue
		}
		if !strings.Contains(err.Error(), tt.want) {
			t.Errorf("ExecuteQuery(%q) err = %q, should mention %q", tt.sql, err, tt.want)
		}
	}
}

func TestNewStore_ExternalAccessDisabled(t *testing.T) {
	store := newTestStore(t)
	path := filepath.Join(t.TempDir(), "secret.txt")
	if err := os.WriteFile(path, []byte("hunter2"), 0o644); err != nil {
		t.Fatal(err)
	}

	var content string
	err := store.db.QueryRow("SELECT content FROM read_text(?)", path).Scan(&content)
	if err == nil {
		t.Fatalf("read_text succeeded with %q, want external access denied", content)
	}
	if _, err := store.db.Exec("SET enable_external_access = true"); err == nil {
		t.Fatal("re-enabling external access succeeded, want locked configuration")
	}

	// Plain reads still work.
	if _, err := store.ExecuteQuery("SELECT count(*) AS n FROM runs"); err != nil {
		t.Fatalf("ExecuteQuery: %v", err)
	}
}

func TestSchemaAndRowCounts(t *testing.T) {
	store := newTestStore(t)

	desc := store.GetSchemaDescription()
	for _, table := range []string{"'runs'", "'events'"} {
		if !strings.Contains(desc, table) {
			t.Errorf("schema description missing %s", table)
		}
	}

	createTestRun(t, store, "run-1", time.Now())
	counts, err := store.TableRowCounts()
	if err != nil {
		t.Fatalf("TableRowCounts: %v", err)
	}
	if counts["runs"] != 1 || counts["events"] != 0 {
		t.Errorf("counts = %v", counts)
	}
}
