package duckdb

import (
	"testing"
	"time"

	"github.com/tinytelemetry/symposium/internal/model"
)

func TestDeleteBefore(t *testing.T) {
	store := newTestStore(t)
	old := time.Now().Add(-72 * time.Hour)

	createTestRun(t, store, "old", old)
	createTestRun(t, store, "recent", time.Now())
	createTestRun(t, store, "unfinished", old)

	if err := store.FinishRun(model.RunSummary{ID: "old", Outcome: model.OutcomeSatisfied, FinishedAt: old.Add(time.Minute)}); err != nil {
		t.Fatal(err)
	}
	if err := store.FinishRun(model.RunSummary{ID: "recent", Outcome: model.OutcomeDied}); err != nil {
		t.Fatal(err)
	}
	if err := store.InsertEventBatch(testEvents("old", model.EventEating, model.EventSleeping)); err != nil {
		t.Fatal(err)
	}
	if err := store.InsertEventBatch(testEvents("recent", model.EventEating)); err != nil {
		t.Fatal(err)
	}

	n, err := store.DeleteBefore(time.Now().Add(-24 * time.Hour))
	if err != nil {
		t.Fatalf("DeleteBefore: %v", err)
	}
	if n != 1 {
		t.Fatalf("deleted %d runs, want 1", n)
	}

	if _, err := store.GetRun("old"); err == nil {
		t.Error("expired run still present")
	}
	for _, id := range []string{"recent", "unfinished"} {
		if _, err := store.GetRun(id); err != nil {
			t.Errorf("GetRun(%s): %v", id, err)
		}
	}
	counts, _ := store.TableRowCounts()
	if counts["events"] != 1 {
		t.Errorf("events = %d, want 1", counts["events"])
	}
}

func TestRetentionCleaner_DisabledReturnsNil(t *testing.T) {
	store := newTestStore(t)
	rc := NewRetentionCleaner(store, RetentionConfig{RetentionDays: 0})
	if rc != nil {
		t.Fatal("expected nil cleaner when retention is disabled")
	}
	rc.Stop()
}

func TestRetentionCleaner_StopIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	cleaner := NewRetentionCleaner(store, RetentionConfig{RetentionDays: 1})
	if cleaner == nil {
		t.Fatal("expected non-nil retention cleaner")
	}
	cleaner.Stop()
	cleaner.Stop()
}
