package journal

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tinytelemetry/symposium/internal/model"
)

func event(run string, philosopher int, kind model.EventKind) *model.Event {
	return &model.Event{
		RunID:       run,
		Philosopher: philosopher,
		Kind:        kind,
		Timestamp:   time.Now().UTC(),
	}
}

func replayAll(t *testing.T, j *Journal) []model.Event {
	t.Helper()
	var out []model.Event
	if err := j.Replay(func(_ uint64, ev *model.Event) error {
		out = append(out, *ev)
		return nil
	}); err != nil {
		t.Fatalf("Replay: %v", err)
	}
	return out
}

func TestAppendReplayCommit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.journal")

	j, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = j.Close() })

	seq1, err := j.Append(event("r1", 1, model.EventEating))
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	seq2, err := j.Append(event("r1", 2, model.EventDied))
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if seq2 <= seq1 {
		t.Fatalf("sequence did not advance: %d then %d", seq1, seq2)
	}

	if err := j.Commit(seq1); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if got := j.Committed(); got != seq1 {
		t.Fatalf("Committed = %d, want %d", got, seq1)
	}

	got := replayAll(t, j)
	if len(got) != 1 || got[0].Kind != model.EventDied || got[0].Philosopher != 2 {
		t.Fatalf("Replay = %+v, want only the death", got)
	}
}

func TestOpen_CompactsAndContinuesSequence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.journal")

	j, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	var last uint64
	for i := 1; i <= 3; i++ {
		if last, err = j.Append(event("r", i, model.EventThinking)); err != nil {
			t.Fatal(err)
		}
	}
	if err := j.Commit(2); err != nil {
		t.Fatal(err)
	}
	_ = j.Close()

	j2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = j2.Close() })

	got := replayAll(t, j2)
	if len(got) != 1 || got[0].Philosopher != 3 {
		t.Fatalf("Replay after reopen = %+v", got)
	}
	seq, err := j2.Append(event("r", 4, model.EventThinking))
	if err != nil {
		t.Fatal(err)
	}
	if seq != last+1 {
		t.Fatalf("seq after reopen = %d, want %d", seq, last+1)
	}
}

func TestOpenIgnoresPartialTrailingLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.journal")

	j, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := j.Append(event("r", 1, model.EventTookFork)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	_ = j.Close()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	if _, err := f.WriteString(`{"seq":999,"event":`); err != nil {
		t.Fatal(err)
	}
	_ = f.Close()

	j2, err := Open(path)
	if err != nil {
		t.Fatalf("Open second: %v", err)
	}
	defer func() { _ = j2.Close() }()

	got := replayAll(t, j2)
	if len(got) != 1 || got[0].Kind != model.EventTookFork {
		t.Fatalf("Replay after torn write = %+v", got)
	}
}

func TestAppend_Errors(t *testing.T) {
	if _, err := Open("  "); !errors.Is(err, ErrEmptyPath) {
		t.Fatalf("Open blank err = %v", err)
	}

	j, err := Open(filepath.Join(t.TempDir(), "j"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := j.Append(nil); !errors.Is(err, ErrNilEvent) {
		t.Fatalf("Append(nil) err = %v", err)
	}
	_ = j.Close()
	if _, err := j.Append(event("r", 1, model.EventEating)); !errors.Is(err, ErrClosed) {
		t.Fatalf("Append after close err = %v", err)
	}
}
