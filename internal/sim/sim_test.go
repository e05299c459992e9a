package sim

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tinytelemetry/symposium/internal/model"
)

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func TestRun_SinglePhilosopherDies(t *testing.T) {
	sink := &CollectSink{}
	res, err := Run(context.Background(), model.RunConfig{
		Philosophers: 1, TimeToDie: ms(100), TimeToEat: ms(50), TimeToSleep: ms(50),
	}, sink)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Outcome != model.OutcomeDied || res.DeadPhilosopher != 1 {
		t.Fatalf("outcome = %v/%d, want died/1", res.Outcome, res.DeadPhilosopher)
	}
	events := sink.Events()
	if len(events) != 2 {
		t.Fatalf("events = %+v, want fork then died", events)
	}
	if events[0].Kind != model.EventTookFork || events[1].Kind != model.EventDied {
		t.Fatalf("kinds = %s, %s", events[0].Kind, events[1].Kind)
	}
	if d := events[1].Elapsed; d < 100 || d > 250 {
		t.Fatalf("died at %dms, want about 100ms", d)
	}
}

func TestRun_MustEatSatisfied(t *testing.T) {
	sink := &CollectSink{}
	res, err := Run(context.Background(), model.RunConfig{
		Philosophers: 5, TimeToDie: ms(800), TimeToEat: ms(20), TimeToSleep: ms(20), MustEat: 3,
	}, sink)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Outcome != model.OutcomeSatisfied {
		t.Fatalf("outcome = %v, want satisfied", res.Outcome)
	}
	for i, m := range res.Meals {
		if m < 3 {
			t.Errorf("philosopher %d ate %d times, want >= 3", i+1, m)
		}
	}
	for _, ev := range sink.Events() {
		if ev.Kind == model.EventDied {
			t.Fatalf("unexpected death: %+v", ev)
		}
	}
}

func TestRun_NothingAfterDeath(t *testing.T) {
	sink := &CollectSink{}
	// Eating takes longer than a philosopher can survive, so someone starves.
	res, err := Run(context.Background(), model.RunConfig{
		Philosophers: 3, TimeToDie: ms(60), TimeToEat: ms(100), TimeToSleep: ms(10),
	}, sink)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Outcome != model.OutcomeDied {
		t.Fatalf("outcome = %v, want died", res.Outcome)
	}

	// Give stragglers a chance to misbehave.
	time.Sleep(150 * time.Millisecond)

	events := sink.Events()
	last := events[len(events)-1]
	if last.Kind != model.EventDied || last.Philosopher != res.DeadPhilosopher {
		t.Fatalf("last event = %+v, want death of %d", last, res.DeadPhilosopher)
	}
	deaths := 0
	for i, ev := range events {
		if ev.Kind == model.EventDied {
			deaths++
		}
		if ev.Seq != uint64(i+1) {
			t.Fatalf("event %d seq = %d", i, ev.Seq)
		}
	}
	if deaths != 1 {
		t.Fatalf("deaths = %d, want 1", deaths)
	}
}

func TestRun_Cancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	res, err := Run(ctx, model.RunConfig{
		Philosophers: 4, TimeToDie: ms(1000), TimeToEat: ms(10), TimeToSleep: ms(10),
	}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Outcome != model.OutcomeCancelled {
		t.Fatalf("outcome = %v, want cancelled", res.Outcome)
	}
	if res.TotalMeals() == 0 {
		t.Fatal("nobody ate before cancellation")
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	if _, err := Run(context.Background(), model.RunConfig{Philosophers: 0}, nil); err == nil {
		t.Fatal("Run accepted zero philosophers")
	}
}

func TestTextSink(t *testing.T) {
	var buf bytes.Buffer
	s := NewTextSink(&buf, false)
	s.Emit(model.Event{Elapsed: 0, Philosopher: 1, Kind: model.EventTookFork})
	s.Emit(model.Event{Elapsed: 210, Philosopher: 3, Kind: model.EventDied})

	want := "0 1 has taken a fork\n210 3 died\n"
	if buf.String() != want {
		t.Fatalf("output = %q, want %q", buf.String(), want)
	}
}

func TestTextSink_Colored(t *testing.T) {
	var buf bytes.Buffer
	s := NewTextSink(&buf, true)
	s.Emit(model.Event{Elapsed: 5, Philosopher: 2, Kind: model.EventEating})
	out := buf.String()
	if !strings.HasPrefix(out, "5 2 ") || !strings.Contains(out, "is eating") || !strings.Contains(out, "\x1b[") {
		t.Fatalf("colored output = %q", out)
	}
}

type stubRecorder struct {
	mu  sync.Mutex
	got []*model.Event
}

func (s *stubRecorder) Record(ev *model.Event) {
	s.mu.Lock()
	s.got = append(s.got, ev)
	s.mu.Unlock()
}

func TestMultiSink(t *testing.T) {
	rec := &stubRecorder{}
	col := &CollectSink{}
	rs := NewRecordingSink(rec)
	m := MultiSink{rs, nil, col}
	m.Emit(model.Event{Seq: 1, Philosopher: 4, Kind: model.EventSleeping})
	rs.Close()

	if len(rec.got) != 1 || rec.got[0].Philosopher != 4 {
		t.Fatalf("recorder got %+v", rec.got)
	}
	if len(col.Events()) != 1 {
		t.Fatalf("collector got %d events", len(col.Events()))
	}
}

// blockingRecorder holds every Record call until release is closed.
type blockingRecorder struct {
	release chan struct{}
	stubRecorder
}

func (b *blockingRecorder) Record(ev *model.Event) {
	<-b.release
	b.stubRecorder.Record(ev)
}

func TestRecordingSink_SlowRecorderDoesNotStallRun(t *testing.T) {
	rec := &blockingRecorder{release: make(chan struct{})}
	rs := NewRecordingSink(rec)
	col := &CollectSink{}

	done := make(chan Result, 1)
	go func() {
		res, _ := Run(context.Background(), model.RunConfig{
			Philosophers: 1, TimeToDie: ms(100), TimeToEat: ms(50), TimeToSleep: ms(50),
		}, MultiSink{rs, col})
		done <- res
	}()

	var res Result
	select {
	case res = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("run blocked on the recorder")
	}
	if res.Outcome != model.OutcomeDied {
		t.Fatalf("outcome = %v, want died", res.Outcome)
	}

	close(rec.release)
	rs.Close()
	if got, want := len(rec.got), len(col.Events()); got != want {
		t.Fatalf("recorded %d events, emitted %d", got, want)
	}
	for i, ev := range col.Events() {
		if rec.got[i].Seq != ev.Seq || rec.got[i].Kind != ev.Kind {
			t.Fatalf("recorded[%d] = %+v, want %+v", i, *rec.got[i], ev)
		}
	}

	rs.Emit(model.Event{Seq: 99})
	if len(rec.got) != len(col.Events()) {
		t.Fatal("closed sink recorded a late event")
	}
}
