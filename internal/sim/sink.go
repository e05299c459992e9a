package sim

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"

	"github.com/tinytelemetry/symposium/internal/model"
)

// Sink receives status events. Emit is called with the run's print lock
// held, so implementations must not block for long; wrap slow consumers in a
// RecordingSink.
type Sink interface {
	Emit(ev model.Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ev model.Event)

func (f SinkFunc) Emit(ev model.Event) { f(ev) }

// TextSink writes "<ms> <id> <message>" lines.
type TextSink struct {
	mu     sync.Mutex
	w      io.Writer
	colors map[model.EventKind]*color.Color
}

// NewTextSink returns a sink writing to w. With colored set, each status is
// highlighted; otherwise the output is plain text.
func NewTextSink(w io.Writer, colored bool) *TextSink {
	s := &TextSink{w: w}
	if !colored {
		return s
	}
	s.colors = map[model.EventKind]*color.Color{
		model.EventTookFork: color.New(color.FgYellow),
		model.EventEating:   color.New(color.FgGreen),
		model.EventSleeping: color.New(color.FgBlue),
		model.EventThinking: color.New(color.FgCyan),
		model.EventDied:     color.New(color.FgRed, color.Bold),
	}
	for _, c := range s.colors {
		c.EnableColor()
	}
	return s
}

func (s *TextSink) Emit(ev model.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.colors[ev.Kind]; ok {
		fmt.Fprintf(s.w, "%d %d %s\n", ev.Elapsed, ev.Philosopher, c.Sprint(string(ev.Kind)))
		return
	}
	fmt.Fprintf(s.w, "%d %d %s\n", ev.Elapsed, ev.Philosopher, ev.Kind)
}

// Recorder accepts events for persistence.
type Recorder interface {
	Record(ev *model.Event)
}

// RecordingSink queues events and forwards them to a Recorder from its own
// goroutine, so a slow recorder never holds up the run's print lock. Close
// must be called once the run has returned.
type RecordingSink struct {
	rec    Recorder
	mu     sync.Mutex
	queue  []model.Event
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

// NewRecordingSink starts a sink draining into rec.
func NewRecordingSink(rec Recorder) *RecordingSink {
	s := &RecordingSink{
		rec:  rec,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go s.drain()
	return s
}

func (s *RecordingSink) Emit(ev model.Event) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, ev)
	select {
	case s.wake <- struct{}{}:
	default:
	}
	s.mu.Unlock()
}

// Close stops accepting events and waits until every queued event has been
// recorded.
func (s *RecordingSink) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.wake)
	}
	s.mu.Unlock()
	<-s.done
}

func (s *RecordingSink) drain() {
	defer close(s.done)
	for {
		_, ok := <-s.wake
		s.mu.Lock()
		batch := s.queue
		s.queue = nil
		s.mu.Unlock()
		for i := range batch {
			s.rec.Record(&batch[i])
		}
		if !ok {
			return
		}
	}
}

// MultiSink fans events out to every non-nil sink in order.
type MultiSink []Sink

func (m MultiSink) Emit(ev model.Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(ev)
		}
	}
}

// CollectSink keeps every event in memory.
type CollectSink struct {
	mu     sync.Mutex
	events []model.Event
}

func (c *CollectSink) Emit(ev model.Event) {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
}

// Events returns a copy of the collected events.
func (c *CollectSink) Events() []model.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.Event(nil), c.events...)
}
