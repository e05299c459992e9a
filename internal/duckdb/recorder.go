package duckdb

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tinytelemetry/symposium/internal/model"
)

var runIDCounter atomic.Uint64

// NewRunID returns a unique, roughly time-ordered run identifier.
func NewRunID() string {
	n := runIDCounter.Add(1)
	return fmt.Sprintf("%x-%x", time.Now().UTC().UnixNano(), n)
}

// Recorder persists simulator runs: a row per run and its events through an
// InsertBuffer.
type Recorder struct {
	runs   model.RunWriter
	events *InsertBuffer
}

// NewRecorder returns a recorder writing run rows to runs and events to buf.
func NewRecorder(runs model.RunWriter, buf *InsertBuffer) *Recorder {
	return &Recorder{runs: runs, events: buf}
}

// Begin creates the run row and returns a handle that records its events.
// An empty id gets a fresh one.
func (r *Recorder) Begin(id string, cfg model.RunConfig) (*Recording, error) {
	if id == "" {
		id = NewRunID()
	}
	summary := model.RunSummary{
		ID:        id,
		Config:    cfg,
		StartedAt: time.Now(),
		Outcome:   model.OutcomeRunning,
	}
	if err := r.runs.CreateRun(summary); err != nil {
		return nil, err
	}
	return &Recording{rec: r, summary: summary}, nil
}

// Recording is one run in progress.
type Recording struct {
	rec *Recorder

	mu       sync.Mutex
	summary  model.RunSummary
	finished bool
}

// ID returns the run id.
func (rr *Recording) ID() string {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	return rr.summary.ID
}

// Summary returns the run as last written.
func (rr *Recording) Summary() model.RunSummary {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	return rr.summary
}

// Record stamps ev with the run id and queues it.
func (rr *Recording) Record(ev *model.Event) {
	ev.RunID = rr.summary.ID
	rr.rec.events.Add(ev)
}

// Finish writes the outcome. Only the first call has an effect.
func (rr *Recording) Finish(outcome model.Outcome, deadPhilosopher, totalMeals int) (model.RunSummary, error) {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	if rr.finished {
		return rr.summary, nil
	}
	rr.summary.FinishedAt = time.Now()
	rr.summary.Outcome = outcome
	rr.summary.DeadPhilosopher = deadPhilosopher
	rr.summary.TotalMeals = totalMeals
	if err := rr.rec.runs.FinishRun(rr.summary); err != nil {
		return rr.summary, err
	}
	rr.finished = true
	return rr.summary, nil
}
