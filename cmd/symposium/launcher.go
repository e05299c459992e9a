package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/tinytelemetry/symposium/internal/duckdb"
	"github.com/tinytelemetry/symposium/internal/model"
	"github.com/tinytelemetry/symposium/internal/sim"
)

var ErrTooManyRuns = errors.New("too many runs in progress")

// Launcher starts recorded simulator runs in the background, at most
// cap(slots) at a time.
type Launcher struct {
	ctx      context.Context
	recorder *duckdb.Recorder
	slots    chan struct{}
	wg       sync.WaitGroup
}

func newLauncher(ctx context.Context, recorder *duckdb.Recorder, maxConcurrent int) *Launcher {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Launcher{
		ctx:      ctx,
		recorder: recorder,
		slots:    make(chan struct{}, maxConcurrent),
	}
}

// Launch validates cfg, creates the run row and starts the simulation. It
// returns as soon as the run is recorded as running.
func (l *Launcher) Launch(cfg model.RunConfig) (model.RunSummary, error) {
	if err := sim.Validate(cfg); err != nil {
		return model.RunSummary{}, model.Tag(model.ErrInvalidArgument, err)
	}

	select {
	case l.slots <- struct{}{}:
	default:
		return model.RunSummary{}, model.Tag(model.ErrRejected,
			fmt.Errorf("%w (limit %d)", ErrTooManyRuns, cap(l.slots)))
	}

	rec, err := l.recorder.Begin("", cfg)
	if err != nil {
		<-l.slots
		return model.RunSummary{}, err
	}

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer func() { <-l.slots }()

		sink := sim.NewRecordingSink(rec)
		res, err := sim.Run(l.ctx, cfg, sink)
		sink.Close()
		if err != nil {
			log.Printf("launcher: run %s: %v", rec.ID(), err)
		}
		if _, err := rec.Finish(res.Outcome, res.DeadPhilosopher, res.TotalMeals()); err != nil {
			log.Printf("launcher: finish run %s: %v", rec.ID(), err)
			return
		}
		log.Printf("launcher: run %s finished: %s after %s", rec.ID(), res.Outcome, res.Duration)
	}()
	return rec.Summary(), nil
}

// Wait blocks until every launched run has finished.
func (l *Launcher) Wait() {
	l.wg.Wait()
}
