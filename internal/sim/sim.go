// Package sim runs the concurrent dining philosophers simulation: one
// goroutine per philosopher, one mutex per fork and a monitor goroutine that
// stops the run on starvation or once everyone has eaten enough.
package sim

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tinytelemetry/symposium/internal/model"
)

const (
	monitorInterval = time.Millisecond
	evenStagger     = time.Millisecond
	thinkPause      = 500 * time.Microsecond
)

// Result summarizes a finished run.
type Result struct {
	Outcome         model.Outcome
	DeadPhilosopher int // 1-based, 0 unless Outcome is died
	Duration        time.Duration
	Meals           []int // indexed by philosopher index
	Events          uint64
}

// TotalMeals sums meals across philosophers.
func (r Result) TotalMeals() int {
	total := 0
	for _, m := range r.Meals {
		total += m
	}
	return total
}

type philosopher struct {
	id          int
	left, right *sync.Mutex

	mu       sync.Mutex
	lastMeal time.Time
	meals    int
	eating   bool
}

// forks returns the pickup order: even ids take right first, odd ids left.
func (p *philosopher) forks() (first, second *sync.Mutex) {
	if p.id%2 == 0 {
		return p.right, p.left
	}
	return p.left, p.right
}

type run struct {
	cfg  model.RunConfig
	sink Sink

	forks []sync.Mutex
	phils []*philosopher
	start time.Time

	printMu sync.Mutex
	seq     uint64
	outcome model.Outcome
	dead    int
	stopped atomic.Bool
	stopCh  chan struct{}
}

// Run executes one simulation and blocks until it stops. Cancelling ctx ends
// the run with outcome cancelled.
func Run(ctx context.Context, cfg model.RunConfig, sink Sink) (Result, error) {
	if err := Validate(cfg); err != nil {
		return Result{}, err
	}
	if sink == nil {
		sink = SinkFunc(func(model.Event) {})
	}
	r := &run{
		cfg:    cfg,
		sink:   sink,
		forks:  make([]sync.Mutex, cfg.Philosophers),
		phils:  make([]*philosopher, cfg.Philosophers),
		stopCh: make(chan struct{}),
	}
	for i := range r.phils {
		r.phils[i] = &philosopher{
			id:    i + 1,
			left:  &r.forks[i],
			right: &r.forks[(i+1)%cfg.Philosophers],
		}
	}

	r.start = time.Now()
	for _, p := range r.phils {
		p.lastMeal = r.start
	}

	barrier := make(chan struct{})
	var g errgroup.Group
	for _, p := range r.phils {
		g.Go(func() error {
			<-barrier
			r.live(p)
			return nil
		})
	}
	g.Go(func() error {
		<-barrier
		r.monitor(ctx)
		return nil
	})
	close(barrier)

	err := g.Wait()

	res := Result{
		Outcome:         r.outcome,
		DeadPhilosopher: r.dead,
		Duration:        time.Since(r.start),
		Meals:           make([]int, len(r.phils)),
		Events:          r.seq,
	}
	for i, p := range r.phils {
		p.mu.Lock()
		res.Meals[i] = p.meals
		p.mu.Unlock()
	}
	return res, err
}

func (r *run) emitLocked(id int, kind model.EventKind) {
	now := time.Now()
	r.seq++
	r.sink.Emit(model.Event{
		Seq:         r.seq,
		Elapsed:     now.Sub(r.start).Milliseconds(),
		Philosopher: id,
		Kind:        kind,
		Timestamp:   now,
	})
}

func (r *run) emit(id int, kind model.EventKind) {
	r.printMu.Lock()
	defer r.printMu.Unlock()
	if r.stopped.Load() {
		return
	}
	r.emitLocked(id, kind)
}

// halt stops the run once. A death is reported under the same lock that
// sets the stop flag, so it is always the last event.
func (r *run) halt(outcome model.Outcome, dead int) {
	r.printMu.Lock()
	defer r.printMu.Unlock()
	if r.stopped.Load() {
		return
	}
	if outcome == model.OutcomeDied {
		r.emitLocked(dead, model.EventDied)
	}
	r.outcome = outcome
	r.dead = dead
	r.stopped.Store(true)
	close(r.stopCh)
}

// wait sleeps for d and reports false if the run stopped first.
func (r *run) wait(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-r.stopCh:
		return false
	}
}

func (r *run) live(p *philosopher) {
	if p.id%2 == 0 && !r.wait(evenStagger) {
		return
	}
	for !r.stopped.Load() {
		if r.cfg.MustEat > 0 && p.mealCount() >= r.cfg.MustEat {
			return
		}
		if !r.eat(p) {
			return
		}
		if r.stopped.Load() {
			return
		}
		r.emit(p.id, model.EventSleeping)
		if !r.wait(r.cfg.TimeToSleep) {
			return
		}
		if r.stopped.Load() {
			return
		}
		r.emit(p.id, model.EventThinking)
		if !r.wait(thinkPause) {
			return
		}
	}
}

func (p *philosopher) mealCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.meals
}

func (r *run) eat(p *philosopher) bool {
	first, second := p.forks()
	first.Lock()
	r.emit(p.id, model.EventTookFork)
	if len(r.phils) == 1 {
		first.Unlock()
		r.wait(r.cfg.TimeToDie)
		return false
	}
	second.Lock()
	defer first.Unlock()
	defer second.Unlock()
	r.emit(p.id, model.EventTookFork)

	p.mu.Lock()
	p.eating = true
	p.lastMeal = time.Now()
	p.mu.Unlock()

	r.emit(p.id, model.EventEating)
	done := r.wait(r.cfg.TimeToEat)

	p.mu.Lock()
	p.eating = false
	if done {
		p.meals++
	}
	p.mu.Unlock()
	return done
}

func (r *run) monitor(ctx context.Context) {
	ticker := time.NewTicker(monitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.halt(model.OutcomeCancelled, 0)
			return
		case <-r.stopCh:
			return
		case <-ticker.C:
			if r.check() {
				return
			}
		}
	}
}

// check reports whether the run was stopped.
func (r *run) check() bool {
	if r.cfg.MustEat > 0 {
		all := true
		for _, p := range r.phils {
			if p.mealCount() < r.cfg.MustEat {
				all = false
				break
			}
		}
		if all {
			r.halt(model.OutcomeSatisfied, 0)
			return true
		}
	}
	now := time.Now()
	for _, p := range r.phils {
		p.mu.Lock()
		full := r.cfg.MustEat > 0 && p.meals >= r.cfg.MustEat
		starving := !p.eating && !full && now.Sub(p.lastMeal) >= r.cfg.TimeToDie
		p.mu.Unlock()
		if starving {
			r.halt(model.OutcomeDied, p.id)
			return true
		}
	}
	return false
}
