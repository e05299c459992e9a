// Package board implements the timer-driven status board: on every scan each
// thinking philosopher reaches for both adjacent forks, eats for a while,
// sleeps, and goes back to thinking.
package board

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/tinytelemetry/symposium/internal/model"
	"github.com/tinytelemetry/symposium/internal/table"
)

const (
	DefaultScanInterval  = 1 * time.Second
	DefaultEatDuration   = 3 * time.Second
	DefaultSleepDuration = 2 * time.Second
	DefaultResolution    = 50 * time.Millisecond

	// MaxSpeed bounds the speed multiplier; scaled timers never drop below
	// minScaledInterval.
	MaxSpeed          = 100.0
	minScaledInterval = time.Millisecond
)

var (
	ErrInvalidSize  = errors.New("board: philosopher count out of range")
	ErrInvalidSpeed = errors.New("board: speed must be within (0, 100]")
	ErrInvalidOdds  = errors.New("board: attempt chance must be within [0, 1]")
)

// Config holds board parameters. Zero values take the defaults.
type Config struct {
	Philosophers  int
	Speed         float64
	ScanInterval  time.Duration
	EatDuration   time.Duration
	SleepDuration time.Duration
	// AttemptChance is the probability that a thinking philosopher reaches for
	// forks on a given scan. Nil means always.
	AttemptChance *float64
	Random        func() float64
	Clock         func() time.Time
}

func (c *Config) applyDefaults() error {
	if c.Philosophers == 0 {
		c.Philosophers = model.DefaultBoardSize
	}
	if c.Philosophers < 1 || c.Philosophers > model.MaxPhilosophers {
		return fmt.Errorf("%w: %d", ErrInvalidSize, c.Philosophers)
	}
	if c.Speed == 0 {
		c.Speed = 1
	}
	if !validSpeed(c.Speed) {
		return fmt.Errorf("%w: %g", ErrInvalidSpeed, c.Speed)
	}
	if c.ScanInterval <= 0 {
		c.ScanInterval = DefaultScanInterval
	}
	if c.EatDuration <= 0 {
		c.EatDuration = DefaultEatDuration
	}
	if c.SleepDuration <= 0 {
		c.SleepDuration = DefaultSleepDuration
	}
	if c.AttemptChance != nil && (*c.AttemptChance < 0 || *c.AttemptChance > 1) {
		return ErrInvalidOdds
	}
	if c.Random == nil {
		c.Random = rand.Float64
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	return nil
}

// Board is safe for concurrent use.
type Board struct {
	mu sync.Mutex

	tbl       *table.Table
	speed     float64
	scanEvery time.Duration
	eatFor    time.Duration
	sleepFor  time.Duration
	chance    float64
	random    func() float64
	clock     func() time.Time

	running   bool
	started   bool
	pausedAt  time.Time
	nextScan  time.Time
	deadlines []time.Time // zero = nothing pending
	scans     uint64
}

// New creates a stopped board.
func New(cfg Config) (*Board, error) {
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	tbl, err := table.New(cfg.Philosophers)
	if err != nil {
		return nil, err
	}
	chance := 1.0
	if cfg.AttemptChance != nil {
		chance = *cfg.AttemptChance
	}
	return &Board{
		tbl:       tbl,
		speed:     cfg.Speed,
		scanEvery: cfg.ScanInterval,
		eatFor:    cfg.EatDuration,
		sleepFor:  cfg.SleepDuration,
		chance:    chance,
		random:    cfg.Random,
		clock:     cfg.Clock,
		deadlines: make([]time.Time, cfg.Philosophers),
	}, nil
}

func validSpeed(speed float64) bool {
	return speed > 0 && speed <= MaxSpeed
}

func (b *Board) scaled(d time.Duration) time.Duration {
	return max(time.Duration(float64(d)/b.speed), minScaledInterval)
}

// Start begins or resumes the simulation. A fresh start scans immediately;
// resuming shifts every pending timer by the time spent paused.
func (b *Board) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return
	}
	now := b.clock()
	b.running = true
	if b.started {
		shift := now.Sub(b.pausedAt)
		b.nextScan = b.nextScan.Add(shift)
		for i, d := range b.deadlines {
			if !d.IsZero() {
				b.deadlines[i] = d.Add(shift)
			}
		}
		b.pausedAt = time.Time{}
		b.advanceLocked(now)
		return
	}
	b.started = true
	b.scanLocked(now)
	b.nextScan = now.Add(b.scaled(b.scanEvery))
}

// Pause freezes the simulation, including pending eat and sleep timers.
func (b *Board) Pause() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.running {
		return
	}
	now := b.clock()
	b.advanceLocked(now)
	b.running = false
	b.pausedAt = now
}

// Toggle pauses a running board and starts a stopped one.
func (b *Board) Toggle() {
	b.mu.Lock()
	running := b.running
	b.mu.Unlock()
	if running {
		b.Pause()
	} else {
		b.Start()
	}
}

// Reset stops the board and returns every philosopher to thinking with free forks.
func (b *Board) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resetLocked()
}

func (b *Board) resetLocked() {
	b.running = false
	b.started = false
	b.pausedAt = time.Time{}
	b.nextScan = time.Time{}
	b.scans = 0
	b.tbl.Reset()
	for i := range b.deadlines {
		b.deadlines[i] = time.Time{}
	}
}

// SetPhilosophers rebuilds the table with n seats and resets the board.
func (b *Board) SetPhilosophers(n int) error {
	if n < 1 || n > model.MaxPhilosophers {
		return fmt.Errorf("%w: %d", ErrInvalidSize, n)
	}
	tbl, err := table.New(n)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tbl = tbl
	b.deadlines = make([]time.Time, n)
	b.resetLocked()
	return nil
}

// SetSpeed changes the speed multiplier. Timers already pending keep the
// deadline they were scheduled with.
func (b *Board) SetSpeed(speed float64) error {
	if !validSpeed(speed) {
		return fmt.Errorf("%w: %g", ErrInvalidSpeed, speed)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.speed = speed
	return nil
}

// Configure applies the non-zero fields of settings.
func (b *Board) Configure(settings model.BoardSettings) error {
	if settings.Speed != 0 {
		if err := b.SetSpeed(settings.Speed); err != nil {
			return err
		}
	}
	if settings.Philosophers != 0 {
		b.mu.Lock()
		same := settings.Philosophers == b.tbl.Size()
		b.mu.Unlock()
		if !same {
			return b.SetPhilosophers(settings.Philosophers)
		}
	}
	return nil
}

// Advance processes every timer and scan due at or before now, in time order.
func (b *Board) Advance(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advanceLocked(now)
}

func (b *Board) advanceLocked(now time.Time) {
	if !b.running {
		return
	}
	for {
		idx, at := b.earliestDeadline()
		if idx >= 0 && !at.After(now) && !at.After(b.nextScan) {
			b.fireLocked(idx)
			continue
		}
		if !b.nextScan.After(now) {
			at := b.nextScan
			b.scanLocked(at)
			b.nextScan = at.Add(b.scaled(b.scanEvery))
			continue
		}
		return
	}
}

func (b *Board) earliestDeadline() (int, time.Time) {
	idx := -1
	var best time.Time
	for i, d := range b.deadlines {
		if d.IsZero() {
			continue
		}
		if idx == -1 || d.Before(best) {
			idx, best = i, d
		}
	}
	return idx, best
}

func (b *Board) fireLocked(i int) {
	b.deadlines[i] = time.Time{}
	switch b.tbl.State(i) {
	case model.Eating:
		_, _ = b.tbl.Release(i)
		_ = b.tbl.SetState(i, model.Sleeping)
		b.tbl.AddMeal(i)
	case model.Sleeping:
		_ = b.tbl.SetState(i, model.Thinking)
	}
}

func (b *Board) scanLocked(at time.Time) {
	b.scans++
	for i := 0; i < b.tbl.Size(); i++ {
		switch b.tbl.State(i) {
		case model.Thinking:
			if b.chance < 1 && b.random() >= b.chance {
				continue
			}
			ok, err := b.tbl.TakeBoth(i)
			if err != nil || !ok {
				continue
			}
			_ = b.tbl.SetState(i, model.Eating)
			b.deadlines[i] = at.Add(b.scaled(b.eatFor))
		case model.Sleeping:
			if b.deadlines[i].IsZero() {
				b.deadlines[i] = at.Add(b.scaled(b.sleepFor))
			}
		}
	}
}

// Snapshot returns a copy of the board state.
func (b *Board) Snapshot() model.BoardSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return model.BoardSnapshot{
		Running:      b.running,
		Speed:        b.speed,
		Scans:        b.scans,
		Philosophers: b.tbl.Philosophers(),
		Forks:        b.tbl.Forks(),
	}
}

// Validate checks the fork ownership invariants of the underlying table.
func (b *Board) Validate() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tbl.Validate()
}

// Run drives Advance from a ticker until ctx is done.
func (b *Board) Run(ctx context.Context, resolution time.Duration) error {
	if resolution <= 0 {
		resolution = DefaultResolution
	}
	ticker := time.NewTicker(resolution)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			b.Advance(b.clock())
		}
	}
}
