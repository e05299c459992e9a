// Package game implements the interactive dining table: the player selects a
// philosopher and drives it through think, take forks, eat and release forks
// while hunger grows on a fixed tick.
package game

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tinytelemetry/symposium/internal/model"
	"github.com/tinytelemetry/symposium/internal/table"
)

const (
	DefaultTickInterval  = 100 * time.Millisecond
	DefaultHungerGrowth  = 0.2
	DefaultHungerRelief  = 0.5
	DefaultMealsPerRound = 3
	DefaultRoundBonus    = 10
)

var (
	ErrNoSelection       = errors.New("game: no philosopher selected")
	ErrGameOver          = errors.New("game: game is over")
	ErrAlreadyEating     = errors.New("game: philosopher is already eating")
	ErrActionDisabled    = errors.New("game: action not available")
	ErrNoSuchPhilosopher = errors.New("game: no such philosopher")
	ErrNotStarted        = errors.New("game: game has not been started")
	ErrInvalidConfig     = errors.New("game: invalid config")
)

// Config holds game parameters. Zero values take the defaults.
type Config struct {
	Philosophers  int
	TickInterval  time.Duration
	HungerGrowth  float64
	HungerRelief  float64
	MealsPerRound int
	RoundBonus    int
	NoticeLimit   int
	Clock         func() time.Time
}

func (c *Config) applyDefaults() error {
	if c.Philosophers == 0 {
		c.Philosophers = model.DefaultGameSize
	}
	if c.Philosophers < 1 || c.Philosophers > model.MaxPhilosophers {
		return fmt.Errorf("%w: %d philosophers", ErrInvalidConfig, c.Philosophers)
	}
	if c.TickInterval <= 0 {
		c.TickInterval = DefaultTickInterval
	}
	if c.HungerGrowth <= 0 {
		c.HungerGrowth = DefaultHungerGrowth
	}
	if c.HungerRelief <= 0 {
		c.HungerRelief = DefaultHungerRelief
	}
	if c.MealsPerRound <= 0 {
		c.MealsPerRound = DefaultMealsPerRound
	}
	if c.RoundBonus <= 0 {
		c.RoundBonus = DefaultRoundBonus
	}
	if c.NoticeLimit <= 0 {
		c.NoticeLimit = model.DefaultNoticeBufferSize
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	return nil
}

// Game is safe for concurrent use.
type Game struct {
	mu  sync.Mutex
	cfg Config
	tbl *table.Table

	started  bool
	running  bool
	over     bool
	score    int
	elapsed  time.Duration
	selected int // -1 when nothing is selected
	notices  []model.Notice
}

// New creates a game that has not been started yet.
func New(cfg Config) (*Game, error) {
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	tbl, err := table.New(cfg.Philosophers)
	if err != nil {
		return nil, err
	}
	return &Game{cfg: cfg, tbl: tbl, selected: -1}, nil
}

func (g *Game) notifyLocked(level model.NoticeLevel, msg string) {
	g.notices = append(g.notices, model.Notice{Level: level, Message: msg, At: g.cfg.Clock()})
	if over := len(g.notices) - g.cfg.NoticeLimit; over > 0 {
		g.notices = append(g.notices[:0], g.notices[over:]...)
	}
}

// Start resets scores, hunger and forks and starts ticking. The selection is kept.
func (g *Game) Start() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tbl.Reset()
	g.score = 0
	g.elapsed = 0
	g.over = false
	g.started = true
	g.running = true
}

// Pause stops ticking without touching state.
func (g *Game) Pause() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.running = false
}

// Resume continues a paused game where it left off.
func (g *Game) Resume() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	switch {
	case g.over:
		return ErrGameOver
	case !g.started:
		return ErrNotStarted
	}
	g.running = true
	return nil
}

// Reset stops the game and reinitializes every philosopher and fork.
func (g *Game) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tbl.Reset()
	g.started = false
	g.running = false
	g.over = false
	g.score = 0
	g.elapsed = 0
	g.selected = -1
	g.notifyLocked(model.NoticeInfo, "Game reset")
}

// Select makes philosopher i (0-based) the target of subsequent actions.
func (g *Game) Select(i int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if i < 0 || i >= g.tbl.Size() {
		return fmt.Errorf("%w: %d", ErrNoSuchPhilosopher, i)
	}
	g.selected = i
	return nil
}

// Deselect clears the selection.
func (g *Game) Deselect() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.selected = -1
}

// actionsLocked reports which actions the selected philosopher may take.
func (g *Game) actionsLocked() map[model.Action]bool {
	out := make(map[model.Action]bool, len(model.Actions))
	for _, a := range model.Actions {
		out[a] = false
	}
	if g.over || g.selected < 0 {
		return out
	}
	p := g.selected
	out[model.ActionThink] = true
	out[model.ActionTakeForks] = !g.tbl.HoldsBoth(p)
	out[model.ActionEat] = g.tbl.HoldsBoth(p)
	out[model.ActionReleaseForks] = g.tbl.HoldsAny(p)
	return out
}

// Actions reports which actions are currently enabled.
func (g *Game) Actions() map[model.Action]bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.actionsLocked()
}

func (g *Game) targetLocked(a model.Action) (int, error) {
	if g.over {
		return 0, ErrGameOver
	}
	if g.selected < 0 {
		return 0, ErrNoSelection
	}
	if !g.actionsLocked()[a] {
		return 0, fmt.Errorf("%w: %s", ErrActionDisabled, a)
	}
	return g.selected, nil
}

// Think puts the selected philosopher back to thinking. Held forks stay held.
func (g *Game) Think() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, err := g.targetLocked(model.ActionThink)
	if err != nil {
		return err
	}
	return g.tbl.SetState(p, model.Thinking)
}

// TakeForks marks the selected philosopher hungry and picks up whichever of
// its two forks are free.
func (g *Game) TakeForks() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, err := g.targetLocked(model.ActionTakeForks)
	if err != nil {
		return err
	}
	if err := g.tbl.SetState(p, model.Hungry); err != nil {
		return err
	}
	for _, side := range []table.Side{table.Left, table.Right} {
		if _, err := g.tbl.TakeFork(p, side); err != nil {
			return err
		}
	}
	return nil
}

// Eat starts a meal for the selected philosopher, which must hold both forks.
func (g *Game) Eat() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, err := g.targetLocked(model.ActionEat)
	if err != nil {
		return err
	}
	if g.tbl.State(p) == model.Eating {
		return ErrAlreadyEating
	}
	if err := g.tbl.SetState(p, model.Eating); err != nil {
		return err
	}
	g.tbl.AddMeal(p)
	g.score++
	return nil
}

// ReleaseForks puts down the selected philosopher's forks. A philosopher that
// was eating goes back to thinking.
func (g *Game) ReleaseForks() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, err := g.targetLocked(model.ActionReleaseForks)
	if err != nil {
		return err
	}
	if g.tbl.State(p) == model.Eating {
		if err := g.tbl.SetState(p, model.Thinking); err != nil {
			return err
		}
	}
	_, err = g.tbl.Release(p)
	return err
}

// Apply runs the named action.
func (g *Game) Apply(a model.Action) error {
	switch a {
	case model.ActionThink:
		return g.Think()
	case model.ActionTakeForks:
		return g.TakeForks()
	case model.ActionEat:
		return g.Eat()
	case model.ActionReleaseForks:
		return g.ReleaseForks()
	default:
		return fmt.Errorf("%w: %q", ErrActionDisabled, a)
	}
}

// Tick advances the game by one tick interval. It is a no-op unless the game
// is running.
func (g *Game) Tick() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.running || g.over {
		return
	}
	g.elapsed += g.cfg.TickInterval

	first := -1
	for i := 0; i < g.tbl.Size(); i++ {
		if g.tbl.State(i) == model.Eating {
			_, _ = g.tbl.AddHunger(i, -g.cfg.HungerRelief)
			continue
		}
		if starved, _ := g.tbl.AddHunger(i, g.cfg.HungerGrowth); starved && first < 0 {
			first = i
		}
	}
	if first >= 0 {
		g.endLocked(first)
		return
	}

	for _, ph := range g.tbl.Philosophers() {
		if ph.MealsEaten < g.cfg.MealsPerRound {
			return
		}
	}
	g.score += g.cfg.RoundBonus
	g.tbl.ClearMeals()
	g.notifyLocked(model.NoticeSuccess, fmt.Sprintf("All philosophers have eaten successfully! +%d points", g.cfg.RoundBonus))
}

func (g *Game) endLocked(i int) {
	g.over = true
	g.running = false
	g.notifyLocked(model.NoticeError, fmt.Sprintf("Philosopher %d has starved! Game over! Final score: %d", i+1, g.score))
}

// Snapshot returns a copy of the game state.
func (g *Game) Snapshot() model.GameSnapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	snap := model.GameSnapshot{
		Running:      g.running,
		Over:         g.over,
		Score:        g.score,
		Elapsed:      g.elapsed,
		Philosophers: g.tbl.Philosophers(),
		Forks:        g.tbl.Forks(),
		Enabled:      g.actionsLocked(),
		Notices:      append([]model.Notice(nil), g.notices...),
	}
	if g.selected >= 0 {
		sel := g.selected
		snap.Selected = &sel
	}
	return snap
}

// Validate checks the fork ownership invariants of the underlying table.
func (g *Game) Validate() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.tbl.Validate()
}

// Run calls Tick every tick interval until ctx is done.
func (g *Game) Run(ctx context.Context) error {
	ticker := time.NewTicker(g.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			g.Tick()
		}
	}
}
