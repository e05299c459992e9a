package game

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/tinytelemetry/symposium/internal/model"
)

func newTestGame(t *testing.T, cfg Config) *Game {
	t.Helper()
	if cfg.Clock == nil {
		fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		cfg.Clock = func() time.Time { return fixed }
	}
	g, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return g
}

func mustValid(t *testing.T, g *Game) {
	t.Helper()
	if err := g.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestActions_RequireSelection(t *testing.T) {
	g := newTestGame(t, Config{})
	g.Start()

	for a, on := range g.Actions() {
		if on {
			t.Errorf("action %s enabled without selection", a)
		}
	}
	if err := g.Think(); !errors.Is(err, ErrNoSelection) {
		t.Fatalf("Think err = %v, want ErrNoSelection", err)
	}
}

func TestSelect_OutOfRange(t *testing.T) {
	g := newTestGame(t, Config{})
	for _, i := range []int{-1, 5} {
		if err := g.Select(i); !errors.Is(err, ErrNoSuchPhilosopher) {
			t.Errorf("Select(%d) err = %v", i, err)
		}
	}
}

func TestActionAvailability(t *testing.T) {
	g := newTestGame(t, Config{})
	g.Start()
	if err := g.Select(0); err != nil {
		t.Fatal(err)
	}

	want := map[model.Action]bool{
		model.ActionThink:        true,
		model.ActionTakeForks:    true,
		model.ActionEat:          false,
		model.ActionReleaseForks: false,
	}
	for a, on := range want {
		if got := g.Actions()[a]; got != on {
			t.Errorf("fresh %s = %v, want %v", a, got, on)
		}
	}

	if err := g.TakeForks(); err != nil {
		t.Fatal(err)
	}
	want[model.ActionTakeForks] = false
	want[model.ActionEat] = true
	want[model.ActionReleaseForks] = true
	for a, on := range want {
		if got := g.Actions()[a]; got != on {
			t.Errorf("holding %s = %v, want %v", a, got, on)
		}
	}
	mustValid(t, g)
}

func TestTakeForks_Partial(t *testing.T) {
	g := newTestGame(t, Config{})
	g.Start()

	_ = g.Select(1)
	if err := g.TakeForks(); err != nil {
		t.Fatal(err)
	}

	// Philosopher 0 shares fork 1 with philosopher 1, so it only gets fork 0.
	_ = g.Select(0)
	if err := g.TakeForks(); err != nil {
		t.Fatal(err)
	}
	snap := g.Snapshot()
	p0 := snap.Philosophers[0]
	if !p0.HasLeft || p0.HasRight {
		t.Fatalf("philosopher 0 forks = %v/%v, want left only", p0.HasLeft, p0.HasRight)
	}
	if p0.State != model.Hungry {
		t.Fatalf("state = %v, want hungry", p0.State)
	}
	if err := g.Eat(); !errors.Is(err, ErrActionDisabled) {
		t.Fatalf("Eat with one fork err = %v", err)
	}
	if snap.Enabled[model.ActionEat] {
		t.Fatal("eat enabled with one fork")
	}
	mustValid(t, g)
}

func TestEat(t *testing.T) {
	g := newTestGame(t, Config{})
	g.Start()
	_ = g.Select(2)
	_ = g.TakeForks()

	if err := g.Eat(); err != nil {
		t.Fatalf("Eat: %v", err)
	}
	snap := g.Snapshot()
	if snap.Philosophers[2].State != model.Eating {
		t.Fatalf("state = %v, want eating", snap.Philosophers[2].State)
	}
	if snap.Score != 1 || snap.Philosophers[2].MealsEaten != 1 {
		t.Fatalf("score/meals = %d/%d, want 1/1", snap.Score, snap.Philosophers[2].MealsEaten)
	}
	if err := g.Eat(); !errors.Is(err, ErrAlreadyEating) {
		t.Fatalf("second Eat err = %v, want ErrAlreadyEating", err)
	}
	if g.Snapshot().Score != 1 {
		t.Fatal("rejected eat changed the score")
	}
	mustValid(t, g)
}

func TestReleaseForks(t *testing.T) {
	g := newTestGame(t, Config{})
	g.Start()
	_ = g.Select(3)
	_ = g.TakeForks()
	_ = g.Eat()

	if err := g.ReleaseForks(); err != nil {
		t.Fatal(err)
	}
	p := g.Snapshot().Philosophers[3]
	if p.State != model.Thinking || p.HasLeft || p.HasRight {
		t.Fatalf("after release: %+v", p)
	}
	if err := g.ReleaseForks(); !errors.Is(err, ErrActionDisabled) {
		t.Fatalf("release with no forks err = %v", err)
	}
	mustValid(t, g)
}

func TestApply_Unknown(t *testing.T) {
	g := newTestGame(t, Config{})
	if err := g.Apply(model.Action("dance")); !errors.Is(err, ErrActionDisabled) {
		t.Fatalf("Apply err = %v", err)
	}
}

func TestTick_Hunger(t *testing.T) {
	g := newTestGame(t, Config{HungerGrowth: 2, HungerRelief: 5})
	g.Start()
	for i := 0; i < 10; i++ {
		g.Tick()
	}
	_ = g.Select(0)
	_ = g.TakeForks()
	_ = g.Eat()
	g.Tick()

	snap := g.Snapshot()
	if got := snap.Philosophers[0].Hunger; got != 15 {
		t.Errorf("eater hunger = %v, want 15", got)
	}
	if got := snap.Philosophers[1].Hunger; got != 22 {
		t.Errorf("non-eater hunger = %v, want 22", got)
	}
	if snap.Elapsed != 11*DefaultTickInterval {
		t.Errorf("elapsed = %v", snap.Elapsed)
	}

	// Relief never drops below zero.
	for i := 0; i < 10; i++ {
		g.Tick()
	}
	if got := g.Snapshot().Philosophers[0].Hunger; got != 0 {
		t.Errorf("eater hunger = %v, want 0", got)
	}
}

func TestTick_StarvationFinishesTheTick(t *testing.T) {
	g := newTestGame(t, Config{HungerGrowth: 25, HungerRelief: 10})
	g.Start()
	g.Tick()
	g.Tick()
	_ = g.Select(1)
	_ = g.TakeForks()
	_ = g.Eat()
	for i := 0; i < 3; i++ {
		g.Tick()
	}

	snap := g.Snapshot()
	if !snap.Over {
		t.Fatal("game should be over")
	}
	if got := snap.Philosophers[1].Hunger; got != 20 {
		t.Errorf("eater hunger on the final tick = %v, want 20", got)
	}
	for _, i := range []int{2, 3, 4} {
		if got := snap.Philosophers[i].Hunger; got != 100 {
			t.Errorf("philosopher %d hunger = %v, want 100", i, got)
		}
	}
	ends := 0
	for _, n := range snap.Notices {
		if strings.Contains(n.Message, "Game over") {
			ends++
			if !strings.HasPrefix(n.Message, "Philosopher 1 has starved") {
				t.Errorf("message = %q, want the first starving philosopher", n.Message)
			}
		}
	}
	if ends != 1 {
		t.Fatalf("game over notices = %d, want 1", ends)
	}
}

func TestTick_OnlyWhileRunning(t *testing.T) {
	g := newTestGame(t, Config{})
	g.Tick()
	if h := g.Snapshot().Philosophers[0].Hunger; h != 0 {
		t.Fatalf("unstarted game ticked: hunger %v", h)
	}

	g.Start()
	g.Tick()
	g.Pause()
	before := g.Snapshot()
	g.Tick()
	after := g.Snapshot()
	if after.Elapsed != before.Elapsed || after.Philosophers[0].Hunger != before.Philosophers[0].Hunger {
		t.Fatal("paused game ticked")
	}
}

func TestResume_KeepsState(t *testing.T) {
	g := newTestGame(t, Config{})
	if err := g.Resume(); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("Resume before Start err = %v", err)
	}

	g.Start()
	_ = g.Select(0)
	_ = g.TakeForks()
	_ = g.Eat()
	g.Tick()
	g.Pause()

	if err := g.Resume(); err != nil {
		t.Fatal(err)
	}
	snap := g.Snapshot()
	if !snap.Running {
		t.Fatal("not running after resume")
	}
	if snap.Score != 1 || snap.Elapsed != DefaultTickInterval {
		t.Fatalf("resume reset state: score %d elapsed %v", snap.Score, snap.Elapsed)
	}
}

func TestGameOver_FiresOnce(t *testing.T) {
	g := newTestGame(t, Config{HungerGrowth: 25})
	g.Start()
	_ = g.Select(4)

	for i := 0; i < 4; i++ {
		g.Tick()
	}
	if g.Snapshot().Over {
		t.Fatal("game over at exactly 100 hunger")
	}

	g.Tick()
	for i := 0; i < 10; i++ {
		g.Tick()
	}

	snap := g.Snapshot()
	if !snap.Over || snap.Running {
		t.Fatalf("over/running = %v/%v", snap.Over, snap.Running)
	}
	if snap.Philosophers[0].Hunger != 100 {
		t.Fatalf("hunger = %v, want clamped 100", snap.Philosophers[0].Hunger)
	}
	ends := 0
	for _, n := range snap.Notices {
		if strings.Contains(n.Message, "Game over") {
			ends++
			if n.Message != "Philosopher 1 has starved! Game over! Final score: 0" {
				t.Errorf("message = %q", n.Message)
			}
			if n.Level != model.NoticeError {
				t.Errorf("level = %v", n.Level)
			}
		}
	}
	if ends != 1 {
		t.Fatalf("game over notices = %d, want 1", ends)
	}
	for a, on := range snap.Enabled {
		if on {
			t.Errorf("action %s enabled after game over", a)
		}
	}
	if err := g.Think(); !errors.Is(err, ErrGameOver) {
		t.Fatalf("Think after game over err = %v", err)
	}
	if err := g.Resume(); !errors.Is(err, ErrGameOver) {
		t.Fatalf("Resume after game over err = %v", err)
	}

	g.Start()
	if s := g.Snapshot(); s.Over || !s.Running || s.Philosophers[0].Hunger != 0 {
		t.Fatalf("Start did not clear game over: %+v", s)
	}
}

func TestRoundBonus(t *testing.T) {
	g := newTestGame(t, Config{Philosophers: 2, MealsPerRound: 2})
	g.Start()

	// Two seats share both forks, so they take turns.
	for meal := 0; meal < 2; meal++ {
		for p := 0; p < 2; p++ {
			_ = g.Select(p)
			if err := g.TakeForks(); err != nil {
				t.Fatal(err)
			}
			if err := g.Eat(); err != nil {
				t.Fatalf("meal %d philosopher %d: %v", meal, p, err)
			}
			if err := g.ReleaseForks(); err != nil {
				t.Fatal(err)
			}
		}
	}
	g.Tick()

	snap := g.Snapshot()
	if snap.Score != 4+DefaultRoundBonus {
		t.Fatalf("score = %d, want %d", snap.Score, 4+DefaultRoundBonus)
	}
	for _, p := range snap.Philosophers {
		if p.MealsEaten != 0 {
			t.Errorf("philosopher %d meals = %d after round", p.ID, p.MealsEaten)
		}
	}
	last := snap.Notices[len(snap.Notices)-1]
	if last.Level != model.NoticeSuccess || last.Message != "All philosophers have eaten successfully! +10 points" {
		t.Fatalf("notice = %+v", last)
	}
}

func TestReset(t *testing.T) {
	g := newTestGame(t, Config{})
	g.Start()
	_ = g.Select(1)
	_ = g.TakeForks()
	_ = g.Eat()
	g.Tick()

	g.Reset()

	snap := g.Snapshot()
	if snap.Running || snap.Over || snap.Score != 0 || snap.Elapsed != 0 || snap.Selected != nil {
		t.Fatalf("reset left state behind: %+v", snap)
	}
	for _, p := range snap.Philosophers {
		if p.State != model.Thinking || p.Hunger != 0 || p.HasLeft || p.HasRight {
			t.Errorf("philosopher %d not reset: %+v", p.ID, p)
		}
	}
	for _, f := range snap.Forks {
		if f.InUse {
			t.Errorf("fork %d in use after reset", f.ID)
		}
	}
	if n := snap.Notices[len(snap.Notices)-1]; n.Message != "Game reset" || n.Level != model.NoticeInfo {
		t.Fatalf("notice = %+v", n)
	}
}

func TestNotices_Bounded(t *testing.T) {
	g := newTestGame(t, Config{NoticeLimit: 3})
	for i := 0; i < 10; i++ {
		g.Reset()
	}
	if n := len(g.Snapshot().Notices); n != 3 {
		t.Fatalf("notices = %d, want 3", n)
	}
}

func TestRun_Ticks(t *testing.T) {
	g := newTestGame(t, Config{TickInterval: 5 * time.Millisecond})
	g.Start()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := g.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if g.Snapshot().Elapsed == 0 {
		t.Fatal("Run never ticked")
	}
}
