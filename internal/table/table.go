// Package table holds the philosopher and fork state shared by the board and
// game engines. A Table is not safe for concurrent use; callers serialize
// access behind their own lock.
package table

import (
	"errors"
	"fmt"

	"github.com/tinytelemetry/symposium/internal/model"
)

const (
	MinHunger = 0.0
	MaxHunger = 100.0
)

var (
	ErrNoSuchPhilosopher = errors.New("table: no such philosopher")
	ErrForksNotHeld      = errors.New("table: both forks must be held to eat")
	ErrInvalidSize       = errors.New("table: at least one philosopher is required")
)

// Side selects one of a philosopher's two forks.
type Side int

const (
	Left Side = iota
	Right
)

// Table is an owned ring of philosophers with one fork between each
// neighbouring pair. Philosopher i uses fork i on the left and fork
// (i+1) mod n on the right.
type Table struct {
	philosophers []model.Philosopher
	forks        []model.Fork
}

// New creates a table with n philosophers, all thinking and with free forks.
func New(n int) (*Table, error) {
	if n < 1 {
		return nil, ErrInvalidSize
	}
	t := &Table{
		philosophers: make([]model.Philosopher, n),
		forks:        make([]model.Fork, n),
	}
	t.Reset()
	return t, nil
}

// Size returns the number of seats.
func (t *Table) Size() int { return len(t.philosophers) }

// Reset returns every philosopher to thinking with zero hunger and meals,
// and frees every fork.
func (t *Table) Reset() {
	n := len(t.philosophers)
	for i := range t.philosophers {
		t.philosophers[i] = model.Philosopher{
			ID:        i + 1,
			State:     model.Thinking,
			LeftFork:  i,
			RightFork: (i + 1) % n,
		}
	}
	for i := range t.forks {
		t.forks[i] = model.Fork{ID: i}
	}
}

// Philosopher returns a copy of philosopher p.
func (t *Table) Philosopher(p int) (model.Philosopher, error) {
	if err := t.check(p); err != nil {
		return model.Philosopher{}, err
	}
	return t.philosophers[p], nil
}

func (t *Table) check(p int) error {
	if p < 0 || p >= len(t.philosophers) {
		return fmt.Errorf("%w: %d", ErrNoSuchPhilosopher, p)
	}
	return nil
}

func (t *Table) forkIndex(p int, side Side) int {
	if side == Left {
		return t.philosophers[p].LeftFork
	}
	return t.philosophers[p].RightFork
}

func (t *Table) holds(p int, side Side) bool {
	if side == Left {
		return t.philosophers[p].HasLeft
	}
	return t.philosophers[p].HasRight
}

func (t *Table) setHolds(p int, side Side, v bool) {
	if side == Left {
		t.philosophers[p].HasLeft = v
	} else {
		t.philosophers[p].HasRight = v
	}
}

// ForkFree reports whether philosopher p's fork on side is on the table.
func (t *Table) ForkFree(p int, side Side) bool {
	if t.check(p) != nil {
		return false
	}
	return !t.forks[t.forkIndex(p, side)].InUse
}

// TakeFork picks up one fork. It reports whether p now holds that fork.
func (t *Table) TakeFork(p int, side Side) (bool, error) {
	if err := t.check(p); err != nil {
		return false, err
	}
	if t.holds(p, side) {
		return true, nil
	}
	f := &t.forks[t.forkIndex(p, side)]
	if f.InUse {
		return false, nil
	}
	holder := p
	f.InUse = true
	f.HeldBy = &holder
	t.setHolds(p, side, true)
	return true, nil
}

// TakeBoth picks up both forks or neither. With a single seat the two sides
// are the same fork, so it always fails.
func (t *Table) TakeBoth(p int) (bool, error) {
	if err := t.check(p); err != nil {
		return false, err
	}
	ph := t.philosophers[p]
	if ph.LeftFork == ph.RightFork {
		return false, nil
	}
	if ph.HasLeft && ph.HasRight {
		return true, nil
	}
	if (!ph.HasLeft && !t.ForkFree(p, Left)) || (!ph.HasRight && !t.ForkFree(p, Right)) {
		return false, nil
	}
	if _, err := t.TakeFork(p, Left); err != nil {
		return false, err
	}
	if _, err := t.TakeFork(p, Right); err != nil {
		return false, err
	}
	return true, nil
}

// Release puts down whatever forks p holds and reports how many were freed.
func (t *Table) Release(p int) (int, error) {
	if err := t.check(p); err != nil {
		return 0, err
	}
	freed := 0
	for _, side := range []Side{Left, Right} {
		if !t.holds(p, side) {
			continue
		}
		f := &t.forks[t.forkIndex(p, side)]
		f.InUse = false
		f.HeldBy = nil
		t.setHolds(p, side, false)
		freed++
	}
	return freed, nil
}

// HoldsBoth reports whether p holds both forks.
func (t *Table) HoldsBoth(p int) bool {
	if t.check(p) != nil {
		return false
	}
	ph := t.philosophers[p]
	return ph.HasLeft && ph.HasRight
}

// HoldsAny reports whether p holds at least one fork.
func (t *Table) HoldsAny(p int) bool {
	if t.check(p) != nil {
		return false
	}
	ph := t.philosophers[p]
	return ph.HasLeft || ph.HasRight
}

// State returns philosopher p's state.
func (t *Table) State(p int) model.State {
	if t.check(p) != nil {
		return model.Thinking
	}
	return t.philosophers[p].State
}

// SetState moves p to s. Eating requires both forks.
func (t *Table) SetState(p int, s model.State) error {
	if err := t.check(p); err != nil {
		return err
	}
	if s == model.Eating && !t.HoldsBoth(p) {
		return ErrForksNotHeld
	}
	t.philosophers[p].State = s
	return nil
}

// AddMeal increments p's meal counter.
func (t *Table) AddMeal(p int) {
	if t.check(p) == nil {
		t.philosophers[p].MealsEaten++
	}
}

// ClearMeals zeroes every meal counter.
func (t *Table) ClearMeals() {
	for i := range t.philosophers {
		t.philosophers[i].MealsEaten = 0
	}
}

// AddHunger shifts p's hunger by delta, clamping to [MinHunger, MaxHunger].
// It reports whether the unclamped value went past MaxHunger.
func (t *Table) AddHunger(p int, delta float64) (bool, error) {
	if err := t.check(p); err != nil {
		return false, err
	}
	h := t.philosophers[p].Hunger + delta
	over := h > MaxHunger
	switch {
	case h > MaxHunger:
		h = MaxHunger
	case h < MinHunger:
		h = MinHunger
	}
	t.philosophers[p].Hunger = h
	return over, nil
}

// Philosophers returns a copy of every philosopher.
func (t *Table) Philosophers() []model.Philosopher {
	out := make([]model.Philosopher, len(t.philosophers))
	copy(out, t.philosophers)
	return out
}

// Forks returns a deep copy of every fork.
func (t *Table) Forks() []model.Fork {
	out := make([]model.Fork, len(t.forks))
	for i, f := range t.forks {
		out[i] = f
		if f.HeldBy != nil {
			h := *f.HeldBy
			out[i].HeldBy = &h
		}
	}
	return out
}

// Validate checks fork ownership against philosopher flags and that every
// eating philosopher holds both forks.
func (t *Table) Validate() error {
	holders := make([]int, len(t.forks))
	for i := range holders {
		holders[i] = -1
	}
	for i, ph := range t.philosophers {
		for _, side := range []Side{Left, Right} {
			if !t.holds(i, side) {
				continue
			}
			idx := t.forkIndex(i, side)
			if holders[idx] != -1 && holders[idx] != i {
				return fmt.Errorf("table: fork %d held by philosophers %d and %d", idx, holders[idx]+1, i+1)
			}
			holders[idx] = i
		}
		if ph.State == model.Eating && !(ph.HasLeft && ph.HasRight) {
			return fmt.Errorf("table: philosopher %d eating without both forks", ph.ID)
		}
		if ph.Hunger < MinHunger || ph.Hunger > MaxHunger {
			return fmt.Errorf("table: philosopher %d hunger %.2f out of range", ph.ID, ph.Hunger)
		}
	}
	for i, f := range t.forks {
		switch {
		case holders[i] == -1 && (f.InUse || f.HeldBy != nil):
			return fmt.Errorf("table: fork %d marked in use with no holder", i)
		case holders[i] != -1 && (!f.InUse || f.HeldBy == nil || *f.HeldBy != holders[i]):
			return fmt.Errorf("table: fork %d holder mismatch", i)
		}
	}
	return nil
}
