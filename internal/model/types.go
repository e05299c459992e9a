package model

import (
	"fmt"
	"strings"
	"time"
)

// State is the display state of a philosopher.
type State int

const (
	Thinking State = iota
	Hungry
	Eating
	Sleeping
)

var stateNames = [...]string{"thinking", "hungry", "eating", "sleeping"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// ParseState converts a state name back into a State.
func ParseState(name string) (State, error) {
	for i, n := range stateNames {
		if strings.EqualFold(n, name) {
			return State(i), nil
		}
	}
	return 0, fmt.Errorf("unknown state %q", name)
}

// MarshalText encodes the state by name so JSON payloads stay readable.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(b []byte) error {
	v, err := ParseState(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Philosopher is one seat at the table.
type Philosopher struct {
	ID         int     `json:"id"` // 1-based
	State      State   `json:"state"`
	Hunger     float64 `json:"hunger"`
	MealsEaten int     `json:"meals_eaten"`
	LeftFork   int     `json:"left_fork"`
	RightFork  int     `json:"right_fork"`
	HasLeft    bool    `json:"has_left"`
	HasRight   bool    `json:"has_right"`
}

// Fork is the resource between two adjacent philosophers.
type Fork struct {
	ID     int  `json:"id"` // 0-based index
	InUse  bool `json:"in_use"`
	HeldBy *int `json:"held_by"` // philosopher index, nil when free
}

// BoardSnapshot is a point-in-time copy of the status board.
type BoardSnapshot struct {
	Running      bool          `json:"running"`
	Speed        float64       `json:"speed"`
	Scans        uint64        `json:"scans"`
	Philosophers []Philosopher `json:"philosophers"`
	Forks        []Fork        `json:"forks"`
}

// BoardSettings carries the adjustable board parameters. Zero values are ignored.
type BoardSettings struct {
	Philosophers int     `json:"philosophers"`
	Speed        float64 `json:"speed"`
}

// NoticeLevel classifies a game notice.
type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeSuccess NoticeLevel = "success"
	NoticeError   NoticeLevel = "error"
)

// Notice is a short user-facing message raised by the game.
type Notice struct {
	Level   NoticeLevel `json:"level"`
	Message string      `json:"message"`
	At      time.Time   `json:"at"`
}

// Action is a player command applied to the selected philosopher.
type Action string

const (
	ActionThink        Action = "think"
	ActionTakeForks    Action = "take-forks"
	ActionEat          Action = "eat"
	ActionReleaseForks Action = "release-forks"
)

// Actions lists every action in display order.
var Actions = []Action{ActionThink, ActionTakeForks, ActionEat, ActionReleaseForks}

// ParseAction validates an action name.
func ParseAction(name string) (Action, error) {
	for _, a := range Actions {
		if string(a) == name {
			return a, nil
		}
	}
	return "", fmt.Errorf("unknown action %q", name)
}

// GameSnapshot is a point-in-time copy of the interactive game.
type GameSnapshot struct {
	Running      bool            `json:"running"`
	Over         bool            `json:"over"`
	Score        int             `json:"score"`
	Elapsed      time.Duration   `json:"elapsed"`
	Selected     *int            `json:"selected"`
	Philosophers []Philosopher   `json:"philosophers"`
	Forks        []Fork          `json:"forks"`
	Enabled      map[Action]bool `json:"enabled"`
	Notices      []Notice        `json:"notices"`
}

// EventKind is the status a simulator philosopher reports.
type EventKind string

const (
	EventTookFork EventKind = "has taken a fork"
	EventEating   EventKind = "is eating"
	EventSleeping EventKind = "is sleeping"
	EventThinking EventKind = "is thinking"
	EventDied     EventKind = "died"
)

// Event is one status line produced by a simulator run.
type Event struct {
	RunID       string    `json:"run_id"`
	Seq         uint64    `json:"seq"`
	Elapsed     int64     `json:"elapsed_ms"`
	Philosopher int       `json:"philosopher"`
	Kind        EventKind `json:"kind"`
	Timestamp   time.Time `json:"timestamp"`
}

// Outcome is how a simulator run ended.
type Outcome string

const (
	OutcomeRunning   Outcome = "running"
	OutcomeDied      Outcome = "died"
	OutcomeSatisfied Outcome = "satisfied"
	OutcomeCancelled Outcome = "cancelled"
)

// RunConfig holds the simulator parameters.
type RunConfig struct {
	Philosophers int           `json:"philosophers"`
	TimeToDie    time.Duration `json:"time_to_die"`
	TimeToEat    time.Duration `json:"time_to_eat"`
	TimeToSleep  time.Duration `json:"time_to_sleep"`
	MustEat      int           `json:"must_eat"` // 0 = unlimited
}

// RunSummary describes a recorded simulator run.
type RunSummary struct {
	ID              string    `json:"id"`
	Config          RunConfig `json:"config"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
	Outcome         Outcome   `json:"outcome"`
	DeadPhilosopher int       `json:"dead_philosopher"`
	TotalMeals      int       `json:"total_meals"`
}

// MealCount is the number of meals one philosopher ate during a run.
type MealCount struct {
	Philosopher int   `json:"philosopher"`
	Meals       int64 `json:"meals"`
}
