package sim

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/tinytelemetry/symposium/internal/model"
)

// MaxPhilosophers caps the number of goroutines a single run may start.
const MaxPhilosophers = 200

var (
	ErrArgCount   = errors.New("sim: expected 4 or 5 arguments")
	ErrInvalidArg = errors.New("sim: invalid argument")
)

var argNames = [...]string{"number_of_philosophers", "time_to_die", "time_to_eat", "time_to_sleep", "number_of_times_each_philosopher_must_eat"}

// ParseArgs parses "N die eat sleep [must_eat]". Every value must be a
// positive decimal integer; times are in milliseconds.
func ParseArgs(args []string) (model.RunConfig, error) {
	if len(args) != 4 && len(args) != 5 {
		return model.RunConfig{}, fmt.Errorf("%w: got %d", ErrArgCount, len(args))
	}
	vals := make([]int, len(args))
	for i, s := range args {
		n, err := strconv.ParseInt(s, 10, 32)
		if err != nil || n <= 0 {
			return model.RunConfig{}, fmt.Errorf("%w: %s %q", ErrInvalidArg, argNames[i], s)
		}
		vals[i] = int(n)
	}
	cfg := model.RunConfig{
		Philosophers: vals[0],
		TimeToDie:    time.Duration(vals[1]) * time.Millisecond,
		TimeToEat:    time.Duration(vals[2]) * time.Millisecond,
		TimeToSleep:  time.Duration(vals[3]) * time.Millisecond,
	}
	if len(vals) == 5 {
		cfg.MustEat = vals[4]
	}
	return cfg, Validate(cfg)
}

// Validate checks a run configuration built outside ParseArgs.
func Validate(cfg model.RunConfig) error {
	switch {
	case cfg.Philosophers < 1 || cfg.Philosophers > MaxPhilosophers:
		return fmt.Errorf("%w: %d philosophers (want 1..%d)", ErrInvalidArg, cfg.Philosophers, MaxPhilosophers)
	case cfg.TimeToDie < time.Millisecond:
		return fmt.Errorf("%w: time_to_die %v", ErrInvalidArg, cfg.TimeToDie)
	case cfg.TimeToEat < time.Millisecond:
		return fmt.Errorf("%w: time_to_eat %v", ErrInvalidArg, cfg.TimeToEat)
	case cfg.TimeToSleep < time.Millisecond:
		return fmt.Errorf("%w: time_to_sleep %v", ErrInvalidArg, cfg.TimeToSleep)
	case cfg.MustEat < 0:
		return fmt.Errorf("%w: must_eat %d", ErrInvalidArg, cfg.MustEat)
	}
	return nil
}
