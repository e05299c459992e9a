// Package engine adapts the in-process board and game to the controller
// interfaces served over HTTP, the socket and the local TUI.
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/tinytelemetry/symposium/internal/board"
	"github.com/tinytelemetry/symposium/internal/game"
	"github.com/tinytelemetry/symposium/internal/model"
)

var (
	_ model.BoardController = (*Board)(nil)
	_ model.GameController  = (*Game)(nil)
)

// Board serves a *board.Board as a model.BoardController.
type Board struct {
	b *board.Board
}

// NewBoard wraps b.
func NewBoard(b *board.Board) *Board { return &Board{b: b} }

func (a *Board) BoardSnapshot() (model.BoardSnapshot, error) { return a.b.Snapshot(), nil }
func (a *Board) BoardStart() error                           { a.b.Start(); return nil }
func (a *Board) BoardPause() error                           { a.b.Pause(); return nil }
func (a *Board) BoardToggle() error                          { a.b.Toggle(); return nil }
func (a *Board) BoardReset() error                           { a.b.Reset(); return nil }

func (a *Board) BoardConfigure(settings model.BoardSettings) error {
	return classifyBoard(a.b.Configure(settings))
}

// SetSpeed changes the board speed, for live config reloads.
func (a *Board) SetSpeed(speed float64) error {
	return classifyBoard(a.b.SetSpeed(speed))
}

// Run drives the board clock until ctx is done.
func (a *Board) Run(ctx context.Context) error {
	return a.b.Run(ctx, board.DefaultResolution)
}

func classifyBoard(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, board.ErrInvalidSize),
		errors.Is(err, board.ErrInvalidSpeed),
		errors.Is(err, board.ErrInvalidOdds):
		return model.Tag(model.ErrInvalidArgument, err)
	}
	return err
}

// Game serves a *game.Game as a model.GameController.
type Game struct {
	g *game.Game
}

// NewGame wraps g.
func NewGame(g *game.Game) *Game { return &Game{g: g} }

func (a *Game) GameSnapshot() (model.GameSnapshot, error) { return a.g.Snapshot(), nil }
func (a *Game) GameStart() error                          { a.g.Start(); return nil }
func (a *Game) GamePause() error                          { a.g.Pause(); return nil }
func (a *Game) GameResume() error                         { return classifyGame(a.g.Resume()) }
func (a *Game) GameReset() error                          { a.g.Reset(); return nil }
func (a *Game) GameSelect(index int) error                { return classifyGame(a.g.Select(index)) }
func (a *Game) GameDeselect() error                       { a.g.Deselect(); return nil }

func (a *Game) GameAction(action model.Action) error {
	if _, err := model.ParseAction(string(action)); err != nil {
		return model.Tag(model.ErrInvalidArgument, fmt.Errorf("game: %w", err))
	}
	return classifyGame(a.g.Apply(action))
}

// Run ticks the game until ctx is done.
func (a *Game) Run(ctx context.Context) error {
	return a.g.Run(ctx)
}

func classifyGame(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, game.ErrNoSuchPhilosopher):
		return model.Tag(model.ErrInvalidArgument, err)
	case errors.Is(err, game.ErrNoSelection),
		errors.Is(err, game.ErrGameOver),
		errors.Is(err, game.ErrAlreadyEating),
		errors.Is(err, game.ErrActionDisabled),
		errors.Is(err, game.ErrNotStarted):
		return model.Tag(model.ErrRejected, err)
	}
	return err
}
