package tui

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/tinytelemetry/symposium/internal/model"
)

const (
	BoardPageID = "board"

	minSpeed = 0.25
	maxSpeed = 8
)

type boardSnapshotMsg struct {
	snap model.BoardSnapshot
	err  error
}

// BoardPage shows the status board and drives it through a BoardController.
type BoardPage struct {
	ctrl     model.BoardController
	keys     KeyMap
	styles   Styles
	interval time.Duration

	gen      int
	snap     model.BoardSnapshot
	loaded   bool
	lastErr  error
	showHelp bool
	helpVP   viewport.Model
}

// NewBoardPage creates the board page polling ctrl every interval.
func NewBoardPage(ctrl model.BoardController, keys KeyMap, styles Styles, interval time.Duration) *BoardPage {
	if interval <= 0 {
		interval = model.DefaultUpdateInterval
	}
	return &BoardPage{
		ctrl:     ctrl,
		keys:     keys,
		styles:   styles,
		interval: interval,
		helpVP:   viewport.New(0, 0),
	}
}

func (p *BoardPage) ID() string    { return BoardPageID }
func (p *BoardPage) Title() string { return "Status Board" }

func (p *BoardPage) Init() tea.Cmd {
	p.gen++
	return tea.Batch(p.fetch(nil), p.tick())
}

func (p *BoardPage) tick() tea.Cmd {
	gen := p.gen
	return tea.Tick(p.interval, func(time.Time) tea.Msg {
		return tickMsg{page: BoardPageID, gen: gen}
	})
}

// fetch runs cmd, if any, then reads a fresh snapshot.
func (p *BoardPage) fetch(cmd func() error) tea.Cmd {
	ctrl := p.ctrl
	return func() tea.Msg {
		var cmdErr error
		if cmd != nil {
			cmdErr = cmd()
		}
		snap, err := ctrl.BoardSnapshot()
		return boardSnapshotMsg{snap: snap, err: errors.Join(cmdErr, err)}
	}
}

func (p *BoardPage) Update(msg tea.Msg) (tea.Cmd, *PageNav) {
	switch msg := msg.(type) {
	case tickMsg:
		if msg.page != BoardPageID || msg.gen != p.gen {
			return nil, nil
		}
		return tea.Batch(p.fetch(nil), p.tick()), nil
	case boardSnapshotMsg:
		if msg.err == nil || len(msg.snap.Philosophers) > 0 {
			p.snap = msg.snap
			p.loaded = true
		}
		p.lastErr = msg.err
		return nil, nil
	case tea.KeyMsg:
		return p.handleKey(msg), nil
	}
	return nil, nil
}

func (p *BoardPage) handleKey(msg tea.KeyMsg) tea.Cmd {
	if p.showHelp {
		switch {
		case key.Matches(msg, p.keys.Help), key.Matches(msg, p.keys.Deselect):
			p.showHelp = false
			return nil
		}
		var cmd tea.Cmd
		p.helpVP, cmd = p.helpVP.Update(msg)
		return cmd
	}

	switch {
	case key.Matches(msg, p.keys.Help):
		p.showHelp = true
	case key.Matches(msg, p.keys.Start):
		return p.fetch(p.ctrl.BoardStart)
	case key.Matches(msg, p.keys.Pause):
		return p.fetch(p.ctrl.BoardToggle)
	case key.Matches(msg, p.keys.Reset):
		return p.fetch(p.ctrl.BoardReset)
	case key.Matches(msg, p.keys.Faster):
		return p.configure(model.BoardSettings{Speed: min(p.speed()*2, maxSpeed)})
	case key.Matches(msg, p.keys.Slower):
		return p.configure(model.BoardSettings{Speed: max(p.speed()/2, minSpeed)})
	case key.Matches(msg, p.keys.More):
		if n := len(p.snap.Philosophers); n < model.MaxPhilosophers {
			return p.configure(model.BoardSettings{Philosophers: n + 1})
		}
	case key.Matches(msg, p.keys.Fewer):
		if n := len(p.snap.Philosophers); n > 1 {
			return p.configure(model.BoardSettings{Philosophers: n - 1})
		}
	}
	return nil
}

func (p *BoardPage) speed() float64 {
	if p.snap.Speed <= 0 {
		return 1
	}
	return p.snap.Speed
}

func (p *BoardPage) configure(s model.BoardSettings) tea.Cmd {
	return p.fetch(func() error { return p.ctrl.BoardConfigure(s) })
}

func (p *BoardPage) View(width, height int) string {
	st := p.styles
	if !p.loaded {
		if p.lastErr != nil {
			return renderError(st, p.lastErr)
		}
		return renderLoading(st, width, height)
	}
	if p.showHelp {
		return renderHelp(st, &p.helpVP, p.Title(), p.keys.BoardHelp(), width, height)
	}

	state := "paused"
	if p.snap.Running {
		state = "running"
	}
	header := renderHeader(st, p.Title(), width,
		state,
		fmt.Sprintf("speed %.2gx", p.speed()),
		fmt.Sprintf("scans %d", p.snap.Scans),
	)

	var rows []string
	counts := map[model.State]int{}
	for _, ph := range p.snap.Philosophers {
		counts[ph.State]++
		rows = append(rows, fmt.Sprintf("P%-3d %s  %s  meals %d",
			ph.ID, stateLabel(st, ph.State), forkMarks(st, ph), ph.MealsEaten))
	}
	table := st.Section.Render(strings.Join(rows, "\n"))

	var summary []string
	for _, s := range []model.State{model.Thinking, model.Hungry, model.Eating, model.Sleeping} {
		summary = append(summary, st.State(s).Render(fmt.Sprintf("%s %d", s, counts[s])))
	}

	parts := []string{
		header,
		table,
		strings.Join(summary, "  "),
		"Forks: " + renderForks(st, p.snap.Forks),
	}
	if p.lastErr != nil {
		parts = append(parts, renderError(st, p.lastErr))
	}
	parts = append(parts, renderStatusLine(st, p.keys.BoardHelp(), width))
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}
