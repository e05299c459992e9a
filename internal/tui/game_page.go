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
	GamePageID = "game"

	noticeLines = 4
	hungerBar   = 20
)

type gameSnapshotMsg struct {
	snap model.GameSnapshot
	err  error
}

// GamePage is the interactive table: select a philosopher and act for it.
type GamePage struct {
	ctrl     model.GameController
	keys     KeyMap
	styles   Styles
	interval time.Duration

	gen      int
	snap     model.GameSnapshot
	loaded   bool
	lastErr  error
	showHelp bool
	helpVP   viewport.Model
	notices  viewport.Model
}

// NewGamePage creates the game page polling ctrl every interval.
func NewGamePage(ctrl model.GameController, keys KeyMap, styles Styles, interval time.Duration) *GamePage {
	if interval <= 0 {
		interval = model.DefaultUpdateInterval
	}
	return &GamePage{
		ctrl:     ctrl,
		keys:     keys,
		styles:   styles,
		interval: interval,
		helpVP:   viewport.New(0, 0),
		notices:  viewport.New(0, noticeLines),
	}
}

func (p *GamePage) ID() string    { return GamePageID }
func (p *GamePage) Title() string { return "Dining Game" }

func (p *GamePage) Init() tea.Cmd {
	p.gen++
	return tea.Batch(p.fetch(nil), p.tick())
}

func (p *GamePage) tick() tea.Cmd {
	gen := p.gen
	return tea.Tick(p.interval, func(time.Time) tea.Msg {
		return tickMsg{page: GamePageID, gen: gen}
	})
}

func (p *GamePage) fetch(cmd func() error) tea.Cmd {
	ctrl := p.ctrl
	return func() tea.Msg {
		var cmdErr error
		if cmd != nil {
			cmdErr = cmd()
		}
		snap, err := ctrl.GameSnapshot()
		return gameSnapshotMsg{snap: snap, err: errors.Join(cmdErr, err)}
	}
}

func (p *GamePage) Update(msg tea.Msg) (tea.Cmd, *PageNav) {
	switch msg := msg.(type) {
	case tickMsg:
		if msg.page != GamePageID || msg.gen != p.gen {
			return nil, nil
		}
		return tea.Batch(p.fetch(nil), p.tick()), nil
	case gameSnapshotMsg:
		if msg.err == nil || len(msg.snap.Philosophers) > 0 {
			p.snap = msg.snap
			p.loaded = true
			p.notices.SetContent(p.renderNotices())
			p.notices.GotoBottom()
		}
		p.lastErr = msg.err
		return nil, nil
	case tea.KeyMsg:
		return p.handleKey(msg), nil
	}
	return nil, nil
}

func (p *GamePage) handleKey(msg tea.KeyMsg) tea.Cmd {
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
		return p.fetch(p.ctrl.GameStart)
	case key.Matches(msg, p.keys.Pause):
		if p.snap.Running {
			return p.fetch(p.ctrl.GamePause)
		}
		return p.fetch(p.ctrl.GameResume)
	case key.Matches(msg, p.keys.Reset):
		return p.fetch(p.ctrl.GameReset)
	case key.Matches(msg, p.keys.Deselect):
		return p.fetch(p.ctrl.GameDeselect)
	case key.Matches(msg, p.keys.Prev):
		return p.step(-1)
	case key.Matches(msg, p.keys.Next):
		return p.step(1)
	case key.Matches(msg, p.keys.Think):
		return p.act(model.ActionThink)
	case key.Matches(msg, p.keys.TakeForks):
		return p.act(model.ActionTakeForks)
	case key.Matches(msg, p.keys.Eat):
		return p.act(model.ActionEat)
	case key.Matches(msg, p.keys.ReleaseForks):
		return p.act(model.ActionReleaseForks)
	}
	return nil
}

// step moves the selection by delta around the table.
func (p *GamePage) step(delta int) tea.Cmd {
	n := len(p.snap.Philosophers)
	if n == 0 {
		return nil
	}
	next := 0
	switch {
	case p.snap.Selected != nil:
		next = ((*p.snap.Selected+delta)%n + n) % n
	case delta < 0:
		next = n - 1
	}
	return p.fetch(func() error { return p.ctrl.GameSelect(next) })
}

func (p *GamePage) act(a model.Action) tea.Cmd {
	return p.fetch(func() error { return p.ctrl.GameAction(a) })
}

func (p *GamePage) renderNotices() string {
	if len(p.snap.Notices) == 0 {
		return p.styles.Muted.Render("No notices yet")
	}
	lines := make([]string, 0, len(p.snap.Notices))
	for _, n := range p.snap.Notices {
		lines = append(lines, p.styles.Notice(n.Level).Render(n.At.Format("15:04:05")+" "+n.Message))
	}
	return strings.Join(lines, "\n")
}

func (p *GamePage) phase() string {
	switch {
	case p.snap.Over:
		return p.styles.Error.Render("GAME OVER")
	case p.snap.Running:
		return p.styles.Success.Render("running")
	default:
		return "paused"
	}
}

func (p *GamePage) View(width, height int) string {
	st := p.styles
	if !p.loaded {
		if p.lastErr != nil {
			return renderError(st, p.lastErr)
		}
		return renderLoading(st, width, height)
	}
	if p.showHelp {
		return renderHelp(st, &p.helpVP, p.Title(), p.keys.GameHelp(), width, height)
	}

	header := renderHeader(st, p.Title(), width,
		p.phase(),
		fmt.Sprintf("score %d", p.snap.Score),
		"time "+formatElapsed(p.snap.Elapsed),
	)

	selected := -1
	if p.snap.Selected != nil {
		selected = *p.snap.Selected
	}
	var rows []string
	for i, ph := range p.snap.Philosophers {
		filled := int(ph.Hunger / 100 * hungerBar)
		bar := hungerStyle(st, ph.Hunger).UnsetBackground().Render(strings.Repeat("█", filled)) +
			st.Muted.Render(strings.Repeat("░", hungerBar-filled))
		row := fmt.Sprintf("P%-3d %s  %s  %s %5.1f  meals %d",
			ph.ID, stateLabel(st, ph.State), forkMarks(st, ph), bar, ph.Hunger, ph.MealsEaten)
		if i == selected {
			row = st.Selected.Render("▶") + " " + row
		} else {
			row = "  " + row
		}
		rows = append(rows, row)
	}
	table := st.Section.Render(strings.Join(rows, "\n"))

	chart := st.Section.Render(lipgloss.JoinVertical(lipgloss.Left,
		st.Title.Render("Hunger"),
		renderHungerChart(st, p.snap.Philosophers, width-4),
	))

	p.notices.Width = max(width-4, 20)
	parts := []string{
		header,
		lipgloss.JoinHorizontal(lipgloss.Top, table, " ", chart),
		p.renderActions(),
		"Forks: " + renderForks(st, p.snap.Forks),
		st.Section.Render(p.notices.View()),
	}
	if p.lastErr != nil {
		parts = append(parts, renderError(st, p.lastErr))
	}
	parts = append(parts, renderStatusLine(st, p.keys.GameHelp(), width))
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

// renderActions shows each action with its key, dimmed when unavailable.
func (p *GamePage) renderActions() string {
	bindings := map[model.Action]key.Binding{
		model.ActionThink:        p.keys.Think,
		model.ActionTakeForks:    p.keys.TakeForks,
		model.ActionEat:          p.keys.Eat,
		model.ActionReleaseForks: p.keys.ReleaseForks,
	}
	parts := make([]string, 0, len(model.Actions))
	for _, a := range model.Actions {
		label := fmt.Sprintf("[%s] %s", bindings[a].Help().Key, a)
		if p.snap.Enabled[a] {
			parts = append(parts, p.styles.Text.Render(label))
		} else {
			parts = append(parts, p.styles.Muted.Strikethrough(true).Render(label))
		}
	}
	return "Actions: " + strings.Join(parts, "  ")
}
