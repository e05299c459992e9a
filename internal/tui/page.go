package tui

import tea "github.com/charmbracelet/bubbletea"

// Page represents a top-level screen in the TUI (board, game).
type Page interface {
	ID() string
	Title() string
	Init() tea.Cmd
	Update(msg tea.Msg) (tea.Cmd, *PageNav)
	View(width, height int) string
}

// PageNav is returned from Update to request a page switch.
type PageNav struct {
	PageID string
}

// tickMsg schedules the next poll of one page. Pages drop ticks from an
// older generation so switching pages never doubles a poll loop.
type tickMsg struct {
	page string
	gen  int
}
