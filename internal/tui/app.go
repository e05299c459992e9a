package tui

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

// App is the top-level Bubble Tea model that routes between pages.
type App struct {
	pages      map[string]Page
	order      []string
	activePage string
	keys       KeyMap
	width      int
	height     int
}

// NewApp creates a new App with the given pages. The first page is the default.
func NewApp(keys KeyMap, pages ...Page) *App {
	a := &App{pages: make(map[string]Page, len(pages)), keys: keys}
	for _, p := range pages {
		a.pages[p.ID()] = p
		a.order = append(a.order, p.ID())
	}
	if len(a.order) > 0 {
		a.activePage = a.order[0]
	}
	return a
}

// ActivePage returns the id of the page on screen.
func (a *App) ActivePage() string { return a.activePage }

func (a *App) Init() tea.Cmd {
	if p, ok := a.pages[a.activePage]; ok {
		return p.Init()
	}
	return nil
}

func (a *App) switchTo(id string) tea.Cmd {
	if _, ok := a.pages[id]; !ok || id == a.activePage {
		return nil
	}
	a.activePage = id
	return a.pages[id].Init()
}

func (a *App) nextPageID() string {
	for i, id := range a.order {
		if id == a.activePage {
			return a.order[(i+1)%len(a.order)]
		}
	}
	return a.activePage
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, a.keys.ForceQuit), key.Matches(msg, a.keys.Quit):
			return a, tea.Quit
		case key.Matches(msg, a.keys.NextPage):
			return a, a.switchTo(a.nextPageID())
		}
	}

	p, ok := a.pages[a.activePage]
	if !ok {
		return a, nil
	}

	cmd, nav := p.Update(msg)
	if nav != nil {
		return a, tea.Batch(cmd, a.switchTo(nav.PageID))
	}
	return a, cmd
}

func (a *App) View() string {
	if p, ok := a.pages[a.activePage]; ok {
		return p.View(a.width, a.height)
	}
	return "No active page"
}
