package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"
	"github.com/tinytelemetry/symposium/internal/model"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// renderLoading renders a loading indicator that animates on re-render.
func renderLoading(st Styles, width, height int) string {
	frame := spinnerFrames[time.Now().UnixMilli()/120%int64(len(spinnerFrames))]
	text := st.Muted.Italic(true).Render(frame + " Connecting...")
	if width <= 0 || height <= 0 {
		return text
	}
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, text)
}

// renderHeader renders the title bar: page title on the left, facts on the right.
func renderHeader(st Styles, title string, width int, facts ...string) string {
	left := st.Title.Render("Symposium") + st.Muted.Render(" · ") + st.Text.Render(title)
	right := st.Muted.Render(strings.Join(facts, "  "))
	gap := width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 1 {
		return st.Header.Render(left)
	}
	return st.Header.Render(left + strings.Repeat(" ", gap) + right)
}

// renderStatusLine renders short key hints, trimmed to fit width.
func renderStatusLine(st Styles, bindings []key.Binding, width int) string {
	var parts []string
	used := 0
	for _, b := range bindings {
		h := b.Help()
		part := h.Key + " " + h.Desc
		if width > 0 && used+len(part)+3 > width {
			break
		}
		parts = append(parts, part)
		used += len(part) + 3
	}
	line := strings.Join(parts, " │ ")
	if width > 0 {
		return st.Status.Width(width).Render(line)
	}
	return st.Status.Render(line)
}

func renderError(st Styles, err error) string {
	if err == nil {
		return ""
	}
	return st.Error.Render("error: " + err.Error())
}

// renderHelp renders the help overlay using vp for scrolling.
func renderHelp(st Styles, vp *viewport.Model, title string, bindings []key.Binding, width, height int) string {
	modalWidth := max(width-8, 30)
	modalHeight := max(height-4, 8)
	contentWidth := modalWidth - 4
	contentHeight := modalHeight - 4

	var b strings.Builder
	for _, kb := range bindings {
		h := kb.Help()
		fmt.Fprintf(&b, "  %-12s %s\n", h.Key, h.Desc)
	}
	vp.Width = contentWidth
	vp.Height = contentHeight
	vp.SetContent(b.String())

	pane := st.Section.Width(contentWidth).Height(contentHeight).Render(vp.View())
	header := st.Title.Width(contentWidth).Render(title + " Help")
	status := st.Muted.Render("up/down: scroll | ?/h: toggle help | esc: close")

	modal := st.Active.Width(modalWidth).Render(lipgloss.JoinVertical(lipgloss.Left, header, pane, status))
	if width <= 0 || height <= 0 {
		return modal
	}
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, modal)
}

// forkMarks renders the left/right fork holdings of a philosopher.
func forkMarks(st Styles, p model.Philosopher) string {
	mark := func(side string, held bool) string {
		if held {
			return st.ForkHeld.Render(side + "✓")
		}
		return st.ForkFree.Render(side + "·")
	}
	return mark("L", p.HasLeft) + " " + mark("R", p.HasRight)
}

// renderForks renders the fork row as F0..Fn with the holder of each.
func renderForks(st Styles, forks []model.Fork) string {
	parts := make([]string, 0, len(forks))
	for _, f := range forks {
		if f.InUse && f.HeldBy != nil {
			parts = append(parts, st.ForkHeld.Render(fmt.Sprintf("F%d→P%d", f.ID, *f.HeldBy+1)))
			continue
		}
		parts = append(parts, st.ForkFree.Render(fmt.Sprintf("F%d", f.ID)))
	}
	return strings.Join(parts, " ")
}

// stateLabel renders a state name padded to a fixed width.
func stateLabel(st Styles, s model.State) string {
	return st.State(s).Render(fmt.Sprintf("%-8s", s.String()))
}

// formatElapsed renders d as m:ss.
func formatElapsed(d time.Duration) string {
	d = d.Round(time.Second)
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}
