package tui

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/lipgloss"
	"github.com/tinytelemetry/symposium/internal/model"
	"gopkg.in/yaml.v3"
)

// Palette holds ANSI or hex color values for one skin.
type Palette struct {
	Accent     string `yaml:"accent"`
	Muted      string `yaml:"muted"`
	Text       string `yaml:"text"`
	Background string `yaml:"background"`
	Thinking   string `yaml:"thinking"`
	Hungry     string `yaml:"hungry"`
	Eating     string `yaml:"eating"`
	Sleeping   string `yaml:"sleeping"`
	ForkFree   string `yaml:"fork_free"`
	ForkHeld   string `yaml:"fork_held"`
	Success    string `yaml:"success"`
	Error      string `yaml:"error"`
}

// Theme is a named palette, loaded from ~/.config/symposium/skins/<name>.yml.
type Theme struct {
	Name   string  `yaml:"name"`
	Colors Palette `yaml:"colors"`
}

// DefaultTheme is used when no skin file is configured.
func DefaultTheme() Theme {
	return Theme{
		Name: model.DefaultSkin,
		Colors: Palette{
			Accent:     "39",
			Muted:      "244",
			Text:       "252",
			Background: "17",
			Thinking:   "39",
			Hungry:     "214",
			Eating:     "76",
			Sleeping:   "141",
			ForkFree:   "244",
			ForkHeld:   "214",
			Success:    "76",
			Error:      "196",
		},
	}
}

// DefaultSkinDir returns ~/.config/symposium/skins.
func DefaultSkinDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "skins")
	}
	return filepath.Join(home, ".config", "symposium", "skins")
}

// LoadSkin reads <dir>/<name>.yml over the default palette, so a skin only
// needs the colors it changes. A missing "default" skin is not an error.
func LoadSkin(dir, name string) (Theme, error) {
	theme := DefaultTheme()
	if name == "" {
		return theme, nil
	}
	path := filepath.Join(dir, name+".yml")
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && name == model.DefaultSkin {
			return theme, nil
		}
		return theme, fmt.Errorf("tui: read skin %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &theme); err != nil {
		return DefaultTheme(), fmt.Errorf("tui: parse skin %s: %w", path, err)
	}
	if theme.Name == model.DefaultSkin {
		theme.Name = name
	}
	return theme, nil
}

// Styles are the lipgloss styles derived from a Theme.
type Styles struct {
	Title    lipgloss.Style
	Header   lipgloss.Style
	Section  lipgloss.Style
	Active   lipgloss.Style
	Muted    lipgloss.Style
	Text     lipgloss.Style
	Status   lipgloss.Style
	Selected lipgloss.Style
	Success  lipgloss.Style
	Error    lipgloss.Style
	ForkFree lipgloss.Style
	ForkHeld lipgloss.Style
	states   map[model.State]lipgloss.Style
}

// NewStyles builds the styles for t.
func NewStyles(t Theme) Styles {
	c := t.Colors
	col := func(v string) lipgloss.Color { return lipgloss.Color(v) }
	return Styles{
		Title:    lipgloss.NewStyle().Bold(true).Foreground(col(c.Accent)),
		Header:   lipgloss.NewStyle().Background(col(c.Background)).Foreground(col(c.Text)).Padding(0, 1),
		Section:  lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(col(c.Muted)).Padding(0, 1),
		Active:   lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(col(c.Accent)).Padding(0, 1),
		Muted:    lipgloss.NewStyle().Foreground(col(c.Muted)),
		Text:     lipgloss.NewStyle().Foreground(col(c.Text)),
		Status:   lipgloss.NewStyle().Background(col(c.Background)).Foreground(col(c.Text)),
		Selected: lipgloss.NewStyle().Bold(true).Reverse(true),
		Success:  lipgloss.NewStyle().Foreground(col(c.Success)),
		Error:    lipgloss.NewStyle().Foreground(col(c.Error)).Bold(true),
		ForkFree: lipgloss.NewStyle().Foreground(col(c.ForkFree)),
		ForkHeld: lipgloss.NewStyle().Foreground(col(c.ForkHeld)).Bold(true),
		states: map[model.State]lipgloss.Style{
			model.Thinking: lipgloss.NewStyle().Foreground(col(c.Thinking)),
			model.Hungry:   lipgloss.NewStyle().Foreground(col(c.Hungry)),
			model.Eating:   lipgloss.NewStyle().Foreground(col(c.Eating)).Bold(true),
			model.Sleeping: lipgloss.NewStyle().Foreground(col(c.Sleeping)),
		},
	}
}

// State returns the style for a philosopher state.
func (s Styles) State(st model.State) lipgloss.Style {
	if style, ok := s.states[st]; ok {
		return style
	}
	return s.Text
}

// Notice returns the style for a game notice level.
func (s Styles) Notice(l model.NoticeLevel) lipgloss.Style {
	switch l {
	case model.NoticeSuccess:
		return s.Success
	case model.NoticeError:
		return s.Error
	default:
		return s.Text
	}
}
