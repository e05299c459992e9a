package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines every key binding with built-in help text.
type KeyMap struct {
	// Global
	Quit      key.Binding
	ForceQuit key.Binding
	Help      key.Binding
	NextPage  key.Binding

	// Engine control
	Start  key.Binding
	Pause  key.Binding
	Reset  key.Binding
	Faster key.Binding
	Slower key.Binding
	More   key.Binding
	Fewer  key.Binding

	// Game selection and actions
	Prev         key.Binding
	Next         key.Binding
	Deselect     key.Binding
	Think        key.Binding
	TakeForks    key.Binding
	Eat          key.Binding
	ReleaseForks key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Quit: key.NewBinding(
			key.WithKeys("q"),
			key.WithHelp("q", "quit"),
		),
		ForceQuit: key.NewBinding(
			key.WithKeys("ctrl+c"),
			key.WithHelp("ctrl+c", "force quit"),
		),
		Help: key.NewBinding(
			key.WithKeys("?", "h"),
			key.WithHelp("?/h", "help"),
		),
		NextPage: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "switch page"),
		),

		Start: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "start"),
		),
		Pause: key.NewBinding(
			key.WithKeys(" ", "p"),
			key.WithHelp("space/p", "pause/resume"),
		),
		Reset: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "reset"),
		),
		Faster: key.NewBinding(
			key.WithKeys("+", "="),
			key.WithHelp("+", "faster"),
		),
		Slower: key.NewBinding(
			key.WithKeys("-"),
			key.WithHelp("-", "slower"),
		),
		More: key.NewBinding(
			key.WithKeys("]"),
			key.WithHelp("]", "add philosopher"),
		),
		Fewer: key.NewBinding(
			key.WithKeys("["),
			key.WithHelp("[", "remove philosopher"),
		),

		Prev: key.NewBinding(
			key.WithKeys("left", "k", "up"),
			key.WithHelp("←/k", "select previous"),
		),
		Next: key.NewBinding(
			key.WithKeys("right", "j", "down"),
			key.WithHelp("→/j", "select next"),
		),
		Deselect: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "deselect/close"),
		),
		Think: key.NewBinding(
			key.WithKeys("t", "1"),
			key.WithHelp("t/1", "think"),
		),
		TakeForks: key.NewBinding(
			key.WithKeys("f", "2"),
			key.WithHelp("f/2", "take forks"),
		),
		Eat: key.NewBinding(
			key.WithKeys("e", "3"),
			key.WithHelp("e/3", "eat"),
		),
		ReleaseForks: key.NewBinding(
			key.WithKeys("x", "4"),
			key.WithHelp("x/4", "release forks"),
		),
	}
}

// BoardHelp lists the bindings the board page responds to.
func (k KeyMap) BoardHelp() []key.Binding {
	return []key.Binding{k.Start, k.Pause, k.Reset, k.Faster, k.Slower, k.More, k.Fewer, k.NextPage, k.Help, k.Quit}
}

// GameHelp lists the bindings the game page responds to.
func (k KeyMap) GameHelp() []key.Binding {
	return []key.Binding{
		k.Start, k.Pause, k.Reset, k.Prev, k.Next, k.Deselect,
		k.Think, k.TakeForks, k.Eat, k.ReleaseForks, k.NextPage, k.Help, k.Quit,
	}
}
