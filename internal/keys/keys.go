// Package keys contains keybinding definitions.
package keys

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the keybindings of the history view.
type KeyMap struct {
	// Navigation
	Up       key.Binding
	Down     key.Binding
	PageUp   key.Binding
	PageDown key.Binding
	Top      key.Binding
	Bottom   key.Binding

	// Details pane
	Focus    key.Binding
	NextFile key.Binding
	PrevFile key.Binding

	// Actions
	Refresh key.Binding
	Fetch   key.Binding
	Pull    key.Binding
	Push    key.Binding
	Stashes key.Binding

	// Filters
	AllBranches key.Binding
	NoMerges    key.Binding
	ToggleGraph key.Binding

	// General
	Help   key.Binding
	Escape key.Binding
	Quit   key.Binding
}

// DefaultKeyMap returns the default keybindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		// Navigation
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/↑", "move up"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/↓", "move down"),
		),
		PageUp: key.NewBinding(
			key.WithKeys("ctrl+u", "pgup"),
			key.WithHelp("ctrl+u", "page up"),
		),
		PageDown: key.NewBinding(
			key.WithKeys("ctrl+d", "pgdown"),
			key.WithHelp("ctrl+d", "page down"),
		),
		Top: key.NewBinding(
			key.WithKeys("g", "home"),
			key.WithHelp("g", "first commit"),
		),
		Bottom: key.NewBinding(
			key.WithKeys("G", "end"),
			key.WithHelp("G", "last loaded commit"),
		),

		// Details pane
		Focus: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "switch pane"),
		),
		NextFile: key.NewBinding(
			key.WithKeys("]"),
			key.WithHelp("]", "next file"),
		),
		PrevFile: key.NewBinding(
			key.WithKeys("["),
			key.WithHelp("[", "previous file"),
		),

		// Actions
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh"),
		),
		Fetch: key.NewBinding(
			key.WithKeys("f"),
			key.WithHelp("f", "fetch --prune"),
		),
		Pull: key.NewBinding(
			key.WithKeys("p"),
			key.WithHelp("p", "pull"),
		),
		Push: key.NewBinding(
			key.WithKeys("P"),
			key.WithHelp("P", "push"),
		),
		Stashes: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "stashes"),
		),

		// Filters
		AllBranches: key.NewBinding(
			key.WithKeys("b"),
			key.WithHelp("b", "toggle all branches"),
		),
		NoMerges: key.NewBinding(
			key.WithKeys("m"),
			key.WithHelp("m", "toggle merges"),
		),
		ToggleGraph: key.NewBinding(
			key.WithKeys("ctrl+g"),
			key.WithHelp("ctrl+g", "toggle graph"),
		),

		// General
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "toggle help"),
		),
		Escape: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "go back"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// ShortHelp returns keybindings for the short help view.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Help, k.Quit}
}

// FullHelp returns keybindings for the full help view.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.PageUp, k.PageDown, k.Top, k.Bottom}, // Navigation
		{k.Focus, k.NextFile, k.PrevFile},                     // Details
		{k.Refresh, k.Fetch, k.Pull, k.Push, k.Stashes},       // Actions
		{k.AllBranches, k.NoMerges, k.ToggleGraph},            // Filters
		{k.Help, k.Escape, k.Quit},                            // General
	}
}

// PushKeyMap defines the keybindings of the push confirmation prompt shown
// when the remote branch has advanced.
type PushKeyMap struct {
	Force  key.Binding
	Cancel key.Binding
}

// DefaultPushKeyMap returns the push prompt keybindings.
func DefaultPushKeyMap() PushKeyMap {
	return PushKeyMap{
		Force: key.NewBinding(
			key.WithKeys("F"),
			key.WithHelp("F", "force push"),
		),
		Cancel: key.NewBinding(
			key.WithKeys("esc", "n"),
			key.WithHelp("esc", "cancel"),
		),
	}
}
