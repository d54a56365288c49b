package tui

import "github.com/charmbracelet/bubbles/key"

type KeyMap struct {
	Toggle   key.Binding
	Override key.Binding
	Reboot   key.Binding
	Quit     key.Binding
}

var DefaultKeyMap = KeyMap{
	Toggle: key.NewBinding(
		key.WithKeys("t", " "),
		key.WithHelp("t", "toggle motor"),
	),
	Override: key.NewBinding(
		key.WithKeys("o"),
		key.WithHelp("o", "manual override"),
	),
	Reboot: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "reboot device"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

func (k KeyMap) help() []key.Binding {
	return []key.Binding{k.Toggle, k.Override, k.Reboot, k.Quit}
}
