package ui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Start       key.Binding
	Stop        key.Binding
	Credentials key.Binding
	Copy        key.Binding
	Help        key.Binding
	Quit        key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Start:       key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "start sharing")),
		Stop:        key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "stop sharing")),
		Credentials: key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "show/hide credentials")),
		Copy:        key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "copy link")),
		Help:        key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:        key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "stop and quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Start, k.Stop, k.Credentials, k.Copy, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Start, k.Stop}, {k.Credentials, k.Copy}, {k.Help, k.Quit}}
}
