package cmd

import "github.com/charmbracelet/bubbles/key"

type config struct {
	DisplayProtocol string // auto, kitty or iterm
	OutputFolder    string
}

type keyMap struct {
	Next     key.Binding
	Prev     key.Binding
	Left     key.Binding
	Right    key.Binding
	Generate key.Binding
	Save     key.Binding
	Settings key.Binding
	Submit   key.Binding
	Cancel   key.Binding
	Quit     key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		Next:     key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "next field")),
		Prev:     key.NewBinding(key.WithKeys("shift+tab"), key.WithHelp("shift+tab", "prev field")),
		Left:     key.NewBinding(key.WithKeys("left"), key.WithHelp("←", "prev model")),
		Right:    key.NewBinding(key.WithKeys("right"), key.WithHelp("→", "next model")),
		Generate: key.NewBinding(key.WithKeys("ctrl+g"), key.WithHelp("ctrl+g", "generate")),
		Save:     key.NewBinding(key.WithKeys("ctrl+o"), key.WithHelp("ctrl+o", "save image")),
		Settings: key.NewBinding(key.WithKeys("ctrl+s"), key.WithHelp("ctrl+s", "keys")),
		Submit:   key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "save")),
		Cancel:   key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel")),
		Quit:     key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "quit")),
	}
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Next, k.Generate, k.Save, k.Settings, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Next, k.Prev, k.Left, k.Right},
		{k.Generate, k.Save, k.Settings, k.Quit},
	}
}

func (k keyMap) settingsHelp() []key.Binding {
	return []key.Binding{k.Next, k.Submit, k.Cancel}
}
