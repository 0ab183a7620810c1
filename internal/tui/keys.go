package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the client's key bindings.
type KeyMap struct {
	Start   key.Binding
	Back    key.Binding
	Quit    key.Binding
	More    key.Binding
	Less    key.Binding
	Pick    key.Binding
	Buy     key.Binding
	Paid    key.Binding
	Refresh key.Binding
}

// ShortHelp returns bindings for the short help view.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Start, k.Back, k.Quit}
}

// FullHelp returns bindings for the full help view.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Start, k.Refresh, k.Back, k.Quit},
		{k.Less, k.More, k.Pick, k.Buy, k.Paid},
	}
}

// DefaultKeyMap returns the default bindings. Letter keys are avoided while
// playing since every letter is typed into the input.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Start:   key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "start")),
		Back:    key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "menu")),
		Quit:    key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "quit")),
		More:    key.NewBinding(key.WithKeys("right", "+"), key.WithHelp("→/+", "more hearts")),
		Less:    key.NewBinding(key.WithKeys("left", "-"), key.WithHelp("←/-", "fewer hearts")),
		Pick:    key.NewBinding(key.WithKeys("1", "2", "3"), key.WithHelp("1-3", "quick pick")),
		Buy:     key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "buy")),
		Paid:    key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "I've paid")),
		Refresh: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
	}
}
