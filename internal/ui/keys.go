package ui

import (
	"github.com/charmbracelet/bubbles/key"

	"github.com/d64483912-cmd/BabyAGI-Medical/internal/orchestrator"
)

// KeyMap defines the dashboard keybindings.
type KeyMap struct {
	// Run control
	Pause key.Binding // Pause or resume
	Stop  key.Binding
	Reset key.Binding

	// Navigation
	NextPane key.Binding
	PrevPane key.Binding
	Up       key.Binding
	Down     key.Binding
	Top      key.Binding
	Bottom   key.Binding

	// View
	Detail key.Binding // Toggle task details
	Back   key.Binding
	Quit   key.Binding
}

// DefaultKeyMap returns the default keybindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Pause: key.NewBinding(
			key.WithKeys("p", " "),
			key.WithHelp("p", "pause"),
		),
		Stop: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "stop"),
		),
		Reset: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "reset"),
		),
		NextPane: key.NewBinding(
			key.WithKeys("tab", "right", "l"),
			key.WithHelp("tab", "focus"),
		),
		PrevPane: key.NewBinding(
			key.WithKeys("shift+tab", "left", "h"),
			key.WithHelp("shift+tab", "back"),
		),
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("j/k", "move"),
		),
		Top: key.NewBinding(
			key.WithKeys("home", "g"),
			key.WithHelp("g", "top"),
		),
		Bottom: key.NewBinding(
			key.WithKeys("end", "G"),
			key.WithHelp("G", "bottom"),
		),
		Detail: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "details"),
		),
		Back: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "back"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// helpBindings returns the bindings shown in the help bar for the current
// focus and run state.
func (m Model) helpBindings() []key.Binding {
	pause := m.keys.Pause
	if m.runState == orchestrator.StatePaused {
		pause.SetHelp("p", "resume")
	}
	items := []key.Binding{pause, m.keys.Stop, m.keys.Reset, m.keys.NextPane, m.keys.Down}
	if m.focus == FocusTasks {
		items = append(items, m.keys.Detail)
	}
	return append(items, m.keys.Quit)
}
