// Copyright (c) 2025 MoriitoDev and Ollector contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package tui

import (
	"github.com/charmbracelet/bubbles/key"
)

// =============================================================================
// KEY MAP DEFINITION
// =============================================================================

// KeyMap defines the keyboard bindings of the TUI. Plain letters are never
// bound so typing is unaffected.
type KeyMap struct {
	Submit     key.Binding
	NewSession key.Binding
	Sessions   key.Binding
	Attach     key.Binding
	Speak      key.Binding
	Stop       key.Binding
	PrevTurn   key.Binding
	NextTurn   key.Binding
	PageUp     key.Binding
	PageDown   key.Binding
	PickerUp   key.Binding
	PickerDown key.Binding
	Help       key.Binding
	Quit       key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Submit: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("Enter", "send"),
		),
		NewSession: key.NewBinding(
			key.WithKeys("ctrl+n"),
			key.WithHelp("C-n", "new chat"),
		),
		Sessions: key.NewBinding(
			key.WithKeys("ctrl+o"),
			key.WithHelp("C-o", "open chat"),
		),
		Attach: key.NewBinding(
			key.WithKeys("ctrl+f"),
			key.WithHelp("C-f", "attach file"),
		),
		Speak: key.NewBinding(
			key.WithKeys("ctrl+s"),
			key.WithHelp("C-s", "read aloud"),
		),
		Stop: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("Esc", "stop / back"),
		),
		PrevTurn: key.NewBinding(
			key.WithKeys("alt+up", "ctrl+up"),
			key.WithHelp("M-up", "previous answer"),
		),
		NextTurn: key.NewBinding(
			key.WithKeys("alt+down", "ctrl+down"),
			key.WithHelp("M-down", "next answer"),
		),
		PageUp: key.NewBinding(
			key.WithKeys("pgup"),
			key.WithHelp("PgUp", "scroll up"),
		),
		PageDown: key.NewBinding(
			key.WithKeys("pgdown"),
			key.WithHelp("PgDn", "scroll down"),
		),
		PickerUp: key.NewBinding(
			key.WithKeys("up"),
			key.WithHelp("up", "previous chat"),
		),
		PickerDown: key.NewBinding(
			key.WithKeys("down"),
			key.WithHelp("down", "next chat"),
		),
		Help: key.NewBinding(
			key.WithKeys("f1"),
			key.WithHelp("F1", "help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c", "ctrl+q"),
			key.WithHelp("C-c", "quit"),
		),
	}
}

// ShortHelp implements help.KeyMap.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Submit, k.Sessions, k.NewSession, k.Speak, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Submit, k.Attach, k.NewSession, k.Sessions},
		{k.Speak, k.Stop, k.PrevTurn, k.NextTurn},
		{k.PageUp, k.PageDown, k.Help, k.Quit},
	}
}
