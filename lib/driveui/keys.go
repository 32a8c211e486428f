// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

package driveui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the browser's key bindings. Row movement is handled
// by the table's own bindings.
type KeyMap struct {
	Refresh     key.Binding
	Open        key.Binding
	Trash       key.Binding
	Duplicate   key.Binding
	Sort        key.Binding
	ShowTrashed key.Binding
	Filter      key.Binding
	Quit        key.Binding
}

// DefaultKeyMap is the built-in key binding set.
var DefaultKeyMap = KeyMap{
	Refresh: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "refresh"),
	),
	Open: key.NewBinding(
		key.WithKeys("o", "enter"),
		key.WithHelp("o", "open session"),
	),
	Trash: key.NewBinding(
		key.WithKeys("t", "delete"),
		key.WithHelp("t", "trash/restore"),
	),
	Duplicate: key.NewBinding(
		key.WithKeys("d"),
		key.WithHelp("d", "duplicate"),
	),
	Sort: key.NewBinding(
		key.WithKeys("s"),
		key.WithHelp("s", "sort"),
	),
	ShowTrashed: key.NewBinding(
		key.WithKeys("T"),
		key.WithHelp("T", "show trash"),
	),
	Filter: key.NewBinding(
		key.WithKeys("/"),
		key.WithHelp("/", "filter"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// ShortHelp implements help.KeyMap.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Open, k.Trash, k.Duplicate, k.Sort, k.ShowTrashed, k.Filter, k.Refresh, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k KeyMap) FullHelp() [][]key.Binding { return [][]key.Binding{k.ShortHelp()} }
