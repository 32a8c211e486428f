// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

package driveui

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/patchbay-collective/patchbay/drive"
	"github.com/patchbay-collective/patchbay/lib/ref"
)

type recordingActions struct {
	calls []string
	order drive.Order
}

func (a *recordingActions) Refresh()                    { a.calls = append(a.calls, "refresh") }
func (a *recordingActions) Open(id ref.DocumentID)      { a.calls = append(a.calls, "open "+id.String()) }
func (a *recordingActions) Trash(id ref.DocumentID)     { a.calls = append(a.calls, "trash "+id.String()) }
func (a *recordingActions) Untrash(id ref.DocumentID)   { a.calls = append(a.calls, "untrash "+id.String()) }
func (a *recordingActions) Duplicate(id ref.DocumentID) { a.calls = append(a.calls, "duplicate "+id.String()) }
func (a *recordingActions) SetOrder(order drive.Order) {
	a.calls = append(a.calls, "sort "+order.Key.String())
	a.order = order
}

func keyPress(s string) tea.KeyMsg {
	switch s {
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	model, ok := next.(Model)
	if !ok {
		t.Fatalf("Update returned %T", next)
	}
	return model, cmd
}

func sampleEntries() []drive.Entry {
	created := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)
	return []drive.Entry{
		{ID: 1, Name: "Arpeggiator", Author: "alice", Created: created},
		{ID: 2, Name: "Bass", Author: "bob", Created: created, Session: 0x77, Opened: created},
		{ID: 3, Name: "Chords", Author: "alice", Created: created, Trashed: true, TrashedAt: created},
	}
}

func TestModelHidesTrashUntilToggled(t *testing.T) {
	actions := &recordingActions{}
	m := NewModel("alice", drive.Order{Key: drive.SortName}, actions)
	if !strings.Contains(m.View(), "loading") {
		t.Errorf("view before the first listing:\n%s", m.View())
	}

	m, _ = update(t, m, EntriesMsg{Entries: sampleEntries(), Order: drive.Order{Key: drive.SortName}})
	if got := len(m.Visible()); got != 2 {
		t.Fatalf("visible rows = %d, want 2 without trash", got)
	}
	view := m.View()
	if !strings.Contains(view, "Bass") || strings.Contains(view, "Chords") {
		t.Errorf("view shows the wrong rows:\n%s", view)
	}

	m, _ = update(t, m, keyPress("T"))
	if got := len(m.Visible()); got != 3 {
		t.Errorf("visible rows with trash = %d, want 3", got)
	}
	if len(actions.calls) != 0 {
		t.Errorf("toggling trash issued %v", actions.calls)
	}
}

func TestModelActionsTargetSelection(t *testing.T) {
	actions := &recordingActions{}
	m := NewModel("alice", drive.Order{Key: drive.SortName}, actions)
	m, _ = update(t, m, EntriesMsg{Entries: sampleEntries(), Order: drive.Order{Key: drive.SortName}})
	m, _ = update(t, m, keyPress("T"))

	m, _ = update(t, m, keyPress("t"))
	m, _ = update(t, m, keyPress("down"))
	m, _ = update(t, m, keyPress("d"))
	m, _ = update(t, m, keyPress("enter"))
	m, _ = update(t, m, keyPress("down"))
	m, _ = update(t, m, keyPress("t"))
	m, _ = update(t, m, keyPress("o"))
	m, _ = update(t, m, keyPress("r"))

	want := []string{"trash 1", "duplicate 2", "open 2", "untrash 3", "refresh"}
	if fmt.Sprint(actions.calls) != fmt.Sprint(want) {
		t.Errorf("calls = %v, want %v", actions.calls, want)
	}
	if !strings.Contains(m.View(), "restore the document") {
		t.Errorf("opening a trashed document gave no notice:\n%s", m.View())
	}
}

func TestModelKeepsCursorAcrossUpdates(t *testing.T) {
	actions := &recordingActions{}
	m := NewModel("alice", drive.Order{Key: drive.SortName}, actions)
	entries := sampleEntries()[:2]
	m, _ = update(t, m, EntriesMsg{Entries: entries, Order: drive.Order{Key: drive.SortName}})
	m, _ = update(t, m, keyPress("down"))

	// A new document sorts before the selected one.
	reordered := append([]drive.Entry{{ID: 9, Name: "Aaa"}}, entries...)
	m, _ = update(t, m, EntriesMsg{Entries: reordered, Order: drive.Order{Key: drive.SortName}})
	if selected, ok := m.Selected(); !ok || selected.ID != 2 {
		t.Errorf("selected = %+v, want document 2", selected)
	}
}

func TestModelSortCycles(t *testing.T) {
	actions := &recordingActions{}
	m := NewModel("alice", drive.Order{Key: drive.SortOpened, TrashedFirst: true}, actions)
	m, _ = update(t, m, keyPress("s"))
	if actions.order.Key != drive.SortName || !actions.order.TrashedFirst {
		t.Errorf("sort after opened = %+v, want name keeping TrashedFirst", actions.order)
	}

	m, _ = update(t, m, EntriesMsg{Order: actions.order})
	if !strings.Contains(m.View(), "sorted by name") {
		t.Errorf("title does not show the new order:\n%s", m.View())
	}
}

func TestModelResultsAndLogout(t *testing.T) {
	actions := &recordingActions{}
	m := NewModel("alice", drive.Order{}, actions)
	m, _ = update(t, m, EntriesMsg{Entries: sampleEntries()})

	m, cmd := update(t, m, ResultMsg{Operation: "open", Entry: drive.Entry{Name: "Bass", Session: 0x77}})
	if cmd == nil {
		t.Error("a result notice did not schedule its fade")
	}
	if !strings.Contains(m.View(), "Bass is live in session 77") {
		t.Errorf("open notice missing:\n%s", m.View())
	}
	m, _ = update(t, m, statusFadeMsg{sequence: m.statusSequence})
	if strings.Contains(m.View(), "live in session") {
		t.Error("notice survived its fade")
	}

	m, _ = update(t, m, ResultMsg{Operation: "trashed", Err: errors.New("remote: 500")})
	stale := m.statusSequence - 1
	m, _ = update(t, m, statusFadeMsg{sequence: stale})
	if !strings.Contains(m.View(), "trashed failed") {
		t.Error("a stale fade cleared the current notice")
	}

	m, _ = update(t, m, LoggedOutMsg{})
	m, _ = update(t, m, keyPress("r"))
	if len(actions.calls) != 0 {
		t.Errorf("actions issued after logout: %v", actions.calls)
	}
	if _, cmd := update(t, m, keyPress("q")); cmd == nil {
		t.Error("quit does not work after logout")
	}
}

func TestModelFilter(t *testing.T) {
	actions := &recordingActions{}
	m := NewModel("alice", drive.Order{Key: drive.SortName}, actions)
	m, _ = update(t, m, EntriesMsg{Entries: sampleEntries(), Order: drive.Order{Key: drive.SortName}})

	m, _ = update(t, m, keyPress("/"))
	// Keys that are bindings elsewhere are typed into the query.
	for _, r := range "bs" {
		m, _ = update(t, m, keyPress(string(r)))
	}
	if len(actions.calls) != 0 {
		t.Errorf("typing a filter issued %v", actions.calls)
	}
	if visible := m.Visible(); len(visible) != 1 || visible[0].Name != "Bass" {
		t.Fatalf("visible while filtering = %+v", visible)
	}

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if !strings.Contains(m.View(), "filter: bs") {
		t.Errorf("applied filter not shown:\n%s", m.View())
	}
	m, _ = update(t, m, keyPress("o"))
	if fmt.Sprint(actions.calls) != "[open 2]" {
		t.Errorf("calls after filter = %v", actions.calls)
	}

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if got := len(m.Visible()); got != 2 {
		t.Errorf("visible after clearing the filter = %d, want 2", got)
	}
}
