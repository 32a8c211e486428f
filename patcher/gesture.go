// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

package patcher

import "github.com/patchbay-collective/patchbay/document"

// Gesture is a continuous interaction in progress. Every Step commits
// into the same undo entry; End or Cancel finishes the gesture. A plain
// Commit made during the gesture splits it into segments, and Cancel
// reverts all of them.
type Gesture struct {
	manager *Manager
	id      document.GestureID
	label   string
	done    bool
}

// BeginGesture starts a gesture labelled label. Any gesture entry
// still open is closed first, so two gestures never share an entry.
func (m *Manager) BeginGesture(label string) *Gesture {
	if m.closed {
		return &Gesture{manager: m, label: label, done: true}
	}
	return &Gesture{manager: m, id: m.document.BeginGesture(), label: label}
}

// Label returns the gesture's undo label.
func (g *Gesture) Label() string { return g.label }

// Active reports whether neither End nor Cancel has been called.
func (g *Gesture) Active() bool { return !g.done }

// Step commits the edits made since the previous step.
func (g *Gesture) Step() *document.Transaction {
	if g.done {
		return nil
	}
	return g.manager.CommitGesture(g.label)
}

// End commits outstanding edits and closes the undo entry. Idempotent;
// a no-op after Cancel.
func (g *Gesture) End() {
	if g.done {
		return
	}
	g.done = true
	if g.manager.closed {
		return
	}
	g.manager.CommitGesture(g.label)
	g.manager.document.FinishGesture(g.id)
}

// Cancel reverts everything the gesture did, including uncommitted
// edits, and drops its undo entries. Registers someone else wrote since
// keep their value. Idempotent; a no-op after End.
func (g *Gesture) Cancel() {
	if g.done {
		return
	}
	g.done = true
	if g.manager.closed {
		return
	}
	txn, _ := g.manager.document.CancelGesture(g.id, g.label)
	g.manager.afterRewind(txn)
}
