// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

package patcher

import (
	"slices"

	"github.com/patchbay-collective/patchbay/document"
	"github.com/patchbay-collective/patchbay/lib/cycle"
	"github.com/patchbay-collective/patchbay/lib/ref"
	"github.com/patchbay-collective/patchbay/lib/selection"
)

// changed runs one reconciliation pass over the current document and
// notifies listeners. applied is true when the pass follows an applied
// transaction. The passes only read the projection.
func (m *Manager) changed(applied bool) {
	patcher := m.document.Refresh()

	event := cycle.Event{Kind: cycle.EventNone}
	m.guard("cycle detection", func() {
		event = m.detector.Check(controlEdges(patcher))
	})

	state := selectionState(patcher, m.localUser, m.connected)
	views := slices.Clone(m.views)
	changes := make([][]selection.Change, len(views))
	for i, view := range views {
		m.guard("selection reconciliation", func() {
			changes[i] = view.reconciler.Reconcile(state)
		})
	}

	if applied {
		for _, view := range views {
			if !view.closed {
				m.listener.DocumentChanged(m, view)
			}
		}
	}
	for i, view := range views {
		for _, change := range changes[i] {
			if !view.closed {
				m.listener.SelectionChanged(view, change)
			}
		}
	}
	switch event.Kind {
	case cycle.EventDetected:
		m.logger.Warn("stack overflow detected", "cycle", event.Cycle.String())
		m.listener.StackOverflowDetected(m, event.Cycle.Refs())
	case cycle.EventCleared:
		m.logger.Info("stack overflow cleared")
		m.listener.StackOverflowCleared(m)
	}
}

// guard runs one pass. A panic is an invariant violation: it
// propagates in debug builds and is logged and skipped otherwise.
func (m *Manager) guard(pass string, fn func()) {
	defer func() {
		if recovered := recover(); recovered != nil {
			if m.context.Config.Debug {
				panic(recovered)
			}
			m.logger.Error("reconciliation pass failed", "pass", pass, "panic", recovered)
		}
	}()
	fn()
}

func controlEdges(patcher *document.Patcher) []cycle.Edge {
	var edges []cycle.Edge
	for _, link := range patcher.Links {
		if link.Control {
			edges = append(edges, cycle.Edge{Link: link.Ref, From: link.Sender, To: link.Receiver})
		}
	}
	return edges
}

func selectionState(patcher *document.Patcher, local ref.UserID, connected []ref.UserID) selection.State {
	state := selection.State{
		Entities:  make([]ref.Ref, 0, len(patcher.Objects)+len(patcher.Links)),
		LocalUser: local,
		Connected: connected,
	}
	for _, object := range patcher.Objects {
		state.Entities = append(state.Entities, object.Ref)
	}
	for _, link := range patcher.Links {
		state.Entities = append(state.Entities, link.Ref)
	}
	for _, user := range patcher.Users {
		input := selection.User{ID: user.ID}
		for _, viewRef := range user.Views {
			view, ok := patcher.View(viewRef)
			if !ok {
				continue
			}
			input.Views = append(input.Views, selection.View{
				Ref:      view.Ref,
				Selected: append(view.SelectedObjects(), view.SelectedLinks()...),
			})
		}
		state.Users = append(state.Users, input)
	}
	return state
}
