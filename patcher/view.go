// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

package patcher

import (
	"github.com/patchbay-collective/patchbay/lib/ref"
	"github.com/patchbay-collective/patchbay/lib/selection"
)

// View is one open window onto a manager's document. It holds only
// its view Ref and the derived selection cache; selection itself lives
// in the document's replicated view registers.
type View struct {
	manager    *Manager
	ref        ref.Ref
	reconciler *selection.Reconciler
	closed     bool
}

func newView(m *Manager, entity ref.Ref) *View {
	return &View{manager: m, ref: entity, reconciler: selection.New(entity)}
}

// Ref returns the document Ref of the view.
func (v *View) Ref() ref.Ref { return v.ref }

// Manager returns the owning manager.
func (v *View) Manager() *Manager { return v.manager }

// Closed reports whether Close has been called.
func (v *View) Closed() bool { return v.closed }

// Select sets whether the view selects an object or link and commits
// the change. Pending edits are committed with it, unlabelled.
func (v *View) Select(entity ref.Ref, selected bool) error {
	if v.closed {
		return ErrClosed
	}
	if err := v.manager.document.Select(v.ref, entity, selected); err != nil {
		return err
	}
	v.manager.commit("", false)
	return nil
}

// ClearSelection deselects everything in the view.
func (v *View) ClearSelection() error {
	if v.closed {
		return ErrClosed
	}
	if err := v.manager.document.ClearSelection(v.ref); err != nil {
		return err
	}
	v.manager.commit("", false)
	return nil
}

// SetZoom sets the view's zoom factor.
func (v *View) SetZoom(zoom float64) error {
	if v.closed {
		return ErrClosed
	}
	if err := v.manager.document.SetViewZoom(v.ref, zoom); err != nil {
		return err
	}
	v.manager.commit("", false)
	return nil
}

// SetLocked sets the view's lock flag.
func (v *View) SetLocked(locked bool) error {
	if v.closed {
		return ErrClosed
	}
	if err := v.manager.document.SetViewLocked(v.ref, locked); err != nil {
		return err
	}
	v.manager.commit("", false)
	return nil
}

// Classify returns the selection classification of entity relative to
// this view, as of the latest pass.
func (v *View) Classify(entity ref.Ref) selection.Classification {
	return v.reconciler.Classify(entity)
}

// LocalSelection returns the entities selected in this view, sorted.
func (v *View) LocalSelection() []ref.Ref { return v.reconciler.LocalSelection() }

// DistantSelection returns, per entity, the connected users other than
// the local one selecting it.
func (v *View) DistantSelection() map[ref.Ref][]ref.UserID {
	return v.reconciler.DistantSelection()
}

// Close removes the view from the document. Closing the last view
// destroys the manager. Idempotent.
func (v *View) Close() {
	if v.closed {
		return
	}
	v.closed = true
	if v.manager.closed {
		return
	}
	v.manager.removeView(v)
}
