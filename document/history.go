// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

package document

import "slices"

const defaultHistoryLimit = 512

// change is one register in an undo entry: the value before the entry,
// the value after it, and the stamp of the write that is "ours". Undo
// and redo only touch a register whose winning stamp still equals
// stamp. prior is the stamp the register held before the entry.
type change struct {
	key    Key
	before Value
	after  Value
	stamp  Stamp
	prior  Stamp
}

type entry struct {
	label   string
	gesture bool
	open    bool
	owner   GestureID
	changes []change
	index   map[Key]int
}

// GestureID names a gesture started with BeginGesture. Zero is no
// gesture.
type GestureID uint64

type history struct {
	undo  []*entry
	redo  []*entry
	limit int
}

// record adds the undoable writes of a committed pending transaction.
func (h *history) record(label string, gesture bool, owner GestureID, p *pending, stamp Stamp, undoable func(Key) bool) {
	var changes []change
	for _, key := range p.order {
		if !undoable(key) {
			continue
		}
		changes = append(changes, change{
			key:    key,
			before: p.before[key].value,
			after:  p.ops[p.index[key]].Value,
			stamp:  stamp,
			prior:  p.before[key].stamp,
		})
	}
	if len(changes) == 0 {
		return
	}
	h.redo = nil

	if top := h.top(); top != nil && top.open {
		if gesture && top.label == label && top.owner == owner {
			for _, c := range changes {
				if i, ok := top.index[c.key]; ok {
					top.changes[i].after = c.after
					top.changes[i].stamp = c.stamp
					continue
				}
				top.index[c.key] = len(top.changes)
				top.changes = append(top.changes, c)
			}
			return
		}
		top.open = false
	}

	e := &entry{label: label, gesture: gesture, open: gesture, owner: owner, changes: changes, index: make(map[Key]int, len(changes))}
	for i, c := range changes {
		e.index[c.key] = i
	}
	h.undo = append(h.undo, e)
	if h.limit > 0 && len(h.undo) > h.limit {
		h.undo = h.undo[len(h.undo)-h.limit:]
	}
}

func (h *history) top() *entry {
	if len(h.undo) == 0 {
		return nil
	}
	return h.undo[len(h.undo)-1]
}

// EndGesture closes the open gesture entry, if any, so the next gesture
// commit starts a new undo entry.
func (d *Document) EndGesture() {
	if top := d.history.top(); top != nil {
		top.open = false
	}
}

// BeginGesture closes any open gesture entry and starts a new gesture.
// Gesture commits until FinishGesture or CancelGesture belong to it,
// including segments split off by plain commits made in between.
func (d *Document) BeginGesture() GestureID {
	d.EndGesture()
	d.gestures++
	d.gesture = GestureID(d.gestures)
	return d.gesture
}

// FinishGesture closes gesture id's entry. Its segments stay in
// history as ordinary undo entries.
func (d *Document) FinishGesture(id GestureID) {
	if d.gesture == id {
		d.gesture = 0
	}
	d.EndGesture()
}

// InGesture reports whether the latest undo entry is an open gesture.
func (d *Document) InGesture() bool {
	top := d.history.top()
	return top != nil && top.open
}

// CanUndo reports whether Undo has an entry to revert.
func (d *Document) CanUndo() bool { return len(d.history.undo) > 0 || d.pendingUndoable() }

// CanRedo reports whether Redo has an entry to reapply.
func (d *Document) CanRedo() bool { return len(d.history.redo) > 0 }

// UndoLabel returns the label of the entry Undo would revert.
func (d *Document) UndoLabel() string {
	if top := d.history.top(); top != nil {
		return top.label
	}
	return ""
}

// RedoLabel returns the label of the entry Redo would reapply.
func (d *Document) RedoLabel() string {
	if len(d.history.redo) == 0 {
		return ""
	}
	return d.history.redo[len(d.history.redo)-1].label
}

func (d *Document) pendingUndoable() bool {
	if d.pending == nil {
		return false
	}
	return slices.ContainsFunc(d.pending.order, d.undoable)
}

// undoable reports whether writes to key enter history. Views are
// per-client state, so nothing about them is undoable.
func (d *Document) undoable(key Key) bool {
	return key.Field.undoable() && d.kinds[key.Entity] != KindView
}

// Undo reverts the latest undo entry and commits the reversal as a new
// transaction. Pending edits are committed first, unlabelled. Registers
// another replica has overwritten since the entry was made are left
// alone. Returns the reversal transaction, or nil if nothing was
// written; ok is false when there was nothing to undo.
func (d *Document) Undo() (txn *Transaction, ok bool) {
	d.Commit("", false)
	e := d.popUndo()
	if e == nil {
		return nil, false
	}
	txn = d.rewind(e, true)
	d.history.redo = append(d.history.redo, e)
	return txn, true
}

// Redo reapplies the latest undone entry.
func (d *Document) Redo() (txn *Transaction, ok bool) {
	d.Commit("", false)
	if len(d.history.redo) == 0 {
		return nil, false
	}
	e := d.history.redo[len(d.history.redo)-1]
	d.history.redo = d.history.redo[:len(d.history.redo)-1]
	txn = d.rewind(e, false)
	d.history.undo = append(d.history.undo, e)
	return txn, true
}

// CancelGesture reverts every undo entry gesture id made and drops them
// from history without making them redoable. When id is the current
// gesture, pending edits are committed into it first. Registers written
// after a segment by anyone else keep their value. The reversal is one
// transaction labelled label. Returns false when the gesture left
// nothing to cancel.
func (d *Document) CancelGesture(id GestureID, label string) (*Transaction, bool) {
	if id == 0 {
		return nil, false
	}
	if d.gesture == id {
		if d.pending != nil {
			d.Commit(label, true)
		}
		d.gesture = 0
	}

	var owned []*entry
	d.history.undo = slices.DeleteFunc(d.history.undo, func(e *entry) bool {
		if e.owner != id {
			return false
		}
		owned = append(owned, e)
		return true
	})
	// Undone segments are already reverted.
	d.history.redo = slices.DeleteFunc(d.history.redo, func(e *entry) bool { return e.owner == id })
	if len(owned) == 0 {
		return nil, false
	}

	// Walk the segments newest first. expect tracks the stamp each
	// register would hold had the newer segments never happened, so an
	// older segment is reverted only where it is still the latest
	// write in that chain.
	expect := make(map[Key]Stamp)
	revert := make(map[Key]Value)
	var order []Key
	for i := len(owned) - 1; i >= 0; i-- {
		changes := owned[i].changes
		for j := len(changes) - 1; j >= 0; j-- {
			c := changes[j]
			current, ok := expect[c.key]
			if !ok {
				current = d.registers[c.key].stamp
			}
			if current != c.stamp {
				continue
			}
			if _, seen := revert[c.key]; !seen {
				order = append(order, c.key)
			}
			revert[c.key] = c.before
			expect[c.key] = c.prior
		}
	}
	for _, key := range order {
		d.write(key, revert[key])
	}
	if d.pending == nil {
		return nil, true
	}
	d.pending.undoing = true
	return d.Commit(label, false), true
}

func (d *Document) popUndo() *entry {
	top := d.history.top()
	if top == nil {
		return nil
	}
	top.open = false
	d.history.undo = d.history.undo[:len(d.history.undo)-1]
	return top
}

// rewind writes the before (backward) or after (forward) values of e
// for every register that still holds e's stamp, commits them, and
// moves those stamps to the new transaction.
func (d *Document) rewind(e *entry, backward bool) *Transaction {
	var touched []int
	for i := len(e.changes) - 1; i >= 0; i-- {
		c := e.changes[i]
		if d.registers[c.key].stamp != c.stamp {
			continue
		}
		value := c.after
		if backward {
			value = c.before
		}
		d.write(c.key, value)
		touched = append(touched, i)
	}
	if d.pending == nil {
		return nil
	}
	d.pending.undoing = true
	txn := d.Commit(e.label, false)
	for _, i := range touched {
		e.changes[i].stamp = txn.Stamp()
	}
	return txn
}
