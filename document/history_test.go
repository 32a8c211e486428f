// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

package document

import (
	"testing"
)

func TestUndoRedo(t *testing.T) {
	d := New(Options{Replica: 1})
	a := mustAddObject(t, d, "a", "", "")
	mustCommit(t, d, "add a")
	if err := d.SetText(a, "renamed"); err != nil {
		t.Fatal(err)
	}
	mustCommit(t, d, "rename")

	if d.UndoLabel() != "rename" {
		t.Errorf("UndoLabel = %q, want rename", d.UndoLabel())
	}
	if _, ok := d.Undo(); !ok {
		t.Fatal("Undo reported nothing to undo")
	}
	if object, _ := d.Refresh().Object(a); object.Text != "a" {
		t.Errorf("text after undo = %q, want a", object.Text)
	}
	if !d.CanRedo() || d.RedoLabel() != "rename" {
		t.Errorf("CanRedo = %v, RedoLabel = %q", d.CanRedo(), d.RedoLabel())
	}

	if _, ok := d.Undo(); !ok {
		t.Fatal("second Undo reported nothing to undo")
	}
	if _, ok := d.Refresh().Object(a); ok {
		t.Error("object still live after undoing its creation")
	}
	if d.CanUndo() {
		t.Error("CanUndo true with empty history")
	}
	if _, ok := d.Undo(); ok {
		t.Error("Undo on empty history reported ok")
	}

	d.Redo()
	d.Redo()
	object, ok := d.Refresh().Object(a)
	if !ok || object.Text != "renamed" {
		t.Errorf("after two redos object = %+v, %v", object, ok)
	}
	if d.CanRedo() {
		t.Error("CanRedo true after redoing everything")
	}
}

func TestNewEditClearsRedo(t *testing.T) {
	d := New(Options{Replica: 1})
	a := mustAddObject(t, d, "a", "", "")
	mustCommit(t, d, "add")
	d.Undo()
	if !d.CanRedo() {
		t.Fatal("nothing to redo after undo")
	}
	mustAddObject(t, d, "b", "", "")
	mustCommit(t, d, "add b")
	if d.CanRedo() {
		t.Error("redo stack survived a new edit")
	}
	if _, ok := d.Refresh().Object(a); ok {
		t.Error("undone object is live")
	}
}

func TestUndoCommitsPendingEdits(t *testing.T) {
	d := New(Options{Replica: 1})
	a := mustAddObject(t, d, "a", "", "")
	if !d.CanUndo() {
		t.Error("CanUndo false with pending undoable edit")
	}
	txn, ok := d.Undo()
	if !ok || txn == nil {
		t.Fatalf("Undo = %v, %v", txn, ok)
	}
	if d.HasPending() {
		t.Error("pending edits left after Undo")
	}
	if _, ok := d.Refresh().Object(a); ok {
		t.Error("object live after undoing the pending creation")
	}
	// Creation and reversal both go out.
	if d.OutboxLen() != 2 {
		t.Errorf("OutboxLen = %d, want 2", d.OutboxLen())
	}
}

func TestUndoLeavesOtherReplicasEdits(t *testing.T) {
	alice := New(Options{Replica: 1})
	bob := New(Options{Replica: 2})
	a := mustAddObject(t, alice, "a", "", "")
	mustCommit(t, alice, "add")
	exchange(alice, bob)

	if err := alice.MoveObject(a, Point{X: 10, Y: 10}); err != nil {
		t.Fatal(err)
	}
	if err := alice.SetText(a, "alice"); err != nil {
		t.Fatal(err)
	}
	mustCommit(t, alice, "edit")
	exchange(alice, bob)

	// Bob overwrites the text afterwards.
	if err := bob.SetText(a, "bob"); err != nil {
		t.Fatal(err)
	}
	mustCommit(t, bob, "text")
	exchange(alice, bob)

	if _, ok := alice.Undo(); !ok {
		t.Fatal("Undo reported nothing to undo")
	}
	exchange(alice, bob)

	for name, d := range map[string]*Document{"alice": alice, "bob": bob} {
		object, _ := d.Refresh().Object(a)
		if object.Position != (Point{}) {
			t.Errorf("%s: position = %v, want alice's move undone", name, object.Position)
		}
		if object.Text != "bob" {
			t.Errorf("%s: text = %q, want bob's later edit kept", name, object.Text)
		}
	}

	// Redo reapplies only the register undo reverted.
	alice.Redo()
	exchange(alice, bob)
	object, _ := bob.Refresh().Object(a)
	if object.Position != (Point{X: 10, Y: 10}) || object.Text != "bob" {
		t.Errorf("after redo object = %+v", object)
	}
}

func TestSelectionIsNotUndoable(t *testing.T) {
	d := New(Options{Replica: 1})
	view := d.AddView(1)
	a := mustAddObject(t, d, "a", "", "")
	mustCommit(t, d, "add")
	if err := d.Select(view, a, true); err != nil {
		t.Fatal(err)
	}
	d.Commit("select", false)
	if d.UndoLabel() != "add" {
		t.Errorf("UndoLabel = %q, want add", d.UndoLabel())
	}

	// The view was created in the same commit, but views are not
	// document content.
	d.Undo()
	if _, ok := d.Refresh().View(view); !ok {
		t.Error("undo removed the view")
	}
	if d.CanUndo() {
		t.Error("history not empty after undoing the only entry")
	}
}

func TestGestureCoalescing(t *testing.T) {
	d := New(Options{Replica: 1})
	a := mustAddObject(t, d, "a", "", "")
	mustCommit(t, d, "add")

	for x := 1; x <= 5; x++ {
		if err := d.MoveObject(a, Point{X: float64(x)}); err != nil {
			t.Fatal(err)
		}
		d.Commit("drag", true)
	}
	if !d.InGesture() {
		t.Error("InGesture false during drag")
	}
	d.EndGesture()
	if d.InGesture() {
		t.Error("InGesture true after EndGesture")
	}

	d.Undo()
	if object, _ := d.Refresh().Object(a); object.Position.X != 0 {
		t.Errorf("one undo left x = %v, want the whole drag reverted", object.Position.X)
	}
	if d.UndoLabel() != "add" {
		t.Errorf("UndoLabel = %q, want add", d.UndoLabel())
	}

	d.Redo()
	if object, _ := d.Refresh().Object(a); object.Position.X != 5 {
		t.Errorf("redo x = %v, want 5", object.Position.X)
	}
}

func TestGestureEndedByDifferentLabel(t *testing.T) {
	d := New(Options{Replica: 1})
	a := mustAddObject(t, d, "a", "", "")
	mustCommit(t, d, "add")

	d.MoveObject(a, Point{X: 1})
	d.Commit("drag", true)
	d.ResizeObject(a, Size{Width: 80, Height: 20})
	d.Commit("resize", true)

	if d.UndoLabel() != "resize" {
		t.Fatalf("UndoLabel = %q, want resize", d.UndoLabel())
	}
	d.Undo()
	if d.UndoLabel() != "drag" {
		t.Errorf("UndoLabel = %q, want drag", d.UndoLabel())
	}
}

func TestCancelGesture(t *testing.T) {
	d := New(Options{Replica: 1})
	a := mustAddObject(t, d, "a", "", "")
	mustCommit(t, d, "add")

	drag := d.BeginGesture()
	d.MoveObject(a, Point{X: 3})
	d.Commit("drag", true)
	d.MoveObject(a, Point{X: 7})

	txn, ok := d.CancelGesture(drag, "drag")
	if !ok || txn == nil {
		t.Fatalf("CancelGesture = %v, %v", txn, ok)
	}
	if object, _ := d.Refresh().Object(a); object.Position.X != 0 {
		t.Errorf("x after cancel = %v, want 0", object.Position.X)
	}
	if d.CanRedo() {
		t.Error("cancelled gesture is redoable")
	}
	if d.UndoLabel() != "add" {
		t.Errorf("UndoLabel = %q, want add", d.UndoLabel())
	}
	if _, ok := d.CancelGesture(drag, "drag"); ok {
		t.Error("second CancelGesture reported ok")
	}
	if d.InGesture() {
		t.Error("InGesture true after cancel")
	}
}

func TestCancelGestureSplitByCommit(t *testing.T) {
	d := New(Options{Replica: 1})
	a := mustAddObject(t, d, "a", "", "")
	b := mustAddObject(t, d, "b", "", "")
	mustCommit(t, d, "add")

	drag := d.BeginGesture()
	d.MoveObject(a, Point{X: 30})
	d.Commit("drag", true)
	d.MoveObject(b, Point{Y: 5})
	d.Commit("nudge", false)
	d.MoveObject(a, Point{X: 60})
	d.Commit("drag", true)

	if _, ok := d.CancelGesture(drag, "drag"); !ok {
		t.Fatal("CancelGesture reported nothing to cancel")
	}
	snapshot := d.Refresh()
	if object, _ := snapshot.Object(a); object.Position != (Point{}) {
		t.Errorf("a after cancel = %v, want the origin", object.Position)
	}
	if object, _ := snapshot.Object(b); object.Position != (Point{Y: 5}) {
		t.Errorf("b after cancel = %v, want the nudge kept", object.Position)
	}
	if d.UndoLabel() != "nudge" {
		t.Errorf("UndoLabel = %q, want nudge", d.UndoLabel())
	}
	d.Undo()
	if d.UndoLabel() != "add" {
		t.Errorf("after undoing the nudge UndoLabel = %q, want add", d.UndoLabel())
	}
}

func TestCancelGestureKeepsLaterWrite(t *testing.T) {
	d := New(Options{Replica: 1})
	a := mustAddObject(t, d, "a", "", "")
	mustCommit(t, d, "add")

	drag := d.BeginGesture()
	d.MoveObject(a, Point{X: 30})
	d.Commit("drag", true)
	// A plain commit overwrites the dragged register.
	d.MoveObject(a, Point{X: 45})
	d.Commit("snap", false)

	d.CancelGesture(drag, "drag")
	if object, _ := d.Refresh().Object(a); object.Position.X != 45 {
		t.Errorf("x after cancel = %v, want the later write kept", object.Position.X)
	}
}
