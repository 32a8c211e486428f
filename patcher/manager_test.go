// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

package patcher

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/patchbay-collective/patchbay/document"
	"github.com/patchbay-collective/patchbay/lib/clock"
	"github.com/patchbay-collective/patchbay/lib/config"
	"github.com/patchbay-collective/patchbay/lib/loop"
	"github.com/patchbay-collective/patchbay/lib/ref"
	"github.com/patchbay-collective/patchbay/lib/selection"
	"github.com/patchbay-collective/patchbay/lib/snapshot"
	"github.com/patchbay-collective/patchbay/transport"
)

var epoch = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

// recorder logs notifications as short strings.
type recorder struct {
	NopListener
	events   []string
	users    [][]ref.UserID
	states   []transport.State
	overflow []ref.Ref
	closed   int
}

func (r *recorder) DocumentChanged(_ *Manager, view *View) {
	r.events = append(r.events, "document "+view.Ref().String())
}

func (r *recorder) SelectionChanged(view *View, change selection.Change) {
	r.events = append(r.events, fmt.Sprintf("selection %s %s", view.Ref(), change.Entity))
}

func (r *recorder) ConnectedUsersChanged(_ *Manager, users []ref.UserID) {
	r.users = append(r.users, users)
}

func (r *recorder) StackOverflowDetected(_ *Manager, refs []ref.Ref) {
	r.events = append(r.events, "overflow")
	r.overflow = refs
}

func (r *recorder) StackOverflowCleared(*Manager) {
	r.events = append(r.events, "cleared")
}

func (r *recorder) ConnectionStateChanged(_ *Manager, state transport.State) {
	r.states = append(r.states, state)
}

func (r *recorder) Closed(*Manager) { r.closed++ }

func (r *recorder) take() []string {
	events := r.events
	r.events = nil
	return events
}

func testContext(t *testing.T) (Context, *clock.FakeClock) {
	t.Helper()
	clk := clock.Fake(epoch)
	l := loop.New(nil)
	t.Cleanup(l.Close)
	return Context{
		Config: config.Default(),
		Logger: slog.New(slog.DiscardHandler),
		Clock:  clk,
		Loop:   l,
	}, clk
}

func newTestManager(t *testing.T) (*Manager, *recorder) {
	t.Helper()
	ctx, _ := testContext(t)
	rec := &recorder{}
	return New(ctx, Options{Name: "test", Listener: rec}), rec
}

func mustView(t *testing.T, m *Manager) *View {
	t.Helper()
	view, err := m.NewView()
	if err != nil {
		t.Fatalf("NewView: %v", err)
	}
	return view
}

func addObject(t *testing.T, m *Manager, text, inlets, outlets string) ref.Ref {
	t.Helper()
	entity, err := m.Document().AddObject(document.ObjectSpec{Text: text, Inlets: inlets, Outlets: outlets})
	if err != nil {
		t.Fatalf("AddObject(%q): %v", text, err)
	}
	return entity
}

func addLink(t *testing.T, m *Manager, from, to ref.Ref) ref.Ref {
	t.Helper()
	entity, err := m.Document().AddLink(document.LinkEnds{Sender: from, Receiver: to})
	if err != nil {
		t.Fatalf("AddLink: %v", err)
	}
	return entity
}

func position(t *testing.T, m *Manager, entity ref.Ref) document.Point {
	t.Helper()
	object, ok := m.Patcher().Object(entity)
	if !ok {
		t.Fatalf("object %s not in the projection", entity)
	}
	return object.Position
}

func TestCommitNotifiesEveryView(t *testing.T) {
	m, rec := newTestManager(t)
	first := mustView(t, m)
	second := mustView(t, m)
	rec.take()

	addObject(t, m, "osc~", "c", "s")
	if txn := m.Commit("add"); txn == nil {
		t.Fatal("Commit returned nil with a pending edit")
	}
	want := []string{"document " + first.Ref().String(), "document " + second.Ref().String()}
	if got := rec.take(); !slices.Equal(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}

	if txn := m.Commit("nothing"); txn != nil || len(rec.take()) != 0 {
		t.Error("an empty Commit produced a transaction or notifications")
	}
	if m.Unsent() != 3 {
		t.Errorf("Unsent = %d offline, want 3 (two views and the object)", m.Unsent())
	}
}

func TestUndoRedo(t *testing.T) {
	m, _ := newTestManager(t)
	mustView(t, m)
	object := addObject(t, m, "metro 250", "cc", "c")
	m.Commit("add")
	m.Document().MoveObject(object, document.Point{X: 100, Y: 40})
	m.Commit("move")

	if !m.CanUndo() || m.UndoLabel() != "move" {
		t.Fatalf("CanUndo = %v, UndoLabel = %q", m.CanUndo(), m.UndoLabel())
	}
	if !m.Undo() {
		t.Fatal("Undo reported nothing to undo")
	}
	if got := position(t, m, object); got != (document.Point{}) {
		t.Errorf("position after undo = %v", got)
	}
	if !m.CanRedo() || m.RedoLabel() != "move" {
		t.Errorf("CanRedo = %v, RedoLabel = %q", m.CanRedo(), m.RedoLabel())
	}
	m.Redo()
	if got := position(t, m, object); got != (document.Point{X: 100, Y: 40}) {
		t.Errorf("position after redo = %v", got)
	}

	m.Undo()
	m.Undo()
	if m.CanUndo() {
		t.Errorf("CanUndo after undoing everything; next label %q", m.UndoLabel())
	}
	if len(m.Patcher().Objects) != 0 {
		t.Error("undoing the add left the object")
	}
}

func TestGestureCollapsesIntoOneUndoEntry(t *testing.T) {
	m, _ := newTestManager(t)
	view := mustView(t, m)
	object := addObject(t, m, "line", "c", "c")
	m.Commit("add")

	drag := m.BeginGesture("drag")
	for i := 1; i <= 5; i++ {
		m.Document().MoveObject(object, document.Point{X: float64(10 * i)})
		if drag.Step() == nil {
			t.Fatalf("step %d committed nothing", i)
		}
	}
	// A view setter in the middle of the drag is not undoable.
	view.SetZoom(2)
	drag.End()
	drag.End()
	if drag.Active() {
		t.Error("gesture still active after End")
	}

	if m.UndoLabel() != "drag" {
		t.Fatalf("UndoLabel = %q, want drag", m.UndoLabel())
	}
	m.Undo()
	if got := position(t, m, object); got != (document.Point{}) {
		t.Errorf("one undo left the object at %v", got)
	}
	if m.UndoLabel() != "add" {
		t.Errorf("after undoing the drag UndoLabel = %q, want add", m.UndoLabel())
	}
	if v, _ := m.Patcher().View(view.Ref()); v.Zoom != 2 {
		t.Errorf("undo reverted the zoom to %v", v.Zoom)
	}
}

func TestGestureCancel(t *testing.T) {
	m, _ := newTestManager(t)
	mustView(t, m)
	object := addObject(t, m, "line", "c", "c")
	m.Commit("add")

	drag := m.BeginGesture("drag")
	m.Document().MoveObject(object, document.Point{X: 30})
	drag.Step()
	m.Document().MoveObject(object, document.Point{X: 60})
	drag.Cancel()
	drag.End()

	if got := position(t, m, object); got != (document.Point{}) {
		t.Errorf("cancelled gesture left the object at %v", got)
	}
	if m.CanRedo() {
		t.Error("a cancelled gesture is redoable")
	}
	if m.UndoLabel() != "add" {
		t.Errorf("UndoLabel = %q, want add", m.UndoLabel())
	}
}

func TestGestureCancelRevertsEverySegment(t *testing.T) {
	m, _ := newTestManager(t)
	mustView(t, m)
	a := addObject(t, m, "line", "c", "c")
	b := addObject(t, m, "line", "c", "c")
	m.Commit("add")

	drag := m.BeginGesture("drag")
	m.Document().MoveObject(a, document.Point{X: 30})
	drag.Step()
	m.Document().MoveObject(b, document.Point{Y: 12})
	m.Commit("nudge")
	m.Document().MoveObject(a, document.Point{X: 60})
	drag.Step()
	drag.Cancel()

	if got := position(t, m, a); got != (document.Point{}) {
		t.Errorf("cancelled gesture left a at %v", got)
	}
	if got := position(t, m, b); got != (document.Point{Y: 12}) {
		t.Errorf("cancel moved b to %v, want the nudge kept", got)
	}
	if m.UndoLabel() != "nudge" {
		t.Errorf("UndoLabel = %q, want nudge", m.UndoLabel())
	}
	if m.CanRedo() {
		t.Error("a cancelled gesture is redoable")
	}
}

func TestGestureEndsOnEveryExitPath(t *testing.T) {
	m, _ := newTestManager(t)
	mustView(t, m)
	object := addObject(t, m, "line", "c", "c")
	m.Commit("add")

	errStop := errors.New("stop")
	drag := func() (err error) {
		g := m.BeginGesture("drag")
		defer g.End()
		m.Document().MoveObject(object, document.Point{Y: 5})
		g.Step()
		m.Document().MoveObject(object, document.Point{Y: 9})
		return errStop
	}
	if err := drag(); !errors.Is(err, errStop) {
		t.Fatal(err)
	}
	if m.Document().HasPending() || m.Document().InGesture() {
		t.Error("early return left the gesture open")
	}
	if got := position(t, m, object); got.Y != 9 {
		t.Errorf("position = %v, want the last step", got)
	}

	// The next gesture starts a new entry.
	second := m.BeginGesture("drag")
	m.Document().MoveObject(object, document.Point{Y: 20})
	second.End()
	m.Undo()
	if got := position(t, m, object); got.Y != 9 {
		t.Errorf("undo of the second drag moved to %v, want 9", got)
	}
}

// Objects A and B linked A→B, then B→A: the loop is reported with both
// objects; removing A→B clears it.
func TestStackOverflowDetection(t *testing.T) {
	m, rec := newTestManager(t)
	view := mustView(t, m)
	a := addObject(t, m, "A", "c", "c")
	b := addObject(t, m, "B", "c", "c")
	forward := addLink(t, m, a, b)
	m.Commit("patch")
	rec.take()

	back := addLink(t, m, b, a)
	m.Commit("connect")
	want := []string{"document " + view.Ref().String(), "overflow"}
	if got := rec.take(); !slices.Equal(got, want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for _, entity := range []ref.Ref{a, b, forward, back} {
		if !slices.Contains(rec.overflow, entity) {
			t.Errorf("reported cycle %v lacks %s", rec.overflow, entity)
		}
	}

	// Unrelated edits do not repeat the report.
	addObject(t, m, "C", "", "")
	m.Commit("add")
	if got := rec.take(); slices.Contains(got, "overflow") {
		t.Errorf("unrelated edit re-reported the cycle: %v", got)
	}

	m.Document().RemoveLink(forward)
	m.Commit("disconnect")
	if got := rec.take(); !slices.Contains(got, "cleared") {
		t.Errorf("events after breaking the loop = %v, want cleared", got)
	}
}

func TestSignalLinksNeverOverflow(t *testing.T) {
	m, rec := newTestManager(t)
	mustView(t, m)
	a := addObject(t, m, "A~", "s", "s")
	b := addObject(t, m, "B~", "s", "s")
	addLink(t, m, a, b)
	addLink(t, m, b, a)
	m.Commit("patch")
	if slices.Contains(rec.take(), "overflow") {
		t.Error("a loop of signal links was reported")
	}
}

// Two views of one user: a selection in the first is local there and
// other-local-view in the second.
func TestSelectionAcrossLocalViews(t *testing.T) {
	m, rec := newTestManager(t)
	first := mustView(t, m)
	second := mustView(t, m)
	x := addObject(t, m, "X", "", "")
	m.Commit("add")
	rec.take()

	if err := first.Select(x, true); err != nil {
		t.Fatalf("Select: %v", err)
	}
	if got := first.Classify(x); !got.Equal(selection.Classification{Local: true}) {
		t.Errorf("first view classifies %+v", got)
	}
	if got := second.Classify(x); !got.Equal(selection.Classification{OtherLocalView: true}) {
		t.Errorf("second view classifies %+v", got)
	}
	want := []string{
		"document " + first.Ref().String(),
		"document " + second.Ref().String(),
		"selection " + first.Ref().String() + " " + x.String(),
		"selection " + second.Ref().String() + " " + x.String(),
	}
	if got := rec.take(); !slices.Equal(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
	if got := first.LocalSelection(); !slices.Equal(got, []ref.Ref{x}) {
		t.Errorf("LocalSelection = %v", got)
	}
	if m.CanUndo() && m.UndoLabel() != "add" {
		t.Errorf("selection entered history as %q", m.UndoLabel())
	}

	first.ClearSelection()
	if !first.Classify(x).IsZero() || !second.Classify(x).IsZero() {
		t.Error("cleared selection still classified")
	}
}

func TestGuardPolicy(t *testing.T) {
	m, _ := newTestManager(t)
	m.guard("test", func() { panic("broken invariant") })

	m.context.Config.Debug = true
	defer func() {
		if recover() == nil {
			t.Error("debug guard swallowed the panic")
		}
	}()
	m.guard("test", func() { panic("broken invariant") })
}

func TestClosingLastViewDestroys(t *testing.T) {
	m, rec := newTestManager(t)
	first := mustView(t, m)
	second := mustView(t, m)
	hooks := 0
	m.OnClosed(func(*Manager) { hooks++ })

	first.Close()
	first.Close()
	if m.Closed() {
		t.Fatal("closing one of two views destroyed the manager")
	}
	if len(m.Views()) != 1 || len(m.Patcher().Views) != 1 {
		t.Errorf("views = %d, projection views = %d", len(m.Views()), len(m.Patcher().Views))
	}
	if err := first.Select(ref.New(1, 1), true); !errors.Is(err, ErrClosed) {
		t.Errorf("Select on a closed view = %v", err)
	}

	second.Close()
	if !m.Closed() || rec.closed != 1 || hooks != 1 {
		t.Fatalf("Closed = %v, listener = %d, hooks = %d", m.Closed(), rec.closed, hooks)
	}
	if _, err := m.NewView(); !errors.Is(err, ErrClosed) {
		t.Errorf("NewView after destroy = %v", err)
	}
	if m.Commit("late") != nil || m.Undo() {
		t.Error("edits accepted after destroy")
	}
	m.ForceClose()
	if rec.closed != 1 {
		t.Error("ForceClose after destroy notified again")
	}
}

func TestSaveOpenRoundTrip(t *testing.T) {
	ctx, _ := testContext(t)
	m := New(ctx, Options{})
	mustView(t, m)
	a := addObject(t, m, "osc~ 220", "cs", "s")
	b := addObject(t, m, "dac~", "ss", "")
	m.Document().MoveObject(b, document.Point{X: 10, Y: 80})
	if _, err := m.Document().AddLink(document.LinkEnds{Sender: a, Receiver: b, Inlet: 1}); err != nil {
		t.Fatal(err)
	}
	m.Commit("patch")

	path := filepath.Join(t.TempDir(), "drone.pbsn")
	if err := m.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if m.Path() != path {
		t.Errorf("Path = %q", m.Path())
	}

	loaded, err := Open(ctx, path, Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if loaded.Name() != path {
		t.Errorf("Name = %q, want the path", loaded.Name())
	}
	objects := loaded.Patcher().Objects
	if len(objects) != 2 || objects[1].Text != "dac~" || objects[1].Position != (document.Point{X: 10, Y: 80}) {
		t.Errorf("loaded objects = %+v", objects)
	}
	if links := loaded.Patcher().Links; len(links) != 1 || links[0].Control {
		t.Errorf("loaded links = %+v", links)
	}
	if loaded.CanUndo() {
		t.Error("loading is undoable")
	}

	if _, err := Open(ctx, path, Options{}); !errors.Is(err, snapshot.ErrLocked) {
		t.Errorf("second Open = %v, want ErrLocked", err)
	}
	loaded.ForceClose()
	again, err := Open(ctx, path, Options{})
	if err != nil {
		t.Fatalf("Open after close: %v", err)
	}
	again.ForceClose()
}

func TestOpenRefusesOtherSchemas(t *testing.T) {
	ctx, _ := testContext(t)
	path := filepath.Join(t.TempDir(), "old.pbsn")
	if err := snapshot.Save(path, "patchbay.document/2", []byte{0xa0}, snapshot.CompressionNone); err != nil {
		t.Fatal(err)
	}

	_, err := Open(ctx, path, Options{})
	var incompatible *snapshot.IncompatibleVersionError
	if !errors.As(err, &incompatible) || incompatible.Found != "patchbay.document/2" {
		t.Fatalf("Open = %v, want IncompatibleVersionError", err)
	}

	// The failed open released its lock.
	lock, err := snapshot.Lock(path)
	if err != nil {
		t.Fatalf("lock still held: %v", err)
	}
	lock.Unlock()

	if _, err := Open(ctx, filepath.Join(t.TempDir(), "missing.pbsn"), Options{}); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Open of a missing file = %v", err)
	}
}

func TestExportImport(t *testing.T) {
	ctx, _ := testContext(t)
	m := New(ctx, Options{})
	addObject(t, m, "noise~", "", "s")
	m.Commit("add")

	data, err := m.Export()
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	imported, err := Import(ctx, data, Options{Name: "copy"})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if objects := imported.Patcher().Objects; len(objects) != 1 || objects[0].Text != "noise~" {
		t.Errorf("imported objects = %+v", objects)
	}
	if _, err := Import(ctx, []byte("garbage"), Options{}); !errors.Is(err, snapshot.ErrCorrupt) {
		t.Errorf("Import of garbage = %v", err)
	}
}

func TestConnectWithoutDialer(t *testing.T) {
	m, _ := newTestManager(t)
	if err := m.Connect(t.Context(), transport.Endpoint{}); !errors.Is(err, ErrOffline) {
		t.Errorf("Connect = %v, want ErrOffline", err)
	}
}
