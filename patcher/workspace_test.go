// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

package patcher

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/patchbay-collective/patchbay/transport"
)

func TestWorkspaceUntitled(t *testing.T) {
	ctx, _ := testContext(t)
	w := NewWorkspace(ctx)
	first := w.New(Options{})
	second := w.New(Options{})
	if first.Name() != "untitled 1" || second.Name() != "untitled 2" {
		t.Errorf("names = %q, %q", first.Name(), second.Name())
	}
	if w.Len() != 2 {
		t.Fatalf("Len = %d", w.Len())
	}
	first.ForceClose()
	if managers := w.Managers(); len(managers) != 1 || managers[0] != second {
		t.Errorf("Managers after close = %v", managers)
	}
}

func TestWorkspaceOpenFileOnce(t *testing.T) {
	ctx, _ := testContext(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "bells.pbsn")
	seed := New(ctx, Options{})
	addObject(t, seed, "bell~", "", "s")
	seed.Commit("add")
	if err := seed.Save(path); err != nil {
		t.Fatal(err)
	}

	w := NewWorkspace(ctx)
	m, err := w.OpenFile(path, Options{})
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	again, err := w.OpenFile(filepath.Join(dir, ".", "bells.pbsn"), Options{})
	if err != nil || again != m {
		t.Fatalf("second OpenFile = %p, %v; want the same manager %p", again, err, m)
	}

	w.CloseAll()
	if w.Len() != 0 || !m.Closed() {
		t.Errorf("after CloseAll Len = %d, closed = %v", w.Len(), m.Closed())
	}
	// The lock went with the manager.
	reopened, err := w.OpenFile(path, Options{})
	if err != nil {
		t.Fatalf("OpenFile after CloseAll: %v", err)
	}
	reopened.ForceClose()
}

func TestWorkspaceOpenSessionOnce(t *testing.T) {
	h := newSessionHarness(t)
	ctx, _ := h.context()
	w := NewWorkspace(ctx)
	endpoint := transport.Endpoint{Session: testSession, Token: "alice"}

	m, err := w.OpenSession(context.Background(), endpoint, Options{})
	if err != nil {
		t.Fatalf("OpenSession: %v", err)
	}
	again, _ := w.OpenSession(context.Background(), endpoint, Options{})
	if again != m || w.Len() != 1 {
		t.Errorf("second OpenSession created another manager")
	}
	h.until(t, func() bool { return m.State() == transport.StateConnected }, m)
	if m.Name() != "session "+testSession.String() {
		t.Errorf("Name = %q", m.Name())
	}

	offline, _ := testContext(t)
	if _, err := NewWorkspace(offline).OpenSession(context.Background(), endpoint, Options{}); !errors.Is(err, ErrOffline) {
		t.Errorf("OpenSession without a dialer = %v, want ErrOffline", err)
	}
}
