// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

package patcher

import (
	"context"
	"fmt"
	"maps"
	"path/filepath"
	"slices"

	"github.com/patchbay-collective/patchbay/lib/ref"
	"github.com/patchbay-collective/patchbay/transport"
)

// Workspace holds every open manager of a process. A document opened
// twice, by file path or by session id, yields the same manager.
type Workspace struct {
	context  Context
	managers map[string]*Manager
	untitled int
}

// NewWorkspace returns an empty workspace.
func NewWorkspace(ctx Context) *Workspace {
	return &Workspace{context: ctx.withDefaults(), managers: make(map[string]*Manager)}
}

// Context returns the workspace's shared context.
func (w *Workspace) Context() Context { return w.context }

// New opens an untitled, empty document.
func (w *Workspace) New(options Options) *Manager {
	w.untitled++
	if options.Name == "" {
		options.Name = fmt.Sprintf("untitled %d", w.untitled)
	}
	m := New(w.context, options)
	w.add(fmt.Sprintf("untitled:%d", w.untitled), m)
	return m
}

// OpenFile returns the manager of the snapshot file at path, loading
// it if it is not open yet.
func (w *Workspace) OpenFile(path string, options Options) (*Manager, error) {
	absolute, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("patcher: resolving %s: %w", path, err)
	}
	key := "file:" + absolute
	if m, ok := w.managers[key]; ok {
		return m, nil
	}
	m, err := Open(w.context, absolute, options)
	if err != nil {
		return nil, err
	}
	w.add(key, m)
	return m, nil
}

// OpenSession returns the manager joined to endpoint's session,
// creating and connecting one if needed. A failed dial arrives later
// as a state change and leaves the manager open and offline.
func (w *Workspace) OpenSession(ctx context.Context, endpoint transport.Endpoint, options Options) (*Manager, error) {
	key := sessionKey(endpoint.Session)
	if m, ok := w.managers[key]; ok {
		return m, nil
	}
	if options.Name == "" {
		options.Name = "session " + endpoint.Session.String()
	}
	m := New(w.context, options)
	if err := m.Connect(ctx, endpoint); err != nil {
		m.ForceClose()
		return nil, err
	}
	w.add(key, m)
	return m, nil
}

func sessionKey(session ref.SessionID) string { return "session:" + session.String() }

func (w *Workspace) add(key string, m *Manager) {
	w.managers[key] = m
	m.OnClosed(func(*Manager) {
		if w.managers[key] == m {
			delete(w.managers, key)
		}
	})
}

// Managers returns the open managers sorted by key.
func (w *Workspace) Managers() []*Manager {
	keys := slices.Sorted(maps.Keys(w.managers))
	managers := make([]*Manager, len(keys))
	for i, key := range keys {
		managers[i] = w.managers[key]
	}
	return managers
}

// Len returns the number of open managers.
func (w *Workspace) Len() int { return len(w.managers) }

// CloseAll force-closes every manager.
func (w *Workspace) CloseAll() {
	for _, m := range w.Managers() {
		m.ForceClose()
	}
}
