// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

package patcher

import (
	"github.com/patchbay-collective/patchbay/lib/ref"
	"github.com/patchbay-collective/patchbay/lib/selection"
	"github.com/patchbay-collective/patchbay/transport"
)

// Listener receives manager notifications on the loop. Within one
// reconciliation pass the order is DocumentChanged for every view,
// then SelectionChanged, then the stack overflow event.
type Listener interface {
	// DocumentChanged follows every applied transaction, local or
	// remote, once per open view.
	DocumentChanged(m *Manager, view *View)

	// SelectionChanged reports an entity whose selection
	// classification moved relative to view.
	SelectionChanged(view *View, change selection.Change)

	// ConnectedUsersChanged reports the users connected to the session,
	// sorted. Empty while offline.
	ConnectedUsersChanged(m *Manager, users []ref.UserID)

	// StackOverflowDetected reports a loop of control links: the
	// objects of the cycle, then its links.
	StackOverflowDetected(m *Manager, refs []ref.Ref)
	StackOverflowCleared(m *Manager)

	ConnectionStateChanged(m *Manager, state transport.State)

	// Closed fires once, after the last view closed.
	Closed(m *Manager)
}

// NopListener implements Listener with no-ops. Embed it to handle only
// some notifications.
type NopListener struct{}

func (NopListener) DocumentChanged(*Manager, *View)                  {}
func (NopListener) SelectionChanged(*View, selection.Change)         {}
func (NopListener) ConnectedUsersChanged(*Manager, []ref.UserID)     {}
func (NopListener) StackOverflowDetected(*Manager, []ref.Ref)        {}
func (NopListener) StackOverflowCleared(*Manager)                    {}
func (NopListener) ConnectionStateChanged(*Manager, transport.State) {}
func (NopListener) Closed(*Manager)                                  {}

// Prompter is the UI side of the offline policy.
type Prompter interface {
	// AskContinueOffline asks whether to keep editing m without a
	// connection. answer may be called from any goroutine, at most
	// once.
	AskContinueOffline(m *Manager, answer func(continueOffline bool))
}

// StayOffline is a Prompter that always continues offline.
type StayOffline struct{}

func (StayOffline) AskContinueOffline(_ *Manager, answer func(bool)) { answer(true) }
