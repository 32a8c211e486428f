// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

package driveui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/patchbay-collective/patchbay/drive"
	"github.com/patchbay-collective/patchbay/lib/loop"
	"github.com/patchbay-collective/patchbay/lib/ref"
)

var _ Actions = (*Bridge)(nil)

// Bridge is the drive's Listener and the model's Actions. Listener
// methods run on the loop; Actions methods may be called from any
// goroutine and post their work to the loop.
type Bridge struct {
	drive.NopListener

	loop  *loop.Loop
	drive *drive.Drive
	send  func(tea.Msg)
}

// NewBridge returns a bridge that delivers messages through send,
// typically (*tea.Program).Send.
func NewBridge(l *loop.Loop, send func(tea.Msg)) *Bridge {
	return &Bridge{loop: l, send: send}
}

// Attach binds the drive. The drive is built with the bridge as its
// listener, so it cannot be passed to NewBridge; call Attach before
// the loop runs.
func (b *Bridge) Attach(d *drive.Drive) { b.drive = d }

// DriveChanged implements drive.Listener.
func (b *Bridge) DriveChanged() {
	directory := b.drive.Directory()
	b.send(EntriesMsg{Entries: directory.Entries(), Order: directory.Order()})
}

// LoggedOut is the account's denied-request callback.
func (b *Bridge) LoggedOut(string) { b.send(LoggedOutMsg{}) }

func (b *Bridge) Refresh() { b.loop.Post(b.drive.Refresh) }

func (b *Bridge) Open(id ref.DocumentID) {
	b.loop.Post(func() { b.drive.Open(id, b.result("open")) })
}

func (b *Bridge) Trash(id ref.DocumentID) {
	b.loop.Post(func() { b.drive.Trash(id, b.result("trashed")) })
}

func (b *Bridge) Untrash(id ref.DocumentID) {
	b.loop.Post(func() { b.drive.Untrash(id, b.result("restored")) })
}

func (b *Bridge) Duplicate(id ref.DocumentID) {
	b.loop.Post(func() { b.drive.Duplicate(id, b.result("duplicated")) })
}

func (b *Bridge) SetOrder(order drive.Order) {
	b.loop.Post(func() { b.drive.Directory().SetOrder(order) })
}

func (b *Bridge) result(operation string) func(drive.Entry, error) {
	return func(entry drive.Entry, err error) {
		b.send(ResultMsg{Operation: operation, Entry: entry, Err: err})
	}
}
