// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

package patcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/patchbay-collective/patchbay/document"
	"github.com/patchbay-collective/patchbay/lib/clock"
	"github.com/patchbay-collective/patchbay/lib/cycle"
	"github.com/patchbay-collective/patchbay/lib/loop"
	"github.com/patchbay-collective/patchbay/lib/ref"
	"github.com/patchbay-collective/patchbay/lib/snapshot"
	"github.com/patchbay-collective/patchbay/lib/version"
	"github.com/patchbay-collective/patchbay/remote"
	"github.com/patchbay-collective/patchbay/transport"
)

var (
	// ErrClosed is returned by operations on a manager whose last view
	// has closed.
	ErrClosed = errors.New("patcher: manager closed")

	// ErrOffline is returned by Connect when the context has no dialer.
	ErrOffline = errors.New("patcher: no transport configured")
)

// Options configures a Manager.
type Options struct {
	// Name labels the manager in logs.
	Name string

	// Listener receives notifications. Nil uses NopListener.
	Listener Listener

	// Prompter decides whether to continue offline after a connection
	// loss. Nil uses StayOffline.
	Prompter Prompter

	// Replica fixes the document's replica id. Zero picks a random one.
	Replica ref.ReplicaID
}

// Manager owns one document and its connection. Not safe for
// concurrent use; every method must be called on the context's loop.
type Manager struct {
	context    Context
	logger     *slog.Logger
	name       string
	listener   Listener
	prompter   Prompter
	document   *document.Document
	controller *transport.Controller
	token      *loop.Token

	views     []*View
	detector  cycle.Detector
	localUser ref.UserID
	connected []ref.UserID

	// unsent holds local transactions the relay has not confirmed,
	// oldest first; the first sent of them went out on the current
	// link.
	unsent []*document.Transaction
	sent   int

	pullTimer *clock.Timer
	asked     bool

	path string
	lock *snapshot.FileLock

	closed   bool
	onClosed []func(*Manager)
}

// New returns a manager holding an empty document.
func New(ctx Context, options Options) *Manager {
	ctx = ctx.withDefaults()
	return newManager(ctx, options, document.New(document.Options{
		Replica: options.Replica,
		Logger:  ctx.Logger,
	}))
}

// Open loads a snapshot file. It fails with
// snapshot.IncompatibleVersionError when the file was written by a
// different schema, and with snapshot.ErrLocked when another process
// has it open. Nothing is built unless the whole file validates.
func Open(ctx Context, path string, options Options) (*Manager, error) {
	ctx = ctx.withDefaults()
	lock, err := snapshot.Lock(path)
	if err != nil {
		return nil, err
	}
	doc, err := document.Load(path, document.Options{Replica: options.Replica, Logger: ctx.Logger})
	if err != nil {
		lock.Unlock()
		return nil, fmt.Errorf("patcher: opening %s: %w", path, err)
	}
	if options.Name == "" {
		options.Name = path
	}
	m := newManager(ctx, options, doc)
	m.path = path
	m.lock = lock
	return m, nil
}

// Import builds a manager from snapshot file bytes, for example a
// download from the relay.
func Import(ctx Context, data []byte, options Options) (*Manager, error) {
	ctx = ctx.withDefaults()
	body, err := snapshot.Decode(data, version.Schema)
	if err != nil {
		return nil, fmt.Errorf("patcher: importing %s: %w", options.Name, err)
	}
	doc, err := document.UnmarshalSnapshot(body, document.Options{Replica: options.Replica, Logger: ctx.Logger})
	if err != nil {
		return nil, fmt.Errorf("patcher: importing %s: %w", options.Name, err)
	}
	return newManager(ctx, options, doc), nil
}

func newManager(ctx Context, options Options, doc *document.Document) *Manager {
	if options.Listener == nil {
		options.Listener = NopListener{}
	}
	if options.Prompter == nil {
		options.Prompter = StayOffline{}
	}
	m := &Manager{
		context:  ctx,
		name:     options.Name,
		listener: options.Listener,
		prompter: options.Prompter,
		document: doc,
		token:    loop.NewToken(),
	}
	m.logger = ctx.Logger.With("document", options.Name)
	m.controller = transport.NewController(ctx.controllerOptions(m.hello, m.logger))
	m.controller.OnTransition(m.transitioned)
	m.collect()
	return m
}

// Name returns the manager's label.
func (m *Manager) Name() string { return m.name }

// Path returns the file the document was opened from or last saved
// to.
func (m *Manager) Path() string { return m.path }

// Document returns the owned document. Edits made through it take
// effect at the next Commit.
func (m *Manager) Document() *document.Document { return m.document }

// Patcher returns the projection built by the latest pass.
func (m *Manager) Patcher() *document.Patcher { return m.document.Patcher() }

// Views returns the open views in creation order.
func (m *Manager) Views() []*View { return slices.Clone(m.views) }

// LocalUser returns the id the relay assigned to this client, or
// ref.OfflineUser before the first welcome.
func (m *Manager) LocalUser() ref.UserID { return m.localUser }

// ConnectedUsers returns the users connected to the session, sorted.
func (m *Manager) ConnectedUsers() []ref.UserID { return slices.Clone(m.connected) }

// State returns the connection state.
func (m *Manager) State() transport.State { return m.controller.State() }

// Closed reports whether the manager has been destroyed.
func (m *Manager) Closed() bool { return m.closed }

// Unsent returns how many local transactions the relay has not
// confirmed yet.
func (m *Manager) Unsent() int { return len(m.unsent) }

// OnClosed registers fn to run once the manager is destroyed.
func (m *Manager) OnClosed(fn func(*Manager)) {
	m.onClosed = append(m.onClosed, fn)
}

// NewView opens a view owned by the local user.
func (m *Manager) NewView() (*View, error) {
	if m.closed {
		return nil, ErrClosed
	}
	entity := m.document.AddView(m.localUser)
	view := newView(m, entity)
	m.views = append(m.views, view)
	m.commit("", false)
	return view, nil
}

// Commit seals pending edits into one transaction labelled label and
// runs the reconciliation pass. The transaction is sent if connected
// and kept for the next connection otherwise. Returns nil when nothing
// was pending.
func (m *Manager) Commit(label string) *document.Transaction {
	return m.commit(label, false)
}

// CommitGesture is Commit for an intermediate step of a continuous
// interaction. Consecutive gesture commits with the same label share
// one undo entry until the gesture ends.
func (m *Manager) CommitGesture(label string) *document.Transaction {
	return m.commit(label, true)
}

func (m *Manager) commit(label string, gesture bool) *document.Transaction {
	if m.closed {
		return nil
	}
	txn := m.document.Commit(label, gesture)
	if txn == nil {
		return nil
	}
	m.changed(true)
	m.flush()
	return txn
}

// Undo reverts the latest undo entry. Reports whether there was one.
func (m *Manager) Undo() bool {
	if m.closed {
		return false
	}
	txn, ok := m.document.Undo()
	m.afterRewind(txn)
	return ok
}

// Redo reapplies the latest undone entry.
func (m *Manager) Redo() bool {
	if m.closed {
		return false
	}
	txn, ok := m.document.Redo()
	m.afterRewind(txn)
	return ok
}

func (m *Manager) afterRewind(txn *document.Transaction) {
	if txn == nil && m.document.OutboxLen() == 0 {
		return
	}
	m.changed(true)
	m.flush()
}

func (m *Manager) CanUndo() bool     { return m.document.CanUndo() }
func (m *Manager) CanRedo() bool     { return m.document.CanRedo() }
func (m *Manager) UndoLabel() string { return m.document.UndoLabel() }
func (m *Manager) RedoLabel() string { return m.document.RedoLabel() }

// Connect joins a live session. The outcome arrives as
// ConnectionStateChanged; whatever happens, the document stays
// editable.
func (m *Manager) Connect(ctx context.Context, endpoint transport.Endpoint) error {
	if m.closed {
		return ErrClosed
	}
	if m.context.Dialer == nil {
		return ErrOffline
	}
	return m.controller.Connect(ctx, endpoint)
}

// Disconnect leaves the session. The document and unsent transactions
// are kept.
func (m *Manager) Disconnect() {
	m.controller.Disconnect()
}

func (m *Manager) hello(endpoint transport.Endpoint) transport.Frame {
	return transport.Hello(endpoint.Session, endpoint.Token, m.document.Vector())
}

func (m *Manager) transitioned(transition transport.Transition) {
	if m.closed {
		return
	}
	m.listener.ConnectionStateChanged(m, transition.To)

	if transition.To == transport.StateConnected {
		m.asked = false
		m.Pull()
		m.schedulePull()
		return
	}

	m.pullTimer.Stop()
	m.pullTimer = nil
	m.sent = 0
	if len(m.connected) > 0 {
		m.connected = nil
		m.listener.ConnectedUsersChanged(m, nil)
		m.changed(false)
	}
	if remote.IsAuthExpired(transition.Err) {
		m.denied(transition.Err)
		return
	}
	if transition.Err != nil && !m.asked {
		m.asked = true
		m.askContinueOffline()
	}
}

// denied handles a session refused for its credentials. The session
// is abandoned without the offline prompt: the document stays open
// locally and unsent transactions wait for the next Connect, which
// needs renewed credentials.
func (m *Manager) denied(err error) {
	m.logger.Warn("relay refused the session credentials", "unsent", len(m.unsent), "error", err)
	if m.context.Account != nil {
		m.context.Account.HandleDeniedRequest()
	}
}

func (m *Manager) askContinueOffline() {
	var once sync.Once
	m.prompter.AskContinueOffline(m, func(continueOffline bool) {
		once.Do(func() {
			loop.Deliver(m.context.Loop, m.token, func() {
				if continueOffline {
					m.logger.Info("continuing offline", "unsent", len(m.unsent))
					return
				}
				m.ForceClose()
			})
		})
	})
}

func (m *Manager) schedulePull() {
	m.pullTimer = m.context.Clock.AfterFunc(m.context.Config.PullInterval(), func() {
		loop.Deliver(m.context.Loop, m.token, func() {
			if m.controller.State() != transport.StateConnected {
				return
			}
			m.Pull()
			m.schedulePull()
		})
	})
}

// Pull applies every frame received since the last pull: remote
// transactions in delivery order, connected users, and the welcome of
// a new connection. It runs the reconciliation pass exactly once and
// reports whether anything was queued.
func (m *Manager) Pull() bool {
	if m.closed {
		return false
	}
	frames := m.controller.Drain()
	if len(frames) == 0 {
		return false
	}

	var transactions []*document.Transaction
	adopted := false
	for _, frame := range frames {
		switch frame.Kind {
		case transport.FrameWelcome:
			adopted = m.welcomed(frame) || adopted
		case transport.FrameTransaction:
			transactions = append(transactions, frame.Transaction)
		case transport.FrameUsers:
			m.setConnected(frame.Users)
		case transport.FrameError:
			m.logger.Warn("relay reported an error", "message", frame.Message)
		}
	}

	result := m.document.Apply(transactions...)
	if result.Buffered > 0 {
		m.logger.Debug("transactions waiting for dependencies", "buffered", result.Buffered)
	}
	if adopted {
		m.document.Commit("", false)
	}
	m.changed(result.Applied > 0 || adopted)
	m.flush()
	return true
}

// welcomed records the user id of a new connection, forgets local
// transactions the relay already has, and hands the local views to the
// assigned user. Reports whether any view changed owner.
func (m *Manager) welcomed(frame transport.Frame) bool {
	m.localUser = frame.User
	seen := frame.Vector[m.document.Replica()]
	m.unsent = slices.DeleteFunc(m.unsent, func(txn *document.Transaction) bool {
		return txn.Seq <= seen
	})
	m.sent = 0

	adopted := false
	patcher := m.document.Patcher()
	for _, view := range m.views {
		if current, ok := patcher.View(view.ref); ok && current.Owner == m.localUser {
			continue
		}
		if err := m.document.SetViewOwner(view.ref, m.localUser); err != nil {
			m.logger.Warn("reassigning view failed", "view", view.ref.String(), "error", err)
			continue
		}
		adopted = true
	}
	m.logger.Info("joined session", "user", m.localUser.String(), "resending", len(m.unsent))
	return adopted
}

func (m *Manager) setConnected(users []ref.UserID) {
	users = slices.Clone(users)
	slices.Sort(users)
	users = slices.Compact(users)
	if slices.Equal(users, m.connected) {
		return
	}
	m.connected = users
	m.listener.ConnectedUsersChanged(m, slices.Clone(users))
}

// collect moves committed transactions from the document outbox to
// unsent.
func (m *Manager) collect() {
	m.unsent = append(m.unsent, m.document.TakeOutbox()...)
}

// flush sends the unsent transactions not yet sent on the current
// link. Nothing leaves while the controller is not Connected.
func (m *Manager) flush() {
	m.collect()
	if m.controller.State() != transport.StateConnected {
		return
	}
	for m.sent < len(m.unsent) {
		if err := m.controller.Send(transport.TransactionFrame(m.unsent[m.sent])); err != nil {
			m.logger.Info("send failed, keeping transactions for the next connection",
				"unsent", len(m.unsent), "error", err)
			return
		}
		m.sent++
	}
}

// Save writes the document to path with the configured compression.
func (m *Manager) Save(path string) error {
	if m.closed {
		return ErrClosed
	}
	compression, err := snapshot.ParseCompressionTag(m.context.Config.Snapshot.Compression)
	if err != nil {
		return fmt.Errorf("patcher: %w", err)
	}
	if err := m.document.Save(path, compression); err != nil {
		return fmt.Errorf("patcher: saving %s: %w", path, err)
	}
	m.path = path
	m.logger.Info("saved", "path", path)
	return nil
}

// Export returns the document as snapshot file bytes, ready to upload.
func (m *Manager) Export() ([]byte, error) {
	body, err := m.document.MarshalSnapshot()
	if err != nil {
		return nil, fmt.Errorf("patcher: exporting: %w", err)
	}
	compression, err := snapshot.ParseCompressionTag(m.context.Config.Snapshot.Compression)
	if err != nil {
		return nil, fmt.Errorf("patcher: %w", err)
	}
	return snapshot.Encode(version.Schema, body, compression)
}

// ForceClose closes every view, which destroys the manager.
func (m *Manager) ForceClose() {
	if m.closed {
		return
	}
	if len(m.views) == 0 {
		m.destroy()
		return
	}
	for _, view := range slices.Clone(m.views) {
		view.Close()
	}
}

func (m *Manager) removeView(view *View) {
	m.views = slices.DeleteFunc(m.views, func(v *View) bool { return v == view })
	if err := m.document.RemoveView(view.ref); err != nil {
		m.logger.Debug("view already gone", "view", view.ref.String(), "error", err)
	}
	if len(m.views) > 0 {
		m.commit("", false)
		return
	}
	m.document.Commit("", false)
	m.flush()
	m.destroy()
}

func (m *Manager) destroy() {
	m.closed = true
	m.token.Revoke()
	m.pullTimer.Stop()
	m.pullTimer = nil
	m.controller.Disconnect()
	if err := m.lock.Unlock(); err != nil {
		m.logger.Warn("releasing file lock failed", "error", err)
	}
	m.logger.Debug("manager closed")
	m.listener.Closed(m)
	for _, fn := range m.onClosed {
		fn(m)
	}
}
