// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/patchbay-collective/patchbay/document"
	"github.com/patchbay-collective/patchbay/lib/clock"
	"github.com/patchbay-collective/patchbay/lib/ref"
	"github.com/patchbay-collective/patchbay/transport"
)

// Compile-time interface check.
var _ transport.Server = (*Hub)(nil)

// ErrSessionExists is returned by Start for a session id already live.
var ErrSessionExists = errors.New("relay: session already live")

// Authenticator resolves a hello token to an account.
type Authenticator interface {
	Authenticate(token string) (Account, error)
}

// HubOptions configures a Hub.
type HubOptions struct {
	Accounts Authenticator

	// Clock paces send retries to slow participants. Nil uses
	// clock.Real().
	Clock clock.Clock

	Logger  *slog.Logger
	Metrics *Metrics

	// OnIdle receives the snapshot body of a session that ended
	// because its last participant left. It runs outside hub locks.
	OnIdle func(session ref.SessionID, body []byte)

	// HelloTimeout bounds the wait for a connection's hello (default
	// 10s).
	HelloTimeout time.Duration
}

// Hub relays transactions between the participants of live sessions.
// Safe for concurrent use; each connection is served on its own
// goroutine.
type Hub struct {
	options HubOptions
	logger  *slog.Logger

	mu       sync.Mutex
	sessions map[ref.SessionID]*session
}

type session struct {
	id ref.SessionID

	mu       sync.Mutex
	document *document.Document
	log      []*document.Transaction
	seen     map[string]bool
	peers    map[*peer]struct{}
	ended    bool
}

// NewHub returns a hub with no sessions.
func NewHub(options HubOptions) *Hub {
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	if options.HelloTimeout <= 0 {
		options.HelloTimeout = 10 * time.Second
	}
	return &Hub{
		options:  options,
		logger:   options.Logger,
		sessions: make(map[ref.SessionID]*session),
	}
}

// Start makes a session live. The hub takes ownership of doc; its
// outbox (the genesis of a document built from a snapshot) becomes
// the start of the session log.
func (h *Hub) Start(id ref.SessionID, doc *document.Document) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.sessions[id]; exists {
		return fmt.Errorf("%w: %s", ErrSessionExists, id)
	}
	s := &session{
		id:       id,
		document: doc,
		seen:     make(map[string]bool),
		peers:    make(map[*peer]struct{}),
	}
	for _, txn := range doc.TakeOutbox() {
		s.log = append(s.log, txn)
		s.seen[txn.ID()] = true
	}
	h.sessions[id] = s
	h.options.Metrics.sessionStarted()
	h.logger.Info("session started", "session", id.String(), "log", len(s.log))
	return nil
}

// Live reports whether session id is live.
func (h *Hub) Live(id ref.SessionID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.sessions[id]
	return ok
}

// Sessions returns the number of live sessions.
func (h *Hub) Sessions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Participants returns the users connected to session id, sorted.
func (h *Hub) Participants(id ref.SessionID) []ref.UserID {
	s := h.session(id)
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users()
}

// LogLength returns the number of transactions logged for session id.
func (h *Hub) LogLength(id ref.SessionID) int {
	s := h.session(id)
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.log)
}

// Snapshot returns the current snapshot body of a live session.
func (h *Hub) Snapshot(id ref.SessionID) ([]byte, bool, error) {
	s := h.session(id)
	if s == nil {
		return nil, false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	body, err := s.document.MarshalSnapshot()
	return body, true, err
}

// Close disconnects every participant of every session.
func (h *Hub) Close() {
	h.mu.Lock()
	sessions := slices.Collect(maps.Values(h.sessions))
	h.mu.Unlock()
	for _, s := range sessions {
		s.mu.Lock()
		for p := range s.peers {
			p.link.Close()
		}
		s.mu.Unlock()
	}
}

func (h *Hub) session(id ref.SessionID) *session {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sessions[id]
}

// ServeLink implements transport.Server. It runs one participant's
// connection: hello, welcome and replay, then the transaction stream
// until the link closes or ctx is done.
func (h *Hub) ServeLink(ctx context.Context, link transport.Link) {
	defer link.Close()

	helloContext, cancel := context.WithTimeout(ctx, h.options.HelloTimeout)
	hello, err := link.Receive(helloContext)
	cancel()
	if err != nil {
		h.logger.Debug("connection closed before hello", "error", err)
		return
	}
	reject := func(reason, format string, args ...any) {
		h.options.Metrics.rejectedHello(reason)
		h.logger.Info("session join refused", "session", hello.Session.String(), "reason", reason)
		link.Send(transport.ErrorFrame(format, args...))
	}
	if hello.Kind != transport.FrameHello {
		reject("protocol", "expected hello, got %s", hello.Kind)
		return
	}
	account, err := h.options.Accounts.Authenticate(hello.Token)
	if err != nil {
		h.options.Metrics.rejectedHello("unauthorized")
		h.logger.Info("session join refused", "session", hello.Session.String(), "reason", "unauthorized")
		link.Send(transport.DeniedFrame("%v", err))
		return
	}
	s := h.session(hello.Session)
	if s == nil {
		reject("unknown session", "session %s is not live", hello.Session)
		return
	}

	p := newPeer(account.User, link)
	logger := h.logger.With("session", s.id.String(), "user", account.User.String(), "connection", p.id)
	if !s.join(p, hello.Vector) {
		reject("ended", "session %s has ended", s.id)
		return
	}
	h.options.Metrics.joined()
	logger.Info("participant joined")

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		p.run(ctx, h.options.Clock)
	}()

	for {
		frame, err := link.Receive(ctx)
		if err != nil {
			logger.Debug("participant link closed", "error", err)
			break
		}
		if frame.Kind != transport.FrameTransaction {
			logger.Debug("ignoring frame", "kind", frame.Kind.String())
			continue
		}
		h.options.Metrics.logged(!s.publish(p, frame.Transaction))
	}

	p.stop()
	<-writerDone
	h.options.Metrics.left()
	logger.Info("participant left")
	h.leave(s, p)
}

func (h *Hub) leave(s *session, p *peer) {
	h.mu.Lock()
	s.mu.Lock()
	delete(s.peers, p)
	ended := len(s.peers) == 0
	if ended {
		s.ended = true
		delete(h.sessions, s.id)
	} else {
		s.broadcastUsers()
	}
	h.mu.Unlock()

	var body []byte
	var err error
	logged := len(s.log)
	if ended {
		body, err = s.document.MarshalSnapshot()
	}
	s.mu.Unlock()

	if !ended {
		return
	}
	h.options.Metrics.sessionEnded()
	h.logger.Info("session ended", "session", s.id.String(), "log", logged)
	if err != nil {
		h.logger.Error("snapshot of ended session failed", "session", s.id.String(), "error", err)
		return
	}
	if h.options.OnIdle != nil {
		h.options.OnIdle(s.id, body)
	}
}

// join welcomes p, replays what it lacks and announces it. Returns
// false if the session ended meanwhile.
func (s *session) join(p *peer, known document.VersionVector) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return false
	}
	welcome := transport.Welcome(s.id, p.user)
	welcome.Vector = s.document.Vector()
	p.enqueue(welcome)
	for _, txn := range s.log {
		if !known.Covers(txn.Replica, txn.Seq) {
			p.enqueue(transport.TransactionFrame(txn))
		}
	}
	s.peers[p] = struct{}{}
	s.broadcastUsers()
	return true
}

// publish logs txn and forwards it to everyone but its sender.
// Reports false for a transaction already logged.
func (s *session) publish(from *peer, txn *document.Transaction) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := txn.ID()
	if s.seen[id] {
		return false
	}
	s.seen[id] = true
	s.log = append(s.log, txn)
	s.document.Apply(txn)
	frame := transport.TransactionFrame(txn)
	for p := range s.peers {
		if p != from {
			p.enqueue(frame)
		}
	}
	return true
}

// users returns the connected user ids. Caller holds s.mu.
func (s *session) users() []ref.UserID {
	var users []ref.UserID
	for p := range s.peers {
		users = append(users, p.user)
	}
	slices.Sort(users)
	return slices.Compact(users)
}

// broadcastUsers tells every participant who is connected. Caller
// holds s.mu.
func (s *session) broadcastUsers() {
	frame := transport.UsersFrame(s.users())
	for p := range s.peers {
		p.enqueue(frame)
	}
}

// peer is one joined connection. Frames for it are queued without
// bound and written by its own goroutine, so a slow participant never
// blocks the session.
type peer struct {
	id   string
	user ref.UserID
	link transport.Link

	mu    sync.Mutex
	queue []transport.Frame
	wake  chan struct{}
	done  chan struct{}
	once  sync.Once
}

func newPeer(user ref.UserID, link transport.Link) *peer {
	return &peer{
		id:   uuid.NewString(),
		user: user,
		link: link,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

func (p *peer) enqueue(frame transport.Frame) {
	p.mu.Lock()
	p.queue = append(p.queue, frame)
	p.mu.Unlock()
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *peer) stop() {
	p.once.Do(func() { close(p.done) })
}

// retryDelay is the pause before retrying a send the link's own queue
// refused.
const retryDelay = 5 * time.Millisecond

func (p *peer) run(ctx context.Context, clk clock.Clock) {
	for {
		p.mu.Lock()
		frames := p.queue
		p.queue = nil
		p.mu.Unlock()

		for _, frame := range frames {
			for {
				err := p.link.Send(frame)
				if err == nil {
					break
				}
				if !errors.Is(err, transport.ErrQueueFull) {
					p.link.Close()
					return
				}
				select {
				case <-clk.After(retryDelay):
				case <-p.done:
					return
				case <-ctx.Done():
					return
				}
			}
		}

		select {
		case <-p.wake:
		case <-p.done:
			return
		case <-ctx.Done():
			return
		}
	}
}
