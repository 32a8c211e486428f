// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/patchbay-collective/patchbay/lib/clock"
	"github.com/patchbay-collective/patchbay/lib/loop"
	"github.com/patchbay-collective/patchbay/lib/ref"
	"github.com/patchbay-collective/patchbay/remote"
)

// State is the connection state of a Controller.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Online reports whether the state may still lead to Connected
// without a new Connect call.
func (s State) Online() bool {
	return s == StateConnecting || s == StateConnected || s == StateReconnecting
}

// Transition describes one state change. Err is set when a failure
// caused it.
type Transition struct {
	From State
	To   State
	Err  error
}

// Options configures a Controller.
type Options struct {
	Dialer Dialer

	// Loop runs every state change and transition callback.
	Loop *loop.Loop

	// Clock drives the reconnect backoff. Nil uses clock.Real().
	Clock clock.Clock

	Logger *slog.Logger

	// Hello builds the hello frame for each connection attempt. It
	// runs on the loop, so it may read document state. Nil sends a
	// hello with an empty version vector.
	Hello func(Endpoint) Frame

	// InitialBackoff is the delay before the first reconnect attempt
	// (default 1s). Each failed attempt doubles it up to MaxBackoff
	// (default 30s).
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// MaxAttempts is the number of reconnect attempts before the
	// controller gives up and enters Failed (default 5).
	MaxAttempts int

	// HandshakeTimeout bounds dialing plus the hello/welcome exchange
	// (default 10s).
	HandshakeTimeout time.Duration
}

// Controller manages the connection of one document to one relay
// session. Every method except Drain and Pending must be called on the
// loop.
type Controller struct {
	options Options
	logger  *slog.Logger

	state    State
	endpoint Endpoint
	user     ref.UserID
	link     Link

	// generation invalidates results of attempts and readers started
	// before the latest Connect, Disconnect or failure.
	generation uint64
	ctx        context.Context
	cancel     context.CancelFunc

	attempts int
	backoff  time.Duration
	timer    *clock.Timer

	listeners []func(Transition)

	mu      sync.Mutex
	inbound []Frame
}

// NewController returns a disconnected controller.
func NewController(options Options) *Controller {
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	if options.InitialBackoff <= 0 {
		options.InitialBackoff = time.Second
	}
	if options.MaxBackoff < options.InitialBackoff {
		options.MaxBackoff = max(30*time.Second, options.InitialBackoff)
	}
	if options.MaxAttempts <= 0 {
		options.MaxAttempts = 5
	}
	if options.HandshakeTimeout <= 0 {
		options.HandshakeTimeout = 10 * time.Second
	}
	return &Controller{options: options, logger: options.Logger}
}

// State returns the current state.
func (c *Controller) State() State { return c.state }

// Endpoint returns the endpoint of the latest Connect.
func (c *Controller) Endpoint() Endpoint { return c.endpoint }

// User returns the user id the relay assigned in its latest welcome,
// or ref.OfflineUser before the first welcome.
func (c *Controller) User() ref.UserID { return c.user }

// OnTransition registers fn to run after every state change.
func (c *Controller) OnTransition(fn func(Transition)) {
	c.listeners = append(c.listeners, fn)
}

// Connect starts connecting to endpoint. It returns at once; the
// outcome arrives as a transition to Connected or Failed. Connecting
// while a connection is active or in progress is an error.
func (c *Controller) Connect(ctx context.Context, endpoint Endpoint) error {
	if c.state.Online() {
		return fmt.Errorf("transport: connect to %s: already %s", endpoint, c.state)
	}
	c.reset()
	c.endpoint = endpoint
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.attempts = 0
	c.backoff = c.options.InitialBackoff
	c.setState(StateConnecting, nil)
	c.attempt()
	return nil
}

// Disconnect tears the connection down and cancels pending attempts.
// Frames already received stay queued for Drain.
func (c *Controller) Disconnect() {
	if c.state == StateDisconnected {
		return
	}
	c.reset()
	c.setState(StateDisconnected, nil)
}

// Send transmits frame. Only valid while Connected; a send failure
// counts as a lost connection.
func (c *Controller) Send(frame Frame) error {
	if c.state != StateConnected {
		return ErrNotConnected
	}
	if err := c.link.Send(frame); err != nil {
		c.lost(c.generation, err)
		return err
	}
	return nil
}

// Drain returns and removes every frame received so far, in arrival
// order. Safe from any goroutine.
func (c *Controller) Drain() []Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	frames := c.inbound
	c.inbound = nil
	return frames
}

// Pending returns the number of frames waiting for Drain. Safe from
// any goroutine.
func (c *Controller) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inbound)
}

func (c *Controller) push(frame Frame) {
	c.mu.Lock()
	c.inbound = append(c.inbound, frame)
	c.mu.Unlock()
}

// reset invalidates in-flight work and releases the link.
func (c *Controller) reset() {
	c.generation++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.timer.Stop()
	c.timer = nil
	if c.link != nil {
		c.link.Close()
		c.link = nil
	}
}

func (c *Controller) setState(to State, err error) {
	from := c.state
	c.state = to
	if err != nil {
		c.logger.Info("connection state changed", "from", from.String(), "to", to.String(),
			"endpoint", c.endpoint.String(), "error", err)
	} else {
		c.logger.Debug("connection state changed", "from", from.String(), "to", to.String(),
			"endpoint", c.endpoint.String())
	}
	for _, fn := range c.listeners {
		fn(Transition{From: from, To: to, Err: err})
	}
}

// attempt dials on a goroutine and posts the outcome to the loop.
func (c *Controller) attempt() {
	generation := c.generation
	ctx := c.ctx
	endpoint := c.endpoint
	hello := Hello(endpoint.Session, endpoint.Token, nil)
	if c.options.Hello != nil {
		hello = c.options.Hello(endpoint)
	}

	go func() {
		link, welcome, err := c.handshake(ctx, endpoint, hello)
		posted := c.options.Loop.Post(func() {
			c.attempted(generation, link, welcome, err)
		})
		if !posted && link != nil {
			link.Close()
		}
	}()
}

func (c *Controller) handshake(ctx context.Context, endpoint Endpoint, hello Frame) (Link, Frame, error) {
	ctx, cancel := context.WithTimeout(ctx, c.options.HandshakeTimeout)
	defer cancel()

	link, err := c.options.Dialer.Dial(ctx, endpoint)
	if err != nil {
		if !IsConnectionError(err) && !remote.IsAuthExpired(err) {
			err = &ConnectionError{Endpoint: endpoint, Err: err}
		}
		return nil, Frame{}, err
	}
	fail := func(err error) (Link, Frame, error) {
		link.Close()
		return nil, Frame{}, &ConnectionError{Endpoint: endpoint, Err: err}
	}
	if err := link.Send(hello); err != nil {
		return fail(fmt.Errorf("sending hello: %w", err))
	}
	reply, err := link.Receive(ctx)
	if err != nil {
		return fail(fmt.Errorf("waiting for welcome: %w", err))
	}
	switch reply.Kind {
	case FrameWelcome:
		return link, reply, nil
	case FrameError:
		if reply.Denied {
			link.Close()
			return nil, Frame{}, &remote.AuthExpiredError{StatusCode: http.StatusForbidden, Message: reply.Message}
		}
		return fail(&RejectedError{Message: reply.Message})
	default:
		return fail(fmt.Errorf("expected welcome, got %s frame", reply.Kind))
	}
}

func (c *Controller) attempted(generation uint64, link Link, welcome Frame, err error) {
	if generation != c.generation {
		if link != nil {
			link.Close()
		}
		return
	}
	if err != nil {
		var rejected *RejectedError
		switch {
		// Refused credentials fail without a retry.
		case c.state == StateConnecting, errors.As(err, &rejected), remote.IsAuthExpired(err):
			c.fail(err)
		default:
			c.attempts++
			if c.attempts >= c.options.MaxAttempts {
				c.fail(err)
				return
			}
			c.logger.Info("reconnect attempt failed", "attempt", c.attempts,
				"endpoint", c.endpoint.String(), "error", err)
			c.scheduleRetry()
		}
		return
	}

	c.link = link
	c.user = welcome.User
	c.attempts = 0
	c.backoff = c.options.InitialBackoff
	c.push(welcome)
	go c.read(c.ctx, generation, link)
	c.setState(StateConnected, nil)
}

func (c *Controller) read(ctx context.Context, generation uint64, link Link) {
	for {
		frame, err := link.Receive(ctx)
		if err != nil {
			c.options.Loop.Post(func() { c.lost(generation, err) })
			return
		}
		c.push(frame)
	}
}

// lost handles a broken link by entering Reconnecting.
func (c *Controller) lost(generation uint64, err error) {
	if generation != c.generation || c.state != StateConnected {
		return
	}
	c.generation++
	c.link.Close()
	c.link = nil
	c.setState(StateReconnecting, &ConnectionError{Endpoint: c.endpoint, Err: err})
	c.scheduleRetry()
}

func (c *Controller) scheduleRetry() {
	generation := c.generation
	delay := c.backoff
	c.backoff = min(c.backoff*2, c.options.MaxBackoff)
	c.timer = c.options.Clock.AfterFunc(delay, func() {
		c.options.Loop.Post(func() {
			if generation == c.generation && c.state == StateReconnecting {
				c.attempt()
			}
		})
	})
}

func (c *Controller) fail(err error) {
	c.reset()
	c.setState(StateFailed, err)
}
