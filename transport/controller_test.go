// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/patchbay-collective/patchbay/lib/clock"
	"github.com/patchbay-collective/patchbay/lib/loop"
	"github.com/patchbay-collective/patchbay/lib/ref"
	"github.com/patchbay-collective/patchbay/lib/testutil"
	"github.com/patchbay-collective/patchbay/remote"
)

// scriptServer answers hellos with a welcome (or a rejection) and
// records everything it receives.
type scriptServer struct {
	reject   string
	deny     atomic.Bool
	links    chan Link
	received chan Frame
}

func newScriptServer() *scriptServer {
	return &scriptServer{links: make(chan Link, 16), received: make(chan Frame, 64)}
}

func (s *scriptServer) ServeLink(ctx context.Context, link Link) {
	hello, err := link.Receive(ctx)
	if err != nil {
		return
	}
	if s.deny.Load() {
		link.Send(DeniedFrame("token expired"))
		return
	}
	if s.reject != "" {
		link.Send(ErrorFrame("%s", s.reject))
		return
	}
	link.Send(Welcome(hello.Session, 7))
	s.links <- link
	for {
		frame, err := link.Receive(ctx)
		if err != nil {
			return
		}
		s.received <- frame
	}
}

// flakyDialer fails the next failures dials, then dials the server in
// memory.
type flakyDialer struct {
	mu       sync.Mutex
	failures int
	dials    int
	memory   MemoryDialer
}

func (d *flakyDialer) Dial(ctx context.Context, endpoint Endpoint) (Link, error) {
	d.mu.Lock()
	d.dials++
	if d.failures > 0 {
		d.failures--
		d.mu.Unlock()
		return nil, &ConnectionError{Endpoint: endpoint, Err: errors.New("connection refused")}
	}
	d.mu.Unlock()
	return d.memory.Dial(ctx, endpoint)
}

func (d *flakyDialer) setFailures(n int) {
	d.mu.Lock()
	d.failures = n
	d.mu.Unlock()
}

func (d *flakyDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

type harness struct {
	loop        *loop.Loop
	clock       *clock.FakeClock
	server      *scriptServer
	dialer      *flakyDialer
	controller  *Controller
	transitions []Transition
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		loop:   loop.New(nil),
		clock:  clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
		server: newScriptServer(),
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	h.dialer = &flakyDialer{memory: MemoryDialer{Server: h.server, Context: ctx}}
	h.controller = NewController(Options{
		Dialer:      h.dialer,
		Loop:        h.loop,
		Clock:       h.clock,
		MaxAttempts: 3,
	})
	h.controller.OnTransition(func(transition Transition) {
		h.transitions = append(h.transitions, transition)
	})
	return h
}

func (h *harness) waitState(t *testing.T, want State) {
	t.Helper()
	testutil.WaitFor(t, 5*time.Second, func() bool {
		h.loop.RunPending()
		return h.controller.State() == want
	}, "state ", want)
}

func (h *harness) connect(t *testing.T) {
	t.Helper()
	endpoint := Endpoint{Host: "relay.test", Port: 7411, Session: ref.SessionID(0xabc), Token: "t"}
	if err := h.controller.Connect(context.Background(), endpoint); err != nil {
		t.Fatalf("Connect: %v", err)
	}
}

func TestControllerConnectSendDisconnect(t *testing.T) {
	h := newHarness(t)
	h.connect(t)
	if h.controller.State() != StateConnecting {
		t.Fatalf("state after Connect = %v, want connecting", h.controller.State())
	}
	h.waitState(t, StateConnected)

	if h.controller.User() != 7 {
		t.Errorf("User = %d, want 7", h.controller.User())
	}
	frames := h.controller.Drain()
	if len(frames) != 1 || frames[0].Kind != FrameWelcome {
		t.Errorf("drained %+v, want the welcome", frames)
	}

	if err := h.controller.Send(UsersFrame([]ref.UserID{7})); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if frame := testutil.RequireReceive(t, h.server.received, 5*time.Second, "frame at server"); frame.Kind != FrameUsers {
		t.Errorf("server received %s, want users", frame.Kind)
	}

	serverLink := testutil.RequireReceive(t, h.server.links, 5*time.Second, "server link")
	serverLink.Send(UsersFrame([]ref.UserID{7, 8}))
	testutil.WaitFor(t, 5*time.Second, func() bool { return h.controller.Pending() == 1 }, "users frame queued")

	h.controller.Disconnect()
	if h.controller.State() != StateDisconnected {
		t.Errorf("state after Disconnect = %v", h.controller.State())
	}
	if err := h.controller.Send(UsersFrame(nil)); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send after Disconnect = %v, want ErrNotConnected", err)
	}
	if frames := h.controller.Drain(); len(frames) != 1 || frames[0].Kind != FrameUsers {
		t.Errorf("frames received before Disconnect were lost: %+v", frames)
	}

	want := []State{StateConnecting, StateConnected, StateDisconnected}
	if len(h.transitions) != len(want) {
		t.Fatalf("transitions = %+v", h.transitions)
	}
	for i, transition := range h.transitions {
		if transition.To != want[i] {
			t.Errorf("transition %d to %v, want %v", i, transition.To, want[i])
		}
	}
}

func TestControllerInitialFailure(t *testing.T) {
	h := newHarness(t)
	h.dialer.setFailures(1)
	h.connect(t)
	h.waitState(t, StateFailed)

	last := h.transitions[len(h.transitions)-1]
	if !IsConnectionError(last.Err) {
		t.Errorf("failure transition error = %v, want ConnectionError", last.Err)
	}
	if h.clock.Pending() != 0 {
		t.Error("initial failure scheduled a retry")
	}

	// Failed is not active: Connect may be called again.
	h.connect(t)
	h.waitState(t, StateConnected)
}

func TestControllerRejected(t *testing.T) {
	h := newHarness(t)
	h.server.reject = "unknown session"
	h.connect(t)
	h.waitState(t, StateFailed)

	var rejected *RejectedError
	if err := h.transitions[len(h.transitions)-1].Err; !errors.As(err, &rejected) || rejected.Message != "unknown session" {
		t.Errorf("failure error = %v, want rejection", err)
	}
}

func TestControllerDeniedReconnectFailsWithoutRetry(t *testing.T) {
	h := newHarness(t)
	h.connect(t)
	h.waitState(t, StateConnected)
	serverLink := testutil.RequireReceive(t, h.server.links, 5*time.Second, "server link")

	h.server.deny.Store(true)
	serverLink.Close()
	h.waitState(t, StateReconnecting)
	dials := h.dialer.dialCount()

	h.clock.Advance(time.Second)
	h.waitState(t, StateFailed)
	if got := h.dialer.dialCount(); got != dials+1 {
		t.Errorf("dials after denial = %d, want %d", got, dials+1)
	}
	if h.clock.Pending() != 0 {
		t.Errorf("Pending timers after denial = %d", h.clock.Pending())
	}
	last := h.transitions[len(h.transitions)-1]
	if !remote.IsAuthExpired(last.Err) {
		t.Errorf("failure error = %v, want auth expired", last.Err)
	}
	if IsConnectionError(last.Err) {
		t.Errorf("failure error = %v, should not be a ConnectionError", last.Err)
	}
}

func TestControllerReconnectsWithBackoff(t *testing.T) {
	h := newHarness(t)
	h.connect(t)
	h.waitState(t, StateConnected)
	serverLink := testutil.RequireReceive(t, h.server.links, 5*time.Second, "server link")

	// Two failed reconnect attempts, then success.
	h.dialer.setFailures(2)
	serverLink.Close()
	h.waitState(t, StateReconnecting)
	dials := h.dialer.dialCount()

	h.clock.Advance(999 * time.Millisecond)
	h.loop.RunPending()
	if h.dialer.dialCount() != dials {
		t.Fatal("reconnect attempted before the initial backoff elapsed")
	}
	h.clock.Advance(time.Millisecond)
	testutil.WaitFor(t, 5*time.Second, func() bool {
		h.loop.RunPending()
		return h.dialer.dialCount() == dials+1 && h.clock.Pending() == 1
	}, "first attempt failed and rescheduled")

	// The second delay is doubled.
	h.clock.Advance(time.Second)
	h.loop.RunPending()
	if h.dialer.dialCount() != dials+1 {
		t.Fatal("second attempt did not wait for the doubled backoff")
	}
	h.clock.Advance(time.Second)
	testutil.WaitFor(t, 5*time.Second, func() bool {
		h.loop.RunPending()
		return h.dialer.dialCount() == dials+2 && h.clock.Pending() == 1
	}, "second attempt failed and rescheduled")

	h.clock.Advance(4 * time.Second)
	h.waitState(t, StateConnected)
	if h.controller.State() != StateConnected {
		t.Fatalf("state = %v", h.controller.State())
	}
}

func TestControllerGivesUpAfterMaxAttempts(t *testing.T) {
	h := newHarness(t)
	h.connect(t)
	h.waitState(t, StateConnected)
	serverLink := testutil.RequireReceive(t, h.server.links, 5*time.Second, "server link")

	h.dialer.setFailures(100)
	serverLink.Close()
	h.waitState(t, StateReconnecting)

	testutil.WaitFor(t, 5*time.Second, func() bool {
		h.clock.Advance(time.Minute)
		h.loop.RunPending()
		return h.controller.State() == StateFailed
	}, "controller gave up")

	if h.clock.Pending() != 0 {
		t.Errorf("Pending timers after failure = %d", h.clock.Pending())
	}
}

func TestControllerDisconnectCancelsRetry(t *testing.T) {
	h := newHarness(t)
	h.connect(t)
	h.waitState(t, StateConnected)
	serverLink := testutil.RequireReceive(t, h.server.links, 5*time.Second, "server link")
	serverLink.Close()
	h.waitState(t, StateReconnecting)

	h.controller.Disconnect()
	dials := h.dialer.dialCount()
	h.clock.Advance(time.Minute)
	h.loop.RunPending()
	if h.dialer.dialCount() != dials {
		t.Error("retry ran after Disconnect")
	}
	if h.controller.State() != StateDisconnected {
		t.Errorf("state = %v", h.controller.State())
	}
}

func TestControllerConnectWhileActive(t *testing.T) {
	h := newHarness(t)
	h.connect(t)
	if err := h.controller.Connect(context.Background(), Endpoint{}); err == nil {
		t.Error("second Connect succeeded while connecting")
	}
}
