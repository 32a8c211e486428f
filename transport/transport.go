// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/patchbay-collective/patchbay/lib/ref"
)

// Link is one established connection to a relay session.
type Link interface {
	// Send queues frame for transmission. It never blocks: a full
	// queue or a closed link returns an error.
	Send(frame Frame) error

	// Receive blocks until the next frame arrives, the link closes
	// (io.EOF or a transport error), or ctx is done.
	Receive(ctx context.Context) (Frame, error)

	// Close tears the link down. Idempotent.
	Close() error
}

// Dialer opens Links.
type Dialer interface {
	// Dial connects to the session named by endpoint. The returned
	// Link has not exchanged any frames yet.
	Dial(ctx context.Context, endpoint Endpoint) (Link, error)
}

// Endpoint names a relay session.
type Endpoint struct {
	Host    string
	Port    int
	Session ref.SessionID
	// Token is the bearer token presented in the hello frame and,
	// for WebSocket links, in the upgrade request.
	Token string
}

// Address returns host:port.
func (e Endpoint) Address() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

func (e Endpoint) String() string {
	return fmt.Sprintf("%s/session/%s", e.Address(), e.Session)
}

var (
	// ErrClosed is returned when sending on a closed link.
	ErrClosed = errors.New("transport: link closed")

	// ErrQueueFull is returned when a link's send queue is full. The
	// peer is not reading; callers treat the link as lost.
	ErrQueueFull = errors.New("transport: send queue full")

	// ErrNotConnected is returned by Controller.Send outside the
	// Connected state.
	ErrNotConnected = errors.New("transport: not connected")
)

// ConnectionError reports a failure to reach or keep a session. It is
// always recoverable: the document stays usable offline.
type ConnectionError struct {
	Endpoint Endpoint
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("transport: connection to %s: %v", e.Endpoint, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// IsConnectionError reports whether err is or wraps a ConnectionError.
func IsConnectionError(err error) bool {
	var connectionErr *ConnectionError
	return errors.As(err, &connectionErr)
}

// RejectedError is a handshake refused by the relay with an error
// frame, for example an unknown session or an expired token.
type RejectedError struct {
	Message string
}

func (e *RejectedError) Error() string {
	return "transport: rejected by relay: " + e.Message
}
