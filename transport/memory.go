// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"io"
	"sync"
)

// memoryQueueSize bounds each direction of a memory pipe.
const memoryQueueSize = 1024

// Compile-time interface checks.
var (
	_ Link   = (*MemoryLink)(nil)
	_ Dialer = (*MemoryDialer)(nil)
)

// MemoryLink is one end of an in-process pipe. Frames are encoded on
// Send and decoded on Receive, exactly as on a socket.
type MemoryLink struct {
	in   <-chan []byte
	out  chan<- []byte
	pipe *memoryPipe
}

type memoryPipe struct {
	once sync.Once
	done chan struct{}
}

// NewMemoryPipe returns the two connected ends of a pipe. Closing
// either end closes both.
func NewMemoryPipe() (*MemoryLink, *MemoryLink) {
	pipe := &memoryPipe{done: make(chan struct{})}
	aToB := make(chan []byte, memoryQueueSize)
	bToA := make(chan []byte, memoryQueueSize)
	return &MemoryLink{in: bToA, out: aToB, pipe: pipe},
		&MemoryLink{in: aToB, out: bToA, pipe: pipe}
}

// Send implements Link.
func (l *MemoryLink) Send(frame Frame) error {
	data, err := EncodeFrame(frame)
	if err != nil {
		return err
	}
	select {
	case <-l.pipe.done:
		return ErrClosed
	default:
	}
	select {
	case l.out <- data:
		return nil
	default:
		return ErrQueueFull
	}
}

// Receive implements Link. Frames queued before Close are still
// delivered; after that Receive returns io.EOF.
func (l *MemoryLink) Receive(ctx context.Context) (Frame, error) {
	select {
	case data := <-l.in:
		return DecodeFrame(data)
	default:
	}
	select {
	case data := <-l.in:
		return DecodeFrame(data)
	case <-l.pipe.done:
		select {
		case data := <-l.in:
			return DecodeFrame(data)
		default:
			return Frame{}, io.EOF
		}
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

// Close implements Link.
func (l *MemoryLink) Close() error {
	l.pipe.once.Do(func() { close(l.pipe.done) })
	return nil
}

// Server accepts the relay end of a link. relay.Hub implements it.
type Server interface {
	// ServeLink runs the relay side of one connection until the link
	// closes or ctx is done.
	ServeLink(ctx context.Context, link Link)
}

// MemoryDialer connects to a Server in the same process. Each Dial
// creates a pipe and serves the far end on a new goroutine.
type MemoryDialer struct {
	Server Server

	// Context bounds the server goroutines. Nil means
	// context.Background().
	Context context.Context
}

// Dial implements Dialer.
func (d *MemoryDialer) Dial(ctx context.Context, endpoint Endpoint) (Link, error) {
	if err := ctx.Err(); err != nil {
		return nil, &ConnectionError{Endpoint: endpoint, Err: err}
	}
	client, server := NewMemoryPipe()
	serverContext := d.Context
	if serverContext == nil {
		serverContext = context.Background()
	}
	go func() {
		d.Server.ServeLink(serverContext, server)
		server.Close()
	}()
	return client, nil
}
