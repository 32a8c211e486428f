// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

package loop

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Loop is a queue of functions executed one at a time, in the order
// they were posted.
type Loop struct {
	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	closed  bool
	running atomic.Bool
	logger  *slog.Logger
}

// New returns an empty loop. A nil logger uses slog.Default().
func New(logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		wake:   make(chan struct{}, 1),
		logger: logger,
	}
}

// Post enqueues fn. Safe to call from any goroutine, including from
// inside a function the loop is running. Posting to a closed loop
// drops fn and returns false.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Len returns the number of queued functions.
func (l *Loop) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// RunPending runs queued functions on the calling goroutine until the
// queue is empty, including functions posted while draining. Returns
// the number of functions run. Used by tests and by callers that drive
// the loop from their own event source (the TUI).
func (l *Loop) RunPending() int {
	count := 0
	for {
		fn := l.pop()
		if fn == nil {
			return count
		}
		l.invoke(fn)
		count++
	}
}

// Run drains the queue until ctx is cancelled or Close is called.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		panic("loop: Run called concurrently")
	}
	defer l.running.Store(false)

	for {
		l.RunPending()

		l.mu.Lock()
		closed := l.closed
		l.mu.Unlock()
		if closed {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}

// Close stops accepting new work. Functions already queued still run
// on the next drain.
func (l *Loop) Close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Loop) pop() func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil
	}
	fn := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return fn
}

// invoke runs fn and keeps the loop alive if it panics. A panicking
// task is a bug in that task; the rest of the queue is unaffected.
func (l *Loop) invoke(fn func()) {
	defer func() {
		if recovered := recover(); recovered != nil {
			l.logger.Error("loop task panicked", "panic", recovered)
		}
	}()
	fn()
}
