// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

package loop

import "sync/atomic"

// Token is a liveness flag. The zero value is alive.
type Token struct {
	revoked atomic.Bool
}

// NewToken returns a live token.
func NewToken() *Token { return &Token{} }

// Revoke marks the owner as gone. Idempotent.
func (t *Token) Revoke() { t.revoked.Store(true) }

// Alive reports whether Revoke has not been called.
func (t *Token) Alive() bool { return !t.revoked.Load() }

// Guard returns fn wrapped so that it does nothing once the token is
// revoked. The check happens when the wrapper runs, not when it is
// created.
func (t *Token) Guard(fn func()) func() {
	return func() {
		if t.Alive() {
			fn()
		}
	}
}

// Deliver posts fn to l guarded by t. It is the usual way for a worker
// goroutine to hand a result back to the component that started it.
func Deliver(l *Loop, t *Token, fn func()) {
	l.Post(t.Guard(fn))
}
