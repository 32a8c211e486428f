// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts time for the periodic work of Patchbay: the
// session pull timer, the drive poll timer, and the reconnect backoff.
//
// Components take a Clock instead of calling the time package. In
// production they receive Real(); tests pass a FakeClock and move time
// forward explicitly with Advance, which fires due callbacks
// synchronously in deadline order.
package clock

import "time"

// Clock is the time source injected into timer-driven components.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives once d has elapsed.
	After(d time.Duration) <-chan time.Time

	// AfterFunc calls f once d has elapsed. The returned Timer cancels
	// the call if stopped first.
	AfterFunc(d time.Duration, f func()) *Timer
}

// Timer is a pending AfterFunc call.
type Timer struct {
	stop func() bool
}

// Stop cancels the pending call. It reports whether the call was still
// pending. Safe on a nil Timer.
func (t *Timer) Stop() bool {
	if t == nil || t.stop == nil {
		return false
	}
	return t.stop()
}

// Real returns the Clock backed by the time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

func (realClock) AfterFunc(d time.Duration, f func()) *Timer {
	timer := time.AfterFunc(d, f)
	return &Timer{stop: timer.Stop}
}
