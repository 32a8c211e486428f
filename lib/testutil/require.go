// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"time"
)

// TB is the subset of testing.TB the helpers need.
type TB interface {
	Helper()
	Fatalf(format string, args ...any)
}

// pollInterval is how often WaitFor re-checks its condition.
const pollInterval = 5 * time.Millisecond

// RequireReceive returns the next value from ch, failing the test if
// none arrives within timeout or ch is closed first.
//
//	frame := testutil.RequireReceive(t, frames, 5*time.Second, "welcome from %s", peer)
func RequireReceive[T any](t TB, ch <-chan T, timeout time.Duration, what ...any) T {
	t.Helper()
	timer := time.NewTimer(timeout) //nolint:realclock test hang prevention
	defer timer.Stop()
	select {
	case v, ok := <-ch:
		if !ok {
			t.Fatalf("channel closed while waiting for %s", describe(what))
		}
		return v
	case <-timer.C:
		t.Fatalf("no %s within %v", describe(what), timeout)
	}
	panic("unreachable")
}

// WaitFor calls condition until it returns true, failing the test once
// timeout has passed. condition runs on the calling goroutine, so it
// may drain a loop with RunPending between checks.
//
//	testutil.WaitFor(t, 5*time.Second, func() bool { l.RunPending(); return m.State() == transport.StateConnected }, "connected")
func WaitFor(t TB, timeout time.Duration, condition func() bool, what ...any) {
	t.Helper()
	deadline := time.Now().Add(timeout) //nolint:realclock test hang prevention
	for !condition() {
		if time.Now().After(deadline) { //nolint:realclock test hang prevention
			t.Fatalf("still waiting for %s after %v", describe(what), timeout)
		}
		time.Sleep(pollInterval) //nolint:realclock test hang prevention
	}
}

// describe renders the optional description arguments: nothing, a
// plain string, or a format string with its arguments.
func describe(what []any) string {
	switch {
	case len(what) == 0:
		return "the expected event"
	case len(what) == 1:
		return fmt.Sprint(what[0])
	}
	if format, ok := what[0].(string); ok {
		return fmt.Sprintf(format, what[1:]...)
	}
	return fmt.Sprint(what...)
}
