// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil holds the two wall-clock helpers of the test suite.
//
// Timer-driven code (pull intervals, drive polling, reconnect backoff)
// is tested on clock.Fake. Only tests that cross a real goroutine or
// socket boundary need a real timeout: [RequireReceive] for a value on
// a channel and [WaitFor] for a condition that becomes true elsewhere.
// Both fail the test with t.Fatalf rather than returning an error.
package testutil
