// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

// Package patcher owns open documents and everything derived from them.
//
// A [Manager] owns exactly one document.Document for its whole life.
// It binds the document to a transport.Controller, turns local edits
// into committed transactions, applies remote transactions in [Manager.Pull]
// and, after every mutation, runs one reconciliation pass: the cycle
// detector over live control links and one selection.Reconciler per
// local [View]. Listeners hear about the results after the pass.
//
// Transactions are only sent while the controller is Connected. While
// offline they accumulate in the manager; on the next welcome the
// manager resends every local transaction the relay has not seen, so a
// dropped connection never loses an edit. When a live connection is
// lost the [Prompter] is asked, once per loss, whether to continue
// offline; declining closes this manager's views and nothing else.
//
// Continuous interactions use [Manager.BeginGesture]: each
// [Gesture.Step] commits into one coalesced undo entry, and End or
// Cancel finishes it. Both are idempotent, so
//
//	g := m.BeginGesture("move")
//	defer g.End()
//
// covers every exit path.
//
// A [Workspace] holds every manager of a process, keyed by file path or
// session id, and forgets a manager when its last view closes.
//
// Everything here runs on the [Context]'s loop.
package patcher
