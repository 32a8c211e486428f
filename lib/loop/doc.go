// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

// Package loop provides the designated logical thread that owns every
// replicated document and the caches derived from it.
//
// A [Loop] is a FIFO task queue. Exactly one goroutine drains it at a
// time: [Loop.Run] in production, [Loop.RunPending] in tests. Network
// I/O happens on other goroutines and hands its result back with
// [Loop.Post]; only the posted function touches document state.
//
// A [Token] is a liveness flag owned by a component (a patcher manager,
// a drive). Callbacks wrapped with [Token.Guard] become no-ops once the
// token is revoked, so a reply that arrives after its target was torn
// down is dropped instead of touching freed state.
package loop
