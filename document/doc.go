// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

// Package document implements the replicated patcher document.
//
// # State
//
// All state lives in last-writer-wins registers keyed by (entity Ref,
// field, member Ref). Each register holds a value and the [Stamp] of
// the write that produced it. Stamps are totally ordered by (Lamport
// time, replica id), so any two replicas that have applied the same set
// of transactions hold identical registers regardless of the order the
// transactions arrived in.
//
// Entities are never deleted from the register map. Removal writes
// false to the entity's alive register. Edits to other fields never
// touch the alive register, so a field edit concurrent with a removal
// cannot bring the entity back: deletion dominates. Only a later
// explicit write of alive=true (undoing the removal) revives it.
//
// Link liveness is derived rather than stored: a link is live when its
// own alive register is true, both endpoint objects are live, the port
// indices fit the endpoints' port lists, and no other live link with the
// same (sender, outlet, receiver, inlet) tuple has a smaller Ref. A
// committed state therefore never shows a dangling or duplicated link,
// even after merging edits that were each valid on their own.
//
// # Transactions
//
// Local edits are applied immediately and collected into a pending
// transaction until [Document.Commit] seals it. A sealed transaction
// carries its author replica, a per-replica sequence number, and the
// version vector its author had applied. [Document.Apply] buffers a
// remote transaction until everything it depends on has been applied
// and drops duplicates.
//
// # Undo
//
// Undo is causal: undoing an entry rewrites only registers whose
// winning write is still the one the entry made. A field another user
// changed afterwards is left alone. View state and selection are not
// undoable. Consecutive gesture commits coalesce into one undo entry.
//
// # Projection
//
// [Document.Refresh] rebuilds a read-only [Patcher] from the registers
// after each mutation pass and marks every object and link as added,
// changed or removed relative to the previous projection.
package document
