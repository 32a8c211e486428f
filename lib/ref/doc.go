// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

// Package ref provides the stable, network-safe identifiers used by
// every Patchbay component.
//
// A [Ref] names an entity of a replicated patcher document (an object,
// a link, or a view). It is a value, not a pointer: the pair of the
// minting replica and that replica's sequence counter. Two replicas can
// create entities concurrently without coordination because their
// replica ids differ, and a Ref keeps its meaning when the entity is
// mutated, serialized to disk, or sent to another process.
//
// [UserID] identifies a participant of a shared session. The zero
// UserID is the offline (local) user. [SessionID] identifies a live
// relay session, and [DocumentID] identifies a document in the server
// directory.
//
// The canonical text form of a Ref is "<replica hex>.<seq decimal>",
// used for JSON, CBOR text strings, log attributes and CLI output.
package ref
