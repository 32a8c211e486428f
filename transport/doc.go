// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport connects a document replica to a relay session.
//
// The package defines two interfaces: [Link] is one established,
// bidirectional stream of [Frame] values, and [Dialer] opens a Link to
// an [Endpoint]. Frames are CBOR maps (lib/codec) carrying the session
// handshake (hello/welcome), document transactions, the connected user
// list, and errors.
//
// [WebSocketLink] is the production Link, built on gorilla/websocket
// with one binary message per frame, a dedicated writer goroutine and
// ping keepalives. [MemoryLink] is an in-process pipe created by
// [NewMemoryPipe]; [MemoryDialer] hands the far end of each pipe to a
// [Server] (the relay hub), so a whole relay session can run inside a
// test without sockets. Both encode every frame, so they exercise the
// same wire form.
//
// [Controller] owns the connection lifecycle of one document. It is a
// state machine with exactly one active [State]: Disconnected,
// Connecting, Connected, Reconnecting or Failed. All state changes and
// transition callbacks happen on the owner's loop (lib/loop); dialing
// and reading run on goroutines that post their results back. A lost
// connection is retried with exponential backoff on the injected clock
// until the attempt budget is spent, at which point the controller
// enters Failed. Inbound frames queue inside the controller until the
// owner drains them.
package transport
