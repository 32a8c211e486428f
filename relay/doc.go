// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

// Package relay is the server side of Patchbay: a document directory
// behind a REST API and a hub of live editing sessions.
//
// [Hub] keeps, per live session, the ordered log of every transaction
// any participant sent and a replica of the document built from that
// log. A joining participant says hello with the version vector it
// already has; the hub answers with a welcome carrying the hub's own
// vector, replays every logged transaction the participant lacks, and
// tells everyone who is connected. After that each transaction a
// participant sends is logged, applied to the hub's replica and fanned
// out to the others. The hub never reorders or rewrites transactions;
// convergence is the replicas' business.
//
// [Directory] is the in-memory document list served under
// /api/documents. Opening a document starts a hub session seeded with
// the document's stored snapshot; when the last participant leaves,
// the session's state is written back as the stored snapshot.
//
// [Server] puts both behind one HTTP listener with bearer-token
// [Accounts], and optionally exposes Prometheus metrics.
package relay
