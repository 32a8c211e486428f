// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

// Package remote is the HTTP client for a relay's document directory.
//
// [Client] wraps the REST endpoints under /api/documents: listing,
// creating, renaming, trashing, restoring, duplicating, uploading and
// downloading documents, and opening a document's live session. All
// requests carry the account's bearer token. A 401 or 403 response is
// returned as [AuthExpiredError], which callers treat as "log out and
// ask for new credentials"; other error statuses are [APIError].
//
// Client methods block. Components that live on a loop use [Go] to run
// a call on a goroutine and receive the result back on the loop,
// guarded by their liveness token. This keeps HTTP out of the loop and
// keeps the wire format out of the rest of the tree.
package remote
