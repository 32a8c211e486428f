// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

package remote

import (
	"time"

	"github.com/patchbay-collective/patchbay/lib/ref"
)

// Document is one directory entry as served by the relay.
type Document struct {
	ID      ref.DocumentID `json:"id"`
	Name    string         `json:"name"`
	Author  string         `json:"author"`
	Created time.Time      `json:"created"`

	// Opened is the last time the document was opened, and OpenedBy
	// the user who opened it.
	Opened   time.Time  `json:"opened,omitzero"`
	OpenedBy ref.UserID `json:"opened_by,omitempty"`

	Trashed   bool      `json:"trashed,omitempty"`
	TrashedAt time.Time `json:"trashed_at,omitzero"`

	// Session is the live session id; non-zero means the document is
	// open on the relay.
	Session ref.SessionID `json:"session,omitempty"`
}

// Listing is the response of GET /api/documents.
type Listing struct {
	Documents []Document `json:"documents"`
}

// CreateRequest is the body of POST /api/documents.
type CreateRequest struct {
	Name string `json:"name"`
}

// RenameRequest is the body of POST /api/documents/{id}/rename.
type RenameRequest struct {
	Name string `json:"name"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}
