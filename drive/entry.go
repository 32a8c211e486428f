// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

package drive

import (
	"time"

	"github.com/patchbay-collective/patchbay/lib/ref"
	"github.com/patchbay-collective/patchbay/remote"
)

// Entry is one cached directory entry.
type Entry struct {
	ID        ref.DocumentID
	Name      string
	Author    string
	Created   time.Time
	Opened    time.Time
	OpenedBy  ref.UserID
	Trashed   bool
	TrashedAt time.Time
	// Session is the live session id; non-zero means open.
	Session ref.SessionID
}

// Open reports whether the document has a live session.
func (e Entry) Open() bool { return e.Session != 0 }

// EntryFromRemote converts a directory listing entry.
func EntryFromRemote(document remote.Document) Entry {
	return Entry{
		ID:        document.ID,
		Name:      document.Name,
		Author:    document.Author,
		Created:   document.Created,
		Opened:    document.Opened,
		OpenedBy:  document.OpenedBy,
		Trashed:   document.Trashed,
		TrashedAt: document.TrashedAt,
		Session:   document.Session,
	}
}

// sameState reports whether the mutable fields of e and other agree.
// Id, author and creation time never change for a given id.
func (e Entry) sameState(other Entry) bool {
	return e.Name == other.Name &&
		e.Trashed == other.Trashed &&
		e.TrashedAt.Equal(other.TrashedAt) &&
		e.Opened.Equal(other.Opened) &&
		e.OpenedBy == other.OpenedBy &&
		e.Session == other.Session
}
