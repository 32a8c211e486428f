// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import (
	"fmt"
	"strconv"
)

// UserID identifies a session participant. OfflineUser (zero) is the
// local user of a document that has never been connected.
type UserID uint64

// OfflineUser is the user id of the local user while offline.
const OfflineUser UserID = 0

// String returns the decimal form of the user id.
func (u UserID) String() string { return strconv.FormatUint(uint64(u), 10) }

// ParseUserID parses a decimal user id.
func ParseUserID(raw string) (UserID, error) {
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid user id %q: %w", raw, err)
	}
	return UserID(value), nil
}

// SessionID identifies a live relay session. Zero means the document
// is not open on the relay.
type SessionID uint64

// String returns the session id in hex.
func (s SessionID) String() string { return fmt.Sprintf("%x", uint64(s)) }

// IsZero reports whether s is the zero SessionID.
func (s SessionID) IsZero() bool { return s == 0 }

// ParseSessionID parses the hex form produced by String.
func ParseSessionID(raw string) (SessionID, error) {
	value, err := strconv.ParseUint(raw, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid session id %q: %w", raw, err)
	}
	return SessionID(value), nil
}

// DocumentID is the server-assigned stable id of a directory entry. It
// is the only identity key of a document session: names and other
// display fields never take part in equality.
type DocumentID uint64

// String returns the decimal form of the document id.
func (d DocumentID) String() string { return strconv.FormatUint(uint64(d), 10) }

// ParseDocumentID parses a decimal document id.
func ParseDocumentID(raw string) (DocumentID, error) {
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid document id %q: %w", raw, err)
	}
	if value == 0 {
		return 0, fmt.Errorf("document id must be non-zero")
	}
	return DocumentID(value), nil
}
