// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

package drive

import (
	"cmp"
	"fmt"
	"strings"
)

// SortKey selects the primary sort field.
type SortKey int

const (
	SortName SortKey = iota
	SortAuthor
	SortCreated
	SortOpened
)

func (k SortKey) String() string {
	switch k {
	case SortName:
		return "name"
	case SortAuthor:
		return "author"
	case SortCreated:
		return "created"
	case SortOpened:
		return "opened"
	default:
		return fmt.Sprintf("sort(%d)", int(k))
	}
}

// ParseSortKey parses the String form of a SortKey.
func ParseSortKey(name string) (SortKey, error) {
	for _, key := range []SortKey{SortName, SortAuthor, SortCreated, SortOpened} {
		if key.String() == name {
			return key, nil
		}
	}
	return 0, fmt.Errorf("drive: unknown sort key %q (want name, author, created or opened)", name)
}

// Order is the active comparator: a primary key, then the trashed flag
// as tie-break, then the id so that sorting is total.
type Order struct {
	Key SortKey

	// TrashedFirst puts trashed entries before others when the primary
	// keys tie.
	TrashedFirst bool
}

// Compare orders a before b. Names and authors sort alphabetically
// ignoring case; creation and opened times sort newest first.
func (o Order) Compare(a, b Entry) int {
	var c int
	switch o.Key {
	case SortName:
		c = compareText(a.Name, b.Name)
	case SortAuthor:
		c = compareText(a.Author, b.Author)
	case SortCreated:
		c = b.Created.Compare(a.Created)
	case SortOpened:
		c = b.Opened.Compare(a.Opened)
	}
	if c != 0 {
		return c
	}
	if a.Trashed != b.Trashed {
		if a.Trashed == o.TrashedFirst {
			return -1
		}
		return 1
	}
	return cmp.Compare(a.ID, b.ID)
}

func compareText(a, b string) int {
	if c := strings.Compare(strings.ToLower(a), strings.ToLower(b)); c != 0 {
		return c
	}
	return strings.Compare(a, b)
}
