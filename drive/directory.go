// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

package drive

import (
	"slices"

	"github.com/patchbay-collective/patchbay/lib/ref"
)

// Listener receives directory events. Per-entry events of one
// reconcile come first (removals, then additions, then changes),
// followed by a single DriveChanged.
type Listener interface {
	DocumentAdded(entry Entry)
	DocumentChanged(before, after Entry)
	DocumentRemoved(entry Entry)
	DriveChanged()
}

// NopListener implements Listener with no-ops. Embed it to handle only
// some events.
type NopListener struct{}

func (NopListener) DocumentAdded(Entry)          {}
func (NopListener) DocumentChanged(Entry, Entry) {}
func (NopListener) DocumentRemoved(Entry)        {}
func (NopListener) DriveChanged()                {}

// Directory is the sorted cache of directory entries. Not safe for
// concurrent use; it belongs to its Drive's loop.
type Directory struct {
	entries  []Entry
	order    Order
	listener Listener
}

// NewDirectory returns an empty directory. A nil listener is replaced
// by NopListener.
func NewDirectory(order Order, listener Listener) *Directory {
	if listener == nil {
		listener = NopListener{}
	}
	return &Directory{order: order, listener: listener}
}

// Entries returns a copy of the cached entries in display order.
func (d *Directory) Entries() []Entry { return slices.Clone(d.entries) }

// Len returns the number of cached entries.
func (d *Directory) Len() int { return len(d.entries) }

// Entry returns the cached entry with id.
func (d *Directory) Entry(id ref.DocumentID) (Entry, bool) {
	for _, entry := range d.entries {
		if entry.ID == id {
			return entry, true
		}
	}
	return Entry{}, false
}

// Order returns the active order.
func (d *Directory) Order() Order { return d.order }

// SetOrder changes the comparator and re-sorts. DriveChanged fires if
// the order changed.
func (d *Directory) SetOrder(order Order) {
	if order == d.order {
		return
	}
	d.order = order
	d.sort()
	d.listener.DriveChanged()
}

func (d *Directory) sort() {
	slices.SortStableFunc(d.entries, d.order.Compare)
}

type modification struct {
	before Entry
	after  Entry
}

// Reconcile replaces the cache with candidates and reports whether
// anything changed. Only the first occurrence of a repeated id counts.
// The cache is updated before any event fires.
func (d *Directory) Reconcile(candidates []Entry) bool {
	wanted := make(map[ref.DocumentID]Entry, len(candidates))
	var order []ref.DocumentID
	for _, candidate := range candidates {
		if _, seen := wanted[candidate.ID]; seen {
			continue
		}
		wanted[candidate.ID] = candidate
		order = append(order, candidate.ID)
	}

	var removed []Entry
	var changed []modification
	kept := make([]Entry, 0, len(order))
	present := make(map[ref.DocumentID]bool, len(d.entries))
	for _, entry := range d.entries {
		candidate, ok := wanted[entry.ID]
		if !ok {
			removed = append(removed, entry)
			continue
		}
		present[entry.ID] = true
		if !entry.sameState(candidate) {
			changed = append(changed, modification{before: entry, after: candidate})
			entry = candidate
		}
		kept = append(kept, entry)
	}
	var added []Entry
	for _, id := range order {
		if !present[id] {
			added = append(added, wanted[id])
			kept = append(kept, wanted[id])
		}
	}

	if len(removed) == 0 && len(added) == 0 && len(changed) == 0 {
		return false
	}
	d.entries = kept
	d.sort()

	for _, entry := range removed {
		d.listener.DocumentRemoved(entry)
	}
	for _, entry := range added {
		d.listener.DocumentAdded(entry)
	}
	for _, modification := range changed {
		d.listener.DocumentChanged(modification.before, modification.after)
	}
	d.listener.DriveChanged()
	return true
}

// Put inserts or updates a single entry, typically the result of an
// operation this client issued, without waiting for the next poll.
func (d *Directory) Put(entry Entry) bool {
	for i, existing := range d.entries {
		if existing.ID != entry.ID {
			continue
		}
		if existing.sameState(entry) {
			return false
		}
		d.entries[i] = entry
		d.sort()
		d.listener.DocumentChanged(existing, entry)
		d.listener.DriveChanged()
		return true
	}
	d.entries = append(d.entries, entry)
	d.sort()
	d.listener.DocumentAdded(entry)
	d.listener.DriveChanged()
	return true
}

// Clear empties the cache, firing removal events. Used on logout.
func (d *Directory) Clear() {
	d.Reconcile(nil)
}
