// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

package selection

import (
	"slices"

	"github.com/patchbay-collective/patchbay/lib/ref"
)

// View is the raw selection of one view.
type View struct {
	Ref      ref.Ref
	Selected []ref.Ref
}

// User is a participant and the views it owns.
type User struct {
	ID    ref.UserID
	Views []View
}

// State is the input of one pass.
type State struct {
	// Entities lists every live object and link. Selection bits for
	// anything else are ignored.
	Entities []ref.Ref

	// Users lists every user owning at least one live view, including
	// the local user.
	Users []User

	// LocalUser owns the reconciled view.
	LocalUser ref.UserID

	// Connected lists the users currently connected to the session.
	// The local user need not be listed.
	Connected []ref.UserID
}

// Classification is the derived selection state of one entity.
type Classification struct {
	Local          bool
	OtherLocalView bool
	// OtherUsers holds the ids of connected users selecting the entity,
	// sorted.
	OtherUsers []ref.UserID
}

// IsZero reports whether nobody selects the entity.
func (c Classification) IsZero() bool {
	return !c.Local && !c.OtherLocalView && len(c.OtherUsers) == 0
}

// Equal reports whether c and other classify identically.
func (c Classification) Equal(other Classification) bool {
	return c.Local == other.Local && c.OtherLocalView == other.OtherLocalView &&
		slices.Equal(c.OtherUsers, other.OtherUsers)
}

// Change reports an entity whose classification differs from the
// previous pass.
type Change struct {
	Entity ref.Ref
	Before Classification
	After  Classification
}

// Reconciler classifies selection for one local view. Not safe for
// concurrent use.
type Reconciler struct {
	view  ref.Ref
	state map[ref.Ref]Classification
}

// New returns a Reconciler for view with an empty cache.
func New(view ref.Ref) *Reconciler {
	return &Reconciler{view: view, state: make(map[ref.Ref]Classification)}
}

// View returns the reconciled view.
func (r *Reconciler) View() ref.Ref { return r.view }

// Reconcile runs one pass over input and returns the changed entities in
// Ref order. The cache already holds the new state when it returns.
func (r *Reconciler) Reconcile(input State) []Change {
	connected := make(map[ref.UserID]bool, len(input.Connected))
	for _, id := range input.Connected {
		connected[id] = true
	}

	type viewSet struct {
		ref      ref.Ref
		selected map[ref.Ref]bool
	}
	type userSet struct {
		id    ref.UserID
		local bool
		views []viewSet
	}
	var users []userSet
	for _, user := range input.Users {
		local := user.ID == input.LocalUser
		if !local && !connected[user.ID] {
			continue
		}
		set := userSet{id: user.ID, local: local}
		for _, view := range user.Views {
			selected := make(map[ref.Ref]bool, len(view.Selected))
			for _, entity := range view.Selected {
				selected[entity] = true
			}
			set.views = append(set.views, viewSet{ref: view.Ref, selected: selected})
		}
		users = append(users, set)
	}

	next := make(map[ref.Ref]Classification)
	for _, entity := range input.Entities {
		var c Classification
		for _, user := range users {
			for _, view := range user.views {
				if !view.selected[entity] {
					continue
				}
				if user.local {
					if view.ref == r.view {
						c.Local = true
					} else {
						c.OtherLocalView = true
					}
					continue
				}
				c.OtherUsers = append(c.OtherUsers, user.id)
				break
			}
		}
		if !c.IsZero() {
			slices.Sort(c.OtherUsers)
			next[entity] = c
		}
	}

	var changes []Change
	for entity, before := range r.state {
		if _, ok := next[entity]; !ok {
			changes = append(changes, Change{Entity: entity, Before: before})
		}
	}
	for entity, after := range next {
		if before := r.state[entity]; !before.Equal(after) {
			changes = append(changes, Change{Entity: entity, Before: before, After: after})
		}
	}
	slices.SortFunc(changes, func(a, b Change) int { return a.Entity.Compare(b.Entity) })

	r.state = next
	return changes
}

// Classify returns the cached classification of entity.
func (r *Reconciler) Classify(entity ref.Ref) Classification {
	return r.state[entity]
}

// LocalSelection returns the entities selected in the reconciled view,
// in Ref order.
func (r *Reconciler) LocalSelection() []ref.Ref {
	var refs []ref.Ref
	for entity, c := range r.state {
		if c.Local {
			refs = append(refs, entity)
		}
	}
	slices.SortFunc(refs, ref.Ref.Compare)
	return refs
}

// DistantSelection returns, for every entity selected by another
// connected user, the ids of those users.
func (r *Reconciler) DistantSelection() map[ref.Ref][]ref.UserID {
	distant := make(map[ref.Ref][]ref.UserID)
	for entity, c := range r.state {
		if len(c.OtherUsers) > 0 {
			distant[entity] = slices.Clone(c.OtherUsers)
		}
	}
	return distant
}

// Reset drops the cache. The next pass reports every selected entity as
// changed.
func (r *Reconciler) Reset() {
	r.state = make(map[ref.Ref]Classification)
}
