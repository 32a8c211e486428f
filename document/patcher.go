// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

package document

import (
	"cmp"
	"maps"
	"slices"

	"github.com/patchbay-collective/patchbay/lib/ref"
)

// Flags mark how an entity differs from the previous projection. They
// are recomputed on every Refresh and never stored.
type Flags uint8

const (
	FlagAdded Flags = 1 << iota
	FlagChanged
)

// Object is the projected state of a live object.
type Object struct {
	Ref      ref.Ref
	Text     string
	Position Point
	Size     Size
	Inlets   string
	Outlets  string
	Z        float64
	Flags    Flags
}

// InletCount returns the number of inlets.
func (o Object) InletCount() int { return len(o.Inlets) }

// OutletCount returns the number of outlets.
func (o Object) OutletCount() int { return len(o.Outlets) }

// Link is the projected state of a live link.
type Link struct {
	Ref ref.Ref
	LinkEnds
	// Control is true when the sender outlet is a control port.
	Control bool
	Flags   Flags
}

// View is the projected state of a live view.
type View struct {
	Ref     ref.Ref
	Owner   ref.UserID
	Locked  bool
	Zoom    float64
	objects map[ref.Ref]struct{}
	links   map[ref.Ref]struct{}
}

// Selects reports whether the view selects the object or link entity.
func (v View) Selects(entity ref.Ref) bool {
	if _, ok := v.objects[entity]; ok {
		return true
	}
	_, ok := v.links[entity]
	return ok
}

// SelectedObjects returns the selected live objects in Ref order.
func (v View) SelectedObjects() []ref.Ref { return sortedRefs(v.objects) }

// SelectedLinks returns the selected live links in Ref order.
func (v View) SelectedLinks() []ref.Ref { return sortedRefs(v.links) }

// User is a participant owning at least one live view.
type User struct {
	ID    ref.UserID
	Views []ref.Ref
}

// Patcher is an immutable projection of the document: live objects in
// z-order, live links, and users with their views.
type Patcher struct {
	Objects []Object
	Links   []Link
	Views   []View
	Users   []User

	// RemovedObjects and RemovedLinks were live in the previous
	// projection and are not any more.
	RemovedObjects []ref.Ref
	RemovedLinks   []ref.Ref

	objectIndex map[ref.Ref]int
	linkIndex   map[ref.Ref]int
	viewIndex   map[ref.Ref]int
}

func emptyPatcher() *Patcher {
	return &Patcher{
		objectIndex: map[ref.Ref]int{},
		linkIndex:   map[ref.Ref]int{},
		viewIndex:   map[ref.Ref]int{},
	}
}

// Object returns the live object r.
func (p *Patcher) Object(r ref.Ref) (Object, bool) {
	i, ok := p.objectIndex[r]
	if !ok {
		return Object{}, false
	}
	return p.Objects[i], true
}

// Link returns the live link r.
func (p *Patcher) Link(r ref.Ref) (Link, bool) {
	i, ok := p.linkIndex[r]
	if !ok {
		return Link{}, false
	}
	return p.Links[i], true
}

// View returns the live view r.
func (p *Patcher) View(r ref.Ref) (View, bool) {
	i, ok := p.viewIndex[r]
	if !ok {
		return View{}, false
	}
	return p.Views[i], true
}

// User returns the user with id, if it owns a live view.
func (p *Patcher) User(id ref.UserID) (User, bool) {
	i, found := slices.BinarySearchFunc(p.Users, id, func(u User, target ref.UserID) int {
		return cmp.Compare(u.ID, target)
	})
	if !found {
		return User{}, false
	}
	return p.Users[i], true
}

// Changed reports whether any object or link differs from the previous
// projection.
func (p *Patcher) Changed() bool {
	if len(p.RemovedObjects) > 0 || len(p.RemovedLinks) > 0 {
		return true
	}
	for _, object := range p.Objects {
		if object.Flags != 0 {
			return true
		}
	}
	for _, link := range p.Links {
		if link.Flags != 0 {
			return true
		}
	}
	return false
}

// Patcher returns the projection built by the last Refresh.
func (d *Document) Patcher() *Patcher { return d.patcher }

// Refresh rebuilds the projection from the registers and flags every
// entity touched since the previous Refresh.
func (d *Document) Refresh() *Patcher {
	previous := d.patcher
	next := emptyPatcher()

	entities := slices.SortedFunc(maps.Keys(d.kinds), ref.Ref.Compare)

	for _, entity := range entities {
		if d.kinds[entity] != KindObject || !d.alive(entity) {
			continue
		}
		text, _ := d.read(Key{Entity: entity, Field: FieldText})
		position, _ := d.read(Key{Entity: entity, Field: FieldPosition})
		size, _ := d.read(Key{Entity: entity, Field: FieldSize})
		inlets, outlets := d.ports(entity)
		z, _ := d.read(Key{Entity: entity, Field: FieldZ})
		next.Objects = append(next.Objects, Object{
			Ref:      entity,
			Text:     text.Text,
			Position: position.Point,
			Size:     size.Size,
			Inlets:   inlets,
			Outlets:  outlets,
			Z:        z.Number,
		})
	}
	slices.SortStableFunc(next.Objects, func(a, b Object) int {
		if c := cmp.Compare(a.Z, b.Z); c != 0 {
			return c
		}
		return a.Ref.Compare(b.Ref)
	})
	for i, object := range next.Objects {
		next.objectIndex[object.Ref] = i
	}

	// Entities are visited in Ref order, so the first live link seen
	// for a tuple is the one with the smallest Ref.
	claimed := make(map[LinkEnds]bool)
	for _, entity := range entities {
		if d.kinds[entity] != KindLink || !d.alive(entity) {
			continue
		}
		ends, _ := d.read(Key{Entity: entity, Field: FieldEnds})
		sender, senderOK := next.Object(ends.Ends.Sender)
		receiver, receiverOK := next.Object(ends.Ends.Receiver)
		if !senderOK || !receiverOK {
			continue
		}
		if ends.Ends.Outlet < 0 || ends.Ends.Outlet >= sender.OutletCount() ||
			ends.Ends.Inlet < 0 || ends.Ends.Inlet >= receiver.InletCount() {
			continue
		}
		if claimed[ends.Ends] {
			continue
		}
		claimed[ends.Ends] = true
		next.linkIndex[entity] = len(next.Links)
		next.Links = append(next.Links, Link{
			Ref:      entity,
			LinkEnds: ends.Ends,
			Control:  sender.Outlets[ends.Ends.Outlet] == PortControl,
		})
	}

	owners := make(map[ref.UserID][]ref.Ref)
	for _, entity := range entities {
		if d.kinds[entity] != KindView || !d.alive(entity) {
			continue
		}
		owner, _ := d.read(Key{Entity: entity, Field: FieldOwner})
		locked, _ := d.read(Key{Entity: entity, Field: FieldLocked})
		zoom, _ := d.read(Key{Entity: entity, Field: FieldZoom})
		view := View{
			Ref:     entity,
			Owner:   owner.User,
			Locked:  locked.Bool,
			Zoom:    zoom.Number,
			objects: make(map[ref.Ref]struct{}),
			links:   make(map[ref.Ref]struct{}),
		}
		for member := range d.members[entity] {
			selected, _ := d.read(Key{Entity: entity, Field: FieldSelected, Member: member})
			if !selected.Bool {
				continue
			}
			if _, ok := next.objectIndex[member]; ok {
				view.objects[member] = struct{}{}
			} else if _, ok := next.linkIndex[member]; ok {
				view.links[member] = struct{}{}
			}
		}
		next.viewIndex[entity] = len(next.Views)
		next.Views = append(next.Views, view)
		owners[view.Owner] = append(owners[view.Owner], entity)
	}
	for _, id := range slices.Sorted(maps.Keys(owners)) {
		next.Users = append(next.Users, User{ID: id, Views: owners[id]})
	}

	for i := range next.Objects {
		next.Objects[i].Flags = d.flagsFor(previous.objectIndex, next.Objects[i].Ref)
	}
	for i := range next.Links {
		next.Links[i].Flags = d.flagsFor(previous.linkIndex, next.Links[i].Ref)
	}
	for _, object := range previous.Objects {
		if _, ok := next.objectIndex[object.Ref]; !ok {
			next.RemovedObjects = append(next.RemovedObjects, object.Ref)
		}
	}
	for _, link := range previous.Links {
		if _, ok := next.linkIndex[link.Ref]; !ok {
			next.RemovedLinks = append(next.RemovedLinks, link.Ref)
		}
	}
	slices.SortFunc(next.RemovedObjects, ref.Ref.Compare)
	slices.SortFunc(next.RemovedLinks, ref.Ref.Compare)

	clear(d.dirty)
	d.patcher = next
	return next
}

func (d *Document) flagsFor(previousIndex map[ref.Ref]int, entity ref.Ref) Flags {
	if _, ok := previousIndex[entity]; !ok {
		return FlagAdded
	}
	if _, ok := d.dirty[entity]; ok {
		return FlagChanged
	}
	return 0
}

func sortedRefs(set map[ref.Ref]struct{}) []ref.Ref {
	return slices.SortedFunc(maps.Keys(set), ref.Ref.Compare)
}
