// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

package document

import (
	"errors"
	"fmt"
	"strings"

	"github.com/patchbay-collective/patchbay/lib/ref"
)

var (
	// ErrNotFound is returned when an edit targets an entity that does
	// not exist or has been removed.
	ErrNotFound = errors.New("document: entity not found")

	// ErrInvalidLink is returned by AddLink for links that would dangle,
	// address a missing port, or duplicate a live link.
	ErrInvalidLink = errors.New("document: invalid link")

	// ErrInvalidPorts is returned for port strings containing anything
	// other than control and signal kinds.
	ErrInvalidPorts = errors.New("document: invalid port kinds")
)

// ObjectSpec describes a new object.
type ObjectSpec struct {
	Text     string
	Position Point
	Size     Size
	// Inlets and Outlets hold one kind character per port: 'c' for
	// control, 's' for signal.
	Inlets  string
	Outlets string
}

func validPorts(ports string) bool {
	return strings.Trim(ports, string([]rune{PortControl, PortSignal})) == ""
}

func (d *Document) requireLive(entity ref.Ref, kind Kind) error {
	if d.kindOf(entity) != kind || !d.alive(entity) {
		return fmt.Errorf("%w: %s %s", ErrNotFound, kind, entity)
	}
	return nil
}

func (d *Document) set(entity ref.Ref, field Field, value Value) {
	d.write(Key{Entity: entity, Field: field}, value)
}

// AddObject creates an object on top of the z-order.
func (d *Document) AddObject(spec ObjectSpec) (ref.Ref, error) {
	if !validPorts(spec.Inlets) || !validPorts(spec.Outlets) {
		return ref.Ref{}, fmt.Errorf("%w: inlets %q outlets %q", ErrInvalidPorts, spec.Inlets, spec.Outlets)
	}
	entity := d.refs.Next()
	d.set(entity, FieldKind, Value{Number: float64(KindObject)})
	d.set(entity, FieldText, Value{Text: spec.Text})
	d.set(entity, FieldPosition, Value{Point: spec.Position})
	d.set(entity, FieldSize, Value{Size: spec.Size})
	d.set(entity, FieldInlets, Value{Text: spec.Inlets})
	d.set(entity, FieldOutlets, Value{Text: spec.Outlets})
	d.set(entity, FieldZ, Value{Number: d.topZ() + 1})
	d.set(entity, FieldAlive, Value{Bool: true})
	return entity, nil
}

// RemoveObject removes an object. Links attached to it stop being live
// but keep their own state, so undoing the removal restores them too.
func (d *Document) RemoveObject(entity ref.Ref) error {
	if err := d.requireLive(entity, KindObject); err != nil {
		return err
	}
	d.set(entity, FieldAlive, Value{Bool: false})
	return nil
}

// MoveObject sets an object's position.
func (d *Document) MoveObject(entity ref.Ref, position Point) error {
	if err := d.requireLive(entity, KindObject); err != nil {
		return err
	}
	d.set(entity, FieldPosition, Value{Point: position})
	return nil
}

// ResizeObject sets an object's size.
func (d *Document) ResizeObject(entity ref.Ref, size Size) error {
	if err := d.requireLive(entity, KindObject); err != nil {
		return err
	}
	d.set(entity, FieldSize, Value{Size: size})
	return nil
}

// SetText sets an object's text.
func (d *Document) SetText(entity ref.Ref, text string) error {
	if err := d.requireLive(entity, KindObject); err != nil {
		return err
	}
	d.set(entity, FieldText, Value{Text: text})
	return nil
}

// SetPorts replaces an object's inlet and outlet kinds. Links whose
// port no longer exists stop being live.
func (d *Document) SetPorts(entity ref.Ref, inlets, outlets string) error {
	if err := d.requireLive(entity, KindObject); err != nil {
		return err
	}
	if !validPorts(inlets) || !validPorts(outlets) {
		return fmt.Errorf("%w: inlets %q outlets %q", ErrInvalidPorts, inlets, outlets)
	}
	d.set(entity, FieldInlets, Value{Text: inlets})
	d.set(entity, FieldOutlets, Value{Text: outlets})
	return nil
}

// BringToFront moves an object above every other live object.
func (d *Document) BringToFront(entity ref.Ref) error {
	if err := d.requireLive(entity, KindObject); err != nil {
		return err
	}
	d.set(entity, FieldZ, Value{Number: d.topZ() + 1})
	return nil
}

// SendToBack moves an object below every other live object.
func (d *Document) SendToBack(entity ref.Ref) error {
	if err := d.requireLive(entity, KindObject); err != nil {
		return err
	}
	d.set(entity, FieldZ, Value{Number: d.bottomZ() - 1})
	return nil
}

func (d *Document) topZ() float64 {
	top, first := 0.0, true
	for entity, kind := range d.kinds {
		if kind != KindObject || !d.alive(entity) {
			continue
		}
		z, _ := d.read(Key{Entity: entity, Field: FieldZ})
		if first || z.Number > top {
			top, first = z.Number, false
		}
	}
	return top
}

func (d *Document) bottomZ() float64 {
	bottom, first := 0.0, true
	for entity, kind := range d.kinds {
		if kind != KindObject || !d.alive(entity) {
			continue
		}
		z, _ := d.read(Key{Entity: entity, Field: FieldZ})
		if first || z.Number < bottom {
			bottom, first = z.Number, false
		}
	}
	return bottom
}

func (d *Document) ports(entity ref.Ref) (inlets, outlets string) {
	in, _ := d.read(Key{Entity: entity, Field: FieldInlets})
	out, _ := d.read(Key{Entity: entity, Field: FieldOutlets})
	return in.Text, out.Text
}

// AddLink connects sender's outlet to receiver's inlet.
func (d *Document) AddLink(ends LinkEnds) (ref.Ref, error) {
	if err := d.requireLive(ends.Sender, KindObject); err != nil {
		return ref.Ref{}, fmt.Errorf("%w: sender: %v", ErrInvalidLink, err)
	}
	if err := d.requireLive(ends.Receiver, KindObject); err != nil {
		return ref.Ref{}, fmt.Errorf("%w: receiver: %v", ErrInvalidLink, err)
	}
	_, outlets := d.ports(ends.Sender)
	inlets, _ := d.ports(ends.Receiver)
	if ends.Outlet < 0 || ends.Outlet >= len(outlets) {
		return ref.Ref{}, fmt.Errorf("%w: sender has no outlet %d", ErrInvalidLink, ends.Outlet)
	}
	if ends.Inlet < 0 || ends.Inlet >= len(inlets) {
		return ref.Ref{}, fmt.Errorf("%w: receiver has no inlet %d", ErrInvalidLink, ends.Inlet)
	}
	for entity, kind := range d.kinds {
		if kind != KindLink || !d.alive(entity) {
			continue
		}
		existing, _ := d.read(Key{Entity: entity, Field: FieldEnds})
		if existing.Ends == ends {
			return ref.Ref{}, fmt.Errorf("%w: duplicate of %s", ErrInvalidLink, entity)
		}
	}

	entity := d.refs.Next()
	d.set(entity, FieldKind, Value{Number: float64(KindLink)})
	d.set(entity, FieldEnds, Value{Ends: ends})
	d.set(entity, FieldAlive, Value{Bool: true})
	return entity, nil
}

// RemoveLink removes a link.
func (d *Document) RemoveLink(entity ref.Ref) error {
	if err := d.requireLive(entity, KindLink); err != nil {
		return err
	}
	d.set(entity, FieldAlive, Value{Bool: false})
	return nil
}

// AddView creates a view owned by owner.
func (d *Document) AddView(owner ref.UserID) ref.Ref {
	entity := d.refs.Next()
	d.set(entity, FieldKind, Value{Number: float64(KindView)})
	d.set(entity, FieldOwner, Value{User: owner})
	d.set(entity, FieldZoom, Value{Number: 1})
	d.set(entity, FieldAlive, Value{Bool: true})
	return entity
}

// RemoveView removes a view and with it the view's selection.
func (d *Document) RemoveView(view ref.Ref) error {
	if err := d.requireLive(view, KindView); err != nil {
		return err
	}
	d.set(view, FieldAlive, Value{Bool: false})
	return nil
}

// SetViewOwner reassigns a view, for example when the local user
// receives a user id from the relay.
func (d *Document) SetViewOwner(view ref.Ref, owner ref.UserID) error {
	if err := d.requireLive(view, KindView); err != nil {
		return err
	}
	d.set(view, FieldOwner, Value{User: owner})
	return nil
}

// SetViewLocked sets a view's lock flag.
func (d *Document) SetViewLocked(view ref.Ref, locked bool) error {
	if err := d.requireLive(view, KindView); err != nil {
		return err
	}
	d.set(view, FieldLocked, Value{Bool: locked})
	return nil
}

// SetViewZoom sets a view's zoom factor.
func (d *Document) SetViewZoom(view ref.Ref, zoom float64) error {
	if err := d.requireLive(view, KindView); err != nil {
		return err
	}
	if zoom <= 0 {
		return fmt.Errorf("document: zoom must be positive, got %v", zoom)
	}
	d.set(view, FieldZoom, Value{Number: zoom})
	return nil
}

// Select sets whether view selects entity, an object or a link.
func (d *Document) Select(view, entity ref.Ref, selected bool) error {
	if err := d.requireLive(view, KindView); err != nil {
		return err
	}
	if kind := d.kindOf(entity); kind != KindObject && kind != KindLink {
		return fmt.Errorf("%w: selectable entity %s", ErrNotFound, entity)
	}
	key := Key{Entity: view, Field: FieldSelected, Member: entity}
	if current, _ := d.read(key); current.Bool == selected {
		return nil
	}
	d.write(key, Value{Bool: selected})
	return nil
}

// ClearSelection deselects everything in view.
func (d *Document) ClearSelection(view ref.Ref) error {
	if err := d.requireLive(view, KindView); err != nil {
		return err
	}
	for _, member := range sortedRefs(d.members[view]) {
		key := Key{Entity: view, Field: FieldSelected, Member: member}
		if current, _ := d.read(key); current.Bool {
			d.write(key, Value{Bool: false})
		}
	}
	return nil
}
