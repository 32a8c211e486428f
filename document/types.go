// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

package document

import (
	"fmt"

	"github.com/patchbay-collective/patchbay/lib/ref"
)

// Point is a position in patcher coordinates.
type Point struct {
	X float64 `cbor:"1,keyasint,omitempty"`
	Y float64 `cbor:"2,keyasint,omitempty"`
}

// Size is an object's extent in patcher coordinates.
type Size struct {
	Width  float64 `cbor:"1,keyasint,omitempty"`
	Height float64 `cbor:"2,keyasint,omitempty"`
}

// LinkEnds is the (sender, outlet) -> (receiver, inlet) tuple of a link.
type LinkEnds struct {
	Sender   ref.Ref `cbor:"1,keyasint,omitempty"`
	Outlet   int     `cbor:"2,keyasint,omitempty"`
	Receiver ref.Ref `cbor:"3,keyasint,omitempty"`
	Inlet    int     `cbor:"4,keyasint,omitempty"`
}

func (e LinkEnds) String() string {
	return fmt.Sprintf("%s:%d->%s:%d", e.Sender, e.Outlet, e.Receiver, e.Inlet)
}

// Port kinds. An object's inlets and outlets are strings with one kind
// character per port.
const (
	PortControl = 'c'
	PortSignal  = 's'
)

// Kind is the type of an entity.
type Kind uint8

const (
	KindObject Kind = 1
	KindLink   Kind = 2
	KindView   Kind = 3
)

func (k Kind) String() string {
	switch k {
	case KindObject:
		return "object"
	case KindLink:
		return "link"
	case KindView:
		return "view"
	default:
		return fmt.Sprintf("kind(%d)", k)
	}
}

// Field names a register of an entity.
type Field uint8

const (
	FieldKind     Field = 1
	FieldAlive    Field = 2
	FieldText     Field = 3
	FieldPosition Field = 4
	FieldSize     Field = 5
	FieldInlets   Field = 6
	FieldOutlets  Field = 7
	FieldZ        Field = 8
	FieldEnds     Field = 9
	FieldOwner    Field = 10
	FieldLocked   Field = 11
	FieldZoom     Field = 12
	// FieldSelected is keyed by member: the selected object or link.
	FieldSelected Field = 13
)

// undoable reports whether writes to f are recorded in undo history.
func (f Field) undoable() bool {
	switch f {
	case FieldOwner, FieldLocked, FieldZoom, FieldSelected:
		return false
	default:
		return true
	}
}

// Key addresses one register.
type Key struct {
	Entity ref.Ref `cbor:"1,keyasint"`
	Field  Field   `cbor:"2,keyasint"`
	Member ref.Ref `cbor:"3,keyasint,omitempty"`
}

// Compare orders keys by entity, field, then member.
func (k Key) Compare(other Key) int {
	if c := k.Entity.Compare(other.Entity); c != 0 {
		return c
	}
	if k.Field != other.Field {
		if k.Field < other.Field {
			return -1
		}
		return 1
	}
	return k.Member.Compare(other.Member)
}

func (k Key) String() string {
	if k.Member.IsZero() {
		return fmt.Sprintf("%s/%d", k.Entity, k.Field)
	}
	return fmt.Sprintf("%s/%d/%s", k.Entity, k.Field, k.Member)
}

// Value is the content of a register. Exactly one part is meaningful,
// determined by the register's field.
type Value struct {
	Bool   bool       `cbor:"1,keyasint,omitempty"`
	Number float64    `cbor:"2,keyasint,omitempty"`
	Text   string     `cbor:"3,keyasint,omitempty"`
	Point  Point      `cbor:"4,keyasint,omitempty"`
	Size   Size       `cbor:"5,keyasint,omitempty"`
	Ends   LinkEnds   `cbor:"6,keyasint,omitempty"`
	User   ref.UserID `cbor:"7,keyasint,omitempty"`
}

// Stamp orders register writes. The order is total: Lamport time first,
// replica id second.
type Stamp struct {
	Lamport uint64        `cbor:"1,keyasint"`
	Replica ref.ReplicaID `cbor:"2,keyasint"`
}

// IsZero reports whether s is the zero Stamp, which precedes every
// real write.
func (s Stamp) IsZero() bool { return s.Lamport == 0 && s.Replica == 0 }

// Compare returns -1, 0, or +1.
func (s Stamp) Compare(other Stamp) int {
	switch {
	case s.Lamport < other.Lamport:
		return -1
	case s.Lamport > other.Lamport:
		return 1
	case s.Replica < other.Replica:
		return -1
	case s.Replica > other.Replica:
		return 1
	}
	return 0
}

func (s Stamp) String() string { return fmt.Sprintf("%d@%s", s.Lamport, s.Replica) }

// register is one stored value. Seq is the author's transaction
// sequence number, used to tell concurrent writes from causally later
// ones when reporting merge conflicts.
type register struct {
	value Value
	stamp Stamp
	seq   uint64
}
