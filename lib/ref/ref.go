// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// ReplicaID identifies one replica of a document. Every process that
// edits a document picks a fresh random ReplicaID, so Refs minted by
// different processes never collide.
type ReplicaID uint64

// NewReplicaID returns a random non-zero ReplicaID.
func NewReplicaID() ReplicaID {
	var buffer [8]byte
	for {
		if _, err := rand.Read(buffer[:]); err != nil {
			panic("ref: reading random replica id: " + err.Error())
		}
		if id := ReplicaID(binary.BigEndian.Uint64(buffer[:])); id != 0 {
			return id
		}
	}
}

// String returns the replica id in fixed-width hex.
func (r ReplicaID) String() string { return fmt.Sprintf("%016x", uint64(r)) }

// Ref is a stable identifier for a document entity.
//
// Ref is comparable and usable as a map key. The zero value means "no
// entity"; use IsZero to check.
type Ref struct {
	Replica ReplicaID
	Seq     uint64
}

// New returns the Ref minted by replica at sequence seq.
func New(replica ReplicaID, seq uint64) Ref {
	return Ref{Replica: replica, Seq: seq}
}

// Parse parses the canonical text form produced by String.
func Parse(raw string) (Ref, error) {
	if raw == "" {
		return Ref{}, fmt.Errorf("empty ref")
	}
	replicaPart, seqPart, found := strings.Cut(raw, ".")
	if !found {
		return Ref{}, fmt.Errorf("ref missing '.' separator: %q", raw)
	}
	replica, err := strconv.ParseUint(replicaPart, 16, 64)
	if err != nil {
		return Ref{}, fmt.Errorf("ref has invalid replica %q: %w", replicaPart, err)
	}
	seq, err := strconv.ParseUint(seqPart, 10, 64)
	if err != nil {
		return Ref{}, fmt.Errorf("ref has invalid sequence %q: %w", seqPart, err)
	}
	if seq == 0 {
		return Ref{}, fmt.Errorf("ref has zero sequence: %q", raw)
	}
	return Ref{Replica: ReplicaID(replica), Seq: seq}, nil
}

// MustParse is like Parse but panics on error. Use in tests.
func MustParse(raw string) Ref {
	r, err := Parse(raw)
	if err != nil {
		panic(fmt.Sprintf("ref.MustParse(%q): %v", raw, err))
	}
	return r
}

// IsZero reports whether r is the zero Ref.
func (r Ref) IsZero() bool { return r.Replica == 0 && r.Seq == 0 }

// String returns the canonical text form.
func (r Ref) String() string {
	if r.IsZero() {
		return ""
	}
	return r.Replica.String() + "." + strconv.FormatUint(r.Seq, 10)
}

// Compare orders Refs by replica, then sequence. Returns -1, 0 or +1.
// The order is arbitrary but total and identical on every replica,
// which is what tie-breaks between concurrent entities need.
func (r Ref) Compare(other Ref) int {
	switch {
	case r.Replica < other.Replica:
		return -1
	case r.Replica > other.Replica:
		return 1
	case r.Seq < other.Seq:
		return -1
	case r.Seq > other.Seq:
		return 1
	}
	return 0
}

// Less reports whether r orders before other.
func (r Ref) Less(other Ref) bool { return r.Compare(other) < 0 }

// MarshalText implements encoding.TextMarshaler.
func (r Ref) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. An empty input
// yields the zero Ref.
func (r *Ref) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*r = Ref{}
		return nil
	}
	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Generator mints sequential Refs for one replica. Not safe for
// concurrent use; a document owns exactly one Generator.
type Generator struct {
	replica ReplicaID
	next    uint64
}

// NewGenerator returns a Generator for replica whose first Ref has
// sequence start+1.
func NewGenerator(replica ReplicaID, start uint64) *Generator {
	return &Generator{replica: replica, next: start}
}

// Replica returns the replica this generator mints for.
func (g *Generator) Replica() ReplicaID { return g.replica }

// Next returns a fresh Ref.
func (g *Generator) Next() Ref {
	g.next++
	return Ref{Replica: g.replica, Seq: g.next}
}

// Observe advances the generator past seq so that a Ref already in use
// (for example one loaded from a snapshot) is never minted again.
func (g *Generator) Observe(r Ref) {
	if r.Replica == g.replica && r.Seq > g.next {
		g.next = r.Seq
	}
}
