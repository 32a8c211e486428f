// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

package document

import (
	"fmt"

	"github.com/patchbay-collective/patchbay/lib/codec"
	"github.com/patchbay-collective/patchbay/lib/ref"
)

// Op is one register write. Every op of a transaction carries the
// transaction's stamp.
type Op struct {
	Key   Key   `cbor:"1,keyasint"`
	Value Value `cbor:"2,keyasint"`
}

// Transaction is an atomic group of register writes authored by one
// replica.
type Transaction struct {
	Replica ref.ReplicaID `cbor:"1,keyasint"`
	Seq     uint64        `cbor:"2,keyasint"`
	Lamport uint64        `cbor:"3,keyasint"`
	// Deps is the version vector the author had applied, excluding
	// its own replica, which is implied by Seq.
	Deps VersionVector `cbor:"4,keyasint,omitempty"`
	Ops  []Op          `cbor:"5,keyasint"`
}

// Stamp returns the stamp shared by every op of t.
func (t *Transaction) Stamp() Stamp {
	return Stamp{Lamport: t.Lamport, Replica: t.Replica}
}

// ID returns a short printable identity for logs.
func (t *Transaction) ID() string {
	return fmt.Sprintf("%s#%d", t.Replica, t.Seq)
}

// Encode returns the CBOR wire form of t.
func (t *Transaction) Encode() ([]byte, error) {
	data, err := codec.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("document: encoding transaction %s: %w", t.ID(), err)
	}
	return data, nil
}

// DecodeTransaction parses the wire form produced by Encode.
func DecodeTransaction(data []byte) (*Transaction, error) {
	var t Transaction
	if err := codec.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("document: decoding transaction: %w", err)
	}
	if t.Replica == 0 || t.Seq == 0 || t.Lamport == 0 {
		return nil, fmt.Errorf("document: transaction %s has zero identity", t.ID())
	}
	return &t, nil
}

// MergeConflict records a register where two concurrent writes met.
// The replication rule resolves it; it is reported for debug logging
// only.
type MergeConflict struct {
	Key    Key
	Winner Stamp
	Loser  Stamp
}

func (c MergeConflict) String() string {
	return fmt.Sprintf("%s: %s beat %s", c.Key, c.Winner, c.Loser)
}

// ApplyResult summarizes one Apply call.
type ApplyResult struct {
	// Applied counts transactions whose ops were applied, including
	// previously buffered ones released by this call.
	Applied int
	// Buffered is the number of transactions still waiting for their
	// dependencies after this call.
	Buffered int
	// Duplicates counts transactions that had already been applied.
	Duplicates int
	Conflicts  []MergeConflict
}
