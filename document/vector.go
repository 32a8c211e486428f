// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

package document

import (
	"maps"
	"slices"

	"github.com/patchbay-collective/patchbay/lib/ref"
)

// VersionVector maps each replica to the highest sequence number of
// its transactions that has been applied.
type VersionVector map[ref.ReplicaID]uint64

// Covers reports whether the transaction (replica, seq) is included.
func (v VersionVector) Covers(replica ref.ReplicaID, seq uint64) bool {
	return v[replica] >= seq
}

// CoversAll reports whether every entry of other is covered by v.
func (v VersionVector) CoversAll(other VersionVector) bool {
	for replica, seq := range other {
		if v[replica] < seq {
			return false
		}
	}
	return true
}

// Clone returns an independent copy. A nil vector clones to an empty
// non-nil one.
func (v VersionVector) Clone() VersionVector {
	clone := make(VersionVector, len(v))
	maps.Copy(clone, v)
	return clone
}

// Replicas returns the replica ids in ascending order.
func (v VersionVector) Replicas() []ref.ReplicaID {
	return slices.Sorted(maps.Keys(v))
}
