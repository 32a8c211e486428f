// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

package document

import (
	"log/slog"
	"math"
	"slices"

	"github.com/patchbay-collective/patchbay/lib/ref"
)

// provisionalLamport stamps local writes that are not committed yet.
// It beats every real stamp, so a remote write applied while a local
// edit is pending cannot overwrite it; Commit replaces it with a real
// stamp that is later than everything applied so far.
const provisionalLamport = math.MaxUint64

// Options configures a new Document.
type Options struct {
	// Replica identifies this copy of the document. Zero picks a fresh
	// random id.
	Replica ref.ReplicaID

	// Logger receives merge diagnostics. Nil uses slog.Default().
	Logger *slog.Logger
}

// Document is one replica of a patcher document. It is not safe for
// concurrent use: exactly one goroutine (the owner's loop) may call its
// methods.
type Document struct {
	replica ref.ReplicaID
	refs    *ref.Generator
	logger  *slog.Logger

	lamport uint64
	seq     uint64
	vector  VersionVector

	registers map[Key]register
	kinds     map[ref.Ref]Kind
	// members indexes the member keys of each entity (selection sets).
	members map[ref.Ref]map[ref.Ref]struct{}

	pending  *pending
	buffered []*Transaction
	outbox   []*Transaction
	history  history
	gestures uint64
	gesture  GestureID

	dirty   map[ref.Ref]struct{}
	patcher *Patcher
}

// pending collects uncommitted local writes.
type pending struct {
	ops    []Op
	index  map[Key]int
	before map[Key]register
	order  []Key
	// undoing is set while Undo or Redo builds the transaction, so the
	// writes it makes are not recorded as a new history entry.
	undoing bool
}

// New returns an empty document.
func New(options Options) *Document {
	replica := options.Replica
	if replica == 0 {
		replica = ref.NewReplicaID()
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Document{
		replica:   replica,
		refs:      ref.NewGenerator(replica, 0),
		logger:    logger.With("replica", replica.String()),
		vector:    make(VersionVector),
		registers: make(map[Key]register),
		kinds:     make(map[ref.Ref]Kind),
		members:   make(map[ref.Ref]map[ref.Ref]struct{}),
		history:   history{limit: defaultHistoryLimit},
		dirty:     make(map[ref.Ref]struct{}),
		patcher:   emptyPatcher(),
	}
}

// Replica returns this document's replica id.
func (d *Document) Replica() ref.ReplicaID { return d.replica }

// Vector returns a copy of the applied version vector.
func (d *Document) Vector() VersionVector { return d.vector.Clone() }

// HasPending reports whether local edits await Commit.
func (d *Document) HasPending() bool { return d.pending != nil }

// Buffered returns how many remote transactions wait for dependencies.
func (d *Document) Buffered() int { return len(d.buffered) }

// TakeOutbox returns the committed local transactions not yet taken,
// oldest first, and empties the outbox.
func (d *Document) TakeOutbox() []*Transaction {
	outbox := d.outbox
	d.outbox = nil
	return outbox
}

// OutboxLen returns the number of transactions awaiting transmission.
func (d *Document) OutboxLen() int { return len(d.outbox) }

func (d *Document) read(key Key) (Value, bool) {
	reg, ok := d.registers[key]
	return reg.value, ok
}

func (d *Document) kindOf(entity ref.Ref) Kind { return d.kinds[entity] }

func (d *Document) alive(entity ref.Ref) bool {
	value, _ := d.read(Key{Entity: entity, Field: FieldAlive})
	return value.Bool
}

// write records a local register write in the pending transaction and
// applies it at once.
func (d *Document) write(key Key, value Value) {
	p := d.pending
	if p == nil {
		p = &pending{
			index:  make(map[Key]int),
			before: make(map[Key]register),
		}
		d.pending = p
	}

	if i, ok := p.index[key]; ok {
		p.ops[i].Value = value
	} else {
		p.index[key] = len(p.ops)
		p.ops = append(p.ops, Op{Key: key, Value: value})
		p.before[key] = d.registers[key]
		p.order = append(p.order, key)
	}

	d.store(key, register{
		value: value,
		stamp: Stamp{Lamport: provisionalLamport, Replica: d.replica},
	})
}

// store installs reg and maintains the indexes.
func (d *Document) store(key Key, reg register) {
	d.registers[key] = reg
	switch {
	case key.Field == FieldKind:
		d.kinds[key.Entity] = Kind(reg.value.Number)
	case !key.Member.IsZero():
		set := d.members[key.Entity]
		if set == nil {
			set = make(map[ref.Ref]struct{})
			d.members[key.Entity] = set
		}
		set[key.Member] = struct{}{}
	}
	d.dirty[key.Entity] = struct{}{}
}

// Commit seals the pending local writes into one transaction, queues it
// for transmission and records an undo entry labelled label. A gesture
// commit coalesces with the previous commit when that one was a gesture
// with the same label that has not been ended. Returns nil when nothing
// is pending.
func (d *Document) Commit(label string, gesture bool) *Transaction {
	p := d.pending
	if p == nil {
		return nil
	}
	d.pending = nil

	d.lamport++
	d.seq++
	deps := d.vector.Clone()
	delete(deps, d.replica)
	if len(deps) == 0 {
		deps = nil
	}
	txn := &Transaction{
		Replica: d.replica,
		Seq:     d.seq,
		Lamport: d.lamport,
		Deps:    deps,
		Ops:     p.ops,
	}
	stamp := txn.Stamp()
	for _, op := range txn.Ops {
		reg := d.registers[op.Key]
		if reg.stamp.Lamport == provisionalLamport {
			reg.stamp = stamp
			reg.seq = txn.Seq
			d.registers[op.Key] = reg
		}
	}
	d.vector[d.replica] = d.seq
	d.outbox = append(d.outbox, txn)

	if !p.undoing {
		var owner GestureID
		if gesture {
			owner = d.gesture
		}
		d.history.record(label, gesture, owner, p, stamp, d.undoable)
	}
	return txn
}

// Apply merges remote transactions. Transactions whose dependencies are
// missing are buffered and applied as soon as a later call supplies
// them. Already applied transactions are ignored.
func (d *Document) Apply(transactions ...*Transaction) ApplyResult {
	var result ApplyResult
	for _, txn := range transactions {
		if txn == nil {
			continue
		}
		if d.vector.Covers(txn.Replica, txn.Seq) || d.isBuffered(txn) {
			result.Duplicates++
			continue
		}
		d.buffered = append(d.buffered, txn)
	}

	for progress := true; progress; {
		progress = false
		for i := 0; i < len(d.buffered); i++ {
			txn := d.buffered[i]
			if d.vector.Covers(txn.Replica, txn.Seq) {
				d.buffered = slices.Delete(d.buffered, i, i+1)
				i--
				continue
			}
			if !d.ready(txn) {
				continue
			}
			d.buffered = slices.Delete(d.buffered, i, i+1)
			i--
			result.Conflicts = append(result.Conflicts, d.applyRemote(txn)...)
			result.Applied++
			progress = true
		}
	}
	result.Buffered = len(d.buffered)

	for _, conflict := range result.Conflicts {
		d.logger.Debug("merge conflict resolved", "register", conflict.Key.String(),
			"winner", conflict.Winner.String(), "loser", conflict.Loser.String())
	}
	return result
}

func (d *Document) isBuffered(txn *Transaction) bool {
	for _, buffered := range d.buffered {
		if buffered.Replica == txn.Replica && buffered.Seq == txn.Seq {
			return true
		}
	}
	return false
}

func (d *Document) ready(txn *Transaction) bool {
	return d.vector[txn.Replica] == txn.Seq-1 && d.vector.CoversAll(txn.Deps)
}

func (d *Document) applyRemote(txn *Transaction) []MergeConflict {
	var conflicts []MergeConflict
	stamp := txn.Stamp()
	for _, op := range txn.Ops {
		existing, ok := d.registers[op.Key]
		if ok && existing.stamp.Lamport == provisionalLamport {
			continue
		}
		concurrent := ok && existing.stamp.Replica != txn.Replica &&
			!txn.Deps.Covers(existing.stamp.Replica, existing.seq)
		if !ok || existing.stamp.Compare(stamp) < 0 {
			if concurrent && existing.value != op.Value {
				conflicts = append(conflicts, MergeConflict{Key: op.Key, Winner: stamp, Loser: existing.stamp})
			}
			d.store(op.Key, register{value: op.Value, stamp: stamp, seq: txn.Seq})
			continue
		}
		if concurrent && existing.value != op.Value {
			conflicts = append(conflicts, MergeConflict{Key: op.Key, Winner: existing.stamp, Loser: stamp})
		}
	}
	d.vector[txn.Replica] = txn.Seq
	if txn.Lamport > d.lamport {
		d.lamport = txn.Lamport
	}
	return conflicts
}
