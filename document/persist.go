// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

package document

import (
	"fmt"
	"slices"

	"github.com/patchbay-collective/patchbay/lib/codec"
	"github.com/patchbay-collective/patchbay/lib/ref"
	"github.com/patchbay-collective/patchbay/lib/snapshot"
	"github.com/patchbay-collective/patchbay/lib/version"
)

// snapshotBody is the CBOR body stored in a snapshot file: the
// registers of every live object and link, sorted by key. Views,
// selection, tombstones and history are session state and are not
// saved.
type snapshotBody struct {
	Registers []Op `cbor:"1,keyasint"`
}

// persistedFields are the registers saved for objects and links.
var persistedFields = map[Kind][]Field{
	KindObject: {FieldKind, FieldAlive, FieldText, FieldPosition, FieldSize, FieldInlets, FieldOutlets, FieldZ},
	KindLink:   {FieldKind, FieldAlive, FieldEnds},
}

// MarshalSnapshot encodes the observable document state. Pending edits
// are included.
func (d *Document) MarshalSnapshot() ([]byte, error) {
	patcher := d.Patcher()
	if len(d.dirty) > 0 {
		patcher = d.project()
	}

	var body snapshotBody
	add := func(entity ref.Ref, kind Kind) {
		for _, field := range persistedFields[kind] {
			key := Key{Entity: entity, Field: field}
			if value, ok := d.read(key); ok {
				body.Registers = append(body.Registers, Op{Key: key, Value: value})
			}
		}
	}
	for _, object := range patcher.Objects {
		add(object.Ref, KindObject)
	}
	for _, link := range patcher.Links {
		add(link.Ref, KindLink)
	}
	slices.SortFunc(body.Registers, func(a, b Op) int { return a.Key.Compare(b.Key) })

	data, err := codec.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("document: encoding snapshot: %w", err)
	}
	return data, nil
}

// project returns a fresh projection without disturbing the change
// flags that the next Refresh will report.
func (d *Document) project() *Patcher {
	dirty := d.dirty
	previous := d.patcher
	d.dirty = make(map[ref.Ref]struct{})
	patcher := d.Refresh()
	d.dirty = dirty
	d.patcher = previous
	return patcher
}

// UnmarshalSnapshot builds a new document from a snapshot body. The
// whole body is decoded and validated before the document exists, so a
// bad body never yields a partial document.
//
// The loaded state is committed as one genesis transaction by the new
// replica. It sits in the outbox so that connecting the document to a
// session publishes it, and it is not undoable.
func UnmarshalSnapshot(data []byte, options Options) (*Document, error) {
	var body snapshotBody
	if err := codec.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("document: decoding snapshot: %w", err)
	}
	for i, op := range body.Registers {
		if op.Key.Entity.IsZero() {
			return nil, fmt.Errorf("document: snapshot register %d has no entity", i)
		}
		if op.Key.Field == FieldKind {
			if kind := Kind(op.Value.Number); kind != KindObject && kind != KindLink {
				return nil, fmt.Errorf("document: snapshot entity %s has kind %v", op.Key.Entity, kind)
			}
		}
		if i > 0 && body.Registers[i-1].Key.Compare(op.Key) >= 0 {
			return nil, fmt.Errorf("document: snapshot registers out of order at %d", i)
		}
	}

	d := New(options)
	if len(body.Registers) == 0 {
		d.Refresh()
		return d, nil
	}
	for _, op := range body.Registers {
		d.write(op.Key, op.Value)
		d.refs.Observe(op.Key.Entity)
	}
	d.pending.undoing = true
	d.Commit("", false)
	d.Refresh()
	return d, nil
}

// Save writes the document to a snapshot file tagged with the running
// schema version.
func (d *Document) Save(path string, compression snapshot.CompressionTag) error {
	body, err := d.MarshalSnapshot()
	if err != nil {
		return err
	}
	return snapshot.Save(path, version.Schema, body, compression)
}

// Load reads a snapshot file. It fails with
// snapshot.IncompatibleVersionError when the file was written with a
// different schema.
func Load(path string, options Options) (*Document, error) {
	body, err := snapshot.Load(path, version.Schema)
	if err != nil {
		return nil, err
	}
	d, err := UnmarshalSnapshot(body, options)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}
