// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

package document

import (
	"fmt"
	"strings"
	"testing"

	"github.com/patchbay-collective/patchbay/lib/ref"
)

// fingerprint renders everything observable about a projection except
// the per-pass flags.
func fingerprint(p *Patcher, withViews bool) string {
	var b strings.Builder
	for _, o := range p.Objects {
		fmt.Fprintf(&b, "object %s %q %v %v %s/%s z=%v\n", o.Ref, o.Text, o.Position, o.Size, o.Inlets, o.Outlets, o.Z)
	}
	for _, l := range p.Links {
		fmt.Fprintf(&b, "link %s %s control=%v\n", l.Ref, l.LinkEnds, l.Control)
	}
	if withViews {
		for _, v := range p.Views {
			fmt.Fprintf(&b, "view %s owner=%d locked=%v zoom=%v objects=%v links=%v\n",
				v.Ref, v.Owner, v.Locked, v.Zoom, v.SelectedObjects(), v.SelectedLinks())
		}
	}
	return b.String()
}

func mustAddObject(t *testing.T, d *Document, text, inlets, outlets string) ref.Ref {
	t.Helper()
	r, err := d.AddObject(ObjectSpec{Text: text, Inlets: inlets, Outlets: outlets, Size: Size{Width: 40, Height: 20}})
	if err != nil {
		t.Fatalf("AddObject(%q): %v", text, err)
	}
	return r
}

func mustAddLink(t *testing.T, d *Document, sender ref.Ref, outlet int, receiver ref.Ref, inlet int) ref.Ref {
	t.Helper()
	r, err := d.AddLink(LinkEnds{Sender: sender, Outlet: outlet, Receiver: receiver, Inlet: inlet})
	if err != nil {
		t.Fatalf("AddLink: %v", err)
	}
	return r
}

func mustCommit(t *testing.T, d *Document, label string) *Transaction {
	t.Helper()
	txn := d.Commit(label, false)
	if txn == nil {
		t.Fatalf("Commit(%q) had nothing pending", label)
	}
	return txn
}

// exchange delivers every outbox transaction of each document to every
// other document.
func exchange(documents ...*Document) {
	var outgoing [][]*Transaction
	for _, d := range documents {
		outgoing = append(outgoing, d.TakeOutbox())
	}
	for i, d := range documents {
		for j, transactions := range outgoing {
			if i != j {
				d.Apply(transactions...)
			}
		}
	}
}
