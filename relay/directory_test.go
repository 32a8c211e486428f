// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"errors"
	"testing"
	"time"

	"github.com/patchbay-collective/patchbay/document"
	"github.com/patchbay-collective/patchbay/lib/clock"
	"github.com/patchbay-collective/patchbay/lib/snapshot"
	"github.com/patchbay-collective/patchbay/lib/version"
)

func newTestDirectory(t *testing.T) (*Directory, *Hub, *clock.FakeClock) {
	t.Helper()
	clk := clock.Fake(epoch)
	hub := NewHub(HubOptions{Accounts: testAccounts(t, clk)})
	directory := NewDirectory(DirectoryOptions{Hub: hub, Clock: clk, Compression: snapshot.CompressionZstd})
	return directory, hub, clk
}

// snapshotOf encodes a document holding one object with text.
func snapshotOf(t *testing.T, text string) []byte {
	t.Helper()
	d := document.New(document.Options{})
	if _, err := d.AddObject(document.ObjectSpec{Text: text}); err != nil {
		t.Fatal(err)
	}
	d.Commit("", false)
	body, err := d.MarshalSnapshot()
	if err != nil {
		t.Fatal(err)
	}
	data, err := snapshot.Encode(version.Schema, body, snapshot.CompressionNone)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func objectTexts(t *testing.T, data []byte) []string {
	t.Helper()
	body, err := snapshot.Decode(data, version.Schema)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	d, err := document.UnmarshalSnapshot(body, document.Options{})
	if err != nil {
		t.Fatalf("UnmarshalSnapshot: %v", err)
	}
	var texts []string
	for _, object := range d.Patcher().Objects {
		texts = append(texts, object.Text)
	}
	return texts
}

func TestDirectoryLifecycle(t *testing.T) {
	directory, _, clk := newTestDirectory(t)

	created, err := directory.Create("  Drone  ", "alice")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID != 1 || created.Name != "Drone" || created.Author != "alice" || !created.Created.Equal(epoch) {
		t.Errorf("created = %+v", created)
	}
	if _, err := directory.Create(" ", "alice"); !errors.Is(err, ErrInvalid) {
		t.Errorf("Create with a blank name = %v, want ErrInvalid", err)
	}

	renamed, err := directory.Rename(created.ID, "Drone II")
	if err != nil || renamed.Name != "Drone II" {
		t.Fatalf("Rename = %+v, %v", renamed, err)
	}

	clk.Advance(time.Minute)
	trashed, err := directory.Trash(created.ID)
	if err != nil || !trashed.Trashed || !trashed.TrashedAt.Equal(epoch.Add(time.Minute)) {
		t.Fatalf("Trash = %+v, %v", trashed, err)
	}
	clk.Advance(time.Minute)
	again, _ := directory.Trash(created.ID)
	if !again.TrashedAt.Equal(trashed.TrashedAt) {
		t.Error("trashing twice moved the trash time")
	}
	if _, err := directory.Open(created.ID, 1); !errors.Is(err, ErrTrashed) {
		t.Errorf("Open of a trashed document = %v, want ErrTrashed", err)
	}

	restored, err := directory.Untrash(created.ID)
	if err != nil || restored.Trashed || !restored.TrashedAt.IsZero() {
		t.Fatalf("Untrash = %+v, %v", restored, err)
	}

	if _, err := directory.Rename(42, "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Rename of an unknown id = %v, want ErrNotFound", err)
	}
	if list := directory.List(); len(list) != 1 || list[0].Name != "Drone II" {
		t.Errorf("List = %+v", list)
	}
}

func TestDirectoryUploadValidates(t *testing.T) {
	directory, _, _ := newTestDirectory(t)

	uploaded, err := directory.Upload("Patch", "bob", snapshotOf(t, "osc~"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	data, err := directory.Download(uploaded.ID)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if texts := objectTexts(t, data); len(texts) != 1 || texts[0] != "osc~" {
		t.Errorf("downloaded objects = %v", texts)
	}

	foreign, _ := snapshot.Encode("patchbay.document/0", []byte{0xa0}, snapshot.CompressionNone)
	if _, err := directory.Upload("Old", "bob", foreign); !snapshot.IsIncompatibleVersion(err) {
		t.Errorf("Upload of another schema = %v, want IncompatibleVersionError", err)
	}
	if _, err := directory.Upload("Junk", "bob", []byte("junk")); !errors.Is(err, snapshot.ErrCorrupt) {
		t.Errorf("Upload of junk = %v, want ErrCorrupt", err)
	}
	if n := len(directory.List()); n != 1 {
		t.Errorf("rejected uploads were stored: %d documents", n)
	}
}

func TestDirectoryDuplicate(t *testing.T) {
	directory, _, _ := newTestDirectory(t)
	original, _ := directory.Upload("Bells", "alice", snapshotOf(t, "bell~"))

	copied, err := directory.Duplicate(original.ID, "bob")
	if err != nil {
		t.Fatalf("Duplicate: %v", err)
	}
	if copied.ID == original.ID || copied.Name != "Bells copy" || copied.Author != "bob" {
		t.Errorf("copy = %+v", copied)
	}
	data, _ := directory.Download(copied.ID)
	if texts := objectTexts(t, data); len(texts) != 1 || texts[0] != "bell~" {
		t.Errorf("copy objects = %v", texts)
	}
}

func TestDirectoryOpenStartsOneSession(t *testing.T) {
	directory, hub, clk := newTestDirectory(t)
	original, _ := directory.Upload("Live", "alice", snapshotOf(t, "adc~"))

	clk.Advance(time.Hour)
	opened, err := directory.Open(original.ID, 2)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if opened.Session.IsZero() || !hub.Live(opened.Session) {
		t.Fatalf("Open did not start a session: %+v", opened)
	}
	if opened.OpenedBy != 2 || !opened.Opened.Equal(epoch.Add(time.Hour)) {
		t.Errorf("opened = %+v", opened)
	}
	// The snapshot's content is the session's genesis.
	if n := hub.LogLength(opened.Session); n != 1 {
		t.Errorf("session log = %d transactions, want the genesis", n)
	}

	again, err := directory.Open(original.ID, 1)
	if err != nil {
		t.Fatal(err)
	}
	if again.Session != opened.Session || hub.Sessions() != 1 {
		t.Errorf("second Open started another session: %s vs %s", again.Session, opened.Session)
	}
	if again.OpenedBy != 1 {
		t.Errorf("OpenedBy = %d, want the latest opener", again.OpenedBy)
	}
}

func TestDirectoryStoresEndedSession(t *testing.T) {
	directory, hub, _ := newTestDirectory(t)
	original, _ := directory.Upload("Live", "alice", snapshotOf(t, "adc~"))
	opened, _ := directory.Open(original.ID, 1)

	body, live, err := hub.Snapshot(opened.Session)
	if err != nil || !live {
		t.Fatalf("Snapshot = %v, %v", live, err)
	}
	doc, err := document.UnmarshalSnapshot(body, document.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := doc.AddObject(document.ObjectSpec{Text: "dac~"}); err != nil {
		t.Fatal(err)
	}
	doc.Commit("", false)
	final, _ := doc.MarshalSnapshot()

	directory.sessionEnded(opened.Session, final)

	got, _ := directory.Get(original.ID)
	if !got.Session.IsZero() {
		t.Errorf("document still has session %s after it ended", got.Session)
	}
	data, _ := directory.Download(original.ID)
	if texts := objectTexts(t, data); len(texts) != 2 {
		t.Errorf("stored snapshot objects = %v, want both", texts)
	}

	// An unknown session is ignored.
	directory.sessionEnded(0x1234, final)
}
