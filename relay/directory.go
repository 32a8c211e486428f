// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"cmp"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/patchbay-collective/patchbay/document"
	"github.com/patchbay-collective/patchbay/lib/clock"
	"github.com/patchbay-collective/patchbay/lib/ref"
	"github.com/patchbay-collective/patchbay/lib/snapshot"
	"github.com/patchbay-collective/patchbay/lib/version"
	"github.com/patchbay-collective/patchbay/remote"
)

var (
	// ErrNotFound is an unknown document id (HTTP 404).
	ErrNotFound = errors.New("relay: no such document")

	// ErrTrashed is an operation that needs a live document applied to
	// a trashed one (HTTP 409).
	ErrTrashed = errors.New("relay: document is in the trash")

	// ErrInvalid is a malformed request (HTTP 400).
	ErrInvalid = errors.New("relay: invalid request")
)

// DirectoryOptions configures a Directory.
type DirectoryOptions struct {
	Hub    *Hub
	Clock  clock.Clock
	Logger *slog.Logger

	// Compression is used when the directory re-encodes a snapshot.
	Compression snapshot.CompressionTag
}

// Directory is the relay's document store. Documents are kept in
// memory as encoded snapshot files; an open document lives in the hub
// and its snapshot is refreshed when the session ends. Safe for
// concurrent use.
type Directory struct {
	hub         *Hub
	clock       clock.Clock
	logger      *slog.Logger
	compression snapshot.CompressionTag

	mu      sync.Mutex
	nextID  ref.DocumentID
	records map[ref.DocumentID]*record
	open    map[ref.SessionID]ref.DocumentID
}

type record struct {
	document remote.Document
	snapshot []byte
}

// NewDirectory returns an empty directory. It installs itself as the
// hub's OnIdle hook.
func NewDirectory(options DirectoryOptions) *Directory {
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	d := &Directory{
		hub:         options.Hub,
		clock:       options.Clock,
		logger:      options.Logger,
		compression: options.Compression,
		nextID:      1,
		records:     make(map[ref.DocumentID]*record),
		open:        make(map[ref.SessionID]ref.DocumentID),
	}
	d.hub.options.OnIdle = d.sessionEnded
	return d
}

// List returns every document, trashed ones included, ordered by id.
func (d *Directory) List() []remote.Document {
	d.mu.Lock()
	defer d.mu.Unlock()
	documents := make([]remote.Document, 0, len(d.records))
	for _, r := range d.records {
		documents = append(documents, r.document)
	}
	slices.SortFunc(documents, func(a, b remote.Document) int { return cmp.Compare(a.ID, b.ID) })
	return documents
}

// Get returns one document.
func (d *Directory) Get(id ref.DocumentID) (remote.Document, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, err := d.record(id)
	if err != nil {
		return remote.Document{}, err
	}
	return r.document, nil
}

// Create adds an empty document.
func (d *Directory) Create(name, author string) (remote.Document, error) {
	name, err := validName(name)
	if err != nil {
		return remote.Document{}, err
	}
	body, err := document.New(document.Options{Logger: d.logger}).MarshalSnapshot()
	if err != nil {
		return remote.Document{}, err
	}
	data, err := snapshot.Encode(version.Schema, body, d.compression)
	if err != nil {
		return remote.Document{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.add(name, author, data), nil
}

// Upload adds a document from snapshot file bytes. The file must carry
// the running schema version and decode to a valid document.
func (d *Directory) Upload(name, author string, data []byte) (remote.Document, error) {
	name, err := validName(name)
	if err != nil {
		return remote.Document{}, err
	}
	body, err := snapshot.Decode(data, version.Schema)
	if err != nil {
		return remote.Document{}, err
	}
	if _, err := document.UnmarshalSnapshot(body, document.Options{Logger: d.logger}); err != nil {
		return remote.Document{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.add(name, author, slices.Clone(data)), nil
}

// Rename changes a document's name.
func (d *Directory) Rename(id ref.DocumentID, name string) (remote.Document, error) {
	name, err := validName(name)
	if err != nil {
		return remote.Document{}, err
	}
	return d.update(id, func(r *record) error {
		r.document.Name = name
		return nil
	})
}

// Trash moves a document to the trash. Trashing a trashed document is
// a no-op. A live session is not interrupted.
func (d *Directory) Trash(id ref.DocumentID) (remote.Document, error) {
	return d.update(id, func(r *record) error {
		if !r.document.Trashed {
			r.document.Trashed = true
			r.document.TrashedAt = d.clock.Now()
		}
		return nil
	})
}

// Untrash restores a trashed document.
func (d *Directory) Untrash(id ref.DocumentID) (remote.Document, error) {
	return d.update(id, func(r *record) error {
		r.document.Trashed = false
		r.document.TrashedAt = time.Time{}
		return nil
	})
}

// Duplicate copies a document's current content under a new id, owned
// by author.
func (d *Directory) Duplicate(id ref.DocumentID, author string) (remote.Document, error) {
	data, err := d.Download(id)
	if err != nil {
		return remote.Document{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	r, err := d.record(id)
	if err != nil {
		return remote.Document{}, err
	}
	return d.add(r.document.Name+" copy", author, data), nil
}

// Download returns the document's snapshot file. An open document is
// snapshotted from its live session.
func (d *Directory) Download(id ref.DocumentID) ([]byte, error) {
	d.mu.Lock()
	r, err := d.record(id)
	if err != nil {
		d.mu.Unlock()
		return nil, err
	}
	session, stored := r.document.Session, r.snapshot
	d.mu.Unlock()

	if !session.IsZero() {
		body, live, err := d.hub.Snapshot(session)
		if err != nil {
			return nil, err
		}
		if live {
			return snapshot.Encode(version.Schema, body, d.compression)
		}
	}
	return slices.Clone(stored), nil
}

// Open starts a session for the document if none is live and records
// user as its latest opener. The returned document carries the
// session id to join.
func (d *Directory) Open(id ref.DocumentID, user ref.UserID) (remote.Document, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, err := d.record(id)
	if err != nil {
		return remote.Document{}, err
	}
	if r.document.Trashed {
		return remote.Document{}, fmt.Errorf("%w: %s", ErrTrashed, id)
	}
	if r.document.Session.IsZero() || !d.hub.Live(r.document.Session) {
		session, err := d.start(r)
		if err != nil {
			return remote.Document{}, err
		}
		delete(d.open, r.document.Session)
		r.document.Session = session
		d.open[session] = id
	}
	r.document.Opened = d.clock.Now()
	r.document.OpenedBy = user
	return r.document, nil
}

// start seeds a hub session from the stored snapshot. Caller holds
// d.mu.
func (d *Directory) start(r *record) (ref.SessionID, error) {
	body, err := snapshot.Decode(r.snapshot, version.Schema)
	if err != nil {
		return 0, fmt.Errorf("relay: document %s: %w", r.document.ID, err)
	}
	doc, err := document.UnmarshalSnapshot(body, document.Options{Logger: d.logger})
	if err != nil {
		return 0, fmt.Errorf("relay: document %s: %w", r.document.ID, err)
	}
	for {
		session := newSessionID()
		err := d.hub.Start(session, doc)
		if err == nil {
			return session, nil
		}
		if !errors.Is(err, ErrSessionExists) {
			return 0, err
		}
	}
}

// sessionEnded stores the final state of a session and marks its
// document closed.
func (d *Directory) sessionEnded(session ref.SessionID, body []byte) {
	data, err := snapshot.Encode(version.Schema, body, d.compression)
	if err != nil {
		d.logger.Error("encoding snapshot of ended session failed", "session", session.String(), "error", err)
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	id, ok := d.open[session]
	if !ok {
		return
	}
	delete(d.open, session)
	if r, ok := d.records[id]; ok && r.document.Session == session {
		r.snapshot = data
		r.document.Session = 0
		d.logger.Info("document closed", "document", id.String(), "size", len(data))
	}
}

func (d *Directory) update(id ref.DocumentID, change func(*record) error) (remote.Document, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, err := d.record(id)
	if err != nil {
		return remote.Document{}, err
	}
	if err := change(r); err != nil {
		return remote.Document{}, err
	}
	return r.document, nil
}

// Caller holds d.mu.
func (d *Directory) record(id ref.DocumentID) (*record, error) {
	r, ok := d.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return r, nil
}

// Caller holds d.mu.
func (d *Directory) add(name, author string, data []byte) remote.Document {
	id := d.nextID
	d.nextID++
	r := &record{
		document: remote.Document{
			ID:      id,
			Name:    name,
			Author:  author,
			Created: d.clock.Now(),
		},
		snapshot: data,
	}
	d.records[id] = r
	d.logger.Info("document added", "document", id.String(), "name", name, "author", author)
	return r.document
}

func validName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: document name is empty", ErrInvalid)
	}
	return name, nil
}

func newSessionID() ref.SessionID {
	for {
		id := uuid.New()
		if session := ref.SessionID(binary.BigEndian.Uint64(id[:8])); !session.IsZero() {
			return session
		}
	}
}
