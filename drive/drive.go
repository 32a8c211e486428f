// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

package drive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/patchbay-collective/patchbay/lib/clock"
	"github.com/patchbay-collective/patchbay/lib/loop"
	"github.com/patchbay-collective/patchbay/lib/ref"
	"github.com/patchbay-collective/patchbay/remote"
)

// DefaultPollInterval is the directory refresh period when
// Options.PollInterval is zero.
const DefaultPollInterval = 5 * time.Second

var (
	// ErrLoggedOut is returned by operations started while the account
	// is logged out.
	ErrLoggedOut = errors.New("drive: account logged out")

	// ErrClosed is returned by operations started after Close.
	ErrClosed = errors.New("drive: closed")
)

// Options configures a Drive.
type Options struct {
	Account *Account
	Loop    *loop.Loop

	// Clock drives the poll timer. Nil uses clock.Real().
	Clock clock.Clock

	// Logger receives poll failures. Nil uses slog.Default().
	Logger *slog.Logger

	// PollInterval is the refresh period (default DefaultPollInterval).
	PollInterval time.Duration

	Order    Order
	Listener Listener
}

// Drive polls one account's document directory into a Directory. All
// methods and callbacks run on the drive's loop.
type Drive struct {
	account  *Account
	loop     *loop.Loop
	clock    clock.Clock
	logger   *slog.Logger
	interval time.Duration

	directory *Directory
	token     *loop.Token

	// ctx scopes in-flight requests; it is cancelled on logout and
	// Close. generation tells replies of a cancelled scope apart.
	ctx        context.Context
	cancel     context.CancelFunc
	generation uint64

	timer      *clock.Timer
	started    bool
	refreshing bool
	paused     bool
	closed     bool
}

// New returns a stopped drive. Call Start to begin polling.
func New(options Options) (*Drive, error) {
	if options.Account == nil {
		return nil, fmt.Errorf("drive: account is required")
	}
	if options.Loop == nil {
		return nil, fmt.Errorf("drive: loop is required")
	}
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	if options.PollInterval <= 0 {
		options.PollInterval = DefaultPollInterval
	}
	d := &Drive{
		account:   options.Account,
		loop:      options.Loop,
		clock:     options.Clock,
		logger:    options.Logger.With("account", options.Account.Name()),
		interval:  options.PollInterval,
		directory: NewDirectory(options.Order, options.Listener),
		token:     loop.NewToken(),
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())
	return d, nil
}

// Directory returns the drive's cache. Callers must treat it as
// read-only.
func (d *Drive) Directory() *Directory { return d.directory }

// Paused reports whether polling stopped because the account was
// logged out.
func (d *Drive) Paused() bool { return d.paused }

// Start issues the first refresh and keeps polling every interval.
func (d *Drive) Start() {
	if d.started || d.closed {
		return
	}
	d.started = true
	d.Refresh()
}

// Refresh lists the directory now instead of waiting for the timer.
// A refresh already in flight absorbs the call.
func (d *Drive) Refresh() {
	if d.closed || d.paused || d.refreshing {
		return
	}
	d.timer.Stop()
	d.timer = nil
	d.refreshing = true

	client := d.account.Client()
	generation := d.generation
	remote.Go(d.ctx, d.loop, d.token, client.ListDocuments, func(documents []remote.Document, err error) {
		if generation != d.generation {
			return
		}
		d.refreshing = false
		if err != nil {
			if d.failed("list", err) {
				return
			}
		} else {
			candidates := make([]Entry, len(documents))
			for i, document := range documents {
				candidates[i] = EntryFromRemote(document)
			}
			d.directory.Reconcile(candidates)
		}
		d.schedule()
	})
}

func (d *Drive) schedule() {
	if d.closed || d.paused || !d.started {
		return
	}
	d.timer = d.clock.AfterFunc(d.interval, func() {
		loop.Deliver(d.loop, d.token, d.Refresh)
	})
}

// failed handles a request error and reports whether it logged the
// account out.
func (d *Drive) failed(operation string, err error) bool {
	if remote.IsAuthExpired(err) {
		d.denied()
		return true
	}
	d.logger.Warn("drive request failed", "operation", operation, "error", err)
	return false
}

// denied pauses polling and abandons every request issued under the
// old credentials.
func (d *Drive) denied() {
	if d.paused {
		return
	}
	d.paused = true
	d.refreshing = false
	d.timer.Stop()
	d.timer = nil
	d.cancel()
	d.generation++
	d.account.HandleDeniedRequest()
}

// Resume restarts polling after the account was renewed.
func (d *Drive) Resume() error {
	if d.closed {
		return ErrClosed
	}
	if d.account.Expired() {
		return ErrLoggedOut
	}
	if !d.paused {
		return nil
	}
	d.paused = false
	d.ctx, d.cancel = context.WithCancel(context.Background())
	d.started = true
	d.Refresh()
	return nil
}

// Close stops polling and drops every reply still in flight.
// Idempotent.
func (d *Drive) Close() {
	if d.closed {
		return
	}
	d.closed = true
	d.token.Revoke()
	d.timer.Stop()
	d.timer = nil
	d.cancel()
}

// Create adds a document named name.
func (d *Drive) Create(name string, done func(Entry, error)) {
	d.mutate("create", func(ctx context.Context, client *remote.Client) (remote.Document, error) {
		return client.Create(ctx, name)
	}, done)
}

// Rename changes a document's name.
func (d *Drive) Rename(id ref.DocumentID, name string, done func(Entry, error)) {
	d.mutate("rename", func(ctx context.Context, client *remote.Client) (remote.Document, error) {
		return client.Rename(ctx, id, name)
	}, done)
}

// Trash moves a document to the trash.
func (d *Drive) Trash(id ref.DocumentID, done func(Entry, error)) {
	d.mutate("trash", func(ctx context.Context, client *remote.Client) (remote.Document, error) {
		return client.Trash(ctx, id)
	}, done)
}

// Untrash restores a trashed document.
func (d *Drive) Untrash(id ref.DocumentID, done func(Entry, error)) {
	d.mutate("untrash", func(ctx context.Context, client *remote.Client) (remote.Document, error) {
		return client.Untrash(ctx, id)
	}, done)
}

// Duplicate copies a document; done receives the copy.
func (d *Drive) Duplicate(id ref.DocumentID, done func(Entry, error)) {
	d.mutate("duplicate", func(ctx context.Context, client *remote.Client) (remote.Document, error) {
		return client.Duplicate(ctx, id)
	}, done)
}

// Open starts (or joins) a live session for a document; the returned
// entry carries the session id.
func (d *Drive) Open(id ref.DocumentID, done func(Entry, error)) {
	d.mutate("open", func(ctx context.Context, client *remote.Client) (remote.Document, error) {
		return client.Open(ctx, id)
	}, done)
}

// Upload stores snapshot bytes as a new document named name.
func (d *Drive) Upload(name string, snapshot []byte, done func(Entry, error)) {
	d.mutate("upload", func(ctx context.Context, client *remote.Client) (remote.Document, error) {
		return client.Upload(ctx, name, snapshot)
	}, done)
}

// Download fetches a document's snapshot bytes.
func (d *Drive) Download(id ref.DocumentID, done func([]byte, error)) {
	if done == nil {
		done = func([]byte, error) {}
	}
	if err := d.usable(); err != nil {
		loop.Deliver(d.loop, d.token, func() { done(nil, err) })
		return
	}
	client := d.account.Client()
	generation := d.generation
	remote.Go(d.ctx, d.loop, d.token, func(ctx context.Context) ([]byte, error) {
		return client.Download(ctx, id)
	}, func(snapshot []byte, err error) {
		if generation != d.generation {
			return
		}
		if err != nil {
			d.failed("download", err)
			done(nil, fmt.Errorf("drive: download: %w", err))
			return
		}
		done(snapshot, nil)
	})
}

func (d *Drive) usable() error {
	switch {
	case d.closed:
		return ErrClosed
	case d.paused:
		return ErrLoggedOut
	}
	return nil
}

// mutate runs a directory operation and folds the returned entry into
// the cache before done sees it.
func (d *Drive) mutate(operation string, call func(context.Context, *remote.Client) (remote.Document, error), done func(Entry, error)) {
	if done == nil {
		done = func(Entry, error) {}
	}
	if err := d.usable(); err != nil {
		loop.Deliver(d.loop, d.token, func() { done(Entry{}, err) })
		return
	}
	client := d.account.Client()
	generation := d.generation
	remote.Go(d.ctx, d.loop, d.token, func(ctx context.Context) (remote.Document, error) {
		return call(ctx, client)
	}, func(document remote.Document, err error) {
		if generation != d.generation {
			return
		}
		if err != nil {
			d.failed(operation, err)
			done(Entry{}, fmt.Errorf("drive: %s: %w", operation, err))
			return
		}
		entry := EntryFromRemote(document)
		d.directory.Put(entry)
		done(entry, nil)
	})
}
