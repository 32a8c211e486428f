// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

package driveui

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/patchbay-collective/patchbay/drive"
	"github.com/patchbay-collective/patchbay/lib/clock"
	"github.com/patchbay-collective/patchbay/lib/loop"
	"github.com/patchbay-collective/patchbay/lib/testutil"
	"github.com/patchbay-collective/patchbay/relay"
	"github.com/patchbay-collective/patchbay/remote"
)

func TestBridgeCarriesDriveEvents(t *testing.T) {
	clk := clock.Fake(time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC))
	accounts, err := relay.NewAccounts([]relay.Account{{Name: "alice", User: 1, Token: "alice-token"}}, clk)
	if err != nil {
		t.Fatal(err)
	}
	hub := relay.NewHub(relay.HubOptions{Accounts: accounts, Clock: clk})
	server := relay.NewServer(relay.ServerOptions{
		Accounts:  accounts,
		Hub:       hub,
		Directory: relay.NewDirectory(relay.DirectoryOptions{Hub: hub, Clock: clk}),
	})
	httpServer := httptest.NewServer(server.Handler())
	t.Cleanup(func() {
		hub.Close()
		httpServer.Close()
	})

	client, err := remote.NewClient(remote.ClientConfig{BaseURL: httpServer.URL, Token: "alice-token", Timeout: 5 * time.Second})
	if err != nil {
		t.Fatal(err)
	}
	created, err := client.Create(context.Background(), "Arpeggiator")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	l := loop.New(nil)
	messages := make(chan tea.Msg, 16)
	bridge := NewBridge(l, func(msg tea.Msg) { messages <- msg })
	d, err := drive.New(drive.Options{
		Account:  drive.NewAccount("alice", client, bridge.LoggedOut, nil),
		Loop:     l,
		Clock:    clk,
		Order:    drive.Order{Key: drive.SortName},
		Listener: bridge,
	})
	if err != nil {
		t.Fatal(err)
	}
	bridge.Attach(d)
	t.Cleanup(d.Close)

	next := func(description string) tea.Msg {
		t.Helper()
		var msg tea.Msg
		testutil.WaitFor(t, 5*time.Second, func() bool {
			l.RunPending()
			select {
			case msg = <-messages:
				return true
			default:
				return false
			}
		}, description)
		return msg
	}

	l.Post(d.Start)
	entries, ok := next("first listing").(EntriesMsg)
	if !ok || len(entries.Entries) != 1 || entries.Entries[0].ID != created.ID {
		t.Fatalf("first message = %+v, want the listing", entries)
	}
	if entries.Order.Key != drive.SortName {
		t.Errorf("listing order = %v", entries.Order)
	}

	bridge.Trash(created.ID)
	if changed, ok := next("trash folded into the cache").(EntriesMsg); !ok || !changed.Entries[0].Trashed {
		t.Errorf("after trash = %+v", changed)
	}
	result, ok := next("trash result").(ResultMsg)
	if !ok || result.Operation != "trashed" || result.Err != nil {
		t.Errorf("trash result = %+v", result)
	}

	bridge.SetOrder(drive.Order{Key: drive.SortCreated})
	if reordered, ok := next("order change").(EntriesMsg); !ok || reordered.Order.Key != drive.SortCreated {
		t.Errorf("after SetOrder = %+v", reordered)
	}
}
