// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"bytes"
	"fmt"
	"net"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/patchbay-collective/patchbay/cmd/patchbay/cli"
	"github.com/patchbay-collective/patchbay/lib/clock"
	"github.com/patchbay-collective/patchbay/relay"
)

// startRelay serves a relay with accounts alice (token "alice-token")
// and bob ("bob-token") and returns a config file pointing at it as
// alice.
func startRelay(t *testing.T) string {
	t.Helper()
	clk := clock.Fake(time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC))
	accounts, err := relay.NewAccounts([]relay.Account{
		{Name: "alice", User: 1, Token: "alice-token"},
		{Name: "bob", User: 2, Token: "bob-token"},
	}, clk)
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

	parsed, err := url.Parse(httpServer.URL)
	if err != nil {
		t.Fatal(err)
	}
	host, portText, err := net.SplitHostPort(parsed.Host)
	if err != nil {
		t.Fatal(err)
	}
	port, err := strconv.Atoi(portText)
	if err != nil {
		t.Fatal(err)
	}
	return writeConfig(t, fmt.Sprintf(`root: %s
server:
  host: %s
  port: %d
  request_timeout: 5s
user:
  name: alice
  token: alice-token
log:
  level: error
`, t.TempDir(), host, port))
}

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "patchbay.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// execute runs the command tree with args and returns what it wrote to
// stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("PATCHBAY_CONFIG", "")
	var stdout bytes.Buffer
	previous := cli.Stdout
	cli.Stdout = &stdout
	defer func() { cli.Stdout = previous }()

	root := Root()
	root.Output = &stdout
	err := root.Execute(args)
	return stdout.String(), err
}

// mustExecute is execute for commands expected to succeed.
func mustExecute(t *testing.T, args ...string) string {
	t.Helper()
	out, err := execute(t, args...)
	if err != nil {
		t.Fatalf("patchbay %v: %v", args, err)
	}
	return out
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}
