// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/patchbay-collective/patchbay/cmd/patchbay/cli"
	"github.com/patchbay-collective/patchbay/lib/config"
	"github.com/patchbay-collective/patchbay/lib/ref"
	"github.com/patchbay-collective/patchbay/remote"
)

// newClient returns a directory client for the configured relay and
// account.
func newClient(cfg *config.Config) (*remote.Client, error) {
	if cfg.User.Token == "" {
		return nil, cli.Validation("no account token configured").
			WithHint("Set user.token in your configuration to a token listed in the relay's relay.accounts.")
	}
	client, err := remote.NewClient(remote.ClientConfig{
		BaseURL: cli.RelayURL(cfg),
		Token:   cfg.User.Token,
		Timeout: cfg.RequestTimeout(),
	})
	if err != nil {
		return nil, cli.Validation("%w", err)
	}
	return client, nil
}

// parseDocumentID parses a document id argument.
func parseDocumentID(raw string) (ref.DocumentID, error) {
	id, err := ref.ParseDocumentID(raw)
	if err != nil {
		return 0, cli.Validation("invalid document id %q", raw).
			WithHint("Run 'patchbay drive list' to see document ids.")
	}
	return id, nil
}

// interruptible returns a context cancelled by SIGINT or SIGTERM.
func interruptible() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func requireArgs(args []string, names ...string) error {
	switch {
	case len(args) < len(names):
		return cli.Validation("missing argument: %s", names[len(args)])
	case len(args) > len(names):
		return cli.Validation("unexpected argument: %s", args[len(names)])
	}
	return nil
}
