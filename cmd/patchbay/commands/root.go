// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands assembles the patchbay command tree.
package commands

import (
	"github.com/patchbay-collective/patchbay/cmd/patchbay/cli"
)

// Root returns the top-level command.
func Root() *cli.Command {
	return &cli.Command{
		Name:    "patchbay",
		Summary: "Collaborative patcher documents",
		Description: `Patchbay edits patcher documents alone or together through a relay.

Configuration is read from --config, else from $PATCHBAY_CONFIG, else
built-in defaults (a relay on 127.0.0.1:7411).`,
		Subcommands: []*cli.Command{
			relayCommand(),
			driveCommand(),
			patchCommand(),
			snapshotCommand(),
			versionCommand(),
		},
	}
}
