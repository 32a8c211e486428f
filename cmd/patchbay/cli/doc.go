// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli provides the command-line framework for the patchbay CLI.
//
// The central type is [Command], a named subcommand with optional nested
// [Command.Subcommands], a [pflag.FlagSet] factory, and a Run function.
// The tree is assembled in cmd/patchbay/commands and dispatched via
// [Command.Execute], which handles flag parsing, subcommand routing, and
// help output with examples. Unknown subcommands and flags get a
// did-you-mean suggestion computed by Levenshtein distance.
//
// Parameter structs bind their flags through struct tags ([BindFlags]);
// embedding [JSONOutput] adds --json and embedding [ConfigFlags] adds
// --config with the loading rules every command shares.
//
// Errors returned by commands are [ToolError] values where the category
// matters to the caller; [Classify] maps errors from the remote API and
// the snapshot format onto categories.
package cli
