// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

// Package version provides build version information for Patchbay
// binaries and the schema version of persisted documents.
//
// # Build information
//
// Release builds set [GitCommit], [GitDirty], [BuildTime] and [Version]
// with -ldflags -X. [Current] reads them, falling back to the VCS stamp
// of debug.ReadBuildInfo for plain "go build" binaries, and is what
// "patchbay version" prints.
//
// # Document schema
//
// [Schema] tags every saved snapshot. It changes whenever the snapshot
// body changes shape. Loading compares the stored tag with [Schema]
// byte for byte and refuses any mismatch; there is no migration.
package version
