// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

// Package snapshot reads and writes saved patch files.
//
// A snapshot file is a small binary header followed by the document
// body:
//
//	"PBSN"                     magic
//	uint8                      container format (currently 1)
//	uint16 + bytes             schema version string
//	uint8                      compression tag
//	uint64                     uncompressed body length
//	[32]byte                   BLAKE3 keyed digest of the uncompressed body
//	...                        body, compressed per the tag
//
// Integers are big-endian. The body is opaque here; the document package
// stores deterministic CBOR in it.
//
// [Load] validates everything before returning the body: the magic,
// the schema string (any mismatch is an [IncompatibleVersionError]),
// the decompressed length and the digest. A caller therefore never sees
// a partially valid snapshot. [Save] writes through a temporary file in
// the same directory and renames it into place, so readers never see a
// torn file either.
//
// [Lock] takes an advisory flock on a sidecar file so two processes do
// not edit the same patch file at once.
package snapshot
