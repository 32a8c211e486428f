// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealed encrypts exported patch snapshots with age.
//
// A sealed export is an ordinary snapshot image (see lib/snapshot)
// wrapped in an age envelope, so a patch can be handed to a
// collaborator over an untrusted channel. Two kinds of recipient are
// supported: X25519 public keys (age1...) and a passphrase (scrypt).
// age does not allow mixing a passphrase with other recipients.
//
// Output is ASCII-armored by default so it survives copy and paste;
// [Open] accepts both armored and binary input.
package sealed
