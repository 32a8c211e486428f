// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides Patchbay's CBOR encoding configuration.
//
// Patchbay uses two formats with a fixed boundary:
//
//   - JSON for the document directory REST API and CLI output.
//   - CBOR for everything that carries document content: transactions
//     on the session socket and the body of snapshot files.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2), so the
// same logical transaction or snapshot always produces identical bytes.
// Snapshot digests depend on that.
//
// Types implementing encoding.TextMarshaler (ref.Ref and friends) are
// encoded as CBOR text strings.
//
// Decoding is bounded in nesting depth and container size because
// snapshot bodies come from files users pass around.
package codec
