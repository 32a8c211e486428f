// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

// Package cycle finds feedback loops among control links.
//
// A loop of control links makes message delivery recurse without bound
// when the patch runs, so the editor warns about it (a "stack
// overflow"). Find reports one minimal witness: the shortest cycle
// inside the first strongly connected component that has one. Detector
// wraps Find with the event contract the editor needs: a Detected event
// when a loop appears or the reported loop changes, exactly one Cleared
// event when it goes away, and nothing when the same state is checked
// twice.
//
// The package knows nothing about documents. Callers describe the
// graph as a list of Edges (one per live control link).
package cycle
