// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

// Package selection derives how each live object and link is selected
// from the point of view of one local view.
//
// The document stores selection as raw bits: every view of every user
// has a set of selected entities. A Reconciler turns those bits into
// three facts per entity: selected in my view (Local), selected in
// another view of my own user (OtherLocalView), and selected by other
// connected users (OtherUsers). Users that are neither local nor
// connected are ignored, so stale selections left behind by departed
// users are never shown.
//
// Each pass diffs the result against the previous pass and reports only
// the entities whose classification changed. The cached state is
// replaced before the changes are returned, so a handler that queries
// the Reconciler while processing a change sees the new state.
//
// The Reconciler never stores a view's own selection apart from the
// input it is given: the local set is recomputed from the replicated
// bits on every pass.
package selection
