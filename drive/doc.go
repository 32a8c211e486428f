// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

// Package drive keeps a local, sorted copy of a relay's document
// directory.
//
// [Directory] is the cache. Each [Directory.Reconcile] takes a freshly
// polled candidate list and brings the cache in line with it: entries
// whose id vanished are removed, new ids are added in the order the
// relay listed them, and entries whose mutable fields moved are updated
// in place. The document id is the only identity; two entries with the
// same name are different documents. If anything changed the list is
// re-sorted with the active [Order] and listeners get exactly one bulk
// DriveChanged after the per-entry events. Reconciling the same list
// twice produces no events the second time.
//
// [Drive] is the polling service around a Directory. It lists the
// directory through remote.Client on a clock-driven timer, delivers the
// result to the owner's loop and reconciles there. It also exposes the
// directory operations (create, rename, trash, restore, duplicate,
// upload, download, open) as asynchronous calls whose results are
// folded into the cache. A request refused for expired credentials
// calls [Account.HandleDeniedRequest], cancels the account's in-flight
// requests and stops polling until [Drive.Resume]. After
// [Drive.Close] no callback runs.
package drive
