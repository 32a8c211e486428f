// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

// Package driveui implements the terminal document browser behind
// "patchbay drive browse". Built on bubbletea, it shows the drive's
// directory cache as a table and issues directory operations for the
// selected row.
//
// The [Model] never touches a [drive.Drive] directly: the drive belongs
// to its loop, while the model runs on bubbletea's goroutine. A
// [Bridge] carries requests from the model onto the loop (the
// [Actions] interface) and carries directory events and operation
// results back as tea messages.
//
// Data flow:
//
//	[relay] <- drive.Drive (loop goroutine)
//	              | Bridge: DriveChanged -> EntriesMsg
//	          [Model] <- bubbletea event loop
//	              | Actions: Trash/Open/... posted to the loop
package driveui
