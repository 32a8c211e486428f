// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set with -ldflags -X at build time.
var (
	GitCommit = "unknown"
	GitDirty  = "false"
	BuildTime = "unknown"
	Version   = "0.1.0-dev"
)

// Schema is the document schema version written into every snapshot.
const Schema = "patchbay.document/3"

// Build describes the running binary.
type Build struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Dirty     bool   `json:"dirty"`
	BuildTime string `json:"build_time"`
	Schema    string `json:"schema"`
	Go        string `json:"go"`
	Platform  string `json:"platform"`
}

// Current returns the build information. A binary built without
// -ldflags falls back to the VCS stamp the Go toolchain embeds.
func Current() Build {
	build := Build{
		Version:   Version,
		Commit:    GitCommit,
		Dirty:     GitDirty == "true",
		BuildTime: BuildTime,
		Schema:    Schema,
		Go:        runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if build.Commit != "unknown" {
		return build
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return build
	}
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			build.Commit = setting.Value[:min(len(setting.Value), 12)]
		case "vcs.time":
			build.BuildTime = setting.Value
		case "vcs.modified":
			build.Dirty = setting.Value == "true"
		}
	}
	return build
}

// Info returns the one-line version string.
func (b Build) Info() string {
	dirty := ""
	if b.Dirty {
		dirty = "-dirty"
	}
	return fmt.Sprintf("%s (%s%s, %s)", b.Version, b.Commit, dirty, b.BuildTime)
}

// Full returns the version string plus the schema, Go version and
// platform, one per line.
func (b Build) Full() string {
	return fmt.Sprintf("%s\n  Schema: %s\n  Go: %s\n  Platform: %s", b.Info(), b.Schema, b.Go, b.Platform)
}
