// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for Patchbay components.
//
// Configuration is loaded from a single file specified by either the
// PATCHBAY_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There is no automatic file search.
//
// Files ending in .json or .jsonc are parsed as JSON after comments and
// trailing commas are stripped with tidwall/jsonc. Every other file is
// YAML.
//
// The file may contain environment-specific sections (development,
// production) that override base values when [Config].Environment
// matches. Production forces Debug off unless the production section
// turns it back on explicitly.
//
// Variable expansion is performed on path fields after loading:
// ${HOME}, ${PATCHBAY_ROOT}, and ${VAR:-default} patterns are expanded.
//
// Durations are stored as strings ("250ms", "5s") so the file stays
// readable; the typed accessors parse them and [Config.Validate]
// rejects malformed values up front.
//
// This package depends on no other Patchbay packages.
package config
