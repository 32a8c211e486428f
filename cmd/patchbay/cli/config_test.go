// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestConfigFlags_Load(t *testing.T) {
	t.Setenv("PATCHBAY_CONFIG", "")

	path := filepath.Join(t.TempDir(), "patchbay.yaml")
	contents := "root: /tmp/patchbay\nserver:\n  host: relay.example\n  port: 9000\nlog:\n  level: warn\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}

	flags := ConfigFlags{Path: path, LogLevel: "debug"}
	cfg, err := flags.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ServerAddress() != "relay.example:9000" {
		t.Errorf("ServerAddress = %q", cfg.ServerAddress())
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("--log-level did not override the file: %q", cfg.Log.Level)
	}
	if RelayURL(cfg) != "http://relay.example:9000" {
		t.Errorf("RelayURL = %q", RelayURL(cfg))
	}
}

func TestConfigFlags_LoadDefaults(t *testing.T) {
	t.Setenv("PATCHBAY_CONFIG", "")
	var flags ConfigFlags
	cfg, err := flags.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 7411 {
		t.Errorf("default port = %d", cfg.Server.Port)
	}
}

func TestConfigFlags_LoadInvalid(t *testing.T) {
	t.Setenv("PATCHBAY_CONFIG", "")
	flags := ConfigFlags{LogLevel: "loud"}
	_, err := flags.Load()
	var toolErr *ToolError
	if !errors.As(err, &toolErr) || toolErr.Category != CategoryValidation {
		t.Fatalf("Load = %v, want a validation error", err)
	}
	if !strings.Contains(err.Error(), "log.level") {
		t.Errorf("error does not name the bad field: %v", err)
	}

	flags = ConfigFlags{Path: filepath.Join(t.TempDir(), "missing.yaml")}
	if _, err := flags.Load(); !errors.As(err, &toolErr) || toolErr.Hint == "" {
		t.Errorf("missing file = %v, want a validation error with a hint", err)
	}
}

func TestNewLogger(t *testing.T) {
	var output bytes.Buffer
	newLogger(&output, false, slog.LevelWarn).Info("dropped")
	newLogger(&output, false, slog.LevelWarn).Warn("kept", "document", 3)
	if strings.Contains(output.String(), "dropped") {
		t.Error("info record written at warn level")
	}
	if !strings.Contains(output.String(), `"msg":"kept"`) {
		t.Errorf("non-terminal output is not JSON: %q", output.String())
	}

	output.Reset()
	newLogger(&output, true, slog.LevelInfo).Info("hello")
	if !strings.Contains(output.String(), "msg=hello") {
		t.Errorf("terminal output is not text: %q", output.String())
	}

	if _, err := ParseLevel("verbose"); err == nil {
		t.Error("ParseLevel accepted an unknown level")
	}
}
