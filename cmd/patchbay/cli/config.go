// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/patchbay-collective/patchbay/lib/config"
)

// ConfigFlags adds --config and --log-level to a parameter struct when
// embedded.
type ConfigFlags struct {
	Path     string
	LogLevel string
}

// AddFlags registers the configuration flags.
func (f *ConfigFlags) AddFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVarP(&f.Path, "config", "c", "", "configuration file (default: $PATCHBAY_CONFIG, else built-in defaults)")
	flagSet.StringVar(&f.LogLevel, "log-level", "", "override log.level (debug, info, warn, error)")
}

// Load reads the configuration named by --config, else by
// PATCHBAY_CONFIG, else the defaults, applies --log-level and
// validates the result.
func (f *ConfigFlags) Load() (*config.Config, error) {
	var cfg *config.Config
	var err error
	switch {
	case f.Path != "":
		cfg, err = config.LoadFile(f.Path)
	case os.Getenv("PATCHBAY_CONFIG") != "":
		cfg, err = config.Load()
	default:
		cfg = config.Default()
	}
	if err != nil {
		return nil, Validation("%w", err).WithHint("Pass --config <file> or set PATCHBAY_CONFIG.")
	}
	if f.LogLevel != "" {
		cfg.Log.Level = f.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, Validation("invalid configuration:\n%w", err)
	}
	return cfg, nil
}

// Logger returns the command logger at the configured level, scoped to
// command.
func (f *ConfigFlags) Logger(cfg *config.Config, command string) (*slog.Logger, error) {
	level, err := ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, Validation("%w", err)
	}
	return NewCommandLogger(level).With("command", command), nil
}

// RelayURL returns the base URL of the configured relay's REST API.
func RelayURL(cfg *config.Config) string {
	return fmt.Sprintf("http://%s", cfg.ServerAddress())
}
