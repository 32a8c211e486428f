// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local machines.
	Development Environment = "development"
	// Production is for deployed relays and end-user installs.
	Production Environment = "production"
)

// Config is the master configuration for Patchbay.
type Config struct {
	Environment Environment `yaml:"environment" json:"environment"`

	// Root is the base directory for local state (saved patches, the
	// drive cache).
	Root string `yaml:"root" json:"root"`

	User     UserConfig     `yaml:"user" json:"user"`
	Server   ServerConfig   `yaml:"server" json:"server"`
	Session  SessionConfig  `yaml:"session" json:"session"`
	Drive    DriveConfig    `yaml:"drive" json:"drive"`
	Snapshot SnapshotConfig `yaml:"snapshot" json:"snapshot"`
	Relay    RelayConfig    `yaml:"relay" json:"relay"`
	Log      LogConfig      `yaml:"log" json:"log"`

	// Debug turns invariant violations in reconciliation into panics
	// instead of logged warnings.
	Debug bool `yaml:"debug" json:"debug"`

	Development *Overrides `yaml:"development,omitempty" json:"development,omitempty"`
	Production  *Overrides `yaml:"production,omitempty" json:"production,omitempty"`
}

// Overrides contains fields that can be overridden per environment.
type Overrides struct {
	Server *ServerConfig `yaml:"server,omitempty" json:"server,omitempty"`
	Log    *LogConfig    `yaml:"log,omitempty" json:"log,omitempty"`
	Debug  *bool         `yaml:"debug,omitempty" json:"debug,omitempty"`
}

// UserConfig identifies the local user to the relay.
type UserConfig struct {
	// Name is shown to other participants.
	Name string `yaml:"name" json:"name"`

	// Token is the bearer token sent with every REST call and session
	// hello. Empty means offline-only.
	Token string `yaml:"token" json:"token"`
}

// ServerConfig locates the relay.
type ServerConfig struct {
	// Host and Port of the relay. The REST API and the session socket
	// share the same listener.
	Host string `yaml:"host" json:"host"`
	Port int    `yaml:"port" json:"port"`

	// RequestTimeout bounds each REST call.
	// Default: 10s
	RequestTimeout string `yaml:"request_timeout" json:"request_timeout"`
}

// SessionConfig configures live document sessions.
type SessionConfig struct {
	// PullInterval is how often a connected manager applies queued
	// remote transactions.
	// Default: 100ms
	PullInterval string `yaml:"pull_interval" json:"pull_interval"`

	// ReconnectBackoff is the first reconnect delay; it doubles up to
	// ReconnectMaxBackoff.
	// Default: 1s
	ReconnectBackoff string `yaml:"reconnect_backoff" json:"reconnect_backoff"`

	// ReconnectMaxBackoff caps the reconnect delay.
	// Default: 30s
	ReconnectMaxBackoff string `yaml:"reconnect_max_backoff" json:"reconnect_max_backoff"`

	// ReconnectAttempts is how many reconnects are tried before the
	// connection is declared failed.
	// Default: 5
	ReconnectAttempts int `yaml:"reconnect_attempts" json:"reconnect_attempts"`
}

// DriveConfig configures the document directory.
type DriveConfig struct {
	// PollInterval is how often the directory is refreshed.
	// Default: 5s
	PollInterval string `yaml:"poll_interval" json:"poll_interval"`

	// Sort is one of name, author, created, opened.
	// Default: opened
	Sort string `yaml:"sort" json:"sort"`

	// TrashedFirst lists trashed documents before live ones.
	TrashedFirst bool `yaml:"trashed_first" json:"trashed_first"`
}

// SnapshotConfig configures saved patch files.
type SnapshotConfig struct {
	// Compression is one of none, zstd, lz4.
	// Default: zstd
	Compression string `yaml:"compression" json:"compression"`
}

// RelayConfig configures the relay server.
type RelayConfig struct {
	// Listen is the address the relay binds.
	// Default: 127.0.0.1:7411
	Listen string `yaml:"listen" json:"listen"`

	// Metrics exposes Prometheus metrics at /metrics.
	Metrics bool `yaml:"metrics" json:"metrics"`

	// Accounts are the users allowed to connect.
	Accounts []Account `yaml:"accounts" json:"accounts"`
}

// Account is one relay user.
type Account struct {
	Name  string `yaml:"name" json:"name"`
	Token string `yaml:"token" json:"token"`

	// UserID is the numeric id other participants see. Must be non-zero.
	UserID uint64 `yaml:"user_id" json:"user_id"`

	// Expires is an RFC 3339 time after which the token is refused.
	// Empty means never.
	Expires string `yaml:"expires" json:"expires"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	// Default: info
	Level string `yaml:"level" json:"level"`
}

// Default returns the default configuration.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Environment: Development,
		Root:        filepath.Join(homeDir, ".local", "share", "patchbay"),
		Server: ServerConfig{
			Host:           "127.0.0.1",
			Port:           7411,
			RequestTimeout: "10s",
		},
		Session: SessionConfig{
			PullInterval:        "100ms",
			ReconnectBackoff:    "1s",
			ReconnectMaxBackoff: "30s",
			ReconnectAttempts:   5,
		},
		Drive: DriveConfig{
			PollInterval: "5s",
			Sort:         "opened",
		},
		Snapshot: SnapshotConfig{
			Compression: "zstd",
		},
		Relay: RelayConfig{
			Listen: "127.0.0.1:7411",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from the PATCHBAY_CONFIG environment variable.
func Load() (*Config, error) {
	configPath := os.Getenv("PATCHBAY_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("PATCHBAY_CONFIG environment variable not set; " +
			"set it to the path of your patchbay.yaml config file, or use --config flag")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path. Values not
// present in the file keep their defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.loadFile(path); err != nil {
		return nil, fmt.Errorf("config: loading %s: %w", path, err)
	}
	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		return json.Unmarshal(jsonc.ToJSON(data), c)
	default:
		return yaml.Unmarshal(data, c)
	}
}

func (c *Config) applyEnvironmentOverrides() {
	var overrides *Overrides
	switch c.Environment {
	case Development:
		overrides = c.Development
	case Production:
		c.Debug = false
		overrides = c.Production
	}
	if overrides == nil {
		return
	}

	if overrides.Server != nil {
		if overrides.Server.Host != "" {
			c.Server.Host = overrides.Server.Host
		}
		if overrides.Server.Port != 0 {
			c.Server.Port = overrides.Server.Port
		}
		if overrides.Server.RequestTimeout != "" {
			c.Server.RequestTimeout = overrides.Server.RequestTimeout
		}
	}
	if overrides.Log != nil && overrides.Log.Level != "" {
		c.Log.Level = overrides.Log.Level
	}
	if overrides.Debug != nil {
		c.Debug = *overrides.Debug
	}
}

func (c *Config) expandVariables() {
	vars := map[string]string{
		"PATCHBAY_ROOT": c.Root,
		"HOME":          os.Getenv("HOME"),
	}
	c.Root = expandVars(c.Root, vars)
	vars["PATCHBAY_ROOT"] = c.Root
	c.User.Token = expandVars(c.User.Token, vars)
	for i := range c.Relay.Accounts {
		c.Relay.Accounts[i].Token = expandVars(c.Relay.Accounts[i].Token, vars)
	}
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} patterns.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

var (
	sortKeys          = []string{"name", "author", "created", "opened"}
	compressionNames  = []string{"none", "zstd", "lz4"}
	logLevels         = []string{"debug", "info", "warn", "error"}
	durationFieldName = map[string]func(*Config) string{
		"server.request_timeout":        func(c *Config) string { return c.Server.RequestTimeout },
		"session.pull_interval":         func(c *Config) string { return c.Session.PullInterval },
		"session.reconnect_backoff":     func(c *Config) string { return c.Session.ReconnectBackoff },
		"session.reconnect_max_backoff": func(c *Config) string { return c.Session.ReconnectMaxBackoff },
		"drive.poll_interval":           func(c *Config) string { return c.Drive.PollInterval },
	}
)

// Validate checks the configuration for errors. All problems are
// reported together.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}
	if c.Root == "" {
		errs = append(errs, fmt.Errorf("root is required"))
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}

	fields := make([]string, 0, len(durationFieldName))
	for field := range durationFieldName {
		fields = append(fields, field)
	}
	slices.Sort(fields)
	for _, field := range fields {
		raw := durationFieldName[field](c)
		value, err := time.ParseDuration(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", field, err))
			continue
		}
		if value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", field, raw))
		}
	}
	if c.Session.ReconnectAttempts < 0 {
		errs = append(errs, fmt.Errorf("session.reconnect_attempts must not be negative"))
	}

	if !slices.Contains(sortKeys, c.Drive.Sort) {
		errs = append(errs, fmt.Errorf("drive.sort must be one of: %v", sortKeys))
	}
	if !slices.Contains(compressionNames, c.Snapshot.Compression) {
		errs = append(errs, fmt.Errorf("snapshot.compression must be one of: %v", compressionNames))
	}
	if !slices.Contains(logLevels, c.Log.Level) {
		errs = append(errs, fmt.Errorf("log.level must be one of: %v", logLevels))
	}

	seenTokens := make(map[string]bool)
	seenUsers := make(map[uint64]bool)
	for i, account := range c.Relay.Accounts {
		if account.Token == "" {
			errs = append(errs, fmt.Errorf("relay.accounts[%d]: token is required", i))
		} else if seenTokens[account.Token] {
			errs = append(errs, fmt.Errorf("relay.accounts[%d]: duplicate token", i))
		}
		seenTokens[account.Token] = true
		if account.UserID == 0 {
			errs = append(errs, fmt.Errorf("relay.accounts[%d]: user_id must be non-zero", i))
		} else if seenUsers[account.UserID] {
			errs = append(errs, fmt.Errorf("relay.accounts[%d]: duplicate user_id %d", i, account.UserID))
		}
		seenUsers[account.UserID] = true
		if account.Expires != "" {
			if _, err := time.Parse(time.RFC3339, account.Expires); err != nil {
				errs = append(errs, fmt.Errorf("relay.accounts[%d].expires: %w", i, err))
			}
		}
	}

	return errors.Join(errs...)
}

// EnsureRoot creates the root directory if it doesn't exist.
func (c *Config) EnsureRoot() error {
	if err := os.MkdirAll(c.Root, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", c.Root, err)
	}
	return nil
}

// ServerAddress returns host:port of the relay.
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// RequestTimeout returns the parsed server.request_timeout.
func (c *Config) RequestTimeout() time.Duration {
	return parseDuration(c.Server.RequestTimeout, 10*time.Second)
}

// PullInterval returns the parsed session.pull_interval.
func (c *Config) PullInterval() time.Duration {
	return parseDuration(c.Session.PullInterval, 100*time.Millisecond)
}

// ReconnectBackoff returns the parsed initial and maximum reconnect
// delays.
func (c *Config) ReconnectBackoff() (initial, maximum time.Duration) {
	return parseDuration(c.Session.ReconnectBackoff, time.Second),
		parseDuration(c.Session.ReconnectMaxBackoff, 30*time.Second)
}

// DrivePollInterval returns the parsed drive.poll_interval.
func (c *Config) DrivePollInterval() time.Duration {
	return parseDuration(c.Drive.PollInterval, 5*time.Second)
}

// Expiry returns the parsed expiry of account, or the zero time
// if it never expires.
func (a Account) Expiry() time.Time {
	if a.Expires == "" {
		return time.Time{}
	}
	expires, err := time.Parse(time.RFC3339, a.Expires)
	if err != nil {
		return time.Time{}
	}
	return expires
}

// parseDuration parses raw, falling back when raw is empty or invalid.
// Validate reports invalid values; accessors never fail.
func parseDuration(raw string, fallback time.Duration) time.Duration {
	value, err := time.ParseDuration(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}
