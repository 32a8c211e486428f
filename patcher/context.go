// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

package patcher

import (
	"log/slog"

	"github.com/patchbay-collective/patchbay/lib/clock"
	"github.com/patchbay-collective/patchbay/lib/config"
	"github.com/patchbay-collective/patchbay/lib/loop"
	"github.com/patchbay-collective/patchbay/transport"
)

// Context carries the process-wide collaborators every manager needs.
// It is built once at startup and passed down explicitly.
type Context struct {
	Config *config.Config
	Logger *slog.Logger
	Clock  clock.Clock
	Loop   *loop.Loop

	// Dialer opens session links. Nil means managers can only work
	// offline.
	Dialer transport.Dialer

	// Account is told when the relay refuses a session's credentials.
	// Nil only logs the refusal.
	Account Account
}

// Account is the signed-in relay account. *drive.Account implements
// it, so the drive and every session share one logout.
type Account interface {
	HandleDeniedRequest()
}

// withDefaults returns a copy with nil fields filled in.
func (c Context) withDefaults() Context {
	if c.Config == nil {
		c.Config = config.Default()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Clock == nil {
		c.Clock = clock.Real()
	}
	if c.Loop == nil {
		panic("patcher: Context.Loop is required")
	}
	return c
}

func (c Context) controllerOptions(hello func(transport.Endpoint) transport.Frame, logger *slog.Logger) transport.Options {
	initial, maximum := c.Config.ReconnectBackoff()
	return transport.Options{
		Dialer:         c.Dialer,
		Loop:           c.Loop,
		Clock:          c.Clock,
		Logger:         logger,
		Hello:          hello,
		InitialBackoff: initial,
		MaxBackoff:     maximum,
		MaxAttempts:    c.Config.Session.ReconnectAttempts,
	}
}
