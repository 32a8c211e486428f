// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

package drive

import (
	"log/slog"
	"sync"

	"github.com/patchbay-collective/patchbay/remote"
)

// Account is the signed-in relay account shared by the drive and the
// patcher manager. A request refused for expired credentials logs the
// account out; the owner re-authenticates and calls Renew.
type Account struct {
	name   string
	logger *slog.Logger

	mu       sync.Mutex
	client   *remote.Client
	expired  bool
	onDenied func(name string)
}

// NewAccount returns a signed-in account. onDenied, if non-nil, is the
// re-authentication prompt; it runs once per logout.
func NewAccount(name string, client *remote.Client, onDenied func(name string), logger *slog.Logger) *Account {
	if logger == nil {
		logger = slog.Default()
	}
	return &Account{
		name:     name,
		client:   client,
		onDenied: onDenied,
		logger:   logger.With("account", name),
	}
}

// Name returns the account name.
func (a *Account) Name() string { return a.name }

// Client returns the REST client for the account's current token.
func (a *Account) Client() *remote.Client {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.client
}

// Expired reports whether the account has been logged out.
func (a *Account) Expired() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.expired
}

// HandleDeniedRequest logs the account out and asks the owner to sign
// in again. Repeated calls before Renew do nothing.
func (a *Account) HandleDeniedRequest() {
	a.mu.Lock()
	if a.expired {
		a.mu.Unlock()
		return
	}
	a.expired = true
	onDenied := a.onDenied
	a.mu.Unlock()

	a.logger.Warn("relay refused credentials, logging out")
	if onDenied != nil {
		onDenied(a.name)
	}
}

// Renew signs the account back in with a client carrying fresh
// credentials.
func (a *Account) Renew(client *remote.Client) {
	a.mu.Lock()
	a.client = client
	a.expired = false
	a.mu.Unlock()
	a.logger.Info("account renewed")
}
