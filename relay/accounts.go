// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"errors"
	"fmt"
	"time"

	"github.com/patchbay-collective/patchbay/lib/clock"
	"github.com/patchbay-collective/patchbay/lib/config"
	"github.com/patchbay-collective/patchbay/lib/ref"
)

var (
	// ErrUnauthorized is an unknown or missing token (HTTP 401).
	ErrUnauthorized = errors.New("relay: unknown token")

	// ErrExpired is a known token past its expiry (HTTP 403).
	ErrExpired = errors.New("relay: token expired")
)

// Account is one user allowed to use the relay.
type Account struct {
	Name    string
	User    ref.UserID
	Token   string
	Expires time.Time
}

// Accounts authenticates bearer tokens. Immutable after construction,
// so safe for concurrent use.
type Accounts struct {
	byToken map[string]Account
	clock   clock.Clock
}

// NewAccounts indexes accounts by token. Tokens and user ids must be
// unique.
func NewAccounts(accounts []Account, clk clock.Clock) (*Accounts, error) {
	if clk == nil {
		clk = clock.Real()
	}
	a := &Accounts{byToken: make(map[string]Account, len(accounts)), clock: clk}
	users := make(map[ref.UserID]string)
	for _, account := range accounts {
		if account.Token == "" {
			return nil, fmt.Errorf("relay: account %q has no token", account.Name)
		}
		if account.User == ref.OfflineUser {
			return nil, fmt.Errorf("relay: account %q has no user id", account.Name)
		}
		if _, exists := a.byToken[account.Token]; exists {
			return nil, fmt.Errorf("relay: account %q reuses another account's token", account.Name)
		}
		if other, exists := users[account.User]; exists {
			return nil, fmt.Errorf("relay: accounts %q and %q share user id %s", other, account.Name, account.User)
		}
		users[account.User] = account.Name
		a.byToken[account.Token] = account
	}
	return a, nil
}

// AccountsFromConfig builds Accounts from the relay section of the
// configuration.
func AccountsFromConfig(accounts []config.Account, clk clock.Clock) (*Accounts, error) {
	converted := make([]Account, len(accounts))
	for i, account := range accounts {
		converted[i] = Account{
			Name:    account.Name,
			User:    ref.UserID(account.UserID),
			Token:   account.Token,
			Expires: account.Expiry(),
		}
	}
	return NewAccounts(converted, clk)
}

// Authenticate returns the account holding token.
func (a *Accounts) Authenticate(token string) (Account, error) {
	account, ok := a.byToken[token]
	if !ok {
		return Account{}, ErrUnauthorized
	}
	if !account.Expires.IsZero() && !a.clock.Now().Before(account.Expires) {
		return Account{}, fmt.Errorf("%w: account %q expired at %s", ErrExpired, account.Name,
			account.Expires.Format(time.RFC3339))
	}
	return account, nil
}
