// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

package remote

import (
	"errors"
	"fmt"
	"net/http"
)

// AuthExpiredError is a request refused because the account's token is
// missing, invalid or expired (HTTP 401 or 403). Callers log out and
// abandon pending remote work for the account.
type AuthExpiredError struct {
	StatusCode int
	Message    string
}

func (e *AuthExpiredError) Error() string {
	return fmt.Sprintf("remote: authorization expired (%d): %s", e.StatusCode, e.Message)
}

// IsAuthExpired reports whether err is or wraps an AuthExpiredError.
func IsAuthExpired(err error) bool {
	var authErr *AuthExpiredError
	return errors.As(err, &authErr)
}

// APIError is any other non-2xx response.
type APIError struct {
	StatusCode int
	Method     string
	Path       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("remote: %s %s: %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
}

// IsNotFound reports whether err is an APIError with status 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
