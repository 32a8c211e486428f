// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"

	"github.com/patchbay-collective/patchbay/lib/snapshot"
	"github.com/patchbay-collective/patchbay/remote"
)

// ErrorCategory classifies command errors so scripts can decide whether
// to retry, fix their input or give up without parsing messages.
type ErrorCategory string

const (
	// CategoryValidation: bad arguments, malformed files, a snapshot
	// of another schema.
	CategoryValidation ErrorCategory = "validation"

	// CategoryNotFound: an unknown document id or a missing file.
	CategoryNotFound ErrorCategory = "not_found"

	// CategoryForbidden: the relay refused the token.
	CategoryForbidden ErrorCategory = "forbidden"

	// CategoryConflict: the operation conflicts with existing state,
	// such as opening a trashed document or a locked file.
	CategoryConflict ErrorCategory = "conflict"

	// CategoryTransient: network failures and timeouts. Retrying may
	// succeed.
	CategoryTransient ErrorCategory = "transient"

	// CategoryInternal: everything else.
	CategoryInternal ErrorCategory = "internal"
)

// exitCodes maps categories to process exit codes.
var exitCodes = map[ErrorCategory]int{
	CategoryValidation: 2,
	CategoryNotFound:   3,
	CategoryForbidden:  4,
	CategoryConflict:   5,
	CategoryTransient:  6,
	CategoryInternal:   1,
}

// ToolError is a categorized command error. Use the constructors
// (Validation, NotFound, ...) or Classify.
type ToolError struct {
	Category ErrorCategory
	Err      error

	// Hint is an optional next step appended to the message.
	Hint string
}

func (e *ToolError) Error() string {
	if e.Hint == "" {
		return e.Err.Error()
	}
	return e.Err.Error() + "\n\n" + e.Hint
}

func (e *ToolError) Unwrap() error { return e.Err }

// ExitCode returns the process exit code for the category.
func (e *ToolError) ExitCode() int {
	if code, ok := exitCodes[e.Category]; ok {
		return code
	}
	return 1
}

// WithHint sets Hint and returns the receiver.
func (e *ToolError) WithHint(hint string) *ToolError {
	e.Hint = hint
	return e
}

func Validation(format string, args ...any) *ToolError {
	return &ToolError{Category: CategoryValidation, Err: fmt.Errorf(format, args...)}
}

func NotFound(format string, args ...any) *ToolError {
	return &ToolError{Category: CategoryNotFound, Err: fmt.Errorf(format, args...)}
}

func Forbidden(format string, args ...any) *ToolError {
	return &ToolError{Category: CategoryForbidden, Err: fmt.Errorf(format, args...)}
}

func Conflict(format string, args ...any) *ToolError {
	return &ToolError{Category: CategoryConflict, Err: fmt.Errorf(format, args...)}
}

func Transient(format string, args ...any) *ToolError {
	return &ToolError{Category: CategoryTransient, Err: fmt.Errorf(format, args...)}
}

func Internal(format string, args ...any) *ToolError {
	return &ToolError{Category: CategoryInternal, Err: fmt.Errorf(format, args...)}
}

// Classify wraps err in a ToolError whose category follows from the
// errors of the remote API, the snapshot format and the OS. An error
// that already carries a category is returned unchanged; nil stays nil.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var toolErr *ToolError
	if errors.As(err, &toolErr) {
		return err
	}
	classified := &ToolError{Category: category(err), Err: err}
	if classified.Category == CategoryForbidden {
		classified.Hint = "Check user.token in your configuration, or ask the relay operator to renew it."
	}
	return classified
}

func category(err error) ErrorCategory {
	var apiErr *remote.APIError
	var netErr net.Error
	switch {
	case remote.IsAuthExpired(err):
		return CategoryForbidden
	case errors.As(err, &apiErr):
		switch {
		case apiErr.StatusCode == http.StatusNotFound:
			return CategoryNotFound
		case apiErr.StatusCode == http.StatusConflict:
			return CategoryConflict
		case apiErr.StatusCode >= 500:
			return CategoryTransient
		case apiErr.StatusCode >= 400:
			return CategoryValidation
		}
		return CategoryInternal
	case errors.Is(err, snapshot.ErrLocked):
		return CategoryConflict
	case errors.Is(err, snapshot.ErrCorrupt), snapshot.IsIncompatibleVersion(err):
		return CategoryValidation
	case errors.Is(err, os.ErrNotExist):
		return CategoryNotFound
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr):
		return CategoryTransient
	}
	return CategoryInternal
}
