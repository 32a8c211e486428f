// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil holds the HTTP and socket helpers shared by the relay
// and its clients.
//
// Every body read is bounded: JSON directory responses at
// MaxResponseSize, snapshot transfers at a caller-chosen limit through
// ReadBounded, which fails instead of truncating. ErrorMessage pulls the
// human-readable text out of a relay error response.
//
// IsExpectedCloseError separates a peer leaving a session from a real
// link failure.
package netutil

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// MaxResponseSize bounds JSON response bodies: 16 MB. A directory
// listing is orders of magnitude smaller.
const MaxResponseSize int64 = 16 << 20

// ReadBounded reads at most limit bytes from body. It fails if body
// holds more, rather than silently truncating.
func ReadBounded(body io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("body exceeds %d bytes", limit)
	}
	return data, nil
}

// DecodeResponse reads at most MaxResponseSize bytes of body and
// JSON-decodes them into v.
func DecodeResponse(body io.Reader, v any) error {
	data, err := ReadBounded(body, MaxResponseSize)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding response body: %w", err)
	}
	return nil
}

// ErrorMessage returns the message of an error response: the "error"
// member of a JSON body, else the trimmed body text. Read errors are
// ignored; a partial body still helps in an error message.
func ErrorMessage(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, MaxResponseSize))
	var response struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &response) == nil && response.Error != "" {
		return response.Error
	}
	return strings.TrimSpace(string(data))
}
