// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/patchbay-collective/patchbay/lib/netutil"
	"github.com/patchbay-collective/patchbay/lib/ref"
)

// DefaultMaxSnapshotSize bounds downloaded snapshots.
const DefaultMaxSnapshotSize int64 = 64 << 20

// SnapshotContentType is the media type of uploaded and downloaded
// snapshot files.
const SnapshotContentType = "application/vnd.patchbay.snapshot"

// ClientConfig configures a Client.
type ClientConfig struct {
	// BaseURL is the relay root, for example "http://127.0.0.1:7411".
	BaseURL string

	// Token is the account's bearer token.
	Token string

	// HTTPClient is used for every request. Nil uses a client with
	// Timeout.
	HTTPClient *http.Client

	// Timeout bounds each request when HTTPClient is nil (default 30s).
	Timeout time.Duration

	// MaxSnapshotSize bounds downloads (default DefaultMaxSnapshotSize).
	MaxSnapshotSize int64
}

// Client talks to one relay's document directory. Safe for concurrent
// use.
type Client struct {
	baseURL         string
	token           string
	httpClient      *http.Client
	maxSnapshotSize int64
}

// NewClient validates config and returns a Client.
func NewClient(config ClientConfig) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("remote: base URL is required")
	}
	parsed, err := url.Parse(config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("remote: invalid base URL %q: %w", config.BaseURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("remote: base URL %q must be http or https", config.BaseURL)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		timeout := config.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	maxSnapshotSize := config.MaxSnapshotSize
	if maxSnapshotSize <= 0 {
		maxSnapshotSize = DefaultMaxSnapshotSize
	}
	return &Client{
		baseURL:         strings.TrimSuffix(config.BaseURL, "/"),
		token:           config.Token,
		httpClient:      httpClient,
		maxSnapshotSize: maxSnapshotSize,
	}, nil
}

// BaseURL returns the relay root.
func (c *Client) BaseURL() string { return c.baseURL }

// ListDocuments returns every directory entry visible to the account.
func (c *Client) ListDocuments(ctx context.Context) ([]Document, error) {
	var listing Listing
	if err := c.doJSON(ctx, http.MethodGet, "/api/documents", nil, &listing); err != nil {
		return nil, err
	}
	return listing.Documents, nil
}

// Create makes an empty document.
func (c *Client) Create(ctx context.Context, name string) (Document, error) {
	var document Document
	err := c.doJSON(ctx, http.MethodPost, "/api/documents", CreateRequest{Name: name}, &document)
	return document, err
}

// Rename changes a document's name.
func (c *Client) Rename(ctx context.Context, id ref.DocumentID, name string) (Document, error) {
	return c.action(ctx, id, "rename", RenameRequest{Name: name})
}

// Trash moves a document to the trash.
func (c *Client) Trash(ctx context.Context, id ref.DocumentID) (Document, error) {
	return c.action(ctx, id, "trash", nil)
}

// Untrash restores a trashed document.
func (c *Client) Untrash(ctx context.Context, id ref.DocumentID) (Document, error) {
	return c.action(ctx, id, "untrash", nil)
}

// Duplicate copies a document and returns the copy.
func (c *Client) Duplicate(ctx context.Context, id ref.DocumentID) (Document, error) {
	return c.action(ctx, id, "duplicate", nil)
}

// Open starts (or joins) the document's live session and returns the
// entry with Session set.
func (c *Client) Open(ctx context.Context, id ref.DocumentID) (Document, error) {
	return c.action(ctx, id, "open", nil)
}

func (c *Client) action(ctx context.Context, id ref.DocumentID, verb string, body any) (Document, error) {
	var document Document
	err := c.doJSON(ctx, http.MethodPost, "/api/documents/"+id.String()+"/"+verb, body, &document)
	return document, err
}

// Upload creates a document from snapshot file bytes.
func (c *Client) Upload(ctx context.Context, name string, snapshot []byte) (Document, error) {
	query := url.Values{"name": {name}}
	response, err := c.do(ctx, http.MethodPost, "/api/documents/upload?"+query.Encode(),
		SnapshotContentType, bytes.NewReader(snapshot))
	if err != nil {
		return Document{}, err
	}
	defer response.Body.Close()

	var document Document
	if err := netutil.DecodeResponse(response.Body, &document); err != nil {
		return Document{}, fmt.Errorf("remote: decoding upload response: %w", err)
	}
	return document, nil
}

// Download returns the snapshot file bytes of a document.
func (c *Client) Download(ctx context.Context, id ref.DocumentID) ([]byte, error) {
	path := "/api/documents/" + id.String() + "/download"
	response, err := c.do(ctx, http.MethodGet, path, "", nil)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()

	data, err := netutil.ReadBounded(response.Body, c.maxSnapshotSize)
	if err != nil {
		return nil, fmt.Errorf("remote: downloading document %s: %w", id, err)
	}
	return data, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, requestBody, result any) error {
	var body io.Reader
	contentType := ""
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return fmt.Errorf("remote: encoding request body: %w", err)
		}
		body = bytes.NewReader(encoded)
		contentType = "application/json"
	}

	response, err := c.do(ctx, method, path, contentType, body)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	if err := netutil.DecodeResponse(response.Body, result); err != nil {
		return fmt.Errorf("remote: decoding response from %s %s: %w", method, path, err)
	}
	return nil
}

// do sends a request and returns the response if its status is 2xx.
// The caller closes the body.
func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader) (*http.Response, error) {
	request, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("remote: creating request: %w", err)
	}
	if contentType != "" {
		request.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		request.Header.Set("Authorization", "Bearer "+c.token)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("remote: request to %s %s failed: %w", method, path, err)
	}
	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return response, nil
	}
	defer response.Body.Close()

	message := netutil.ErrorMessage(response.Body)
	switch response.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, &AuthExpiredError{StatusCode: response.StatusCode, Message: message}
	default:
		return nil, &APIError{StatusCode: response.StatusCode, Method: method, Path: path, Message: message}
	}
}
