// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

package remote

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/patchbay-collective/patchbay/lib/loop"
	"github.com/patchbay-collective/patchbay/lib/ref"
	"github.com/patchbay-collective/patchbay/lib/testutil"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := NewClient(ClientConfig{BaseURL: server.URL, Token: "tok", MaxSnapshotSize: 64})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestListDocuments(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/api/documents" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		writeJSON(w, http.StatusOK, Listing{Documents: []Document{
			{ID: 1, Name: "Foo", Author: "ada", Created: created},
			{ID: 2, Name: "Bar", Trashed: true, Session: 0x99},
		}})
	})

	documents, err := client.ListDocuments(context.Background())
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if len(documents) != 2 || documents[0].Name != "Foo" || !documents[0].Created.Equal(created) {
		t.Errorf("documents = %+v", documents)
	}
	if !documents[1].Trashed || documents[1].Session != 0x99 {
		t.Errorf("second document = %+v", documents[1])
	}
}

func TestActions(t *testing.T) {
	var paths []string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		document := Document{ID: 5, Name: "n"}
		if r.URL.Path == "/api/documents/5/rename" {
			var request RenameRequest
			json.NewDecoder(r.Body).Decode(&request)
			document.Name = request.Name
		}
		writeJSON(w, http.StatusOK, document)
	})
	ctx := context.Background()

	renamed, err := client.Rename(ctx, 5, "renamed")
	if err != nil || renamed.Name != "renamed" {
		t.Fatalf("Rename = %+v, %v", renamed, err)
	}
	for _, call := range []func(context.Context, ref.DocumentID) (Document, error){
		client.Trash, client.Untrash, client.Duplicate, client.Open,
	} {
		if _, err := call(ctx, 5); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := client.Create(ctx, "new"); err != nil {
		t.Fatal(err)
	}

	want := []string{
		"POST /api/documents/5/rename",
		"POST /api/documents/5/trash",
		"POST /api/documents/5/untrash",
		"POST /api/documents/5/duplicate",
		"POST /api/documents/5/open",
		"POST /api/documents",
	}
	if len(paths) != len(want) {
		t.Fatalf("paths = %v", paths)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Errorf("request %d = %q, want %q", i, paths[i], want[i])
		}
	}
}

func TestUploadDownload(t *testing.T) {
	var stored []byte
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/documents/upload":
			if r.URL.Query().Get("name") != "my patch" {
				t.Errorf("name = %q", r.URL.Query().Get("name"))
			}
			if r.Header.Get("Content-Type") != SnapshotContentType {
				t.Errorf("Content-Type = %q", r.Header.Get("Content-Type"))
			}
			stored, _ = io.ReadAll(r.Body)
			writeJSON(w, http.StatusCreated, Document{ID: 9, Name: "my patch"})
		case "/api/documents/9/download":
			w.Write(stored)
		case "/api/documents/10/download":
			w.Write(make([]byte, 65))
		}
	})
	ctx := context.Background()

	document, err := client.Upload(ctx, "my patch", []byte("PBSN..."))
	if err != nil || document.ID != 9 {
		t.Fatalf("Upload = %+v, %v", document, err)
	}
	data, err := client.Download(ctx, 9)
	if err != nil || string(data) != "PBSN..." {
		t.Errorf("Download = %q, %v", data, err)
	}
	if _, err := client.Download(ctx, 10); err == nil {
		t.Error("Download beyond MaxSnapshotSize succeeded")
	}
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		authExpired bool
		notFound    bool
	}{
		{"unauthorized", http.StatusUnauthorized, true, false},
		{"forbidden", http.StatusForbidden, true, false},
		{"not found", http.StatusNotFound, false, true},
		{"server error", http.StatusInternalServerError, false, false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, test.status, ErrorResponse{Error: "nope"})
			})
			_, err := client.ListDocuments(context.Background())
			if err == nil {
				t.Fatal("ListDocuments succeeded")
			}
			if IsAuthExpired(err) != test.authExpired {
				t.Errorf("IsAuthExpired(%v) = %v", err, !test.authExpired)
			}
			if IsNotFound(err) != test.notFound {
				t.Errorf("IsNotFound(%v) = %v", err, !test.notFound)
			}
		})
	}
}

func TestNewClientValidation(t *testing.T) {
	for _, base := range []string{"", "ftp://relay", "::bad"} {
		if _, err := NewClient(ClientConfig{BaseURL: base}); err == nil {
			t.Errorf("NewClient(%q) succeeded", base)
		}
	}
}

func TestGoDeliversOnLoop(t *testing.T) {
	l := loop.New(nil)
	token := loop.NewToken()
	results := make(chan int, 1)

	Go(context.Background(), l, token, func(context.Context) (int, error) { return 42, nil },
		func(value int, err error) { results <- value })
	testutil.WaitFor(t, 5*time.Second, func() bool { return l.Len() == 1 }, "result posted")
	select {
	case <-results:
		t.Fatal("result delivered off the loop")
	default:
	}
	l.RunPending()
	if value := testutil.RequireReceive(t, results, time.Second, "result"); value != 42 {
		t.Errorf("value = %d", value)
	}

	token.Revoke()
	Go(context.Background(), l, token, func(context.Context) (int, error) { return 1, nil },
		func(value int, err error) { results <- value })
	testutil.WaitFor(t, 5*time.Second, func() bool { return l.Len() == 1 }, "result posted")
	l.RunPending()
	select {
	case value := <-results:
		t.Errorf("revoked owner received %d", value)
	default:
	}
}
