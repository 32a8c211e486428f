// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/patchbay-collective/patchbay/lib/clock"
	"github.com/patchbay-collective/patchbay/lib/config"
	"github.com/patchbay-collective/patchbay/lib/netutil"
	"github.com/patchbay-collective/patchbay/lib/ref"
	"github.com/patchbay-collective/patchbay/lib/snapshot"
	"github.com/patchbay-collective/patchbay/remote"
	"github.com/patchbay-collective/patchbay/transport"
)

// DefaultMaxUploadSize bounds uploaded snapshot files.
const DefaultMaxUploadSize int64 = 64 << 20

// ServerOptions configures a Server.
type ServerOptions struct {
	Accounts  *Accounts
	Hub       *Hub
	Directory *Directory
	Logger    *slog.Logger

	// Registry, if set, is served at /metrics.
	Registry *prometheus.Registry
	Metrics  *Metrics

	MaxUploadSize int64
}

// Server is the relay's HTTP front end: the directory API, the session
// socket and metrics, on one listener.
type Server struct {
	options  ServerOptions
	logger   *slog.Logger
	upgrader websocket.Upgrader
	mux      *http.ServeMux
}

// NewServer builds the route table.
func NewServer(options ServerOptions) *Server {
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	if options.MaxUploadSize <= 0 {
		options.MaxUploadSize = DefaultMaxUploadSize
	}
	s := &Server{
		options: options,
		logger:  options.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Clients are native tools, not browsers; the bearer token
			// is the credential.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		mux: http.NewServeMux(),
	}

	s.mux.HandleFunc("GET /api/documents", s.authenticated("list", s.handleList))
	s.mux.HandleFunc("POST /api/documents", s.authenticated("create", s.handleCreate))
	s.mux.HandleFunc("POST /api/documents/upload", s.authenticated("upload", s.handleUpload))
	s.mux.HandleFunc("POST /api/documents/{id}/{action}", s.authenticated("action", s.handleAction))
	s.mux.HandleFunc("GET /api/documents/{id}/download", s.authenticated("download", s.handleDownload))
	s.mux.HandleFunc("GET /session/{id}", s.handleSession)
	if options.Registry != nil {
		s.mux.Handle("GET /metrics", promhttp.HandlerFor(options.Registry, promhttp.HandlerOpts{}))
	}
	return s
}

// FromConfig assembles accounts, hub, directory, metrics and server
// from the relay section of cfg.
func FromConfig(cfg *config.Config, clk clock.Clock, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	accounts, err := AccountsFromConfig(cfg.Relay.Accounts, clk)
	if err != nil {
		return nil, err
	}
	compression, err := snapshot.ParseCompressionTag(cfg.Snapshot.Compression)
	if err != nil {
		return nil, err
	}

	var registry *prometheus.Registry
	var metrics *Metrics
	if cfg.Relay.Metrics {
		registry = prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics = NewMetrics(registry)
	}

	hub := NewHub(HubOptions{
		Accounts: accounts,
		Clock:    clk,
		Logger:   logger.With("component", "hub"),
		Metrics:  metrics,
	})
	directory := NewDirectory(DirectoryOptions{
		Hub:         hub,
		Clock:       clk,
		Logger:      logger.With("component", "directory"),
		Compression: compression,
	})
	return NewServer(ServerOptions{
		Accounts:  accounts,
		Hub:       hub,
		Directory: directory,
		Logger:    logger,
		Registry:  registry,
		Metrics:   metrics,
	}), nil
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler { return s.mux }

// Hub returns the session hub.
func (s *Server) Hub() *Hub { return s.options.Hub }

// Directory returns the document store.
func (s *Server) Directory() *Directory { return s.options.Directory }

// Serve accepts connections on listener until ctx is done, then shuts
// down gracefully: the listener closes, session sockets are closed,
// and in-flight requests get a few seconds to finish.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	serveErr := make(chan error, 1)
	go func() { serveErr <- httpServer.Serve(listener) }()
	s.logger.Info("relay listening", "address", listener.Addr().String())

	select {
	case err := <-serveErr:
		return fmt.Errorf("relay: serving: %w", err)
	case <-ctx.Done():
	}

	s.options.Hub.Close()
	shutdownContext, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownContext); err != nil {
		return fmt.Errorf("relay: shutting down: %w", err)
	}
	s.logger.Info("relay stopped")
	return nil
}

// ListenAndServe binds address and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, address string) error {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("relay: listening on %s: %w", address, err)
	}
	return s.Serve(ctx, listener)
}

type accountHandler func(w http.ResponseWriter, r *http.Request, account Account) int

// authenticated checks the bearer token, runs handler and records the
// request.
func (s *Server) authenticated(operation string, handler accountHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		account, err := s.authenticate(r)
		if err != nil {
			code := authStatus(err)
			s.writeError(w, code, err)
			s.options.Metrics.request(operation, code)
			return
		}
		code := handler(w, r, account)
		s.options.Metrics.request(operation, code)
	}
}

func (s *Server) authenticate(r *http.Request) (Account, error) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || token == "" {
		return Account{}, ErrUnauthorized
	}
	return s.options.Accounts.Authenticate(token)
}

func authStatus(err error) int {
	if errors.Is(err, ErrExpired) {
		return http.StatusForbidden
	}
	return http.StatusUnauthorized
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request, account Account) int {
	return s.writeJSON(w, http.StatusOK, remote.Listing{Documents: s.options.Directory.List()})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request, account Account) int {
	var request remote.CreateRequest
	if err := decodeRequest(r, &request); err != nil {
		return s.writeError(w, http.StatusBadRequest, err)
	}
	document, err := s.options.Directory.Create(request.Name, account.Name)
	return s.writeResult(w, document, err)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request, account Account) int {
	data, err := netutil.ReadBounded(r.Body, s.options.MaxUploadSize)
	if err != nil {
		return s.writeError(w, http.StatusRequestEntityTooLarge, err)
	}
	document, err := s.options.Directory.Upload(r.URL.Query().Get("name"), account.Name, data)
	return s.writeResult(w, document, err)
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request, account Account) int {
	id, err := ref.ParseDocumentID(r.PathValue("id"))
	if err != nil {
		return s.writeError(w, http.StatusBadRequest, fmt.Errorf("%w: %v", ErrInvalid, err))
	}
	directory := s.options.Directory
	var document remote.Document
	switch action := r.PathValue("action"); action {
	case "rename":
		var request remote.RenameRequest
		if err := decodeRequest(r, &request); err != nil {
			return s.writeError(w, http.StatusBadRequest, err)
		}
		document, err = directory.Rename(id, request.Name)
	case "trash":
		document, err = directory.Trash(id)
	case "untrash":
		document, err = directory.Untrash(id)
	case "duplicate":
		document, err = directory.Duplicate(id, account.Name)
	case "open":
		document, err = directory.Open(id, account.User)
	default:
		return s.writeError(w, http.StatusNotFound, fmt.Errorf("relay: unknown action %q", action))
	}
	return s.writeResult(w, document, err)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request, account Account) int {
	id, err := ref.ParseDocumentID(r.PathValue("id"))
	if err != nil {
		return s.writeError(w, http.StatusBadRequest, fmt.Errorf("%w: %v", ErrInvalid, err))
	}
	data, err := s.options.Directory.Download(id)
	if err != nil {
		return s.writeError(w, errorStatus(err), err)
	}
	w.Header().Set("Content-Type", remote.SnapshotContentType)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
	return http.StatusOK
}

// handleSession upgrades to a WebSocket and hands the link to the hub.
// The bearer token is checked before the upgrade so that a refused
// client sees an HTTP status; the hub checks the hello token again.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if _, err := s.authenticate(r); err != nil {
		s.writeError(w, authStatus(err), err)
		return
	}
	if _, err := ref.ParseSessionID(r.PathValue("id")); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("%w: %v", ErrInvalid, err))
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	link := transport.NewWebSocketLink(conn, s.logger.With("remote", r.RemoteAddr))
	s.options.Hub.ServeLink(r.Context(), link)
}

func decodeRequest(r *http.Request, v any) error {
	data, err := netutil.ReadBounded(r.Body, netutil.MaxResponseSize)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: decoding request body: %v", ErrInvalid, err)
	}
	return nil
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrTrashed):
		return http.StatusConflict
	case errors.Is(err, ErrInvalid), errors.Is(err, snapshot.ErrCorrupt):
		return http.StatusBadRequest
	case snapshot.IsIncompatibleVersion(err):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeResult(w http.ResponseWriter, document remote.Document, err error) int {
	if err != nil {
		return s.writeError(w, errorStatus(err), err)
	}
	return s.writeJSON(w, http.StatusOK, document)
}

func (s *Server) writeError(w http.ResponseWriter, code int, err error) int {
	if code >= 500 {
		s.logger.Error("request failed", "error", err)
	}
	return s.writeJSON(w, code, remote.ErrorResponse{Error: err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) int {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("writing response failed", "error", err)
	}
	return code
}
