// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/patchbay-collective/patchbay/lib/netutil"
	"github.com/patchbay-collective/patchbay/lib/ref"
	"github.com/patchbay-collective/patchbay/remote"
)

const (
	// Time allowed to write a frame to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong from the peer.
	pongWait = 60 * time.Second

	// Ping period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// MaxFrameSize bounds one encoded frame. Large pastes produce
	// large transactions; anything above this is a protocol error.
	MaxFrameSize = 8 << 20

	// sendQueueSize is the number of frames queued for the writer
	// goroutine before Send reports ErrQueueFull.
	sendQueueSize = 256
)

// Compile-time interface checks.
var (
	_ Link   = (*WebSocketLink)(nil)
	_ Dialer = (*WebSocketDialer)(nil)
)

// SessionPath returns the URL path of a session socket.
func SessionPath(session ref.SessionID) string {
	return "/session/" + session.String()
}

// WebSocketLink is a Link over a gorilla/websocket connection. A
// writer goroutine owns all writes, including pings; Receive must be
// called from a single goroutine.
type WebSocketLink struct {
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
	logger *slog.Logger
}

// NewWebSocketLink wraps an established connection (client or server
// side) and starts its writer. A nil logger uses slog.Default().
func NewWebSocketLink(conn *websocket.Conn, logger *slog.Logger) *WebSocketLink {
	if logger == nil {
		logger = slog.Default()
	}
	l := &WebSocketLink{
		conn:   conn,
		send:   make(chan []byte, sendQueueSize),
		done:   make(chan struct{}),
		logger: logger,
	}
	conn.SetReadLimit(MaxFrameSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	go l.writeLoop()
	return l
}

// Send implements Link.
func (l *WebSocketLink) Send(frame Frame) error {
	data, err := EncodeFrame(frame)
	if err != nil {
		return err
	}
	select {
	case <-l.done:
		return ErrClosed
	default:
	}
	select {
	case l.send <- data:
		return nil
	default:
		return ErrQueueFull
	}
}

// Receive implements Link. Cancelling ctx closes the link.
func (l *WebSocketLink) Receive(ctx context.Context) (Frame, error) {
	stop := context.AfterFunc(ctx, func() { l.Close() })
	defer stop()

	messageType, data, err := l.conn.ReadMessage()
	if err != nil {
		if ctx.Err() != nil {
			return Frame{}, ctx.Err()
		}
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
			netutil.IsExpectedCloseError(err) {
			return Frame{}, io.EOF
		}
		return Frame{}, fmt.Errorf("transport: reading frame: %w", err)
	}
	if messageType != websocket.BinaryMessage {
		return Frame{}, fmt.Errorf("transport: unexpected websocket message type %d", messageType)
	}
	return DecodeFrame(data)
}

// Close implements Link. The writer sends frames already queued, then
// the close message.
func (l *WebSocketLink) Close() error {
	l.once.Do(func() { close(l.done) })
	return nil
}

func (l *WebSocketLink) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		l.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		l.conn.Close()
	}()

	for {
		select {
		case data := <-l.send:
			if err := l.write(websocket.BinaryMessage, data); err != nil {
				if !netutil.IsExpectedCloseError(err) {
					l.logger.Warn("websocket write failed", "error", err)
				}
				l.Close()
				return
			}
		case <-ticker.C:
			if err := l.write(websocket.PingMessage, nil); err != nil {
				l.Close()
				return
			}
		case <-l.done:
			l.flush()
			return
		}
	}
}

// flush writes whatever is still queued after Close.
func (l *WebSocketLink) flush() {
	for {
		select {
		case data := <-l.send:
			if err := l.write(websocket.BinaryMessage, data); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (l *WebSocketLink) write(messageType int, data []byte) error {
	l.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return l.conn.WriteMessage(messageType, data)
}

// WebSocketDialer opens WebSocketLinks to a relay.
type WebSocketDialer struct {
	// Dialer is the gorilla dialer. Nil uses websocket.DefaultDialer.
	Dialer *websocket.Dialer

	// Secure selects wss instead of ws.
	Secure bool

	Logger *slog.Logger
}

// HandshakeError is an upgrade request refused with an HTTP status.
type HandshakeError struct {
	StatusCode int
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("transport: websocket upgrade refused: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// Dial implements Dialer. The endpoint token is sent as a bearer
// token on the upgrade request.
func (d *WebSocketDialer) Dial(ctx context.Context, endpoint Endpoint) (Link, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	scheme := "ws"
	if d.Secure {
		scheme = "wss"
	}
	target := url.URL{Scheme: scheme, Host: endpoint.Address(), Path: SessionPath(endpoint.Session)}
	header := http.Header{}
	if endpoint.Token != "" {
		header.Set("Authorization", "Bearer "+endpoint.Token)
	}

	conn, response, err := dialer.DialContext(ctx, target.String(), header)
	if err != nil {
		if response != nil {
			response.Body.Close()
		}
		if errors.Is(err, websocket.ErrBadHandshake) && response != nil {
			switch response.StatusCode {
			case http.StatusUnauthorized, http.StatusForbidden:
				return nil, &remote.AuthExpiredError{StatusCode: response.StatusCode, Message: "session upgrade refused"}
			}
			err = &HandshakeError{StatusCode: response.StatusCode}
		}
		return nil, &ConnectionError{Endpoint: endpoint, Err: err}
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return NewWebSocketLink(conn, logger.With("endpoint", endpoint.String())), nil
}
