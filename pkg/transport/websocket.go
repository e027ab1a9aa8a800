// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/logging"
)

// WebSocket timeouts
const (
	wsHandshakeTimeout = 10 * time.Second
	wsDialTimeout      = 15 * time.Second
	wsWriteTimeout     = 5 * time.Second
)

// WebSocketConfig configures a link to a WebSocket gateway
type WebSocketConfig struct {
	URL           string
	Username      string // HTTP Basic auth, optional
	Password      string
	SkipSSLVerify bool
	Binary        bool // Send binary frames (for CBOR payloads)

	LoggerFactory logging.LoggerFactory
}

// WebSocketLink carries one payload per WebSocket message
type WebSocketLink struct {
	conn        *websocket.Conn
	binary      bool
	description string
	log         logging.LeveledLogger

	frames    chan received
	done      chan struct{}
	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    atomic.Bool
}

// DialWebSocket opens a WebSocket connection with optional HTTP Basic auth
func DialWebSocket(ctx context.Context, cfg WebSocketConfig) (*WebSocketLink, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid URL: %v", ErrConnectionFailed, err)
	}

	switch u.Scheme {
	case "ws", "wss":
		// OK
	default:
		return nil, fmt.Errorf("%w: unsupported URL scheme: %s (use ws:// or wss://)", ErrConnectionFailed, u.Scheme)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: wsHandshakeTimeout,
	}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: cfg.SkipSSLVerify,
		}
	}

	headers := http.Header{}
	if cfg.Username != "" && cfg.Password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(cfg.Username + ":" + cfg.Password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(ctx, wsDialTimeout)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, cfg.URL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w: WebSocket handshake failed (HTTP %d): %v", ErrConnectionFailed, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("%w: WebSocket connection failed: %v", ErrConnectionFailed, err)
	}

	return NewWebSocketLink(conn, cfg.Binary, "WebSocket: "+cfg.URL, cfg.LoggerFactory), nil
}

// NewWebSocketLink wraps an established connection (client or server side)
func NewWebSocketLink(conn *websocket.Conn, binary bool, description string, factory logging.LoggerFactory) *WebSocketLink {
	l := &WebSocketLink{
		conn:        conn,
		binary:      binary,
		description: description,
		log:         loggerFactory(factory).NewLogger("transport-websocket"),
		frames:      make(chan received, 16),
		done:        make(chan struct{}),
	}
	go l.readLoop()
	return l
}

func (l *WebSocketLink) readLoop() {
	defer close(l.frames)

	for {
		messageType, data, err := l.conn.ReadMessage()
		if err != nil {
			if l.closed.Load() {
				return
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				l.log.Infof("%s: closed by peer", l.description)
				return
			}
			l.log.Errorf("%s: read error: %v", l.description, err)
			select {
			case l.frames <- received{err: err}:
			case <-l.done:
			}
			return
		}

		if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
			continue
		}

		select {
		case l.frames <- received{payload: string(data)}:
		case <-l.done:
			return
		}
	}
}

// Receive returns the next message payload
func (l *WebSocketLink) Receive(ctx context.Context) (string, error) {
	return receive(ctx, l.frames)
}

// Send writes a payload as one WebSocket message
func (l *WebSocketLink) Send(payload string) error {
	if l.closed.Load() {
		return ErrClosed
	}

	messageType := websocket.TextMessage
	if l.binary {
		messageType = websocket.BinaryMessage
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	_ = l.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return l.conn.WriteMessage(messageType, []byte(payload))
}

// Close sends a close message and closes the connection
func (l *WebSocketLink) Close() error {
	var err error
	l.closeOnce.Do(func() {
		l.closed.Store(true)
		close(l.done)

		l.writeMu.Lock()
		_ = l.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		l.writeMu.Unlock()

		err = l.conn.Close()
	})
	return err
}

// Describe returns a human-readable link description
func (l *WebSocketLink) Describe() string { return l.description }
