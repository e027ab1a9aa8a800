// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// =============================================================================
// Bus Tests
// =============================================================================

func TestBus_BroadcastsToOthers(t *testing.T) {
	bus := NewBus(0, 1)
	a := bus.Attach("coordinator")
	b := bus.Attach("node-2")
	c := bus.Attach("node-3")

	require.NoError(t, a.Send("hello"))

	ctx := testContext(t)
	got, err := b.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "hello", got)

	got, err = c.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "hello", got)

	// The sender does not hear itself
	short, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = a.Receive(short)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	delivered, dropped := bus.Stats()
	assert.Equal(t, uint64(2), delivered)
	assert.Equal(t, uint64(0), dropped)
}

func TestBus_DropAll(t *testing.T) {
	bus := NewBus(1, 1)
	a := bus.Attach("a")
	b := bus.Attach("b")

	for i := 0; i < 10; i++ {
		require.NoError(t, a.Send("x"))
	}

	short, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := b.Receive(short)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	_, dropped := bus.Stats()
	assert.Equal(t, uint64(10), dropped)
}

func TestBus_PartialLossIsReproducible(t *testing.T) {
	count := func() uint64 {
		bus := NewBus(0.5, 42)
		a := bus.Attach("a")
		bus.Attach("b")
		for i := 0; i < 40; i++ {
			_ = a.Send("x")
		}
		delivered, _ := bus.Stats()
		return delivered
	}

	first := count()
	assert.Equal(t, first, count())
	assert.Greater(t, first, uint64(0))
	assert.Less(t, first, uint64(40))
}

func TestBusLink_Close(t *testing.T) {
	bus := NewBus(0, 1)
	a := bus.Attach("a")
	b := bus.Attach("b")

	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	_, err := b.Receive(testContext(t))
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, b.Send("x"), ErrClosed)

	require.NoError(t, a.Send("x"))
	delivered, _ := bus.Stats()
	assert.Equal(t, uint64(0), delivered)
	assert.Equal(t, "Bus: a", a.Describe())
}

// =============================================================================
// Stream Link Tests
// =============================================================================

func TestStreamLink_LineFraming(t *testing.T) {
	left, right := net.Pipe()
	a := NewStreamLink(left, LineFramer{}, "pipe-a", nil)
	b := NewStreamLink(right, LineFramer{}, "pipe-b", nil)
	defer b.Close()

	go func() {
		_ = a.Send(`{"SNID":1,"TNID":2,"PID":1,"UT":0}`)
		_ = a.Send(`{"SNID":1,"TNID":2,"PID":2,"UT":0}`)
	}()

	ctx := testContext(t)
	got, err := b.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, `{"SNID":1,"TNID":2,"PID":1,"UT":0}`, got)

	got, err = b.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, `{"SNID":1,"TNID":2,"PID":2,"UT":0}`, got)

	// Closing one end ends the other's stream
	require.NoError(t, a.Close())
	_, err = b.Receive(ctx)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, a.Send("x"), ErrClosed)
}

func TestStreamLink_StuffedFramingCountsErrors(t *testing.T) {
	left, right := net.Pipe()
	b := NewStreamLink(right, StuffedFramer{}, "pipe-b", nil)
	defer b.Close()

	good, err := StuffedFramer{}.Encode([]byte{0xA1, 0x00, 0x7E})
	require.NoError(t, err)
	bad := append([]byte(nil), good...)
	bad[1] ^= 0xFF

	go func() {
		_, _ = left.Write(bad)
		_, _ = left.Write(good)
	}()

	got, err := b.Receive(testContext(t))
	require.NoError(t, err)
	assert.Equal(t, string([]byte{0xA1, 0x00, 0x7E}), got)
	assert.Equal(t, uint64(1), b.FrameErrors())
	_ = left.Close()
}

// =============================================================================
// WebSocket Link Tests
// =============================================================================

// newEchoServer starts a WebSocket server that echoes every message
func newEchoServer(t *testing.T, user, pass string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user != "" {
			u, p, ok := r.BasicAuth()
			if !ok || u != user || p != pass {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		link := NewWebSocketLink(conn, false, "server", nil)
		defer link.Close()
		for {
			payload, err := link.Receive(context.Background())
			if err != nil {
				return
			}
			if link.Send(payload) != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWebSocketLink_Echo(t *testing.T) {
	srv := newEchoServer(t, "", "")

	ctx := testContext(t)
	link, err := DialWebSocket(ctx, WebSocketConfig{URL: wsURL(srv)})
	require.NoError(t, err)
	defer link.Close()

	assert.Equal(t, "WebSocket: "+wsURL(srv), link.Describe())

	require.NoError(t, link.Send(`{"SNID":5,"TNID":1,"PID":1,"UT":9}`))
	got, err := link.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, `{"SNID":5,"TNID":1,"PID":1,"UT":9}`, got)
}

func TestWebSocketLink_BasicAuth(t *testing.T) {
	srv := newEchoServer(t, "gm", "secret")
	ctx := testContext(t)

	_, err := DialWebSocket(ctx, WebSocketConfig{URL: wsURL(srv), Username: "gm", Password: "wrong"})
	require.ErrorIs(t, err, ErrConnectionFailed)
	assert.Contains(t, err.Error(), "HTTP 401")

	link, err := DialWebSocket(ctx, WebSocketConfig{URL: wsURL(srv), Username: "gm", Password: "secret"})
	require.NoError(t, err)
	require.NoError(t, link.Close())
	assert.ErrorIs(t, link.Send("x"), ErrClosed)
}

func TestDialWebSocket_BadURL(t *testing.T) {
	ctx := testContext(t)

	_, err := DialWebSocket(ctx, WebSocketConfig{URL: "http://example.com"})
	assert.ErrorIs(t, err, ErrConnectionFailed)

	_, err = DialWebSocket(ctx, WebSocketConfig{URL: "://bad"})
	assert.ErrorIs(t, err, ErrConnectionFailed)
}

// =============================================================================
// MQTT Option Tests
// =============================================================================

func TestBuildClientOptions(t *testing.T) {
	opts := buildClientOptions(MQTTConfig{
		Host:     "broker.local",
		Port:     8883,
		TLS:      true,
		ClientID: "node-5",
		Username: "room",
		Password: "pw",
	})

	require.Len(t, opts.Servers, 1)
	assert.Equal(t, "ssl", opts.Servers[0].Scheme)
	assert.Equal(t, "broker.local:8883", opts.Servers[0].Host)
	assert.Equal(t, "node-5", opts.ClientID)
	assert.Equal(t, "room", opts.Username)
	assert.True(t, opts.CleanSession)
	assert.True(t, opts.AutoReconnect)
	require.NotNil(t, opts.TLSConfig)
}

func TestDialMQTT_InvalidQoS(t *testing.T) {
	_, err := DialMQTT(MQTTConfig{Host: "127.0.0.1", QoS: 3})
	assert.ErrorIs(t, err, ErrInvalidQoS)
}
