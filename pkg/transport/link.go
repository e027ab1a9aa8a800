// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package transport moves end node payloads between nodes.
//
// Every link is a broadcast medium: a payload sent by one participant is
// observed by all others, and addressing is left to the message codec. Links
// may lose payloads; none of them retransmit.
package transport

import (
	"context"
	"io"

	"github.com/pion/logging"
)

// Link carries whole payloads. Receive blocks until a payload arrives, the
// context is done or the link is closed. Send and Receive may be called from
// different goroutines.
type Link interface {
	Receive(ctx context.Context) (string, error)
	Send(payload string) error
	Close() error
	Describe() string
}

// loggerFactory returns f, or a disabled factory when f is nil
func loggerFactory(f logging.LoggerFactory) logging.LoggerFactory {
	if f != nil {
		return f
	}
	return &logging.DefaultLoggerFactory{
		Writer:          io.Discard,
		DefaultLogLevel: logging.LogLevelDisabled,
	}
}

// received is one payload (or terminal error) from a link reader goroutine
type received struct {
	payload string
	err     error
}

// receive waits on a reader channel
func receive(ctx context.Context, ch <-chan received) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r, ok := <-ch:
		if !ok {
			return "", ErrClosed
		}
		return r.payload, r.err
	}
}
