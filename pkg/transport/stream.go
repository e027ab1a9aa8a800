// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/pion/logging"
)

// StreamLink frames payloads over a byte stream such as a serial port
type StreamLink struct {
	rwc         io.ReadWriteCloser
	framer      Framer
	description string
	log         logging.LeveledLogger

	frames      chan received
	done        chan struct{}
	writeMu     sync.Mutex
	closeOnce   sync.Once
	closed      atomic.Bool
	frameErrors atomic.Uint64
}

// NewStreamLink starts reading frames from rwc
func NewStreamLink(rwc io.ReadWriteCloser, framer Framer, description string, factory logging.LoggerFactory) *StreamLink {
	l := &StreamLink{
		rwc:         rwc,
		framer:      framer,
		description: description,
		log:         loggerFactory(factory).NewLogger("transport-stream"),
		frames:      make(chan received, 16),
		done:        make(chan struct{}),
	}
	go l.readLoop()
	return l
}

func (l *StreamLink) readLoop() {
	defer close(l.frames)

	decoder := l.framer.NewDecoder()
	buf := make([]byte, 256)

	for {
		n, err := l.rwc.Read(buf)
		for i := 0; i < n; i++ {
			payload, ferr := decoder.DecodeByte(buf[i])
			if ferr != nil {
				l.frameErrors.Add(1)
				l.log.Warnf("%s: %v", l.description, ferr)
				continue
			}
			if payload != nil {
				if !l.deliver(received{payload: string(payload)}) {
					return
				}
			}
		}
		if err != nil {
			if l.closed.Load() {
				return
			}
			if errors.Is(err, io.EOF) {
				l.log.Infof("%s: end of stream", l.description)
				return
			}
			l.log.Errorf("%s: read error: %v", l.description, err)
			l.deliver(received{err: err})
			return
		}
	}
}

// deliver hands a frame to Receive, giving up when the link is closed
func (l *StreamLink) deliver(r received) bool {
	select {
	case l.frames <- r:
		return true
	case <-l.done:
		return false
	}
}

// Receive returns the next framed payload
func (l *StreamLink) Receive(ctx context.Context) (string, error) {
	return receive(ctx, l.frames)
}

// Send frames and writes a payload
func (l *StreamLink) Send(payload string) error {
	if l.closed.Load() {
		return ErrClosed
	}
	frame, err := l.framer.Encode([]byte(payload))
	if err != nil {
		return err
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	_, err = l.rwc.Write(frame)
	return err
}

// Close closes the underlying stream
func (l *StreamLink) Close() error {
	var err error
	l.closeOnce.Do(func() {
		l.closed.Store(true)
		close(l.done)
		err = l.rwc.Close()
	})
	return err
}

// Describe returns a human-readable link description
func (l *StreamLink) Describe() string { return l.description }

// FrameErrors returns the number of frames discarded by the decoder
func (l *StreamLink) FrameErrors() uint64 { return l.frameErrors.Load() }
