// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"bytes"
	"fmt"
	"strings"
)

// Byte stream links need framing to find payload boundaries.
// LineFramer is used for text codecs, StuffedFramer for binary ones.

// Framer converts payloads to and from a byte stream
type Framer interface {
	Name() string
	Encode(payload []byte) ([]byte, error)
	NewDecoder() FrameDecoder
}

// FrameDecoder is a byte-at-a-time frame decoder state machine
type FrameDecoder interface {
	// DecodeByte returns a completed payload, or nil if the frame is incomplete.
	// An error discards the current frame; decoding continues with the next one.
	DecodeByte(b byte) ([]byte, error)
	Reset()
}

// FramerByName returns "line" or "stuffed" framing
func FramerByName(name string, maxSize int) (Framer, error) {
	switch strings.ToLower(name) {
	case "", "line":
		return LineFramer{MaxSize: maxSize}, nil
	case "stuffed":
		return StuffedFramer{MaxSize: maxSize}, nil
	}
	return nil, fmt.Errorf("unknown framing %q (use line or stuffed)", name)
}

// DefaultMaxFrameSize bounds a single payload on stream links
const DefaultMaxFrameSize = 1024

func maxOrDefault(n int) int {
	if n <= 0 {
		return DefaultMaxFrameSize
	}
	return n
}

//////////////////////////////////////////////////////////////
// Line framing
//////////////////////////////////////////////////////////////

// LineFramer terminates each payload with '\n'. A trailing '\r' is dropped
// and empty lines are skipped.
type LineFramer struct {
	MaxSize int
}

// Name returns "line"
func (LineFramer) Name() string { return "line" }

// Encode appends the line terminator. Payloads must not contain '\n'.
func (f LineFramer) Encode(payload []byte) ([]byte, error) {
	if bytes.IndexByte(payload, '\n') >= 0 {
		return nil, fmt.Errorf("payload contains a line terminator")
	}
	if len(payload) > maxOrDefault(f.MaxSize) {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrFrameTooLarge, len(payload), maxOrDefault(f.MaxSize))
	}
	out := make([]byte, 0, len(payload)+1)
	out = append(out, payload...)
	return append(out, '\n'), nil
}

// NewDecoder creates a line decoder
func (f LineFramer) NewDecoder() FrameDecoder {
	return &lineDecoder{max: maxOrDefault(f.MaxSize)}
}

type lineDecoder struct {
	buf      []byte
	max      int
	overflow bool
}

func (d *lineDecoder) Reset() {
	d.buf = d.buf[:0]
	d.overflow = false
}

func (d *lineDecoder) DecodeByte(b byte) ([]byte, error) {
	if b != '\n' {
		if d.overflow {
			return nil, nil
		}
		if len(d.buf) >= d.max {
			d.overflow = true
			return nil, fmt.Errorf("%w: line exceeds %d bytes", ErrFrameTooLarge, d.max)
		}
		d.buf = append(d.buf, b)
		return nil, nil
	}

	if d.overflow {
		d.Reset()
		return nil, nil
	}
	line := bytes.TrimSuffix(d.buf, []byte{'\r'})
	if len(line) == 0 {
		d.Reset()
		return nil, nil
	}
	payload := append([]byte(nil), line...)
	d.Reset()
	return payload, nil
}

//////////////////////////////////////////////////////////////
// Byte-stuffed framing
//////////////////////////////////////////////////////////////

// Stuffed framing bytes
const (
	StartByte = 0x7E
	EndByte   = 0x7F
	EscByte   = 0x7D
	EscXor    = 0x20
)

// StuffedFramer wraps each payload as START, stuffed(payload + CRC), END.
// The CRC-16-CCITT is computed over the payload and sent big-endian.
type StuffedFramer struct {
	MaxSize int
}

// Name returns "stuffed"
func (StuffedFramer) Name() string { return "stuffed" }

// Encode frames a payload
func (f StuffedFramer) Encode(payload []byte) ([]byte, error) {
	if len(payload) > maxOrDefault(f.MaxSize) {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrFrameTooLarge, len(payload), maxOrDefault(f.MaxSize))
	}

	crc := CalculateCRC(payload)
	data := make([]byte, 0, len(payload)+2)
	data = append(data, payload...)
	data = append(data, byte(crc>>8), byte(crc&0xFF))

	stuffed := stuffBytes(data)
	frame := make([]byte, 0, len(stuffed)+2)
	frame = append(frame, StartByte)
	frame = append(frame, stuffed...)
	return append(frame, EndByte), nil
}

// NewDecoder creates a stuffed-frame decoder
func (f StuffedFramer) NewDecoder() FrameDecoder {
	return &stuffedDecoder{max: maxOrDefault(f.MaxSize) + 2}
}

// Decoder states
const (
	stateIdle = iota
	stateData
)

type stuffedDecoder struct {
	state      int
	buf        []byte
	max        int
	escapeNext bool
}

func (d *stuffedDecoder) Reset() {
	d.state = stateIdle
	d.buf = d.buf[:0]
	d.escapeNext = false
}

func (d *stuffedDecoder) DecodeByte(b byte) ([]byte, error) {
	// Framing bytes are never escaped, so they always resynchronize
	switch b {
	case StartByte:
		d.Reset()
		d.state = stateData
		return nil, nil
	case EndByte:
		if d.state != stateData {
			return nil, nil
		}
		defer d.Reset()
		if d.escapeNext {
			return nil, fmt.Errorf("incomplete escape sequence at end of frame")
		}
		if len(d.buf) < 2 {
			return nil, fmt.Errorf("frame too short: %d bytes", len(d.buf))
		}
		n := len(d.buf) - 2
		received := uint16(d.buf[n])<<8 | uint16(d.buf[n+1])
		calculated := CalculateCRC(d.buf[:n])
		if received != calculated {
			return nil, fmt.Errorf("CRC mismatch: expected 0x%04X, got 0x%04X", calculated, received)
		}
		payload := make([]byte, n)
		copy(payload, d.buf[:n])
		return payload, nil
	}

	if d.state != stateData {
		return nil, nil
	}
	if b == EscByte && !d.escapeNext {
		d.escapeNext = true
		return nil, nil
	}
	if d.escapeNext {
		b ^= EscXor
		d.escapeNext = false
	}
	if len(d.buf) >= d.max {
		d.Reset()
		return nil, fmt.Errorf("%w: buffer overflow", ErrFrameTooLarge)
	}
	d.buf = append(d.buf, b)
	return nil, nil
}

// stuffBytes applies byte stuffing to escape special bytes.
// Special bytes (START, END, ESC) are replaced with ESC + (byte XOR EscXor).
func stuffBytes(data []byte) []byte {
	result := make([]byte, 0, len(data)*2)

	for _, b := range data {
		if b == StartByte || b == EndByte || b == EscByte {
			result = append(result, EscByte, b^EscXor)
		} else {
			result = append(result, b)
		}
	}

	return result
}

// UnstuffBytes removes byte stuffing from escaped data.
// This is the inverse of stuffBytes.
func UnstuffBytes(data []byte) ([]byte, error) {
	result := make([]byte, 0, len(data))
	escapeNext := false

	for _, b := range data {
		if escapeNext {
			result = append(result, b^EscXor)
			escapeNext = false
		} else if b == EscByte {
			escapeNext = true
		} else {
			result = append(result, b)
		}
	}

	if escapeNext {
		return nil, fmt.Errorf("incomplete escape sequence at end of data")
	}

	return result, nil
}
