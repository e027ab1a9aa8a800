// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"bytes"
	"errors"
	"testing"
)

// ============================================================
// CRC Tests
// ============================================================

func TestCalculateCRC_Empty(t *testing.T) {
	if crc := CalculateCRC([]byte{}); crc != crcInitial {
		t.Errorf("CRC of empty data should be initial value, got 0x%04X", crc)
	}
}

func TestCalculateCRC_KnownValue(t *testing.T) {
	// Standard CRC-16-CCITT (FALSE) check value
	if crc := CalculateCRC([]byte("123456789")); crc != 0x29B1 {
		t.Errorf("CalculateCRC(123456789) = 0x%04X, want 0x29B1", crc)
	}
}

// ============================================================
// Helpers
// ============================================================

// decodeAll feeds data through a decoder and collects payloads and errors
func decodeAll(d FrameDecoder, data []byte) ([][]byte, []error) {
	var payloads [][]byte
	var errs []error
	for _, b := range data {
		p, err := d.DecodeByte(b)
		if err != nil {
			errs = append(errs, err)
		}
		if p != nil {
			payloads = append(payloads, p)
		}
	}
	return payloads, errs
}

// ============================================================
// Line Framing Tests
// ============================================================

func TestLineFramer_RoundTrip(t *testing.T) {
	f := LineFramer{}
	payloads := []string{
		`{"SNID":1,"TNID":5,"PID":1,"UT":100}`,
		`{"SNID":5,"TNID":1,"PID":1,"UT":2}`,
	}

	var stream []byte
	for _, p := range payloads {
		frame, err := f.Encode([]byte(p))
		if err != nil {
			t.Fatalf("Encode() error = %v", err)
		}
		stream = append(stream, frame...)
	}

	got, errs := decodeAll(f.NewDecoder(), stream)
	if len(errs) != 0 {
		t.Fatalf("decode errors: %v", errs)
	}
	if len(got) != len(payloads) {
		t.Fatalf("decoded %d payloads, want %d", len(got), len(payloads))
	}
	for i := range payloads {
		if string(got[i]) != payloads[i] {
			t.Errorf("payload %d = %q, want %q", i, got[i], payloads[i])
		}
	}
}

func TestLineFramer_CRLFAndBlankLines(t *testing.T) {
	got, errs := decodeAll(LineFramer{}.NewDecoder(), []byte("\r\n\nabc\r\n\n"))
	if len(errs) != 0 {
		t.Fatalf("decode errors: %v", errs)
	}
	if len(got) != 1 || string(got[0]) != "abc" {
		t.Errorf("decoded %q, want [abc]", got)
	}
}

func TestLineFramer_RejectsNewline(t *testing.T) {
	if _, err := (LineFramer{}).Encode([]byte("a\nb")); err == nil {
		t.Error("Encode() with newline error = nil, want failure")
	}
}

func TestLineFramer_Overflow(t *testing.T) {
	f := LineFramer{MaxSize: 4}

	if _, err := f.Encode([]byte("12345")); !errors.Is(err, ErrFrameTooLarge) {
		t.Errorf("Encode() error = %v, want %v", err, ErrFrameTooLarge)
	}

	got, errs := decodeAll(f.NewDecoder(), []byte("1234567\nabc\n"))
	if len(errs) != 1 || !errors.Is(errs[0], ErrFrameTooLarge) {
		t.Errorf("errors = %v, want one ErrFrameTooLarge", errs)
	}
	if len(got) != 1 || string(got[0]) != "abc" {
		t.Errorf("decoded %q, want [abc] after overflow", got)
	}
}

// ============================================================
// Stuffed Framing Tests
// ============================================================

func TestStuffedFramer_RoundTrip(t *testing.T) {
	f := StuffedFramer{}
	tests := []struct {
		name    string
		payload []byte
	}{
		{"text", []byte(`{"SNID":1}`)},
		{"special bytes", []byte{StartByte, EndByte, EscByte, 0x00, 0xFF}},
		{"single byte", []byte{0x42}},
		{"empty", []byte{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := f.Encode(tt.payload)
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			if frame[0] != StartByte || frame[len(frame)-1] != EndByte {
				t.Fatalf("frame not delimited: % X", frame)
			}
			// Framing bytes only appear at the ends
			inner := frame[1 : len(frame)-1]
			if bytes.IndexByte(inner, StartByte) >= 0 || bytes.IndexByte(inner, EndByte) >= 0 {
				t.Errorf("unescaped framing byte inside frame: % X", frame)
			}

			got, errs := decodeAll(f.NewDecoder(), frame)
			if len(errs) != 0 {
				t.Fatalf("decode errors: %v", errs)
			}
			if len(got) != 1 || !bytes.Equal(got[0], tt.payload) {
				t.Errorf("decoded % X, want % X", got, tt.payload)
			}
		})
	}
}

func TestStuffedFramer_CRCMismatch(t *testing.T) {
	f := StuffedFramer{}
	frame, _ := f.Encode([]byte("hello"))
	frame[2] ^= 0x01

	got, errs := decodeAll(f.NewDecoder(), frame)
	if len(got) != 0 {
		t.Errorf("decoded %q from corrupted frame", got)
	}
	if len(errs) != 1 {
		t.Errorf("errors = %v, want one CRC mismatch", errs)
	}
}

func TestStuffedFramer_ResyncOnStart(t *testing.T) {
	f := StuffedFramer{}
	good, _ := f.Encode([]byte("ok"))

	// Noise, then a truncated frame, then a complete one
	stream := append([]byte{0x01, 0x02, StartByte, 'x', 'y'}, good...)
	got, errs := decodeAll(f.NewDecoder(), stream)
	if len(errs) != 0 {
		t.Errorf("decode errors: %v", errs)
	}
	if len(got) != 1 || string(got[0]) != "ok" {
		t.Errorf("decoded %q, want [ok]", got)
	}
}

func TestStuffedFramer_ShortFrame(t *testing.T) {
	_, errs := decodeAll(StuffedFramer{}.NewDecoder(), []byte{StartByte, 0x01, EndByte})
	if len(errs) != 1 {
		t.Errorf("errors = %v, want one short-frame error", errs)
	}
}

func TestStuffedFramer_Overflow(t *testing.T) {
	f := StuffedFramer{MaxSize: 4}
	if _, err := f.Encode([]byte("12345")); !errors.Is(err, ErrFrameTooLarge) {
		t.Errorf("Encode() error = %v, want %v", err, ErrFrameTooLarge)
	}

	stream := append([]byte{StartByte}, bytes.Repeat([]byte{'a'}, 10)...)
	_, errs := decodeAll(f.NewDecoder(), stream)
	if len(errs) != 1 || !errors.Is(errs[0], ErrFrameTooLarge) {
		t.Errorf("errors = %v, want one ErrFrameTooLarge", errs)
	}
}

func TestUnstuffBytes(t *testing.T) {
	data := []byte{0x01, StartByte, EndByte, EscByte, 0x02}
	got, err := UnstuffBytes(stuffBytes(data))
	if err != nil {
		t.Fatalf("UnstuffBytes() error = %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("UnstuffBytes(stuffBytes(x)) = % X, want % X", got, data)
	}

	if _, err := UnstuffBytes([]byte{0x01, EscByte}); err == nil {
		t.Error("UnstuffBytes() with trailing escape error = nil, want failure")
	}
}

func TestFramerByName(t *testing.T) {
	for _, name := range []string{"", "line", "stuffed", "LINE"} {
		if _, err := FramerByName(name, 0); err != nil {
			t.Errorf("FramerByName(%q) error = %v", name, err)
		}
	}
	if _, err := FramerByName("slip", 0); err == nil {
		t.Error("FramerByName(slip) error = nil, want failure")
	}
}
