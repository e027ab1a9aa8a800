// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package endnode

import (
	"errors"
	"strings"
	"testing"

	"github.com/fxamacker/cbor/v2"
)

// ============================================================
// Document Accessor Tests
// ============================================================

func TestDocument_Int(t *testing.T) {
	doc, err := JSONCodec{}.Decode([]byte(`{"a":1,"b":-7,"c":1.5,"d":"1","e":3000000000,"f":2.0,"g":null}`))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	tests := []struct {
		key  string
		want int
		p    Presence
	}{
		{"a", 1, Present},
		{"b", -7, Present},
		{"c", 0, WrongType},
		{"d", 0, WrongType},
		{"e", 0, WrongType}, // outside int32
		{"f", 0, WrongType}, // floats are never integers
		{"g", 0, WrongType},
		{"missing", 0, Missing},
	}

	for _, tt := range tests {
		got, p := doc.Int(tt.key)
		if got != tt.want || p != tt.p {
			t.Errorf("Int(%q) = %d, %v, want %d, %v", tt.key, got, p, tt.want, tt.p)
		}
	}
}

func TestDocument_Uint32(t *testing.T) {
	doc, err := JSONCodec{}.Decode([]byte(`{"a":0,"b":4294967295,"c":4294967296,"d":-1}`))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	tests := []struct {
		key  string
		want uint32
		p    Presence
	}{
		{"a", 0, Present},
		{"b", 4294967295, Present},
		{"c", 0, WrongType},
		{"d", 0, WrongType},
		{"x", 0, Missing},
	}

	for _, tt := range tests {
		got, p := doc.Uint32(tt.key)
		if got != tt.want || p != tt.p {
			t.Errorf("Uint32(%q) = %d, %v, want %d, %v", tt.key, got, p, tt.want, tt.p)
		}
	}
}

func TestDocument_StringAndArray(t *testing.T) {
	doc, err := JSONCodec{}.Decode([]byte(`{"s":"x","n":1,"a":[1,{"ID":2}],"o":{}}`))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	if s, p := doc.String("s"); s != "x" || p != Present {
		t.Errorf("String(s) = %q, %v", s, p)
	}
	if _, p := doc.String("n"); p != WrongType {
		t.Errorf("String(n) presence = %v, want WrongType", p)
	}
	a, p := doc.Array("a")
	if p != Present || len(a) != 2 {
		t.Fatalf("Array(a) = %v, %v", a, p)
	}
	if _, ok := AsDocument(a[0]); ok {
		t.Error("AsDocument(1) = ok, want not an object")
	}
	if d, ok := AsDocument(a[1]); !ok || !d.Has("ID") {
		t.Errorf("AsDocument({ID:2}) = %v, %v", d, ok)
	}
	if _, p := doc.Array("o"); p != WrongType {
		t.Errorf("Array(o) presence = %v, want WrongType", p)
	}
	if _, p := doc.Array("x"); p != Missing {
		t.Errorf("Array(x) presence = %v, want Missing", p)
	}
}

// ============================================================
// Codec Tests
// ============================================================

func TestCodecByName(t *testing.T) {
	tests := []struct {
		name    string
		want    string
		wantErr bool
	}{
		{"", "json", false},
		{"json", "json", false},
		{"JSON", "json", false},
		{"cbor", "cbor", false},
		{"xml", "", true},
	}

	for _, tt := range tests {
		c, err := CodecByName(tt.name)
		if (err != nil) != tt.wantErr {
			t.Errorf("CodecByName(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
			continue
		}
		if err == nil && c.Name() != tt.want {
			t.Errorf("CodecByName(%q).Name() = %q, want %q", tt.name, c.Name(), tt.want)
		}
	}
}

func TestJSONCodec_Errors(t *testing.T) {
	c := JSONCodec{}

	if _, err := c.Decode(nil); !errors.Is(err, ErrEmptyInput) {
		t.Errorf("Decode(nil) error = %v, want %v", err, ErrEmptyInput)
	}
	if _, err := c.Decode([]byte(`"text"`)); !errors.Is(err, ErrNotObject) {
		t.Errorf("Decode(string) error = %v, want %v", err, ErrNotObject)
	}
	if _, err := c.Decode([]byte(`{`)); err == nil || !strings.HasPrefix(err.Error(), "InvalidInput") {
		t.Errorf("Decode({) error = %v, want InvalidInput", err)
	}
}

func TestJSONCodec_EncodeOmitsEmpty(t *testing.T) {
	data, err := JSONCodec{}.Encode(NewCoordinatorMessage(4, 9, 100))
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	want := `{"SNID":1,"TNID":4,"PID":9,"UT":100}`
	if string(data) != want {
		t.Errorf("Encode() = %s, want %s", data, want)
	}
}

func TestCBORCodec_RoundTrip(t *testing.T) {
	c := NewCBORCodec()
	in := NewConfigCommand(6, 42, 5000, false, 3, "LGT", "threshold=300")
	in.CMD = "START"

	data, err := c.Encode(in)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	out, err := DecodeMessage(c, data)
	if err != nil {
		t.Fatalf("DecodeMessage() error = %v", err)
	}

	if out.SNID != 1 || out.TNID != 6 || out.PID != 42 || out.UT != 5000 || out.CMD != "START" {
		t.Errorf("header = %+v", out)
	}
	if len(out.TL) != 1 || out.TL[0].ID != 3 || out.TL[0].T != "LGT" || out.TL[0].Config() != "threshold=300" {
		t.Errorf("TL = %+v", out.TL)
	}
	if out.TL[0].S != nil {
		t.Errorf("TL[0].S = %q, want absent", *out.TL[0].S)
	}
}

func TestCBORCodec_Deterministic(t *testing.T) {
	c := NewCBORCodec()
	msg := NewSetStateCommand(2, 1, 1, 1, "RLY", "1")

	a, err := c.Encode(msg)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	b, _ := c.Encode(msg)
	if string(a) != string(b) {
		t.Error("CBOR encoding is not deterministic")
	}
}

func TestCBORCodec_Errors(t *testing.T) {
	c := NewCBORCodec()

	if _, err := c.Decode(nil); !errors.Is(err, ErrEmptyInput) {
		t.Errorf("Decode(nil) error = %v, want %v", err, ErrEmptyInput)
	}

	arr, _ := cbor.Marshal([]int{1, 2})
	if _, err := c.Decode(arr); !errors.Is(err, ErrNotObject) {
		t.Errorf("Decode(array) error = %v, want %v", err, ErrNotObject)
	}

	intKeys, _ := cbor.Marshal(map[int]string{1: "x"})
	if _, err := c.Decode(intKeys); err == nil {
		t.Error("Decode(int keys) error = nil, want failure")
	}

	if _, err := c.Decode([]byte{0xFF, 0x00}); err == nil {
		t.Error("Decode(garbage) error = nil, want failure")
	}
}

func TestCBORCodec_NestedKeysNormalized(t *testing.T) {
	payload := map[string]interface{}{
		"SNID": 1, "TNID": 2, "PID": 1, "UT": 0,
		"AL": []interface{}{map[string]interface{}{"ID": 1, "T": "RLY", "S": "1"}},
	}
	data, err := cbor.Marshal(payload)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	doc, err := NewCBORCodec().Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	items, p := doc.Array(KeyActivation)
	if p != Present || len(items) != 1 {
		t.Fatalf("Array(AL) = %v, %v", items, p)
	}
	entry, ok := AsDocument(items[0])
	if !ok {
		t.Fatalf("AL[0] is %T, want an object", items[0])
	}
	if id, p := entry.Int(KeyDeviceID); id != 1 || p != Present {
		t.Errorf("AL[0].ID = %d, %v", id, p)
	}
}
