// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package endnode

import (
	"encoding/json"
	"math"
)

// Document is a decoded structured message: an object with string keys.
// Values are json.Number, int64, uint64, float64, string, bool, nil,
// []any or map[string]any depending on the codec that produced them.
type Document map[string]any

// Presence describes the result of a typed field lookup
type Presence int

const (
	Present Presence = iota
	Missing
	WrongType
)

// Has reports whether key is present (with any type)
func (d Document) Has(key string) bool {
	_, ok := d[key]
	return ok
}

// Int extracts a signed 32-bit integer
func (d Document) Int(key string) (int, Presence) {
	v, ok := d[key]
	if !ok {
		return 0, Missing
	}
	n, ok := toInt64(v)
	if !ok || n < math.MinInt32 || n > math.MaxInt32 {
		return 0, WrongType
	}
	return int(n), Present
}

// Uint32 extracts an unsigned 32-bit integer
func (d Document) Uint32(key string) (uint32, Presence) {
	v, ok := d[key]
	if !ok {
		return 0, Missing
	}
	n, ok := toUint64(v)
	if !ok || n > math.MaxUint32 {
		return 0, WrongType
	}
	return uint32(n), Present
}

// String extracts a text value
func (d Document) String(key string) (string, Presence) {
	v, ok := d[key]
	if !ok {
		return "", Missing
	}
	s, ok := v.(string)
	if !ok {
		return "", WrongType
	}
	return s, Present
}

// Array extracts an array value
func (d Document) Array(key string) ([]any, Presence) {
	v, ok := d[key]
	if !ok {
		return nil, Missing
	}
	a, ok := v.([]any)
	if !ok {
		return nil, WrongType
	}
	return a, Present
}

// AsDocument converts an array element to a Document if it is an object
func AsDocument(v any) (Document, bool) {
	switch m := v.(type) {
	case Document:
		return m, true
	case map[string]any:
		return Document(m), true
	}
	return nil, false
}

// toInt64 accepts integer values only; floats (even integral ones) are rejected
func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case int64:
		return n, true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case uint32:
		return int64(n), true
	}
	return 0, false
}

func toUint64(v any) (uint64, bool) {
	if u, ok := v.(uint64); ok {
		return u, true
	}
	i, ok := toInt64(v)
	if !ok || i < 0 {
		return 0, false
	}
	return uint64(i), true
}
