// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package endnode

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

// Codec turns payloads into Documents and Messages into payloads
type Codec interface {
	Name() string
	Decode(data []byte) (Document, error)
	Encode(msg *Message) ([]byte, error)
}

// Codec errors
var (
	ErrEmptyInput = errors.New("EmptyInput")
	ErrNotObject  = errors.New("document root is not an object")
)

// CodecByName returns the codec registered under name ("json" or "cbor")
func CodecByName(name string) (Codec, error) {
	switch strings.ToLower(name) {
	case "", "json":
		return JSONCodec{}, nil
	case "cbor":
		return NewCBORCodec(), nil
	}
	return nil, fmt.Errorf("unknown codec %q (use json or cbor)", name)
}

//////////////////////////////////////////////////////////////
// JSON
//////////////////////////////////////////////////////////////

// JSONCodec is the default text encoding
type JSONCodec struct{}

// Name returns "json"
func (JSONCodec) Name() string { return "json" }

// Decode parses a JSON object. Numbers are kept as json.Number so that
// integers and floats stay distinguishable.
func (JSONCodec) Decode(data []byte) (Document, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyInput
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("InvalidInput: %v", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("InvalidInput: trailing data after document")
	}

	m, ok := v.(map[string]any)
	if !ok {
		return nil, ErrNotObject
	}
	return Document(m), nil
}

// Encode serializes msg as compact JSON
func (JSONCodec) Encode(msg *Message) ([]byte, error) {
	return json.Marshal(msg)
}

//////////////////////////////////////////////////////////////
// CBOR
//////////////////////////////////////////////////////////////

// CBORCodec is a compact binary encoding of the same document structure.
// Map keys must be text strings.
type CBORCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// NewCBORCodec creates a CBOR codec with deterministic encoding
func NewCBORCodec() *CBORCodec {
	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
	}
	enc, err := encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("endnode: CBOR encoder mode: %v", err))
	}

	decOpts := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyQuiet,
		IndefLength:       cbor.IndefLengthAllowed,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
	}
	dec, err := decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("endnode: CBOR decoder mode: %v", err))
	}

	return &CBORCodec{enc: enc, dec: dec}
}

// Name returns "cbor"
func (c *CBORCodec) Name() string { return "cbor" }

// Decode parses a CBOR map
func (c *CBORCodec) Decode(data []byte) (Document, error) {
	if len(data) == 0 {
		return nil, ErrEmptyInput
	}

	var v any
	if err := c.dec.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("InvalidInput: %v", err)
	}

	norm, err := normalizeCBOR(v)
	if err != nil {
		return nil, err
	}
	m, ok := norm.(map[string]any)
	if !ok {
		return nil, ErrNotObject
	}
	return Document(m), nil
}

// Encode serializes msg as CBOR (field names from the json struct tags)
func (c *CBORCodec) Encode(msg *Message) ([]byte, error) {
	return c.enc.Marshal(msg)
}

// normalizeCBOR converts map[interface{}]interface{} to map[string]any recursively
func normalizeCBOR(v any) (any, error) {
	switch val := v.(type) {
	case map[interface{}]interface{}:
		m := make(map[string]any, len(val))
		for key, item := range val {
			k, ok := key.(string)
			if !ok {
				return nil, fmt.Errorf("InvalidInput: expected text map key, got %T", key)
			}
			n, err := normalizeCBOR(item)
			if err != nil {
				return nil, err
			}
			m[k] = n
		}
		return m, nil
	case map[string]any:
		for k, item := range val {
			n, err := normalizeCBOR(item)
			if err != nil {
				return nil, err
			}
			val[k] = n
		}
		return val, nil
	case []any:
		for i, item := range val {
			n, err := normalizeCBOR(item)
			if err != nil {
				return nil, err
			}
			val[i] = n
		}
		return val, nil
	}
	return v, nil
}
