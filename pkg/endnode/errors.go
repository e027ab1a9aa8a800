// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package endnode

import (
	"errors"
	"fmt"
)

// Construction errors
var (
	ErrInvalidNodeID  = errors.New("endnode: node ID must be >= 2 (1 is the coordinator)")
	ErrNilDevice      = errors.New("endnode: nil device")
	ErrDeviceAssigned = errors.New("endnode: device already has an ID")
)

// Kind classifies a codec or dispatch failure
type Kind int

const (
	// KindDecode: the payload is not a structured document
	KindDecode Kind = iota + 1
	// KindStructure: a required field is missing or has the wrong type,
	// or a device list has the wrong shape
	KindStructure
	// KindDuplicate: the packet ID was already accepted
	KindDuplicate
	// KindDevice: a device collaborator reported a failure
	KindDevice
)

// String returns the kind name
func (k Kind) String() string {
	switch k {
	case KindDecode:
		return "decode"
	case KindStructure:
		return "structure"
	case KindDuplicate:
		return "duplicate"
	case KindDevice:
		return "device"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is returned by Parse and by device operations
type Error struct {
	Kind    Kind
	Message string
}

// Error implements the error interface
func (e *Error) Error() string {
	return e.Message
}

// KindOf returns the Kind of err, or 0 if err is not an *Error
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// Sentinel renders err in the wire/collaborator convention ("ER: <message>").
// A nil error renders as "".
func Sentinel(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return Failure(e.Message)
	}
	return Failure(err.Error())
}

func newError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}
