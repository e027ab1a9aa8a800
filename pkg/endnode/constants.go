// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package endnode implements the message codec and device dispatch of an
// escape room end node.
//
// An end node owns a fixed set of activation devices (outputs whose state can
// be commanded) and trigger devices (inputs whose state is only reported) and
// talks to a coordinator over a shared broadcast link. Every node hears every
// message, so inbound messages are filtered by target node ID, and a per-link
// sequence number (PID) is used to detect duplicated and lost messages.
package endnode

// Well-known node IDs
const (
	CoordinatorID = 1 // The server; end nodes always transmit to it
)

// Message header keys
const (
	KeySourceNode = "SNID"
	KeyTargetNode = "TNID"
	KeyPacketID   = "PID"
	KeyUptime     = "UT"
	KeyCommand    = "CMD"
	KeyActivation = "AL"
	KeyTrigger    = "TL"
	KeyError      = "ER"
)

// Device entry keys (elements of AL and TL)
const (
	KeyDeviceID     = "ID"
	KeyDeviceType   = "T"
	KeyDeviceConfig = "C"
	KeyDeviceState  = "S"
	KeyDeviceError  = "ER"
)

// Labels used in diagnostics for the two device lists
const (
	labelActivation = "AD"
	labelTrigger    = "TD"
)

// UnknownState is reported for a device whose state could not be read
const UnknownState = "?"

// FailurePrefix marks a collaborator string result as a failure
const FailurePrefix = "ER:"
