// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package endnode

import "fmt"

// Message is the typed view of a link message, in either direction.
// Field order matches the order used on the wire. A nil AL or TL is left
// out; an empty non-nil list is sent as [].
type Message struct {
	SNID int           `json:"SNID" cbor:"SNID"`
	TNID int           `json:"TNID" cbor:"TNID"`
	PID  uint32        `json:"PID" cbor:"PID"`
	UT   uint32        `json:"UT" cbor:"UT"`
	CMD  string        `json:"CMD,omitempty" cbor:"CMD,omitempty"`
	AL   []DeviceEntry `json:"AL,omitzero" cbor:"AL,omitzero"`
	TL   []DeviceEntry `json:"TL,omitzero" cbor:"TL,omitzero"`
	ER   string        `json:"ER,omitempty" cbor:"ER,omitempty"`
}

// DeviceEntry is one element of an AL or TL list.
// C and S are optional, so they are pointers; ER is only sent by end nodes.
type DeviceEntry struct {
	ID int     `json:"ID" cbor:"ID"`
	T  string  `json:"T" cbor:"T"`
	C  *string `json:"C,omitempty" cbor:"C,omitempty"`
	S  *string `json:"S,omitempty" cbor:"S,omitempty"`
	ER string  `json:"ER,omitempty" cbor:"ER,omitempty"`
}

// State returns the entry state, or "" if absent
func (e DeviceEntry) State() string {
	if e.S == nil {
		return ""
	}
	return *e.S
}

// Config returns the entry configuration, or "" if absent
func (e DeviceEntry) Config() string {
	if e.C == nil {
		return ""
	}
	return *e.C
}

// Text returns a pointer to s, for the optional entry fields
func Text(s string) *string {
	return &s
}

// DecodeMessage decodes a payload into a Message
func DecodeMessage(codec Codec, payload []byte) (*Message, error) {
	doc, err := codec.Decode(payload)
	if err != nil {
		return nil, err
	}
	return MessageFromDocument(doc)
}

// MessageFromDocument builds a Message from a decoded Document.
// Header fields are required; every present field must have the right type.
// Dispatch on an end node does not use this: Parse walks the Document
// itself so that it can apply per-device error handling.
func MessageFromDocument(doc Document) (*Message, error) {
	m := &Message{}
	var p Presence

	if m.SNID, p = doc.Int(KeySourceNode); p != Present {
		return nil, fieldError(KeySourceNode, p)
	}
	if m.TNID, p = doc.Int(KeyTargetNode); p != Present {
		return nil, fieldError(KeyTargetNode, p)
	}
	if m.PID, p = doc.Uint32(KeyPacketID); p != Present {
		return nil, fieldError(KeyPacketID, p)
	}
	if m.UT, p = doc.Uint32(KeyUptime); p != Present {
		return nil, fieldError(KeyUptime, p)
	}
	if m.CMD, p = doc.String(KeyCommand); p == WrongType {
		return nil, fieldError(KeyCommand, p)
	}
	if m.ER, p = doc.String(KeyError); p == WrongType {
		return nil, fieldError(KeyError, p)
	}

	var err error
	if m.AL, err = entriesFromDocument(doc, KeyActivation, labelActivation); err != nil {
		return nil, err
	}
	if m.TL, err = entriesFromDocument(doc, KeyTrigger, labelTrigger); err != nil {
		return nil, err
	}

	return m, nil
}

func entriesFromDocument(doc Document, key, label string) ([]DeviceEntry, error) {
	items, p := doc.Array(key)
	if p == Missing {
		return nil, nil
	}
	if p == WrongType {
		return nil, fieldError(key, p)
	}

	entries := make([]DeviceEntry, 0, len(items))
	for _, item := range items {
		ed, _ := AsDocument(item)

		var e DeviceEntry
		if e.ID, p = ed.Int(KeyDeviceID); p != Present {
			return nil, fieldError(label+" "+KeyDeviceID, p)
		}
		if e.T, p = ed.String(KeyDeviceType); p != Present {
			return nil, fieldError(label+" "+KeyDeviceType, p)
		}
		if c, p := ed.String(KeyDeviceConfig); p == Present {
			e.C = Text(c)
		} else if p == WrongType {
			return nil, fieldError(label+" "+KeyDeviceConfig, p)
		}
		if s, p := ed.String(KeyDeviceState); p == Present {
			e.S = Text(s)
		} else if p == WrongType {
			return nil, fieldError(label+" "+KeyDeviceState, p)
		}
		if e.ER, p = ed.String(KeyDeviceError); p == WrongType {
			return nil, fieldError(label+" "+KeyDeviceError, p)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// fieldError builds the "No X" / "X invalid type" structural error
func fieldError(label string, p Presence) *Error {
	if p == Missing {
		return newError(KindStructure, "No "+label)
	}
	return newError(KindStructure, label+" invalid type")
}

//////////////////////////////////////////////////////////////
// Coordinator command builders
//////////////////////////////////////////////////////////////

// NewCoordinatorMessage creates an empty coordinator message to target
func NewCoordinatorMessage(target int, pid, uptime uint32) *Message {
	return &Message{
		SNID: CoordinatorID,
		TNID: target,
		PID:  pid,
		UT:   uptime,
	}
}

// NewSetStateCommand asks an activation device to change state
func NewSetStateCommand(target int, pid, uptime uint32, deviceID int, deviceType, state string) *Message {
	m := NewCoordinatorMessage(target, pid, uptime)
	m.AL = []DeviceEntry{{ID: deviceID, T: deviceType, S: Text(state)}}
	return m
}

// NewConfigCommand configures a device. When activation is false the
// device is addressed through the trigger list.
func NewConfigCommand(target int, pid, uptime uint32, activation bool, deviceID int, deviceType, config string) *Message {
	m := NewCoordinatorMessage(target, pid, uptime)
	e := DeviceEntry{ID: deviceID, T: deviceType, C: Text(config)}
	if activation {
		m.AL = []DeviceEntry{e}
	} else {
		m.TL = []DeviceEntry{e}
	}
	return m
}

// NewReadRequest asks a device to report its state on the next transfer
func NewReadRequest(target int, pid, uptime uint32, activation bool, deviceID int, deviceType string) *Message {
	m := NewCoordinatorMessage(target, pid, uptime)
	e := DeviceEntry{ID: deviceID, T: deviceType}
	if activation {
		m.AL = []DeviceEntry{e}
	} else {
		m.TL = []DeviceEntry{e}
	}
	return m
}

// NewCloudCommand forwards a free-form command (e.g. "START") to an end node
func NewCloudCommand(target int, pid, uptime uint32, command string) *Message {
	m := NewCoordinatorMessage(target, pid, uptime)
	m.CMD = command
	return m
}

// String returns a compact one-line description
func (m *Message) String() string {
	return fmt.Sprintf("SNID=%d TNID=%d PID=%d UT=%d AL=%d TL=%d", m.SNID, m.TNID, m.PID, m.UT, len(m.AL), len(m.TL))
}

// Document returns the message as a generic Document, with the same key
// layout a codec would produce
func (m *Message) Document() Document {
	doc := Document{
		KeySourceNode: int64(m.SNID),
		KeyTargetNode: int64(m.TNID),
		KeyPacketID:   uint64(m.PID),
		KeyUptime:     uint64(m.UT),
	}
	if m.CMD != "" {
		doc[KeyCommand] = m.CMD
	}
	if m.AL != nil {
		doc[KeyActivation] = entriesDocument(m.AL)
	}
	if m.TL != nil {
		doc[KeyTrigger] = entriesDocument(m.TL)
	}
	if m.ER != "" {
		doc[KeyError] = m.ER
	}
	return doc
}

func entriesDocument(entries []DeviceEntry) []any {
	items := make([]any, 0, len(entries))
	for _, e := range entries {
		ed := map[string]any{
			KeyDeviceID:   int64(e.ID),
			KeyDeviceType: e.T,
		}
		if e.C != nil {
			ed[KeyDeviceConfig] = *e.C
		}
		if e.S != nil {
			ed[KeyDeviceState] = *e.S
		}
		if e.ER != "" {
			ed[KeyDeviceError] = e.ER
		}
		items = append(items, ed)
	}
	return items
}
