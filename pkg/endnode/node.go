// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package endnode

import (
	"fmt"
	"io"
	"strings"

	"github.com/pion/logging"
)

// Config holds the construction parameters of an EndNode
type Config struct {
	// ID is this node's identity on the link (>= 2 in practice; 1 is the coordinator)
	ID int

	// Devices, numbered contiguously from 1: activation devices first,
	// then trigger devices
	ActivationDevices []*ActivationDevice
	TriggerDevices    []*TriggerDevice

	// Codec defaults to JSONCodec
	Codec Codec

	// Clock defaults to a MonotonicClock started by New
	Clock Clock

	// LoggerFactory defaults to a disabled logger
	LoggerFactory logging.LoggerFactory
}

// EndNode owns a fixed set of devices and implements the message codec
// between them and the coordinator. It is not safe for concurrent use;
// a single goroutine drives Parse and Build.
type EndNode struct {
	id         int
	activation []*ActivationDevice
	trigger    []*TriggerDevice

	codec Codec
	clock Clock
	log   logging.LeveledLogger

	lastSequence   uint32 // Last accepted inbound PID
	outSequence    uint32 // Last transmitted PID
	prevTxTime     uint32
	pendingCommand string
	errorString    string

	stats *Statistics
}

// New creates an end node and assigns the device identities
func New(config Config) (*EndNode, error) {
	if config.ID <= CoordinatorID {
		return nil, ErrInvalidNodeID
	}
	// Check every device before assigning any, so a failed New leaves
	// the devices reusable
	seen := make(map[*TriggerDevice]bool)
	check := func(kind string, i int, d *TriggerDevice) error {
		if d.ID() != 0 || seen[d] {
			return fmt.Errorf("%s device %d (%s): %w", kind, i, d.Type(), ErrDeviceAssigned)
		}
		seen[d] = true
		return nil
	}
	for i, d := range config.ActivationDevices {
		if d == nil {
			return nil, fmt.Errorf("activation device %d: %w", i, ErrNilDevice)
		}
		if err := check("activation", i, &d.TriggerDevice); err != nil {
			return nil, err
		}
	}
	for i, d := range config.TriggerDevices {
		if d == nil {
			return nil, fmt.Errorf("trigger device %d: %w", i, ErrNilDevice)
		}
		if err := check("trigger", i, d); err != nil {
			return nil, err
		}
	}

	factory := config.LoggerFactory
	if factory == nil {
		factory = &logging.DefaultLoggerFactory{
			Writer:          io.Discard,
			DefaultLogLevel: logging.LogLevelDisabled,
		}
	}

	n := &EndNode{
		id:         config.ID,
		activation: append([]*ActivationDevice(nil), config.ActivationDevices...),
		trigger:    append([]*TriggerDevice(nil), config.TriggerDevices...),
		codec:      config.Codec,
		clock:      config.Clock,
		log:        factory.NewLogger("endnode"),
		stats:      NewStatistics(),
	}
	if n.codec == nil {
		n.codec = JSONCodec{}
	}
	if n.clock == nil {
		n.clock = NewMonotonicClock()
	}

	next := 1
	for _, d := range n.activation {
		d.SetID(next)
		next++
	}
	for _, d := range n.trigger {
		d.SetID(next)
		next++
	}

	n.log.Infof("node %d: %d activation device(s), %d trigger device(s), codec %s",
		n.id, len(n.activation), len(n.trigger), n.codec.Name())
	return n, nil
}

//////////////////////////////////////////////////////////////
// Accessors
//////////////////////////////////////////////////////////////

// ID returns the node identity
func (n *EndNode) ID() int { return n.id }

// Codec returns the codec used for Parse and Build
func (n *EndNode) Codec() Codec { return n.codec }

// LastSequence returns the last accepted inbound PID (0 before the first)
func (n *EndNode) LastSequence() uint32 { return n.lastSequence }

// OutboundSequence returns the PID of the last built message
func (n *EndNode) OutboundSequence() uint32 { return n.outSequence }

// ErrorString returns the diagnostics recorded by the most recent Parse
func (n *EndNode) ErrorString() string { return n.errorString }

// UptimeMillis returns the node uptime in milliseconds
func (n *EndNode) UptimeMillis() uint32 { return n.clock.UptimeMillis() }

// UptimeSeconds returns the node uptime in whole seconds
func (n *EndNode) UptimeSeconds() uint32 { return n.clock.UptimeMillis() / 1000 }

// PreviousTxTimestamp returns the uptime stamped on the last built message
func (n *EndNode) PreviousTxTimestamp() uint32 { return n.prevTxTime }

// ActivationDevices returns the owned activation devices in ID order
func (n *EndNode) ActivationDevices() []*ActivationDevice { return n.activation }

// TriggerDevices returns the owned trigger devices in ID order
func (n *EndNode) TriggerDevices() []*TriggerDevice { return n.trigger }

// Stats returns a snapshot of the node statistics
func (n *EndNode) Stats() Statistics {
	s := *n.stats
	s.CalculateRates()
	return s
}

// ResetStats clears the node statistics
func (n *EndNode) ResetStats() { n.stats.Reset() }

//////////////////////////////////////////////////////////////
// Queries
//////////////////////////////////////////////////////////////

// AnySendRequested reports whether any owned device has a pending send
func (n *EndNode) AnySendRequested() bool {
	for _, d := range n.activation {
		if d.SendStateRequested() {
			return true
		}
	}
	for _, d := range n.trigger {
		if d.SendStateRequested() {
			return true
		}
	}
	return false
}

// HasPendingCommand reports whether a coordinator command is waiting
func (n *EndNode) HasPendingCommand() bool {
	return n.pendingCommand != ""
}

// TakePendingCommand returns the waiting coordinator command and clears it.
// Only the most recent command is kept.
func (n *EndNode) TakePendingCommand() string {
	cmd := n.pendingCommand
	n.pendingCommand = ""
	return cmd
}

//////////////////////////////////////////////////////////////
// Parse
//////////////////////////////////////////////////////////////

// Parse applies an inbound payload. A nil error means the payload was
// accepted or was addressed to another node. Device failures do not stop
// the remaining list entries from being applied; they are returned together
// once the whole message has been processed.
func (n *EndNode) Parse(payload string) error {
	return n.ParseBytes([]byte(payload))
}

// ParseBytes is Parse for binary payloads
func (n *EndNode) ParseBytes(payload []byte) error {
	n.errorString = ""
	n.stats.Received++

	doc, err := n.codec.Decode(payload)
	if err != nil {
		return n.abort(newError(KindDecode, err.Error()))
	}

	// Addressing
	if _, p := doc.Int(KeySourceNode); p != Present {
		return n.abort(fieldError(KeySourceNode, p))
	}
	target, p := doc.Int(KeyTargetNode)
	if p != Present {
		return n.abort(fieldError(KeyTargetNode, p))
	}
	if target != n.id {
		n.stats.Ignored++
		n.log.Tracef("message for node %d ignored", target)
		return nil
	}
	n.stats.Addressed++

	// Sequencing
	pid, p := doc.Uint32(KeyPacketID)
	if p != Present {
		return n.abort(fieldError(KeyPacketID, p))
	}
	if _, p := doc.Uint32(KeyUptime); p != Present {
		return n.abort(fieldError(KeyUptime, p))
	}
	if pid <= n.lastSequence {
		return n.abort(newError(KindDuplicate,
			fmt.Sprintf("Received packet ID %d, which has already been received before", pid)))
	}
	if pid > n.lastSequence+1 {
		msg := fmt.Sprintf("Missed packets %d to %d", n.lastSequence+1, pid-1)
		n.note(msg)
		n.log.Warn(msg)
		n.stats.recordGap(pid - n.lastSequence - 1)
	}
	n.lastSequence = pid
	n.stats.Accepted++
	n.log.Debugf("accepted packet %d", pid)

	// Command
	cmd, p := doc.String(KeyCommand)
	switch p {
	case WrongType:
		return n.abort(fieldError(KeyCommand, p))
	case Present:
		n.pendingCommand = cmd
		n.log.Infof("got command %q", cmd)
	}

	// Device lists
	failures, fatal := n.applyList(doc, KeyActivation, labelActivation, n.applyActivation)
	if fatal != nil {
		return n.abort(fatal)
	}
	tlFailures, fatal := n.applyList(doc, KeyTrigger, labelTrigger, n.applyTrigger)
	if fatal != nil {
		return n.abort(fatal)
	}
	failures = append(failures, tlFailures...)

	if len(failures) == 0 {
		return nil
	}
	msgs := make([]string, len(failures))
	for i, f := range failures {
		msgs[i] = f.Message
	}
	err = newError(failures[0].Kind, strings.Join(msgs, "; "))
	n.stats.recordError(failures[0].Kind)
	return err
}

// entryHandler applies one validated list entry
type entryHandler func(entry Document, id int, deviceType string) *Error

// applyList walks the AL or TL list. A list that is not an array is recorded
// and skipped. An element without a valid ID or T is returned as fatal.
func (n *EndNode) applyList(doc Document, key, label string, apply entryHandler) ([]*Error, *Error) {
	items, p := doc.Array(key)
	switch p {
	case Missing:
		return nil, nil
	case WrongType:
		return []*Error{n.record(fieldError(key, p))}, nil
	}

	var failures []*Error
	for _, item := range items {
		// An element that is not an object reads as an empty one
		entry, _ := AsDocument(item)
		id, p := entry.Int(KeyDeviceID)
		if p != Present {
			return failures, fieldError(label+" "+KeyDeviceID, p)
		}
		deviceType, p := entry.String(KeyDeviceType)
		if p != Present {
			return failures, fieldError(label+" "+KeyDeviceType, p)
		}

		if f := apply(entry, id, deviceType); f != nil {
			failures = append(failures, f)
		}
	}
	return failures, nil
}

func (n *EndNode) applyActivation(entry Document, id int, deviceType string) *Error {
	d := n.findActivation(id, deviceType)
	if d == nil {
		return nil
	}

	config, p := entry.String(KeyDeviceConfig)
	switch p {
	case WrongType:
		return n.record(fieldError(labelActivation+" "+KeyDeviceConfig, p))
	case Present:
		if err := d.SetConfig(config); err != nil {
			return n.deviceFailure(labelActivation, id, err)
		}
		n.log.Infof("AD %d (%s): config set to %q", id, deviceType, config)
	}

	state, p := entry.String(KeyDeviceState)
	switch p {
	case WrongType:
		return n.record(fieldError(labelActivation+" "+KeyDeviceState, p))
	case Missing:
		d.SendStateOnNextTransfer()
		n.log.Infof("AD %d (%s): state requested", id, deviceType)
	case Present:
		newState, err := d.SetState(state)
		if err != nil {
			return n.deviceFailure(labelActivation, id, err)
		}
		n.log.Infof("AD %d (%s): state set to %q (requested %q)", id, deviceType, newState, state)
	}
	return nil
}

func (n *EndNode) applyTrigger(entry Document, id int, deviceType string) *Error {
	d := n.findTrigger(id, deviceType)
	if d == nil {
		return nil
	}

	config, p := entry.String(KeyDeviceConfig)
	switch p {
	case WrongType:
		return n.record(fieldError(labelTrigger+" "+KeyDeviceConfig, p))
	case Present:
		if err := d.SetConfig(config); err != nil {
			return n.deviceFailure(labelTrigger, id, err)
		}
		n.log.Infof("TD %d (%s): config set to %q", id, deviceType, config)
	}

	d.SendStateOnNextTransfer()
	n.log.Infof("TD %d (%s): state requested", id, deviceType)
	return nil
}

// findActivation matches identity first, then type
func (n *EndNode) findActivation(id int, deviceType string) *ActivationDevice {
	for _, d := range n.activation {
		if d.ID() == id && d.Type() == deviceType {
			return d
		}
	}
	return nil
}

func (n *EndNode) findTrigger(id int, deviceType string) *TriggerDevice {
	for _, d := range n.trigger {
		if d.ID() == id && d.Type() == deviceType {
			return d
		}
	}
	return nil
}

// note appends a diagnostic to the error string
func (n *EndNode) note(msg string) {
	if n.errorString == "" {
		n.errorString = msg
	} else {
		n.errorString += "; " + msg
	}
}

// record notes a non-fatal failure and returns it
func (n *EndNode) record(e *Error) *Error {
	n.note(e.Message)
	n.log.Error(e.Message)
	return e
}

// deviceFailure records a collaborator failure against a device
func (n *EndNode) deviceFailure(label string, id int, err error) *Error {
	return n.record(newError(KindDevice, fmt.Sprintf("%s %d %s", label, id, err.Error())))
}

// abort records a failure that ends the parse
func (n *EndNode) abort(e *Error) error {
	n.note(e.Message)
	n.stats.recordError(e.Kind)
	n.log.Error(e.Message)
	return e
}

//////////////////////////////////////////////////////////////
// Build
//////////////////////////////////////////////////////////////

// BuildMessage assembles the next outbound message. Devices with a pending
// send (or every device when sendAllState is set) are read and have their
// request cleared.
func (n *EndNode) BuildMessage(sendAllState bool) *Message {
	n.outSequence++
	now := n.clock.UptimeMillis()
	n.prevTxTime = now

	msg := &Message{
		SNID: n.id,
		TNID: CoordinatorID,
		PID:  n.outSequence,
		UT:   now,
		ER:   n.errorString,
	}
	if sendAllState {
		msg.AL = []DeviceEntry{}
		msg.TL = []DeviceEntry{}
	}

	for _, d := range n.activation {
		if sendAllState || d.SendStateRequested() {
			msg.AL = append(msg.AL, reportEntry(&d.TriggerDevice))
		}
	}
	for _, d := range n.trigger {
		if sendAllState || d.SendStateRequested() {
			msg.TL = append(msg.TL, reportEntry(d))
		}
	}

	n.stats.Transmitted++
	return msg
}

// Build assembles and encodes the next outbound message
func (n *EndNode) Build(sendAllState bool) string {
	return string(n.BuildBytes(sendAllState))
}

// BuildBytes is Build for binary codecs. It panics if the codec cannot
// encode a Message, which only happens with a broken Codec.
func (n *EndNode) BuildBytes(sendAllState bool) []byte {
	msg := n.BuildMessage(sendAllState)
	data, err := n.codec.Encode(msg)
	if err != nil {
		panic(fmt.Sprintf("endnode: failed to encode message: %v", err))
	}
	n.log.Debugf("built packet %d (%d bytes)", msg.PID, len(data))
	return data
}

// reportEntry reads a device for an outbound list
func reportEntry(d *TriggerDevice) DeviceEntry {
	e := DeviceEntry{ID: d.ID(), T: d.Type()}
	state, err := d.GetStateAndClearRequest()
	if err != nil {
		e.S = Text(UnknownState)
		e.ER = d.ErrorString()
		return e
	}
	e.S = Text(state)
	return e
}
