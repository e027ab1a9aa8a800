// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package driver provides simulated device drivers for end nodes.
//
// Each driver implements the endnode capability interfaces and reports
// failures with the "ER:" convention. Input drivers also implement
// ChangeDetector so the runner can report state changes without waiting for
// a coordinator read request.
package driver

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/Thermoquad/endnode/pkg/endnode"
)

// Driver is a simulated device driver
type Driver interface {
	endnode.TriggerDriver
	// Name returns the registry name of the driver
	Name() string
}

// ChangeDetector is implemented by drivers whose state can change without a
// command. Changed reports whether the state changed since the last call.
type ChangeDetector interface {
	Changed() bool
}

// Stimulator is implemented by drivers that accept simulated physical input,
// e.g. pressing a button or shining a light on a sensor.
type Stimulator interface {
	Stimulate(input string) error
}

//////////////////////////////////////////////////////////////
// Registry
//////////////////////////////////////////////////////////////

var registry = map[string]func() Driver{
	"relay":  func() Driver { return NewRelay() },
	"dimmer": func() Driver { return NewDimmer() },
	"button": func() Driver { return NewButton() },
	"step":   func() Driver { return NewStepMat() },
	"light":  func() Driver { return NewLightSensor() },
}

// New creates a driver by registry name
func New(name string) (Driver, error) {
	factory, ok := registry[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown driver %q (available: %s)", name, strings.Join(Names(), ", "))
	}
	return factory(), nil
}

// Names returns the registered driver names in sorted order
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

//////////////////////////////////////////////////////////////
// Shared helpers
//////////////////////////////////////////////////////////////

// Fault modes injected through the "fault" config key
const (
	faultNone  = "none"
	faultRead  = "read"
	faultWrite = "write"
)

// base holds state common to every simulated driver
type base struct {
	mu    sync.Mutex
	fault string
}

// applyFault handles the "fault" key. Callers hold mu.
func (b *base) applyFault(value string) error {
	switch value {
	case faultNone, faultRead, faultWrite:
		b.fault = value
		return nil
	default:
		return fmt.Errorf("invalid fault %q", value)
	}
}

func (b *base) readFault() bool  { return b.fault == faultRead }
func (b *base) writeFault() bool { return b.fault == faultWrite }

// parseConfig splits "key=value" pairs separated by ',' or ';'.
// Unknown keys are rejected.
func parseConfig(config string, allowed ...string) (map[string]string, error) {
	values := make(map[string]string)
	fields := strings.FieldsFunc(config, func(r rune) bool { return r == ',' || r == ';' })
	for _, field := range fields {
		key, value, ok := strings.Cut(strings.TrimSpace(field), "=")
		if !ok {
			return nil, fmt.Errorf("malformed config item %q", field)
		}
		key = strings.ToLower(strings.TrimSpace(key))
		if !contains(allowed, key) {
			return nil, fmt.Errorf("unknown config key %q", key)
		}
		values[key] = strings.TrimSpace(value)
	}
	return values, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// parseBinary accepts "0"/"1" and the on/off aliases
func parseBinary(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "on", "true":
		return true, nil
	case "0", "off", "false":
		return false, nil
	default:
		return false, fmt.Errorf("invalid binary state %q", s)
	}
}

func binary(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

func parseInt(key, s string, lo, hi int) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not an integer", key, s)
	}
	if n < lo || n > hi {
		return 0, fmt.Errorf("%s: %d out of range %d-%d", key, n, lo, hi)
	}
	return n, nil
}
