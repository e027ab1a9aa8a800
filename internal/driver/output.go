// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package driver

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Thermoquad/endnode/pkg/endnode"
)

//////////////////////////////////////////////////////////////
// Relay (switched outlet)
//////////////////////////////////////////////////////////////

// Relay is a two-state output: "0" off, "1" on
type Relay struct {
	base
	on bool
}

// NewRelay creates a relay in the off state
func NewRelay() *Relay {
	return &Relay{base: base{fault: faultNone}}
}

// Name returns "relay"
func (r *Relay) Name() string { return "relay" }

// SetConfig accepts "fault=<none|read|write>"
func (r *Relay) SetConfig(config string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	values, err := parseConfig(config, "fault")
	if err != nil {
		return endnode.Failure(err.Error())
	}
	if v, ok := values["fault"]; ok {
		if err := r.applyFault(v); err != nil {
			return endnode.Failure(err.Error())
		}
	}
	return ""
}

// GetState returns "0" or "1"
func (r *Relay) GetState() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.readFault() {
		return endnode.Failure("relay feedback lost")
	}
	return binary(r.on)
}

// SetState switches the relay and returns the new state
func (r *Relay) SetState(state string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	on, err := parseBinary(state)
	if err != nil {
		return endnode.Failure(err.Error())
	}
	if r.writeFault() {
		return endnode.Failure("relay did not switch")
	}
	r.on = on
	return binary(r.on)
}

//////////////////////////////////////////////////////////////
// Dimmer (LED string)
//////////////////////////////////////////////////////////////

// DimmerMax is the default brightness ceiling
const DimmerMax = 255

// Dimmer is a brightness output. Requested levels are clamped to 0..max and
// the clamped level is returned as the authoritative state.
type Dimmer struct {
	base
	level int
	max   int
}

// NewDimmer creates a dimmer at level 0
func NewDimmer() *Dimmer {
	return &Dimmer{base: base{fault: faultNone}, max: DimmerMax}
}

// Name returns "dimmer"
func (d *Dimmer) Name() string { return "dimmer" }

// SetConfig accepts "max=<1-255>" and "fault=<none|read|write>". Nothing
// changes unless every item is valid.
func (d *Dimmer) SetConfig(config string) string {
	d.mu.Lock()
	defer d.mu.Unlock()

	values, err := parseConfig(config, "max", "fault")
	if err != nil {
		return endnode.Failure(err.Error())
	}

	ceiling := d.max
	if v, ok := values["max"]; ok {
		if ceiling, err = parseInt("max", v, 1, DimmerMax); err != nil {
			return endnode.Failure(err.Error())
		}
	}
	if v, ok := values["fault"]; ok {
		if err := d.applyFault(v); err != nil {
			return endnode.Failure(err.Error())
		}
	}

	d.max = ceiling
	if d.level > d.max {
		d.level = d.max
	}
	return ""
}

// GetState returns the level as a decimal string
func (d *Dimmer) GetState() string {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.readFault() {
		return endnode.Failure("dimmer not responding")
	}
	return strconv.Itoa(d.level)
}

// SetState sets the level. "on" and "off" map to max and 0.
func (d *Dimmer) SetState(state string) string {
	d.mu.Lock()
	defer d.mu.Unlock()

	level, err := d.parseLevel(state)
	if err != nil {
		return endnode.Failure(err.Error())
	}
	if d.writeFault() {
		return endnode.Failure("dimmer not responding")
	}

	if level < 0 {
		level = 0
	}
	if level > d.max {
		level = d.max
	}
	d.level = level
	return strconv.Itoa(d.level)
}

func (d *Dimmer) parseLevel(state string) (int, error) {
	s := strings.ToLower(strings.TrimSpace(state))
	switch s {
	case "on":
		return d.max, nil
	case "off":
		return 0, nil
	}
	level, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid level %q", state)
	}
	return level, nil
}
