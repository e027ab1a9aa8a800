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
// Button
//////////////////////////////////////////////////////////////

// Button is a contact input: "1" closed, "0" open. With invert=1 the
// reported state is the opposite of the contact, which suits a normally
// closed switch such as a book resting on a shelf.
type Button struct {
	base
	closed   bool
	invert   bool
	lastSeen bool
}

// NewButton creates an open button
func NewButton() *Button {
	return &Button{base: base{fault: faultNone}}
}

// Name returns "button"
func (b *Button) Name() string { return "button" }

// SetConfig accepts "invert=<0|1>" and "fault=<none|read|write>"
func (b *Button) SetConfig(config string) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	values, err := parseConfig(config, "invert", "fault")
	if err != nil {
		return endnode.Failure(err.Error())
	}

	invert := b.invert
	if v, ok := values["invert"]; ok {
		if invert, err = parseBinary(v); err != nil {
			return endnode.Failure(err.Error())
		}
	}
	if v, ok := values["fault"]; ok {
		if err := b.applyFault(v); err != nil {
			return endnode.Failure(err.Error())
		}
	}
	b.invert = invert
	return ""
}

// GetState returns "0" or "1"
func (b *Button) GetState() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.readFault() {
		return endnode.Failure("contact bounce")
	}
	return binary(b.value())
}

// Stimulate accepts "press", "release", "toggle", "1" or "0"
func (b *Button) Stimulate(input string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch strings.ToLower(strings.TrimSpace(input)) {
	case "press":
		b.closed = true
	case "release":
		b.closed = false
	case "toggle":
		b.closed = !b.closed
	default:
		v, err := parseBinary(input)
		if err != nil {
			return err
		}
		b.closed = v
	}
	return nil
}

// Changed reports whether the reported state changed since the last call
func (b *Button) Changed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	cur := b.value()
	changed := cur != b.lastSeen
	b.lastSeen = cur
	return changed
}

func (b *Button) value() bool {
	return b.closed != b.invert
}

//////////////////////////////////////////////////////////////
// Step mat
//////////////////////////////////////////////////////////////

// StepMat is a pressure mat: "1" while stepped on. With latch=1 it stays
// "1" after the first step until the latch is released by config.
type StepMat struct {
	base
	pressed  bool
	latch    bool
	latched  bool
	lastSeen bool
}

// NewStepMat creates an idle step mat
func NewStepMat() *StepMat {
	return &StepMat{base: base{fault: faultNone}}
}

// Name returns "step"
func (s *StepMat) Name() string { return "step" }

// SetConfig accepts "latch=<0|1>" and "fault=<none|read|write>".
// Setting latch=0 also releases a held latch.
func (s *StepMat) SetConfig(config string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := parseConfig(config, "latch", "fault")
	if err != nil {
		return endnode.Failure(err.Error())
	}

	latch := s.latch
	if v, ok := values["latch"]; ok {
		if latch, err = parseBinary(v); err != nil {
			return endnode.Failure(err.Error())
		}
	}
	if v, ok := values["fault"]; ok {
		if err := s.applyFault(v); err != nil {
			return endnode.Failure(err.Error())
		}
	}

	s.latch = latch
	if !s.latch {
		s.latched = false
	}
	return ""
}

// GetState returns "0" or "1"
func (s *StepMat) GetState() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.readFault() {
		return endnode.Failure("mat sensor open circuit")
	}
	return binary(s.value())
}

// Stimulate accepts "1"/"on" for a step and "0"/"off" for stepping off
func (s *StepMat) Stimulate(input string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, err := parseBinary(input)
	if err != nil {
		return err
	}
	s.pressed = v
	if v && s.latch {
		s.latched = true
	}
	return nil
}

// Changed reports whether the state changed since the last call
func (s *StepMat) Changed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.value()
	changed := cur != s.lastSeen
	s.lastSeen = cur
	return changed
}

func (s *StepMat) value() bool {
	return s.pressed || s.latched
}

//////////////////////////////////////////////////////////////
// Light sensor
//////////////////////////////////////////////////////////////

// Light sensor limits
const (
	LightMax              = 1023
	DefaultLightThreshold = 500
)

// LightSensor reports "Lvl:<level>,Trig:<0|1>". Trig is 1 when the level is
// at or above the threshold. Only changes of Trig count as state changes.
type LightSensor struct {
	base
	level     int
	threshold int
	lastTrig  bool
}

// NewLightSensor creates a dark sensor with the default threshold
func NewLightSensor() *LightSensor {
	return &LightSensor{base: base{fault: faultNone}, threshold: DefaultLightThreshold}
}

// Name returns "light"
func (l *LightSensor) Name() string { return "light" }

// SetConfig accepts "threshold=<0-1023>" and "fault=<none|read|write>"
func (l *LightSensor) SetConfig(config string) string {
	l.mu.Lock()
	defer l.mu.Unlock()

	values, err := parseConfig(config, "threshold", "fault")
	if err != nil {
		return endnode.Failure(err.Error())
	}

	threshold := l.threshold
	if v, ok := values["threshold"]; ok {
		if threshold, err = parseInt("threshold", v, 0, LightMax); err != nil {
			return endnode.Failure(err.Error())
		}
	}
	if v, ok := values["fault"]; ok {
		if err := l.applyFault(v); err != nil {
			return endnode.Failure(err.Error())
		}
	}
	l.threshold = threshold
	return ""
}

// GetState returns the level and trigger flag
func (l *LightSensor) GetState() string {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.readFault() {
		return endnode.Failure("ADC read timeout")
	}
	return fmt.Sprintf("Lvl:%d,Trig:%s", l.level, binary(l.triggered()))
}

// Stimulate sets the measured light level (0-1023)
func (l *LightSensor) Stimulate(input string) error {
	level, err := strconv.Atoi(strings.TrimSpace(input))
	if err != nil {
		return fmt.Errorf("invalid light level %q", input)
	}
	if level < 0 || level > LightMax {
		return fmt.Errorf("light level %d out of range 0-%d", level, LightMax)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
	return nil
}

// Changed reports whether the trigger flag changed since the last call
func (l *LightSensor) Changed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	cur := l.triggered()
	changed := cur != l.lastTrig
	l.lastTrig = cur
	return changed
}

func (l *LightSensor) triggered() bool {
	return l.level >= l.threshold
}
