// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package endnode

import "time"

// Clock is the node's monotonic uptime source, in milliseconds.
// The value wraps at 2^32 like the UT field on the wire.
type Clock interface {
	UptimeMillis() uint32
}

// ClockFunc adapts a plain function to Clock
type ClockFunc func() uint32

// UptimeMillis calls f()
func (f ClockFunc) UptimeMillis() uint32 { return f() }

// MonotonicClock measures uptime from its creation
type MonotonicClock struct {
	start time.Time
}

// NewMonotonicClock starts a clock at zero
func NewMonotonicClock() *MonotonicClock {
	return &MonotonicClock{start: time.Now()}
}

// UptimeMillis returns the milliseconds elapsed since the clock was created
func (c *MonotonicClock) UptimeMillis() uint32 {
	return uint32(time.Since(c.start).Milliseconds())
}
