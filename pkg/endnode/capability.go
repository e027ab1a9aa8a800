// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package endnode

// Device drivers are plugged into devices through small capability
// interfaces. Results follow the string convention described in sentinel.go:
// a driver reports a failure by returning Failure(msg).

// ConfigSetter applies a configuration string to a device.
// Must return "" on success. On failure the configuration must not change.
type ConfigSetter interface {
	SetConfig(config string) string
}

// StateGetter reads the current device state
type StateGetter interface {
	GetState() string
}

// StateSetter commands a new device state and returns the resulting state.
// On failure the driver must try to restore the previous state.
type StateSetter interface {
	SetState(state string) string
}

// TriggerDriver is implemented by input device drivers
type TriggerDriver interface {
	ConfigSetter
	StateGetter
}

// ActivationDriver is implemented by output device drivers
type ActivationDriver interface {
	TriggerDriver
	StateSetter
}

// ConfigFunc adapts a plain function to ConfigSetter
type ConfigFunc func(config string) string

// SetConfig calls f(config)
func (f ConfigFunc) SetConfig(config string) string { return f(config) }

// StateGetFunc adapts a plain function to StateGetter
type StateGetFunc func() string

// GetState calls f()
func (f StateGetFunc) GetState() string { return f() }

// StateSetFunc adapts a plain function to StateSetter
type StateSetFunc func(state string) string

// SetState calls f(state)
func (f StateSetFunc) SetState(state string) string { return f(state) }

// A nil function wrapped in an adapter is still a non-nil interface value.
// These normalize it back to nil so the device reports the missing collaborator.

func normalizeConfigSetter(c ConfigSetter) ConfigSetter {
	if f, ok := c.(ConfigFunc); ok && f == nil {
		return nil
	}
	return c
}

func normalizeStateGetter(g StateGetter) StateGetter {
	if f, ok := g.(StateGetFunc); ok && f == nil {
		return nil
	}
	return g
}

func normalizeStateSetter(s StateSetter) StateSetter {
	if f, ok := s.(StateSetFunc); ok && f == nil {
		return nil
	}
	return s
}
