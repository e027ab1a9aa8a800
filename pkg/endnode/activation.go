// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package endnode

// ActivationDevice is an output owned by an end node. In addition to the
// trigger device operations its state can be commanded.
type ActivationDevice struct {
	TriggerDevice

	stateSetter StateSetter
}

// NewActivationDevice creates an activation device of the given type.
// Any collaborator may be nil; the corresponding operation then fails.
func NewActivationDevice(deviceType string, config ConfigSetter, get StateGetter, set StateSetter) *ActivationDevice {
	d := &ActivationDevice{
		TriggerDevice: TriggerDevice{
			deviceType:   deviceType,
			configSetter: normalizeConfigSetter(config),
			stateGetter:  normalizeStateGetter(get),
			lastState:    UnknownState,
		},
		stateSetter: normalizeStateSetter(set),
	}
	d.SendStateOnNextTransfer()
	return d
}

// NewActivationDeviceWithDriver creates an activation device backed by one driver
func NewActivationDeviceWithDriver(deviceType string, drv ActivationDriver) *ActivationDevice {
	if drv == nil {
		return NewActivationDevice(deviceType, nil, nil, nil)
	}
	return NewActivationDevice(deviceType, drv, drv, drv)
}

// SetState commands a new state. The returned state is the one the driver
// reports after applying the request, which may differ from the request
// (hardware may clamp or reinterpret it).
func (d *ActivationDevice) SetState(state string) (string, error) {
	if d.stateSetter == nil {
		return "", d.fail(msgNullSetState, true)
	}

	newState := d.stateSetter.SetState(state)
	if IsFailure(newState) {
		return "", d.fail(FailureMessage(newState), true)
	}

	d.lastError = ""
	d.lastState = newState
	return newState, nil
}
