// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package endnode

// Missing collaborator messages
const (
	msgNullSetConfig = "null SetConfigFunc"
	msgNullGetState  = "null GetStateFunc"
	msgNullSetState  = "null SetStateFunc"
)

// TriggerDevice is an input owned by an end node. Its state can be read and
// reported but not commanded. ActivationDevice extends it with SetState.
type TriggerDevice struct {
	deviceType string
	id         int // 0 until assigned

	configSetter ConfigSetter
	stateGetter  StateGetter

	sendRequested bool
	lastState     string
	lastError     string
}

// NewTriggerDevice creates a trigger device of the given type.
// Either collaborator may be nil; the corresponding operation then fails.
func NewTriggerDevice(deviceType string, config ConfigSetter, state StateGetter) *TriggerDevice {
	d := &TriggerDevice{
		deviceType:   deviceType,
		configSetter: normalizeConfigSetter(config),
		stateGetter:  normalizeStateGetter(state),
		lastState:    UnknownState,
	}
	// Report the initial state on first contact with the coordinator
	d.SendStateOnNextTransfer()
	return d
}

// NewTriggerDeviceWithDriver creates a trigger device backed by one driver
func NewTriggerDeviceWithDriver(deviceType string, drv TriggerDriver) *TriggerDevice {
	if drv == nil {
		return NewTriggerDevice(deviceType, nil, nil)
	}
	return NewTriggerDevice(deviceType, drv, drv)
}

// SetID assigns the device identity. It succeeds only once, and only for id >= 1.
func (d *TriggerDevice) SetID(id int) bool {
	if d.id != 0 || id < 1 {
		return false
	}
	d.id = id
	return true
}

// ID returns the device identity (0 if not yet assigned)
func (d *TriggerDevice) ID() int {
	return d.id
}

// Type returns the device type tag
func (d *TriggerDevice) Type() string {
	return d.deviceType
}

// ErrorString returns the last collaborator error ("" if none)
func (d *TriggerDevice) ErrorString() string {
	return d.lastError
}

// LastState returns the most recently read or set state ("?" if unknown)
func (d *TriggerDevice) LastState() string {
	return d.lastState
}

// SendStateRequested reports whether the device state goes out on the next transfer
func (d *TriggerDevice) SendStateRequested() bool {
	return d.sendRequested
}

// SendStateOnNextTransfer queues the device state for the next outbound message
func (d *TriggerDevice) SendStateOnNextTransfer() {
	d.sendRequested = true
}

// SetConfig applies a configuration through the config collaborator
func (d *TriggerDevice) SetConfig(config string) error {
	if d.configSetter == nil {
		return d.fail(msgNullSetConfig, false)
	}

	res := d.configSetter.SetConfig(config)
	if IsFailure(res) {
		return d.fail(FailureMessage(res), false)
	}

	d.lastError = ""
	return nil
}

// GetState reads the current state through the state collaborator
func (d *TriggerDevice) GetState() (string, error) {
	if d.stateGetter == nil {
		return "", d.fail(msgNullGetState, true)
	}

	state := d.stateGetter.GetState()
	if IsFailure(state) {
		return "", d.fail(FailureMessage(state), true)
	}

	d.lastError = ""
	d.lastState = state
	return state, nil
}

// GetStateAndClearRequest reads the state and clears the send request.
// The request is cleared even if the read fails: it records that an update
// was asked for, not that one succeeded.
func (d *TriggerDevice) GetStateAndClearRequest() (string, error) {
	state, err := d.GetState()
	d.sendRequested = false
	return state, err
}

// fail records a collaborator failure and queues a reply to the coordinator
func (d *TriggerDevice) fail(msg string, stateUnknown bool) error {
	d.lastError = msg
	if stateUnknown {
		d.lastState = UnknownState
	}
	d.SendStateOnNextTransfer()
	return newError(KindDevice, msg)
}
