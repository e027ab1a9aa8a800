// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package driver

import (
	"fmt"

	"github.com/Thermoquad/endnode/internal/config"
	"github.com/Thermoquad/endnode/pkg/endnode"
)

// Bank is the set of devices of one end node together with their drivers
type Bank struct {
	Activation []*endnode.ActivationDevice
	Trigger    []*endnode.TriggerDevice

	entries []bankEntry
}

type bankEntry struct {
	device *endnode.TriggerDevice
	driver Driver
}

// Build creates devices and drivers from configuration. A non-empty device
// config is applied to the driver before the device is created.
func Build(cfg config.DevicesConfig) (*Bank, error) {
	b := &Bank{}

	for i, dc := range cfg.Activation {
		drv, err := newConfigured(dc)
		if err != nil {
			return nil, fmt.Errorf("activation device %d (%s): %w", i+1, dc.Type, err)
		}
		ad, ok := drv.(endnode.ActivationDriver)
		if !ok {
			return nil, fmt.Errorf("activation device %d (%s): driver %s is input only", i+1, dc.Type, drv.Name())
		}
		dev := endnode.NewActivationDeviceWithDriver(dc.Type, ad)
		b.Activation = append(b.Activation, dev)
		b.entries = append(b.entries, bankEntry{device: &dev.TriggerDevice, driver: drv})
	}

	for i, dc := range cfg.Trigger {
		drv, err := newConfigured(dc)
		if err != nil {
			return nil, fmt.Errorf("trigger device %d (%s): %w", i+1, dc.Type, err)
		}
		dev := endnode.NewTriggerDeviceWithDriver(dc.Type, drv)
		b.Trigger = append(b.Trigger, dev)
		b.entries = append(b.entries, bankEntry{device: dev, driver: drv})
	}

	return b, nil
}

func newConfigured(dc config.DeviceConfig) (Driver, error) {
	drv, err := New(dc.Driver)
	if err != nil {
		return nil, err
	}
	if dc.Config != "" {
		if result := drv.SetConfig(dc.Config); endnode.IsFailure(result) {
			return nil, fmt.Errorf("config %q: %s", dc.Config, endnode.FailureMessage(result))
		}
	}
	return drv, nil
}

// Poll checks every change-detecting driver and requests a state report for
// each device whose state changed. It returns the number of devices flagged.
func (b *Bank) Poll() int {
	flagged := 0
	for _, e := range b.entries {
		cd, ok := e.driver.(ChangeDetector)
		if !ok || !cd.Changed() {
			continue
		}
		e.device.SendStateOnNextTransfer()
		flagged++
	}
	return flagged
}

// Driver returns the driver behind the device with the given ID, or nil.
// IDs are assigned when the bank's devices are handed to an end node.
func (b *Bank) Driver(deviceID int) Driver {
	for _, e := range b.entries {
		if e.device.ID() == deviceID {
			return e.driver
		}
	}
	return nil
}

// Stimulate feeds simulated input to the driver of a device
func (b *Bank) Stimulate(deviceID int, input string) error {
	drv := b.Driver(deviceID)
	if drv == nil {
		return fmt.Errorf("no device with ID %d", deviceID)
	}
	s, ok := drv.(Stimulator)
	if !ok {
		return fmt.Errorf("device %d (%s driver) does not accept input", deviceID, drv.Name())
	}
	return s.Stimulate(input)
}
