// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"fmt"

	"github.com/pion/logging"
	"go.bug.st/serial"
)

// SerialConfig configures a serial link to a UART gateway
type SerialConfig struct {
	Port     string
	BaudRate int
	Framer   Framer // Defaults to LineFramer

	LoggerFactory logging.LoggerFactory
}

// OpenSerial opens a serial port as a Link
func OpenSerial(cfg SerialConfig) (*StreamLink, error) {
	if cfg.Port == "" {
		return nil, fmt.Errorf("%w: no serial port given", ErrConnectionFailed)
	}
	if cfg.BaudRate <= 0 {
		cfg.BaudRate = 115200
	}
	if cfg.Framer == nil {
		cfg.Framer = LineFramer{}
	}

	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(cfg.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open serial port %s: %v", ErrConnectionFailed, cfg.Port, err)
	}

	desc := fmt.Sprintf("Serial: %s @ %d baud (%s framing)", cfg.Port, cfg.BaudRate, cfg.Framer.Name())
	return NewStreamLink(port, cfg.Framer, desc, cfg.LoggerFactory), nil
}

// ListSerialPorts returns the serial ports present on the system
func ListSerialPorts() ([]string, error) {
	return serial.GetPortsList()
}
