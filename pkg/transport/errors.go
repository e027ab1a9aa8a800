// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import "errors"

// Link errors. Use errors.Is() to check for these in calling code.
var (
	// ErrClosed is returned by operations on a closed link
	ErrClosed = errors.New("transport: link closed")

	// ErrNotConnected is returned when the underlying connection is down
	ErrNotConnected = errors.New("transport: not connected")

	// ErrConnectionFailed is returned when a link cannot be opened
	ErrConnectionFailed = errors.New("transport: connection failed")

	// ErrPublishFailed is returned when an MQTT publish fails
	ErrPublishFailed = errors.New("transport: publish failed")

	// ErrInvalidQoS is returned for an MQTT QoS outside 0-2
	ErrInvalidQoS = errors.New("transport: invalid QoS level (must be 0, 1, or 2)")

	// ErrInvalidTopic is returned for an empty MQTT topic
	ErrInvalidTopic = errors.New("transport: topic cannot be empty")

	// ErrFrameTooLarge is returned when a payload exceeds the framer limit
	ErrFrameTooLarge = errors.New("transport: frame too large")
)
