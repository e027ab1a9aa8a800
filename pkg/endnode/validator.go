// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package endnode

import "fmt"

// AnomalyType represents different types of message anomalies
type AnomalyType int

const (
	AnomalyInvalidNode AnomalyType = iota
	AnomalySelfAddressed
	AnomalyNodeToNode
	AnomalyDuplicateDevice
	AnomalyInvalidDevice
	AnomalyMissingState
	AnomalyUnknownState
	AnomalyDeviceError
	AnomalyNodeError
)

// ValidationError represents a message validation failure
type ValidationError struct {
	Type    AnomalyType
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// ValidateMessage checks a decoded message for protocol anomalies.
// Returns a slice of validation errors (empty if the message looks sane).
func ValidateMessage(m *Message) []ValidationError {
	errors := []ValidationError{}

	if m.SNID < 1 || m.TNID < 1 {
		errors = append(errors, ValidationError{
			Type:    AnomalyInvalidNode,
			Message: fmt.Sprintf("Invalid node ID (SNID=%d, TNID=%d, min 1)", m.SNID, m.TNID),
			Details: map[string]interface{}{"snid": m.SNID, "tnid": m.TNID},
		})
	}

	if m.SNID == m.TNID {
		errors = append(errors, ValidationError{
			Type:    AnomalySelfAddressed,
			Message: fmt.Sprintf("Node %d addressed itself", m.SNID),
			Details: map[string]interface{}{"node": m.SNID},
		})
	} else if m.SNID != CoordinatorID && m.TNID != CoordinatorID {
		errors = append(errors, ValidationError{
			Type:    AnomalyNodeToNode,
			Message: fmt.Sprintf("Message between end nodes %d -> %d", m.SNID, m.TNID),
			Details: map[string]interface{}{"snid": m.SNID, "tnid": m.TNID},
		})
	}

	report := m.TNID == CoordinatorID && m.SNID != CoordinatorID
	errors = append(errors, validateEntries(labelActivation, m.AL, report)...)
	errors = append(errors, validateEntries(labelTrigger, m.TL, report)...)

	if m.ER != "" {
		errors = append(errors, ValidationError{
			Type:    AnomalyNodeError,
			Message: fmt.Sprintf("Node %d reported: %s", m.SNID, m.ER),
			Details: map[string]interface{}{"node": m.SNID, "error": m.ER},
		})
	}

	return errors
}

// validateEntries checks one device list
func validateEntries(label string, entries []DeviceEntry, report bool) []ValidationError {
	errors := []ValidationError{}
	seen := make(map[int]bool, len(entries))

	for _, e := range entries {
		if e.ID < 1 {
			errors = append(errors, ValidationError{
				Type:    AnomalyInvalidDevice,
				Message: fmt.Sprintf("%s has invalid ID %d (min 1)", label, e.ID),
				Details: map[string]interface{}{"id": e.ID},
			})
		}
		if seen[e.ID] {
			errors = append(errors, ValidationError{
				Type:    AnomalyDuplicateDevice,
				Message: fmt.Sprintf("%s %d listed more than once", label, e.ID),
				Details: map[string]interface{}{"id": e.ID},
			})
		}
		seen[e.ID] = true

		if !report {
			continue
		}
		switch {
		case e.S == nil:
			errors = append(errors, ValidationError{
				Type:    AnomalyMissingState,
				Message: fmt.Sprintf("%s %d reported without state", label, e.ID),
				Details: map[string]interface{}{"id": e.ID},
			})
		case *e.S == UnknownState:
			errors = append(errors, ValidationError{
				Type:    AnomalyUnknownState,
				Message: fmt.Sprintf("%s %d (%s) state unknown", label, e.ID, e.T),
				Details: map[string]interface{}{"id": e.ID, "type": e.T},
			})
		}
		if e.ER != "" {
			errors = append(errors, ValidationError{
				Type:    AnomalyDeviceError,
				Message: fmt.Sprintf("%s %d (%s) error: %s", label, e.ID, e.T, e.ER),
				Details: map[string]interface{}{"id": e.ID, "type": e.T, "error": e.ER},
			})
		}
	}

	return errors
}
