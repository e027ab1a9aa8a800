// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package endnode

import (
	"fmt"
	"strings"
	"time"
)

// FormatMessage formats a message into a human-readable string
func FormatMessage(m *Message, timestamp time.Time) string {
	result := fmt.Sprintf("[%s] %s %d -> %d pid=%d up=%s\n",
		timestamp.Format("15:04:05.000"), FormatDirection(m), m.SNID, m.TNID, m.PID, FormatDuration(uint64(m.UT)))

	if m.CMD != "" {
		result += fmt.Sprintf("  Command: %q\n", m.CMD)
	}
	for _, e := range m.AL {
		result += "  " + formatEntry(labelActivation, e) + "\n"
	}
	for _, e := range m.TL {
		result += "  " + formatEntry(labelTrigger, e) + "\n"
	}
	if m.ER != "" {
		result += fmt.Sprintf("  Error: %s\n", m.ER)
	}

	return result
}

// FormatDirection names the message direction
func FormatDirection(m *Message) string {
	switch {
	case m.SNID == CoordinatorID:
		return "COMMAND"
	case m.TNID == CoordinatorID:
		return "REPORT"
	default:
		return "UNKNOWN"
	}
}

// formatEntry formats one device entry, e.g. `AD 1 RELAY state="1"`
func formatEntry(label string, e DeviceEntry) string {
	parts := []string{fmt.Sprintf("%s %d %s", label, e.ID, e.T)}
	if e.C != nil {
		parts = append(parts, fmt.Sprintf("config=%q", *e.C))
	}
	if e.S != nil {
		parts = append(parts, fmt.Sprintf("state=%q", *e.S))
	} else if e.C == nil {
		parts = append(parts, "(read)")
	}
	if e.ER != "" {
		parts = append(parts, "error="+e.ER)
	}
	return strings.Join(parts, " ")
}

// FormatDuration formats milliseconds as human-readable uptime
func FormatDuration(ms uint64) string {
	seconds := ms / 1000
	if seconds == 0 {
		return fmt.Sprintf("%d ms", ms)
	}

	const (
		secondsPerMinute = 60
		secondsPerHour   = 60 * secondsPerMinute
		secondsPerDay    = 24 * secondsPerHour
	)

	units := []struct {
		name string
		size uint64
	}{
		{"day", secondsPerDay},
		{"hour", secondsPerHour},
		{"minute", secondsPerMinute},
		{"second", 1},
	}

	parts := []string{}
	for _, u := range units {
		n := seconds / u.size
		seconds %= u.size
		switch {
		case n == 1:
			parts = append(parts, "1 "+u.name)
		case n > 1:
			parts = append(parts, fmt.Sprintf("%d %ss", n, u.name))
		}
	}

	if len(parts) == 1 {
		return parts[0]
	}
	return strings.Join(parts[:len(parts)-1], ", ") + " and " + parts[len(parts)-1]
}
