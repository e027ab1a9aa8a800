// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package endnode

import (
	"strings"
	"testing"
	"time"
)

// ============================================================
// Formatter Tests
// ============================================================

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		ms   uint64
		want string
	}{
		{0, "0 ms"},
		{999, "999 ms"},
		{1000, "1 second"},
		{5000, "5 seconds"},
		{60000, "1 minute"},
		{61000, "1 minute and 1 second"},
		{3661000, "1 hour, 1 minute and 1 second"},
		{2 * 86400000, "2 days"},
	}

	for _, tt := range tests {
		if got := FormatDuration(tt.ms); got != tt.want {
			t.Errorf("FormatDuration(%d) = %q, want %q", tt.ms, got, tt.want)
		}
	}
}

func TestFormatDirection(t *testing.T) {
	tests := []struct {
		snid, tnid int
		want       string
	}{
		{1, 5, "COMMAND"},
		{5, 1, "REPORT"},
		{5, 6, "UNKNOWN"},
	}

	for _, tt := range tests {
		m := &Message{SNID: tt.snid, TNID: tt.tnid}
		if got := FormatDirection(m); got != tt.want {
			t.Errorf("FormatDirection(%d -> %d) = %q, want %q", tt.snid, tt.tnid, got, tt.want)
		}
	}
}

func TestFormatMessage(t *testing.T) {
	m := &Message{
		SNID: 5, TNID: 1, PID: 7, UT: 61000,
		AL: []DeviceEntry{{ID: 1, T: "RLY", S: Text("1")}},
		TL: []DeviceEntry{{ID: 2, T: "BUT", S: Text("?"), ER: "offline"}},
		ER: "TD 2 offline",
	}
	ts := time.Date(2025, 1, 1, 12, 30, 45, 123000000, time.UTC)

	out := FormatMessage(m, ts)

	for _, want := range []string{
		"[12:30:45.123] REPORT 5 -> 1 pid=7 up=1 minute and 1 second",
		`AD 1 RLY state="1"`,
		`TD 2 BUT state="?" error=offline`,
		"Error: TD 2 offline",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("FormatMessage() missing %q:\n%s", want, out)
		}
	}
}

func TestFormatMessage_Command(t *testing.T) {
	out := FormatMessage(NewReadRequest(5, 1, 0, true, 2, "LED"), time.Now())
	if !strings.Contains(out, "COMMAND 1 -> 5") || !strings.Contains(out, "AD 2 LED (read)") {
		t.Errorf("FormatMessage() = %q", out)
	}

	out = FormatMessage(NewCloudCommand(5, 2, 0, "START"), time.Now())
	if !strings.Contains(out, `Command: "START"`) {
		t.Errorf("FormatMessage() = %q", out)
	}
}

// ============================================================
// Validator Tests
// ============================================================

func TestValidateMessage_Clean(t *testing.T) {
	msgs := []*Message{
		NewSetStateCommand(5, 1, 0, 1, "RLY", "1"),
		NewReadRequest(5, 1, 0, false, 3, "BUT"),
		{SNID: 5, TNID: 1, PID: 1, AL: []DeviceEntry{{ID: 1, T: "RLY", S: Text("0")}}},
	}

	for _, m := range msgs {
		if errs := ValidateMessage(m); len(errs) != 0 {
			t.Errorf("ValidateMessage(%s) = %v, want none", m, errs)
		}
	}
}

func TestValidateMessage_Anomalies(t *testing.T) {
	tests := []struct {
		name string
		msg  *Message
		want AnomalyType
	}{
		{"invalid node", &Message{SNID: 0, TNID: 1}, AnomalyInvalidNode},
		{"self addressed", &Message{SNID: 4, TNID: 4}, AnomalySelfAddressed},
		{"node to node", &Message{SNID: 4, TNID: 5}, AnomalyNodeToNode},
		{"duplicate device", &Message{SNID: 1, TNID: 5, AL: []DeviceEntry{{ID: 1, T: "A"}, {ID: 1, T: "A"}}}, AnomalyDuplicateDevice},
		{"invalid device", &Message{SNID: 1, TNID: 5, TL: []DeviceEntry{{ID: 0, T: "A"}}}, AnomalyInvalidDevice},
		{"missing state", &Message{SNID: 5, TNID: 1, TL: []DeviceEntry{{ID: 2, T: "BUT"}}}, AnomalyMissingState},
		{"unknown state", &Message{SNID: 5, TNID: 1, AL: []DeviceEntry{{ID: 1, T: "RLY", S: Text("?")}}}, AnomalyUnknownState},
		{"device error", &Message{SNID: 5, TNID: 1, AL: []DeviceEntry{{ID: 1, T: "RLY", S: Text("1"), ER: "hot"}}}, AnomalyDeviceError},
		{"node error", &Message{SNID: 5, TNID: 1, ER: "Missed packets 2 to 3"}, AnomalyNodeError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := ValidateMessage(tt.msg)
			found := false
			for _, e := range errs {
				if e.Type == tt.want {
					found = true
				}
			}
			if !found {
				t.Errorf("ValidateMessage() = %v, want anomaly %d", errs, tt.want)
			}
		})
	}
}
