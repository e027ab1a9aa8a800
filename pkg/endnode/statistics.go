// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package endnode

import (
	"fmt"
	"time"
)

// Statistics tracks message counts and error rates of one end node
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	Received         uint64 // Every payload handed to Parse
	Addressed        uint64 // Payloads whose TNID matched this node
	Ignored          uint64 // Payloads for other nodes
	Accepted         uint64 // Addressed payloads with a new PID
	Duplicates       uint64
	GapEvents        uint64 // Accepted payloads that skipped PIDs
	MissedMessages   uint64 // Total number of skipped PIDs
	DecodeErrors     uint64
	StructuralErrors uint64
	DeviceErrors     uint64
	Transmitted      uint64

	// Rates (calculated)
	MessageRate float64 // received/sec
	ErrorRate   float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// recordError counts a Parse failure by kind
func (s *Statistics) recordError(kind Kind) {
	switch kind {
	case KindDecode:
		s.DecodeErrors++
	case KindStructure:
		s.StructuralErrors++
	case KindDuplicate:
		s.Duplicates++
	case KindDevice:
		s.DeviceErrors++
	}
	s.LastUpdateTime = time.Now()
}

// recordGap counts a sequence gap of missed messages
func (s *Statistics) recordGap(missed uint32) {
	s.GapEvents++
	s.MissedMessages += uint64(missed)
}

// Errors returns the total number of failed parses
func (s *Statistics) Errors() uint64 {
	return s.DecodeErrors + s.StructuralErrors + s.Duplicates + s.DeviceErrors
}

// CalculateRates calculates message and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.MessageRate = float64(s.Received) / elapsed
		s.ErrorRate = float64(s.Errors()) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	var addressedPercent, errorPercent float64
	if s.Received > 0 {
		addressedPercent = float64(s.Addressed) * 100.0 / float64(s.Received)
		errorPercent = float64(s.Errors()) * 100.0 / float64(s.Received)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Received:        %8d\n", s.Received)
	result += fmt.Sprintf("Addressed:       %8d (%.1f%%)\n", s.Addressed, addressedPercent)
	result += fmt.Sprintf("Accepted:        %8d\n", s.Accepted)
	result += fmt.Sprintf("Transmitted:     %8d\n", s.Transmitted)

	if s.Errors() > 0 {
		result += fmt.Sprintf("Errors:          %8d (%.1f%%)\n", s.Errors(), errorPercent)
		if s.DecodeErrors > 0 {
			result += fmt.Sprintf("  Decode:           %5d\n", s.DecodeErrors)
		}
		if s.StructuralErrors > 0 {
			result += fmt.Sprintf("  Structure:        %5d\n", s.StructuralErrors)
		}
		if s.Duplicates > 0 {
			result += fmt.Sprintf("  Duplicate PID:    %5d\n", s.Duplicates)
		}
		if s.DeviceErrors > 0 {
			result += fmt.Sprintf("  Device:           %5d\n", s.DeviceErrors)
		}
	}
	if s.GapEvents > 0 {
		result += fmt.Sprintf("Sequence Gaps:   %8d (%d missed)\n", s.GapEvents, s.MissedMessages)
	}

	result += fmt.Sprintf("Message Rate:    %8.1f msgs/sec\n", s.MessageRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = *NewStatistics()
}
