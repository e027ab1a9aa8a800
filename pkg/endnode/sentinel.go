// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package endnode

import "strings"

// Device drivers report results as plain strings: anything starting with
// FailurePrefix is a failure, everything else (including "") is a success.
// These helpers translate between that convention and Go errors.

// IsFailure reports whether a collaborator result is a failure
func IsFailure(s string) bool {
	return strings.HasPrefix(s, FailurePrefix)
}

// FailureMessage returns the human-readable part of a failure result.
// The sentinel and one following delimiter (space, tab or colon) are removed.
// Non-failure strings are returned unchanged.
func FailureMessage(s string) string {
	if !IsFailure(s) {
		return s
	}
	rest := s[len(FailurePrefix):]
	if len(rest) > 0 && (rest[0] == ' ' || rest[0] == '\t' || rest[0] == ':') {
		rest = rest[1:]
	}
	return rest
}

// Failure formats msg as a collaborator failure result
func Failure(msg string) string {
	return FailurePrefix + " " + msg
}
