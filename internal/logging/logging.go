// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package logging builds the pion logger factory shared by every component.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	plog "github.com/pion/logging"

	"github.com/Thermoquad/endnode/internal/config"
)

// Level names accepted in configuration. "none", "error", "warning" and
// "note" are the end node debug levels; "debug" and "trace" add detail.
var levels = map[string]plog.LogLevel{
	"none":    plog.LogLevelDisabled,
	"error":   plog.LogLevelError,
	"warning": plog.LogLevelWarn,
	"warn":    plog.LogLevelWarn,
	"note":    plog.LogLevelInfo,
	"info":    plog.LogLevelInfo,
	"debug":   plog.LogLevelDebug,
	"trace":   plog.LogLevelTrace,
}

// ParseLevel converts a level name to a pion log level
func ParseLevel(name string) (plog.LogLevel, error) {
	level, ok := levels[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return plog.LogLevelDisabled, fmt.Errorf("unknown log level %q (use none, error, warning, note, debug, or trace)", name)
	}
	return level, nil
}

// NewFactory creates a logger factory writing to w (stderr when nil)
func NewFactory(cfg config.LoggingConfig, w io.Writer) (*plog.DefaultLoggerFactory, error) {
	if w == nil {
		w = os.Stderr
	}

	level := plog.LogLevelInfo
	if cfg.Level != "" {
		l, err := ParseLevel(cfg.Level)
		if err != nil {
			return nil, err
		}
		level = l
	}

	scopes := make(map[string]plog.LogLevel, len(cfg.Scopes))
	for scope, name := range cfg.Scopes {
		l, err := ParseLevel(name)
		if err != nil {
			return nil, fmt.Errorf("scope %s: %w", scope, err)
		}
		scopes[scope] = l
	}

	return &plog.DefaultLoggerFactory{
		Writer:          w,
		DefaultLogLevel: level,
		ScopeLevels:     scopes,
	}, nil
}

// Discard returns a factory whose loggers drop everything
func Discard() *plog.DefaultLoggerFactory {
	return &plog.DefaultLoggerFactory{
		Writer:          io.Discard,
		DefaultLogLevel: plog.LogLevelDisabled,
	}
}
