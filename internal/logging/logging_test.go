// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package logging

import (
	"bytes"
	"testing"

	plog "github.com/pion/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/endnode/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name string
		want plog.LogLevel
	}{
		{"none", plog.LogLevelDisabled},
		{"error", plog.LogLevelError},
		{"warning", plog.LogLevelWarn},
		{"note", plog.LogLevelInfo},
		{" Debug ", plog.LogLevelDebug},
		{"TRACE", plog.LogLevelTrace},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.name)
		require.NoError(t, err, tt.name)
		assert.Equal(t, tt.want, got, tt.name)
	}

	_, err := ParseLevel("loud")
	assert.ErrorContains(t, err, "unknown log level")
}

func TestNewFactory_Levels(t *testing.T) {
	var buf bytes.Buffer
	factory, err := NewFactory(config.LoggingConfig{
		Level:  "warning",
		Scopes: map[string]string{"runner": "debug"},
	}, &buf)
	require.NoError(t, err)

	node := factory.NewLogger("endnode")
	node.Info("hidden")
	node.Warn("shown-warning")

	runner := factory.NewLogger("runner")
	runner.Debug("shown-debug")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown-warning")
	assert.Contains(t, out, "shown-debug")
}

func TestNewFactory_BadScope(t *testing.T) {
	_, err := NewFactory(config.LoggingConfig{Scopes: map[string]string{"endnode": "shout"}}, nil)
	assert.ErrorContains(t, err, "scope endnode")
}

func TestDiscard(t *testing.T) {
	logger := Discard().NewLogger("endnode")
	logger.Error("nothing happens")
}
