// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	plog "github.com/pion/logging"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/endnode/internal/config"
	"github.com/Thermoquad/endnode/internal/logging"
	"github.com/Thermoquad/endnode/pkg/endnode"
)

var (
	configPath string
	logLevel   string

	// Serial connection flags
	portName string
	baudRate int
	framing  string

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// MQTT connection flags
	mqttBroker string
	mqttTopic  string
)

var rootCmd = &cobra.Command{
	Use:   "endnode",
	Short: "Escape room end node and coordinator tools",
	Long: `Endnode - run, monitor and exercise escape room end nodes.

An end node owns a fixed set of activation devices (outputs the coordinator
can command) and trigger devices (inputs it reports). Nodes and the
coordinator exchange small documents over a shared broadcast link.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 115200] [--framing line|stuffed]
  WebSocket: --url ws://host/path [--username user]
  MQTT:      --broker host[:port] [--topic escaperoom/link]

Without a connection flag the transport section of --config is used.

For WebSocket authentication, the password is read from the ENDNODE_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:       "1.0.0",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (none, error, warning, note, debug, trace)")

	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 0, "Baud rate (serial only, default 115200)")
	rootCmd.PersistentFlags().StringVar(&framing, "framing", "", "Serial framing: line or stuffed")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	// MQTT connection flags
	rootCmd.PersistentFlags().StringVar(&mqttBroker, "broker", "", "MQTT broker host[:port]")
	rootCmd.PersistentFlags().StringVar(&mqttTopic, "topic", "", "MQTT link topic")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig loads --config and applies the command-line overrides
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if baudRate != 0 {
		cfg.Transport.Serial.Baud = baudRate
	}
	if framing != "" {
		cfg.Transport.Serial.Framing = framing
	}
	if mqttTopic != "" {
		cfg.Transport.MQTT.Topic = mqttTopic
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLoggerFactory builds the shared logger factory from configuration
func newLoggerFactory(cfg *config.Config) (plog.LoggerFactory, error) {
	factory, err := logging.NewFactory(cfg.Logging, nil)
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}
	return factory, nil
}

// codecFor returns the configured document codec
func codecFor(cfg *config.Config) (endnode.Codec, error) {
	return endnode.CodecByName(cfg.Node.Codec)
}
