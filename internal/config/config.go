// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads the end node and coordinator configuration.
//
// Values are resolved in order: built-in defaults, the YAML file, then
// ENDNODE_* environment variables. Command-line flags are applied last by
// the caller.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure
type Config struct {
	Node       NodeConfig       `yaml:"node"`
	Transport  TransportConfig  `yaml:"transport"`
	Timing     TimingConfig     `yaml:"timing"`
	Logging    LoggingConfig    `yaml:"logging"`
	Devices    DevicesConfig    `yaml:"devices"`
	Flow       []FlowStage      `yaml:"flow"`
	Simulation SimulationConfig `yaml:"simulation"`
}

// NodeConfig identifies the local end node
type NodeConfig struct {
	ID    int    `yaml:"id"`
	Codec string `yaml:"codec"`
}

// TransportConfig selects and configures the link
type TransportConfig struct {
	Kind      string          `yaml:"kind"`
	Serial    SerialConfig    `yaml:"serial"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
}

// SerialConfig contains serial port settings
type SerialConfig struct {
	Port    string `yaml:"port"`
	Baud    int    `yaml:"baud"`
	Framing string `yaml:"framing"`
}

// WebSocketConfig contains WebSocket gateway settings
type WebSocketConfig struct {
	URL        string `yaml:"url"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	SkipVerify bool   `yaml:"skip_verify"`
	Binary     bool   `yaml:"binary"`
}

// MQTTConfig contains MQTT broker settings
type MQTTConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
	QoS      int    `yaml:"qos"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// TimingConfig contains loop cadences in milliseconds
type TimingConfig struct {
	PollIntervalMS      int `yaml:"poll_interval_ms"`
	HeartbeatIntervalMS int `yaml:"heartbeat_interval_ms"`
}

// PollInterval returns the device poll cadence
func (t TimingConfig) PollInterval() time.Duration {
	return time.Duration(t.PollIntervalMS) * time.Millisecond
}

// HeartbeatInterval returns the unsolicited full report cadence.
// Zero disables heartbeats.
func (t TimingConfig) HeartbeatInterval() time.Duration {
	return time.Duration(t.HeartbeatIntervalMS) * time.Millisecond
}

// LoggingConfig contains log levels. Scopes overrides the level per logger
// scope, e.g. {"transport-mqtt": "debug"}.
type LoggingConfig struct {
	Level  string            `yaml:"level"`
	Scopes map[string]string `yaml:"scopes"`
}

// DevicesConfig lists the local devices. Activation devices take IDs first.
type DevicesConfig struct {
	Activation []DeviceConfig `yaml:"activation"`
	Trigger    []DeviceConfig `yaml:"trigger"`
}

// DeviceConfig describes one device and the driver behind it
type DeviceConfig struct {
	Type   string `yaml:"type"`
	Driver string `yaml:"driver"`
	Config string `yaml:"config"`
}

// FlowStage is one step of the room's linear puzzle flow. The stage fires
// when node Node reports trigger device Device with a state equal to State,
// or containing Contains when State is empty.
type FlowStage struct {
	Name     string       `yaml:"name"`
	Node     int          `yaml:"node"`
	Device   int          `yaml:"device"`
	State    string       `yaml:"state"`
	Contains string       `yaml:"contains"`
	Actions  []FlowAction `yaml:"actions"`
}

// FlowAction sets the state of an activation device on a node
type FlowAction struct {
	Node   int    `yaml:"node"`
	Device int    `yaml:"device"`
	Type   string `yaml:"type"`
	State  string `yaml:"state"`
}

// SimulationConfig describes the in-process room used by `simulate`
type SimulationConfig struct {
	DropRate float64         `yaml:"drop_rate"`
	Seed     int64           `yaml:"seed"`
	Nodes    []SimulatedNode `yaml:"nodes"`
	Script   []ScriptStep    `yaml:"script"`
}

// ScriptStep is one scripted device input fed to a simulated node
type ScriptStep struct {
	DelayMS int    `yaml:"delay_ms"`
	Node    int    `yaml:"node"`
	Device  int    `yaml:"device"`
	Input   string `yaml:"input"`
}

// Delay returns DelayMS as a duration
func (s ScriptStep) Delay() time.Duration {
	return time.Duration(s.DelayMS) * time.Millisecond
}

// SimulatedNode is one simulated end node
type SimulatedNode struct {
	ID      int           `yaml:"id"`
	Devices DevicesConfig `yaml:"devices"`
}

// Load reads configuration from path. An empty path yields the defaults with
// environment overrides applied.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config with the demo room defaults
func Default() *Config {
	return &Config{
		Node: NodeConfig{
			ID:    2,
			Codec: "json",
		},
		Transport: TransportConfig{
			Kind: "serial",
			Serial: SerialConfig{
				Baud:    115200,
				Framing: "line",
			},
			MQTT: MQTTConfig{
				Host:  "localhost",
				Port:  1883,
				Topic: "escaperoom/link",
				QoS:   1,
			},
		},
		Timing: TimingConfig{
			PollIntervalMS:      50,
			HeartbeatIntervalMS: 5000,
		},
		Logging: LoggingConfig{
			Level: "note",
		},
		Flow: []FlowStage{
			{
				Name: "step", Node: 7, Device: 1, State: "1",
				Actions: []FlowAction{{Node: 4, Device: 1, Type: "SO", State: "1"}},
			},
			{
				Name: "light", Node: 3, Device: 1, Contains: "Trig:1",
				Actions: []FlowAction{{Node: 6, Device: 1, Type: "LED", State: "1"}},
			},
			{
				Name: "book", Node: 5, Device: 1, State: "0",
			},
		},
		Simulation: SimulationConfig{
			Seed: 1,
			Nodes: []SimulatedNode{
				{ID: 3, Devices: DevicesConfig{Trigger: []DeviceConfig{{Type: "light", Driver: "light", Config: "threshold=500"}}}},
				{ID: 4, Devices: DevicesConfig{Activation: []DeviceConfig{{Type: "SO", Driver: "relay"}}}},
				{ID: 5, Devices: DevicesConfig{Trigger: []DeviceConfig{{Type: "BUTN", Driver: "button"}}}},
				{ID: 6, Devices: DevicesConfig{Activation: []DeviceConfig{{Type: "LED", Driver: "dimmer"}}}},
				{ID: 7, Devices: DevicesConfig{Trigger: []DeviceConfig{{Type: "STEP", Driver: "step"}}}},
			},
			Script: []ScriptStep{
				{DelayMS: 500, Node: 5, Device: 1, Input: "1"},
				{DelayMS: 500, Node: 7, Device: 1, Input: "1"},
				{DelayMS: 500, Node: 3, Device: 1, Input: "900"},
				{DelayMS: 500, Node: 5, Device: 1, Input: "0"},
			},
		},
	}
}

// applyEnvOverrides applies ENDNODE_* environment variables
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("ENDNODE_NODE_ID"); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ENDNODE_NODE_ID: %w", err)
		}
		cfg.Node.ID = id
	}

	// Transport
	if v := os.Getenv("ENDNODE_SERIAL_PORT"); v != "" {
		cfg.Transport.Serial.Port = v
	}
	if v := os.Getenv("ENDNODE_WS_URL"); v != "" {
		cfg.Transport.WebSocket.URL = v
	}
	if v := os.Getenv("ENDNODE_MQTT_HOST"); v != "" {
		cfg.Transport.MQTT.Host = v
	}
	if v := os.Getenv("ENDNODE_MQTT_USERNAME"); v != "" {
		cfg.Transport.MQTT.Username = v
	}
	if v := os.Getenv("ENDNODE_MQTT_PASSWORD"); v != "" {
		cfg.Transport.MQTT.Password = v
	}

	if v := os.Getenv("ENDNODE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	return nil
}

// Validate checks the configuration and reports every problem found
func (c *Config) Validate() error {
	var errs []string

	// Node 1 is the coordinator
	if c.Node.ID < 2 {
		errs = append(errs, "node.id must be at least 2")
	}
	switch c.Node.Codec {
	case "json", "cbor":
	default:
		errs = append(errs, fmt.Sprintf("node.codec %q must be json or cbor", c.Node.Codec))
	}

	switch c.Transport.Kind {
	case "serial", "websocket", "mqtt":
	default:
		errs = append(errs, fmt.Sprintf("transport.kind %q must be serial, websocket, or mqtt", c.Transport.Kind))
	}
	if c.Transport.Serial.Baud < 1 {
		errs = append(errs, "transport.serial.baud must be positive")
	}
	switch c.Transport.Serial.Framing {
	case "line", "stuffed":
	default:
		errs = append(errs, fmt.Sprintf("transport.serial.framing %q must be line or stuffed", c.Transport.Serial.Framing))
	}
	if c.Transport.MQTT.Port < 1 || c.Transport.MQTT.Port > 65535 {
		errs = append(errs, "transport.mqtt.port must be between 1 and 65535")
	}
	if c.Transport.MQTT.QoS < 0 || c.Transport.MQTT.QoS > 2 {
		errs = append(errs, "transport.mqtt.qos must be 0, 1, or 2")
	}
	if c.Transport.MQTT.Topic == "" {
		errs = append(errs, "transport.mqtt.topic is required")
	}

	if c.Timing.PollIntervalMS < 1 {
		errs = append(errs, "timing.poll_interval_ms must be positive")
	}
	if c.Timing.HeartbeatIntervalMS < 0 {
		errs = append(errs, "timing.heartbeat_interval_ms must not be negative")
	}

	errs = append(errs, validateDevices("devices", c.Devices)...)

	for i, stage := range c.Flow {
		prefix := fmt.Sprintf("flow[%d]", i)
		if stage.Node < 2 {
			errs = append(errs, prefix+": node must be at least 2")
		}
		if stage.Device < 1 {
			errs = append(errs, prefix+": device must be at least 1")
		}
		if stage.State == "" && stage.Contains == "" {
			errs = append(errs, prefix+": state or contains is required")
		}
		for j, action := range stage.Actions {
			if action.Node < 2 {
				errs = append(errs, fmt.Sprintf("%s.actions[%d]: node must be at least 2", prefix, j))
			}
			if action.Device < 1 {
				errs = append(errs, fmt.Sprintf("%s.actions[%d]: device must be at least 1", prefix, j))
			}
			if action.Type == "" {
				errs = append(errs, fmt.Sprintf("%s.actions[%d]: type is required", prefix, j))
			}
		}
	}

	if c.Simulation.DropRate < 0 || c.Simulation.DropRate > 1 {
		errs = append(errs, "simulation.drop_rate must be between 0 and 1")
	}
	seen := make(map[int]bool)
	for i, n := range c.Simulation.Nodes {
		prefix := fmt.Sprintf("simulation.nodes[%d]", i)
		if n.ID < 2 {
			errs = append(errs, prefix+": id must be at least 2")
		}
		if seen[n.ID] {
			errs = append(errs, fmt.Sprintf("%s: duplicate id %d", prefix, n.ID))
		}
		seen[n.ID] = true
		errs = append(errs, validateDevices(prefix+".devices", n.Devices)...)
	}
	for i, step := range c.Simulation.Script {
		prefix := fmt.Sprintf("simulation.script[%d]", i)
		if !seen[step.Node] {
			errs = append(errs, fmt.Sprintf("%s: node %d is not simulated", prefix, step.Node))
		}
		if step.Device < 1 {
			errs = append(errs, prefix+": device must be at least 1")
		}
		if step.DelayMS < 0 {
			errs = append(errs, prefix+": delay_ms must not be negative")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func validateDevices(prefix string, d DevicesConfig) []string {
	var errs []string
	check := func(kind string, list []DeviceConfig) {
		for i, dev := range list {
			if dev.Type == "" {
				errs = append(errs, fmt.Sprintf("%s.%s[%d]: type is required", prefix, kind, i))
			}
			if dev.Driver == "" {
				errs = append(errs, fmt.Sprintf("%s.%s[%d]: driver is required", prefix, kind, i))
			}
		}
	}
	check("activation", d.Activation)
	check("trigger", d.Trigger)
	return errs
}
