// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"syscall"

	plog "github.com/pion/logging"
	"golang.org/x/term"

	"github.com/Thermoquad/endnode/internal/config"
	"github.com/Thermoquad/endnode/pkg/transport"
)

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	// First check environment variable
	if pw := os.Getenv("ENDNODE_PASSWORD"); pw != "" {
		return pw, nil
	}

	// Prompt user for password (hide input)
	fmt.Fprint(os.Stderr, "Password: ")

	// Read password without echo
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %v", err)
		}
		fmt.Fprintln(os.Stderr) // newline after password
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr) // newline after password
	return string(passwordBytes), nil
}

// transportKind picks the link from the connection flags, falling back to
// the configured kind
func transportKind(cfg *config.Config) string {
	switch {
	case wsURL != "":
		return "websocket"
	case mqttBroker != "":
		return "mqtt"
	case portName != "":
		return "serial"
	default:
		return cfg.Transport.Kind
	}
}

// OpenLink opens the serial, WebSocket or MQTT link selected by flags or config
func OpenLink(ctx context.Context, cfg *config.Config, factory plog.LoggerFactory) (transport.Link, error) {
	switch transportKind(cfg) {
	case "websocket":
		return openWebSocket(ctx, cfg, factory)
	case "mqtt":
		return openMQTT(cfg, factory)
	default:
		return openSerial(cfg, factory)
	}
}

func openSerial(cfg *config.Config, factory plog.LoggerFactory) (transport.Link, error) {
	sc := cfg.Transport.Serial
	if portName != "" {
		sc.Port = portName
	}
	if sc.Port == "" {
		return nil, fmt.Errorf("one of --port, --url or --broker must be specified")
	}

	framer, err := transport.FramerByName(sc.Framing, 0)
	if err != nil {
		return nil, err
	}
	return transport.OpenSerial(transport.SerialConfig{
		Port:          sc.Port,
		BaudRate:      sc.Baud,
		Framer:        framer,
		LoggerFactory: factory,
	})
}

func openWebSocket(ctx context.Context, cfg *config.Config, factory plog.LoggerFactory) (transport.Link, error) {
	wc := cfg.Transport.WebSocket
	if wsURL != "" {
		wc.URL = wsURL
	}
	if wsUsername != "" {
		wc.Username = wsUsername
	}
	if wsNoSSLVerify {
		wc.SkipVerify = true
	}

	if wc.Username != "" && wc.Password == "" {
		password, err := GetPassword()
		if err != nil {
			return nil, err
		}
		wc.Password = password
	}

	return transport.DialWebSocket(ctx, transport.WebSocketConfig{
		URL:           wc.URL,
		Username:      wc.Username,
		Password:      wc.Password,
		SkipSSLVerify: wc.SkipVerify,
		Binary:        wc.Binary || cfg.Node.Codec == "cbor",
		LoggerFactory: factory,
	})
}

func openMQTT(cfg *config.Config, factory plog.LoggerFactory) (transport.Link, error) {
	mc := cfg.Transport.MQTT
	if mqttBroker != "" {
		host, port, err := splitBroker(mqttBroker, mc.Port)
		if err != nil {
			return nil, err
		}
		mc.Host, mc.Port = host, port
	}

	return transport.DialMQTT(transport.MQTTConfig{
		Host:          mc.Host,
		Port:          mc.Port,
		TLS:           mc.TLS,
		ClientID:      mc.ClientID,
		Username:      mc.Username,
		Password:      mc.Password,
		Topic:         mc.Topic,
		QoS:           byte(mc.QoS),
		LoggerFactory: factory,
	})
}

// splitBroker parses "host" or "host:port"
func splitBroker(broker string, defaultPort int) (string, int, error) {
	host, portStr, err := net.SplitHostPort(broker)
	if err != nil {
		// No port given
		return broker, defaultPort, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return "", 0, fmt.Errorf("invalid broker port %q", portStr)
	}
	return host, port, nil
}
