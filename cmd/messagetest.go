// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/endnode/pkg/endnode"
)

var (
	messageTestTimeout int
	messageTestNode    int
)

var messageTestCmd = &cobra.Command{
	Use:   "message_test",
	Short: "Test connection by waiting for a valid message",
	Long: `Wait for a valid message on the connection until timeout.

This command connects to a serial port, WebSocket or MQTT broker and waits
for any payload that decodes to a well-formed message. Undecodable payloads
are counted and skipped.

Exit codes:
  0 - Message received before timeout
  1 - Timeout reached without receiving a valid message
  2 - Connection error

Useful for checking that a node or gateway is alive.`,
	RunE: runMessageTest,
}

func init() {
	rootCmd.AddCommand(messageTestCmd)
	messageTestCmd.Flags().IntVar(&messageTestTimeout, "timeout", 10, "Timeout in seconds to wait for a message")
	messageTestCmd.Flags().IntVar(&messageTestNode, "node", 0, "Only accept messages sent by this node")
}

func runMessageTest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(2)
	}
	factory, err := newLoggerFactory(cfg)
	if err != nil {
		return err
	}
	codec, err := codecFor(cfg)
	if err != nil {
		return err
	}

	timeout := time.Duration(messageTestTimeout) * time.Second
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	link, err := OpenLink(ctx, cfg, factory)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer link.Close()

	fmt.Printf("Endnode - Message Test\n")
	fmt.Printf("Connection: %s\n", link.Describe())
	fmt.Printf("Timeout: %d seconds\n", messageTestTimeout)
	fmt.Printf("Waiting for valid message...\n\n")

	invalid := 0
	for {
		payload, err := link.Receive(ctx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				fmt.Fprintf(os.Stderr, "TIMEOUT: No valid message received within %d seconds\n", messageTestTimeout)
				if invalid > 0 {
					fmt.Fprintf(os.Stderr, "(%d undecodable payloads)\n", invalid)
				}
				os.Exit(1)
			}
			fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
			os.Exit(2)
		}

		msg, err := endnode.DecodeMessage(codec, []byte(payload))
		if err != nil {
			invalid++
			continue
		}
		if messageTestNode != 0 && msg.SNID != messageTestNode {
			continue
		}

		if invalid > 0 {
			fmt.Printf("(skipped %d undecodable payloads)\n", invalid)
		}
		fmt.Printf("SUCCESS: Received valid message\n")
		fmt.Printf("  Direction: %s\n", endnode.FormatDirection(msg))
		fmt.Printf("  Source: %d\n", msg.SNID)
		fmt.Printf("  Target: %d\n", msg.TNID)
		fmt.Printf("  PID: %d\n", msg.PID)
		fmt.Printf("  Uptime: %s\n", endnode.FormatDuration(uint64(msg.UT)))
		fmt.Printf("  Devices: %d activation, %d trigger\n", len(msg.AL), len(msg.TL))
		os.Exit(0)
	}
}
