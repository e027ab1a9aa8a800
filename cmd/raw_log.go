// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/endnode/pkg/endnode"
	"github.com/Thermoquad/endnode/pkg/transport"
)

var (
	rawLogNode     int
	rawLogValidate bool
)

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display link traffic in human-readable format",
	Long: `Continuously decode and display messages as they arrive on the link.

Each message is shown with timestamp, direction, addressing, sequence and
device lists. Payloads that cannot be decoded are shown as errors together
with the raw text.

Supports serial, WebSocket and MQTT connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().IntVar(&rawLogNode, "node", 0, "Only show messages from or to this node")
	rawLogCmd.Flags().BoolVar(&rawLogValidate, "validate", false, "Print protocol anomalies under each message")
}

func runRawLog(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	factory, err := newLoggerFactory(cfg)
	if err != nil {
		return err
	}
	codec, err := codecFor(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	link, err := OpenLink(ctx, cfg, factory)
	if err != nil {
		return err
	}
	defer link.Close()

	fmt.Printf("Endnode - Raw Message Log\n")
	fmt.Printf("Connection: %s\n", link.Describe())
	fmt.Printf("Press Ctrl+C to exit\n\n")

	for {
		payload, err := link.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, transport.ErrClosed) {
				log.Printf("Connection closed")
				return nil
			}
			return err
		}

		msg, err := endnode.DecodeMessage(codec, []byte(payload))
		if err != nil {
			fmt.Printf("[ERROR] %s: %q\n", endnode.Sentinel(err), payload)
			continue
		}
		if rawLogNode != 0 && msg.SNID != rawLogNode && msg.TNID != rawLogNode {
			continue
		}

		fmt.Print(endnode.FormatMessage(msg, time.Now()))
		if rawLogValidate {
			for _, v := range endnode.ValidateMessage(msg) {
				fmt.Printf("  ! %s\n", v.Message)
			}
		}
	}
}
