// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/endnode/internal/coordinator"
	"github.com/Thermoquad/endnode/pkg/endnode"
)

var (
	sendNode     int
	sendDevice   int
	sendType     string
	sendState    string
	sendConfig   string
	sendRead     bool
	sendTrigger  bool
	sendCommand  string
	sendStartPID uint32
	sendWait     int
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send one coordinator command to an end node",
	Long: `Send a single command as the coordinator (node 1).

Exactly one action is sent:
  --state S     set the state of an activation device
  --config C    configure a device (add --trigger for trigger devices)
  --read        request a state report (add --trigger for trigger devices)
  --command X   send a free-form command string
  (none)        send an empty message, which only advances the node's PID

End nodes reject packet IDs they have already seen, so when they have been
running for a while pass --start-pid above the last PID they accepted.

With --wait the reports the node sends back are printed.

Examples:
  endnode send -p /dev/ttyUSB0 --node 4 --device 1 --type SO --state 1
  endnode send --broker localhost --node 3 --device 1 --type light --trigger --read --wait 2`,
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().IntVar(&sendNode, "node", 0, "Target node ID (required)")
	sendCmd.Flags().IntVar(&sendDevice, "device", 1, "Device ID")
	sendCmd.Flags().StringVar(&sendType, "type", "", "Device type label")
	sendCmd.Flags().StringVar(&sendState, "state", "", "State to set")
	sendCmd.Flags().StringVar(&sendConfig, "config", "", "Configuration string")
	sendCmd.Flags().BoolVar(&sendRead, "read", false, "Request a state report")
	sendCmd.Flags().BoolVar(&sendTrigger, "trigger", false, "Address a trigger device instead of an activation device")
	sendCmd.Flags().StringVar(&sendCommand, "command", "", "Free-form command string")
	sendCmd.Flags().Uint32Var(&sendStartPID, "start-pid", 0, "PID before the one sent")
	sendCmd.Flags().IntVar(&sendWait, "wait", 0, "Seconds to wait for replies")
	_ = sendCmd.MarkFlagRequired("node")
	sendCmd.MarkFlagsMutuallyExclusive("state", "config", "read", "command")
}

func runSend(cmd *cobra.Command, args []string) error {
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
	if (sendState != "" || sendConfig != "" || sendRead) && sendType == "" {
		return fmt.Errorf("--type is required for device commands")
	}
	if sendState != "" && sendTrigger {
		return fmt.Errorf("trigger devices have no settable state")
	}

	ctx := context.Background()
	link, err := OpenLink(ctx, cfg, factory)
	if err != nil {
		return err
	}
	defer link.Close()

	coord, err := coordinator.New(coordinator.Config{
		Link:     link,
		Codec:    codec,
		StartPID: sendStartPID,
		OnEvent: func(e coordinator.Event) {
			switch e.Kind {
			case coordinator.EventCommand:
				fmt.Print(endnode.FormatMessage(e.Message, e.Time))
			case coordinator.EventReport:
				if e.Node == sendNode {
					fmt.Print(endnode.FormatMessage(e.Message, e.Time))
				}
			case coordinator.EventAnomaly:
				if e.Node == sendNode {
					fmt.Printf("  ! %s\n", e.Text)
				}
			}
		},
		LoggerFactory: factory,
	})
	if err != nil {
		return err
	}

	activation := !sendTrigger
	switch {
	case sendState != "":
		err = coord.SetState(sendNode, sendDevice, sendType, sendState)
	case sendConfig != "":
		err = coord.Configure(sendNode, activation, sendDevice, sendType, sendConfig)
	case sendRead:
		err = coord.Read(sendNode, activation, sendDevice, sendType)
	case sendCommand != "":
		err = coord.Command(sendNode, sendCommand)
	default:
		err = coord.Ping(sendNode)
	}
	if err != nil {
		return err
	}

	if sendWait <= 0 {
		return nil
	}
	waitCtx, cancel := context.WithTimeout(ctx, time.Duration(sendWait)*time.Second)
	defer cancel()
	return coord.Run(waitCtx)
}
