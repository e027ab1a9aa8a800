// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/endnode/internal/driver"
	"github.com/Thermoquad/endnode/internal/runner"
	"github.com/Thermoquad/endnode/pkg/endnode"
)

var runNodeID int

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run an end node with simulated device drivers",
	Long: `Run an end node on the configured link.

Devices are created from the devices section of the configuration, each
backed by a simulated driver (relay, dimmer, button, step, light). The node
answers coordinator commands, reports trigger changes as they happen and
sends a full report every heartbeat interval.

Commands received in the CMD field are printed. Statistics are printed on
exit. Press Ctrl+C to stop.`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().IntVar(&runNodeID, "node", 0, "Node ID (overrides node.id)")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if runNodeID != 0 {
		cfg.Node.ID = runNodeID
	}
	factory, err := newLoggerFactory(cfg)
	if err != nil {
		return err
	}
	codec, err := codecFor(cfg)
	if err != nil {
		return err
	}

	bank, err := driver.Build(cfg.Devices)
	if err != nil {
		return err
	}
	node, err := endnode.New(endnode.Config{
		ID:                cfg.Node.ID,
		ActivationDevices: bank.Activation,
		TriggerDevices:    bank.Trigger,
		Codec:             codec,
		LoggerFactory:     factory,
	})
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

	r, err := runner.New(runner.Config{
		Node:              node,
		Link:              link,
		Bank:              bank,
		PollInterval:      cfg.Timing.PollInterval(),
		HeartbeatInterval: cfg.Timing.HeartbeatInterval(),
		OnCommand: func(c string) {
			fmt.Printf("Command: %s\n", c)
		},
		LoggerFactory: factory,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Endnode - Node %d\n", node.ID())
	fmt.Printf("Connection: %s\n", link.Describe())
	for _, d := range node.ActivationDevices() {
		fmt.Printf("  AD %d %s (%s)\n", d.ID(), d.Type(), bank.Driver(d.ID()).Name())
	}
	for _, d := range node.TriggerDevices() {
		fmt.Printf("  TD %d %s (%s)\n", d.ID(), d.Type(), bank.Driver(d.ID()).Name())
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	runErr := r.Run(ctx)

	var stats endnode.Statistics
	r.Do(func(n *endnode.EndNode) { stats = n.Stats() })
	fmt.Printf("\nUptime: %s\n", endnode.FormatDuration(uint64(node.UptimeMillis())))
	fmt.Print(stats.String())

	return runErr
}
