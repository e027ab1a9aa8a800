// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/endnode/internal/config"
	"github.com/Thermoquad/endnode/internal/coordinator"
	"github.com/Thermoquad/endnode/internal/simulation"
	"github.com/Thermoquad/endnode/pkg/endnode"
)

var (
	simDropRate float64
	simSeed     int64
	simTimeout  int
	simShowAll  bool
	simNoScript bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a simulated escape room in-process",
	Long: `Run a coordinator and the simulated end nodes from the simulation
section of the configuration over an in-memory broadcast link.

The simulation script feeds device inputs (button presses, step mat
presses, light levels) to the nodes, and the coordinator advances the room
flow as the nodes report. A drop rate makes the link lossy, which exercises
gap detection on both sides.

Exit codes:
  0 - Flow completed
  1 - Timeout before the flow completed
  2 - A node or the coordinator failed`,
	RunE: runSimulate,
}

func init() {
	rootCmd.AddCommand(simulateCmd)
	simulateCmd.Flags().Float64Var(&simDropRate, "drop-rate", -1, "Fraction of payloads dropped by the link (overrides simulation.drop_rate)")
	simulateCmd.Flags().Int64Var(&simSeed, "seed", 0, "Random seed for the drop pattern (overrides simulation.seed)")
	simulateCmd.Flags().IntVar(&simTimeout, "timeout", 30, "Seconds to wait for the flow to complete")
	simulateCmd.Flags().BoolVar(&simShowAll, "show-all", false, "Print every message, not only commands and anomalies")
	simulateCmd.Flags().BoolVar(&simNoScript, "no-script", false, "Do not play the input script")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if simDropRate >= 0 {
		cfg.Simulation.DropRate = simDropRate
	}
	if cmd.Flags().Changed("seed") {
		cfg.Simulation.Seed = simSeed
	}
	if err := cfg.Validate(); err != nil {
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

	room, err := simulation.New(cfg, simulation.Options{
		Codec:         codec,
		OnEvent:       printSimEvent,
		LoggerFactory: factory,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Endnode - Simulate\n")
	fmt.Printf("Nodes: %v | Flow stages: %d | Drop rate: %.2f (seed %d)\n",
		room.NodeIDs(), len(cfg.Flow), cfg.Simulation.DropRate, cfg.Simulation.Seed)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, time.Duration(simTimeout)*time.Second)
	defer cancel()

	room.Start(ctx)

	if !simNoScript {
		go func() {
			err := room.Play(ctx, cfg.Simulation.Script, func(s config.ScriptStep) {
				fmt.Printf("[%s] INPUT     node %d device %d <- %q\n",
					time.Now().Format("15:04:05.000"), s.Node, s.Device, s.Input)
			})
			if err != nil && ctx.Err() == nil {
				fmt.Fprintf(os.Stderr, "Script error: %v\n", err)
			}
		}()
	}

	waitErr := room.WaitComplete(ctx)
	stopErr := room.Stop()

	printSimSummary(room)

	if stopErr != nil {
		fmt.Fprintf(os.Stderr, "\nError: %v\n", stopErr)
		os.Exit(2)
	}
	if waitErr != nil {
		if errors.Is(waitErr, context.DeadlineExceeded) {
			fmt.Fprintf(os.Stderr, "\nTimeout: flow did not complete within %d seconds\n", simTimeout)
		}
		os.Exit(1)
	}
	fmt.Println("\nFlow complete")
	return nil
}

func printSimEvent(e coordinator.Event) {
	switch e.Kind {
	case coordinator.EventReport:
		if simShowAll {
			fmt.Print(endnode.FormatMessage(e.Message, e.Time))
		}
	case coordinator.EventCommand:
		if simShowAll {
			fmt.Print(endnode.FormatMessage(e.Message, e.Time))
		} else {
			fmt.Printf("[%s] %-9s node %d PID %d\n", e.Time.Format("15:04:05.000"), e.Kind, e.Node, e.Message.PID)
		}
	default:
		fmt.Printf("[%s] %-9s %s\n", e.Time.Format("15:04:05.000"), e.Kind, e.Text)
	}
}

func printSimSummary(room *simulation.Room) {
	fmt.Println("\n=== Nodes ===")
	for _, n := range room.Coordinator.Nodes() {
		fmt.Printf("Node %d: PID in %d out %d, %d reports, %d duplicates, %d gaps (%d missed), %d restarts\n",
			n.ID, n.LastPID, n.OutPID, n.Reports, n.Duplicates, n.GapEvents, n.Missed, n.Restarts)
		keys := make([]string, 0, len(n.States))
		for k := range n.States {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", k, n.States[k])
		}
		if n.LastError != "" {
			fmt.Printf("  ER: %s\n", n.LastError)
		}
	}

	for _, id := range room.NodeIDs() {
		var stats endnode.Statistics
		room.Nodes[id].Runner.Do(func(n *endnode.EndNode) { stats = n.Stats() })
		fmt.Printf("\nNode %d\n%s", id, stats.String())
	}

	delivered, dropped := room.Bus.Stats()
	fmt.Printf("\nLink: %d delivered, %d dropped\n", delivered, dropped)
}
