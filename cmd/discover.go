// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/endnode/pkg/endnode"
	"github.com/Thermoquad/endnode/pkg/transport"
)

var (
	discoverTimeout   int
	discoverListPorts bool
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Discover end nodes and their devices",
	Long: `Listen on the link and list every end node that reports to the
coordinator, together with the devices it reports.

End nodes send a full report every heartbeat interval, so listening for
two intervals finds every live node. The default timeout is derived from
timing.heartbeat_interval_ms.

With --list-ports, the available serial ports are listed instead.

Exit codes:
  0 - At least one node found
  1 - No nodes found before timeout
  2 - Connection error`,
	RunE: runDiscover,
}

func init() {
	rootCmd.AddCommand(discoverCmd)
	discoverCmd.Flags().IntVar(&discoverTimeout, "timeout", 0, "Seconds to listen (default two heartbeat intervals)")
	discoverCmd.Flags().BoolVar(&discoverListPorts, "list-ports", false, "List serial ports and exit")
}

// discoveredNode is what discovery learned about one node
type discoveredNode struct {
	id         int
	activation map[int]string
	trigger    map[int]string
	lastPID    uint32
	uptime     uint32
}

func runDiscover(cmd *cobra.Command, args []string) error {
	if discoverListPorts {
		ports, err := transport.ListSerialPorts()
		if err != nil {
			return err
		}
		if len(ports) == 0 {
			fmt.Println("No serial ports found")
			return nil
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return nil
	}

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

	timeout := time.Duration(discoverTimeout) * time.Second
	if timeout <= 0 {
		timeout = 2 * cfg.Timing.HeartbeatInterval()
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	link, err := OpenLink(ctx, cfg, factory)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer link.Close()

	fmt.Printf("Endnode - Node Discovery\n")
	fmt.Printf("Connection: %s\n", link.Describe())
	fmt.Printf("Timeout: %s\n\n", timeout)

	nodes := make(map[int]*discoveredNode)
	for {
		payload, err := link.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, transport.ErrClosed) {
				break
			}
			fmt.Printf("READ FAILED: %v\n", err)
			os.Exit(2)
		}

		msg, err := endnode.DecodeMessage(codec, []byte(payload))
		if err != nil || msg.TNID != endnode.CoordinatorID || msg.SNID == endnode.CoordinatorID {
			continue
		}

		n, seen := nodes[msg.SNID]
		if !seen {
			n = &discoveredNode{id: msg.SNID, activation: make(map[int]string), trigger: make(map[int]string)}
			nodes[msg.SNID] = n
			fmt.Printf("Node found: %d\n", msg.SNID)
		}
		n.lastPID = msg.PID
		n.uptime = msg.UT
		for _, e := range msg.AL {
			n.activation[e.ID] = e.T
		}
		for _, e := range msg.TL {
			n.trigger[e.ID] = e.T
		}
	}

	fmt.Printf("\n--- Discovery summary ---\n")
	fmt.Printf("Nodes found: %d\n", len(nodes))
	if len(nodes) == 0 {
		fmt.Printf("No nodes discovered. Check connection and node power.\n")
		os.Exit(1)
	}

	ids := make([]int, 0, len(nodes))
	for id := range nodes {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		n := nodes[id]
		fmt.Printf("\nNode %d (PID %d, up %s)\n", n.id, n.lastPID, endnode.FormatDuration(uint64(n.uptime)))
		printDiscoveredDevices("AD", n.activation)
		printDiscoveredDevices("TD", n.trigger)
	}
	return nil
}

func printDiscoveredDevices(label string, devices map[int]string) {
	ids := make([]int, 0, len(devices))
	for id := range devices {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		fmt.Printf("  %s %d: %s\n", label, id, devices[id])
	}
}
