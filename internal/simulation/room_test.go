// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package simulation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/endnode/internal/config"
	"github.com/Thermoquad/endnode/pkg/endnode"
)

func fastConfig() *config.Config {
	cfg := config.Default()
	cfg.Timing.PollIntervalMS = 5
	cfg.Timing.HeartbeatIntervalMS = 0
	return cfg
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond, what)
}

func TestRoom_DemoFlow(t *testing.T) {
	room, err := New(fastConfig(), Options{})
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4, 5, 6, 7}, room.NodeIDs())

	room.Start(context.Background())
	defer func() { assert.NoError(t, room.Stop()) }()

	// Every node introduces itself
	waitFor(t, "initial reports", func() bool { return len(room.Coordinator.Nodes()) == 5 })

	// Book starts on the shelf
	require.NoError(t, room.Stimulate(5, 1, "1"))

	require.NoError(t, room.Stimulate(7, 1, "1"))
	waitFor(t, "step stage", func() bool { return room.Coordinator.Stage() == 1 })
	waitFor(t, "outlet on", func() bool {
		return room.Nodes[4].Bank.Driver(1).GetState() == "1"
	})

	require.NoError(t, room.Stimulate(3, 1, "900"))
	waitFor(t, "light stage", func() bool { return room.Coordinator.Stage() == 2 })
	waitFor(t, "LED on", func() bool {
		return room.Nodes[6].Bank.Driver(1).GetState() == "1"
	})

	require.NoError(t, room.Stimulate(5, 1, "0"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, room.WaitComplete(ctx))

	var stats endnode.Statistics
	room.Nodes[4].Runner.Do(func(n *endnode.EndNode) { stats = n.Stats() })
	assert.Equal(t, uint64(1), stats.Accepted)
	assert.Zero(t, stats.Duplicates)
}

func TestRoom_OutOfOrderInputDoesNotAdvance(t *testing.T) {
	room, err := New(fastConfig(), Options{})
	require.NoError(t, err)
	room.Start(context.Background())
	defer func() { assert.NoError(t, room.Stop()) }()

	waitFor(t, "initial reports", func() bool { return len(room.Coordinator.Nodes()) == 5 })

	require.NoError(t, room.Stimulate(3, 1, "900"))
	waitFor(t, "light report", func() bool {
		for _, n := range room.Coordinator.Nodes() {
			if n.ID == 3 && n.States["TD 1"] == "Lvl:900,Trig:1" {
				return true
			}
		}
		return false
	})
	assert.Equal(t, 0, room.Coordinator.Stage())
}

func TestRoom_Errors(t *testing.T) {
	cfg := fastConfig()
	cfg.Simulation.Nodes = nil
	_, err := New(cfg, Options{})
	assert.ErrorContains(t, err, "no nodes")

	cfg = fastConfig()
	cfg.Simulation.Nodes[0].Devices.Activation = []config.DeviceConfig{{Type: "X", Driver: "button"}}
	_, err = New(cfg, Options{})
	assert.ErrorContains(t, err, "node 3")

	room, err := New(fastConfig(), Options{})
	require.NoError(t, err)
	assert.ErrorContains(t, room.Stimulate(99, 1, "1"), "no node 99")
}

func TestRoom_PlayDefaultScript(t *testing.T) {
	cfg := fastConfig()
	for i := range cfg.Simulation.Script {
		cfg.Simulation.Script[i].DelayMS = 50
	}

	room, err := New(cfg, Options{})
	require.NoError(t, err)
	room.Start(context.Background())
	defer func() { assert.NoError(t, room.Stop()) }()

	waitFor(t, "initial reports", func() bool { return len(room.Coordinator.Nodes()) == 5 })

	var played []int
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, room.Play(ctx, cfg.Simulation.Script, func(s config.ScriptStep) {
		played = append(played, s.Node)
	}))
	assert.Equal(t, []int{5, 7, 3, 5}, played)
	require.NoError(t, room.WaitComplete(ctx))
}

func TestRoom_PlayErrors(t *testing.T) {
	room, err := New(fastConfig(), Options{})
	require.NoError(t, err)

	err = room.Play(context.Background(), []config.ScriptStep{{Node: 5, Device: 1, Input: "1"}, {Node: 99, Device: 1, Input: "1"}}, nil)
	assert.ErrorContains(t, err, "script step 1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = room.Play(ctx, []config.ScriptStep{{DelayMS: 1000, Node: 5, Device: 1, Input: "1"}}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
