// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package runner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/endnode/internal/config"
	"github.com/Thermoquad/endnode/internal/driver"
	"github.com/Thermoquad/endnode/pkg/endnode"
	"github.com/Thermoquad/endnode/pkg/transport"
)

type room struct {
	coordinator *transport.BusLink
	nodeLink    *transport.BusLink
	bank        *driver.Bank
	runner      *Runner
	commands    chan string
	done        chan error
	cancel      context.CancelFunc
}

// startRoom runs node 5 (RLY id 1, LED id 2, BUT id 3) on a lossless bus
func startRoom(t *testing.T, heartbeat time.Duration) *room {
	t.Helper()

	bank, err := driver.Build(config.DevicesConfig{
		Activation: []config.DeviceConfig{
			{Type: "RLY", Driver: "relay"},
			{Type: "LED", Driver: "dimmer"},
		},
		Trigger: []config.DeviceConfig{
			{Type: "BUT", Driver: "button"},
		},
	})
	require.NoError(t, err)

	node, err := endnode.New(endnode.Config{
		ID:                5,
		ActivationDevices: bank.Activation,
		TriggerDevices:    bank.Trigger,
	})
	require.NoError(t, err)

	bus := transport.NewBus(0, 1)
	rm := &room{
		coordinator: bus.Attach("coordinator"),
		nodeLink:    bus.Attach("node-5"),
		bank:        bank,
		commands:    make(chan string, 4),
		done:        make(chan error, 1),
	}

	rm.runner, err = New(Config{
		Node:              node,
		Link:              rm.nodeLink,
		Bank:              bank,
		PollInterval:      5 * time.Millisecond,
		HeartbeatInterval: heartbeat,
		OnCommand:         func(cmd string) { rm.commands <- cmd },
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	rm.cancel = cancel
	go func() { rm.done <- rm.runner.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case <-rm.done:
		case <-time.After(time.Second):
			t.Error("runner did not stop")
		}
	})
	return rm
}

func (rm *room) send(t *testing.T, msg *endnode.Message) {
	t.Helper()
	data, err := endnode.JSONCodec{}.Encode(msg)
	require.NoError(t, err)
	require.NoError(t, rm.coordinator.Send(string(data)))
}

// expect waits for a report matching pred
func (rm *room) expect(t *testing.T, what string, pred func(*endnode.Message) bool) *endnode.Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for {
		payload, err := rm.coordinator.Receive(ctx)
		require.NoError(t, err, "waiting for %s", what)

		msg, err := endnode.DecodeMessage(endnode.JSONCodec{}, []byte(payload))
		require.NoError(t, err)
		if pred(msg) {
			return msg
		}
	}
}

func findEntry(entries []endnode.DeviceEntry, id int) (endnode.DeviceEntry, bool) {
	for _, e := range entries {
		if e.ID == id {
			return e, true
		}
	}
	return endnode.DeviceEntry{}, false
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorContains(t, err, "node is required")

	node, err := endnode.New(endnode.Config{ID: 2})
	require.NoError(t, err)
	_, err = New(Config{Node: node})
	assert.ErrorContains(t, err, "link is required")

	bus := transport.NewBus(0, 1)
	_, err = New(Config{Node: node, Link: bus.Attach("x"), HeartbeatInterval: -time.Second})
	assert.ErrorContains(t, err, "negative heartbeat")
}

func TestRunner_InitialReport(t *testing.T) {
	rm := startRoom(t, 0)

	msg := rm.expect(t, "initial report", func(*endnode.Message) bool { return true })
	assert.Equal(t, 5, msg.SNID)
	assert.Equal(t, endnode.CoordinatorID, msg.TNID)
	assert.Equal(t, uint32(1), msg.PID)
	assert.Len(t, msg.AL, 2)
	assert.Len(t, msg.TL, 1)

	e, ok := findEntry(msg.TL, 3)
	require.True(t, ok)
	assert.Equal(t, "BUT", e.T)
	assert.Equal(t, "0", e.State())
}

func TestRunner_SetStateThenRead(t *testing.T) {
	rm := startRoom(t, 0)
	rm.expect(t, "initial report", func(*endnode.Message) bool { return true })

	rm.send(t, endnode.NewSetStateCommand(5, 1, 10, 2, "LED", "400"))
	rm.send(t, endnode.NewReadRequest(5, 2, 20, true, 2, "LED"))

	msg := rm.expect(t, "LED report", func(m *endnode.Message) bool {
		_, ok := findEntry(m.AL, 2)
		return ok
	})
	e, _ := findEntry(msg.AL, 2)
	assert.Equal(t, "255", e.State(), "dimmer reports the clamped level")
	assert.Empty(t, e.ER)
}

func TestRunner_TriggerChangeIsReported(t *testing.T) {
	rm := startRoom(t, 0)
	rm.expect(t, "initial report", func(*endnode.Message) bool { return true })

	require.NoError(t, rm.bank.Stimulate(3, "press"))

	msg := rm.expect(t, "button report", func(m *endnode.Message) bool {
		_, ok := findEntry(m.TL, 3)
		return ok
	})
	e, _ := findEntry(msg.TL, 3)
	assert.Equal(t, "1", e.State())
	assert.Empty(t, msg.AL, "only the changed device is reported")
}

func TestRunner_Command(t *testing.T) {
	rm := startRoom(t, 0)
	rm.send(t, endnode.NewCloudCommand(5, 1, 0, "reset-room"))

	select {
	case cmd := <-rm.commands:
		assert.Equal(t, "reset-room", cmd)
	case <-time.After(2 * time.Second):
		t.Fatal("command not delivered")
	}
	assert.Eventually(t, func() bool { return rm.runner.Counters().Commands == 1 },
		time.Second, 5*time.Millisecond)
}

func TestRunner_ParseErrorsCounted(t *testing.T) {
	rm := startRoom(t, 0)
	require.NoError(t, rm.coordinator.Send("{"))
	rm.send(t, endnode.NewCoordinatorMessage(9, 1, 0))

	assert.Eventually(t, func() bool {
		c := rm.runner.Counters()
		return c.Received == 2 && c.ParseErrors == 1
	}, time.Second, 5*time.Millisecond)

	var stats endnode.Statistics
	rm.runner.Do(func(n *endnode.EndNode) { stats = n.Stats() })
	assert.Equal(t, uint64(1), stats.DecodeErrors)
	assert.Equal(t, uint64(1), stats.Ignored)
}

func TestRunner_Heartbeat(t *testing.T) {
	rm := startRoom(t, 10*time.Millisecond)

	msg := rm.expect(t, "heartbeat", func(m *endnode.Message) bool { return m.PID >= 3 })
	assert.Len(t, msg.AL, 2)
	assert.Len(t, msg.TL, 1)
	assert.Eventually(t, func() bool { return rm.runner.Counters().Heartbeats >= 2 },
		time.Second, 5*time.Millisecond)
}

func TestRunner_LinkClosed(t *testing.T) {
	rm := startRoom(t, 0)
	require.NoError(t, rm.nodeLink.Close())

	select {
	case err := <-rm.done:
		assert.ErrorIs(t, err, transport.ErrClosed)
		rm.done <- nil
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop on closed link")
	}
}
