// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package simulation runs a whole escape room in one process: a coordinator
// and a set of simulated end nodes sharing a lossy in-memory bus.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pion/logging"

	"github.com/Thermoquad/endnode/internal/config"
	"github.com/Thermoquad/endnode/internal/coordinator"
	"github.com/Thermoquad/endnode/internal/driver"
	"github.com/Thermoquad/endnode/internal/runner"
	"github.com/Thermoquad/endnode/pkg/endnode"
	"github.com/Thermoquad/endnode/pkg/transport"
)

// Node is one simulated end node
type Node struct {
	ID     int
	Bank   *driver.Bank
	Runner *runner.Runner
}

// Room is a simulated escape room
type Room struct {
	Bus         *transport.Bus
	Coordinator *coordinator.Coordinator
	Nodes       map[int]*Node

	runners []*runner.Runner
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	errs    chan error
}

// Options for a Room
type Options struct {
	Codec         endnode.Codec
	OnEvent       func(coordinator.Event)
	LoggerFactory logging.LoggerFactory
}

// New builds the room described by cfg.Simulation with the cfg.Flow puzzle
func New(cfg *config.Config, opts Options) (*Room, error) {
	if len(cfg.Simulation.Nodes) == 0 {
		return nil, errors.New("simulation: no nodes configured")
	}

	bus := transport.NewBus(cfg.Simulation.DropRate, cfg.Simulation.Seed)
	coord, err := coordinator.New(coordinator.Config{
		Link:          bus.Attach("coordinator"),
		Codec:         opts.Codec,
		Flow:          cfg.Flow,
		OnEvent:       opts.OnEvent,
		LoggerFactory: opts.LoggerFactory,
	})
	if err != nil {
		return nil, err
	}

	r := &Room{
		Bus:         bus,
		Coordinator: coord,
		Nodes:       make(map[int]*Node),
		errs:        make(chan error, len(cfg.Simulation.Nodes)+1),
	}

	for _, sn := range cfg.Simulation.Nodes {
		bank, err := driver.Build(sn.Devices)
		if err != nil {
			return nil, fmt.Errorf("node %d: %w", sn.ID, err)
		}
		node, err := endnode.New(endnode.Config{
			ID:                sn.ID,
			ActivationDevices: bank.Activation,
			TriggerDevices:    bank.Trigger,
			Codec:             opts.Codec,
			LoggerFactory:     opts.LoggerFactory,
		})
		if err != nil {
			return nil, fmt.Errorf("node %d: %w", sn.ID, err)
		}
		run, err := runner.New(runner.Config{
			Node:              node,
			Link:              bus.Attach(fmt.Sprintf("node-%d", sn.ID)),
			Bank:              bank,
			PollInterval:      cfg.Timing.PollInterval(),
			HeartbeatInterval: cfg.Timing.HeartbeatInterval(),
			LoggerFactory:     opts.LoggerFactory,
		})
		if err != nil {
			return nil, fmt.Errorf("node %d: %w", sn.ID, err)
		}
		r.Nodes[sn.ID] = &Node{ID: sn.ID, Bank: bank, Runner: run}
		r.runners = append(r.runners, run)
	}

	return r, nil
}

// Start runs the coordinator and every node in the background
func (r *Room) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)

	r.spawn(func() error { return r.Coordinator.Run(ctx) })
	for _, run := range r.runners {
		r.spawn(func() error { return run.Run(ctx) })
	}
}

func (r *Room) spawn(fn func() error) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := fn(); err != nil {
			r.errs <- err
		}
	}()
}

// Stop cancels every participant and waits for them. It returns the first
// error any participant stopped with.
func (r *Room) Stop() error {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	select {
	case err := <-r.errs:
		return err
	default:
		return nil
	}
}

// Stimulate feeds simulated input to a device on a node
func (r *Room) Stimulate(nodeID, deviceID int, input string) error {
	n, ok := r.Nodes[nodeID]
	if !ok {
		return fmt.Errorf("no node %d", nodeID)
	}
	return n.Bank.Stimulate(deviceID, input)
}

// NodeIDs returns the simulated node IDs in order
func (r *Room) NodeIDs() []int {
	ids := make([]int, 0, len(r.Nodes))
	for id := range r.Nodes {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// WaitComplete blocks until the flow completes or ctx ends
func (r *Room) WaitComplete(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		if r.Coordinator.Complete() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Play feeds each scripted input to its node after the step delay. onStep,
// if set, is called before each input is applied.
func (r *Room) Play(ctx context.Context, script []config.ScriptStep, onStep func(config.ScriptStep)) error {
	for i, step := range script {
		if step.Delay() > 0 {
			timer := time.NewTimer(step.Delay())
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
		if onStep != nil {
			onStep(step)
		}
		if err := r.Stimulate(step.Node, step.Device, step.Input); err != nil {
			return fmt.Errorf("script step %d: %w", i, err)
		}
	}
	return nil
}
