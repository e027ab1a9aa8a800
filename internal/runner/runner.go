// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package runner drives an end node over a link.
//
// The runner owns the node: received payloads are parsed, drivers are polled
// for state changes, and a report is sent whenever a device requests one or
// the heartbeat interval elapses. Coordinator commands are handed to a
// CommandHandler.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/logging"

	"github.com/Thermoquad/endnode/internal/driver"
	"github.com/Thermoquad/endnode/pkg/endnode"
	"github.com/Thermoquad/endnode/pkg/transport"
)

// DefaultPollInterval is used when Config.PollInterval is zero
const DefaultPollInterval = 50 * time.Millisecond

// CommandHandler receives coordinator commands from the CMD field
type CommandHandler func(cmd string)

// Config for a Runner
type Config struct {
	Node *endnode.EndNode
	Link transport.Link

	// Bank is polled for driver state changes. Optional.
	Bank *driver.Bank

	PollInterval time.Duration

	// HeartbeatInterval sends a full report at this cadence. Zero disables it.
	HeartbeatInterval time.Duration

	OnCommand CommandHandler

	LoggerFactory logging.LoggerFactory
}

// Counters tracks runner activity
type Counters struct {
	Received    uint64
	ParseErrors uint64
	Reports     uint64
	Heartbeats  uint64
	SendErrors  uint64
	Commands    uint64
}

// Runner is the cooperative loop around one end node
type Runner struct {
	cfg Config
	log logging.LeveledLogger

	// mu guards the node, which is not safe for concurrent use
	mu sync.Mutex

	received    atomic.Uint64
	parseErrors atomic.Uint64
	reports     atomic.Uint64
	heartbeats  atomic.Uint64
	sendErrors  atomic.Uint64
	commands    atomic.Uint64
}

// New creates a runner
func New(cfg Config) (*Runner, error) {
	if cfg.Node == nil {
		return nil, errors.New("runner: node is required")
	}
	if cfg.Link == nil {
		return nil, errors.New("runner: link is required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.HeartbeatInterval < 0 {
		return nil, fmt.Errorf("runner: negative heartbeat interval %v", cfg.HeartbeatInterval)
	}

	factory := cfg.LoggerFactory
	if factory == nil {
		factory = &logging.DefaultLoggerFactory{Writer: io.Discard}
	}

	return &Runner{
		cfg: cfg,
		log: factory.NewLogger("runner"),
	}, nil
}

// Run processes the link until ctx is cancelled or the link fails.
// Cancellation returns nil.
func (r *Runner) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	payloads := make(chan string)
	linkErr := make(chan error, 1)
	go r.receiveLoop(ctx, payloads, linkErr)

	poll := time.NewTicker(r.cfg.PollInterval)
	defer poll.Stop()

	var heartbeat <-chan time.Time
	if r.cfg.HeartbeatInterval > 0 {
		t := time.NewTicker(r.cfg.HeartbeatInterval)
		defer t.Stop()
		heartbeat = t.C
	}

	r.log.Infof("node %d running on %s", r.cfg.Node.ID(), r.cfg.Link.Describe())

	// Devices request their initial state at construction
	r.flush()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-linkErr:
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("link %s: %w", r.cfg.Link.Describe(), err)
		case payload := <-payloads:
			r.handle(payload)
			r.flush()
		case <-poll.C:
			if r.cfg.Bank != nil {
				r.mu.Lock()
				changed := r.cfg.Bank.Poll()
				r.mu.Unlock()
				if changed > 0 {
					r.log.Debugf("%d device(s) changed state", changed)
				}
			}
			r.flush()
		case <-heartbeat:
			r.sendReport(true)
		}
	}
}

func (r *Runner) receiveLoop(ctx context.Context, out chan<- string, errc chan<- error) {
	for {
		payload, err := r.cfg.Link.Receive(ctx)
		if err != nil {
			errc <- err
			return
		}
		select {
		case out <- payload:
		case <-ctx.Done():
			return
		}
	}
}

// handle parses one payload and dispatches any command it carried
func (r *Runner) handle(payload string) {
	r.received.Add(1)

	r.mu.Lock()
	err := r.cfg.Node.Parse(payload)
	var cmd string
	if r.cfg.Node.HasPendingCommand() {
		cmd = r.cfg.Node.TakePendingCommand()
	}
	r.mu.Unlock()

	if err != nil {
		r.parseErrors.Add(1)
		r.log.Warnf("parse: %s", endnode.Sentinel(err))
	}

	if cmd != "" {
		r.commands.Add(1)
		if r.cfg.OnCommand != nil {
			r.cfg.OnCommand(cmd)
		} else {
			r.log.Infof("command %q has no handler", cmd)
		}
	}
}

// flush sends a report if any device requested one
func (r *Runner) flush() {
	r.mu.Lock()
	pending := r.cfg.Node.AnySendRequested()
	r.mu.Unlock()
	if pending {
		r.sendReport(false)
	}
}

func (r *Runner) sendReport(all bool) {
	r.mu.Lock()
	payload := r.cfg.Node.Build(all)
	r.mu.Unlock()

	if err := r.cfg.Link.Send(payload); err != nil {
		r.sendErrors.Add(1)
		r.log.Errorf("send: %v", err)
		return
	}
	if all {
		r.heartbeats.Add(1)
	} else {
		r.reports.Add(1)
	}
}

// Do runs fn with exclusive access to the node
func (r *Runner) Do(fn func(n *endnode.EndNode)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r.cfg.Node)
}

// Counters returns a snapshot of the runner counters
func (r *Runner) Counters() Counters {
	return Counters{
		Received:    r.received.Load(),
		ParseErrors: r.parseErrors.Load(),
		Reports:     r.reports.Load(),
		Heartbeats:  r.heartbeats.Load(),
		SendErrors:  r.sendErrors.Load(),
		Commands:    r.commands.Load(),
	}
}
