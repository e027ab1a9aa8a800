// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package coordinator implements the room coordinator (node 1).
//
// It tracks the packet sequence of every end node, sends commands with a
// per-node outbound PID, and advances a linear puzzle flow: when a trigger
// report matches the current stage, the stage's actions are sent as
// set-state commands and the flow moves on.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pion/logging"

	"github.com/Thermoquad/endnode/internal/config"
	"github.com/Thermoquad/endnode/pkg/endnode"
	"github.com/Thermoquad/endnode/pkg/transport"
)

// EventKind classifies coordinator events
type EventKind int

const (
	EventReport EventKind = iota
	EventAnomaly
	EventDuplicate
	EventGap
	EventRestart
	EventCommand
	EventStage
	EventComplete
)

func (k EventKind) String() string {
	switch k {
	case EventReport:
		return "REPORT"
	case EventAnomaly:
		return "ANOMALY"
	case EventDuplicate:
		return "DUPLICATE"
	case EventGap:
		return "GAP"
	case EventRestart:
		return "RESTART"
	case EventCommand:
		return "COMMAND"
	case EventStage:
		return "STAGE"
	case EventComplete:
		return "COMPLETE"
	default:
		return "UNKNOWN"
	}
}

// Event describes something the coordinator observed or did
type Event struct {
	Time    time.Time
	Kind    EventKind
	Node    int
	Message *endnode.Message
	Text    string
}

// NodeState is what the coordinator knows about one end node
type NodeState struct {
	ID         int
	LastPID    uint32 // Last accepted report PID
	LastUptime uint32
	OutPID     uint32 // Last command PID sent to the node
	Reports    uint64
	Duplicates uint64
	GapEvents  uint64
	Missed     uint64
	Restarts   uint64
	LastSeen   time.Time
	LastError  string
	States     map[string]string // "AD 1" / "TD 3" -> last reported state
}

// Config for a Coordinator
type Config struct {
	Link  transport.Link
	Codec endnode.Codec
	Clock endnode.Clock

	Flow []config.FlowStage

	// StartPID is the PID before the first command sent to each node. A
	// restarted coordinator must start above the PIDs the nodes have seen.
	StartPID uint32

	// OnEvent is called synchronously for every event. Optional.
	OnEvent func(Event)

	LoggerFactory logging.LoggerFactory
}

// Coordinator is the room coordinator
type Coordinator struct {
	cfg Config
	log logging.LeveledLogger

	mu    sync.Mutex
	nodes map[int]*NodeState
	stage int
}

// New creates a coordinator
func New(cfg Config) (*Coordinator, error) {
	if cfg.Link == nil {
		return nil, errors.New("coordinator: link is required")
	}
	if cfg.Codec == nil {
		cfg.Codec = endnode.JSONCodec{}
	}
	if cfg.Clock == nil {
		cfg.Clock = endnode.NewMonotonicClock()
	}

	factory := cfg.LoggerFactory
	if factory == nil {
		factory = &logging.DefaultLoggerFactory{Writer: io.Discard}
	}

	return &Coordinator{
		cfg:   cfg,
		log:   factory.NewLogger("coordinator"),
		nodes: make(map[int]*NodeState),
	}, nil
}

//////////////////////////////////////////////////////////////
// Receive path
//////////////////////////////////////////////////////////////

// Run handles received payloads until ctx is cancelled or the link fails.
// Cancellation returns nil.
func (c *Coordinator) Run(ctx context.Context) error {
	c.log.Infof("coordinator running on %s (%d flow stage(s))", c.cfg.Link.Describe(), len(c.cfg.Flow))
	for {
		payload, err := c.cfg.Link.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("link %s: %w", c.cfg.Link.Describe(), err)
		}
		if err := c.Handle(payload); err != nil {
			c.log.Warnf("%v", err)
		}
	}
}

// Handle processes one received payload. Messages not addressed to the
// coordinator, such as its own commands echoed by a shared medium, are
// ignored.
func (c *Coordinator) Handle(payload string) error {
	msg, err := endnode.DecodeMessage(c.cfg.Codec, []byte(payload))
	if err != nil {
		return fmt.Errorf("decode: %s", endnode.Sentinel(err))
	}
	if msg.TNID != endnode.CoordinatorID || msg.SNID == endnode.CoordinatorID {
		return nil
	}

	var sends []*endnode.Message

	c.mu.Lock()
	events, accepted := c.track(msg)
	if accepted {
		for _, anomaly := range endnode.ValidateMessage(msg) {
			events = append(events, c.event(EventAnomaly, msg.SNID, msg, anomaly.Message))
		}
		var flowEvents []Event
		flowEvents, sends = c.advance(msg)
		events = append(events, flowEvents...)
	}
	c.mu.Unlock()

	for _, e := range events {
		c.emit(e)
	}
	for _, m := range sends {
		if err := c.transmit(m); err != nil {
			return err
		}
	}
	return nil
}

// track updates the sequence state of the sending node. Callers hold mu.
func (c *Coordinator) track(msg *endnode.Message) ([]Event, bool) {
	n := c.node(msg.SNID)
	var events []Event

	if n.Reports > 0 && msg.PID <= n.LastPID {
		if msg.UT >= n.LastUptime {
			n.Duplicates++
			text := fmt.Sprintf("node %d: packet %d already received", msg.SNID, msg.PID)
			c.log.Warn(text)
			return []Event{c.event(EventDuplicate, msg.SNID, msg, text)}, false
		}
		// Uptime went backwards along with the PID: the node rebooted
		n.Restarts++
		n.LastPID = 0
		text := fmt.Sprintf("node %d restarted", msg.SNID)
		c.log.Info(text)
		events = append(events, c.event(EventRestart, msg.SNID, msg, text))
	}

	if n.Reports > 0 && msg.PID > n.LastPID+1 {
		missed := msg.PID - n.LastPID - 1
		n.GapEvents++
		n.Missed += uint64(missed)
		text := fmt.Sprintf("node %d: missed packets %d to %d", msg.SNID, n.LastPID+1, msg.PID-1)
		c.log.Warn(text)
		events = append(events, c.event(EventGap, msg.SNID, msg, text))
	}

	n.LastPID = msg.PID
	n.LastUptime = msg.UT
	n.Reports++
	n.LastSeen = time.Now()
	n.LastError = msg.ER
	for _, e := range msg.AL {
		if e.S != nil {
			n.States[stateKey("AD", e.ID)] = *e.S
		}
	}
	for _, e := range msg.TL {
		if e.S != nil {
			n.States[stateKey("TD", e.ID)] = *e.S
		}
	}

	events = append(events, c.event(EventReport, msg.SNID, msg, ""))
	return events, true
}

// advance checks the report against the current flow stage. Callers hold mu.
func (c *Coordinator) advance(msg *endnode.Message) ([]Event, []*endnode.Message) {
	if c.stage >= len(c.cfg.Flow) {
		return nil, nil
	}
	stage := c.cfg.Flow[c.stage]
	if msg.SNID != stage.Node {
		return nil, nil
	}

	matched := false
	for _, e := range msg.TL {
		if e.ID == stage.Device && e.S != nil && stageMatches(stage, *e.S) {
			matched = true
			break
		}
	}
	if !matched {
		return nil, nil
	}

	var events []Event
	var sends []*endnode.Message
	for _, a := range stage.Actions {
		sends = append(sends, c.command(a.Node, func(pid, uptime uint32) *endnode.Message {
			return endnode.NewSetStateCommand(a.Node, pid, uptime, a.Device, a.Type, a.State)
		}))
	}

	c.stage++
	name := stage.Name
	if name == "" {
		name = fmt.Sprintf("%d", c.stage)
	}
	text := fmt.Sprintf("stage %s solved (%d/%d)", name, c.stage, len(c.cfg.Flow))
	c.log.Info(text)
	events = append(events, c.event(EventStage, msg.SNID, msg, text))
	if c.stage == len(c.cfg.Flow) {
		c.log.Info("room complete")
		events = append(events, c.event(EventComplete, msg.SNID, msg, "room complete"))
	}
	return events, sends
}

func stageMatches(stage config.FlowStage, state string) bool {
	if stage.State != "" {
		return state == stage.State
	}
	return strings.Contains(state, stage.Contains)
}

//////////////////////////////////////////////////////////////
// Send path
//////////////////////////////////////////////////////////////

// SetState commands an activation device
func (c *Coordinator) SetState(node, device int, deviceType, state string) error {
	return c.send(node, func(pid, uptime uint32) *endnode.Message {
		return endnode.NewSetStateCommand(node, pid, uptime, device, deviceType, state)
	})
}

// Configure sends a configuration string to a device
func (c *Coordinator) Configure(node int, activation bool, device int, deviceType, cfg string) error {
	return c.send(node, func(pid, uptime uint32) *endnode.Message {
		return endnode.NewConfigCommand(node, pid, uptime, activation, device, deviceType, cfg)
	})
}

// Read requests a state report from a device
func (c *Coordinator) Read(node int, activation bool, device int, deviceType string) error {
	return c.send(node, func(pid, uptime uint32) *endnode.Message {
		return endnode.NewReadRequest(node, pid, uptime, activation, device, deviceType)
	})
}

// Command sends a free-form command string
func (c *Coordinator) Command(node int, cmd string) error {
	return c.send(node, func(pid, uptime uint32) *endnode.Message {
		return endnode.NewCloudCommand(node, pid, uptime, cmd)
	})
}

// Ping sends an empty message, which only advances the node's PID
func (c *Coordinator) Ping(node int) error {
	return c.send(node, func(pid, uptime uint32) *endnode.Message {
		return endnode.NewCoordinatorMessage(node, pid, uptime)
	})
}

func (c *Coordinator) send(node int, build func(pid, uptime uint32) *endnode.Message) error {
	if node < 2 {
		return fmt.Errorf("invalid target node %d", node)
	}
	c.mu.Lock()
	msg := c.command(node, build)
	c.mu.Unlock()
	return c.transmit(msg)
}

// command allocates the next PID for node and builds the message.
// Callers hold mu.
func (c *Coordinator) command(node int, build func(pid, uptime uint32) *endnode.Message) *endnode.Message {
	n := c.node(node)
	n.OutPID++
	return build(n.OutPID, c.cfg.Clock.UptimeMillis())
}

func (c *Coordinator) transmit(msg *endnode.Message) error {
	data, err := c.cfg.Codec.Encode(msg)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	if err := c.cfg.Link.Send(string(data)); err != nil {
		return fmt.Errorf("send to node %d: %w", msg.TNID, err)
	}
	c.emit(c.event(EventCommand, msg.TNID, msg, ""))
	return nil
}

//////////////////////////////////////////////////////////////
// State
//////////////////////////////////////////////////////////////

// node returns the state for id, creating it. Callers hold mu.
func (c *Coordinator) node(id int) *NodeState {
	n, ok := c.nodes[id]
	if !ok {
		n = &NodeState{ID: id, OutPID: c.cfg.StartPID, States: make(map[string]string)}
		c.nodes[id] = n
	}
	return n
}

func (c *Coordinator) event(kind EventKind, node int, msg *endnode.Message, text string) Event {
	return Event{Time: time.Now(), Kind: kind, Node: node, Message: msg, Text: text}
}

func (c *Coordinator) emit(e Event) {
	if c.cfg.OnEvent != nil {
		c.cfg.OnEvent(e)
	}
}

// Nodes returns a snapshot of every known node, ordered by ID
func (c *Coordinator) Nodes() []NodeState {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]NodeState, 0, len(c.nodes))
	for _, n := range c.nodes {
		s := *n
		s.States = make(map[string]string, len(n.States))
		for k, v := range n.States {
			s.States[k] = v
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Stage returns the index of the current flow stage
func (c *Coordinator) Stage() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stage
}

// Complete reports whether every flow stage has been solved
func (c *Coordinator) Complete() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cfg.Flow) > 0 && c.stage >= len(c.cfg.Flow)
}

// ResetFlow returns the flow to its first stage
func (c *Coordinator) ResetFlow() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stage = 0
}

func stateKey(label string, id int) string {
	return fmt.Sprintf("%s %d", label, id)
}
