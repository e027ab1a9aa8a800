// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/endnode/internal/coordinator"
	"github.com/Thermoquad/endnode/pkg/endnode"
)

// Focus states
const (
	focusNodeList = iota
	focusCommand
)

// logEntry is one line of the event log
type logEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

// nodeItem is a node in the list
type nodeItem struct {
	state coordinator.NodeState
}

// Implement list.Item interface
func (n nodeItem) Title() string { return fmt.Sprintf("Node %d", n.state.ID) }
func (n nodeItem) Description() string {
	if n.state.LastError != "" {
		return "ER: " + n.state.LastError
	}
	return fmt.Sprintf("PID %d  %d reports", n.state.LastPID, n.state.Reports)
}
func (n nodeItem) FilterValue() string { return strconv.Itoa(n.state.ID) }

// monitorModel is the Bubble Tea model for the monitor TUI
type monitorModel struct {
	session  *monitorSession
	connInfo string
	showAll  bool

	nodes    []coordinator.NodeState
	nodeList list.Model
	command  textinput.Model
	focused  int

	flowStages int
	stage      int
	complete   bool

	// Counters
	reports      uint64
	commands     uint64
	anomalies    uint64
	duplicates   uint64
	gaps         uint64
	missed       uint64
	decodeErrors uint64
	lastReports  uint64
	reportRate   float64

	errorLog      []logEntry
	maxLogEntries int

	width          int
	height         int
	quitting       bool
	connectionLost bool
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type monitorTickMsg time.Time

type eventMsg struct {
	event coordinator.Event
}

type decodeErrorMsg struct {
	err     error
	payload string
}

type linkClosedMsg struct {
	err error
}

type commandResultMsg struct {
	line string
	err  error
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialMonitorModel(session *monitorSession, connInfo string, flowStages int, showAll bool) monitorModel {
	ti := textinput.New()
	ti.Placeholder = "set 4 1 SO 1"
	ti.CharLimit = 120
	ti.Width = 40
	ti.Prompt = "> "

	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true
	delegate.SetHeight(2)
	nodeList := list.New([]list.Item{}, delegate, 30, 10)
	nodeList.Title = "Nodes"
	nodeList.SetShowStatusBar(false)
	nodeList.SetShowHelp(false)
	nodeList.SetFilteringEnabled(false)

	return monitorModel{
		session:       session,
		connInfo:      connInfo,
		showAll:       showAll,
		nodeList:      nodeList,
		command:       ti,
		focused:       focusNodeList,
		flowStages:    flowStages,
		errorLog:      make([]logEntry, 0),
		maxLogEntries: 100,
		width:         80,
		height:        24,
	}
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m monitorModel) Init() tea.Cmd {
	return monitorTickCmd()
}

func monitorTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return monitorTickMsg(t)
	})
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateListSize()

	case monitorTickMsg:
		m.reportRate = float64(m.reports - m.lastReports)
		m.lastReports = m.reports
		m.refreshNodes()
		return m, monitorTickCmd()

	case eventMsg:
		m.processEvent(msg.event)

	case decodeErrorMsg:
		m.decodeErrors++
		m.addLogEntry(fmt.Sprintf("DECODE ERROR: %v", msg.err), true)

	case commandResultMsg:
		if msg.err != nil {
			m.addLogEntry(fmt.Sprintf("%s: %v", msg.line, msg.err), true)
		}

	case linkClosedMsg:
		m.connectionLost = true
		if msg.err != nil {
			m.addLogEntry(fmt.Sprintf("Connection lost: %v", msg.err), true)
		} else {
			m.addLogEntry("Connection closed", true)
		}
	}

	var cmd tea.Cmd
	if m.focused == focusNodeList {
		m.nodeList, cmd = m.nodeList.Update(msg)
	}
	return m, cmd
}

func (m monitorModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "q":
		if m.focused == focusNodeList {
			m.quitting = true
			return m, tea.Quit
		}

	case "tab", "shift+tab":
		if m.focused == focusNodeList {
			m.focused = focusCommand
			m.command.Focus()
			m.prefillCommand()
		} else {
			m.focused = focusNodeList
			m.command.Blur()
		}
		return m, nil

	case "enter":
		if m.focused == focusCommand {
			return m.handleEnter()
		}
	}

	var cmd tea.Cmd
	if m.focused == focusCommand {
		m.command, cmd = m.command.Update(msg)
	} else {
		m.nodeList, cmd = m.nodeList.Update(msg)
	}
	return m, cmd
}

// prefillCommand starts the command line with the selected node
func (m *monitorModel) prefillCommand() {
	if m.command.Value() != "" {
		return
	}
	if item, ok := m.nodeList.SelectedItem().(nodeItem); ok {
		m.command.SetValue(fmt.Sprintf("set %d ", item.state.ID))
		m.command.CursorEnd()
	}
}

// handleEnter parses the command line and sends it off the UI goroutine
func (m monitorModel) handleEnter() (tea.Model, tea.Cmd) {
	line := strings.TrimSpace(m.command.Value())
	if line == "" {
		return m, nil
	}
	m.command.SetValue("")

	if m.connectionLost {
		m.addLogEntry("Cannot send command: connection lost", true)
		return m, nil
	}

	c, err := parseMonitorCommand(line)
	if err != nil {
		m.addLogEntry(err.Error(), true)
		return m, nil
	}
	if c.verb == "reset" {
		m.session.coord.ResetFlow()
		m.complete = false
		m.stage = 0
		m.addLogEntry("Flow reset", false)
		return m, nil
	}

	coord := m.session.coord
	return m, func() tea.Msg {
		return commandResultMsg{line: line, err: c.apply(coord)}
	}
}

func (m *monitorModel) processEvent(e coordinator.Event) {
	switch e.Kind {
	case coordinator.EventReport:
		m.reports++
		if m.showAll && e.Message != nil {
			m.addLogEntry(fmt.Sprintf("Node %d PID %d (%d devices)",
				e.Node, e.Message.PID, len(e.Message.AL)+len(e.Message.TL)), false)
		}
	case coordinator.EventCommand:
		m.commands++
		if e.Message != nil {
			m.addLogEntry(fmt.Sprintf("-> node %d PID %d", e.Node, e.Message.PID), false)
		}
	case coordinator.EventAnomaly:
		m.anomalies++
		m.addLogEntry(fmt.Sprintf("Node %d: %s", e.Node, e.Text), true)
	case coordinator.EventDuplicate:
		m.duplicates++
		m.addLogEntry(e.Text, true)
	case coordinator.EventGap:
		m.gaps++
		m.addLogEntry(e.Text, true)
	case coordinator.EventRestart:
		m.addLogEntry(e.Text, false)
	case coordinator.EventStage:
		m.stage++
		m.addLogEntry(e.Text, false)
	case coordinator.EventComplete:
		m.complete = true
		m.addLogEntry(e.Text, false)
	}
	m.refreshNodes()
}

func (m *monitorModel) refreshNodes() {
	m.nodes = m.session.coord.Nodes()
	m.missed = 0
	items := make([]list.Item, len(m.nodes))
	for i, n := range m.nodes {
		items[i] = nodeItem{state: n}
		m.missed += n.Missed
	}
	m.nodeList.SetItems(items)
}

func (m *monitorModel) addLogEntry(message string, isError bool) {
	m.errorLog = append(m.errorLog, logEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})
	if len(m.errorLog) > m.maxLogEntries {
		m.errorLog = m.errorLog[len(m.errorLog)-m.maxLogEntries:]
	}
}

func (m *monitorModel) updateListSize() {
	listHeight := m.height / 2
	if listHeight < 6 {
		listHeight = 6
	}
	m.nodeList.SetSize(28, listHeight)
}

//////////////////////////////////////////////////////////////
// Command line
//////////////////////////////////////////////////////////////

// monitorCommand is a parsed command line
type monitorCommand struct {
	verb       string
	node       int
	device     int
	deviceType string
	arg        string
}

func parseMonitorCommand(line string) (monitorCommand, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return monitorCommand{}, fmt.Errorf("empty command")
	}
	c := monitorCommand{verb: strings.ToLower(fields[0])}

	want := map[string]int{"set": 5, "read": 4, "tread": 4, "config": 5, "cmd": 3, "reset": 1}
	n, ok := want[c.verb]
	if !ok {
		return c, fmt.Errorf("unknown command %q", fields[0])
	}
	if c.verb == "cmd" {
		if len(fields) < n {
			return c, fmt.Errorf("usage: cmd <node> <text>")
		}
	} else if len(fields) != n {
		return c, fmt.Errorf("%s expects %d arguments", c.verb, n-1)
	}
	if c.verb == "reset" {
		return c, nil
	}

	var err error
	if c.node, err = strconv.Atoi(fields[1]); err != nil || c.node < 2 {
		return c, fmt.Errorf("invalid node %q", fields[1])
	}
	if c.verb == "cmd" {
		c.arg = strings.Join(fields[2:], " ")
		return c, nil
	}
	if c.device, err = strconv.Atoi(fields[2]); err != nil || c.device < 1 {
		return c, fmt.Errorf("invalid device %q", fields[2])
	}
	c.deviceType = fields[3]
	if len(fields) == 5 {
		c.arg = fields[4]
	}
	return c, nil
}

func (c monitorCommand) apply(coord *coordinator.Coordinator) error {
	switch c.verb {
	case "set":
		return coord.SetState(c.node, c.device, c.deviceType, c.arg)
	case "read":
		return coord.Read(c.node, true, c.device, c.deviceType)
	case "tread":
		return coord.Read(c.node, false, c.device, c.deviceType)
	case "config":
		return coord.Configure(c.node, true, c.device, c.deviceType, c.arg)
	case "cmd":
		return coord.Command(c.node, c.arg)
	}
	return nil
}

//////////////////////////////////////////////////////////////
// View
//////////////////////////////////////////////////////////////

func (m monitorModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	statsLabelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	statsValueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	focusedBoxStyle := boxStyle.
		BorderForeground(lipgloss.Color("12"))

	var s strings.Builder
	s.WriteString(titleStyle.Render("ENDNODE - MONITOR"))
	s.WriteString("\n")
	status := m.connInfo
	if m.connectionLost {
		status = errorStyle.Render("DISCONNECTED")
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("Connection: %s | Tab: switch focus | q: quit", status)))
	s.WriteString("\n\n")

	s.WriteString(m.renderStatistics(statsLabelStyle, statsValueStyle, errorStyle, boxStyle))
	s.WriteString("\n")

	listBox := boxStyle
	if m.focused == focusNodeList {
		listBox = focusedBoxStyle
	}
	left := listBox.Render(m.nodeList.View())
	right := boxStyle.Render(m.renderNodeDetail(statsLabelStyle, statsValueStyle, headerStyle, errorStyle))
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, left, right))
	s.WriteString("\n")

	cmdBox := boxStyle
	if m.focused == focusCommand {
		cmdBox = focusedBoxStyle
	}
	s.WriteString(cmdBox.Width(m.width - 4).Render(m.command.View()))
	s.WriteString("\n")

	s.WriteString(m.renderEventLog(statsLabelStyle, headerStyle, errorStyle, warningStyle, boxStyle))
	return s.String()
}

func (m monitorModel) renderStatistics(statsLabelStyle, statsValueStyle, errorStyle, boxStyle lipgloss.Style) string {
	var c strings.Builder
	c.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Reports:"), statsValueStyle.Render(fmt.Sprintf("%d", m.reports)),
		statsLabelStyle.Render("Commands:"), statsValueStyle.Render(fmt.Sprintf("%d", m.commands)),
		statsLabelStyle.Render("Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f msg/s", m.reportRate)),
	))

	errs := func(n uint64) string {
		if n > 0 {
			return errorStyle.Render(fmt.Sprintf("%d", n))
		}
		return statsValueStyle.Render("0")
	}
	c.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s (%d missed)   %s %s\n",
		statsLabelStyle.Render("Decode:"), errs(m.decodeErrors),
		statsLabelStyle.Render("Duplicates:"), errs(m.duplicates),
		statsLabelStyle.Render("Gaps:"), errs(m.gaps), m.missed,
		statsLabelStyle.Render("Anomalies:"), errs(m.anomalies),
	))

	flow := "no flow"
	switch {
	case m.complete:
		flow = "complete"
	case m.flowStages > 0:
		flow = fmt.Sprintf("stage %d of %d", m.stage+1, m.flowStages)
	}
	c.WriteString(fmt.Sprintf("%s %s", statsLabelStyle.Render("Flow:"), statsValueStyle.Render(flow)))
	return boxStyle.Width(m.width - 4).Render(c.String())
}

func (m monitorModel) renderNodeDetail(statsLabelStyle, statsValueStyle, headerStyle, errorStyle lipgloss.Style) string {
	item, ok := m.nodeList.SelectedItem().(nodeItem)
	if !ok {
		return headerStyle.Render("Waiting for nodes...")
	}
	n := item.state

	var c strings.Builder
	c.WriteString(statsLabelStyle.Render(fmt.Sprintf("Node %d", n.ID)))
	c.WriteString("\n")
	c.WriteString(fmt.Sprintf("%s %s\n", statsLabelStyle.Render("Uptime:"),
		statsValueStyle.Render(endnode.FormatDuration(uint64(n.LastUptime)))))
	c.WriteString(fmt.Sprintf("%s %d   %s %d\n",
		statsLabelStyle.Render("In PID:"), n.LastPID,
		statsLabelStyle.Render("Out PID:"), n.OutPID))
	c.WriteString(fmt.Sprintf("%s %d   %s %d\n",
		statsLabelStyle.Render("Restarts:"), n.Restarts,
		statsLabelStyle.Render("Missed:"), n.Missed))
	if !n.LastSeen.IsZero() {
		c.WriteString(headerStyle.Render(fmt.Sprintf("last seen %s ago", time.Since(n.LastSeen).Truncate(time.Second))))
		c.WriteString("\n")
	}
	if n.LastError != "" {
		c.WriteString(errorStyle.Render("ER: " + n.LastError))
		c.WriteString("\n")
	}

	keys := make([]string, 0, len(n.States))
	for k := range n.States {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		c.WriteString(fmt.Sprintf("%s %s\n", statsLabelStyle.Render(k+":"), statsValueStyle.Render(n.States[k])))
	}
	return c.String()
}

func (m monitorModel) renderEventLog(statsLabelStyle, headerStyle, errorStyle, warningStyle, boxStyle lipgloss.Style) string {
	var s strings.Builder
	s.WriteString(statsLabelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	logHeight := m.height - m.height/2 - 16
	if logHeight < 5 {
		logHeight = 5
	}
	startIdx := len(m.errorLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	var c strings.Builder
	if len(m.errorLog) == 0 {
		c.WriteString(headerStyle.Render("  (no events yet)"))
	}
	for _, entry := range m.errorLog[startIdx:] {
		timestamp := entry.timestamp.Format("15:04:05.000")
		if entry.isError {
			c.WriteString(fmt.Sprintf("%s %s\n", headerStyle.Render(timestamp), errorStyle.Render("✗ "+entry.message)))
		} else {
			c.WriteString(fmt.Sprintf("%s %s\n", headerStyle.Render(timestamp), warningStyle.Render("ℹ "+entry.message)))
		}
	}
	s.WriteString(boxStyle.Width(m.width - 4).Render(c.String()))
	return s.String()
}
