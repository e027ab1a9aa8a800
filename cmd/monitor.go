// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/endnode/internal/coordinator"
	"github.com/Thermoquad/endnode/pkg/endnode"
	"github.com/Thermoquad/endnode/pkg/transport"
)

var (
	monitorTextMode bool
	monitorShowAll  bool
	monitorStartPID uint32
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Monitor and command end nodes from an interactive TUI",
	Long: `Act as the coordinator and monitor every end node on the link.

The TUI shows one entry per node with its sequence state, link statistics,
the progress of the room flow and a log of anomalies. Commands can be typed
into the command line:

  set <node> <device> <type> <state>     set an activation device state
  read <node> <device> <type>            request an activation device report
  tread <node> <device> <type>           request a trigger device report
  config <node> <device> <type> <cfg>    configure an activation device
  cmd <node> <text>                      send a free-form command
  reset                                  restart the room flow

Tab switches between the node list and the command line.

With --text, events are printed line by line instead.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().BoolVar(&monitorTextMode, "text", false, "Print events instead of starting the TUI")
	monitorCmd.Flags().BoolVar(&monitorShowAll, "show-all", false, "Log every report, not only anomalies")
	monitorCmd.Flags().Uint32Var(&monitorStartPID, "start-pid", 0, "PID before the first command sent to each node")
}

// monitorSession ties the coordinator to its output
type monitorSession struct {
	link  transport.Link
	coord *coordinator.Coordinator
	emit  func(tea.Msg)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !monitorTextMode {
		// Log lines would corrupt the alt screen
		cfg.Logging.Level = "none"
		cfg.Logging.Scopes = nil
	}
	factory, err := newLoggerFactory(cfg)
	if err != nil {
		return err
	}
	codec, err := codecFor(cfg)
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

	s := &monitorSession{link: link}
	s.coord, err = coordinator.New(coordinator.Config{
		Link:          link,
		Codec:         codec,
		Flow:          cfg.Flow,
		StartPID:      monitorStartPID,
		OnEvent:       func(e coordinator.Event) { s.emit(eventMsg{event: e}) },
		LoggerFactory: factory,
	})
	if err != nil {
		return err
	}

	if monitorTextMode {
		s.emit = printMonitorMsg
		fmt.Printf("Endnode - Monitor\n")
		fmt.Printf("Connection: %s\n", link.Describe())
		fmt.Printf("Press Ctrl+C to exit\n\n")
		return s.readLoop(ctx)
	}

	m := initialMonitorModel(s, link.Describe(), len(cfg.Flow), monitorShowAll)
	p := tea.NewProgram(m, tea.WithAltScreen())
	s.emit = func(msg tea.Msg) { p.Send(msg) }

	go func() {
		err := s.readLoop(ctx)
		p.Send(linkClosedMsg{err: err})
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %v", err)
	}
	return nil
}

// readLoop feeds received payloads to the coordinator until the link fails
func (s *monitorSession) readLoop(ctx context.Context) error {
	for {
		payload, err := s.link.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, transport.ErrClosed) {
				return nil
			}
			return err
		}
		if err := s.coord.Handle(payload); err != nil {
			s.emit(decodeErrorMsg{err: err, payload: payload})
		}
	}
}

// printMonitorMsg is the --text output
func printMonitorMsg(msg tea.Msg) {
	switch msg := msg.(type) {
	case decodeErrorMsg:
		fmt.Printf("[ERROR] %v: %q\n", msg.err, msg.payload)
	case eventMsg:
		e := msg.event
		switch e.Kind {
		case coordinator.EventReport, coordinator.EventCommand:
			if monitorShowAll || e.Kind == coordinator.EventCommand {
				fmt.Print(endnode.FormatMessage(e.Message, e.Time))
			}
		default:
			fmt.Printf("[%s] %-9s %s\n", e.Time.Format("15:04:05.000"), e.Kind, e.Text)
		}
	}
}
