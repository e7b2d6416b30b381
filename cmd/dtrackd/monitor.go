package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/ar-tracking/DTrackSDK/pkg/engine"
	"github.com/ar-tracking/DTrackSDK/pkg/tui"
)

func (a *app) monitorCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Show the live tracking data in the terminal",
		Long: `Show the entities of the newest frame and the controller messages.

Key bindings:
  Tab / Shift+Tab  Navigate between tabs
  1 / 2 / 3        Targets / Markers / Messages
  c                Clear messages
  q / Ctrl+C       Quit`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("port") {
				a.cfg.Data.Port = port
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.monitor(ctx)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "UDP data port, overrides data.port")
	return cmd
}

func (a *app) monitor(ctx context.Context) error {
	s, err := a.openData()
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	hub := engine.NewHub()
	go hub.Run(ctx)
	events := hub.Subscribe()

	model := tui.New(events, tui.Options{
		Refresh: time.Duration(a.cfg.Monitor.RefreshMS) * time.Millisecond,
		MaxRows: a.cfg.Monitor.MaxRows,
		Source:  fmt.Sprintf("udp :%d", s.DataPort()),
	})
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithOutput(a.stdout))

	pumpErr := make(chan error, 1)
	go func() {
		err := engine.Pump(ctx, s, hub,
			engine.WithPumpLogger(a.logger),
			engine.WithMessagePoll(time.Second),
		)
		pumpErr <- err
		if err != nil {
			p.Quit()
		}
	}()
	go func() {
		<-ctx.Done()
		p.Quit()
	}()

	_, err = p.Run()
	cancel()
	if perr := <-pumpErr; perr != nil {
		return perr
	}
	return err
}
