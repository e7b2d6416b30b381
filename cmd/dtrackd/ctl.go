package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ar-tracking/DTrackSDK/pkg/command"
	"github.com/ar-tracking/DTrackSDK/pkg/sdk"
)

// deviceFailure marks a command the controller rejected, as opposed to a
// transport problem.
type deviceFailure struct {
	err *command.DeviceError
}

func (d *deviceFailure) Error() string { return d.err.Error() }

func (d *deviceFailure) Unwrap() error { return d.err }

var errNoController = errors.New("no controller: set command.host or --host")

// Values of "status active".
const (
	activeNone = "none"
	activeMea  = "mea"
	activeWait = "wait"
	activeErr  = "err"
)

func (a *app) ctlCmd() *cobra.Command {
	ctl := &cobra.Command{
		Use:   "ctl",
		Short: "Send commands to the controller",
	}

	var wait time.Duration
	start := &cobra.Command{
		Use:   "start",
		Short: "Start measurement unless it is already running",
		Args:  cobra.NoArgs,
		RunE: a.withController(func(s *sdk.SDK, cmd *cobra.Command, args []string) error {
			return a.start(s, wait)
		}),
	}
	start.Flags().DurationVar(&wait, "wait", 0, "wait until the measurement is active")

	stop := &cobra.Command{
		Use:   "stop",
		Short: "Stop measurement if it is running",
		Args:  cobra.NoArgs,
		RunE: a.withController(func(s *sdk.SDK, cmd *cobra.Command, args []string) error {
			return a.stop(s)
		}),
	}

	shutdown := &cobra.Command{
		Use:   "shutdown",
		Short: "Power the controller off",
		Args:  cobra.NoArgs,
		RunE: a.withController(func(s *sdk.SDK, cmd *cobra.Command, args []string) error {
			return a.check(s.Shutdown())
		}),
	}

	get := &cobra.Command{
		Use:   "get <category> <name>...",
		Short: "Print a controller parameter",
		Args:  cobra.MinimumNArgs(1),
		RunE: a.withController(func(s *sdk.SDK, cmd *cobra.Command, args []string) error {
			return a.get(s, strings.Join(args, " "))
		}),
	}

	set := &cobra.Command{
		Use:   "set <category> <name> <value>...",
		Short: "Change a controller parameter",
		Args:  cobra.MinimumNArgs(2),
		RunE: a.withController(func(s *sdk.SDK, cmd *cobra.Command, args []string) error {
			return a.check(s.SetParam(strings.Join(args, " ")))
		}),
	}

	raw := &cobra.Command{
		Use:   "cmd <command>...",
		Short: "Send a raw command and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: a.withController(func(s *sdk.SDK, cmd *cobra.Command, args []string) error {
			return a.raw(s, strings.Join(args, " "))
		}),
	}

	messages := &cobra.Command{
		Use:   "messages",
		Short: "Print the controller's pending event messages",
		Args:  cobra.NoArgs,
		RunE: a.withController(func(s *sdk.SDK, cmd *cobra.Command, args []string) error {
			return a.messages(s)
		}),
	}

	exec := &cobra.Command{
		Use:   "exec [file]",
		Short: "Execute commands line by line from a file or stdin",
		Long: `Execute commands line by line. Lines starting with "get " or "set " read or
change parameters, anything else is sent as a raw command. Empty lines and
lines starting with # are skipped. A failing line does not stop the run; the
first error is reported at the end.`,
		Args: cobra.MaximumNArgs(1),
		RunE: a.withController(func(s *sdk.SDK, cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("open command file: %w", err)
				}
				defer f.Close()
				in = f
			}
			return a.exec(s, in)
		}),
	}

	ctl.AddCommand(start, stop, shutdown, get, set, raw, messages, exec)
	return ctl
}

type controllerFunc func(s *sdk.SDK, cmd *cobra.Command, args []string) error

// withController connects before fn runs and prints the event messages that
// arrived while it ran.
func (a *app) withController(fn controllerFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		s, err := a.openController()
		if err != nil {
			return err
		}
		defer s.Close()
		err = fn(s, cmd, args)
		a.printMessages(s.Messages())
		return err
	}
}

// check turns a rejected command into a deviceFailure.
func (a *app) check(err error) error {
	var dev *command.DeviceError
	if errors.As(err, &dev) {
		return &deviceFailure{err: dev}
	}
	return err
}

func (a *app) start(s *sdk.SDK, wait time.Duration) error {
	if s.RemoteType() == sdk.RemoteDTrack1 {
		return s.StartMeasurement()
	}
	status, err := s.GetParam("status active")
	if err != nil {
		return a.check(err)
	}
	if status != activeMea && status != activeWait {
		if err := s.StartMeasurement(); err != nil {
			return a.check(err)
		}
	}
	if wait <= 0 {
		return nil
	}
	deadline := time.Now().Add(wait)
	for {
		status, err := s.GetParam("status active")
		if err != nil {
			return a.check(err)
		}
		if status == activeMea {
			return nil
		}
		if status == activeErr {
			return errors.New("measurement failed to start")
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("measurement not active after %s: %s", wait, status)
		}
		time.Sleep(200 * time.Millisecond)
	}
}

func (a *app) stop(s *sdk.SDK) error {
	if s.RemoteType() == sdk.RemoteDTrack1 {
		return s.StopMeasurement()
	}
	status, err := s.GetParam("status active")
	if err != nil {
		return a.check(err)
	}
	if status == activeNone || status == activeErr {
		return nil
	}
	return a.check(s.StopMeasurement())
}

func (a *app) get(s *sdk.SDK, parameter string) error {
	value, err := s.GetParam(parameter)
	if err != nil {
		return a.check(err)
	}
	fmt.Fprintln(a.stdout, value)
	return nil
}

func (a *app) raw(s *sdk.SDK, line string) error {
	if !strings.HasPrefix(line, "dtrack2 ") {
		line = "dtrack2 " + line
	}
	reply, err := s.SendCommandWithResponse(line)
	if err != nil {
		return a.check(err)
	}
	fmt.Fprintln(a.stdout, reply)
	return nil
}

func (a *app) messages(s *sdk.SDK) error {
	for {
		msg, ok, err := s.GetMessage()
		if err != nil {
			return a.check(err)
		}
		if !ok {
			return nil
		}
		fmt.Fprintln(a.stdout, msg)
	}
}

func (a *app) exec(s *sdk.SDK, in io.Reader) error {
	var first error
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := a.execLine(s, line); err != nil {
			fmt.Fprintf(a.stderr, "%s: %v\n", line, err)
			if first == nil {
				first = err
			}
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read commands: %w", err)
	}
	return first
}

func (a *app) execLine(s *sdk.SDK, line string) error {
	for _, prefix := range []string{"get ", "dtrack2 get "} {
		if rest, ok := strings.CutPrefix(line, prefix); ok {
			return a.get(s, rest)
		}
	}
	for _, prefix := range []string{"set ", "dtrack2 set "} {
		if rest, ok := strings.CutPrefix(line, prefix); ok {
			return a.check(s.SetParam(rest))
		}
	}
	return a.raw(s, line)
}

func (a *app) printMessages(msgs []command.Message) {
	for _, msg := range msgs {
		fmt.Fprintln(a.stderr, "message:", msg)
	}
}
