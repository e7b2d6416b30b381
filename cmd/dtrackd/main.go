package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ar-tracking/DTrackSDK/pkg/config"
	"github.com/ar-tracking/DTrackSDK/pkg/logger"
	"github.com/ar-tracking/DTrackSDK/pkg/sdk"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

type app struct {
	stdout io.Writer
	stderr io.Writer

	configPath string
	host       string
	logLevel   string

	cfg    config.Config
	logger *slog.Logger
	closer io.Closer
}

func run(args []string, stdout io.Writer, stderr io.Writer) int {
	a := &app{stdout: stdout, stderr: stderr, logger: slog.New(slog.DiscardHandler)}
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.Execute()
	if a.closer != nil {
		_ = a.closer.Close()
	}
	if err == nil {
		return 0
	}
	fmt.Fprintln(stderr, "error:", err)
	var derr *deviceFailure
	if errors.As(err, &derr) {
		return 3
	}
	return 1
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "dtrackd",
		Short: "Receive, record and control an optical tracking system",
		Long: `dtrackd receives tracking data from a DTrack controller, fans it out to
a JSONL recording, a Foxglove WebSocket bridge and a terminal monitor, and
sends commands and feedback to the controller.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", config.DefaultConfigPath, "configuration file")
	root.PersistentFlags().StringVar(&a.host, "host", "", "controller host, overrides command.host")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "debug, info, warn or error, overrides log.level")

	root.AddCommand(
		a.listenCmd(),
		a.monitorCmd(),
		a.dumpCmd(),
		a.ctlCmd(),
		a.feedbackCmd(),
		a.simulateCmd(),
	)
	return root
}

func (a *app) setup() error {
	cfg, _, err := config.LoadOrDefault(a.configPath)
	if err != nil {
		return err
	}
	if a.host != "" {
		cfg.Command.Host = a.host
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	log, closer, err := logger.New(logger.Options{
		Level:      cfg.Log.Level,
		Path:       cfg.LogPath(),
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Fallback:   a.stderr,
	})
	if err != nil {
		return fmt.Errorf("set up logging: %w", err)
	}
	a.logger, a.closer = log, closer
	return nil
}

func (a *app) sdkConfig(dataPort int) sdk.Config {
	remote := sdk.RemoteUnknown
	switch a.cfg.Command.Remote {
	case "dtrack1":
		remote = sdk.RemoteDTrack1
	case "dtrack2":
		remote = sdk.RemoteDTrack2
	}
	controller := a.cfg.Command.Host
	if a.cfg.Data.Multicast != "" {
		controller = a.cfg.Data.Multicast
	}
	return sdk.Config{
		DataPort:       dataPort,
		Controller:     controller,
		Remote:         remote,
		CommandPort:    a.cfg.Command.Port,
		DTrack1Port:    a.cfg.Command.DTrack1Port,
		FeedbackPort:   a.cfg.Command.FeedbackPort,
		DataTimeout:    a.cfg.DataTimeout(),
		CommandTimeout: a.cfg.CommandTimeout(),
		BufferSize:     a.cfg.Data.BufferSize,
	}
}

// openData opens the configured data port for receiving.
func (a *app) openData(opts ...sdk.Option) (*sdk.SDK, error) {
	opts = append([]sdk.Option{sdk.WithLogger(a.logger)}, opts...)
	s := sdk.New(a.sdkConfig(a.cfg.Data.Port), opts...)
	if !s.IsDataInterfaceValid() {
		_ = s.Close()
		return nil, fmt.Errorf("cannot open data port %d", a.cfg.Data.Port)
	}
	return s, nil
}

// openController connects to the controller from an ephemeral data port so
// it can run next to a listening daemon.
func (a *app) openController() (*sdk.SDK, error) {
	if a.cfg.Command.Host == "" {
		return nil, errNoController
	}
	s := sdk.New(a.sdkConfig(0), sdk.WithLogger(a.logger))
	switch {
	case !s.IsDataInterfaceValid():
		_ = s.Close()
		return nil, errors.New("cannot open a local UDP port")
	case s.RemoteType() == sdk.RemoteUnknown,
		s.RemoteType() == sdk.RemoteDTrack2 && !s.IsCommandInterfaceValid():
		_ = s.Close()
		return nil, fmt.Errorf("no connection to controller %s", a.cfg.Command.Host)
	}
	return s, nil
}
