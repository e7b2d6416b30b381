package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ar-tracking/DTrackSDK/pkg/bridge/foxglove"
	"github.com/ar-tracking/DTrackSDK/pkg/command"
	"github.com/ar-tracking/DTrackSDK/pkg/engine"
	"github.com/ar-tracking/DTrackSDK/pkg/logger"
	"github.com/ar-tracking/DTrackSDK/pkg/metrics"
	"github.com/ar-tracking/DTrackSDK/pkg/sdk"
)

type listenOptions struct {
	port     int
	record   string
	raw      bool
	foxglove bool
	metrics  string
	poll     time.Duration
	start    bool
}

func (a *app) listenCmd() *cobra.Command {
	var opts listenOptions
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Receive tracking data and publish it to the configured sinks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if flags.Changed("port") {
				a.cfg.Data.Port = opts.port
			}
			record := a.cfg.RecordPath()
			if flags.Changed("record") {
				record = opts.record
			}
			if flags.Changed("raw") {
				a.cfg.Record.Raw = opts.raw
			}
			if flags.Changed("foxglove") {
				a.cfg.Foxglove.Enabled = opts.foxglove
			}
			if flags.Changed("metrics") {
				a.cfg.Metrics.Listen = opts.metrics
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.listen(ctx, record, opts)
		},
	}
	f := cmd.Flags()
	f.IntVarP(&opts.port, "port", "p", 0, "UDP data port, overrides data.port")
	f.StringVarP(&opts.record, "record", "o", "", "JSONL recording file, overrides record.path")
	f.BoolVar(&opts.raw, "raw", false, "also record the raw datagrams")
	f.BoolVar(&opts.foxglove, "foxglove", false, "serve the Foxglove WebSocket bridge")
	f.StringVar(&opts.metrics, "metrics", "", "serve Prometheus metrics on this address")
	f.DurationVar(&opts.poll, "poll", time.Second, "poll interval for controller event messages, 0 disables")
	f.BoolVar(&opts.start, "start", false, "start measurement first and stop it on exit")
	return cmd
}

func (a *app) listen(ctx context.Context, record string, opts listenOptions) error {
	m := metrics.New()
	s, err := a.openData(sdk.WithObserver(m))
	if err != nil {
		return err
	}
	defer s.Close()
	a.logger.Info("listening",
		"port", s.DataPort(),
		"remote", s.RemoteType().String(),
		"commands", s.IsCommandInterfaceValid(),
	)

	if opts.start {
		if err := s.StartMeasurement(); err != nil {
			return fmt.Errorf("start measurement: %w", a.check(err))
		}
		defer func() {
			if err := s.StopMeasurement(); err != nil {
				a.logger.Warn("stop measurement", "err", err)
			}
		}()
	}

	hub := engine.NewHub(engine.WithDropHandler(m.ObserveDrop))
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		st := hub.Stats()
		a.logger.Info("hub stopped", "published", st.Published, "dropped", st.Dropped)
		return nil
	})

	if record != "" {
		f, err := os.OpenFile(record, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open recording: %w", err)
		}
		defer f.Close()
		w := logger.NewJSONLWriter(f, logger.WithRaw(a.cfg.Record.Raw))
		sub := hub.Subscribe()
		a.logger.Info("recording", "path", record, "session", w.Session())
		g.Go(func() error {
			return w.Consume(gctx, sub)
		})
	}

	if a.cfg.Foxglove.Enabled {
		srv := foxglove.NewServer(a.foxgloveConfig(), hub, foxglove.WithLogger(a.logger))
		a.logger.Info("foxglove bridge", "addr", a.cfg.Foxglove.WSAddr)
		g.Go(func() error {
			return srv.Run(gctx)
		})
	}

	if a.cfg.Metrics.Listen != "" {
		a.logger.Info("metrics", "addr", a.cfg.Metrics.Listen)
		g.Go(func() error {
			return serveMetrics(gctx, a.cfg.Metrics.Listen, m)
		})
	}

	g.Go(func() error {
		return engine.Pump(gctx, s, hub,
			engine.WithPumpLogger(a.logger),
			engine.WithMessagePoll(opts.poll),
			engine.WithMessageHandler(func(msg command.Message) {
				m.ObserveMessage(msg)
				a.logger.Info("controller message",
					"origin", msg.Origin,
					"status", msg.Status,
					"frame", msg.FrameNr,
					"error_id", msg.ErrorID,
					"text", msg.Text,
				)
			}),
		)
	})
	return g.Wait()
}

func (a *app) foxgloveConfig() foxglove.Config {
	fc := a.cfg.Foxglove
	return foxglove.Config{
		WSAddr:        fc.WSAddr,
		ParentFrameID: fc.ParentFrame,
		FramePrefix:   fc.FramePrefix,
		FrameTopic:    fc.FrameTopic,
		MarkerTopic:   fc.MarkerTopic,
		LogTopic:      fc.LogTopic,
		LogName:       fc.LogName,
	}
}

func serveMetrics(ctx context.Context, addr string, m *metrics.Metrics) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	}
}
