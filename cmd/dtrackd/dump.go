package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/cobra"

	"github.com/ar-tracking/DTrackSDK/pkg/errclass"
	"github.com/ar-tracking/DTrackSDK/pkg/legacy"
	"github.com/ar-tracking/DTrackSDK/pkg/protocol"
	"github.com/ar-tracking/DTrackSDK/pkg/sdk"
)

type dumpOptions struct {
	port    int
	count   int
	verbose bool
	raw     bool
	legacy  bool
}

func (a *app) dumpCmd() *cobra.Command {
	var opts dumpOptions
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print received frames",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("port") {
				a.cfg.Data.Port = opts.port
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s, err := a.openData()
			if err != nil {
				return err
			}
			defer s.Close()
			return a.dump(ctx, s, opts)
		},
	}
	f := cmd.Flags()
	f.IntVarP(&opts.port, "port", "p", 0, "UDP data port, overrides data.port")
	f.IntVarP(&opts.count, "count", "n", 0, "stop after this many frames, 0 runs until interrupted")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "dump every field of each frame")
	f.BoolVar(&opts.raw, "raw", false, "print the datagram as received")
	f.BoolVar(&opts.legacy, "legacy", false, "dump frames in the single precision legacy layout")
	return cmd
}

func (a *app) dump(ctx context.Context, s *sdk.SDK, opts dumpOptions) error {
	cfg := spew.ConfigState{Indent: "  ", SortKeys: true, DisablePointerAddresses: true}
	for n := 0; opts.count <= 0 || n < opts.count; {
		if ctx.Err() != nil {
			return nil
		}
		err := s.Receive()
		switch errclass.Of(err) {
		case errclass.None:
		case errclass.Timeout:
			continue
		case errclass.Parse:
			fmt.Fprintln(a.stderr, "bad datagram:", err)
			continue
		default:
			return err
		}
		n++

		switch {
		case opts.raw:
			fmt.Fprint(a.stdout, strings.TrimRight(string(s.Raw()), "\x00"))
		case opts.legacy:
			cfg.Fdump(a.stdout, legacy.FromFrame(s.Frame()))
		case opts.verbose:
			cfg.Fdump(a.stdout, s.Frame())
		default:
			writeSummary(a.stdout, s.Frame())
		}
		for _, msg := range s.Messages() {
			fmt.Fprintln(a.stdout, "message:", msg)
		}
	}
	return nil
}

// writeSummary prints one line per frame and one per tracked 6DOF entity.
func writeSummary(w io.Writer, f *protocol.Frame) {
	fmt.Fprintf(w, "frame %d", f.Counter)
	if f.Timestamp >= 0 {
		fmt.Fprintf(w, " ts %.3f", f.Timestamp)
	}
	fmt.Fprintf(w, " bodies %d/%d flysticks %d/%d meatools %d/%d markers %d hands %d/%d humans %d inertials %d\n",
		tracked(f.Bodies, protocol.Body.IsTracked), len(f.Bodies),
		tracked(f.FlySticks, protocol.FlyStick.IsTracked), len(f.FlySticks),
		tracked(f.MeaTools, protocol.MeaTool.IsTracked), len(f.MeaTools),
		len(f.Markers),
		tracked(f.Hands, protocol.Hand.IsTracked), len(f.Hands),
		len(f.Humans),
		len(f.Inertials),
	)
	for _, b := range f.Bodies {
		if b.IsTracked() {
			fmt.Fprintf(w, "  body %d q %.3f loc %.1f %.1f %.1f\n", b.ID, b.Quality, b.Loc[0], b.Loc[1], b.Loc[2])
		}
	}
	for _, fs := range f.FlySticks {
		if fs.IsTracked() {
			fmt.Fprintf(w, "  flystick %d q %.3f loc %.1f %.1f %.1f buttons %v\n", fs.ID, fs.Quality, fs.Loc[0], fs.Loc[1], fs.Loc[2], fs.Buttons)
		}
	}
	for _, mt := range f.MeaTools {
		if mt.IsTracked() {
			fmt.Fprintf(w, "  meatool %d q %.3f loc %.1f %.1f %.1f\n", mt.ID, mt.Quality, mt.Loc[0], mt.Loc[1], mt.Loc[2])
		}
	}
	for _, h := range f.Hands {
		if h.IsTracked() {
			fmt.Fprintf(w, "  hand %d %s q %.3f loc %.1f %.1f %.1f\n", h.ID, h.Handedness, h.Quality, h.Loc[0], h.Loc[1], h.Loc[2])
		}
	}
}

func tracked[T any](items []T, fn func(T) bool) int {
	n := 0
	for _, item := range items {
		if fn(item) {
			n++
		}
	}
	return n
}
