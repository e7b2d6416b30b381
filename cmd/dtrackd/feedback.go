package main

import (
	"github.com/spf13/cobra"

	"github.com/ar-tracking/DTrackSDK/pkg/sdk"
)

func (a *app) feedbackCmd() *cobra.Command {
	fb := &cobra.Command{
		Use:   "feedback",
		Short: "Send tactile or flystick feedback",
	}

	var (
		id        int
		duration  float64
		frequency float64
		pattern   int
	)
	beep := &cobra.Command{
		Use:   "beep",
		Short: "Let a flystick beep",
		Args:  cobra.NoArgs,
		RunE: a.withFeedback(func(s *sdk.SDK) error {
			return s.FlyStickBeep(id, duration, frequency)
		}),
	}
	beep.Flags().IntVar(&id, "id", 0, "flystick id")
	beep.Flags().Float64Var(&duration, "duration", 500, "duration in ms")
	beep.Flags().Float64Var(&frequency, "frequency", 2000, "frequency in Hz")

	vibrate := &cobra.Command{
		Use:   "vibrate",
		Short: "Let a flystick vibrate",
		Args:  cobra.NoArgs,
		RunE: a.withFeedback(func(s *sdk.SDK) error {
			return s.FlyStickVibration(id, pattern)
		}),
	}
	vibrate.Flags().IntVar(&id, "id", 0, "flystick id")
	vibrate.Flags().IntVar(&pattern, "pattern", 1, "vibration pattern")

	var (
		hand     int
		finger   int
		fingers  int
		strength float64
	)
	tactile := &cobra.Command{
		Use:   "tactile",
		Short: "Set the feedback strength of one finger",
		Args:  cobra.NoArgs,
		RunE: a.withFeedback(func(s *sdk.SDK) error {
			return s.TactileFinger(hand, finger, strength)
		}),
	}
	tactile.Flags().IntVar(&hand, "hand", 0, "hand id")
	tactile.Flags().IntVar(&finger, "finger", 0, "finger, 0 is the thumb")
	tactile.Flags().Float64Var(&strength, "strength", 0, "strength between 0 and 1")

	off := &cobra.Command{
		Use:   "tactile-off",
		Short: "Switch the feedback of a hand off",
		Args:  cobra.NoArgs,
		RunE: a.withFeedback(func(s *sdk.SDK) error {
			return s.TactileHandOff(hand, fingers)
		}),
	}
	off.Flags().IntVar(&hand, "hand", 0, "hand id")
	off.Flags().IntVar(&fingers, "fingers", 3, "number of fingers")

	fb.AddCommand(beep, vibrate, tactile, off)
	return fb
}

// withFeedback sends to the configured controller. Feedback travels over
// UDP, so no command connection is needed.
func (a *app) withFeedback(fn func(s *sdk.SDK) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if a.cfg.Command.Host == "" {
			return errNoController
		}
		cfg := a.sdkConfig(0)
		cfg.Remote = sdk.RemoteDTrack1
		cfg.DTrack1Port = 0
		s := sdk.New(cfg, sdk.WithLogger(a.logger))
		defer s.Close()
		return fn(s)
	}
}
