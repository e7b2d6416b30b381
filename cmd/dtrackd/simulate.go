package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ar-tracking/DTrackSDK/pkg/logger"
	"github.com/ar-tracking/DTrackSDK/pkg/protocol"
	"github.com/ar-tracking/DTrackSDK/pkg/sdk"
	"github.com/ar-tracking/DTrackSDK/pkg/transport"
)

const (
	mockRollAmplitudeRad  = 35.0 * math.Pi / 180.0
	mockPitchAmplitudeRad = 25.0 * math.Pi / 180.0
	mockYawAmplitudeRad   = 40.0 * math.Pi / 180.0

	mockRollFreqHz  = 0.23
	mockPitchFreqHz = 0.31
	mockYawFreqHz   = 0.17

	mockRollPhaseRad  = 0.0
	mockPitchPhaseRad = math.Pi / 3.0
	mockYawPhaseRad   = 2.0 * math.Pi / 3.0

	// Bodies circle the room origin at this radius and height, in mm.
	mockOrbitRadius = 800.0
	mockOrbitHeight = 1200.0
	mockOrbitFreqHz = 0.1
)

type simulateOptions struct {
	target string
	rate   int
	bodies int
	count  int
	replay string
	speed  float64
}

func (a *app) simulateCmd() *cobra.Command {
	var opts simulateOptions
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Send synthetic or recorded tracking data",
		Long: `Send tracking datagrams to a data port, either synthetic bodies, one
flystick and their markers, or the frames of a JSONL recording.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.target == "" {
				opts.target = "127.0.0.1:" + strconv.Itoa(a.cfg.Data.Port)
			}
			ip, port, err := resolveTarget(opts.target)
			if err != nil {
				return err
			}
			out, err := transport.ListenData(0, transport.WithDataLogger(a.logger))
			if err != nil {
				return fmt.Errorf("open sending socket: %w", err)
			}
			defer out.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			dst := datagramTarget{sender: out, ip: ip, port: port}
			if opts.replay != "" {
				f, err := os.Open(opts.replay)
				if err != nil {
					return fmt.Errorf("open recording: %w", err)
				}
				defer f.Close()
				n, err := replay(ctx, f, dst, opts.speed)
				a.logger.Info("replay finished", "frames", n)
				return err
			}
			return simulate(ctx, dst, opts)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.target, "target", "t", "", "destination host:port, default 127.0.0.1 and data.port")
	f.IntVar(&opts.rate, "rate", 60, "frames per second")
	f.IntVar(&opts.bodies, "bodies", 2, "number of synthetic bodies")
	f.IntVarP(&opts.count, "count", "n", 0, "stop after this many frames, 0 runs until interrupted")
	f.StringVar(&opts.replay, "replay", "", "JSONL recording to send instead of synthetic frames")
	f.Float64Var(&opts.speed, "speed", 1, "replay speed factor, 0 sends as fast as possible")
	return cmd
}

func resolveTarget(target string) (net.IP, int, error) {
	host, port, err := sdk.ParseConnection(target)
	if err != nil {
		return nil, 0, err
	}
	if host == "" {
		host = "127.0.0.1"
	}
	addr, err := net.ResolveIPAddr("ip4", host)
	if err != nil {
		return nil, 0, fmt.Errorf("resolve %s: %w", host, err)
	}
	return addr.IP, port, nil
}

type datagramTarget struct {
	sender transport.Sender
	ip     net.IP
	port   int
}

func (d datagramTarget) send(data []byte) error {
	return d.sender.SendTo(d.ip, d.port, string(data))
}

func simulate(ctx context.Context, dst datagramTarget, opts simulateOptions) error {
	if opts.rate <= 0 {
		opts.rate = 60
	}
	ticker := time.NewTicker(time.Second / time.Duration(opts.rate))
	defer ticker.Stop()

	start := time.Now()
	var buf []byte
	for seq := uint32(0); opts.count <= 0 || int(seq) < opts.count; seq++ {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		t := time.Since(start).Seconds()
		buf = protocol.AppendFrame(buf[:0], mockFrame(seq, t, opts.bodies))
		if err := dst.send(buf); err != nil {
			return err
		}
	}
	return nil
}

// mockFrame places n bodies evenly on a circle, all turning the same way,
// with a marker at each body and a flystick whose front button toggles
// every second.
func mockFrame(seq uint32, t float64, n int) *protocol.Frame {
	f := protocol.NewFrame()
	f.Counter = seq
	f.Timestamp = math.Mod(t, 86400)
	f.Calibrated.Bodies = n
	f.Calibrated.FlySticks = 1

	rot := mockRotation(t)
	for i := 0; i < n; i++ {
		angle := 2*math.Pi*mockOrbitFreqHz*t + 2*math.Pi*float64(i)/float64(n)
		loc := protocol.Location{
			mockOrbitRadius * math.Cos(angle),
			mockOrbitRadius * math.Sin(angle),
			mockOrbitHeight,
		}
		f.Bodies = append(f.Bodies, protocol.Body{ID: i, Quality: 1, Loc: loc, Rot: rot})
		f.Markers = append(f.Markers, protocol.Marker{ID: i + 1, Quality: 1, Loc: loc})
	}

	f.FlySticks = []protocol.FlyStick{{
		ID:        0,
		Quality:   1,
		Buttons:   []bool{int(t)%2 == 1, false, false, false, false, false, false, false},
		Joysticks: []float64{math.Sin(t), math.Cos(t)},
		Loc:       protocol.Location{0, 0, mockOrbitHeight},
		Rot:       protocol.Identity,
	}}
	return f
}

func mockEulerAngles(t float64) (roll float64, pitch float64, yaw float64) {
	roll = mockRollAmplitudeRad * math.Sin(2.0*math.Pi*mockRollFreqHz*t+mockRollPhaseRad)
	pitch = mockPitchAmplitudeRad * math.Sin(2.0*math.Pi*mockPitchFreqHz*t+mockPitchPhaseRad)
	yaw = mockYawAmplitudeRad * math.Sin(2.0*math.Pi*mockYawFreqHz*t+mockYawPhaseRad)
	return
}

// mockRotation is the ZYX intrinsic rotation (yaw, pitch, roll) as a
// column-major matrix.
func mockRotation(t float64) protocol.Rotation {
	roll, pitch, yaw := mockEulerAngles(t)
	cr, sr := math.Cos(roll), math.Sin(roll)
	cp, sp := math.Cos(pitch), math.Sin(pitch)
	cy, sy := math.Cos(yaw), math.Sin(yaw)

	return protocol.Rotation{
		cy * cp, sy * cp, -sp,
		cy*sp*sr - sy*cr, sy*sp*sr + cy*cr, cp * sr,
		cy*sp*cr + sy*sr, sy*sp*cr - cy*sr, cp * cr,
	}
}

// replay sends the frames of a recording, preferring the recorded raw
// datagram. With speed > 0 the recorded timing is reproduced.
func replay(ctx context.Context, r io.Reader, dst datagramTarget, speed float64) (int, error) {
	var (
		sent      int
		first     time.Time
		startedAt time.Time
	)
	err := logger.ReadJSONL(r, func(rec logger.Record) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if speed > 0 {
			if ts, err := rec.Time(); err == nil {
				if first.IsZero() {
					first, startedAt = ts, time.Now()
				}
				due := startedAt.Add(time.Duration(float64(ts.Sub(first)) / speed))
				if wait := time.Until(due); wait > 0 {
					select {
					case <-ctx.Done():
						return ctx.Err()
					case <-time.After(wait):
					}
				}
			}
		}

		data := []byte(rec.Raw)
		if len(data) == 0 {
			if rec.Frame == nil {
				return nil
			}
			data = protocol.Encode(rec.Frame)
		}
		if err := dst.send(data); err != nil {
			return err
		}
		sent++
		return nil
	})
	if ctx.Err() != nil {
		return sent, nil
	}
	return sent, err
}
