package legacy

import (
	"errors"
	"fmt"
	"time"
)

// Commander sends one DTrack1 style command, e.g. an *sdk.SDK.
type Commander interface {
	SendCommand(cmd string) error
}

// Remote drives a DTrack1 controller through its three switches: cameras,
// tracking calculation and data output. Commands are only sent while the
// cameras are on; switching them on replays the other two switches.
type Remote struct {
	cmd Commander
	// TrackingDelay is the pause after enabling tracking, which older
	// controllers need before accepting further commands.
	TrackingDelay time.Duration

	cameras  bool
	tracking bool
	sending  bool
}

// NewRemote starts with cameras off and tracking and sending on.
func NewRemote(cmd Commander) *Remote {
	return &Remote{
		cmd:           cmd,
		TrackingDelay: 1200 * time.Millisecond,
		tracking:      true,
		sending:       true,
	}
}

func (r *Remote) Cameras(on bool) error {
	r.cameras = on
	if !on {
		if r.sending {
			if err := r.cmd.SendCommand("dtrack 32"); err != nil {
				return err
			}
		}
		return r.cmd.SendCommand("dtrack 10 0")
	}
	if !r.tracking {
		return r.cmd.SendCommand("dtrack 10 1")
	}
	if err := r.cmd.SendCommand("dtrack 10 3"); err != nil {
		return err
	}
	if r.sending {
		return r.cmd.SendCommand("dtrack 31")
	}
	return nil
}

func (r *Remote) Tracking(on bool) error {
	r.tracking = on
	if !r.cameras {
		return nil
	}
	if !on {
		return r.cmd.SendCommand("dtrack 10 1")
	}
	err := r.cmd.SendCommand("dtrack 10 3")
	if r.TrackingDelay > 0 {
		time.Sleep(r.TrackingDelay)
	}
	return err
}

// Sending fails with ErrCamerasOff while the cameras are off.
func (r *Remote) Sending(on bool) error {
	r.sending = on
	if !r.cameras {
		return ErrCamerasOff
	}
	if on {
		return r.cmd.SendCommand("dtrack 31")
	}
	return r.cmd.SendCommand("dtrack 32")
}

// SendFrames requests exactly n frames of output data.
func (r *Remote) SendFrames(n int) error {
	if !r.cameras {
		return nil
	}
	return r.cmd.SendCommand(fmt.Sprintf("dtrack 33 %d", n))
}

var ErrCamerasOff = errors.New("legacy: cameras are off")
