package sdk

import (
	"net"

	"github.com/ar-tracking/DTrackSDK/pkg/errclass"
	"github.com/ar-tracking/DTrackSDK/pkg/protocol"
)

// TactileFinger sets the feedback strength of one finger of a glove.
func (s *SDK) TactileFinger(hand, finger int, strength float64) error {
	cmd, err := protocol.TactileFinger(hand, finger, strength)
	if err != nil {
		return err
	}
	return s.sendFeedback(cmd)
}

// TactileHand sets all fingers of a glove at once.
func (s *SDK) TactileHand(hand int, strengths []float64) error {
	cmd, err := protocol.TactileHand(hand, strengths)
	if err != nil {
		return err
	}
	return s.sendFeedback(cmd)
}

// TactileHandOff switches feedback off for the first fingers of a glove.
func (s *SDK) TactileHandOff(hand, fingers int) error {
	return s.TactileHand(hand, make([]float64, max(fingers, 0)))
}

func (s *SDK) FlyStickBeep(id int, durationMs, frequencyHz float64) error {
	return s.sendFeedback(protocol.FlyStickBeep(id, durationMs, frequencyHz))
}

func (s *SDK) FlyStickVibration(id, pattern int) error {
	return s.sendFeedback(protocol.FlyStickVibration(id, pattern))
}

// feedbackIP is the controller, or the sender of the tracking data when no
// controller was configured.
func (s *SDK) feedbackIP() net.IP {
	if s.controllerIP != nil {
		return s.controllerIP
	}
	if s.data != nil {
		return s.data.RemoteIP()
	}
	return nil
}

func (s *SDK) sendFeedback(cmd string) error {
	if s.data == nil {
		s.lastData = errclass.Network
		return errclass.New(errclass.Network, "feedback: data port not open")
	}
	ip := s.feedbackIP()
	if ip == nil {
		s.lastData = errclass.Network
		return errclass.New(errclass.Network, "feedback: controller address unknown")
	}
	if err := s.data.SendTo(ip, s.cfg.FeedbackPort, cmd); err != nil {
		s.lastData = errclass.Network
		return err
	}
	return nil
}
