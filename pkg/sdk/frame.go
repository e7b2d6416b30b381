package sdk

import (
	"time"

	"github.com/ar-tracking/DTrackSDK/pkg/errclass"
	"github.com/ar-tracking/DTrackSDK/pkg/protocol"
)

// Receive waits for the next datagram and parses it. On failure the previous
// frame stays current.
func (s *SDK) Receive() error {
	if s.data == nil {
		s.lastData = errclass.Network
		return errclass.New(errclass.Network, "receive: data port not open")
	}
	buf, err := s.data.Receive()
	if s.observer != nil {
		s.observer.ObserveReceive(len(buf), err)
	}
	if err != nil {
		s.lastData = errclass.Of(err)
		return err
	}
	return s.process(buf)
}

// ProcessPacket parses a datagram obtained elsewhere, e.g. from a recording.
func (s *SDK) ProcessPacket(data []byte) error {
	if len(data) == 0 {
		s.lastData = errclass.Parse
		return errclass.New(errclass.Parse, "process: empty datagram")
	}
	return s.process(data)
}

func (s *SDK) process(data []byte) error {
	start := time.Now()
	frame, err := protocol.Parse(data)
	if s.observer != nil {
		s.observer.ObserveParse(frame, time.Since(start), err)
	}
	if err != nil {
		s.lastData = errclass.Parse
		s.logger.Debug("dropping datagram", "err", err)
		return err
	}
	s.frame = frame
	s.raw = data
	s.lastData = errclass.None
	return nil
}

// Frame is the last successfully parsed frame. Callers must not modify it.
func (s *SDK) Frame() *protocol.Frame { return s.frame }

// Raw is the datagram the current frame was parsed from.
func (s *SDK) Raw() []byte { return s.raw }

func (s *SDK) FrameCounter() uint32 { return s.frame.Counter }

// Timestamp is the frame's time of day in seconds, -1 when not sent.
func (s *SDK) Timestamp() float64 { return s.frame.Timestamp }

func (s *SDK) Status() *protocol.SystemStatus { return s.frame.Status }

// NumBody and the other counters of id-keyed entities cover ids 0 to n-1:
// the calibrated count announced by the controller, raised to the highest id
// present plus one. Iterating Body(0) to Body(NumBody()-1) visits every body.
func (s *SDK) NumBody() int {
	return count(s.frame.Calibrated.Bodies, s.frame.Bodies, func(b protocol.Body) int { return b.ID })
}

func (s *SDK) NumFlyStick() int {
	return count(s.frame.Calibrated.FlySticks, s.frame.FlySticks, func(f protocol.FlyStick) int { return f.ID })
}

func (s *SDK) NumMeaTool() int {
	return count(s.frame.Calibrated.MeaTools, s.frame.MeaTools, func(m protocol.MeaTool) int { return m.ID })
}

func (s *SDK) NumMeaRef() int {
	return count(s.frame.Calibrated.MeaRefs, s.frame.MeaRefs, func(m protocol.MeaRef) int { return m.ID })
}

// NumMarker is the number of markers; Marker indexes them by position.
func (s *SDK) NumMarker() int { return len(s.frame.Markers) }

func (s *SDK) NumHand() int {
	return count(s.frame.Calibrated.Hands, s.frame.Hands, func(h protocol.Hand) int { return h.ID })
}

func (s *SDK) NumHuman() int {
	return count(s.frame.Calibrated.Humans, s.frame.Humans, func(h protocol.Human) int { return h.ID })
}

func (s *SDK) NumInertial() int {
	return count(-1, s.frame.Inertials, func(i protocol.Inertial) int { return i.ID })
}

func count[T any](calibrated int, items []T, idOf func(T) int) int {
	n := max(calibrated, 0)
	for _, item := range items {
		n = max(n, idOf(item)+1)
	}
	return n
}

// Body returns the body with the given id, or an untracked placeholder when
// the frame has none. The same holds for the other id-keyed accessors.
func (s *SDK) Body(id int) protocol.Body {
	if b, ok := s.frame.BodyByID(id); ok {
		return b
	}
	return protocol.Body{ID: id, Quality: protocol.NotTracked}
}

func (s *SDK) FlyStick(id int) protocol.FlyStick {
	if f, ok := s.frame.FlyStickByID(id); ok {
		return f
	}
	return protocol.FlyStick{ID: id, Quality: protocol.NotTracked}
}

func (s *SDK) MeaTool(id int) protocol.MeaTool {
	if m, ok := s.frame.MeaToolByID(id); ok {
		return m
	}
	return protocol.MeaTool{ID: id, Quality: protocol.NotTracked}
}

func (s *SDK) MeaRef(id int) protocol.MeaRef {
	if m, ok := s.frame.MeaRefByID(id); ok {
		return m
	}
	return protocol.MeaRef{ID: id, Quality: protocol.NotTracked}
}

// Marker returns the i-th marker of the frame. Marker ids start at 1 and are
// not used for the lookup.
func (s *SDK) Marker(i int) protocol.Marker {
	if i >= 0 && i < len(s.frame.Markers) {
		return s.frame.Markers[i]
	}
	return protocol.Marker{ID: i, Quality: protocol.NotTracked}
}

func (s *SDK) Hand(id int) protocol.Hand {
	if h, ok := s.frame.HandByID(id); ok {
		return h
	}
	return protocol.Hand{ID: id, Quality: protocol.NotTracked}
}

func (s *SDK) Human(id int) protocol.Human {
	if h, ok := s.frame.HumanByID(id); ok {
		return h
	}
	return protocol.Human{ID: id}
}

func (s *SDK) Inertial(id int) protocol.Inertial {
	if i, ok := s.frame.InertialByID(id); ok {
		return i
	}
	return protocol.Inertial{ID: id, State: protocol.InertialNotTracked}
}
