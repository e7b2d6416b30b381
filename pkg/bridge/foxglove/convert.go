package foxglove

import (
	"fmt"
	"time"

	"github.com/ar-tracking/DTrackSDK/pkg/command"
	"github.com/ar-tracking/DTrackSDK/pkg/protocol"
)

// mm to m
const metres = 1e-3

func (s *Server) childFrame(kind string, id int) string {
	return fmt.Sprintf("%s/%s/%d", s.cfg.FramePrefix, kind, id)
}

func (s *Server) transform(ts time.Time, kind string, id int, loc protocol.Location, rot protocol.Rotation) FrameTransform {
	return FrameTransform{
		Timestamp:     stamp(ts),
		ParentFrameID: s.cfg.ParentFrameID,
		ChildFrameID:  s.childFrame(kind, id),
		Translation:   position(loc),
		Rotation:      orientation(rot),
	}
}

func position(loc protocol.Location) Vector3 {
	return Vector3{X: loc[0] * metres, Y: loc[1] * metres, Z: loc[2] * metres}
}

func orientation(rot protocol.Rotation) Quaternion {
	q := rot.Quaternion()
	return Quaternion{X: q.Imag, Y: q.Jmag, Z: q.Kmag, W: q.Real}
}

// transformsFromFrame has one transform per tracked 6DOF entity.
func (s *Server) transformsFromFrame(f *protocol.Frame, ts time.Time) (FrameTransforms, bool) {
	var out []FrameTransform
	for _, b := range f.Bodies {
		if b.IsTracked() {
			out = append(out, s.transform(ts, "body", b.ID, b.Loc, b.Rot))
		}
	}
	for _, fs := range f.FlySticks {
		if fs.IsTracked() {
			out = append(out, s.transform(ts, "flystick", fs.ID, fs.Loc, fs.Rot))
		}
	}
	for _, m := range f.MeaTools {
		if m.IsTracked() {
			out = append(out, s.transform(ts, "meatool", m.ID, m.Loc, m.Rot))
		}
	}
	for _, m := range f.MeaRefs {
		if m.IsTracked() {
			out = append(out, s.transform(ts, "mearef", m.ID, m.Loc, m.Rot))
		}
	}
	for _, h := range f.Hands {
		if h.IsTracked() {
			out = append(out, s.transform(ts, "hand", h.ID, h.Loc, h.Rot))
		}
	}
	for _, in := range f.Inertials {
		if in.IsTracked() {
			out = append(out, s.transform(ts, "inertial", in.ID, in.Loc, in.Rot))
		}
	}
	if len(out) == 0 {
		return FrameTransforms{}, false
	}
	return FrameTransforms{Transforms: out}, true
}

// markersFromFrame draws 3DOF markers as spheres and human joints as cubes.
func (s *Server) markersFromFrame(f *protocol.Frame, ts time.Time) (MarkerArray, bool) {
	header := MarkerHeader{FrameID: s.cfg.ParentFrameID, Stamp: stamp(ts)}
	size := s.cfg.MarkerSize
	var out []Marker
	for _, m := range f.Markers {
		if !m.IsTracked() {
			continue
		}
		out = append(out, Marker{
			Header: header,
			NS:     s.cfg.FramePrefix + ".marker",
			ID:     int32(m.ID),
			Type:   markerTypeSphere,
			Action: markerActionAdd,
			Pose:   MarkerPose{Position: position(m.Loc), Orientation: Quaternion{W: 1}},
			Scale:  Vector3{X: size, Y: size, Z: size},
			Color:  ColorRGBA{R: 1, G: 1, B: 1, A: 1},
		})
	}
	for _, h := range f.Humans {
		for _, j := range h.Joints {
			if !j.IsTracked() {
				continue
			}
			out = append(out, Marker{
				Header: header,
				NS:     fmt.Sprintf("%s.human.%d", s.cfg.FramePrefix, h.ID),
				ID:     int32(j.ID),
				Type:   markerTypeCube,
				Action: markerActionAdd,
				Pose:   MarkerPose{Position: position(j.Loc), Orientation: orientation(j.Rot)},
				Scale:  Vector3{X: 2 * size, Y: 2 * size, Z: 2 * size},
				Color:  ColorRGBA{R: 0.2, G: 0.8, B: 0.3, A: 1},
			})
		}
	}
	if len(out) == 0 {
		return MarkerArray{}, false
	}
	return MarkerArray{Markers: out}, true
}

func (s *Server) logFromMessage(msg command.Message, ts time.Time) Log {
	return Log{
		Timestamp: stamp(ts),
		Level:     logLevel(msg.Status),
		Message:   fmt.Sprintf("[frame %d, 0x%08x] %s", msg.FrameNr, msg.ErrorID, msg.Text),
		Name:      s.cfg.LogName + "/" + msg.Origin,
	}
}

func logLevel(status string) uint8 {
	switch status {
	case "ERROR":
		return LogLevelError
	case "WARNING":
		return LogLevelWarning
	default:
		return LogLevelInfo
	}
}
