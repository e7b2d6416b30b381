// Package legacy converts frames into the fixed-size, single precision
// records of the old DTrack and DTrack2 client interfaces.
package legacy

import "github.com/ar-tracking/DTrackSDK/pkg/protocol"

// Capacities of the fixed arrays.
const (
	FlyStickMaxButton   = 16
	FlyStickMaxJoystick = 8
	MeaToolMaxButton    = 1
	HandMaxFinger       = 5
)

type Body struct {
	ID      int
	Quality float32
	Loc     [3]float32
	Rot     [9]float32
}

type FlyStick struct {
	ID          int
	Quality     float32
	NumButton   int
	Button      [FlyStickMaxButton]int
	NumJoystick int
	Joystick    [FlyStickMaxJoystick]float32
	Loc         [3]float32
	Rot         [9]float32
}

type MeaTool struct {
	ID        int
	Quality   float32
	NumButton int
	Button    [MeaToolMaxButton]int
	Loc       [3]float32
	Rot       [9]float32
}

type Finger struct {
	Loc           [3]float32
	Rot           [9]float32
	RadiusTip     float32
	LengthPhalanx [3]float32
	AnglePhalanx  [2]float32
}

type Hand struct {
	ID      int
	Quality float32
	// LR is 0 for a left and 1 for a right hand.
	LR      int
	NFinger int
	Loc     [3]float32
	Rot     [9]float32
	Finger  [HandMaxFinger]Finger
}

type Marker struct {
	ID      int
	Quality float32
	Loc     [3]float32
}

// Frame is a snapshot of one datagram in legacy layout.
type Frame struct {
	Counter   uint32
	Timestamp float64
	Bodies    []Body
	FlySticks []FlyStick
	MeaTools  []MeaTool
	Hands     []Hand
	Markers   []Marker
}

// FromFrame copies f. Nil yields an empty frame without timestamp.
func FromFrame(f *protocol.Frame) Frame {
	if f == nil {
		return Frame{Timestamp: -1}
	}
	out := Frame{
		Counter:   f.Counter,
		Timestamp: f.Timestamp,
		Bodies:    convertAll(f.Bodies, FromBody),
		FlySticks: convertAll(f.FlySticks, FromFlyStick),
		MeaTools:  convertAll(f.MeaTools, FromMeaTool),
		Hands:     convertAll(f.Hands, FromHand),
		Markers:   convertAll(f.Markers, FromMarker),
	}
	return out
}

func convertAll[T, U any](in []T, fn func(T) U) []U {
	out := make([]U, len(in))
	for i, v := range in {
		out[i] = fn(v)
	}
	return out
}

// Body returns the record at index i, or an untracked body with id i when
// the index is out of range. The other accessors behave alike, except
// Marker whose placeholder has id 0.
func (f Frame) Body(i int) Body {
	if i >= 0 && i < len(f.Bodies) {
		return f.Bodies[i]
	}
	return Body{ID: i, Quality: protocol.NotTracked}
}

func (f Frame) FlyStick(i int) FlyStick {
	if i >= 0 && i < len(f.FlySticks) {
		return f.FlySticks[i]
	}
	return FlyStick{ID: i, Quality: protocol.NotTracked}
}

func (f Frame) MeaTool(i int) MeaTool {
	if i >= 0 && i < len(f.MeaTools) {
		return f.MeaTools[i]
	}
	return MeaTool{ID: i, Quality: protocol.NotTracked}
}

func (f Frame) Hand(i int) Hand {
	if i >= 0 && i < len(f.Hands) {
		return f.Hands[i]
	}
	return Hand{ID: i, Quality: protocol.NotTracked}
}

func (f Frame) Marker(i int) Marker {
	if i >= 0 && i < len(f.Markers) {
		return f.Markers[i]
	}
	return Marker{Quality: protocol.NotTracked}
}

func FromBody(b protocol.Body) Body {
	return Body{
		ID:      b.ID,
		Quality: float32(b.Quality),
		Loc:     loc32(b.Loc),
		Rot:     rot32(b.Rot),
	}
}

// FromFlyStick keeps at most FlyStickMaxButton buttons and
// FlyStickMaxJoystick joystick values.
func FromFlyStick(f protocol.FlyStick) FlyStick {
	out := FlyStick{
		ID:      f.ID,
		Quality: float32(f.Quality),
		Loc:     loc32(f.Loc),
		Rot:     rot32(f.Rot),
	}
	out.NumButton = buttons(out.Button[:], f.Buttons)
	out.NumJoystick = min(len(f.Joysticks), FlyStickMaxJoystick)
	for i := 0; i < out.NumJoystick; i++ {
		out.Joystick[i] = float32(f.Joysticks[i])
	}
	return out
}

// FromMeaTool drops the tip radius and covariance, which the old layout
// cannot hold.
func FromMeaTool(m protocol.MeaTool) MeaTool {
	out := MeaTool{
		ID:      m.ID,
		Quality: float32(m.Quality),
		Loc:     loc32(m.Loc),
		Rot:     rot32(m.Rot),
	}
	out.NumButton = buttons(out.Button[:], m.Buttons)
	return out
}

func FromHand(h protocol.Hand) Hand {
	out := Hand{
		ID:      h.ID,
		Quality: float32(h.Quality),
		LR:      int(h.Handedness),
		NFinger: min(len(h.Fingers), HandMaxFinger),
		Loc:     loc32(h.Loc),
		Rot:     rot32(h.Rot),
	}
	for i := 0; i < out.NFinger; i++ {
		src := h.Fingers[i]
		dst := &out.Finger[i]
		dst.Loc = loc32(src.Loc)
		dst.Rot = rot32(src.Rot)
		dst.RadiusTip = float32(src.TipRadius)
		for j, v := range src.PhalanxLength {
			dst.LengthPhalanx[j] = float32(v)
		}
		for j, v := range src.PhalanxAngle {
			dst.AnglePhalanx[j] = float32(v)
		}
	}
	return out
}

func FromMarker(m protocol.Marker) Marker {
	return Marker{
		ID:      m.ID,
		Quality: float32(m.Quality),
		Loc:     loc32(m.Loc),
	}
}

func buttons(dst []int, src []bool) int {
	n := min(len(src), len(dst))
	for i := 0; i < n; i++ {
		if src[i] {
			dst[i] = 1
		}
	}
	return n
}

func loc32(l protocol.Location) [3]float32 {
	return [3]float32{float32(l[0]), float32(l[1]), float32(l[2])}
}

func rot32(r protocol.Rotation) [9]float32 {
	var out [9]float32
	for i, v := range r {
		out[i] = float32(v)
	}
	return out
}
