package protocol_test

import (
	"math/rand"
	"reflect"
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ar-tracking/DTrackSDK/pkg/protocol"
)

func TestEncodeBody(t *testing.T) {
	f := protocol.NewFrame()
	f.Counter = 10
	f.Timestamp = 1.5
	f.Bodies = []protocol.Body{{
		ID:      0,
		Quality: 0.99,
		Loc:     protocol.Location{100, 200, 300},
		Rot:     protocol.Identity,
	}}

	assert.Equal(t, "fr 10\r\nts 1.5\r\n6d 1 [0 0.99][100 200 300][1 0 0 0 1 0 0 0 1]\r\n",
		string(protocol.Encode(f)))
}

func TestEncodeOmitsUnannouncedRecords(t *testing.T) {
	f := protocol.NewFrame()
	f.Counter = 3
	assert.Equal(t, "fr 3\r\n", string(protocol.Encode(f)))
}

func TestEncodeFlyStickButtons(t *testing.T) {
	f := protocol.NewFrame()
	f.Calibrated.FlySticks = 1
	f.FlySticks = []protocol.FlyStick{{
		ID:        0,
		Quality:   1,
		Buttons:   []bool{true, false, true},
		Joysticks: []float64{-0.5, 0.25},
		Rot:       protocol.Identity,
	}}

	assert.Contains(t, string(protocol.Encode(f)),
		"6df2 1 1 [0 1 3 2][0 0 0][1 0 0 0 1 0 0 0 1][5 -0.5 0.25]\r\n")
}

func TestEncodeParseRoundTrip(t *testing.T) {
	roundTrip := func(g genFrame) bool {
		parsed, err := protocol.Parse(protocol.Encode(g.Frame))
		if err != nil {
			t.Logf("parse: %v\n%s", err, protocol.Encode(g.Frame))
			return false
		}
		if !reflect.DeepEqual(g.Frame, parsed) {
			t.Logf("mismatch\n%s", protocol.Encode(g.Frame))
			return false
		}
		return true
	}
	require.NoError(t, quick.Check(roundTrip, &quick.Config{MaxCount: 300}))
}

// genFrame produces frames that satisfy every invariant a parsed frame has.
type genFrame struct {
	*protocol.Frame
}

func (genFrame) Generate(r *rand.Rand, size int) reflect.Value {
	g := frameGen{r: r, size: max(size, 1)}
	return reflect.ValueOf(genFrame{g.frame()})
}

type frameGen struct {
	r    *rand.Rand
	size int
}

func (g frameGen) n() int { return g.r.Intn(g.size%6 + 3) }

func (g frameGen) coin() bool { return g.r.Intn(2) == 0 }

func (g frameGen) float() float64 {
	switch g.r.Intn(4) {
	case 0:
		return float64(g.r.Intn(2000) - 1000)
	case 1:
		return g.r.NormFloat64()
	default:
		return (g.r.Float64() - 0.5) * 4000
	}
}

func (g frameGen) quality() float64 {
	if g.r.Intn(4) == 0 {
		return protocol.NotTracked
	}
	return g.r.Float64()
}

func (g frameGen) loc() protocol.Location {
	return protocol.Location{g.float(), g.float(), g.float()}
}

func (g frameGen) rot() protocol.Rotation {
	var r protocol.Rotation
	for i := range r {
		r[i] = g.float()
	}
	return r
}

// ids returns n distinct ids below limit.
func (g frameGen) ids(n, limit int) []int {
	return g.r.Perm(limit)[:n]
}

func (g frameGen) buttons(limit int) []bool {
	out := make([]bool, g.r.Intn(limit+1))
	for i := range out {
		out[i] = g.coin()
	}
	return out
}

func (g frameGen) calibrated(n int) int {
	return n + g.r.Intn(3)
}

func (g frameGen) symmetric(dim int) []float64 {
	m := make([]float64, dim*dim)
	for r := 0; r < dim; r++ {
		for c := r; c < dim; c++ {
			v := g.float()
			m[r*dim+c] = v
			m[c*dim+r] = v
		}
	}
	return m
}

func (g frameGen) frame() *protocol.Frame {
	f := protocol.NewFrame()
	f.Counter = g.r.Uint32()
	if g.coin() {
		f.Timestamp = g.r.Float64() * 86400
	}

	if n := g.n(); n > 0 || g.coin() {
		if g.coin() {
			f.Calibrated.Bodies = g.calibrated(n)
		}
		for _, id := range g.ids(n, 50) {
			b := protocol.Body{ID: id, Quality: g.quality()}
			if b.IsTracked() {
				b.Loc, b.Rot = g.loc(), g.rot()
				if g.coin() {
					cov := &protocol.BodyCovariance{Ref: g.loc()}
					copy(cov.Matrix[:], g.symmetric(6))
					b.Cov = cov
				}
			}
			f.Bodies = append(f.Bodies, b)
		}
	}

	if n := g.n(); n > 0 || g.coin() {
		f.Calibrated.FlySticks = g.calibrated(n)
		for _, id := range g.ids(n, 20) {
			fs := protocol.FlyStick{ID: id, Quality: g.quality(), Buttons: g.buttons(protocol.MaxFlyStickButtons)}
			fs.Joysticks = make([]float64, g.r.Intn(protocol.MaxFlyStickJoysticks+1))
			for i := range fs.Joysticks {
				fs.Joysticks[i] = g.r.Float64()*2 - 1
			}
			if fs.IsTracked() {
				fs.Loc, fs.Rot = g.loc(), g.rot()
			}
			f.FlySticks = append(f.FlySticks, fs)
		}
	}

	if n := g.n(); n > 0 || g.coin() {
		f.Calibrated.MeaTools = g.calibrated(n)
		for _, id := range g.ids(n, 20) {
			mt := protocol.MeaTool{
				ID:        id,
				Quality:   g.quality(),
				Buttons:   g.buttons(protocol.MaxMeaToolButtons),
				TipRadius: g.r.Float64() * 5,
			}
			if mt.IsTracked() {
				mt.Loc, mt.Rot = g.loc(), g.rot()
				copy(mt.Cov[:], g.symmetric(3))
			}
			f.MeaTools = append(f.MeaTools, mt)
		}
	}

	if n := g.n(); n > 0 || g.coin() {
		f.Calibrated.MeaRefs = g.calibrated(n)
		for _, id := range g.ids(n, f.Calibrated.MeaRefs) {
			mr := protocol.MeaRef{ID: id, Quality: g.quality()}
			if mr.IsTracked() {
				mr.Loc, mr.Rot = g.loc(), g.rot()
			}
			f.MeaRefs = append(f.MeaRefs, mr)
		}
	}

	for _, id := range g.ids(g.n(), 100) {
		m := protocol.Marker{ID: id + 1, Quality: g.quality()}
		if m.IsTracked() {
			m.Loc = g.loc()
		}
		f.Markers = append(f.Markers, m)
	}

	if g.coin() {
		f.Calibrated.Hands = g.r.Intn(4)
	}
	for _, id := range g.ids(g.n(), 10) {
		h := protocol.Hand{
			ID:         id,
			Quality:    g.quality(),
			Handedness: protocol.Handedness(g.r.Intn(2)),
			Fingers:    make([]protocol.Finger, g.r.Intn(protocol.MaxHandFingers+1)),
		}
		if h.IsTracked() {
			h.Loc, h.Rot = g.loc(), g.rot()
			for i := range h.Fingers {
				h.Fingers[i] = protocol.Finger{
					Loc:           g.loc(),
					Rot:           g.rot(),
					TipRadius:     g.r.Float64() * 10,
					PhalanxLength: [3]float64{g.float(), g.float(), g.float()},
					PhalanxAngle:  [2]float64{g.float(), g.float()},
				}
			}
		}
		f.Hands = append(f.Hands, h)
	}

	if n := g.n(); n > 0 || g.coin() {
		f.Calibrated.Humans = g.calibrated(n)
		for _, id := range g.ids(n, f.Calibrated.Humans) {
			h := protocol.Human{ID: id, Joints: make([]protocol.Joint, g.r.Intn(6))}
			for i := range h.Joints {
				j := protocol.Joint{ID: i, Quality: g.quality()}
				if j.IsTracked() {
					j.Loc, j.Rot = g.loc(), g.rot()
					j.Angles = [3]float64{g.float(), g.float(), g.float()}
				}
				h.Joints[i] = j
			}
			f.Humans = append(f.Humans, h)
		}
	}

	for _, id := range g.ids(g.n(), 20) {
		in := protocol.Inertial{ID: id, State: protocol.InertialState(g.r.Intn(4))}
		if in.IsTracked() {
			in.Error, in.Loc, in.Rot = g.r.Float64()*3, g.loc(), g.rot()
		}
		f.Inertials = append(f.Inertials, in)
	}

	if g.coin() {
		st := &protocol.SystemStatus{
			NumTrackedBodies:  g.r.Intn(10),
			NumTrackedMarkers: g.r.Intn(50),
			NumCameraErrors:   g.r.Intn(3),
			NumCameraWarnings: g.r.Intn(3),
			NumOtherErrors:    g.r.Intn(3),
			NumOtherWarnings:  g.r.Intn(3),
			NumInfoMessages:   g.r.Intn(3),
		}
		for _, id := range g.ids(g.n(), 30) {
			st.Cameras = append(st.Cameras, protocol.CameraStatus{
				ID:                 id,
				NumReflections:     g.r.Intn(40),
				NumReflectionsUsed: g.r.Intn(40),
				MaxIntensity:       g.r.Intn(256),
			})
		}
		st.NumCameras = len(st.Cameras)
		f.Status = st
	}
	return f
}
