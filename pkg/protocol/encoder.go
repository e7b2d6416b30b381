package protocol

import (
	"strconv"
)

// Encode writes f in the wire grammar understood by Parse. Flysticks and
// measurement tools use the 6df2 and 6dmt2 records. Parse(Encode(f)) equals f
// for frames whose collections carry a calibrated count, as parsed frames do.
func Encode(f *Frame) []byte {
	return AppendFrame(nil, f)
}

func AppendFrame(dst []byte, f *Frame) []byte {
	e := encoder{buf: dst}

	e.keyword("fr")
	e.buf = strconv.AppendUint(e.buf, uint64(f.Counter), 10)
	e.endLine()

	if f.Timestamp != -1 {
		e.keyword("ts")
		e.float(f.Timestamp)
		e.endLine()
	}

	if f.Calibrated.Bodies >= 0 {
		e.keyword("6dcal")
		e.int(f.Calibrated.Bodies)
		e.endLine()
	}
	if len(f.Bodies) > 0 {
		e.keyword("6d")
		e.int(len(f.Bodies))
		for _, b := range f.Bodies {
			e.space()
			e.group(func() { e.int(b.ID); e.space(); e.float(b.Quality) })
			e.pose(b.Loc, b.Rot)
		}
		e.endLine()
	}
	e.bodyCovariance(f.Bodies)

	if len(f.FlySticks) > 0 || f.Calibrated.FlySticks >= 0 {
		e.keyword("6df2")
		e.int(calibrated(f.Calibrated.FlySticks, len(f.FlySticks)))
		e.space()
		e.int(len(f.FlySticks))
		for _, fs := range f.FlySticks {
			e.space()
			e.group(func() {
				e.int(fs.ID)
				e.space()
				e.float(fs.Quality)
				e.space()
				e.int(len(fs.Buttons))
				e.space()
				e.int(len(fs.Joysticks))
			})
			e.pose(fs.Loc, fs.Rot)
			e.group(func() {
				e.bits(fs.Buttons)
				for i, v := range fs.Joysticks {
					if i > 0 || len(fs.Buttons) > 0 {
						e.space()
					}
					e.float(v)
				}
			})
		}
		e.endLine()
	}

	if len(f.MeaTools) > 0 || f.Calibrated.MeaTools >= 0 {
		e.keyword("6dmt2")
		e.int(calibrated(f.Calibrated.MeaTools, len(f.MeaTools)))
		e.space()
		e.int(len(f.MeaTools))
		for _, mt := range f.MeaTools {
			e.space()
			e.group(func() {
				e.int(mt.ID)
				e.space()
				e.float(mt.Quality)
				e.space()
				e.int(len(mt.Buttons))
				e.space()
				e.float(mt.TipRadius)
			})
			e.pose(mt.Loc, mt.Rot)
			e.group(func() { e.bits(mt.Buttons) })
			e.floats(reduceCovariance(mt.Cov[:], 3))
		}
		e.endLine()
	}

	if len(f.MeaRefs) > 0 || f.Calibrated.MeaRefs >= 0 {
		e.keyword("6dmtr")
		e.int(calibrated(f.Calibrated.MeaRefs, len(f.MeaRefs)))
		e.space()
		e.int(len(f.MeaRefs))
		for _, mr := range f.MeaRefs {
			e.space()
			e.group(func() { e.int(mr.ID); e.space(); e.float(mr.Quality) })
			e.pose(mr.Loc, mr.Rot)
		}
		e.endLine()
	}

	if len(f.Markers) > 0 {
		e.keyword("3d")
		e.int(len(f.Markers))
		for _, m := range f.Markers {
			e.space()
			e.group(func() { e.int(m.ID); e.space(); e.float(m.Quality) })
			e.floats(m.Loc[:])
		}
		e.endLine()
	}

	if f.Calibrated.Hands >= 0 {
		e.keyword("glcal")
		e.int(f.Calibrated.Hands)
		e.endLine()
	}
	if len(f.Hands) > 0 {
		e.keyword("gl")
		e.int(len(f.Hands))
		for _, h := range f.Hands {
			e.space()
			e.group(func() {
				e.int(h.ID)
				e.space()
				e.float(h.Quality)
				e.space()
				e.int(int(h.Handedness))
				e.space()
				e.int(len(h.Fingers))
			})
			e.pose(h.Loc, h.Rot)
			for _, fg := range h.Fingers {
				e.pose(fg.Loc, fg.Rot)
				e.floats([]float64{
					fg.TipRadius,
					fg.PhalanxLength[0], fg.PhalanxAngle[0],
					fg.PhalanxLength[1], fg.PhalanxAngle[1],
					fg.PhalanxLength[2],
				})
			}
		}
		e.endLine()
	}

	if len(f.Humans) > 0 || f.Calibrated.Humans >= 0 {
		e.keyword("6dj")
		e.int(calibrated(f.Calibrated.Humans, len(f.Humans)))
		e.space()
		e.int(len(f.Humans))
		for _, h := range f.Humans {
			e.space()
			e.group(func() { e.int(h.ID); e.space(); e.int(len(h.Joints)) })
			for _, j := range h.Joints {
				e.group(func() { e.int(j.ID); e.space(); e.float(j.Quality) })
				e.floats(append(j.Loc[:], j.Angles[:]...))
				e.floats(j.Rot[:])
			}
		}
		e.endLine()
	}

	if len(f.Inertials) > 0 {
		e.keyword("6di")
		e.int(len(f.Inertials))
		for _, in := range f.Inertials {
			e.space()
			e.group(func() {
				e.int(in.ID)
				e.space()
				e.int(int(in.State))
				e.space()
				e.float(in.Error)
			})
			e.pose(in.Loc, in.Rot)
		}
		e.endLine()
	}

	if st := f.Status; st != nil {
		e.keyword("st")
		e.group(func() {
			e.int(st.NumCameras)
			e.space()
			e.int(st.NumTrackedBodies)
			e.space()
			e.int(st.NumTrackedMarkers)
		})
		e.group(func() {
			e.int(st.NumCameraErrors)
			e.space()
			e.int(st.NumCameraWarnings)
			e.space()
			e.int(st.NumOtherErrors)
			e.space()
			e.int(st.NumOtherWarnings)
			e.space()
			e.int(st.NumInfoMessages)
		})
		for _, cam := range st.Cameras {
			e.group(func() {
				e.int(cam.ID)
				e.space()
				e.int(cam.NumReflections)
				e.space()
				e.int(cam.NumReflectionsUsed)
				e.space()
				e.int(cam.MaxIntensity)
			})
		}
		e.endLine()
	}

	return e.buf
}

func calibrated(announced, present int) int {
	if announced >= 0 {
		return announced
	}
	return present
}

type encoder struct {
	buf []byte
}

func (e *encoder) keyword(k string) {
	e.buf = append(e.buf, k...)
	e.space()
}

func (e *encoder) endLine() {
	e.buf = append(e.buf, '\r', '\n')
}

func (e *encoder) space() {
	e.buf = append(e.buf, ' ')
}

func (e *encoder) int(v int) {
	e.buf = strconv.AppendInt(e.buf, int64(v), 10)
}

func (e *encoder) float(v float64) {
	e.buf = strconv.AppendFloat(e.buf, v, 'g', -1, 64)
}

func (e *encoder) group(body func()) {
	e.buf = append(e.buf, '[')
	body()
	e.buf = append(e.buf, ']')
}

func (e *encoder) floats(vs []float64) {
	e.group(func() {
		for i, v := range vs {
			if i > 0 {
				e.space()
			}
			e.float(v)
		}
	})
}

func (e *encoder) pose(loc Location, rot Rotation) {
	e.floats(loc[:])
	e.floats(rot[:])
}

// bits packs buttons into 32-bit words, least significant bit first.
func (e *encoder) bits(buttons []bool) {
	for w := 0; w*32 < len(buttons); w++ {
		var word uint32
		for b := 0; b < 32 && w*32+b < len(buttons); b++ {
			if buttons[w*32+b] {
				word |= 1 << b
			}
		}
		if w > 0 {
			e.space()
		}
		e.buf = strconv.AppendUint(e.buf, uint64(word), 10)
	}
}

func (e *encoder) bodyCovariance(bodies []Body) {
	n := 0
	for _, b := range bodies {
		if b.Cov != nil {
			n++
		}
	}
	if n == 0 {
		return
	}
	e.keyword("6dcov")
	e.int(n)
	for _, b := range bodies {
		if b.Cov == nil {
			continue
		}
		e.space()
		e.group(func() {
			e.int(b.ID)
			for _, v := range b.Cov.Ref {
				e.space()
				e.float(v)
			}
		})
		e.floats(reduceCovariance(b.Cov.Matrix[:], 6))
	}
	e.endLine()
}
