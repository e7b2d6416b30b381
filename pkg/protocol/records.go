package protocol

func parseFrameCounter(p *parser) error {
	tok, err := p.atom()
	if err != nil {
		return err
	}
	n, err := ParseUint32(tok.Text)
	if err != nil {
		return p.fail(tok.Offset, "invalid frame counter %q", tok.Text)
	}
	p.frame.Counter = n
	return nil
}

func parseTimestamp(p *parser) error {
	tok, err := p.atom()
	if err != nil {
		return err
	}
	ts, err := ParseFloat(tok.Text)
	if err != nil {
		return p.fail(tok.Offset, "invalid timestamp %q", tok.Text)
	}
	p.frame.Timestamp = ts
	return nil
}

func parseBodyCalibration(p *parser) error {
	n, err := p.count()
	if err != nil {
		return err
	}
	p.frame.Calibrated.Bodies = n
	return nil
}

func parseHandCalibration(p *parser) error {
	n, err := p.count()
	if err != nil {
		return err
	}
	p.frame.Calibrated.Hands = n
	return nil
}

// 6d <n> [id q][x y z][rot]
func parseBodies(p *parser) error {
	n, err := p.count()
	if err != nil {
		return err
	}
	var bodies []Body
	for i := 0; i < n; i++ {
		g, err := p.group(2)
		if err != nil {
			return err
		}
		b := Body{ID: g.int(), Quality: g.float()}
		if g.err != nil {
			return g.err
		}
		if b.Loc, b.Rot, err = p.pose(); err != nil {
			return err
		}
		if !b.IsTracked() {
			b.Loc, b.Rot = Location{}, Rotation{}
		}
		bodies = append(bodies, b)
	}
	if err := uniqueIDs(p, bodies, func(b Body) int { return b.ID }); err != nil {
		return err
	}
	p.frame.Bodies = bodies
	return nil
}

// 6dcov <n> [id refx refy refz][21 values of the upper triangle]
func parseBodyCovariance(p *parser) error {
	n, err := p.count()
	if err != nil {
		return err
	}
	var pending []pendingCovariance
	for i := 0; i < n; i++ {
		g, err := p.group(4)
		if err != nil {
			return err
		}
		pc := pendingCovariance{id: g.int(), offset: g.tok.Offset}
		g.floats(pc.cov.Ref[:])
		if g.err != nil {
			return g.err
		}
		var reduced [21]float64
		cg, err := p.group(len(reduced))
		if err != nil {
			return err
		}
		cg.floats(reduced[:])
		if cg.err != nil {
			return cg.err
		}
		expandCovariance(pc.cov.Matrix[:], reduced[:], 6)
		pending = append(pending, pc)
	}
	p.bodyCov = pending
	return nil
}

// 6df <n> [id q bits][loc][rot], eight buttons and two joystick axes packed
// into one integer.
func parseFlySticksV1(p *parser) error {
	n, err := p.count()
	if err != nil {
		return err
	}
	var sticks []FlyStick
	for i := 0; i < n; i++ {
		g, err := p.group(3)
		if err != nil {
			return err
		}
		fs := FlyStick{ID: g.int(), Quality: g.float()}
		bits := g.int()
		if g.err != nil {
			return g.err
		}
		fs.Buttons = make([]bool, 8)
		for j := range fs.Buttons {
			fs.Buttons[j] = bits&(1<<j) != 0
		}
		fs.Joysticks = []float64{
			legacyAxis(bits, 0x20, 0x80),
			legacyAxis(bits, 0x10, 0x40),
		}
		if fs.Loc, fs.Rot, err = p.pose(); err != nil {
			return err
		}
		if !fs.IsTracked() {
			fs.Loc, fs.Rot = Location{}, Rotation{}
		}
		sticks = append(sticks, fs)
	}
	if err := uniqueIDs(p, sticks, func(v FlyStick) int { return v.ID }); err != nil {
		return err
	}
	p.frame.FlySticks = sticks
	p.frame.Calibrated.FlySticks = n
	return nil
}

func legacyAxis(bits, negative, positive int) float64 {
	switch {
	case bits&negative != 0:
		return -1
	case bits&positive != 0:
		return 1
	default:
		return 0
	}
}

// 6df2 <ncal> <n> [id q nbt njs][loc][rot][button words... joystick values...]
func parseFlySticks(p *parser) error {
	ncal, err := p.count()
	if err != nil {
		return err
	}
	n, err := p.count()
	if err != nil {
		return err
	}
	var sticks []FlyStick
	for i := 0; i < n; i++ {
		g, err := p.group(4)
		if err != nil {
			return err
		}
		fs := FlyStick{ID: g.int(), Quality: g.float()}
		nbt, njs := g.int(), g.int()
		if g.err != nil {
			return g.err
		}
		if err := p.limit(g.tok.Offset, "button", nbt, MaxFlyStickButtons); err != nil {
			return err
		}
		if err := p.limit(g.tok.Offset, "joystick", njs, MaxFlyStickJoysticks); err != nil {
			return err
		}
		if fs.Loc, fs.Rot, err = p.pose(); err != nil {
			return err
		}
		ig, err := p.group(buttonWords(nbt) + njs)
		if err != nil {
			return err
		}
		fs.Buttons = ig.bits(nbt)
		fs.Joysticks = make([]float64, njs)
		ig.floats(fs.Joysticks)
		if ig.err != nil {
			return ig.err
		}
		if !fs.IsTracked() {
			fs.Loc, fs.Rot = Location{}, Rotation{}
		}
		sticks = append(sticks, fs)
	}
	if err := uniqueIDs(p, sticks, func(v FlyStick) int { return v.ID }); err != nil {
		return err
	}
	p.frame.FlySticks = sticks
	p.frame.Calibrated.FlySticks = ncal
	return nil
}

// 6dmt <n> [id q bits][loc][rot], four buttons.
func parseMeaToolsV1(p *parser) error {
	n, err := p.count()
	if err != nil {
		return err
	}
	var tools []MeaTool
	for i := 0; i < n; i++ {
		g, err := p.group(3)
		if err != nil {
			return err
		}
		mt := MeaTool{ID: g.int(), Quality: g.float()}
		bits := g.int()
		if g.err != nil {
			return g.err
		}
		mt.Buttons = make([]bool, 4)
		for j := range mt.Buttons {
			mt.Buttons[j] = bits&(1<<j) != 0
		}
		if mt.Loc, mt.Rot, err = p.pose(); err != nil {
			return err
		}
		if !mt.IsTracked() {
			mt.Loc, mt.Rot = Location{}, Rotation{}
		}
		tools = append(tools, mt)
	}
	if err := uniqueIDs(p, tools, func(v MeaTool) int { return v.ID }); err != nil {
		return err
	}
	p.frame.MeaTools = tools
	p.frame.Calibrated.MeaTools = n
	return nil
}

// 6dmt2 <ncal> <n> [id q nbt tipradius][loc][rot][button words][6 covariance values]
func parseMeaTools(p *parser) error {
	ncal, err := p.count()
	if err != nil {
		return err
	}
	n, err := p.count()
	if err != nil {
		return err
	}
	var tools []MeaTool
	for i := 0; i < n; i++ {
		g, err := p.group(4)
		if err != nil {
			return err
		}
		mt := MeaTool{ID: g.int(), Quality: g.float()}
		nbt := g.int()
		mt.TipRadius = g.float()
		if g.err != nil {
			return g.err
		}
		if err := p.limit(g.tok.Offset, "button", nbt, MaxMeaToolButtons); err != nil {
			return err
		}
		if mt.Loc, mt.Rot, err = p.pose(); err != nil {
			return err
		}
		bg, err := p.group(buttonWords(nbt))
		if err != nil {
			return err
		}
		mt.Buttons = bg.bits(nbt)
		if bg.err != nil {
			return bg.err
		}
		var reduced [6]float64
		cg, err := p.group(len(reduced))
		if err != nil {
			return err
		}
		cg.floats(reduced[:])
		if cg.err != nil {
			return cg.err
		}
		expandCovariance(mt.Cov[:], reduced[:], 3)
		if !mt.IsTracked() {
			mt.Loc, mt.Rot, mt.Cov = Location{}, Rotation{}, [9]float64{}
		}
		tools = append(tools, mt)
	}
	if err := uniqueIDs(p, tools, func(v MeaTool) int { return v.ID }); err != nil {
		return err
	}
	p.frame.MeaTools = tools
	p.frame.Calibrated.MeaTools = ncal
	return nil
}

// 6dmtr <ncal> <n> [id q][loc][rot]
func parseMeaRefs(p *parser) error {
	ncal, err := p.count()
	if err != nil {
		return err
	}
	n, err := p.count()
	if err != nil {
		return err
	}
	var refs []MeaRef
	for i := 0; i < n; i++ {
		g, err := p.group(2)
		if err != nil {
			return err
		}
		mr := MeaRef{ID: g.int(), Quality: g.float()}
		if g.err != nil {
			return g.err
		}
		if mr.ID < 0 || mr.ID >= ncal {
			return p.fail(g.tok.Offset, "reference id %d outside %d calibrated", mr.ID, ncal)
		}
		if mr.Loc, mr.Rot, err = p.pose(); err != nil {
			return err
		}
		if !mr.IsTracked() {
			mr.Loc, mr.Rot = Location{}, Rotation{}
		}
		refs = append(refs, mr)
	}
	if err := uniqueIDs(p, refs, func(v MeaRef) int { return v.ID }); err != nil {
		return err
	}
	p.frame.MeaRefs = refs
	p.frame.Calibrated.MeaRefs = ncal
	return nil
}

// 3d <n> [id q][x y z]
func parseMarkers(p *parser) error {
	n, err := p.count()
	if err != nil {
		return err
	}
	var markers []Marker
	for i := 0; i < n; i++ {
		g, err := p.group(2)
		if err != nil {
			return err
		}
		m := Marker{ID: g.int(), Quality: g.float()}
		if g.err != nil {
			return g.err
		}
		if m.Loc, err = p.location(); err != nil {
			return err
		}
		if !m.IsTracked() {
			m.Loc = Location{}
		}
		markers = append(markers, m)
	}
	if err := uniqueIDs(p, markers, func(v Marker) int { return v.ID }); err != nil {
		return err
	}
	p.frame.Markers = markers
	return nil
}

// gl <n> [id q lr nf][loc][rot] followed by nf finger blocks
// [loc][rot][tipradius l0 a0 l1 a1 l2]
func parseHands(p *parser) error {
	n, err := p.count()
	if err != nil {
		return err
	}
	var hands []Hand
	for i := 0; i < n; i++ {
		g, err := p.group(4)
		if err != nil {
			return err
		}
		h := Hand{ID: g.int(), Quality: g.float()}
		h.Handedness = Handedness(g.int())
		nf := g.int()
		if g.err != nil {
			return g.err
		}
		if err := p.limit(g.tok.Offset, "finger", nf, MaxHandFingers); err != nil {
			return err
		}
		if h.Loc, h.Rot, err = p.pose(); err != nil {
			return err
		}
		h.Fingers = make([]Finger, nf)
		for j := range h.Fingers {
			f := &h.Fingers[j]
			if f.Loc, f.Rot, err = p.pose(); err != nil {
				return err
			}
			fg, err := p.group(6)
			if err != nil {
				return err
			}
			f.TipRadius = fg.float()
			f.PhalanxLength[0] = fg.float()
			f.PhalanxAngle[0] = fg.float()
			f.PhalanxLength[1] = fg.float()
			f.PhalanxAngle[1] = fg.float()
			f.PhalanxLength[2] = fg.float()
			if fg.err != nil {
				return fg.err
			}
		}
		if !h.IsTracked() {
			h.Loc, h.Rot = Location{}, Rotation{}
			for j := range h.Fingers {
				h.Fingers[j] = Finger{}
			}
		}
		hands = append(hands, h)
	}
	if err := uniqueIDs(p, hands, func(v Hand) int { return v.ID }); err != nil {
		return err
	}
	p.frame.Hands = hands
	return nil
}

// 6dj <ncal> <n> [id nj] followed by nj joint blocks [jid q][x y z a b c][rot]
func parseHumans(p *parser) error {
	ncal, err := p.count()
	if err != nil {
		return err
	}
	n, err := p.count()
	if err != nil {
		return err
	}
	var humans []Human
	for i := 0; i < n; i++ {
		g, err := p.group(2)
		if err != nil {
			return err
		}
		h := Human{ID: g.int()}
		nj := g.int()
		if g.err != nil {
			return g.err
		}
		if h.ID < 0 || h.ID >= ncal {
			return p.fail(g.tok.Offset, "human id %d outside %d calibrated", h.ID, ncal)
		}
		if err := p.limit(g.tok.Offset, "joint", nj, MaxHumanJoints); err != nil {
			return err
		}
		h.Joints = make([]Joint, nj)
		for j := range h.Joints {
			jt := &h.Joints[j]
			jg, err := p.group(2)
			if err != nil {
				return err
			}
			jt.ID, jt.Quality = jg.int(), jg.float()
			if jg.err != nil {
				return jg.err
			}
			lg, err := p.group(6)
			if err != nil {
				return err
			}
			lg.floats(jt.Loc[:])
			lg.floats(jt.Angles[:])
			if lg.err != nil {
				return lg.err
			}
			if jt.Rot, err = p.rotation(); err != nil {
				return err
			}
			if !jt.IsTracked() {
				jt.Loc, jt.Angles, jt.Rot = Location{}, [3]float64{}, Rotation{}
			}
		}
		humans = append(humans, h)
	}
	if err := uniqueIDs(p, humans, func(v Human) int { return v.ID }); err != nil {
		return err
	}
	p.frame.Humans = humans
	p.frame.Calibrated.Humans = ncal
	return nil
}

// 6di <n> [id state error][loc][rot]
func parseInertials(p *parser) error {
	n, err := p.count()
	if err != nil {
		return err
	}
	var bodies []Inertial
	for i := 0; i < n; i++ {
		g, err := p.group(3)
		if err != nil {
			return err
		}
		in := Inertial{ID: g.int(), State: InertialState(g.int()), Error: g.float()}
		if g.err != nil {
			return g.err
		}
		if in.Loc, in.Rot, err = p.pose(); err != nil {
			return err
		}
		if !in.IsTracked() {
			in.Error, in.Loc, in.Rot = 0, Location{}, Rotation{}
		}
		bodies = append(bodies, in)
	}
	if err := uniqueIDs(p, bodies, func(v Inertial) int { return v.ID }); err != nil {
		return err
	}
	p.frame.Inertials = bodies
	return nil
}

// st [ncam nbodies nmarkers][camErr camWarn otherErr otherWarn info] followed
// by ncam camera blocks [id nrefl nreflused maxintensity]
func parseStatus(p *parser) error {
	g, err := p.group(3)
	if err != nil {
		return err
	}
	st := &SystemStatus{
		NumCameras:        g.int(),
		NumTrackedBodies:  g.int(),
		NumTrackedMarkers: g.int(),
	}
	if g.err != nil {
		return g.err
	}
	if st.NumCameras < 0 {
		return p.fail(g.tok.Offset, "negative camera count %d", st.NumCameras)
	}
	mg, err := p.group(5)
	if err != nil {
		return err
	}
	st.NumCameraErrors = mg.int()
	st.NumCameraWarnings = mg.int()
	st.NumOtherErrors = mg.int()
	st.NumOtherWarnings = mg.int()
	st.NumInfoMessages = mg.int()
	if mg.err != nil {
		return mg.err
	}
	for i := 0; i < st.NumCameras; i++ {
		cg, err := p.group(4)
		if err != nil {
			return err
		}
		cam := CameraStatus{
			ID:                 cg.int(),
			NumReflections:     cg.int(),
			NumReflectionsUsed: cg.int(),
			MaxIntensity:       cg.int(),
		}
		if cg.err != nil {
			return cg.err
		}
		st.Cameras = append(st.Cameras, cam)
	}
	if err := uniqueIDs(p, st.Cameras, func(v CameraStatus) int { return v.ID }); err != nil {
		return err
	}
	p.frame.Status = st
	return nil
}

// expandCovariance fills the full dim x dim matrix from its upper triangle
// given row by row.
func expandCovariance(full, reduced []float64, dim int) {
	k := 0
	for r := 0; r < dim; r++ {
		for c := r; c < dim; c++ {
			full[r*dim+c] = reduced[k]
			full[c*dim+r] = reduced[k]
			k++
		}
	}
}

func reduceCovariance(full []float64, dim int) []float64 {
	out := make([]float64, 0, dim*(dim+1)/2)
	for r := 0; r < dim; r++ {
		for c := r; c < dim; c++ {
			out = append(out, full[r*dim+c])
		}
	}
	return out
}
