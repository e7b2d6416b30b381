package protocol

// Protocol limits. Counts above these are rejected by the parser.
const (
	MaxFlyStickButtons   = 16
	MaxFlyStickJoysticks = 8
	MaxMeaToolButtons    = 16
	MaxHandFingers       = 5
	MaxHumanJoints       = 200
)

// NotTracked is the quality reported for entities that are not visible.
const NotTracked = -1.0

// Location is a position in millimetres.
type Location [3]float64

// Rotation is a 3x3 rotation matrix stored column-major.
type Rotation [9]float64

var Identity = Rotation{1, 0, 0, 0, 1, 0, 0, 0, 1}

// Frame is one parsed datagram.
type Frame struct {
	Counter    uint32        `json:"frame"`
	Timestamp  float64       `json:"ts"`
	Calibrated Calibrated    `json:"calibrated"`
	Bodies     []Body        `json:"bodies,omitempty"`
	FlySticks  []FlyStick    `json:"flysticks,omitempty"`
	MeaTools   []MeaTool     `json:"meatools,omitempty"`
	MeaRefs    []MeaRef      `json:"mearefs,omitempty"`
	Markers    []Marker      `json:"markers,omitempty"`
	Hands      []Hand        `json:"hands,omitempty"`
	Humans     []Human       `json:"humans,omitempty"`
	Inertials  []Inertial    `json:"inertials,omitempty"`
	Status     *SystemStatus `json:"status,omitempty"`
}

// Calibrated holds the number of calibrated entities announced by the
// controller, -1 when the datagram did not announce it.
type Calibrated struct {
	Bodies    int `json:"bodies"`
	FlySticks int `json:"flysticks"`
	MeaTools  int `json:"meatools"`
	MeaRefs   int `json:"mearefs"`
	Hands     int `json:"hands"`
	Humans    int `json:"humans"`
}

// NewFrame returns an empty frame with no timestamp and no calibration info.
func NewFrame() *Frame {
	return &Frame{
		Timestamp: -1,
		Calibrated: Calibrated{
			Bodies:    -1,
			FlySticks: -1,
			MeaTools:  -1,
			MeaRefs:   -1,
			Hands:     -1,
			Humans:    -1,
		},
	}
}

type Body struct {
	ID      int             `json:"id"`
	Quality float64         `json:"quality"`
	Loc     Location        `json:"loc"`
	Rot     Rotation        `json:"rot"`
	Cov     *BodyCovariance `json:"cov,omitempty"`
}

func (b Body) IsTracked() bool { return b.Quality >= 0 }

// BodyCovariance is the 6x6 pose covariance (location in mm, euler angles in
// rad) around a reference point.
type BodyCovariance struct {
	Ref    Location    `json:"ref"`
	Matrix [36]float64 `json:"matrix"`
}

type FlyStick struct {
	ID        int       `json:"id"`
	Quality   float64   `json:"quality"`
	Buttons   []bool    `json:"buttons"`
	Joysticks []float64 `json:"joysticks"`
	Loc       Location  `json:"loc"`
	Rot       Rotation  `json:"rot"`
}

func (f FlyStick) IsTracked() bool { return f.Quality >= 0 }

type MeaTool struct {
	ID        int      `json:"id"`
	Quality   float64  `json:"quality"`
	Buttons   []bool   `json:"buttons"`
	TipRadius float64  `json:"tip_radius"`
	Loc       Location `json:"loc"`
	Rot       Rotation `json:"rot"`
	// Cov is the column-major 3x3 location covariance in mm^2.
	Cov [9]float64 `json:"cov"`
}

func (m MeaTool) IsTracked() bool { return m.Quality >= 0 }

type MeaRef struct {
	ID      int      `json:"id"`
	Quality float64  `json:"quality"`
	Loc     Location `json:"loc"`
	Rot     Rotation `json:"rot"`
}

func (m MeaRef) IsTracked() bool { return m.Quality >= 0 }

// Marker is a single 3DOF marker. Marker ids start at 1.
type Marker struct {
	ID      int      `json:"id"`
	Quality float64  `json:"quality"`
	Loc     Location `json:"loc"`
}

func (m Marker) IsTracked() bool { return m.Quality >= 0 }

type Handedness int

const (
	LeftHand  Handedness = 0
	RightHand Handedness = 1
)

func (h Handedness) String() string {
	if h == RightHand {
		return "right"
	}
	return "left"
}

type Hand struct {
	ID         int        `json:"id"`
	Quality    float64    `json:"quality"`
	Handedness Handedness `json:"lr"`
	Loc        Location   `json:"loc"`
	Rot        Rotation   `json:"rot"`
	Fingers    []Finger   `json:"fingers"`
}

func (h Hand) IsTracked() bool { return h.Quality >= 0 }

// Finger order is thumb, index, middle, ring, pinky. Phalanx lengths run
// outermost to innermost.
type Finger struct {
	Loc           Location   `json:"loc"`
	Rot           Rotation   `json:"rot"`
	TipRadius     float64    `json:"tip_radius"`
	PhalanxLength [3]float64 `json:"phalanx_length"`
	PhalanxAngle  [2]float64 `json:"phalanx_angle"`
}

type Human struct {
	ID     int     `json:"id"`
	Joints []Joint `json:"joints"`
}

// IsTracked reports whether any joint of the model is visible.
func (h Human) IsTracked() bool {
	for _, j := range h.Joints {
		if j.IsTracked() {
			return true
		}
	}
	return false
}

type Joint struct {
	ID      int        `json:"id"`
	Quality float64    `json:"quality"`
	Loc     Location   `json:"loc"`
	Angles  [3]float64 `json:"angles"`
	Rot     Rotation   `json:"rot"`
}

func (j Joint) IsTracked() bool { return j.Quality >= 0 }

type InertialState int

const (
	InertialNotTracked InertialState = 0
	InertialOnly       InertialState = 1
	InertialOptical    InertialState = 2
	InertialHybrid     InertialState = 3
)

func (s InertialState) String() string {
	switch s {
	case InertialNotTracked:
		return "not tracked"
	case InertialOnly:
		return "inertial"
	case InertialOptical:
		return "optical"
	case InertialHybrid:
		return "optical+inertial"
	default:
		return "unknown"
	}
}

type Inertial struct {
	ID    int           `json:"id"`
	State InertialState `json:"state"`
	// Error is the drift estimate in degrees.
	Error float64  `json:"error"`
	Loc   Location `json:"loc"`
	Rot   Rotation `json:"rot"`
}

func (i Inertial) IsTracked() bool { return i.State != InertialNotTracked }

type SystemStatus struct {
	NumCameras        int            `json:"num_cameras"`
	NumTrackedBodies  int            `json:"num_tracked_bodies"`
	NumTrackedMarkers int            `json:"num_tracked_markers"`
	NumCameraErrors   int            `json:"num_camera_errors"`
	NumCameraWarnings int            `json:"num_camera_warnings"`
	NumOtherErrors    int            `json:"num_other_errors"`
	NumOtherWarnings  int            `json:"num_other_warnings"`
	NumInfoMessages   int            `json:"num_info_messages"`
	Cameras           []CameraStatus `json:"cameras,omitempty"`
}

type CameraStatus struct {
	ID                 int `json:"id"`
	NumReflections     int `json:"num_reflections"`
	NumReflectionsUsed int `json:"num_reflections_used"`
	MaxIntensity       int `json:"max_intensity"`
}

func (f *Frame) BodyByID(id int) (Body, bool) {
	return findByID(f.Bodies, id, func(b Body) int { return b.ID })
}

func (f *Frame) FlyStickByID(id int) (FlyStick, bool) {
	return findByID(f.FlySticks, id, func(v FlyStick) int { return v.ID })
}

func (f *Frame) MeaToolByID(id int) (MeaTool, bool) {
	return findByID(f.MeaTools, id, func(v MeaTool) int { return v.ID })
}

func (f *Frame) MeaRefByID(id int) (MeaRef, bool) {
	return findByID(f.MeaRefs, id, func(v MeaRef) int { return v.ID })
}

func (f *Frame) MarkerByID(id int) (Marker, bool) {
	return findByID(f.Markers, id, func(v Marker) int { return v.ID })
}

func (f *Frame) HandByID(id int) (Hand, bool) {
	return findByID(f.Hands, id, func(v Hand) int { return v.ID })
}

func (f *Frame) HumanByID(id int) (Human, bool) {
	return findByID(f.Humans, id, func(v Human) int { return v.ID })
}

func (f *Frame) InertialByID(id int) (Inertial, bool) {
	return findByID(f.Inertials, id, func(v Inertial) int { return v.ID })
}

func findByID[T any](items []T, id int, idOf func(T) int) (T, bool) {
	for _, item := range items {
		if idOf(item) == id {
			return item, true
		}
	}
	var zero T
	return zero, false
}
