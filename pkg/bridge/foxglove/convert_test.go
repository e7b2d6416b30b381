package foxglove

import (
	"math"
	"testing"
	"time"

	"github.com/ar-tracking/DTrackSDK/pkg/command"
	"github.com/ar-tracking/DTrackSDK/pkg/protocol"
)

// z90 rotates 90 degrees about z, column-major.
var z90 = protocol.Rotation{0, 1, 0, -1, 0, 0, 0, 0, 1}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestTransformsFromFrame(t *testing.T) {
	srv := NewServer(DefaultConfig(), nil)
	ts := time.Unix(42, 99)
	f := protocol.NewFrame()
	f.Bodies = []protocol.Body{
		{ID: 0, Quality: 1, Loc: protocol.Location{1000, -500, 250}, Rot: z90},
		{ID: 1, Quality: -1},
	}
	f.FlySticks = []protocol.FlyStick{{ID: 2, Quality: 0.5, Rot: protocol.Identity}}
	f.Inertials = []protocol.Inertial{{ID: 0, State: protocol.InertialOnly, Rot: protocol.Identity}, {ID: 1}}

	tf, ok := srv.transformsFromFrame(f, ts)
	if !ok {
		t.Fatalf("expected transform message")
	}
	if len(tf.Transforms) != 3 {
		t.Fatalf("expected 3 transforms, got %d", len(tf.Transforms))
	}

	body := tf.Transforms[0]
	if body.ParentFrameID != "room" || body.ChildFrameID != "dtrack/body/0" {
		t.Fatalf("unexpected frame chain: %+v", body)
	}
	if tr := body.Translation; !near(tr.X, 1) || !near(tr.Y, -0.5) || !near(tr.Z, 0.25) {
		t.Fatalf("translation not in metres: %+v", body.Translation)
	}
	half := math.Sqrt(0.5)
	if r := body.Rotation; !near(r.W, half) || !near(r.Z, half) || !near(r.X, 0) || !near(r.Y, 0) {
		t.Fatalf("unexpected rotation: %+v", r)
	}
	if body.Timestamp != (Time{Sec: 42, Nsec: 99}) {
		t.Fatalf("unexpected stamp: %+v", body.Timestamp)
	}
	if got := tf.Transforms[1].ChildFrameID; got != "dtrack/flystick/2" {
		t.Fatalf("unexpected flystick frame: %s", got)
	}
	if got := tf.Transforms[2].ChildFrameID; got != "dtrack/inertial/0" {
		t.Fatalf("unexpected inertial frame: %s", got)
	}

	if _, ok := srv.transformsFromFrame(protocol.NewFrame(), ts); ok {
		t.Fatalf("empty frame should not produce transforms")
	}
}

func TestMarkersFromFrame(t *testing.T) {
	srv := NewServer(DefaultConfig(), nil)
	ts := time.Unix(10, 123)
	f := protocol.NewFrame()
	f.Markers = []protocol.Marker{
		{ID: 1, Quality: 1, Loc: protocol.Location{10, 20, 30}},
		{ID: 2, Quality: -1},
	}
	f.Humans = []protocol.Human{{ID: 0, Joints: []protocol.Joint{
		{ID: 0, Quality: 1, Rot: protocol.Identity},
		{ID: 1, Quality: -1},
	}}}

	msg, ok := srv.markersFromFrame(f, ts)
	if !ok {
		t.Fatalf("expected markers")
	}
	if len(msg.Markers) != 2 {
		t.Fatalf("expected 2 markers, got %d", len(msg.Markers))
	}
	m := msg.Markers[0]
	if m.Header.FrameID != srv.cfg.ParentFrameID {
		t.Fatalf("unexpected frame id: %s", m.Header.FrameID)
	}
	if m.Type != markerTypeSphere || m.Action != markerActionAdd || m.ID != 1 {
		t.Fatalf("unexpected marker mode: %+v", m)
	}
	if !near(m.Pose.Position.X, 0.01) || !near(m.Pose.Position.Z, 0.03) {
		t.Fatalf("unexpected position: %+v", m.Pose.Position)
	}
	if m.Scale.X != m.Scale.Y || m.Scale.Y != m.Scale.Z {
		t.Fatalf("expected uniform scale, got %+v", m.Scale)
	}
	joint := msg.Markers[1]
	if joint.Type != markerTypeCube || joint.NS != "dtrack.human.0" || joint.Pose.Orientation.W != 1 {
		t.Fatalf("unexpected joint marker: %+v", joint)
	}
}

func TestLogFromMessage(t *testing.T) {
	srv := NewServer(DefaultConfig(), nil)
	msg := command.Message{Origin: "dtrack2", Status: "ERROR", FrameNr: 12, ErrorID: 0x20000001, Text: "sync lost"}

	log := srv.logFromMessage(msg, time.Unix(1, 0))
	if log.Level != LogLevelError {
		t.Fatalf("unexpected level %d", log.Level)
	}
	if log.Name != "dtrack/dtrack2" {
		t.Fatalf("unexpected name %q", log.Name)
	}
	if log.Message != "[frame 12, 0x20000001] sync lost" {
		t.Fatalf("unexpected message %q", log.Message)
	}
	if logLevel("WARNING") != LogLevelWarning || logLevel("INFO") != LogLevelInfo {
		t.Fatalf("unexpected level mapping")
	}
}

func TestAdvertiseChannels(t *testing.T) {
	srv := NewServer(Config{FrameTopic: "/lab/frame"}, nil)
	msg := srv.advertise()
	if len(msg.Channels) != 4 {
		t.Fatalf("expected 4 channels, got %d", len(msg.Channels))
	}
	if msg.Channels[0].Topic != "/lab/frame" || msg.Channels[0].ID != FrameChannelID {
		t.Fatalf("unexpected frame channel: %+v", msg.Channels[0])
	}
	if msg.Channels[1].SchemaName != "foxglove.FrameTransforms" || msg.Channels[1].Topic != "/tf" {
		t.Fatalf("unexpected transform channel: %+v", msg.Channels[1])
	}
	if msg.Channels[3].SchemaName != "foxglove.Log" {
		t.Fatalf("unexpected log channel: %+v", msg.Channels[3])
	}
	for _, ch := range msg.Channels {
		if _, ok := srv.supportedChannels()[ch.ID]; !ok {
			t.Fatalf("advertised channel %d not subscribable", ch.ID)
		}
	}
}
