package legacy_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ar-tracking/DTrackSDK/pkg/legacy"
	"github.com/ar-tracking/DTrackSDK/pkg/protocol"
)

func TestFromFrameCopiesRecords(t *testing.T) {
	f := protocol.NewFrame()
	f.Counter = 42
	f.Timestamp = 1.5
	f.Bodies = []protocol.Body{{ID: 0, Quality: 0.5, Loc: protocol.Location{1, 2, 3}, Rot: protocol.Identity}}
	f.Markers = []protocol.Marker{{ID: 7, Quality: 1, Loc: protocol.Location{4, 5, 6}}}

	got := legacy.FromFrame(f)
	assert.Equal(t, uint32(42), got.Counter)
	assert.Equal(t, 1.5, got.Timestamp)
	require.Len(t, got.Bodies, 1)
	assert.Equal(t, float32(0.5), got.Bodies[0].Quality)
	assert.Equal(t, [3]float32{1, 2, 3}, got.Bodies[0].Loc)
	assert.Equal(t, [9]float32{1, 0, 0, 0, 1, 0, 0, 0, 1}, got.Bodies[0].Rot)
	require.Len(t, got.Markers, 1)
	assert.Equal(t, 7, got.Markers[0].ID)
	assert.Empty(t, got.FlySticks)
}

func TestFromFrameNil(t *testing.T) {
	got := legacy.FromFrame(nil)
	assert.Equal(t, -1.0, got.Timestamp)
	assert.Empty(t, got.Bodies)
}

func TestFrameAccessorPlaceholders(t *testing.T) {
	var f legacy.Frame

	b := f.Body(3)
	assert.Equal(t, 3, b.ID)
	assert.Equal(t, float32(-1), b.Quality)
	assert.Equal(t, 2, f.Hand(2).ID)
	assert.Equal(t, float32(-1), f.FlyStick(0).Quality)
	assert.Equal(t, float32(-1), f.MeaTool(-1).Quality)

	m := f.Marker(5)
	assert.Equal(t, 0, m.ID)
	assert.Equal(t, float32(-1), m.Quality)
}

func TestFromFlyStickTruncatesToCapacity(t *testing.T) {
	buttons := make([]bool, 20)
	buttons[0] = true
	buttons[15] = true
	buttons[19] = true
	joysticks := make([]float64, 10)
	joysticks[1] = -0.5

	got := legacy.FromFlyStick(protocol.FlyStick{ID: 1, Quality: 1, Buttons: buttons, Joysticks: joysticks})
	assert.Equal(t, legacy.FlyStickMaxButton, got.NumButton)
	assert.Equal(t, 1, got.Button[0])
	assert.Equal(t, 0, got.Button[1])
	assert.Equal(t, 1, got.Button[15])
	assert.Equal(t, legacy.FlyStickMaxJoystick, got.NumJoystick)
	assert.Equal(t, float32(-0.5), got.Joystick[1])
}

func TestFromMeaToolKeepsOneButton(t *testing.T) {
	got := legacy.FromMeaTool(protocol.MeaTool{ID: 2, Quality: 0.9, Buttons: []bool{true, true}, TipRadius: 2.5})
	assert.Equal(t, 1, got.NumButton)
	assert.Equal(t, [1]int{1}, got.Button)
}

func TestFromHand(t *testing.T) {
	h := protocol.Hand{
		ID:         4,
		Quality:    1,
		Handedness: protocol.RightHand,
		Fingers: []protocol.Finger{
			{TipRadius: 8, PhalanxLength: [3]float64{30, 20, 10}, PhalanxAngle: [2]float64{-5, -10}},
			{TipRadius: 7},
			{TipRadius: 6},
		},
	}

	got := legacy.FromHand(h)
	assert.Equal(t, 1, got.LR)
	assert.Equal(t, 3, got.NFinger)
	assert.Equal(t, float32(8), got.Finger[0].RadiusTip)
	assert.Equal(t, [3]float32{30, 20, 10}, got.Finger[0].LengthPhalanx)
	assert.Equal(t, [2]float32{-5, -10}, got.Finger[0].AnglePhalanx)
	assert.Equal(t, float32(6), got.Finger[2].RadiusTip)
	assert.Zero(t, got.Finger[3])
}

type recorder struct {
	cmds []string
}

func (r *recorder) SendCommand(cmd string) error {
	r.cmds = append(r.cmds, cmd)
	return nil
}

func TestRemoteCamerasReplaySwitches(t *testing.T) {
	rec := &recorder{}
	r := legacy.NewRemote(rec)
	r.TrackingDelay = 0

	require.NoError(t, r.Cameras(true))
	require.NoError(t, r.Cameras(false))
	assert.Equal(t, []string{"dtrack 10 3", "dtrack 31", "dtrack 32", "dtrack 10 0"}, rec.cmds)
}

func TestRemoteTrackingOff(t *testing.T) {
	rec := &recorder{}
	r := legacy.NewRemote(rec)
	r.TrackingDelay = 0

	require.NoError(t, r.Tracking(false))
	assert.Empty(t, rec.cmds)

	require.NoError(t, r.Cameras(true))
	require.NoError(t, r.Tracking(true))
	assert.Equal(t, []string{"dtrack 10 1", "dtrack 10 3"}, rec.cmds)
}

func TestRemoteSendingNeedsCameras(t *testing.T) {
	rec := &recorder{}
	r := legacy.NewRemote(rec)
	r.TrackingDelay = 0

	assert.True(t, errors.Is(r.Sending(true), legacy.ErrCamerasOff))
	require.NoError(t, r.SendFrames(10))
	assert.Empty(t, rec.cmds)

	require.NoError(t, r.Cameras(true))
	require.NoError(t, r.Sending(false))
	require.NoError(t, r.SendFrames(10))
	assert.Equal(t, []string{"dtrack 10 3", "dtrack 31", "dtrack 32", "dtrack 33 10"}, rec.cmds)
}
