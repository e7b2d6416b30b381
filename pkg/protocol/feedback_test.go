package protocol_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ar-tracking/DTrackSDK/pkg/protocol"
)

func TestTactileCommands(t *testing.T) {
	cmd, err := protocol.TactileFinger(1, 2, 0.5)
	require.NoError(t, err)
	assert.Equal(t, "tfb 1 [1 2 1.0 0.5]", cmd)

	cmd, err = protocol.TactileHand(0, []float64{0, 1, 0.25})
	require.NoError(t, err)
	assert.Equal(t, "tfb 3 [0 0 1.0 0][0 1 1.0 1][0 2 1.0 0.25]", cmd)

	_, err = protocol.TactileFinger(1, 2, 1.5)
	assert.ErrorIs(t, err, protocol.ErrStrengthRange)
	_, err = protocol.TactileHand(0, []float64{0.5, -0.1})
	assert.ErrorIs(t, err, protocol.ErrStrengthRange)
}

func TestFlyStickFeedbackCommands(t *testing.T) {
	assert.Equal(t, "ffb 1 [2 500 1000 0 0][]", protocol.FlyStickBeep(2, 500.7, 1000))
	assert.Equal(t, "ffb 1 [0 0 0 3 0][]", protocol.FlyStickVibration(0, 3))
}
