package indicators

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRSI(t *testing.T) {
	// Changes: +2, -1, +2, -1, +2 over a 3-bar period.
	window := closesWindow(100, 102, 101, 103, 102, 104)

	got, err := RSI(window, 3)
	require.NoError(t, err)
	assert.InDelta(t, 77.272727, got, 1e-4)

	got, err = RSI(closesWindow(100, 102, 104, 106), 3)
	require.NoError(t, err)
	assert.InDelta(t, 100.0, got, 1e-9, "only gains saturate at 100")

	got, err = RSI(closesWindow(106, 104, 102, 100), 3)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, got, 1e-9, "only losses saturate at 0")

	got, err = RSI(closesWindow(100, 100, 100, 100), 3)
	require.NoError(t, err)
	assert.InDelta(t, 50.0, got, 1e-9, "unchanged closes are neutral")

	_, err = RSI(window, 6)
	assert.Error(t, err, "period needs more closes than the window holds")

	_, err = RSI(window, 0)
	assert.Error(t, err)
}
