package indicators

import (
	"testing"
	"time"

	"candlebot/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func closesWindow(closes ...float64) []*domain.Candle {
	candles := make([]*domain.Candle, len(closes))
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		candles[i] = &domain.Candle{OpenTime: base.Add(time.Duration(i) * time.Minute), Close: c}
	}
	return candles
}

func TestSMA(t *testing.T) {
	window := closesWindow(1, 2, 3, 4, 5, 6)

	got, err := SMA(window, 3)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, got, 1e-9) // (4+5+6)/3

	got, err = SMA(window, 6)
	require.NoError(t, err)
	assert.InDelta(t, 3.5, got, 1e-9)

	_, err = SMA(window, 7)
	assert.Error(t, err, "period longer than the window")

	_, err = SMA(window, 0)
	assert.Error(t, err)
}

func TestSMAAt(t *testing.T) {
	window := closesWindow(1, 2, 3, 4, 5, 6)

	got, err := SMAAt(window, 3, 1)
	require.NoError(t, err)
	assert.InDelta(t, 4.0, got, 1e-9) // (3+4+5)/3

	got, err = SMAAt(window, 3, 3)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, got, 1e-9) // (1+2+3)/3

	_, err = SMAAt(window, 3, 4)
	assert.Error(t, err, "offset pushes past the window start")
}
