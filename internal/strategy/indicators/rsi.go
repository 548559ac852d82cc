package indicators

import (
	"fmt"

	"candlebot/internal/domain"
)

// RSI calculates the Relative Strength Index of the closing prices using
// Wilder's smoothing method. A window of unchanged closes is neutral (50);
// a window with only gains or only losses saturates at 100 or 0.
func RSI(window []*domain.Candle, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("RSI period must be positive, got %d", period)
	}
	if len(window) <= period {
		return 0, fmt.Errorf("not enough data (%d) to calculate RSI for period %d", len(window), period)
	}

	changes := make([]float64, 0, len(window)-1)
	for i := 1; i < len(window); i++ {
		changes = append(changes, window[i].Close-window[i-1].Close)
	}

	var avgGain, avgLoss float64
	for i := 0; i < period; i++ {
		if changes[i] > 0 {
			avgGain += changes[i]
		} else {
			avgLoss -= changes[i]
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	for i := period; i < len(changes); i++ {
		if changes[i] > 0 {
			avgGain = (avgGain*float64(period-1) + changes[i]) / float64(period)
			avgLoss = (avgLoss * float64(period-1)) / float64(period)
		} else {
			avgGain = (avgGain * float64(period-1)) / float64(period)
			avgLoss = (avgLoss*float64(period-1) - changes[i]) / float64(period)
		}
	}

	if avgLoss == 0 {
		if avgGain == 0 {
			return 50, nil
		}
		return 100, nil
	}

	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs)), nil
}
