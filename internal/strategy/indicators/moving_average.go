package indicators

import (
	"fmt"

	"candlebot/internal/domain"
)

// SMA calculates the simple moving average of the closing prices over the
// last period candles of the window.
func SMA(window []*domain.Candle, period int) (float64, error) {
	return SMAAt(window, period, 0)
}

// SMAAt calculates the SMA ending barsBack candles before the newest one.
// SMAAt(w, p, 0) is the current value, SMAAt(w, p, 1) the previous one;
// useful for crossover detection.
func SMAAt(window []*domain.Candle, period, barsBack int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("SMA period must be positive, got %d", period)
	}
	end := len(window) - barsBack
	if end < period {
		return 0, fmt.Errorf("not enough data (%d) to calculate SMA for period %d offset %d", len(window), period, barsBack)
	}

	total := 0.0
	for i := end - period; i < end; i++ {
		total += window[i].Close
	}
	return total / float64(period), nil
}
