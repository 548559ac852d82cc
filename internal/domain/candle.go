package domain

import "time"

// Candle represents a single closed OHLCV bar.
type Candle struct {
	OpenTime time.Time // Start time of the interval
	Symbol   string    // Trading symbol (e.g., "BNBUSDT")
	Open     float64   // Opening price
	High     float64   // Highest price
	Low      float64   // Lowest price
	Close    float64   // Closing price
	Volume   float64   // Trading volume
}

// BodyMid returns the middle of the candle body: (open + close) / 2.
// Used as a smoothed price reference instead of the raw close.
func (c *Candle) BodyMid() float64 {
	return (c.Open + c.Close) / 2
}

// IsRed reports whether the candle closed below its open.
func (c *Candle) IsRed() bool {
	return c.Close < c.Open
}
