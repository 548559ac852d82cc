package ports

import (
	"context"
	"time"

	"candlebot/internal/domain"
)

// CandleStore provides ordered OHLCV windows for a symbol.
type CandleStore interface {
	// GetWindow returns up to count candles for the symbol whose open time is
	// at or before end, ordered oldest to newest. It fails with
	// ErrDataUnavailable when no candles exist at or before end, or when fewer
	// than count are available.
	GetWindow(ctx context.Context, symbol string, end time.Time, count int) ([]*domain.Candle, error)

	// SaveCandles upserts candles into the store, keyed by (symbol, open time).
	SaveCandles(ctx context.Context, candles []*domain.Candle) error
}
