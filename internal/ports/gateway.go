package ports

import (
	"context"
	"time"

	"candlebot/internal/domain"
)

// OrderGateway places market orders on the exchange and reports fill prices.
// A zero fill price means the exchange did not report one; callers fall back
// to the last known close.
type OrderGateway interface {
	// MarketBuy places a market buy order and returns the average fill price.
	// Fails with ErrOrderPlacementFailed (or a more specific sentinel) on
	// rejection; no position must be assumed to exist in that case.
	MarketBuy(ctx context.Context, symbol string, quantity float64) (float64, error)

	// MarketSell places a market sell order and returns the average fill price.
	MarketSell(ctx context.Context, symbol string, quantity float64) (float64, error)
}

// CandleFetcher retrieves historical candles from the exchange, used to seed
// the local candle store.
type CandleFetcher interface {
	GetCandlesRange(ctx context.Context, symbol, interval string, start, end time.Time) ([]*domain.Candle, error)
}
