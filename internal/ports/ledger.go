package ports

import (
	"context"
	"time"

	"candlebot/internal/domain"
)

// TradeLedger persists trade records and answers history queries. It is
// append/update-only, keyed by (symbol, strategy); it never mutates live
// Position objects.
type TradeLedger interface {
	// RecordOpen saves a new OPEN trade and returns its assigned ID.
	RecordOpen(ctx context.Context, trade *domain.Trade) (int64, error)

	// RecordClose marks a trade CLOSED with its exit price, pnl and reason.
	RecordClose(ctx context.Context, id int64, sellPrice float64, sellTime time.Time, pnlPct float64, reason domain.CloseReason) error

	// FindOpen retrieves the open trade for a (symbol, strategy) pair, if any.
	// Returns nil, nil when no open trade exists.
	FindOpen(ctx context.Context, symbol, strategyID string) (*domain.Trade, error)

	// RecentLoss reports whether the pair's most recent closed trade lost money
	// and closed within the last lookbackBars bars before now.
	RecentLoss(ctx context.Context, symbol, strategyID string, lookbackBars int, now time.Time) (bool, error)
}
