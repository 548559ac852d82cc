package ports

import (
	"context"

	"candlebot/internal/domain"
)

// SellSignal is the outcome of a sell-side evaluation. Track carries the
// updated tracking state; the engine applies it back onto the Position of
// record, keeping the evaluator free of shared mutable state.
type SellSignal struct {
	Sell   bool
	Reason domain.CloseReason
	Track  domain.Tracking
}

// Strategy defines the capability set of a signal evaluator. Implementations
// are immutable after construction: both checks are pure functions of the
// window, the strategy parameters and (for sells) the position snapshot.
type Strategy interface {
	// ID returns the configured strategy instance identifier.
	ID() string

	// Symbol returns the trading symbol the instance is bound to.
	Symbol() string

	// RequiredBars returns the minimum window length the evaluator needs.
	RequiredBars() int

	// CheckBuySignal reports whether a buy should fire for the window.
	// Windows shorter than RequiredBars yield false, never an error.
	CheckBuySignal(ctx context.Context, window []*domain.Candle) bool

	// CheckSellSignal evaluates the exit rules for an open position.
	// Exactly one close reason is reported; stop-loss dominates take-profit
	// dominates stagnation.
	CheckSellSignal(ctx context.Context, window []*domain.Candle, pos *domain.Position) SellSignal

	// StopLossPrice returns the stop-loss level for an entry price.
	StopLossPrice(entryPrice float64) float64

	// TakeProfitPrice returns the take-profit trigger level for an entry price.
	TakeProfitPrice(entryPrice float64) float64
}

// LossLockout is implemented by strategies that suppress new entries for a
// while after a losing trade. LossLookbackBars returns the cool-down window
// measured in bars of the trading interval.
type LossLockout interface {
	LossLookbackBars() int
}
