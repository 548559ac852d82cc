package domain

import "time"

// Tracking holds the strategy-managed state of an open position. Evaluators
// receive the current value and return an updated copy; the engine applies it
// back onto the Position of record so the position stays single-owner.
type Tracking struct {
	TPArmed         bool    // Take-profit threshold reached at least once; sticky until close
	AdverseStreak   int     // Consecutive red bars observed while armed
	FirstAdverseMid float64 // Body mid of the first red bar in the current streak (0 = unset)
	HighWater       float64 // Highest close seen since entry, for trailing stops (0 = unset)
}

// Position represents one open trade for a (symbol, strategy) pair.
type Position struct {
	ID         int64     // Ledger record ID
	Symbol     string    // Trading symbol (e.g., "XRPUSDT")
	StrategyID string    // Identifier of the strategy instance managing the trade
	EntryPrice float64   // Fill price at entry
	Quantity   float64   // Size of the position
	EntryTime  time.Time // Timestamp of entry
	StopLoss   float64   // Stop-loss price level, fixed at entry
	TakeProfit float64   // Take-profit trigger price level, fixed at entry
	BarsHeld   int       // Cycles the position has been held
	Track      Tracking  // Strategy tracking state, mutated only by the engine
}

// Key returns the unique (symbol, strategy) key identifying the position slot.
func (p *Position) Key() string {
	return p.Symbol + "_" + p.StrategyID
}

// PairKey builds the position-slot key for a (symbol, strategy) pair.
func PairKey(symbol, strategyID string) string {
	return symbol + "_" + strategyID
}
