package domain

import "time"

// Trade is the persisted record of a trade, open or closed.
type Trade struct {
	ID            int64       // Ledger record ID
	Symbol        string      // Trading symbol
	StrategyID    string      // Strategy instance that produced the trade
	BuyPrice      float64     // Fill price at entry
	BuyTime       time.Time   // Entry timestamp
	Quantity      float64     // Size of the position
	SellPrice     float64     // Fill price at exit (0 while open)
	SellTime      time.Time   // Exit timestamp (zero value while open)
	ProfitLossPct float64     // (sell - buy) / buy * 100, set on close
	Reason        CloseReason // Why the position was closed (empty while open)
	Status        TradeStatus // OPEN or CLOSED
}
