package domain

// TradeStatus represents the lifecycle state of a persisted trade record.
type TradeStatus string

const (
	StatusOpen   TradeStatus = "OPEN"
	StatusClosed TradeStatus = "CLOSED"
)

// CloseReason indicates why a position was closed.
type CloseReason string

const (
	CloseReasonStopLoss     CloseReason = "STOP_LOSS"
	CloseReasonTakeProfit   CloseReason = "TAKE_PROFIT"
	CloseReasonTrailingStop CloseReason = "TRAILING_STOP"
	CloseReasonStagnation   CloseReason = "STAGNATION"

	// DogeMomentum observer-mode exits.
	CloseReasonObserverRedStreak      CloseReason = "OBSERVER_RED_STREAK"
	CloseReasonObserverBodyBelowEntry CloseReason = "OBSERVER_BODY_BELOW_ENTRY"
	CloseReasonObserverMACross        CloseReason = "OBSERVER_MA_CROSS"
)
