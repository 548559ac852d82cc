package strategies

import (
	"candlebot/internal/domain"
	"candlebot/internal/ports"
)

// countFalling reports whether the last num body-mid transitions of the
// window are falling, walking backward from the newest bar. With allowBreak
// set, exactly one non-falling transition anywhere in the run is forgiven.
func countFalling(window []*domain.Candle, num int, allowBreak bool) bool {
	n := len(window)
	maxIter := num
	if allowBreak {
		maxIter++
	}

	falling := 0
	breakUsed := false
	for i := 1; i <= maxIter; i++ {
		if n-i-1 < 0 {
			break
		}
		midCur := window[n-i].BodyMid()
		midPrev := window[n-i-1].BodyMid()
		if midCur < midPrev {
			falling++
		} else if allowBreak && !breakUsed {
			breakUsed = true
		} else {
			return false
		}
	}
	return falling >= num
}

// exitRules is the parameterized shared sell shape: stop-loss first, then
// two-phase take-profit arming with adverse-streak confirmation, then an
// optional stagnation exit. Evaluation order is the tie-break between reasons.
type exitRules struct {
	stopLossPct      float64
	takeProfitPct    float64
	redCandlesToSell int
	stagnationBars   int // 0 disables the stagnation exit
}

func (r exitRules) stopLossPrice(entry float64) float64 {
	return entry * (1 - r.stopLossPct/100)
}

func (r exitRules) takeProfitPrice(entry float64) float64 {
	return entry * (1 + r.takeProfitPct/100)
}

// evaluate runs the shared sell shape for the newest bar. armPrice is the
// price compared against the take-profit trigger; variants pass the bar high
// or close depending on their arming rule.
func (r exitRules) evaluate(pos *domain.Position, last *domain.Candle, armPrice float64) ports.SellSignal {
	sig := ports.SellSignal{Track: pos.Track}

	if last.Close <= r.stopLossPrice(pos.EntryPrice) {
		sig.Sell = true
		sig.Reason = domain.CloseReasonStopLoss
		return sig
	}

	// Arming is one-directional: once set it stays set until the sell itself.
	if !sig.Track.TPArmed && armPrice >= r.takeProfitPrice(pos.EntryPrice) {
		sig.Track.TPArmed = true
		sig.Track.AdverseStreak = 0
	}

	if sig.Track.TPArmed {
		if last.IsRed() {
			sig.Track.AdverseStreak++
		} else {
			sig.Track.AdverseStreak = 0
		}
		if sig.Track.AdverseStreak >= r.redCandlesToSell {
			sig.Sell = true
			sig.Reason = domain.CloseReasonTakeProfit
			return sig
		}
	}

	if r.stagnationBars > 0 && pos.BarsHeld >= r.stagnationBars {
		sig.Sell = true
		sig.Reason = domain.CloseReasonStagnation
	}
	return sig
}
