package strategies

import (
	"context"
	"fmt"

	"candlebot/internal/domain"
	"candlebot/internal/ports"
	"candlebot/internal/strategy/indicators"
)

// DogeMomentumStrategy buys a momentum breakdown: a strict falling body-mid
// sequence containing at least one strong red bar, with the close pushed well
// below SMA20 and (optionally) the whole moving-average stack pointing down.
// Exits use an observer mode instead of the streak arming: once the profit
// trigger is reached the position is watched for a red streak above SMA20, a
// body-mid dipping back under the entry, or an SMA10/SMA50 downward cross.
type DogeMomentumStrategy struct {
	id     string
	symbol string
	logger ports.Logger

	candleCount           int
	priceBelowMA20Pct     float64
	minRedBodyPct         float64
	profitTriggerPct      float64
	stopLossPct           float64
	redCandleTrigger      int
	redCandleAboveMA20Pct float64
	requireMATrend        bool
}

// NewDogeMomentum builds a DogeMomentumStrategy from its named options.
// Defaults: 6-bar sequence, 2% below SMA20, 2% strong-red body, 2% profit
// trigger, 5% stop-loss, 2 red bars with the first 1% above SMA20, trend
// gate on.
func NewDogeMomentum(symbol, id string, params Params, logger ports.Logger) (*DogeMomentumStrategy, error) {
	var errs []string

	candleCount, err := params.Int("candle_count", 6)
	if err != nil {
		errs = append(errs, err.Error())
	}
	priceBelowMA20Pct, err := params.Float("price_below_ma20_pct", 2.0)
	if err != nil {
		errs = append(errs, err.Error())
	}
	minRedBodyPct, err := params.Float("min_red_body_pct", 2.0)
	if err != nil {
		errs = append(errs, err.Error())
	}
	profitTriggerPct, err := params.Float("profit_trigger_pct", 2.0)
	if err != nil {
		errs = append(errs, err.Error())
	}
	stopLossPct, err := params.Float("stop_loss_pct", 5.0)
	if err != nil {
		errs = append(errs, err.Error())
	}
	redCandleTrigger, err := params.Int("red_candle_count_trigger", 2)
	if err != nil {
		errs = append(errs, err.Error())
	}
	redAboveMA20Pct, err := params.Float("red_candle_above_ma20_pct", 1.0)
	if err != nil {
		errs = append(errs, err.Error())
	}
	requireMATrend, err := params.Bool("require_ma_trend", true)
	if err != nil {
		errs = append(errs, err.Error())
	}

	if candleCount < 2 {
		errs = append(errs, fmt.Sprintf("candle_count must be at least 2, got %d", candleCount))
	}
	if stopLossPct <= 0 || stopLossPct >= 50 {
		errs = append(errs, fmt.Sprintf("stop_loss_pct must be in (0, 50), got %v", stopLossPct))
	}
	if profitTriggerPct <= 0 {
		errs = append(errs, fmt.Sprintf("profit_trigger_pct must be positive, got %v", profitTriggerPct))
	}
	if redCandleTrigger < 1 {
		errs = append(errs, fmt.Sprintf("red_candle_count_trigger must be at least 1, got %d", redCandleTrigger))
	}
	if err := collectErrs(errs); err != nil {
		return nil, err
	}

	return &DogeMomentumStrategy{
		id:                    id,
		symbol:                symbol,
		logger:                logger,
		candleCount:           candleCount,
		priceBelowMA20Pct:     priceBelowMA20Pct,
		minRedBodyPct:         minRedBodyPct,
		profitTriggerPct:      profitTriggerPct,
		stopLossPct:           stopLossPct,
		redCandleTrigger:      redCandleTrigger,
		redCandleAboveMA20Pct: redAboveMA20Pct,
		requireMATrend:        requireMATrend,
	}, nil
}

func (s *DogeMomentumStrategy) ID() string     { return s.id }
func (s *DogeMomentumStrategy) Symbol() string { return s.symbol }

// RequiredBars is dominated by the SMA200 trend gate.
func (s *DogeMomentumStrategy) RequiredBars() int {
	if 200 > s.candleCount+2 {
		return 200
	}
	return s.candleCount + 2
}

func (s *DogeMomentumStrategy) isStrongRed(c *domain.Candle) bool {
	if !c.IsRed() || c.Open <= 0 {
		return false
	}
	return (c.Open-c.Close)/c.Open*100 >= s.minRedBodyPct
}

// CheckBuySignal requires, on the trailing candleCount bars: a strict falling
// body-mid sequence, at least one strong red bar, the optional
// SMA20<SMA50<SMA100<SMA200 trend gate, and a close at least
// priceBelowMA20Pct under SMA20.
func (s *DogeMomentumStrategy) CheckBuySignal(ctx context.Context, window []*domain.Candle) bool {
	n := len(window)
	if n < s.RequiredBars() {
		s.logger.Debug(ctx, "Not enough candles for buy evaluation", map[string]interface{}{
			"strategy": s.id, "symbol": s.symbol, "have": n, "need": s.RequiredBars(),
		})
		return false
	}

	for i := 0; i < s.candleCount-1; i++ {
		if window[n-1-i].BodyMid() >= window[n-2-i].BodyMid() {
			return false
		}
	}

	strongRed := false
	for i := 0; i < s.candleCount; i++ {
		if s.isStrongRed(window[n-1-i]) {
			strongRed = true
			break
		}
	}
	if !strongRed {
		return false
	}

	if s.requireMATrend && !s.maTrendDown(window) {
		return false
	}

	ma20, err := indicators.SMA(window, 20)
	if err != nil {
		return false
	}
	threshold := ma20 * (1 - s.priceBelowMA20Pct/100)
	if window[n-1].Close >= threshold {
		return false
	}

	s.logger.Info(ctx, "Momentum breakdown, buy signal", map[string]interface{}{
		"strategy": s.id,
		"symbol":   s.symbol,
		"price":    window[n-1].Close,
		"sma20":    ma20,
	})
	return true
}

func (s *DogeMomentumStrategy) maTrendDown(window []*domain.Candle) bool {
	ma20, err1 := indicators.SMA(window, 20)
	ma50, err2 := indicators.SMA(window, 50)
	ma100, err3 := indicators.SMA(window, 100)
	ma200, err4 := indicators.SMA(window, 200)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		return false
	}
	return ma20 < ma50 && ma50 < ma100 && ma100 < ma200
}

// CheckSellSignal checks the stop-loss first, then runs observer mode.
// Tracking fields double as the observer state: TPArmed is observer
// activation, AdverseStreak the red-bar streak, FirstAdverseMid the body-mid
// of the streak's first red bar.
func (s *DogeMomentumStrategy) CheckSellSignal(ctx context.Context, window []*domain.Candle, pos *domain.Position) ports.SellSignal {
	sig := ports.SellSignal{Track: pos.Track}
	n := len(window)
	if n == 0 {
		return sig
	}
	last := window[n-1]

	if last.Close <= s.StopLossPrice(pos.EntryPrice) {
		sig.Sell = true
		sig.Reason = domain.CloseReasonStopLoss
		return sig
	}

	if !sig.Track.TPArmed && last.Close >= s.TakeProfitPrice(pos.EntryPrice) {
		sig.Track.TPArmed = true
		sig.Track.AdverseStreak = 0
		sig.Track.FirstAdverseMid = 0
		s.logger.Info(ctx, "Observer mode activated", map[string]interface{}{
			"strategy": s.id, "symbol": s.symbol, "price": last.Close, "entry": pos.EntryPrice,
		})
	}

	if !sig.Track.TPArmed {
		return sig
	}

	if last.IsRed() {
		sig.Track.AdverseStreak++
		if sig.Track.FirstAdverseMid == 0 {
			sig.Track.FirstAdverseMid = last.BodyMid()
		}
	} else {
		sig.Track.AdverseStreak = 0
		sig.Track.FirstAdverseMid = 0
	}

	if sig.Track.AdverseStreak >= s.redCandleTrigger {
		if ma20, err := indicators.SMA(window, 20); err == nil {
			threshold := ma20 * (1 + s.redCandleAboveMA20Pct/100)
			if sig.Track.FirstAdverseMid > threshold {
				sig.Sell = true
				sig.Reason = domain.CloseReasonObserverRedStreak
				return sig
			}
		}
	}

	if last.BodyMid() < pos.EntryPrice {
		sig.Sell = true
		sig.Reason = domain.CloseReasonObserverBodyBelowEntry
		return sig
	}

	ma10Cur, err1 := indicators.SMA(window, 10)
	ma50Cur, err2 := indicators.SMA(window, 50)
	ma10Prev, err3 := indicators.SMAAt(window, 10, 1)
	ma50Prev, err4 := indicators.SMAAt(window, 50, 1)
	if err1 == nil && err2 == nil && err3 == nil && err4 == nil {
		if ma10Prev > ma50Prev && ma10Cur < ma50Cur {
			sig.Sell = true
			sig.Reason = domain.CloseReasonObserverMACross
		}
	}
	return sig
}

func (s *DogeMomentumStrategy) StopLossPrice(entryPrice float64) float64 {
	return entryPrice * (1 - s.stopLossPct/100)
}

// TakeProfitPrice returns the observer activation level.
func (s *DogeMomentumStrategy) TakeProfitPrice(entryPrice float64) float64 {
	return entryPrice * (1 + s.profitTriggerPct/100)
}
