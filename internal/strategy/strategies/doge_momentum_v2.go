package strategies

import (
	"context"
	"fmt"

	"candlebot/internal/domain"
	"candlebot/internal/ports"
	"candlebot/internal/strategy/indicators"
)

const (
	v2RSIPeriod       = 14
	v2VolumeAvgBars   = 20
	v2LocalLowBars    = 5
	v2LocalLowFrac    = 0.3
	v2WeakeningFactor = 0.5
)

// DogeMomentumV2Strategy buys a capitulation reversal: a short run of red
// bars into an oversold RSI, the close pushed under SMA20 and sitting near
// the local low, a volume spike, and the selling pressure visibly fading on
// the newest bar. Exits combine a tight stop-loss, a trailing stop that arms
// once the trade moves into profit, and a fixed take-profit.
type DogeMomentumV2Strategy struct {
	id     string
	symbol string
	logger ports.Logger

	redCandlesMin         int
	redCandlesMax         int
	priceBelowMA20Pct     float64
	volumeIncreasePct     float64
	rsiOversold           float64
	stopLossPct           float64
	takeProfitPct         float64
	trailingActivationPct float64
	trailingStopPct       float64
}

// NewDogeMomentumV2 builds a DogeMomentumV2Strategy from its named options.
// Defaults: 2-3 red bars, 0.7% below SMA20, 30% volume spike, RSI oversold
// at 35, 1.2% stop-loss, 3% take-profit, trailing armed at +1.5% with a
// 0.8% trail.
func NewDogeMomentumV2(symbol, id string, params Params, logger ports.Logger) (*DogeMomentumV2Strategy, error) {
	var errs []string

	redMin, err := params.Int("red_candles_min", 2)
	if err != nil {
		errs = append(errs, err.Error())
	}
	redMax, err := params.Int("red_candles_max", 3)
	if err != nil {
		errs = append(errs, err.Error())
	}
	priceBelowMA20Pct, err := params.Float("price_below_ma20_pct", 0.7)
	if err != nil {
		errs = append(errs, err.Error())
	}
	volumeIncreasePct, err := params.Float("volume_increase_pct", 30.0)
	if err != nil {
		errs = append(errs, err.Error())
	}
	rsiOversold, err := params.Float("rsi_oversold", 35.0)
	if err != nil {
		errs = append(errs, err.Error())
	}
	stopLossPct, err := params.Float("stop_loss_pct", 1.2)
	if err != nil {
		errs = append(errs, err.Error())
	}
	takeProfitPct, err := params.Float("take_profit_pct", 3.0)
	if err != nil {
		errs = append(errs, err.Error())
	}
	trailingActivationPct, err := params.Float("trailing_activation_pct", 1.5)
	if err != nil {
		errs = append(errs, err.Error())
	}
	trailingStopPct, err := params.Float("trailing_stop_pct", 0.8)
	if err != nil {
		errs = append(errs, err.Error())
	}

	if redMin < 1 {
		errs = append(errs, fmt.Sprintf("red_candles_min must be at least 1, got %d", redMin))
	}
	if redMax < redMin {
		errs = append(errs, fmt.Sprintf("red_candles_max (%d) must not be below red_candles_min (%d)", redMax, redMin))
	}
	if priceBelowMA20Pct <= 0 {
		errs = append(errs, fmt.Sprintf("price_below_ma20_pct must be positive, got %v", priceBelowMA20Pct))
	}
	if volumeIncreasePct < 0 {
		errs = append(errs, fmt.Sprintf("volume_increase_pct must not be negative, got %v", volumeIncreasePct))
	}
	if rsiOversold <= 0 || rsiOversold >= 100 {
		errs = append(errs, fmt.Sprintf("rsi_oversold must be in (0, 100), got %v", rsiOversold))
	}
	if stopLossPct <= 0 {
		errs = append(errs, fmt.Sprintf("stop_loss_pct must be positive, got %v", stopLossPct))
	}
	if takeProfitPct <= 0 {
		errs = append(errs, fmt.Sprintf("take_profit_pct must be positive, got %v", takeProfitPct))
	}
	if trailingActivationPct <= 0 {
		errs = append(errs, fmt.Sprintf("trailing_activation_pct must be positive, got %v", trailingActivationPct))
	}
	if trailingStopPct <= 0 {
		errs = append(errs, fmt.Sprintf("trailing_stop_pct must be positive, got %v", trailingStopPct))
	}
	if err := collectErrs(errs); err != nil {
		return nil, err
	}

	return &DogeMomentumV2Strategy{
		id:                    id,
		symbol:                symbol,
		logger:                logger,
		redCandlesMin:         redMin,
		redCandlesMax:         redMax,
		priceBelowMA20Pct:     priceBelowMA20Pct,
		volumeIncreasePct:     volumeIncreasePct,
		rsiOversold:           rsiOversold,
		stopLossPct:           stopLossPct,
		takeProfitPct:         takeProfitPct,
		trailingActivationPct: trailingActivationPct,
		trailingStopPct:       trailingStopPct,
	}, nil
}

func (s *DogeMomentumV2Strategy) ID() string     { return s.id }
func (s *DogeMomentumV2Strategy) Symbol() string { return s.symbol }

// RequiredBars covers the RSI period and the rolling volume average, which
// ends one bar before the newest.
func (s *DogeMomentumV2Strategy) RequiredBars() int { return 25 }

// redStreak counts consecutive red bars walking back from the newest one.
func (s *DogeMomentumV2Strategy) redStreak(window []*domain.Candle) int {
	count := 0
	for i := len(window) - 1; i >= 0; i-- {
		if !window[i].IsRed() {
			break
		}
		count++
	}
	return count
}

// volumeSpike compares the newest bar's volume against the average of the
// v2VolumeAvgBars bars ending one bar earlier. Windows without volume data
// pass the gate.
func (s *DogeMomentumV2Strategy) volumeSpike(window []*domain.Candle) bool {
	n := len(window)
	total := 0.0
	for i := n - 1 - v2VolumeAvgBars; i < n-1; i++ {
		total += window[i].Volume
	}
	avg := total / float64(v2VolumeAvgBars)
	if avg <= 0 {
		return true
	}
	return (window[n-1].Volume-avg)/avg*100 >= s.volumeIncreasePct
}

// nearLocalLow reports whether the newest close sits in the bottom fraction
// of the trailing v2LocalLowBars high-low range.
func (s *DogeMomentumV2Strategy) nearLocalLow(window []*domain.Candle) bool {
	n := len(window)
	low, high := window[n-1].Low, window[n-1].High
	for _, c := range window[n-v2LocalLowBars:] {
		if c.Low < low {
			low = c.Low
		}
		if c.High > high {
			high = c.High
		}
	}
	if high <= low {
		return false
	}
	return (window[n-1].Close-low)/(high-low) < v2LocalLowFrac
}

// momentumFading accepts a green newest bar outright, or a red one whose
// relative body drop is under half the previous bar's.
func (s *DogeMomentumV2Strategy) momentumFading(window []*domain.Candle) bool {
	n := len(window)
	last, prev := window[n-1], window[n-2]
	if !last.IsRed() {
		return true
	}
	if last.Open <= 0 || prev.Open <= 0 {
		return false
	}
	lastDrop := (last.Open - last.Close) / last.Open
	prevDrop := (prev.Open - prev.Close) / prev.Open
	return lastDrop < prevDrop*v2WeakeningFactor
}

// CheckBuySignal requires, in order: a red run within [redCandlesMin,
// redCandlesMax], RSI below the oversold threshold, the close under SMA20 by
// priceBelowMA20Pct, a volume spike, a close near the local low, and fading
// downward momentum.
func (s *DogeMomentumV2Strategy) CheckBuySignal(ctx context.Context, window []*domain.Candle) bool {
	n := len(window)
	if n < s.RequiredBars() {
		s.logger.Debug(ctx, "Not enough candles for buy evaluation", map[string]interface{}{
			"strategy": s.id, "symbol": s.symbol, "have": n, "need": s.RequiredBars(),
		})
		return false
	}

	streak := s.redStreak(window)
	if streak < s.redCandlesMin || streak > s.redCandlesMax {
		return false
	}

	rsi, err := indicators.RSI(window, v2RSIPeriod)
	if err != nil || rsi >= s.rsiOversold {
		return false
	}

	ma20, err := indicators.SMA(window, 20)
	if err != nil {
		return false
	}
	if window[n-1].Close >= ma20*(1-s.priceBelowMA20Pct/100) {
		return false
	}

	if !s.volumeSpike(window) {
		return false
	}
	if !s.nearLocalLow(window) {
		return false
	}
	if !s.momentumFading(window) {
		return false
	}

	s.logger.Info(ctx, "Capitulation reversal, buy signal", map[string]interface{}{
		"strategy": s.id,
		"symbol":   s.symbol,
		"price":    window[n-1].Close,
		"rsi":      rsi,
		"sma20":    ma20,
	})
	return true
}

// CheckSellSignal checks the stop-loss first, then the trailing stop, then
// the fixed take-profit. Tracking doubles as the trailing state: TPArmed is
// the trailing activation flag, HighWater the highest close since entry.
func (s *DogeMomentumV2Strategy) CheckSellSignal(ctx context.Context, window []*domain.Candle, pos *domain.Position) ports.SellSignal {
	sig := ports.SellSignal{Track: pos.Track}
	n := len(window)
	if n == 0 {
		return sig
	}
	price := window[n-1].Close

	if price <= s.StopLossPrice(pos.EntryPrice) {
		sig.Sell = true
		sig.Reason = domain.CloseReasonStopLoss
		return sig
	}

	if sig.Track.HighWater < pos.EntryPrice {
		sig.Track.HighWater = pos.EntryPrice
	}
	if price > sig.Track.HighWater {
		sig.Track.HighWater = price
	}

	if !sig.Track.TPArmed && price >= pos.EntryPrice*(1+s.trailingActivationPct/100) {
		sig.Track.TPArmed = true
		s.logger.Info(ctx, "Trailing stop armed", map[string]interface{}{
			"strategy": s.id, "symbol": s.symbol, "price": price, "entry": pos.EntryPrice,
		})
	}

	if sig.Track.TPArmed && price <= sig.Track.HighWater*(1-s.trailingStopPct/100) {
		sig.Sell = true
		sig.Reason = domain.CloseReasonTrailingStop
		return sig
	}

	if price >= s.TakeProfitPrice(pos.EntryPrice) {
		sig.Sell = true
		sig.Reason = domain.CloseReasonTakeProfit
	}
	return sig
}

func (s *DogeMomentumV2Strategy) StopLossPrice(entryPrice float64) float64 {
	return entryPrice * (1 - s.stopLossPct/100)
}

func (s *DogeMomentumV2Strategy) TakeProfitPrice(entryPrice float64) float64 {
	return entryPrice * (1 + s.takeProfitPct/100)
}
