package strategies

import (
	"context"
	"fmt"

	"candlebot/internal/domain"
	"candlebot/internal/ports"
)

// FallingCandlesStrategy buys after a run of falling body-mids where, by
// default, a single break in the run is tolerated. The take-profit trigger
// arms on the bar high, and a recent losing trade locks new entries out for
// a lookback window.
type FallingCandlesStrategy struct {
	id     string
	symbol string
	logger ports.Logger

	numFalling       int
	allowOneBreak    bool
	lossLookbackBars int
	rules            exitRules
}

// NewFallingCandles builds a FallingCandlesStrategy from its named options.
// Defaults follow the live configuration: 4 falling bars with one break
// tolerated, 1% stop-loss, 0.8% take-profit, 2 adverse bars to sell, 60-bar
// loss lockout.
func NewFallingCandles(symbol, id string, params Params, logger ports.Logger) (*FallingCandlesStrategy, error) {
	var errs []string

	numFalling, err := params.Int("num_falling_candles", 4)
	if err != nil {
		errs = append(errs, err.Error())
	}
	allowOneBreak, err := params.Bool("allow_one_break", true)
	if err != nil {
		errs = append(errs, err.Error())
	}
	stopLossPct, err := params.Float("stop_loss_pct", 1.0)
	if err != nil {
		errs = append(errs, err.Error())
	}
	takeProfitPct, err := params.Float("take_profit_pct", 0.8)
	if err != nil {
		errs = append(errs, err.Error())
	}
	redToSell, err := params.Int("red_candles_to_sell", 2)
	if err != nil {
		errs = append(errs, err.Error())
	}
	lossLookback, err := params.Int("loss_lookback_bars", 60)
	if err != nil {
		errs = append(errs, err.Error())
	}

	if numFalling < 1 {
		errs = append(errs, fmt.Sprintf("num_falling_candles must be at least 1, got %d", numFalling))
	}
	if stopLossPct <= 0 {
		errs = append(errs, fmt.Sprintf("stop_loss_pct must be positive, got %v", stopLossPct))
	}
	if takeProfitPct <= 0 {
		errs = append(errs, fmt.Sprintf("take_profit_pct must be positive, got %v", takeProfitPct))
	}
	if redToSell < 1 {
		errs = append(errs, fmt.Sprintf("red_candles_to_sell must be at least 1, got %d", redToSell))
	}
	if lossLookback < 0 {
		errs = append(errs, fmt.Sprintf("loss_lookback_bars must not be negative, got %d", lossLookback))
	}
	if err := collectErrs(errs); err != nil {
		return nil, err
	}

	return &FallingCandlesStrategy{
		id:               id,
		symbol:           symbol,
		logger:           logger,
		numFalling:       numFalling,
		allowOneBreak:    allowOneBreak,
		lossLookbackBars: lossLookback,
		rules: exitRules{
			stopLossPct:      stopLossPct,
			takeProfitPct:    takeProfitPct,
			redCandlesToSell: redToSell,
		},
	}, nil
}

func (s *FallingCandlesStrategy) ID() string     { return s.id }
func (s *FallingCandlesStrategy) Symbol() string { return s.symbol }

// RequiredBars needs the falling run plus the bar preceding it, plus one
// more when a break may be forgiven.
func (s *FallingCandlesStrategy) RequiredBars() int {
	bars := s.numFalling + 1
	if s.allowOneBreak {
		bars++
	}
	return bars
}

// LossLookbackBars returns the post-loss entry lockout window in bars.
func (s *FallingCandlesStrategy) LossLookbackBars() int { return s.lossLookbackBars }

// CheckBuySignal fires when at least numFalling of the trailing body-mid
// transitions are falling, with at most one break in the run when the
// tolerance is enabled.
func (s *FallingCandlesStrategy) CheckBuySignal(ctx context.Context, window []*domain.Candle) bool {
	if len(window) < s.RequiredBars() {
		s.logger.Debug(ctx, "Not enough candles for buy evaluation", map[string]interface{}{
			"strategy": s.id, "symbol": s.symbol, "have": len(window), "need": s.RequiredBars(),
		})
		return false
	}
	if !countFalling(window, s.numFalling, s.allowOneBreak) {
		return false
	}
	s.logger.Info(ctx, "Falling sequence detected, buy signal", map[string]interface{}{
		"strategy": s.id,
		"symbol":   s.symbol,
		"falling":  s.numFalling,
		"price":    window[len(window)-1].Close,
	})
	return true
}

// CheckSellSignal applies the shared exit rules. The take-profit trigger
// compares against the bar high, so an intrabar spike arms the exit even when
// the bar closes lower.
func (s *FallingCandlesStrategy) CheckSellSignal(ctx context.Context, window []*domain.Candle, pos *domain.Position) ports.SellSignal {
	if len(window) == 0 {
		return ports.SellSignal{Track: pos.Track}
	}
	last := window[len(window)-1]
	sig := s.rules.evaluate(pos, last, last.High)
	if sig.Sell {
		s.logger.Info(ctx, "Sell signal", map[string]interface{}{
			"strategy": s.id,
			"symbol":   s.symbol,
			"reason":   string(sig.Reason),
			"price":    last.Close,
			"entry":    pos.EntryPrice,
		})
	}
	return sig
}

func (s *FallingCandlesStrategy) StopLossPrice(entryPrice float64) float64 {
	return s.rules.stopLossPrice(entryPrice)
}

func (s *FallingCandlesStrategy) TakeProfitPrice(entryPrice float64) float64 {
	return s.rules.takeProfitPrice(entryPrice)
}
