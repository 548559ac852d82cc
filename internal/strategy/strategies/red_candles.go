package strategies

import (
	"context"
	"fmt"

	"candlebot/internal/domain"
	"candlebot/internal/ports"
)

// RedCandlesSequenceStrategy buys a confirmed reversal: a strict falling run
// of body-mids deep enough to clear a magnitude gate, followed by one bar
// whose body-mid turns back up. Exits use the shared rules with a stagnation
// cap on holding time.
type RedCandlesSequenceStrategy struct {
	id     string
	symbol string
	logger ports.Logger

	barsCount    int
	totalDropPct float64
	rules        exitRules
}

// NewRedCandlesSequence builds a RedCandlesSequenceStrategy from its named
// options. Defaults: 5 falling bars, 1.0% total drop, 2% stop-loss, 2%
// take-profit, 1 adverse bar to sell, 60-bar stagnation exit.
func NewRedCandlesSequence(symbol, id string, params Params, logger ports.Logger) (*RedCandlesSequenceStrategy, error) {
	var errs []string

	barsCount, err := params.Int("bars_count", 5)
	if err != nil {
		errs = append(errs, err.Error())
	}
	totalDropPct, err := params.Float("total_drop_pct", 1.0)
	if err != nil {
		errs = append(errs, err.Error())
	}
	stopLossPct, err := params.Float("stop_loss_pct", 2.0)
	if err != nil {
		errs = append(errs, err.Error())
	}
	takeProfitPct, err := params.Float("take_profit_pct", 2.0)
	if err != nil {
		errs = append(errs, err.Error())
	}
	redToSell, err := params.Int("red_candles_to_sell", 1)
	if err != nil {
		errs = append(errs, err.Error())
	}
	stagnationBars, err := params.Int("stagnation_bars", 60)
	if err != nil {
		errs = append(errs, err.Error())
	}

	if barsCount < 1 {
		errs = append(errs, fmt.Sprintf("bars_count must be at least 1, got %d", barsCount))
	}
	if totalDropPct < 0 {
		errs = append(errs, fmt.Sprintf("total_drop_pct must not be negative, got %v", totalDropPct))
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
	if stagnationBars < 0 {
		errs = append(errs, fmt.Sprintf("stagnation_bars must not be negative, got %d", stagnationBars))
	}
	if err := collectErrs(errs); err != nil {
		return nil, err
	}

	return &RedCandlesSequenceStrategy{
		id:           id,
		symbol:       symbol,
		logger:       logger,
		barsCount:    barsCount,
		totalDropPct: totalDropPct,
		rules: exitRules{
			stopLossPct:      stopLossPct,
			takeProfitPct:    takeProfitPct,
			redCandlesToSell: redToSell,
			stagnationBars:   stagnationBars,
		},
	}, nil
}

func (s *RedCandlesSequenceStrategy) ID() string     { return s.id }
func (s *RedCandlesSequenceStrategy) Symbol() string { return s.symbol }

// RequiredBars covers the falling run, the bar preceding it and the reversal
// bar.
func (s *RedCandlesSequenceStrategy) RequiredBars() int { return s.barsCount + 2 }

// CheckBuySignal requires three conditions on the window, all against
// body-mids: a strict falling run of barsCount transitions ending one bar
// before the newest, a total drop across that run of at least totalDropPct,
// and a newest bar that turns back up.
func (s *RedCandlesSequenceStrategy) CheckBuySignal(ctx context.Context, window []*domain.Candle) bool {
	n := len(window)
	if n < s.RequiredBars() {
		s.logger.Debug(ctx, "Not enough candles for buy evaluation", map[string]interface{}{
			"strategy": s.id, "symbol": s.symbol, "have": n, "need": s.RequiredBars(),
		})
		return false
	}

	// Strict falling run, newest bar excluded: it is the reversal candidate.
	for i := 0; i < s.barsCount; i++ {
		if window[n-2-i].BodyMid() >= window[n-3-i].BodyMid() {
			return false
		}
	}

	firstMid := window[n-2-s.barsCount].BodyMid()
	lastMid := window[n-2].BodyMid()
	if firstMid <= 0 {
		return false
	}
	dropPct := (firstMid - lastMid) / firstMid * 100
	if dropPct < s.totalDropPct {
		s.logger.Debug(ctx, "Falling run too shallow", map[string]interface{}{
			"strategy": s.id, "symbol": s.symbol, "drop_pct": dropPct, "required_pct": s.totalDropPct,
		})
		return false
	}

	if window[n-1].BodyMid() <= window[n-2].BodyMid() {
		return false
	}

	s.logger.Info(ctx, "Reversal after falling run, buy signal", map[string]interface{}{
		"strategy": s.id,
		"symbol":   s.symbol,
		"drop_pct": dropPct,
		"price":    window[n-1].Close,
	})
	return true
}

// CheckSellSignal applies the shared exit rules. The take-profit trigger
// compares against the close, so the bar must hold the level into its close
// before the exit arms.
func (s *RedCandlesSequenceStrategy) CheckSellSignal(ctx context.Context, window []*domain.Candle, pos *domain.Position) ports.SellSignal {
	if len(window) == 0 {
		return ports.SellSignal{Track: pos.Track}
	}
	last := window[len(window)-1]
	sig := s.rules.evaluate(pos, last, last.Close)
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

func (s *RedCandlesSequenceStrategy) StopLossPrice(entryPrice float64) float64 {
	return s.rules.stopLossPrice(entryPrice)
}

func (s *RedCandlesSequenceStrategy) TakeProfitPrice(entryPrice float64) float64 {
	return s.rules.takeProfitPrice(entryPrice)
}
