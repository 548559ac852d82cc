package backtest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"candlebot/internal/engine"
	"candlebot/internal/ports"
)

// PointResult is the outcome of checking one pair at one point in time.
type PointResult struct {
	Symbol     string
	StrategyID string
	Signal     bool
	Price      float64 // close of the newest bar in the window
	StopLoss   float64 // strategy stop-loss for a hypothetical entry at Price
	TakeProfit float64 // strategy take-profit trigger for the same entry
	Err        error
}

// SignalEvent is one buy signal found during a range scan.
type SignalEvent struct {
	Timestamp  time.Time
	Symbol     string
	StrategyID string
	Price      float64
	StopLoss   float64
	TakeProfit float64
}

// ScanReport summarizes a range scan.
type ScanReport struct {
	Events       []SignalEvent  // chronological
	CountsByID   map[string]int // signals per strategy instance
	StepsChecked int
}

// Harness replays the live buy-signal path against stored candles. It is
// strictly read-only: no gateway, no ledger, identical CheckBuySignal code
// to the trading engine.
type Harness struct {
	logger      ports.Logger
	store       ports.CandleStore
	pairs       []engine.Pair
	historyBars int
	workers     int
}

// New creates a Harness over the given pairs. workers bounds the range-scan
// fan-out; values below 1 fall back to sequential scanning.
func New(logger ports.Logger, store ports.CandleStore, pairs []engine.Pair, historyBars, workers int) (*Harness, error) {
	if len(pairs) == 0 {
		return nil, fmt.Errorf("%w: no pairs to backtest", ports.ErrConfiguration)
	}
	for _, p := range pairs {
		if p.Strategy == nil {
			return nil, fmt.Errorf("%w: pair %s has no strategy", ports.ErrConfiguration, p.Symbol)
		}
		if need := p.Strategy.RequiredBars(); need > historyBars {
			historyBars = need
		}
	}
	if workers < 1 {
		workers = 1
	}
	return &Harness{
		logger:      logger,
		store:       store,
		pairs:       pairs,
		historyBars: historyBars,
		workers:     workers,
	}, nil
}

// At runs a point backtest: every pair's buy check against the window ending
// at the latest bar at or before ts. A pair whose window cannot be built is
// reported with its error; the other pairs still get checked.
func (h *Harness) At(ctx context.Context, ts time.Time) ([]PointResult, error) {
	if ts.IsZero() {
		return nil, fmt.Errorf("%w: timestamp must be set", ports.ErrInvalidTimeRange)
	}

	results := make([]PointResult, 0, len(h.pairs))
	for _, pair := range h.pairs {
		results = append(results, h.checkPair(ctx, pair, ts))
	}
	return results, nil
}

func (h *Harness) checkPair(ctx context.Context, pair engine.Pair, ts time.Time) PointResult {
	strat := pair.Strategy
	res := PointResult{Symbol: pair.Symbol, StrategyID: strat.ID()}

	window, err := h.store.GetWindow(ctx, pair.Symbol, ts, h.historyBars)
	if err != nil {
		res.Err = err
		return res
	}

	res.Price = window[len(window)-1].Close
	res.Signal = strat.CheckBuySignal(ctx, window)
	if res.Signal {
		res.StopLoss = strat.StopLossPrice(res.Price)
		res.TakeProfit = strat.TakeProfitPrice(res.Price)
	}
	return res
}

// ScanRange runs the point check at every step in [start, end] and collects
// the buy signals. Steps are independent, so they fan out across a bounded
// worker pool; events are sorted by timestamp before returning, which makes
// the parallel scan output identical to a sequential one.
func (h *Harness) ScanRange(ctx context.Context, start, end time.Time, step time.Duration) (*ScanReport, error) {
	if start.IsZero() || end.IsZero() {
		return nil, fmt.Errorf("%w: start and end must be set", ports.ErrInvalidTimeRange)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("%w: end %s is before start %s", ports.ErrInvalidTimeRange, end.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	if step <= 0 {
		return nil, fmt.Errorf("%w: step must be positive, got %s", ports.ErrInvalidTimeRange, step)
	}

	var steps []time.Time
	for ts := start; !ts.After(end); ts = ts.Add(step) {
		steps = append(steps, ts)
	}

	report := &ScanReport{CountsByID: make(map[string]int), StepsChecked: len(steps)}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	sem := make(chan struct{}, h.workers)

	for _, ts := range steps {
		wg.Add(1)
		sem <- struct{}{}
		go func(ts time.Time) {
			defer wg.Done()
			defer func() { <-sem }()

			for _, pair := range h.pairs {
				res := h.checkPair(ctx, pair, ts)
				if res.Err != nil || !res.Signal {
					continue
				}
				mu.Lock()
				report.Events = append(report.Events, SignalEvent{
					Timestamp:  ts,
					Symbol:     res.Symbol,
					StrategyID: res.StrategyID,
					Price:      res.Price,
					StopLoss:   res.StopLoss,
					TakeProfit: res.TakeProfit,
				})
				report.CountsByID[res.StrategyID]++
				mu.Unlock()
			}
		}(ts)
	}
	wg.Wait()

	sort.Slice(report.Events, func(i, j int) bool {
		a, b := report.Events[i], report.Events[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		if a.Symbol != b.Symbol {
			return a.Symbol < b.Symbol
		}
		return a.StrategyID < b.StrategyID
	})

	h.logger.Info(ctx, "Range scan complete", map[string]interface{}{
		"steps":   report.StepsChecked,
		"signals": len(report.Events),
		"start":   start.Format(time.RFC3339),
		"end":     end.Format(time.RFC3339),
	})
	return report, nil
}
