package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"candlebot/internal/domain"
	"candlebot/internal/ports"
)

// Action is the outcome of one pair's evaluation within a cycle.
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	ActionNone Action = "none"
	ActionSkip Action = "skip" // pair aborted, e.g. candle data unavailable
)

// Pair binds a strategy instance to the quantity it trades.
type Pair struct {
	Symbol   string
	Strategy ports.Strategy
	Quantity float64
}

// CycleResult reports what happened to one pair during a cycle.
type CycleResult struct {
	Symbol     string
	StrategyID string
	Action     Action
	Reason     string
	Price      float64
	Err        error
}

// Engine drives the per-pair trading state machine: flat pairs are checked
// for buy signals, held pairs for sell signals, exactly one transition per
// pair per cycle. Positions live in memory and are mirrored to the ledger.
type Engine struct {
	logger  ports.Logger
	store   ports.CandleStore
	gateway ports.OrderGateway
	ledger  ports.TradeLedger

	pairs       []Pair
	historyBars int
	barInterval time.Duration
	dryRun      bool

	positions map[string]*domain.Position
	restored  bool

	now func() time.Time
}

// Config carries the engine construction options.
type Config struct {
	Pairs       []Pair
	HistoryBars int           // window length requested per evaluation
	BarInterval time.Duration // duration of one bar, used for loss lockouts
	DryRun      bool          // evaluate and report without orders or ledger writes
}

// New creates an Engine. HistoryBars is raised to the largest RequiredBars
// among the configured strategies so no evaluator ever sees a short window.
func New(logger ports.Logger, store ports.CandleStore, gateway ports.OrderGateway, ledger ports.TradeLedger, cfg Config) (*Engine, error) {
	if len(cfg.Pairs) == 0 {
		return nil, fmt.Errorf("%w: no trading pairs configured", ports.ErrConfiguration)
	}
	if cfg.BarInterval <= 0 {
		return nil, fmt.Errorf("%w: bar interval must be positive", ports.ErrConfiguration)
	}

	historyBars := cfg.HistoryBars
	for _, p := range cfg.Pairs {
		if p.Strategy == nil {
			return nil, fmt.Errorf("%w: pair %s has no strategy", ports.ErrConfiguration, p.Symbol)
		}
		if p.Quantity <= 0 {
			return nil, fmt.Errorf("%w: pair %s has non-positive quantity", ports.ErrConfiguration, p.Symbol)
		}
		if need := p.Strategy.RequiredBars(); need > historyBars {
			historyBars = need
		}
	}

	return &Engine{
		logger:      logger,
		store:       store,
		gateway:     gateway,
		ledger:      ledger,
		pairs:       cfg.Pairs,
		historyBars: historyBars,
		barInterval: cfg.BarInterval,
		dryRun:      cfg.DryRun,
		positions:   make(map[string]*domain.Position),
		now:         time.Now,
	}, nil
}

// Position returns the in-memory open position for a pair, if any.
func (e *Engine) Position(symbol, strategyID string) *domain.Position {
	return e.positions[domain.PairKey(symbol, strategyID)]
}

// RunCycle evaluates every configured pair once against the freshest candle
// window and returns one result per pair, in configuration order. The first
// cycle of a run restores open positions from the ledger.
func (e *Engine) RunCycle(ctx context.Context) []CycleResult {
	if !e.restored {
		e.restorePositions(ctx)
		e.restored = true
	}

	results := make([]CycleResult, 0, len(e.pairs))
	for _, pair := range e.pairs {
		results = append(results, e.runPair(ctx, pair))
	}
	return results
}

// restorePositions reloads open trades from the ledger so a restart resumes
// managing positions it opened earlier. Failures are logged per pair; the
// pair then starts flat.
func (e *Engine) restorePositions(ctx context.Context) {
	if e.dryRun {
		return
	}
	for _, pair := range e.pairs {
		strat := pair.Strategy
		trade, err := e.ledger.FindOpen(ctx, pair.Symbol, strat.ID())
		if err != nil {
			e.logger.Error(ctx, err, "Failed to restore open position", map[string]interface{}{
				"symbol": pair.Symbol, "strategy": strat.ID(),
			})
			continue
		}
		if trade == nil {
			continue
		}
		pos := &domain.Position{
			ID:         trade.ID,
			Symbol:     trade.Symbol,
			StrategyID: trade.StrategyID,
			EntryPrice: trade.BuyPrice,
			Quantity:   trade.Quantity,
			EntryTime:  trade.BuyTime,
			StopLoss:   strat.StopLossPrice(trade.BuyPrice),
			TakeProfit: strat.TakeProfitPrice(trade.BuyPrice),
		}
		e.positions[pos.Key()] = pos
		e.logger.Info(ctx, "Restored open position from ledger", map[string]interface{}{
			"symbol": pos.Symbol, "strategy": pos.StrategyID, "entry": pos.EntryPrice,
		})
	}
}

func (e *Engine) runPair(ctx context.Context, pair Pair) CycleResult {
	strat := pair.Strategy
	res := CycleResult{Symbol: pair.Symbol, StrategyID: strat.ID(), Action: ActionNone}

	window, err := e.store.GetWindow(ctx, pair.Symbol, e.now(), e.historyBars)
	if err != nil {
		res.Action = ActionSkip
		res.Err = err
		if errors.Is(err, ports.ErrDataUnavailable) {
			res.Reason = "candle data unavailable"
			e.logger.Warn(ctx, "Skipping pair, candle data unavailable", map[string]interface{}{
				"symbol": pair.Symbol, "strategy": strat.ID(),
			})
		} else {
			e.logger.Error(ctx, err, "Skipping pair, candle window fetch failed", map[string]interface{}{
				"symbol": pair.Symbol, "strategy": strat.ID(),
			})
		}
		return res
	}

	key := domain.PairKey(pair.Symbol, strat.ID())
	if pos, held := e.positions[key]; held {
		return e.evaluateSell(ctx, pair, pos, window, res)
	}
	return e.evaluateBuy(ctx, pair, window, res)
}

func (e *Engine) evaluateBuy(ctx context.Context, pair Pair, window []*domain.Candle, res CycleResult) CycleResult {
	strat := pair.Strategy

	if lockout, ok := strat.(ports.LossLockout); ok && lockout.LossLookbackBars() > 0 && !e.dryRun {
		locked, err := e.ledger.RecentLoss(ctx, pair.Symbol, strat.ID(), lockout.LossLookbackBars(), e.now())
		if err != nil {
			// A ledger hiccup must not block trading; proceed without the gate.
			e.logger.Error(ctx, err, "Loss lockout check failed, proceeding", map[string]interface{}{
				"symbol": pair.Symbol, "strategy": strat.ID(),
			})
		} else if locked {
			res.Reason = "loss lockout active"
			return res
		}
	}

	if !strat.CheckBuySignal(ctx, window) {
		return res
	}

	lastClose := window[len(window)-1].Close
	fillPrice := lastClose
	if !e.dryRun {
		fill, err := e.gateway.MarketBuy(ctx, pair.Symbol, pair.Quantity)
		if err != nil {
			res.Err = err
			res.Reason = "buy order failed"
			e.logger.Error(ctx, err, "Market buy failed, staying flat", map[string]interface{}{
				"symbol": pair.Symbol, "strategy": strat.ID(), "quantity": pair.Quantity,
			})
			return res
		}
		if fill > 0 {
			fillPrice = fill
		} else {
			e.logger.Warn(ctx, "Exchange reported no fill price, using last close", map[string]interface{}{
				"symbol": pair.Symbol, "close": lastClose,
			})
		}
	}

	now := e.now()
	pos := &domain.Position{
		Symbol:     pair.Symbol,
		StrategyID: strat.ID(),
		EntryPrice: fillPrice,
		Quantity:   pair.Quantity,
		EntryTime:  now,
		StopLoss:   strat.StopLossPrice(fillPrice),
		TakeProfit: strat.TakeProfitPrice(fillPrice),
	}

	if !e.dryRun {
		id, err := e.ledger.RecordOpen(ctx, &domain.Trade{
			Symbol:     pair.Symbol,
			StrategyID: strat.ID(),
			BuyPrice:   fillPrice,
			BuyTime:    now,
			Quantity:   pair.Quantity,
			Status:     domain.StatusOpen,
		})
		if err != nil {
			// The asset is already bought; keep managing the position in memory
			// and surface the persistence failure.
			res.Err = err
			e.logger.Error(ctx, err, "Failed to record open trade, keeping position in memory", map[string]interface{}{
				"symbol": pair.Symbol, "strategy": strat.ID(),
			})
		} else {
			pos.ID = id
		}
	}

	e.positions[pos.Key()] = pos
	res.Action = ActionBuy
	res.Price = fillPrice
	res.Reason = "buy signal"
	e.logger.Info(ctx, "Entered position", map[string]interface{}{
		"symbol":      pair.Symbol,
		"strategy":    strat.ID(),
		"entry":       fillPrice,
		"quantity":    pair.Quantity,
		"stop_loss":   pos.StopLoss,
		"take_profit": pos.TakeProfit,
		"dry_run":     e.dryRun,
	})
	return res
}

func (e *Engine) evaluateSell(ctx context.Context, pair Pair, pos *domain.Position, window []*domain.Candle, res CycleResult) CycleResult {
	strat := pair.Strategy

	sig := strat.CheckSellSignal(ctx, window, pos)
	if !sig.Sell {
		// Self-loop: apply the tracking delta and age the position.
		pos.Track = sig.Track
		pos.BarsHeld++
		res.Reason = "holding"
		return res
	}

	sellPrice := window[len(window)-1].Close
	if !e.dryRun {
		fill, err := e.gateway.MarketSell(ctx, pair.Symbol, pos.Quantity)
		if err != nil {
			// Leave the position untouched, tracking state included; the next
			// cycle re-evaluates from the same state.
			res.Err = err
			res.Reason = "sell order failed"
			e.logger.Error(ctx, err, "Market sell failed, keeping position", map[string]interface{}{
				"symbol": pair.Symbol, "strategy": strat.ID(), "reason": string(sig.Reason),
			})
			return res
		}
		if fill > 0 {
			sellPrice = fill
		}
	}

	pnlPct := (sellPrice - pos.EntryPrice) / pos.EntryPrice * 100
	if !e.dryRun && pos.ID != 0 {
		if err := e.ledger.RecordClose(ctx, pos.ID, sellPrice, e.now(), pnlPct, sig.Reason); err != nil {
			res.Err = err
			e.logger.Error(ctx, err, "Failed to record trade close", map[string]interface{}{
				"symbol": pair.Symbol, "strategy": strat.ID(), "trade_id": pos.ID,
			})
		}
	}

	delete(e.positions, pos.Key())
	res.Action = ActionSell
	res.Price = sellPrice
	res.Reason = string(sig.Reason)
	e.logger.Info(ctx, "Closed position", map[string]interface{}{
		"symbol":   pair.Symbol,
		"strategy": strat.ID(),
		"reason":   string(sig.Reason),
		"entry":    pos.EntryPrice,
		"exit":     sellPrice,
		"pnl_pct":  pnlPct,
		"dry_run":  e.dryRun,
	})
	return res
}
