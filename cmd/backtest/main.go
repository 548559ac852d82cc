package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"candlebot/config"
	"candlebot/internal/adapters/logger"
	"candlebot/internal/adapters/sqlite"
	"candlebot/internal/backtest"
	"candlebot/internal/engine"
	"candlebot/internal/strategy/strategies"
)

// Point backtest: evaluates every configured pair's buy signal at one
// historical timestamp against the local candle store.
func main() {
	atStr := flag.String("at", "", "timestamp to evaluate at (RFC3339, e.g. 2025-06-01T12:00:00Z)")
	flag.Parse()

	if *atStr == "" {
		fmt.Fprintln(os.Stderr, "usage: backtest -at <RFC3339 timestamp>")
		os.Exit(2)
	}
	at, err := time.Parse(time.RFC3339, *atStr)
	if err != nil {
		log.Fatalf("FATAL: Invalid -at timestamp: %v", err)
	}

	cfg, err := config.LoadConfig(false)
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}
	appLogger := logger.NewStdLogger(cfg.LogLevel)
	ctx := context.Background()

	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath:      cfg.DBPath,
		Logger:      appLogger,
		BarInterval: cfg.BarInterval,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err)
	}
	defer repo.Close()

	registry := strategies.NewRegistry()
	pairs := make([]engine.Pair, 0, len(cfg.Pairs))
	for _, pc := range cfg.Pairs {
		strat, err := registry.Construct(pc.Strategy, pc.Symbol, pc.StrategyID, strategies.Params(pc.Params), appLogger)
		if err != nil {
			log.Fatalf("FATAL: Failed to build strategy for %s: %v", pc.Symbol, err)
		}
		pairs = append(pairs, engine.Pair{Symbol: pc.Symbol, Strategy: strat, Quantity: pc.BuyQuantity})
	}

	harness, err := backtest.New(appLogger, repo, pairs, cfg.HistoryBars, cfg.ScanWorkers)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize backtest harness: %v", err)
	}

	results, err := harness.At(ctx, at)
	if err != nil {
		log.Fatalf("FATAL: Backtest failed: %v", err)
	}

	fmt.Printf("Backtest at %s\n", at.Format(time.RFC3339))
	for _, res := range results {
		if res.Err != nil {
			fmt.Printf("  %-10s %-24s error: %v\n", res.Symbol, res.StrategyID, res.Err)
			continue
		}
		if res.Signal {
			fmt.Printf("  %-10s %-24s BUY  price=%.8g sl=%.8g tp=%.8g\n",
				res.Symbol, res.StrategyID, res.Price, res.StopLoss, res.TakeProfit)
		} else {
			fmt.Printf("  %-10s %-24s no signal (price=%.8g)\n", res.Symbol, res.StrategyID, res.Price)
		}
	}
}
