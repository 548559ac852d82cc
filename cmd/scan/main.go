package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	"candlebot/config"
	"candlebot/internal/adapters/logger"
	"candlebot/internal/adapters/sqlite"
	"candlebot/internal/backtest"
	"candlebot/internal/engine"
	"candlebot/internal/strategy/strategies"
)

// Range scan: repeats the point backtest across a time range and reports
// every buy signal found, with per-strategy totals.
func main() {
	startStr := flag.String("start", "", "range start (RFC3339)")
	endStr := flag.String("end", "", "range end (RFC3339)")
	stepStr := flag.String("step", "", "step between checks (Go duration, default = bar interval)")
	flag.Parse()

	if *startStr == "" || *endStr == "" {
		fmt.Fprintln(os.Stderr, "usage: scan -start <RFC3339> -end <RFC3339> [-step <duration>]")
		os.Exit(2)
	}
	start, err := time.Parse(time.RFC3339, *startStr)
	if err != nil {
		log.Fatalf("FATAL: Invalid -start timestamp: %v", err)
	}
	end, err := time.Parse(time.RFC3339, *endStr)
	if err != nil {
		log.Fatalf("FATAL: Invalid -end timestamp: %v", err)
	}

	cfg, err := config.LoadConfig(false)
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	step := cfg.BarInterval
	if *stepStr != "" {
		step, err = time.ParseDuration(*stepStr)
		if err != nil {
			log.Fatalf("FATAL: Invalid -step duration: %v", err)
		}
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

	report, err := harness.ScanRange(ctx, start, end, step)
	if err != nil {
		log.Fatalf("FATAL: Scan failed: %v", err)
	}

	fmt.Printf("Scanned %d steps from %s to %s (step %s)\n",
		report.StepsChecked, start.Format(time.RFC3339), end.Format(time.RFC3339), step)
	for _, ev := range report.Events {
		fmt.Printf("  %s %-10s %-24s price=%.8g sl=%.8g tp=%.8g\n",
			ev.Timestamp.Format(time.RFC3339), ev.Symbol, ev.StrategyID, ev.Price, ev.StopLoss, ev.TakeProfit)
	}
	fmt.Printf("Signals by strategy:\n")
	for _, id := range sortedKeys(report.CountsByID) {
		fmt.Printf("  %-24s %d\n", id, report.CountsByID[id])
	}
	fmt.Printf("Total: %d signals\n", len(report.Events))
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
