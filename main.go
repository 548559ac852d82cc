package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up

	"candlebot/config"
	"candlebot/internal/adapters/binance"
	"candlebot/internal/adapters/logger"
	"candlebot/internal/adapters/sqlite"
	"candlebot/internal/engine"
	"candlebot/internal/ports"
	"candlebot/internal/strategy/strategies"
)

// buildPairs turns pair configurations into engine pairs via the strategy
// registry.
func buildPairs(registry *strategies.Registry, cfgs []config.PairConfig, appLogger ports.Logger) ([]engine.Pair, error) {
	pairs := make([]engine.Pair, 0, len(cfgs))
	for _, pc := range cfgs {
		strat, err := registry.Construct(pc.Strategy, pc.Symbol, pc.StrategyID, strategies.Params(pc.Params), appLogger)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, engine.Pair{Symbol: pc.Symbol, Strategy: strat, Quantity: pc.BuyQuantity})
	}
	return pairs, nil
}

func main() {
	ctx := context.Background()

	// 1. Load Configuration
	cfg, err := config.LoadConfig(true)
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.NewStdLogger(cfg.LogLevel)
	appLogger.Info(ctx, "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Initialize Repository (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath:      cfg.DBPath,
		Logger:      appLogger,
		BarInterval: cfg.BarInterval,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize database repository")
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(ctx, err, "Error closing database repository")
		}
	}()

	// 4. Initialize Exchange Gateway (Binance Adapter)
	var gateway ports.OrderGateway
	if cfg.DryRun {
		appLogger.Info(ctx, "Dry run enabled, orders will not reach the exchange")
	} else {
		client, err := binance.New(ctx, binance.Config{
			APIKey:     cfg.APIKey,
			SecretKey:  cfg.SecretKey,
			UseTestnet: cfg.IsTestnet,
			Logger:     appLogger,
		})
		if err != nil {
			appLogger.Error(ctx, err, "FATAL: Failed to initialize Binance client")
			log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
		}
		gateway = client
	}

	// 5. Build Strategy Instances
	registry := strategies.NewRegistry()
	pairs, err := buildPairs(registry, cfg.Pairs, appLogger)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to build trading pairs")
		log.Fatalf("FATAL: Failed to build trading pairs: %v", err)
	}
	appLogger.Info(ctx, "Trading pairs initialized", map[string]interface{}{"pairs": len(pairs)})

	// 6. Initialize Engine
	eng, err := engine.New(appLogger, repo, gateway, repo, engine.Config{
		Pairs:       pairs,
		HistoryBars: cfg.HistoryBars,
		BarInterval: cfg.BarInterval,
		DryRun:      cfg.DryRun,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize trading engine")
		log.Fatalf("FATAL: Failed to initialize trading engine: %v", err)
	}

	// 7. Run one evaluation cycle. Scheduling (cron, systemd timer) is left
	// to the operator; one invocation is one cycle over all pairs.
	results := eng.RunCycle(ctx)
	for _, res := range results {
		fields := map[string]interface{}{
			"symbol":   res.Symbol,
			"strategy": res.StrategyID,
			"action":   string(res.Action),
			"reason":   res.Reason,
		}
		if res.Price > 0 {
			fields["price"] = res.Price
		}
		if res.Err != nil {
			appLogger.Error(ctx, res.Err, "Cycle result", fields)
		} else {
			appLogger.Info(ctx, "Cycle result", fields)
		}
	}

	appLogger.Info(ctx, "Cycle finished.")
}
