package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"candlebot/config"
	"candlebot/internal/adapters/binance"
	"candlebot/internal/adapters/logger"
	"candlebot/internal/adapters/sqlite"
)

// Downloads historical klines from Binance into the local candle store, so
// backtests and scans run against the same data the live engine would see.
func main() {
	symbol := flag.String("symbol", "", "trading symbol to fetch (e.g. XRPUSDT)")
	startStr := flag.String("start", "", "range start (RFC3339)")
	endStr := flag.String("end", "", "range end (RFC3339, default now)")
	flag.Parse()

	if *symbol == "" || *startStr == "" {
		fmt.Fprintln(os.Stderr, "usage: fetch_candles -symbol <SYMBOL> -start <RFC3339> [-end <RFC3339>]")
		os.Exit(2)
	}
	start, err := time.Parse(time.RFC3339, *startStr)
	if err != nil {
		log.Fatalf("FATAL: Invalid -start timestamp: %v", err)
	}
	end := time.Now()
	if *endStr != "" {
		end, err = time.Parse(time.RFC3339, *endStr)
		if err != nil {
			log.Fatalf("FATAL: Invalid -end timestamp: %v", err)
		}
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

	// Klines are public data; no API keys needed.
	client, err := binance.New(ctx, binance.Config{
		APIKey:     cfg.APIKey,
		SecretKey:  cfg.SecretKey,
		UseTestnet: cfg.IsTestnet,
		Logger:     appLogger,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}

	interval := cfg.BinanceInterval()
	appLogger.Info(ctx, "Fetching candles", map[string]interface{}{
		"symbol": *symbol, "interval": interval,
		"start": start.Format(time.RFC3339), "end": end.Format(time.RFC3339),
	})

	candles, err := client.GetCandlesRange(ctx, *symbol, interval, start, end)
	if err != nil {
		log.Fatalf("FATAL: Failed to fetch candles: %v", err)
	}
	if len(candles) == 0 {
		log.Fatalf("FATAL: No candles returned for %s in the given range", *symbol)
	}

	if err := repo.SaveCandles(ctx, candles); err != nil {
		log.Fatalf("FATAL: Failed to save candles: %v", err)
	}

	fmt.Printf("Saved %d candles for %s (%s) from %s to %s\n",
		len(candles), *symbol, interval,
		candles[0].OpenTime.Format(time.RFC3339),
		candles[len(candles)-1].OpenTime.Format(time.RFC3339))
}
