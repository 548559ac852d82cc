package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"candlebot/internal/adapters/logger" // Import the logger package for LogLevel
	"candlebot/internal/ports"
)

// PairConfig is one entry of the pairs file: a strategy instance bound to a
// symbol with its trade size and named options.
type PairConfig struct {
	Symbol      string                 `json:"symbol"`
	Strategy    string                 `json:"strategy"`
	StrategyID  string                 `json:"strategy_id"`
	Enabled     bool                   `json:"enabled"`
	BuyQuantity float64                `json:"buy_quantity"`
	Params      map[string]interface{} `json:"params"`
}

// Config holds all application configuration.
type Config struct {
	// Binance API
	APIKey    string
	SecretKey string
	IsTestnet bool

	// Trading Parameters
	PairsFile   string
	Pairs       []PairConfig // enabled pairs from PairsFile, config order preserved
	HistoryBars int          // candle window length per evaluation
	BarInterval time.Duration
	DryRun      bool

	// Backtest
	ScanWorkers int

	// Database
	DBPath string

	// Logging
	LogLevel logger.LogLevel // Use the LogLevel type from the logger adapter
}

// LoadConfig loads configuration from environment variables (.env file) and
// the pairs file. needsGateway marks callers that place orders; the
// read-only commands (backtest, scan, candle fetch) pass false and run
// without exchange credentials.
func LoadConfig(needsGateway bool) (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Binance API
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", true) // Default to testnet for safety
	cfg.DryRun = getEnvAsBool("DRY_RUN", false)

	// Orders need credentials; dry runs and read-only commands do not.
	if needsGateway && !cfg.DryRun {
		if cfg.APIKey == "" {
			errs = append(errs, "BINANCE_API_KEY must be set")
		}
		if cfg.SecretKey == "" {
			errs = append(errs, "BINANCE_API_SECRET must be set")
		}
	}

	// Trading Parameters
	cfg.PairsFile = getEnv("PAIRS_FILE", "./config/pairs.json")

	cfg.HistoryBars, err = getEnvAsIntRequired("HISTORY_BARS", 50)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid HISTORY_BARS: %v", err))
	} else if cfg.HistoryBars <= 0 {
		errs = append(errs, "HISTORY_BARS must be positive")
	}

	barIntervalStr := getEnv("BAR_INTERVAL", "1m")
	cfg.BarInterval, err = parseBarInterval(barIntervalStr)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid BAR_INTERVAL: %v", err))
	}

	cfg.ScanWorkers, err = getEnvAsIntRequired("SCAN_WORKERS", 4)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid SCAN_WORKERS: %v", err))
	} else if cfg.ScanWorkers <= 0 {
		errs = append(errs, "SCAN_WORKERS must be positive")
	}

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/candlebot.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	// Logging
	logLevelStr := getEnv("LOG_LEVEL", "INFO")
	cfg.LogLevel = logger.ParseLevel(logLevelStr) // Use the parser from the logger package

	// Pairs file
	pairs, err := loadPairs(cfg.PairsFile)
	if err != nil {
		errs = append(errs, err.Error())
	} else {
		cfg.Pairs = pairs
		if len(cfg.Pairs) == 0 {
			errs = append(errs, fmt.Sprintf("no enabled pairs in %s", cfg.PairsFile))
		}
	}

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %s", ports.ErrConfiguration, strings.Join(errs, "; "))
	}

	return cfg, nil
}

// loadPairs reads the pairs file and returns the enabled entries in file
// order. StrategyID defaults to the strategy name when unset.
func loadPairs(path string) ([]PairConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pairs file %s: %w", path, err)
	}

	var all []PairConfig
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("failed to parse pairs file %s: %w", path, err)
	}

	var errs []string
	enabled := make([]PairConfig, 0, len(all))
	seen := make(map[string]bool)
	for i, pc := range all {
		if !pc.Enabled {
			continue
		}
		if pc.Symbol == "" {
			errs = append(errs, fmt.Sprintf("pair %d: symbol must be set", i))
		}
		if pc.Strategy == "" {
			errs = append(errs, fmt.Sprintf("pair %d (%s): strategy must be set", i, pc.Symbol))
		}
		if pc.BuyQuantity <= 0 {
			errs = append(errs, fmt.Sprintf("pair %d (%s): buy_quantity must be positive", i, pc.Symbol))
		}
		if pc.StrategyID == "" {
			pc.StrategyID = pc.Strategy
		}
		key := pc.Symbol + "_" + pc.StrategyID
		if seen[key] {
			errs = append(errs, fmt.Sprintf("duplicate pair %s/%s", pc.Symbol, pc.StrategyID))
		}
		seen[key] = true
		enabled = append(enabled, pc)
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("pairs file %s invalid: %s", path, strings.Join(errs, "; "))
	}
	return enabled, nil
}

// parseBarInterval accepts Binance interval notation ("1m", "5m", "1h", "1d")
// or anything time.ParseDuration understands.
func parseBarInterval(s string) (time.Duration, error) {
	switch s {
	case "1m":
		return time.Minute, nil
	case "3m":
		return 3 * time.Minute, nil
	case "5m":
		return 5 * time.Minute, nil
	case "15m":
		return 15 * time.Minute, nil
	case "30m":
		return 30 * time.Minute, nil
	case "1h":
		return time.Hour, nil
	case "2h":
		return 2 * time.Hour, nil
	case "4h":
		return 4 * time.Hour, nil
	case "1d":
		return 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("unrecognized bar interval %q", s)
	}
	if d <= 0 {
		return 0, fmt.Errorf("bar interval must be positive, got %q", s)
	}
	return d, nil
}

// BinanceInterval renders the bar interval in Binance kline notation.
func (c *Config) BinanceInterval() string {
	switch c.BarInterval {
	case time.Minute:
		return "1m"
	case 3 * time.Minute:
		return "3m"
	case 5 * time.Minute:
		return "5m"
	case 15 * time.Minute:
		return "15m"
	case 30 * time.Minute:
		return "30m"
	case time.Hour:
		return "1h"
	case 2 * time.Hour:
		return "2h"
	case 4 * time.Hour:
		return "4h"
	case 24 * time.Hour:
		return "1d"
	}
	return c.BarInterval.String()
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		// Use default if env var is not set at all
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// Return error if env var is set but invalid
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
