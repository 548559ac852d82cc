package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"candlebot/internal/domain"
	"candlebot/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Repository implements the ports.TradeLedger and ports.CandleStore
// interfaces using SQLite.
type Repository struct {
	db          *sql.DB
	logger      ports.Logger
	barInterval time.Duration
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath      string
	Logger      ports.Logger
	BarInterval time.Duration // duration of one bar; converts lookback bars to a time window
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	if cfg.BarInterval <= 0 {
		return nil, fmt.Errorf("bar interval is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/candlebot.db" // Default path
	}

	// Create data directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Open database connection
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000") // WAL mode for better concurrency
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, fmt.Errorf("%w: %v", ports.ErrDBConnection, err)
	}

	// SQLite handles concurrency internally; the Go driver benefits from a
	// single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cfg.Logger.Info(context.Background(), "SQLite database connection established", map[string]interface{}{"path": dbPath})

	repo := &Repository{db: db, logger: cfg.Logger, barInterval: cfg.BarInterval}

	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	return repo, nil
}

// initializeSchema creates tables if they don't exist.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS trades (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		strategy_name TEXT NOT NULL,
		buy_price REAL NOT NULL,
		buy_time TIMESTAMP NOT NULL,
		quantity REAL NOT NULL,
		sell_price REAL DEFAULT NULL,
		sell_time TIMESTAMP DEFAULT NULL,
		profit_loss_pct REAL DEFAULT NULL,
		close_reason TEXT DEFAULT NULL,
		position_status TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS candles (
		symbol TEXT NOT NULL,
		open_time TIMESTAMP NOT NULL,
		open REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		close REAL NOT NULL,
		volume REAL NOT NULL,
		PRIMARY KEY (symbol, open_time)
	);

	CREATE INDEX IF NOT EXISTS idx_trades_pair_status ON trades (symbol, strategy_name, position_status);
	CREATE INDEX IF NOT EXISTS idx_trades_pair_sell_time ON trades (symbol, strategy_name, sell_time);
	`
	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// --- TradeLedger Implementation ---

// RecordOpen saves a new OPEN trade and returns its assigned ID.
func (r *Repository) RecordOpen(ctx context.Context, trade *domain.Trade) (int64, error) {
	const query = `
	INSERT INTO trades (symbol, strategy_name, buy_price, buy_time, quantity, position_status)
	VALUES (?, ?, ?, ?, ?, ?)`

	result, err := r.db.ExecContext(ctx, query,
		trade.Symbol, trade.StrategyID, trade.BuyPrice, trade.BuyTime, trade.Quantity, domain.StatusOpen)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to insert trade for %s/%s: %v", ports.ErrQueryFailed, trade.Symbol, trade.StrategyID, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%w: failed to get last insert ID for trade %s: %v", ports.ErrQueryFailed, trade.Symbol, err)
	}
	trade.ID = id
	trade.Status = domain.StatusOpen
	r.logger.Debug(ctx, "Trade opened", map[string]interface{}{"tradeID": id, "symbol": trade.Symbol, "strategy": trade.StrategyID})
	return id, nil
}

// RecordClose marks a trade CLOSED with its exit price, pnl and reason.
func (r *Repository) RecordClose(ctx context.Context, id int64, sellPrice float64, sellTime time.Time, pnlPct float64, reason domain.CloseReason) error {
	const query = `
	UPDATE trades
	SET sell_price = ?, sell_time = ?, profit_loss_pct = ?, close_reason = ?, position_status = ?
	WHERE id = ? AND position_status = ?`

	result, err := r.db.ExecContext(ctx, query,
		sellPrice, sellTime, pnlPct, string(reason), domain.StatusClosed, id, domain.StatusOpen)
	if err != nil {
		return fmt.Errorf("%w: failed to close trade ID %d: %v", ports.ErrUpdateFailed, id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: failed to get rows affected closing trade ID %d: %v", ports.ErrUpdateFailed, id, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("open trade ID %d not found for close: %w", id, ports.ErrNotFound)
	}
	r.logger.Debug(ctx, "Trade closed", map[string]interface{}{"tradeID": id, "reason": string(reason), "pnl_pct": pnlPct})
	return nil
}

// FindOpen retrieves the open trade for a (symbol, strategy) pair, if any.
func (r *Repository) FindOpen(ctx context.Context, symbol, strategyID string) (*domain.Trade, error) {
	const query = `
	SELECT id, symbol, strategy_name, buy_price, buy_time, quantity,
	       COALESCE(sell_price, 0), sell_time, COALESCE(profit_loss_pct, 0),
	       COALESCE(close_reason, ''), position_status
	FROM trades
	WHERE symbol = ? AND strategy_name = ? AND position_status = ?
	ORDER BY buy_time DESC
	LIMIT 1`

	row := r.db.QueryRowContext(ctx, query, symbol, strategyID, domain.StatusOpen)
	trade, err := scanTrade(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not an error, just not found
		}
		return nil, fmt.Errorf("%w: failed to query open trade for %s/%s: %v", ports.ErrQueryFailed, symbol, strategyID, err)
	}
	return trade, nil
}

// RecentLoss reports whether the pair's most recent closed trade lost money
// and its sell time falls within the last lookbackBars bars before now.
func (r *Repository) RecentLoss(ctx context.Context, symbol, strategyID string, lookbackBars int, now time.Time) (bool, error) {
	const query = `
	SELECT COALESCE(profit_loss_pct, 0), sell_time
	FROM trades
	WHERE symbol = ? AND strategy_name = ? AND position_status = ?
	ORDER BY sell_time DESC
	LIMIT 1`

	var (
		pnlPct   float64
		sellTime time.Time
	)
	err := r.db.QueryRowContext(ctx, query, symbol, strategyID, domain.StatusClosed).Scan(&pnlPct, &sellTime)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("%w: failed to query recent loss for %s/%s: %v", ports.ErrQueryFailed, symbol, strategyID, err)
	}

	if pnlPct >= 0 {
		return false, nil
	}
	cutoff := now.Add(-time.Duration(lookbackBars) * r.barInterval)
	return !sellTime.Before(cutoff), nil
}

// --- CandleStore Implementation ---

// GetWindow returns count candles for the symbol whose open time is at or
// before end, ordered oldest to newest. It fails with ErrDataUnavailable when
// the store holds fewer than count such candles.
func (r *Repository) GetWindow(ctx context.Context, symbol string, end time.Time, count int) ([]*domain.Candle, error) {
	const query = `
	SELECT symbol, open_time, open, high, low, close, volume
	FROM candles
	WHERE symbol = ? AND open_time <= ?
	ORDER BY open_time DESC
	LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, symbol, end, count)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query candles for %s: %v", ports.ErrQueryFailed, symbol, err)
	}
	defer rows.Close()

	candles := make([]*domain.Candle, 0, count)
	for rows.Next() {
		c := &domain.Candle{}
		if err := rows.Scan(&c.Symbol, &c.OpenTime, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("%w: failed to scan candle for %s: %v", ports.ErrQueryFailed, symbol, err)
		}
		candles = append(candles, c)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: error iterating candle rows for %s: %v", ports.ErrQueryFailed, symbol, err)
	}

	if len(candles) < count {
		return nil, fmt.Errorf("%w: %s has %d candles at or before %s, need %d",
			ports.ErrDataUnavailable, symbol, len(candles), end.Format(time.RFC3339), count)
	}

	// Query returns newest first; callers expect oldest to newest.
	for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
		candles[i], candles[j] = candles[j], candles[i]
	}
	return candles, nil
}

// SaveCandles upserts candles, keyed by (symbol, open time).
func (r *Repository) SaveCandles(ctx context.Context, candles []*domain.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to begin candle transaction: %v", ports.ErrQueryFailed, err)
	}
	defer tx.Rollback()

	const query = `
	INSERT INTO candles (symbol, open_time, open, high, low, close, volume)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(symbol, open_time) DO UPDATE SET
		open = excluded.open, high = excluded.high, low = excluded.low,
		close = excluded.close, volume = excluded.volume`

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("%w: failed to prepare candle upsert: %v", ports.ErrQueryFailed, err)
	}
	defer stmt.Close()

	for _, c := range candles {
		if _, err := stmt.ExecContext(ctx, c.Symbol, c.OpenTime, c.Open, c.High, c.Low, c.Close, c.Volume); err != nil {
			return fmt.Errorf("%w: failed to upsert candle %s@%s: %v", ports.ErrQueryFailed, c.Symbol, c.OpenTime.Format(time.RFC3339), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit candle transaction: %v", ports.ErrQueryFailed, err)
	}
	r.logger.Debug(ctx, "Candles saved", map[string]interface{}{"count": len(candles), "symbol": candles[0].Symbol})
	return nil
}

// scanner abstracts over sql.Row and sql.Rows for shared scan helpers.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTrade(s scanner) (*domain.Trade, error) {
	t := &domain.Trade{}
	var (
		sellTime sql.NullTime
		reason   string
		status   string
	)
	err := s.Scan(&t.ID, &t.Symbol, &t.StrategyID, &t.BuyPrice, &t.BuyTime, &t.Quantity,
		&t.SellPrice, &sellTime, &t.ProfitLossPct, &reason, &status)
	if err != nil {
		return nil, err
	}
	if sellTime.Valid {
		t.SellTime = sellTime.Time
	}
	t.Reason = domain.CloseReason(reason)
	t.Status = domain.TradeStatus(status)
	return t, nil
}
