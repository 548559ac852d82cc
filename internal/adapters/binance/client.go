package binance

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"candlebot/internal/domain"
	"candlebot/internal/ports"

	binance "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
)

const (
	baseURLProduction = "https://api.binance.com"
	baseURLTestnet    = "https://testnet.binance.vision"

	klinesPageLimit = 1000
)

// Client implements ports.OrderGateway and ports.CandleFetcher on the Binance
// spot API using the go-binance library.
type Client struct {
	spotClient *binance.Client
	logger     ports.Logger
}

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey     string
	SecretKey  string
	UseTestnet bool
	Logger     ports.Logger
}

// New creates a new Binance spot client adapter and synchronizes its clock
// with the exchange.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		cfg.Logger.Warn(ctx, "APIKey or SecretKey is empty. Client will only work for public endpoints.")
	}

	client := binance.NewClient(cfg.APIKey, cfg.SecretKey)
	if cfg.UseTestnet {
		client.BaseURL = baseURLTestnet
	} else {
		client.BaseURL = baseURLProduction
	}
	cfg.Logger.Info(ctx, "Binance spot client configured", map[string]interface{}{
		"baseURL": client.BaseURL, "testnet": cfg.UseTestnet,
	})

	c := &Client{spotClient: client, logger: cfg.Logger}

	// Signed requests reject clients whose clock drifts outside the recv
	// window, so sync once up front.
	if _, err := client.NewSetServerTimeService().Do(ctx); err != nil {
		return nil, c.handleError(ctx, err, "SetServerTime")
	}
	return c, nil
}

// handleError translates common Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		var mappedErr error
		switch apiErr.Code {
		case -1003: // Too many requests
			mappedErr = ports.ErrRateLimited
		case -1021: // Timestamp outside of the recvWindow
			mappedErr = ports.ErrTimeout
		case -1022: // Invalid signature
			mappedErr = ports.ErrAuthenticationFailed
		case -2014, -2015: // API-key format invalid / key, IP or permissions
			mappedErr = ports.ErrAuthenticationFailed
		case -1013, -1100, -1101, -1102, -1103, -1104, -1105, -1106, -1111, -1121: // Parameter/request format errors
			mappedErr = ports.ErrInvalidRequest
		case -2010: // New order rejected
			mappedErr = ports.ErrOrderPlacementFailed
		case -3005: // Insufficient balance
			mappedErr = ports.ErrInsufficientFunds
		default:
			mappedErr = ports.ErrUnknown
		}
		finalErr := fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
		c.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		return finalErr
	}

	var finalErr error
	if errors.Is(err, context.DeadlineExceeded) {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	} else if errors.Is(err, context.Canceled) {
		finalErr = fmt.Errorf("%s operation canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	} else if strings.Contains(err.Error(), "use of closed network connection") ||
		strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "connection reset by peer") {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
	} else {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnknown, err)
	}

	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

// MarketBuy places a spot market buy order and returns the average fill price.
func (c *Client) MarketBuy(ctx context.Context, symbol string, quantity float64) (float64, error) {
	return c.marketOrder(ctx, symbol, quantity, binance.SideTypeBuy)
}

// MarketSell places a spot market sell order and returns the average fill price.
func (c *Client) MarketSell(ctx context.Context, symbol string, quantity float64) (float64, error) {
	return c.marketOrder(ctx, symbol, quantity, binance.SideTypeSell)
}

func (c *Client) marketOrder(ctx context.Context, symbol string, quantity float64, side binance.SideType) (float64, error) {
	op := fmt.Sprintf("MarketOrder(%s)", side)
	if quantity <= 0 {
		return 0, fmt.Errorf("%w: quantity must be positive, got %v", ports.ErrInvalidRequest, quantity)
	}

	order, err := c.spotClient.NewCreateOrderService().
		Symbol(symbol).
		Side(side).
		Type(binance.OrderTypeMarket).
		Quantity(strconv.FormatFloat(quantity, 'f', -1, 64)).
		Do(ctx)
	if err != nil {
		return 0, c.handleError(ctx, err, op)
	}

	fill, err := averageFillPrice(order)
	if err != nil {
		// The order went through; report a zero fill price and let the caller
		// fall back to the last close.
		c.logger.Warn(ctx, "Order filled but fill price is unreported", map[string]interface{}{
			"operation": op, "symbol": symbol, "orderID": order.OrderID, "error": err.Error(),
		})
		return 0, nil
	}

	c.logger.Info(ctx, "Market order filled", map[string]interface{}{
		"symbol": symbol, "side": string(side), "quantity": quantity, "avgPrice": fill, "orderID": order.OrderID,
	})
	return fill, nil
}

// averageFillPrice derives the volume-weighted fill price from the order
// fills, falling back to cumulative quote / executed quantity.
func averageFillPrice(order *binance.CreateOrderResponse) (float64, error) {
	var totalQty, totalQuote float64
	for _, f := range order.Fills {
		price, err := strconv.ParseFloat(f.Price, 64)
		if err != nil {
			return 0, fmt.Errorf("could not parse fill price %q: %w", f.Price, err)
		}
		qty, err := strconv.ParseFloat(f.Quantity, 64)
		if err != nil {
			return 0, fmt.Errorf("could not parse fill quantity %q: %w", f.Quantity, err)
		}
		totalQty += qty
		totalQuote += price * qty
	}
	if totalQty > 0 {
		return totalQuote / totalQty, nil
	}

	executed, err := strconv.ParseFloat(order.ExecutedQuantity, 64)
	if err != nil || executed == 0 {
		return 0, fmt.Errorf("order %d reported no fills and no executed quantity", order.OrderID)
	}
	quote, err := strconv.ParseFloat(order.CummulativeQuoteQuantity, 64)
	if err != nil {
		return 0, fmt.Errorf("could not parse cumulative quote quantity %q: %w", order.CummulativeQuoteQuantity, err)
	}
	return quote / executed, nil
}

// GetCandlesRange retrieves closed klines for [start, end), paging through
// the API limit.
func (c *Client) GetCandlesRange(ctx context.Context, symbol, interval string, start, end time.Time) ([]*domain.Candle, error) {
	op := "GetCandlesRange"
	if !end.After(start) {
		return nil, fmt.Errorf("%w: end %s is not after start %s", ports.ErrInvalidTimeRange, end.Format(time.RFC3339), start.Format(time.RFC3339))
	}

	var candles []*domain.Candle
	cursor := start
	for cursor.Before(end) {
		klines, err := c.spotClient.NewKlinesService().
			Symbol(symbol).
			Interval(interval).
			StartTime(cursor.UnixMilli()).
			EndTime(end.UnixMilli()).
			Limit(klinesPageLimit).
			Do(ctx)
		if err != nil {
			return nil, c.handleError(ctx, err, op)
		}
		if len(klines) == 0 {
			break
		}

		for _, k := range klines {
			candle, err := parseKline(symbol, k)
			if err != nil {
				return nil, c.handleError(ctx, err, op)
			}
			candles = append(candles, candle)
		}

		last := time.UnixMilli(klines[len(klines)-1].OpenTime)
		next := last.Add(time.Millisecond)
		if !next.After(cursor) {
			break
		}
		cursor = next
	}

	c.logger.Debug(ctx, "Fetched candle range", map[string]interface{}{
		"symbol": symbol, "interval": interval, "count": len(candles),
	})
	return candles, nil
}

func parseKline(symbol string, k *binance.Kline) (*domain.Candle, error) {
	open, err := strconv.ParseFloat(k.Open, 64)
	if err != nil {
		return nil, fmt.Errorf("could not parse kline open %q: %w", k.Open, err)
	}
	high, err := strconv.ParseFloat(k.High, 64)
	if err != nil {
		return nil, fmt.Errorf("could not parse kline high %q: %w", k.High, err)
	}
	low, err := strconv.ParseFloat(k.Low, 64)
	if err != nil {
		return nil, fmt.Errorf("could not parse kline low %q: %w", k.Low, err)
	}
	closePrice, err := strconv.ParseFloat(k.Close, 64)
	if err != nil {
		return nil, fmt.Errorf("could not parse kline close %q: %w", k.Close, err)
	}
	volume, err := strconv.ParseFloat(k.Volume, 64)
	if err != nil {
		return nil, fmt.Errorf("could not parse kline volume %q: %w", k.Volume, err)
	}

	return &domain.Candle{
		OpenTime: time.UnixMilli(k.OpenTime),
		Symbol:   symbol,
		Open:     open,
		High:     high,
		Low:      low,
		Close:    closePrice,
		Volume:   volume,
	}, nil
}
