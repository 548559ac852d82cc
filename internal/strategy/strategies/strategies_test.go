package strategies

import (
	"context"
	"testing"
	"time"

	"candlebot/internal/domain"
	"candlebot/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct {
	debugMsgs []string
	infoMsgs  []string
	errorMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.debugMsgs = append(m.debugMsgs, msg)
}

func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.infoMsgs = append(m.infoMsgs, msg)
}

func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {}

func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.errorMsgs = append(m.errorMsgs, msg)
}

// candlesFromMids builds green doji-like candles whose body mid equals the
// given value (open == close == mid).
func candlesFromMids(mids ...float64) []*domain.Candle {
	candles := make([]*domain.Candle, len(mids))
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i, mid := range mids {
		candles[i] = &domain.Candle{
			OpenTime: base.Add(time.Duration(i) * time.Minute),
			Symbol:   "XRPUSDT",
			Open:     mid,
			High:     mid,
			Low:      mid,
			Close:    mid,
		}
	}
	return candles
}

// candle builds a single OHLC bar; high and low are stretched to cover the body.
func candle(open, close float64) *domain.Candle {
	high, low := open, close
	if close > open {
		high, low = close, open
	}
	return &domain.Candle{
		OpenTime: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		Symbol:   "XRPUSDT",
		Open:     open,
		High:     high,
		Low:      low,
		Close:    close,
	}
}

func withHigh(c *domain.Candle, high float64) *domain.Candle {
	c.High = high
	return c
}

func newFalling(t *testing.T, params Params) *FallingCandlesStrategy {
	t.Helper()
	s, err := NewFallingCandles("XRPUSDT", "falling_1", params, &mockLogger{})
	require.NoError(t, err)
	return s
}

func newRedSeq(t *testing.T, params Params) *RedCandlesSequenceStrategy {
	t.Helper()
	s, err := NewRedCandlesSequence("XRPUSDT", "redseq_1", params, &mockLogger{})
	require.NoError(t, err)
	return s
}

func TestNewFallingCandlesValidation(t *testing.T) {
	tests := []struct {
		name    string
		params  Params
		wantErr bool
	}{
		{name: "defaults", params: Params{}, wantErr: false},
		{name: "explicit values", params: Params{"num_falling_candles": 3, "stop_loss_pct": 2.0}, wantErr: false},
		{name: "json numbers", params: Params{"num_falling_candles": float64(3)}, wantErr: false},
		{name: "zero falling count", params: Params{"num_falling_candles": 0}, wantErr: true},
		{name: "negative stop loss", params: Params{"stop_loss_pct": -1.0}, wantErr: true},
		{name: "fractional int", params: Params{"num_falling_candles": 2.5}, wantErr: true},
		{name: "wrong type", params: Params{"stop_loss_pct": "one"}, wantErr: true},
		{name: "zero red candles to sell", params: Params{"red_candles_to_sell": 0}, wantErr: true},
		{name: "negative lookback", params: Params{"loss_lookback_bars": -5}, wantErr: true},
		{name: "break tolerance off", params: Params{"allow_one_break": false}, wantErr: false},
		{name: "break tolerance wrong type", params: Params{"allow_one_break": "yes"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewFallingCandles("XRPUSDT", "f1", tt.params, &mockLogger{})
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, s)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, s)
			}
		})
	}
}

func TestFallingCandlesBuySignal(t *testing.T) {
	ctx := context.Background()
	s := newFalling(t, Params{"num_falling_candles": 3})

	tests := []struct {
		name   string
		window []*domain.Candle
		want   bool
	}{
		{
			name:   "short window yields no signal",
			window: candlesFromMids(100, 99, 98),
			want:   false,
		},
		{
			name:   "clean falling run",
			window: candlesFromMids(101, 100, 99, 98, 97),
			want:   true,
		},
		{
			name:   "one break in the run is tolerated",
			window: candlesFromMids(100, 99, 99.5, 98, 97, 96),
			want:   true,
		},
		{
			name:   "two breaks reject the signal",
			window: candlesFromMids(100, 101, 99, 100, 98),
			want:   false,
		},
		{
			name:   "flat mids are not falling",
			window: candlesFromMids(100, 100, 100, 100, 100),
			want:   false,
		},
		{
			name:   "rising run",
			window: candlesFromMids(96, 97, 98, 99, 100),
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.CheckBuySignal(ctx, tt.window))
		})
	}
}

func TestFallingCandlesRequiredBars(t *testing.T) {
	s := newFalling(t, Params{"num_falling_candles": 4})
	assert.Equal(t, 6, s.RequiredBars())
	assert.Equal(t, 60, s.LossLookbackBars())

	strict := newFalling(t, Params{"num_falling_candles": 4, "allow_one_break": false})
	assert.Equal(t, 5, strict.RequiredBars(), "no extra bar without the tolerated break")
}

func TestFallingCandlesStrictRun(t *testing.T) {
	ctx := context.Background()
	tolerant := newFalling(t, Params{"num_falling_candles": 3})
	strict := newFalling(t, Params{"num_falling_candles": 3, "allow_one_break": false})

	// Break inside the trailing run: forgiven by default, fatal in strict mode.
	broken := candlesFromMids(100, 99, 99.5, 98, 97)
	assert.True(t, tolerant.CheckBuySignal(ctx, broken))
	assert.False(t, strict.CheckBuySignal(ctx, broken))

	clean := candlesFromMids(100, 99, 98, 97)
	assert.True(t, strict.CheckBuySignal(ctx, clean))
}

func TestRedCandlesSequenceBuySignal(t *testing.T) {
	ctx := context.Background()
	s := newRedSeq(t, Params{"bars_count": 3, "total_drop_pct": 1.0})

	tests := []struct {
		name   string
		window []*domain.Candle
		want   bool
	}{
		{
			name:   "short window yields no signal",
			window: candlesFromMids(100, 99, 98, 97),
			want:   false,
		},
		{
			name: "falling run with magnitude and reversal",
			// run 100 -> 97 is a 3% drop, newest bar turns up
			window: candlesFromMids(100, 99, 98.5, 97, 98),
			want:   true,
		},
		{
			name:   "run too shallow for the magnitude gate",
			window: candlesFromMids(100, 99.9, 99.8, 99.7, 99.8),
			want:   false,
		},
		{
			name:   "no reversal on the newest bar",
			window: candlesFromMids(100, 99, 98, 97, 96.5),
			want:   false,
		},
		{
			name:   "flat newest bar is not a reversal",
			window: candlesFromMids(100, 99, 98, 97, 97),
			want:   false,
		},
		{
			name:   "break in the run rejects strictly",
			window: candlesFromMids(100, 99, 99.5, 97, 98),
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.CheckBuySignal(ctx, tt.window))
		})
	}
}

func TestRedCandlesDeepFallingRunWithReversal(t *testing.T) {
	ctx := context.Background()
	s := newRedSeq(t, Params{"bars_count": 5, "total_drop_pct": 5.0})

	// Five strictly falling transitions worth a 20% drop, then a reversal bar.
	window := candlesFromMids(100, 96, 92, 88, 84, 80, 85)
	assert.True(t, s.CheckBuySignal(ctx, window))

	// Without the reversal bar the run alone is not a signal.
	assert.False(t, s.CheckBuySignal(ctx, candlesFromMids(104, 100, 96, 92, 88, 84, 80)))
}

func TestStopLossFiresExactlyAtTheLevel(t *testing.T) {
	ctx := context.Background()
	s := newFalling(t, Params{"stop_loss_pct": 12.0})

	pos := &domain.Position{EntryPrice: 900}
	assert.InDelta(t, 792.0, s.StopLossPrice(900), 1e-9)

	sig := s.CheckSellSignal(ctx, []*domain.Candle{candle(800, 792)}, pos)
	require.True(t, sig.Sell)
	assert.Equal(t, domain.CloseReasonStopLoss, sig.Reason)

	// One tick above the level it holds.
	sig = s.CheckSellSignal(ctx, []*domain.Candle{candle(800, 792.01)}, &domain.Position{EntryPrice: 900})
	assert.False(t, sig.Sell)
}

func TestLongAdverseStreakWithMidwayReset(t *testing.T) {
	ctx := context.Background()
	s := newFalling(t, Params{"stop_loss_pct": 20.0, "take_profit_pct": 4.0, "red_candles_to_sell": 6})

	pos := &domain.Position{EntryPrice: 900}

	// Price reaches 936: armed.
	sig := s.CheckSellSignal(ctx, []*domain.Candle{candle(930, 936)}, pos)
	require.True(t, sig.Track.TPArmed)
	pos.Track = sig.Track

	redBar := func() {
		t.Helper()
		sig = s.CheckSellSignal(ctx, []*domain.Candle{candle(936, 930)}, pos)
		pos.Track = sig.Track
	}

	// Three reds, then a green: the streak starts over.
	for i := 0; i < 3; i++ {
		redBar()
		require.False(t, sig.Sell)
	}
	assert.Equal(t, 3, pos.Track.AdverseStreak)

	sig = s.CheckSellSignal(ctx, []*domain.Candle{candle(930, 936)}, pos)
	pos.Track = sig.Track
	assert.Equal(t, 0, pos.Track.AdverseStreak)

	// Six consecutive reds complete the exit.
	for i := 0; i < 5; i++ {
		redBar()
		require.False(t, sig.Sell, "red bar %d", i+1)
	}
	redBar()
	require.True(t, sig.Sell)
	assert.Equal(t, domain.CloseReasonTakeProfit, sig.Reason)
}

func TestStopLossDominatesOtherExits(t *testing.T) {
	ctx := context.Background()
	s := newFalling(t, Params{"stop_loss_pct": 10.0, "take_profit_pct": 5.0, "red_candles_to_sell": 1})

	pos := &domain.Position{
		Symbol:     "XRPUSDT",
		StrategyID: "falling_1",
		EntryPrice: 100,
		Track:      domain.Tracking{TPArmed: true, AdverseStreak: 1},
	}
	// Red bar closing through the stop level while the streak condition is
	// also satisfied: stop-loss wins.
	window := []*domain.Candle{candle(90, 85)}

	sig := s.CheckSellSignal(ctx, window, pos)
	require.True(t, sig.Sell)
	assert.Equal(t, domain.CloseReasonStopLoss, sig.Reason)
}

func TestTakeProfitArmingIsSticky(t *testing.T) {
	ctx := context.Background()
	s := newFalling(t, Params{"stop_loss_pct": 10.0, "take_profit_pct": 5.0, "red_candles_to_sell": 2})

	pos := &domain.Position{EntryPrice: 100, Symbol: "XRPUSDT", StrategyID: "falling_1"}

	// Bar high touches the trigger (105) but closes below it: arms anyway.
	sig := s.CheckSellSignal(ctx, []*domain.Candle{withHigh(candle(103, 104), 106)}, pos)
	assert.False(t, sig.Sell)
	assert.True(t, sig.Track.TPArmed)
	assert.Equal(t, 0, sig.Track.AdverseStreak)
	pos.Track = sig.Track

	// First red bar while armed.
	sig = s.CheckSellSignal(ctx, []*domain.Candle{candle(104, 103)}, pos)
	assert.False(t, sig.Sell)
	assert.True(t, sig.Track.TPArmed, "arming must not unwind when price drifts back")
	assert.Equal(t, 1, sig.Track.AdverseStreak)
	pos.Track = sig.Track

	// Second consecutive red bar completes the streak.
	sig = s.CheckSellSignal(ctx, []*domain.Candle{candle(103, 102)}, pos)
	require.True(t, sig.Sell)
	assert.Equal(t, domain.CloseReasonTakeProfit, sig.Reason)
}

func TestAdverseStreakResetsOnGreenBar(t *testing.T) {
	ctx := context.Background()
	s := newFalling(t, Params{"take_profit_pct": 5.0, "red_candles_to_sell": 2})

	pos := &domain.Position{
		EntryPrice: 100,
		Track:      domain.Tracking{TPArmed: true, AdverseStreak: 1},
	}

	sig := s.CheckSellSignal(ctx, []*domain.Candle{candle(103, 104)}, pos)
	assert.False(t, sig.Sell)
	assert.True(t, sig.Track.TPArmed)
	assert.Equal(t, 0, sig.Track.AdverseStreak)
}

func TestRedCandlesStagnationExit(t *testing.T) {
	ctx := context.Background()
	s := newRedSeq(t, Params{"stop_loss_pct": 10.0, "take_profit_pct": 10.0, "stagnation_bars": 4})

	pos := &domain.Position{EntryPrice: 100, BarsHeld: 4}
	// Flat bar: no stop-loss, no arming, position simply aged out.
	sig := s.CheckSellSignal(ctx, []*domain.Candle{candle(100, 100.5)}, pos)
	require.True(t, sig.Sell)
	assert.Equal(t, domain.CloseReasonStagnation, sig.Reason)

	// One bar earlier it still holds.
	pos.BarsHeld = 3
	sig = s.CheckSellSignal(ctx, []*domain.Candle{candle(100, 100.5)}, pos)
	assert.False(t, sig.Sell)
}

func TestRedCandlesImmediateTakeProfit(t *testing.T) {
	ctx := context.Background()
	// red_candles_to_sell defaults to 1: the first red bar after arming sells.
	s := newRedSeq(t, Params{"take_profit_pct": 2.0})

	pos := &domain.Position{EntryPrice: 100}
	// Red bar that closes above the trigger: arms and completes the streak in
	// the same bar.
	sig := s.CheckSellSignal(ctx, []*domain.Candle{candle(104, 103)}, pos)
	require.True(t, sig.Sell)
	assert.Equal(t, domain.CloseReasonTakeProfit, sig.Reason)
}

func TestPriceLevelRoundTrip(t *testing.T) {
	s := newFalling(t, Params{"stop_loss_pct": 1.0, "take_profit_pct": 0.8})

	assert.InDelta(t, 99.0, s.StopLossPrice(100), 1e-9)
	assert.InDelta(t, 100.8, s.TakeProfitPrice(100), 1e-9)

	// Level back to percent and back again stays stable.
	entry := 2.34567
	sl := s.StopLossPrice(entry)
	assert.InDelta(t, entry*(1-0.01), sl, 1e-9)
}

func TestRegistry(t *testing.T) {
	log := &mockLogger{}
	r := NewRegistry()

	assert.Equal(t, []string{"doge_momentum", "doge_momentum_v2", "falling_candles", "red_candles_sequence"}, r.Names())

	t.Run("constructs registered strategies", func(t *testing.T) {
		for _, name := range r.Names() {
			s, err := r.Construct(name, "XRPUSDT", name+"_1", Params{}, log)
			require.NoError(t, err, name)
			assert.Equal(t, name+"_1", s.ID())
			assert.Equal(t, "XRPUSDT", s.Symbol())
		}
	})

	t.Run("unknown name is a configuration error", func(t *testing.T) {
		s, err := r.Construct("momentum_surfer", "XRPUSDT", "x", Params{}, log)
		assert.Nil(t, s)
		require.Error(t, err)
		assert.ErrorIs(t, err, ports.ErrConfiguration)
	})

	t.Run("malformed params surface as configuration errors", func(t *testing.T) {
		s, err := r.Construct("falling_candles", "XRPUSDT", "x", Params{"stop_loss_pct": "cheap"}, log)
		assert.Nil(t, s)
		require.Error(t, err)
		assert.ErrorIs(t, err, ports.ErrConfiguration)
	})
}
