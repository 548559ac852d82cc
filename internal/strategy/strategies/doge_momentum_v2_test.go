package strategies

import (
	"context"
	"testing"

	"candlebot/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func v2Candle(open, close, volume float64) *domain.Candle {
	c := candle(open, close)
	c.Volume = volume
	return c
}

// capitulationWindow builds 25 bars: a flat shelf, a steady green slide, and
// a two-bar red flush ending on elevated volume with the drop fading.
// Every buy gate passes on this window.
func capitulationWindow() []*domain.Candle {
	w := make([]*domain.Candle, 0, 25)
	for i := 0; i < 10; i++ {
		w = append(w, v2Candle(109.5, 110, 100))
	}
	for close := 108.0; close >= 97; close-- {
		w = append(w, v2Candle(close-0.5, close, 100))
	}
	w = append(w, v2Candle(96, 96.5, 100)) // green bar bounds the red run
	w = append(w, v2Candle(96, 94, 100))   // capitulation bar
	w = append(w, v2Candle(94, 93.8, 150)) // weaker red bar on spiked volume
	return w
}

// reboundFlushWindow builds a long rally with a late two-bar flush. The flush
// satisfies every structural gate but leaves RSI well above the oversold
// threshold.
func reboundFlushWindow() []*domain.Candle {
	w := make([]*domain.Candle, 0, 25)
	for close := 100.0; close <= 121; close++ {
		w = append(w, v2Candle(close-0.5, close, 100))
	}
	w = append(w, v2Candle(121, 121.2, 100))
	w = append(w, v2Candle(121, 108, 100))
	w = append(w, v2Candle(108, 107.5, 150))
	return w
}

func newDogeV2(t *testing.T, params Params) *DogeMomentumV2Strategy {
	t.Helper()
	s, err := NewDogeMomentumV2("DOGEUSDT", "doge_v2_1", params, &mockLogger{})
	require.NoError(t, err)
	return s
}

func TestNewDogeMomentumV2Validation(t *testing.T) {
	tests := []struct {
		name    string
		params  Params
		wantErr bool
	}{
		{name: "defaults", params: Params{}, wantErr: false},
		{name: "explicit values", params: Params{"red_candles_min": 1, "red_candles_max": 4, "rsi_oversold": 30.0}, wantErr: false},
		{name: "max below min", params: Params{"red_candles_min": 3, "red_candles_max": 2}, wantErr: true},
		{name: "zero red minimum", params: Params{"red_candles_min": 0}, wantErr: true},
		{name: "zero stop loss", params: Params{"stop_loss_pct": 0.0}, wantErr: true},
		{name: "oversold at floor", params: Params{"rsi_oversold": 0.0}, wantErr: true},
		{name: "oversold at ceiling", params: Params{"rsi_oversold": 100.0}, wantErr: true},
		{name: "zero trailing activation", params: Params{"trailing_activation_pct": 0.0}, wantErr: true},
		{name: "negative trailing stop", params: Params{"trailing_stop_pct": -0.5}, wantErr: true},
		{name: "negative volume threshold", params: Params{"volume_increase_pct": -1.0}, wantErr: true},
		{name: "wrong type", params: Params{"red_candles_max": "three"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewDogeMomentumV2("DOGEUSDT", "d1", tt.params, &mockLogger{})
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

func TestDogeMomentumV2BuySignal(t *testing.T) {
	ctx := context.Background()
	s := newDogeV2(t, Params{})

	t.Run("short window yields no signal", func(t *testing.T) {
		assert.False(t, s.CheckBuySignal(ctx, capitulationWindow()[:10]))
	})

	t.Run("capitulation reversal fires", func(t *testing.T) {
		assert.True(t, s.CheckBuySignal(ctx, capitulationWindow()))
	})

	t.Run("red run too long rejects", func(t *testing.T) {
		w := capitulationWindow()
		w[21] = v2Candle(97.5, 97, 100)
		w[22] = v2Candle(97, 96.5, 100)
		assert.False(t, s.CheckBuySignal(ctx, w), "four red bars exceed the maximum of three")
	})

	t.Run("no red flush rejects", func(t *testing.T) {
		w := capitulationWindow()
		w[24] = v2Candle(93.6, 93.8, 150)
		assert.False(t, s.CheckBuySignal(ctx, w), "green newest bar leaves the run below the minimum")
	})

	t.Run("flat volume rejects", func(t *testing.T) {
		w := capitulationWindow()
		w[24] = v2Candle(94, 93.8, 100)
		assert.False(t, s.CheckBuySignal(ctx, w))
	})

	t.Run("close far above the local low rejects", func(t *testing.T) {
		w := capitulationWindow()
		deep := v2Candle(97.5, 98, 100)
		deep.Low = 80
		w[20] = deep
		assert.False(t, s.CheckBuySignal(ctx, w))
	})

	t.Run("accelerating drop rejects", func(t *testing.T) {
		w := capitulationWindow()
		w[24] = v2Candle(94, 91, 150)
		assert.False(t, s.CheckBuySignal(ctx, w), "newest drop must be under half the previous one")
	})

	t.Run("rsi not oversold rejects", func(t *testing.T) {
		assert.False(t, s.CheckBuySignal(ctx, reboundFlushWindow()))
	})

	t.Run("oversold threshold is configurable", func(t *testing.T) {
		relaxed := newDogeV2(t, Params{"rsi_oversold": 50.0})
		assert.True(t, relaxed.CheckBuySignal(ctx, reboundFlushWindow()))
	})
}

func TestDogeMomentumV2SellSignal(t *testing.T) {
	ctx := context.Background()
	s := newDogeV2(t, Params{})
	pos := func() *domain.Position {
		return &domain.Position{Symbol: "DOGEUSDT", StrategyID: "doge_v2_1", EntryPrice: 100}
	}

	t.Run("stop loss fires at the level", func(t *testing.T) {
		sig := s.CheckSellSignal(ctx, candlesFromMids(100, 98.8), pos())
		assert.True(t, sig.Sell)
		assert.Equal(t, domain.CloseReasonStopLoss, sig.Reason)
	})

	t.Run("just above stop loss holds", func(t *testing.T) {
		sig := s.CheckSellSignal(ctx, candlesFromMids(100, 98.81), pos())
		assert.False(t, sig.Sell)
		assert.False(t, sig.Track.TPArmed)
		assert.InDelta(t, 100.0, sig.Track.HighWater, 1e-9, "high water starts at the entry price")
	})

	t.Run("below activation stays passive", func(t *testing.T) {
		sig := s.CheckSellSignal(ctx, candlesFromMids(100, 101), pos())
		assert.False(t, sig.Sell)
		assert.False(t, sig.Track.TPArmed)
		assert.InDelta(t, 101.0, sig.Track.HighWater, 1e-9)
	})

	t.Run("trailing arms in profit", func(t *testing.T) {
		sig := s.CheckSellSignal(ctx, candlesFromMids(100, 102), pos())
		assert.False(t, sig.Sell)
		assert.True(t, sig.Track.TPArmed)
		assert.InDelta(t, 102.0, sig.Track.HighWater, 1e-9)
	})

	t.Run("trailing stop fires after a pullback", func(t *testing.T) {
		p := pos()
		p.Track = domain.Tracking{TPArmed: true, HighWater: 102}
		sig := s.CheckSellSignal(ctx, candlesFromMids(102, 101.1), p)
		assert.True(t, sig.Sell)
		assert.Equal(t, domain.CloseReasonTrailingStop, sig.Reason)
	})

	t.Run("high water ratchets upward", func(t *testing.T) {
		p := pos()
		p.Track = domain.Tracking{TPArmed: true, HighWater: 102}
		sig := s.CheckSellSignal(ctx, candlesFromMids(102, 102.5), p)
		assert.False(t, sig.Sell)
		assert.InDelta(t, 102.5, sig.Track.HighWater, 1e-9)
	})

	t.Run("take profit fires at the level", func(t *testing.T) {
		sig := s.CheckSellSignal(ctx, candlesFromMids(100, 103), pos())
		assert.True(t, sig.Sell)
		assert.Equal(t, domain.CloseReasonTakeProfit, sig.Reason)
	})
}

func TestDogeMomentumV2PriceLevels(t *testing.T) {
	s := newDogeV2(t, Params{})
	assert.Equal(t, 25, s.RequiredBars())
	assert.InDelta(t, 98.8, s.StopLossPrice(100), 1e-9)
	assert.InDelta(t, 103.0, s.TakeProfitPrice(100), 1e-9)
}
