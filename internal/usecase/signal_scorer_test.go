package usecase

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/crypto_futures_dashboard/internal/domain"
	"github.com/vitos/crypto_futures_dashboard/internal/indicator"
)

func TestScoreSignal_ShortSeries(t *testing.T) {
	closes := make([]float64, 19)
	for i := range closes {
		closes[i] = 100 - float64(i)
	}
	score := ScoreSignal(closes, closes, closes, closes)
	assert.Equal(t, 0.0, score.BuyScore)
	assert.Equal(t, 0.0, score.SellScore)
	require.NotNil(t, score.Tags)
	assert.Empty(t, score.Tags)
}

func TestScoreSignal_FallingMarketIsOversold(t *testing.T) {
	closes, highs, lows, volumes := columns(descendingCandles(25, 200))

	rsi := indicator.Latest(indicator.RSI(closes, 14))
	assert.Less(t, rsi, 5.0)

	score := ScoreSignal(closes, highs, lows, volumes)
	assert.GreaterOrEqual(t, score.BuyScore, 25.0)
	assert.True(t, score.HasTag(domain.TagRSIOversold))
	assert.False(t, score.HasTag(domain.TagRSINearOversold))
	assert.False(t, score.HasTag(domain.TagRSIExtremeOversold))
}

func TestScoreSignal_FlatMarket(t *testing.T) {
	flat := make([]float64, 30)
	for i := range flat {
		flat[i] = 100
	}
	score := ScoreSignal(flat, flat, flat, flat)

	assert.Less(t, score.BuyScore, 10.0)
	assert.Less(t, score.SellScore, 10.0)
	for _, tag := range score.Tags {
		assert.Equal(t, domain.TagVolatilityNormal, tag)
	}
}

func TestScoreSignal_BoundsAndDeterminism(t *testing.T) {
	n := 120
	closes := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	volumes := make([]float64, n)
	for i := 0; i < n; i++ {
		c := 100 + 15*math.Sin(float64(i)/4) + float64(i%7)
		closes[i] = c
		highs[i] = c + 3
		lows[i] = c - 3
		volumes[i] = 1000 + float64((i*37)%500)
	}

	for end := indicator.MinSamples; end <= n; end++ {
		score := ScoreSignal(closes[:end], highs[:end], lows[:end], volumes[:end])
		assert.GreaterOrEqual(t, score.BuyScore, 0.0)
		assert.LessOrEqual(t, score.BuyScore, 100.0)
		assert.GreaterOrEqual(t, score.SellScore, 0.0)
		assert.LessOrEqual(t, score.SellScore, 100.0)
	}

	first := ScoreSignal(closes, highs, lows, volumes)
	second := ScoreSignal(closes, highs, lows, volumes)
	assert.Equal(t, first, second)
}

func TestScoreIndicators_RSIFirstMatchWins(t *testing.T) {
	tests := []struct {
		name     string
		rsi      float64
		wantTag  string
		wantBuy  float64
		wantSell float64
	}{
		{"oversold", 25, domain.TagRSIOversold, 25, 0},
		{"deep oversold still oversold", 15, domain.TagRSIOversold, 25, 0},
		{"overbought", 75, domain.TagRSIOverbought, 0, 25},
		{"extreme overbought still overbought", 85, domain.TagRSIOverbought, 0, 25},
		{"exactly 30 is near oversold", 30, domain.TagRSINearOversold, 10, 0},
		{"exactly 70 is near overbought", 70, domain.TagRSINearOverbought, 0, 10},
		{"neutral", 50, "", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set := indicator.Set{SMA20: []float64{0}, RSI: []float64{tt.rsi}}
			score := ScoreIndicators(set, 100, 0)

			assert.Equal(t, tt.wantBuy, score.BuyScore)
			assert.Equal(t, tt.wantSell, score.SellScore)
			if tt.wantTag == "" {
				assert.Empty(t, score.Tags)
			} else {
				assert.Equal(t, []string{tt.wantTag}, score.Tags)
			}
		})
	}
}

func TestScoreIndicators_HighVolatilityClampsAtZero(t *testing.T) {
	set := indicator.Set{SMA20: []float64{0}, RSI: []float64{50}, ATR: []float64{10}}
	score := ScoreIndicators(set, 100, 0)
	assert.Equal(t, 0.0, score.BuyScore)
	assert.Equal(t, 0.0, score.SellScore)
	assert.Equal(t, []string{domain.TagVolatilityHigh}, score.Tags)
}

func TestScoreIndicators_MACDAndVolume(t *testing.T) {
	set := indicator.Set{
		SMA20: []float64{0},
		RSI:   []float64{50},
		MACD: indicator.MACDResult{
			Line:      []float64{0.5},
			Signal:    []float64{0.3},
			Histogram: []float64{0.2},
		},
		VolumeSMA10: []float64{100},
	}
	score := ScoreIndicators(set, 100, 250)

	// bullish 20 + strong 8 + very high volume 12
	assert.Equal(t, 40.0, score.BuyScore)
	// strong 8 + very high volume 12
	assert.Equal(t, 20.0, score.SellScore)
	assert.Equal(t, []string{domain.TagMACDBullish, domain.TagMACDStrong, domain.TagVolumeVeryHigh}, score.Tags)
}
