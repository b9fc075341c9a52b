package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vitos/crypto_futures_dashboard/internal/domain"
)

func TestConfidenceFor(t *testing.T) {
	tests := []struct {
		score float64
		want  domain.Confidence
	}{
		{100, domain.ConfidenceHigh},
		{71, domain.ConfidenceHigh},
		{70.000001, domain.ConfidenceHigh},
		{70, domain.ConfidenceMedium},
		{41, domain.ConfidenceMedium},
		{40, domain.ConfidenceLow},
		{0, domain.ConfidenceLow},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ConfidenceFor(tt.score), "score=%v", tt.score)
	}
}

func TestApplyML_ShortSeriesUsesBaseAdjustment(t *testing.T) {
	closes := []float64{1, 2, 3}
	sig := ApplyML(domain.Signal{Direction: domain.DirectionBuy}, closes, closes, closes, closes)

	// 0.5*0 + 0.5*0.9*100
	assert.Equal(t, 45.0, sig.FinalScore)
	assert.Equal(t, domain.ConfidenceMedium, sig.Confidence)
}

func TestApplyML_BoundsAndDeterminism(t *testing.T) {
	closes, highs, lows, volumes := columns(descendingCandles(60, 300))
	for _, dir := range []domain.Direction{domain.DirectionBuy, domain.DirectionSell} {
		a := ApplyML(domain.Signal{Direction: dir}, closes, highs, lows, volumes)
		b := ApplyML(domain.Signal{Direction: dir}, closes, highs, lows, volumes)
		assert.Equal(t, a, b)
		assert.GreaterOrEqual(t, a.FinalScore, 0.0)
		assert.LessOrEqual(t, a.FinalScore, 100.0)
		assert.Equal(t, ConfidenceFor(a.FinalScore), a.Confidence)
	}
}

func TestAdjustment(t *testing.T) {
	tests := []struct {
		name     string
		dir      domain.Direction
		tags     []string
		macdHist float64
		want     float64
	}{
		{"base", domain.DirectionBuy, nil, 0, 0.9},
		{
			"aligned buy clamps at one",
			domain.DirectionBuy,
			[]string{domain.TagRSIOversold, domain.TagMACDBullish, domain.TagTrendBullish, domain.TagVolatilityNormal},
			0.02,
			1,
		},
		{"weak macd buy", domain.DirectionBuy, []string{domain.TagMACDBullish}, 0.001, 0.95},
		{
			"opposed sell",
			domain.DirectionSell,
			[]string{domain.TagRSIOversold, domain.TagMACDBullish, domain.TagTrendBullish, domain.TagVolatilityHigh},
			0.02,
			0.45,
		},
		{"overbought sell", domain.DirectionSell, []string{domain.TagRSINearOverbought, domain.TagMACDBearish}, -0.05, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := adjustment(tt.dir, domain.SignalScore{Tags: tt.tags}, tt.macdHist)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}
