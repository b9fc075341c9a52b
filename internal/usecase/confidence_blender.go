package usecase

import (
	"math"

	"github.com/vitos/crypto_futures_dashboard/internal/domain"
	"github.com/vitos/crypto_futures_dashboard/internal/indicator"
)

const baseAdjustment = 0.9

// ApplyML blends the heuristic score for the signal's direction with a
// fixed tag-driven adjustment. It is a deterministic table, not a model.
func ApplyML(sig domain.Signal, closes, highs, lows, volumes []float64) domain.Signal {
	score := ScoreSignal(closes, highs, lows, volumes)
	base := score.For(sig.Direction)
	macdHist := 0.0
	if len(closes) >= indicator.MinSamples {
		macdHist = indicator.Latest(indicator.MACD(closes, 12, 26, 9).Histogram)
	}

	adj := adjustment(sig.Direction, score, macdHist)
	sig.FinalScore = Round(0.5*base + 0.5*adj*100)
	sig.Confidence = ConfidenceFor(sig.FinalScore)
	return sig
}

func adjustment(dir domain.Direction, score domain.SignalScore, macdHist float64) float64 {
	adj := baseAdjustment
	has := score.HasTag

	if dir == domain.DirectionBuy {
		if has(domain.TagRSIOversold) || has(domain.TagRSINearOversold) {
			adj += 0.10
		}
		if has(domain.TagRSIOverbought) {
			adj -= 0.15
		}
		switch {
		case has(domain.TagMACDBullish) && math.Abs(macdHist) > macdStrongThreshold:
			adj += 0.10
		case has(domain.TagMACDBullish):
			adj += 0.05
		case has(domain.TagMACDBearish):
			adj -= 0.10
		}
		if has(domain.TagTrendBullish) {
			adj += 0.05
		}
	} else {
		if has(domain.TagRSIOverbought) || has(domain.TagRSINearOverbought) {
			adj += 0.10
		}
		if has(domain.TagRSIOversold) {
			adj -= 0.15
		}
		switch {
		case has(domain.TagMACDBearish) && math.Abs(macdHist) > macdStrongThreshold:
			adj += 0.10
		case has(domain.TagMACDBearish):
			adj += 0.05
		case has(domain.TagMACDBullish):
			adj -= 0.10
		}
		if has(domain.TagTrendBullish) {
			adj -= 0.05
		}
	}

	if has(domain.TagVolatilityHigh) {
		adj -= 0.15
	} else if has(domain.TagVolatilityNormal) {
		adj += 0.05
	}

	if adj < 0 {
		return 0
	}
	if adj > 1 {
		return 1
	}
	return adj
}

// ConfidenceFor maps a final score onto a tier. Both boundaries are exclusive.
func ConfidenceFor(score float64) domain.Confidence {
	switch {
	case score > 70:
		return domain.ConfidenceHigh
	case score > 40:
		return domain.ConfidenceMedium
	default:
		return domain.ConfidenceLow
	}
}
