package usecase

import (
	"math"

	"github.com/vitos/crypto_futures_dashboard/internal/domain"
	"github.com/vitos/crypto_futures_dashboard/internal/indicator"
)

const macdStrongThreshold = 0.01

// ScoreSignal scores the latest bar of a series. Fewer than
// indicator.MinSamples closes yield a zero score with no tags.
func ScoreSignal(closes, highs, lows, volumes []float64) domain.SignalScore {
	if len(closes) < indicator.MinSamples {
		return domain.SignalScore{Tags: []string{}}
	}
	set := indicator.Calculate(closes, highs, lows, volumes)
	return ScoreIndicators(set, indicator.Latest(closes), indicator.Latest(volumes))
}

// ScoreIndicators applies the additive point table to an indicator set.
func ScoreIndicators(set indicator.Set, price, volume float64) domain.SignalScore {
	score := domain.SignalScore{Tags: []string{}}
	if set.Empty() {
		return score
	}

	var buy, sell float64
	tag := func(t string) { score.Tags = append(score.Tags, t) }

	// RSI: first match wins, the overlapping tiers below are intentionally shadowed.
	rsi := indicator.Latest(set.RSI)
	if rsi < 30 {
		buy += 25
		tag(domain.TagRSIOversold)
	} else if rsi > 70 {
		sell += 25
		tag(domain.TagRSIOverbought)
	} else if rsi >= 20 && rsi <= 30 {
		buy += 10
		tag(domain.TagRSINearOversold)
	} else if rsi >= 70 && rsi <= 80 {
		sell += 10
		tag(domain.TagRSINearOverbought)
	} else if rsi < 20 {
		buy += 5
		tag(domain.TagRSIExtremeOversold)
	} else if rsi > 80 {
		sell += 5
		tag(domain.TagRSIExtremeOverbought)
	}

	macd := indicator.Latest(set.MACD.Line)
	macdSignal := indicator.Latest(set.MACD.Signal)
	hist := indicator.Latest(set.MACD.Histogram)
	if macd > macdSignal && hist > 0 {
		buy += 20
		tag(domain.TagMACDBullish)
	} else if macd < macdSignal && hist < 0 {
		sell += 20
		tag(domain.TagMACDBearish)
	}
	if math.Abs(hist) > macdStrongThreshold {
		buy += 8
		sell += 8
		tag(domain.TagMACDStrong)
	}

	upper := indicator.Latest(set.Bollinger.Upper)
	lower := indicator.Latest(set.Bollinger.Lower)
	if upper > lower {
		if price <= lower {
			buy += 15
			tag(domain.TagBBOversold)
		} else if price >= upper {
			sell += 15
			tag(domain.TagBBOverbought)
		}
	}

	if avgVolume := indicator.Latest(set.VolumeSMA10); avgVolume > 0 {
		ratio := volume / avgVolume
		if ratio > 2 {
			buy += 12
			sell += 12
			tag(domain.TagVolumeVeryHigh)
		} else if ratio > 1.5 {
			buy += 6
			sell += 6
			tag(domain.TagVolumeHigh)
		}
	}

	trend := trendPoints(set, price)
	buy += float64(3 * trend)
	sell += float64(3 * trend)
	if trend >= 2 {
		buy += 15
		tag(domain.TagTrendBullish)
	}

	if price > 0 {
		atrPct := indicator.Latest(set.ATR) / price * 100
		if atrPct >= 0.5 && atrPct <= 3 {
			buy += 5
			sell += 5
			tag(domain.TagVolatilityNormal)
		} else if atrPct > 5 {
			buy -= 10
			sell -= 10
			tag(domain.TagVolatilityHigh)
		}
	}

	score.BuyScore = clampScore(buy)
	score.SellScore = clampScore(sell)
	return score
}

// trendPoints counts sma20>sma50, price>sma20 and a rising sma20.
// The sma50 comparison only counts once sma50 is warm.
func trendPoints(set indicator.Set, price float64) int {
	sma20 := indicator.Latest(set.SMA20)
	sma50 := indicator.Latest(set.SMA50)
	prevSMA20 := indicator.At(set.SMA20, 1)

	points := 0
	if sma50 > 0 && sma20 > sma50 {
		points++
	}
	if sma20 > 0 && price > sma20 {
		points++
	}
	if prevSMA20 > 0 && sma20 > prevSMA20 {
		points++
	}
	return points
}

func snapshotOf(set indicator.Set) domain.IndicatorSnapshot {
	return domain.IndicatorSnapshot{
		SMA20:         indicator.Latest(set.SMA20),
		SMA50:         indicator.Latest(set.SMA50),
		EMA12:         indicator.Latest(set.EMA12),
		EMA26:         indicator.Latest(set.EMA26),
		RSI:           indicator.Latest(set.RSI),
		MACD:          indicator.Latest(set.MACD.Line),
		MACDSignal:    indicator.Latest(set.MACD.Signal),
		MACDHistogram: indicator.Latest(set.MACD.Histogram),
		BBUpper:       indicator.Latest(set.Bollinger.Upper),
		BBMiddle:      indicator.Latest(set.Bollinger.Middle),
		BBLower:       indicator.Latest(set.Bollinger.Lower),
		ATR:           indicator.Latest(set.ATR),
	}
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
