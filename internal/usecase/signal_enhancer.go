package usecase

import (
	"github.com/shopspring/decimal"
	"github.com/vitos/crypto_futures_dashboard/internal/domain"
	"github.com/vitos/crypto_futures_dashboard/internal/indicator"
)

const (
	pricePrecision = 6

	stopATRMultiplier     = 1.5
	defaultRiskReward     = 2.0
	maintenanceMargin     = 0.005
	trailingStopFraction  = 0.5
	bbSlopeLookback       = 5
	bbSlopeFlatTolerance  = 0.05
	defaultSignalLeverage = 10
)

// EnhancerConfig carries the risk parameters the enhancer needs.
type EnhancerConfig struct {
	Leverage        int
	StopLossPercent float64
	RiskReward      float64
}

func EnhancerConfigFrom(cfg domain.TradingConfig) EnhancerConfig {
	return EnhancerConfig{
		Leverage:        cfg.Leverage,
		StopLossPercent: cfg.StopLossPercent,
		RiskReward:      defaultRiskReward,
	}
}

// EnhanceSignal fills the risk levels and descriptive fields of a candidate.
func EnhanceSignal(sig domain.Signal, set indicator.Set, score domain.SignalScore, cfg EnhancerConfig) domain.Signal {
	price := sig.EntryPrice
	leverage := cfg.Leverage
	if leverage <= 0 {
		leverage = defaultSignalLeverage
	}
	rr := cfg.RiskReward
	if rr <= 0 {
		rr = defaultRiskReward
	}

	atr := indicator.Latest(set.ATR)
	stopDistance := atr * stopATRMultiplier
	if stopDistance <= 0 {
		pct := cfg.StopLossPercent
		if pct <= 0 {
			pct = 2
		}
		stopDistance = price * pct / 100
	}
	targetDistance := stopDistance * rr

	if sig.Direction == domain.DirectionSell {
		sig.StopLoss = price + stopDistance
		sig.TakeProfit = price - targetDistance
		sig.LiquidationPrice = price * (1 + 1/float64(leverage) - maintenanceMargin)
		sig.TrailingStop = price + stopDistance*trailingStopFraction
	} else {
		sig.StopLoss = price - stopDistance
		sig.TakeProfit = price + targetDistance
		sig.LiquidationPrice = price * (1 - 1/float64(leverage) + maintenanceMargin)
		sig.TrailingStop = price - stopDistance*trailingStopFraction
	}
	if sig.TakeProfit < 0 {
		sig.TakeProfit = 0
	}

	sig.EntryPrice = Round(price)
	sig.StopLoss = Round(sig.StopLoss)
	sig.TakeProfit = Round(sig.TakeProfit)
	sig.LiquidationPrice = Round(sig.LiquidationPrice)
	sig.TrailingStop = Round(sig.TrailingStop)
	sig.Leverage = leverage
	sig.RiskReward = rr
	sig.BuyScore = score.BuyScore
	sig.SellScore = score.SellScore
	sig.Tags = append([]string(nil), score.Tags...)
	sig.Indicators = snapshotOf(set)
	sig.BBSlope = bbSlope(set, price)
	sig.Volatility = volatilityBucket(atr, price)
	return sig
}

// bbSlope compares band width relative to price now and a few bars back.
func bbSlope(set indicator.Set, price float64) string {
	prevUpper := indicator.At(set.Bollinger.Upper, bbSlopeLookback)
	prevLower := indicator.At(set.Bollinger.Lower, bbSlopeLookback)
	prevMid := indicator.At(set.Bollinger.Middle, bbSlopeLookback)
	if price <= 0 || prevMid <= 0 {
		return "flat"
	}
	width := (indicator.Latest(set.Bollinger.Upper) - indicator.Latest(set.Bollinger.Lower)) / price
	prevWidth := (prevUpper - prevLower) / prevMid

	switch {
	case prevWidth == 0 && width == 0:
		return "flat"
	case width > prevWidth*(1+bbSlopeFlatTolerance):
		return "expanding"
	case width < prevWidth*(1-bbSlopeFlatTolerance):
		return "contracting"
	default:
		return "flat"
	}
}

func volatilityBucket(atr, price float64) string {
	if price <= 0 {
		return "low"
	}
	pct := atr / price * 100
	switch {
	case pct < 0.5:
		return "low"
	case pct <= 3:
		return "normal"
	case pct <= 5:
		return "elevated"
	default:
		return "high"
	}
}

// Round rounds a derived price to the stored precision.
func Round(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(pricePrecision).Float64()
	return f
}
