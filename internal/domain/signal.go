package domain

import "time"

type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
)

// Side maps a signal direction onto the position side it opens.
func (d Direction) Side() Side {
	if d == DirectionSell {
		return SideShort
	}
	return SideLong
}

type Confidence string

const (
	ConfidenceHigh   Confidence = "HIGH"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceLow    Confidence = "LOW"
)

type SignalStatus string

const (
	SignalPending  SignalStatus = "PENDING"
	SignalExecuted SignalStatus = "EXECUTED"
	SignalExpired  SignalStatus = "EXPIRED"
)

// Signal reason tags emitted by the scorer.
const (
	TagRSIOversold          = "RSI_OVERSOLD"
	TagRSIOverbought        = "RSI_OVERBOUGHT"
	TagRSINearOversold      = "RSI_NEAR_OVERSOLD"
	TagRSINearOverbought    = "RSI_NEAR_OVERBOUGHT"
	TagRSIExtremeOversold   = "RSI_EXTREME_OVERSOLD"
	TagRSIExtremeOverbought = "RSI_EXTREME_OVERBOUGHT"
	TagMACDBullish          = "MACD_BULLISH"
	TagMACDBearish          = "MACD_BEARISH"
	TagMACDStrong           = "MACD_STRONG"
	TagBBOversold           = "BB_OVERSOLD"
	TagBBOverbought         = "BB_OVERBOUGHT"
	TagVolumeVeryHigh       = "VOLUME_VERY_HIGH"
	TagVolumeHigh           = "VOLUME_HIGH"
	TagTrendBullish         = "TREND_BULLISH"
	TagVolatilityNormal     = "VOLATILITY_NORMAL"
	TagVolatilityHigh       = "VOLATILITY_HIGH"
)

// SignalScore is the scorer's output. Tags keep insertion order.
type SignalScore struct {
	BuyScore  float64  `json:"buy_score"`
	SellScore float64  `json:"sell_score"`
	Tags      []string `json:"tags"`
}

func (s SignalScore) HasTag(tag string) bool {
	for _, t := range s.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// For returns the score matching a direction.
func (s SignalScore) For(d Direction) float64 {
	if d == DirectionSell {
		return s.SellScore
	}
	return s.BuyScore
}

// IndicatorSnapshot holds the latest value of every indicator a signal was built from.
type IndicatorSnapshot struct {
	SMA20         float64 `json:"sma20"`
	SMA50         float64 `json:"sma50"`
	EMA12         float64 `json:"ema12"`
	EMA26         float64 `json:"ema26"`
	RSI           float64 `json:"rsi"`
	MACD          float64 `json:"macd"`
	MACDSignal    float64 `json:"macd_signal"`
	MACDHistogram float64 `json:"macd_histogram"`
	BBUpper       float64 `json:"bb_upper"`
	BBMiddle      float64 `json:"bb_middle"`
	BBLower       float64 `json:"bb_lower"`
	ATR           float64 `json:"atr"`
}

// Signal is a tradable recommendation. Every price field is populated once
// the signal leaves the scanner.
type Signal struct {
	ID               string            `json:"id"`
	Symbol           string            `json:"symbol"`
	Direction        Direction         `json:"direction"`
	BuyScore         float64           `json:"buy_score"`
	SellScore        float64           `json:"sell_score"`
	FinalScore       float64           `json:"final_score"`
	Confidence       Confidence        `json:"confidence"`
	EntryPrice       float64           `json:"entry_price"`
	StopLoss         float64           `json:"stop_loss"`
	TakeProfit       float64           `json:"take_profit"`
	LiquidationPrice float64           `json:"liquidation_price"`
	TrailingStop     float64           `json:"trailing_stop"`
	Leverage         int               `json:"leverage"`
	RiskReward       float64           `json:"risk_reward"`
	Interval         string            `json:"interval"`
	BBSlope          string            `json:"bb_slope"`
	Volatility       string            `json:"volatility"`
	CreatedAt        time.Time         `json:"created_at"`
	Status           SignalStatus      `json:"status"`
	ExecutedPrice    *float64          `json:"executed_price,omitempty"`
	ExecutedAt       *time.Time        `json:"executed_at,omitempty"`
	Tags             []string          `json:"tags"`
	Indicators       IndicatorSnapshot `json:"indicators"`
}

func (s *Signal) MarkExecuted(price float64, at time.Time) {
	s.Status = SignalExecuted
	s.ExecutedPrice = &price
	s.ExecutedAt = &at
}
