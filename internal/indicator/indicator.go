// Package indicator computes technical indicators over OHLCV columns.
//
// Every function returns a slice of the same length as its input. Slots
// before an indicator's warm-up window hold a sentinel (0, or 50 for RSI) so
// callers can always index the latest element.
package indicator

import "math"

// MinSamples is the shortest series Calculate will work on.
const MinSamples = 20

type MACDResult struct {
	Line      []float64 `json:"line"`
	Signal    []float64 `json:"signal"`
	Histogram []float64 `json:"histogram"`
}

type BollingerResult struct {
	Upper  []float64 `json:"upper"`
	Middle []float64 `json:"middle"`
	Lower  []float64 `json:"lower"`
}

// Set is the full indicator bundle for one series.
type Set struct {
	SMA20       []float64       `json:"sma20"`
	SMA50       []float64       `json:"sma50"`
	EMA12       []float64       `json:"ema12"`
	EMA26       []float64       `json:"ema26"`
	RSI         []float64       `json:"rsi"`
	MACD        MACDResult      `json:"macd"`
	Bollinger   BollingerResult `json:"bollinger"`
	ATR         []float64       `json:"atr"`
	VolumeSMA10 []float64       `json:"volume_sma10"`
}

// Empty reports whether the set was produced from too few samples.
func (s Set) Empty() bool {
	return len(s.SMA20) == 0
}

// SMA is the trailing arithmetic mean; indices below period-1 are 0.
func SMA(data []float64, period int) []float64 {
	result := make([]float64, len(data))
	if period <= 0 {
		return result
	}
	sum := 0.0
	for i, v := range data {
		sum += v
		if i >= period {
			sum -= data[i-period]
		}
		if i >= period-1 {
			result[i] = sum / float64(period)
		}
	}
	return result
}

// EMA is seeded with data[0] and defined from index 0.
func EMA(data []float64, period int) []float64 {
	result := make([]float64, len(data))
	if len(data) == 0 {
		return result
	}
	k := 2.0 / float64(period+1)
	result[0] = data[0]
	for i := 1; i < len(data); i++ {
		result[i] = data[i]*k + result[i-1]*(1-k)
	}
	return result
}

// RSI averages gains and losses over a trailing window of the deltas and
// front-pads the result with 50.
func RSI(data []float64, period int) []float64 {
	n := len(data)
	result := make([]float64, n)
	for i := range result {
		result[i] = 50
	}
	if period <= 0 || n < period+1 {
		return result
	}

	gains := make([]float64, n-1)
	losses := make([]float64, n-1)
	for i := 1; i < n; i++ {
		diff := data[i] - data[i-1]
		if diff > 0 {
			gains[i-1] = diff
		} else {
			losses[i-1] = -diff
		}
	}

	values := make([]float64, 0, n-period)
	for i := period - 1; i < len(gains); i++ {
		sumGain, sumLoss := 0.0, 0.0
		for j := i - period + 1; j <= i; j++ {
			sumGain += gains[j]
			sumLoss += losses[j]
		}
		avgGain := sumGain / float64(period)
		avgLoss := sumLoss / float64(period)

		switch {
		case avgLoss == 0 && avgGain == 0:
			values = append(values, 50)
		case avgLoss == 0:
			values = append(values, 100)
		default:
			rs := avgGain / avgLoss
			values = append(values, 100-100/(1+rs))
		}
	}

	copy(result[n-len(values):], values)
	return result
}

// MACD returns zero arrays when the series is shorter than the slow period.
func MACD(data []float64, fast, slow, signalPeriod int) MACDResult {
	n := len(data)
	res := MACDResult{
		Line:      make([]float64, n),
		Signal:    make([]float64, n),
		Histogram: make([]float64, n),
	}
	if n < slow {
		return res
	}

	fastEMA := EMA(data, fast)
	slowEMA := EMA(data, slow)
	for i := range data {
		res.Line[i] = fastEMA[i] - slowEMA[i]
	}
	res.Signal = EMA(res.Line, signalPeriod)
	for i := range data {
		res.Histogram[i] = res.Line[i] - res.Signal[i]
	}
	return res
}

// BollingerBands uses the population standard deviation of the trailing window.
func BollingerBands(data []float64, period int, mult float64) BollingerResult {
	n := len(data)
	res := BollingerResult{
		Upper:  make([]float64, n),
		Middle: SMA(data, period),
		Lower:  make([]float64, n),
	}
	if period <= 0 {
		return res
	}
	for i := period - 1; i < n; i++ {
		mean := res.Middle[i]
		variance := 0.0
		for _, v := range data[i-period+1 : i+1] {
			d := v - mean
			variance += d * d
		}
		std := math.Sqrt(variance / float64(period))
		res.Upper[i] = mean + mult*std
		res.Lower[i] = mean - mult*std
	}
	return res
}

// ATR is the simple trailing average of true ranges. Mismatched input
// lengths yield a zero array.
func ATR(highs, lows, closes []float64, period int) []float64 {
	n := len(closes)
	result := make([]float64, n)
	if len(highs) != n || len(lows) != n || period <= 0 || n < 2 {
		return result
	}

	trueRanges := make([]float64, n)
	for i := 1; i < n; i++ {
		hl := highs[i] - lows[i]
		hc := math.Abs(highs[i] - closes[i-1])
		lc := math.Abs(lows[i] - closes[i-1])
		trueRanges[i] = math.Max(hl, math.Max(hc, lc))
	}

	last := 0.0
	for i := 1; i < n; i++ {
		if i < period {
			result[i] = last
			continue
		}
		sum := 0.0
		for _, tr := range trueRanges[i-period+1 : i+1] {
			sum += tr
		}
		last = sum / float64(period)
		result[i] = last
	}
	return result
}

// Calculate builds the full set with the standard periods. Fewer than
// MinSamples closes yield an empty set.
func Calculate(closes, highs, lows, volumes []float64) Set {
	if len(closes) < MinSamples {
		return Set{}
	}
	return Set{
		SMA20:       SMA(closes, 20),
		SMA50:       SMA(closes, 50),
		EMA12:       EMA(closes, 12),
		EMA26:       EMA(closes, 26),
		RSI:         RSI(closes, 14),
		MACD:        MACD(closes, 12, 26, 9),
		Bollinger:   BollingerBands(closes, 20, 2),
		ATR:         ATR(highs, lows, closes, 14),
		VolumeSMA10: SMA(volumes, 10),
	}
}

// Latest returns the last element or 0.
func Latest(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return data[len(data)-1]
}

// At returns data[len-1-back] or 0 when out of range.
func At(data []float64, back int) float64 {
	i := len(data) - 1 - back
	if i < 0 || i >= len(data) {
		return 0
	}
	return data[i]
}
