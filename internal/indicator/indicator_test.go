package indicator_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/crypto_futures_dashboard/internal/indicator"
)

func ramp(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + step*float64(i)
	}
	return out
}

func constant(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestSMA(t *testing.T) {
	data := []float64{11, 12, 13, 14, 20, 16}
	got := indicator.SMA(data, 3)

	expected := []float64{0, 0, (11 + 12 + 13) / 3.0, (12 + 13 + 14) / 3.0, (13 + 14 + 20) / 3.0, (14 + 20 + 16) / 3.0}
	require.Len(t, got, len(data))
	for i := range expected {
		assert.InDelta(t, expected[i], got[i], 1e-9, "index %d", i)
	}
}

func TestEMA_SeededWithFirstSample(t *testing.T) {
	data := []float64{10, 11, 12, 13}
	got := indicator.EMA(data, 3)

	require.Len(t, got, len(data))
	assert.Equal(t, data[0], got[0])
	// k = 0.5
	assert.InDelta(t, 10.5, got[1], 1e-9)
	assert.InDelta(t, 11.25, got[2], 1e-9)
}

func TestOutputLengthsMatchInput(t *testing.T) {
	for _, n := range []int{0, 1, 5, 19, 20, 26, 60} {
		closes := ramp(n, 100, 0.5)
		highs := ramp(n, 101, 0.5)
		lows := ramp(n, 99, 0.5)

		assert.Len(t, indicator.SMA(closes, 20), n)
		assert.Len(t, indicator.EMA(closes, 12), n)
		assert.Len(t, indicator.RSI(closes, 14), n)
		m := indicator.MACD(closes, 12, 26, 9)
		assert.Len(t, m.Line, n)
		assert.Len(t, m.Signal, n)
		assert.Len(t, m.Histogram, n)
		bb := indicator.BollingerBands(closes, 20, 2)
		assert.Len(t, bb.Upper, n)
		assert.Len(t, bb.Middle, n)
		assert.Len(t, bb.Lower, n)
		assert.Len(t, indicator.ATR(highs, lows, closes, 14), n)
	}
}

func TestWarmupEntriesAreZero(t *testing.T) {
	closes := ramp(30, 100, 1)
	sma := indicator.SMA(closes, 20)
	bb := indicator.BollingerBands(closes, 20, 2)

	for i := 0; i < 19; i++ {
		assert.Equal(t, 0.0, sma[i], "sma index %d", i)
		assert.Equal(t, 0.0, bb.Upper[i], "upper index %d", i)
		assert.Equal(t, 0.0, bb.Middle[i], "middle index %d", i)
		assert.Equal(t, 0.0, bb.Lower[i], "lower index %d", i)
	}
	assert.NotZero(t, sma[19])
	assert.NotZero(t, bb.Upper[19])
}

func TestRSI(t *testing.T) {
	tests := []struct {
		name  string
		data  []float64
		check func(t *testing.T, last float64)
	}{
		{"Rising -> 100", ramp(30, 100, 1), func(t *testing.T, last float64) {
			assert.Equal(t, 100.0, last)
		}},
		{"Falling -> 0", ramp(25, 100, -1), func(t *testing.T, last float64) {
			assert.InDelta(t, 0, last, 1e-9)
		}},
		{"Flat -> 50", constant(30, 42), func(t *testing.T, last float64) {
			assert.Equal(t, 50.0, last)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := indicator.RSI(tt.data, 14)
			require.Len(t, got, len(tt.data))
			for i, v := range got {
				assert.False(t, math.IsNaN(v), "NaN at %d", i)
				assert.GreaterOrEqual(t, v, 0.0)
				assert.LessOrEqual(t, v, 100.0)
			}
			// padded warm-up
			for i := 0; i < 14; i++ {
				assert.Equal(t, 50.0, got[i], "index %d", i)
			}
			tt.check(t, got[len(got)-1])
		})
	}
}

func TestRSI_ShortSeriesIsNeutral(t *testing.T) {
	got := indicator.RSI([]float64{1, 2, 3}, 14)
	assert.Equal(t, []float64{50, 50, 50}, got)
}

func TestRSI_MixedMoves(t *testing.T) {
	// 14 deltas: 7 gains of 2, 7 losses of 1 -> RS = 2 -> RSI = 66.67
	data := []float64{100}
	for i := 0; i < 7; i++ {
		data = append(data, data[len(data)-1]+2, data[len(data)-1]+2-1)
	}
	got := indicator.RSI(data, 14)
	assert.InDelta(t, 100-100/3.0, got[len(got)-1], 1e-9)
}

func TestMACD_ShortSeriesIsZero(t *testing.T) {
	m := indicator.MACD(ramp(25, 100, 1), 12, 26, 9)
	for i := range m.Line {
		assert.Zero(t, m.Line[i])
		assert.Zero(t, m.Signal[i])
		assert.Zero(t, m.Histogram[i])
	}
}

func TestMACD_HistogramIsLineMinusSignal(t *testing.T) {
	m := indicator.MACD(ramp(60, 100, 1), 12, 26, 9)
	for i := range m.Line {
		assert.InDelta(t, m.Line[i]-m.Signal[i], m.Histogram[i], 1e-12)
	}
	assert.Greater(t, indicator.Latest(m.Line), 0.0, "rising series has positive MACD")
}

func TestBollinger_FlatCollapsesToMean(t *testing.T) {
	bb := indicator.BollingerBands(constant(30, 7), 20, 2)
	assert.Equal(t, 7.0, indicator.Latest(bb.Upper))
	assert.Equal(t, 7.0, indicator.Latest(bb.Middle))
	assert.Equal(t, 7.0, indicator.Latest(bb.Lower))
}

func TestATR(t *testing.T) {
	highs := []float64{16, 17, 19}
	lows := []float64{10, 12, 15}
	closes := []float64{12, 15, 18}

	// TR[1] = max(5, |17-12|, |12-12|) = 5, TR[2] = max(4, |19-15|, |15-15|) = 4
	got := indicator.ATR(highs, lows, closes, 2)
	require.Len(t, got, 3)
	assert.Equal(t, 0.0, got[0])
	assert.Equal(t, 0.0, got[1])
	assert.InDelta(t, 4.5, got[2], 1e-9)
}

func TestATR_MismatchedLengths(t *testing.T) {
	got := indicator.ATR([]float64{1, 2}, []float64{1}, []float64{1, 2, 3}, 14)
	assert.Equal(t, []float64{0, 0, 0}, got)
}

func TestATR_FlatMarketIsZero(t *testing.T) {
	flat := constant(30, 5)
	got := indicator.ATR(flat, flat, flat, 14)
	assert.Equal(t, 0.0, indicator.Latest(got))
}

func TestCalculate_MinimumWarmup(t *testing.T) {
	short := ramp(19, 100, 1)
	assert.True(t, indicator.Calculate(short, short, short, short).Empty())

	full := ramp(20, 100, 1)
	set := indicator.Calculate(full, full, full, full)
	assert.False(t, set.Empty())
	assert.Len(t, set.RSI, 20)
	assert.Len(t, set.VolumeSMA10, 20)
}

func TestAt(t *testing.T) {
	data := []float64{1, 2, 3}
	assert.Equal(t, 3.0, indicator.At(data, 0))
	assert.Equal(t, 1.0, indicator.At(data, 2))
	assert.Equal(t, 0.0, indicator.At(data, 3))
}
