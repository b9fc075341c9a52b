package domain

// Ticker is a 24h rolling summary used to rank the tradable universe.
type Ticker struct {
	Symbol         string  `json:"symbol"`
	LastPrice      float64 `json:"last_price"`
	Price24hPcnt   float64 `json:"price_24h_pcnt"`
	QuoteVolume24h float64 `json:"quote_volume_24h"` // Turnover (USDT)
}

// Candle is a single OHLCV sample. Time is in unix seconds.
type Candle struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// Series is a column view of candles, oldest first.
type Series struct {
	Opens   []float64 `json:"opens"`
	Highs   []float64 `json:"highs"`
	Lows    []float64 `json:"lows"`
	Closes  []float64 `json:"closes"`
	Volumes []float64 `json:"volumes"`
}

func SeriesFromCandles(candles []Candle) Series {
	s := Series{
		Opens:   make([]float64, len(candles)),
		Highs:   make([]float64, len(candles)),
		Lows:    make([]float64, len(candles)),
		Closes:  make([]float64, len(candles)),
		Volumes: make([]float64, len(candles)),
	}
	for i, c := range candles {
		s.Opens[i] = c.Open
		s.Highs[i] = c.High
		s.Lows[i] = c.Low
		s.Closes[i] = c.Close
		s.Volumes[i] = c.Volume
	}
	return s
}

func (s Series) Len() int {
	return len(s.Closes)
}

// LastClose returns the latest close or 0 for an empty series.
func (s Series) LastClose() float64 {
	if len(s.Closes) == 0 {
		return 0
	}
	return s.Closes[len(s.Closes)-1]
}

// MarketData is the latest snapshot published for a symbol.
type MarketData struct {
	Symbol    string  `json:"symbol"`
	Interval  string  `json:"interval"`
	Price     float64 `json:"price"`
	Change    float64 `json:"change_pct"`
	Volume    float64 `json:"volume"`
	UpdatedAt int64   `json:"updated_at"`
}
