package domain

import "time"

// TradingConfig is read at the top of each trading loop iteration.
type TradingConfig struct {
	MaxPositions        int     `json:"max_positions" yaml:"max_positions"`
	RiskPerTrade        float64 `json:"risk_per_trade" yaml:"risk_per_trade"` // percent of available balance
	Leverage            int     `json:"leverage" yaml:"leverage"`
	StopLossPercent     float64 `json:"stop_loss_percent" yaml:"stop_loss_percent"`
	TakeProfitPercent   float64 `json:"take_profit_percent" yaml:"take_profit_percent"`
	ScanIntervalSeconds int     `json:"scan_interval_seconds" yaml:"scan_interval_seconds"`
	Interval            string  `json:"interval" yaml:"interval"`
	TopN                int     `json:"top_n" yaml:"top_n"`
}

func DefaultTradingConfig() TradingConfig {
	return TradingConfig{
		MaxPositions:        5,
		RiskPerTrade:        2,
		Leverage:            10,
		StopLossPercent:     2,
		TakeProfitPercent:   4,
		ScanIntervalSeconds: 300,
		Interval:            "15m",
		TopN:                10,
	}
}

func (c TradingConfig) ScanInterval() time.Duration {
	if c.ScanIntervalSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(c.ScanIntervalSeconds) * time.Second
}

type TradingMode string

const (
	ModeVirtual TradingMode = "virtual"
	ModeReal    TradingMode = "real"
)

func (m TradingMode) Valid() bool {
	return m == ModeVirtual || m == ModeReal
}

// AppStatus is the single authoritative automation flag.
type AppStatus struct {
	TradingMode               TradingMode `json:"trading_mode"`
	IsAutomatedTradingEnabled bool        `json:"is_automated_trading_enabled"`
}

type ConnectionStatus struct {
	Exchange  string    `json:"exchange"`
	Connected bool      `json:"connected"`
	LastError string    `json:"last_error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}
