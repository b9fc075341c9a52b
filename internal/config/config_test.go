package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/crypto_futures_dashboard/internal/domain"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "binance", cfg.Exchange)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, domain.ModeVirtual, cfg.TradingMode)
	assert.Equal(t, domain.DefaultTradingConfig(), cfg.Trading)
	assert.Equal(t, 40.0, cfg.Scanner.MinScoreVirtual)
}

func TestLoad_YAMLOverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
exchange: bybit
exchanges:
  - name: bybit
    api_key: k
    api_secret: s
server:
  port: 9090
storage:
  backend: sqlite
  path: state.db
trading:
  max_positions: 3
  risk_per_trade: 1.5
  leverage: 5
  stop_loss_percent: 2
  take_profit_percent: 4
  scan_interval_seconds: 60
scanner:
  concurrency: 4
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "bybit", cfg.Exchange)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Equal(t, 3, cfg.Trading.MaxPositions)
	assert.Equal(t, "15m", cfg.Trading.Interval)
	assert.Equal(t, 4, cfg.Scanner.Concurrency)
	assert.True(t, cfg.ActiveExchange().HasCredentials())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("BINANCE_API_KEY", "env-key")
	t.Setenv("BINANCE_API_SECRET", "env-secret")
	t.Setenv("SERVER_PORT", "7070")
	t.Setenv("TRADING_MODE", "REAL")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, domain.ModeReal, cfg.TradingMode)
	assert.Equal(t, "debug", cfg.Logging.Level)
	ex := cfg.ActiveExchange()
	assert.Equal(t, "env-key", ex.APIKey)
	assert.Equal(t, "env-secret", ex.APISecret)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"unknown exchange", func(c *Config) { c.Exchange = "kraken" }, true},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "postgres" }, true},
		{"real without keys", func(c *Config) { c.TradingMode = domain.ModeReal }, true},
		{"zero positions", func(c *Config) { c.Trading.MaxPositions = 0 }, true},
		{"risk too high", func(c *Config) { c.Trading.RiskPerTrade = 150 }, true},
		{"leverage too high", func(c *Config) { c.Trading.Leverage = 200 }, true},
		{"scan too fast", func(c *Config) { c.Trading.ScanIntervalSeconds = 1 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
