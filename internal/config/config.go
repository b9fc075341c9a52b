package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/vitos/crypto_futures_dashboard/internal/domain"
	"github.com/vitos/crypto_futures_dashboard/internal/usecase"
	"gopkg.in/yaml.v3"
)

type ExchangeConfig struct {
	Name         string `yaml:"name"`
	APIKey       string `yaml:"api_key"`
	APISecret    string `yaml:"api_secret"`
	WSEndpoint   string `yaml:"ws_endpoint"`
	RESTEndpoint string `yaml:"rest_endpoint"`
	Testnet      bool   `yaml:"testnet"`
}

// HasCredentials reports whether real-mode trading can be wired.
func (e ExchangeConfig) HasCredentials() bool {
	return e.APIKey != "" && e.APISecret != ""
}

type Config struct {
	Exchange  string           `yaml:"exchange"`
	Exchanges []ExchangeConfig `yaml:"exchanges"`
	Logging   struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"logging"`
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`
	Storage struct {
		Backend string `yaml:"backend"` // json | sqlite | memory
		Path    string `yaml:"path"`
	} `yaml:"storage"`
	Scanner         usecase.ScannerConfig `yaml:"scanner"`
	FallbackSymbols []string              `yaml:"fallback_symbols"`
	Trading         domain.TradingConfig  `yaml:"trading"`
	TradingMode     domain.TradingMode    `yaml:"trading_mode"`
	VirtualBalance  float64               `yaml:"virtual_balance"`
	MonitorSeconds  int                   `yaml:"monitor_interval_seconds"`
}

// Default returns a config that runs in virtual mode against Binance.
func Default() *Config {
	cfg := &Config{
		Exchange:       "binance",
		Scanner:        usecase.DefaultScannerConfig(),
		Trading:        domain.DefaultTradingConfig(),
		TradingMode:    domain.ModeVirtual,
		VirtualBalance: 10000,
		MonitorSeconds: 10,
	}
	cfg.Logging.Level = "info"
	cfg.Server.Port = 8080
	cfg.Storage.Backend = "json"
	cfg.Storage.Path = "data"
	return cfg
}

// Load reads .env (if present) and the YAML file at path, then applies
// environment overrides. A missing YAML file yields the defaults.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, err
		default:
			defer f.Close()
			if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
				return nil, fmt.Errorf("decode %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	for _, name := range []string{"binance", "bybit"} {
		prefix := strings.ToUpper(name)
		key, secret := os.Getenv(prefix+"_API_KEY"), os.Getenv(prefix+"_API_SECRET")
		if key == "" && secret == "" {
			continue
		}
		ex := c.exchangeEntry(name)
		if key != "" {
			ex.APIKey = key
		}
		if secret != "" {
			ex.APISecret = secret
		}
	}
	if v := os.Getenv("EXCHANGE"); v != "" {
		c.Exchange = strings.ToLower(v)
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("TRADING_MODE"); v != "" {
		c.TradingMode = domain.TradingMode(strings.ToLower(v))
	}
}

func (c *Config) exchangeEntry(name string) *ExchangeConfig {
	for i := range c.Exchanges {
		if strings.EqualFold(c.Exchanges[i].Name, name) {
			return &c.Exchanges[i]
		}
	}
	c.Exchanges = append(c.Exchanges, ExchangeConfig{Name: name})
	return &c.Exchanges[len(c.Exchanges)-1]
}

func (c *Config) applyDefaults() {
	def := Default()
	if c.Server.Port == 0 {
		c.Server.Port = def.Server.Port
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = def.Storage.Backend
	}
	if c.Storage.Path == "" {
		c.Storage.Path = def.Storage.Path
	}
	if c.TradingMode == "" {
		c.TradingMode = domain.ModeVirtual
	}
	if c.Trading.Interval == "" {
		c.Trading.Interval = def.Trading.Interval
	}
	if c.Trading.TopN == 0 {
		c.Trading.TopN = def.Trading.TopN
	}
	if c.VirtualBalance <= 0 {
		c.VirtualBalance = def.VirtualBalance
	}
	if c.MonitorSeconds <= 0 {
		c.MonitorSeconds = def.MonitorSeconds
	}
}

// ActiveExchange returns the entry for the selected exchange.
func (c *Config) ActiveExchange() ExchangeConfig {
	for _, e := range c.Exchanges {
		if strings.EqualFold(e.Name, c.Exchange) {
			return e
		}
	}
	return ExchangeConfig{Name: c.Exchange}
}

func (c *Config) Validate() error {
	switch c.Exchange {
	case "binance", "bybit":
	default:
		return fmt.Errorf("unsupported exchange %q", c.Exchange)
	}
	switch c.Storage.Backend {
	case "json", "sqlite", "memory":
	default:
		return fmt.Errorf("unsupported storage backend %q", c.Storage.Backend)
	}
	if !c.TradingMode.Valid() {
		return fmt.Errorf("invalid trading mode %q", c.TradingMode)
	}
	if c.TradingMode == domain.ModeReal && !c.ActiveExchange().HasCredentials() {
		return fmt.Errorf("real trading on %s needs api credentials", c.Exchange)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	return ValidateTrading(c.Trading)
}

// ValidateTrading rejects trading parameters the loop cannot act on.
func ValidateTrading(t domain.TradingConfig) error {
	switch {
	case t.MaxPositions < 1:
		return fmt.Errorf("%w: max_positions must be at least 1", domain.ErrInvalidRequest)
	case t.RiskPerTrade <= 0 || t.RiskPerTrade > 100:
		return fmt.Errorf("%w: risk_per_trade must be in (0, 100]", domain.ErrInvalidRequest)
	case t.Leverage < 1 || t.Leverage > 125:
		return fmt.Errorf("%w: leverage must be in [1, 125]", domain.ErrInvalidRequest)
	case t.StopLossPercent < 0 || t.TakeProfitPercent < 0:
		return fmt.Errorf("%w: stop/take percentages cannot be negative", domain.ErrInvalidRequest)
	case t.ScanIntervalSeconds < 10:
		return fmt.Errorf("%w: scan_interval_seconds must be at least 10", domain.ErrInvalidRequest)
	}
	return nil
}
