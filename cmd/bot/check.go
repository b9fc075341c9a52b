package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/vitos/crypto_futures_dashboard/internal/config"
	"github.com/vitos/crypto_futures_dashboard/internal/domain"
	"github.com/vitos/crypto_futures_dashboard/internal/infrastructure/exchange"
	"go.uber.org/zap"
)

// runCheck exercises the public and private endpoints of the configured
// exchange and prints one line per probe.
func runCheck(ctx context.Context, out io.Writer, configPath, symbol string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	ex := cfg.ActiveExchange()
	log := zap.NewNop()

	var client exchangeClient
	switch cfg.Exchange {
	case "bybit":
		client = exchange.NewBybitAdapter(ex.APIKey, ex.APISecret, ex.RESTEndpoint, ex.WSEndpoint, log)
	default:
		client = exchange.NewBinanceAdapter(ex.APIKey, ex.APISecret, ex.Testnet, log)
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	fmt.Fprintf(out, "Checking %s (testnet=%v)\n", cfg.Exchange, ex.Testnet)
	failed := false
	report := func(name string, err error, detail string) {
		if err != nil {
			failed = true
			fmt.Fprintf(out, "FAIL  %-10s %v\n", name, err)
			if domain.IsFatal(err) {
				fmt.Fprintf(out, "      automated trading would be disabled by this error\n")
			}
			return
		}
		fmt.Fprintf(out, "OK    %-10s %s\n", name, detail)
	}

	// Public endpoints
	symbols, err := client.GetTopSymbols(ctx, 5)
	report("symbols", err, fmt.Sprintf("%v", symbols))

	price, err := client.GetCurrentPrice(ctx, symbol)
	report("price", err, fmt.Sprintf("%s=%f", symbol, price))

	candles, err := client.GetOHLCV(ctx, symbol, cfg.Trading.Interval, 50)
	detail := fmt.Sprintf("%d candles", len(candles))
	if err == nil && len(candles) > 0 && candles[0].Time > candles[len(candles)-1].Time {
		err = fmt.Errorf("candles are not oldest first")
	}
	report("ohlcv", err, detail)

	// Private endpoints
	if !ex.HasCredentials() {
		fmt.Fprintf(out, "SKIP  %-10s no api credentials configured\n", "account")
	} else {
		bal, err := client.GetBalance(ctx)
		if err == nil {
			report("balance", nil, fmt.Sprintf("total=%.2f available=%.2f %s", bal.Total, bal.Available, bal.Asset))
		} else {
			report("balance", err, "")
		}

		positions, err := client.GetOpenPositions(ctx)
		report("positions", err, fmt.Sprintf("%d open", len(positions)))
	}

	if failed {
		return fmt.Errorf("%s check failed", cfg.Exchange)
	}
	return nil
}
