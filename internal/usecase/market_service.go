package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/vitos/crypto_futures_dashboard/internal/domain"
	"go.uber.org/zap"
)

// DefaultFallbackSymbols is the universe used when the provider cannot rank symbols.
var DefaultFallbackSymbols = []string{
	"BTCUSDT", "ETHUSDT", "BNBUSDT", "SOLUSDT", "XRPUSDT",
	"DOGEUSDT", "ADAUSDT", "AVAXUSDT", "LINKUSDT", "DOTUSDT",
}

// MarketService wraps a MarketDataProvider with retries and safe defaults.
type MarketService struct {
	provider domain.MarketDataProvider
	store    domain.StateStore
	logger   *zap.Logger
	policy   RetryPolicy
	fallback []string
	timeNow  func() time.Time // For testing
}

func NewMarketService(provider domain.MarketDataProvider, store domain.StateStore, logger *zap.Logger) *MarketService {
	return &MarketService{
		provider: provider,
		store:    store,
		logger:   logger,
		policy:   DefaultRetryPolicy(),
		fallback: DefaultFallbackSymbols,
		timeNow:  time.Now,
	}
}

func (s *MarketService) SetRetryPolicy(p RetryPolicy) {
	s.policy = p
}

func (s *MarketService) SetFallbackSymbols(symbols []string) {
	if len(symbols) > 0 {
		s.fallback = symbols
	}
}

// TopSymbols resolves the scan universe, falling back to a fixed list.
func (s *MarketService) TopSymbols(ctx context.Context, limit int) []string {
	symbols, err := Retry(ctx, s.policy, s.logger, "top_symbols", func(ctx context.Context) ([]string, error) {
		return s.provider.GetTopSymbols(ctx, limit)
	})
	if err != nil || len(symbols) == 0 {
		s.logger.Warn("Using fallback symbol list", zap.Error(err), zap.Int("count", len(s.fallback)))
		symbols = s.fallback
	}
	if limit > 0 && len(symbols) > limit {
		symbols = symbols[:limit]
	}
	return symbols
}

// Series fetches candles for a symbol. On exhausted retries it returns an
// empty series together with the last error.
func (s *MarketService) Series(ctx context.Context, symbol, interval string, limit int) (domain.Series, error) {
	candles, err := Retry(ctx, s.policy, s.logger, "ohlcv:"+symbol, func(ctx context.Context) ([]domain.Candle, error) {
		return s.provider.GetOHLCV(ctx, symbol, interval, limit)
	})
	if err != nil {
		return domain.Series{}, fmt.Errorf("fetch %s %s candles: %w", symbol, interval, err)
	}
	return domain.SeriesFromCandles(candles), nil
}

// CurrentPrice returns 0 when the price cannot be fetched.
func (s *MarketService) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	price, err := Retry(ctx, s.policy, s.logger, "price:"+symbol, func(ctx context.Context) (float64, error) {
		return s.provider.GetCurrentPrice(ctx, symbol)
	})
	if err != nil {
		return 0, fmt.Errorf("fetch %s price: %w", symbol, err)
	}
	return price, nil
}

// Publish stores the latest snapshot of a series for the dashboard.
func (s *MarketService) Publish(ctx context.Context, symbol, interval string, series domain.Series) {
	n := series.Len()
	if n == 0 || s.store == nil {
		return
	}
	md := domain.MarketData{
		Symbol:    symbol,
		Interval:  interval,
		Price:     series.Closes[n-1],
		Volume:    series.Volumes[n-1],
		UpdatedAt: s.timeNow().Unix(),
	}
	if first := series.Closes[0]; first > 0 {
		md.Change = (md.Price - first) / first * 100
	}
	if err := s.store.SetMarketData(ctx, md); err != nil {
		s.logger.Error("Failed to store market data", zap.String("symbol", symbol), zap.Error(err))
	}
}
