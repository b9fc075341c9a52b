package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/vitos/crypto_futures_dashboard/internal/domain"
	"github.com/vitos/crypto_futures_dashboard/internal/indicator"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type ScannerConfig struct {
	UniverseSize    int     `yaml:"universe_size"`
	CandleLimit     int     `yaml:"candle_limit"`
	Concurrency     int     `yaml:"concurrency"`
	MinScoreVirtual float64 `yaml:"min_score_virtual"`
	MinScoreReal    float64 `yaml:"min_score_real"`
}

func DefaultScannerConfig() ScannerConfig {
	return ScannerConfig{
		UniverseSize:    30,
		CandleLimit:     100,
		Concurrency:     8,
		MinScoreVirtual: 40,
		MinScoreReal:    50,
	}
}

// MinScore is stricter for real-money trading.
func (c ScannerConfig) MinScore(mode domain.TradingMode) float64 {
	if mode == domain.ModeReal {
		return c.MinScoreReal
	}
	return c.MinScoreVirtual
}

// SignalScanner turns market data for many symbols into a ranked signal list.
type SignalScanner struct {
	market  *MarketService
	store   domain.StateStore
	logger  *zap.Logger
	cfg     ScannerConfig
	newID   func() string
	timeNow func() time.Time
}

func NewSignalScanner(market *MarketService, store domain.StateStore, cfg ScannerConfig, logger *zap.Logger) *SignalScanner {
	def := DefaultScannerConfig()
	if cfg.UniverseSize <= 0 {
		cfg.UniverseSize = def.UniverseSize
	}
	if cfg.CandleLimit < indicator.MinSamples {
		cfg.CandleLimit = def.CandleLimit
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.MinScoreVirtual <= 0 {
		cfg.MinScoreVirtual = def.MinScoreVirtual
	}
	if cfg.MinScoreReal <= 0 {
		cfg.MinScoreReal = def.MinScoreReal
	}
	return &SignalScanner{
		market:  market,
		store:   store,
		logger:  logger,
		cfg:     cfg,
		newID:   uuid.NewString,
		timeNow: time.Now,
	}
}

// ScanSignals is the entry point used by the API: it scans in the current trading mode.
func (s *SignalScanner) ScanSignals(ctx context.Context, interval string, limit int) ([]domain.Signal, error) {
	status, err := s.store.GetAppStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("read app status: %w", err)
	}
	return s.Scan(ctx, interval, limit, status.TradingMode)
}

// Scan scores the symbol universe, keeps the topN signals above the mode's
// minimum score and persists them as the new pending batch. Per-symbol
// failures are logged and skipped, unless every symbol failed and at least
// one failure was fatal.
func (s *SignalScanner) Scan(ctx context.Context, interval string, topN int, mode domain.TradingMode) ([]domain.Signal, error) {
	tradingCfg, err := s.store.GetTradingConfig(ctx)
	if err != nil {
		s.logger.Warn("Using default trading config for scan", zap.Error(err))
		tradingCfg = domain.DefaultTradingConfig()
	}
	if interval == "" {
		interval = tradingCfg.Interval
	}
	if topN <= 0 {
		topN = tradingCfg.TopN
	}

	start := s.timeNow()
	symbols := s.market.TopSymbols(ctx, s.cfg.UniverseSize)
	minScore := s.cfg.MinScore(mode)
	enhCfg := EnhancerConfigFrom(tradingCfg)

	results := make([]*domain.Signal, len(symbols))
	errs := make([]error, len(symbols))
	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for i, symbol := range symbols {
		g.Go(func() error {
			sig, err := s.scanSymbol(ctx, symbol, interval, minScore, enhCfg)
			if err != nil {
				errs[i] = err
				if errors.Is(err, domain.ErrInsufficientData) {
					s.logger.Warn("Skipping symbol", zap.String("symbol", symbol), zap.Error(err))
				} else {
					s.logger.Error("Symbol scan failed", zap.String("symbol", symbol), zap.Error(err))
				}
				return nil
			}
			results[i] = sig
			return nil
		})
	}
	_ = g.Wait()

	if err := fatalScanError(errs); err != nil {
		s.logger.Error("Every symbol failed", zap.Int("attempted", len(symbols)), zap.Error(err))
		return nil, fmt.Errorf("scan %d symbols: %w", len(symbols), err)
	}

	signals := make([]domain.Signal, 0, len(results))
	for _, r := range results {
		if r != nil {
			signals = append(signals, *r)
		}
	}
	signals = rankSignals(signals, topN)

	if len(signals) < len(symbols) {
		s.logger.Warn("Partial scan result",
			zap.Int("attempted", len(symbols)),
			zap.Int("signals", len(signals)))
	}

	if err := s.store.ReplacePendingSignals(ctx, signals); err != nil {
		s.logger.Error("Failed to persist signals", zap.Error(err))
	}

	s.logger.Info("Scan complete",
		zap.String("interval", interval),
		zap.String("mode", string(mode)),
		zap.Int("signals", len(signals)),
		zap.Duration("duration", s.timeNow().Sub(start)))
	return signals, nil
}

// fatalScanError returns the first fatal failure when no symbol could be
// scanned at all. A single reachable symbol keeps the scan alive.
func fatalScanError(errs []error) error {
	var fatal error
	for _, err := range errs {
		if err == nil {
			return nil
		}
		if fatal == nil && domain.IsFatal(err) {
			fatal = err
		}
	}
	return fatal
}

// scanSymbol returns (nil, nil) when the symbol simply has no signal.
func (s *SignalScanner) scanSymbol(ctx context.Context, symbol, interval string, minScore float64, enhCfg EnhancerConfig) (*domain.Signal, error) {
	series, err := s.market.Series(ctx, symbol, interval, s.cfg.CandleLimit)
	if err != nil {
		return nil, err
	}
	if series.Len() < indicator.MinSamples {
		return nil, fmt.Errorf("%w: %d samples", domain.ErrInsufficientData, series.Len())
	}
	s.market.Publish(ctx, symbol, interval, series)

	set := indicator.Calculate(series.Closes, series.Highs, series.Lows, series.Volumes)
	score := ScoreIndicators(set, series.LastClose(), indicator.Latest(series.Volumes))
	if score.BuyScore < minScore && score.SellScore < minScore {
		return nil, nil
	}

	direction := domain.DirectionBuy
	if score.SellScore > score.BuyScore {
		direction = domain.DirectionSell
	}

	sig := domain.Signal{
		ID:         s.newID(),
		Symbol:     symbol,
		Direction:  direction,
		EntryPrice: series.LastClose(),
		Interval:   interval,
		CreatedAt:  s.timeNow(),
		Status:     domain.SignalPending,
	}
	sig = EnhanceSignal(sig, set, score, enhCfg)
	sig = ApplyML(sig, series.Closes, series.Highs, series.Lows, series.Volumes)
	if sig.FinalScore < minScore {
		return nil, nil
	}
	return &sig, nil
}

// ProcessSignals re-blends pending signals against a fresh snapshot and
// drops those that no longer clear the minimum score. Symbols whose data
// cannot be refreshed keep their scan-time blend.
func (s *SignalScanner) ProcessSignals(ctx context.Context, signals []domain.Signal, mode domain.TradingMode) []domain.Signal {
	minScore := s.cfg.MinScore(mode)
	out := make([]domain.Signal, 0, len(signals))
	for _, sig := range signals {
		if sig.Status != domain.SignalPending {
			continue
		}
		series, err := s.market.Series(ctx, sig.Symbol, sig.Interval, s.cfg.CandleLimit)
		if err != nil || series.Len() < indicator.MinSamples {
			s.logger.Warn("Keeping scan-time blend", zap.String("symbol", sig.Symbol), zap.Error(err))
		} else {
			sig = ApplyML(sig, series.Closes, series.Highs, series.Lows, series.Volumes)
		}
		if sig.FinalScore < minScore {
			s.logger.Info("Signal dropped after re-blend",
				zap.String("symbol", sig.Symbol),
				zap.Float64("score", sig.FinalScore))
			continue
		}
		out = append(out, sig)
	}
	return rankSignals(out, 0)
}

// rankSignals sorts by final score descending and truncates to topN (0 = no limit).
func rankSignals(signals []domain.Signal, topN int) []domain.Signal {
	sort.SliceStable(signals, func(i, j int) bool {
		return signals[i].FinalScore > signals[j].FinalScore
	})
	if topN > 0 && len(signals) > topN {
		signals = signals[:topN]
	}
	return signals
}
