package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vitos/crypto_futures_dashboard/internal/domain"
	"go.uber.org/zap"
)

const (
	colPositions     = "positions"
	colSignals       = "signals"
	colMarketData    = "market_data"
	colBalance       = "balance"
	colTradingConfig = "trading_config"
	colAppStatus     = "app_status"
	colConnection    = "connection_status"

	maxSignalHistory = 500
)

// Store is the in-process StateStore. Memory is authoritative; every
// mutation re-writes the affected collection to the backend. A single lock
// guards the read-modify-persist cycle and waiters acquire it in FIFO order.
type Store struct {
	backend Backend
	logger  *zap.Logger
	lock    chan struct{}

	positions     []domain.Position
	signals       []domain.Signal
	marketData    map[string]domain.MarketData
	balance       domain.Balance
	tradingConfig domain.TradingConfig
	appStatus     domain.AppStatus
	connection    domain.ConnectionStatus
}

// NewStore loads every collection from backend, falling back to defaults
// for the ones never saved.
func NewStore(ctx context.Context, backend Backend, defaults domain.TradingConfig, logger *zap.Logger) (*Store, error) {
	if backend == nil {
		backend = NopBackend{}
	}
	s := &Store{
		backend:       backend,
		logger:        logger,
		lock:          make(chan struct{}, 1),
		marketData:    make(map[string]domain.MarketData),
		tradingConfig: defaults,
		appStatus:     domain.AppStatus{TradingMode: domain.ModeVirtual},
	}

	loads := []struct {
		name string
		dst  any
	}{
		{colPositions, &s.positions},
		{colSignals, &s.signals},
		{colMarketData, &s.marketData},
		{colBalance, &s.balance},
		{colTradingConfig, &s.tradingConfig},
		{colAppStatus, &s.appStatus},
		{colConnection, &s.connection},
	}
	for _, l := range loads {
		data, err := backend.Load(ctx, l.name)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", l.name, err)
		}
		if len(data) == 0 {
			continue
		}
		if err := json.Unmarshal(data, l.dst); err != nil {
			return nil, fmt.Errorf("decode %s: %w", l.name, err)
		}
	}
	if s.marketData == nil {
		s.marketData = make(map[string]domain.MarketData)
	}
	if !s.appStatus.TradingMode.Valid() {
		s.appStatus.TradingMode = domain.ModeVirtual
	}

	logger.Info("State store loaded",
		zap.Int("positions", len(s.positions)),
		zap.Int("signals", len(s.signals)),
		zap.String("mode", string(s.appStatus.TradingMode)))
	return s, nil
}

func (s *Store) acquire(ctx context.Context) error {
	select {
	case s.lock <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) release() {
	<-s.lock
}

// persist writes a collection snapshot. Failures are logged only.
func (s *Store) persist(ctx context.Context, collection string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("Failed to encode collection", zap.String("collection", collection), zap.Error(err))
		return
	}
	if err := s.backend.Save(ctx, collection, data); err != nil {
		s.logger.Error("Failed to persist collection", zap.String("collection", collection), zap.Error(err))
	}
}

func (s *Store) Close() error {
	return s.backend.Close()
}

// Positions

func (s *Store) ListPositions(ctx context.Context) ([]domain.Position, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()
	out := make([]domain.Position, len(s.positions))
	copy(out, s.positions)
	return out, nil
}

func (s *Store) GetPosition(ctx context.Context, id string) (*domain.Position, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()
	for _, p := range s.positions {
		if p.ID == id {
			return &p, nil
		}
	}
	return nil, fmt.Errorf("position %s: %w", id, domain.ErrNotFound)
}

// SavePosition upserts by ID. A CLOSED position is never overwritten.
func (s *Store) SavePosition(ctx context.Context, p domain.Position) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	found := false
	for i := range s.positions {
		if s.positions[i].ID != p.ID {
			continue
		}
		if !s.positions[i].IsOpen() {
			return fmt.Errorf("%w: position %s is closed", domain.ErrInvalidRequest, p.ID)
		}
		s.positions[i] = p
		found = true
		break
	}
	if !found {
		s.positions = append(s.positions, p)
	}
	s.persist(ctx, colPositions, s.positions)
	return nil
}

func (s *Store) CountOpenPositions(ctx context.Context) (int, error) {
	if err := s.acquire(ctx); err != nil {
		return 0, err
	}
	defer s.release()
	n := 0
	for _, p := range s.positions {
		if p.IsOpen() {
			n++
		}
	}
	return n, nil
}

// Signals

func (s *Store) ListSignals(ctx context.Context) ([]domain.Signal, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()
	out := make([]domain.Signal, len(s.signals))
	copy(out, s.signals)
	return out, nil
}

func (s *Store) ReplacePendingSignals(ctx context.Context, signals []domain.Signal) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	for i := range s.signals {
		if s.signals[i].Status == domain.SignalPending {
			s.signals[i].Status = domain.SignalExpired
		}
	}
	s.signals = append(s.signals, signals...)
	if extra := len(s.signals) - maxSignalHistory; extra > 0 {
		s.signals = append([]domain.Signal(nil), s.signals[extra:]...)
	}
	s.persist(ctx, colSignals, s.signals)
	return nil
}

func (s *Store) UpdateSignal(ctx context.Context, sig domain.Signal) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()
	for i := range s.signals {
		if s.signals[i].ID == sig.ID {
			s.signals[i] = sig
			s.persist(ctx, colSignals, s.signals)
			return nil
		}
	}
	return fmt.Errorf("signal %s: %w", sig.ID, domain.ErrNotFound)
}

// Market data

func (s *Store) GetMarketData(ctx context.Context) (map[string]domain.MarketData, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()
	out := make(map[string]domain.MarketData, len(s.marketData))
	for k, v := range s.marketData {
		out[k] = v
	}
	return out, nil
}

func (s *Store) SetMarketData(ctx context.Context, md domain.MarketData) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()
	s.marketData[md.Symbol] = md
	s.persist(ctx, colMarketData, s.marketData)
	return nil
}

// Singletons

func (s *Store) GetBalance(ctx context.Context) (domain.Balance, error) {
	if err := s.acquire(ctx); err != nil {
		return domain.Balance{}, err
	}
	defer s.release()
	return s.balance, nil
}

func (s *Store) SetBalance(ctx context.Context, b domain.Balance) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()
	s.balance = b
	s.persist(ctx, colBalance, s.balance)
	return nil
}

func (s *Store) GetTradingConfig(ctx context.Context) (domain.TradingConfig, error) {
	if err := s.acquire(ctx); err != nil {
		return domain.TradingConfig{}, err
	}
	defer s.release()
	return s.tradingConfig, nil
}

func (s *Store) SetTradingConfig(ctx context.Context, c domain.TradingConfig) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()
	s.tradingConfig = c
	s.persist(ctx, colTradingConfig, s.tradingConfig)
	return nil
}

func (s *Store) GetAppStatus(ctx context.Context) (domain.AppStatus, error) {
	if err := s.acquire(ctx); err != nil {
		return domain.AppStatus{}, err
	}
	defer s.release()
	return s.appStatus, nil
}

func (s *Store) SetAppStatus(ctx context.Context, st domain.AppStatus) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()
	s.appStatus = st
	s.persist(ctx, colAppStatus, s.appStatus)
	return nil
}

func (s *Store) GetConnectionStatus(ctx context.Context) (domain.ConnectionStatus, error) {
	if err := s.acquire(ctx); err != nil {
		return domain.ConnectionStatus{}, err
	}
	defer s.release()
	return s.connection, nil
}

func (s *Store) SetConnectionStatus(ctx context.Context, cs domain.ConnectionStatus) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()
	s.connection = cs
	s.persist(ctx, colConnection, s.connection)
	return nil
}
