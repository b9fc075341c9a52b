package usecase

import (
	"context"
	"time"

	"github.com/vitos/crypto_futures_dashboard/internal/domain"
	"go.uber.org/zap"
)

// PositionMonitor keeps OPEN positions marked to market. Virtual positions
// are closed locally when a protective level is crossed; real positions are
// reconciled against the exchange.
type PositionMonitor struct {
	market   *MarketService
	executor *TradeExecutor
	store    domain.StateStore
	logger   *zap.Logger
	exchange string
	timeNow  func() time.Time
}

func NewPositionMonitor(market *MarketService, executor *TradeExecutor, store domain.StateStore, exchange string, logger *zap.Logger) *PositionMonitor {
	return &PositionMonitor{
		market:   market,
		executor: executor,
		store:    store,
		logger:   logger,
		exchange: exchange,
		timeNow:  time.Now,
	}
}

// Run ticks until ctx is cancelled.
func (m *PositionMonitor) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.logger.Info("Position monitor started", zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Position monitor stopped")
			return
		case <-ticker.C:
			m.Tick(ctx)
		}
	}
}

// Tick runs one refresh pass.
func (m *PositionMonitor) Tick(ctx context.Context) {
	status, err := m.store.GetAppStatus(ctx)
	if err != nil {
		m.logger.Error("Monitor: failed to read app status", zap.Error(err))
		return
	}
	if status.TradingMode == domain.ModeReal {
		m.SyncAccount(ctx)
	}

	positions, err := m.store.ListPositions(ctx)
	if err != nil {
		m.logger.Error("Monitor: failed to list positions", zap.Error(err))
		return
	}
	for i := range positions {
		pos := positions[i]
		if !pos.IsOpen() {
			continue
		}
		price, err := m.market.CurrentPrice(ctx, pos.Symbol)
		if err != nil || price <= 0 {
			m.logger.Warn("Monitor: no price", zap.String("symbol", pos.Symbol), zap.Error(err))
			continue
		}
		pos.Mark(price)
		RatchetTrailingStop(&pos, price)

		if pos.Mode != domain.ModeReal {
			if reason := ExitReason(pos, price); reason != "" {
				m.logger.Info("Protective level hit",
					zap.String("id", pos.ID),
					zap.String("symbol", pos.Symbol),
					zap.String("reason", reason),
					zap.Float64("price", price))
				// Persist the ratcheted stop before the close reloads the position.
				if err := m.store.SavePosition(ctx, pos); err != nil {
					m.logger.Error("Monitor: failed to save position", zap.String("id", pos.ID), zap.Error(err))
				}
				if _, err := m.executor.ClosePosition(ctx, pos.ID); err != nil {
					m.logger.Error("Monitor: close failed", zap.String("id", pos.ID), zap.Error(err))
				}
				continue
			}
		}
		if err := m.store.SavePosition(ctx, pos); err != nil {
			m.logger.Error("Monitor: failed to save position", zap.String("id", pos.ID), zap.Error(err))
		}
	}
}

// SyncAccount pulls the exchange's view of positions and balance. Real
// positions the exchange no longer reports are closed at the last price.
func (m *PositionMonitor) SyncAccount(ctx context.Context) {
	remote, err := m.executor.OpenPositions(ctx, domain.ModeReal)
	m.recordConnection(ctx, err)
	if err != nil {
		m.logger.Error("Monitor: account sync failed", zap.Error(err))
		return
	}
	if _, err := m.executor.Balance(ctx, domain.ModeReal); err != nil {
		m.logger.Warn("Monitor: balance sync failed", zap.Error(err))
	}

	held := make(map[string]*domain.Position, len(remote))
	for _, p := range remote {
		held[p.Symbol+"/"+string(p.Side)] = p
	}

	local, err := m.store.ListPositions(ctx)
	if err != nil {
		m.logger.Error("Monitor: failed to list positions", zap.Error(err))
		return
	}
	for _, pos := range local {
		if !pos.IsOpen() || pos.Mode != domain.ModeReal {
			continue
		}
		r, ok := held[pos.Symbol+"/"+string(pos.Side)]
		if !ok {
			pos.Close(pos.CurrentPrice, m.timeNow())
			m.logger.Info("Position closed on exchange", zap.String("id", pos.ID), zap.String("symbol", pos.Symbol))
		} else {
			if r.LiquidationPrice > 0 {
				pos.LiquidationPrice = r.LiquidationPrice
			}
			pos.Mark(r.CurrentPrice)
		}
		if err := m.store.SavePosition(ctx, pos); err != nil {
			m.logger.Error("Monitor: failed to save position", zap.String("id", pos.ID), zap.Error(err))
		}
	}
}

func (m *PositionMonitor) recordConnection(ctx context.Context, err error) {
	cs := domain.ConnectionStatus{
		Exchange:  m.exchange,
		Connected: err == nil,
		UpdatedAt: m.timeNow(),
	}
	if err != nil {
		cs.LastError = err.Error()
	}
	if serr := m.store.SetConnectionStatus(ctx, cs); serr != nil {
		m.logger.Error("Monitor: failed to store connection status", zap.Error(serr))
	}
}

// RatchetTrailingStop moves the trailing stop in the position's favour, half
// the original stop distance behind price. It never moves backwards.
func RatchetTrailingStop(pos *domain.Position, price float64) {
	if pos.TrailingStop <= 0 || pos.StopLoss <= 0 {
		return
	}
	if pos.Side == domain.SideShort {
		dist := (pos.StopLoss - pos.EntryPrice) * trailingStopFraction
		if candidate := Round(price + dist); dist > 0 && candidate < pos.TrailingStop {
			pos.TrailingStop = candidate
		}
		return
	}
	dist := (pos.EntryPrice - pos.StopLoss) * trailingStopFraction
	if candidate := Round(price - dist); dist > 0 && candidate > pos.TrailingStop {
		pos.TrailingStop = candidate
	}
}

// ExitReason names the protective level crossed at price, or "".
// The trailing stop only arms once it has moved past the entry.
func ExitReason(pos domain.Position, price float64) string {
	if pos.Side == domain.SideShort {
		switch {
		case pos.LiquidationPrice > 0 && price >= pos.LiquidationPrice:
			return "liquidation"
		case pos.StopLoss > 0 && price >= pos.StopLoss:
			return "stop_loss"
		case pos.TakeProfit > 0 && price <= pos.TakeProfit:
			return "take_profit"
		case pos.TrailingStop > 0 && pos.TrailingStop < pos.EntryPrice && price >= pos.TrailingStop:
			return "trailing_stop"
		}
		return ""
	}
	switch {
	case pos.LiquidationPrice > 0 && price <= pos.LiquidationPrice:
		return "liquidation"
	case pos.StopLoss > 0 && price <= pos.StopLoss:
		return "stop_loss"
	case pos.TakeProfit > 0 && price >= pos.TakeProfit:
		return "take_profit"
	case pos.TrailingStop > pos.EntryPrice && price <= pos.TrailingStop:
		return "trailing_stop"
	}
	return ""
}
