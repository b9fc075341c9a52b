package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vitos/crypto_futures_dashboard/internal/domain"
	"go.uber.org/zap"
)

const quantityPrecision = 6

// TradeRequest is a validated instruction to open a position.
type TradeRequest struct {
	Symbol           string           `json:"symbol"`
	Side             domain.Side      `json:"side"`
	Quantity         float64          `json:"quantity"`
	OrderType        domain.OrderType `json:"order_type"`
	Price            float64          `json:"price,omitempty"`
	Leverage         int              `json:"leverage,omitempty"`
	StopLoss         float64          `json:"stop_loss,omitempty"`
	TakeProfit       float64          `json:"take_profit,omitempty"`
	LiquidationPrice float64          `json:"liquidation_price,omitempty"`
	TrailingStop     float64          `json:"trailing_stop,omitempty"`
	SignalID         string           `json:"signal_id,omitempty"`
}

func (r TradeRequest) Validate() error {
	if strings.TrimSpace(r.Symbol) == "" {
		return fmt.Errorf("%w: symbol is required", domain.ErrInvalidRequest)
	}
	if r.Side != domain.SideLong && r.Side != domain.SideShort {
		return fmt.Errorf("%w: side must be LONG or SHORT", domain.ErrInvalidRequest)
	}
	if r.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive", domain.ErrInvalidRequest)
	}
	switch r.OrderType {
	case "", domain.OrderTypeMarket:
	case domain.OrderTypeLimit:
		if r.Price <= 0 {
			return fmt.Errorf("%w: limit order needs a price", domain.ErrInvalidRequest)
		}
	default:
		return fmt.Errorf("%w: unknown order type %q", domain.ErrInvalidRequest, r.OrderType)
	}
	if r.Leverage < 0 || r.Leverage > 125 {
		return fmt.Errorf("%w: leverage out of range", domain.ErrInvalidRequest)
	}
	return nil
}

// TradeRequestFromSignal builds the order for a pending signal.
func TradeRequestFromSignal(sig domain.Signal, quantity float64) TradeRequest {
	return TradeRequest{
		Symbol:           sig.Symbol,
		Side:             sig.Direction.Side(),
		Quantity:         quantity,
		OrderType:        domain.OrderTypeMarket,
		Leverage:         sig.Leverage,
		StopLoss:         sig.StopLoss,
		TakeProfit:       sig.TakeProfit,
		LiquidationPrice: sig.LiquidationPrice,
		TrailingStop:     sig.TrailingStop,
		SignalID:         sig.ID,
	}
}

// PositionSize converts a risk budget into a contract quantity:
// available * risk% * leverage / price, truncated to the quantity precision.
func PositionSize(available, riskPercent float64, leverage int, price float64) float64 {
	if available <= 0 || riskPercent <= 0 || price <= 0 {
		return 0
	}
	if leverage <= 0 {
		leverage = 1
	}
	qty := decimal.NewFromFloat(available).
		Mul(decimal.NewFromFloat(riskPercent)).
		Div(decimal.NewFromInt(100)).
		Mul(decimal.NewFromInt(int64(leverage))).
		Div(decimal.NewFromFloat(price)).
		Truncate(quantityPrecision)
	f, _ := qty.Float64()
	return f
}

// TradeExecutor routes orders to the gateway of the active trading mode and
// records the resulting positions.
type TradeExecutor struct {
	gateways map[domain.TradingMode]domain.ExecutionGateway
	market   *MarketService
	store    domain.StateStore
	logger   *zap.Logger
	policy   RetryPolicy
	newID    func() string
	timeNow  func() time.Time
}

// NewTradeExecutor wires the paper gateway for virtual mode and, when
// credentials exist, the exchange gateway for real mode. live may be nil.
func NewTradeExecutor(paper, live domain.ExecutionGateway, market *MarketService, store domain.StateStore, logger *zap.Logger) *TradeExecutor {
	gateways := map[domain.TradingMode]domain.ExecutionGateway{}
	if paper != nil {
		gateways[domain.ModeVirtual] = paper
	}
	if live != nil {
		gateways[domain.ModeReal] = live
	}
	return &TradeExecutor{
		gateways: gateways,
		market:   market,
		store:    store,
		logger:   logger,
		policy:   DefaultRetryPolicy(),
		newID:    uuid.NewString,
		timeNow:  time.Now,
	}
}

func (e *TradeExecutor) SetRetryPolicy(p RetryPolicy) {
	e.policy = p
}

func (e *TradeExecutor) gateway(mode domain.TradingMode) (domain.ExecutionGateway, error) {
	gw, ok := e.gateways[mode]
	if !ok {
		return nil, fmt.Errorf("%w: no execution gateway for %s mode", domain.ErrInvalidRequest, mode)
	}
	return gw, nil
}

// Supports reports whether a gateway is wired for mode.
func (e *TradeExecutor) Supports(mode domain.TradingMode) bool {
	_, ok := e.gateways[mode]
	return ok
}

func (e *TradeExecutor) currentMode(ctx context.Context) domain.TradingMode {
	status, err := e.store.GetAppStatus(ctx)
	if err != nil || !status.TradingMode.Valid() {
		return domain.ModeVirtual
	}
	return status.TradingMode
}

// ExecuteTrade submits the order in the current trading mode and persists
// the opened position. Submission is retried within the retry budget.
func (e *TradeExecutor) ExecuteTrade(ctx context.Context, req TradeRequest) (*domain.Position, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	mode := e.currentMode(ctx)
	gw, err := e.gateway(mode)
	if err != nil {
		return nil, err
	}

	if req.Leverage == 0 {
		cfg, err := e.store.GetTradingConfig(ctx)
		if err != nil {
			cfg = domain.DefaultTradingConfig()
		}
		req.Leverage = cfg.Leverage
	}
	if req.OrderType == "" {
		req.OrderType = domain.OrderTypeMarket
	}

	order := domain.OrderRequest{
		Symbol:     req.Symbol,
		Side:       req.Side,
		Quantity:   req.Quantity,
		Type:       req.OrderType,
		Price:      req.Price,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
		Leverage:   req.Leverage,
	}
	fill, err := Retry(ctx, e.policy, e.logger, "submit:"+req.Symbol, func(ctx context.Context) (*domain.Fill, error) {
		return gw.SubmitOrder(ctx, order)
	})
	if err != nil {
		e.logger.Error("Order failed",
			zap.String("symbol", req.Symbol),
			zap.String("side", string(req.Side)),
			zap.String("mode", string(mode)),
			zap.Error(err))
		return nil, fmt.Errorf("submit %s order: %w", req.Symbol, err)
	}

	now := e.timeNow()
	pos := domain.Position{
		ID:               e.newID(),
		Symbol:           req.Symbol,
		Side:             req.Side,
		Size:             req.Quantity,
		Leverage:         req.Leverage,
		EntryPrice:       fill.Price,
		CurrentPrice:     fill.Price,
		Status:           domain.PositionOpen,
		OpenTime:         now,
		StopLoss:         req.StopLoss,
		TakeProfit:       req.TakeProfit,
		LiquidationPrice: req.LiquidationPrice,
		TrailingStop:     req.TrailingStop,
		SignalID:         req.SignalID,
		Mode:             mode,
	}
	if fill.Quantity > 0 {
		pos.Size = fill.Quantity
	}
	if pos.EntryPrice <= 0 {
		pos.EntryPrice = e.fallbackPrice(ctx, req.Symbol, req.Price)
		pos.CurrentPrice = pos.EntryPrice
	}
	if fill.LiquidationPrice > 0 {
		pos.LiquidationPrice = fill.LiquidationPrice
	}

	if err := e.store.SavePosition(ctx, pos); err != nil {
		e.logger.Error("Failed to save position", zap.String("id", pos.ID), zap.Error(err))
	}
	if req.SignalID != "" {
		e.markSignalExecuted(ctx, req.SignalID, pos.EntryPrice, now)
	}
	e.refreshBalance(ctx, gw)

	e.logger.Info("Position opened",
		zap.String("id", pos.ID),
		zap.String("symbol", pos.Symbol),
		zap.String("side", string(pos.Side)),
		zap.Float64("size", pos.Size),
		zap.Float64("entry", pos.EntryPrice),
		zap.String("mode", string(mode)))
	return &pos, nil
}

// ClosePosition flattens an open position with a reduce-only market order.
func (e *TradeExecutor) ClosePosition(ctx context.Context, id string) (*domain.Position, error) {
	pos, err := e.store.GetPosition(ctx, id)
	if err != nil {
		return nil, err
	}
	if !pos.IsOpen() {
		return nil, fmt.Errorf("%w: position %s is already closed", domain.ErrInvalidRequest, id)
	}
	mode := pos.Mode
	if !mode.Valid() {
		mode = domain.ModeVirtual
	}
	gw, err := e.gateway(mode)
	if err != nil {
		return nil, err
	}

	closeSide := domain.SideShort
	if pos.Side == domain.SideShort {
		closeSide = domain.SideLong
	}
	order := domain.OrderRequest{
		Symbol:     pos.Symbol,
		Side:       closeSide,
		Quantity:   pos.Size,
		Type:       domain.OrderTypeMarket,
		Leverage:   pos.Leverage,
		ReduceOnly: true,
	}
	fill, err := Retry(ctx, e.policy, e.logger, "close:"+pos.Symbol, func(ctx context.Context) (*domain.Fill, error) {
		return gw.SubmitOrder(ctx, order)
	})
	if err != nil {
		return nil, fmt.Errorf("close %s: %w", pos.Symbol, err)
	}

	exit := fill.Price
	if exit <= 0 {
		exit = e.fallbackPrice(ctx, pos.Symbol, pos.CurrentPrice)
	}
	pos.Close(exit, e.timeNow())
	if err := e.store.SavePosition(ctx, *pos); err != nil {
		e.logger.Error("Failed to save closed position", zap.String("id", pos.ID), zap.Error(err))
	}
	e.refreshBalance(ctx, gw)

	e.logger.Info("Position closed",
		zap.String("id", pos.ID),
		zap.String("symbol", pos.Symbol),
		zap.Float64("exit", exit),
		zap.Float64("pnl", pos.PnL))
	return pos, nil
}

// Balance returns the balance of the gateway behind mode and stores it.
func (e *TradeExecutor) Balance(ctx context.Context, mode domain.TradingMode) (domain.Balance, error) {
	gw, err := e.gateway(mode)
	if err != nil {
		return domain.Balance{}, err
	}
	bal, err := Retry(ctx, e.policy, e.logger, "balance", func(ctx context.Context) (*domain.Balance, error) {
		return gw.GetBalance(ctx)
	})
	if err != nil {
		return domain.Balance{}, fmt.Errorf("fetch balance: %w", err)
	}
	if err := e.store.SetBalance(ctx, *bal); err != nil {
		e.logger.Error("Failed to store balance", zap.Error(err))
	}
	return *bal, nil
}

// OpenPositions reports what the gateway behind mode currently holds.
func (e *TradeExecutor) OpenPositions(ctx context.Context, mode domain.TradingMode) ([]*domain.Position, error) {
	gw, err := e.gateway(mode)
	if err != nil {
		return nil, err
	}
	return Retry(ctx, e.policy, e.logger, "positions", func(ctx context.Context) ([]*domain.Position, error) {
		return gw.GetOpenPositions(ctx)
	})
}

// fallbackPrice is used when a fill does not report an average price.
func (e *TradeExecutor) fallbackPrice(ctx context.Context, symbol string, known float64) float64 {
	if known > 0 || e.market == nil {
		return known
	}
	price, err := e.market.CurrentPrice(ctx, symbol)
	if err != nil {
		e.logger.Warn("No fill price available", zap.String("symbol", symbol), zap.Error(err))
		return 0
	}
	return price
}

func (e *TradeExecutor) refreshBalance(ctx context.Context, gw domain.ExecutionGateway) {
	bal, err := gw.GetBalance(ctx)
	if err != nil {
		e.logger.Warn("Failed to refresh balance", zap.Error(err))
		return
	}
	if err := e.store.SetBalance(ctx, *bal); err != nil {
		e.logger.Error("Failed to store balance", zap.Error(err))
	}
}

func (e *TradeExecutor) markSignalExecuted(ctx context.Context, id string, price float64, at time.Time) {
	signals, err := e.store.ListSignals(ctx)
	if err != nil {
		e.logger.Error("Failed to load signals", zap.Error(err))
		return
	}
	for _, s := range signals {
		if s.ID != id {
			continue
		}
		s.MarkExecuted(price, at)
		if err := e.store.UpdateSignal(ctx, s); err != nil && !errors.Is(err, domain.ErrNotFound) {
			e.logger.Error("Failed to update signal", zap.String("id", id), zap.Error(err))
		}
		return
	}
	e.logger.Warn("Executed signal not found", zap.String("id", id))
}
