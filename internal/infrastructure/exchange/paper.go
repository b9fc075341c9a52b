package exchange

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vitos/crypto_futures_dashboard/internal/domain"
	"go.uber.org/zap"
)

// PriceSource is the slice of a market data provider the paper gateway needs.
type PriceSource interface {
	GetCurrentPrice(ctx context.Context, symbol string) (float64, error)
}

// PaperGateway fills orders at the live price against a virtual balance.
// Positions are netted per symbol like an exchange in one-way mode.
type PaperGateway struct {
	prices  PriceSource
	logger  *zap.Logger
	timeNow func() time.Time

	mu        sync.Mutex
	total     float64
	available float64
	positions map[string]*domain.Position
}

func NewPaperGateway(prices PriceSource, startingBalance float64, logger *zap.Logger) *PaperGateway {
	return &PaperGateway{
		prices:    prices,
		logger:    logger,
		timeNow:   time.Now,
		total:     startingBalance,
		available: startingBalance,
		positions: make(map[string]*domain.Position),
	}
}

// Restore seeds the gateway from persisted state after a restart.
func (p *PaperGateway) Restore(bal domain.Balance, open []domain.Position) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if bal.Total > 0 {
		p.total = bal.Total
		p.available = bal.Available
	}
	for _, pos := range open {
		if !pos.IsOpen() || pos.Mode != domain.ModeVirtual {
			continue
		}
		cp := pos
		p.positions[pos.Symbol] = &cp
	}
}

func (p *PaperGateway) SubmitOrder(ctx context.Context, req domain.OrderRequest) (*domain.Fill, error) {
	if req.Quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", domain.ErrInvalidRequest)
	}
	price := req.Price
	if req.Type != domain.OrderTypeLimit || price <= 0 {
		live, err := p.prices.GetCurrentPrice(ctx, req.Symbol)
		if err != nil {
			return nil, fmt.Errorf("paper price %s: %w", req.Symbol, err)
		}
		price = live
	}
	if price <= 0 {
		return nil, fmt.Errorf("%w: no price for %s", domain.ErrInsufficientData, req.Symbol)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	fill := &domain.Fill{
		OrderID:  uuid.NewString(),
		Symbol:   req.Symbol,
		Side:     req.Side,
		Quantity: req.Quantity,
		Price:    price,
		FilledAt: p.timeNow(),
	}

	if req.ReduceOnly {
		if err := p.reduce(req, price); err != nil {
			return nil, err
		}
		return fill, nil
	}

	leverage := req.Leverage
	if leverage <= 0 {
		leverage = 1
	}
	margin := req.Quantity * price / float64(leverage)
	if margin > p.available {
		return nil, fmt.Errorf("%w: need %.2f, have %.2f", domain.ErrInsufficientBalance, margin, p.available)
	}

	pos, ok := p.positions[req.Symbol]
	if ok && pos.Side != req.Side {
		return nil, fmt.Errorf("%w: opposite %s position open on %s", domain.ErrInvalidRequest, pos.Side, req.Symbol)
	}
	if !ok {
		pos = &domain.Position{
			Symbol:   req.Symbol,
			Side:     req.Side,
			Leverage: leverage,
			Status:   domain.PositionOpen,
			OpenTime: fill.FilledAt,
			Mode:     domain.ModeVirtual,
		}
		p.positions[req.Symbol] = pos
	}
	pos.EntryPrice = (pos.EntryPrice*pos.Size + price*req.Quantity) / (pos.Size + req.Quantity)
	pos.Size += req.Quantity
	pos.LiquidationPrice = liquidationPrice(pos.Side, pos.EntryPrice, pos.Leverage)
	pos.Mark(price)
	p.available -= margin

	fill.LiquidationPrice = pos.LiquidationPrice
	p.logger.Info("Paper order filled",
		zap.String("symbol", req.Symbol),
		zap.String("side", string(req.Side)),
		zap.Float64("qty", req.Quantity),
		zap.Float64("price", price))
	return fill, nil
}

// reduce closes up to req.Quantity of the opposite-side position and
// releases its margin plus realised pnl. Caller holds p.mu.
func (p *PaperGateway) reduce(req domain.OrderRequest, price float64) error {
	pos, ok := p.positions[req.Symbol]
	if !ok || pos.Side == req.Side {
		return fmt.Errorf("%w: no %s position to reduce", domain.ErrNotFound, req.Symbol)
	}
	qty := req.Quantity
	if qty > pos.Size {
		qty = pos.Size
	}
	diff := price - pos.EntryPrice
	if pos.Side == domain.SideShort {
		diff = -diff
	}
	pnl := diff * qty
	leverage := pos.Leverage
	if leverage <= 0 {
		leverage = 1
	}
	margin := qty * pos.EntryPrice / float64(leverage)

	p.available += margin + pnl
	p.total += pnl
	pos.Size -= qty
	if pos.Size <= 1e-12 {
		delete(p.positions, req.Symbol)
	} else {
		pos.Mark(price)
	}
	p.logger.Info("Paper position reduced",
		zap.String("symbol", req.Symbol),
		zap.Float64("qty", qty),
		zap.Float64("pnl", pnl))
	return nil
}

func (p *PaperGateway) GetOpenPositions(ctx context.Context) ([]*domain.Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*domain.Position, 0, len(p.positions))
	for _, pos := range p.positions {
		cp := *pos
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (p *PaperGateway) GetBalance(ctx context.Context) (*domain.Balance, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return &domain.Balance{
		Asset:     "USDT",
		Total:     p.total,
		Available: p.available,
		UpdatedAt: p.timeNow(),
	}, nil
}

func liquidationPrice(side domain.Side, entry float64, leverage int) float64 {
	if leverage <= 0 {
		return 0
	}
	const maintenanceMargin = 0.005
	if side == domain.SideShort {
		return entry * (1 + 1/float64(leverage) - maintenanceMargin)
	}
	return entry * (1 - 1/float64(leverage) + maintenanceMargin)
}
