package domain

import "time"

type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

type PositionStatus string

const (
	PositionOpen   PositionStatus = "OPEN"
	PositionClosed PositionStatus = "CLOSED"
)

// Position is an open or closed trade. Once CLOSED it is never mutated again.
type Position struct {
	ID               string         `json:"id"`
	Symbol           string         `json:"symbol"`
	Side             Side           `json:"side"`
	Size             float64        `json:"size"`
	Leverage         int            `json:"leverage"`
	EntryPrice       float64        `json:"entry_price"`
	CurrentPrice     float64        `json:"current_price"`
	ExitPrice        float64        `json:"exit_price,omitempty"`
	PnL              float64        `json:"pnl"`
	PnLPercent       float64        `json:"pnl_percent"`
	Status           PositionStatus `json:"status"`
	OpenTime         time.Time      `json:"open_time"`
	CloseTime        *time.Time     `json:"close_time,omitempty"`
	StopLoss         float64        `json:"stop_loss"`
	TakeProfit       float64        `json:"take_profit"`
	LiquidationPrice float64        `json:"liquidation_price"`
	TrailingStop     float64        `json:"trailing_stop"`
	SignalID         string         `json:"signal_id,omitempty"`
	Mode             TradingMode    `json:"mode"`
}

func (p *Position) IsOpen() bool {
	return p.Status == PositionOpen
}

// Margin is the collateral locked by the position.
func (p *Position) Margin() float64 {
	if p.Leverage <= 0 {
		return p.EntryPrice * p.Size
	}
	return p.EntryPrice * p.Size / float64(p.Leverage)
}

// Mark updates the current price and the derived pnl fields.
func (p *Position) Mark(price float64) {
	if !p.IsOpen() || price <= 0 {
		return
	}
	p.CurrentPrice = price
	diff := price - p.EntryPrice
	if p.Side == SideShort {
		diff = -diff
	}
	p.PnL = diff * p.Size
	if margin := p.Margin(); margin > 0 {
		p.PnLPercent = p.PnL / margin * 100
	}
}

// Close marks the position CLOSED at the given price.
func (p *Position) Close(price float64, at time.Time) {
	if !p.IsOpen() {
		return
	}
	p.Mark(price)
	p.ExitPrice = price
	p.Status = PositionClosed
	p.CloseTime = &at
}

type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// OrderRequest is what the core sends to an ExecutionGateway.
type OrderRequest struct {
	Symbol     string    `json:"symbol"`
	Side       Side      `json:"side"`
	Quantity   float64   `json:"quantity"`
	Type       OrderType `json:"order_type"`
	Price      float64   `json:"price,omitempty"`
	StopLoss   float64   `json:"stop_loss,omitempty"`
	TakeProfit float64   `json:"take_profit,omitempty"`
	Leverage   int       `json:"leverage"`
	ReduceOnly bool      `json:"reduce_only,omitempty"`
}

// Fill is the gateway's confirmation of an executed order.
type Fill struct {
	OrderID          string    `json:"order_id"`
	Symbol           string    `json:"symbol"`
	Side             Side      `json:"side"`
	Quantity         float64   `json:"quantity"`
	Price            float64   `json:"price"`
	LiquidationPrice float64   `json:"liquidation_price,omitempty"`
	FilledAt         time.Time `json:"filled_at"`
}

type Balance struct {
	Asset     string    `json:"asset"`
	Total     float64   `json:"total"`
	Available float64   `json:"available"`
	UpdatedAt time.Time `json:"updated_at"`
}
