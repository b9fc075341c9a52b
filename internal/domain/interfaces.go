package domain

import "context"

// MarketDataProvider is the read side of an exchange.
type MarketDataProvider interface {
	// GetTopSymbols returns USDT-quoted symbols ordered by 24h quote volume.
	GetTopSymbols(ctx context.Context, limit int) ([]string, error)
	// GetOHLCV returns candles oldest first.
	GetOHLCV(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)
	GetCurrentPrice(ctx context.Context, symbol string) (float64, error)
}

// ExecutionGateway places orders and reports account state.
type ExecutionGateway interface {
	SubmitOrder(ctx context.Context, req OrderRequest) (*Fill, error)
	GetOpenPositions(ctx context.Context) ([]*Position, error)
	GetBalance(ctx context.Context) (*Balance, error)
}

// StateStore is the durable key-value state shared by the core and the API.
type StateStore interface {
	ListPositions(ctx context.Context) ([]Position, error)
	GetPosition(ctx context.Context, id string) (*Position, error)
	SavePosition(ctx context.Context, p Position) error
	CountOpenPositions(ctx context.Context) (int, error)

	ListSignals(ctx context.Context) ([]Signal, error)
	// ReplacePendingSignals expires every PENDING signal and stores the new batch.
	ReplacePendingSignals(ctx context.Context, signals []Signal) error
	UpdateSignal(ctx context.Context, s Signal) error

	GetMarketData(ctx context.Context) (map[string]MarketData, error)
	SetMarketData(ctx context.Context, md MarketData) error

	GetBalance(ctx context.Context) (Balance, error)
	SetBalance(ctx context.Context, b Balance) error

	GetTradingConfig(ctx context.Context) (TradingConfig, error)
	SetTradingConfig(ctx context.Context, c TradingConfig) error

	GetAppStatus(ctx context.Context) (AppStatus, error)
	SetAppStatus(ctx context.Context, s AppStatus) error

	GetConnectionStatus(ctx context.Context) (ConnectionStatus, error)
	SetConnectionStatus(ctx context.Context, s ConnectionStatus) error
}
