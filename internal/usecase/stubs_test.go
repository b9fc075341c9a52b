package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vitos/crypto_futures_dashboard/internal/domain"
	"github.com/vitos/crypto_futures_dashboard/internal/infrastructure/storage"
	"go.uber.org/zap"
)

var errTransient = errors.New("connection reset by peer")

// stubProvider serves canned candles per symbol.
type stubProvider struct {
	mu        sync.Mutex
	symbols   []string
	topErr    error
	candles   map[string][]domain.Candle
	errs      map[string]error
	price     float64
	priceErr  error
	ohlcvHits map[string]int
}

func newStubProvider() *stubProvider {
	return &stubProvider{
		candles:   make(map[string][]domain.Candle),
		errs:      make(map[string]error),
		ohlcvHits: make(map[string]int),
	}
}

func (p *stubProvider) GetTopSymbols(ctx context.Context, limit int) ([]string, error) {
	if p.topErr != nil {
		return nil, p.topErr
	}
	return p.symbols, nil
}

func (p *stubProvider) GetOHLCV(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ohlcvHits[symbol]++
	if err := p.errs[symbol]; err != nil {
		return nil, err
	}
	return p.candles[symbol], nil
}

func (p *stubProvider) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	if p.priceErr != nil {
		return 0, p.priceErr
	}
	return p.price, nil
}

func (p *stubProvider) hits(symbol string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ohlcvHits[symbol]
}

// stubGateway fails the first failFirst submissions with submitErr.
type stubGateway struct {
	mu        sync.Mutex
	failFirst int
	submitErr error
	fillPrice float64
	calls     int
	orders    []domain.OrderRequest
	balance   domain.Balance
	positions []*domain.Position
	posErr    error
}

func newStubGateway() *stubGateway {
	return &stubGateway{
		fillPrice: 100,
		balance:   domain.Balance{Asset: "USDT", Total: 1000, Available: 1000},
	}
}

func (g *stubGateway) SubmitOrder(ctx context.Context, req domain.OrderRequest) (*domain.Fill, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.calls <= g.failFirst {
		return nil, g.submitErr
	}
	g.orders = append(g.orders, req)
	return &domain.Fill{
		OrderID:  "ord",
		Symbol:   req.Symbol,
		Side:     req.Side,
		Quantity: req.Quantity,
		Price:    g.fillPrice,
	}, nil
}

func (g *stubGateway) GetOpenPositions(ctx context.Context) ([]*domain.Position, error) {
	return g.positions, g.posErr
}

func (g *stubGateway) GetBalance(ctx context.Context) (*domain.Balance, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	b := g.balance
	return &b, nil
}

func (g *stubGateway) submitted() []domain.OrderRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]domain.OrderRequest(nil), g.orders...)
}

func newTestStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.NewStore(context.Background(), storage.NopBackend{}, domain.DefaultTradingConfig(), zap.NewNop())
	require.NoError(t, err)
	return store
}

func newTestMarket(provider domain.MarketDataProvider, store domain.StateStore) *MarketService {
	m := NewMarketService(provider, store, zap.NewNop())
	m.SetRetryPolicy(NoDelayRetryPolicy())
	return m
}

func newTestExecutor(gw domain.ExecutionGateway, market *MarketService, store domain.StateStore) *TradeExecutor {
	e := NewTradeExecutor(gw, nil, market, store, zap.NewNop())
	e.SetRetryPolicy(NoDelayRetryPolicy())
	return e
}

// descendingCandles builds n candles falling by 1 from start, with a volume
// spike on the last bar.
func descendingCandles(n int, start float64) []domain.Candle {
	out := make([]domain.Candle, n)
	for i := range out {
		c := start - float64(i)
		out[i] = domain.Candle{
			Time:   int64(i) * 60,
			Open:   c + 0.5,
			High:   c + 0.5,
			Low:    c - 0.5,
			Close:  c,
			Volume: 100,
		}
	}
	out[n-1].Volume = 1000
	return out
}

func columns(candles []domain.Candle) (closes, highs, lows, volumes []float64) {
	for _, c := range candles {
		closes = append(closes, c.Close)
		highs = append(highs, c.High)
		lows = append(lows, c.Low)
		volumes = append(volumes, c.Volume)
	}
	return
}
