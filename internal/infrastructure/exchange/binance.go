package exchange

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/vitos/crypto_futures_dashboard/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Binance error codes that mean the credentials are unusable.
var binanceAuthCodes = map[int64]bool{
	-2014: true, // API-key format invalid
	-2015: true, // invalid API-key, IP, or permissions
	-1022: true, // signature not valid
}

// BinanceAdapter implements MarketDataProvider and ExecutionGateway against
// Binance USDT-M futures.
type BinanceAdapter struct {
	client  *futures.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

func NewBinanceAdapter(apiKey, apiSecret string, testnet bool, logger *zap.Logger) *BinanceAdapter {
	if testnet {
		futures.UseTestnet = true
	}
	return &BinanceAdapter{
		client:  binance.NewFuturesClient(apiKey, apiSecret),
		limiter: rate.NewLimiter(rate.Limit(20), 40),
		logger:  logger,
	}
}

func (b *BinanceAdapter) wait(ctx context.Context) error {
	return b.limiter.Wait(ctx)
}

func (b *BinanceAdapter) GetTopSymbols(ctx context.Context, limit int) ([]string, error) {
	if err := b.wait(ctx); err != nil {
		return nil, err
	}
	stats, err := b.client.NewListPriceChangeStatsService().Do(ctx)
	if err != nil {
		return nil, translateBinanceError(err)
	}

	tickers := make([]domain.Ticker, 0, len(stats))
	for _, s := range stats {
		last, _ := strconv.ParseFloat(s.LastPrice, 64)
		pcnt, _ := strconv.ParseFloat(s.PriceChangePercent, 64)
		qv, _ := strconv.ParseFloat(s.QuoteVolume, 64)
		tickers = append(tickers, domain.Ticker{
			Symbol:         s.Symbol,
			LastPrice:      last,
			Price24hPcnt:   pcnt,
			QuoteVolume24h: qv,
		})
	}
	return TopUSDTSymbols(tickers, limit), nil
}

func (b *BinanceAdapter) GetOHLCV(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error) {
	if err := b.wait(ctx); err != nil {
		return nil, err
	}
	klines, err := b.client.NewKlinesService().
		Symbol(symbol).
		Interval(interval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, translateBinanceError(err)
	}

	// Binance already returns oldest first.
	candles := make([]domain.Candle, 0, len(klines))
	for _, k := range klines {
		open, _ := strconv.ParseFloat(k.Open, 64)
		high, _ := strconv.ParseFloat(k.High, 64)
		low, _ := strconv.ParseFloat(k.Low, 64)
		closePrice, _ := strconv.ParseFloat(k.Close, 64)
		volume, _ := strconv.ParseFloat(k.Volume, 64)
		candles = append(candles, domain.Candle{
			Time:   k.OpenTime / 1000,
			Open:   open,
			High:   high,
			Low:    low,
			Close:  closePrice,
			Volume: volume,
		})
	}
	return candles, nil
}

func (b *BinanceAdapter) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	if err := b.wait(ctx); err != nil {
		return 0, err
	}
	prices, err := b.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, translateBinanceError(err)
	}
	if len(prices) == 0 {
		return 0, fmt.Errorf("symbol %s: %w", symbol, domain.ErrNotFound)
	}
	return strconv.ParseFloat(prices[0].Price, 64)
}

func (b *BinanceAdapter) SubmitOrder(ctx context.Context, req domain.OrderRequest) (*domain.Fill, error) {
	if err := b.wait(ctx); err != nil {
		return nil, err
	}
	if !req.ReduceOnly && req.Leverage > 0 {
		if _, err := b.client.NewChangeLeverageService().Symbol(req.Symbol).Leverage(req.Leverage).Do(ctx); err != nil {
			if ferr := translateBinanceError(err); domain.IsFatal(ferr) {
				return nil, ferr
			}
			b.logger.Warn("Change leverage failed", zap.String("symbol", req.Symbol), zap.Error(err))
		}
	}

	side := futures.SideTypeBuy
	closeSide := futures.SideTypeSell
	if req.Side == domain.SideShort {
		side, closeSide = futures.SideTypeSell, futures.SideTypeBuy
	}
	qty := formatFloat(req.Quantity)

	svc := b.client.NewCreateOrderService().
		Symbol(req.Symbol).
		Side(side).
		Quantity(qty).
		NewOrderResponseType(futures.NewOrderRespTypeRESULT)
	if req.Type == domain.OrderTypeLimit {
		svc = svc.Type(futures.OrderTypeLimit).
			TimeInForce(futures.TimeInForceTypeGTC).
			Price(formatFloat(req.Price))
	} else {
		svc = svc.Type(futures.OrderTypeMarket)
	}
	if req.ReduceOnly {
		svc = svc.ReduceOnly(true)
	}

	res, err := svc.Do(ctx)
	if err != nil {
		return nil, translateBinanceError(err)
	}

	price, _ := strconv.ParseFloat(res.AvgPrice, 64)
	if price == 0 {
		price = req.Price
	}
	filled, _ := strconv.ParseFloat(res.ExecutedQuantity, 64)
	if filled == 0 {
		filled = req.Quantity
	}

	if !req.ReduceOnly {
		b.placeProtection(ctx, req, closeSide, qty)
	}

	b.logger.Info("Binance order placed",
		zap.String("symbol", req.Symbol),
		zap.String("side", string(side)),
		zap.String("qty", qty),
		zap.Int64("order_id", res.OrderID))
	return &domain.Fill{
		OrderID:  strconv.FormatInt(res.OrderID, 10),
		Symbol:   req.Symbol,
		Side:     req.Side,
		Quantity: filled,
		Price:    price,
		FilledAt: time.Now(),
	}, nil
}

// placeProtection attaches reduce-only stop-loss and take-profit triggers.
// Failures are logged; the entry is already filled.
func (b *BinanceAdapter) placeProtection(ctx context.Context, req domain.OrderRequest, closeSide futures.SideType, qty string) {
	if req.StopLoss > 0 {
		_, err := b.client.NewCreateOrderService().
			Symbol(req.Symbol).
			Side(closeSide).
			Type(futures.OrderTypeStopMarket).
			StopPrice(formatFloat(req.StopLoss)).
			WorkingType(futures.WorkingTypeMarkPrice).
			Quantity(qty).
			ReduceOnly(true).
			Do(ctx)
		if err != nil {
			b.logger.Error("Stop loss order failed", zap.String("symbol", req.Symbol), zap.Error(err))
		}
	}
	if req.TakeProfit > 0 {
		_, err := b.client.NewCreateOrderService().
			Symbol(req.Symbol).
			Side(closeSide).
			Type(futures.OrderTypeTakeProfitMarket).
			StopPrice(formatFloat(req.TakeProfit)).
			WorkingType(futures.WorkingTypeMarkPrice).
			Quantity(qty).
			ReduceOnly(true).
			Do(ctx)
		if err != nil {
			b.logger.Error("Take profit order failed", zap.String("symbol", req.Symbol), zap.Error(err))
		}
	}
}

func (b *BinanceAdapter) GetOpenPositions(ctx context.Context) ([]*domain.Position, error) {
	if err := b.wait(ctx); err != nil {
		return nil, err
	}
	risks, err := b.client.NewGetPositionRiskService().Do(ctx)
	if err != nil {
		return nil, translateBinanceError(err)
	}

	var positions []*domain.Position
	for _, p := range risks {
		amt, _ := strconv.ParseFloat(p.PositionAmt, 64)
		if amt == 0 {
			continue
		}
		entry, _ := strconv.ParseFloat(p.EntryPrice, 64)
		mark, _ := strconv.ParseFloat(p.MarkPrice, 64)
		liq, _ := strconv.ParseFloat(p.LiquidationPrice, 64)
		pnl, _ := strconv.ParseFloat(p.UnRealizedProfit, 64)
		lev, _ := strconv.Atoi(p.Leverage)

		side := domain.SideLong
		if amt < 0 {
			side = domain.SideShort
			amt = -amt
		}
		positions = append(positions, &domain.Position{
			Symbol:           p.Symbol,
			Side:             side,
			Size:             amt,
			Leverage:         lev,
			EntryPrice:       entry,
			CurrentPrice:     mark,
			PnL:              pnl,
			Status:           domain.PositionOpen,
			LiquidationPrice: liq,
			Mode:             domain.ModeReal,
		})
	}
	return positions, nil
}

func (b *BinanceAdapter) GetBalance(ctx context.Context) (*domain.Balance, error) {
	if err := b.wait(ctx); err != nil {
		return nil, err
	}
	acc, err := b.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, translateBinanceError(err)
	}
	for _, a := range acc.Assets {
		if a.Asset != "USDT" {
			continue
		}
		total, _ := strconv.ParseFloat(a.WalletBalance, 64)
		avail, _ := strconv.ParseFloat(a.AvailableBalance, 64)
		return &domain.Balance{Asset: "USDT", Total: total, Available: avail, UpdatedAt: time.Now()}, nil
	}
	return &domain.Balance{Asset: "USDT", UpdatedAt: time.Now()}, nil
}

// translateBinanceError maps API and transport errors onto domain sentinels.
func translateBinanceError(err error) error {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		if binanceAuthCodes[apiErr.Code] {
			return fmt.Errorf("%w: binance code=%d %s", domain.ErrAuthentication, apiErr.Code, apiErr.Message)
		}
		return fmt.Errorf("binance code=%d: %s", apiErr.Code, apiErr.Message)
	}
	return translateTransportError(err)
}
