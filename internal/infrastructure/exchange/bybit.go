package exchange

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vitos/crypto_futures_dashboard/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	BybitBaseURL = "https://api.bybit.com"
	BybitWSURL   = "wss://stream.bybit.com/v5/public/linear"

	// Prices from the ticker stream older than this fall back to REST.
	wsPriceTTL = 15 * time.Second
)

// Bybit retCodes that mean the credentials are unusable.
var bybitAuthCodes = map[int]bool{
	10003: true, // invalid api key
	10004: true, // invalid signature
	10005: true, // permission denied
	10007: true, // user authentication failed
	33004: true, // api key expired
}

type bybitEnvelope struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
}

type wsPrice struct {
	price float64
	at    time.Time
}

// BybitAdapter implements MarketDataProvider and ExecutionGateway against
// the Bybit v5 linear (USDT perpetual) API.
type BybitAdapter struct {
	apiKey    string
	apiSecret string
	baseURL   string
	wsURL     string
	client    *http.Client
	limiter   *rate.Limiter
	logger    *zap.Logger

	wsConn    *websocket.Conn
	prices    map[string]wsPrice
	callbacks []func(symbol string, price float64)
	mu        sync.Mutex
}

func NewBybitAdapter(apiKey, apiSecret, baseURL, wsURL string, logger *zap.Logger) *BybitAdapter {
	if baseURL == "" {
		baseURL = BybitBaseURL
	}
	if wsURL == "" {
		wsURL = BybitWSURL
	}
	return &BybitAdapter{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		baseURL:   baseURL,
		wsURL:     wsURL,
		client:    &http.Client{Timeout: 10 * time.Second},
		limiter:   rate.NewLimiter(rate.Limit(10), 20),
		logger:    logger,
		prices:    make(map[string]wsPrice),
	}
}

// --- REST API ---

func (b *BybitAdapter) sign(params string, timestamp int64, recvWindow int) string {
	// timestamp + apiKey + recvWindow + params
	toSign := fmt.Sprintf("%d%s%d%s", timestamp, b.apiKey, recvWindow, params)
	h := hmac.New(sha256.New, []byte(b.apiSecret))
	h.Write([]byte(toSign))
	return hex.EncodeToString(h.Sum(nil))
}

// sendRequest performs a signed call and returns the envelope's result
// after translating non-zero retCodes.
func (b *BybitAdapter) sendRequest(ctx context.Context, method, path string, payload map[string]interface{}) (json.RawMessage, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	timestamp := time.Now().UnixMilli()
	recvWindow := 5000

	var body []byte
	var paramsStr string

	if payload != nil {
		jsonBody, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = jsonBody
		paramsStr = string(jsonBody)
	} else if method == http.MethodGet {
		if idx := strings.Index(path, "?"); idx != -1 {
			paramsStr = path[idx+1:]
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}

	if b.apiKey != "" {
		req.Header.Set("X-BAPI-API-KEY", b.apiKey)
		req.Header.Set("X-BAPI-TIMESTAMP", strconv.FormatInt(timestamp, 10))
		req.Header.Set("X-BAPI-SIGN", b.sign(paramsStr, timestamp, recvWindow))
		req.Header.Set("X-BAPI-RECV-WINDOW", strconv.Itoa(recvWindow))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, translateTransportError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("%w: bybit http %d", domain.ErrAuthentication, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("bybit http %d: %s", resp.StatusCode, string(respBody))
	}

	var env bybitEnvelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return nil, fmt.Errorf("decode bybit response: %w", err)
	}
	if env.RetCode != 0 {
		if bybitAuthCodes[env.RetCode] {
			return nil, fmt.Errorf("%w: bybit %d %s", domain.ErrAuthentication, env.RetCode, env.RetMsg)
		}
		return nil, fmt.Errorf("bybit error %d: %s", env.RetCode, env.RetMsg)
	}
	return env.Result, nil
}

// GetTickers returns 24h stats for every linear contract.
func (b *BybitAdapter) GetTickers(ctx context.Context) ([]domain.Ticker, error) {
	res, err := b.sendRequest(ctx, http.MethodGet, "/v5/market/tickers?category=linear", nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		List []struct {
			Symbol       string `json:"symbol"`
			LastPrice    string `json:"lastPrice"`
			Price24hPcnt string `json:"price24hPcnt"`
			Turnover24h  string `json:"turnover24h"`
		} `json:"list"`
	}
	if err := json.Unmarshal(res, &result); err != nil {
		return nil, err
	}

	tickers := make([]domain.Ticker, 0, len(result.List))
	for _, t := range result.List {
		last, _ := strconv.ParseFloat(t.LastPrice, 64)
		pcnt, _ := strconv.ParseFloat(t.Price24hPcnt, 64)
		turnover, _ := strconv.ParseFloat(t.Turnover24h, 64)
		tickers = append(tickers, domain.Ticker{
			Symbol:         t.Symbol,
			LastPrice:      last,
			Price24hPcnt:   pcnt * 100,
			QuoteVolume24h: turnover,
		})
	}
	return tickers, nil
}

func (b *BybitAdapter) GetTopSymbols(ctx context.Context, limit int) ([]string, error) {
	tickers, err := b.GetTickers(ctx)
	if err != nil {
		return nil, err
	}
	return TopUSDTSymbols(tickers, limit), nil
}

func (b *BybitAdapter) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	b.mu.Lock()
	p, ok := b.prices[symbol]
	b.mu.Unlock()
	if ok && time.Since(p.at) < wsPriceTTL {
		return p.price, nil
	}

	res, err := b.sendRequest(ctx, http.MethodGet, "/v5/market/tickers?category=linear&symbol="+symbol, nil)
	if err != nil {
		return 0, err
	}
	var result struct {
		List []struct {
			LastPrice string `json:"lastPrice"`
		} `json:"list"`
	}
	if err := json.Unmarshal(res, &result); err != nil {
		return 0, err
	}
	if len(result.List) == 0 {
		return 0, fmt.Errorf("symbol %s: %w", symbol, domain.ErrNotFound)
	}
	return strconv.ParseFloat(result.List[0].LastPrice, 64)
}

func (b *BybitAdapter) GetOHLCV(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error) {
	path := fmt.Sprintf("/v5/market/kline?category=linear&symbol=%s&interval=%s&limit=%d", symbol, bybitInterval(interval), limit)
	res, err := b.sendRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		List [][]string `json:"list"`
	}
	if err := json.Unmarshal(res, &result); err != nil {
		return nil, err
	}

	candles := make([]domain.Candle, 0, len(result.List))
	for _, raw := range result.List {
		// [startTime, open, high, low, close, volume, turnover]
		if len(raw) < 6 {
			continue
		}
		ts, _ := strconv.ParseInt(raw[0], 10, 64)
		open, _ := strconv.ParseFloat(raw[1], 64)
		high, _ := strconv.ParseFloat(raw[2], 64)
		low, _ := strconv.ParseFloat(raw[3], 64)
		closePrice, _ := strconv.ParseFloat(raw[4], 64)
		volume, _ := strconv.ParseFloat(raw[5], 64)
		candles = append(candles, domain.Candle{
			Time:   ts / 1000,
			Open:   open,
			High:   high,
			Low:    low,
			Close:  closePrice,
			Volume: volume,
		})
	}

	// Bybit returns newest first.
	for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
		candles[i], candles[j] = candles[j], candles[i]
	}
	return candles, nil
}

func (b *BybitAdapter) setLeverage(ctx context.Context, symbol string, leverage int) {
	payload := map[string]interface{}{
		"category":     "linear",
		"symbol":       symbol,
		"buyLeverage":  strconv.Itoa(leverage),
		"sellLeverage": strconv.Itoa(leverage),
	}
	// Fails with "leverage not modified" when unchanged.
	if _, err := b.sendRequest(ctx, http.MethodPost, "/v5/position/set-leverage", payload); err != nil {
		b.logger.Debug("Set leverage skipped", zap.String("symbol", symbol), zap.Error(err))
	}
}

func (b *BybitAdapter) SubmitOrder(ctx context.Context, req domain.OrderRequest) (*domain.Fill, error) {
	if !req.ReduceOnly && req.Leverage > 0 {
		b.setLeverage(ctx, req.Symbol, req.Leverage)
	}

	side := "Buy"
	if req.Side == domain.SideShort {
		side = "Sell"
	}
	payload := map[string]interface{}{
		"category":  "linear",
		"symbol":    req.Symbol,
		"side":      side,
		"orderType": "Market",
		"qty":       formatFloat(req.Quantity),
	}
	if req.Type == domain.OrderTypeLimit {
		payload["orderType"] = "Limit"
		payload["price"] = formatFloat(req.Price)
		payload["timeInForce"] = "GTC"
	}
	if req.ReduceOnly {
		payload["reduceOnly"] = true
	} else {
		if req.StopLoss > 0 {
			payload["stopLoss"] = formatFloat(req.StopLoss)
		}
		if req.TakeProfit > 0 {
			payload["takeProfit"] = formatFloat(req.TakeProfit)
		}
	}

	res, err := b.sendRequest(ctx, http.MethodPost, "/v5/order/create", payload)
	if err != nil {
		return nil, err
	}
	var result struct {
		OrderID string `json:"orderId"`
	}
	if err := json.Unmarshal(res, &result); err != nil {
		return nil, err
	}

	// The create endpoint does not report a fill price.
	price := req.Price
	if req.Type != domain.OrderTypeLimit {
		if p, err := b.GetCurrentPrice(ctx, req.Symbol); err == nil {
			price = p
		}
	}

	b.logger.Info("Bybit order placed",
		zap.String("symbol", req.Symbol),
		zap.String("side", side),
		zap.Float64("qty", req.Quantity),
		zap.String("order_id", result.OrderID))
	return &domain.Fill{
		OrderID:  result.OrderID,
		Symbol:   req.Symbol,
		Side:     req.Side,
		Quantity: req.Quantity,
		Price:    price,
		FilledAt: time.Now(),
	}, nil
}

func (b *BybitAdapter) GetOpenPositions(ctx context.Context) ([]*domain.Position, error) {
	res, err := b.sendRequest(ctx, http.MethodGet, "/v5/position/list?category=linear&settleCoin=USDT", nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		List []struct {
			Symbol        string `json:"symbol"`
			Side          string `json:"side"`
			Size          string `json:"size"`
			AvgPrice      string `json:"avgPrice"`
			MarkPrice     string `json:"markPrice"`
			LiqPrice      string `json:"liqPrice"`
			UnrealisedPnl string `json:"unrealisedPnl"`
			Leverage      string `json:"leverage"`
			StopLoss      string `json:"stopLoss"`
			TakeProfit    string `json:"takeProfit"`
		} `json:"list"`
	}
	if err := json.Unmarshal(res, &result); err != nil {
		return nil, err
	}

	var positions []*domain.Position
	for _, raw := range result.List {
		size, _ := strconv.ParseFloat(raw.Size, 64)
		if size == 0 {
			continue
		}
		entry, _ := strconv.ParseFloat(raw.AvgPrice, 64)
		mark, _ := strconv.ParseFloat(raw.MarkPrice, 64)
		liq, _ := strconv.ParseFloat(raw.LiqPrice, 64)
		pnl, _ := strconv.ParseFloat(raw.UnrealisedPnl, 64)
		lev, _ := strconv.Atoi(raw.Leverage)
		sl, _ := strconv.ParseFloat(raw.StopLoss, 64)
		tp, _ := strconv.ParseFloat(raw.TakeProfit, 64)

		side := domain.SideLong
		if raw.Side == "Sell" {
			side = domain.SideShort
		}
		positions = append(positions, &domain.Position{
			Symbol:           raw.Symbol,
			Side:             side,
			Size:             size,
			Leverage:         lev,
			EntryPrice:       entry,
			CurrentPrice:     mark,
			PnL:              pnl,
			Status:           domain.PositionOpen,
			StopLoss:         sl,
			TakeProfit:       tp,
			LiquidationPrice: liq,
			Mode:             domain.ModeReal,
		})
	}
	return positions, nil
}

func (b *BybitAdapter) GetBalance(ctx context.Context) (*domain.Balance, error) {
	res, err := b.sendRequest(ctx, http.MethodGet, "/v5/account/wallet-balance?accountType=UNIFIED", nil)
	if err != nil {
		return nil, err
	}
	var result struct {
		List []struct {
			TotalEquity           string `json:"totalEquity"`
			TotalAvailableBalance string `json:"totalAvailableBalance"`
		} `json:"list"`
	}
	if err := json.Unmarshal(res, &result); err != nil {
		return nil, err
	}
	if len(result.List) == 0 {
		return nil, fmt.Errorf("wallet balance: %w", domain.ErrNotFound)
	}
	total, _ := strconv.ParseFloat(result.List[0].TotalEquity, 64)
	avail, _ := strconv.ParseFloat(result.List[0].TotalAvailableBalance, 64)
	return &domain.Balance{Asset: "USDT", Total: total, Available: avail, UpdatedAt: time.Now()}, nil
}

// --- WebSocket ---

func (b *BybitAdapter) OnPriceUpdate(callback func(symbol string, price float64)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.callbacks = append(b.callbacks, callback)
}

// ConnectWS subscribes to the ticker stream for symbols, dialing on first use.
func (b *BybitAdapter) ConnectWS(symbols []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.wsConn != nil {
		return b.subscribe(symbols)
	}

	c, _, err := websocket.DefaultDialer.Dial(b.wsURL, nil)
	if err != nil {
		return translateTransportError(err)
	}
	b.wsConn = c

	go b.readLoop(c)

	return b.subscribe(symbols)
}

func (b *BybitAdapter) subscribe(symbols []string) error {
	if len(symbols) == 0 {
		return nil
	}
	args := make([]string, len(symbols))
	for i, s := range symbols {
		args[i] = "tickers." + s
	}
	return b.wsConn.WriteJSON(map[string]interface{}{
		"op":   "subscribe",
		"args": args,
	})
}

func (b *BybitAdapter) CloseWS() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.wsConn == nil {
		return nil
	}
	return b.wsConn.Close()
}

func (b *BybitAdapter) readLoop(conn *websocket.Conn) {
	defer func() {
		conn.Close()
		b.mu.Lock()
		if b.wsConn == conn {
			b.wsConn = nil
		}
		b.mu.Unlock()
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			b.logger.Warn("Bybit WS read error", zap.Error(err))
			return
		}

		var event struct {
			Topic string `json:"topic"`
			Data  struct {
				Symbol    string `json:"symbol"`
				LastPrice string `json:"lastPrice"`
			} `json:"data"`
		}
		if err := json.Unmarshal(message, &event); err != nil {
			b.logger.Debug("Bybit WS unmarshal error", zap.Error(err))
			continue
		}
		if !strings.HasPrefix(event.Topic, "tickers.") || event.Data.LastPrice == "" {
			continue
		}

		symbol := strings.TrimPrefix(event.Topic, "tickers.")
		price, err := strconv.ParseFloat(event.Data.LastPrice, 64)
		if err != nil {
			continue
		}

		b.mu.Lock()
		b.prices[symbol] = wsPrice{price: price, at: time.Now()}
		callbacks := make([]func(string, float64), len(b.callbacks))
		copy(callbacks, b.callbacks)
		b.mu.Unlock()

		for _, cb := range callbacks {
			cb(symbol, price)
		}
	}
}

// bybitInterval maps "15m"/"1h"/"1d" style intervals onto Bybit's codes.
func bybitInterval(interval string) string {
	switch interval {
	case "1m", "3m", "5m", "15m", "30m":
		return strings.TrimSuffix(interval, "m")
	case "1h":
		return "60"
	case "2h":
		return "120"
	case "4h":
		return "240"
	case "6h":
		return "360"
	case "12h":
		return "720"
	case "1d":
		return "D"
	case "1w":
		return "W"
	}
	return interval
}

// TopUSDTSymbols ranks USDT-quoted tickers by 24h quote volume.
func TopUSDTSymbols(tickers []domain.Ticker, limit int) []string {
	filtered := make([]domain.Ticker, 0, len(tickers))
	for _, t := range tickers {
		if strings.HasSuffix(t.Symbol, "USDT") && t.QuoteVolume24h > 0 {
			filtered = append(filtered, t)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].QuoteVolume24h > filtered[j].QuoteVolume24h
	})
	if limit > 0 && len(filtered) > limit {
		filtered = filtered[:limit]
	}
	symbols := make([]string, len(filtered))
	for i, t := range filtered {
		symbols[i] = t.Symbol
	}
	return symbols
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
