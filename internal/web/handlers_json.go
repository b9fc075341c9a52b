package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/vitos/crypto_futures_dashboard/internal/config"
	"github.com/vitos/crypto_futures_dashboard/internal/domain"
	"github.com/vitos/crypto_futures_dashboard/internal/usecase"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 16

var validIntervals = map[string]bool{
	"1m": true, "3m": true, "5m": true, "15m": true, "30m": true,
	"1h": true, "2h": true, "4h": true, "6h": true, "12h": true, "1d": true,
}

type scanRequest struct {
	Interval string `json:"interval"`
	Limit    int    `json:"limit"`
}

type modeRequest struct {
	TradingMode domain.TradingMode `json:"trading_mode"`
}

type statusResponse struct {
	domain.AppStatus
	LoopState  usecase.TraderState     `json:"loop_state"`
	Connection domain.ConnectionStatus `json:"connection"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps core errors onto HTTP statuses.
func (s *Server) writeDomainError(w http.ResponseWriter, op string, err error) {
	status := http.StatusBadGateway
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInsufficientBalance):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
	}
	if status >= 500 {
		s.logger.Error("Request failed", zap.String("op", op), zap.Error(err))
	}
	s.writeError(w, status, err.Error())
}

func (s *Server) readJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func (s *Server) handleListSignals(w http.ResponseWriter, r *http.Request) {
	signals, err := s.store.ListSignals(r.Context())
	if err != nil {
		s.writeDomainError(w, "list_signals", err)
		return
	}
	if status := strings.ToUpper(r.URL.Query().Get("status")); status != "" {
		filtered := signals[:0]
		for _, sig := range signals {
			if string(sig.Status) == status {
				filtered = append(filtered, sig)
			}
		}
		signals = filtered
	}
	s.writeJSON(w, http.StatusOK, signals)
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if r.ContentLength != 0 {
		if !s.readJSON(w, r, &req) {
			return
		}
	}
	if req.Interval != "" && !validIntervals[req.Interval] {
		s.writeError(w, http.StatusBadRequest, "unsupported interval "+req.Interval)
		return
	}
	if req.Limit < 0 || req.Limit > 50 {
		s.writeError(w, http.StatusBadRequest, "limit must be between 1 and 50")
		return
	}

	signals, err := s.scanner.ScanSignals(r.Context(), req.Interval, req.Limit)
	if err != nil {
		s.writeDomainError(w, "scan", err)
		return
	}
	if s.hub != nil {
		s.hub.Broadcast("signals", signals)
	}
	s.writeJSON(w, http.StatusOK, signals)
}

func (s *Server) handleTrade(w http.ResponseWriter, r *http.Request) {
	var req usecase.TradeRequest
	if !s.readJSON(w, r, &req) {
		return
	}
	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))
	req.Side = domain.Side(strings.ToUpper(string(req.Side)))
	if err := req.Validate(); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	pos, err := s.executor.ExecuteTrade(r.Context(), req)
	if err != nil {
		s.writeDomainError(w, "trade", err)
		return
	}
	if s.hub != nil {
		s.hub.Broadcast("position_opened", pos)
	}
	s.writeJSON(w, http.StatusCreated, pos)
}

func (s *Server) handleListPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := s.store.ListPositions(r.Context())
	if err != nil {
		s.writeDomainError(w, "list_positions", err)
		return
	}
	if status := strings.ToUpper(r.URL.Query().Get("status")); status != "" {
		filtered := positions[:0]
		for _, p := range positions {
			if string(p.Status) == status {
				filtered = append(filtered, p)
			}
		}
		positions = filtered
	}
	s.writeJSON(w, http.StatusOK, positions)
}

func (s *Server) handleClosePosition(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	pos, err := s.executor.ClosePosition(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, "close_position", err)
		return
	}
	if s.hub != nil {
		s.hub.Broadcast("position_closed", pos)
	}
	s.writeJSON(w, http.StatusOK, pos)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	bal, err := s.store.GetBalance(r.Context())
	if err != nil {
		s.writeDomainError(w, "balance", err)
		return
	}
	s.writeJSON(w, http.StatusOK, bal)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.store.GetTradingConfig(r.Context())
	if err != nil {
		s.writeDomainError(w, "get_config", err)
		return
	}
	s.writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	current, err := s.store.GetTradingConfig(r.Context())
	if err != nil {
		s.writeDomainError(w, "get_config", err)
		return
	}
	// Decode over the current config so partial updates keep other fields.
	cfg := current
	if !s.readJSON(w, r, &cfg) {
		return
	}
	if cfg.Interval != "" && !validIntervals[cfg.Interval] {
		s.writeError(w, http.StatusBadRequest, "unsupported interval "+cfg.Interval)
		return
	}
	if err := config.ValidateTrading(cfg); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.SetTradingConfig(r.Context(), cfg); err != nil {
		s.writeDomainError(w, "set_config", err)
		return
	}
	s.logger.Info("Trading config updated", zap.Any("config", cfg))
	s.writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.store.GetAppStatus(r.Context())
	if err != nil {
		s.writeDomainError(w, "status", err)
		return
	}
	conn, _ := s.store.GetConnectionStatus(r.Context())
	s.writeJSON(w, http.StatusOK, statusResponse{
		AppStatus:  status,
		LoopState:  s.trader.State(),
		Connection: conn,
	})
}

func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request) {
	var req modeRequest
	if !s.readJSON(w, r, &req) {
		return
	}
	req.TradingMode = domain.TradingMode(strings.ToLower(string(req.TradingMode)))
	if !req.TradingMode.Valid() {
		s.writeError(w, http.StatusBadRequest, "trading_mode must be virtual or real")
		return
	}
	if !s.executor.Supports(req.TradingMode) {
		s.writeError(w, http.StatusBadRequest, "no execution gateway configured for "+string(req.TradingMode))
		return
	}

	status, err := s.store.GetAppStatus(r.Context())
	if err != nil {
		s.writeDomainError(w, "status", err)
		return
	}
	status.TradingMode = req.TradingMode
	if err := s.store.SetAppStatus(r.Context(), status); err != nil {
		s.writeDomainError(w, "set_mode", err)
		return
	}
	s.logger.Info("Trading mode changed", zap.String("mode", string(req.TradingMode)))
	s.writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleMarketData(w http.ResponseWriter, r *http.Request) {
	md, err := s.store.GetMarketData(r.Context())
	if err != nil {
		s.writeDomainError(w, "market_data", err)
		return
	}
	s.writeJSON(w, http.StatusOK, md)
}

func (s *Server) handleStartAutomation(w http.ResponseWriter, r *http.Request) {
	if err := s.trader.Start(r.Context()); err != nil {
		s.writeDomainError(w, "start_automation", err)
		return
	}
	s.handleStatus(w, r)
}

func (s *Server) handleStopAutomation(w http.ResponseWriter, r *http.Request) {
	if err := s.trader.Stop(r.Context()); err != nil {
		s.writeDomainError(w, "stop_automation", err)
		return
	}
	s.handleStatus(w, r)
}
