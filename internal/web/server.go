package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/vitos/crypto_futures_dashboard/internal/domain"
	"github.com/vitos/crypto_futures_dashboard/internal/usecase"
	"go.uber.org/zap"
)

type Server struct {
	router   *http.ServeMux
	server   *http.Server
	store    domain.StateStore
	scanner  *usecase.SignalScanner
	executor *usecase.TradeExecutor
	trader   *usecase.AutoTrader
	hub      *Hub
	logger   *zap.Logger
}

func NewServer(
	port int,
	store domain.StateStore,
	scanner *usecase.SignalScanner,
	executor *usecase.TradeExecutor,
	trader *usecase.AutoTrader,
	hub *Hub,
	logger *zap.Logger,
) *Server {
	s := &Server{
		router:   http.NewServeMux(),
		store:    store,
		scanner:  scanner,
		executor: executor,
		trader:   trader,
		hub:      hub,
		logger:   logger,
	}
	s.routes()
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	// Signals
	s.router.HandleFunc("GET /api/signals", s.handleListSignals)
	s.router.HandleFunc("POST /api/signals/scan", s.handleScan)

	// Trading
	s.router.HandleFunc("POST /api/trade", s.handleTrade)
	s.router.HandleFunc("GET /api/positions", s.handleListPositions)
	s.router.HandleFunc("POST /api/positions/{id}/close", s.handleClosePosition)
	s.router.HandleFunc("GET /api/balance", s.handleBalance)

	// Config & status
	s.router.HandleFunc("GET /api/config", s.handleGetConfig)
	s.router.HandleFunc("PUT /api/config", s.handleUpdateConfig)
	s.router.HandleFunc("GET /api/status", s.handleStatus)
	s.router.HandleFunc("PUT /api/mode", s.handleSetMode)
	s.router.HandleFunc("GET /api/market", s.handleMarketData)

	// Automation
	s.router.HandleFunc("POST /api/automation/start", s.handleStartAutomation)
	s.router.HandleFunc("POST /api/automation/stop", s.handleStopAutomation)

	// Live updates
	if s.hub != nil {
		s.router.HandleFunc("GET /ws", s.hub.HandleWebSocket)
	}
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.logger.Info("Starting web server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
