package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/vitos/crypto_futures_dashboard/internal/config"
	"github.com/vitos/crypto_futures_dashboard/internal/domain"
	"github.com/vitos/crypto_futures_dashboard/internal/infrastructure/exchange"
	"github.com/vitos/crypto_futures_dashboard/internal/infrastructure/logger"
	"github.com/vitos/crypto_futures_dashboard/internal/infrastructure/storage"
	"github.com/vitos/crypto_futures_dashboard/internal/usecase"
	"github.com/vitos/crypto_futures_dashboard/internal/web"
	"go.uber.org/zap"
)

// exchangeClient is what the selected exchange adapter provides.
type exchangeClient interface {
	domain.MarketDataProvider
	domain.ExecutionGateway
}

// app holds the wired services shared by the subcommands.
type app struct {
	cfg      *config.Config
	log      *zap.Logger
	closeLog func()
	store    *storage.Store
	client   exchangeClient
	market   *usecase.MarketService
	scanner  *usecase.SignalScanner
	executor *usecase.TradeExecutor
	trader   *usecase.AutoTrader
	monitor  *usecase.PositionMonitor
}

func main() {
	var configPath string

	root := &cobra.Command{
		Use:           "bot",
		Short:         "Crypto futures signal scanner and auto-trader",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config/config.yaml", "path to the YAML config")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the dashboard API, position monitor and automated trading loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}

	var interval string
	var limit int
	scan := &cobra.Command{
		Use:   "scan",
		Short: "Run a single signal scan and print the ranked signals as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd.Context(), configPath, interval, limit)
		},
	}
	scan.Flags().StringVar(&interval, "interval", "", "candle interval (defaults to the trading config)")
	scan.Flags().IntVar(&limit, "limit", 0, "number of signals to keep (defaults to the trading config)")

	var checkSymbol string
	check := &cobra.Command{
		Use:   "check",
		Short: "Probe the configured exchange's market data and account endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd.Context(), cmd.OutOrStdout(), configPath, checkSymbol)
		},
	}
	check.Flags().StringVar(&checkSymbol, "symbol", "BTCUSDT", "symbol used for price and candle probes")

	root.AddCommand(serve, scan, check)

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp(ctx context.Context, configPath string) (_ *app, err error) {
	// 1. Load Config
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	// 2. Init Logger
	log, closeLog, err := logger.NewFileLogger(cfg.Logging.File, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	defer func() {
		if err != nil {
			closeLog()
		}
	}()

	// 3. Init Storage
	backend, err := openBackend(cfg)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	store, err := storage.NewStore(ctx, backend, cfg.Trading, log)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	status, err := store.GetAppStatus(ctx)
	if err != nil {
		return nil, err
	}
	if status.TradingMode != cfg.TradingMode {
		status.TradingMode = cfg.TradingMode
		if err := store.SetAppStatus(ctx, status); err != nil {
			return nil, err
		}
	}

	// 4. Init Exchange
	ex := cfg.ActiveExchange()
	var client exchangeClient
	switch cfg.Exchange {
	case "bybit":
		client = exchange.NewBybitAdapter(ex.APIKey, ex.APISecret, ex.RESTEndpoint, ex.WSEndpoint, log)
	default:
		client = exchange.NewBinanceAdapter(ex.APIKey, ex.APISecret, ex.Testnet, log)
	}

	// 5. Init Services
	paper := exchange.NewPaperGateway(client, cfg.VirtualBalance, log)
	if err := restorePaper(ctx, store, paper); err != nil {
		log.Warn("Failed to restore paper account", zap.Error(err))
	}
	var live domain.ExecutionGateway
	if ex.HasCredentials() {
		live = client
	}

	market := usecase.NewMarketService(client, store, log)
	market.SetFallbackSymbols(cfg.FallbackSymbols)
	scanner := usecase.NewSignalScanner(market, store, cfg.Scanner, log)
	executor := usecase.NewTradeExecutor(paper, live, market, store, log)
	trader := usecase.NewAutoTrader(scanner, executor, store, log)
	monitor := usecase.NewPositionMonitor(market, executor, store, cfg.Exchange, log)

	return &app{
		cfg:      cfg,
		log:      log,
		closeLog: closeLog,
		store:    store,
		client:   client,
		market:   market,
		scanner:  scanner,
		executor: executor,
		trader:   trader,
		monitor:  monitor,
	}, nil
}

func openBackend(cfg *config.Config) (storage.Backend, error) {
	switch cfg.Storage.Backend {
	case "sqlite":
		return storage.NewSQLiteBackend(cfg.Storage.Path)
	case "memory":
		return storage.NopBackend{}, nil
	default:
		return storage.NewFileBackend(cfg.Storage.Path)
	}
}

// restorePaper carries the virtual account across restarts.
func restorePaper(ctx context.Context, store *storage.Store, paper *exchange.PaperGateway) error {
	bal, err := store.GetBalance(ctx)
	if err != nil {
		return err
	}
	positions, err := store.ListPositions(ctx)
	if err != nil {
		return err
	}
	status, err := store.GetAppStatus(ctx)
	if err != nil {
		return err
	}
	// The stored balance belongs to whichever gateway ran last.
	if status.TradingMode != domain.ModeVirtual {
		bal = domain.Balance{}
	}
	paper.Restore(bal, positions)
	return nil
}

func runServe(configPath string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, configPath)
	if err != nil {
		return err
	}
	log := a.log
	defer a.closeLog()
	defer a.store.Close()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	hub := web.NewHub(log)

	// Price stream for the dashboard when the adapter has one.
	if bybit, ok := a.client.(*exchange.BybitAdapter); ok {
		bybit.OnPriceUpdate(func(symbol string, price float64) {
			hub.Broadcast("ticker", map[string]interface{}{"symbol": symbol, "price": price})
		})
		symbols := a.market.TopSymbols(ctx, a.cfg.Trading.TopN)
		if err := bybit.ConnectWS(symbols); err != nil {
			log.Warn("Price stream unavailable", zap.Error(err))
		} else {
			defer bybit.CloseWS()
		}
	}

	go a.monitor.Run(ctx, time.Duration(a.cfg.MonitorSeconds)*time.Second)
	go hub.Run(ctx, 5*time.Second, func(ctx context.Context) interface{} {
		return dashboardSnapshot(ctx, a.store, a.trader)
	})

	// Resume automation that was enabled before the restart.
	status, err := a.store.GetAppStatus(ctx)
	if err == nil && status.IsAutomatedTradingEnabled {
		log.Info("Resuming automated trading", zap.String("mode", string(status.TradingMode)))
		if err := a.trader.Start(ctx); err != nil {
			log.Error("Failed to resume automated trading", zap.Error(err))
		}
	}

	server := web.NewServer(a.cfg.Server.Port, a.store, a.scanner, a.executor, a.trader, hub, log)
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case <-stop:
		log.Info("Shutting down...")
	case err := <-errCh:
		if err != nil {
			log.Error("Server failed", zap.Error(err))
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown failed", zap.Error(err))
	}
	a.trader.Shutdown()
	cancel()
	return nil
}

func dashboardSnapshot(ctx context.Context, store domain.StateStore, trader *usecase.AutoTrader) interface{} {
	positions, _ := store.ListPositions(ctx)
	open := positions[:0]
	for _, p := range positions {
		if p.IsOpen() {
			open = append(open, p)
		}
	}
	balance, _ := store.GetBalance(ctx)
	status, _ := store.GetAppStatus(ctx)
	return map[string]interface{}{
		"positions":  open,
		"balance":    balance,
		"status":     status,
		"loop_state": trader.State(),
	}
}

func runScan(ctx context.Context, configPath, interval string, limit int) error {
	a, err := newApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.closeLog()
	defer a.store.Close()

	signals, err := a.scanner.ScanSignals(ctx, interval, limit)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(signals)
}
