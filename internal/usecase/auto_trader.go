package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/vitos/crypto_futures_dashboard/internal/domain"
	"go.uber.org/zap"
)

type TraderState string

const (
	StateStopped  TraderState = "stopped"
	StateScanning TraderState = "scanning"
	StateCooldown TraderState = "cooldown"
)

// SignalSource produces ranked pending signals for the trading loop.
type SignalSource interface {
	Scan(ctx context.Context, interval string, topN int, mode domain.TradingMode) ([]domain.Signal, error)
	ProcessSignals(ctx context.Context, signals []domain.Signal, mode domain.TradingMode) []domain.Signal
}

// StepResult describes one Scanning iteration.
type StepResult struct {
	Next     TraderState
	Cooldown time.Duration
	Scanned  bool
	Executed int
	Err      error
}

// AutoTrader is the automated trading loop. AppStatus.IsAutomatedTradingEnabled
// is its cancellation flag and is only checked at the start of an iteration.
type AutoTrader struct {
	scanner  SignalSource
	executor *TradeExecutor
	store    domain.StateStore
	logger   *zap.Logger
	sleep    func(ctx context.Context, d time.Duration) error

	mu      sync.Mutex
	state   TraderState
	running bool
	restart bool // Start was called on a loop that may be exiting
	cancel  context.CancelFunc
	done    chan struct{}
	wake    chan struct{}
}

func NewAutoTrader(scanner SignalSource, executor *TradeExecutor, store domain.StateStore, logger *zap.Logger) *AutoTrader {
	t := &AutoTrader{
		scanner:  scanner,
		executor: executor,
		store:    store,
		logger:   logger,
		state:    StateStopped,
		wake:     make(chan struct{}, 1),
	}
	t.sleep = t.cooldown
	return t
}

// SetSleeper replaces the cooldown wait, mainly for tests.
func (t *AutoTrader) SetSleeper(fn func(ctx context.Context, d time.Duration) error) {
	t.sleep = fn
}

func (t *AutoTrader) State() TraderState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *AutoTrader) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

func (t *AutoTrader) setState(s TraderState) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}

// Start enables automated trading and launches the loop. Starting a running
// loop only re-asserts the flag.
func (t *AutoTrader) Start(ctx context.Context) error {
	if err := t.setEnabled(ctx, true); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		t.restart = true
		return nil
	}

	// Drop a wake-up left over from an earlier Stop.
	select {
	case <-t.wake:
	default:
	}

	// The loop outlives the caller's request context.
	loopCtx, cancel := context.WithCancel(context.Background())
	t.running = true
	t.restart = false
	t.state = StateScanning
	t.cancel = cancel
	t.done = make(chan struct{})
	go t.run(loopCtx, t.done)

	t.logger.Info("Automated trading started")
	return nil
}

// Stop disables automated trading. A running iteration completes and the
// loop halts at the next status check. A loop already in cooldown is woken
// so that check happens now.
func (t *AutoTrader) Stop(ctx context.Context) error {
	if err := t.setEnabled(ctx, false); err != nil {
		return err
	}
	t.mu.Lock()
	t.restart = false
	if t.running && t.state == StateCooldown {
		select {
		case t.wake <- struct{}{}:
		default:
		}
	}
	t.mu.Unlock()
	t.logger.Info("Automated trading disable requested")
	return nil
}

// Shutdown cancels the loop outright and waits for it to exit.
func (t *AutoTrader) Shutdown() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (t *AutoTrader) setEnabled(ctx context.Context, enabled bool) error {
	status, err := t.store.GetAppStatus(ctx)
	if err != nil {
		return err
	}
	status.IsAutomatedTradingEnabled = enabled
	return t.store.SetAppStatus(ctx, status)
}

func (t *AutoTrader) run(ctx context.Context, done chan struct{}) {
	for {
		t.mu.Lock()
		t.restart = false
		t.mu.Unlock()

		res := t.Step(ctx)
		if res.Next == StateStopped || ctx.Err() != nil {
			if t.exit(ctx, done) {
				return
			}
			continue
		}
		if err := t.sleep(ctx, res.Cooldown); err != nil || ctx.Err() != nil {
			if t.exit(ctx, done) {
				return
			}
		}
	}
}

// exit marks the loop stopped unless Start raced the decision to stop, in
// which case the loop keeps going and re-reads the status.
func (t *AutoTrader) exit(ctx context.Context, done chan struct{}) bool {
	t.mu.Lock()
	if t.restart && ctx.Err() == nil {
		t.restart = false
		t.mu.Unlock()
		t.logger.Info("Automated trading restarted while stopping, continuing loop")
		return false
	}
	cancel := t.cancel
	t.running = false
	t.restart = false
	t.state = StateStopped
	t.cancel = nil
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	close(done)
	t.logger.Info("Automated trading loop exited")
	return true
}

// cooldown waits for d, returning early when Stop is called.
func (t *AutoTrader) cooldown(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.wake:
		return nil
	case <-timer.C:
		return nil
	}
}

// Step runs a single Scanning iteration and reports where the loop goes next.
func (t *AutoTrader) Step(ctx context.Context) StepResult {
	status, err := t.store.GetAppStatus(ctx)
	if err != nil {
		t.logger.Error("Failed to read app status", zap.Error(err))
		return t.toCooldown(domain.DefaultTradingConfig(), StepResult{Err: err})
	}
	if !status.IsAutomatedTradingEnabled {
		t.setState(StateStopped)
		t.logger.Info("Automated trading disabled, stopping loop")
		return StepResult{Next: StateStopped}
	}
	t.setState(StateScanning)

	cfg, err := t.store.GetTradingConfig(ctx)
	if err != nil {
		t.logger.Warn("Using default trading config", zap.Error(err))
		cfg = domain.DefaultTradingConfig()
	}

	open, err := t.store.CountOpenPositions(ctx)
	if err != nil {
		t.logger.Error("Failed to count open positions", zap.Error(err))
		return t.toCooldown(cfg, StepResult{Err: err})
	}
	if open >= cfg.MaxPositions {
		t.logger.Info("Position limit reached, skipping scan",
			zap.Int("open", open),
			zap.Int("max", cfg.MaxPositions))
		return t.toCooldown(cfg, StepResult{})
	}

	res := StepResult{Scanned: true}
	signals, err := t.scanner.Scan(ctx, cfg.Interval, cfg.TopN, status.TradingMode)
	if err != nil {
		return t.fail(ctx, cfg, res, err)
	}
	signals = t.scanner.ProcessSignals(ctx, signals, status.TradingMode)
	if len(signals) == 0 {
		return t.toCooldown(cfg, res)
	}

	balance, err := t.executor.Balance(ctx, status.TradingMode)
	if err != nil {
		if domain.IsFatal(err) {
			return t.fail(ctx, cfg, res, err)
		}
		t.logger.Warn("Using stored balance", zap.Error(err))
		balance, _ = t.store.GetBalance(ctx)
	}
	available := balance.Available

	held, err := t.openSymbols(ctx)
	if err != nil {
		t.logger.Error("Failed to list open positions", zap.Error(err))
		res.Err = err
		return t.toCooldown(cfg, res)
	}

	for _, sig := range signals {
		if open >= cfg.MaxPositions {
			t.logger.Info("Position limit reached mid-batch", zap.Int("open", open))
			break
		}
		if held[sig.Symbol] {
			t.logger.Info("Skipping signal for symbol with an open position",
				zap.String("symbol", sig.Symbol),
				zap.String("signal_id", sig.ID))
			continue
		}
		leverage := cfg.Leverage
		if sig.Leverage > 0 {
			leverage = sig.Leverage
		}
		qty := PositionSize(available, cfg.RiskPerTrade, leverage, sig.EntryPrice)
		if qty <= 0 {
			t.logger.Warn("Skipping signal with zero size",
				zap.String("symbol", sig.Symbol),
				zap.Float64("available", available))
			continue
		}

		req := TradeRequestFromSignal(sig, qty)
		req.Leverage = leverage
		pos, err := t.executor.ExecuteTrade(ctx, req)
		if err != nil {
			if domain.IsFatal(err) {
				return t.fail(ctx, cfg, res, err)
			}
			t.logger.Error("Signal execution failed",
				zap.String("symbol", sig.Symbol),
				zap.String("signal_id", sig.ID),
				zap.Error(err))
			continue
		}
		res.Executed++
		open++
		held[pos.Symbol] = true
		if margin := pos.Margin(); margin > 0 {
			available -= margin
		}
	}

	t.logger.Info("Trading iteration complete",
		zap.Int("signals", len(signals)),
		zap.Int("executed", res.Executed),
		zap.Int("open_positions", open))
	return t.toCooldown(cfg, res)
}

func (t *AutoTrader) openSymbols(ctx context.Context) (map[string]bool, error) {
	positions, err := t.store.ListPositions(ctx)
	if err != nil {
		return nil, err
	}
	held := make(map[string]bool, len(positions))
	for _, p := range positions {
		if p.IsOpen() {
			held[p.Symbol] = true
		}
	}
	return held, nil
}

func (t *AutoTrader) toCooldown(cfg domain.TradingConfig, res StepResult) StepResult {
	t.setState(StateCooldown)
	res.Next = StateCooldown
	res.Cooldown = cfg.ScanInterval()
	return res
}

// fail stops the loop on fatal errors and disables automation persistently.
// Anything else is logged and the loop cools down as usual.
func (t *AutoTrader) fail(ctx context.Context, cfg domain.TradingConfig, res StepResult, err error) StepResult {
	res.Err = err
	if !domain.IsFatal(err) || errors.Is(err, context.Canceled) {
		t.logger.Error("Trading iteration failed", zap.Error(err))
		return t.toCooldown(cfg, res)
	}

	t.logger.Error("Fatal error, disabling automated trading", zap.Error(err))
	if serr := t.setEnabled(ctx, false); serr != nil {
		t.logger.Error("Failed to persist disabled status", zap.Error(serr))
	}
	t.setState(StateStopped)
	res.Next = StateStopped
	return res
}
