package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/crypto_futures_dashboard/internal/domain"
	"go.uber.org/zap"
)

func newTestScanner(t *testing.T, provider *stubProvider) (*SignalScanner, domain.StateStore) {
	t.Helper()
	store := newTestStore(t)
	scanner := NewSignalScanner(newTestMarket(provider, store), store, DefaultScannerConfig(), zap.NewNop())
	return scanner, store
}

func TestScan_FailingSymbolIsSkipped(t *testing.T) {
	provider := newStubProvider()
	provider.symbols = []string{"AUSDT", "BUSDT"}
	provider.errs["AUSDT"] = errTransient
	provider.candles["BUSDT"] = descendingCandles(50, 200)

	scanner, store := newTestScanner(t, provider)
	signals, err := scanner.Scan(context.Background(), "15m", 10, domain.ModeVirtual)
	require.NoError(t, err)

	require.Len(t, signals, 1)
	sig := signals[0]
	assert.Equal(t, "BUSDT", sig.Symbol)
	assert.Equal(t, domain.DirectionBuy, sig.Direction)
	assert.Equal(t, domain.SignalPending, sig.Status)
	assert.Equal(t, "15m", sig.Interval)
	assert.NotEmpty(t, sig.ID)
	assert.GreaterOrEqual(t, sig.FinalScore, 40.0)
	assert.Positive(t, sig.StopLoss)
	assert.Positive(t, sig.TakeProfit)
	assert.Positive(t, sig.LiquidationPrice)
	assert.Positive(t, sig.TrailingStop)
	assert.Equal(t, 3, provider.hits("AUSDT"), "A is retried before being skipped")

	stored, err := store.ListSignals(context.Background())
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, sig.ID, stored[0].ID)

	md, err := store.GetMarketData(context.Background())
	require.NoError(t, err)
	assert.Contains(t, md, "BUSDT")
	assert.NotContains(t, md, "AUSDT")
}

func TestScan_InsufficientDataIsSkipped(t *testing.T) {
	provider := newStubProvider()
	provider.symbols = []string{"SHORTUSDT"}
	provider.candles["SHORTUSDT"] = descendingCandles(10, 50)

	scanner, _ := newTestScanner(t, provider)
	signals, err := scanner.Scan(context.Background(), "", 0, domain.ModeVirtual)
	require.NoError(t, err)
	assert.Empty(t, signals)
}

func TestScan_AllSymbolsUnreachable(t *testing.T) {
	provider := newStubProvider()
	provider.symbols = []string{"AUSDT", "BUSDT"}
	provider.errs["AUSDT"] = errors.New("dial tcp: lookup api.bybit.com: no such host")
	provider.errs["BUSDT"] = errTransient

	scanner, store := newTestScanner(t, provider)
	signals, err := scanner.Scan(context.Background(), "15m", 10, domain.ModeVirtual)
	require.Error(t, err)
	assert.True(t, domain.IsFatal(err))
	assert.Nil(t, signals)

	stored, err := store.ListSignals(context.Background())
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestScan_OneReachableSymbolKeepsScanAlive(t *testing.T) {
	provider := newStubProvider()
	provider.symbols = []string{"AUSDT", "BUSDT"}
	provider.errs["AUSDT"] = domain.ErrNetworkUnavailable
	provider.candles["BUSDT"] = descendingCandles(50, 200)

	scanner, _ := newTestScanner(t, provider)
	signals, err := scanner.Scan(context.Background(), "15m", 10, domain.ModeVirtual)
	require.NoError(t, err)
	require.Len(t, signals, 1)
	assert.Equal(t, "BUSDT", signals[0].Symbol)
}

func TestScan_TransientFailuresAreAbsorbed(t *testing.T) {
	provider := newStubProvider()
	provider.symbols = []string{"AUSDT"}
	provider.errs["AUSDT"] = errTransient

	scanner, _ := newTestScanner(t, provider)
	signals, err := scanner.Scan(context.Background(), "15m", 10, domain.ModeVirtual)
	require.NoError(t, err)
	assert.Empty(t, signals)
}

func TestScan_RealModeIsStricter(t *testing.T) {
	cfg := DefaultScannerConfig()
	assert.Equal(t, 40.0, cfg.MinScore(domain.ModeVirtual))
	assert.Equal(t, 50.0, cfg.MinScore(domain.ModeReal))
}

func TestScan_ExpiresPreviousBatch(t *testing.T) {
	provider := newStubProvider()
	provider.symbols = []string{"BUSDT"}
	provider.candles["BUSDT"] = descendingCandles(50, 200)

	scanner, store := newTestScanner(t, provider)
	ctx := context.Background()
	first, err := scanner.Scan(ctx, "15m", 10, domain.ModeVirtual)
	require.NoError(t, err)
	_, err = scanner.Scan(ctx, "15m", 10, domain.ModeVirtual)
	require.NoError(t, err)

	stored, err := store.ListSignals(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, first[0].ID, stored[0].ID)
	assert.Equal(t, domain.SignalExpired, stored[0].Status)
	assert.Equal(t, domain.SignalPending, stored[1].Status)
}

func TestProcessSignals(t *testing.T) {
	provider := newStubProvider()
	provider.candles["BUSDT"] = descendingCandles(50, 200)
	provider.errs["GONEUSDT"] = errTransient

	scanner, _ := newTestScanner(t, provider)
	in := []domain.Signal{
		{ID: "low", Symbol: "GONEUSDT", Direction: domain.DirectionBuy, FinalScore: 10, Status: domain.SignalPending},
		{ID: "kept", Symbol: "GONEUSDT", Direction: domain.DirectionBuy, FinalScore: 55, Status: domain.SignalPending},
		{ID: "done", Symbol: "BUSDT", Direction: domain.DirectionBuy, FinalScore: 90, Status: domain.SignalExecuted},
		{ID: "fresh", Symbol: "BUSDT", Direction: domain.DirectionBuy, FinalScore: 0, Status: domain.SignalPending},
	}
	out := scanner.ProcessSignals(context.Background(), in, domain.ModeVirtual)

	ids := make([]string, 0, len(out))
	for _, s := range out {
		ids = append(ids, s.ID)
	}
	assert.ElementsMatch(t, []string{"kept", "fresh"}, ids)
	for i := 1; i < len(out); i++ {
		assert.GreaterOrEqual(t, out[i-1].FinalScore, out[i].FinalScore)
	}
}

func TestRankSignals(t *testing.T) {
	in := []domain.Signal{
		{ID: "a", FinalScore: 50},
		{ID: "b", FinalScore: 80},
		{ID: "c", FinalScore: 50},
		{ID: "d", FinalScore: 65},
	}
	out := rankSignals(in, 3)
	require.Len(t, out, 3)
	assert.Equal(t, "b", out[0].ID)
	assert.Equal(t, "d", out[1].ID)
	assert.Equal(t, "a", out[2].ID, "ties keep scan order")
}
