package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/crypto_futures_dashboard/internal/domain"
	"go.uber.org/zap"
)

type failingBackend struct {
	NopBackend
	saves int
}

func (f *failingBackend) Save(context.Context, string, []byte) error {
	f.saves++
	return errors.New("disk full")
}

func newTestStore(t *testing.T, backend Backend) *Store {
	t.Helper()
	s, err := NewStore(context.Background(), backend, domain.DefaultTradingConfig(), zap.NewNop())
	require.NoError(t, err)
	return s
}

func TestStore_Defaults(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	cfg, err := s.GetTradingConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultTradingConfig(), cfg)

	status, err := s.GetAppStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.ModeVirtual, status.TradingMode)
	assert.False(t, status.IsAutomatedTradingEnabled)
}

func TestStore_ReplacePendingSignalsExpiresPrevious(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	require.NoError(t, s.ReplacePendingSignals(ctx, []domain.Signal{
		{ID: "a", Status: domain.SignalPending},
		{ID: "b", Status: domain.SignalExecuted},
	}))
	require.NoError(t, s.ReplacePendingSignals(ctx, []domain.Signal{
		{ID: "c", Status: domain.SignalPending},
	}))

	signals, err := s.ListSignals(ctx)
	require.NoError(t, err)
	require.Len(t, signals, 3)

	byID := map[string]domain.SignalStatus{}
	for _, sig := range signals {
		byID[sig.ID] = sig.Status
	}
	assert.Equal(t, domain.SignalExpired, byID["a"])
	assert.Equal(t, domain.SignalExecuted, byID["b"])
	assert.Equal(t, domain.SignalPending, byID["c"])
}

func TestStore_UpdateSignalNotFound(t *testing.T) {
	s := newTestStore(t, nil)
	err := s.UpdateSignal(context.Background(), domain.Signal{ID: "missing"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_ClosedPositionIsImmutable(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	pos := domain.Position{ID: "p1", Symbol: "BTCUSDT", Side: domain.SideLong, Size: 1, EntryPrice: 100, Status: domain.PositionOpen}
	require.NoError(t, s.SavePosition(ctx, pos))

	n, err := s.CountOpenPositions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	pos.Close(110, time.Now())
	require.NoError(t, s.SavePosition(ctx, pos))

	pos.ExitPrice = 999
	err = s.SavePosition(ctx, pos)
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	got, err := s.GetPosition(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 110.0, got.ExitPrice)
	assert.Equal(t, domain.PositionClosed, got.Status)

	n, err = s.CountOpenPositions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestStore_PersistenceFailureKeepsMemory(t *testing.T) {
	backend := &failingBackend{}
	s := newTestStore(t, backend)
	ctx := context.Background()

	err := s.SetBalance(ctx, domain.Balance{Asset: "USDT", Total: 1000, Available: 900})
	require.NoError(t, err)
	assert.Equal(t, 1, backend.saves)

	bal, err := s.GetBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, 900.0, bal.Available)
}

func TestStore_LockHonoursContext(t *testing.T) {
	s := newTestStore(t, nil)
	require.NoError(t, s.acquire(context.Background()))
	defer s.release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := s.GetAppStatus(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStore_FileBackendRoundTrip(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	backend, err := NewFileBackend(dir)
	require.NoError(t, err)
	s := newTestStore(t, backend)

	cfg := domain.DefaultTradingConfig()
	cfg.MaxPositions = 2
	require.NoError(t, s.SetTradingConfig(ctx, cfg))
	require.NoError(t, s.SetAppStatus(ctx, domain.AppStatus{TradingMode: domain.ModeReal, IsAutomatedTradingEnabled: true}))
	require.NoError(t, s.SavePosition(ctx, domain.Position{ID: "p1", Symbol: "ETHUSDT", Status: domain.PositionOpen}))
	require.NoError(t, s.SetMarketData(ctx, domain.MarketData{Symbol: "ETHUSDT", Price: 3000}))

	assert.FileExists(t, filepath.Join(dir, "positions.json"))

	reloaded := newTestStore(t, backend)
	gotCfg, err := reloaded.GetTradingConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, gotCfg.MaxPositions)

	status, err := reloaded.GetAppStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.ModeReal, status.TradingMode)
	assert.True(t, status.IsAutomatedTradingEnabled)

	positions, err := reloaded.ListPositions(ctx)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, "ETHUSDT", positions[0].Symbol)

	md, err := reloaded.GetMarketData(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3000.0, md["ETHUSDT"].Price)
}

func TestSQLiteBackend_SaveLoad(t *testing.T) {
	ctx := context.Background()
	b, err := NewSQLiteBackend(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	defer b.Close()

	data, err := b.Load(ctx, "signals")
	require.NoError(t, err)
	assert.Nil(t, data)

	require.NoError(t, b.Save(ctx, "signals", []byte(`[1]`)))
	require.NoError(t, b.Save(ctx, "signals", []byte(`[1,2]`)))

	data, err = b.Load(ctx, "signals")
	require.NoError(t, err)
	assert.Equal(t, `[1,2]`, string(data))

	require.NoError(t, b.Save(ctx, "positions", []byte(`[]`)))
	for i := 0; i < 5; i++ {
		require.NoError(t, b.Save(ctx, "signals", []byte(`[3]`)))
	}

	// Rewrites replace the row, so the table is bounded by the collection count.
	var rows int
	require.NoError(t, b.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM collections`).Scan(&rows))
	assert.Equal(t, 2, rows)
}
