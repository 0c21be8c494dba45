package journal

import (
	"context"
	"testing"
	"time"
	"trade_journal/internal/models"
	"trade_journal/pkg/retry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func drain(q *Queue) []models.TradeEvent {
	var out []models.TradeEvent
	for q.Len() > 0 {
		ev, _ := q.Get(context.Background())
		out = append(out, ev)
	}
	return out
}

func ids(evs []models.TradeEvent) []int64 {
	out := make([]int64, 0, len(evs))
	for _, ev := range evs {
		out = append(out, ev.TradeID)
	}
	return out
}

func newTestReconciler(t *testing.T, ex Exchange, state *StateStore, active *ActiveSet, q *Queue, pageSize int) *Reconciler {
	t.Helper()
	return NewReconciler(ReconcilerConfig{
		PageSize: pageSize,
		Interval: time.Hour,
		Retry:    retry.Policy{Attempts: 3, Delay: time.Millisecond},
	}, ex, state, active, q, nil, zap.NewNop())
}

func TestReconcilerEnqueuesOnlyNewTradesInTimeOrder(t *testing.T) {
	ex := newFakeExchange()
	ex.trades["BTCUSD_PERP"] = []models.TradeEvent{
		trade("BTCUSD_PERP", 5, 1000),
		trade("BTCUSD_PERP", 9, 2000),
		trade("BTCUSD_PERP", 12, 3000),
		trade("BTCUSD_PERP", 15, 4000),
	}
	state, _ := newTestState(t, t.TempDir())
	state.RecordProcessed("BTCUSD_PERP", 9, 0)

	q := NewQueue(100)
	r := newTestReconciler(t, ex, state, NewActiveSet(state.Symbols()...), q, 1000)
	require.NoError(t, r.RunOnce(context.Background()))

	got := drain(q)
	assert.Equal(t, []int64{12, 15}, ids(got))
	for _, ev := range got {
		assert.Equal(t, models.SourceBackfill, ev.Source)
	}
}

func TestReconcilerStartsAfterLastEventTime(t *testing.T) {
	ex := newFakeExchange()
	ex.trades["ETHUSD_PERP"] = []models.TradeEvent{
		trade("ETHUSD_PERP", 1, 1000),
		trade("ETHUSD_PERP", 2, 2000),
	}
	state, _ := newTestState(t, t.TempDir())
	state.RecordProcessed("ETHUSD_PERP", 1, 1000)

	q := NewQueue(10)
	r := newTestReconciler(t, ex, state, NewActiveSet("ETHUSD_PERP"), q, 1000)
	require.NoError(t, r.RunOnce(context.Background()))

	calls := ex.tradeCalls()
	require.Len(t, calls, 1)
	assert.EqualValues(t, 1001, calls[0].start)
	assert.Equal(t, []int64{2}, ids(drain(q)))
}

func TestReconcilerPaginatesFullPages(t *testing.T) {
	ex := newFakeExchange()
	for i := int64(1); i <= 5; i++ {
		ex.trades["XRPUSD_PERP"] = append(ex.trades["XRPUSD_PERP"], trade("XRPUSD_PERP", i, i*1000))
	}
	state, _ := newTestState(t, t.TempDir())

	q := NewQueue(10)
	r := newTestReconciler(t, ex, state, NewActiveSet("XRPUSD_PERP"), q, 2)
	require.NoError(t, r.RunOnce(context.Background()))

	assert.Equal(t, []int64{1, 2, 3, 4, 5}, ids(drain(q)))

	calls := ex.tradeCalls()
	require.Len(t, calls, 3)
	assert.EqualValues(t, 0, calls[0].start)
	assert.EqualValues(t, 2001, calls[1].start)
	assert.EqualValues(t, 4001, calls[2].start)
}

func TestReconcilerRetriesTransientErrors(t *testing.T) {
	ex := newFakeExchange()
	ex.trades["BTCUSD_PERP"] = []models.TradeEvent{trade("BTCUSD_PERP", 1, 1000)}
	ex.tradeFailures = 2
	state, _ := newTestState(t, t.TempDir())

	q := NewQueue(10)
	r := newTestReconciler(t, ex, state, NewActiveSet("BTCUSD_PERP"), q, 1000)
	require.NoError(t, r.RunOnce(context.Background()))

	assert.Len(t, ex.tradeCalls(), 3)
	assert.Equal(t, []int64{1}, ids(drain(q)))
}

func TestReconcilerAbandonsSymbolAfterRetries(t *testing.T) {
	ex := newFakeExchange()
	ex.trades["BTCUSD_PERP"] = []models.TradeEvent{trade("BTCUSD_PERP", 1, 1000)}
	ex.trades["ETHUSD_PERP"] = []models.TradeEvent{trade("ETHUSD_PERP", 7, 1000)}
	ex.tradeFailures = 3
	state, _ := newTestState(t, t.TempDir())

	q := NewQueue(10)
	r := newTestReconciler(t, ex, state, NewActiveSet("BTCUSD_PERP", "ETHUSD_PERP"), q, 1000)
	require.NoError(t, r.RunOnce(context.Background()))

	// BTC исчерпал попытки, ETH прошёл
	assert.Equal(t, []int64{7}, ids(drain(q)))
}

func TestReconcilerDiscoversOpenPositions(t *testing.T) {
	ex := newFakeExchange()
	ex.setPositions(
		models.PositionSnapshot{Symbol: "SOLUSD_PERP", Qty: dec("3")},
		models.PositionSnapshot{Symbol: "ADAUSD_PERP"},
	)
	ex.trades["SOLUSD_PERP"] = []models.TradeEvent{trade("SOLUSD_PERP", 4, 1000)}
	state, _ := newTestState(t, t.TempDir())
	active := NewActiveSet()

	q := NewQueue(10)
	r := newTestReconciler(t, ex, state, active, q, 1000)
	require.NoError(t, r.RunOnce(context.Background()))

	assert.Equal(t, []string{"SOLUSD_PERP"}, active.Symbols())
	assert.Equal(t, []int64{4}, ids(drain(q)))
}

func TestReconcilerStopsOnCancel(t *testing.T) {
	ex := newFakeExchange()
	ex.trades["BTCUSD_PERP"] = []models.TradeEvent{
		trade("BTCUSD_PERP", 1, 1000),
		trade("BTCUSD_PERP", 2, 2000),
	}
	state, _ := newTestState(t, t.TempDir())

	// очередь на одно место, второй Put ждёт до отмены
	q := NewQueue(1)
	r := newTestReconciler(t, ex, state, NewActiveSet("BTCUSD_PERP"), q, 1000)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := r.RunOnce(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, q.Len())
}

func TestResyncAfterReconnectRecoversFillMissedWhileDown(t *testing.T) {
	f := newProcessorFixture(t, nil)
	ctx := context.Background()
	f.ex.trades["BTCUSD_PERP"] = []models.TradeEvent{
		trade("BTCUSD_PERP", 10, 1000),
		trade("BTCUSD_PERP", 20, 2000),
		trade("BTCUSD_PERP", 21, 2100),
	}
	r := newTestReconciler(t, f.ex, f.state, f.active, f.queue, 1000)

	require.NoError(t, f.proc.Handle(ctx, trade("BTCUSD_PERP", 10, 1000)))

	// поток упал, 20 прошла мимо; после переподключения сверка идёт раньше живых кадров
	require.NoError(t, r.RunOnce(ctx))
	require.NoError(t, f.queue.Put(ctx, trade("BTCUSD_PERP", 21, 2100)))

	for _, ev := range drain(f.queue) {
		require.NoError(t, f.proc.Handle(ctx, ev))
	}

	rows := f.rows(t)
	got := make([]int64, 0, len(rows))
	for _, row := range rows {
		got = append(got, row.TradeID)
	}
	assert.Equal(t, []int64{10, 20, 21}, got)

	w, ok := f.state.Get("BTCUSD_PERP")
	require.True(t, ok)
	assert.EqualValues(t, 21, w.LastTradeID)
}
