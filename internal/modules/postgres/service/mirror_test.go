package service

import (
	"context"
	"errors"
	"testing"
	"time"
	"trade_journal/internal/journal"
	"trade_journal/internal/models"
	"trade_journal/pkg/db"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type execCall struct {
	sql  string
	args []any
}

type fakeConn struct {
	calls []execCall
	tag   string
	err   error
}

func (f *fakeConn) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.calls = append(f.calls, execCall{sql: sql, args: args})
	if f.err != nil {
		return pgconn.CommandTag{}, f.err
	}
	return pgconn.NewCommandTag(f.tag), nil
}

func (f *fakeConn) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeConn) QueryRow(context.Context, string, ...any) pgx.Row { return nil }

// fakeTx: только Exec, остальное не вызывается.
type fakeTx struct {
	pgx.Tx
	conn *fakeConn
}

func (t fakeTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return t.conn.Exec(ctx, sql, args...)
}

type fakeManager struct {
	conn *fakeConn
}

func (m *fakeManager) RunMaster(ctx context.Context, fn func(ctxTx context.Context, tx pgx.Tx) error) error {
	return fn(ctx, fakeTx{conn: m.conn})
}

func (m *fakeManager) Conn() db.Transaction { return m.conn }

func sampleRow() journal.LedgerRow {
	return journal.LedgerRow{
		Time:         time.Date(2024, 3, 5, 14, 30, 15, 0, time.FixedZone("KST", 9*3600)),
		Symbol:       "BTCUSD_PERP",
		PositionSide: "BOTH",
		Side:         models.SideBuy,
		Qty:          decimal.NewFromInt(2),
		Price:        decimal.NewFromInt(65000),
		Fee:          decimal.RequireFromString("0.000001"),
		FeeAsset:     "BTC",
		PositionQty:  decimal.NewFromInt(2),
		EntryPrice:   decimal.NewFromInt(65000),
		Leverage:     10,
		MarginType:   "cross",
		MarginAsset:  "BTC",
		StopPrice:    decimal.NewNullDecimal(decimal.NewFromInt(64000)),
		OrderID:      777,
		TradeID:      12,
		Source:       models.SourceLive,
	}
}

func TestRowArgsOrder(t *testing.T) {
	args := rowArgs(sampleRow())
	require.Len(t, args, 22)

	assert.Equal(t, "BTCUSD_PERP", args[0])
	assert.EqualValues(t, 12, args[1])
	assert.EqualValues(t, 777, args[2])
	assert.Equal(t, time.UTC, args[3].(time.Time).Location())
	assert.Equal(t, "BUY", args[5])
	assert.Equal(t, 10, args[13])
	assert.True(t, args[18].(decimal.NullDecimal).Valid)
	assert.False(t, args[19].(decimal.NullDecimal).Valid)
	assert.Equal(t, "live", args[21])
}

func TestPublishInsertsWithConflictGuard(t *testing.T) {
	conn := &fakeConn{tag: "INSERT 0 1"}
	m := NewLedgerMirror(&fakeManager{conn: conn}, zap.NewNop())

	require.NoError(t, m.Publish(context.Background(), sampleRow()))
	require.Len(t, conn.calls, 1)
	assert.Contains(t, conn.calls[0].sql, "ON CONFLICT (symbol, trade_id) DO NOTHING")
	assert.Len(t, conn.calls[0].args, 22)
	assert.Equal(t, "postgres", m.Name())
}

func TestPublishDuplicateIsNotAnError(t *testing.T) {
	conn := &fakeConn{tag: "INSERT 0 0"}
	m := NewLedgerMirror(&fakeManager{conn: conn}, zap.NewNop())
	assert.NoError(t, m.Publish(context.Background(), sampleRow()))
}

func TestPublishWrapsErrors(t *testing.T) {
	conn := &fakeConn{err: errors.New("connection refused")}
	m := NewLedgerMirror(&fakeManager{conn: conn}, zap.NewNop())

	err := m.Publish(context.Background(), sampleRow())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pg.Publish")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestEnsureSchemaRunsInTransaction(t *testing.T) {
	conn := &fakeConn{tag: "CREATE TABLE"}
	m := NewLedgerMirror(&fakeManager{conn: conn}, zap.NewNop())

	require.NoError(t, m.EnsureSchema(context.Background()))
	require.Len(t, conn.calls, 2)
	assert.Contains(t, conn.calls[0].sql, "CREATE TABLE IF NOT EXISTS journal_trades")
	assert.Contains(t, conn.calls[1].sql, "journal_trades_ts_idx")
}
