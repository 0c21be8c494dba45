package service

import (
	"context"
	"errors"
	"testing"
	"time"
	"trade_journal/internal/journal"
	"trade_journal/internal/models"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	subject string
	data    []byte
}

type fakeConn struct {
	msgs []published
	err  error
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, published{subject: subject, data: data})
	return nil
}

func TestSubject(t *testing.T) {
	p := NewPublisher(&fakeConn{}, "journal.trades.")
	assert.Equal(t, "journal.trades.BTCUSD_PERP", p.Subject("BTCUSD_PERP"))
	assert.Equal(t, "journal.trades.ETHUSD_240628", p.Subject("ETHUSD_240628"))
	assert.Equal(t, "journal.trades.A_B", p.Subject("A.B"))

	assert.Equal(t, "journal.trades.X", NewPublisher(&fakeConn{}, "").Subject("X"))
}

func TestPublishPayload(t *testing.T) {
	conn := &fakeConn{}
	p := NewPublisher(conn, "desk")

	row := journal.LedgerRow{
		Time:      time.UnixMilli(1700000000190),
		Symbol:    "BTCUSD_PERP",
		Side:      models.SideSell,
		Qty:       decimal.NewFromInt(3),
		Price:     decimal.RequireFromString("65000.5"),
		RMultiple: decimal.NewNullDecimal(decimal.RequireFromString("2")),
		TradeID:   12,
		Source:    models.SourceBackfill,
	}
	require.NoError(t, p.Publish(context.Background(), row))
	require.Len(t, conn.msgs, 1)
	assert.Equal(t, "desk.BTCUSD_PERP", conn.msgs[0].subject)

	var got map[string]any
	require.NoError(t, sonic.Unmarshal(conn.msgs[0].data, &got))
	assert.Equal(t, "2023-11-14T22:13:20.190Z", got["time"])
	assert.Equal(t, "SELL", got["side"])
	assert.Equal(t, "65000.5", got["price"])
	assert.Equal(t, "2", got["r_multiple"])
	assert.Nil(t, got["stop_price"])
	assert.EqualValues(t, 12, got["trade_id"])
	assert.Equal(t, "backfill", got["source"])
}

func TestPublishError(t *testing.T) {
	p := NewPublisher(&fakeConn{err: errors.New("nats: connection closed")}, "desk")
	err := p.Publish(context.Background(), journal.LedgerRow{Symbol: "BTCUSD_PERP"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish BTCUSD_PERP")
}
