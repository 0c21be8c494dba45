package service

import (
	"context"
	"strings"
	"trade_journal/internal/journal"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Conn: часть *nats.Conn, которой достаточно для публикации.
type Conn interface {
	Publish(subject string, data []byte) error
}

// RowMessage: JSON-представление строки журнала в шине.
type RowMessage struct {
	Time            string              `json:"time"`
	Symbol          string              `json:"symbol"`
	PositionSide    string              `json:"position_side"`
	Side            string              `json:"side"`
	Qty             decimal.Decimal     `json:"qty"`
	Price           decimal.Decimal     `json:"price"`
	RealizedPnl     decimal.Decimal     `json:"realized_pnl"`
	Fee             decimal.Decimal     `json:"fee"`
	FeeAsset        string              `json:"fee_asset"`
	PositionQty     decimal.Decimal     `json:"position_qty"`
	EntryPrice      decimal.Decimal     `json:"entry_price"`
	Leverage        int                 `json:"leverage"`
	MarginType      string              `json:"margin_type"`
	MarginAsset     string              `json:"margin_asset"`
	PositionMargin  decimal.Decimal     `json:"position_margin"`
	UnrealizedPnl   decimal.Decimal     `json:"unrealized_pnl"`
	StopPrice       decimal.NullDecimal `json:"stop_price"`
	TakeProfitPrice decimal.NullDecimal `json:"take_profit_price"`
	RMultiple       decimal.NullDecimal `json:"r_multiple"`
	OrderID         int64               `json:"order_id"`
	TradeID         int64               `json:"trade_id"`
	Source          string              `json:"source"`
}

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

func toMessage(r journal.LedgerRow) RowMessage {
	return RowMessage{
		Time:            r.Time.UTC().Format(timeLayout),
		Symbol:          r.Symbol,
		PositionSide:    r.PositionSide,
		Side:            string(r.Side),
		Qty:             r.Qty,
		Price:           r.Price,
		RealizedPnl:     r.RealizedPnl,
		Fee:             r.Fee,
		FeeAsset:        r.FeeAsset,
		PositionQty:     r.PositionQty,
		EntryPrice:      r.EntryPrice,
		Leverage:        r.Leverage,
		MarginType:      r.MarginType,
		MarginAsset:     r.MarginAsset,
		PositionMargin:  r.PositionMargin,
		UnrealizedPnl:   r.UnrealizedPnl,
		StopPrice:       r.StopPrice,
		TakeProfitPrice: r.TakeProfitPrice,
		RMultiple:       r.RMultiple,
		OrderID:         r.OrderID,
		TradeID:         r.TradeID,
		Source:          string(r.Source),
	}
}

// Publisher рассылает записанные строки журнала в <prefix>.<symbol>.
type Publisher struct {
	conn   Conn
	prefix string
}

func NewPublisher(conn Conn, prefix string) *Publisher {
	prefix = strings.TrimSuffix(prefix, ".")
	if prefix == "" {
		prefix = "journal.trades"
	}
	return &Publisher{conn: conn, prefix: prefix}
}

func (p *Publisher) Name() string { return "nats" }

// Subject: точки и пробелы в символе заменяются, чтобы не ломать иерархию темы.
func (p *Publisher) Subject(symbol string) string {
	return p.prefix + "." + strings.NewReplacer(".", "_", " ", "_").Replace(symbol)
}

func (p *Publisher) Publish(_ context.Context, row journal.LedgerRow) error {
	data, err := sonic.Marshal(toMessage(row))
	if err != nil {
		return errors.Wrap(err, "marshal row")
	}
	return errors.Wrapf(p.conn.Publish(p.Subject(row.Symbol), data), "publish %s", row.Symbol)
}
