package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Source: откуда пришло событие, живой поток или догрузка истории.
type Source string

const (
	SourceLive     Source = "live"
	SourceBackfill Source = "backfill"
)

// TradeEvent: одно исполнение (fill) по инструменту.
// Передаётся по значению и после создания не меняется.
type TradeEvent struct {
	Symbol      string
	TradeID     int64 // монотонно растёт в пределах символа, по нему идёт дедуп
	Side        Side
	Qty         decimal.Decimal
	Price       decimal.Decimal
	RealizedPnl decimal.Decimal
	Fee         decimal.Decimal
	FeeAsset    string
	OrderID     int64
	EventTS     int64 // ms since epoch
	Source      Source
}

func (e TradeEvent) Time() time.Time { return time.UnixMilli(e.EventTS) }

// SignedQty: изменение позиции от этой сделки, +qty для BUY, -qty для SELL.
func (e TradeEvent) SignedQty() decimal.Decimal {
	if e.Side == SideSell {
		return e.Qty.Neg()
	}
	return e.Qty
}
