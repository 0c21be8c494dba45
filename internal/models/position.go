package models

import "github.com/shopspring/decimal"

// PositionSnapshot: состояние позиции по символу на момент чтения.
type PositionSnapshot struct {
	Symbol         string
	Qty            decimal.Decimal // со знаком: >0 long, <0 short
	Entry          decimal.Decimal
	UnrealizedPnl  decimal.Decimal
	Leverage       int
	MarginType     string // cross / isolated
	MarginAsset    string
	IsolatedMargin decimal.Decimal

	StopPrice       decimal.NullDecimal
	TakeProfitPrice decimal.NullDecimal

	// Stable=false: количество так и не перестало меняться между чтениями.
	Stable bool
}

// EmptyPosition: позиция "нет данных / закрыта".
func EmptyPosition(symbol string) PositionSnapshot {
	return PositionSnapshot{
		Symbol:     symbol,
		Leverage:   1,
		MarginType: "cross",
	}
}

func (p PositionSnapshot) IsOpen() bool { return !p.Qty.IsZero() }

// Side: LONG / SHORT / "" по знаку количества.
func (p PositionSnapshot) Side() string {
	switch p.Qty.Sign() {
	case 1:
		return "LONG"
	case -1:
		return "SHORT"
	}
	return ""
}

// OpenOrder: открытый ордер, нужен только для поиска SL/TP.
type OpenOrder struct {
	Symbol     string
	Side       Side
	Type       string // STOP_MARKET, TAKE_PROFIT_MARKET, LIMIT, ...
	StopPrice  decimal.Decimal
	Price      decimal.Decimal
	ReduceOnly bool
}

// TriggerPrice: stopPrice, а если его нет, цена лимитки.
func (o OpenOrder) TriggerPrice() decimal.Decimal {
	if !o.StopPrice.IsZero() {
		return o.StopPrice
	}
	return o.Price
}
