package journal

import (
	"strings"
	"trade_journal/internal/models"

	"github.com/shopspring/decimal"
)

// RiskMultiple: результат сделки в единицах начального риска (R).
// Считается только если сделка уменьшила позицию и известен стоп.
// Long:  (price - entry) / (entry - stop)
// Short: (entry - price) / (stop - entry)
// Плюс: прибыль в обе стороны.
func RiskMultiple(ev models.TradeEvent, after models.PositionSnapshot) decimal.NullDecimal {
	if !after.StopPrice.Valid {
		return decimal.NullDecimal{}
	}
	stop := after.StopPrice.Decimal
	entry := after.Entry
	if entry.IsZero() || entry.Equal(stop) {
		return decimal.NullDecimal{}
	}

	before := after.Qty.Sub(ev.SignedQty())
	if before.IsZero() || after.Qty.Abs().GreaterThanOrEqual(before.Abs()) {
		return decimal.NullDecimal{}
	}

	var move, risk decimal.Decimal
	if before.Sign() > 0 {
		move = ev.Price.Sub(entry)
		risk = entry.Sub(stop)
	} else {
		move = entry.Sub(ev.Price)
		risk = stop.Sub(entry)
	}
	if risk.IsZero() {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(move.DivRound(risk, 8))
}

var (
	stopOrderTypes = map[string]bool{"STOP": true, "STOP_MARKET": true, "STOP_LOSS": true, "STOP_LOSS_LIMIT": true}
	takeOrderTypes = map[string]bool{"TAKE_PROFIT": true, "TAKE_PROFIT_MARKET": true, "TAKE_PROFIT_LIMIT": true}
)

// ResolveProtective ищет стоп и тейк среди reduce-only ордеров закрывающей стороны:
// стоп: минимальный триггер стоп-типа, тейк, максимальный триггер тейк-типа.
func ResolveProtective(qty, entry decimal.Decimal, orders []models.OpenOrder) (stop, take decimal.NullDecimal) {
	if qty.IsZero() || entry.IsZero() {
		return
	}
	closing := models.SideSell
	if qty.Sign() < 0 {
		closing = models.SideBuy
	}

	for _, o := range orders {
		if !o.ReduceOnly || o.Side != closing {
			continue
		}
		px := o.TriggerPrice()
		if px.Sign() <= 0 {
			continue
		}
		switch typ := strings.ToUpper(o.Type); {
		case stopOrderTypes[typ]:
			if !stop.Valid || px.LessThan(stop.Decimal) {
				stop = decimal.NewNullDecimal(px)
			}
		case takeOrderTypes[typ]:
			if !take.Valid || px.GreaterThan(take.Decimal) {
				take = decimal.NewNullDecimal(px)
			}
		}
	}
	return
}

// PositionMargin: для isolated берём то, что отдала биржа, для cross считаем оценку
// |qty| * contractSize / entry / leverage в монетах.
func PositionMargin(pos models.PositionSnapshot, contractSize decimal.Decimal) decimal.Decimal {
	if pos.MarginType == "isolated" {
		return pos.IsolatedMargin
	}
	if pos.Qty.IsZero() || pos.Entry.IsZero() || contractSize.IsZero() {
		return decimal.Zero
	}
	lev := pos.Leverage
	if lev <= 0 {
		lev = 1
	}
	return pos.Qty.Abs().
		Mul(contractSize).
		DivRound(pos.Entry, 12).
		DivRound(decimal.NewFromInt(int64(lev)), 12)
}

// BuildRow собирает строку журнала из сделки и снапшота позиции после неё.
func BuildRow(ev models.TradeEvent, pos models.PositionSnapshot, contractSize decimal.Decimal) LedgerRow {
	source := ev.Source
	if source == "" {
		source = models.SourceLive
	}
	return LedgerRow{
		Time:            ev.Time(),
		Symbol:          ev.Symbol,
		PositionSide:    pos.Side(),
		Side:            ev.Side,
		Qty:             ev.Qty,
		Price:           ev.Price,
		RealizedPnl:     ev.RealizedPnl,
		Fee:             ev.Fee,
		FeeAsset:        ev.FeeAsset,
		PositionQty:     pos.Qty,
		EntryPrice:      pos.Entry,
		Leverage:        pos.Leverage,
		MarginType:      pos.MarginType,
		MarginAsset:     pos.MarginAsset,
		PositionMargin:  PositionMargin(pos, contractSize),
		UnrealizedPnl:   pos.UnrealizedPnl,
		StopPrice:       pos.StopPrice,
		TakeProfitPrice: pos.TakeProfitPrice,
		RMultiple:       RiskMultiple(ev, pos),
		OrderID:         ev.OrderID,
		TradeID:         ev.TradeID,
		Source:          source,
	}
}
