package journal

import (
	"testing"
	"trade_journal/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fill(side models.Side, qty, price string) models.TradeEvent {
	return models.TradeEvent{Symbol: "XRPUSD_PERP", Side: side, Qty: dec(qty), Price: dec(price)}
}

func position(qty, entry string, stop string) models.PositionSnapshot {
	p := models.PositionSnapshot{Symbol: "XRPUSD_PERP", Qty: dec(qty), Entry: dec(entry), Leverage: 1, MarginType: "cross"}
	if stop != "" {
		p.StopPrice = decimal.NewNullDecimal(dec(stop))
	}
	return p
}

func TestRiskMultipleLongReduction(t *testing.T) {
	// long 100 -> 40, вход 2.00, стоп 1.90, выход 2.20
	r := RiskMultiple(fill(models.SideSell, "60", "2.20"), position("40", "2.00", "1.90"))
	require.True(t, r.Valid)
	assert.True(t, r.Decimal.Equal(dec("2")), r.Decimal.String())
}

func TestRiskMultipleShortReduction(t *testing.T) {
	// short -100 -> -40, вход 2.00, стоп 2.10, выход 1.80
	r := RiskMultiple(fill(models.SideBuy, "60", "1.80"), position("-40", "2.00", "2.10"))
	require.True(t, r.Valid)
	assert.True(t, r.Decimal.Equal(dec("2")), r.Decimal.String())

	// выход по стопу даёт -1R
	r = RiskMultiple(fill(models.SideBuy, "60", "2.10"), position("-40", "2.00", "2.10"))
	require.True(t, r.Valid)
	assert.True(t, r.Decimal.Equal(dec("-1")), r.Decimal.String())
}

func TestRiskMultipleSkipped(t *testing.T) {
	cases := map[string]struct {
		ev  models.TradeEvent
		pos models.PositionSnapshot
	}{
		"increase":          {fill(models.SideBuy, "60", "2.20"), position("160", "2.00", "1.90")},
		"no stop":           {fill(models.SideSell, "60", "2.20"), position("40", "2.00", "")},
		"entry equals stop": {fill(models.SideSell, "60", "2.20"), position("40", "2.00", "2.00")},
		"zero entry":        {fill(models.SideSell, "60", "2.20"), position("40", "0", "1.90")},
		"opening trade":     {fill(models.SideBuy, "40", "2.00"), position("40", "2.00", "1.90")},
		"flip":              {fill(models.SideSell, "200", "2.20"), position("-100", "2.20", "2.30")},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			assert.False(t, RiskMultiple(c.ev, c.pos).Valid)
		})
	}
}

func TestResolveProtective(t *testing.T) {
	orders := []models.OpenOrder{
		{Side: models.SideSell, Type: "STOP_MARKET", StopPrice: dec("1.90"), ReduceOnly: true},
		{Side: models.SideSell, Type: "STOP", StopPrice: dec("1.85"), Price: dec("1.84"), ReduceOnly: true},
		{Side: models.SideSell, Type: "TAKE_PROFIT_MARKET", StopPrice: dec("2.40"), ReduceOnly: true},
		{Side: models.SideSell, Type: "TAKE_PROFIT", StopPrice: dec("2.60"), ReduceOnly: true},
		// не reduce-only и не та сторона: мимо
		{Side: models.SideSell, Type: "STOP_MARKET", StopPrice: dec("1.50"), ReduceOnly: false},
		{Side: models.SideBuy, Type: "TAKE_PROFIT_MARKET", StopPrice: dec("3.00"), ReduceOnly: true},
		{Side: models.SideSell, Type: "LIMIT", Price: dec("2.90"), ReduceOnly: true},
	}

	stop, take := ResolveProtective(dec("40"), dec("2.00"), orders)
	require.True(t, stop.Valid)
	require.True(t, take.Valid)
	assert.True(t, stop.Decimal.Equal(dec("1.85")))
	assert.True(t, take.Decimal.Equal(dec("2.60")))

	stop, take = ResolveProtective(dec("-40"), dec("2.00"), orders)
	assert.False(t, stop.Valid)
	require.True(t, take.Valid)
	assert.True(t, take.Decimal.Equal(dec("3.00")))

	stop, take = ResolveProtective(decimal.Zero, dec("2.00"), orders)
	assert.False(t, stop.Valid)
	assert.False(t, take.Valid)
}

func TestPositionMargin(t *testing.T) {
	cross := models.PositionSnapshot{Qty: dec("-10"), Entry: dec("2"), Leverage: 5, MarginType: "cross"}
	assert.True(t, PositionMargin(cross, dec("100")).Equal(dec("100")))
	assert.True(t, PositionMargin(cross, decimal.Zero).IsZero())

	isolated := models.PositionSnapshot{Qty: dec("10"), Entry: dec("2"), Leverage: 5, MarginType: "isolated", IsolatedMargin: dec("12.5")}
	assert.True(t, PositionMargin(isolated, dec("100")).Equal(dec("12.5")))
}

func TestBuildRow(t *testing.T) {
	ev := fill(models.SideSell, "60", "2.20")
	ev.TradeID = 12
	ev.OrderID = 99
	ev.EventTS = 1700000000000
	ev.Source = models.SourceBackfill

	pos := position("40", "2.00", "1.90")
	pos.MarginAsset = "XRP"
	row := BuildRow(ev, pos, dec("10"))

	assert.Equal(t, "LONG", row.PositionSide)
	assert.Equal(t, models.SideSell, row.Side)
	assert.True(t, row.PositionQty.Equal(dec("40")))
	assert.True(t, row.PositionMargin.Equal(dec("200")))
	assert.True(t, row.RMultiple.Valid)
	assert.EqualValues(t, 12, row.TradeID)
	assert.Equal(t, models.SourceBackfill, row.Source)

	row = BuildRow(ev, models.EmptyPosition("XRPUSD_PERP"), decimal.Zero)
	assert.Equal(t, "", row.PositionSide)
	assert.False(t, row.RMultiple.Valid)
}
