package service

import (
	"strings"
	"trade_journal/internal/models"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

type frameKind int

const (
	frameIgnored frameKind = iota
	frameTrade
	frameListenKeyExpired
)

type userDataFrame struct {
	Event     string       `json:"e"`
	EventTime int64        `json:"E"`
	Order     *orderUpdate `json:"o"`
}

// orderUpdate: поле "o" события ORDER_TRADE_UPDATE (coin-M).
type orderUpdate struct {
	Symbol         string `json:"s"`
	Side           string `json:"S"`
	OrderType      string `json:"o"`
	ExecType       string `json:"x"`
	OrderStatus    string `json:"X"`
	OrderID        int64  `json:"i"`
	LastQty        string `json:"l"`
	LastPrice      string `json:"L"`
	AvgPrice       string `json:"ap"`
	Commission     string `json:"n"`
	CommissionAsst string `json:"N"`
	TradeTime      int64  `json:"T"`
	TradeID        int64  `json:"t"`
	RealizedProfit string `json:"rp"`
}

func dec(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// normalize превращает кадр user data stream в TradeEvent.
// Сделкой считается только ORDER_TRADE_UPDATE с x=TRADE и l>0;
// подтверждения, отмены и прочие апдейты ордера пропускаются.
func normalize(raw []byte) (models.TradeEvent, frameKind, error) {
	var f userDataFrame
	if err := sonic.Unmarshal(raw, &f); err != nil {
		return models.TradeEvent{}, frameIgnored, errors.Wrap(err, "decode frame")
	}

	switch f.Event {
	case "listenKeyExpired":
		return models.TradeEvent{}, frameListenKeyExpired, nil
	case "ORDER_TRADE_UPDATE":
	default:
		return models.TradeEvent{}, frameIgnored, nil
	}

	o := f.Order
	if o == nil || !strings.EqualFold(o.ExecType, "TRADE") {
		return models.TradeEvent{}, frameIgnored, nil
	}
	qty := dec(o.LastQty)
	if qty.Sign() <= 0 || o.Symbol == "" {
		return models.TradeEvent{}, frameIgnored, nil
	}

	price := dec(o.LastPrice)
	if price.IsZero() {
		price = dec(o.AvgPrice)
	}
	ts := o.TradeTime
	if ts == 0 {
		ts = f.EventTime
	}

	return models.TradeEvent{
		Symbol:      o.Symbol,
		TradeID:     o.TradeID,
		Side:        models.Side(strings.ToUpper(o.Side)),
		Qty:         qty,
		Price:       price,
		RealizedPnl: dec(o.RealizedProfit),
		Fee:         dec(o.Commission),
		FeeAsset:    o.CommissionAsst,
		OrderID:     o.OrderID,
		EventTS:     ts,
		Source:      models.SourceLive,
	}, frameTrade, nil
}
