package service

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"trade_journal/internal/models"

	"github.com/shopspring/decimal"
)

func parseDec(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// AccountTrades: GET /dapi/v1/userTrades. startTime=0, без фильтра по времени.
func (c *Client) AccountTrades(ctx context.Context, symbol string, startTime int64, limit int) ([]models.TradeEvent, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	if startTime > 0 {
		params.Set("startTime", strconv.FormatInt(startTime, 10))
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var raw []userTrade
	if err := c.do(ctx, http.MethodGet, "/dapi/v1/userTrades", params, authSigned, &raw); err != nil {
		return nil, err
	}

	out := make([]models.TradeEvent, 0, len(raw))
	for _, t := range raw {
		sym := t.Symbol
		if sym == "" {
			sym = symbol
		}
		out = append(out, models.TradeEvent{
			Symbol:      sym,
			TradeID:     t.ID,
			Side:        models.Side(strings.ToUpper(t.Side)),
			Qty:         parseDec(t.Qty),
			Price:       parseDec(t.Price),
			RealizedPnl: parseDec(t.RealizedPnl),
			Fee:         parseDec(t.Commission),
			FeeAsset:    t.CommissionAsset,
			OrderID:     t.OrderID,
			EventTS:     t.Time,
			Source:      models.SourceBackfill,
		})
	}
	return out, nil
}

// Positions: GET /dapi/v1/positionRisk, все позиции аккаунта.
func (c *Client) Positions(ctx context.Context) ([]models.PositionSnapshot, error) {
	var raw []positionRisk
	if err := c.do(ctx, http.MethodGet, "/dapi/v1/positionRisk", nil, authSigned, &raw); err != nil {
		return nil, err
	}

	out := make([]models.PositionSnapshot, 0, len(raw))
	for _, p := range raw {
		lev, err := strconv.Atoi(p.Leverage)
		if err != nil || lev <= 0 {
			lev = 1
		}
		marginType := strings.ToLower(p.MarginType)
		if marginType == "" {
			marginType = "cross"
		}
		asset := p.MarginAsset
		if asset == "" {
			asset = MarginAssetOf(p.Symbol)
		}
		out = append(out, models.PositionSnapshot{
			Symbol:         p.Symbol,
			Qty:            parseDec(p.PositionAmt),
			Entry:          parseDec(p.EntryPrice),
			UnrealizedPnl:  parseDec(p.UnRealizedProfit),
			Leverage:       lev,
			MarginType:     marginType,
			MarginAsset:    asset,
			IsolatedMargin: parseDec(p.IsolatedMargin),
		})
	}
	return out, nil
}

// OpenOrders: GET /dapi/v1/openOrders по символу.
func (c *Client) OpenOrders(ctx context.Context, symbol string) ([]models.OpenOrder, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	var raw []openOrder
	if err := c.do(ctx, http.MethodGet, "/dapi/v1/openOrders", params, authSigned, &raw); err != nil {
		return nil, err
	}

	out := make([]models.OpenOrder, 0, len(raw))
	for _, o := range raw {
		out = append(out, models.OpenOrder{
			Symbol:     o.Symbol,
			Side:       models.Side(strings.ToUpper(o.Side)),
			Type:       strings.ToUpper(o.Type),
			StopPrice:  parseDec(o.StopPrice),
			Price:      parseDec(o.Price),
			ReduceOnly: o.ReduceOnly || o.ClosePosition,
		})
	}
	return out, nil
}

// MarginAssetOf: у coin-M маржа в базовой монете, BTCUSD_PERP -> BTC.
func MarginAssetOf(symbol string) string {
	if i := strings.Index(symbol, "USD"); i > 0 {
		return symbol[:i]
	}
	return ""
}
