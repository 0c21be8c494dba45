package journal

import (
	"context"
	"errors"
	"sort"
	"sync"
	"trade_journal/internal/models"

	"github.com/shopspring/decimal"
)

type tradesCall struct {
	symbol string
	start  int64
	limit  int
}

type fakeExchange struct {
	mu sync.Mutex

	trades    map[string][]models.TradeEvent
	positions []models.PositionSnapshot
	orders    map[string][]models.OpenOrder

	tradeFailures    int // сколько первых вызовов AccountTrades упадут
	positionFailures int
	panicCalls       int // сколько первых вызовов Positions запаникуют

	// positionSeq: ответы Positions по очереди, последний повторяется
	positionSeq   [][]models.PositionSnapshot
	positionReads int

	calls []tradesCall
}

func newFakeExchange() *fakeExchange {
	return &fakeExchange{
		trades: make(map[string][]models.TradeEvent),
		orders: make(map[string][]models.OpenOrder),
	}
}

var errFakeNetwork = errors.New("fake network error")

func (f *fakeExchange) AccountTrades(_ context.Context, symbol string, startTime int64, limit int) ([]models.TradeEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, tradesCall{symbol: symbol, start: startTime, limit: limit})
	if f.tradeFailures > 0 {
		f.tradeFailures--
		return nil, errFakeNetwork
	}

	var out []models.TradeEvent
	for _, t := range f.trades[symbol] {
		if t.EventTS >= startTime {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EventTS < out[j].EventTS })
	if len(out) > limit {
		out = out[:limit]
	}
	// биржа не обещает порядок внутри страницы
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (f *fakeExchange) Positions(_ context.Context) ([]models.PositionSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.positionFailures > 0 {
		f.positionFailures--
		return nil, errFakeNetwork
	}
	if f.panicCalls > 0 {
		f.panicCalls--
		panic("broken position payload")
	}
	f.positionReads++
	if len(f.positionSeq) > 0 {
		cur := f.positionSeq[0]
		if len(f.positionSeq) > 1 {
			f.positionSeq = f.positionSeq[1:]
		}
		return append([]models.PositionSnapshot(nil), cur...), nil
	}
	return append([]models.PositionSnapshot(nil), f.positions...), nil
}

func (f *fakeExchange) OpenOrders(_ context.Context, symbol string) ([]models.OpenOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.OpenOrder(nil), f.orders[symbol]...), nil
}

func (f *fakeExchange) setPositions(p ...models.PositionSnapshot) {
	f.mu.Lock()
	f.positions = p
	f.mu.Unlock()
}

// driftPositions: количество позиции symbol меняется от чтения к чтению.
func (f *fakeExchange) driftPositions(symbol string, qtys ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.positionSeq = nil
	for _, q := range qtys {
		f.positionSeq = append(f.positionSeq, []models.PositionSnapshot{{
			Symbol: symbol, Qty: dec(q), Entry: dec("100"), Leverage: 5, MarginType: "cross",
		}})
	}
}

func (f *fakeExchange) reads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.positionReads
}

func (f *fakeExchange) tradeCalls() []tradesCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tradesCall(nil), f.calls...)
}

type fixedContracts map[string]decimal.Decimal

func (c fixedContracts) ContractSize(_ context.Context, symbol string) (decimal.Decimal, error) {
	return c[symbol], nil
}

type countingTrigger struct {
	mu sync.Mutex
	n  int
}

func (c *countingTrigger) Trigger() {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func (c *countingTrigger) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

type recordingSink struct {
	mu   sync.Mutex
	rows []LedgerRow
	err  error
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Publish(_ context.Context, row LedgerRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, row)
	return s.err
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func trade(symbol string, id, ts int64) models.TradeEvent {
	return models.TradeEvent{
		Symbol:   symbol,
		TradeID:  id,
		Side:     models.SideBuy,
		Qty:      dec("1"),
		Price:    dec("100"),
		Fee:      dec("0.001"),
		FeeAsset: "BTC",
		OrderID:  id * 10,
		EventTS:  ts,
		Source:   models.SourceLive,
	}
}
