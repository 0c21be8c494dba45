package journal

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"
	"trade_journal/internal/models"
	healthsvc "trade_journal/internal/modules/health/service"
	"trade_journal/pkg/retry"
	"trade_journal/pkg/tracing"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// LedgerAppender: куда процессор пишет строку. Append возвращается после записи на диск.
type LedgerAppender interface {
	Append(row LedgerRow) error
}

// Trigger: отложенный побочный эффект после записи.
type Trigger interface {
	Trigger()
}

type ProcessorConfig struct {
	SettleDelay       time.Duration
	StabilizeAttempts int
	StabilizeDelay    time.Duration
	Retry             retry.Policy
	SinkTimeout       time.Duration
}

// Processor: единственный потребитель очереди.
type Processor struct {
	cfg       ProcessorConfig
	ex        Exchange
	contracts ContractSizer
	queue     *Queue
	state     *StateStore
	active    *ActiveSet
	ledger    LedgerAppender
	trigger   Trigger
	sinks     []RowSink
	metrics   *healthsvc.Metrics
	health    *healthsvc.State
	log       *zap.Logger
}

type ProcessorDeps struct {
	Exchange  Exchange
	Contracts ContractSizer
	Queue     *Queue
	State     *StateStore
	Active    *ActiveSet
	Ledger    LedgerAppender
	Trigger   Trigger
	Sinks     []RowSink
	Metrics   *healthsvc.Metrics
	Health    *healthsvc.State
	Log       *zap.Logger
}

func NewProcessor(cfg ProcessorConfig, d ProcessorDeps) *Processor {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Metrics == nil {
		d.Metrics = healthsvc.NewMetrics()
	}
	if d.Health == nil {
		d.Health = healthsvc.NewState()
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = 5 * time.Second
	}
	return &Processor{
		cfg:       cfg,
		ex:        d.Exchange,
		contracts: d.Contracts,
		queue:     d.Queue,
		state:     d.State,
		active:    d.Active,
		ledger:    d.Ledger,
		trigger:   d.Trigger,
		sinks:     d.Sinks,
		metrics:   d.Metrics,
		health:    d.Health,
		log:       d.Log,
	}
}

// Run разбирает очередь до отмены ctx. Ошибка одного события не останавливает цикл.
func (p *Processor) Run(ctx context.Context) {
	for {
		ev, err := p.queue.Get(ctx)
		if err != nil {
			return
		}
		p.metrics.QueueDepth.Set(float64(p.queue.Len()))

		if err := p.Handle(ctx, ev); err != nil {
			if ctx.Err() != nil {
				// остановка посреди обработки: водяной знак не сдвинут, добор при следующем старте
				return
			}
			p.metrics.ProcessErrors.Inc()
			p.log.Error("trade dropped",
				zap.String("symbol", ev.Symbol),
				zap.Int64("trade_id", ev.TradeID),
				zap.String("source", string(ev.Source)),
				zap.Error(err),
			)
		}
	}
}

// Handle обрабатывает одно событие. Повтор уже записанной сделки: не ошибка.
func (p *Processor) Handle(ctx context.Context, ev models.TradeEvent) (err error) {
	span, ctx := tracing.StartSpan(ctx, "journal.process", opentracing.Tags{
		"symbol":   ev.Symbol,
		"trade_id": ev.TradeID,
		"source":   string(ev.Source),
	})
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while processing trade: %v\n%s", r, debug.Stack())
		}
		tracing.Finish(span, err)
	}()

	if p.state.IsProcessed(ev.Symbol, ev.TradeID) {
		p.metrics.TradesDuplicate.WithLabelValues(string(ev.Source)).Inc()
		return nil
	}
	p.active.Add(ev.Symbol)

	if err := sleepCtx(ctx, p.cfg.SettleDelay); err != nil {
		return err
	}

	pos := p.stableSnapshot(ctx, ev.Symbol)
	if !pos.Stable {
		p.metrics.UnstableSnapshot.Inc()
	}
	if pos.IsOpen() && !pos.Entry.IsZero() {
		orders, oErr := retry.Do(ctx, p.cfg.Retry, func() ([]models.OpenOrder, error) {
			return p.ex.OpenOrders(ctx, ev.Symbol)
		})
		if oErr != nil {
			p.log.Warn("open orders unavailable", zap.String("symbol", ev.Symbol), zap.Error(oErr))
		} else {
			pos.StopPrice, pos.TakeProfitPrice = ResolveProtective(pos.Qty, pos.Entry, orders)
		}
	}

	contractSize := decimal.Zero
	if p.contracts != nil {
		cs, csErr := p.contracts.ContractSize(ctx, ev.Symbol)
		if csErr != nil {
			p.log.Debug("contract size unavailable", zap.String("symbol", ev.Symbol), zap.Error(csErr))
		} else {
			contractSize = cs
		}
	}

	row := BuildRow(ev, pos, contractSize)

	// повтор мог прийти, пока ждали биржу
	if p.state.IsProcessed(ev.Symbol, ev.TradeID) {
		p.metrics.TradesDuplicate.WithLabelValues(string(ev.Source)).Inc()
		return nil
	}

	start := time.Now()
	if err := p.ledger.Append(row); err != nil {
		return errors.Wrap(err, "append ledger row")
	}
	p.metrics.LedgerAppendDur.Observe(time.Since(start).Seconds())

	p.state.RecordProcessed(ev.Symbol, ev.TradeID, ev.EventTS)
	p.metrics.TradesRecorded.WithLabelValues(string(row.Source)).Inc()
	p.health.TouchTrade(ev.Time())

	p.log.Info("trade recorded",
		zap.String("symbol", ev.Symbol),
		zap.Int64("trade_id", ev.TradeID),
		zap.String("side", string(ev.Side)),
		zap.String("qty", ev.Qty.String()),
		zap.String("price", ev.Price.String()),
		zap.String("position_qty", pos.Qty.String()),
		zap.String("source", string(row.Source)),
	)

	if p.trigger != nil {
		p.trigger.Trigger()
	}
	p.fanOut(ctx, row)
	return nil
}

func (p *Processor) fanOut(ctx context.Context, row LedgerRow) {
	for _, s := range p.sinks {
		sctx, cancel := context.WithTimeout(ctx, p.cfg.SinkTimeout)
		err := s.Publish(sctx, row)
		cancel()
		if err != nil {
			p.metrics.SinkErrors.WithLabelValues(s.Name()).Inc()
			p.log.Warn("sink publish failed",
				zap.String("sink", s.Name()),
				zap.String("symbol", row.Symbol),
				zap.Int64("trade_id", row.TradeID),
				zap.Error(err),
			)
		}
	}
}

// stableSnapshot перечитывает позицию, пока количество не перестанет меняться.
// Не дождались: отдаём последнее чтение со Stable=false. Биржа недоступна, пустой снапшот.
func (p *Processor) stableSnapshot(ctx context.Context, symbol string) models.PositionSnapshot {
	prev, err := p.readPosition(ctx, symbol)
	if err != nil {
		p.log.Warn("position unavailable", zap.String("symbol", symbol), zap.Error(err))
		return models.EmptyPosition(symbol)
	}
	if p.cfg.StabilizeAttempts <= 0 {
		prev.Stable = true
		return prev
	}

	for i := 0; i < p.cfg.StabilizeAttempts; i++ {
		if err := sleepCtx(ctx, p.cfg.StabilizeDelay); err != nil {
			return prev
		}
		cur, err := p.readPosition(ctx, symbol)
		if err != nil {
			p.log.Warn("position re-read failed", zap.String("symbol", symbol), zap.Error(err))
			return prev
		}
		if cur.Qty.Equal(prev.Qty) {
			cur.Stable = true
			return cur
		}
		prev = cur
	}
	p.log.Debug("position did not stabilize", zap.String("symbol", symbol), zap.String("qty", prev.Qty.String()))
	return prev
}

func (p *Processor) readPosition(ctx context.Context, symbol string) (models.PositionSnapshot, error) {
	all, err := retry.Do(ctx, p.cfg.Retry, func() ([]models.PositionSnapshot, error) {
		return p.ex.Positions(ctx)
	})
	if err != nil {
		return models.PositionSnapshot{}, err
	}
	return pickPosition(all, symbol), nil
}

// pickPosition: в hedge-режиме на символ может быть несколько строк, берём ненулевую.
func pickPosition(all []models.PositionSnapshot, symbol string) models.PositionSnapshot {
	var found *models.PositionSnapshot
	for i := range all {
		if all[i].Symbol != symbol {
			continue
		}
		if all[i].IsOpen() {
			return all[i]
		}
		if found == nil {
			found = &all[i]
		}
	}
	if found != nil {
		return *found
	}
	return models.EmptyPosition(symbol)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
