package journal

import (
	"context"
	"sort"
	"sync"
	"time"
	"trade_journal/internal/models"
	healthsvc "trade_journal/internal/modules/health/service"
	"trade_journal/pkg/retry"
	"trade_journal/pkg/tracing"

	"github.com/opentracing/opentracing-go"
	"go.uber.org/zap"
)

type ReconcilerConfig struct {
	PageSize int
	Interval time.Duration
	Retry    retry.Policy
}

// Reconciler догружает из REST-истории всё, что новее водяного знака,
// и кладёт в ту же очередь. Страхует от пропусков живого потока.
type Reconciler struct {
	cfg     ReconcilerConfig
	ex      Exchange
	state   *StateStore
	active  *ActiveSet
	queue   *Queue
	metrics *healthsvc.Metrics
	log     *zap.Logger

	// проходы по таймеру и после переподключения не пересекаются
	passMu sync.Mutex
}

func NewReconciler(cfg ReconcilerConfig, ex Exchange, state *StateStore, active *ActiveSet, queue *Queue, metrics *healthsvc.Metrics, log *zap.Logger) *Reconciler {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 1000
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if metrics == nil {
		metrics = healthsvc.NewMetrics()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{
		cfg:     cfg,
		ex:      ex,
		state:   state,
		active:  active,
		queue:   queue,
		metrics: metrics,
		log:     log,
	}
}

// RunOnce делает один проход: поиск открытых позиций, затем добор по всем активным символам.
// Ошибка символа не прерывает проход; возвращается только отмена ctx.
func (r *Reconciler) RunOnce(ctx context.Context) (err error) {
	r.passMu.Lock()
	defer r.passMu.Unlock()

	span, ctx := tracing.StartSpan(ctx, "journal.backfill", nil)
	defer func() { tracing.Finish(span, err) }()

	r.discover(ctx)

	total := 0
	syms := r.active.Symbols()
	for _, sym := range syms {
		n, bErr := r.backfillSymbol(ctx, sym)
		total += n
		if bErr != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.metrics.BackfillErrors.Inc()
			r.log.Warn("backfill abandoned for this cycle", zap.String("symbol", sym), zap.Error(bErr))
		}
	}
	r.metrics.BackfillPasses.Inc()
	span.SetTag("symbols", len(syms))
	span.SetTag("enqueued", total)

	if total > 0 {
		r.log.Info("backfill pass", zap.Int("symbols", len(syms)), zap.Int("enqueued", total))
	} else {
		r.log.Debug("backfill pass", zap.Int("symbols", len(syms)))
	}
	return nil
}

// discover добавляет символы с ненулевой позицией в активный набор.
func (r *Reconciler) discover(ctx context.Context) {
	positions, err := retry.Do(ctx, r.cfg.Retry, func() ([]models.PositionSnapshot, error) {
		return r.ex.Positions(ctx)
	})
	if err != nil {
		r.log.Warn("position discovery failed", zap.Error(err))
		return
	}
	for _, p := range positions {
		if !p.IsOpen() {
			continue
		}
		if r.active.Add(p.Symbol) {
			r.metrics.DiscoveredSymbol.Inc()
			r.log.Info("symbol discovered from open position", zap.String("symbol", p.Symbol))
		}
	}
}

// backfillSymbol листает userTrades от водяного знака: полная страница, идём дальше
// с time последней сделки + 1, короткая или пустая: стоп.
func (r *Reconciler) backfillSymbol(ctx context.Context, symbol string) (int, error) {
	span, ctx := tracing.StartSpan(ctx, "journal.backfill.symbol", opentracing.Tags{"symbol": symbol})
	var err error
	defer func() { tracing.Finish(span, err) }()

	var lastID, start int64
	if w, ok := r.state.Get(symbol); ok {
		lastID = w.LastTradeID
		if w.LastEventTS > 0 {
			start = w.LastEventTS + 1
		}
	}

	enqueued := 0
	for {
		var page []models.TradeEvent
		page, err = retry.Do(ctx, r.cfg.Retry, func() ([]models.TradeEvent, error) {
			return r.ex.AccountTrades(ctx, symbol, start, r.cfg.PageSize)
		})
		if err != nil {
			return enqueued, err
		}

		sort.SliceStable(page, func(i, j int) bool {
			if page[i].EventTS != page[j].EventTS {
				return page[i].EventTS < page[j].EventTS
			}
			return page[i].TradeID < page[j].TradeID
		})

		for _, ev := range page {
			if ev.TradeID <= lastID {
				continue
			}
			ev.Symbol = symbol
			ev.Source = models.SourceBackfill
			if err = r.queue.Put(ctx, ev); err != nil {
				return enqueued, err
			}
			enqueued++
			r.metrics.BackfillEnqueued.WithLabelValues(symbol).Inc()
		}

		if len(page) < r.cfg.PageSize {
			return enqueued, nil
		}
		next := page[len(page)-1].EventTS + 1
		if next <= start {
			// страница целиком в одной миллисекунде, дальше по времени не сдвинуться
			r.log.Warn("backfill page does not advance", zap.String("symbol", symbol), zap.Int64("start", start))
			return enqueued, nil
		}
		start = next
	}
}

// Loop: периодическая сверка до отмены ctx.
func (r *Reconciler) Loop(ctx context.Context) {
	t := time.NewTicker(r.cfg.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
				r.log.Warn("backfill pass failed", zap.Error(err))
			}
		}
	}
}
