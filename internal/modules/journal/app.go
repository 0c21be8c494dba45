package journal

import (
	"context"
	"fmt"
	"sync"
	"time"
	core "trade_journal/internal/journal"
	clientsvc "trade_journal/internal/modules/binance_client/service"
	wssvc "trade_journal/internal/modules/binance_websocket/service"
	"trade_journal/internal/modules/config"
	healthsvc "trade_journal/internal/modules/health/service"
	"trade_journal/pkg/retry"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// App собирает журнал: очередь, стейт, журнал на диске, потребитель и сверка.
// Жизненным циклом управляет Module через Start/Stop.
type App struct {
	cfg     *config.Config
	log     *zap.Logger
	health  *healthsvc.State
	metrics *healthsvc.Metrics

	Queue      *core.Queue
	Active     *core.ActiveSet
	Exec       *core.FileExecutor
	State      *core.StateStore
	Ledger     *core.Ledger
	Downstream *core.Downstream
	Debouncer  *core.Debouncer
	Processor  *core.Processor
	Reconciler *core.Reconciler

	stream Stream
	fatal  func(error)

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type AppDeps struct {
	Config    *config.Config
	Exchange  core.Exchange
	Contracts core.ContractSizer
	Queue     *core.Queue
	Stream    Stream
	Notifier  core.ServiceNotifier
	Sinks     []core.RowSink
	Health    *healthsvc.State
	Metrics   *healthsvc.Metrics
	Log       *zap.Logger
	// Fatal: поток так и не поднялся; обычно fx.Shutdowner с кодом 1.
	Fatal func(error)
}

// NewApp: стейт (с откатом на журнал) -> файл журнала -> остальное.
// Стейт читается раньше открытия журнала: при смене схемы старый файл уйдёт в бэкап.
func NewApp(d AppDeps) (*App, error) {
	cfg := d.Config
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	loc := cfg.Location()
	policy := retry.Policy{Attempts: cfg.Journal.RetryAttempts, Delay: cfg.Journal.RetryDelay}

	exec := core.NewFileExecutor(256)

	state := core.NewStateStore(cfg.Journal.StatePath, exec, log.Named("state"))
	state.OnPersistError = func(error) { d.Metrics.StatePersistErrs.Inc() }
	recovered, err := state.Load(cfg.Journal.LedgerPath, loc)
	if err != nil {
		exec.Close()
		return nil, errors.Wrap(err, "load state")
	}
	if recovered {
		state.Persist()
	}

	ledger, err := core.OpenLedger(cfg.Journal.LedgerPath, loc, exec, log.Named("ledger"))
	if err != nil {
		exec.Close()
		return nil, err
	}

	active := core.NewActiveSet(state.Symbols()...)

	ds := core.NewDownstream(cfg.Downstream.Command, cfg.Downstream.Timeout, d.Notifier, log)
	ds.OnResult = func(result string) { d.Metrics.DownstreamRuns.WithLabelValues(result).Inc() }
	var trigger core.Trigger
	var deb *core.Debouncer
	if ds.Enabled() {
		deb = core.NewDebouncer(cfg.Downstream.Debounce, ds.Run)
		trigger = deb
	}

	sinks := make([]core.RowSink, 0, len(d.Sinks))
	for _, s := range d.Sinks {
		if s != nil {
			sinks = append(sinks, s)
		}
	}

	proc := core.NewProcessor(core.ProcessorConfig{
		SettleDelay:       cfg.Journal.SettleDelay,
		StabilizeAttempts: cfg.Journal.StabilizeAttempts,
		StabilizeDelay:    cfg.Journal.StabilizeDelay,
		Retry:             policy,
	}, core.ProcessorDeps{
		Exchange:  d.Exchange,
		Contracts: d.Contracts,
		Queue:     d.Queue,
		State:     state,
		Active:    active,
		Ledger:    ledger,
		Trigger:   trigger,
		Sinks:     sinks,
		Metrics:   d.Metrics,
		Health:    d.Health,
		Log:       log.Named("processor"),
	})

	rec := core.NewReconciler(core.ReconcilerConfig{
		PageSize: cfg.Journal.PageSize,
		Interval: cfg.Journal.BackfillInterval,
		Retry:    policy,
	}, d.Exchange, state, active, d.Queue, d.Metrics, log.Named("reconciler"))

	d.Health.SetQueueDepth(d.Queue.Len)

	log.Info("journal assembled",
		zap.String("ledger", cfg.Journal.LedgerPath),
		zap.String("state", cfg.Journal.StatePath),
		zap.Bool("state_recovered", recovered),
		zap.Strings("symbols", active.Symbols()),
		zap.Int("sinks", len(sinks)),
		zap.Bool("downstream", ds.Enabled()),
	)

	app := &App{
		cfg:        cfg,
		log:        log,
		health:     d.Health,
		metrics:    d.Metrics,
		Queue:      d.Queue,
		Active:     active,
		Exec:       exec,
		State:      state,
		Ledger:     ledger,
		Downstream: ds,
		Debouncer:  deb,
		Processor:  proc,
		Reconciler: rec,
		stream:     d.Stream,
		fatal:      d.Fatal,
	}
	if h, ok := d.Stream.(connectHooker); ok {
		h.SetOnConnected(app.Resync)
	}
	return app, nil
}

type connectHooker interface {
	SetOnConnected(fn wssvc.ConnectedFunc)
}

// Resync догружает то, что прошло мимо, пока потока не было. Вызывается листенером
// после каждой подписки, до первого живого кадра.
func (a *App) Resync(ctx context.Context) error {
	if err := a.Reconciler.RunOnce(ctx); err != nil {
		return err
	}
	a.log.Debug("resync after connect done", zap.Int("queue_depth", a.Queue.Len()))
	return nil
}

func (a *App) goRun(fn func()) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		fn()
	}()
}

// Start: потребитель -> стартовая сверка -> ready -> поток и периодическая сверка.
// Стартовая сверка идёт под собственным контекстом приложения, а не под ctx OnStart.
func (a *App) Start(context.Context) error {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	a.goRun(func() { a.Processor.Run(ctx) })

	if err := a.Reconciler.RunOnce(ctx); err != nil {
		a.log.Warn("startup backfill incomplete", zap.Error(err))
	}
	a.health.SetReady(true)

	if a.stream != nil {
		a.goRun(func() {
			err := Supervise(ctx, a.stream, SupervisorConfig{
				InitialBackoff:      time.Second,
				MaxBackoff:          time.Minute,
				FirstConnectTimeout: 5 * time.Minute,
			}, a.metrics.WSReconnects.Inc, a.log)
			if err != nil {
				a.log.Error("user data stream unavailable", zap.Error(err))
				if a.fatal != nil {
					a.fatal(err)
				}
			}
		})
	}
	a.goRun(func() { a.Reconciler.Loop(ctx) })

	return nil
}

// Stop: отмена -> ожидание горутин -> таймер -> стейт -> файлы.
func (a *App) Stop(context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()
	a.health.SetReady(false)

	if a.Debouncer != nil {
		a.Debouncer.Stop()
	}

	var errs []error
	if err := a.State.PersistNow(); err != nil {
		errs = append(errs, errors.Wrap(err, "persist state"))
	}
	a.Exec.Close()
	if err := a.Ledger.Close(); err != nil {
		errs = append(errs, errors.Wrap(err, "close ledger"))
	}

	if n := a.Queue.Len(); n > 0 {
		// водяные знаки не сдвигались, следующий старт доберёт их бэкфиллом
		a.log.Warn("events left in queue at shutdown", zap.Int("count", n))
	}
	a.log.Info("journal stopped", zap.Int("symbols", a.State.Len()))

	if len(errs) > 0 {
		return fmt.Errorf("journal stop: %v", errs)
	}
	return nil
}

// Status: текст для /status в Telegram.
func (a *App) Status() string {
	last := "-"
	if t := a.health.LastTrade(); !t.IsZero() {
		last = t.In(a.cfg.Location()).Format("2006-01-02 15:04:05")
	}
	ws := "🔴"
	if a.health.WSConnected() {
		ws = "🟢"
	}
	return fmt.Sprintf("📒 Журнал сделок\nПоток: %s\nГотов: %t\nОчередь: %d\nСимволы: %d\nПоследняя сделка: %s\nUptime: %s",
		ws, a.health.Ready(), a.Queue.Len(), a.Active.Len(), last,
		a.health.Uptime().Truncate(time.Second))
}

var (
	_ core.Exchange      = (*clientsvc.Client)(nil)
	_ core.ContractSizer = (*clientsvc.ContractTable)(nil)
	_ connectHooker      = (*wssvc.Listener)(nil)
)
