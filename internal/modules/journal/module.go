package journal

import (
	core "trade_journal/internal/journal"
	clientsvc "trade_journal/internal/modules/binance_client/service"
	wssvc "trade_journal/internal/modules/binance_websocket/service"
	"trade_journal/internal/modules/config"
	healthsvc "trade_journal/internal/modules/health/service"
	natssvc "trade_journal/internal/modules/nats/service"
	pgsvc "trade_journal/internal/modules/postgres/service"
	"trade_journal/internal/notify"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Config     *config.Config
	Client     *clientsvc.Client
	Contracts  *clientsvc.ContractTable
	Queue      *core.Queue
	Listener   *wssvc.Listener
	Notifier   notify.Notifier
	Health     *healthsvc.State
	Metrics    *healthsvc.Metrics
	Shutdowner fx.Shutdowner
	Log        *zap.Logger

	Mirror    *pgsvc.LedgerMirror `optional:"true"`
	Publisher *natssvc.Publisher  `optional:"true"`
}

func newApp(p Params) (*App, error) {
	var sinks []core.RowSink
	// nil-указатели в интерфейс не кладём: модуль без DSN/URL отдаёт nil
	if p.Mirror != nil {
		sinks = append(sinks, p.Mirror)
	}
	if p.Publisher != nil {
		sinks = append(sinks, p.Publisher)
	}

	log := p.Log.Named("journal")
	return NewApp(AppDeps{
		Config:    p.Config,
		Exchange:  p.Client,
		Contracts: p.Contracts,
		Queue:     p.Queue,
		Stream:    p.Listener,
		Notifier:  p.Notifier,
		Sinks:     sinks,
		Health:    p.Health,
		Metrics:   p.Metrics,
		Log:       log,
		Fatal: func(err error) {
			if sErr := p.Shutdowner.Shutdown(fx.ExitCode(1)); sErr != nil {
				log.Error("shutdown request failed", zap.Error(sErr))
			}
		},
	})
}

func Module() fx.Option {
	return fx.Module("journal",
		fx.Provide(
			func(cfg *config.Config) *core.Queue {
				return core.NewQueue(cfg.Journal.QueueSize)
			},
			newApp,
		),
		fx.Invoke(func(lc fx.Lifecycle, app *App, n notify.Notifier) {
			if tg, ok := n.(*notify.Telegram); ok {
				tg.SetStatus(app.Status)
			}
			lc.Append(fx.Hook{
				OnStart: app.Start,
				OnStop:  app.Stop,
			})
		}),
	)
}
