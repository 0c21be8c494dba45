package notify

import (
	"context"
	"trade_journal/internal/modules/config"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// New: Telegram, если задан токен и чат; иначе (или если бот не поднялся), лог.
func New(cfg *config.Config, log *zap.Logger) Notifier {
	log = log.Named("notify")
	if cfg.Telegram.Token == "" || cfg.Telegram.ChatID == 0 {
		return NewLog(log)
	}
	tg, err := NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID, log)
	if err != nil {
		log.Warn("telegram unavailable, service messages go to log", zap.Error(err))
		return NewLog(log)
	}
	return tg
}

func Module() fx.Option {
	return fx.Module("notify",
		fx.Provide(New),
		fx.Invoke(func(lc fx.Lifecycle, n Notifier) {
			tg, ok := n.(*Telegram)
			if !ok {
				return
			}
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					// long-polling живёт дольше OnStart
					return tg.Start(context.Background())
				},
				OnStop: func(ctx context.Context) error {
					tg.Stop()
					return nil
				},
			})
		}),
	)
}
