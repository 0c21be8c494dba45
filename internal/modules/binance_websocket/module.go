package binance_websocket

import (
	"trade_journal/internal/journal"
	clientsvc "trade_journal/internal/modules/binance_client/service"
	"trade_journal/internal/modules/binance_websocket/service"
	"trade_journal/internal/modules/config"
	healthsvc "trade_journal/internal/modules/health/service"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module: листенер user data stream. Запуском и перезапуском управляет модуль journal.
func Module() fx.Option {
	return fx.Module("binance_websocket",
		fx.Provide(
			func(cfg *config.Config, c *clientsvc.Client, q *journal.Queue, st *healthsvc.State, log *zap.Logger) *service.Listener {
				return service.NewListener(cfg, c, q, st, log)
			},
		),
	)
}
