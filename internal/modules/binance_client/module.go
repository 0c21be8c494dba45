package binance_client

import (
	"trade_journal/internal/modules/binance_client/service"

	"go.uber.org/fx"
)

// Module: REST-клиент Binance coin-M и таблица размеров контрактов.
func Module() fx.Option {
	return fx.Module("binance_client",
		fx.Provide(
			service.NewClient,
			service.NewContractTable,
		),
	)
}
