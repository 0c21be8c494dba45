package journal

import (
	"context"
	"trade_journal/internal/models"

	"github.com/shopspring/decimal"
)

// Exchange: то, что журналу нужно от биржи. Реализация: binance_client/service.Client.
type Exchange interface {
	// AccountTrades: история сделок по символу начиная с startTime (ms, 0, без фильтра), не более limit штук.
	AccountTrades(ctx context.Context, symbol string, startTime int64, limit int) ([]models.TradeEvent, error)
	// Positions: все позиции аккаунта (в т.ч. нулевые).
	Positions(ctx context.Context) ([]models.PositionSnapshot, error)
	// OpenOrders: открытые ордера по символу.
	OpenOrders(ctx context.Context, symbol string) ([]models.OpenOrder, error)
}

// ContractSizer отдаёт размер контракта (coin-M), 0: неизвестен.
type ContractSizer interface {
	ContractSize(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// RowSink получает уже записанную строку журнала (зеркала, шины).
// Ошибки синков только логируются.
type RowSink interface {
	Name() string
	Publish(ctx context.Context, row LedgerRow) error
}

// ServiceNotifier: служебные уведомления (Telegram или лог).
type ServiceNotifier interface {
	SendService(ctx context.Context, format string, args ...any)
}
