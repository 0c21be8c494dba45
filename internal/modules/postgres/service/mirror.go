package service

import (
	"context"
	"trade_journal/internal/journal"
	"trade_journal/pkg/db"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS journal_trades (
	symbol            TEXT        NOT NULL,
	trade_id          BIGINT      NOT NULL,
	order_id          BIGINT      NOT NULL,
	ts                TIMESTAMPTZ NOT NULL,
	position_side     TEXT        NOT NULL,
	side              TEXT        NOT NULL,
	qty               NUMERIC     NOT NULL,
	price             NUMERIC     NOT NULL,
	realized_pnl      NUMERIC     NOT NULL,
	fee               NUMERIC     NOT NULL,
	fee_asset         TEXT        NOT NULL,
	position_qty      NUMERIC     NOT NULL,
	entry_price       NUMERIC     NOT NULL,
	leverage          INTEGER     NOT NULL,
	margin_type       TEXT        NOT NULL,
	margin_asset      TEXT        NOT NULL,
	position_margin   NUMERIC     NOT NULL,
	unrealized_pnl    NUMERIC     NOT NULL,
	stop_price        NUMERIC,
	take_profit_price NUMERIC,
	r_multiple        NUMERIC,
	source            TEXT        NOT NULL,
	inserted_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (symbol, trade_id)
)`

const indexSQL = `CREATE INDEX IF NOT EXISTS journal_trades_ts_idx ON journal_trades (ts)`

const insertSQL = `
INSERT INTO journal_trades (
	symbol, trade_id, order_id, ts, position_side, side,
	qty, price, realized_pnl, fee, fee_asset,
	position_qty, entry_price, leverage, margin_type, margin_asset,
	position_margin, unrealized_pnl,
	stop_price, take_profit_price, r_multiple, source
) VALUES (
	$1, $2, $3, $4, $5, $6,
	$7, $8, $9, $10, $11,
	$12, $13, $14, $15, $16,
	$17, $18,
	$19, $20, $21, $22
) ON CONFLICT (symbol, trade_id) DO NOTHING`

// LedgerMirror дублирует строки журнала в Postgres. CSV остаётся источником истины,
// повторная вставка той же сделки игнорируется.
type LedgerMirror struct {
	db  db.TxManager
	log *zap.Logger
}

func NewLedgerMirror(tx db.TxManager, log *zap.Logger) *LedgerMirror {
	if log == nil {
		log = zap.NewNop()
	}
	return &LedgerMirror{db: tx, log: log.Named("pg_mirror")}
}

func (m *LedgerMirror) Name() string { return "postgres" }

// EnsureSchema создаёт таблицу и индекс, если их ещё нет.
func (m *LedgerMirror) EnsureSchema(ctx context.Context) error {
	err := m.db.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(ctxTx, schemaSQL); err != nil {
			return errors.Wrap(err, "create journal_trades")
		}
		if _, err := tx.Exec(ctxTx, indexSQL); err != nil {
			return errors.Wrap(err, "create journal_trades_ts_idx")
		}
		return nil
	})
	return errors.Wrap(err, "pg.EnsureSchema")
}

func (m *LedgerMirror) Publish(ctx context.Context, row journal.LedgerRow) (err error) {
	defer func() {
		if err != nil {
			err = errors.Wrap(err, "pg.Publish")
		}
	}()

	tag, err := m.db.Conn().Exec(ctx, insertSQL, rowArgs(row)...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		m.log.Debug("row already mirrored",
			zap.String("symbol", row.Symbol), zap.Int64("trade_id", row.TradeID))
	}
	return nil
}

// rowArgs: параметры insertSQL по порядку. decimal и NullDecimal уходят как driver.Valuer.
func rowArgs(r journal.LedgerRow) []any {
	return []any{
		r.Symbol, r.TradeID, r.OrderID, r.Time.UTC(), r.PositionSide, string(r.Side),
		r.Qty, r.Price, r.RealizedPnl, r.Fee, r.FeeAsset,
		r.PositionQty, r.EntryPrice, r.Leverage, r.MarginType, r.MarginAsset,
		r.PositionMargin, r.UnrealizedPnl,
		r.StopPrice, r.TakeProfitPrice, r.RMultiple, string(r.Source),
	}
}
