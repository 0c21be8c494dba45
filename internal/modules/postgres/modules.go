package postgres

import (
	"context"
	"fmt"
	"time"
	"trade_journal/internal/modules/config"
	"trade_journal/internal/modules/postgres/service"
	"trade_journal/pkg/db"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

const connectTimeout = 10 * time.Second

// Module: опциональное зеркало журнала в Postgres.
// Пустой db_dsn => провайдер отдаёт nil, модуль journal такой синк пропускает.
func Module() fx.Option {
	return fx.Module("postgres",
		fx.Provide(
			func(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (*service.LedgerMirror, error) {
				if cfg.DB == "" {
					return nil, nil
				}

				ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
				defer cancel()

				poolMaster, err := db.NewPool(ctx, db.PoolConfig{
					DSN:      cfg.DB,
					MaxConns: 4,
				})
				if err != nil {
					return nil, fmt.Errorf("failed to create poolMaster: %w", err)
				}
				tm := db.NewPgTxManager(poolMaster)

				if err = tm.Ping(ctx); err != nil {
					tm.Close()
					return nil, fmt.Errorf("ping postgres: %w", err)
				}

				mirror := service.NewLedgerMirror(tm, log)
				if err = mirror.EnsureSchema(ctx); err != nil {
					tm.Close()
					return nil, err
				}

				lc.Append(fx.Hook{
					OnStop: func(context.Context) error {
						tm.Close()
						return nil
					},
				})
				log.Info("postgres mirror enabled")
				return mirror, nil
			},
		),
	)
}
