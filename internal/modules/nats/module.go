package nats

import (
	"context"
	"fmt"
	"time"
	"trade_journal/internal/modules/config"
	"trade_journal/internal/modules/nats/service"

	natsgo "github.com/nats-io/nats.go"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module: опциональная рассылка строк журнала в NATS. Пустой nats.url => nil.
func Module() fx.Option {
	return fx.Module("nats",
		fx.Provide(
			func(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (*service.Publisher, error) {
				if cfg.NATS.URL == "" {
					return nil, nil
				}
				log = log.Named("nats")

				nc, err := natsgo.Connect(cfg.NATS.URL,
					natsgo.Name(cfg.Service.Name),
					natsgo.Timeout(5*time.Second),
					natsgo.MaxReconnects(-1),
					natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
						log.Warn("nats disconnected", zap.Error(err))
					}),
					natsgo.ReconnectHandler(func(c *natsgo.Conn) {
						log.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
					}),
				)
				if err != nil {
					return nil, fmt.Errorf("connect nats: %w", err)
				}

				lc.Append(fx.Hook{
					OnStop: func(context.Context) error {
						if err := nc.Drain(); err != nil {
							nc.Close()
						}
						return nil
					},
				})
				log.Info("nats publisher enabled", zap.String("prefix", cfg.NATS.SubjectPrefix))
				return service.NewPublisher(nc, cfg.NATS.SubjectPrefix), nil
			},
		),
	)
}
