package main

import (
	"context"
	"fmt"
	"time"
	"trade_journal/internal/modules/binance_client"
	"trade_journal/internal/modules/binance_websocket"
	"trade_journal/internal/modules/config"
	"trade_journal/internal/modules/health"
	"trade_journal/internal/modules/journal"
	"trade_journal/internal/modules/nats"
	"trade_journal/internal/modules/postgres"
	"trade_journal/internal/notify"
	"trade_journal/pkg/logger"
	"trade_journal/pkg/tracing"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// стартовый бэкфилл идёт внутри OnStart
const startTimeout = 3 * time.Minute

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the journal (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApp()
		},
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	logger.SetServiceName(cfg.Service.Name)
	logger.SetSession(uuid.NewString())
	return logger.Init(cfg.LogLevel)
}

func setupTracing(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) {
	if !cfg.Tracing.Enabled {
		return
	}
	tracing.SetServiceName(cfg.Service.Name)
	_, closer, err := tracing.InitTracer(tracing.Config{Host: cfg.Tracing.Host, Port: cfg.Tracing.Port})
	if err != nil {
		log.Warn("tracer disabled", zap.Error(err))
		return
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			closer()
			return nil
		},
	})
}

func runApp() error {
	app := fx.New(
		fx.StartTimeout(startTimeout),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
		config.Module(),
		fx.Provide(newLogger),
		fx.Invoke(setupTracing),
		health.Module(),
		notify.Module(),
		binance_client.Module(),
		binance_websocket.Module(),
		postgres.Module(),
		nats.Module(),
		journal.Module(),
	)
	if err := app.Err(); err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(context.Background(), app.StartTimeout())
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return err
	}

	sig := <-app.Wait()
	logger.L().Info("shutting down", zap.Any("signal", sig.Signal), zap.Int("exit_code", sig.ExitCode))

	stopCtx, stopCancel := context.WithTimeout(context.Background(), app.StopTimeout())
	defer stopCancel()
	if err := app.Stop(stopCtx); err != nil {
		return err
	}
	if sig.ExitCode != 0 {
		return fmt.Errorf("stopped with exit code %d", sig.ExitCode)
	}
	return nil
}
