package journal

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Stream: перезапускаемая подписка (listener user data stream).
type Stream interface {
	Run(ctx context.Context) error
	Connects() int64
}

type SupervisorConfig struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// Сколько ждём самой первой успешной подписки, прежде чем сдаться.
	FirstConnectTimeout time.Duration
}

// Supervise перезапускает поток с экспоненциальной паузой до отмены ctx.
// Ошибка возвращается, только если поток так ни разу и не подключился
// за FirstConnectTimeout. onRestart вызывается перед каждым перезапуском
// после уже бывшего подключения.
func Supervise(ctx context.Context, s Stream, cfg SupervisorConfig, onRestart func(), log *zap.Logger) error {
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.InitialBackoff
	b.MaxInterval = cfg.MaxBackoff

	started := time.Now()
	for {
		before := s.Connects()
		err := s.Run(ctx)
		if ctx.Err() != nil {
			return nil
		}

		connected := s.Connects()
		if connected > before {
			// сессия была живой, паузу считаем заново
			b.Reset()
		}
		if connected == 0 && cfg.FirstConnectTimeout > 0 && time.Since(started) >= cfg.FirstConnectTimeout {
			return errors.Wrap(err, "user data stream never connected")
		}

		wait := b.NextBackOff()
		log.Warn("user data stream lost, restarting",
			zap.Error(err),
			zap.Duration("wait", wait),
			zap.Int64("connects", connected),
		)

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
		if connected > 0 && onRestart != nil {
			onRestart()
		}
	}
}
