package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Policy: фиксированное число попыток с фиксированной паузой между ними.
type Policy struct {
	Attempts int
	Delay    time.Duration

	// OnRetry вызывается перед каждой повторной попыткой (для логов). Может быть nil.
	OnRetry func(err error, wait time.Duration)
}

func (p Policy) tries() uint {
	if p.Attempts <= 0 {
		return 1
	}
	return uint(p.Attempts)
}

// Do выполняет op до успеха, исчерпания попыток или отмены ctx.
// Возвращает последнюю ошибку op (или ошибку контекста).
func Do[T any](ctx context.Context, p Policy, op func() (T, error)) (T, error) {
	opts := []backoff.RetryOption{
		backoff.WithBackOff(backoff.NewConstantBackOff(p.Delay)),
		backoff.WithMaxTries(p.tries()),
		backoff.WithMaxElapsedTime(0),
	}
	if p.OnRetry != nil {
		opts = append(opts, backoff.WithNotify(p.OnRetry))
	}
	return backoff.Retry(ctx, op, opts...)
}

// Run: вариант Do для операций без результата.
func Run(ctx context.Context, p Policy, op func() error) error {
	_, err := Do(ctx, p, func() (struct{}, error) {
		return struct{}{}, op()
	})
	return err
}

// Permanent помечает ошибку как неретраибельную: Do вернёт её сразу.
func Permanent(err error) error {
	return backoff.Permanent(err)
}
