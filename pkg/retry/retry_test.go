package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoRetriesUntilSuccess(t *testing.T) {
	calls := 0
	got, err := Do(context.Background(), Policy{Attempts: 3, Delay: time.Millisecond}, func() (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("connection reset")
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 3, calls)
}

func TestDoGivesUpAfterAttempts(t *testing.T) {
	calls := 0
	retried := 0
	p := Policy{
		Attempts: 3,
		Delay:    time.Millisecond,
		OnRetry:  func(error, time.Duration) { retried++ },
	}
	err := Run(context.Background(), p, func() error {
		calls++
		return errors.New("remote end closed connection")
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, retried)
}

func TestDoStopsOnPermanent(t *testing.T) {
	calls := 0
	err := Run(context.Background(), Policy{Attempts: 5, Delay: time.Millisecond}, func() error {
		calls++
		return Permanent(errors.New("invalid symbol"))
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	_ = Run(context.Background(), Policy{}, func() error {
		calls++
		return errors.New("boom")
	})
	assert.Equal(t, 1, calls)
}

func TestDoHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Run(ctx, Policy{Attempts: 3, Delay: time.Second}, func() error {
		return errors.New("timeout")
	})
	require.Error(t, err)
}
