package journal

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDebouncerCoalescesBurst(t *testing.T) {
	var fired atomic.Int32
	d := NewDebouncer(60*time.Millisecond, func() { fired.Add(1) })

	d.Trigger()
	time.Sleep(10 * time.Millisecond)
	d.Trigger()
	time.Sleep(10 * time.Millisecond)
	d.Trigger()
	assert.True(t, d.Pending())

	time.Sleep(200 * time.Millisecond)
	assert.EqualValues(t, 1, fired.Load())
	assert.False(t, d.Pending())
}

func TestDebouncerFiresTwiceForSeparatedTriggers(t *testing.T) {
	var fired atomic.Int32
	d := NewDebouncer(40*time.Millisecond, func() { fired.Add(1) })

	d.Trigger()
	time.Sleep(150 * time.Millisecond)
	d.Trigger()
	time.Sleep(150 * time.Millisecond)

	assert.EqualValues(t, 2, fired.Load())
}

func TestDebouncerStopCancelsPending(t *testing.T) {
	var fired atomic.Int32
	d := NewDebouncer(30*time.Millisecond, func() { fired.Add(1) })

	d.Trigger()
	d.Stop()
	d.Trigger()
	time.Sleep(100 * time.Millisecond)

	assert.Zero(t, fired.Load())
}

func TestDebouncerRunsDoNotOverlap(t *testing.T) {
	var active, maxActive, fired atomic.Int32
	d := NewDebouncer(10*time.Millisecond, func() {
		n := active.Add(1)
		for {
			m := maxActive.Load()
			if n <= m || maxActive.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(80 * time.Millisecond)
		active.Add(-1)
		fired.Add(1)
	})
	t.Cleanup(d.Stop)

	d.Trigger()
	time.Sleep(30 * time.Millisecond)
	// таймер срабатывает, пока первый прогон ещё идёт
	d.Trigger()

	require.Eventually(t, func() bool { return fired.Load() == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.EqualValues(t, 1, maxActive.Load())
	assert.False(t, d.Pending())
}

func TestDebouncerStopWaitsForRunningAction(t *testing.T) {
	started := make(chan struct{})
	var finished atomic.Bool
	var fired atomic.Int32
	d := NewDebouncer(5*time.Millisecond, func() {
		if fired.Add(1) == 1 {
			close(started)
		}
		time.Sleep(100 * time.Millisecond)
		finished.Store(true)
	})

	d.Trigger()
	<-started
	d.Trigger()
	time.Sleep(20 * time.Millisecond)
	d.Stop()

	assert.True(t, finished.Load())
	time.Sleep(50 * time.Millisecond)
	assert.EqualValues(t, 1, fired.Load())
}

type capturingNotifier struct {
	msgs atomic.Int32
}

func (c *capturingNotifier) SendService(_ context.Context, _ string, _ ...any) { c.msgs.Add(1) }

func TestDownstreamRunsCommand(t *testing.T) {
	out := filepath.Join(t.TempDir(), "report.txt")
	notifier := &capturingNotifier{}
	d := NewDownstream([]string{"sh", "-c", "echo done > " + out}, time.Second, notifier, zap.NewNop())

	var result string
	d.OnResult = func(r string) { result = r }
	d.Run()

	assert.Equal(t, "ok", result)
	raw, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "done\n", string(raw))
	assert.EqualValues(t, 1, notifier.msgs.Load())
}

func TestDownstreamReportsFailureAndTimeout(t *testing.T) {
	var results []string
	record := func(r string) { results = append(results, r) }

	failing := NewDownstream([]string{"sh", "-c", "exit 3"}, time.Second, nil, zap.NewNop())
	failing.OnResult = record
	failing.Run()

	slow := NewDownstream([]string{"sleep", "5"}, 50*time.Millisecond, nil, zap.NewNop())
	slow.OnResult = record
	slow.Run()

	assert.Equal(t, []string{"error", "timeout"}, results)
}

func TestDownstreamDisabledWithoutCommand(t *testing.T) {
	d := NewDownstream(nil, time.Second, nil, zap.NewNop())
	called := false
	d.OnResult = func(string) { called = true }
	d.Run()
	assert.False(t, d.Enabled())
	assert.False(t, called)
}
