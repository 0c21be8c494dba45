package journal

import (
	"sync"
	"time"
)

// Debouncer склеивает пачку Trigger в один вызов action через delay тишины.
// Вызовы action не пересекаются: сработка во время прогона даёт ещё один прогон после него.
type Debouncer struct {
	delay  time.Duration
	action func()

	mu       sync.Mutex
	timer    *time.Timer
	stopped  bool
	running  bool
	rerun    bool
	inFlight sync.WaitGroup
}

func NewDebouncer(delay time.Duration, action func()) *Debouncer {
	return &Debouncer{delay: delay, action: action}
}

// Trigger переводит в pending и перезапускает таймер.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped || d.action == nil {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(d.delay, func() { d.fire(t) })
	d.timer = t
}

func (d *Debouncer) fire(t *time.Timer) {
	d.mu.Lock()
	// таймер успели перезапустить или остановить
	if d.timer != t || d.stopped {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	if d.running {
		d.rerun = true
		d.mu.Unlock()
		return
	}
	d.running = true
	d.inFlight.Add(1)
	d.mu.Unlock()

	defer d.inFlight.Done()
	for {
		d.action()

		d.mu.Lock()
		if !d.rerun || d.stopped {
			d.rerun = false
			d.running = false
			d.mu.Unlock()
			return
		}
		d.rerun = false
		d.mu.Unlock()
	}
}

// Pending: таймер взведён или прогон ждёт окончания текущего.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil || d.rerun
}

// Stop отменяет отложенный вызов и ждёт идущий прогон. После Stop Trigger ничего не делает.
// Из самого action не вызывать.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	d.stopped = true
	d.rerun = false
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.mu.Unlock()

	d.inFlight.Wait()
}
