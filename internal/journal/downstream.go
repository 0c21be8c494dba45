package journal

import (
	"context"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Downstream запускает внешнюю команду (отчёт, дашборд) после пачки новых строк.
// Её результат на журнал не влияет: только лог и метрика.
type Downstream struct {
	command []string
	timeout time.Duration
	notify  ServiceNotifier
	log     *zap.Logger

	// OnResult получает "ok" / "error" / "timeout".
	OnResult func(result string)
}

func NewDownstream(command []string, timeout time.Duration, notify ServiceNotifier, log *zap.Logger) *Downstream {
	if log == nil {
		log = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Downstream{command: command, timeout: timeout, notify: notify, log: log}
}

func (d *Downstream) Enabled() bool { return len(d.command) > 0 && d.command[0] != "" }

// Run выполняет команду с таймаутом. Вызывается из Debouncer.
func (d *Downstream) Run() {
	if !d.Enabled() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	start := time.Now()
	cmd := exec.CommandContext(ctx, d.command[0], d.command[1:]...)
	out, err := cmd.CombinedOutput()
	took := time.Since(start)

	result := "ok"
	switch {
	case ctx.Err() == context.DeadlineExceeded:
		result = "timeout"
	case err != nil:
		result = "error"
	}
	if d.OnResult != nil {
		d.OnResult(result)
	}

	tail := strings.TrimSpace(string(out))
	if len(tail) > 500 {
		tail = tail[len(tail)-500:]
	}
	if result != "ok" {
		d.log.Warn("downstream command failed",
			zap.Strings("cmd", d.command),
			zap.String("result", result),
			zap.Duration("took", took),
			zap.String("output", tail),
			zap.Error(err),
		)
		return
	}
	d.log.Info("downstream command done",
		zap.Strings("cmd", d.command),
		zap.Duration("took", took),
	)
	if d.notify != nil {
		d.notify.SendService(ctx, "📊 Отчёт обновлён (%s)", took.Round(time.Millisecond))
	}
}
