package service

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"trade_journal/internal/journal"
	"trade_journal/internal/modules/config"
	healthsvc "trade_journal/internal/modules/health/service"
	"trade_journal/pkg/retry"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ErrListenKeyExpired: биржа закрыла сессию user data stream.
var ErrListenKeyExpired = errors.New("listen key expired")

// ListenKeyAPI: REST-часть user data stream. Реализация: binance_client/service.Client.
type ListenKeyAPI interface {
	CreateListenKey(ctx context.Context) (string, error)
	KeepAliveListenKey(ctx context.Context, listenKey string) error
	CloseListenKey(ctx context.Context, listenKey string) error
}

type Options struct {
	WSURL             string
	KeepAlive         time.Duration
	Heartbeat         time.Duration
	Retry             retry.Policy
	HandshakeTimeout  time.Duration
	ReadIdleTimeout   time.Duration // 0: без дедлайна чтения
	CloseKeyOnStopped bool
}

// Binance пингует раз в 3 минуты, тишина дольше значит полуоткрытое соединение.
const defaultReadIdleTimeout = 10 * time.Minute

const pongWait = 5 * time.Second

// ConnectedFunc вызывается после каждой успешной подписки до чтения первого кадра.
// Всё, что она положит в очередь, встанет раньше живых сделок этой сессии.
type ConnectedFunc func(ctx context.Context) error

// Listener держит одну подписку на user data stream и кладёт сделки в очередь.
// Run возвращается при потере соединения, перезапускает вызывающий.
type Listener struct {
	opts   Options
	api    ListenKeyAPI
	queue  *journal.Queue
	health *healthsvc.State
	dialer *websocket.Dialer
	log    *zap.Logger

	connects    atomic.Int64
	onConnected atomic.Pointer[ConnectedFunc]
}

func NewListener(cfg *config.Config, api ListenKeyAPI, queue *journal.Queue, health *healthsvc.State, log *zap.Logger) *Listener {
	return NewListenerWithOptions(Options{
		WSURL:             cfg.Binance.WSURL,
		KeepAlive:         30 * time.Minute,
		Heartbeat:         cfg.Journal.HeartbeatInterval,
		Retry:             retry.Policy{Attempts: cfg.Journal.RetryAttempts, Delay: cfg.Journal.RetryDelay},
		HandshakeTimeout:  10 * time.Second,
		ReadIdleTimeout:   defaultReadIdleTimeout,
		CloseKeyOnStopped: true,
	}, api, queue, health, log)
}

func NewListenerWithOptions(opts Options, api ListenKeyAPI, queue *journal.Queue, health *healthsvc.State, log *zap.Logger) *Listener {
	if opts.KeepAlive <= 0 {
		opts.KeepAlive = 30 * time.Minute
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = 5 * time.Minute
	}
	if health == nil {
		health = healthsvc.NewState()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Listener{
		opts:   opts,
		api:    api,
		queue:  queue,
		health: health,
		dialer: &websocket.Dialer{HandshakeTimeout: opts.HandshakeTimeout},
		log:    log.Named("listener"),
	}
}

// SetOnConnected регистрирует догрузку пропущенного после (пере)подключения.
func (l *Listener) SetOnConnected(fn ConnectedFunc) {
	if fn == nil {
		l.onConnected.Store(nil)
		return
	}
	l.onConnected.Store(&fn)
}

// Connects: сколько раз подписка успешно поднималась за время жизни процесса.
func (l *Listener) Connects() int64 { return l.connects.Load() }

// Run: listenKey -> dial -> чтение до ошибки или отмены ctx.
// nil возвращается только при отмене ctx.
func (l *Listener) Run(ctx context.Context) error {
	key, err := retry.Do(ctx, l.opts.Retry, func() (string, error) {
		return l.api.CreateListenKey(ctx)
	})
	if err != nil {
		return errors.Wrap(err, "create listen key")
	}

	url := strings.TrimRight(l.opts.WSURL, "/") + "/" + key
	conn, _, err := l.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return errors.Wrap(err, "dial user data stream")
	}

	l.connects.Add(1)
	l.health.SetWSConnected(true)
	l.log.Info("user data stream connected")

	sessCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		_ = conn.Close()
		wg.Wait()
		l.health.SetWSConnected(false)
		if ctx.Err() != nil && l.opts.CloseKeyOnStopped {
			cctx, ccancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := l.api.CloseListenKey(cctx, key); err != nil {
				l.log.Debug("close listen key", zap.Error(err))
			}
			ccancel()
		}
	}()

	wg.Add(3)
	go func() {
		defer wg.Done()
		// ReadMessage не знает про ctx: закрываем сокет сами
		<-sessCtx.Done()
		_ = conn.Close()
	}()
	go func() {
		defer wg.Done()
		l.keepAlive(sessCtx, key)
	}()
	go func() {
		defer wg.Done()
		l.heartbeat(sessCtx)
	}()

	if l.opts.ReadIdleTimeout > 0 {
		conn.SetPingHandler(func(data string) error {
			_ = conn.SetReadDeadline(time.Now().Add(l.opts.ReadIdleTimeout))
			err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(pongWait))
			if errors.Is(err, websocket.ErrCloseSent) {
				return nil
			}
			return err
		})
	}

	if fn := l.onConnected.Load(); fn != nil {
		if err := (*fn)(sessCtx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "resync after connect")
		}
	}

	for {
		if l.opts.ReadIdleTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(l.opts.ReadIdleTimeout))
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "read user data stream")
		}

		ev, kind, err := normalize(msg)
		if err != nil {
			l.log.Debug("skip frame", zap.Error(err))
			continue
		}
		switch kind {
		case frameListenKeyExpired:
			return ErrListenKeyExpired
		case frameTrade:
			if err := l.queue.Put(ctx, ev); err != nil {
				return nil
			}
			l.log.Debug("trade received",
				zap.String("symbol", ev.Symbol),
				zap.Int64("trade_id", ev.TradeID),
			)
		}
	}
}

func (l *Listener) keepAlive(ctx context.Context, key string) {
	t := time.NewTicker(l.opts.KeepAlive)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			err := retry.Run(ctx, l.opts.Retry, func() error {
				return l.api.KeepAliveListenKey(ctx, key)
			})
			if err != nil && ctx.Err() == nil {
				l.log.Warn("listen key keepalive failed", zap.Error(err))
			}
		}
	}
}

// heartbeat: редкая строка в лог, на корректность не влияет.
func (l *Listener) heartbeat(ctx context.Context) {
	t := time.NewTicker(l.opts.Heartbeat)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			l.health.TouchHeartbeat(now)
			l.log.Info("listener heartbeat",
				zap.Int("queue_depth", l.queue.Len()),
				zap.Time("last_trade", l.health.LastTrade()),
			)
		}
	}
}
