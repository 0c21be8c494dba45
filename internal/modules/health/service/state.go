package service

import (
	"sync/atomic"
	"time"
)

type State struct {
	ready     atomic.Bool
	startedAt time.Time

	wsConnected   atomic.Bool
	lastTradeUnix atomic.Int64 // unix ms последнего записанного в журнал трейда
	lastBeatUnix  atomic.Int64 // unix seconds последнего heartbeat листенера

	queueDepth atomic.Pointer[func() int]
}

func NewState() *State {
	s := &State{startedAt: time.Now()}
	s.ready.Store(false)
	return s
}

func (s *State) SetReady(v bool) { s.ready.Store(v) }
func (s *State) Ready() bool     { return s.ready.Load() }

func (s *State) SetWSConnected(v bool) { s.wsConnected.Store(v) }
func (s *State) WSConnected() bool     { return s.wsConnected.Load() }

func (s *State) TouchTrade(t time.Time) { s.lastTradeUnix.Store(t.UnixMilli()) }
func (s *State) LastTrade() time.Time {
	u := s.lastTradeUnix.Load()
	if u == 0 {
		return time.Time{}
	}
	return time.UnixMilli(u)
}

func (s *State) TouchHeartbeat(t time.Time) { s.lastBeatUnix.Store(t.Unix()) }
func (s *State) LastHeartbeat() time.Time {
	u := s.lastBeatUnix.Load()
	if u == 0 {
		return time.Time{}
	}
	return time.Unix(u, 0)
}

// SetQueueDepth регистрирует источник глубины очереди для /healthz.
func (s *State) SetQueueDepth(fn func() int) { s.queueDepth.Store(&fn) }
func (s *State) QueueDepth() int {
	fn := s.queueDepth.Load()
	if fn == nil || *fn == nil {
		return 0
	}
	return (*fn)()
}

func (s *State) Uptime() time.Duration { return time.Since(s.startedAt) }
