package journal

import (
	"context"
	"trade_journal/internal/models"
)

// Queue: ограниченная FIFO между продюсерами (листенер, бэкфилл) и процессором.
// Порядок: порядок поступления. При заполнении Put ждёт, события не теряются.
type Queue struct {
	ch chan models.TradeEvent
}

func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{ch: make(chan models.TradeEvent, capacity)}
}

// Put кладёт событие, блокируясь пока есть место. Ошибка только при отмене ctx.
func (q *Queue) Put(ctx context.Context, ev models.TradeEvent) error {
	select {
	case q.ch <- ev:
		return nil
	default:
	}
	select {
	case q.ch <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Get ждёт следующее событие или отмену ctx.
func (q *Queue) Get(ctx context.Context) (models.TradeEvent, error) {
	select {
	case ev := <-q.ch:
		return ev, nil
	case <-ctx.Done():
		return models.TradeEvent{}, ctx.Err()
	}
}

func (q *Queue) Len() int { return len(q.ch) }
func (q *Queue) Cap() int { return cap(q.ch) }
