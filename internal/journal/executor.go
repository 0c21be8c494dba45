package journal

import (
	"errors"
	"sync"
)

var ErrExecutorClosed = errors.New("file executor closed")

type fileJob struct {
	fn   func() error
	done chan error
}

// FileExecutor: один фоновый воркер для блокирующей файловой записи.
// Задачи выполняются строго в порядке Submit, поэтому строки журнала и
// снапшоты стейта ложатся на диск в том порядке, в каком их отдал процессор.
type FileExecutor struct {
	jobs chan fileJob
	wg   sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewFileExecutor(buffer int) *FileExecutor {
	if buffer <= 0 {
		buffer = 64
	}
	e := &FileExecutor{jobs: make(chan fileJob, buffer)}
	e.wg.Add(1)
	go e.loop()
	return e
}

func (e *FileExecutor) loop() {
	defer e.wg.Done()
	for job := range e.jobs {
		job.done <- job.fn()
		close(job.done)
	}
}

// Submit ставит задачу в очередь. Результат придёт в возвращённый канал (буфер 1),
// его можно ждать или игнорировать.
func (e *FileExecutor) Submit(fn func() error) <-chan error {
	done := make(chan error, 1)

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		done <- ErrExecutorClosed
		close(done)
		return done
	}
	e.jobs <- fileJob{fn: fn, done: done}
	return done
}

// Do: Submit с ожиданием результата.
func (e *FileExecutor) Do(fn func() error) error {
	return <-e.Submit(fn)
}

// Close перестаёт принимать задачи и дожидается выполнения уже поставленных.
func (e *FileExecutor) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	close(e.jobs)
	e.mu.Unlock()

	e.wg.Wait()
}
